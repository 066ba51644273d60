package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseID(t *testing.T) {
	_, ok := ParseID(NewID())
	assert.True(t, ok)

	for _, bad := range []string{"", "42", "local-1", "00000000-0000-0000-0000-000000000000"} {
		_, ok := ParseID(bad)
		assert.False(t, ok, bad)
	}
}

func TestParseID_AcceptsAlternateSpellings(t *testing.T) {
	canonical := NewID()

	for _, form := range []string{"urn:uuid:" + canonical, "{" + canonical + "}"} {
		id, ok := ParseID(form)
		assert.True(t, ok, form)
		assert.Equal(t, canonical, id.String())
	}
}

func TestValidTenantID(t *testing.T) {
	assert.True(t, ValidTenantID("acme_42"))
	assert.True(t, ValidTenantID("7f1c-22"))
	assert.False(t, ValidTenantID(""))
	assert.False(t, ValidTenantID("acme; DROP SCHEMA"))
	assert.False(t, ValidTenantID("../etc"))
}

func TestValidIdentifier(t *testing.T) {
	assert.True(t, ValidIdentifier("is_deleted"))
	assert.True(t, ValidIdentifier("isDeleted"))
	assert.False(t, ValidIdentifier("1field"))
	assert.False(t, ValidIdentifier("a.b"))
	assert.False(t, ValidIdentifier("x'y"))
}
