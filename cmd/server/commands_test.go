package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/prudhvinik1/tenantsync/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_TokenAndMigrate(t *testing.T) {
	// ARRANGE
	t.Setenv("JWT_SECRET", "cli-secret")
	t.Setenv("STORAGE_DRIVER", "sqlite")
	t.Setenv("SQLITE_DIR", t.TempDir())
	t.Setenv("LOG_LEVEL", "error")
	cmd := NewRootCmd()

	// ACT
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"token", "--tenant", "acme", "--user", "ops"})
	require.NoError(t, cmd.Execute())

	// ASSERT
	claims, err := services.NewAuthService("cli-secret").VerifyToken(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "acme", claims.TenantID)
	assert.Equal(t, "ops", claims.UserID)

	cmd.SetArgs([]string{"migrate", "--tenant", "acme", "--tenant", "globex"})
	assert.NoError(t, cmd.Execute())

	cmd.SetArgs([]string{"token", "--tenant", "../etc"})
	assert.Error(t, cmd.Execute())
}
