package utils

import (
	"regexp"

	"github.com/google/uuid"
)

var (
	tenantIDPattern   = regexp.MustCompile(`^[A-Za-z0-9_-]{1,63}$`)
	identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)
)

// ParseID reports whether s is a syntactically valid record identifier.
// Callers store the canonical id.String(), not s.
func ParseID(s string) (uuid.UUID, bool) {
	if s == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(s)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

func NewID() string {
	return uuid.New().String()
}

// ValidTenantID guards tenant ids before they are used to name schemas or files.
func ValidTenantID(s string) bool {
	return tenantIDPattern.MatchString(s)
}

// ValidIdentifier reports whether s can be embedded in a JSON path or column
// reference without quoting.
func ValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}
