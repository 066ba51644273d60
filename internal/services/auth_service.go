package services

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prudhvinik1/tenantsync/internal/syncerr"
	"github.com/prudhvinik1/tenantsync/internal/utils"
)

var ErrInvalidToken = errors.New("invalid token")

// TokenVerifier resolves a bearer token to the caller's tenant.
type TokenVerifier interface {
	VerifyToken(tokenString string) (*TokenClaims, error)
}

type TokenClaims struct {
	UserID   string
	TenantID string
}

// AuthService verifies HS256 tokens issued by the account service. Tokens
// carry the tenant as companyId, or customerId for customer-portal users.
type AuthService struct {
	jwtSecret string
}

func NewAuthService(jwtSecret string) *AuthService {
	return &AuthService{jwtSecret: jwtSecret}
}

// IssueToken signs a token for a tenant. Used by the token command and tests.
func (s *AuthService) IssueToken(userID, tenantID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"id":        userID,
		"companyId": tenantID,
		"exp":       now.Add(ttl).Unix(),
		"iat":       now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (s *AuthService) VerifyToken(tokenString string) (*TokenClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})

	if err != nil {
		return nil, ErrInvalidToken
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	// Tenant: companyId, falling back to customerId
	tenantID := claimString(claims["companyId"])
	if tenantID == "" {
		tenantID = claimString(claims["customerId"])
	}
	if tenantID == "" {
		return nil, syncerr.Authorization("token does not identify a tenant")
	}
	if !utils.ValidTenantID(tenantID) {
		return nil, syncerr.Authorization("token tenant is malformed")
	}

	userID := claimString(claims["id"])
	if userID == "" {
		userID = claimString(claims["sub"])
	}

	return &TokenClaims{
		UserID:   userID,
		TenantID: tenantID,
	}, nil
}

// claimString accepts string and numeric claim values.
func claimString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}
