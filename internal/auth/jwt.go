package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// adminIssuer is stamped into every admin token and required when parsing
const adminIssuer = "llm-gateway"

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrInvalidRole  = errors.New("invalid role")
	ErrMissingKey   = errors.New("signing secret is not configured")
)

// AdminClaims identifies an operator of the admin API
type AdminClaims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// IssueAdminToken signs an HS256 token for subject carrying roles.
// It returns the token and its expiry.
func IssueAdminToken(secret []byte, subject string, roles []Role, ttl time.Duration) (string, time.Time, error) {
	if len(secret) == 0 {
		return "", time.Time{}, ErrMissingKey
	}
	if len(roles) == 0 {
		return "", time.Time{}, fmt.Errorf("%w: at least one role is required", ErrInvalidRole)
	}

	names := make([]string, 0, len(roles))
	for _, r := range roles {
		if !r.IsValid() {
			return "", time.Time{}, fmt.Errorf("%w: %q", ErrInvalidRole, r)
		}
		names = append(names, r.String())
	}

	now := time.Now()
	expiresAt := now.Add(ttl)
	claims := &AdminClaims{
		Roles: names,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    adminIssuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ParseAdminToken verifies signature, expiry and issuer
func ParseAdminToken(secret []byte, tokenString string) (*AdminClaims, error) {
	if len(secret) == 0 {
		return nil, ErrMissingKey
	}

	token, err := jwt.ParseWithClaims(tokenString, &AdminClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*AdminClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if !claims.VerifyIssuer(adminIssuer, true) {
		return nil, fmt.Errorf("%w: unexpected issuer", ErrInvalidToken)
	}
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing expiry", ErrInvalidToken)
	}
	return claims, nil
}
