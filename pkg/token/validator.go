package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/suhas-svg/financial-backend-services-sub006/pkg/apperrors"
)

// Claims carried by the HMAC-signed bearer tokens shared between the account
// and transaction services.
type Claims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the validated principal extracted from a bearer token.
type Identity struct {
	Subject string
	Roles   []string
}

func (i *Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Validator verifies compact HMAC-SHA256 tokens. It is pure: no I/O, no
// shared state beyond the secret.
type Validator struct {
	secret []byte
}

func NewValidator(secret string) *Validator {
	return &Validator{secret: []byte(secret)}
}

// Validate checks signature, expiry and not-before, and returns the subject
// and role claims. Errors map onto the stable TOKEN_EXPIRED / TOKEN_INVALID
// codes.
func (v *Validator) Validate(tokenString string) (*Identity, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.ErrTokenExpired
		}
		return nil, apperrors.ErrTokenInvalid.WithDetails(err.Error())
	}

	if !parsed.Valid {
		return nil, apperrors.ErrTokenInvalid
	}

	if claims.ExpiresAt == nil || time.Now().After(claims.ExpiresAt.Time) {
		return nil, apperrors.ErrTokenExpired
	}
	if claims.NotBefore != nil && time.Now().Before(claims.NotBefore.Time) {
		return nil, apperrors.ErrTokenInvalid.WithDetails("token not yet valid")
	}
	if claims.Subject == "" {
		return nil, apperrors.ErrTokenInvalid.WithDetails("missing subject claim")
	}

	return &Identity{
		Subject: claims.Subject,
		Roles:   claims.Roles,
	}, nil
}

// Sign mints a token for the given subject. Both services share the secret,
// so tokens minted here authenticate against either side.
func Sign(secret, subject string, roles []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
