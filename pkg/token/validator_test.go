package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/suhas-svg/financial-backend-services-sub006/pkg/apperrors"
)

const testSecret = "test-secret-key"

func TestSignAndValidateRoundtrip(t *testing.T) {
	signed, err := Sign(testSecret, "alice", []string{"user", "admin"}, time.Hour)
	assert.NoError(t, err)

	validator := NewValidator(testSecret)
	identity, err := validator.Validate(signed)

	assert.NoError(t, err)
	assert.Equal(t, "alice", identity.Subject)
	assert.Equal(t, []string{"user", "admin"}, identity.Roles)
}

func TestValidate_ExpiredToken(t *testing.T) {
	signed, err := Sign(testSecret, "alice", nil, -time.Minute)
	assert.NoError(t, err)

	_, err = NewValidator(testSecret).Validate(signed)

	assert.ErrorIs(t, err, apperrors.ErrTokenExpired)
}

func TestValidate_WrongSecret(t *testing.T) {
	signed, err := Sign(testSecret, "alice", nil, time.Hour)
	assert.NoError(t, err)

	_, err = NewValidator("other-secret").Validate(signed)

	assert.ErrorIs(t, err, apperrors.ErrTokenInvalid)
}

func TestValidate_Garbage(t *testing.T) {
	_, err := NewValidator(testSecret).Validate("not.a.token")

	assert.ErrorIs(t, err, apperrors.ErrTokenInvalid)
}

func TestValidate_MissingSubject(t *testing.T) {
	signed, err := Sign(testSecret, "", []string{"user"}, time.Hour)
	assert.NoError(t, err)

	_, err = NewValidator(testSecret).Validate(signed)

	assert.ErrorIs(t, err, apperrors.ErrTokenInvalid)
}

func TestIdentity_HasRole(t *testing.T) {
	identity := &Identity{Subject: "alice", Roles: []string{"user", "admin"}}

	assert.True(t, identity.HasRole("admin"))
	assert.False(t, identity.HasRole("service"))
	assert.False(t, (&Identity{Subject: "bob"}).HasRole("user"))
}
