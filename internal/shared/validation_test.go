package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidPassword(t *testing.T) {
	assert.True(t, ValidPassword("abcd1234"))
	assert.True(t, ValidPassword("Passw0rdLonger"))
	assert.False(t, ValidPassword("abc123"))
	assert.False(t, ValidPassword("abcdefgh"))
	assert.False(t, ValidPassword("12345678"))
	assert.False(t, ValidPassword("abcd 1234"))
	assert.False(t, ValidPassword("pässw0rd"))
}

func TestValidatorUsesJSONNames(t *testing.T) {
	type payload struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,password"`
	}
	err := NewValidator().Struct(payload{Email: "nope", Password: "short"})
	require.Error(t, err)

	fields := FieldErrors(err)
	assert.Equal(t, "must be a valid email", fields["email"])
	assert.Contains(t, fields["password"], "letters and digits")
	assert.Equal(t, "email: must be a valid email; password: must be at least 8 letters and digits with at least one of each", ValidationSummary(err))
}
