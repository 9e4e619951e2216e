package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateEmail(t *testing.T) {
	for _, email := range []string{"ana@example.com", "A.B+tag@mail.example.co"} {
		assert.True(t, ValidateEmail(email), email)
	}
	for _, email := range []string{"", "ana", "ana@", "ana@example", "ana example@x.com", "@example.com"} {
		assert.False(t, ValidateEmail(email), email)
	}
}

func TestValidatePassword(t *testing.T) {
	assert.True(t, ValidatePassword("Test1234"))
	assert.False(t, ValidatePassword("Te12"), "too short")
	assert.False(t, ValidatePassword("abcdefgh"), "no digits")
	assert.False(t, ValidatePassword("12345678"), "no letters")
}
