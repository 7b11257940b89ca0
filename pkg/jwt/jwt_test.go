package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManager_RequiresSecret(t *testing.T) {
	_, err := NewManager("", "pawfect", time.Hour)
	assert.ErrorIs(t, err, ErrNoSecret)
}

func TestGenerateAndValidate(t *testing.T) {
	m, err := NewManager("s3cret", "pawfect", time.Hour)
	require.NoError(t, err)

	token, err := m.GenerateToken("u-1", "Ada", "https://cdn/ada.png", true)
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "Ada", claims.DisplayName)
	assert.Equal(t, "https://cdn/ada.png", claims.AvatarURL)
	assert.True(t, claims.IsAdmin)
}

func TestValidate_WrongSecret(t *testing.T) {
	a, _ := NewManager("one", "pawfect", time.Hour)
	b, _ := NewManager("two", "pawfect", time.Hour)

	token, err := a.GenerateToken("u-1", "Ada", "", false)
	require.NoError(t, err)

	_, err = b.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidate_Expired(t *testing.T) {
	m, _ := NewManager("s3cret", "pawfect", -time.Minute)

	token, err := m.GenerateToken("u-1", "Ada", "", false)
	require.NoError(t, err)

	_, err = m.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidate_WrongIssuer(t *testing.T) {
	a, _ := NewManager("s3cret", "other", time.Hour)
	b, _ := NewManager("s3cret", "pawfect", time.Hour)

	token, err := a.GenerateToken("u-1", "Ada", "", false)
	require.NoError(t, err)

	_, err = b.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
