package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenGenerator_RoundTrip(t *testing.T) {
	tg := NewTokenGenerator("test-secret")

	token, err := tg.GenerateAccessToken("user-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := tg.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "pagesight", claims.Issuer)
}

func TestTokenGenerator_RejectsWrongSecret(t *testing.T) {
	token, err := NewTokenGenerator("secret-a").GenerateAccessToken("user-1")
	require.NoError(t, err)

	_, err = NewTokenGenerator("secret-b").ValidateAccessToken(token)
	assert.Error(t, err)
}

func TestTokenGenerator_RejectsGarbage(t *testing.T) {
	_, err := NewTokenGenerator("secret").ValidateAccessToken("not-a-token")
	assert.Error(t, err)
}
