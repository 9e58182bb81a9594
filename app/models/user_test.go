package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAPIKey(t *testing.T) {
	u := &User{}

	rawKey, err := u.IssueAPIKey()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(rawKey, "lsp_"))
	assert.Equal(t, rawKey[:16], u.APIKeyPrefix)
	assert.Equal(t, HashAPIKey(rawKey), u.APIKeyHash)
	assert.NotNil(t, u.APIKeyCreatedAt)
	assert.Nil(t, u.APIKeyRevokedAt)
	assert.Nil(t, u.APIKeyLastUsedAt)
	assert.True(t, u.HasActiveAPIKey())
}

func TestIssueAPIKeyRotatesHash(t *testing.T) {
	u := &User{}

	first, err := u.IssueAPIKey()
	require.NoError(t, err)
	firstHash := u.APIKeyHash

	second, err := u.IssueAPIKey()
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.NotEqual(t, firstHash, u.APIKeyHash)
}

func TestRevokeAPIKey(t *testing.T) {
	u := &User{}
	_, err := u.IssueAPIKey()
	require.NoError(t, err)

	u.RevokeAPIKey()

	assert.Empty(t, u.APIKeyHash)
	assert.Empty(t, u.APIKeyPrefix)
	assert.NotNil(t, u.APIKeyRevokedAt)
	assert.False(t, u.HasActiveAPIKey())
}

func TestHashAPIKeyTrimsWhitespace(t *testing.T) {
	assert.Equal(t, HashAPIKey("lsp_abc"), HashAPIKey("  lsp_abc \n"))
	assert.NotEqual(t, HashAPIKey("lsp_abc"), HashAPIKey("lsp_abd"))
}

func TestCreateUserValidation(t *testing.T) {
	u, err := CreateUser("dana", "dana@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, ROLE_USER, u.Role)
	assert.Equal(t, STATUS_ACTIVE, u.Status)
	assert.True(t, u.CheckPassword("secret123"))
	assert.False(t, u.CheckPassword("wrong"))

	_, err = CreateUser("d", "not-an-email", "x")
	assert.Error(t, err)
}
