package auth

import (
	"os"
	"path/filepath"
	"testing"

	"git.skarv.dev/infra/gitmirror/internal/auth/providers"
	"git.skarv.dev/infra/gitmirror/internal/config"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAuthNil(t *testing.T) {
	auth, err := CreateAuth(nil)
	require.NoError(t, err)
	assert.Nil(t, auth)
}

func TestCreateAuthNone(t *testing.T) {
	auth, err := CreateAuth(&config.AuthConfig{Type: config.AuthTypeNone})
	require.NoError(t, err)
	assert.Nil(t, auth)
}

func TestCreateAuthToken(t *testing.T) {
	auth, err := CreateAuth(&config.AuthConfig{Type: config.AuthTypeToken, Token: "tok"})
	require.NoError(t, err)

	basic, ok := auth.(*http.BasicAuth)
	require.True(t, ok)
	assert.Equal(t, "token", basic.Username)
	assert.Equal(t, "tok", basic.Password)
}

func TestCreateAuthTokenMissing(t *testing.T) {
	_, err := CreateAuth(&config.AuthConfig{Type: config.AuthTypeToken})
	require.Error(t, err)

	var authErr *providers.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, config.AuthTypeToken, authErr.Type)
}

func TestCreateAuthBasic(t *testing.T) {
	auth, err := CreateAuth(&config.AuthConfig{Type: config.AuthTypeBasic, Username: "u", Password: "p"})
	require.NoError(t, err)

	basic, ok := auth.(*http.BasicAuth)
	require.True(t, ok)
	assert.Equal(t, "u", basic.Username)
}

func TestCreateAuthBasicMissingPassword(t *testing.T) {
	_, err := CreateAuth(&config.AuthConfig{Type: config.AuthTypeBasic, Username: "u"})
	assert.Error(t, err)
}

func TestCreateAuthInfersTypeFromToken(t *testing.T) {
	auth, err := CreateAuth(&config.AuthConfig{Token: "tok"})
	require.NoError(t, err)

	basic, ok := auth.(*http.BasicAuth)
	require.True(t, ok)
	assert.Equal(t, "tok", basic.Password)
}

func TestCreateAuthUnsupported(t *testing.T) {
	_, err := CreateAuth(&config.AuthConfig{Type: "kerberos"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported")
}

func TestCreateAuthSSHMissingKey(t *testing.T) {
	_, err := CreateAuth(&config.AuthConfig{
		Type:    config.AuthTypeSSH,
		KeyPath: filepath.Join(t.TempDir(), "missing_key"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestCreateAuthSSHInvalidKey(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "id_rsa")
	require.NoError(t, os.WriteFile(keyPath, []byte("not a key"), 0o600))

	_, err := CreateAuth(&config.AuthConfig{Type: config.AuthTypeSSH, KeyPath: keyPath})
	assert.Error(t, err)
}
