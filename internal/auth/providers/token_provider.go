package providers

import (
	"fmt"

	"git.skarv.dev/infra/gitmirror/internal/config"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
)

// TokenProvider handles token-based authentication.
type TokenProvider struct{}

// NewTokenProvider creates a new token authentication provider.
func NewTokenProvider() *TokenProvider {
	return &TokenProvider{}
}

// Type returns the authentication type this provider handles.
func (p *TokenProvider) Type() config.AuthType {
	return config.AuthTypeToken
}

// CreateAuth creates token authentication from the configuration.
func (p *TokenProvider) CreateAuth(authCfg *config.AuthConfig) (transport.AuthMethod, error) {
	if authCfg.Token == "" {
		return nil, fmt.Errorf("token authentication requires a token")
	}

	// Most Git hosting services use "token" as the username for token auth.
	return &http.BasicAuth{
		Username: "token",
		Password: authCfg.Token,
	}, nil
}

// ValidateConfig validates the token authentication configuration.
func (p *TokenProvider) ValidateConfig(authCfg *config.AuthConfig) error {
	if authCfg.Token == "" {
		return fmt.Errorf("token authentication requires a token")
	}
	return nil
}
