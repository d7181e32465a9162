package providers

import (
	"fmt"

	"git.skarv.dev/infra/gitmirror/internal/config"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
)

// BasicProvider handles basic username/password authentication.
type BasicProvider struct{}

// NewBasicProvider creates a new basic authentication provider.
func NewBasicProvider() *BasicProvider {
	return &BasicProvider{}
}

// Type returns the authentication type this provider handles.
func (p *BasicProvider) Type() config.AuthType {
	return config.AuthTypeBasic
}

// CreateAuth creates basic authentication from the configuration.
func (p *BasicProvider) CreateAuth(authCfg *config.AuthConfig) (transport.AuthMethod, error) {
	if authCfg.Username == "" || authCfg.Password == "" {
		return nil, fmt.Errorf("basic authentication requires username and password")
	}

	return &http.BasicAuth{
		Username: authCfg.Username,
		Password: authCfg.Password,
	}, nil
}

// ValidateConfig validates the basic authentication configuration.
func (p *BasicProvider) ValidateConfig(authCfg *config.AuthConfig) error {
	if authCfg.Username == "" {
		return fmt.Errorf("basic authentication requires a username")
	}
	if authCfg.Password == "" {
		return fmt.Errorf("basic authentication requires a password")
	}
	return nil
}
