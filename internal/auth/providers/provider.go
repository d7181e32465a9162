package providers

import (
	"fmt"

	"git.skarv.dev/infra/gitmirror/internal/config"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

// AuthProvider builds go-git credentials for one authentication method.
type AuthProvider interface {
	// Type returns the authentication type this provider handles.
	Type() config.AuthType

	// CreateAuth creates a transport.AuthMethod from the given configuration.
	// Returns nil, nil for no authentication (AuthTypeNone).
	CreateAuth(authCfg *config.AuthConfig) (transport.AuthMethod, error)

	// ValidateConfig validates the authentication configuration for this provider.
	ValidateConfig(authCfg *config.AuthConfig) error
}

// Registry manages the collection of available auth providers.
type Registry struct {
	providers map[config.AuthType]AuthProvider
}

// NewRegistry creates a new registry with the standard providers.
func NewRegistry() *Registry {
	registry := &Registry{
		providers: make(map[config.AuthType]AuthProvider),
	}

	registry.Register(NewNoneProvider())
	registry.Register(NewSSHProvider())
	registry.Register(NewTokenProvider())
	registry.Register(NewBasicProvider())

	return registry
}

// Register adds a provider to the registry.
func (r *Registry) Register(provider AuthProvider) {
	r.providers[provider.Type()] = provider
}

// CreateAuth creates authentication using the appropriate provider.
func (r *Registry) CreateAuth(authCfg *config.AuthConfig) (transport.AuthMethod, error) {
	if authCfg == nil {
		authCfg = &config.AuthConfig{Type: config.AuthTypeNone}
	}

	// Infer the type when omitted so a bare token or key path still works.
	if authCfg.Type == "" {
		inferred := *authCfg
		switch {
		case authCfg.Token != "":
			inferred.Type = config.AuthTypeToken
		case authCfg.Username != "":
			inferred.Type = config.AuthTypeBasic
		case authCfg.KeyPath != "":
			inferred.Type = config.AuthTypeSSH
		default:
			inferred.Type = config.AuthTypeNone
		}
		authCfg = &inferred
	}

	provider, exists := r.providers[authCfg.Type]
	if !exists {
		return nil, &AuthError{
			Type:    authCfg.Type,
			Message: "unsupported authentication type",
		}
	}

	if err := provider.ValidateConfig(authCfg); err != nil {
		return nil, &AuthError{
			Type:    authCfg.Type,
			Message: "configuration validation failed",
			Cause:   err,
		}
	}

	auth, err := provider.CreateAuth(authCfg)
	if err != nil {
		return nil, &AuthError{
			Type:    authCfg.Type,
			Message: "failed to create authentication",
			Cause:   err,
		}
	}

	return auth, nil
}

// AuthError represents an authentication-related error.
type AuthError struct {
	Type    config.AuthType
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("auth error (%s): %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("auth error (%s): %s", e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e *AuthError) Unwrap() error {
	return e.Cause
}
