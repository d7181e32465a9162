// Package auth turns auth configuration into go-git transport credentials.
package auth

import (
	"github.com/go-git/go-git/v5/plumbing/transport"

	"git.skarv.dev/infra/gitmirror/internal/auth/providers"
	"git.skarv.dev/infra/gitmirror/internal/config"
)

var registry = providers.NewRegistry()

// CreateAuth builds the transport auth method for a clone or push target.
// A nil or empty configuration yields nil, which go-git treats as
// anonymous access.
func CreateAuth(authCfg *config.AuthConfig) (transport.AuthMethod, error) {
	return registry.CreateAuth(authCfg)
}
