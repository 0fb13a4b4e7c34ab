// Package auth resolves API credentials for upstream sources.
//
// Both upstreams authenticate with static API keys rather than interactive
// flows, so resolution is a precedence chain: a process environment variable
// wins over the settings file, and an empty result means requests go out
// unauthenticated.
package auth

import (
	"fmt"
	"os"

	"github.com/civica-labs/legisync-cli/internal/core/domain"
	"github.com/civica-labs/legisync-cli/internal/core/ports/driven"
)

// Environment variables that carry API keys. They take precedence over the
// settings file so keys can stay out of files on shared machines and in CI.
const (
	EnvCongressAPIKey = "LEGISYNC_CONGRESS_API_KEY"
	EnvLDAAPIKey      = "LEGISYNC_LDA_API_KEY"
)

// Ensure Resolver implements the CredentialsProvider interface.
var _ driven.CredentialsProvider = (*Resolver)(nil)

// Resolver resolves API keys with environment-over-config precedence.
// A source with no key anywhere resolves to an unauthenticated credential;
// whether that is workable is the connector's call.
type Resolver struct {
	settings domain.Settings
}

// NewResolver creates a resolver over loaded settings. The environment is
// read at resolution time, not construction time.
func NewResolver(settings domain.Settings) *Resolver {
	return &Resolver{settings: settings}
}

// Credential resolves the API key for a source.
func (r *Resolver) Credential(source domain.SourceID) (domain.Credential, error) {
	fileKey, err := r.fileKey(source)
	if err != nil {
		return domain.Credential{}, err
	}

	if key := os.Getenv(EnvVar(source)); key != "" {
		return domain.Credential{Source: source, APIKey: key, Origin: domain.CredentialFromEnv}, nil
	}
	if fileKey != "" {
		return domain.Credential{Source: source, APIKey: fileKey, Origin: domain.CredentialFromConfig}, nil
	}
	return domain.Credential{Source: source, Origin: domain.CredentialNone}, nil
}

// EnvVar returns the environment variable consulted for a source, for help
// text and status output. Unknown sources return an empty string.
func EnvVar(source domain.SourceID) string {
	switch source {
	case domain.SourceCongress:
		return EnvCongressAPIKey
	case domain.SourceLDA:
		return EnvLDAAPIKey
	default:
		return ""
	}
}

func (r *Resolver) fileKey(source domain.SourceID) (string, error) {
	switch source {
	case domain.SourceCongress:
		return r.settings.Congress.APIKey, nil
	case domain.SourceLDA:
		return r.settings.LDA.APIKey, nil
	default:
		return "", fmt.Errorf("%w: %s", domain.ErrSourceUnknown, source)
	}
}
