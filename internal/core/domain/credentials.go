package domain

// CredentialOrigin records where an API key was resolved from, so display
// surfaces can tell users which setting is actually in effect.
type CredentialOrigin string

const (
	// CredentialFromEnv means the key came from a process environment
	// variable. Environment keys take precedence over the config file.
	CredentialFromEnv CredentialOrigin = "environment"

	// CredentialFromConfig means the key came from the settings file.
	CredentialFromConfig CredentialOrigin = "config"

	// CredentialNone means no key is configured; requests go out
	// unauthenticated and the upstream decides whether to serve them.
	CredentialNone CredentialOrigin = "none"
)

// Credential is a resolved API key for one upstream source.
type Credential struct {
	// Source identifies the upstream the key authenticates against.
	Source SourceID

	// APIKey is the key material, empty when unauthenticated.
	APIKey string

	// Origin records where the key was found.
	Origin CredentialOrigin
}

// IsSet reports whether any key material was resolved.
func (c Credential) IsSet() bool {
	return c.APIKey != ""
}
