package driven

import "github.com/civica-labs/legisync-cli/internal/core/domain"

// CredentialsProvider resolves API keys for upstream sources. Implementations
// decide the precedence between environment variables, the settings file, and
// running unauthenticated.
type CredentialsProvider interface {
	// Credential returns the key to use for a source along with where it
	// was found. A source with no configured key yields a credential with
	// origin CredentialNone rather than an error; unknown sources fail
	// with domain.ErrSourceUnknown.
	Credential(source domain.SourceID) (domain.Credential, error)
}
