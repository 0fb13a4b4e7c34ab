package cli

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civica-labs/legisync-cli/internal/adapters/driven/config/file"
	"github.com/civica-labs/legisync-cli/internal/core/domain"
)

// mockCredentials implements driven.CredentialsProvider for testing.
type mockCredentials struct {
	creds map[domain.SourceID]domain.Credential
}

func (m *mockCredentials) Credential(source domain.SourceID) (domain.Credential, error) {
	if !source.IsValid() {
		return domain.Credential{}, domain.ErrSourceUnknown
	}
	if cred, ok := m.creds[source]; ok {
		return cred, nil
	}
	return domain.Credential{Source: source, Origin: domain.CredentialNone}, nil
}

func setupSourcesTest(mock *mockCredentials) func() {
	oldCredentials := credentials
	oldSettings := settings
	credentials = mock
	settings = domain.DefaultSettings("")
	return func() {
		credentials = oldCredentials
		settings = oldSettings
	}
}

func TestSourcesListCmd_ShowsCredentialOrigins(t *testing.T) {
	mock := &mockCredentials{creds: map[domain.SourceID]domain.Credential{
		domain.SourceCongress: {
			Source: domain.SourceCongress,
			APIKey: "abcd1234efgh5678",
			Origin: domain.CredentialFromEnv,
		},
	}}
	cleanup := setupSourcesTest(mock)
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"sources", "list"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "congress")
	assert.Contains(t, out, "abcd...5678 (environment, LEGISYNC_CONGRESS_API_KEY)")
	assert.Contains(t, out, "lda")
	assert.Contains(t, out, "(not set)")
	assert.Contains(t, out, "https://api.congress.gov/v3")
}

func TestSourcesCmd_DefaultsToList(t *testing.T) {
	mock := &mockCredentials{}
	cleanup := setupSourcesTest(mock)
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"sources"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "API key:")
}

func TestSourcesValidateCmd_AllHealthy(t *testing.T) {
	fetchMock := &mockFetchService{}
	cleanupFetch := setupFetchTest(fetchMock)
	defer cleanupFetch()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"sources", "validate"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "congress")
	assert.Contains(t, out, "OK")
	assert.NotContains(t, out, "FAILED")
}

func TestSourcesValidateCmd_ReportsFailure(t *testing.T) {
	fetchMock := &mockFetchService{validate: map[domain.SourceID]error{
		domain.SourceCongress: nil,
		domain.SourceLDA:      errors.New("upstream API error 401"),
	}}
	cleanupFetch := setupFetchTest(fetchMock)
	defer cleanupFetch()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"sources", "validate"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 source(s) failed validation")
	out := buf.String()
	assert.Contains(t, out, "OK")
	assert.Contains(t, out, "FAILED: upstream API error 401")
}

func TestSourcesValidateCmd_RejectsUnknownSource(t *testing.T) {
	fetchMock := &mockFetchService{}
	cleanupFetch := setupFetchTest(fetchMock)
	defer cleanupFetch()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"sources", "validate", "parliament"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSourceUnknown)
}

func TestSourcesSetKeyCmd_RejectsUnknownSource(t *testing.T) {
	store, err := file.NewSettingsStore(t.TempDir())
	require.NoError(t, err)
	oldStore := settingsStore
	settingsStore = store
	defer func() {
		settingsStore = oldStore
	}()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"sources", "set-key", "parliament"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err = rootCmd.Execute()

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSourceUnknown)
}

func TestSourcesSetKeyCmd_StoreNotConfigured(t *testing.T) {
	oldStore := settingsStore
	settingsStore = nil
	defer func() {
		settingsStore = oldStore
	}()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"sources", "set-key", "congress"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration not available")
}

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want string
	}{
		{"long key", "abcd1234efgh5678", "abcd...5678"},
		{"short key", "abc123", "****"},
		{"boundary eight chars", "12345678", "****"},
		{"nine chars", "123456789", "1234...6789"},
		{"empty", "", "****"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, maskAPIKey(tt.key))
		})
	}
}

func TestDescribeCredential_NotSet(t *testing.T) {
	got := describeCredential(domain.Credential{Source: domain.SourceLDA, Origin: domain.CredentialNone})
	assert.Equal(t, "(not set)", got)
}

func TestDescribeCredential_ConfigOrigin(t *testing.T) {
	got := describeCredential(domain.Credential{
		Source: domain.SourceLDA,
		APIKey: "abcd1234efgh5678",
		Origin: domain.CredentialFromConfig,
	})
	assert.Equal(t, "abcd...5678 (config file)", got)
}
