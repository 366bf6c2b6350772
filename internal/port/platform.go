package port

import (
	"context"

	"github.com/arturoeanton/milestoner/internal/domain"
)

// Platform abstracts a social network that accepts text posts.
type Platform interface {
	// Name returns the registry key (e.g. "bluesky").
	Name() string

	// CharacterLimit returns the maximum post length in user-perceived characters.
	CharacterLimit() int

	// Post publishes content once. Failures are returned as *PublishError.
	Post(ctx context.Context, content string) (domain.PublishResult, error)
}

// CredentialVerifier is implemented by platforms that can check credentials
// before they are saved.
type CredentialVerifier interface {
	VerifyCredentials(ctx context.Context, credentials map[string]string) error
}

// PlatformRegistry holds Platform implementations keyed by name.
type PlatformRegistry map[string]Platform

// Names returns the registered platform names in no particular order.
func (r PlatformRegistry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	return names
}

// ConfigProvider exposes the user's platform settings.
type ConfigProvider interface {
	// DefaultPlatform returns the configured default, if any.
	DefaultPlatform() (string, bool)

	// Credentials returns the stored credentials for a platform, if any.
	Credentials(platform string) (map[string]string, bool)
}

// ConfigStore is a ConfigProvider that can also persist changes.
type ConfigStore interface {
	ConfigProvider

	// SaveCredentials stores credentials for a platform, optionally making it the default.
	SaveCredentials(platform string, credentials map[string]string, setDefault bool) error

	// ConfiguredPlatforms returns the names with stored credentials, sorted.
	ConfiguredPlatforms() []string
}
