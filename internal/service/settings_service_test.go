package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arturoeanton/milestoner/internal/port"
)

func TestConfigureStoresCredentials(t *testing.T) {
	cfg := newMemoryConfig("")
	svc := NewSettingsService(cfg, port.PlatformRegistry{"bluesky": &fakePlatform{name: "bluesky", limit: 300}})

	st, err := svc.Configure(context.Background(), ConfigureRequest{
		Platform: "Bluesky", Handle: "me.bsky.social", AppPassword: "pw", SetDefault: true,
	})
	require.NoError(t, err)
	require.Equal(t, "bluesky", st.DefaultPlatform)
	require.Equal(t, []PlatformStatus{{Name: "bluesky", Handle: "me.bsky.social", IsDefault: true}}, st.Configured)
	require.Equal(t, []string{"bluesky"}, st.Available)

	creds, ok := cfg.Credentials("bluesky")
	require.True(t, ok)
	require.Equal(t, "pw", creds[CredentialAppPassword])
}

func TestConfigureRejectsBadInput(t *testing.T) {
	cfg := newMemoryConfig("")
	svc := NewSettingsService(cfg, port.PlatformRegistry{"bluesky": &fakePlatform{name: "bluesky", limit: 300}})
	ctx := context.Background()

	_, err := svc.Configure(ctx, ConfigureRequest{Platform: "myspace", Handle: "a", AppPassword: "b"})
	var verr *port.ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = svc.Configure(ctx, ConfigureRequest{Platform: "bluesky", Handle: "a"})
	require.ErrorAs(t, err, &verr)

	_, err = svc.Configure(ctx, ConfigureRequest{Platform: "bluesky", Handle: "a", AppPassword: "wrong"})
	var perr *port.PublishError
	require.ErrorAs(t, err, &perr)
	require.Empty(t, cfg.ConfiguredPlatforms(), "failed verification must not save")
}
