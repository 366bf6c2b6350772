package platform

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arturoeanton/milestoner/internal/port"
)

type staticCreds map[string]map[string]string

func (s staticCreds) DefaultPlatform() (string, bool) { return BlueskyName, true }

func (s staticCreds) Credentials(platform string) (map[string]string, bool) {
	c, ok := s[platform]
	return c, ok
}

func newFakePDS(t *testing.T, records *[]map[string]interface{}) *httptest.Server {
	t.Helper()
	return newFakePDSReturning(t, records, "at://did:plc:abc123/app.bsky.feed.post/3kxyz")
}

// newFakePDSReturning answers createRecord with uri.
func newFakePDSReturning(t *testing.T, records *[]map[string]interface{}, uri string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/xrpc/com.atproto.server.createSession", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["password"] != "app-pw" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"AuthenticationRequired","message":"Invalid identifier or password"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"accessJwt": "jwt-token",
			"did":       "did:plc:abc123",
			"handle":    body["identifier"],
		})
	})
	mux.HandleFunc("/xrpc/com.atproto.repo.createRecord", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer jwt-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		*records = append(*records, body)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"uri": uri,
			"cid": "bafy",
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestBlueskyPost(t *testing.T) {
	var records []map[string]interface{}
	srv := newFakePDS(t, &records)
	creds := staticCreds{BlueskyName: {"handle": "dev.bsky.social", "app_password": "app-pw"}}
	c := NewBlueskyClient(BlueskyConfig{PDSURL: srv.URL, WebURL: "https://bsky.app/"}, creds)
	c.clock = func() time.Time { return time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC) }

	res, err := c.Post(context.Background(), "v1.0 shipped!")
	require.NoError(t, err)
	require.Equal(t, "https://bsky.app/profile/dev.bsky.social/post/3kxyz", res.URL)
	require.Equal(t, "3kxyz", res.ID)

	require.Len(t, records, 1)
	require.Equal(t, "did:plc:abc123", records[0]["repo"])
	require.Equal(t, "app.bsky.feed.post", records[0]["collection"])
	record := records[0]["record"].(map[string]interface{})
	require.Equal(t, "v1.0 shipped!", record["text"])
	require.Equal(t, "2025-01-15T10:00:00Z", record["createdAt"])
}

func TestBlueskyPostRejectedCredentials(t *testing.T) {
	var records []map[string]interface{}
	srv := newFakePDS(t, &records)
	creds := staticCreds{BlueskyName: {"handle": "dev.bsky.social", "app_password": "nope"}}
	c := NewBlueskyClient(BlueskyConfig{PDSURL: srv.URL}, creds)

	_, err := c.Post(context.Background(), "hi")
	var perr *port.PublishError
	require.ErrorAs(t, err, &perr)
	var xerr *xrpcError
	require.True(t, errors.As(err, &xerr))
	require.Equal(t, http.StatusUnauthorized, xerr.Status)
	require.Equal(t, "AuthenticationRequired", xerr.Name)
	require.Empty(t, records)
}

func TestBlueskyPostRequiresRecordURI(t *testing.T) {
	creds := staticCreds{BlueskyName: {"handle": "dev.bsky.social", "app_password": "app-pw"}}
	for _, uri := range []string{"", "at://did:plc:abc123/app.bsky.feed.post/"} {
		var records []map[string]interface{}
		srv := newFakePDSReturning(t, &records, uri)
		c := NewBlueskyClient(BlueskyConfig{PDSURL: srv.URL, WebURL: "https://bsky.app"}, creds)

		res, err := c.Post(context.Background(), "hi")
		var perr *port.PublishError
		require.ErrorAs(t, err, &perr, "uri %q", uri)
		require.Equal(t, BlueskyName, perr.Platform)
		require.Contains(t, perr.Message, "no record uri")
		require.Empty(t, res.URL)
		require.Len(t, records, 1)
	}
}

func TestBlueskyPostNotConfigured(t *testing.T) {
	c := NewBlueskyClient(BlueskyConfig{}, staticCreds{})

	_, err := c.Post(context.Background(), "hi")
	var perr *port.PublishError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, "not configured", perr.Message)
}

func TestBlueskyVerifyCredentials(t *testing.T) {
	var records []map[string]interface{}
	srv := newFakePDS(t, &records)
	c := NewBlueskyClient(BlueskyConfig{PDSURL: srv.URL}, staticCreds{})
	ctx := context.Background()

	require.NoError(t, c.VerifyCredentials(ctx, map[string]string{"handle": "dev.bsky.social", "app_password": "app-pw"}))
	require.Error(t, c.VerifyCredentials(ctx, map[string]string{"handle": "dev.bsky.social", "app_password": "bad"}))
	require.Error(t, c.VerifyCredentials(ctx, map[string]string{}))
}

func TestBlueskyLimits(t *testing.T) {
	c := NewBlueskyClient(BlueskyConfig{}, staticCreds{})
	require.Equal(t, "bluesky", c.Name())
	require.Equal(t, 300, c.CharacterLimit())
}
