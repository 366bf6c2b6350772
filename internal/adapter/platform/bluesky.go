// Package platform holds the social network clients used to publish posts.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/arturoeanton/milestoner/internal/domain"
	"github.com/arturoeanton/milestoner/internal/port"
)

// BlueskyName is the registry key of the Bluesky platform.
const BlueskyName = "bluesky"

// BlueskyCharacterLimit is the post limit in graphemes.
const BlueskyCharacterLimit = 300

// BlueskyConfig holds the endpoints of an AT Protocol server.
type BlueskyConfig struct {
	PDSURL string // e.g. https://bsky.social
	WebURL string // e.g. https://bsky.app, used to build post links
}

// BlueskyClient implements port.Platform over the XRPC HTTP API.
// Credentials are read from the ConfigProvider on every publish so that
// a reconfigure takes effect without a restart.
type BlueskyClient struct {
	cfg        BlueskyConfig
	creds      port.ConfigProvider
	httpClient *http.Client
	clock      func() time.Time
}

// NewBlueskyClient creates a new Bluesky platform client.
func NewBlueskyClient(cfg BlueskyConfig, creds port.ConfigProvider) *BlueskyClient {
	if cfg.PDSURL == "" {
		cfg.PDSURL = "https://bsky.social"
	}
	if cfg.WebURL == "" {
		cfg.WebURL = "https://bsky.app"
	}
	cfg.PDSURL = strings.TrimRight(cfg.PDSURL, "/")
	cfg.WebURL = strings.TrimRight(cfg.WebURL, "/")
	return &BlueskyClient{
		cfg:        cfg,
		creds:      creds,
		httpClient: &http.Client{},
		clock:      time.Now,
	}
}

var (
	_ port.Platform           = (*BlueskyClient)(nil)
	_ port.CredentialVerifier = (*BlueskyClient)(nil)
)

func (b *BlueskyClient) Name() string        { return BlueskyName }
func (b *BlueskyClient) CharacterLimit() int { return BlueskyCharacterLimit }

type blueskySession struct {
	AccessJwt string `json:"accessJwt"`
	DID       string `json:"did"`
	Handle    string `json:"handle"`
}

// Post opens a session and creates a feed post record.
func (b *BlueskyClient) Post(ctx context.Context, content string) (domain.PublishResult, error) {
	creds, ok := b.creds.Credentials(BlueskyName)
	if !ok {
		return domain.PublishResult{}, &port.PublishError{Platform: BlueskyName, Message: "not configured"}
	}

	sess, err := b.createSession(ctx, creds["handle"], creds["app_password"])
	if err != nil {
		return domain.PublishResult{}, err
	}

	payload := map[string]interface{}{
		"repo":       sess.DID,
		"collection": "app.bsky.feed.post",
		"record": map[string]interface{}{
			"$type":     "app.bsky.feed.post",
			"text":      content,
			"createdAt": b.clock().UTC().Format(time.RFC3339Nano),
		},
	}
	body, err := b.post(ctx, "com.atproto.repo.createRecord", sess.AccessJwt, payload)
	if err != nil {
		return domain.PublishResult{}, b.publishError("create record", err)
	}

	var resp struct {
		URI string `json:"uri"`
		CID string `json:"cid"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.PublishResult{}, b.publishError("decode record", err)
	}

	rkey := resp.URI[strings.LastIndex(resp.URI, "/")+1:]
	if rkey == "" {
		return domain.PublishResult{}, &port.PublishError{
			Platform: BlueskyName,
			Message:  fmt.Sprintf("create record: response has no record uri (got %q)", resp.URI),
		}
	}
	handle := sess.Handle
	if handle == "" {
		handle = creds["handle"]
	}
	return domain.PublishResult{
		URL: fmt.Sprintf("%s/profile/%s/post/%s", b.cfg.WebURL, handle, rkey),
		ID:  rkey,
	}, nil
}

// VerifyCredentials opens a session to prove the credentials work.
func (b *BlueskyClient) VerifyCredentials(ctx context.Context, credentials map[string]string) error {
	_, err := b.createSession(ctx, credentials["handle"], credentials["app_password"])
	return err
}

func (b *BlueskyClient) createSession(ctx context.Context, identifier, password string) (*blueskySession, error) {
	if identifier == "" || password == "" {
		return nil, &port.PublishError{Platform: BlueskyName, Message: "handle and app password are required"}
	}
	body, err := b.post(ctx, "com.atproto.server.createSession", "", map[string]string{
		"identifier": identifier,
		"password":   password,
	})
	if err != nil {
		return nil, b.publishError("create session", err)
	}

	var sess blueskySession
	if err := json.Unmarshal(body, &sess); err != nil {
		return nil, b.publishError("decode session", err)
	}
	if sess.AccessJwt == "" || sess.DID == "" {
		return nil, &port.PublishError{Platform: BlueskyName, Message: "create session: empty session"}
	}
	return &sess, nil
}

// xrpcError is the error body returned by XRPC endpoints.
type xrpcError struct {
	Status  int    `json:"-"`
	Name    string `json:"error"`
	Message string `json:"message"`
}

func (e *xrpcError) Error() string {
	if e.Name == "" && e.Message == "" {
		return fmt.Sprintf("xrpc status %d", e.Status)
	}
	return fmt.Sprintf("xrpc status %d: %s: %s", e.Status, e.Name, e.Message)
}

func (b *BlueskyClient) publishError(step string, err error) error {
	return &port.PublishError{Platform: BlueskyName, Message: step, Err: err}
}

// post is a helper for XRPC procedure calls (with optional bearer token).
func (b *BlueskyClient) post(ctx context.Context, method, token string, payload interface{}) ([]byte, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.PDSURL+"/xrpc/"+method, bytes.NewReader(payloadBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		xerr := &xrpcError{Status: resp.StatusCode}
		_ = json.Unmarshal(body, xerr)
		return nil, xerr
	}
	return body, nil
}
