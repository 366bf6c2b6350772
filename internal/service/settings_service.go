package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/arturoeanton/milestoner/internal/port"
)

// Credential keys understood by the platform adapters.
const (
	CredentialHandle      = "handle"
	CredentialAppPassword = "app_password"
)

// ConfigureRequest carries credentials for one platform.
type ConfigureRequest struct {
	Platform    string `json:"platform"`
	Handle      string `json:"handle"`
	AppPassword string `json:"app_password"`
	SetDefault  bool   `json:"set_default"`
}

// PlatformStatus is the secret-free view of one configured platform.
type PlatformStatus struct {
	Name      string `json:"name"`
	Handle    string `json:"handle,omitempty"`
	IsDefault bool   `json:"is_default"`
}

// SettingsStatus reports what is configured without exposing secrets.
type SettingsStatus struct {
	DefaultPlatform string           `json:"default_platform,omitempty"`
	Configured      []PlatformStatus `json:"configured_platforms"`
	Available       []string         `json:"available_platforms"`
}

// SettingsService manages stored platform credentials.
type SettingsService struct {
	store     port.ConfigStore
	platforms port.PlatformRegistry
}

// NewSettingsService creates a new settings service.
func NewSettingsService(store port.ConfigStore, platforms port.PlatformRegistry) *SettingsService {
	return &SettingsService{store: store, platforms: platforms}
}

// Configure verifies and stores credentials for a platform.
func (s *SettingsService) Configure(ctx context.Context, req ConfigureRequest) (*SettingsStatus, error) {
	name := strings.ToLower(strings.TrimSpace(req.Platform))
	platform, ok := s.platforms[name]
	if !ok {
		names := s.platforms.Names()
		sort.Strings(names)
		return nil, &port.ValidationError{
			Message: fmt.Sprintf("unknown platform: %s. Available: %s", name, strings.Join(names, ", ")),
		}
	}
	handle := strings.TrimSpace(req.Handle)
	if handle == "" || req.AppPassword == "" {
		return nil, &port.ValidationError{Message: "handle and app_password are required"}
	}

	creds := map[string]string{
		CredentialHandle:      handle,
		CredentialAppPassword: req.AppPassword,
	}
	if v, ok := platform.(port.CredentialVerifier); ok {
		if err := v.VerifyCredentials(ctx, creds); err != nil {
			return nil, err
		}
	}

	if err := s.store.SaveCredentials(name, creds, req.SetDefault); err != nil {
		return nil, fmt.Errorf("save credentials: %w", err)
	}
	slog.Info("platform configured", "platform", name, "handle", handle, "default", req.SetDefault)

	st := s.Status()
	return &st, nil
}

// Status lists configured and available platforms.
func (s *SettingsService) Status() SettingsStatus {
	def, _ := s.store.DefaultPlatform()
	st := SettingsStatus{
		DefaultPlatform: def,
		Configured:      []PlatformStatus{},
		Available:       s.platforms.Names(),
	}
	sort.Strings(st.Available)
	for _, name := range s.store.ConfiguredPlatforms() {
		ps := PlatformStatus{Name: name, IsDefault: name == def}
		if creds, ok := s.store.Credentials(name); ok {
			ps.Handle = creds[CredentialHandle]
		}
		st.Configured = append(st.Configured, ps)
	}
	return st
}
