// Session credential records and lazy token refresh.
package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/desertthunder/crossfade/internal/shared"
)

const (
	// refreshLookahead is how far before expiry a token is treated as stale.
	refreshLookahead = 5 * time.Minute

	// defaultTokenLifetime applies when the token endpoint omits expires_in.
	defaultTokenLifetime = 3600 * time.Second
)

// Credentials is the per-provider, per-session credential record: access
// token, optional refresh token, absolute expiry, and an optional
// provider-specific owner identifier.
//
// A record with a token but a zero ExpiresAt is perpetually valid; some
// providers issue non-expiring tokens.
type Credentials struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitzero"`
	OwnerID      string    `json:"owner_id,omitempty"`
}

// tokenResponse is the OAuth token endpoint response shape shared by the
// providers that support refresh.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// TokenManager owns one Credentials record and performs lazy,
// request-triggered refresh against the provider token endpoint.
//
// Refresh is synchronous and blocking from the caller's perspective; there is
// no background timer and no retry loop. A failed refresh leaves the stored
// (stale) record unchanged so the caller can surface re-authentication.
type TokenManager struct {
	creds        Credentials
	clientID     string
	clientSecret string
	tokenURL     string
	refreshForm  func(refreshToken string) url.Values
	httpClient   *http.Client
	now          func() time.Time
}

// NewTokenManager creates a TokenManager for a provider token endpoint.
// refreshForm builds the provider-specific refresh grant body.
func NewTokenManager(clientID, clientSecret, tokenURL string, refreshForm func(string) url.Values) *TokenManager {
	return &TokenManager{
		clientID:     clientID,
		clientSecret: clientSecret,
		tokenURL:     tokenURL,
		refreshForm:  refreshForm,
		httpClient:   http.DefaultClient,
		now:          time.Now,
	}
}

// SetCredentials replaces the session credential record, e.g. after an
// authorization-code exchange or when restoring a persisted session.
func (m *TokenManager) SetCredentials(c Credentials) {
	m.creds = c
}

// Credentials returns a copy of the current credential record.
func (m *TokenManager) Credentials() Credentials {
	return m.creds
}

// SaveTokens overwrites the access token and expiry. The refresh token is
// replaced only when the provider supplied a new one; providers are not
// required to rotate refresh tokens.
func (m *TokenManager) SaveTokens(accessToken, refreshToken string, expiresIn time.Duration) {
	m.creds.AccessToken = accessToken
	if refreshToken != "" {
		m.creds.RefreshToken = refreshToken
	}
	if expiresIn <= 0 {
		expiresIn = defaultTokenLifetime
	}
	m.creds.ExpiresAt = m.now().Add(expiresIn)
}

// Clear destroys the credential record (explicit disconnect).
func (m *TokenManager) Clear() {
	m.creds = Credentials{}
}

// ValidToken returns a currently valid access token, refreshing when the
// stored expiry falls within the five-minute look-ahead window. A record
// without an expiry timestamp is returned as-is, indefinitely.
func (m *TokenManager) ValidToken(ctx context.Context) (string, error) {
	if m.creds.AccessToken == "" {
		return "", shared.ErrNotAuthenticated
	}

	if m.creds.ExpiresAt.IsZero() {
		return m.creds.AccessToken, nil
	}

	if m.now().Add(refreshLookahead).Before(m.creds.ExpiresAt) {
		return m.creds.AccessToken, nil
	}

	if err := m.refresh(ctx); err != nil {
		return "", err
	}

	return m.creds.AccessToken, nil
}

// refresh exchanges the stored refresh token at the provider token endpoint
// using Basic authorization built from the client id/secret. The credential
// record mutates only on success.
func (m *TokenManager) refresh(ctx context.Context) error {
	if m.creds.RefreshToken == "" {
		return fmt.Errorf("%w: %v", shared.ErrRefreshFailed, shared.ErrNoRefreshToken)
	}

	form := m.refreshForm(m.creds.RefreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: failed to create request: %v", shared.ErrRefreshFailed, err)
	}

	req.Header.Set("Authorization", m.BasicAuthHeader())
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: token endpoint returned status %d", shared.ErrRefreshFailed, resp.StatusCode)
	}

	var tokens tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return fmt.Errorf("%w: failed to decode token response: %v", shared.ErrRefreshFailed, err)
	}

	if tokens.AccessToken == "" {
		return fmt.Errorf("%w: token endpoint returned no access token", shared.ErrRefreshFailed)
	}

	m.SaveTokens(tokens.AccessToken, tokens.RefreshToken, time.Duration(tokens.ExpiresIn)*time.Second)
	return nil
}

// BasicAuthHeader builds the "Basic ..." authorization value from the client
// id/secret pair.
func (m *TokenManager) BasicAuthHeader() string {
	pair := m.clientID + ":" + m.clientSecret
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(pair))
}

// Session file persistence
//
// CLI invocations are separate processes, so credential records are persisted
// per provider to a JSON file under the user's home directory (0600). The
// engine itself never touches this file; it only sees populated adapters.

// DefaultSessionPath returns ~/.crossfade/sessions.json.
func DefaultSessionPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".crossfade", "sessions.json")
	}
	return filepath.Join(home, ".crossfade", "sessions.json")
}

// LoadSessions reads persisted credential records keyed by provider name.
// A missing file yields an empty map, not an error.
func LoadSessions(path string) (map[string]Credentials, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]Credentials{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	sessions := map[string]Credentials{}
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, fmt.Errorf("failed to parse session file: %w", err)
	}

	return sessions, nil
}

// SaveSession upserts one provider's credential record in the session file.
func SaveSession(path, provider string, creds Credentials) error {
	sessions, err := LoadSessions(path)
	if err != nil {
		return err
	}

	sessions[provider] = creds
	return writeSessions(path, sessions)
}

// DeleteSession removes one provider's credential record (disconnect).
func DeleteSession(path, provider string) error {
	sessions, err := LoadSessions(path)
	if err != nil {
		return err
	}

	delete(sessions, provider)
	return writeSessions(path, sessions)
}

func writeSessions(path string, sessions map[string]Credentials) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	data, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sessions: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}

	return nil
}
