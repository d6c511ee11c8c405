package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/desertthunder/crossfade/internal/shared"
)

func refreshFormFor(clientID string) func(string) url.Values {
	return func(refreshToken string) url.Values {
		return url.Values{
			"grant_type":    {"refresh_token"},
			"refresh_token": {refreshToken},
			"client_id":     {clientID},
		}
	}
}

func TestTokenManagerValidToken(t *testing.T) {
	ctx := context.Background()

	t.Run("returns error when no token stored", func(t *testing.T) {
		m := NewTokenManager("id", "secret", "http://invalid", refreshFormFor("id"))

		if _, err := m.ValidToken(ctx); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	t.Run("returns cached token when expiry is far away", func(t *testing.T) {
		m := NewTokenManager("id", "secret", "http://invalid", refreshFormFor("id"))
		m.SetCredentials(Credentials{
			AccessToken: "cached-token",
			ExpiresAt:   time.Now().Add(time.Hour),
		})

		token, err := m.ValidToken(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if token != "cached-token" {
			t.Errorf("expected cached-token, got %q", token)
		}
	})

	t.Run("treats zero expiry as perpetually valid", func(t *testing.T) {
		m := NewTokenManager("id", "secret", "http://invalid", refreshFormFor("id"))
		m.SetCredentials(Credentials{AccessToken: "forever-token"})

		token, err := m.ValidToken(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if token != "forever-token" {
			t.Errorf("expected forever-token, got %q", token)
		}
	})

	t.Run("refreshes inside the look-ahead window", func(t *testing.T) {
		var gotAuth string
		var gotForm url.Values

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			r.ParseForm()
			gotForm = r.PostForm
			json.NewEncoder(w).Encode(map[string]any{
				"access_token": "fresh-token",
				"expires_in":   3600,
			})
		}))
		defer server.Close()

		m := NewTokenManager("id", "secret", server.URL, refreshFormFor("id"))
		m.SetCredentials(Credentials{
			AccessToken:  "stale-token",
			RefreshToken: "refresh-me",
			ExpiresAt:    time.Now().Add(2 * time.Minute),
		})

		token, err := m.ValidToken(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if token != "fresh-token" {
			t.Errorf("expected fresh-token, got %q", token)
		}
		if gotAuth == "" || gotAuth != m.BasicAuthHeader() {
			t.Errorf("expected basic auth header, got %q", gotAuth)
		}
		if gotForm.Get("grant_type") != "refresh_token" || gotForm.Get("refresh_token") != "refresh-me" {
			t.Errorf("unexpected refresh form: %v", gotForm)
		}

		// old refresh token survives when the endpoint does not rotate it
		if got := m.Credentials().RefreshToken; got != "refresh-me" {
			t.Errorf("expected refresh token kept, got %q", got)
		}
	})

	t.Run("adopts rotated refresh token", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{
				"access_token":  "fresh-token",
				"refresh_token": "rotated",
				"expires_in":    3600,
			})
		}))
		defer server.Close()

		m := NewTokenManager("id", "secret", server.URL, refreshFormFor("id"))
		m.SetCredentials(Credentials{
			AccessToken:  "stale-token",
			RefreshToken: "refresh-me",
			ExpiresAt:    time.Now().Add(-time.Minute),
		})

		if _, err := m.ValidToken(ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := m.Credentials().RefreshToken; got != "rotated" {
			t.Errorf("expected rotated refresh token, got %q", got)
		}
	})

	t.Run("failed refresh leaves the record unchanged", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad refresh", http.StatusBadRequest)
		}))
		defer server.Close()

		before := Credentials{
			AccessToken:  "stale-token",
			RefreshToken: "refresh-me",
			ExpiresAt:    time.Now().Add(-time.Minute),
			OwnerID:      "user-1",
		}

		m := NewTokenManager("id", "secret", server.URL, refreshFormFor("id"))
		m.SetCredentials(before)

		if _, err := m.ValidToken(ctx); !errors.Is(err, shared.ErrRefreshFailed) {
			t.Fatalf("expected ErrRefreshFailed, got %v", err)
		}
		if m.Credentials() != before {
			t.Errorf("credentials mutated on failed refresh: %+v", m.Credentials())
		}
	})

	t.Run("refresh without refresh token fails", func(t *testing.T) {
		m := NewTokenManager("id", "secret", "http://invalid", refreshFormFor("id"))
		m.SetCredentials(Credentials{
			AccessToken: "stale-token",
			ExpiresAt:   time.Now().Add(-time.Minute),
		})

		_, err := m.ValidToken(ctx)
		if !errors.Is(err, shared.ErrRefreshFailed) {
			t.Errorf("expected ErrRefreshFailed, got %v", err)
		}
	})
}

func TestTokenManagerSaveTokens(t *testing.T) {
	t.Run("applies default lifetime when expires_in missing", func(t *testing.T) {
		m := NewTokenManager("id", "secret", "", nil)
		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		m.now = func() time.Time { return now }

		m.SaveTokens("token", "", 0)

		want := now.Add(defaultTokenLifetime)
		if got := m.Credentials().ExpiresAt; !got.Equal(want) {
			t.Errorf("expected expiry %v, got %v", want, got)
		}
	})

	t.Run("clear destroys the record", func(t *testing.T) {
		m := NewTokenManager("id", "secret", "", nil)
		m.SaveTokens("token", "refresh", time.Hour)
		m.Clear()

		if m.Credentials() != (Credentials{}) {
			t.Errorf("expected empty credentials after clear")
		}
	})
}

func TestSessionFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")

	t.Run("missing file yields empty map", func(t *testing.T) {
		sessions, err := LoadSessions(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(sessions) != 0 {
			t.Errorf("expected empty sessions, got %v", sessions)
		}
	})

	t.Run("save and load roundtrip", func(t *testing.T) {
		creds := Credentials{
			AccessToken:  "token",
			RefreshToken: "refresh",
			ExpiresAt:    time.Now().Add(time.Hour).UTC().Truncate(time.Second),
			OwnerID:      "user-1",
		}

		if err := SaveSession(path, "Spotify", creds); err != nil {
			t.Fatalf("save failed: %v", err)
		}

		sessions, err := LoadSessions(path)
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if got := sessions["Spotify"]; got != creds {
			t.Errorf("expected %+v, got %+v", creds, got)
		}

		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("stat failed: %v", err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("expected 0600 permissions, got %v", info.Mode().Perm())
		}
	})

	t.Run("delete removes only the named provider", func(t *testing.T) {
		if err := SaveSession(path, "Qobuz", Credentials{AccessToken: "q"}); err != nil {
			t.Fatalf("save failed: %v", err)
		}
		if err := DeleteSession(path, "Spotify"); err != nil {
			t.Fatalf("delete failed: %v", err)
		}

		sessions, err := LoadSessions(path)
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if _, ok := sessions["Spotify"]; ok {
			t.Error("expected Spotify session removed")
		}
		if _, ok := sessions["Qobuz"]; !ok {
			t.Error("expected Qobuz session kept")
		}
	})
}
