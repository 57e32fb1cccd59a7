package services

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feima-labs/feima-bridge/internal/core/domain"
	"github.com/feima-labs/feima-bridge/internal/core/ports/driven"
	"github.com/feima-labs/feima-bridge/internal/core/ports/driving"
)

type fakeSecretStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeSecretStore() *fakeSecretStore {
	return &fakeSecretStore{data: make(map[string][]byte)}
}

func (f *fakeSecretStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeSecretStore) Set(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return nil
}

func (f *fakeSecretStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

func (f *fakeSecretStore) put(t *testing.T, stored domain.StoredSession) {
	t.Helper()
	raw, err := json.Marshal(stored)
	require.NoError(t, err)
	require.NoError(t, f.Set(context.Background(), sessionSecretKey, raw))
}

type fakeConfigSource struct{}

func (fakeConfigSource) AuthBaseURL() string       { return "https://auth.example.com" }
func (fakeConfigSource) APIBaseURL() string        { return "https://api.example.com" }
func (fakeConfigSource) ClientID() string          { return "client-123" }
func (fakeConfigSource) Scopes() []string          { return []string{"chat"} }
func (fakeConfigSource) RedirectURIScheme() string { return "vscode" }
func (fakeConfigSource) ExtensionID() string       { return "pub.ext" }

var _ driven.ConfigSource = fakeConfigSource{}

type fakeBrowserOpener struct {
	mu     sync.Mutex
	opened []string
	onOpen func(rawURL string)
}

func (f *fakeBrowserOpener) Open(rawURL string) error {
	f.mu.Lock()
	f.opened = append(f.opened, rawURL)
	f.mu.Unlock()
	if f.onOpen != nil {
		f.onOpen(rawURL)
	}
	return nil
}

func newTestAuthService(store driven.SecretStore, router *URIRouter, browser driven.BrowserOpener) *AuthenticationService {
	return NewAuthenticationService(fakeConfigSource{}, store, router, browser)
}

func stateFromAuthURL(t *testing.T, rawURL string) string {
	t.Helper()
	parsed, err := url.Parse(rawURL)
	require.NoError(t, err)
	return parsed.Query().Get("state")
}

func TestAuthenticationService_CreateSession(t *testing.T) {
	t.Run("completes when the router delivers a matching callback", func(t *testing.T) {
		store := newFakeSecretStore()
		router := NewURIRouter()
		browser := &fakeBrowserOpener{}
		svc := newTestAuthService(store, router, browser)

		svc.exchangeFn = func(_ context.Context, _ driven.ConfigSource, code, _, _ string) (*domain.TokenResponse, error) {
			assert.Equal(t, "auth-code-1", code)
			return &domain.TokenResponse{AccessToken: "access-1", RefreshToken: "refresh-1", ExpiresIn: 3600}, nil
		}

		var seenEvent driving.SessionChangeEvent
		unsubscribe := svc.OnSessionsChanged(func(e driving.SessionChangeEvent) { seenEvent = e })
		defer unsubscribe()

		browser.onOpen = func(rawURL string) {
			nonce := stateFromAuthURL(t, rawURL)
			go func() {
				err := router.HandleURI("vscode://pub.ext/oauth/callback?state=" + nonce + "&code=auth-code-1")
				assert.NoError(t, err)
			}()
		}

		session, err := svc.CreateSession(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "access-1", session.AccessToken)
		assert.Empty(t, session.Scopes)
		assert.NotNil(t, session.Scopes)

		assert.Equal(t, driving.SessionAdded, seenEvent.Kind)
		assert.Equal(t, "access-1", seenEvent.Session.AccessToken)
		assert.Equal(t, session, svc.GetCachedSessions()[0])
	})

	t.Run("surfaces an authorization server error", func(t *testing.T) {
		store := newFakeSecretStore()
		router := NewURIRouter()
		browser := &fakeBrowserOpener{}
		svc := newTestAuthService(store, router, browser)

		browser.onOpen = func(rawURL string) {
			nonce := stateFromAuthURL(t, rawURL)
			go func() {
				_ = router.HandleURI("vscode://pub.ext/oauth/callback?state=" + nonce + "&error=access_denied&error_description=denied")
			}()
		}

		_, err := svc.CreateSession(context.Background())
		require.Error(t, err)

		var coreErr *domain.CoreError
		require.ErrorAs(t, err, &coreErr)
		assert.Equal(t, domain.ErrAuthServerReturnedError, coreErr.Kind)
	})

	t.Run("synthesizes an account id and label when no id token is returned", func(t *testing.T) {
		store := newFakeSecretStore()
		router := NewURIRouter()
		browser := &fakeBrowserOpener{}
		svc := newTestAuthService(store, router, browser)

		svc.exchangeFn = func(_ context.Context, _ driven.ConfigSource, code, _, _ string) (*domain.TokenResponse, error) {
			return &domain.TokenResponse{AccessToken: "access-1", RefreshToken: "refresh-1", ExpiresIn: 3600}, nil
		}

		browser.onOpen = func(rawURL string) {
			nonce := stateFromAuthURL(t, rawURL)
			go func() {
				_ = router.HandleURI("vscode://pub.ext/oauth/callback?state=" + nonce + "&code=auth-code-1")
			}()
		}

		session, err := svc.CreateSession(context.Background())
		require.NoError(t, err)
		assert.NotEmpty(t, session.Account.ID)
		assert.Contains(t, session.Account.ID, "user-")
		assert.Equal(t, "Unknown User", session.Account.Label)
	})

	t.Run("times out if no callback ever arrives", func(t *testing.T) {
		store := newFakeSecretStore()
		router := NewURIRouter()
		svc := newTestAuthService(store, router, &fakeBrowserOpener{})

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := svc.CreateSession(ctx)
		require.Error(t, err)
	})
}

func TestAuthenticationService_GetSessions(t *testing.T) {
	t.Run("returns nil when nothing is stored", func(t *testing.T) {
		svc := newTestAuthService(newFakeSecretStore(), NewURIRouter(), nil)

		sessions, err := svc.GetSessions(context.Background())
		require.NoError(t, err)
		assert.Nil(t, sessions)
	})

	t.Run("returns the session unchanged when far from expiry", func(t *testing.T) {
		store := newFakeSecretStore()
		store.put(t, domain.StoredSession{
			TokenResponse: domain.TokenResponse{AccessToken: "access-1", RefreshToken: "refresh-1", ExpiresIn: 3600},
			IssuedAt:      time.Now().UnixMilli(),
			SessionID:     "session-1",
		})
		svc := newTestAuthService(store, NewURIRouter(), nil)
		svc.refreshFn = func(context.Context, driven.ConfigSource, string) (*domain.TokenResponse, error) {
			t.Fatal("refresh should not be called when the token is not near expiry")
			return nil, nil
		}

		sessions, err := svc.GetSessions(context.Background())
		require.NoError(t, err)
		require.Len(t, sessions, 1)
		assert.Equal(t, "access-1", sessions[0].AccessToken)
	})

	t.Run("refreshes and preserves the refresh token when the gateway omits a new one", func(t *testing.T) {
		store := newFakeSecretStore()
		issuedAt := time.Now().Add(-55 * time.Minute)
		store.put(t, domain.StoredSession{
			TokenResponse: domain.TokenResponse{AccessToken: "stale-access", RefreshToken: "refresh-1", ExpiresIn: 3600},
			IssuedAt:      issuedAt.UnixMilli(),
			SessionID:     "session-1",
			AccountID:     "acct-1",
			AccountLabel:  "dev@example.com",
		})
		svc := newTestAuthService(store, NewURIRouter(), nil)
		svc.refreshFn = func(_ context.Context, _ driven.ConfigSource, refreshToken string) (*domain.TokenResponse, error) {
			assert.Equal(t, "refresh-1", refreshToken)
			return &domain.TokenResponse{AccessToken: "fresh-access", ExpiresIn: 3600}, nil
		}

		sessions, err := svc.GetSessions(context.Background())
		require.NoError(t, err)
		require.Len(t, sessions, 1)
		assert.Equal(t, "fresh-access", sessions[0].AccessToken)

		raw, ok, err := store.Get(context.Background(), sessionSecretKey)
		require.NoError(t, err)
		require.True(t, ok)
		var stored domain.StoredSession
		require.NoError(t, json.Unmarshal(raw, &stored))
		assert.Equal(t, "refresh-1", stored.TokenResponse.RefreshToken, "refresh token should be preserved when not rotated")
		assert.Equal(t, "acct-1", stored.AccountID)
	})

	t.Run("adopts a rotated refresh token", func(t *testing.T) {
		store := newFakeSecretStore()
		issuedAt := time.Now().Add(-2 * time.Hour)
		store.put(t, domain.StoredSession{
			TokenResponse: domain.TokenResponse{AccessToken: "stale-access", RefreshToken: "refresh-1", ExpiresIn: 3600},
			IssuedAt:      issuedAt.UnixMilli(),
			SessionID:     "session-1",
		})
		svc := newTestAuthService(store, NewURIRouter(), nil)
		svc.refreshFn = func(context.Context, driven.ConfigSource, string) (*domain.TokenResponse, error) {
			return &domain.TokenResponse{AccessToken: "fresh-access", RefreshToken: "refresh-2", ExpiresIn: 3600}, nil
		}

		_, err := svc.GetSessions(context.Background())
		require.NoError(t, err)

		raw, _, _ := store.Get(context.Background(), sessionSecretKey)
		var stored domain.StoredSession
		require.NoError(t, json.Unmarshal(raw, &stored))
		assert.Equal(t, "refresh-2", stored.TokenResponse.RefreshToken)
	})

	t.Run("clears the session entirely when refresh fails", func(t *testing.T) {
		store := newFakeSecretStore()
		store.put(t, domain.StoredSession{
			TokenResponse: domain.TokenResponse{AccessToken: "stale-access", RefreshToken: "refresh-1", ExpiresIn: 3600},
			IssuedAt:      time.Now().Add(-2 * time.Hour).UnixMilli(),
			SessionID:     "session-1",
		})
		svc := newTestAuthService(store, NewURIRouter(), nil)
		svc.refreshFn = func(context.Context, driven.ConfigSource, string) (*domain.TokenResponse, error) {
			return nil, domain.NewError(domain.ErrTokenRefreshFailed, "refresh token revoked")
		}

		sessions, err := svc.GetSessions(context.Background())
		require.NoError(t, err)
		assert.Nil(t, sessions)

		_, ok, err := store.Get(context.Background(), sessionSecretKey)
		require.NoError(t, err)
		assert.False(t, ok, "the session should be cleared after a failed refresh, not left stale")
	})
}

func TestAuthenticationService_RemoveSession(t *testing.T) {
	t.Run("deletes the stored session and emits an event", func(t *testing.T) {
		store := newFakeSecretStore()
		store.put(t, domain.StoredSession{
			TokenResponse: domain.TokenResponse{AccessToken: "access-1"},
			SessionID:     "session-1",
		})
		svc := newTestAuthService(store, NewURIRouter(), nil)

		var seenEvent driving.SessionChangeEvent
		svc.OnSessionsChanged(func(e driving.SessionChangeEvent) { seenEvent = e })

		err := svc.RemoveSession(context.Background(), "session-1")
		require.NoError(t, err)

		_, ok, _ := store.Get(context.Background(), sessionSecretKey)
		assert.False(t, ok)
		assert.Equal(t, driving.SessionRemoved, seenEvent.Kind)
		assert.Empty(t, svc.GetCachedSessions())
	})

	t.Run("removing when nothing is stored is a no-op", func(t *testing.T) {
		svc := newTestAuthService(newFakeSecretStore(), NewURIRouter(), nil)
		err := svc.RemoveSession(context.Background(), "session-1")
		require.NoError(t, err)
	})
}

func TestAuthenticationService_TokenSource(t *testing.T) {
	t.Run("returns a bearer token from the active session", func(t *testing.T) {
		store := newFakeSecretStore()
		store.put(t, domain.StoredSession{
			TokenResponse: domain.TokenResponse{AccessToken: "access-1"},
			SessionID:     "session-1",
		})
		svc := newTestAuthService(store, NewURIRouter(), nil)

		tok, err := svc.TokenSource(context.Background(), "session-1").Token()
		require.NoError(t, err)
		assert.Equal(t, "access-1", tok.AccessToken)
		assert.Equal(t, "Bearer", tok.TokenType)
	})

	t.Run("fails when the session id no longer matches", func(t *testing.T) {
		store := newFakeSecretStore()
		store.put(t, domain.StoredSession{
			TokenResponse: domain.TokenResponse{AccessToken: "access-1"},
			SessionID:     "session-1",
		})
		svc := newTestAuthService(store, NewURIRouter(), nil)

		_, err := svc.TokenSource(context.Background(), "stale-session").Token()
		require.Error(t, err)
	})

	t.Run("fails when there is no active session", func(t *testing.T) {
		svc := newTestAuthService(newFakeSecretStore(), NewURIRouter(), nil)

		_, err := svc.TokenSource(context.Background(), "session-1").Token()
		require.Error(t, err)
	})
}
