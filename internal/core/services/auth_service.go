package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/feima-labs/feima-bridge/internal/core/domain"
	"github.com/feima-labs/feima-bridge/internal/core/ports/driven"
	"github.com/feima-labs/feima-bridge/internal/core/ports/driving"
	"github.com/feima-labs/feima-bridge/internal/logger"
)

// sessionSecretKey is the single key under which the entire authentication
// record is persisted. There is exactly one session at a time: concurrent
// multi-account sign-in is out of scope.
const sessionSecretKey = "feimaAuth.tokens"

const authCallbackTimeout = 5 * time.Minute

// AuthenticationService owns the sign-in lifecycle: building authorization
// URLs, exchanging codes, and refreshing tokens on read. The secret store is
// the sole authority for session state; the in-memory cache is only written
// right after a store read or write (GetSessions, CreateSession,
// RemoveSession) and is never read back in place of the store.
type AuthenticationService struct {
	config      driven.ConfigSource
	secretStore driven.SecretStore
	router      *URIRouter
	browser     driven.BrowserOpener

	refreshGroup singleflight.Group

	listenersMu  sync.Mutex
	listeners    map[int]func(driving.SessionChangeEvent)
	nextListener int

	cacheMu sync.RWMutex
	cached  []domain.Session

	// exchangeFn and refreshFn are swapped out in tests to avoid real
	// network calls; production callers get the oauth2-backed implementations.
	exchangeFn func(ctx context.Context, cfg driven.ConfigSource, code, redirectURI, codeVerifier string) (*domain.TokenResponse, error)
	refreshFn  func(ctx context.Context, cfg driven.ConfigSource, refreshToken string) (*domain.TokenResponse, error)
}

// NewAuthenticationService wires an authentication service against its
// dependencies. browser may be nil: CreateSession then opens nothing and only
// waits for the callback, and the authorization URL is not returned to the
// caller.
func NewAuthenticationService(config driven.ConfigSource, secretStore driven.SecretStore, router *URIRouter, browser driven.BrowserOpener) *AuthenticationService {
	return &AuthenticationService{
		config:      config,
		secretStore: secretStore,
		router:      router,
		browser:     browser,
		listeners:   make(map[int]func(driving.SessionChangeEvent)),
		exchangeFn:  exchangeCodeForToken,
		refreshFn:   refreshAccessToken,
	}
}

// OnSessionsChanged registers a callback for session add/remove events.
func (s *AuthenticationService) OnSessionsChanged(fn func(driving.SessionChangeEvent)) func() {
	s.listenersMu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

func (s *AuthenticationService) emit(event driving.SessionChangeEvent) {
	s.listenersMu.Lock()
	fns := make([]func(driving.SessionChangeEvent), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listenersMu.Unlock()

	for _, fn := range fns {
		fn(event)
	}
}

// GetSessions always consults the secret store, refreshing the access token
// first if it is near expiry. A refresh failure clears the stored session
// entirely rather than returning a stale one: the caller sees no sessions
// and must sign in again.
func (s *AuthenticationService) GetSessions(ctx context.Context) ([]domain.Session, error) {
	stored, ok, err := s.loadStoredSession(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.setCached(nil)
		return nil, nil
	}

	if domain.ShouldRefreshToken(stored.IssuedAt, stored.TokenResponse.ExpiresIn, timeNow()) {
		refreshed, refreshErr := s.refreshStoredSession(ctx, stored)
		if refreshErr != nil {
			logger.Error("token refresh failed, clearing stored session: %v", refreshErr)
			if clearErr := s.secretStore.Delete(ctx, sessionSecretKey); clearErr != nil {
				return nil, domain.WrapError(domain.ErrTokenRefreshFailed, "clearing session after failed refresh", clearErr)
			}
			s.setCached(nil)
			return nil, nil
		}
		stored = refreshed
	}

	sessions := []domain.Session{stored.ToSession()}
	s.setCached(sessions)
	return sessions, nil
}

// refreshStoredSession runs a token refresh through singleflight so that
// concurrent GetSessions calls collapse into a single request to the
// identity provider, then persists the merged result.
func (s *AuthenticationService) refreshStoredSession(ctx context.Context, stored domain.StoredSession) (domain.StoredSession, error) {
	v, err, _ := s.refreshGroup.Do("refresh", func() (any, error) {
		newTokens, refreshErr := s.refreshFn(ctx, s.config, stored.TokenResponse.RefreshToken)
		if refreshErr != nil {
			return nil, refreshErr
		}

		merged := stored
		merged.TokenResponse = *newTokens
		if merged.TokenResponse.RefreshToken == "" {
			merged.TokenResponse.RefreshToken = stored.TokenResponse.RefreshToken
		}
		merged.IssuedAt = timeNow().UnixMilli()

		if err := s.persistSession(ctx, merged); err != nil {
			return nil, err
		}
		return merged, nil
	})
	if err != nil {
		return domain.StoredSession{}, err
	}
	return v.(domain.StoredSession), nil
}

// CreateSession runs an interactive sign-in flow: build the authorization
// URL, hand it to the browser opener, wait for the matching callback, and
// exchange the resulting code for tokens.
func (s *AuthenticationService) CreateSession(ctx context.Context) (domain.Session, error) {
	codeVerifier := generateCodeVerifier()
	nonce, err := generateState()
	if err != nil {
		return domain.Session{}, domain.WrapError(domain.ErrOAuthFlowStateLost, "generating state", err)
	}

	redirectURI := fmt.Sprintf("%s://%s/oauth/callback", s.config.RedirectURIScheme(), s.config.ExtensionID())
	authURL := buildAuthorizationURL(s.config, nonce, codeVerifier, redirectURI)

	resultCh := s.router.RegisterPendingCallback(nonce, authCallbackTimeout)

	if s.browser != nil {
		if err := s.browser.Open(authURL); err != nil {
			s.router.CancelPendingCallback(nonce)
			return domain.Session{}, domain.WrapError(domain.ErrCannotOpenBrowser, "opening authorization url", err)
		}
	}

	var result callbackResult
	select {
	case result = <-resultCh:
	case <-ctx.Done():
		s.router.CancelPendingCallback(nonce)
		return domain.Session{}, domain.WrapError(domain.ErrAuthCallbackTimedOut, "sign-in cancelled", ctx.Err())
	}

	if result.err != nil {
		return domain.Session{}, result.err
	}

	tokens, err := s.exchangeFn(ctx, s.config, result.code, redirectURI, codeVerifier)
	if err != nil {
		return domain.Session{}, err
	}

	accountID, accountLabel := s.resolveAccount(tokens)

	stored := domain.StoredSession{
		TokenResponse: *tokens,
		IssuedAt:      timeNow().UnixMilli(),
		SessionID:     uuid.NewString(),
		AccountID:     accountID,
		AccountLabel:  accountLabel,
	}

	if err := s.persistSession(ctx, stored); err != nil {
		return domain.Session{}, err
	}

	session := stored.ToSession()
	s.setCached([]domain.Session{session})
	s.emit(driving.SessionChangeEvent{Kind: driving.SessionAdded, Session: session})
	return session, nil
}

// resolveAccount decodes the id token (or, when there is none, the access
// token) into an account id and display label. Absent or malformed claims
// fall back to a synthesized id and a literal label rather than failing the
// whole sign-in: account display is cosmetic, but the id and label must never
// be empty.
func (s *AuthenticationService) resolveAccount(tokens *domain.TokenResponse) (id, label string) {
	var claims jwt.MapClaims
	raw := tokens.IDToken
	if raw == "" {
		raw = tokens.AccessToken
	}
	if raw != "" {
		if c, err := getUserInfoClaims(raw); err == nil {
			claims = c
		}
	}

	id = claimString(claims, "sub")
	if id == "" {
		id = fmt.Sprintf("user-%d", timeNow().UnixMilli())
	}

	label = claimString(claims, "email")
	if label == "" {
		label = claimString(claims, "name")
	}
	if label == "" {
		label = "Unknown User"
	}
	return id, label
}

// RemoveSession deletes the persisted session and clears the cache. It is a
// no-op when nothing is stored or when id does not match the stored
// session's id.
func (s *AuthenticationService) RemoveSession(ctx context.Context, id string) error {
	stored, ok, err := s.loadStoredSession(ctx)
	if err != nil {
		return err
	}
	if !ok || stored.SessionID != id {
		return nil
	}

	if err := s.secretStore.Delete(ctx, sessionSecretKey); err != nil {
		return domain.WrapError(domain.ErrTransportError, "deleting stored session", err)
	}

	s.setCached(nil)
	s.emit(driving.SessionChangeEvent{Kind: driving.SessionRemoved, Session: stored.ToSession()})
	return nil
}

// HandleURI delegates to the URI router.
func (s *AuthenticationService) HandleURI(_ context.Context, uri string) error {
	return s.router.HandleURI(uri)
}

// GetCachedSessions returns the last known sessions without touching the
// secret store or triggering a refresh.
func (s *AuthenticationService) GetCachedSessions() []domain.Session {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	out := make([]domain.Session, len(s.cached))
	copy(out, s.cached)
	return out
}

func (s *AuthenticationService) setCached(sessions []domain.Session) {
	s.cacheMu.Lock()
	s.cached = sessions
	s.cacheMu.Unlock()
}

func (s *AuthenticationService) loadStoredSession(ctx context.Context) (domain.StoredSession, bool, error) {
	raw, ok, err := s.secretStore.Get(ctx, sessionSecretKey)
	if err != nil {
		return domain.StoredSession{}, false, domain.WrapError(domain.ErrTransportError, "reading stored session", err)
	}
	if !ok {
		return domain.StoredSession{}, false, nil
	}

	var stored domain.StoredSession
	if err := json.Unmarshal(raw, &stored); err != nil {
		return domain.StoredSession{}, false, domain.WrapError(domain.ErrStoredTokenCorrupted, "decoding stored session", err)
	}
	return stored, true, nil
}

func (s *AuthenticationService) persistSession(ctx context.Context, stored domain.StoredSession) error {
	raw, err := json.Marshal(stored)
	if err != nil {
		return domain.WrapError(domain.ErrStoredTokenCorrupted, "encoding stored session", err)
	}
	if err := s.secretStore.Set(ctx, sessionSecretKey, raw); err != nil {
		return domain.WrapError(domain.ErrTransportError, "persisting stored session", err)
	}
	return nil
}

// TokenSourceAdapter adapts AuthenticationService's session-based access
// tokens to oauth2.TokenSource, so a host embedding this bridge as a
// library can hand its own HTTP clients a token source without depending
// on driving.AuthenticationProvider directly. Grounded on the teacher's
// internal/connectors/google/tokensource.go.
type TokenSourceAdapter struct {
	auth      *AuthenticationService
	ctx       context.Context
	sessionID string
}

// TokenSource returns an oauth2.TokenSource backed by s. Every call to
// Token() re-runs GetSessions, so the returned source always hands back a
// live, lazily-refreshed access token rather than a snapshot taken at
// construction time. sessionID is checked against the active session (there
// is at most one) so a caller holding a stale id fails loudly instead of
// silently receiving a different account's token.
func (s *AuthenticationService) TokenSource(ctx context.Context, sessionID string) oauth2.TokenSource {
	return &TokenSourceAdapter{auth: s, ctx: ctx, sessionID: sessionID}
}

// Token implements oauth2.TokenSource.
func (t *TokenSourceAdapter) Token() (*oauth2.Token, error) {
	sessions, err := t.auth.GetSessions(t.ctx)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, domain.NewError(domain.ErrTokenRefreshFailed, "no active session")
	}
	session := sessions[0]
	if t.sessionID != "" && session.ID != t.sessionID {
		return nil, domain.NewError(domain.ErrOAuthFlowStateLost, "session id no longer matches the active session")
	}
	return &oauth2.Token{
		AccessToken: session.AccessToken,
		TokenType:   "Bearer",
	}, nil
}
