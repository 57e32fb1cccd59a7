// Package driving defines the interfaces the host calls into this module
// through. Concrete implementations live under internal/adapters/driving
// and are thin delegators onto internal/core/services.
package driving

import (
	"context"

	"github.com/feima-labs/feima-bridge/internal/core/domain"
)

// SessionChangeKind distinguishes why the host's session list changed.
type SessionChangeKind string

const (
	SessionAdded   SessionChangeKind = "added"
	SessionRemoved SessionChangeKind = "removed"
)

// SessionChangeEvent is delivered to subscribers whenever a session is
// created or removed.
type SessionChangeEvent struct {
	Kind    SessionChangeKind
	Session domain.Session
}

// AuthenticationProvider is the driving contract the host uses for sign-in,
// sign-out, and session enumeration.
type AuthenticationProvider interface {
	// OnSessionsChanged registers a callback invoked on every session add/remove.
	// It returns an unsubscribe function.
	OnSessionsChanged(fn func(SessionChangeEvent)) (unsubscribe func())

	// GetSessions returns the current sessions, refreshing any that are near
	// expiry first.
	GetSessions(ctx context.Context) ([]domain.Session, error)

	// CreateSession starts an interactive sign-in flow and blocks until the
	// resulting session is available or the flow fails.
	CreateSession(ctx context.Context) (domain.Session, error)

	// RemoveSession signs out the session with the given id.
	RemoveSession(ctx context.Context, sessionID string) error

	// HandleURI processes a callback URI dispatched by the host.
	HandleURI(ctx context.Context, uri string) error

	// GetCachedSessions returns the last known sessions without triggering
	// a refresh or a store read.
	GetCachedSessions() []domain.Session
}
