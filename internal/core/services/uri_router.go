package services

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/feima-labs/feima-bridge/internal/core/domain"
	"github.com/feima-labs/feima-bridge/internal/logger"
)

// pendingCallback is one in-flight sign-in attempt waiting for the host to
// dispatch a matching callback URI.
type pendingCallback struct {
	resultCh chan callbackResult
	timer    *time.Timer
}

type callbackResult struct {
	code string
	err  error
}

// URIRouter correlates callback URIs the host dispatches against
// in-flight authorization attempts by their nonce. Unlike a local HTTP
// callback listener, it never binds a socket: the host owns the custom
// URI scheme and invokes HandleURI directly.
type URIRouter struct {
	mu      sync.Mutex
	pending map[string]*pendingCallback
}

// NewURIRouter creates an empty router.
func NewURIRouter() *URIRouter {
	return &URIRouter{pending: make(map[string]*pendingCallback)}
}

// RegisterPendingCallback opens a slot for a nonce and returns a channel
// that receives exactly one result: the authorization code, or an error if
// the callback reported one, was malformed, or never arrived within timeout.
func (r *URIRouter) RegisterPendingCallback(nonce string, timeout time.Duration) <-chan callbackResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	resultCh := make(chan callbackResult, 1)
	pc := &pendingCallback{resultCh: resultCh}
	pc.timer = time.AfterFunc(timeout, func() {
		r.resolve(nonce, callbackResult{err: domain.NewError(domain.ErrAuthCallbackTimedOut, "no callback received within the timeout")})
	})
	r.pending[nonce] = pc

	return resultCh
}

// CancelPendingCallback removes a pending slot without resolving it,
// releasing its timer. Used when a caller gives up waiting on its own
// (e.g. context cancellation) before HandleURI or the timeout fires.
func (r *URIRouter) CancelPendingCallback(nonce string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if pc, ok := r.pending[nonce]; ok {
		pc.timer.Stop()
		delete(r.pending, nonce)
	}
}

// HandleURI parses a callback URI dispatched by the host and resolves the
// matching pending callback. A callback with no state, or a state that
// matches no pending flow, is logged at debug level and dropped: it may
// belong to a flow that already timed out or to an unrelated extension
// sharing the scheme.
func (r *URIRouter) HandleURI(uri string) error {
	parsed, err := url.Parse(uri)
	if err != nil {
		return domain.WrapError(domain.ErrMalformedCallback, "parsing callback uri", err)
	}

	q := parsed.Query()
	nonce := q.Get("state")
	if nonce == "" {
		logger.Debug("dropping callback uri without state")
		return nil
	}

	r.mu.Lock()
	pc, ok := r.pending[nonce]
	if ok {
		delete(r.pending, nonce)
	}
	r.mu.Unlock()

	if !ok {
		logger.Debug("dropping callback uri with no pending flow for its state")
		return nil
	}
	pc.timer.Stop()

	if errParam := q.Get("error"); errParam != "" {
		desc := q.Get("error_description")
		pc.resultCh <- callbackResult{err: domain.NewError(domain.ErrAuthServerReturnedError, fmt.Sprintf("%s: %s", errParam, desc))}
		return nil
	}

	code := q.Get("code")
	if code == "" {
		pc.resultCh <- callbackResult{err: domain.NewError(domain.ErrMalformedCallback, "callback missing code parameter")}
		return nil
	}

	pc.resultCh <- callbackResult{code: code}
	return nil
}

// resolve delivers a result to a still-pending nonce, used by the timeout
// timer. It is a no-op if HandleURI already resolved (and removed) the slot.
func (r *URIRouter) resolve(nonce string, result callbackResult) {
	r.mu.Lock()
	pc, ok := r.pending[nonce]
	if ok {
		delete(r.pending, nonce)
	}
	r.mu.Unlock()

	if ok {
		pc.resultCh <- result
	}
}
