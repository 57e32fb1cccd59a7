package services

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/feima-labs/feima-bridge/internal/core/domain"
	"github.com/feima-labs/feima-bridge/internal/core/ports/driven"
	"github.com/feima-labs/feima-bridge/internal/core/ports/driving"
	"github.com/feima-labs/feima-bridge/internal/logger"
)

const modelCatalogTTL = 5 * time.Minute
const modelCatalogFetchTimeout = 30 * time.Second

// refreshRate proactively throttles forced catalog refreshes so a host
// retrying RefreshModels in a tight loop can't hammer the gateway.
const refreshRate = 1

// ModelCatalog holds the remote model list, split by capability, refreshing
// it lazily and re-fetching whenever the signed-in account changes. A fetch
// failure is logged and the prior lists are left untouched: a stale catalog
// beats an empty one.
type ModelCatalog struct {
	gateway driven.ModelGateway
	auth    driving.AuthenticationProvider

	fetchMu sync.Mutex

	mu               sync.RWMutex
	chatModels       []domain.ModelInfo
	completionModels []domain.ModelInfo
	embeddingModels  []domain.ModelInfo
	lastFetch        time.Time

	listenersMu  sync.Mutex
	listeners    map[int]func()
	nextListener int

	refreshLimiter *rate.Limiter

	unsubscribeAuth func()
}

// NewModelCatalog wires a catalog against the gateway and the authentication
// provider whose sessions gate whether a fetch is even attempted.
func NewModelCatalog(gateway driven.ModelGateway, auth driving.AuthenticationProvider) *ModelCatalog {
	c := &ModelCatalog{
		gateway:        gateway,
		auth:           auth,
		listeners:      make(map[int]func()),
		refreshLimiter: rate.NewLimiter(rate.Limit(refreshRate), 1),
	}
	c.unsubscribeAuth = auth.OnSessionsChanged(func(event driving.SessionChangeEvent) {
		c.mu.Lock()
		c.chatModels = nil
		c.completionModels = nil
		c.embeddingModels = nil
		c.lastFetch = time.Time{}
		c.mu.Unlock()

		if event.Kind == driving.SessionAdded {
			// Best effort: a failed prefetch just means the first real
			// GetChatModels call pays the fetch cost instead.
			_ = c.fetchIfNeeded(context.Background(), false)
		}
		c.notify()
	})
	return c
}

// Close unsubscribes from the authentication provider.
func (c *ModelCatalog) Close() {
	if c.unsubscribeAuth != nil {
		c.unsubscribeAuth()
	}
}

// OnModelsChanged registers a callback invoked whenever the catalog's
// contents may have changed (a completed or failed fetch, or a session
// add/remove that cleared it). It returns an unsubscribe function.
func (c *ModelCatalog) OnModelsChanged(fn func()) func() {
	c.listenersMu.Lock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = fn
	c.listenersMu.Unlock()

	return func() {
		c.listenersMu.Lock()
		delete(c.listeners, id)
		c.listenersMu.Unlock()
	}
}

func (c *ModelCatalog) notify() {
	c.listenersMu.Lock()
	fns := make([]func(), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.listenersMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// fetchIfNeeded refreshes the catalog unless a fetch happened within the TTL
// and force is false. It is a no-op, not an error, when there is no signed-in
// session: the catalog just stays empty.
func (c *ModelCatalog) fetchIfNeeded(ctx context.Context, force bool) error {
	c.fetchMu.Lock()
	defer c.fetchMu.Unlock()

	c.mu.RLock()
	stale := force || c.lastFetch.IsZero() || timeNow().Sub(c.lastFetch) >= modelCatalogTTL
	c.mu.RUnlock()
	if !stale {
		return nil
	}

	sessions := c.auth.GetCachedSessions()
	if len(sessions) == 0 {
		var err error
		sessions, err = c.auth.GetSessions(ctx)
		if err != nil {
			return err
		}
	}
	if len(sessions) == 0 {
		return nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, modelCatalogFetchTimeout)
	defer cancel()

	descriptors, err := c.gateway.ListModels(fetchCtx, sessions[0].AccessToken)
	if err != nil {
		logger.Error("model catalog fetch failed: %v", err)
		c.notify()
		return nil
	}

	var chat, completion, embeddings []domain.ModelInfo
	for _, d := range descriptors {
		info := domain.ModelInfo{Descriptor: d}
		switch d.Capabilities.Type {
		case domain.CapabilityChat:
			chat = append(chat, info)
		case domain.CapabilityCompletion:
			completion = append(completion, info)
		case domain.CapabilityEmbeddings:
			embeddings = append(embeddings, info)
		}
	}

	c.mu.Lock()
	c.chatModels = chat
	c.completionModels = completion
	c.embeddingModels = embeddings
	c.lastFetch = timeNow()
	c.mu.Unlock()

	c.notify()
	return nil
}

// GetChatModels returns the chat-capable models, fetching first if the
// catalog is stale or empty.
func (c *ModelCatalog) GetChatModels(ctx context.Context) ([]domain.ModelInfo, error) {
	if err := c.fetchIfNeeded(ctx, false); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.ModelInfo(nil), c.chatModels...), nil
}

// GetCompletionModels returns the completion-capable models.
func (c *ModelCatalog) GetCompletionModels(ctx context.Context) ([]domain.ModelInfo, error) {
	if err := c.fetchIfNeeded(ctx, false); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.ModelInfo(nil), c.completionModels...), nil
}

// GetEmbeddingModels returns the embeddings-capable models.
func (c *ModelCatalog) GetEmbeddingModels(ctx context.Context) ([]domain.ModelInfo, error) {
	if err := c.fetchIfNeeded(ctx, false); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.ModelInfo(nil), c.embeddingModels...), nil
}

// GetDefaultCompletionModel returns the first completion model, if any.
func (c *ModelCatalog) GetDefaultCompletionModel(ctx context.Context) (domain.ModelInfo, bool, error) {
	models, err := c.GetCompletionModels(ctx)
	if err != nil {
		return domain.ModelInfo{}, false, err
	}
	if len(models) == 0 {
		return domain.ModelInfo{}, false, nil
	}
	return models[0], true, nil
}

// RefreshModels forces an immediate fetch regardless of the TTL, proactively
// throttled so a caller retrying in a tight loop can't hammer the gateway.
func (c *ModelCatalog) RefreshModels(ctx context.Context) error {
	if err := c.refreshLimiter.Wait(ctx); err != nil {
		return err
	}
	return c.fetchIfNeeded(ctx, true)
}
