package services

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/feima-labs/feima-bridge/internal/core/domain"
	"github.com/feima-labs/feima-bridge/internal/core/ports/driven"
	"github.com/feima-labs/feima-bridge/internal/core/ports/driving"
)

// endpointPrefetchRate proactively throttles the token-prefetch warm-up call
// each newly resolved ChatEndpoint fires, so resolving many endpoints in a
// burst (e.g. a host walking the whole catalog) can't hammer the auth
// service's session cache.
const endpointPrefetchRate = 2

// ModelChatProvider is the core implementation behind the host's
// language-model-chat-provider contract: it enumerates selectable models
// from the catalog, resolves per-model endpoints on demand, and delegates
// streaming to a fresh ChatWrapper per request.
type ModelChatProvider struct {
	catalog    *ModelCatalog
	auth       driving.AuthenticationProvider
	gateway    driven.ModelGateway
	tokenizer  driven.Tokenizer
	apiBaseURL string

	endpointsMu     sync.Mutex
	endpoints       map[string]*ChatEndpoint
	prefetchLimiter *rate.Limiter

	listenersMu  sync.Mutex
	listeners    map[int]func()
	nextListener int

	unsubscribeCatalog func()
}

// NewModelChatProvider wires a provider against the catalog and the ports a
// freshly-resolved ChatEndpoint needs.
func NewModelChatProvider(catalog *ModelCatalog, auth driving.AuthenticationProvider, gateway driven.ModelGateway, tokenizer driven.Tokenizer, apiBaseURL string) *ModelChatProvider {
	p := &ModelChatProvider{
		catalog:         catalog,
		auth:            auth,
		gateway:         gateway,
		tokenizer:       tokenizer,
		apiBaseURL:      apiBaseURL,
		endpoints:       make(map[string]*ChatEndpoint),
		listeners:       make(map[int]func()),
		prefetchLimiter: rate.NewLimiter(rate.Limit(endpointPrefetchRate), 1),
	}
	p.unsubscribeCatalog = catalog.OnModelsChanged(p.notify)
	return p
}

// Close unsubscribes from the catalog.
func (p *ModelChatProvider) Close() {
	if p.unsubscribeCatalog != nil {
		p.unsubscribeCatalog()
	}
}

// OnModelsChanged registers a callback fired whenever the underlying catalog
// changes, so the host knows to re-query ProvideLanguageModelChatInformation.
func (p *ModelChatProvider) OnModelsChanged(fn func()) func() {
	p.listenersMu.Lock()
	id := p.nextListener
	p.nextListener++
	p.listeners[id] = fn
	p.listenersMu.Unlock()

	return func() {
		p.listenersMu.Lock()
		delete(p.listeners, id)
		p.listenersMu.Unlock()
	}
}

func (p *ModelChatProvider) notify() {
	p.listenersMu.Lock()
	fns := make([]func(), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.listenersMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func chatModelDetail(billing domain.ModelBilling) string {
	if billing.Multiplier == 0 {
		return "Free"
	}
	return fmt.Sprintf("%gx", billing.Multiplier)
}

// ProvideLanguageModelChatInformation projects the catalog's picker-enabled
// chat models into the host's display shape.
func (p *ModelChatProvider) ProvideLanguageModelChatInformation(ctx context.Context) ([]driving.ChatModelInfo, error) {
	models, err := p.catalog.GetChatModels(ctx)
	if err != nil {
		return nil, err
	}

	var out []driving.ChatModelInfo
	for _, m := range models {
		d := m.Descriptor
		if !d.ModelPickerEnabled {
			continue
		}
		out = append(out, driving.ChatModelInfo{
			ID:               d.ID,
			Name:             d.Name,
			Family:           d.Capabilities.Family,
			Version:          d.Version,
			Tooltip:          d.Name,
			Detail:           chatModelDetail(d.Billing),
			MaxInputTokens:   d.Capabilities.Limits.MaxPromptTokens,
			MaxOutputTokens:  d.Capabilities.Limits.MaxOutputTokens,
			IsUserSelectable: true,
			Capabilities: driving.ChatModelCapabilities{
				ImageInput:  d.Capabilities.Supports.Vision,
				ToolCalling: d.Capabilities.Supports.ToolCalls,
			},
		})
	}
	return out, nil
}

// endpointFor resolves (and caches) a ChatEndpoint for modelID, failing with
// ErrModelNotFound if the catalog does not know about it.
func (p *ModelChatProvider) endpointFor(ctx context.Context, modelID string) (*ChatEndpoint, error) {
	p.endpointsMu.Lock()
	defer p.endpointsMu.Unlock()

	if e, ok := p.endpoints[modelID]; ok {
		return e, nil
	}

	models, err := p.catalog.GetChatModels(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range models {
		if m.ID() == modelID {
			e := NewChatEndpoint(m, p.apiBaseURL, p.auth, p.gateway, p.tokenizer, p.prefetchLimiter)
			p.endpoints[modelID] = e
			return e, nil
		}
	}
	return nil, domain.NewError(domain.ErrModelNotFound, fmt.Sprintf("model %q is not in the catalog", modelID))
}

// ProvideLanguageModelChatResponse resolves the endpoint for modelID and
// streams the request through a fresh ChatWrapper.
func (p *ModelChatProvider) ProvideLanguageModelChatResponse(ctx context.Context, modelID string, request domain.ChatRequest, progress driving.ProgressCallback) error {
	endpoint, err := p.endpointFor(ctx, modelID)
	if err != nil {
		return err
	}
	request.Model = modelID
	return NewChatWrapper(endpoint).Run(ctx, request, progress)
}

// ProvideTokenCount delegates to the resolved endpoint's tokenizer.
func (p *ModelChatProvider) ProvideTokenCount(ctx context.Context, modelID string, text string) (int, error) {
	endpoint, err := p.endpointFor(ctx, modelID)
	if err != nil {
		return 0, err
	}
	return endpoint.provideTokenCount(text), nil
}

var _ driving.LanguageModelChatProvider = (*ModelChatProvider)(nil)
