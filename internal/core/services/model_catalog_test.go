package services

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feima-labs/feima-bridge/internal/core/domain"
	"github.com/feima-labs/feima-bridge/internal/core/ports/driven"
	"github.com/feima-labs/feima-bridge/internal/core/ports/driving"
)

type fakeAuthProvider struct {
	mu        sync.Mutex
	sessions  []domain.Session
	listeners []func(driving.SessionChangeEvent)
}

func (f *fakeAuthProvider) OnSessionsChanged(fn func(driving.SessionChangeEvent)) func() {
	f.mu.Lock()
	f.listeners = append(f.listeners, fn)
	f.mu.Unlock()
	return func() {}
}

func (f *fakeAuthProvider) GetSessions(context.Context) ([]domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions, nil
}

func (f *fakeAuthProvider) CreateSession(context.Context) (domain.Session, error) {
	return domain.Session{}, nil
}

func (f *fakeAuthProvider) RemoveSession(context.Context, string) error { return nil }

func (f *fakeAuthProvider) HandleURI(context.Context, string) error { return nil }

func (f *fakeAuthProvider) GetCachedSessions() []domain.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions
}

func (f *fakeAuthProvider) signIn(session domain.Session) {
	f.mu.Lock()
	f.sessions = []domain.Session{session}
	listeners := append([]func(driving.SessionChangeEvent){}, f.listeners...)
	f.mu.Unlock()
	for _, fn := range listeners {
		fn(driving.SessionChangeEvent{Kind: driving.SessionAdded, Session: session})
	}
}

func (f *fakeAuthProvider) signOut() {
	f.mu.Lock()
	f.sessions = nil
	listeners := append([]func(driving.SessionChangeEvent){}, f.listeners...)
	f.mu.Unlock()
	for _, fn := range listeners {
		fn(driving.SessionChangeEvent{Kind: driving.SessionRemoved})
	}
}

var _ driving.AuthenticationProvider = (*fakeAuthProvider)(nil)

type fakeModelGateway struct {
	mu        sync.Mutex
	models    []domain.ModelDescriptor
	err       error
	callCount int

	streamBody    io.ReadCloser
	streamMeta    *driven.GatewayResponseMeta
	streamErr     error
	streamRequest []byte
}

func (f *fakeModelGateway) ListModels(_ context.Context, _ string) ([]domain.ModelDescriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callCount++
	if f.err != nil {
		return nil, f.err
	}
	return f.models, nil
}

func (f *fakeModelGateway) StreamChatCompletion(_ context.Context, _ string, body []byte) (io.ReadCloser, *driven.GatewayResponseMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streamRequest = body
	return f.streamBody, f.streamMeta, f.streamErr
}

var _ driven.ModelGateway = (*fakeModelGateway)(nil)

func sampleDescriptors() []domain.ModelDescriptor {
	return []domain.ModelDescriptor{
		{ID: "gpt-chat", Capabilities: domain.ModelCapabilities{Type: domain.CapabilityChat}},
		{ID: "gpt-complete", Capabilities: domain.ModelCapabilities{Type: domain.CapabilityCompletion}},
		{ID: "text-embed", Capabilities: domain.ModelCapabilities{Type: domain.CapabilityEmbeddings}},
	}
}

func TestModelCatalog_FetchesOnlyWhenAuthenticated(t *testing.T) {
	auth := &fakeAuthProvider{}
	gateway := &fakeModelGateway{models: sampleDescriptors()}
	catalog := NewModelCatalog(gateway, auth)
	defer catalog.Close()

	models, err := catalog.GetChatModels(context.Background())
	require.NoError(t, err)
	assert.Empty(t, models)
	assert.Equal(t, 0, gateway.callCount, "no fetch should happen without a session")

	auth.signIn(domain.Session{AccessToken: "access-1"})

	models, err = catalog.GetChatModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, "gpt-chat", models[0].ID())
}

func TestModelCatalog_CategorizesByType(t *testing.T) {
	auth := &fakeAuthProvider{sessions: []domain.Session{{AccessToken: "access-1"}}}
	gateway := &fakeModelGateway{models: sampleDescriptors()}
	catalog := NewModelCatalog(gateway, auth)
	defer catalog.Close()

	chat, err := catalog.GetChatModels(context.Background())
	require.NoError(t, err)
	completion, err := catalog.GetCompletionModels(context.Background())
	require.NoError(t, err)
	embeddings, err := catalog.GetEmbeddingModels(context.Background())
	require.NoError(t, err)

	require.Len(t, chat, 1)
	require.Len(t, completion, 1)
	require.Len(t, embeddings, 1)
	assert.Equal(t, "gpt-chat", chat[0].ID())
	assert.Equal(t, "gpt-complete", completion[0].ID())
	assert.Equal(t, "text-embed", embeddings[0].ID())
}

func TestModelCatalog_DoesNotRefetchWithinTTL(t *testing.T) {
	auth := &fakeAuthProvider{sessions: []domain.Session{{AccessToken: "access-1"}}}
	gateway := &fakeModelGateway{models: sampleDescriptors()}
	catalog := NewModelCatalog(gateway, auth)
	defer catalog.Close()

	_, err := catalog.GetChatModels(context.Background())
	require.NoError(t, err)
	_, err = catalog.GetChatModels(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, gateway.callCount)
}

func TestModelCatalog_RefreshModelsForcesRefetch(t *testing.T) {
	auth := &fakeAuthProvider{sessions: []domain.Session{{AccessToken: "access-1"}}}
	gateway := &fakeModelGateway{models: sampleDescriptors()}
	catalog := NewModelCatalog(gateway, auth)
	defer catalog.Close()

	_, err := catalog.GetChatModels(context.Background())
	require.NoError(t, err)

	require.NoError(t, catalog.RefreshModels(context.Background()))
	assert.Equal(t, 2, gateway.callCount)
}

func TestModelCatalog_KeepsStaleModelsOnFetchError(t *testing.T) {
	auth := &fakeAuthProvider{sessions: []domain.Session{{AccessToken: "access-1"}}}
	gateway := &fakeModelGateway{models: sampleDescriptors()}
	catalog := NewModelCatalog(gateway, auth)
	defer catalog.Close()

	_, err := catalog.GetChatModels(context.Background())
	require.NoError(t, err)

	gateway.err = errors.New("gateway unavailable")
	require.NoError(t, catalog.RefreshModels(context.Background()))

	models, err := catalog.GetChatModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 1, "a failed refresh should leave the prior catalog untouched")
}

func TestModelCatalog_ClearsOnSignOut(t *testing.T) {
	auth := &fakeAuthProvider{}
	gateway := &fakeModelGateway{models: sampleDescriptors()}
	catalog := NewModelCatalog(gateway, auth)
	defer catalog.Close()

	auth.signIn(domain.Session{AccessToken: "access-1"})
	_, err := catalog.GetChatModels(context.Background())
	require.NoError(t, err)

	var notified bool
	catalog.OnModelsChanged(func() { notified = true })

	auth.signOut()

	models, err := catalog.GetChatModels(context.Background())
	require.NoError(t, err)
	assert.Empty(t, models, "signing out clears the catalog since there is no token to refetch with")
	assert.True(t, notified)
}

func TestModelCatalog_GetDefaultCompletionModel(t *testing.T) {
	t.Run("returns the first completion model", func(t *testing.T) {
		auth := &fakeAuthProvider{sessions: []domain.Session{{AccessToken: "access-1"}}}
		gateway := &fakeModelGateway{models: sampleDescriptors()}
		catalog := NewModelCatalog(gateway, auth)
		defer catalog.Close()

		model, ok, err := catalog.GetDefaultCompletionModel(context.Background())
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "gpt-complete", model.ID())
	})

	t.Run("reports absence when there are no completion models", func(t *testing.T) {
		auth := &fakeAuthProvider{sessions: []domain.Session{{AccessToken: "access-1"}}}
		gateway := &fakeModelGateway{}
		catalog := NewModelCatalog(gateway, auth)
		defer catalog.Close()

		_, ok, err := catalog.GetDefaultCompletionModel(context.Background())
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
