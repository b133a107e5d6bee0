// Package integrations resolves a tenant's connected third-party providers
// into live action clients. Concrete provider implementations register a
// factory; the pipeline only sees the Client interface.
package integrations

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/codypharm/zapta-core/internal/store"
	"github.com/codypharm/zapta-core/pkg/models"
)

// Client executes named actions against one connected provider.
type Client interface {
	// Provider is the provider name ("stripe", "email", "hubspot", ...).
	Provider() string

	// ExecuteAction runs a provider action with the given parameters and
	// returns the provider's result unmodified.
	ExecuteAction(ctx context.Context, action string, params map[string]any) (any, error)
}

// WebhookHandler is implemented by clients that accept inbound provider
// webhooks.
type WebhookHandler interface {
	HandleWebhook(ctx context.Context, payload []byte) error
}

// Factory builds a Client from a stored integration row.
type Factory func(rec models.IntegrationRecord) (Client, error)

// Registry maps provider names to client factories and resolves the set of
// clients available to an agent.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	store     store.Store
}

// NewRegistry creates a registry backed by the given store.
func NewRegistry(s store.Store) *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		store:     s,
	}
}

// Register installs the factory for a provider name, replacing any
// previous registration.
func (r *Registry) Register(provider string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[provider] = f
}

// IntegrationMap builds clients for the tenant's active integrations.
// When agentID is non-empty and the agent restricts integrations, only the
// listed integration IDs are included. Rows without a registered factory
// are skipped with a warning rather than failing the whole map.
func (r *Registry) IntegrationMap(ctx context.Context, tenantID, agentID string) (map[string]Client, error) {
	rows, err := r.store.ListIntegrations(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing integrations: %w", err)
	}

	var allowed map[string]bool
	if agentID != "" {
		agent, err := r.store.GetAgent(ctx, agentID)
		if err != nil {
			return nil, fmt.Errorf("loading agent: %w", err)
		}
		if len(agent.Config.IntegrationIDs) > 0 {
			allowed = make(map[string]bool, len(agent.Config.IntegrationIDs))
			for _, id := range agent.Config.IntegrationIDs {
				allowed[id] = true
			}
		}
	}

	clients := make(map[string]Client)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rec := range rows {
		if !rec.Active {
			continue
		}
		if allowed != nil && !allowed[rec.ID] {
			continue
		}
		f, ok := r.factories[rec.Provider]
		if !ok {
			log.Warn().Str("provider", rec.Provider).Str("tenant_id", tenantID).
				Msg("No factory registered for connected integration")
			continue
		}
		client, err := f(rec)
		if err != nil {
			log.Warn().Err(err).Str("provider", rec.Provider).Str("tenant_id", tenantID).
				Msg("Integration client construction failed")
			continue
		}
		clients[rec.Provider] = client
	}
	return clients, nil
}
