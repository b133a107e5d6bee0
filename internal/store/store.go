// Package store provides the storage interface and implementations for the
// Zapta core. The in-memory store backs tests and local development; the
// PostgreSQL store (with pgvector) backs production.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/codypharm/zapta-core/pkg/models"
)

// Store is the primary storage interface. All pipeline code depends on this
// interface, making it easy to swap between in-memory (tests) and
// PostgreSQL (production) implementations. Tenant isolation is structural:
// every query is keyed by tenant_id.
type Store interface {
	TenantStore
	SubscriptionStore
	AgentStore
	ConversationStore
	DocumentStore
	ExecutionStore
	IntegrationStore
	WebhookStore
	AnalyticsStore

	// Ping checks if the backing database is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error
}

// ── Tenant Store ─────────────────────────────────────────────

type TenantStore interface {
	GetTenant(ctx context.Context, id string) (*models.Tenant, error)
	CreateTenant(ctx context.Context, tenant *models.Tenant) error

	// UpdateTenantPlan overwrites the denormalized plan cache, used when a
	// paid tenant with no subscription row is downgraded to free.
	UpdateTenantPlan(ctx context.Context, id string, plan models.PlanID) error

	// BumpMessageUsage atomically advances the tenant's message counter:
	// when now is at or past the stored usage_reset_at the counter resets
	// to 1 and the boundary moves to nextReset, otherwise the counter
	// increments by 1. Returns the counter value after the write. The
	// conditional write happens inside the store so concurrent executions
	// for one tenant cannot lose increments.
	BumpMessageUsage(ctx context.Context, id string, now, nextReset time.Time) (int, error)

	// AddStorageUsage adjusts the byte-accounted storage counter by delta
	// (negative on delete) and returns the new total.
	AddStorageUsage(ctx context.Context, id string, delta int64) (int64, error)
}

// ── Subscription Store ───────────────────────────────────────

// SubscriptionStore reads billing state. Rows are created and updated by
// the external billing webhook service; this core only writes them in tests.
type SubscriptionStore interface {
	// LatestSubscription returns the most recently created subscription row
	// for the tenant, or ErrNotFound when none exists.
	LatestSubscription(ctx context.Context, tenantID string) (*models.Subscription, error)
	CreateSubscription(ctx context.Context, sub *models.Subscription) error
}

// ── Agent Store ──────────────────────────────────────────────

type AgentStore interface {
	GetAgent(ctx context.Context, id string) (*models.Agent, error)
	ListAgents(ctx context.Context, tenantID string) ([]models.Agent, error)
	CountActiveAgents(ctx context.Context, tenantID string) (int, error)
	CreateAgent(ctx context.Context, agent *models.Agent) error
	UpdateAgent(ctx context.Context, agent *models.Agent) error
}

// ── Conversation Store ───────────────────────────────────────

type ConversationStore interface {
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	AppendMessages(ctx context.Context, conversationID string, msgs []models.Message) error

	// RecentMessages flattens the agent's most recent conversations and
	// returns at most limit trailing messages, oldest first.
	RecentMessages(ctx context.Context, agentID string, limit int) ([]models.Message, error)
}

// ── Document Store ───────────────────────────────────────────

// ChunkQuery filters a vector similarity search. EmbeddingModel must match
// the model used at ingestion; vectors from different models live in
// incomparable spaces. A non-nil AgentID matches that agent's chunks plus
// shared (agent-less) chunks.
type ChunkQuery struct {
	TenantID       string
	AgentID        *string
	Vector         []float64
	EmbeddingModel string
	Limit          int
}

type DocumentStore interface {
	InsertChunks(ctx context.Context, chunks []models.DocumentChunk) error

	// SearchChunks returns the closest chunks by cosine similarity,
	// descending, capped at q.Limit. No threshold is applied here; callers
	// filter by similarity.
	SearchChunks(ctx context.Context, q ChunkQuery) ([]models.ScoredChunk, error)

	// ListChunks returns all of a tenant's chunks without embeddings,
	// ordered by creation time.
	ListChunks(ctx context.Context, tenantID string) ([]models.DocumentChunk, error)

	// DeleteChunksByFile removes every chunk sharing the original file name
	// and returns the count and content bytes removed.
	DeleteChunksByFile(ctx context.Context, tenantID, originalFileName string) (int, int64, error)
}

// ── Execution Store ──────────────────────────────────────────

type ExecutionStore interface {
	CreateExecution(ctx context.Context, exec *models.AgentExecution) error
	ListExecutions(ctx context.Context, tenantID string, limit int) ([]models.AgentExecution, error)
}

// ── Integration Store ────────────────────────────────────────

type IntegrationStore interface {
	ListIntegrations(ctx context.Context, tenantID string) ([]models.IntegrationRecord, error)
	CreateIntegration(ctx context.Context, rec *models.IntegrationRecord) error
}

// ── Webhook Store ────────────────────────────────────────────

type WebhookStore interface {
	ListWebhooks(ctx context.Context, tenantID string) ([]models.WebhookEndpoint, error)
	CreateWebhook(ctx context.Context, hook *models.WebhookEndpoint) error
}

// ── Analytics Store ──────────────────────────────────────────

type AnalyticsStore interface {
	CreateAnalyticsEvent(ctx context.Context, event *models.AnalyticsEvent) error
}

// ── Errors ───────────────────────────────────────────────────

// ErrNotFound is returned when a requested entity does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}

// IsNotFound reports whether err is (or wraps) an ErrNotFound.
func IsNotFound(err error) bool {
	var nf *ErrNotFound
	return errors.As(err, &nf)
}
