// Package models defines the domain types shared across the Zapta core:
// tenants, subscriptions, agents, conversations, knowledge-base chunks,
// execution audit rows, and the agent input/output contracts.
package models

import (
	"encoding/json"
	"time"
)

// ── Plans & Tenancy ──────────────────────────────────────────

// PlanID identifies a subscription plan tier.
type PlanID string

const (
	PlanFree       PlanID = "free"
	PlanStarter    PlanID = "starter"
	PlanPro        PlanID = "pro"
	PlanBusiness   PlanID = "business"
	PlanEnterprise PlanID = "enterprise"
)

// Tenant is a billing/organization unit — the unit of data isolation
// and quota enforcement. Plan is a denormalized cache; when a subscription
// row exists, the subscription's plan wins.
type Tenant struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Plan              PlanID    `json:"plan"`
	UsageMessages     int       `json:"usage_messages"`
	UsageStorageBytes int64     `json:"usage_storage_bytes"`
	UsageResetAt      time.Time `json:"usage_reset_at"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// SubscriptionStatus mirrors the billing provider's subscription lifecycle.
type SubscriptionStatus string

const (
	SubscriptionActive     SubscriptionStatus = "active"
	SubscriptionPastDue    SubscriptionStatus = "past_due"
	SubscriptionCanceled   SubscriptionStatus = "canceled"
	SubscriptionIncomplete SubscriptionStatus = "incomplete"
)

// Subscription is written by the billing webhook service and read-only here.
// A tenant logically has one, but the store is queried for the most recent
// row defensively.
type Subscription struct {
	ID                string             `json:"id"`
	TenantID          string             `json:"tenant_id"`
	Plan              PlanID             `json:"plan"`
	Status            SubscriptionStatus `json:"status"`
	CurrentPeriodEnd  time.Time          `json:"current_period_end"`
	CancelAtPeriodEnd bool               `json:"cancel_at_period_end"`
	CreatedAt         time.Time          `json:"created_at"`
}

// ── Agents ───────────────────────────────────────────────────

// AgentType selects the agent archetype. Only business assistants are
// granted tool access to business integrations.
type AgentType string

const (
	AgentCustomerAssistant AgentType = "customer_assistant"
	AgentBusinessAssistant AgentType = "business_assistant"

	// Legacy archetypes kept for rows created before the two-type split.
	AgentSupport    AgentType = "support"
	AgentSales      AgentType = "sales"
	AgentAutomation AgentType = "automation"
	AgentAnalytics  AgentType = "analytics"
)

type AgentStatus string

const (
	AgentActive   AgentStatus = "active"
	AgentPaused   AgentStatus = "paused"
	AgentArchived AgentStatus = "archived"
)

// AgentConfig is the per-agent persona configuration. Missing fields fall
// back to fixed defaults at execution time (model, tone).
type AgentConfig struct {
	Model          string              `json:"model,omitempty"`
	Tone           string              `json:"tone,omitempty"`
	Instructions   string              `json:"instructions,omitempty"`
	IntegrationIDs []string            `json:"integration_ids,omitempty"`
	LeadCollection *LeadCollectionSpec `json:"lead_collection,omitempty"`
}

// LeadCollectionSpec configures optional lead capture for customer assistants.
type LeadCollectionSpec struct {
	Enabled bool     `json:"enabled"`
	Fields  []string `json:"fields,omitempty"`
}

// Agent is a configured AI persona belonging to a tenant. The execution
// pipeline reads it at the start of every run and never mutates it.
type Agent struct {
	ID        string      `json:"id"`
	TenantID  string      `json:"tenant_id"`
	Name      string      `json:"name"`
	Type      AgentType   `json:"type"`
	Status    AgentStatus `json:"status"`
	Config    AgentConfig `json:"config"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// ── Conversations ────────────────────────────────────────────

// Message is one turn in a conversation transcript.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Conversation holds the persisted transcript for one end-user thread.
// The pipeline reads recent messages for short-term memory; appending is
// the responsibility of the boundary that owns the channel.
type Conversation struct {
	ID        string            `json:"id"`
	AgentID   string            `json:"agent_id"`
	TenantID  string            `json:"tenant_id"`
	Messages  []Message         `json:"messages"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// ── Knowledge Base ───────────────────────────────────────────

// ChunkMetadata records how a chunk was produced.
type ChunkMetadata struct {
	ChunkIndex        int    `json:"chunk_index"`
	TotalChunks       int    `json:"total_chunks"`
	OriginalFileName  string `json:"original_file_name"`
	EmbeddingProvider string `json:"embedding_provider"`
}

// DocumentChunk is one embedded slice of an uploaded document.
// AgentID nil means the chunk is shared across all of the tenant's agents.
type DocumentChunk struct {
	ID                  string        `json:"id"`
	TenantID            string        `json:"tenant_id"`
	AgentID             *string       `json:"agent_id,omitempty"`
	Name                string        `json:"name"`
	Content             string        `json:"content"`
	Embedding           []float64     `json:"embedding,omitempty"`
	EmbeddingModel      string        `json:"embedding_model"`
	EmbeddingDimensions int           `json:"embedding_dimensions"`
	Metadata            ChunkMetadata `json:"metadata"`
	CreatedAt           time.Time     `json:"created_at"`
}

// ScoredChunk is a chunk with its similarity to a query vector.
type ScoredChunk struct {
	Chunk      DocumentChunk `json:"chunk"`
	Similarity float64       `json:"similarity"`
}

// Document is the logical grouping of chunks sharing an original file name.
type Document struct {
	Name             string    `json:"name"`
	OriginalFileName string    `json:"original_file_name"`
	AgentID          *string   `json:"agent_id,omitempty"`
	ChunkCount       int       `json:"chunk_count"`
	SizeBytes        int64     `json:"size_bytes"`
	UploadedAt       time.Time `json:"uploaded_at"`
}

// ── Execution Audit ──────────────────────────────────────────

type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionError   ExecutionStatus = "error"
)

// AgentExecution is the write-only audit row: one per top-level execution
// and one per tool-call batch.
type AgentExecution struct {
	ID         string          `json:"id"`
	AgentID    string          `json:"agent_id"`
	TenantID   string          `json:"tenant_id"`
	Status     ExecutionStatus `json:"status"`
	Input      string          `json:"input"`
	Output     string          `json:"output"`
	Error      string          `json:"error,omitempty"`
	DurationMs int64           `json:"duration_ms"`
	CreatedAt  time.Time       `json:"created_at"`
}

// ── Agent I/O Contract ───────────────────────────────────────

// InputType discriminates the inbound channel.
type InputType string

const (
	InputChat    InputType = "chat"
	InputEmail   InputType = "email"
	InputWebhook InputType = "webhook"
	InputSlack   InputType = "slack"
	InputSMS     InputType = "sms"
)

// Attachment describes an inbound file reference (email/webhook inputs).
type Attachment struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type,omitempty"`
	SizeBytes   int64  `json:"size_bytes,omitempty"`
}

// AgentInput is the uniform request contract across all boundary handlers.
type AgentInput struct {
	Type        InputType       `json:"type"`
	From        string          `json:"from,omitempty"`
	To          []string        `json:"to,omitempty"`
	Subject     string          `json:"subject,omitempty"`
	Body        string          `json:"body,omitempty"`
	Message     string          `json:"message,omitempty"`
	Channel     string          `json:"channel,omitempty"`
	UserSession string          `json:"user_session,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Timestamp   string          `json:"timestamp,omitempty"`
	Attachments []Attachment    `json:"attachments,omitempty"`
	HTML        string          `json:"html,omitempty"`
}

// Text returns the free-text content of the input, whichever field carries it.
func (in *AgentInput) Text() string {
	if in.Message != "" {
		return in.Message
	}
	return in.Body
}

// ActionStatus marks post-processing action outcomes.
type ActionStatus string

const (
	ActionCompleted ActionStatus = "completed"
	ActionFailed    ActionStatus = "failed"
)

// AgentAction records one side effect attempted during an execution,
// either a model-initiated tool call or a legacy trigger action.
type AgentAction struct {
	Type   string       `json:"type"`
	Status ActionStatus `json:"status"`
	Target string       `json:"target,omitempty"`
	Detail string       `json:"detail,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// AgentOutput is the uniform response contract.
type AgentOutput struct {
	Message  string                 `json:"message"`
	Actions  []AgentAction          `json:"actions,omitempty"`
	Sources  []string               `json:"sources,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ── Integrations & Webhooks ──────────────────────────────────

// IntegrationRecord is a connected third-party integration for a tenant.
// Credentials are provider-specific key/value pairs written by the OAuth
// callback plumbing, read-only here.
type IntegrationRecord struct {
	ID          string            `json:"id"`
	TenantID    string            `json:"tenant_id"`
	Provider    string            `json:"provider"`
	Credentials map[string]string `json:"credentials"`
	Active      bool              `json:"active"`
	CreatedAt   time.Time         `json:"created_at"`
}

// WebhookEndpoint is a tenant-configured outbound webhook target.
type WebhookEndpoint struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenant_id"`
	URL      string   `json:"url"`
	Secret   string   `json:"secret,omitempty"`
	Events   []string `json:"events,omitempty"`
	Active   bool     `json:"active"`
}

// ── Analytics ────────────────────────────────────────────────

// AnalyticsKind discriminates knowledge-base analytics events.
type AnalyticsKind string

const (
	AnalyticsSearch      AnalyticsKind = "kb_search"
	AnalyticsSearchHit   AnalyticsKind = "kb_search_hit"
	AnalyticsContextUsed AnalyticsKind = "kb_context_used"
)

// AnalyticsEvent is a best-effort usage signal. Writes are swallowed on
// failure and must never affect the primary request.
type AnalyticsEvent struct {
	ID           string        `json:"id"`
	TenantID     string        `json:"tenant_id"`
	AgentID      string        `json:"agent_id,omitempty"`
	Kind         AnalyticsKind `json:"kind"`
	Query        string        `json:"query,omitempty"`
	DocumentName string        `json:"document_name,omitempty"`
	Similarity   float64       `json:"similarity,omitempty"`
	ResultCount  int           `json:"result_count,omitempty"`
	LatencyMs    int64         `json:"latency_ms,omitempty"`
	UserSession  string        `json:"user_session,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}
