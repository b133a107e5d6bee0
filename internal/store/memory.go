package store

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/codypharm/zapta-core/pkg/models"
	"github.com/google/uuid"
)

// MemoryStore is a thread-safe in-memory Store for tests and local
// development. Chunk search is brute-force cosine similarity, which is
// fine at test scale; production uses the pgvector-backed store.
type MemoryStore struct {
	mu            sync.RWMutex
	tenants       map[string]*models.Tenant
	subscriptions map[string][]*models.Subscription // tenantID → rows, oldest first
	agents        map[string]*models.Agent
	conversations map[string]*models.Conversation
	chunks        map[string]*models.DocumentChunk
	executions    []*models.AgentExecution
	integrations  map[string][]*models.IntegrationRecord
	webhooks      map[string][]*models.WebhookEndpoint
	analytics     []*models.AnalyticsEvent
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants:       make(map[string]*models.Tenant),
		subscriptions: make(map[string][]*models.Subscription),
		agents:        make(map[string]*models.Agent),
		conversations: make(map[string]*models.Conversation),
		chunks:        make(map[string]*models.DocumentChunk),
		integrations:  make(map[string][]*models.IntegrationRecord),
		webhooks:      make(map[string][]*models.WebhookEndpoint),
	}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }
func (s *MemoryStore) Close() error               { return nil }

// ── Tenants ──────────────────────────────────────────────────

func (s *MemoryStore) GetTenant(_ context.Context, id string) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "tenant", Key: id}
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) CreateTenant(_ context.Context, tenant *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tenant.ID == "" {
		tenant.ID = uuid.NewString()
	}
	if tenant.CreatedAt.IsZero() {
		tenant.CreatedAt = time.Now().UTC()
	}
	cp := *tenant
	s.tenants[tenant.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateTenantPlan(_ context.Context, id string, plan models.PlanID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return &ErrNotFound{Entity: "tenant", Key: id}
	}
	t.Plan = plan
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) BumpMessageUsage(_ context.Context, id string, now, nextReset time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return 0, &ErrNotFound{Entity: "tenant", Key: id}
	}
	// Reset fires at the boundary instant itself, not one tick after.
	if !now.Before(t.UsageResetAt) {
		t.UsageMessages = 1
		t.UsageResetAt = nextReset
	} else {
		t.UsageMessages++
	}
	t.UpdatedAt = now
	return t.UsageMessages, nil
}

func (s *MemoryStore) AddStorageUsage(_ context.Context, id string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return 0, &ErrNotFound{Entity: "tenant", Key: id}
	}
	t.UsageStorageBytes += delta
	if t.UsageStorageBytes < 0 {
		t.UsageStorageBytes = 0
	}
	t.UpdatedAt = time.Now().UTC()
	return t.UsageStorageBytes, nil
}

// ── Subscriptions ────────────────────────────────────────────

func (s *MemoryStore) LatestSubscription(_ context.Context, tenantID string) (*models.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.subscriptions[tenantID]
	if len(rows) == 0 {
		return nil, &ErrNotFound{Entity: "subscription", Key: tenantID}
	}
	cp := *rows[len(rows)-1]
	return &cp, nil
}

func (s *MemoryStore) CreateSubscription(_ context.Context, sub *models.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	cp := *sub
	s.subscriptions[sub.TenantID] = append(s.subscriptions[sub.TenantID], &cp)
	return nil
}

// ── Agents ───────────────────────────────────────────────────

func (s *MemoryStore) GetAgent(_ context.Context, id string) (*models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "agent", Key: id}
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) ListAgents(_ context.Context, tenantID string) ([]models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Agent
	for _, a := range s.agents {
		if a.TenantID == tenantID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) CountActiveAgents(_ context.Context, tenantID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.agents {
		if a.TenantID == tenantID && a.Status == models.AgentActive {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) CreateAgent(_ context.Context, agent *models.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if agent.ID == "" {
		agent.ID = uuid.NewString()
	}
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = time.Now().UTC()
	}
	cp := *agent
	s.agents[agent.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateAgent(_ context.Context, agent *models.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[agent.ID]; !ok {
		return &ErrNotFound{Entity: "agent", Key: agent.ID}
	}
	agent.UpdatedAt = time.Now().UTC()
	cp := *agent
	s.agents[agent.ID] = &cp
	return nil
}

// ── Conversations ────────────────────────────────────────────

func (s *MemoryStore) CreateConversation(_ context.Context, conv *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now().UTC()
	}
	conv.UpdatedAt = conv.CreatedAt
	cp := *conv
	cp.Messages = append([]models.Message(nil), conv.Messages...)
	s.conversations[conv.ID] = &cp
	return nil
}

func (s *MemoryStore) AppendMessages(_ context.Context, conversationID string, msgs []models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return &ErrNotFound{Entity: "conversation", Key: conversationID}
	}
	conv.Messages = append(conv.Messages, msgs...)
	conv.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) RecentMessages(_ context.Context, agentID string, limit int) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var convs []*models.Conversation
	for _, c := range s.conversations {
		if c.AgentID == agentID {
			convs = append(convs, c)
		}
	}
	// Most recently updated conversations first, then flatten and keep the tail.
	sort.Slice(convs, func(i, j int) bool { return convs[i].UpdatedAt.Before(convs[j].UpdatedAt) })
	var flat []models.Message
	for _, c := range convs {
		flat = append(flat, c.Messages...)
	}
	if limit > 0 && len(flat) > limit {
		flat = flat[len(flat)-limit:]
	}
	return flat, nil
}

// ── Document Chunks ──────────────────────────────────────────

func (s *MemoryStore) InsertChunks(_ context.Context, chunks []models.DocumentChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range chunks {
		c := chunks[i]
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = time.Now().UTC()
		}
		s.chunks[c.ID] = &c
	}
	return nil
}

func (s *MemoryStore) SearchChunks(_ context.Context, q ChunkQuery) ([]models.ScoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var scored []models.ScoredChunk
	for _, c := range s.chunks {
		if c.TenantID != q.TenantID || c.EmbeddingModel != q.EmbeddingModel {
			continue
		}
		if q.AgentID != nil && c.AgentID != nil && *c.AgentID != *q.AgentID {
			continue
		}
		scored = append(scored, models.ScoredChunk{
			Chunk:      *c,
			Similarity: cosineSimilarity(q.Vector, c.Embedding),
		})
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Similarity > scored[j].Similarity })
	if q.Limit > 0 && len(scored) > q.Limit {
		scored = scored[:q.Limit]
	}
	return scored, nil
}

func (s *MemoryStore) ListChunks(_ context.Context, tenantID string) ([]models.DocumentChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.DocumentChunk
	for _, c := range s.chunks {
		if c.TenantID != tenantID {
			continue
		}
		cp := *c
		cp.Embedding = nil
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Metadata.ChunkIndex < out[j].Metadata.ChunkIndex
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) DeleteChunksByFile(_ context.Context, tenantID, originalFileName string) (int, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	var bytes int64
	for id, c := range s.chunks {
		if c.TenantID == tenantID && c.Metadata.OriginalFileName == originalFileName {
			count++
			bytes += int64(len(c.Content))
			delete(s.chunks, id)
		}
	}
	return count, bytes, nil
}

// ── Executions ───────────────────────────────────────────────

func (s *MemoryStore) CreateExecution(_ context.Context, exec *models.AgentExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if exec.ID == "" {
		exec.ID = uuid.NewString()
	}
	if exec.CreatedAt.IsZero() {
		exec.CreatedAt = time.Now().UTC()
	}
	cp := *exec
	s.executions = append(s.executions, &cp)
	return nil
}

func (s *MemoryStore) ListExecutions(_ context.Context, tenantID string, limit int) ([]models.AgentExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.AgentExecution
	for i := len(s.executions) - 1; i >= 0; i-- {
		if s.executions[i].TenantID == tenantID {
			out = append(out, *s.executions[i])
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// ── Integrations & Webhooks ──────────────────────────────────

func (s *MemoryStore) ListIntegrations(_ context.Context, tenantID string) ([]models.IntegrationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.IntegrationRecord
	for _, r := range s.integrations[tenantID] {
		out = append(out, *r)
	}
	return out, nil
}

func (s *MemoryStore) CreateIntegration(_ context.Context, rec *models.IntegrationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	cp := *rec
	s.integrations[rec.TenantID] = append(s.integrations[rec.TenantID], &cp)
	return nil
}

func (s *MemoryStore) ListWebhooks(_ context.Context, tenantID string) ([]models.WebhookEndpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.WebhookEndpoint
	for _, h := range s.webhooks[tenantID] {
		out = append(out, *h)
	}
	return out, nil
}

func (s *MemoryStore) CreateWebhook(_ context.Context, hook *models.WebhookEndpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if hook.ID == "" {
		hook.ID = uuid.NewString()
	}
	cp := *hook
	s.webhooks[hook.TenantID] = append(s.webhooks[hook.TenantID], &cp)
	return nil
}

// ── Analytics ────────────────────────────────────────────────

func (s *MemoryStore) CreateAnalyticsEvent(_ context.Context, event *models.AnalyticsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	cp := *event
	s.analytics = append(s.analytics, &cp)
	return nil
}

// AnalyticsEvents returns a snapshot of recorded events, for tests.
func (s *MemoryStore) AnalyticsEvents() []models.AnalyticsEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.AnalyticsEvent, 0, len(s.analytics))
	for _, e := range s.analytics {
		out = append(out, *e)
	}
	return out
}

// Executions returns a snapshot of recorded execution rows, for tests.
func (s *MemoryStore) Executions() []models.AgentExecution {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.AgentExecution, 0, len(s.executions))
	for _, e := range s.executions {
		out = append(out, *e)
	}
	return out
}

// cosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched lengths or zero vectors score 0.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
