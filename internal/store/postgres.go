package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/codypharm/zapta-core/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// PostgresStore implements Store using PostgreSQL with the pgvector
// extension for chunk similarity search. Users must provide a database
// with pgvector installed.
type PostgresStore struct {
	pool       *pgxpool.Pool
	dimensions int
}

// NewPostgresStore connects to the database and runs migrations.
func NewPostgresStore(ctx context.Context, connURL string, dimensions int) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	s := &PostgresStore{pool: pool, dimensions: dimensions}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}

	log.Info().Int("dims", dimensions).Msg("Postgres store initialized")
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;

		CREATE TABLE IF NOT EXISTS tenants (
			id                  TEXT PRIMARY KEY,
			name                TEXT NOT NULL DEFAULT '',
			plan                TEXT NOT NULL DEFAULT 'free',
			usage_messages      INT NOT NULL DEFAULT 0,
			usage_storage_bytes BIGINT NOT NULL DEFAULT 0,
			usage_reset_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS subscriptions (
			id                   TEXT PRIMARY KEY,
			tenant_id            TEXT NOT NULL,
			plan                 TEXT NOT NULL,
			status               TEXT NOT NULL,
			current_period_end   TIMESTAMPTZ NOT NULL,
			cancel_at_period_end BOOLEAN NOT NULL DEFAULT FALSE,
			created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_subscriptions_tenant ON subscriptions (tenant_id, created_at DESC);

		CREATE TABLE IF NOT EXISTS agents (
			id         TEXT PRIMARY KEY,
			tenant_id  TEXT NOT NULL,
			name       TEXT NOT NULL,
			type       TEXT NOT NULL,
			status     TEXT NOT NULL DEFAULT 'active',
			config     JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_agents_tenant ON agents (tenant_id);

		CREATE TABLE IF NOT EXISTS conversations (
			id         TEXT PRIMARY KEY,
			agent_id   TEXT NOT NULL,
			tenant_id  TEXT NOT NULL,
			messages   JSONB NOT NULL DEFAULT '[]',
			metadata   JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_conversations_agent ON conversations (agent_id, updated_at DESC);

		CREATE TABLE IF NOT EXISTS document_chunks (
			id                   TEXT PRIMARY KEY,
			tenant_id            TEXT NOT NULL,
			agent_id             TEXT,
			name                 TEXT NOT NULL,
			content              TEXT NOT NULL,
			embedding            vector(%d) NOT NULL,
			embedding_model      TEXT NOT NULL,
			embedding_dimensions INT NOT NULL,
			metadata             JSONB NOT NULL DEFAULT '{}',
			created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_chunks_tenant ON document_chunks (tenant_id);
		CREATE INDEX IF NOT EXISTS idx_chunks_tenant_model ON document_chunks (tenant_id, embedding_model);

		CREATE TABLE IF NOT EXISTS agent_executions (
			id          TEXT PRIMARY KEY,
			agent_id    TEXT NOT NULL,
			tenant_id   TEXT NOT NULL,
			status      TEXT NOT NULL,
			input       TEXT NOT NULL DEFAULT '',
			output      TEXT NOT NULL DEFAULT '',
			error       TEXT NOT NULL DEFAULT '',
			duration_ms BIGINT NOT NULL DEFAULT 0,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_executions_tenant ON agent_executions (tenant_id, created_at DESC);

		CREATE TABLE IF NOT EXISTS integrations (
			id          TEXT PRIMARY KEY,
			tenant_id   TEXT NOT NULL,
			provider    TEXT NOT NULL,
			credentials JSONB NOT NULL DEFAULT '{}',
			active      BOOLEAN NOT NULL DEFAULT TRUE,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_integrations_tenant ON integrations (tenant_id);

		CREATE TABLE IF NOT EXISTS webhook_endpoints (
			id        TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			url       TEXT NOT NULL,
			secret    TEXT NOT NULL DEFAULT '',
			events    JSONB NOT NULL DEFAULT '[]',
			active    BOOLEAN NOT NULL DEFAULT TRUE
		);
		CREATE INDEX IF NOT EXISTS idx_webhooks_tenant ON webhook_endpoints (tenant_id);

		CREATE TABLE IF NOT EXISTS analytics_events (
			id            TEXT PRIMARY KEY,
			tenant_id     TEXT NOT NULL,
			agent_id      TEXT NOT NULL DEFAULT '',
			kind          TEXT NOT NULL,
			query         TEXT NOT NULL DEFAULT '',
			document_name TEXT NOT NULL DEFAULT '',
			similarity    DOUBLE PRECISION NOT NULL DEFAULT 0,
			result_count  INT NOT NULL DEFAULT 0,
			latency_ms    BIGINT NOT NULL DEFAULT 0,
			user_session  TEXT NOT NULL DEFAULT '',
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_analytics_tenant ON analytics_events (tenant_id, created_at DESC);
	`, s.dimensions)

	_, err := s.pool.Exec(ctx, ddl)
	return err
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// ── Tenants ──────────────────────────────────────────────────

func (s *PostgresStore) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	var t models.Tenant
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, plan, usage_messages, usage_storage_bytes, usage_reset_at, created_at, updated_at
		FROM tenants WHERE id = $1`, id).
		Scan(&t.ID, &t.Name, &t.Plan, &t.UsageMessages, &t.UsageStorageBytes, &t.UsageResetAt, &t.CreatedAt, &t.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, &ErrNotFound{Entity: "tenant", Key: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return &t, nil
}

func (s *PostgresStore) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	if tenant.ID == "" {
		tenant.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tenants (id, name, plan, usage_messages, usage_storage_bytes, usage_reset_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		tenant.ID, tenant.Name, tenant.Plan, tenant.UsageMessages, tenant.UsageStorageBytes, tenant.UsageResetAt)
	return err
}

func (s *PostgresStore) UpdateTenantPlan(ctx context.Context, id string, plan models.PlanID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tenants SET plan = $2, updated_at = NOW() WHERE id = $1`, id, plan)
	if err != nil {
		return fmt.Errorf("update tenant plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "tenant", Key: id}
	}
	return nil
}

// BumpMessageUsage performs the reset-or-increment as a single conditional
// UPDATE so concurrent executions for the same tenant cannot lose counts.
func (s *PostgresStore) BumpMessageUsage(ctx context.Context, id string, now, nextReset time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		UPDATE tenants SET
			usage_messages = CASE WHEN usage_reset_at <= $2 THEN 1 ELSE usage_messages + 1 END,
			usage_reset_at = CASE WHEN usage_reset_at <= $2 THEN $3 ELSE usage_reset_at END,
			updated_at = $2
		WHERE id = $1
		RETURNING usage_messages`, id, now, nextReset).Scan(&count)
	if err == pgx.ErrNoRows {
		return 0, &ErrNotFound{Entity: "tenant", Key: id}
	}
	if err != nil {
		return 0, fmt.Errorf("bump message usage: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) AddStorageUsage(ctx context.Context, id string, delta int64) (int64, error) {
	var total int64
	err := s.pool.QueryRow(ctx, `
		UPDATE tenants SET
			usage_storage_bytes = GREATEST(usage_storage_bytes + $2, 0),
			updated_at = NOW()
		WHERE id = $1
		RETURNING usage_storage_bytes`, id, delta).Scan(&total)
	if err == pgx.ErrNoRows {
		return 0, &ErrNotFound{Entity: "tenant", Key: id}
	}
	if err != nil {
		return 0, fmt.Errorf("add storage usage: %w", err)
	}
	return total, nil
}

// ── Subscriptions ────────────────────────────────────────────

func (s *PostgresStore) LatestSubscription(ctx context.Context, tenantID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, plan, status, current_period_end, cancel_at_period_end, created_at
		FROM subscriptions WHERE tenant_id = $1
		ORDER BY created_at DESC LIMIT 1`, tenantID).
		Scan(&sub.ID, &sub.TenantID, &sub.Plan, &sub.Status, &sub.CurrentPeriodEnd, &sub.CancelAtPeriodEnd, &sub.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, &ErrNotFound{Entity: "subscription", Key: tenantID}
	}
	if err != nil {
		return nil, fmt.Errorf("latest subscription: %w", err)
	}
	return &sub, nil
}

func (s *PostgresStore) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subscriptions (id, tenant_id, plan, status, current_period_end, cancel_at_period_end)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		sub.ID, sub.TenantID, sub.Plan, sub.Status, sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd)
	return err
}

// ── Agents ───────────────────────────────────────────────────

func (s *PostgresStore) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	var a models.Agent
	var config []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, type, status, config, created_at, updated_at
		FROM agents WHERE id = $1`, id).
		Scan(&a.ID, &a.TenantID, &a.Name, &a.Type, &a.Status, &config, &a.CreatedAt, &a.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, &ErrNotFound{Entity: "agent", Key: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	if err := json.Unmarshal(config, &a.Config); err != nil {
		return nil, fmt.Errorf("decode agent config: %w", err)
	}
	return &a, nil
}

func (s *PostgresStore) ListAgents(ctx context.Context, tenantID string) ([]models.Agent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, name, type, status, config, created_at, updated_at
		FROM agents WHERE tenant_id = $1 ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var out []models.Agent
	for rows.Next() {
		var a models.Agent
		var config []byte
		if err := rows.Scan(&a.ID, &a.TenantID, &a.Name, &a.Type, &a.Status, &config, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		if err := json.Unmarshal(config, &a.Config); err != nil {
			return nil, fmt.Errorf("decode agent config: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountActiveAgents(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM agents WHERE tenant_id = $1 AND status = 'active'`, tenantID).Scan(&n)
	return n, err
}

func (s *PostgresStore) CreateAgent(ctx context.Context, agent *models.Agent) error {
	if agent.ID == "" {
		agent.ID = uuid.NewString()
	}
	config, err := json.Marshal(agent.Config)
	if err != nil {
		return fmt.Errorf("encode agent config: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO agents (id, tenant_id, name, type, status, config)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		agent.ID, agent.TenantID, agent.Name, agent.Type, agent.Status, config)
	return err
}

func (s *PostgresStore) UpdateAgent(ctx context.Context, agent *models.Agent) error {
	config, err := json.Marshal(agent.Config)
	if err != nil {
		return fmt.Errorf("encode agent config: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE agents SET name = $2, type = $3, status = $4, config = $5, updated_at = NOW()
		WHERE id = $1`,
		agent.ID, agent.Name, agent.Type, agent.Status, config)
	if err != nil {
		return fmt.Errorf("update agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "agent", Key: agent.ID}
	}
	return nil
}

// ── Conversations ────────────────────────────────────────────

func (s *PostgresStore) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	msgs, err := json.Marshal(conv.Messages)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}
	meta, err := json.Marshal(conv.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO conversations (id, agent_id, tenant_id, messages, metadata)
		VALUES ($1, $2, $3, $4, $5)`,
		conv.ID, conv.AgentID, conv.TenantID, msgs, meta)
	return err
}

func (s *PostgresStore) AppendMessages(ctx context.Context, conversationID string, msgs []models.Message) error {
	encoded, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE conversations SET messages = messages || $2::jsonb, updated_at = NOW()
		WHERE id = $1`, conversationID, encoded)
	if err != nil {
		return fmt.Errorf("append messages: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "conversation", Key: conversationID}
	}
	return nil
}

func (s *PostgresStore) RecentMessages(ctx context.Context, agentID string, limit int) ([]models.Message, error) {
	// Most recently active conversations, newest first; flatten oldest-first
	// below and keep the trailing window.
	rows, err := s.pool.Query(ctx, `
		SELECT messages FROM conversations
		WHERE agent_id = $1 ORDER BY updated_at DESC LIMIT 5`, agentID)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	var batches [][]models.Message
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan messages: %w", err)
		}
		var msgs []models.Message
		if err := json.Unmarshal(raw, &msgs); err != nil {
			return nil, fmt.Errorf("decode messages: %w", err)
		}
		batches = append(batches, msgs)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var flat []models.Message
	for i := len(batches) - 1; i >= 0; i-- {
		flat = append(flat, batches[i]...)
	}
	if limit > 0 && len(flat) > limit {
		flat = flat[len(flat)-limit:]
	}
	return flat, nil
}

// ── Document Chunks ──────────────────────────────────────────

func (s *PostgresStore) InsertChunks(ctx context.Context, chunks []models.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO document_chunks
		(id, tenant_id, agent_id, name, content, embedding, embedding_model, embedding_dimensions, metadata)
		VALUES `)

	args := make([]interface{}, 0, len(chunks)*9)
	for i, c := range chunks {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i*9 + 1
		sb.WriteString(fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base, base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8))
		id := c.ID
		if id == "" {
			id = uuid.NewString()
		}
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("encode chunk metadata: %w", err)
		}
		args = append(args, id, c.TenantID, c.AgentID, c.Name, c.Content,
			vectorLiteral(c.Embedding), c.EmbeddingModel, c.EmbeddingDimensions, meta)
	}

	_, err := s.pool.Exec(ctx, sb.String(), args...)
	return err
}

func (s *PostgresStore) SearchChunks(ctx context.Context, q ChunkQuery) ([]models.ScoredChunk, error) {
	query := `SELECT id, tenant_id, agent_id, name, content, embedding_model, embedding_dimensions, metadata, created_at,
		1 - (embedding <=> $1) AS similarity
		FROM document_chunks
		WHERE tenant_id = $2 AND embedding_model = $3`
	args := []interface{}{vectorLiteral(q.Vector), q.TenantID, q.EmbeddingModel}

	if q.AgentID != nil {
		query += ` AND (agent_id IS NULL OR agent_id = $4)
			ORDER BY embedding <=> $1 LIMIT $5`
		args = append(args, *q.AgentID, q.Limit)
	} else {
		query += ` ORDER BY embedding <=> $1 LIMIT $4`
		args = append(args, q.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	var out []models.ScoredChunk
	for rows.Next() {
		var sc models.ScoredChunk
		var meta []byte
		if err := rows.Scan(&sc.Chunk.ID, &sc.Chunk.TenantID, &sc.Chunk.AgentID, &sc.Chunk.Name,
			&sc.Chunk.Content, &sc.Chunk.EmbeddingModel, &sc.Chunk.EmbeddingDimensions,
			&meta, &sc.Chunk.CreatedAt, &sc.Similarity); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if err := json.Unmarshal(meta, &sc.Chunk.Metadata); err != nil {
			return nil, fmt.Errorf("decode chunk metadata: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListChunks(ctx context.Context, tenantID string) ([]models.DocumentChunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, agent_id, name, content, embedding_model, embedding_dimensions, metadata, created_at
		FROM document_chunks WHERE tenant_id = $1 ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()

	var out []models.DocumentChunk
	for rows.Next() {
		var c models.DocumentChunk
		var meta []byte
		if err := rows.Scan(&c.ID, &c.TenantID, &c.AgentID, &c.Name, &c.Content,
			&c.EmbeddingModel, &c.EmbeddingDimensions, &meta, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if err := json.Unmarshal(meta, &c.Metadata); err != nil {
			return nil, fmt.Errorf("decode chunk metadata: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteChunksByFile(ctx context.Context, tenantID, originalFileName string) (int, int64, error) {
	var count int
	var bytes int64
	err := s.pool.QueryRow(ctx, `
		WITH deleted AS (
			DELETE FROM document_chunks
			WHERE tenant_id = $1 AND metadata->>'original_file_name' = $2
			RETURNING content
		)
		SELECT COUNT(*), COALESCE(SUM(LENGTH(content)), 0) FROM deleted`,
		tenantID, originalFileName).Scan(&count, &bytes)
	if err != nil {
		return 0, 0, fmt.Errorf("delete chunks: %w", err)
	}
	return count, bytes, nil
}

// ── Executions ───────────────────────────────────────────────

func (s *PostgresStore) CreateExecution(ctx context.Context, exec *models.AgentExecution) error {
	if exec.ID == "" {
		exec.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO agent_executions (id, agent_id, tenant_id, status, input, output, error, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		exec.ID, exec.AgentID, exec.TenantID, exec.Status, exec.Input, exec.Output, exec.Error, exec.DurationMs)
	return err
}

func (s *PostgresStore) ListExecutions(ctx context.Context, tenantID string, limit int) ([]models.AgentExecution, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, agent_id, tenant_id, status, input, output, error, duration_ms, created_at
		FROM agent_executions WHERE tenant_id = $1
		ORDER BY created_at DESC LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var out []models.AgentExecution
	for rows.Next() {
		var e models.AgentExecution
		if err := rows.Scan(&e.ID, &e.AgentID, &e.TenantID, &e.Status, &e.Input, &e.Output,
			&e.Error, &e.DurationMs, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ── Integrations & Webhooks ──────────────────────────────────

func (s *PostgresStore) ListIntegrations(ctx context.Context, tenantID string) ([]models.IntegrationRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, provider, credentials, active, created_at
		FROM integrations WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list integrations: %w", err)
	}
	defer rows.Close()

	var out []models.IntegrationRecord
	for rows.Next() {
		var r models.IntegrationRecord
		var creds []byte
		if err := rows.Scan(&r.ID, &r.TenantID, &r.Provider, &creds, &r.Active, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan integration: %w", err)
		}
		if err := json.Unmarshal(creds, &r.Credentials); err != nil {
			return nil, fmt.Errorf("decode credentials: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateIntegration(ctx context.Context, rec *models.IntegrationRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	creds, err := json.Marshal(rec.Credentials)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO integrations (id, tenant_id, provider, credentials, active)
		VALUES ($1, $2, $3, $4, $5)`,
		rec.ID, rec.TenantID, rec.Provider, creds, rec.Active)
	return err
}

func (s *PostgresStore) ListWebhooks(ctx context.Context, tenantID string) ([]models.WebhookEndpoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, url, secret, events, active
		FROM webhook_endpoints WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	defer rows.Close()

	var out []models.WebhookEndpoint
	for rows.Next() {
		var h models.WebhookEndpoint
		var events []byte
		if err := rows.Scan(&h.ID, &h.TenantID, &h.URL, &h.Secret, &events, &h.Active); err != nil {
			return nil, fmt.Errorf("scan webhook: %w", err)
		}
		if err := json.Unmarshal(events, &h.Events); err != nil {
			return nil, fmt.Errorf("decode webhook events: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateWebhook(ctx context.Context, hook *models.WebhookEndpoint) error {
	if hook.ID == "" {
		hook.ID = uuid.NewString()
	}
	events, err := json.Marshal(hook.Events)
	if err != nil {
		return fmt.Errorf("encode webhook events: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO webhook_endpoints (id, tenant_id, url, secret, events, active)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		hook.ID, hook.TenantID, hook.URL, hook.Secret, events, hook.Active)
	return err
}

// ── Analytics ────────────────────────────────────────────────

func (s *PostgresStore) CreateAnalyticsEvent(ctx context.Context, event *models.AnalyticsEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO analytics_events (id, tenant_id, agent_id, kind, query, document_name, similarity, result_count, latency_ms, user_session)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		event.ID, event.TenantID, event.AgentID, event.Kind, event.Query, event.DocumentName,
		event.Similarity, event.ResultCount, event.LatencyMs, event.UserSession)
	return err
}

// vectorLiteral converts a float64 slice to pgvector's text format: [1,2,3]
func vectorLiteral(v []float64) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(fmt.Sprintf("%g", f))
	}
	sb.WriteByte(']')
	return sb.String()
}
