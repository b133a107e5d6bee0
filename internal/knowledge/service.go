package knowledge

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/codypharm/zapta-core/internal/embeddings"
	"github.com/codypharm/zapta-core/internal/store"
	"github.com/codypharm/zapta-core/pkg/models"
)

// Service wires the chunker, embedding chain, and chunk store together.
type Service struct {
	store        store.Store
	chain        *embeddings.Chain
	maxChunkSize int
}

// NewService creates a knowledge service. maxChunkSize <= 0 uses the default.
func NewService(s store.Store, chain *embeddings.Chain, maxChunkSize int) *Service {
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultMaxChunkSize
	}
	return &Service{store: s, chain: chain, maxChunkSize: maxChunkSize}
}

// UploadResult reports the outcome of a document upload. Failures are
// carried in Error rather than returned, so boundary handlers can always
// render a response from the same shape.
type UploadResult struct {
	Success    bool   `json:"success"`
	ChunkCount int    `json:"chunk_count"`
	Error      string `json:"error,omitempty"`
}

// UploadDocument chunks content, embeds all chunks as one batch, and
// persists one row per chunk. The whole batch goes through the fallback
// chain together: search filters by embedding model, so a mid-upload
// fallback must never split one document across two models. Embedding or
// storage failure is reported in the result, never as an error return.
func (s *Service) UploadDocument(ctx context.Context, tenantID string, agentID *string, name, content string) UploadResult {
	chunks := ChunkDocument(content, s.maxChunkSize)
	if len(chunks) == 0 {
		return UploadResult{Error: "document is empty"}
	}

	batch, err := s.chain.Embed(ctx, chunks)
	if err != nil {
		log.Error().Err(err).Str("tenant_id", tenantID).Str("name", name).
			Msg("Embedding failed during upload")
		return UploadResult{Error: fmt.Sprintf("embedding failed: %v", err)}
	}
	if len(batch.Vectors) != len(chunks) {
		return UploadResult{Error: fmt.Sprintf("embedding returned %d vectors for %d chunks",
			len(batch.Vectors), len(chunks))}
	}

	now := time.Now().UTC()
	rows := make([]models.DocumentChunk, len(chunks))
	for i, chunk := range chunks {
		chunkName := name
		if len(chunks) > 1 {
			chunkName = fmt.Sprintf("%s (Part %d)", name, i+1)
		}
		rows[i] = models.DocumentChunk{
			ID:                  uuid.NewString(),
			TenantID:            tenantID,
			AgentID:             agentID,
			Name:                chunkName,
			Content:             chunk,
			Embedding:           batch.Vectors[i],
			EmbeddingModel:      batch.Model,
			EmbeddingDimensions: batch.Dimensions,
			Metadata: models.ChunkMetadata{
				ChunkIndex:        i,
				TotalChunks:       len(chunks),
				OriginalFileName:  name,
				EmbeddingProvider: batch.Provider,
			},
			CreatedAt: now,
		}
	}

	if err := s.store.InsertChunks(ctx, rows); err != nil {
		log.Error().Err(err).Str("tenant_id", tenantID).Str("name", name).
			Msg("Chunk insert failed during upload")
		return UploadResult{Error: fmt.Sprintf("storing document failed: %v", err)}
	}

	log.Info().Str("tenant_id", tenantID).Str("name", name).
		Int("chunks", len(chunks)).Msg("Document uploaded")
	return UploadResult{Success: true, ChunkCount: len(chunks)}
}

// SearchParams bundles the optional knobs on a similarity search.
type SearchParams struct {
	AgentID     *string
	Limit       int
	Threshold   float64
	UserSession string
}

// SearchDocuments embeds the query and returns chunks above the similarity
// threshold, capped at the limit. Stored vectors are only compared against
// queries embedded with the same model. Analytics writes are best-effort.
func (s *Service) SearchDocuments(ctx context.Context, tenantID, query string, params SearchParams) ([]models.ScoredChunk, error) {
	if params.Limit <= 0 {
		params.Limit = 5
	}

	start := time.Now()
	vec, batch, err := s.chain.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	results, err := s.store.SearchChunks(ctx, store.ChunkQuery{
		TenantID:       tenantID,
		AgentID:        params.AgentID,
		Vector:         vec,
		EmbeddingModel: batch.Model,
		Limit:          params.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}

	filtered := results[:0]
	for _, r := range results {
		if r.Similarity >= params.Threshold {
			filtered = append(filtered, r)
		}
	}

	latency := time.Since(start).Milliseconds()
	topSimilarity := 0.0
	if len(filtered) > 0 {
		topSimilarity = filtered[0].Similarity
	}
	s.recordEvent(ctx, &models.AnalyticsEvent{
		TenantID:    tenantID,
		AgentID:     deref(params.AgentID),
		Kind:        models.AnalyticsSearch,
		Query:       query,
		ResultCount: len(filtered),
		Similarity:  topSimilarity,
		LatencyMs:   latency,
		UserSession: params.UserSession,
	})
	for _, r := range filtered {
		s.recordEvent(ctx, &models.AnalyticsEvent{
			TenantID:     tenantID,
			AgentID:      deref(params.AgentID),
			Kind:         models.AnalyticsSearchHit,
			Query:        query,
			DocumentName: r.Chunk.Name,
			Similarity:   r.Similarity,
			UserSession:  params.UserSession,
		})
	}

	return filtered, nil
}

// RecordContextUsed emits a context-usage analytics event for a document
// whose content was injected into a prompt. Best-effort.
func (s *Service) RecordContextUsed(ctx context.Context, tenantID, agentID, documentName string, similarity float64) {
	s.recordEvent(ctx, &models.AnalyticsEvent{
		TenantID:     tenantID,
		AgentID:      agentID,
		Kind:         models.AnalyticsContextUsed,
		DocumentName: documentName,
		Similarity:   similarity,
	})
}

// GetDocuments groups a tenant's chunks back into logical documents by
// original file name.
func (s *Service) GetDocuments(ctx context.Context, tenantID string) ([]models.Document, error) {
	chunks, err := s.store.ListChunks(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing chunks: %w", err)
	}

	byFile := make(map[string]*models.Document)
	var order []string
	for _, c := range chunks {
		key := c.Metadata.OriginalFileName
		if key == "" {
			key = c.Name
		}
		doc, ok := byFile[key]
		if !ok {
			doc = &models.Document{
				Name:             key,
				OriginalFileName: key,
				AgentID:          c.AgentID,
				UploadedAt:       c.CreatedAt,
			}
			byFile[key] = doc
			order = append(order, key)
		}
		doc.ChunkCount++
		doc.SizeBytes += int64(len(c.Content))
		if c.CreatedAt.Before(doc.UploadedAt) {
			doc.UploadedAt = c.CreatedAt
		}
	}

	docs := make([]models.Document, 0, len(byFile))
	for _, key := range order {
		docs = append(docs, *byFile[key])
	}
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].UploadedAt.After(docs[j].UploadedAt)
	})
	return docs, nil
}

// DeleteDocument removes every chunk sharing the original file name and
// returns the bytes freed so callers can decrement the storage quota.
func (s *Service) DeleteDocument(ctx context.Context, tenantID, originalFileName string) (int64, error) {
	count, bytes, err := s.store.DeleteChunksByFile(ctx, tenantID, originalFileName)
	if err != nil {
		return 0, fmt.Errorf("deleting chunks: %w", err)
	}
	if count == 0 {
		return 0, &store.ErrNotFound{Entity: "document", Key: originalFileName}
	}
	log.Info().Str("tenant_id", tenantID).Str("name", originalFileName).
		Int("chunks", count).Msg("Document deleted")
	return bytes, nil
}

// BuildContext formats search results into the prompt's knowledge section:
// "[Document: name]\ncontent" blocks joined by "---" lines.
func BuildContext(results []models.ScoredChunk) string {
	if len(results) == 0 {
		return ""
	}
	blocks := make([]string, len(results))
	for i, r := range results {
		blocks[i] = fmt.Sprintf("[Document: %s]\n%s", r.Chunk.Name, r.Chunk.Content)
	}
	return strings.Join(blocks, "\n---\n")
}

func (s *Service) recordEvent(ctx context.Context, event *models.AnalyticsEvent) {
	event.ID = uuid.NewString()
	event.CreatedAt = time.Now().UTC()
	if err := s.store.CreateAnalyticsEvent(ctx, event); err != nil {
		log.Warn().Err(err).Str("kind", string(event.Kind)).Msg("Analytics write failed")
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
