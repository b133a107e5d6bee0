// Package handlers implements the HTTP handlers for the Zapta core: agent
// CRUD, the chat and inbound-channel boundaries that invoke the execution
// pipeline, knowledge-base management, and tenant usage/webhook endpoints.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/codypharm/zapta-core/internal/api/middleware"
	"github.com/codypharm/zapta-core/internal/executor"
	"github.com/codypharm/zapta-core/internal/knowledge"
	"github.com/codypharm/zapta-core/internal/plan"
	"github.com/codypharm/zapta-core/internal/store"
	"github.com/codypharm/zapta-core/internal/usage"
	"github.com/codypharm/zapta-core/pkg/metrics"
	"github.com/codypharm/zapta-core/pkg/models"
)

// Handlers holds all handler dependencies.
type Handlers struct {
	Store     store.Store
	Pipeline  *executor.Pipeline
	Knowledge *knowledge.Service
	Ledger    *usage.Ledger
}

// New creates a Handlers instance with all dependencies.
func New(s store.Store, pipeline *executor.Pipeline, kb *knowledge.Service, ledger *usage.Ledger) *Handlers {
	return &Handlers{
		Store:     s,
		Pipeline:  pipeline,
		Knowledge: kb,
		Ledger:    ledger,
	}
}

// ── Execution boundaries ─────────────────────────────────────

// ChatAgent handles POST /v1/agents/{agentID}/chat — the widget boundary.
func (h *Handlers) ChatAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	var req struct {
		Message     string `json:"message"`
		UserSession string `json:"user_session"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Message == "" {
		respondError(w, http.StatusBadRequest, "message is required")
		return
	}

	h.execute(w, r, agentID, &models.AgentInput{
		Type:        models.InputChat,
		Message:     req.Message,
		UserSession: req.UserSession,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	})
}

// InboundEmail handles POST /v1/inbound/email.
func (h *Handlers) InboundEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AgentID     string              `json:"agent_id"`
		From        string              `json:"from"`
		To          []string            `json:"to"`
		Subject     string              `json:"subject"`
		Body        string              `json:"body"`
		HTML        string              `json:"html"`
		Attachments []models.Attachment `json:"attachments"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.AgentID == "" {
		respondError(w, http.StatusBadRequest, "agent_id is required")
		return
	}

	h.execute(w, r, req.AgentID, &models.AgentInput{
		Type:        models.InputEmail,
		From:        req.From,
		To:          req.To,
		Subject:     req.Subject,
		Body:        req.Body,
		HTML:        req.HTML,
		Attachments: req.Attachments,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	})
}

// InboundWebhook handles POST /v1/inbound/webhook/{agentID}. The raw body
// is forwarded as the payload.
func (h *Handlers) InboundWebhook(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	h.execute(w, r, agentID, &models.AgentInput{
		Type:      models.InputWebhook,
		Payload:   payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// InboundSlack handles POST /v1/inbound/slack.
func (h *Handlers) InboundSlack(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AgentID string `json:"agent_id"`
		Channel string `json:"channel"`
		User    string `json:"user"`
		Text    string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.AgentID == "" {
		respondError(w, http.StatusBadRequest, "agent_id is required")
		return
	}

	h.execute(w, r, req.AgentID, &models.AgentInput{
		Type:      models.InputSlack,
		From:      req.User,
		Channel:   req.Channel,
		Message:   req.Text,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// InboundSMS handles POST /v1/inbound/sms.
func (h *Handlers) InboundSMS(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AgentID string `json:"agent_id"`
		From    string `json:"from"`
		Body    string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.AgentID == "" {
		respondError(w, http.StatusBadRequest, "agent_id is required")
		return
	}

	h.execute(w, r, req.AgentID, &models.AgentInput{
		Type:      models.InputSMS,
		From:      req.From,
		Body:      req.Body,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// execute runs the pipeline and maps its error taxonomy onto HTTP statuses.
func (h *Handlers) execute(w http.ResponseWriter, r *http.Request, agentID string, input *models.AgentInput) {
	out, err := h.Pipeline.Execute(r.Context(), agentID, input)
	if err != nil {
		metrics.AgentExecutions.WithLabelValues("error").Inc()
		respondError(w, policyStatus(err), err.Error())
		return
	}
	metrics.AgentExecutions.WithLabelValues("success").Inc()
	respondJSON(w, http.StatusOK, out)
}

// policyStatus maps pipeline errors to HTTP statuses. Policy refusals get
// specific codes; everything else is a 500.
func policyStatus(err error) int {
	var perr *executor.PolicyError
	if !errors.As(err, &perr) {
		return http.StatusInternalServerError
	}
	switch perr.Code {
	case executor.CodeAgentNotFound:
		return http.StatusNotFound
	case executor.CodeSubscriptionInvalid:
		return http.StatusPaymentRequired
	case executor.CodeModelNotAllowed:
		return http.StatusForbidden
	case executor.CodeMessageLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// ── Agent handlers ───────────────────────────────────────────

func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	agents, err := h.Store.ListAgents(r.Context(), tenantID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if agents == nil {
		agents = []models.Agent{}
	}
	respondJSON(w, http.StatusOK, agents)
}

func (h *Handlers) GetAgent(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	agent, err := h.Store.GetAgent(r.Context(), chi.URLParam(r, "agentID"))
	if err != nil || agent.TenantID != tenantID {
		respondError(w, http.StatusNotFound, "Agent not found")
		return
	}
	respondJSON(w, http.StatusOK, agent)
}

func (h *Handlers) CreateAgent(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}

	quota, err := h.Ledger.CheckAgentLimit(r.Context(), tenantID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !quota.Allowed {
		respondError(w, http.StatusForbidden,
			"Agent limit reached ("+strconv.Itoa(quota.Current)+"/"+strconv.Itoa(quota.Limit)+"). Upgrade your plan to add more agents.")
		return
	}

	var req models.Agent
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	req.ID = uuid.NewString()
	req.TenantID = tenantID
	if req.Type == "" {
		req.Type = models.AgentCustomerAssistant
	}
	req.Status = models.AgentActive
	req.CreatedAt = time.Now().UTC()
	req.UpdatedAt = req.CreatedAt

	if err := h.Store.CreateAgent(r.Context(), &req); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info().Str("agent_id", req.ID).Str("tenant_id", tenantID).Str("type", string(req.Type)).
		Msg("Agent created")
	respondJSON(w, http.StatusCreated, req)
}

func (h *Handlers) UpdateAgent(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	agent, err := h.Store.GetAgent(r.Context(), chi.URLParam(r, "agentID"))
	if err != nil || agent.TenantID != tenantID {
		respondError(w, http.StatusNotFound, "Agent not found")
		return
	}

	var req models.Agent
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// Identity and ownership are immutable.
	req.ID = agent.ID
	req.TenantID = agent.TenantID
	req.CreatedAt = agent.CreatedAt
	req.UpdatedAt = time.Now().UTC()
	if req.Status == "" {
		req.Status = agent.Status
	}

	if err := h.Store.UpdateAgent(r.Context(), &req); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, req)
}

// ── Knowledge handlers ───────────────────────────────────────

func (h *Handlers) UploadDocument(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}

	var req struct {
		Name    string  `json:"name"`
		Content string  `json:"content"`
		AgentID *string `json:"agent_id,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" || req.Content == "" {
		respondError(w, http.StatusBadRequest, "name and content are required")
		return
	}

	size := int64(len(req.Content))
	check, err := h.Ledger.CheckStorageLimit(r.Context(), tenantID, size)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !check.Allowed {
		metrics.DocumentsUploaded.WithLabelValues("rejected").Inc()
		respondError(w, http.StatusForbidden, "Storage limit reached. Upgrade your plan or delete documents to free space.")
		return
	}

	result := h.Knowledge.UploadDocument(r.Context(), tenantID, req.AgentID, req.Name, req.Content)
	if !result.Success {
		metrics.DocumentsUploaded.WithLabelValues("error").Inc()
		respondError(w, http.StatusInternalServerError, result.Error)
		return
	}

	if err := h.Ledger.IncrementStorageUsage(r.Context(), tenantID, size); err != nil {
		log.Warn().Err(err).Str("tenant_id", tenantID).Msg("Failed to record storage usage")
	}

	metrics.DocumentsUploaded.WithLabelValues("success").Inc()
	respondJSON(w, http.StatusCreated, result)
}

func (h *Handlers) ListDocuments(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	docs, err := h.Knowledge.GetDocuments(r.Context(), tenantID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if docs == nil {
		docs = []models.Document{}
	}
	respondJSON(w, http.StatusOK, docs)
}

func (h *Handlers) SearchDocuments(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}

	var req struct {
		Query     string  `json:"query"`
		AgentID   *string `json:"agent_id,omitempty"`
		Limit     int     `json:"limit,omitempty"`
		Threshold float64 `json:"threshold,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Query == "" {
		respondError(w, http.StatusBadRequest, "query is required")
		return
	}

	results, err := h.Knowledge.SearchDocuments(r.Context(), tenantID, req.Query, knowledge.SearchParams{
		AgentID:   req.AgentID,
		Limit:     req.Limit,
		Threshold: req.Threshold,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if results == nil {
		results = []models.ScoredChunk{}
	}
	respondJSON(w, http.StatusOK, results)
}

func (h *Handlers) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "documentName")

	freed, err := h.Knowledge.DeleteDocument(r.Context(), tenantID, name)
	if err != nil {
		if store.IsNotFound(err) {
			respondError(w, http.StatusNotFound, "Document not found")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := h.Ledger.DecrementStorageUsage(r.Context(), tenantID, freed); err != nil {
		log.Warn().Err(err).Str("tenant_id", tenantID).Msg("Failed to release storage usage")
	}

	respondJSON(w, http.StatusOK, map[string]int64{"freed_bytes": freed})
}

// ── Usage, executions, webhooks, integrations ────────────────

// GetUsage handles GET /v1/usage — the dashboard's quota summary.
func (h *Handlers) GetUsage(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}

	messages, err := h.Ledger.CheckMessageLimit(r.Context(), tenantID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	agents, err := h.Ledger.CheckAgentLimit(r.Context(), tenantID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	storage, err := h.Ledger.CheckStorageLimit(r.Context(), tenantID, 0)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"plan":     messages.Plan,
		"messages": map[string]int{"used": messages.Current, "limit": messages.Limit},
		"agents":   map[string]int{"used": agents.Current, "limit": agents.Limit},
		"storage":  map[string]int64{"used_bytes": storage.CurrentBytes, "limit_bytes": storage.LimitBytes},
	})
}

func (h *Handlers) ListExecutions(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	execs, err := h.Store.ListExecutions(r.Context(), tenantID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if execs == nil {
		execs = []models.AgentExecution{}
	}
	respondJSON(w, http.StatusOK, execs)
}

func (h *Handlers) ListWebhooks(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	hooks, err := h.Store.ListWebhooks(r.Context(), tenantID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if hooks == nil {
		hooks = []models.WebhookEndpoint{}
	}
	respondJSON(w, http.StatusOK, hooks)
}

func (h *Handlers) CreateWebhook(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}

	var req models.WebhookEndpoint
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.URL == "" {
		respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	req.ID = uuid.NewString()
	req.TenantID = tenantID
	req.Active = true

	if err := h.Store.CreateWebhook(r.Context(), &req); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, req)
}

func (h *Handlers) ListIntegrations(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	recs, err := h.Store.ListIntegrations(r.Context(), tenantID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// Credentials never leave the server.
	out := make([]models.IntegrationRecord, 0, len(recs))
	for _, rec := range recs {
		rec.Credentials = nil
		out = append(out, rec)
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handlers) CreateIntegration(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}

	var req models.IntegrationRecord
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Provider == "" {
		respondError(w, http.StatusBadRequest, "provider is required")
		return
	}

	tenant, err := h.Store.GetTenant(r.Context(), tenantID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Tenant not found")
		return
	}
	planID := h.Ledger.EffectivePlan(r.Context(), tenant)
	if !plan.CanUseIntegration(planID, req.Provider) {
		respondError(w, http.StatusForbidden,
			"The "+req.Provider+" integration is not available on the "+string(planID)+" plan.")
		return
	}

	req.ID = uuid.NewString()
	req.TenantID = tenantID
	req.Active = true
	req.CreatedAt = time.Now().UTC()

	if err := h.Store.CreateIntegration(r.Context(), &req); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	req.Credentials = nil
	respondJSON(w, http.StatusCreated, req)
}

// ── Helpers ──────────────────────────────────────────────────

func requireTenant(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenantID := middleware.GetTenantID(r.Context())
	if tenantID == "" {
		respondError(w, http.StatusBadRequest, "X-Tenant-Id header is required")
		return "", false
	}
	return tenantID, true
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
