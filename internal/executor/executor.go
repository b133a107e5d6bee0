// Package executor implements the agent execution pipeline:
//
//	load agent → policy gate → knowledge retrieval → conversation memory →
//	prompt assembly → model selection → tool provisioning → generation
//	(with a bounded tool loop) → trigger post-processing → audit logging →
//	webhook notification → return.
//
// Failures short-circuit to the logging/notification tail and the original
// error is returned; RAG, analytics, and trigger failures degrade rather
// than fail the request.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/codypharm/zapta-core/internal/integrations"
	"github.com/codypharm/zapta-core/internal/knowledge"
	"github.com/codypharm/zapta-core/internal/llm"
	"github.com/codypharm/zapta-core/internal/notify"
	"github.com/codypharm/zapta-core/internal/plan"
	"github.com/codypharm/zapta-core/internal/store"
	"github.com/codypharm/zapta-core/internal/tools"
	"github.com/codypharm/zapta-core/internal/triggers"
	"github.com/codypharm/zapta-core/internal/usage"
	"github.com/codypharm/zapta-core/pkg/metrics"
	"github.com/codypharm/zapta-core/pkg/models"
)

var tracer = otel.Tracer("zapta-core")

const (
	// MaxToolSteps caps the sequential tool-invocation loop. The bound is a
	// step count, not a wall-clock or failure rule.
	MaxToolSteps = 5

	// Temperature is fixed for all generations.
	Temperature = 0.7

	// HistoryLimit is how many trailing conversation messages feed the prompt.
	HistoryLimit = 10

	contextLimit     = 3
	contextThreshold = 0.7
)

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Pipeline orchestrates one agent execution end to end.
type Pipeline struct {
	store     store.Store
	ledger    *usage.Ledger
	knowledge *knowledge.Service
	models    *llm.Registry
	registry  *integrations.Registry
	triggers  *triggers.Engine
	notifier  *notify.Service
}

// NewPipeline wires the execution pipeline from its collaborators.
func NewPipeline(
	s store.Store,
	ledger *usage.Ledger,
	kb *knowledge.Service,
	registry *llm.Registry,
	ints *integrations.Registry,
	trig *triggers.Engine,
	notifier *notify.Service,
) *Pipeline {
	return &Pipeline{
		store:     s,
		ledger:    ledger,
		knowledge: kb,
		models:    registry,
		registry:  ints,
		triggers:  trig,
		notifier:  notifier,
	}
}

// Execute runs the pipeline for one inbound request. On failure the audit
// row and failure webhook are still written before the error is returned.
func (p *Pipeline) Execute(ctx context.Context, agentID string, input *models.AgentInput) (*models.AgentOutput, error) {
	start := time.Now()

	ctx, span := tracer.Start(ctx, "executor.Execute",
		trace.WithAttributes(
			attribute.String("zapta.agent_id", agentID),
			attribute.String("zapta.input_type", string(input.Type)),
		),
	)
	defer span.End()

	// Stage 1: load. Tenant identifiers are unknown until this succeeds, so
	// the failure tail runs with whatever is available.
	agent, err := p.store.GetAgent(ctx, agentID)
	if err != nil {
		if store.IsNotFound(err) {
			err = &PolicyError{Code: CodeAgentNotFound, Message: "Agent not found"}
		}
		return nil, p.fail(ctx, "", agentID, input, start, err)
	}
	tenant, err := p.store.GetTenant(ctx, agent.TenantID)
	if err != nil {
		return nil, p.fail(ctx, agent.TenantID, agentID, input, start, err)
	}
	span.SetAttributes(attribute.String("zapta.tenant_id", agent.TenantID))

	model := agent.Config.Model
	if model == "" {
		model = llm.DefaultModel
	}

	// Stage 2: policy gate, chat inputs only. The message is billed exactly
	// once, and only after every check passes.
	if input.Type == models.InputChat {
		if err := p.policyGate(ctx, agent.TenantID, model); err != nil {
			return nil, p.fail(ctx, agent.TenantID, agentID, input, start, err)
		}
		if _, err := p.ledger.IncrementMessageUsage(ctx, agent.TenantID); err != nil {
			return nil, p.fail(ctx, agent.TenantID, agentID, input, start, err)
		}
	}

	// Stage 3: retrieval, chat inputs with a message only. Errors degrade to
	// "no context".
	ragContext, sources := p.retrieve(ctx, agent, input)

	// Stage 4: conversational memory.
	history, err := p.store.RecentMessages(ctx, agent.ID, HistoryLimit)
	if err != nil {
		log.Warn().Err(err).Str("agent_id", agent.ID).Msg("Failed to load conversation history")
		history = nil
	}

	// Stage 6: model selection.
	provider, providerModel, err := p.models.ProviderFor(model)
	if err != nil {
		return nil, p.fail(ctx, agent.TenantID, agentID, input, start, err)
	}

	// Stage 7: tool provisioning, business assistants only.
	var toolset []tools.Tool
	var toolCtx tools.Context
	if agent.Type == models.AgentBusinessAssistant {
		clients, err := p.registry.IntegrationMap(ctx, agent.TenantID, agent.ID)
		if err != nil {
			return nil, p.fail(ctx, agent.TenantID, agentID, input, start, err)
		}
		toolCtx = tools.Context{Integrations: clients, TenantID: agent.TenantID, AgentID: agent.ID}
		toolset = tools.CreateTools(toolCtx)
	}

	// Stage 5: prompt assembly.
	pc := promptContext{
		TenantName:    tenant.Name,
		AgentType:     agent.Type,
		MessageCount:  len(history),
		KnowledgeDocs: p.countDocuments(ctx, agent.TenantID),
		RAGContext:    ragContext,
	}
	system := buildSystemPrompt(agent, pc, toolset)

	msgs := make([]llm.Message, 0, len(history)+1)
	for _, m := range history {
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, llm.Message{Role: "user", Content: formatUserContent(input)})

	// Stage 8: generation with the bounded tool loop.
	final, actions, err := p.generate(ctx, agent, provider, &llm.Request{
		Model:       providerModel,
		Messages:    msgs,
		System:      system,
		Temperature: Temperature,
	}, toolCtx, toolset)
	if err != nil {
		return nil, p.fail(ctx, agent.TenantID, agentID, input, start, err)
	}

	// Stage 9: legacy trigger post-processing, customer assistants only.
	// Purely additive; failures become failed action entries.
	if agent.Type == models.AgentCustomerAssistant && p.triggers != nil {
		clients, err := p.registry.IntegrationMap(ctx, agent.TenantID, agent.ID)
		if err != nil {
			log.Warn().Err(err).Str("agent_id", agent.ID).Msg("Skipping triggers, integration map unavailable")
		} else {
			env := triggers.Env{Input: input.Text(), Output: final}
			actions = append(actions, p.triggers.Evaluate(ctx, clients, env)...)
		}
	}

	out := &models.AgentOutput{Message: final, Actions: actions, Sources: sources}

	// Stages 10–11: audit row and completion webhook. Neither masks the result.
	p.logExecution(ctx, agent.TenantID, agent.ID, models.ExecutionSuccess, marshalInput(input), final, "", start)
	p.notifier.AgentCompleted(ctx, agent.TenantID, agent.ID, input, out)

	log.Info().
		Str("agent_id", agent.ID).
		Str("tenant_id", agent.TenantID).
		Str("model", providerModel).
		Int("actions", len(actions)).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("Agent execution complete")

	return out, nil
}

// policyGate enforces subscription validity, model allowance, and the
// message quota, in that order. Violations are PolicyErrors with
// user-facing messages.
func (p *Pipeline) policyGate(ctx context.Context, tenantID, model string) error {
	sub, err := p.ledger.ValidateSubscription(ctx, tenantID)
	if err != nil {
		return err
	}
	if !sub.Valid {
		metrics.QuotaRejections.WithLabelValues(string(CodeSubscriptionInvalid)).Inc()
		return &PolicyError{Code: CodeSubscriptionInvalid, Message: subscriptionMessage(sub.Status)}
	}

	if !plan.CanUseModel(sub.Plan, model) {
		metrics.QuotaRejections.WithLabelValues(string(CodeModelNotAllowed)).Inc()
		return &PolicyError{
			Code: CodeModelNotAllowed,
			Message: fmt.Sprintf("Model %q is not available on the %s plan. Available models: %s",
				model, sub.Plan, strings.Join(plan.AllowedModels(sub.Plan), ", ")),
		}
	}

	quota, err := p.ledger.CheckMessageLimit(ctx, tenantID)
	if err != nil {
		return err
	}
	if !quota.Allowed {
		metrics.QuotaRejections.WithLabelValues(string(CodeMessageLimit)).Inc()
		return &PolicyError{
			Code: CodeMessageLimit,
			Message: fmt.Sprintf("Message limit reached (%d/%d). Upgrade your plan to continue.",
				quota.Current, quota.Limit),
		}
	}
	return nil
}

func subscriptionMessage(status string) string {
	switch status {
	case string(models.SubscriptionCanceled):
		return "Your subscription has been canceled. Please renew to continue using your agents."
	case string(models.SubscriptionPastDue):
		return "Your subscription payment is past due. Please update your billing details."
	case string(models.SubscriptionIncomplete):
		return "Your subscription setup is incomplete. Please finish checkout to continue."
	case "expired":
		return "Your subscription has expired. Please renew to continue using your agents."
	default:
		return "Your subscription is not active."
	}
}

// retrieve runs knowledge search for chat inputs. Any failure degrades to
// no context.
func (p *Pipeline) retrieve(ctx context.Context, agent *models.Agent, input *models.AgentInput) (string, []string) {
	if input.Type != models.InputChat || input.Text() == "" {
		return "", nil
	}

	results, err := p.knowledge.SearchDocuments(ctx, agent.TenantID, input.Text(), knowledge.SearchParams{
		AgentID:     &agent.ID,
		Limit:       contextLimit,
		Threshold:   contextThreshold,
		UserSession: input.UserSession,
	})
	if err != nil {
		log.Warn().Err(err).Str("agent_id", agent.ID).Msg("Knowledge retrieval failed, continuing without context")
		return "", nil
	}
	if len(results) == 0 {
		return "", nil
	}

	seen := make(map[string]bool)
	var sources []string
	for _, r := range results {
		name := r.Chunk.Metadata.OriginalFileName
		if name == "" {
			name = r.Chunk.Name
		}
		if !seen[name] {
			seen[name] = true
			sources = append(sources, name)
			// Usage analytics are per document, not per chunk.
			p.knowledge.RecordContextUsed(ctx, agent.TenantID, agent.ID, name, r.Similarity)
		}
	}
	return knowledge.BuildContext(results), sources
}

// generate runs the completion loop. With tools present the model may call
// tools and continue, up to MaxToolSteps batches; each batch is logged as
// its own execution row.
func (p *Pipeline) generate(ctx context.Context, agent *models.Agent, provider llm.Provider, req *llm.Request, toolCtx tools.Context, toolset []tools.Tool) (string, []models.AgentAction, error) {
	var actions []models.AgentAction

	for step := 0; ; step++ {
		genStart := time.Now()
		resp, err := provider.Complete(ctx, req)
		if err != nil {
			return "", nil, fmt.Errorf("model generation failed: %w", err)
		}
		metrics.GenerationDuration.WithLabelValues(req.Model).Observe(time.Since(genStart).Seconds())

		if len(toolset) == 0 {
			return resp.Content, actions, nil
		}
		calls := parseToolCalls(resp.Content)
		if len(calls) == 0 {
			return resp.Content, actions, nil
		}
		if step >= MaxToolSteps {
			log.Warn().Str("agent_id", agent.ID).Int("max_steps", MaxToolSteps).
				Msg("Tool step limit reached, returning last response")
			return resp.Content, actions, nil
		}

		req.Messages = append(req.Messages, llm.Message{Role: "assistant", Content: resp.Content})

		batch := make([]models.AgentAction, 0, len(calls))
		for _, tc := range calls {
			action := p.invokeTool(ctx, toolCtx, tc)
			batch = append(batch, action)

			content := action.Detail
			if action.Status == models.ActionFailed {
				content = "Error: " + action.Error
			}
			req.Messages = append(req.Messages, llm.Message{
				Role:    "tool",
				Content: fmt.Sprintf("[Tool: %s] %s", tc.Name, content),
			})
		}
		actions = append(actions, batch...)

		callsJSON, _ := json.Marshal(calls)
		batchJSON, _ := json.Marshal(batch)
		p.logExecution(ctx, agent.TenantID, agent.ID, models.ExecutionSuccess,
			string(callsJSON), string(batchJSON), "", time.Now())

		log.Debug().Str("agent_id", agent.ID).Int("step", step+1).
			Int("tool_calls", len(calls)).Msg("Tool loop continuing")
	}
}

// invokeTool executes one model-requested tool call and records the outcome
// as an action entry.
func (p *Pipeline) invokeTool(ctx context.Context, toolCtx tools.Context, tc ToolCall) models.AgentAction {
	action := models.AgentAction{Type: "tool_call", Target: tc.Name}

	tool, ok := tools.Find(tc.Name)
	if !ok {
		metrics.ToolCalls.WithLabelValues(tc.Name, string(models.ActionFailed)).Inc()
		action.Status = models.ActionFailed
		action.Error = fmt.Sprintf("unknown tool %q", tc.Name)
		return action
	}

	result, err := tool.Invoke(ctx, toolCtx, tc.Arguments)
	if err != nil {
		metrics.ToolCalls.WithLabelValues(tc.Name, string(models.ActionFailed)).Inc()
		action.Status = models.ActionFailed
		action.Error = err.Error()
		return action
	}

	metrics.ToolCalls.WithLabelValues(tc.Name, string(models.ActionCompleted)).Inc()
	action.Status = models.ActionCompleted
	if result != nil {
		if detail, err := json.Marshal(result); err == nil {
			action.Detail = string(detail)
		}
	}
	return action
}

// parseToolCalls extracts tool calls from the model's text response.
// Supports the wrapper format {"tool_calls": [...]} and a direct JSON array.
func parseToolCalls(content string) []ToolCall {
	if content == "" {
		return nil
	}

	var wrapper struct {
		ToolCalls []ToolCall `json:"tool_calls"`
	}
	if err := json.Unmarshal([]byte(content), &wrapper); err == nil && len(wrapper.ToolCalls) > 0 {
		return withCallIDs(wrapper.ToolCalls)
	}

	var calls []ToolCall
	if err := json.Unmarshal([]byte(content), &calls); err == nil && len(calls) > 0 {
		return withCallIDs(calls)
	}
	return nil
}

func withCallIDs(calls []ToolCall) []ToolCall {
	for i := range calls {
		if calls[i].ID == "" {
			calls[i].ID = fmt.Sprintf("call_%d", i)
		}
	}
	return calls
}

// countDocuments returns the tenant's knowledge document count, best-effort.
func (p *Pipeline) countDocuments(ctx context.Context, tenantID string) int {
	docs, err := p.knowledge.GetDocuments(ctx, tenantID)
	if err != nil {
		return 0
	}
	return len(docs)
}

// logExecution writes one audit row. Write failures are logged and never
// affect the pipeline's result.
func (p *Pipeline) logExecution(ctx context.Context, tenantID, agentID string, status models.ExecutionStatus, input, output, errMsg string, start time.Time) {
	row := &models.AgentExecution{
		ID:         uuid.NewString(),
		AgentID:    agentID,
		TenantID:   tenantID,
		Status:     status,
		Input:      input,
		Output:     output,
		Error:      errMsg,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err := p.store.CreateExecution(ctx, row); err != nil {
		log.Warn().Err(err).Str("agent_id", agentID).Msg("Failed to write execution row")
	}
}

// fail runs the logging/notification tail for an aborted execution and
// returns the original error.
func (p *Pipeline) fail(ctx context.Context, tenantID, agentID string, input *models.AgentInput, start time.Time, err error) error {
	trace.SpanFromContext(ctx).RecordError(err)
	log.Error().Err(err).Str("agent_id", agentID).Str("tenant_id", tenantID).
		Msg("Agent execution failed")
	p.logExecution(ctx, tenantID, agentID, models.ExecutionError, marshalInput(input), "", err.Error(), start)
	p.notifier.AgentFailed(ctx, tenantID, agentID, input, err)
	return err
}

func marshalInput(input *models.AgentInput) string {
	if input == nil {
		return ""
	}
	b, err := json.Marshal(input)
	if err != nil {
		return input.Text()
	}
	return string(b)
}
