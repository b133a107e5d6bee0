package executor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/codypharm/zapta-core/internal/embeddings"
	"github.com/codypharm/zapta-core/internal/integrations"
	"github.com/codypharm/zapta-core/internal/knowledge"
	"github.com/codypharm/zapta-core/internal/llm"
	"github.com/codypharm/zapta-core/internal/notify"
	"github.com/codypharm/zapta-core/internal/store"
	"github.com/codypharm/zapta-core/internal/triggers"
	"github.com/codypharm/zapta-core/internal/usage"
	"github.com/codypharm/zapta-core/pkg/metrics"
	"github.com/codypharm/zapta-core/pkg/models"
)

// scriptedProvider replays canned responses and records every request.
type scriptedProvider struct {
	family    llm.Family
	responses []string
	err       error
	calls     int
	systems   []string
}

func (p *scriptedProvider) Family() llm.Family { return p.family }

func (p *scriptedProvider) Complete(_ context.Context, req *llm.Request) (*llm.Response, error) {
	p.calls++
	p.systems = append(p.systems, req.System)
	if p.err != nil {
		return nil, p.err
	}
	idx := p.calls - 1
	if idx >= len(p.responses) {
		idx = len(p.responses) - 1
	}
	return &llm.Response{Content: p.responses[idx], Model: req.Model}, nil
}

// stubEmbedder returns a fixed vector or a fixed error.
type stubEmbedder struct {
	vec []float64
	err error
}

func (d *stubEmbedder) Kind() string    { return "gemini" }
func (d *stubEmbedder) ModelID() string { return "text-embedding-004" }
func (d *stubEmbedder) Dimensions() int { return len(d.vec) }

func (d *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	if d.err != nil {
		return nil, d.err
	}
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = d.vec
	}
	return out, nil
}

// recordingClient captures integration action calls.
type recordingClient struct {
	provider string
	actions  []string
	params   []map[string]any
}

func (c *recordingClient) Provider() string { return c.provider }

func (c *recordingClient) ExecuteAction(_ context.Context, action string, params map[string]any) (any, error) {
	c.actions = append(c.actions, action)
	c.params = append(c.params, params)
	return map[string]any{"ok": true}, nil
}

type env struct {
	store    *store.MemoryStore
	pipeline *Pipeline
	provider *scriptedProvider
	embedder *stubEmbedder
	clients  map[string]*recordingClient
}

func newTestEnv(t *testing.T, responses ...string) *env {
	t.Helper()

	ms := store.NewMemoryStore()
	provider := &scriptedProvider{family: llm.FamilyGemini, responses: responses}
	embedder := &stubEmbedder{vec: []float64{1, 0, 0}}

	reg := integrations.NewRegistry(ms)
	clients := make(map[string]*recordingClient)
	for _, name := range []string{"stripe", "hubspot", "email"} {
		name := name
		clients[name] = &recordingClient{provider: name}
		reg.Register(name, func(models.IntegrationRecord) (integrations.Client, error) {
			return clients[name], nil
		})
	}

	pipeline := NewPipeline(
		ms,
		usage.NewLedger(ms),
		knowledge.NewService(ms, embeddings.NewChain(embedder), knowledge.DefaultMaxChunkSize),
		llm.NewRegistry(provider),
		reg,
		triggers.NewEngine(triggers.DefaultRules()),
		notify.NewService(ms),
	)

	return &env{store: ms, pipeline: pipeline, provider: provider, embedder: embedder, clients: clients}
}

func (e *env) seedAgent(t *testing.T, agentType models.AgentType, cfg models.AgentConfig, usedMessages int) *models.Agent {
	t.Helper()
	ctx := context.Background()
	if err := e.store.CreateTenant(ctx, &models.Tenant{
		ID:            "t1",
		Name:          "Acme Bakery",
		Plan:          models.PlanFree,
		UsageMessages: usedMessages,
	}); err != nil {
		t.Fatalf("seed tenant: %v", err)
	}
	agent := &models.Agent{
		ID:       "a1",
		TenantID: "t1",
		Name:     "Baker Bot",
		Type:     agentType,
		Status:   models.AgentActive,
		Config:   cfg,
	}
	if err := e.store.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("seed agent: %v", err)
	}
	return agent
}

func chatInput(msg string) *models.AgentInput {
	return &models.AgentInput{Type: models.InputChat, Message: msg}
}

func TestQuotaGateBlocksBeforeModelCall(t *testing.T) {
	e := newTestEnv(t, "should not be reached")
	e.seedAgent(t, models.AgentCustomerAssistant, models.AgentConfig{}, 100)

	_, err := e.pipeline.Execute(context.Background(), "a1", chatInput("hello"))

	var perr *PolicyError
	if !errors.As(err, &perr) || perr.Code != CodeMessageLimit {
		t.Fatalf("expected message-limit policy error, got %v", err)
	}
	if !strings.Contains(perr.Message, "Message limit reached (100/100)") {
		t.Errorf("message = %q", perr.Message)
	}
	if e.provider.calls != 0 {
		t.Errorf("model was called %d times, want 0", e.provider.calls)
	}

	tenant, _ := e.store.GetTenant(context.Background(), "t1")
	if tenant.UsageMessages != 100 {
		t.Errorf("usage counter moved to %d on a refused message", tenant.UsageMessages)
	}

	execs := e.store.Executions()
	if len(execs) != 1 || execs[0].Status != models.ExecutionError {
		t.Fatalf("expected one error execution row, got %+v", execs)
	}
}

func TestModelNotAllowedOnPlan(t *testing.T) {
	e := newTestEnv(t, "should not be reached")
	e.seedAgent(t, models.AgentCustomerAssistant, models.AgentConfig{Model: "gpt-5"}, 0)

	_, err := e.pipeline.Execute(context.Background(), "a1", chatInput("hello"))

	var perr *PolicyError
	if !errors.As(err, &perr) || perr.Code != CodeModelNotAllowed {
		t.Fatalf("expected model-not-allowed policy error, got %v", err)
	}
	if !strings.Contains(perr.Message, "gpt-5") || !strings.Contains(perr.Message, "gemini-2.0-flash") {
		t.Errorf("message should name the model and the allow-list: %q", perr.Message)
	}
	if e.provider.calls != 0 {
		t.Errorf("model was called despite the policy refusal")
	}
}

func TestAgentNotFound(t *testing.T) {
	e := newTestEnv(t, "unused")

	_, err := e.pipeline.Execute(context.Background(), "ghost", chatInput("hello"))

	var perr *PolicyError
	if !errors.As(err, &perr) || perr.Code != CodeAgentNotFound {
		t.Fatalf("expected agent-not-found policy error, got %v", err)
	}
}

func TestChatBilledExactlyOnce(t *testing.T) {
	e := newTestEnv(t, "hi there")
	e.seedAgent(t, models.AgentCustomerAssistant, models.AgentConfig{}, 0)

	out, err := e.pipeline.Execute(context.Background(), "a1", chatInput("hello"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.Message != "hi there" {
		t.Errorf("message = %q", out.Message)
	}

	tenant, _ := e.store.GetTenant(context.Background(), "t1")
	if tenant.UsageMessages != 1 {
		t.Errorf("usage counter = %d, want 1", tenant.UsageMessages)
	}
}

func TestNonChatInputSkipsPolicyGate(t *testing.T) {
	e := newTestEnv(t, "handled")
	e.seedAgent(t, models.AgentCustomerAssistant, models.AgentConfig{}, 100) // quota exhausted

	out, err := e.pipeline.Execute(context.Background(), "a1", &models.AgentInput{
		Type:    models.InputEmail,
		From:    "customer@example.com",
		Subject: "Order question",
		Body:    "Where is my order?",
	})
	if err != nil {
		t.Fatalf("email input should bypass the chat policy gate: %v", err)
	}
	if out.Message != "handled" {
		t.Errorf("message = %q", out.Message)
	}

	tenant, _ := e.store.GetTenant(context.Background(), "t1")
	if tenant.UsageMessages != 100 {
		t.Errorf("non-chat input was billed: counter = %d", tenant.UsageMessages)
	}
}

func TestRetrievalFailureDegradesToNoContext(t *testing.T) {
	e := newTestEnv(t, "answered anyway")
	e.embedder.err = errors.New("embedding provider down")
	e.seedAgent(t, models.AgentCustomerAssistant, models.AgentConfig{}, 0)

	out, err := e.pipeline.Execute(context.Background(), "a1", chatInput("what are your hours?"))
	if err != nil {
		t.Fatalf("retrieval failure must not fail the request: %v", err)
	}
	if out.Message != "answered anyway" {
		t.Errorf("message = %q", out.Message)
	}
	if len(out.Sources) != 0 {
		t.Errorf("sources = %v, want none", out.Sources)
	}
}

func TestRetrievalPopulatesSourcesAndPrompt(t *testing.T) {
	e := newTestEnv(t, "we open at 9am")
	e.seedAgent(t, models.AgentCustomerAssistant, models.AgentConfig{}, 0)

	ctx := context.Background()
	e.store.InsertChunks(ctx, []models.DocumentChunk{{
		ID:             "c1",
		TenantID:       "t1",
		Name:           "hours.txt",
		Content:        "We are open 9am to 5pm on weekdays.",
		Embedding:      []float64{1, 0, 0},
		EmbeddingModel: "text-embedding-004",
		Metadata:       models.ChunkMetadata{OriginalFileName: "hours.txt", TotalChunks: 1},
	}})

	out, err := e.pipeline.Execute(ctx, "a1", chatInput("what are your hours?"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(out.Sources) != 1 || out.Sources[0] != "hours.txt" {
		t.Errorf("sources = %v", out.Sources)
	}
	if !strings.Contains(e.provider.systems[0], "[Document: hours.txt]") {
		t.Errorf("system prompt missing knowledge section:\n%s", e.provider.systems[0])
	}

	// Context usage is tracked per document.
	used := 0
	for _, ev := range e.store.AnalyticsEvents() {
		if ev.Kind == models.AnalyticsContextUsed {
			used++
		}
	}
	if used != 1 {
		t.Errorf("context-used events = %d, want 1", used)
	}
}

func TestContextUsageRecordedPerDocument(t *testing.T) {
	e := newTestEnv(t, "we open at 9am")
	e.seedAgent(t, models.AgentCustomerAssistant, models.AgentConfig{}, 0)

	ctx := context.Background()
	// Two chunks of the same file, both close enough to match.
	e.store.InsertChunks(ctx, []models.DocumentChunk{
		{
			ID: "c1", TenantID: "t1", Name: "hours.txt (Part 1)",
			Content: "We are open 9am to 5pm on weekdays.", Embedding: []float64{1, 0, 0},
			EmbeddingModel: "text-embedding-004",
			Metadata:       models.ChunkMetadata{OriginalFileName: "hours.txt", TotalChunks: 2},
		},
		{
			ID: "c2", TenantID: "t1", Name: "hours.txt (Part 2)",
			Content: "We are closed on public holidays.", Embedding: []float64{0.99, 0.1, 0},
			EmbeddingModel: "text-embedding-004",
			Metadata:       models.ChunkMetadata{OriginalFileName: "hours.txt", TotalChunks: 2, ChunkIndex: 1},
		},
	})

	out, err := e.pipeline.Execute(ctx, "a1", chatInput("what are your hours?"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(out.Sources) != 1 || out.Sources[0] != "hours.txt" {
		t.Errorf("sources = %v, want one deduplicated document", out.Sources)
	}

	used := 0
	for _, ev := range e.store.AnalyticsEvents() {
		if ev.Kind == models.AnalyticsContextUsed {
			used++
		}
	}
	if used != 1 {
		t.Errorf("context-used events = %d, want 1 per document", used)
	}
}

func TestPipelineMetricsRecorded(t *testing.T) {
	ctx := context.Background()
	quotaBefore := testutil.ToFloat64(metrics.QuotaRejections.WithLabelValues(string(CodeMessageLimit)))
	toolBefore := testutil.ToFloat64(metrics.ToolCalls.WithLabelValues("getRevenue", string(models.ActionCompleted)))

	e := newTestEnv(t, "should not be reached")
	e.seedAgent(t, models.AgentCustomerAssistant, models.AgentConfig{}, 100)
	if _, err := e.pipeline.Execute(ctx, "a1", chatInput("hello")); err == nil {
		t.Fatal("expected quota refusal")
	}
	quotaDelta := testutil.ToFloat64(metrics.QuotaRejections.WithLabelValues(string(CodeMessageLimit))) - quotaBefore
	if quotaDelta != 1 {
		t.Errorf("quota rejection counter moved by %v, want 1", quotaDelta)
	}

	e2 := newTestEnv(t,
		`{"tool_calls": [{"name": "getRevenue", "arguments": {"start_date": "2026-01-01", "end_date": "2026-01-31"}}]}`,
		"Revenue for January was $12,000.")
	e2.seedAgent(t, models.AgentBusinessAssistant, models.AgentConfig{}, 0)
	e2.store.CreateIntegration(ctx, &models.IntegrationRecord{TenantID: "t1", Provider: "stripe", Active: true})
	if _, err := e2.pipeline.Execute(ctx, "a1", chatInput("revenue?")); err != nil {
		t.Fatalf("execute: %v", err)
	}
	toolDelta := testutil.ToFloat64(metrics.ToolCalls.WithLabelValues("getRevenue", string(models.ActionCompleted))) - toolBefore
	if toolDelta != 1 {
		t.Errorf("tool call counter moved by %v, want 1", toolDelta)
	}
	if testutil.CollectAndCount(metrics.GenerationDuration) == 0 {
		t.Error("generation latency histogram recorded nothing")
	}
}

func TestToolsOnlyForBusinessAssistants(t *testing.T) {
	ctx := context.Background()

	e := newTestEnv(t, "plain answer")
	e.seedAgent(t, models.AgentCustomerAssistant, models.AgentConfig{}, 0)
	e.store.CreateIntegration(ctx, &models.IntegrationRecord{TenantID: "t1", Provider: "stripe", Active: true})

	if _, err := e.pipeline.Execute(ctx, "a1", chatInput("revenue?")); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if strings.Contains(e.provider.systems[0], "Available tools") {
		t.Error("customer assistant was offered tools")
	}

	e2 := newTestEnv(t,
		`{"tool_calls": [{"name": "getRevenue", "arguments": {"start_date": "2026-01-01", "end_date": "2026-01-31"}}]}`,
		"Revenue for January was $12,000.")
	e2.seedAgent(t, models.AgentBusinessAssistant, models.AgentConfig{}, 0)
	e2.store.CreateIntegration(ctx, &models.IntegrationRecord{TenantID: "t1", Provider: "stripe", Active: true})

	out, err := e2.pipeline.Execute(ctx, "a1", chatInput("how much revenue last month?"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(e2.provider.systems[0], "getRevenue") {
		t.Errorf("system prompt missing tool listing:\n%s", e2.provider.systems[0])
	}
	if out.Message != "Revenue for January was $12,000." {
		t.Errorf("message = %q", out.Message)
	}
	if len(out.Actions) != 1 || out.Actions[0].Target != "getRevenue" || out.Actions[0].Status != models.ActionCompleted {
		t.Fatalf("actions = %+v", out.Actions)
	}
	if got := e2.clients["stripe"].actions; len(got) != 1 || got[0] != "get_revenue" {
		t.Errorf("stripe actions = %v", got)
	}

	// One row for the tool batch plus one for the top-level execution.
	if execs := e2.store.Executions(); len(execs) != 2 {
		t.Errorf("execution rows = %d, want 2", len(execs))
	}
}

func TestToolLoopStopsAtStepBound(t *testing.T) {
	ctx := context.Background()
	loop := `{"tool_calls": [{"name": "getRevenue", "arguments": {"start_date": "2026-01-01", "end_date": "2026-01-31"}}]}`

	e := newTestEnv(t, loop)
	e.seedAgent(t, models.AgentBusinessAssistant, models.AgentConfig{}, 0)
	e.store.CreateIntegration(ctx, &models.IntegrationRecord{TenantID: "t1", Provider: "stripe", Active: true})

	out, err := e.pipeline.Execute(ctx, "a1", chatInput("revenue?"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(out.Actions) != MaxToolSteps {
		t.Errorf("tool batches = %d, want %d", len(out.Actions), MaxToolSteps)
	}
	if e.provider.calls != MaxToolSteps+1 {
		t.Errorf("model calls = %d, want %d", e.provider.calls, MaxToolSteps+1)
	}
}

func TestInvalidToolArgumentsBecomeFailedAction(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t,
		`{"tool_calls": [{"name": "getRevenue", "arguments": {"start_date": "2026-01-01"}}]}`,
		"Sorry, I could not fetch that.")
	e.seedAgent(t, models.AgentBusinessAssistant, models.AgentConfig{}, 0)
	e.store.CreateIntegration(ctx, &models.IntegrationRecord{TenantID: "t1", Provider: "stripe", Active: true})

	out, err := e.pipeline.Execute(ctx, "a1", chatInput("revenue?"))
	if err != nil {
		t.Fatalf("a failed tool call must not fail the request: %v", err)
	}
	if len(out.Actions) != 1 || out.Actions[0].Status != models.ActionFailed {
		t.Fatalf("actions = %+v", out.Actions)
	}
	if got := e.clients["stripe"].actions; len(got) != 0 {
		t.Errorf("integration was called with invalid arguments: %v", got)
	}
}

func TestTriggersCreateContactForCustomerAssistant(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t, "Thanks! I've noted your details and our team will contact you shortly.")
	e.seedAgent(t, models.AgentCustomerAssistant, models.AgentConfig{}, 0)
	e.store.CreateIntegration(ctx, &models.IntegrationRecord{TenantID: "t1", Provider: "hubspot", Active: true})

	out, err := e.pipeline.Execute(ctx, "a1", chatInput("Please reach out to me at jane@example.com"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(out.Actions) != 1 || out.Actions[0].Status != models.ActionCompleted {
		t.Fatalf("actions = %+v", out.Actions)
	}
	if got := e.clients["hubspot"].actions; len(got) != 1 || got[0] != "create_contact" {
		t.Errorf("hubspot actions = %v", got)
	}
}

func TestGenerationFailureIsLoggedAndRethrown(t *testing.T) {
	e := newTestEnv(t)
	e.provider.err = errors.New("model unavailable")
	e.seedAgent(t, models.AgentCustomerAssistant, models.AgentConfig{}, 0)

	_, err := e.pipeline.Execute(context.Background(), "a1", chatInput("hello"))
	if err == nil || !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected the generation error back, got %v", err)
	}

	execs := e.store.Executions()
	if len(execs) != 1 || execs[0].Status != models.ExecutionError {
		t.Fatalf("expected one error execution row, got %+v", execs)
	}
	if !strings.Contains(execs[0].Error, "model unavailable") {
		t.Errorf("row error = %q", execs[0].Error)
	}
}

func TestHistoryFlowsIntoTranscript(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t, "as I said, 9am")
	e.seedAgent(t, models.AgentCustomerAssistant, models.AgentConfig{}, 0)
	e.store.CreateConversation(ctx, &models.Conversation{
		ID:       "conv1",
		AgentID:  "a1",
		TenantID: "t1",
		Messages: []models.Message{
			{Role: "user", Content: "when do you open?"},
			{Role: "assistant", Content: "we open at 9am"},
		},
	})

	if _, err := e.pipeline.Execute(ctx, "a1", chatInput("and on Sundays?")); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(e.provider.systems[0], "Conversation history: 2 messages") {
		t.Errorf("prompt context missing message count:\n%s", e.provider.systems[0])
	}
}

func TestParseToolCalls(t *testing.T) {
	calls := parseToolCalls(`{"tool_calls": [{"name": "sendEmail", "arguments": {"to": "x@y.z"}}]}`)
	if len(calls) != 1 || calls[0].Name != "sendEmail" || calls[0].ID != "call_0" {
		t.Errorf("wrapper parse = %+v", calls)
	}

	calls = parseToolCalls(`[{"name": "a", "arguments": {}}, {"name": "b", "arguments": {}}]`)
	if len(calls) != 2 || calls[1].ID != "call_1" {
		t.Errorf("array parse = %+v", calls)
	}

	if calls := parseToolCalls("just a plain sentence"); calls != nil {
		t.Errorf("plain text parsed as tool calls: %+v", calls)
	}
	if calls := parseToolCalls(""); calls != nil {
		t.Errorf("empty content parsed as tool calls: %+v", calls)
	}
}
