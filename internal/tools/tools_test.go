package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/codypharm/zapta-core/internal/integrations"
)

type recordingClient struct {
	provider   string
	lastAction string
	lastParams map[string]any
	result     any
}

func (c *recordingClient) Provider() string { return c.provider }

func (c *recordingClient) ExecuteAction(_ context.Context, action string, params map[string]any) (any, error) {
	c.lastAction = action
	c.lastParams = params
	return c.result, nil
}

func TestCreateToolsFiltersByConnectedProviders(t *testing.T) {
	tc := Context{
		Integrations: map[string]integrations.Client{
			"stripe": &recordingClient{provider: "stripe"},
			"email":  &recordingClient{provider: "email"},
		},
	}

	tools := CreateTools(tc)
	names := map[string]bool{}
	for _, tool := range tools {
		names[tool.Name] = true
	}
	if !names["getRevenue"] || !names["sendEmail"] {
		t.Errorf("expected stripe and email tools, got %v", names)
	}
	if names["createContact"] || names["sendSlackMessage"] {
		t.Errorf("tools for unconnected providers should be absent, got %v", names)
	}
}

func TestCreateToolsEmptyMap(t *testing.T) {
	if tools := CreateTools(Context{}); len(tools) != 0 {
		t.Errorf("expected no tools without integrations, got %d", len(tools))
	}
}

func TestInvokeForwardsToClient(t *testing.T) {
	client := &recordingClient{provider: "stripe", result: map[string]any{"total": 4200}}
	tc := Context{
		Integrations: map[string]integrations.Client{"stripe": client},
		TenantID:     "t1",
	}

	tool, ok := Find("getRevenue")
	if !ok {
		t.Fatal("getRevenue missing from catalog")
	}
	res, err := tool.Invoke(context.Background(), tc, map[string]any{
		"start_date": "2025-01-01",
		"end_date":   "2025-01-31",
	})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if client.lastAction != "get_revenue" {
		t.Errorf("unexpected action: %q", client.lastAction)
	}
	if res.(map[string]any)["total"] != 4200 {
		t.Errorf("result should pass through unmodified, got %v", res)
	}
}

func TestInvokeRejectsInvalidParams(t *testing.T) {
	tc := Context{
		Integrations: map[string]integrations.Client{"email": &recordingClient{provider: "email"}},
	}
	tool, _ := Find("sendEmail")

	// Missing required fields.
	if _, err := tool.Invoke(context.Background(), tc, map[string]any{"to": "a@b.com"}); err == nil {
		t.Error("expected validation error for missing fields")
	}

	// Unknown extra field.
	_, err := tool.Invoke(context.Background(), tc, map[string]any{
		"to": "a@b.com", "subject": "s", "body": "b", "cc": "x@y.com",
	})
	if err == nil {
		t.Error("expected validation error for additional property")
	}
}

func TestInvokeMissingIntegration(t *testing.T) {
	tool, _ := Find("createContact")

	_, err := tool.Invoke(context.Background(), Context{}, map[string]any{"email": "a@b.com"})
	if err == nil {
		t.Fatal("expected error for unconnected provider")
	}
	if !strings.Contains(err.Error(), "hubspot integration not connected") {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestFindUnknownTool(t *testing.T) {
	if _, ok := Find("launchRocket"); ok {
		t.Error("unknown tool should not be found")
	}
}
