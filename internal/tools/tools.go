// Package tools builds the fixed catalog of agent tool functions from a
// tenant's integration map. Tools are stateless forwarders: validate input
// against a JSON schema, look up the provider, forward to ExecuteAction.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/codypharm/zapta-core/internal/integrations"
)

// Context carries everything a tool invocation needs. Tools hold no state
// between calls.
type Context struct {
	Integrations map[string]integrations.Client
	TenantID     string
	AgentID      string
}

// Tool is one named, schema-validated function the model may call.
type Tool struct {
	Name        string
	Description string
	Provider    string // integration provider the tool requires
	Schema      string // JSON schema for the params object
	schema      *jsonschema.Schema
	action      string
}

// Invoke validates params against the tool's schema and forwards the call
// to the provider's client.
func (t *Tool) Invoke(ctx context.Context, tc Context, params map[string]any) (any, error) {
	if err := t.validate(params); err != nil {
		return nil, fmt.Errorf("invalid %s params: %w", t.Name, err)
	}
	client, ok := tc.Integrations[t.Provider]
	if !ok {
		return nil, fmt.Errorf("%s integration not connected", t.Provider)
	}
	return client.ExecuteAction(ctx, t.action, params)
}

func (t *Tool) validate(params map[string]any) error {
	if t.schema == nil {
		return nil
	}
	// Round-trip through JSON so numbers normalize the way the validator
	// expects.
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	return t.schema.Validate(decoded)
}

// catalog is the full tool set. Schemas compile once at package init;
// a malformed schema here is a programming error.
var catalog = []Tool{
	{
		Name:        "getRevenue",
		Description: "Get revenue figures for a date range from the connected payment provider.",
		Provider:    "stripe",
		action:      "get_revenue",
		Schema: `{
			"type": "object",
			"properties": {
				"start_date": {"type": "string"},
				"end_date": {"type": "string"}
			},
			"required": ["start_date", "end_date"],
			"additionalProperties": false
		}`,
	},
	{
		Name:        "sendEmail",
		Description: "Send an email through the connected email provider.",
		Provider:    "email",
		action:      "send_email",
		Schema: `{
			"type": "object",
			"properties": {
				"to": {"type": "string"},
				"subject": {"type": "string"},
				"body": {"type": "string"}
			},
			"required": ["to", "subject", "body"],
			"additionalProperties": false
		}`,
	},
	{
		Name:        "createContact",
		Description: "Create a contact in the connected CRM.",
		Provider:    "hubspot",
		action:      "create_contact",
		Schema: `{
			"type": "object",
			"properties": {
				"email": {"type": "string"},
				"name": {"type": "string"},
				"phone": {"type": "string"}
			},
			"required": ["email"],
			"additionalProperties": false
		}`,
	},
	{
		Name:        "checkAvailability",
		Description: "Check open calendar slots on a given date.",
		Provider:    "calendar",
		action:      "check_availability",
		Schema: `{
			"type": "object",
			"properties": {
				"date": {"type": "string"},
				"duration_minutes": {"type": "integer", "minimum": 1}
			},
			"required": ["date"],
			"additionalProperties": false
		}`,
	},
	{
		Name:        "createCalendarEvent",
		Description: "Create a calendar event.",
		Provider:    "calendar",
		action:      "create_event",
		Schema: `{
			"type": "object",
			"properties": {
				"title": {"type": "string"},
				"start": {"type": "string"},
				"end": {"type": "string"},
				"attendees": {"type": "array", "items": {"type": "string"}}
			},
			"required": ["title", "start", "end"],
			"additionalProperties": false
		}`,
	},
	{
		Name:        "searchNotes",
		Description: "Search pages in the connected workspace.",
		Provider:    "notion",
		action:      "search_notes",
		Schema: `{
			"type": "object",
			"properties": {
				"query": {"type": "string"}
			},
			"required": ["query"],
			"additionalProperties": false
		}`,
	},
	{
		Name:        "sendSlackMessage",
		Description: "Post a message to a Slack channel.",
		Provider:    "slack",
		action:      "send_message",
		Schema: `{
			"type": "object",
			"properties": {
				"channel": {"type": "string"},
				"text": {"type": "string"}
			},
			"required": ["channel", "text"],
			"additionalProperties": false
		}`,
	},
}

func init() {
	for i := range catalog {
		name := catalog[i].Name + ".schema.json"
		schema, err := jsonschema.CompileString(name, catalog[i].Schema)
		if err != nil {
			panic(fmt.Sprintf("compile %s: %v", name, err))
		}
		catalog[i].schema = schema
	}
}

// CreateTools returns the tools whose provider is present in the context's
// integration map. An empty map yields no tools.
func CreateTools(tc Context) []Tool {
	var out []Tool
	for _, t := range catalog {
		if _, ok := tc.Integrations[t.Provider]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Find returns the named tool from the catalog regardless of connected
// integrations, for dispatching model tool calls.
func Find(name string) (*Tool, bool) {
	for i := range catalog {
		if catalog[i].Name == name {
			return &catalog[i], true
		}
	}
	return nil, false
}
