package executor

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/codypharm/zapta-core/internal/tools"
	"github.com/codypharm/zapta-core/pkg/models"
)

// toneDirectives are the four supported tones. Unknown tones fall back to
// professional.
var toneDirectives = map[string]string{
	"professional": "Maintain a professional, courteous tone.",
	"friendly":     "Be warm, friendly, and approachable.",
	"casual":       "Keep it relaxed and conversational.",
	"formal":       "Use precise, formal language at all times.",
}

const guidelineFooter = `Guidelines:
- Answer using the business context and knowledge provided when relevant.
- If you do not know something, say so rather than inventing an answer.
- Keep responses concise and directly useful to the person you are helping.`

// promptContext carries the optional sections of the system prompt.
type promptContext struct {
	TenantName    string
	AgentType     models.AgentType
	MessageCount  int
	KnowledgeDocs int
	RAGContext    string
}

// buildSystemPrompt assembles the system prompt: identity line, raw
// instructions, tone directive, optional structured context, optional
// knowledge section, guideline footer, and — when tools are present — the
// tool-calling protocol block.
func buildSystemPrompt(agent *models.Agent, pc promptContext, toolset []tools.Tool) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s, an AI assistant.", agent.Name)

	if agent.Config.Instructions != "" {
		b.WriteString("\n\n")
		b.WriteString(agent.Config.Instructions)
	}

	tone := agent.Config.Tone
	directive, ok := toneDirectives[tone]
	if !ok {
		directive = toneDirectives["professional"]
	}
	b.WriteString("\n\n")
	b.WriteString(directive)

	if pc.TenantName != "" {
		b.WriteString("\n\nContext:")
		fmt.Fprintf(&b, "\n- Business: %s", pc.TenantName)
		fmt.Fprintf(&b, "\n- Assistant type: %s", pc.AgentType)
		fmt.Fprintf(&b, "\n- Conversation history: %d messages", pc.MessageCount)
		fmt.Fprintf(&b, "\n- Knowledge documents available: %d", pc.KnowledgeDocs)
	}

	if pc.RAGContext != "" {
		b.WriteString("\n\nRelevant knowledge:\n")
		b.WriteString(pc.RAGContext)
	}

	b.WriteString("\n\n")
	b.WriteString(guidelineFooter)

	if len(toolset) > 0 {
		b.WriteString("\n\nAvailable tools:\n")
		for _, t := range toolset {
			fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
		}
		b.WriteString("\nTo use a tool, respond with only a JSON block: " +
			`{"tool_calls": [{"name": "tool_name", "arguments": {...}}]}`)
	}

	return b.String()
}

// formatUserContent renders the channel-specific user message.
func formatUserContent(input *models.AgentInput) string {
	switch input.Type {
	case models.InputEmail:
		var b strings.Builder
		fmt.Fprintf(&b, "From: %s\n", input.From)
		fmt.Fprintf(&b, "To: %s\n", strings.Join(input.To, ", "))
		fmt.Fprintf(&b, "Subject: %s\n", input.Subject)
		if len(input.Attachments) > 0 {
			names := make([]string, len(input.Attachments))
			for i, a := range input.Attachments {
				names[i] = a.FileName
			}
			fmt.Fprintf(&b, "Attachments: %s\n", strings.Join(names, ", "))
		}
		fmt.Fprintf(&b, "\n%s", input.Body)
		return b.String()

	case models.InputWebhook:
		payload := "{}"
		if len(input.Payload) > 0 {
			if pretty, err := json.MarshalIndent(json.RawMessage(input.Payload), "", "  "); err == nil {
				payload = string(pretty)
			} else {
				payload = string(input.Payload)
			}
		}
		return fmt.Sprintf("Incoming webhook payload:\n```json\n%s\n```", payload)

	case models.InputSlack, models.InputSMS:
		var b strings.Builder
		if input.Channel != "" {
			fmt.Fprintf(&b, "Channel: %s\n", input.Channel)
		}
		if input.From != "" {
			fmt.Fprintf(&b, "User: %s\n", input.From)
		}
		fmt.Fprintf(&b, "Message: %s", input.Text())
		return b.String()

	default:
		return input.Text()
	}
}
