// Package triggers runs legacy response-content heuristics after a
// customer assistant reply. Rules are expression conditions over the
// exchanged text; matching rules fire best-effort provider actions that
// never abort the pipeline.
package triggers

import (
	"context"
	"regexp"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rs/zerolog/log"

	"github.com/codypharm/zapta-core/internal/integrations"
	"github.com/codypharm/zapta-core/pkg/models"
)

// Env is what rule conditions evaluate against.
type Env struct {
	Input  string `expr:"input"`
	Output string `expr:"output"`
}

// Action fires when its rule's condition matched. clients is the agent's
// integration map; returns detail text for the action record.
type Action func(ctx context.Context, clients map[string]integrations.Client, env Env) (string, error)

// Rule pairs a boolean expression with a best-effort action.
type Rule struct {
	Name      string
	Condition string
	Target    string // provider the action talks to, for the record
	Apply     Action
}

// Engine evaluates a compiled ruleset.
type Engine struct {
	rules    []Rule
	programs []*vm.Program
}

// NewEngine compiles the rules. A rule that fails to compile stays in the
// set and reports a failed action on every evaluation.
func NewEngine(rules []Rule) *Engine {
	e := &Engine{rules: rules, programs: make([]*vm.Program, len(rules))}
	for i, r := range rules {
		program, err := expr.Compile(r.Condition, expr.Env(Env{}), expr.AsBool())
		if err != nil {
			log.Error().Err(err).Str("rule", r.Name).Msg("Trigger rule failed to compile")
			continue
		}
		e.programs[i] = program
	}
	return e
}

// Evaluate runs every rule against the exchange and returns one action
// record per rule that matched or errored. Failures are recorded, never
// returned.
func (e *Engine) Evaluate(ctx context.Context, clients map[string]integrations.Client, env Env) []models.AgentAction {
	var actions []models.AgentAction
	for i, r := range e.rules {
		if e.programs[i] == nil {
			actions = append(actions, models.AgentAction{
				Type:   r.Name,
				Status: models.ActionFailed,
				Target: r.Target,
				Error:  "rule failed to compile",
			})
			continue
		}
		out, err := expr.Run(e.programs[i], env)
		if err != nil {
			actions = append(actions, models.AgentAction{
				Type:   r.Name,
				Status: models.ActionFailed,
				Target: r.Target,
				Error:  err.Error(),
			})
			continue
		}
		matched, _ := out.(bool)
		if !matched {
			continue
		}

		detail, err := r.Apply(ctx, clients, env)
		if err != nil {
			log.Warn().Err(err).Str("rule", r.Name).Msg("Trigger action failed")
			actions = append(actions, models.AgentAction{
				Type:   r.Name,
				Status: models.ActionFailed,
				Target: r.Target,
				Error:  err.Error(),
			})
			continue
		}
		actions = append(actions, models.AgentAction{
			Type:   r.Name,
			Status: models.ActionCompleted,
			Target: r.Target,
			Detail: detail,
		})
	}
	return actions
}

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

// FindEmail extracts the first email address in text, or "".
func FindEmail(text string) string {
	return emailPattern.FindString(text)
}

// DefaultRules is the shipped ruleset: when the assistant's reply talks
// about a contact and the visitor left an email address, try to create a
// CRM contact.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:      "create_contact",
			Condition: `output contains "contact"`,
			Target:    "hubspot",
			Apply: func(ctx context.Context, clients map[string]integrations.Client, env Env) (string, error) {
				email := FindEmail(env.Input)
				if email == "" {
					return "no email address in input, skipped", nil
				}
				client, ok := clients["hubspot"]
				if !ok {
					return "hubspot not connected, skipped", nil
				}
				if _, err := client.ExecuteAction(ctx, "create_contact", map[string]any{"email": email}); err != nil {
					return "", err
				}
				return "created contact " + email, nil
			},
		},
	}
}
