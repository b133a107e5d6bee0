package triggers

import (
	"context"
	"errors"
	"testing"

	"github.com/codypharm/zapta-core/internal/integrations"
	"github.com/codypharm/zapta-core/pkg/models"
)

type fakeCRM struct {
	created []map[string]any
	err     error
}

func (f *fakeCRM) Provider() string { return "hubspot" }

func (f *fakeCRM) ExecuteAction(_ context.Context, action string, params map[string]any) (any, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, params)
	return map[string]any{"id": "contact-1"}, nil
}

func TestContactRuleCreatesContact(t *testing.T) {
	crm := &fakeCRM{}
	engine := NewEngine(DefaultRules())
	clients := map[string]integrations.Client{"hubspot": crm}

	actions := engine.Evaluate(context.Background(), clients, Env{
		Input:  "Hi, I'm jane@example.com and I'd like a demo",
		Output: "Thanks! I've noted you as a new contact and our team will reach out.",
	})

	if len(actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(actions))
	}
	if actions[0].Status != models.ActionCompleted {
		t.Errorf("expected completed action, got %s (%s)", actions[0].Status, actions[0].Error)
	}
	if len(crm.created) != 1 {
		t.Fatalf("expected 1 created contact, got %d", len(crm.created))
	}
	if crm.created[0]["email"] != "jane@example.com" {
		t.Errorf("unexpected contact email: %v", crm.created[0]["email"])
	}
}

func TestContactRuleNoMatch(t *testing.T) {
	crm := &fakeCRM{}
	engine := NewEngine(DefaultRules())

	actions := engine.Evaluate(context.Background(), map[string]integrations.Client{"hubspot": crm}, Env{
		Input:  "What are your opening hours?",
		Output: "We're open 9 to 5 on weekdays.",
	})

	if len(actions) != 0 {
		t.Errorf("expected no actions, got %v", actions)
	}
	if len(crm.created) != 0 {
		t.Errorf("no contact should be created, got %d", len(crm.created))
	}
}

func TestContactRuleNoEmailSkips(t *testing.T) {
	crm := &fakeCRM{}
	engine := NewEngine(DefaultRules())

	actions := engine.Evaluate(context.Background(), map[string]integrations.Client{"hubspot": crm}, Env{
		Input:  "Can you add me as a contact?",
		Output: "Sure, I'll create a contact for you.",
	})

	if len(actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(actions))
	}
	if actions[0].Status != models.ActionCompleted {
		t.Errorf("skip should still complete, got %s", actions[0].Status)
	}
	if len(crm.created) != 0 {
		t.Errorf("no contact should be created without an email, got %d", len(crm.created))
	}
}

func TestActionFailureRecordedNotPropagated(t *testing.T) {
	crm := &fakeCRM{err: errors.New("crm down")}
	engine := NewEngine(DefaultRules())

	actions := engine.Evaluate(context.Background(), map[string]integrations.Client{"hubspot": crm}, Env{
		Input:  "Reach me at bob@example.com",
		Output: "I'll save your contact details.",
	})

	if len(actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(actions))
	}
	if actions[0].Status != models.ActionFailed {
		t.Errorf("expected failed action, got %s", actions[0].Status)
	}
	if actions[0].Error != "crm down" {
		t.Errorf("unexpected error detail: %q", actions[0].Error)
	}
}

func TestBadRuleReportsFailedAction(t *testing.T) {
	engine := NewEngine([]Rule{{
		Name:      "broken",
		Condition: `output contains`, // malformed
		Apply: func(context.Context, map[string]integrations.Client, Env) (string, error) {
			return "", nil
		},
	}})

	actions := engine.Evaluate(context.Background(), nil, Env{Output: "anything"})
	if len(actions) != 1 || actions[0].Status != models.ActionFailed {
		t.Fatalf("expected failed action for broken rule, got %v", actions)
	}
}

func TestFindEmail(t *testing.T) {
	if got := FindEmail("contact me at a.b-c@mail.example.org please"); got != "a.b-c@mail.example.org" {
		t.Errorf("FindEmail = %q", got)
	}
	if got := FindEmail("no address here"); got != "" {
		t.Errorf("FindEmail should be empty, got %q", got)
	}
}
