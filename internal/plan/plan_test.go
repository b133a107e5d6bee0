package plan_test

import (
	"testing"

	"github.com/codypharm/zapta-core/internal/plan"
	"github.com/codypharm/zapta-core/pkg/models"
)

func TestCanSendMessage_Boundary(t *testing.T) {
	plans := []models.PlanID{
		models.PlanFree, models.PlanStarter, models.PlanPro,
		models.PlanBusiness, models.PlanEnterprise,
	}
	for _, p := range plans {
		limit := plan.LimitsFor(p).Messages
		if !plan.CanSendMessage(p, limit-1) {
			t.Errorf("CanSendMessage(%s, limit-1) = false, want true", p)
		}
		if plan.CanSendMessage(p, limit) {
			t.Errorf("CanSendMessage(%s, limit) = true, want false", p)
		}
	}
}

func TestCanCreateAgent_Boundary(t *testing.T) {
	limit := plan.LimitsFor(models.PlanFree).Agents
	if !plan.CanCreateAgent(models.PlanFree, limit-1) {
		t.Error("CanCreateAgent(free, limit-1) = false, want true")
	}
	if plan.CanCreateAgent(models.PlanFree, limit) {
		t.Error("CanCreateAgent(free, limit) = true, want false")
	}
}

func TestUnknownPlan_DefaultsToFree(t *testing.T) {
	got := plan.LimitsFor("platinum-legacy")
	want := plan.LimitsFor(models.PlanFree)
	if got.Messages != want.Messages || got.Agents != want.Agents {
		t.Errorf("LimitsFor(unknown) = %+v, want free limits %+v", got, want)
	}
}

func TestCanUseModel(t *testing.T) {
	tests := []struct {
		plan  models.PlanID
		model string
		want  bool
	}{
		{models.PlanFree, "gemini-2.0-flash", true},
		{models.PlanFree, "gpt-5", false},
		{models.PlanFree, "claude-3-opus-20240229", false},
		{models.PlanStarter, "gpt-4o-mini", true},
		{models.PlanStarter, "gpt-4o", false},
		{models.PlanPro, "gpt-5", true},
		{models.PlanEnterprise, "anything-at-all", true},
	}
	for _, tt := range tests {
		if got := plan.CanUseModel(tt.plan, tt.model); got != tt.want {
			t.Errorf("CanUseModel(%s, %s) = %v, want %v", tt.plan, tt.model, got, tt.want)
		}
	}
}

func TestCanUseIntegration(t *testing.T) {
	if !plan.CanUseIntegration(models.PlanFree, "email") {
		t.Error("free plan should allow email integration")
	}
	if plan.CanUseIntegration(models.PlanFree, "stripe") {
		t.Error("free plan should not allow stripe integration")
	}
	if !plan.CanUseIntegration(models.PlanBusiness, "discord") {
		t.Error("business plan should allow discord integration")
	}
}
