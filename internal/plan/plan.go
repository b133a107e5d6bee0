// Package plan is the pure plan/usage policy: a lookup table from plan ID
// to numeric limits plus boolean checks. No I/O, no side effects.
package plan

import "github.com/codypharm/zapta-core/pkg/models"

// AllModels marks a plan with an unrestricted model set.
const AllModels = "*"

// Limits are the quota numbers for one plan tier.
type Limits struct {
	Agents    int
	Messages  int
	StorageMB int64
	// Models is either {AllModels} or an explicit allow-list of model IDs.
	Models []string
	// Integrations is the set of integration providers the plan may connect.
	Integrations []string
}

var limitsByPlan = map[models.PlanID]Limits{
	models.PlanFree: {
		Agents:       1,
		Messages:     100,
		StorageMB:    10,
		Models:       []string{"gemini-1.5-flash", "gemini-2.0-flash"},
		Integrations: []string{"email"},
	},
	models.PlanStarter: {
		Agents:       3,
		Messages:     2000,
		StorageMB:    100,
		Models:       []string{"gemini-1.5-flash", "gemini-2.0-flash", "gpt-4o-mini", "claude-3-5-haiku-20241022"},
		Integrations: []string{"email", "calendar", "slack"},
	},
	models.PlanPro: {
		Agents:       10,
		Messages:     10000,
		StorageMB:    1024,
		Models:       []string{AllModels},
		Integrations: []string{"email", "calendar", "slack", "hubspot", "stripe", "notion"},
	},
	models.PlanBusiness: {
		Agents:       25,
		Messages:     50000,
		StorageMB:    5120,
		Models:       []string{AllModels},
		Integrations: []string{"email", "calendar", "slack", "hubspot", "stripe", "notion", "drive", "discord"},
	},
	models.PlanEnterprise: {
		Agents:       100,
		Messages:     500000,
		StorageMB:    20480,
		Models:       []string{AllModels},
		Integrations: []string{"email", "calendar", "slack", "hubspot", "stripe", "notion", "drive", "discord"},
	},
}

// LimitsFor returns the limits for a plan. Unknown plan IDs get the free
// tier's limits rather than an error.
func LimitsFor(plan models.PlanID) Limits {
	if l, ok := limitsByPlan[plan]; ok {
		return l
	}
	return limitsByPlan[models.PlanFree]
}

// CanSendMessage reports whether a tenant with currentCount messages already
// used this period may send one more.
func CanSendMessage(plan models.PlanID, currentCount int) bool {
	return currentCount < LimitsFor(plan).Messages
}

// CanCreateAgent reports whether a tenant with currentCount active agents
// may create another.
func CanCreateAgent(plan models.PlanID, currentCount int) bool {
	return currentCount < LimitsFor(plan).Agents
}

// CanUseModel reports whether the plan permits the given model ID.
func CanUseModel(plan models.PlanID, modelID string) bool {
	for _, m := range LimitsFor(plan).Models {
		if m == AllModels || m == modelID {
			return true
		}
	}
	return false
}

// CanUseIntegration reports whether the plan permits connecting the provider.
func CanUseIntegration(plan models.PlanID, provider string) bool {
	for _, p := range LimitsFor(plan).Integrations {
		if p == provider {
			return true
		}
	}
	return false
}

// AllowedModels returns the plan's model allow-list for error messages.
func AllowedModels(plan models.PlanID) []string {
	return LimitsFor(plan).Models
}
