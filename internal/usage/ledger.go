// Package usage implements the tenant usage ledger: subscription validity,
// message/agent/storage quota checks, and the billed-message counter with
// its period rollover. Quota and validity outcomes are structured results,
// never errors; the only error surfaced is "tenant not found" (and storage
// I/O failures), so callers can render user-facing messages.
package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/codypharm/zapta-core/internal/plan"
	"github.com/codypharm/zapta-core/internal/store"
	"github.com/codypharm/zapta-core/pkg/models"
	"github.com/rs/zerolog/log"
)

// GracePeriod is the window past a paid subscription's period end during
// which access remains valid despite apparent expiry. Billing webhooks can
// lag the provider by hours; without this, every renewal would bounce
// requests until the webhook lands.
const GracePeriod = 24 * time.Hour

// SubscriptionCheck is the outcome of ValidateSubscription.
type SubscriptionCheck struct {
	Valid bool
	// Status carries the reason when invalid: canceled, past_due,
	// incomplete, or expired.
	Status string
	// Plan is the effective plan after the check (subscription row wins
	// over the tenant's cached plan).
	Plan models.PlanID
}

// QuotaCheck is the outcome of a countable-limit check.
type QuotaCheck struct {
	Allowed bool
	Current int
	Limit   int
	Plan    models.PlanID
}

// StorageCheck is the outcome of a storage-quota check, in bytes.
type StorageCheck struct {
	Allowed      bool
	CurrentBytes int64
	LimitBytes   int64
	Plan         models.PlanID
}

// Ledger reads and writes tenant usage counters.
type Ledger struct {
	store store.Store
}

// NewLedger creates a usage ledger over the given store.
func NewLedger(s store.Store) *Ledger {
	return &Ledger{store: s}
}

// EffectivePlan resolves the tenant's plan: the most recent subscription
// row wins; the tenant's denormalized plan field is the fallback cache.
func (l *Ledger) EffectivePlan(ctx context.Context, tenant *models.Tenant) models.PlanID {
	sub, err := l.store.LatestSubscription(ctx, tenant.ID)
	if err == nil && sub.Plan != "" {
		return sub.Plan
	}
	if tenant.Plan != "" {
		return tenant.Plan
	}
	return models.PlanFree
}

// ValidateSubscription checks whether the tenant's subscription permits
// usage. Free-plan tenants are always valid. A paid tenant with no
// subscription row is downgraded to free and reported valid.
func (l *Ledger) ValidateSubscription(ctx context.Context, tenantID string) (*SubscriptionCheck, error) {
	tenant, err := l.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if tenant.Plan == "" || tenant.Plan == models.PlanFree {
		return &SubscriptionCheck{Valid: true, Plan: models.PlanFree}, nil
	}

	sub, err := l.store.LatestSubscription(ctx, tenantID)
	if err != nil {
		if store.IsNotFound(err) {
			// Paid plan cached on the tenant but no billing record backing
			// it: reconcile by downgrading rather than locking the tenant out.
			if derr := l.store.UpdateTenantPlan(ctx, tenantID, models.PlanFree); derr != nil {
				log.Warn().Err(derr).Str("tenant", tenantID).Msg("Failed to downgrade tenant to free")
			}
			return &SubscriptionCheck{Valid: true, Plan: models.PlanFree}, nil
		}
		return nil, err
	}

	switch sub.Status {
	case models.SubscriptionCanceled, models.SubscriptionPastDue, models.SubscriptionIncomplete:
		return &SubscriptionCheck{Valid: false, Status: string(sub.Status), Plan: sub.Plan}, nil
	}

	now := time.Now().UTC()
	if now.After(sub.CurrentPeriodEnd) {
		if sub.CancelAtPeriodEnd {
			return &SubscriptionCheck{Valid: false, Status: "expired", Plan: sub.Plan}, nil
		}
		if now.Sub(sub.CurrentPeriodEnd) > GracePeriod {
			return &SubscriptionCheck{Valid: false, Status: "expired", Plan: sub.Plan}, nil
		}
		log.Debug().Str("tenant", tenantID).Time("period_end", sub.CurrentPeriodEnd).
			Msg("Subscription past period end, within grace window")
	}

	return &SubscriptionCheck{Valid: true, Plan: sub.Plan}, nil
}

// CheckMessageLimit reports whether the tenant may send one more billable
// message this period. A lapsed reset boundary means the period rolled
// over without a billable message firing the stored reset, so the counter
// counts against a finished period and reads as zero here; the actual
// reset still happens inside BumpMessageUsage.
func (l *Ledger) CheckMessageLimit(ctx context.Context, tenantID string) (*QuotaCheck, error) {
	tenant, err := l.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	planID := l.EffectivePlan(ctx, tenant)
	limit := plan.LimitsFor(planID).Messages

	current := tenant.UsageMessages
	if !tenant.UsageResetAt.IsZero() && !time.Now().UTC().Before(tenant.UsageResetAt) {
		current = 0
	}
	return &QuotaCheck{
		Allowed: plan.CanSendMessage(planID, current),
		Current: current,
		Limit:   limit,
		Plan:    planID,
	}, nil
}

// IncrementMessageUsage advances the billed-message counter by one,
// resetting it first when the period boundary has been reached. The
// reset-or-increment decision is made atomically inside the store, so
// concurrent executions for one tenant cannot lose counts. The boundary is
// the billing period end for paid plans and the first of the next calendar
// month for free plans; a reset fires when now >= the stored boundary.
func (l *Ledger) IncrementMessageUsage(ctx context.Context, tenantID string) (int, error) {
	tenant, err := l.store.GetTenant(ctx, tenantID)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	next := l.nextResetBoundary(ctx, tenant, now)

	count, err := l.store.BumpMessageUsage(ctx, tenantID, now, next)
	if err != nil {
		return 0, fmt.Errorf("increment message usage: %w", err)
	}
	return count, nil
}

// nextResetBoundary computes where the usage counter resets next: the
// subscription's current_period_end when a future one exists, otherwise
// the first of the next calendar month.
func (l *Ledger) nextResetBoundary(ctx context.Context, tenant *models.Tenant, now time.Time) time.Time {
	planID := l.EffectivePlan(ctx, tenant)
	if planID != models.PlanFree {
		sub, err := l.store.LatestSubscription(ctx, tenant.ID)
		if err == nil && sub.CurrentPeriodEnd.After(now) {
			return sub.CurrentPeriodEnd
		}
	}
	return firstOfNextMonth(now)
}

// CheckAgentLimit reports whether the tenant may create another active agent.
func (l *Ledger) CheckAgentLimit(ctx context.Context, tenantID string) (*QuotaCheck, error) {
	tenant, err := l.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	planID := l.EffectivePlan(ctx, tenant)
	count, err := l.store.CountActiveAgents(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("count active agents: %w", err)
	}
	return &QuotaCheck{
		Allowed: plan.CanCreateAgent(planID, count),
		Current: count,
		Limit:   plan.LimitsFor(planID).Agents,
		Plan:    planID,
	}, nil
}

// CheckStorageLimit reports whether a file of fileSizeBytes fits in the
// tenant's remaining storage quota. Allowed iff current+new <= limit.
func (l *Ledger) CheckStorageLimit(ctx context.Context, tenantID string, fileSizeBytes int64) (*StorageCheck, error) {
	tenant, err := l.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	planID := l.EffectivePlan(ctx, tenant)
	limitBytes := plan.LimitsFor(planID).StorageMB * 1024 * 1024
	return &StorageCheck{
		Allowed:      tenant.UsageStorageBytes+fileSizeBytes <= limitBytes,
		CurrentBytes: tenant.UsageStorageBytes,
		LimitBytes:   limitBytes,
		Plan:         planID,
	}, nil
}

// IncrementStorageUsage adds bytes to the tenant's storage counter.
func (l *Ledger) IncrementStorageUsage(ctx context.Context, tenantID string, bytes int64) error {
	_, err := l.store.AddStorageUsage(ctx, tenantID, bytes)
	return err
}

// DecrementStorageUsage subtracts bytes from the tenant's storage counter,
// clamped at zero by the store.
func (l *Ledger) DecrementStorageUsage(ctx context.Context, tenantID string, bytes int64) error {
	_, err := l.store.AddStorageUsage(ctx, tenantID, -bytes)
	return err
}

// firstOfNextMonth returns midnight UTC on the first day of the month
// after t.
func firstOfNextMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}
