// Package notify delivers execution lifecycle events to tenant-configured
// webhook endpoints. Delivery is best-effort: failures are logged and
// never surface to the pipeline.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codypharm/zapta-core/internal/store"
	"github.com/codypharm/zapta-core/pkg/models"
)

// ── Event types ─────────────────────────────────────────────

// EventType describes what happened.
type EventType string

const (
	EventAgentCompleted EventType = "agent.completed"
	EventAgentFailed    EventType = "agent.failed"
)

// Event is the outbound webhook payload.
type Event struct {
	Type      EventType            `json:"type"`
	TenantID  string               `json:"tenant_id,omitempty"`
	AgentID   string               `json:"agent_id,omitempty"`
	Input     *models.AgentInput   `json:"input,omitempty"`
	Output    *models.AgentOutput  `json:"output,omitempty"`
	Error     string               `json:"error,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
}

// ── Service ──────────────────────────────────────────────────

// Service fans events out to every active webhook endpoint of a tenant.
type Service struct {
	store      store.Store
	client     *http.Client
	retryDelay time.Duration
}

// NewService creates a webhook notifier.
func NewService(s store.Store) *Service {
	return &Service{
		store: s,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		retryDelay: 2 * time.Second,
	}
}

// AgentCompleted emits a completion event. Best-effort.
func (s *Service) AgentCompleted(ctx context.Context, tenantID, agentID string, input *models.AgentInput, output *models.AgentOutput) {
	s.dispatch(ctx, tenantID, Event{
		Type:      EventAgentCompleted,
		TenantID:  tenantID,
		AgentID:   agentID,
		Input:     input,
		Output:    output,
		Timestamp: time.Now().UTC(),
	})
}

// AgentFailed emits a failure event. Called with whatever identifiers are
// known at the failure point. Best-effort.
func (s *Service) AgentFailed(ctx context.Context, tenantID, agentID string, input *models.AgentInput, execErr error) {
	errMsg := ""
	if execErr != nil {
		errMsg = execErr.Error()
	}
	s.dispatch(ctx, tenantID, Event{
		Type:      EventAgentFailed,
		TenantID:  tenantID,
		AgentID:   agentID,
		Input:     input,
		Error:     errMsg,
		Timestamp: time.Now().UTC(),
	})
}

// dispatch sends the event to every matching endpoint concurrently and
// waits for all deliveries to settle.
func (s *Service) dispatch(ctx context.Context, tenantID string, event Event) {
	if tenantID == "" {
		return
	}
	hooks, err := s.store.ListWebhooks(ctx, tenantID)
	if err != nil {
		log.Warn().Err(err).Str("tenant_id", tenantID).Msg("Failed to list webhook endpoints")
		return
	}

	var wg sync.WaitGroup
	for i := range hooks {
		hook := hooks[i]
		if !hook.Active || !subscribes(&hook, event.Type) {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.send(ctx, &hook, event); err != nil {
				log.Warn().Err(err).Str("url", hook.URL).Str("event", string(event.Type)).
					Msg("Webhook delivery failed")
				return
			}
			log.Info().Str("url", hook.URL).Str("event", string(event.Type)).
				Msg("Webhook delivered")
		}()
	}
	wg.Wait()
}

// send posts the event as JSON with optional HMAC-SHA256 signing and up to
// 3 attempts.
func (s *Service) send(ctx context.Context, hook *models.WebhookEndpoint, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * s.retryDelay)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build webhook request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "Zapta-Webhook/1.0")
		req.Header.Set("X-Zapta-Event", string(event.Type))

		if hook.Secret != "" {
			mac := hmac.New(sha256.New, []byte(hook.Secret))
			mac.Write(body)
			sig := hex.EncodeToString(mac.Sum(nil))
			req.Header.Set("X-Zapta-Signature", "sha256="+sig)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("webhook HTTP %d from %s", resp.StatusCode, hook.URL)
	}
	return fmt.Errorf("webhook failed after 3 attempts: %w", lastErr)
}

func subscribes(hook *models.WebhookEndpoint, eventType EventType) bool {
	if len(hook.Events) == 0 {
		return true // empty means "all events"
	}
	for _, e := range hook.Events {
		if e == string(eventType) || e == "*" {
			return true
		}
	}
	return false
}
