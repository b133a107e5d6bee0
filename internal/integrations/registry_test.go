package integrations

import (
	"context"
	"errors"
	"testing"

	"github.com/codypharm/zapta-core/internal/store"
	"github.com/codypharm/zapta-core/pkg/models"
)

type nopClient struct{ provider string }

func (c *nopClient) Provider() string { return c.provider }
func (c *nopClient) ExecuteAction(context.Context, string, map[string]any) (any, error) {
	return nil, nil
}

func seedRegistry(t *testing.T) (*Registry, *store.MemoryStore) {
	t.Helper()
	ms := store.NewMemoryStore()
	reg := NewRegistry(ms)
	reg.Register("stripe", func(rec models.IntegrationRecord) (Client, error) {
		return &nopClient{provider: "stripe"}, nil
	})
	reg.Register("email", func(rec models.IntegrationRecord) (Client, error) {
		return &nopClient{provider: "email"}, nil
	})
	return reg, ms
}

func TestIntegrationMapBuildsActiveClients(t *testing.T) {
	reg, ms := seedRegistry(t)
	ctx := context.Background()

	ms.CreateIntegration(ctx, &models.IntegrationRecord{ID: "i1", TenantID: "t1", Provider: "stripe", Active: true})
	ms.CreateIntegration(ctx, &models.IntegrationRecord{ID: "i2", TenantID: "t1", Provider: "email", Active: false})
	ms.CreateIntegration(ctx, &models.IntegrationRecord{ID: "i3", TenantID: "t2", Provider: "email", Active: true})

	clients, err := reg.IntegrationMap(ctx, "t1", "")
	if err != nil {
		t.Fatalf("IntegrationMap failed: %v", err)
	}
	if len(clients) != 1 {
		t.Fatalf("expected 1 client, got %d", len(clients))
	}
	if _, ok := clients["stripe"]; !ok {
		t.Error("stripe client missing")
	}
}

func TestIntegrationMapFiltersByAgentConfig(t *testing.T) {
	reg, ms := seedRegistry(t)
	ctx := context.Background()

	ms.CreateIntegration(ctx, &models.IntegrationRecord{ID: "i1", TenantID: "t1", Provider: "stripe", Active: true})
	ms.CreateIntegration(ctx, &models.IntegrationRecord{ID: "i2", TenantID: "t1", Provider: "email", Active: true})
	ms.CreateAgent(ctx, &models.Agent{
		ID:       "a1",
		TenantID: "t1",
		Type:     models.AgentBusinessAssistant,
		Status:   models.AgentActive,
		Config:   models.AgentConfig{IntegrationIDs: []string{"i2"}},
	})

	clients, err := reg.IntegrationMap(ctx, "t1", "a1")
	if err != nil {
		t.Fatalf("IntegrationMap failed: %v", err)
	}
	if len(clients) != 1 {
		t.Fatalf("expected 1 client after agent filter, got %d", len(clients))
	}
	if _, ok := clients["email"]; !ok {
		t.Error("email client missing")
	}
}

func TestIntegrationMapAgentWithoutRestrictionsGetsAll(t *testing.T) {
	reg, ms := seedRegistry(t)
	ctx := context.Background()

	ms.CreateIntegration(ctx, &models.IntegrationRecord{ID: "i1", TenantID: "t1", Provider: "stripe", Active: true})
	ms.CreateIntegration(ctx, &models.IntegrationRecord{ID: "i2", TenantID: "t1", Provider: "email", Active: true})
	ms.CreateAgent(ctx, &models.Agent{ID: "a1", TenantID: "t1", Status: models.AgentActive})

	clients, err := reg.IntegrationMap(ctx, "t1", "a1")
	if err != nil {
		t.Fatalf("IntegrationMap failed: %v", err)
	}
	if len(clients) != 2 {
		t.Errorf("expected 2 clients, got %d", len(clients))
	}
}

func TestIntegrationMapSkipsUnknownProviderAndFactoryErrors(t *testing.T) {
	reg, ms := seedRegistry(t)
	ctx := context.Background()

	reg.Register("hubspot", func(models.IntegrationRecord) (Client, error) {
		return nil, errors.New("bad credentials")
	})
	ms.CreateIntegration(ctx, &models.IntegrationRecord{ID: "i1", TenantID: "t1", Provider: "stripe", Active: true})
	ms.CreateIntegration(ctx, &models.IntegrationRecord{ID: "i2", TenantID: "t1", Provider: "unregistered", Active: true})
	ms.CreateIntegration(ctx, &models.IntegrationRecord{ID: "i3", TenantID: "t1", Provider: "hubspot", Active: true})

	clients, err := reg.IntegrationMap(ctx, "t1", "")
	if err != nil {
		t.Fatalf("IntegrationMap failed: %v", err)
	}
	if len(clients) != 1 {
		t.Errorf("expected only the working client, got %d", len(clients))
	}
}
