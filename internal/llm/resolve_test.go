package llm

import (
	"context"
	"testing"
)

func TestResolveModel(t *testing.T) {
	tests := []struct {
		model    string
		family   Family
		provider string
		fallback bool
	}{
		{"gemini-2.0-flash", FamilyGemini, "gemini-2.0-flash", false},
		{"gemini-3-pro", FamilyGemini, "gemini-2.5-pro", false},
		{"gemini-3-flash", FamilyGemini, "gemini-2.5-flash", false},
		{"claude-3-5-haiku-20241022", FamilyClaude, "claude-3-5-haiku-20241022", false},
		{"claude-sonnet", FamilyClaude, "claude-3-5-sonnet-20241022", false},
		{"gpt-4o-mini", FamilyGPT, "gpt-4o-mini", false},
		{"gpt-5", FamilyGPT, "gpt-4o", false},
		{"", FamilyGemini, "gemini-2.0-flash", true},
		{"totally-made-up", FamilyGemini, "gemini-2.0-flash", true},
		// Substring lookalikes must not match by prefix.
		{"gemini-9000", FamilyGemini, "gemini-2.0-flash", true},
		{"gpt-nonexistent", FamilyGemini, "gemini-2.0-flash", true},
	}

	for _, tt := range tests {
		got := ResolveModel(tt.model)
		if got.Family != tt.family {
			t.Errorf("ResolveModel(%q).Family = %q, want %q", tt.model, got.Family, tt.family)
		}
		if got.ProviderModel != tt.provider {
			t.Errorf("ResolveModel(%q).ProviderModel = %q, want %q", tt.model, got.ProviderModel, tt.provider)
		}
		if got.Fallback != tt.fallback {
			t.Errorf("ResolveModel(%q).Fallback = %v, want %v", tt.model, got.Fallback, tt.fallback)
		}
	}
}

type staticProvider struct {
	family  Family
	content string
}

func (p *staticProvider) Family() Family { return p.family }

func (p *staticProvider) Complete(_ context.Context, req *Request) (*Response, error) {
	return &Response{Content: p.content, Model: req.Model}, nil
}

func TestRegistryProviderFor(t *testing.T) {
	reg := NewRegistry(
		&staticProvider{family: FamilyGemini, content: "from gemini"},
		&staticProvider{family: FamilyGPT, content: "from gpt"},
	)

	p, model, err := reg.ProviderFor("gpt-5")
	if err != nil {
		t.Fatalf("ProviderFor failed: %v", err)
	}
	if p.Family() != FamilyGPT {
		t.Errorf("expected gpt provider, got %s", p.Family())
	}
	if model != "gpt-4o" {
		t.Errorf("expected canonical model gpt-4o, got %q", model)
	}

	// Unknown model routes to the default Gemini provider.
	p, model, err = reg.ProviderFor("unknown-model")
	if err != nil {
		t.Fatalf("ProviderFor failed: %v", err)
	}
	if p.Family() != FamilyGemini {
		t.Errorf("fallback should use gemini, got %s", p.Family())
	}
	if model != DefaultModel {
		t.Errorf("fallback model = %q, want %q", model, DefaultModel)
	}
}

func TestRegistryMissingFamily(t *testing.T) {
	reg := NewRegistry(&staticProvider{family: FamilyGemini})
	if _, _, err := reg.ProviderFor("claude-sonnet"); err == nil {
		t.Fatal("expected error for unconfigured family")
	}
}
