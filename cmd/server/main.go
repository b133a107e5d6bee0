// Zapta core server — the agent execution backend.
//
// It hosts:
//   - the agent execution pipeline (policy gate, RAG, generation, tools)
//   - the knowledge base (chunking, embeddings, similarity search)
//   - the tenant usage ledger and plan policy
//   - outbound webhook notifications
//
// Storage is PostgreSQL with pgvector when DATABASE_URL is set; otherwise
// an in-memory store for local development.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/codypharm/zapta-core/internal/api"
	"github.com/codypharm/zapta-core/internal/api/handlers"
	"github.com/codypharm/zapta-core/internal/config"
	"github.com/codypharm/zapta-core/internal/embeddings"
	"github.com/codypharm/zapta-core/internal/executor"
	"github.com/codypharm/zapta-core/internal/integrations"
	"github.com/codypharm/zapta-core/internal/knowledge"
	"github.com/codypharm/zapta-core/internal/llm"
	"github.com/codypharm/zapta-core/internal/notify"
	"github.com/codypharm/zapta-core/internal/store"
	"github.com/codypharm/zapta-core/internal/telemetry"
	"github.com/codypharm/zapta-core/internal/triggers"
	"github.com/codypharm/zapta-core/internal/usage"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg := config.Load()
	ctx := context.Background()

	log.Info().Str("version", cfg.Version).Msg("Zapta core starting")

	shutdownTracing, err := telemetry.Init(cfg.Telemetry, cfg.Version)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize telemetry")
	}
	defer shutdownTracing(ctx)

	// ── Storage ──────────────────────────────────────────────

	chain := buildEmbeddings(cfg)

	var s store.Store
	if cfg.Database.URL != "" {
		dims := 768
		if primary := chain.Primary(); primary != nil {
			dims = primary.Dimensions()
		}
		pg, err := store.NewPostgresStore(ctx, cfg.Database.URL, dims)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		s = pg
		log.Info().Msg("Using PostgreSQL store")
	} else {
		s = store.NewMemoryStore()
		log.Warn().Msg("DATABASE_URL not set, using in-memory store")
	}
	defer s.Close()

	// ── Services ─────────────────────────────────────────────

	ledger := usage.NewLedger(s)
	kb := knowledge.NewService(s, chain, cfg.Knowledge.MaxChunkSize)
	notifier := notify.NewService(s)

	// Provider factories (Stripe, HubSpot, SendGrid, ...) are registered by
	// the integration layer at deploy time; the core only routes to them.
	registry := integrations.NewRegistry(s)

	pipeline := executor.NewPipeline(
		s,
		ledger,
		kb,
		buildModels(ctx, cfg),
		registry,
		triggers.NewEngine(triggers.DefaultRules()),
		notifier,
	)

	h := handlers.New(s, pipeline, kb, ledger)

	// ── HTTP server ──────────────────────────────────────────

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      api.NewRouter(cfg, h),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Info().Int("port", cfg.Port).Msg("Zapta core listening")

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

// buildEmbeddings assembles the embedding fallback chain from whichever
// provider keys are configured, OpenAI first.
func buildEmbeddings(cfg *config.Config) *embeddings.Chain {
	var drivers []embeddings.Driver
	if cfg.Providers.OpenAIAPIKey != "" {
		drivers = append(drivers, embeddings.NewOpenAIDriver(cfg.Providers.OpenAIAPIKey, "text-embedding-3-small"))
	}
	if cfg.Providers.GeminiAPIKey != "" {
		drivers = append(drivers, embeddings.NewGeminiDriver(cfg.Providers.GeminiAPIKey, "text-embedding-004"))
	}
	if len(drivers) == 0 {
		log.Warn().Msg("No embedding provider keys configured, knowledge base uploads will fail")
	}
	return embeddings.NewChain(drivers...)
}

// buildModels registers a chat provider per configured API key.
func buildModels(ctx context.Context, cfg *config.Config) *llm.Registry {
	var providers []llm.Provider

	if cfg.Providers.GeminiAPIKey != "" {
		p, err := llm.NewGeminiProvider(ctx, cfg.Providers.GeminiAPIKey)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize Gemini provider")
		}
		providers = append(providers, p)
	}
	if cfg.Providers.AnthropicAPIKey != "" {
		p, err := llm.NewAnthropicProvider(cfg.Providers.AnthropicAPIKey)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize Anthropic provider")
		}
		providers = append(providers, p)
	}
	if cfg.Providers.OpenAIAPIKey != "" {
		p, err := llm.NewOpenAIProvider(cfg.Providers.OpenAIAPIKey)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize OpenAI provider")
		}
		providers = append(providers, p)
	}
	if len(providers) == 0 {
		log.Warn().Msg("No model provider keys configured, agent executions will fail")
	}

	return llm.NewRegistry(providers...)
}
