package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/leadgen/internal/enrich"
	"github.com/sells-group/leadgen/internal/resilience"
	"github.com/sells-group/leadgen/internal/store"
	"github.com/sells-group/leadgen/pkg/anthropic"
	"github.com/sells-group/leadgen/pkg/identity"
	"github.com/sells-group/leadgen/pkg/millionverifier"
	"github.com/sells-group/leadgen/pkg/serper"
)

// openStore picks the backend from config.
func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func newSearchClient() serper.Client {
	return serper.NewClient(cfg.Serper.Key,
		serper.WithBaseURL(cfg.Serper.BaseURL),
		serper.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Serper.TimeoutSecs) * time.Second}),
		serper.WithLimiter(rate.NewLimiter(rate.Limit(cfg.Serper.RatePerSec), 1)),
	)
}

// searchRetry is the interactive-path retry budget: fixed delay, per the
// configured attempt count.
func searchRetry() resilience.RetryConfig {
	rc := resilience.Fixed(cfg.Serper.MaxRetries, time.Duration(cfg.Serper.RetryDelayMs)*time.Millisecond)
	rc.OnRetry = resilience.RetryLogger("serper", "search")
	return rc
}

// newOrchestrator wires the enrichment waterfall from config.
func newOrchestrator(st store.Store) (*enrich.Orchestrator, *enrich.Config, error) {
	wcfg := enrich.DefaultConfig()
	if cfg.Enrich.WaterfallPath != "" {
		loaded, err := enrich.LoadConfig(cfg.Enrich.WaterfallPath)
		if err != nil {
			return nil, nil, err
		}
		wcfg = loaded
	}

	deps := enrich.Deps{LLMModel: cfg.Enrich.AnthropicModel}
	if cfg.Enrich.MillionVerifierKey != "" {
		deps.Verifier = millionverifier.NewClient(cfg.Enrich.MillionVerifierKey)
	}
	if cfg.Enrich.AnthropicKey != "" {
		deps.LLM = anthropic.NewClient(cfg.Enrich.AnthropicKey)
	}
	if len(cfg.Enrich.Providers) > 0 {
		deps.Providers = make(map[string]identity.Client, len(cfg.Enrich.Providers))
		for name, pc := range cfg.Enrich.Providers {
			deps.Providers[name] = identity.NewClient(name, pc.BaseURL, pc.Key)
		}
	}

	strategies := enrich.BuildStrategies(wcfg, deps)
	return enrich.NewOrchestrator(st, st, strategies, wcfg), wcfg, nil
}
