// Command llmgate is a minimal wiring example, not a CLI front-end: it
// loads configuration, assembles the gateway's components in the order
// spec §9 requires (construct once, inject everywhere — no module
// singletons), and issues one GenerateText call per configured model alias
// against the mock adapter.
// A real deployment swaps the adapter map for vendor wire adapters, which
// are explicitly out of scope here (spec.md §1). Grounded on the teacher's
// cmd/agentflow/main.go wiring order (config -> logger -> telemetry ->
// core components), trimmed of the HTTP server and subcommand dispatch
// the teacher's main.go also provides.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/harrowgate/llmgate/budget"
	"github.com/harrowgate/llmgate/config"
	"github.com/harrowgate/llmgate/internal/circuitbreaker"
	"github.com/harrowgate/llmgate/internal/metrics"
	"github.com/harrowgate/llmgate/internal/telemetry"
	"github.com/harrowgate/llmgate/ledger"
	"github.com/harrowgate/llmgate/orchestrator"
	"github.com/harrowgate/llmgate/provider"
	"github.com/harrowgate/llmgate/ratelimit"
	"github.com/harrowgate/llmgate/registry"
	"github.com/harrowgate/llmgate/retry"
	"github.com/harrowgate/llmgate/types"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.NewLoader().WithProjectDir(".").WithEnvPrefix("LLM").Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Fatal("init telemetry", zap.Error(err))
	}
	defer providers.Shutdown(context.Background())

	m := metrics.NewCollector("llmgate")

	ledgerPath := os.Getenv("LLM_LEDGER_PATH")
	if ledgerPath == "" {
		ledgerPath = "llmgate-ledger.db"
	}
	store, err := ledger.Open(ledger.DefaultStoreConfig(ledgerPath), logger)
	if err != nil {
		logger.Fatal("open ledger store", zap.Error(err))
	}
	writer := ledger.NewWriter(store, logger, m)
	led := ledger.New(store, writer)
	defer led.Shutdown(context.Background())

	circuit := circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig(), logger)
	reg := registry.New(cfg, circuit, logger)
	budgetCtrl := budget.New(cfg.Budget, led, logger, m)
	limiter := ratelimit.New(ratelimit.NewInProcessRing())
	retryEngine := retry.New(cfg.Resilience, led, logger, m)

	adapters := map[string]provider.Adapter{}
	for _, ep := range cfg.Endpoints {
		if _, ok := adapters[ep.Provider]; ok {
			continue
		}
		// Vendor wire adapters are out of scope (spec.md §1); the mock
		// adapter demonstrates the Provider Adapter Contract end to end.
		adapters[ep.Provider] = provider.NewMockAdapter()
	}

	orch := orchestrator.New(cfg, reg, circuit, budgetCtrl, limiter, retryEngine, led, adapters, logger, m)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for alias := range cfg.ModelRegistry {
		text, err := orch.GenerateText(ctx, []types.ContentPart{types.TextPart("hello from llmgate")}, alias, nil)
		if err != nil {
			logger.Error("generate failed", zap.String("model_alias", alias), zap.Error(err))
			continue
		}
		fmt.Printf("%s: %s\n", alias, text)
	}
}
