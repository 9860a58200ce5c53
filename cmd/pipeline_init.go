package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/claimtrace/internal/config"
	"github.com/sells-group/claimtrace/internal/lineage"
	"github.com/sells-group/claimtrace/internal/monitoring"
	"github.com/sells-group/claimtrace/internal/pipeline"
	"github.com/sells-group/claimtrace/internal/resilience"
	"github.com/sells-group/claimtrace/internal/store"
	"github.com/sells-group/claimtrace/internal/verify"
	anthropicpkg "github.com/sells-group/claimtrace/pkg/anthropic"
)

// pipelineEnv holds the initialized store, orchestrator, and monitoring
// components needed by the extract/batch/serve commands.
type pipelineEnv struct {
	Store        store.Store
	Orchestrator *pipeline.Orchestrator
	Proposer     *pipeline.ClaudeProposer
	Lineage      *lineage.Service
	Collector    *monitoring.Collector
	Alerter      *monitoring.Alerter
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline sets up the store, the proposal collaborator with its
// resilience wrapping, the verification engine, and the orchestrator.
// Callers should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	if err := cfg.Validate("extract"); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)

	breakerCfg := resilience.FromCircuitConfig(
		cfg.Retry.BreakerFailureThreshold,
		cfg.Retry.BreakerResetTimeoutSecs,
	)
	breakerCfg.OnStateChange = func(from, to resilience.CircuitState) {
		zap.L().Warn("upstream circuit breaker state change",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
	breaker := resilience.NewCircuitBreaker(breakerCfg)

	retryCfg := resilience.FromRetryConfig(
		cfg.Retry.UpstreamMaxAttempts,
		cfg.Retry.InitialBackoffMs,
		cfg.Retry.MaxBackoffMs,
	)
	retryCfg.OnRetry = resilience.RetryLogger("anthropic", "propose")

	proposer := pipeline.NewClaudeProposer(anthropicClient, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens,
		pipeline.WithRateLimiter(rate.NewLimiter(rate.Limit(cfg.Anthropic.RatePerSecond), 1)),
		pipeline.WithCircuitBreaker(breaker),
		pipeline.WithRetryConfig(retryCfg),
	)

	engine := verify.NewEngine(verifyConfig(cfg.Verify))

	collector := monitoring.NewCollector()
	orch := pipeline.NewOrchestrator(proposer, engine, st, pipeline.Config{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		AttemptTimeout: time.Duration(cfg.Retry.AttemptTimeoutSecs) * time.Second,
	}).WithObserver(collector)

	return &pipelineEnv{
		Store:        st,
		Orchestrator: orch,
		Proposer:     proposer,
		Lineage:      lineage.NewService(st),
		Collector:    collector,
		Alerter:      monitoring.NewAlerter(cfg.Alerts),
	}, nil
}

func verifyConfig(vc config.VerifyConfig) verify.Config {
	out := verify.DefaultConfig()
	if vc.FuzzyThreshold > 0 {
		out.FuzzyThreshold = vc.FuzzyThreshold
	}
	if vc.ConfidenceFloor > 0 {
		out.ConfidenceFloor = vc.ConfidenceFloor
	}
	if vc.DescriptionOverlap > 0 {
		out.DescriptionOverlap = vc.DescriptionOverlap
	}
	if vc.PageMismatchPenalty > 0 {
		out.PageMismatchPenalty = vc.PageMismatchPenalty
	}
	if vc.DescMismatchPenalty > 0 {
		out.DescMismatchPenalty = vc.DescMismatchPenalty
	}
	return out
}
