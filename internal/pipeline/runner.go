// ABOUTME: Runner applying the delivery policy on top of the orchestrator
// ABOUTME: prefer_pipeline delivers a complete run; otherwise a direct local recompute is delivered

package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/2389/skycast-gateway/internal/resolver"
)

// Policy decides which context a run delivers.
type Policy string

const (
	// PolicyPreferPipeline delivers the orchestrator context when it is
	// complete and falls back to a direct recompute otherwise.
	PolicyPreferPipeline Policy = "prefer_pipeline"
	// PolicyAlwaysDirect treats the orchestrator run as advisory and always
	// delivers a direct recompute.
	PolicyAlwaysDirect Policy = "always_direct"
)

// ParsePolicy validates a policy name. The empty string selects
// PolicyPreferPipeline.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyPreferPipeline:
		return PolicyPreferPipeline, nil
	case PolicyAlwaysDirect:
		return PolicyAlwaysDirect, nil
	default:
		return "", fmt.Errorf("unknown pipeline policy %q (want %s or %s)", s, PolicyPreferPipeline, PolicyAlwaysDirect)
	}
}

// Outcome sources.
const (
	SourcePipeline = "pipeline"
	SourceDirect   = "direct"
)

// Outcome is what a Runner delivers.
type Outcome struct {
	// Context holds the delivered stage results.
	Context *RunContext
	// Source is SourcePipeline or SourceDirect.
	Source string
	// Pipeline is the strict orchestrator result, delivered or not.
	Pipeline Result
}

// Runner executes plans under a policy.
type Runner struct {
	pipeline *Orchestrator
	direct   *Orchestrator
	policy   Policy
	logger   *slog.Logger
}

// NewRunner creates a runner. The direct path uses r.Direct().
func NewRunner(r *resolver.Resolver, policy Policy, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if policy == "" {
		policy = PolicyPreferPipeline
	}
	return &Runner{
		pipeline: NewOrchestrator(r, logger),
		direct:   NewOrchestrator(r.Direct(), logger),
		policy:   policy,
		logger:   logger,
	}
}

// Policy returns the runner's policy.
func (r *Runner) Policy() Policy { return r.policy }

// Execute runs plan through the orchestrator and applies the policy. It
// returns an error only when ctx ends before anything could be delivered.
func (r *Runner) Execute(ctx context.Context, plan Plan) (Outcome, error) {
	res := r.pipeline.Run(ctx, plan.Stages, plan.Input)
	if res.Partial() {
		r.logger.Info("pipeline partial",
			"pipeline", plan.Name,
			"failed_stage", res.FailedName,
			"index", res.FailedStage,
			"reason", res.Reason,
		)
	}

	if r.policy == PolicyPreferPipeline && res.Complete {
		return Outcome{Context: res.Context, Source: SourcePipeline, Pipeline: res}, nil
	}

	rc, err := r.direct.RunBestEffort(ctx, plan.Stages, plan.Input)
	if err != nil {
		return Outcome{Pipeline: res}, fmt.Errorf("direct recompute of %s: %w", plan.Name, err)
	}
	return Outcome{Context: rc, Source: SourceDirect, Pipeline: res}, nil
}
