// ABOUTME: Orchestrator executing stages sequentially and stopping at the first failure
// ABOUTME: Best-effort mode records failures and keeps going, used by the direct recompute

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/skycast-gateway/internal/capability"
	"github.com/2389/skycast-gateway/internal/resolver"
)

// StageSpec describes one stage. Input builds the capability request from
// the results of earlier stages.
type StageSpec struct {
	Name       string
	Capability string
	Input      func(rc *RunContext) capability.Request
}

// Result is the outcome of a strict run: Complete, or Partial with the
// index and name of the stage that failed.
type Result struct {
	Context     *RunContext
	Complete    bool
	Completed   []string
	FailedStage int
	FailedName  string
	Reason      string
}

// Partial reports whether the run stopped before its last stage.
func (r Result) Partial() bool { return !r.Complete }

// Resolver hands out the invoker for a capability.
type Resolver interface {
	Resolve(name string) resolver.Invoker
}

// Orchestrator runs stage lists against a resolver.
type Orchestrator struct {
	resolver Resolver
	logger   *slog.Logger
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(r Resolver, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{resolver: r, logger: logger}
}

// Run executes stages in order. It stops at the first Failure and never runs
// the stages after it. Cancellation of ctx between stages ends the run with a
// Partial carrying the context error.
func (o *Orchestrator) Run(ctx context.Context, stages []StageSpec, input capability.Payload) Result {
	rc := NewRunContext(input)
	if err := validate(stages); err != nil {
		return Result{Context: rc, FailedStage: 0, FailedName: firstName(stages), Reason: err.Error()}
	}

	completed := make([]string, 0, len(stages))
	for i, stage := range stages {
		if err := ctx.Err(); err != nil {
			return Result{Context: rc, Completed: completed, FailedStage: i, FailedName: stage.Name, Reason: err.Error()}
		}

		res := o.invoke(ctx, stage, rc)
		// validate guarantees stage names are unique and never "input".
		_ = rc.Set(stage.Name, res)
		if !res.OK() {
			o.logger.Info("pipeline stopped", "stage", stage.Name, "index", i, "reason", res.Reason())
			return Result{Context: rc, Completed: completed, FailedStage: i, FailedName: stage.Name, Reason: res.Reason()}
		}
		completed = append(completed, stage.Name)
	}
	return Result{Context: rc, Complete: true, Completed: completed, FailedStage: -1}
}

// RunBestEffort executes every stage, storing Failures in the context
// instead of stopping. Later input mappers see the failure wire form.
func (o *Orchestrator) RunBestEffort(ctx context.Context, stages []StageSpec, input capability.Payload) (*RunContext, error) {
	rc := NewRunContext(input)
	if err := validate(stages); err != nil {
		return rc, err
	}
	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			return rc, err
		}
		_ = rc.Set(stage.Name, o.invoke(ctx, stage, rc))
	}
	return rc, nil
}

// invoke runs one stage. A panicking capability becomes a Failure.
func (o *Orchestrator) invoke(ctx context.Context, stage StageSpec, rc *RunContext) (res capability.Result) {
	inv := o.resolver.Resolve(stage.Capability)
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("stage panicked", "stage", stage.Name, "panic", r)
			res = capability.Failuref("stage %s panicked: %v", stage.Name, r)
		}
		o.logger.Debug("stage finished",
			"stage", stage.Name,
			"capability", stage.Capability,
			"source", inv.Source(),
			"ok", res.OK(),
			"duration", time.Since(start),
		)
	}()

	var req capability.Request
	if stage.Input != nil {
		req = stage.Input(rc)
	} else {
		req = capability.NewRequest(stage.Capability, nil)
	}
	return inv.Invoke(ctx, req)
}

func validate(stages []StageSpec) error {
	seen := make(map[string]bool, len(stages))
	for i, s := range stages {
		if s.Name == "" {
			return fmt.Errorf("stage %d has no name", i)
		}
		if s.Name == InputKey {
			return fmt.Errorf("stage %d uses reserved name %q", i, InputKey)
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate stage name %q", s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

func firstName(stages []StageSpec) string {
	if len(stages) == 0 {
		return ""
	}
	return stages[0].Name
}
