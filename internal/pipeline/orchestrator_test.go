// ABOUTME: Tests for the orchestrator: ordering, stop-on-failure, write-once context
// ABOUTME: Ordering and failure-index properties are checked with gopter

package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/skycast-gateway/internal/capability"
	"github.com/2389/skycast-gateway/internal/resolver"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recorder resolves every capability to a function and records call order.
type recorder struct {
	mu    sync.Mutex
	calls []string
	fns   map[string]func(capability.Request) capability.Result
}

type recInvoker struct {
	r    *recorder
	name string
}

func (i recInvoker) Source() resolver.Source { return resolver.SourceLocal }

func (i recInvoker) Invoke(_ context.Context, req capability.Request) capability.Result {
	i.r.mu.Lock()
	i.r.calls = append(i.r.calls, i.name)
	fn := i.r.fns[i.name]
	i.r.mu.Unlock()
	if fn == nil {
		return capability.Success(capability.Payload{"from": i.name})
	}
	return fn(req)
}

func (r *recorder) Resolve(name string) resolver.Invoker {
	return recInvoker{r: r, name: name}
}

func newRecorder() *recorder {
	return &recorder{fns: make(map[string]func(capability.Request) capability.Result)}
}

func chain(n int) []StageSpec {
	stages := make([]StageSpec, n)
	for i := range stages {
		name := fmt.Sprintf("s%d", i)
		stages[i] = StageSpec{Name: name, Capability: name}
	}
	return stages
}

func TestRunCompletesInOrder(t *testing.T) {
	rec := newRecorder()
	res := NewOrchestrator(rec, quietLogger()).Run(context.Background(), chain(3), capability.Payload{"x": 1})

	require.True(t, res.Complete)
	assert.Equal(t, -1, res.FailedStage)
	assert.Equal(t, []string{"s0", "s1", "s2"}, rec.calls)
	assert.Equal(t, []string{"s0", "s1", "s2"}, res.Completed)
	assert.Equal(t, []string{InputKey, "s0", "s1", "s2"}, res.Context.Keys())
	assert.Equal(t, 1, res.Context.Input()["x"])
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	rec := newRecorder()
	rec.fns["s1"] = func(capability.Request) capability.Result { return capability.Failure("boom") }

	res := NewOrchestrator(rec, quietLogger()).Run(context.Background(), chain(3), nil)

	require.True(t, res.Partial())
	assert.Equal(t, 1, res.FailedStage)
	assert.Equal(t, "s1", res.FailedName)
	assert.Equal(t, "boom", res.Reason)
	assert.Equal(t, []string{"s0"}, res.Completed)
	assert.Equal(t, []string{"s0", "s1"}, rec.calls)

	_, ok := res.Context.Get("s2")
	assert.False(t, ok, "later stages must not be fabricated")
}

func TestInputMapperSeesOnlyEarlierStages(t *testing.T) {
	rec := newRecorder()
	var seen [][]string
	stages := chain(3)
	for i := range stages {
		name := stages[i].Name
		stages[i].Input = func(rc *RunContext) capability.Request {
			seen = append(seen, rc.Keys())
			return capability.NewRequest(name, nil)
		}
	}

	res := NewOrchestrator(rec, quietLogger()).Run(context.Background(), stages, nil)
	require.True(t, res.Complete)
	assert.Equal(t, [][]string{
		{InputKey},
		{InputKey, "s0"},
		{InputKey, "s0", "s1"},
	}, seen)
}

func TestRunRejectsBadStageNames(t *testing.T) {
	for name, stages := range map[string][]StageSpec{
		"duplicate": {{Name: "a", Capability: "a"}, {Name: "a", Capability: "b"}},
		"empty":     {{Name: "a", Capability: "a"}, {Name: "", Capability: "b"}},
		"reserved":  {{Name: InputKey, Capability: "a"}},
	} {
		t.Run(name, func(t *testing.T) {
			rec := newRecorder()
			res := NewOrchestrator(rec, quietLogger()).Run(context.Background(), stages, nil)
			require.True(t, res.Partial())
			assert.Equal(t, 0, res.FailedStage)
			assert.Empty(t, rec.calls)
		})
	}
}

func TestRunCancelledBetweenStages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rec := newRecorder()
	rec.fns["s0"] = func(capability.Request) capability.Result {
		cancel()
		return capability.Success(nil)
	}

	res := NewOrchestrator(rec, quietLogger()).Run(ctx, chain(2), nil)
	require.True(t, res.Partial())
	assert.Equal(t, 1, res.FailedStage)
	assert.Equal(t, context.Canceled.Error(), res.Reason)
	assert.Equal(t, []string{"s0"}, rec.calls)
}

func TestPanickingStageIsFailure(t *testing.T) {
	rec := newRecorder()
	rec.fns["s0"] = func(capability.Request) capability.Result { panic("nil map") }

	res := NewOrchestrator(rec, quietLogger()).Run(context.Background(), chain(2), nil)
	require.True(t, res.Partial())
	assert.Equal(t, 0, res.FailedStage)
	assert.Contains(t, res.Reason, "panicked")
}

func TestRunBestEffortKeepsGoing(t *testing.T) {
	rec := newRecorder()
	rec.fns["s0"] = func(capability.Request) capability.Result { return capability.Failure("down") }

	var passed map[string]any
	stages := chain(2)
	stages[1].Input = func(rc *RunContext) capability.Request {
		passed = rc.Wire("s0")
		return capability.NewRequest("s1", nil)
	}

	rc, err := NewOrchestrator(rec, quietLogger()).RunBestEffort(context.Background(), stages, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"s0", "s1"}, rec.calls)
	assert.Equal(t, map[string]any{"status": "error", "error_message": "down"}, passed)

	s1, ok := rc.Get("s1")
	require.True(t, ok)
	assert.True(t, s1.OK())
}

func TestRunContextIsWriteOnce(t *testing.T) {
	rc := NewRunContext(nil)
	require.NoError(t, rc.Set("weather", capability.Success(nil)))
	assert.ErrorIs(t, rc.Set("weather", capability.Failure("again")), ErrKeyWritten)
	assert.ErrorIs(t, rc.Set(InputKey, capability.Success(nil)), ErrKeyWritten)

	res, _ := rc.Get("weather")
	assert.True(t, res.OK())
	assert.Nil(t, rc.Wire("missing"))
}

func TestOrchestratorProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("stages run in declaration order", prop.ForAll(
		func(n int) bool {
			rec := newRecorder()
			stages := chain(n)
			res := NewOrchestrator(rec, quietLogger()).Run(context.Background(), stages, nil)
			if !res.Complete || len(rec.calls) != n {
				return false
			}
			for i, s := range stages {
				if rec.calls[i] != s.Name || res.Completed[i] != s.Name {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 12),
	))

	properties.Property("first failure stops the run at its index", prop.ForAll(
		func(n, k int) bool {
			k %= n
			rec := newRecorder()
			rec.fns[fmt.Sprintf("s%d", k)] = func(capability.Request) capability.Result {
				return capability.Failure("stop")
			}
			res := NewOrchestrator(rec, quietLogger()).Run(context.Background(), chain(n), nil)
			return res.Partial() &&
				res.FailedStage == k &&
				len(res.Completed) == k &&
				len(rec.calls) == k+1 &&
				len(res.Context.Keys()) == k+2
		},
		gen.IntRange(1, 12),
		gen.IntRange(0, 100),
	))

	properties.Property("identical inputs give identical results", prop.ForAll(
		func(n int, v string) bool {
			a := NewOrchestrator(newRecorder(), quietLogger()).Run(context.Background(), chain(n), capability.Payload{"v": v})
			b := NewOrchestrator(newRecorder(), quietLogger()).Run(context.Background(), chain(n), capability.Payload{"v": v})
			if a.Complete != b.Complete || fmt.Sprint(a.Context.Keys()) != fmt.Sprint(b.Context.Keys()) {
				return false
			}
			for _, k := range a.Context.Keys() {
				ra, _ := a.Context.Get(k)
				rb, _ := b.Context.Get(k)
				if fmt.Sprint(ra.Payload()) != fmt.Sprint(rb.Payload()) {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 8),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
