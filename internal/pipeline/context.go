// ABOUTME: RunContext: ordered, write-once mapping from stage name to capability result
// ABOUTME: Seeded with the caller's input under the "input" key before stage 0

package pipeline

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/2389/skycast-gateway/internal/capability"
)

// InputKey is the seed key written before the first stage.
const InputKey = "input"

// ErrKeyWritten is returned when a RunContext key is written twice.
var ErrKeyWritten = errors.New("run context key already written")

// RunContext accumulates stage results in execution order.
type RunContext struct {
	mu     sync.RWMutex
	keys   []string
	values map[string]capability.Result
}

// NewRunContext creates a context seeded with input.
func NewRunContext(input capability.Payload) *RunContext {
	rc := &RunContext{values: make(map[string]capability.Result)}
	rc.keys = append(rc.keys, InputKey)
	rc.values[InputKey] = capability.Success(input)
	return rc
}

// Set records the result of a stage. Keys are write-once.
func (rc *RunContext) Set(key string, res capability.Result) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if _, ok := rc.values[key]; ok {
		return fmt.Errorf("%w: %q", ErrKeyWritten, key)
	}
	rc.keys = append(rc.keys, key)
	rc.values[key] = res
	return nil
}

// Get returns the result stored under key.
func (rc *RunContext) Get(key string) (capability.Result, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	res, ok := rc.values[key]
	return res, ok
}

// Keys returns the written keys in write order, "input" first.
func (rc *RunContext) Keys() []string {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return slices.Clone(rc.keys)
}

// Input returns a copy of the seed payload.
func (rc *RunContext) Input() capability.Payload {
	res, _ := rc.Get(InputKey)
	return res.Payload()
}

// Wire returns the wire form of the result under key, or nil when the key
// has not been written.
func (rc *RunContext) Wire(key string) map[string]any {
	res, ok := rc.Get(key)
	if !ok {
		return nil
	}
	return res.Wire()
}
