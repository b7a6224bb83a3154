// ABOUTME: Capability contract: immutable requests, tagged results and the status wire format
// ABOUTME: Shared by local implementations, the MCP tool host and the proxy resolver

package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"
)

// Capability names known to the gateway.
const (
	Weather           = "weather"
	Predict           = "predict"
	SuggestActivities = "suggest_activities"
)

// Wire format keys and values.
const (
	StatusKey       = "status"
	ErrorMessageKey = "error_message"
	TimestampKey    = "timestamp"
	StatusSuccess   = "success"
	StatusError     = "error"
)

// TimestampLayout is the YYYY-MM-DD HH:MM:SS layout used for every timestamp.
const TimestampLayout = "2006-01-02 15:04:05"

// Now is the clock used for payload timestamps. Tests replace it.
var Now = time.Now

// Timestamp formats t in the local time zone.
func Timestamp(t time.Time) string {
	return t.Local().Format(TimestampLayout)
}

// Stamp returns the current time formatted for a payload.
func Stamp() string {
	return Timestamp(Now())
}

// Payload is the domain data of a successful result.
type Payload map[string]any

// Clone returns a shallow copy of the payload.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	return maps.Clone(p)
}

// Capability is a named unit of work.
type Capability interface {
	Name() string
	Invoke(ctx context.Context, req Request) Result
}

// Func adapts a plain function into a Capability.
type Func struct {
	CapabilityName string
	Fn             func(ctx context.Context, req Request) Result
}

// Name returns the capability name.
func (f Func) Name() string { return f.CapabilityName }

// Invoke calls the wrapped function.
func (f Func) Invoke(ctx context.Context, req Request) Result { return f.Fn(ctx, req) }

// Request names a capability and its arguments. It cannot be changed after
// construction: NewRequest copies the argument map and Args returns a copy.
type Request struct {
	name string
	args map[string]any
}

// NewRequest builds a request for the named capability.
func NewRequest(name string, args map[string]any) Request {
	return Request{name: name, args: maps.Clone(args)}
}

// Name returns the capability name.
func (r Request) Name() string { return r.name }

// Args returns a copy of the arguments.
func (r Request) Args() map[string]any {
	if r.args == nil {
		return map[string]any{}
	}
	return maps.Clone(r.args)
}

// String returns the argument as a string, or def when it is absent or empty.
func (r Request) String(key, def string) string {
	s, ok := r.args[key].(string)
	if !ok || strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// Float returns a numeric argument. JSON numbers, Go integers and numeric
// strings are accepted.
func (r Request) Float(key string) (float64, bool) {
	return toFloat(r.args[key])
}

// Strings returns a list argument, accepting []string or a JSON array.
func (r Request) Strings(key string) []string {
	switch v := r.args[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	default:
		return nil
	}
}

// Map returns an object argument as a Payload. Missing or non-object values
// yield an empty payload.
func (r Request) Map(key string) Payload {
	switch v := r.args[key].(type) {
	case Payload:
		return v.Clone()
	case map[string]any:
		return maps.Clone(v)
	default:
		return Payload{}
	}
}

// Result is either Success with a payload or Failure with a reason.
type Result struct {
	ok      bool
	payload Payload
	reason  string
}

// Success wraps a payload in a successful result.
func Success(p Payload) Result {
	if p == nil {
		p = Payload{}
	}
	return Result{ok: true, payload: p.Clone()}
}

// Failure builds a failed result.
func Failure(reason string) Result {
	return Result{reason: reason}
}

// Failuref builds a failed result from a format string.
func Failuref(format string, args ...any) Result {
	return Failure(fmt.Sprintf(format, args...))
}

// OK reports whether the result is a success.
func (r Result) OK() bool { return r.ok }

// Payload returns a copy of the success payload, nil for failures.
func (r Result) Payload() Payload {
	if !r.ok {
		return nil
	}
	return r.payload.Clone()
}

// Reason returns the failure reason, empty for successes.
func (r Result) Reason() string { return r.reason }

// Wire renders the result in the status/error_message wire format.
// Success payloads get status "success" and a timestamp when they lack one.
func (r Result) Wire() map[string]any {
	if !r.ok {
		return map[string]any{
			StatusKey:       StatusError,
			ErrorMessageKey: r.reason,
		}
	}
	out := make(map[string]any, len(r.payload)+2)
	maps.Copy(out, r.payload)
	out[StatusKey] = StatusSuccess
	if _, ok := out[TimestampKey]; !ok {
		out[TimestampKey] = Stamp()
	}
	return out
}

// FromWire parses the wire format. A status of "error" becomes a Failure;
// anything else becomes a Success whose payload is the map without status.
func FromWire(m map[string]any) Result {
	if m == nil {
		return Failure("empty result")
	}
	if status, _ := m[StatusKey].(string); status == StatusError {
		msg, _ := m[ErrorMessageKey].(string)
		if msg == "" {
			msg = "unknown error"
		}
		return Failure(msg)
	}
	p := maps.Clone(m)
	delete(p, StatusKey)
	return Result{ok: true, payload: p}
}

// MarshalJSON encodes the result in the wire format.
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Wire())
}

// UnmarshalJSON decodes the wire format.
func (r *Result) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("decoding result: %w", err)
	}
	*r = FromWire(m)
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Number reads a numeric field from a payload, returning def when absent.
func (p Payload) Number(key string, def float64) float64 {
	if f, ok := toFloat(p[key]); ok {
		return f
	}
	return def
}

// Text reads a string field from a payload.
func (p Payload) Text(key string) string {
	s, _ := p[key].(string)
	return s
}
