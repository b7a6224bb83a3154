// ABOUTME: Tests for capability requests, tagged results and the wire format
// ABOUTME: Covers immutability, argument coercion and status/error_message parsing

package capability

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIsImmutable(t *testing.T) {
	args := map[string]any{"location": "Chicago"}
	req := NewRequest(Weather, args)

	args["location"] = "Paris"
	assert.Equal(t, "Chicago", req.String("location", ""))

	copied := req.Args()
	copied["location"] = "Berlin"
	assert.Equal(t, "Chicago", req.String("location", ""))
	assert.Equal(t, Weather, req.Name())
}

func TestRequestAccessors(t *testing.T) {
	req := NewRequest(SuggestActivities, map[string]any{
		"budget":    json.Number("15"),
		"count":     3,
		"price":     "12.5",
		"interests": []any{"hiking", 7, "museum"},
		"weather":   map[string]any{"temperature": 20.0},
		"blank":     "   ",
	})

	budget, ok := req.Float("budget")
	require.True(t, ok)
	assert.Equal(t, 15.0, budget)

	count, ok := req.Float("count")
	require.True(t, ok)
	assert.Equal(t, 3.0, count)

	price, ok := req.Float("price")
	require.True(t, ok)
	assert.Equal(t, 12.5, price)

	_, ok = req.Float("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"hiking", "museum"}, req.Strings("interests"))
	assert.Equal(t, 20.0, req.Map("weather").Number("temperature", 0))
	assert.Empty(t, req.Map("missing"))
	assert.Equal(t, "fallback", req.String("blank", "fallback"))
}

func TestResultWire(t *testing.T) {
	Now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.Local) }
	t.Cleanup(func() { Now = time.Now })

	ok := Success(Payload{"temperature": 20.0})
	wire := ok.Wire()
	assert.Equal(t, StatusSuccess, wire[StatusKey])
	assert.Equal(t, 20.0, wire["temperature"])
	assert.Equal(t, "2026-03-04 05:06:07", wire[TimestampKey])

	fail := Failure("Missing OpenWeatherMap API key")
	assert.Equal(t, map[string]any{
		"status":        "error",
		"error_message": "Missing OpenWeatherMap API key",
	}, fail.Wire())
	assert.Nil(t, fail.Payload())
}

func TestResultKeepsExistingTimestamp(t *testing.T) {
	r := Success(Payload{TimestampKey: "2020-01-01 00:00:00"})
	assert.Equal(t, "2020-01-01 00:00:00", r.Wire()[TimestampKey])
}

func TestFromWire(t *testing.T) {
	r := FromWire(map[string]any{"status": "error", "error_message": "boom"})
	assert.False(t, r.OK())
	assert.Equal(t, "boom", r.Reason())

	r = FromWire(map[string]any{"status": "error"})
	assert.Equal(t, "unknown error", r.Reason())

	r = FromWire(map[string]any{"status": "success", "ticker": "ADM"})
	require.True(t, r.OK())
	assert.Equal(t, Payload{"ticker": "ADM"}, r.Payload())

	assert.False(t, FromWire(nil).OK())
}

func TestResultJSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(Failure("nope"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"error","error_message":"nope"}`, string(data))

	var r Result
	require.NoError(t, json.Unmarshal([]byte(`{"status":"success","humidity":50}`), &r))
	assert.True(t, r.OK())
	assert.Equal(t, 50.0, r.Payload().Number("humidity", 0))

	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &r))
}

func TestFuncAdapter(t *testing.T) {
	c := Func{CapabilityName: "echo", Fn: func(_ context.Context, req Request) Result {
		return Success(Payload{"echo": req.String("text", "")})
	}}
	assert.Equal(t, "echo", c.Name())
	res := c.Invoke(context.Background(), NewRequest("echo", map[string]any{"text": "hi"}))
	assert.Equal(t, "hi", res.Payload().Text("echo"))
}
