// ABOUTME: Tests for the WebSocket prediction stream round loop
// ABOUTME: Covers ordering, malformed frames, interval refresh, disconnect and shutdown

package gateway

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/skycast-gateway/internal/activities"
	"github.com/2389/skycast-gateway/internal/capability"
	"github.com/2389/skycast-gateway/internal/config"
	"github.com/2389/skycast-gateway/internal/store"
)

func dialStream(t *testing.T, tg *testGateway, query string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(tg.server.URL, "http") + "/ws/predict" + query
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var v map[string]any
	require.NoError(t, wsjson.Read(ctx, conn, &v))
	return v
}

func sendFrame(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, conn, v))
}

func prediction(env map[string]any) map[string]any {
	p, _ := env["prediction"].(map[string]any)
	return p
}

func TestStreamAnswersMessagesInOrder(t *testing.T) {
	tg := newTestGateway(t, testConfig(), Deps{})
	conn := dialStream(t, tg, "")

	sendFrame(t, conn, map[string]string{"ticker": "AAA", "location": "Oslo"})
	sendFrame(t, conn, map[string]string{"ticker": "BBB", "location": "Lima"})

	first := readEnvelope(t, conn)
	second := readEnvelope(t, conn)

	assert.Equal(t, "AAA", prediction(first)["ticker"])
	assert.Equal(t, "Oslo", first["weather"].(map[string]any)["location"])
	assert.Equal(t, "BBB", prediction(second)["ticker"])
	for _, env := range []map[string]any{first, second} {
		ts, ok := env["timestamp"].(string)
		require.True(t, ok)
		_, err := time.Parse(capability.TimestampLayout, ts)
		assert.NoError(t, err)
	}

	// Still open: a third message is served on the same connection.
	sendFrame(t, conn, map[string]string{})
	third := readEnvelope(t, conn)
	assert.Equal(t, "ADM", prediction(third)["ticker"])
	assert.Equal(t, "Chicago", third["weather"].(map[string]any)["location"])
}

func TestStreamMalformedFrameKeepsConnectionOpen(t *testing.T) {
	tg := newTestGateway(t, testConfig(), Deps{})
	conn := dialStream(t, tg, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("{not json")))

	failure := readEnvelope(t, conn)
	assert.Equal(t, "error", failure["status"])
	assert.Contains(t, failure["error_message"], "invalid request")

	sendFrame(t, conn, map[string]string{"ticker": "XYZ"})
	ok := readEnvelope(t, conn)
	assert.Equal(t, "XYZ", prediction(ok)["ticker"])
	assert.Equal(t, "success", prediction(ok)["status"])
}

func TestStreamRefreshesLastRequestOnInterval(t *testing.T) {
	var calls atomic.Int32
	counting := capability.Func{CapabilityName: capability.Predict, Fn: func(_ context.Context, req capability.Request) capability.Result {
		calls.Add(1)
		return capability.Success(capability.Payload{"ticker": req.String("ticker", ""), "predicted_price": 1.0})
	}}
	cfg := testConfig()
	cfg.Stream.Interval = 50 * time.Millisecond
	tg := newTestGateway(t, cfg, Deps{Local: []capability.Capability{stubWeather("clear sky"), counting, activities.New(nil)}})
	conn := dialStream(t, tg, "")

	sendFrame(t, conn, map[string]string{"ticker": "REF"})
	for range 3 {
		env := readEnvelope(t, conn)
		assert.Equal(t, "REF", prediction(env)["ticker"])
	}
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestStreamSharesOneSessionAcrossRounds(t *testing.T) {
	tg := newTestGateway(t, testConfig(), Deps{})
	conn := dialStream(t, tg, "")

	sendFrame(t, conn, map[string]string{"ticker": "AAA"})
	readEnvelope(t, conn)
	sendFrame(t, conn, map[string]string{"ticker": "BBB"})
	readEnvelope(t, conn)

	runs, err := tg.store.ListRuns(context.Background(), store.RunFilter{Pipeline: "weather_prediction"})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, runs[0].RunID, runs[1].RunID)
	assert.NotEqual(t, runs[0].ID, runs[1].ID)
	assert.Equal(t, 1, tg.sessions.Live())
}

func TestStreamDisconnectReleasesSession(t *testing.T) {
	tg := newTestGateway(t, testConfig(), Deps{})
	conn := dialStream(t, tg, "")

	sendFrame(t, conn, map[string]string{"ticker": "AAA"})
	readEnvelope(t, conn)
	require.Equal(t, 1, tg.sessions.Live())

	_ = conn.Close(websocket.StatusNormalClosure, "bye")

	assert.Eventually(t, func() bool { return tg.sessions.Live() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestStreamClosedOnShutdown(t *testing.T) {
	tg := newTestGateway(t, testConfig(), Deps{})
	conn := dialStream(t, tg, "")

	sendFrame(t, conn, map[string]string{"ticker": "AAA"})
	readEnvelope(t, conn)

	// Keep reading so the close handshake can complete.
	readErr := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _, err := conn.Read(ctx)
		readErr <- err
	}()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, tg.Shutdown(shutdownCtx))

	err := <-readErr
	require.Error(t, err)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
}

func TestStreamHoldsSessionCapacity(t *testing.T) {
	cfg := testConfig()
	cfg.Session.MaxLive = 1
	tg := newTestGateway(t, cfg, Deps{})
	conn := dialStream(t, tg, "")

	sendFrame(t, conn, map[string]string{"ticker": "AAA"})
	readEnvelope(t, conn)

	resp := post(t, tg, "/api/predict", `{}`)
	assert.Equal(t, 503, resp.StatusCode)
	assert.Equal(t, "too many live sessions", detail(t, resp))
}

func TestStreamRefusedAtCapacity(t *testing.T) {
	cfg := testConfig()
	cfg.Session.MaxLive = 1
	tg := newTestGateway(t, cfg, Deps{})
	first := dialStream(t, tg, "")
	sendFrame(t, first, map[string]string{"ticker": "AAA"})
	readEnvelope(t, first)

	second := dialStream(t, tg, "")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := second.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusTryAgainLater, websocket.CloseStatus(err))
}

func TestStreamSessionFailureIsInternalError(t *testing.T) {
	cfg := testConfig()
	cfg.Session.DefaultUser = " "
	tg := newTestGateway(t, cfg, Deps{})
	conn := dialStream(t, tg, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusInternalError, websocket.CloseStatus(err))
}

// flakyStore panics on its first RecordRun.
type flakyStore struct {
	*store.MockStore
	calls atomic.Int32
}

func (f *flakyStore) RecordRun(ctx context.Context, run *store.Run) error {
	if f.calls.Add(1) == 1 {
		panic("store exploded")
	}
	return f.MockStore.RecordRun(ctx, run)
}

func TestStreamFailedRoundKeepsServing(t *testing.T) {
	runs := &flakyStore{MockStore: store.NewMockStore()}
	tg := newTestGateway(t, testConfig(), Deps{Store: runs})
	conn := dialStream(t, tg, "")

	sendFrame(t, conn, map[string]string{"ticker": "AAA"})
	failed := readEnvelope(t, conn)
	assert.Equal(t, "error", failed["status"])
	assert.Contains(t, failed["error_message"], "store exploded")

	sendFrame(t, conn, map[string]string{"ticker": "BBB"})
	env := readEnvelope(t, conn)
	assert.Equal(t, "success", prediction(env)["status"])
	assert.Equal(t, "BBB", prediction(env)["ticker"])

	recorded, err := runs.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	statuses := make([]string, 0, len(recorded))
	for _, run := range recorded {
		statuses = append(statuses, run.Status)
	}
	assert.ElementsMatch(t, []string{store.RunStatusError, store.RunStatusComplete}, statuses)
}

func TestStreamAcceptsQueryToken(t *testing.T) {
	secret := strings.Repeat("k", 32)
	cfg := testConfig()
	cfg.Auth = config.AuthConfig{JWTSecret: secret, Required: true}
	tg := newTestGateway(t, cfg, Deps{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(tg.server.URL, "http") + "/ws/predict"
	_, resp, err := websocket.Dial(ctx, url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 401, resp.StatusCode)

	token := mustToken(t, secret, "bob")
	conn := dialStream(t, tg, "?token="+token)
	sendFrame(t, conn, map[string]string{"ticker": "AAA"})
	readEnvelope(t, conn)

	runs, err := tg.store.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "bob", runs[0].UserID)
}

func TestDecodeFrame(t *testing.T) {
	req, err := decodeFrame([]byte(`{"ticker":"ADM","location":"Chicago","extra":1}`))
	require.NoError(t, err)
	assert.Equal(t, PredictRequest{Ticker: "ADM", Location: "Chicago"}, req)

	req, err = decodeFrame([]byte(`null`))
	require.NoError(t, err)
	assert.Equal(t, PredictRequest{}, req)

	for _, bad := range []string{`[1]`, `"ticker"`, `{"ticker":1}`, ``} {
		_, err := decodeFrame([]byte(bad))
		assert.Error(t, err, bad)
	}
}
