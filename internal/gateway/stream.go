// ABOUTME: WebSocket streaming of weather-driven price predictions on GET /ws/predict
// ABOUTME: Rounds run on each frame and refresh on a fixed interval until the client disconnects

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/2389/skycast-gateway/internal/auth"
	"github.com/2389/skycast-gateway/internal/capability"
	"github.com/2389/skycast-gateway/internal/pipeline"
	"github.com/2389/skycast-gateway/internal/session"
)

const (
	writeTimeout = 10 * time.Second
	// frameQueue bounds frames read ahead of the round loop. A full queue
	// stalls the reader rather than dropping frames.
	frameQueue = 32
)

// handlePredictStream upgrades to a WebSocket and serves prediction rounds.
func (g *Gateway) handlePredictStream(w http.ResponseWriter, r *http.Request) {
	// Counted before Accept hijacks the connection, while http.Server
	// still tracks it, so Shutdown cannot start waiting first.
	g.streams.Add(1)
	defer g.streams.Done()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: g.config.Stream.OriginPatterns,
	})
	if err != nil {
		g.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()
	if g.config.Stream.MaxMessageBytes > 0 {
		conn.SetReadLimit(g.config.Stream.MaxMessageBytes)
	}

	sess, err := g.sessions.Create(auth.Subject(r.Context(), g.config.Session.DefaultUser))
	switch {
	case errors.Is(err, session.ErrCapacity):
		g.logger.Warn("refusing stream", "error", err)
		conn.Close(websocket.StatusTryAgainLater, "too many live sessions")
		return
	case err != nil:
		g.logger.Error("creating session", "error", err)
		conn.Close(websocket.StatusInternalError, "failed to create session")
		return
	}
	defer g.sessions.Release(sess)

	logger := g.logger.With("run_id", sess.RunID, "user_id", sess.UserID)
	logger.Info("stream opened", "remote", r.RemoteAddr)

	s := &stream{
		gw:       g,
		conn:     conn,
		sess:     sess,
		interval: g.config.Stream.Interval,
		frames:   make(chan []byte, frameQueue),
		gone:     make(chan struct{}),
	}
	// The reader outlives serve so close frames can still be exchanged;
	// cancelling a Read closes the connection.
	readCtx, cancelRead := context.WithCancel(context.Background())
	defer cancelRead()
	go s.read(readCtx)

	reason := s.serve(r.Context())
	logger.Info("stream closed", "reason", reason)

	if errors.Is(reason, errShuttingDown) {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

var (
	errDisconnected = errors.New("client disconnected")
	errShuttingDown = errors.New("server shutting down")
)

// stream is one connection's round loop.
type stream struct {
	gw       *Gateway
	conn     *websocket.Conn
	sess     *session.Session
	interval time.Duration

	frames chan []byte
	gone   chan struct{} // closed by the reader on transport failure
	err    error         // read error, set before gone is closed
}

// serve runs rounds until the client disconnects or the gateway shuts down.
// It returns why the loop ended.
func (s *stream) serve(ctx context.Context) error {
	var last *PredictRequest
	var refresh <-chan time.Time

	for {
		select {
		case <-s.gw.streamCtx.Done():
			return errShuttingDown
		case <-s.gone:
			return s.disconnectReason()
		case frame := <-s.frames:
			req, err := decodeFrame(frame)
			if err != nil {
				if werr := s.send(ctx, capability.Failure(err.Error()).Wire()); werr != nil {
					return werr
				}
				continue
			}
			last = &req
		case <-refresh:
		}

		if err := s.send(ctx, s.round(ctx, *last)); err != nil {
			return err
		}
		refresh = time.After(s.interval)
	}
}

// read queues inbound frames until the transport fails or ctx ends.
func (s *stream) read(ctx context.Context) {
	defer close(s.gone)
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			s.err = err
			return
		}
		select {
		case s.frames <- data:
		case <-ctx.Done():
			s.err = ctx.Err()
			return
		}
	}
}

func (s *stream) disconnectReason() error {
	switch websocket.CloseStatus(s.err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return errDisconnected
	}
	return fmt.Errorf("%w: %v", errDisconnected, s.err)
}

// round runs one weather prediction and returns the envelope to send.
// Errors and panics become failure envelopes so the connection survives.
func (s *stream) round(ctx context.Context, req PredictRequest) (envelope any) {
	plan := pipeline.WeatherPrediction(req.Ticker, req.Location)
	defer func() {
		if p := recover(); p != nil {
			err := fmt.Errorf("round panicked: %v", p)
			s.gw.logger.Error("stream round failed", "run_id", s.sess.RunID, "error", err)
			envelope = capability.Failure(err.Error()).Wire()
		}
	}()

	body, err := s.gw.runPlan(ctx, s.sess, plan, predictBody)
	if err != nil {
		s.gw.logger.Warn("stream round failed", "run_id", s.sess.RunID, "error", err)
		return capability.Failure(err.Error()).Wire()
	}
	return body
}

func (s *stream) send(ctx context.Context, v any) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, s.conn, v); err != nil {
		return fmt.Errorf("%w: write: %v", errDisconnected, err)
	}
	return nil
}

// decodeFrame parses one inbound request. Missing fields take the pipeline
// defaults.
func decodeFrame(data []byte) (PredictRequest, error) {
	var req PredictRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return PredictRequest{}, fmt.Errorf("invalid request: %v", err)
	}
	return req, nil
}
