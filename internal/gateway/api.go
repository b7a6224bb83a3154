// ABOUTME: HTTP API handlers for single-shot trip and prediction runs plus the run log
// ABOUTME: One session per call; every delivered run is recorded to the store

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/2389/skycast-gateway/internal/auth"
	"github.com/2389/skycast-gateway/internal/capability"
	"github.com/2389/skycast-gateway/internal/pipeline"
	"github.com/2389/skycast-gateway/internal/session"
	"github.com/2389/skycast-gateway/internal/store"
)

const (
	maxBodyBytes  = 1 << 20
	dateLayout    = "2006-01-02"
	recordTimeout = 5 * time.Second
)

// TripRequest is the body of POST /api/trip.
type TripRequest struct {
	Destination string   `json:"destination"`
	StartDate   string   `json:"start_date"`
	EndDate     string   `json:"end_date"`
	Budget      *float64 `json:"budget"`
	Interests   []string `json:"interests"`
}

// TripResponse is the body returned by POST /api/trip.
type TripResponse struct {
	Destination string         `json:"destination"`
	Weather     map[string]any `json:"weather"`
	Activities  []any          `json:"activities"`
	Timestamp   string         `json:"timestamp"`
}

// PredictRequest is one prediction request, over HTTP or a stream frame.
type PredictRequest struct {
	Ticker   string `json:"ticker"`
	Location string `json:"location"`
}

// PredictResponse pairs the weather used with the prediction made from it.
type PredictResponse struct {
	Weather    map[string]any `json:"weather"`
	Prediction map[string]any `json:"prediction"`
	Timestamp  string         `json:"timestamp"`
}

// RunResponse is one run log entry.
type RunResponse struct {
	ID          string          `json:"id"`
	RunID       string          `json:"run_id"`
	AppName     string          `json:"app_name"`
	UserID      string          `json:"user_id"`
	Pipeline    string          `json:"pipeline"`
	Status      string          `json:"status"`
	FailedStage string          `json:"failed_stage,omitempty"`
	Source      string          `json:"source,omitempty"`
	Request     json.RawMessage `json:"request,omitempty"`
	Response    json.RawMessage `json:"response,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ListRunsResponse is the body returned by GET /api/runs.
type ListRunsResponse struct {
	Runs []RunResponse `json:"runs"`
}

// Validate checks the trip request and normalizes it.
func (req *TripRequest) Validate() error {
	req.Destination = strings.TrimSpace(req.Destination)
	if req.Destination == "" {
		return errors.New("destination is required")
	}
	if req.Budget == nil {
		return errors.New("budget is required")
	}
	if *req.Budget < 0 {
		return errors.New("budget must not be negative")
	}

	var start, end time.Time
	var err error
	if req.StartDate != "" {
		if start, err = time.Parse(dateLayout, req.StartDate); err != nil {
			return fmt.Errorf("start_date must be YYYY-MM-DD, got %q", req.StartDate)
		}
	}
	if req.EndDate != "" {
		if end, err = time.Parse(dateLayout, req.EndDate); err != nil {
			return fmt.Errorf("end_date must be YYYY-MM-DD, got %q", req.EndDate)
		}
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return errors.New("end_date must not be before start_date")
	}
	return nil
}

// handleTrip handles POST /api/trip.
func (g *Gateway) handleTrip(w http.ResponseWriter, r *http.Request) {
	var req TripRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, ok := g.openSession(w, r)
	if !ok {
		return
	}
	defer g.sessions.Release(sess)

	plan := pipeline.TripPlanner(req.Destination, req.Interests, *req.Budget)
	body, err := g.runPlan(r.Context(), sess, plan, func(rc *pipeline.RunContext) any {
		return tripBody(req.Destination, rc)
	})
	if err != nil {
		g.logger.Error("trip run failed", "run_id", sess.RunID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	g.sendJSON(w, http.StatusOK, body)
}

// handlePredict handles POST /api/predict. An empty body uses the defaults.
func (g *Gateway) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req PredictRequest
	if err := decodeBody(w, r, &req, true); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, ok := g.openSession(w, r)
	if !ok {
		return
	}
	defer g.sessions.Release(sess)

	body, err := g.runPlan(r.Context(), sess, pipeline.WeatherPrediction(req.Ticker, req.Location), predictBody)
	if err != nil {
		g.logger.Error("prediction run failed", "run_id", sess.RunID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	g.sendJSON(w, http.StatusOK, body)
}

// handleListRuns handles GET /api/runs?limit=N&pipeline=P&run_id=R.
func (g *Gateway) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunFilter{
		RunID:    q.Get("run_id"),
		Pipeline: q.Get("pipeline"),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			g.sendJSONError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}

	runs, err := g.store.ListRuns(r.Context(), filter)
	if err != nil {
		g.logger.Error("listing runs", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	resp := ListRunsResponse{Runs: make([]RunResponse, 0, len(runs))}
	for _, run := range runs {
		resp.Runs = append(resp.Runs, runResponse(run))
	}
	g.sendJSON(w, http.StatusOK, resp)
}

// handleGetRun handles GET /api/runs/{id}.
func (g *Gateway) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := g.store.GetRun(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		g.logger.Error("getting run", "id", r.PathValue("id"), "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to get run")
		return
	}
	g.sendJSON(w, http.StatusOK, runResponse(run))
}

func runResponse(run *store.Run) RunResponse {
	return RunResponse{
		ID:          run.ID,
		RunID:       run.RunID,
		AppName:     run.AppName,
		UserID:      run.UserID,
		Pipeline:    run.Pipeline,
		Status:      run.Status,
		FailedStage: run.FailedStage,
		Source:      run.Source,
		Request:     run.Request,
		Response:    run.Response,
		CreatedAt:   run.CreatedAt,
	}
}

// openSession creates the caller's session or writes the error response.
func (g *Gateway) openSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := g.sessions.Create(auth.Subject(r.Context(), g.config.Session.DefaultUser))
	switch {
	case err == nil:
		return sess, true
	case errors.Is(err, session.ErrCapacity):
		g.sendJSONError(w, http.StatusServiceUnavailable, "too many live sessions")
	default:
		g.logger.Error("creating session", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to create session")
	}
	return nil, false
}

// runPlan executes plan under the runner policy, renders the delivered
// context and records the run. A panic while running is returned as an error.
func (g *Gateway) runPlan(ctx context.Context, sess *session.Session, plan pipeline.Plan, render func(*pipeline.RunContext) any) (body any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("run panicked: %v", p)
			g.recordRun(ctx, sess, plan, pipeline.Outcome{}, nil, err)
		}
	}()

	outcome, err := g.runner.Execute(ctx, plan)
	if err != nil {
		g.recordRun(ctx, sess, plan, outcome, nil, err)
		return nil, err
	}
	body = render(outcome.Context)
	g.recordRun(ctx, sess, plan, outcome, body, nil)
	return body, nil
}

// recordRun writes one run to the store. Store failures are logged only.
func (g *Gateway) recordRun(ctx context.Context, sess *session.Session, plan pipeline.Plan, outcome pipeline.Outcome, body any, runErr error) {
	run := &store.Run{
		RunID:       sess.RunID,
		AppName:     sess.AppName,
		UserID:      sess.UserID,
		Pipeline:    plan.Name,
		Source:      outcome.Source,
		FailedStage: outcome.Pipeline.FailedName,
	}
	switch {
	case runErr != nil:
		run.Status = store.RunStatusError
		body = capability.Failure(runErr.Error()).Wire()
	case outcome.Pipeline.Complete:
		run.Status = store.RunStatusComplete
	default:
		run.Status = store.RunStatusPartial
	}
	if data, err := json.Marshal(plan.Input); err == nil {
		run.Request = data
	}
	if data, err := json.Marshal(body); err == nil {
		run.Response = data
	}

	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := g.store.RecordRun(recordCtx, run); err != nil {
		g.logger.Warn("recording run", "run_id", sess.RunID, "pipeline", plan.Name, "error", err)
	}
}

// tripBody renders a trip planner context.
func tripBody(destination string, rc *pipeline.RunContext) TripResponse {
	resp := TripResponse{
		Destination: destination,
		Weather:     stageWire(rc, pipeline.StageWeather),
		Activities:  []any{},
		Timestamp:   capability.Stamp(),
	}
	if res, ok := rc.Get(pipeline.StageActivities); ok && res.OK() {
		if list, ok := res.Payload()["activities"].([]any); ok {
			resp.Activities = list
		}
	}
	return resp
}

// predictBody renders a weather prediction context.
func predictBody(rc *pipeline.RunContext) any {
	return PredictResponse{
		Weather:    stageWire(rc, pipeline.StageWeather),
		Prediction: stageWire(rc, pipeline.StagePrediction),
		Timestamp:  capability.Stamp(),
	}
}

// stageWire returns a stage's wire form, or a failure if it never ran.
func stageWire(rc *pipeline.RunContext, stage string) map[string]any {
	if w := rc.Wire(stage); w != nil {
		return w
	}
	return capability.Failuref("%s stage did not run", stage).Wire()
}

// decodeBody decodes a JSON object body. allowEmpty accepts an empty body.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		}
		return fmt.Errorf("invalid JSON body: %v", err)
	}
	return nil
}

// sendJSON writes v as a JSON response.
func (g *Gateway) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Warn("writing response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.sendJSON(w, status, map[string]string{"detail": message})
}
