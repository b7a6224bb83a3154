// ABOUTME: Stock price prediction capability combining price history with weather features
// ABOUTME: Fits next-day close against temperature and humidity over a 30 day window

package predict

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/2389/skycast-gateway/internal/capability"
)

// Window is the amount of history used for each fit.
const Window = 30 * 24 * time.Hour

// Predictor implements the "predict" capability.
type Predictor struct {
	source PriceSource
	now    func() time.Time
}

// New creates a predictor backed by source.
func New(source PriceSource) *Predictor {
	return &Predictor{source: source, now: time.Now}
}

// Name implements capability.Capability.
func (p *Predictor) Name() string { return capability.Predict }

// Invoke reads "ticker" and "weather_data". The weather payload may be a
// failure payload; missing temperature or humidity count as zero.
func (p *Predictor) Invoke(ctx context.Context, req capability.Request) capability.Result {
	return p.PredictPrice(ctx, req.String("ticker", ""), req.Map("weather_data"))
}

// PredictPrice predicts the next closing price for ticker.
func (p *Predictor) PredictPrice(ctx context.Context, ticker string, weather capability.Payload) capability.Result {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return capability.Failure("Prediction failed: ticker is required")
	}

	end := p.now()
	closes, err := p.source.Closes(ctx, ticker, end.Add(-Window), end)
	if errors.Is(err, ErrNoData) || (err == nil && len(closes) == 0) {
		return capability.Failuref("No stock data for %s", ticker)
	}
	if err != nil {
		return capability.Failuref("Prediction failed: %v", err)
	}
	if len(closes) < 2 {
		return capability.Failuref("Prediction failed: need at least 2 closing prices for %s, got %d", ticker, len(closes))
	}

	temperature := weather.Number("temperature", 0)
	humidity := weather.Number("humidity", 0)

	// Every row shares the current weather reading; the target is the
	// following day's close, so the last row has no label.
	x := make([][]float64, len(closes)-1)
	y := make([]float64, len(closes)-1)
	for i := 0; i < len(closes)-1; i++ {
		x[i] = []float64{temperature, humidity}
		y[i] = closes[i+1]
	}

	model, err := Fit(x, y)
	if err != nil {
		return capability.Failuref("Prediction failed: %v", err)
	}
	predicted := model.Predict([]float64{temperature, humidity})

	return capability.Success(capability.Payload{
		"ticker":          ticker,
		"predicted_price": round2(predicted),
		"timestamp":       capability.Stamp(),
	})
}
