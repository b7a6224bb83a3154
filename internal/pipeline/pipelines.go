// ABOUTME: Concrete pipelines: weather→prediction for the stream and weather→activities for trips
// ABOUTME: Each Plan carries its stages and the seed input it runs with

package pipeline

import (
	"strings"

	"github.com/2389/skycast-gateway/internal/capability"
)

// Stage and pipeline names.
const (
	StageWeather    = "weather"
	StagePrediction = "prediction"
	StageActivities = "activities"

	WeatherPredictionName = "weather_prediction"
	TripPlannerName       = "trip_planner"
)

// Defaults applied to stream and predict requests.
const (
	DefaultTicker   = "ADM"
	DefaultLocation = "Chicago"
)

// Plan is a named stage list with its seed input.
type Plan struct {
	Name   string
	Stages []StageSpec
	Input  capability.Payload
}

// WeatherPrediction fetches the weather at location, then predicts the next
// close of ticker using it. Empty arguments take the defaults.
func WeatherPrediction(ticker, location string) Plan {
	ticker = strings.TrimSpace(ticker)
	if ticker == "" {
		ticker = DefaultTicker
	}
	location = strings.TrimSpace(location)
	if location == "" {
		location = DefaultLocation
	}

	return Plan{
		Name:  WeatherPredictionName,
		Input: capability.Payload{"ticker": ticker, "location": location},
		Stages: []StageSpec{
			{
				Name:       StageWeather,
				Capability: capability.Weather,
				Input: func(rc *RunContext) capability.Request {
					return capability.NewRequest(capability.Weather, map[string]any{
						"location": rc.Input().Text("location"),
					})
				},
			},
			{
				Name:       StagePrediction,
				Capability: capability.Predict,
				Input: func(rc *RunContext) capability.Request {
					return capability.NewRequest(capability.Predict, map[string]any{
						"ticker":       rc.Input().Text("ticker"),
						"weather_data": rc.Wire(StageWeather),
					})
				},
			},
		},
	}
}

// TripPlanner fetches the weather at destination, then suggests activities
// for it. Interests and budget are fixed inputs from the seed.
func TripPlanner(destination string, interests []string, budget float64) Plan {
	return Plan{
		Name: TripPlannerName,
		Input: capability.Payload{
			"destination": strings.TrimSpace(destination),
			"interests":   append([]string(nil), interests...),
			"budget":      budget,
		},
		Stages: []StageSpec{
			{
				Name:       StageWeather,
				Capability: capability.Weather,
				Input: func(rc *RunContext) capability.Request {
					return capability.NewRequest(capability.Weather, map[string]any{
						"location": rc.Input().Text("destination"),
					})
				},
			},
			{
				Name:       StageActivities,
				Capability: capability.SuggestActivities,
				Input: func(rc *RunContext) capability.Request {
					in := rc.Input()
					return capability.NewRequest(capability.SuggestActivities, map[string]any{
						"weather_data": rc.Wire(StageWeather),
						"interests":    in["interests"],
						"budget":       in["budget"],
					})
				},
			},
		},
	}
}
