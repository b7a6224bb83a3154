// ABOUTME: Activity suggestion capability driven by weather, interests and budget
// ABOUTME: Falls back to "relax at hotel" when no catalogue entry qualifies

package activities

import (
	"context"
	"slices"
	"strings"

	"github.com/2389/skycast-gateway/internal/capability"
)

// AnyWeather marks an activity that suits every condition.
const AnyWeather = "any"

// Activity is one suggestion.
type Activity struct {
	Name            string   `json:"name"`
	Cost            float64  `json:"cost"`
	SuitableWeather []string `json:"suitable_weather"`
}

// Relax is returned when nothing else fits.
var Relax = Activity{Name: "relax at hotel", Cost: 0, SuitableWeather: []string{AnyWeather}}

// DefaultCatalog maps an interest to its activity. Weather tags are matched
// as substrings of the provider's condition text ("clear sky", "light rain").
var DefaultCatalog = map[string]Activity{
	"hiking":   {Name: "hiking", Cost: 10, SuitableWeather: []string{"clear", "sun", "few clouds", "scattered clouds"}},
	"cycling":  {Name: "cycling", Cost: 12, SuitableWeather: []string{"clear", "sun", "clouds"}},
	"beach":    {Name: "beach", Cost: 5, SuitableWeather: []string{"clear", "sun"}},
	"museum":   {Name: "museum", Cost: 20, SuitableWeather: []string{AnyWeather}},
	"food":     {Name: "food tour", Cost: 30, SuitableWeather: []string{AnyWeather}},
	"shopping": {Name: "shopping", Cost: 25, SuitableWeather: []string{AnyWeather}},
	"skiing":   {Name: "skiing", Cost: 60, SuitableWeather: []string{"snow"}},
	"theater":  {Name: "theater", Cost: 40, SuitableWeather: []string{AnyWeather}},
}

// Suggester implements the "suggest_activities" capability.
type Suggester struct {
	catalog map[string]Activity
}

// New creates a suggester. A nil catalog uses DefaultCatalog.
func New(catalog map[string]Activity) *Suggester {
	if catalog == nil {
		catalog = DefaultCatalog
	}
	return &Suggester{catalog: catalog}
}

// Name implements capability.Capability.
func (s *Suggester) Name() string { return capability.SuggestActivities }

// Invoke reads "weather_data", "interests" and "budget".
func (s *Suggester) Invoke(_ context.Context, req capability.Request) capability.Result {
	budget, ok := req.Float("budget")
	if !ok {
		return capability.Failure("Activity suggestion failed: budget is required")
	}
	if budget < 0 {
		return capability.Failure("Activity suggestion failed: budget must not be negative")
	}

	picked := s.Suggest(req.Map("weather_data"), req.Strings("interests"), budget)
	out := make([]any, 0, len(picked))
	for _, a := range picked {
		out = append(out, map[string]any{
			"name":             a.Name,
			"cost":             a.Cost,
			"suitable_weather": append([]string(nil), a.SuitableWeather...),
		})
	}
	return capability.Success(capability.Payload{
		"activities": out,
		"timestamp":  capability.Stamp(),
	})
}

// Suggest returns the catalogue entries for interests, in interest order,
// that cost at most budget and suit the weather. Duplicated or unknown
// interests are ignored. The result is never empty.
func (s *Suggester) Suggest(weather capability.Payload, interests []string, budget float64) []Activity {
	condition := Condition(weather)
	var picked []Activity
	seen := make(map[string]bool)
	for _, interest := range interests {
		key := strings.ToLower(strings.TrimSpace(interest))
		if seen[key] {
			continue
		}
		seen[key] = true
		a, ok := s.catalog[key]
		if !ok || a.Cost > budget || !suits(a, condition) {
			continue
		}
		picked = append(picked, a)
	}
	if len(picked) == 0 {
		return []Activity{Relax}
	}
	return picked
}

// Condition extracts the lowercase weather condition from a payload. Failed
// weather payloads yield the empty string.
func Condition(weather capability.Payload) string {
	c := weather.Text("weather_condition")
	if c == "" {
		c = weather.Text("condition")
	}
	return strings.ToLower(strings.TrimSpace(c))
}

func suits(a Activity, condition string) bool {
	if slices.Contains(a.SuitableWeather, AnyWeather) {
		return true
	}
	if condition == "" {
		return false
	}
	for _, w := range a.SuitableWeather {
		if strings.Contains(condition, w) {
			return true
		}
	}
	return false
}
