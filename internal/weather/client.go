// ABOUTME: OpenWeatherMap client exposed as the "weather" capability
// ABOUTME: Rate limited with x/time/rate; all failures become status=error payloads

package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/2389/skycast-gateway/internal/capability"
)

// DefaultBaseURL is the OpenWeatherMap API root.
const DefaultBaseURL = "https://api.openweathermap.org"

// APIKeyEnv is consulted when no key is configured.
const APIKeyEnv = "OPENWEATHER_API_KEY"

// MissingAPIKeyMessage is reported when neither config nor environment carry a key.
const MissingAPIKeyMessage = "Missing OpenWeatherMap API key"

// Config configures a Client.
type Config struct {
	APIKey            string
	BaseURL           string
	Timeout           time.Duration
	RequestsPerMinute int
	HTTPClient        *http.Client
}

// Client fetches current conditions for a location.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// New creates a weather client. Zero values fall back to the public API root,
// a 10 second timeout and 60 requests per minute.
func New(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 60
	}
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), rpm),
	}
}

// Name implements capability.Capability.
func (c *Client) Name() string { return capability.Weather }

// Invoke implements capability.Capability. It reads the "location" argument.
func (c *Client) Invoke(ctx context.Context, req capability.Request) capability.Result {
	return c.Fetch(ctx, req.String("location", ""))
}

// apiResponse is the subset of the current-weather response we read.
type apiResponse struct {
	Main struct {
		Temp     *float64 `json:"temp"`
		Humidity *float64 `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Message string `json:"message"`
}

// Fetch looks up the current weather for location.
func (c *Client) Fetch(ctx context.Context, location string) capability.Result {
	apiKey := c.apiKey
	if apiKey == "" {
		apiKey = os.Getenv(APIKeyEnv)
	}
	if apiKey == "" {
		return capability.Failure(MissingAPIKeyMessage)
	}

	data, err := c.get(ctx, location, apiKey)
	if err != nil {
		return capability.Failuref("Failed to fetch weather: %v", err)
	}

	return capability.Success(capability.Payload{
		"location":          location,
		"temperature":       *data.Main.Temp,
		"humidity":          *data.Main.Humidity,
		"weather_condition": data.Weather[0].Description,
		"timestamp":         capability.Stamp(),
	})
}

func (c *Client) get(ctx context.Context, location, apiKey string) (*apiResponse, error) {
	if strings.TrimSpace(location) == "" {
		return nil, errors.New("location is required")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	q := url.Values{}
	q.Set("q", location)
	q.Set("units", "metric")
	q.Set("appid", apiKey)
	endpoint := c.baseURL + "/data/2.5/weather?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, redactKey(err, apiKey)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var data apiResponse
	decodeErr := json.Unmarshal(body, &data)
	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && data.Message != "" {
			return nil, fmt.Errorf("%d %s: %s", resp.StatusCode, http.StatusText(resp.StatusCode), data.Message)
		}
		return nil, fmt.Errorf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decoding response: %w", decodeErr)
	}
	if data.Main.Temp == nil || data.Main.Humidity == nil || len(data.Weather) == 0 {
		return nil, errors.New("incomplete weather data in response")
	}
	return &data, nil
}

// redactKey strips the API key from transport errors, which embed the URL.
func redactKey(err error, apiKey string) error {
	return errors.New(strings.ReplaceAll(err.Error(), apiKey, "REDACTED"))
}
