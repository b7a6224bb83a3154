// Package weather implements the weather capability on top of the
// OpenWeatherMap current-weather API.
//
// The client never returns Go errors to callers: a missing API key, an HTTP
// failure or an unexpected body all become capability.Failure results with a
// human readable error_message. Outbound requests share a token-bucket
// limiter so a busy gateway stays inside the provider's request quota.
package weather
