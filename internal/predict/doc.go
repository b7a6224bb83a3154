// Package predict implements the "predict" capability: a next-day closing
// price estimate for a ticker, fitted against the weather reading produced
// by the previous pipeline stage.
//
// Price history comes from a PriceSource (YahooSource in production). The
// model is an ordinary least squares fit with intercept over the last 30
// days, implemented in regression.go.
package predict
