// Package activities implements the "suggest_activities" capability. It
// matches a traveller's interests against a fixed catalogue, keeping entries
// that fit the budget and the current weather. When nothing qualifies the
// suggestion degrades to a single free "relax at hotel" entry rather than an
// empty answer.
package activities
