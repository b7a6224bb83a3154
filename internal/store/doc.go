// Package store persists the gateway's run log using SQLite.
//
// # Data Model
//
// Every pipeline delivery (one single-shot call, or one round of a streaming
// connection) is written as a Run: the session identity, the pipeline name,
// whether the orchestrator completed or stopped at a stage, which source
// produced the delivered body, and the request and response JSON.
//
// # SQLite Configuration
//
// The store uses modernc.org/sqlite (pure Go) with WAL mode:
//
//	PRAGMA journal_mode=WAL;
//
// Database file locations:
//
//   - Production: /var/lib/skycast-gateway/gateway.db
//   - Development: ~/.local/share/skycast/gateway.db
//   - Testing: :memory: or t.TempDir()
//
// # Testing
//
// Use NewMockStore() where a RunStore is needed without SQLite.
//
// # Migrations
//
// runMigrations adds columns introduced after the first schema. Each
// migration checks pragma_table_info first, so they are safe to rerun.
package store
