// Package session hands out per-run and per-connection sessions whose run
// IDs are unique among live sessions and are not reissued while they are
// remembered as recently ended.
package session
