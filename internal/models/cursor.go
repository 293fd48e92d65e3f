package models

import "time"

// ChatCursor is the resumption marker for incremental chat fetches: the
// identifier of the last server-confirmed message this client has seen.
// One row per session; the only offline state kept besides the session.
type ChatCursor struct {
	ID         uint   `gorm:"primaryKey"`
	LastSeenID string `gorm:"size:64"`
	UpdatedAt  time.Time
}
