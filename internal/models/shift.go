package models

import "time"

// Shift is a concrete bookable time block belonging to one posting.
type Shift struct {
	ID        string    `db:"id" json:"id"`
	PostingID string    `db:"posting_id" json:"posting_id"`
	StartTime time.Time `db:"start_time" json:"start_time"`
	EndTime   time.Time `db:"end_time" json:"end_time"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
