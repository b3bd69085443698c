package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// PostingStatus is the persisted lifecycle state of a posting.
type PostingStatus string

const (
	PostingStatusDraft     PostingStatus = "DRAFT"
	PostingStatusPublished PostingStatus = "PUBLISHED"
)

// PostingDisplayStatus is derived on read and never stored.
type PostingDisplayStatus string

const (
	DisplayStatusDraft       PostingDisplayStatus = "DRAFT"
	DisplayStatusUnscheduled PostingDisplayStatus = "UNSCHEDULED"
	DisplayStatusScheduled   PostingDisplayStatus = "SCHEDULED"
	DisplayStatusPast        PostingDisplayStatus = "PAST"
)

// RecurrenceInterval controls how often template time blocks repeat.
type RecurrenceInterval string

const (
	RecurrenceNone     RecurrenceInterval = "NONE"
	RecurrenceWeekly   RecurrenceInterval = "WEEKLY"
	RecurrenceBiweekly RecurrenceInterval = "BIWEEKLY"
	RecurrenceMonthly  RecurrenceInterval = "MONTHLY"
)

// TimeBlock is a template shift inside one representative week.
// Start and End use the 24h "HH:MM" format.
type TimeBlock struct {
	Weekday time.Weekday `json:"weekday" validate:"min=0,max=6"`
	Start   string       `json:"start" validate:"required"`
	End     string       `json:"end" validate:"required"`
}

// TimeBlocks is stored as a JSONB array on the posting row.
type TimeBlocks []TimeBlock

// Value implements driver.Valuer.
func (b TimeBlocks) Value() (driver.Value, error) {
	if b == nil {
		return "[]", nil
	}
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan implements sql.Scanner.
func (b *TimeBlocks) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*b = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into TimeBlocks", src)
	}
	return json.Unmarshal(raw, b)
}

// Posting is a volunteer opportunity offered by a branch.
type Posting struct {
	ID                 string             `db:"id" json:"id"`
	BranchID           string             `db:"branch_id" json:"branch_id"`
	Title              string             `db:"title" json:"title"`
	Description        string             `db:"description" json:"description"`
	StartDate          Date               `db:"start_date" json:"start_date"`
	EndDate            Date               `db:"end_date" json:"end_date"`
	AutoClosingDate    Date               `db:"auto_closing_date" json:"auto_closing_date"`
	NumVolunteers      int                `db:"num_volunteers" json:"num_volunteers"`
	RecurrenceInterval RecurrenceInterval `db:"recurrence_interval" json:"recurrence_interval"`
	Status             PostingStatus      `db:"status" json:"status"`
	Times              TimeBlocks         `db:"times" json:"times"`
	CreatedBy          *string            `db:"created_by" json:"created_by,omitempty"`
	CreatedAt          time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time          `db:"updated_at" json:"updated_at"`
}

// PostingSummary is a posting row joined with its shift count.
type PostingSummary struct {
	Posting
	ShiftCount int `db:"shift_count" json:"shift_count"`
}

// PostingFilter captures filtering criteria for listing postings.
type PostingFilter struct {
	BranchID string
	Status   *PostingStatus
	Search   string
	Page     int
	PageSize int
}
