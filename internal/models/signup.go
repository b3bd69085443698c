package models

import "time"

// SignupStatus tracks a volunteer's claim through review and publishing.
type SignupStatus string

const (
	SignupStatusPending   SignupStatus = "PENDING"
	SignupStatusConfirmed SignupStatus = "CONFIRMED"
	SignupStatusCanceled  SignupStatus = "CANCELED"
	SignupStatusPublished SignupStatus = "PUBLISHED"
)

// Signup is a volunteer's claim on a shift. One per (shift, user).
type Signup struct {
	ID            string       `db:"id" json:"id"`
	ShiftID       string       `db:"shift_id" json:"shift_id"`
	UserID        string       `db:"user_id" json:"user_id"`
	NumVolunteers int          `db:"num_volunteers" json:"num_volunteers"`
	Note          string       `db:"note" json:"note"`
	Status        SignupStatus `db:"status" json:"status"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updated_at"`
}

// SignupKey identifies a signup by its natural key.
type SignupKey struct {
	ShiftID string `json:"shift_id" validate:"required,uuid"`
	UserID  string `json:"user_id" validate:"required,uuid"`
}

// SignupDetail is a signup joined with its shift and posting for a volunteer's own listing.
type SignupDetail struct {
	Signup
	PostingID    string    `db:"posting_id" json:"posting_id"`
	PostingTitle string    `db:"posting_title" json:"posting_title"`
	ShiftStart   time.Time `db:"shift_start" json:"shift_start"`
	ShiftEnd     time.Time `db:"shift_end" json:"shift_end"`
}

// ReviewRow is one flat (shift, signup, volunteer) tuple. Signup and volunteer
// columns are nil for shifts nobody signed up for.
type ReviewRow struct {
	ShiftID       string        `db:"shift_id"`
	ShiftStart    time.Time     `db:"shift_start"`
	ShiftEnd      time.Time     `db:"shift_end"`
	SignupID      *string       `db:"signup_id"`
	UserID        *string       `db:"user_id"`
	NumVolunteers *int          `db:"num_volunteers"`
	Note          *string       `db:"note"`
	Status        *SignupStatus `db:"status"`
	FirstName     *string       `db:"first_name"`
	LastName      *string       `db:"last_name"`
	Email         *string       `db:"email"`
	PhoneNumber   *string       `db:"phone_number"`
}
