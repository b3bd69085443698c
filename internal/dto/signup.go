package dto

import (
	"github.com/noah-isme/volunteer-scheduler-api/internal/models"
	"github.com/noah-isme/volunteer-scheduler-api/internal/scheduling"
)

// SignupUpsert creates or updates the signup of UserID on ShiftID. Volunteers
// may omit UserID to act on themselves.
type SignupUpsert struct {
	ShiftID       string              `json:"shift_id" validate:"required,uuid"`
	UserID        string              `json:"user_id" validate:"omitempty,uuid"`
	NumVolunteers int                 `json:"num_volunteers" validate:"required,min=1,max=100"`
	Note          string              `json:"note" validate:"max=1000"`
	Status        models.SignupStatus `json:"status" validate:"omitempty,oneof=PENDING CONFIRMED"`
}

// SignupDelete removes the signup of UserID on ShiftID.
type SignupDelete struct {
	ShiftID string `json:"shift_id" validate:"required,uuid"`
	UserID  string `json:"user_id" validate:"omitempty,uuid"`
}

// SignupBatchRequest applies upserts and deletes together or not at all.
type SignupBatchRequest struct {
	Upserts []SignupUpsert `json:"upsert_shift_signups" validate:"max=500,dive"`
	Deletes []SignupDelete `json:"delete_shift_signups" validate:"max=500,dive"`
}

// SignupBatchResponse reports the outcome of a batch.
type SignupBatchResponse struct {
	Upserted []models.Signup `json:"upserted"`
	Deleted  int             `json:"deleted"`
}

// ReviewConfirmRequest confirms (or unconfirms) selected signups, or all open
// signups of the posting when SelectAll is set.
type ReviewConfirmRequest struct {
	SignupIDs []string `json:"signup_ids" validate:"omitempty,max=500,dive,uuid"`
	SelectAll bool     `json:"select_all"`
	Confirmed bool     `json:"confirmed"`
}

// ReviewConfirmResponse reports how many signups changed.
type ReviewConfirmResponse struct {
	Updated int `json:"updated"`
}

// PublishScheduleResponse reports the outcome of publishing.
type PublishScheduleResponse struct {
	Published int `json:"published"`
	Canceled  int `json:"canceled"`
}

// ReviewResponse is the review table of one posting.
type ReviewResponse struct {
	PostingID     string                      `json:"posting_id"`
	Title         string                      `json:"title"`
	NumVolunteers int                         `json:"num_volunteers"`
	DisplayStatus models.PostingDisplayStatus `json:"display_status"`
	scheduling.Review
}

// ExportQuery selects the roster export format.
type ExportQuery struct {
	Format string `form:"format" validate:"omitempty,oneof=csv pdf"`
}
