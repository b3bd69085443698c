package dto

import (
	"github.com/noah-isme/volunteer-scheduler-api/internal/models"
	"github.com/noah-isme/volunteer-scheduler-api/internal/scheduling"
)

// PostingRequest carries the editable fields of a posting.
type PostingRequest struct {
	BranchID           string                    `json:"branch_id" validate:"required,uuid"`
	Title              string                    `json:"title" validate:"required,max=200"`
	Description        string                    `json:"description" validate:"required,max=20000"`
	SkillIDs           []string                  `json:"skill_ids" validate:"omitempty,dive,uuid"`
	EmployeeIDs        []string                  `json:"employee_ids" validate:"omitempty,dive,uuid"`
	StartDate          models.Date               `json:"start_date"`
	EndDate            models.Date               `json:"end_date"`
	AutoClosingDate    models.Date               `json:"auto_closing_date"`
	NumVolunteers      int                       `json:"num_volunteers" validate:"required,min=1,max=1000"`
	RecurrenceInterval models.RecurrenceInterval `json:"recurrence_interval" validate:"required,oneof=NONE WEEKLY BIWEEKLY MONTHLY"`
	Times              []models.TimeBlock        `json:"times" validate:"omitempty,max=50,dive"`
}

// CreatePostingRequest is POST /postings; Status selects DRAFT or PUBLISHED.
type CreatePostingRequest struct {
	PostingRequest
	Status models.PostingStatus `json:"status" validate:"required,oneof=DRAFT PUBLISHED"`
}

// CreatePostingResponse returns the new posting id.
type CreatePostingResponse struct {
	ID string `json:"id"`
}

// PostingResponse is a posting with its relations and derived display status.
type PostingResponse struct {
	models.Posting
	SkillIDs      []string                    `json:"skill_ids,omitempty"`
	EmployeeIDs   []string                    `json:"employee_ids,omitempty"`
	ShiftCount    int                         `json:"shift_count"`
	DisplayStatus models.PostingDisplayStatus `json:"display_status"`
}

// PostingListQuery binds GET /postings query parameters.
type PostingListQuery struct {
	BranchID      string `form:"branch_id" validate:"omitempty,uuid"`
	Status        string `form:"status" validate:"omitempty,oneof=DRAFT PUBLISHED"`
	DisplayStatus string `form:"display_status" validate:"omitempty,oneof=DRAFT UNSCHEDULED SCHEDULED PAST"`
	Search        string `form:"search" validate:"omitempty,max=100"`
	Page          int    `form:"page" validate:"omitempty,min=1"`
	PageSize      int    `form:"page_size" validate:"omitempty,min=1,max=100"`
}

// ShiftPreviewRequest expands a schedule without saving it.
type ShiftPreviewRequest struct {
	StartDate          models.Date               `json:"start_date"`
	EndDate            models.Date               `json:"end_date"`
	RecurrenceInterval models.RecurrenceInterval `json:"recurrence_interval" validate:"required,oneof=NONE WEEKLY BIWEEKLY MONTHLY"`
	Times              []models.TimeBlock        `json:"times" validate:"required,min=1,max=50,dive"`
}

// ShiftPreviewResponse lists the shifts a schedule would produce.
type ShiftPreviewResponse struct {
	Count  int                 `json:"count"`
	Shifts []scheduling.Window `json:"shifts"`
}

// DraftReviewRequest carries the wizard aggregate for the final review step.
type DraftReviewRequest struct {
	BasicInfo scheduling.DraftBasicInfo `json:"basic_info"`
	Schedule  scheduling.DraftSchedule  `json:"schedule"`
}
