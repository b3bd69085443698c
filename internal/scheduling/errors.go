package scheduling

import "errors"

var (
	ErrInvalidDateRange    = errors.New("start date must not be after end date")
	ErrInvalidClosingDate  = errors.New("auto closing date must be before start date")
	ErrInvalidInterval     = errors.New("unknown recurrence interval")
	ErrInvalidTimeBlock    = errors.New("time block must start before it ends")
	ErrInvalidClock        = errors.New("time of day must use HH:MM")
	ErrInvalidTransition   = errors.New("status transition not allowed")
	ErrSignupFinalized     = errors.New("signup is already canceled or published")
	ErrNoConfirmedSignups  = errors.New("no confirmed signups to publish")
	ErrPostingPublished    = errors.New("published posting cannot return to draft")
	ErrDraftIncomplete     = errors.New("posting draft is incomplete")
	ErrInvalidBasicInfo    = errors.New("posting basic info is invalid")
	ErrMissingScheduleDate = errors.New("start, end and auto closing dates are required")
)
