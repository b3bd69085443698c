package scheduling

import (
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/volunteer-scheduler-api/internal/models"
)

// DraftStep names the wizard step a draft has reached.
type DraftStep string

const (
	StepBasicInfo DraftStep = "BASIC_INFO"
	StepSchedule  DraftStep = "SCHEDULE"
	StepReview    DraftStep = "REVIEW"
)

// DraftBasicInfo is the first wizard step.
type DraftBasicInfo struct {
	BranchID      string   `json:"branch_id"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	SkillIDs      []string `json:"skill_ids"`
	EmployeeIDs   []string `json:"employee_ids"`
	NumVolunteers int      `json:"num_volunteers"`
}

// DraftSchedule is the second wizard step.
type DraftSchedule struct {
	StartDate          models.Date               `json:"start_date"`
	EndDate            models.Date               `json:"end_date"`
	AutoClosingDate    models.Date               `json:"auto_closing_date"`
	RecurrenceInterval models.RecurrenceInterval `json:"recurrence_interval"`
	Times              []models.TimeBlock        `json:"times"`
}

// PostingDraft accumulates the posting wizard. It is plain data so a client
// can carry it between steps; nothing is persisted until submit.
type PostingDraft struct {
	Step      DraftStep       `json:"step"`
	BasicInfo *DraftBasicInfo `json:"basic_info,omitempty"`
	Schedule  *DraftSchedule  `json:"schedule,omitempty"`
}

// DraftReview is the outcome of the final wizard step.
type DraftReview struct {
	Draft         PostingDraft                `json:"draft"`
	Shifts        []Window                    `json:"shifts"`
	DisplayStatus models.PostingDisplayStatus `json:"display_status_if_published"`
}

// NewPostingDraft starts an empty draft at the first step.
func NewPostingDraft() *PostingDraft {
	return &PostingDraft{Step: StepBasicInfo}
}

// SetBasicInfo records the first step and advances to scheduling.
func (d *PostingDraft) SetBasicInfo(info DraftBasicInfo) error {
	info.Title = strings.TrimSpace(info.Title)
	switch {
	case info.BranchID == "":
		return fmt.Errorf("%w: branch is required", ErrInvalidBasicInfo)
	case info.Title == "":
		return fmt.Errorf("%w: title is required", ErrInvalidBasicInfo)
	case strings.TrimSpace(info.Description) == "":
		return fmt.Errorf("%w: description is required", ErrInvalidBasicInfo)
	case info.NumVolunteers < 1:
		return fmt.Errorf("%w: at least one volunteer is required", ErrInvalidBasicInfo)
	}
	d.BasicInfo = &info
	if d.Step == "" || d.Step == StepBasicInfo {
		d.Step = StepSchedule
	}
	return nil
}

// SetSchedule records the dates, interval and template blocks.
func (d *PostingDraft) SetSchedule(s DraftSchedule) error {
	if d.BasicInfo == nil {
		return fmt.Errorf("%w: basic info must be set first", ErrDraftIncomplete)
	}
	if err := ValidatePostingDates(s.StartDate, s.EndDate, s.AutoClosingDate); err != nil {
		return err
	}
	if _, err := IntervalWeeks(s.RecurrenceInterval); err != nil {
		return err
	}
	if err := ValidateTimeBlocks(s.Times); err != nil {
		return err
	}
	d.Schedule = &s
	d.Step = StepReview
	return nil
}

// Review validates the complete draft and expands its shifts without persisting anything.
func (d *PostingDraft) Review(now time.Time, loc *time.Location) (*DraftReview, error) {
	if d.BasicInfo == nil || d.Schedule == nil {
		return nil, ErrDraftIncomplete
	}
	shifts, err := ExpandShifts(d.Recurrence(loc))
	if err != nil {
		return nil, err
	}
	return &DraftReview{
		Draft:         *d,
		Shifts:        shifts,
		DisplayStatus: PostingDisplayStatus(models.PostingStatusPublished, len(shifts), ClosingInstant(d.Schedule.AutoClosingDate, loc), now),
	}, nil
}

// Recurrence returns the expansion input of the scheduled draft.
func (d *PostingDraft) Recurrence(loc *time.Location) Recurrence {
	if d.Schedule == nil {
		return Recurrence{Location: loc}
	}
	return Recurrence{
		StartDate: d.Schedule.StartDate,
		EndDate:   d.Schedule.EndDate,
		Interval:  d.Schedule.RecurrenceInterval,
		Blocks:    d.Schedule.Times,
		Location:  loc,
	}
}

// Posting materialises the draft as a posting with the given status.
func (d *PostingDraft) Posting(status models.PostingStatus) (models.Posting, error) {
	if d.BasicInfo == nil || d.Schedule == nil {
		return models.Posting{}, ErrDraftIncomplete
	}
	return models.Posting{
		BranchID:           d.BasicInfo.BranchID,
		Title:              d.BasicInfo.Title,
		Description:        d.BasicInfo.Description,
		NumVolunteers:      d.BasicInfo.NumVolunteers,
		StartDate:          d.Schedule.StartDate,
		EndDate:            d.Schedule.EndDate,
		AutoClosingDate:    d.Schedule.AutoClosingDate,
		RecurrenceInterval: d.Schedule.RecurrenceInterval,
		Status:             status,
		Times:              d.Schedule.Times,
	}, nil
}
