package scheduling

import (
	"time"

	"github.com/noah-isme/volunteer-scheduler-api/internal/models"
)

// PostingDisplayStatus classifies a posting for listings. A draft is always
// DRAFT; otherwise a posting is PAST once closesAt is behind now, UNSCHEDULED
// while it has no shifts and SCHEDULED after that.
func PostingDisplayStatus(status models.PostingStatus, shiftCount int, closesAt, now time.Time) models.PostingDisplayStatus {
	switch {
	case status == models.PostingStatusDraft:
		return models.DisplayStatusDraft
	case closesAt.Before(now):
		return models.DisplayStatusPast
	case shiftCount == 0:
		return models.DisplayStatusUnscheduled
	default:
		return models.DisplayStatusScheduled
	}
}

// ClosingInstant is the moment signups close: the start of the auto closing day in loc.
func ClosingInstant(autoClosing models.Date, loc *time.Location) time.Time {
	return autoClosing.In(loc)
}

// DisplayStatusOf derives the display status of a stored posting.
func DisplayStatusOf(p models.PostingSummary, now time.Time, loc *time.Location) models.PostingDisplayStatus {
	return PostingDisplayStatus(p.Status, p.ShiftCount, ClosingInstant(p.AutoClosingDate, loc), now)
}

// ValidatePostingDates enforces start <= end and autoClosing < start.
func ValidatePostingDates(start, end, autoClosing models.Date) error {
	if start.IsZero() || end.IsZero() || autoClosing.IsZero() {
		return ErrMissingScheduleDate
	}
	if start.After(end) {
		return ErrInvalidDateRange
	}
	if !autoClosing.Before(start) {
		return ErrInvalidClosingDate
	}
	return nil
}

// ValidatePostingTransition checks a persisted status change. Creating a posting
// (from == "") may use either status; a draft may be promoted; a published
// posting stays published.
func ValidatePostingTransition(from, to models.PostingStatus) error {
	if !validPostingStatus(to) {
		return ErrInvalidTransition
	}
	switch from {
	case "", models.PostingStatusDraft:
		return nil
	case models.PostingStatusPublished:
		if to == models.PostingStatusPublished {
			return nil
		}
		return ErrPostingPublished
	}
	return ErrInvalidTransition
}

// AcceptsSignups reports whether volunteers may still sign up or withdraw.
func AcceptsSignups(p models.PostingSummary, now time.Time, loc *time.Location) bool {
	if p.Status != models.PostingStatusPublished {
		return false
	}
	return DisplayStatusOf(p, now, loc) != models.DisplayStatusPast
}

func validPostingStatus(s models.PostingStatus) bool {
	return s == models.PostingStatusDraft || s == models.PostingStatusPublished
}
