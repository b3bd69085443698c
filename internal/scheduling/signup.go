package scheduling

import "github.com/noah-isme/volunteer-scheduler-api/internal/models"

// IsTerminal reports whether status can no longer change from the review screen.
func IsTerminal(status models.SignupStatus) bool {
	return status == models.SignupStatusCanceled || status == models.SignupStatusPublished
}

// ValidSignupStatus reports whether status is known.
func ValidSignupStatus(status models.SignupStatus) bool {
	switch status {
	case models.SignupStatusPending, models.SignupStatusConfirmed,
		models.SignupStatusCanceled, models.SignupStatusPublished:
		return true
	}
	return false
}

// ValidateReviewTransition checks an admin toggling a signup on the review
// screen. Only PENDING and CONFIRMED move between each other; CANCELED and
// PUBLISHED are reached through publishing alone.
func ValidateReviewTransition(from, to models.SignupStatus) error {
	if IsTerminal(from) {
		return ErrSignupFinalized
	}
	switch to {
	case models.SignupStatusPending, models.SignupStatusConfirmed:
		if from == models.SignupStatusPending || from == models.SignupStatusConfirmed {
			return nil
		}
	}
	return ErrInvalidTransition
}

// HasConfirmedSignup is true iff any signup is CONFIRMED or PUBLISHED.
func HasConfirmedSignup(signups []models.Signup) bool {
	for _, s := range signups {
		if s.Status == models.SignupStatusConfirmed || s.Status == models.SignupStatusPublished {
			return true
		}
	}
	return false
}

// PublishOutcome maps a status to the status it ends up in after publishing.
func PublishOutcome(status models.SignupStatus) models.SignupStatus {
	switch status {
	case models.SignupStatusConfirmed:
		return models.SignupStatusPublished
	case models.SignupStatusPending:
		return models.SignupStatusCanceled
	}
	return status
}

// PlanPublish returns the signups whose status changes when the schedule is
// published, already carrying their new status. It fails when nothing has been
// confirmed.
func PlanPublish(signups []models.Signup) ([]models.Signup, error) {
	if !HasConfirmedSignup(signups) {
		return nil, ErrNoConfirmedSignups
	}
	changed := make([]models.Signup, 0, len(signups))
	for _, s := range signups {
		next := PublishOutcome(s.Status)
		if next == s.Status {
			continue
		}
		s.Status = next
		changed = append(changed, s)
	}
	return changed, nil
}
