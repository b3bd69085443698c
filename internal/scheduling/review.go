package scheduling

import (
	"sort"
	"strings"
	"time"

	"github.com/noah-isme/volunteer-scheduler-api/internal/models"
)

// ReviewMode selects which signups a review table shows.
type ReviewMode string

const (
	ReviewEditable ReviewMode = "EDITABLE"
	ReviewReadOnly ReviewMode = "READ_ONLY"
)

// ReviewModeFor picks the table mode for a viewer. Admins edit any posting
// that has not closed; everyone else, and everyone on a past posting, reads.
func ReviewModeFor(role models.UserRole, display models.PostingDisplayStatus) ReviewMode {
	if role == models.RoleAdmin && display != models.DisplayStatusPast {
		return ReviewEditable
	}
	return ReviewReadOnly
}

// Visible reports whether a signup with status appears in mode.
func (m ReviewMode) Visible(status models.SignupStatus) bool {
	if m == ReviewEditable {
		return true
	}
	return status == models.SignupStatusConfirmed || status == models.SignupStatusPublished
}

// Review is the grouped read model behind the schedule review table.
type Review struct {
	Mode               ReviewMode   `json:"mode"`
	HasConfirmedSignup bool         `json:"has_confirmed_signup"`
	Totals             ReviewCounts `json:"totals"`
	Days               []ReviewDay  `json:"days"`
}

// ReviewDay holds the shifts starting on one calendar day.
type ReviewDay struct {
	Date   models.Date   `json:"date"`
	Shifts []ReviewShift `json:"shifts"`
}

// ReviewShift is a shift with its visible signups.
type ReviewShift struct {
	ShiftID string         `json:"shift_id"`
	Start   time.Time      `json:"start_time"`
	End     time.Time      `json:"end_time"`
	Counts  ReviewCounts   `json:"counts"`
	Signups []ReviewSignup `json:"signups"`
}

// ReviewSignup is one volunteer line of a shift.
type ReviewSignup struct {
	SignupID      string              `json:"signup_id"`
	UserID        string              `json:"user_id"`
	VolunteerName string              `json:"volunteer_name"`
	Email         string              `json:"email"`
	PhoneNumber   string              `json:"phone_number,omitempty"`
	NumVolunteers int                 `json:"num_volunteers"`
	Note          string              `json:"note,omitempty"`
	Status        models.SignupStatus `json:"status"`
}

// ReviewCounts tallies visible signups by status. Volunteers sums the
// head count of every non-canceled signup.
type ReviewCounts struct {
	Pending    int `json:"pending"`
	Confirmed  int `json:"confirmed"`
	Published  int `json:"published"`
	Canceled   int `json:"canceled"`
	Volunteers int `json:"volunteers"`
}

func (c *ReviewCounts) add(s ReviewSignup) {
	switch s.Status {
	case models.SignupStatusPending:
		c.Pending++
	case models.SignupStatusConfirmed:
		c.Confirmed++
	case models.SignupStatusPublished:
		c.Published++
	case models.SignupStatusCanceled:
		c.Canceled++
		return
	}
	c.Volunteers += s.NumVolunteers
}

func (c *ReviewCounts) merge(o ReviewCounts) {
	c.Pending += o.Pending
	c.Confirmed += o.Confirmed
	c.Published += o.Published
	c.Canceled += o.Canceled
	c.Volunteers += o.Volunteers
}

// BuildReview groups flat rows by calendar day (in loc) and then by shift,
// ascending by shift start. Shifts without visible signups are kept.
func BuildReview(rows []models.ReviewRow, mode ReviewMode, loc *time.Location) Review {
	if loc == nil {
		loc = time.UTC
	}

	shifts := make(map[string]*ReviewShift)
	order := make([]string, 0)
	var all []models.Signup

	for _, row := range rows {
		shift, ok := shifts[row.ShiftID]
		if !ok {
			shift = &ReviewShift{ShiftID: row.ShiftID, Start: row.ShiftStart.UTC(), End: row.ShiftEnd.UTC(), Signups: []ReviewSignup{}}
			shifts[row.ShiftID] = shift
			order = append(order, row.ShiftID)
		}
		if row.SignupID == nil || row.Status == nil {
			continue
		}
		all = append(all, models.Signup{ID: *row.SignupID, Status: *row.Status})
		if !mode.Visible(*row.Status) {
			continue
		}
		signup := reviewSignupOf(row)
		shift.Signups = append(shift.Signups, signup)
		shift.Counts.add(signup)
	}

	sort.SliceStable(order, func(i, j int) bool {
		a, b := shifts[order[i]], shifts[order[j]]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		if !a.End.Equal(b.End) {
			return a.End.Before(b.End)
		}
		return a.ShiftID < b.ShiftID
	})

	review := Review{Mode: mode, HasConfirmedSignup: HasConfirmedSignup(all), Days: []ReviewDay{}}
	for _, id := range order {
		shift := shifts[id]
		sort.SliceStable(shift.Signups, func(i, j int) bool {
			a, b := shift.Signups[i], shift.Signups[j]
			if an, bn := strings.ToLower(a.VolunteerName), strings.ToLower(b.VolunteerName); an != bn {
				return an < bn
			}
			return a.UserID < b.UserID
		})
		review.Totals.merge(shift.Counts)

		day := models.DateOf(shift.Start.In(loc))
		if n := len(review.Days); n == 0 || review.Days[n-1].Date != day {
			review.Days = append(review.Days, ReviewDay{Date: day})
		}
		last := &review.Days[len(review.Days)-1]
		last.Shifts = append(last.Shifts, *shift)
	}
	return review
}

func reviewSignupOf(row models.ReviewRow) ReviewSignup {
	signup := ReviewSignup{
		SignupID: deref(row.SignupID),
		UserID:   deref(row.UserID),
		Email:    deref(row.Email),
		Note:     deref(row.Note),
		Status:   *row.Status,
	}
	signup.PhoneNumber = deref(row.PhoneNumber)
	signup.VolunteerName = models.User{FirstName: deref(row.FirstName), LastName: deref(row.LastName)}.FullName()
	if row.NumVolunteers != nil {
		signup.NumVolunteers = *row.NumVolunteers
	}
	return signup
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
