package scheduling

import (
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/volunteer-scheduler-api/internal/models"
)

func utc(value string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", value)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func mondayMorning() []models.TimeBlock {
	return []models.TimeBlock{{Weekday: time.Monday, Start: "09:00", End: "11:00"}}
}

func juneRecurrence(interval models.RecurrenceInterval, blocks []models.TimeBlock) Recurrence {
	return Recurrence{
		StartDate: models.MustDate("2022-06-01"),
		EndDate:   models.MustDate("2022-06-30"),
		Interval:  interval,
		Blocks:    blocks,
	}
}

func TestExpandShiftsWeeklyJune(t *testing.T) {
	got, err := ExpandShifts(juneRecurrence(models.RecurrenceWeekly, mondayMorning()))
	require.NoError(t, err)

	want := []Window{
		{Start: utc("2022-06-06 09:00"), End: utc("2022-06-06 11:00")},
		{Start: utc("2022-06-13 09:00"), End: utc("2022-06-13 11:00")},
		{Start: utc("2022-06-20 09:00"), End: utc("2022-06-20 11:00")},
		{Start: utc("2022-06-27 09:00"), End: utc("2022-06-27 11:00")},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected shifts (-want +got):\n%s", diff)
	}
}

func TestExpandShiftsIntervalsAnchorToFirstWeek(t *testing.T) {
	cases := []struct {
		name     string
		interval models.RecurrenceInterval
		want     []time.Time
	}{
		{name: "biweekly", interval: models.RecurrenceBiweekly, want: []time.Time{utc("2022-06-13 09:00"), utc("2022-06-27 09:00")}},
		{name: "monthly", interval: models.RecurrenceMonthly, want: []time.Time{utc("2022-06-27 09:00")}},
		{name: "none drops the anchor week monday", interval: models.RecurrenceNone, want: nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExpandShifts(juneRecurrence(tc.interval, mondayMorning()))
			require.NoError(t, err)
			var starts []time.Time
			for _, w := range got {
				starts = append(starts, w.Start)
			}
			if diff := cmp.Diff(tc.want, starts); diff != "" {
				t.Fatalf("unexpected starts (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExpandShiftsNoneOccursOnce(t *testing.T) {
	blocks := []models.TimeBlock{
		{Weekday: time.Thursday, Start: "13:00", End: "15:30"},
		{Weekday: time.Wednesday, Start: "08:00", End: "09:00"},
	}
	got, err := ExpandShifts(juneRecurrence(models.RecurrenceNone, blocks))
	require.NoError(t, err)

	want := []Window{
		{Start: utc("2022-06-01 08:00"), End: utc("2022-06-01 09:00")},
		{Start: utc("2022-06-02 13:00"), End: utc("2022-06-02 15:30")},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected shifts (-want +got):\n%s", diff)
	}
}

func TestExpandShiftsIsIdempotentAndDeduplicates(t *testing.T) {
	blocks := append(mondayMorning(), mondayMorning()...)
	blocks = append(blocks, models.TimeBlock{Weekday: time.Friday, Start: "18:00", End: "20:00"})
	r := juneRecurrence(models.RecurrenceWeekly, blocks)

	first, err := ExpandShifts(r)
	require.NoError(t, err)
	second, err := ExpandShifts(r)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("expansion not deterministic:\n%s", diff)
	}
	assert.Len(t, first, 8)
	for i := 1; i < len(first); i++ {
		assert.True(t, first[i-1].Start.Before(first[i].Start))
	}
}

func TestExpandShiftsStayInsideWindow(t *testing.T) {
	blocks := []models.TimeBlock{
		{Weekday: time.Sunday, Start: "00:00", End: "01:00"},
		{Weekday: time.Wednesday, Start: "12:00", End: "13:00"},
		{Weekday: time.Saturday, Start: "22:00", End: "23:59"},
	}
	intervals := []models.RecurrenceInterval{models.RecurrenceNone, models.RecurrenceWeekly, models.RecurrenceBiweekly, models.RecurrenceMonthly}
	ranges := [][2]string{{"2022-06-01", "2022-06-30"}, {"2022-06-04", "2022-06-04"}, {"2022-12-20", "2023-02-11"}, {"2024-02-25", "2024-03-02"}}

	for _, interval := range intervals {
		for _, rg := range ranges {
			r := Recurrence{StartDate: models.MustDate(rg[0]), EndDate: models.MustDate(rg[1]), Interval: interval, Blocks: blocks}
			got, err := ExpandShifts(r)
			require.NoError(t, err)

			lower := r.StartDate.In(time.UTC)
			upper := r.EndDate.AddDays(1).In(time.UTC)
			for _, w := range got {
				assert.False(t, w.Start.Before(lower), "%s %v starts before window", interval, rg)
				assert.False(t, w.End.After(upper), "%s %v ends after window", interval, rg)
				assert.True(t, w.Start.Before(w.End))
			}
		}
	}
}

func TestExpandShiftsSingleDayWindowKeepsSaturdayNight(t *testing.T) {
	r := Recurrence{
		StartDate: models.MustDate("2022-06-04"),
		EndDate:   models.MustDate("2022-06-04"),
		Interval:  models.RecurrenceWeekly,
		Blocks:    []models.TimeBlock{{Weekday: time.Saturday, Start: "22:00", End: "23:59"}},
	}
	got, err := ExpandShifts(r)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, utc("2022-06-04 22:00"), got[0].Start)
}

func TestExpandShiftsUsesLocation(t *testing.T) {
	loc, err := time.LoadLocation("America/Toronto")
	require.NoError(t, err)
	r := juneRecurrence(models.RecurrenceWeekly, mondayMorning())
	r.Location = loc

	got, err := ExpandShifts(r)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, utc("2022-06-06 13:00"), got[0].Start)
	assert.Equal(t, utc("2022-06-06 15:00"), got[0].End)
}

func TestExpandShiftsKeepsWallClockAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("America/Toronto")
	require.NoError(t, err)
	r := Recurrence{
		StartDate: models.MustDate("2022-03-01"),
		EndDate:   models.MustDate("2022-03-31"),
		Interval:  models.RecurrenceWeekly,
		Blocks:    []models.TimeBlock{{Weekday: time.Thursday, Start: "09:00", End: "11:00"}},
		Location:  loc,
	}

	got, err := ExpandShifts(r)
	require.NoError(t, err)
	require.Len(t, got, 5)
	// Clocks moved forward on 2022-03-13.
	assert.Equal(t, utc("2022-03-10 14:00"), got[1].Start)
	assert.Equal(t, utc("2022-03-17 13:00"), got[2].Start)
	assert.Equal(t, utc("2022-03-17 15:00"), got[2].End)
	for _, w := range got {
		assert.Equal(t, 9, w.Start.In(loc).Hour())
		assert.Equal(t, 11, w.End.In(loc).Hour())
	}
}

func TestExpandShiftsWithoutBlocksIsEmpty(t *testing.T) {
	got, err := ExpandShifts(juneRecurrence(models.RecurrenceWeekly, nil))
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestExpandShiftsRejectsInvalidInput(t *testing.T) {
	cases := []struct {
		name string
		r    Recurrence
		want error
	}{
		{name: "reversed range", r: Recurrence{StartDate: models.MustDate("2022-06-30"), EndDate: models.MustDate("2022-06-01"), Interval: models.RecurrenceWeekly}, want: ErrInvalidDateRange},
		{name: "unknown interval", r: juneRecurrence("DAILY", mondayMorning()), want: ErrInvalidInterval},
		{name: "empty block", r: juneRecurrence(models.RecurrenceWeekly, []models.TimeBlock{{Weekday: time.Monday, Start: "11:00", End: "11:00"}}), want: ErrInvalidTimeBlock},
		{name: "overnight block", r: juneRecurrence(models.RecurrenceWeekly, []models.TimeBlock{{Weekday: time.Monday, Start: "22:00", End: "02:00"}}), want: ErrInvalidTimeBlock},
		{name: "bad clock", r: juneRecurrence(models.RecurrenceWeekly, []models.TimeBlock{{Weekday: time.Monday, Start: "9am", End: "11:00"}}), want: ErrInvalidClock},
		{name: "bad weekday", r: juneRecurrence(models.RecurrenceWeekly, []models.TimeBlock{{Weekday: 7, Start: "09:00", End: "11:00"}}), want: ErrInvalidTimeBlock},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ExpandShifts(tc.r)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestParseClock(t *testing.T) {
	c, err := ParseClock("7:05")
	require.NoError(t, err)
	assert.Equal(t, Clock{Hour: 7, Minute: 5}, c)

	for _, raw := range []string{"24:00", "12:60", "12", "12:5", "", "+9:00", "-1:00", "09:+5", " 9 :00", "009:00"} {
		_, err := ParseClock(raw)
		assert.ErrorIs(t, err, ErrInvalidClock, raw)
	}
}
