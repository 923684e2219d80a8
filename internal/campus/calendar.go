package campus

import (
	"time"

	"github.com/alexjbarnes/campusctl/internal/models"
)

// DayStatus classifies a calendar day.
type DayStatus string

const (
	DayPresent DayStatus = "present"
	DayPartial DayStatus = "partial"
	DayAbsent  DayStatus = "absent"
)

// FullDayLectures is the lecture count at which a day counts as fully
// attended.
const FullDayLectures = 4

// CalendarDay is one day of a student's month.
type CalendarDay struct {
	Date     time.Time `json:"date" yaml:"date"`
	Lectures int       `json:"lectures" yaml:"lectures"`
	Status   DayStatus `json:"status" yaml:"status"`
	Sunday   bool      `json:"sunday,omitempty" yaml:"sunday,omitempty"`
}

// BuildCalendar expands the attended days of a month into every day of
// it. A day with no record is absent.
func BuildCalendar(year int, month time.Month, attended []models.DaySummary) []CalendarDay {
	lectures := make(map[int]int, len(attended))
	for _, d := range attended {
		lectures[d.Day] += d.Lectures
	}

	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	n := first.AddDate(0, 1, -1).Day()

	days := make([]CalendarDay, 0, n)

	for i := 1; i <= n; i++ {
		date := time.Date(year, month, i, 0, 0, 0, 0, time.UTC)

		day := CalendarDay{
			Date:     date,
			Lectures: lectures[i],
			Sunday:   date.Weekday() == time.Sunday,
		}

		switch {
		case day.Lectures >= FullDayLectures:
			day.Status = DayPresent
		case day.Lectures > 0:
			day.Status = DayPartial
		default:
			day.Status = DayAbsent
		}

		days = append(days, day)
	}

	return days
}

// Tally counts days per status.
func Tally(days []CalendarDay) map[DayStatus]int {
	out := map[DayStatus]int{DayPresent: 0, DayPartial: 0, DayAbsent: 0}
	for _, d := range days {
		out[d.Status]++
	}

	return out
}
