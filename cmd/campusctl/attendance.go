package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alexjbarnes/campusctl/internal/campus"
	"github.com/alexjbarnes/campusctl/internal/models"
	"github.com/spf13/cobra"
)

const dateLayout = "2006-01-02"

func newAttendanceCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "attendance",
		Aliases: []string{"att"},
		Short:   "Mark and review attendance",
	}

	cmd.AddCommand(
		newAttendanceMarkCommand(a),
		newAttendanceListCommand(a),
		newAttendanceTodayCommand(a),
		newAttendanceMonthCommand(a),
		newAttendanceDayCommand(a),
	)

	return cmd
}

func recordRows(records []models.AttendanceRecord) [][]string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.Date,
			strconv.Itoa(r.Lecture),
			r.StudentID,
			r.Name,
			r.Status,
			r.MarkedAt.Local().Format(time.Kitchen),
		})
	}

	return rows
}

var recordHeaders = []string{"DATE", "LECTURE", "STUDENT ID", "NAME", "STATUS", "MARKED"}

func newAttendanceMarkCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mark <student-id>...",
		Short: "Mark the current lecture for students",
		Args:  cobra.MinimumNArgs(1),
		RunE: a.withLogin(func(cmd *cobra.Command, args []string) error {
			marks := make([]campus.Mark, 0, len(args))

			for _, id := range args {
				m, err := a.svc.MarkAttendance(cmd.Context(), id)
				if err != nil {
					return err
				}

				marks = append(marks, m)
			}

			p := a.printer(cmd.OutOrStdout())
			if ok, err := p.structured(marks); ok {
				return err
			}

			for _, m := range marks {
				p.line("%s: %s (lecture %d)", m.Record.StudentID, m.Message, m.Record.Lecture)
			}

			return nil
		}),
	}
}

func newAttendanceListCommand(a *app) *cobra.Command {
	var (
		date      string
		studentID string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List marked lectures, newest first",
		Args:  cobra.NoArgs,
		RunE: a.withLogin(func(cmd *cobra.Command, _ []string) error {
			var (
				records []models.AttendanceRecord
				err     error
			)

			if studentID != "" {
				records, err = a.svc.StudentAttendance(cmd.Context(), studentID)
			} else {
				if date != "" {
					if _, err := time.Parse(dateLayout, date); err != nil {
						return fmt.Errorf("--date must be YYYY-MM-DD")
					}
				}

				records, err = a.svc.Attendance(cmd.Context(), date)
			}

			if err != nil {
				return err
			}

			p := a.printer(cmd.OutOrStdout())
			if ok, err := p.structured(records); ok {
				return err
			}

			return p.table(recordHeaders, recordRows(records))
		}),
	}

	cmd.Flags().StringVar(&date, "date", "", "only this day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&studentID, "student", "", "only this student")
	cmd.MarkFlagsMutuallyExclusive("date", "student")

	return cmd
}

func newAttendanceTodayCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "today",
		Short: "Summarise today's attendance",
		Args:  cobra.NoArgs,
		RunE: a.withLogin(func(cmd *cobra.Command, _ []string) error {
			sum, err := a.svc.TodaySummary(cmd.Context())
			if err != nil {
				return err
			}

			p := a.printer(cmd.OutOrStdout())
			if ok, err := p.structured(sum); ok {
				return err
			}

			return p.table(
				[]string{"DATE", "TOTAL", "PRESENT", "ABSENT"},
				[][]string{{sum.Date, strconv.Itoa(sum.Total), strconv.Itoa(sum.Present), strconv.Itoa(sum.Absent)}},
			)
		}),
	}
}

func newAttendanceMonthCommand(a *app) *cobra.Command {
	var (
		month int
		year  int
	)

	cmd := &cobra.Command{
		Use:   "month <student-id>",
		Short: "Show a student's month as a calendar",
		Args:  cobra.ExactArgs(1),
		RunE: a.withLogin(func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			if month == 0 {
				month = int(now.Month())
			}

			if year == 0 {
				year = now.Year()
			}

			if month < 1 || month > 12 {
				return fmt.Errorf("--month must be between 1 and 12")
			}

			days, err := a.svc.Calendar(cmd.Context(), args[0], time.Month(month), year)
			if err != nil {
				return err
			}

			p := a.printer(cmd.OutOrStdout())
			if ok, err := p.structured(days); ok {
				return err
			}

			writeCalendar(p, time.Month(month), year, days)

			return nil
		}),
	}

	cmd.Flags().IntVar(&month, "month", 0, "month number (defaults to this month)")
	cmd.Flags().IntVar(&year, "year", 0, "year (defaults to this year)")

	return cmd
}

var dayMarks = map[campus.DayStatus]string{
	campus.DayPresent: "P",
	campus.DayPartial: "~",
	campus.DayAbsent:  ".",
}

// writeCalendar draws a Monday-first month grid. Sundays carry no mark.
func writeCalendar(p printer, month time.Month, year int, days []campus.CalendarDay) {
	p.line("%s %d", month, year)
	p.line("Mon Tue Wed Thu Fri Sat Sun")

	if len(days) == 0 {
		return
	}

	// Monday is column 0.
	col := (int(days[0].Date.Weekday()) + 6) % 7

	var b strings.Builder
	b.WriteString(strings.Repeat("    ", col))

	for _, d := range days {
		mark := dayMarks[d.Status]
		if d.Sunday {
			mark = " "
		}

		fmt.Fprintf(&b, "%2d%s ", d.Date.Day(), mark)

		col++
		if col == 7 {
			p.line("%s", strings.TrimRight(b.String(), " "))
			b.Reset()

			col = 0
		}
	}

	if b.Len() > 0 {
		p.line("%s", strings.TrimRight(b.String(), " "))
	}

	tally := campus.Tally(days)
	p.line("\nP present %d  ~ partial %d  . absent %d",
		tally[campus.DayPresent], tally[campus.DayPartial], tally[campus.DayAbsent])
}

func newAttendanceDayCommand(a *app) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "day <student-id>",
		Short: "Show a student's lectures on one day",
		Args:  cobra.ExactArgs(1),
		RunE: a.withLogin(func(cmd *cobra.Command, args []string) error {
			day := time.Now()

			if date != "" {
				parsed, err := time.ParseInLocation(dateLayout, date, time.Local)
				if err != nil {
					return fmt.Errorf("--date must be YYYY-MM-DD")
				}

				day = parsed
			}

			lectures, err := a.svc.DayDetails(cmd.Context(), args[0], day)
			if err != nil {
				return err
			}

			p := a.printer(cmd.OutOrStdout())
			if ok, err := p.structured(lectures); ok {
				return err
			}

			rows := make([][]string, 0, len(lectures))
			for _, l := range lectures {
				rows = append(rows, []string{strconv.Itoa(l.Lecture), l.Status})
			}

			return p.table([]string{"LECTURE", "STATUS"}, rows)
		}),
	}

	cmd.Flags().StringVar(&date, "date", "", "day to show (YYYY-MM-DD, defaults to today)")

	return cmd
}
