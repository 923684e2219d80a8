package campus

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/alexjbarnes/campusctl/internal/models"
)

type studentRef struct {
	StudentID string `json:"studentId"`
}

// Mark is the outcome of marking attendance.
type Mark struct {
	Message string                  `json:"message"`
	Record  models.AttendanceRecord `json:"record"`
}

// MarkAttendance marks the current lecture for a student.
func (s *Service) MarkAttendance(ctx context.Context, studentID string) (Mark, error) {
	return s.mark(ctx, EndpointMarkAttendance, studentID)
}

// Scan parses a QR payload and marks attendance for the student in it.
func (s *Service) Scan(ctx context.Context, raw string) (QRPayload, Mark, error) {
	payload, err := ParseQRPayload(raw)
	if err != nil {
		return QRPayload{}, Mark{}, err
	}

	m, err := s.mark(ctx, EndpointScanAttendance, payload.StudentID)
	if err != nil {
		return payload, Mark{}, err
	}

	return payload, m, nil
}

func (s *Service) mark(ctx context.Context, e Endpoint, studentID string) (Mark, error) {
	var rec models.AttendanceRecord

	msg, err := s.get(ctx, e, "", nil, studentRef{StudentID: studentID}, &rec)
	if err != nil {
		return Mark{}, notFound(err, studentID)
	}

	if msg == "" {
		msg = "Attendance marked"
	}

	s.logger.Debug("attendance marked",
		slog.String("student_id", studentID),
		slog.Int("lecture", rec.Lecture),
	)

	return Mark{Message: msg, Record: rec}, nil
}

// Attendance lists marked lectures, newest first. A non-empty date
// (YYYY-MM-DD) restricts the list to that day.
func (s *Service) Attendance(ctx context.Context, date string) ([]models.AttendanceRecord, error) {
	var query url.Values
	if date != "" {
		query = url.Values{"date": {date}}
	}

	var records []models.AttendanceRecord
	if _, err := s.get(ctx, EndpointAllAttendance, "", query, nil, &records); err != nil {
		return nil, fmt.Errorf("listing attendance: %w", err)
	}

	return records, nil
}

// StudentAttendance lists every lecture a student attended.
func (s *Service) StudentAttendance(ctx context.Context, studentID string) ([]models.AttendanceRecord, error) {
	var records []models.AttendanceRecord
	if _, err := s.get(ctx, EndpointStudentAttendance, "", nil, studentRef{StudentID: studentID}, &records); err != nil {
		return nil, notFound(err, studentID)
	}

	return records, nil
}

// TodaySummary counts present and absent students for today.
func (s *Service) TodaySummary(ctx context.Context) (models.TodaySummary, error) {
	var summary models.TodaySummary
	if _, err := s.get(ctx, EndpointTodaySummary, "", nil, nil, &summary); err != nil {
		return models.TodaySummary{}, fmt.Errorf("fetching today summary: %w", err)
	}

	return summary, nil
}

// StudentMonth returns the lecture count for each attended day of a
// month.
func (s *Service) StudentMonth(ctx context.Context, studentID string, month time.Month, year int) ([]models.DaySummary, error) {
	query := url.Values{
		"month": {strconv.Itoa(int(month))},
		"year":  {strconv.Itoa(year)},
	}

	var days []models.DaySummary
	if _, err := s.get(ctx, EndpointAttendanceMonth, studentID, query, nil, &days); err != nil {
		return nil, notFound(err, studentID)
	}

	return days, nil
}

// DayDetails returns the lecture outcomes of one day.
func (s *Service) DayDetails(ctx context.Context, studentID string, date time.Time) ([]models.LectureStatus, error) {
	query := url.Values{
		"day":   {strconv.Itoa(date.Day())},
		"month": {strconv.Itoa(int(date.Month()))},
		"year":  {strconv.Itoa(date.Year())},
	}

	var lectures []models.LectureStatus
	if _, err := s.get(ctx, EndpointAttendanceDay, studentID, query, nil, &lectures); err != nil {
		return nil, notFound(err, studentID)
	}

	return lectures, nil
}

// Calendar fetches a month and lays it out day by day.
func (s *Service) Calendar(ctx context.Context, studentID string, month time.Month, year int) ([]CalendarDay, error) {
	days, err := s.StudentMonth(ctx, studentID, month, year)
	if err != nil {
		return nil, err
	}

	return BuildCalendar(year, month, days), nil
}
