package server

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alexjbarnes/campusctl/internal/models"
	"github.com/google/uuid"
)

const dateLayout = "2006-01-02"

var (
	errStudentNotFound = errors.New("student not found")
	errMissingField    = errors.New("missing required field")
)

// Directory is the in-memory student and attendance database of the
// fake backend.
type Directory struct {
	mu       sync.RWMutex
	students []*models.Student // insertion order
	records  []models.AttendanceRecord
	seq      int
	now      func() time.Time
}

// NewDirectory creates an empty directory. A nil clock means time.Now.
func NewDirectory(now func() time.Time) *Directory {
	if now == nil {
		now = time.Now
	}

	return &Directory{now: now}
}

func (d *Directory) findLocked(key string) (int, *models.Student) {
	for i, s := range d.students {
		if s.StudentID == key || s.ID == key {
			return i, s
		}
	}

	return -1, nil
}

func validateStudent(n models.NewStudent) error {
	for _, f := range [][2]string{{"name", n.Name}, {"roll", n.Roll}, {"className", n.ClassName}} {
		if strings.TrimSpace(f[1]) == "" {
			return fmt.Errorf("%w: %s", errMissingField, f[0])
		}
	}

	return nil
}

// AddStudent stores a new student and assigns its IDs.
func (d *Directory) AddStudent(n models.NewStudent, photo string) (models.Student, error) {
	if err := validateStudent(n); err != nil {
		return models.Student{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.seq++

	s := &models.Student{
		ID:         uuid.NewString(),
		StudentID:  fmt.Sprintf("STU%04d", d.seq),
		Name:       n.Name,
		Roll:       n.Roll,
		ClassName:  n.ClassName,
		Division:   n.Division,
		FatherName: n.FatherName,
		Mobile:     n.Mobile,
		Address:    n.Address,
		Photo:      photo,
	}
	d.students = append(d.students, s)

	return *s, nil
}

// Students returns every student in insertion order.
func (d *Directory) Students() []models.Student {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]models.Student, 0, len(d.students))
	for _, s := range d.students {
		out = append(out, *s)
	}

	return out
}

// Student looks a student up by StudentID or database ID.
func (d *Directory) Student(key string) (models.Student, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, s := d.findLocked(key)
	if s == nil {
		return models.Student{}, false
	}

	return *s, true
}

// UpdateStudent overwrites the non-empty fields of n.
func (d *Directory) UpdateStudent(key string, n models.NewStudent) (models.Student, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, s := d.findLocked(key)
	if s == nil {
		return models.Student{}, errStudentNotFound
	}

	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&s.Name, n.Name)
	set(&s.Roll, n.Roll)
	set(&s.ClassName, n.ClassName)
	set(&s.Division, n.Division)
	set(&s.FatherName, n.FatherName)
	set(&s.Mobile, n.Mobile)
	set(&s.Address, n.Address)

	return *s, nil
}

// DeleteStudent removes a student and its attendance.
func (d *Directory) DeleteStudent(key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	i, s := d.findLocked(key)
	if s == nil {
		return errStudentNotFound
	}

	d.students = append(d.students[:i], d.students[i+1:]...)

	kept := d.records[:0]
	for _, r := range d.records {
		if r.StudentID != s.StudentID {
			kept = append(kept, r)
		}
	}
	d.records = kept

	return nil
}

// Mark records the next lecture of today for a student.
func (d *Directory) Mark(key string) (models.AttendanceRecord, error) {
	return d.MarkAt(key, d.now())
}

// MarkAt records the next lecture of the day containing at.
func (d *Directory) MarkAt(key string, at time.Time) (models.AttendanceRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, s := d.findLocked(strings.TrimSpace(key))
	if s == nil {
		return models.AttendanceRecord{}, errStudentNotFound
	}

	date := at.Format(dateLayout)

	lecture := 1
	for _, r := range d.records {
		if r.StudentID == s.StudentID && r.Date == date {
			lecture++
		}
	}

	rec := models.AttendanceRecord{
		ID:        uuid.NewString(),
		StudentID: s.StudentID,
		Name:      s.Name,
		Date:      date,
		Lecture:   lecture,
		Status:    models.StatusPresent,
		MarkedAt:  at,
	}
	d.records = append(d.records, rec)

	return rec, nil
}

// Records lists attendance, newest first, optionally for one date.
func (d *Directory) Records(date string) []models.AttendanceRecord {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []models.AttendanceRecord

	for _, r := range d.records {
		if date == "" || r.Date == date {
			out = append(out, r)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].MarkedAt.After(out[j].MarkedAt) })

	return out
}

// StudentRecords lists one student's attendance in marking order.
func (d *Directory) StudentRecords(key string) ([]models.AttendanceRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, s := d.findLocked(key)
	if s == nil {
		return nil, errStudentNotFound
	}

	var out []models.AttendanceRecord

	for _, r := range d.records {
		if r.StudentID == s.StudentID {
			out = append(out, r)
		}
	}

	return out, nil
}

// Today counts the students with at least one lecture marked today.
func (d *Directory) Today() models.TodaySummary {
	d.mu.RLock()
	defer d.mu.RUnlock()

	date := d.now().Format(dateLayout)

	present := make(map[string]bool)
	for _, r := range d.records {
		if r.Date == date {
			present[r.StudentID] = true
		}
	}

	return models.TodaySummary{
		Date:    date,
		Total:   len(d.students),
		Present: len(present),
		Absent:  len(d.students) - len(present),
	}
}

// Month returns the lecture count per attended day of a month.
func (d *Directory) Month(key string, month time.Month, year int) ([]models.DaySummary, error) {
	records, err := d.StudentRecords(key)
	if err != nil {
		return nil, err
	}

	counts := make(map[int]int)

	for _, r := range records {
		day, err := time.Parse(dateLayout, r.Date)
		if err != nil {
			continue
		}

		if day.Month() == month && day.Year() == year {
			counts[day.Day()]++
		}
	}

	out := make([]models.DaySummary, 0, len(counts))
	for day, n := range counts {
		out = append(out, models.DaySummary{Day: day, Lectures: n})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })

	return out, nil
}

// Day returns the lectures a student attended on one date.
func (d *Directory) Day(key string, date time.Time) ([]models.LectureStatus, error) {
	records, err := d.StudentRecords(key)
	if err != nil {
		return nil, err
	}

	want := date.Format(dateLayout)

	var out []models.LectureStatus

	for _, r := range records {
		if r.Date == want {
			out = append(out, models.LectureStatus{Lecture: r.Lecture, Status: r.Status})
		}
	}

	return out, nil
}
