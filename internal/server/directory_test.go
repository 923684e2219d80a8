package server

import (
	"testing"
	"time"

	"github.com/alexjbarnes/campusctl/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, time.March, 10, 9, 30, 0, 0, time.Local)

func testDirectory(t *testing.T) *Directory {
	t.Helper()
	return NewDirectory(func() time.Time { return fixedNow })
}

func addStudent(t *testing.T, d *Directory, name, roll string) models.Student {
	t.Helper()
	s, err := d.AddStudent(models.NewStudent{Name: name, Roll: roll, ClassName: "BSc", Division: "A"}, "")
	require.NoError(t, err)
	return s
}

func TestDirectory_AddAssignsIDs(t *testing.T) {
	d := testDirectory(t)

	a := addStudent(t, d, "Asha", "1")
	b := addStudent(t, d, "Ravi", "2")

	assert.Equal(t, "STU0001", a.StudentID)
	assert.Equal(t, "STU0002", b.StudentID)
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, []models.Student{a, b}, d.Students())
}

func TestDirectory_AddRequiresFields(t *testing.T) {
	d := testDirectory(t)
	_, err := d.AddStudent(models.NewStudent{Name: "Asha"}, "")
	assert.ErrorIs(t, err, errMissingField)
	assert.Empty(t, d.Students())
}

func TestDirectory_LookupByEitherID(t *testing.T) {
	d := testDirectory(t)
	a := addStudent(t, d, "Asha", "1")

	got, ok := d.Student(a.StudentID)
	require.True(t, ok)
	assert.Equal(t, a, got)

	got, ok = d.Student(a.ID)
	require.True(t, ok)
	assert.Equal(t, a, got)

	_, ok = d.Student("STU9999")
	assert.False(t, ok)
}

func TestDirectory_UpdateKeepsEmptyFields(t *testing.T) {
	d := testDirectory(t)
	a := addStudent(t, d, "Asha", "1")

	got, err := d.UpdateStudent(a.StudentID, models.NewStudent{Mobile: "9999"})
	require.NoError(t, err)
	assert.Equal(t, "Asha", got.Name)
	assert.Equal(t, "9999", got.Mobile)

	_, err = d.UpdateStudent("missing", models.NewStudent{})
	assert.ErrorIs(t, err, errStudentNotFound)
}

func TestDirectory_DeleteDropsAttendance(t *testing.T) {
	d := testDirectory(t)
	a := addStudent(t, d, "Asha", "1")
	b := addStudent(t, d, "Ravi", "2")

	_, err := d.Mark(a.StudentID)
	require.NoError(t, err)
	_, err = d.Mark(b.StudentID)
	require.NoError(t, err)

	require.NoError(t, d.DeleteStudent(a.StudentID))
	assert.ErrorIs(t, d.DeleteStudent(a.StudentID), errStudentNotFound)

	assert.Equal(t, []models.Student{b}, d.Students())
	records := d.Records("")
	require.Len(t, records, 1)
	assert.Equal(t, b.StudentID, records[0].StudentID)
}

func TestDirectory_MarkNumbersLectures(t *testing.T) {
	d := testDirectory(t)
	a := addStudent(t, d, "Asha", "1")

	for want := 1; want <= 3; want++ {
		rec, err := d.Mark(" " + a.StudentID + " ")
		require.NoError(t, err)
		assert.Equal(t, want, rec.Lecture)
		assert.Equal(t, "2025-03-10", rec.Date)
		assert.Equal(t, models.StatusPresent, rec.Status)
	}

	rec, err := d.MarkAt(a.StudentID, fixedNow.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Lecture, "numbering restarts each day")

	_, err = d.Mark("STU9999")
	assert.ErrorIs(t, err, errStudentNotFound)
}

func TestDirectory_RecordsNewestFirst(t *testing.T) {
	d := testDirectory(t)
	a := addStudent(t, d, "Asha", "1")

	_, err := d.MarkAt(a.StudentID, fixedNow.Add(-time.Hour))
	require.NoError(t, err)
	_, err = d.MarkAt(a.StudentID, fixedNow)
	require.NoError(t, err)
	_, err = d.MarkAt(a.StudentID, fixedNow.AddDate(0, 0, -1))
	require.NoError(t, err)

	all := d.Records("")
	require.Len(t, all, 3)
	assert.True(t, all[0].MarkedAt.Equal(fixedNow))

	assert.Len(t, d.Records("2025-03-10"), 2)
	assert.Len(t, d.Records("2025-03-09"), 1)
}

func TestDirectory_Today(t *testing.T) {
	d := testDirectory(t)
	a := addStudent(t, d, "Asha", "1")
	addStudent(t, d, "Ravi", "2")
	addStudent(t, d, "Meera", "3")

	_, err := d.Mark(a.StudentID)
	require.NoError(t, err)
	_, err = d.Mark(a.StudentID)
	require.NoError(t, err)

	assert.Equal(t, models.TodaySummary{Date: "2025-03-10", Total: 3, Present: 1, Absent: 2}, d.Today())
}

func TestDirectory_MonthAndDay(t *testing.T) {
	d := testDirectory(t)
	a := addStudent(t, d, "Asha", "1")

	mark := func(day, times int) {
		for range times {
			_, err := d.MarkAt(a.StudentID, time.Date(2025, time.March, day, 10, 0, 0, 0, time.Local))
			require.NoError(t, err)
		}
	}
	mark(3, 4)
	mark(5, 2)
	_, err := d.MarkAt(a.StudentID, time.Date(2025, time.April, 1, 10, 0, 0, 0, time.Local))
	require.NoError(t, err)

	month, err := d.Month(a.StudentID, time.March, 2025)
	require.NoError(t, err)
	assert.Equal(t, []models.DaySummary{{Day: 3, Lectures: 4}, {Day: 5, Lectures: 2}}, month)

	day, err := d.Day(a.StudentID, time.Date(2025, time.March, 5, 0, 0, 0, 0, time.Local))
	require.NoError(t, err)
	assert.Equal(t, []models.LectureStatus{{Lecture: 1, Status: "Present"}, {Lecture: 2, Status: "Present"}}, day)

	_, err = d.Month("missing", time.March, 2025)
	assert.ErrorIs(t, err, errStudentNotFound)
}
