package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

type studentRef struct {
	StudentID string `json:"studentId"`
}

func decodeStudentRef(r *http.Request) (string, bool) {
	var ref studentRef
	if err := json.NewDecoder(r.Body).Decode(&ref); err != nil || ref.StudentID == "" {
		return "", false
	}

	return ref.StudentID, true
}

func handleMark(dir *Directory, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := decodeStudentRef(r)
		if !ok {
			writeFailure(w, http.StatusBadRequest, "studentId is required")
			return
		}

		rec, err := dir.Mark(id)
		if err != nil {
			writeFailure(w, http.StatusNotFound, "Student not found")
			return
		}

		logger.Info("attendance marked",
			slog.String("student_id", rec.StudentID),
			slog.Int("lecture", rec.Lecture),
		)

		writeData(w, fmt.Sprintf("Attendance marked for %s (lecture %d)", rec.Name, rec.Lecture), rec)
	}
}

func handleStudentAttendance(dir *Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := decodeStudentRef(r)
		if !ok {
			writeFailure(w, http.StatusBadRequest, "studentId is required")
			return
		}

		records, err := dir.StudentRecords(id)
		if err != nil {
			writeFailure(w, http.StatusNotFound, "Student not found")
			return
		}

		writeData(w, "Attendance", records)
	}
}

func handleListAttendance(dir *Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeData(w, "Attendance", dir.Records(r.URL.Query().Get("date")))
	}
}

func handleTodaySummary(dir *Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeData(w, "Today summary", dir.Today())
	}
}

// queryInt reads a positive integer query parameter.
func queryInt(r *http.Request, name string) (int, bool) {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v <= 0 {
		return 0, false
	}

	return v, true
}

func handleMonth(dir *Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		month, okM := queryInt(r, "month")
		year, okY := queryInt(r, "year")

		if !okM || !okY || month > 12 {
			writeFailure(w, http.StatusBadRequest, "month and year are required")
			return
		}

		days, err := dir.Month(chi.URLParam(r, "id"), time.Month(month), year)
		if err != nil {
			writeFailure(w, http.StatusNotFound, "Student not found")
			return
		}

		writeData(w, "Monthly attendance", days)
	}
}

func handleDay(dir *Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		day, okD := queryInt(r, "day")
		month, okM := queryInt(r, "month")
		year, okY := queryInt(r, "year")

		if !okD || !okM || !okY || month > 12 {
			writeFailure(w, http.StatusBadRequest, "day, month and year are required")
			return
		}

		date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.Local)
		if date.Day() != day {
			writeFailure(w, http.StatusBadRequest, "invalid date")
			return
		}

		lectures, err := dir.Day(chi.URLParam(r, "id"), date)
		if err != nil {
			writeFailure(w, http.StatusNotFound, "Student not found")
			return
		}

		writeData(w, "Day attendance", lectures)
	}
}
