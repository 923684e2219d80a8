package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/alexjbarnes/campusctl/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// maxUploadBytes caps the multipart body of an add-student request.
const maxUploadBytes = 5 << 20

func handleAddStudent(dir *Directory, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			writeFailure(w, http.StatusBadRequest, "Invalid form data")
			return
		}

		n := models.NewStudent{
			Name:       r.FormValue("name"),
			Roll:       r.FormValue("roll"),
			ClassName:  r.FormValue("className"),
			Division:   r.FormValue("division"),
			FatherName: r.FormValue("fatherName"),
			Mobile:     r.FormValue("mobile"),
			Address:    r.FormValue("address"),
		}

		var photo string

		if f, hdr, err := r.FormFile("photo"); err == nil {
			f.Close()
			photo = "/uploads/" + uuid.NewString() + strings.ToLower(filepath.Ext(hdr.Filename))
		}

		s, err := dir.AddStudent(n, photo)
		if err != nil {
			writeFailure(w, http.StatusBadRequest, err.Error())
			return
		}

		logger.Info("student added",
			slog.String("student_id", s.StudentID),
			slog.Bool("photo", photo != ""),
		)

		writeData(w, "Student added successfully", s)
	}
}

func handleListStudents(dir *Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeData(w, "Students", dir.Students())
	}
}

func handleGetStudent(dir *Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := dir.Student(chi.URLParam(r, "id"))
		if !ok {
			writeFailure(w, http.StatusNotFound, "Student not found")
			return
		}

		writeData(w, "Student", s)
	}
}

func handleUpdateStudent(dir *Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var n models.NewStudent
		if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
			writeFailure(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		s, err := dir.UpdateStudent(chi.URLParam(r, "id"), n)
		if errors.Is(err, errStudentNotFound) {
			writeFailure(w, http.StatusNotFound, "Student not found")
			return
		}

		writeData(w, "Student updated", s)
	}
}

func handleDeleteStudent(dir *Directory, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if err := dir.DeleteStudent(id); err != nil {
			writeFailure(w, http.StatusNotFound, "Student not found")
			return
		}

		logger.Info("student deleted", slog.String("student_id", id))

		writeData(w, "Student deleted", nil)
	}
}
