package campus

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/alexjbarnes/campusctl/internal/api"
	apperrors "github.com/alexjbarnes/campusctl/internal/errors"
	"github.com/alexjbarnes/campusctl/internal/models"
)

// Photo is an optional image attached to a new student.
type Photo struct {
	Filename string
	Content  io.Reader
}

// notFound maps a 404 to ErrStudentNotFound.
func notFound(err error, id string) error {
	if api.StatusCode(err) == http.StatusNotFound {
		return fmt.Errorf("%w: %s", apperrors.ErrStudentNotFound, id)
	}

	return err
}

// Students lists every student.
func (s *Service) Students(ctx context.Context) ([]models.Student, error) {
	var students []models.Student
	if _, err := s.get(ctx, EndpointGetStudents, "", nil, nil, &students); err != nil {
		return nil, fmt.Errorf("listing students: %w", err)
	}

	return students, nil
}

// Student fetches one student by StudentID or database ID.
func (s *Service) Student(ctx context.Context, id string) (models.Student, error) {
	var student models.Student
	if _, err := s.get(ctx, EndpointGetStudent, id, nil, nil, &student); err != nil {
		return models.Student{}, notFound(err, id)
	}

	return student, nil
}

// AddStudent submits the add-student form. The request is multipart
// because the backend accepts an optional photo with it.
func (s *Service) AddStudent(ctx context.Context, n models.NewStudent, photo *Photo) (models.Student, error) {
	var buf bytes.Buffer

	mw := multipart.NewWriter(&buf)
	for _, f := range n.Fields() {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return models.Student{}, fmt.Errorf("writing form field %s: %w", f[0], err)
		}
	}

	if photo != nil {
		part, err := mw.CreateFormFile("photo", photo.Filename)
		if err != nil {
			return models.Student{}, fmt.Errorf("creating photo part: %w", err)
		}

		if _, err := io.Copy(part, photo.Content); err != nil {
			return models.Student{}, fmt.Errorf("reading photo: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return models.Student{}, fmt.Errorf("closing form: %w", err)
	}

	req := api.Request{
		Method: EndpointAddStudent.Method,
		Path:   EndpointAddStudent.Path,
		Header: http.Header{"Content-Type": []string{mw.FormDataContentType()}},
		Body:   buf.Bytes(),
	}

	res, err := s.send(ctx, req)
	if err != nil {
		return models.Student{}, fmt.Errorf("adding student: %w", err)
	}

	var student models.Student
	if err := res.into(req.Path, &student); err != nil {
		return models.Student{}, err
	}

	if student.StudentID == "" {
		return models.Student{}, fmt.Errorf("%w: add student response has no studentId", apperrors.ErrAPIResponse)
	}

	s.logger.Info("student added", slog.String("student_id", student.StudentID))

	return student, nil
}

// UpdateStudent changes a student's details. Empty fields are left
// unchanged by the backend.
func (s *Service) UpdateStudent(ctx context.Context, id string, n models.NewStudent) (models.Student, error) {
	var student models.Student
	if _, err := s.get(ctx, EndpointUpdateStudent, id, nil, n, &student); err != nil {
		return models.Student{}, notFound(err, id)
	}

	return student, nil
}

// DeleteStudent removes a student.
func (s *Service) DeleteStudent(ctx context.Context, id string) error {
	if _, err := s.do(ctx, EndpointDeleteStudent, id, nil, nil); err != nil {
		err = notFound(err, id)
		if errors.Is(err, apperrors.ErrStudentNotFound) {
			return err
		}

		return fmt.Errorf("deleting student: %w", err)
	}

	s.logger.Info("student deleted", slog.String("student_id", id))

	return nil
}
