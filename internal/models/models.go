// Package models defines the backend wire types shared by the client
// services and the fake backend.
package models

import "time"

// Envelope is the wrapper every backend JSON answer uses.
type Envelope struct {
	Success bool   `json:"success"`
	Error   bool   `json:"error"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// User is the account behind a session.
type User struct {
	ID     string `json:"_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// Student is a student record. ID is the database key, StudentID the
// human-facing identifier printed on the QR card.
type Student struct {
	ID         string `json:"_id"`
	StudentID  string `json:"studentId"`
	Name       string `json:"name"`
	Roll       string `json:"roll"`
	ClassName  string `json:"className"`
	Division   string `json:"division"`
	FatherName string `json:"fatherName,omitempty"`
	Mobile     string `json:"mobile,omitempty"`
	Address    string `json:"address,omitempty"`
	Photo      string `json:"photo,omitempty"`
}

// NewStudent holds the form fields for adding or updating a student.
type NewStudent struct {
	Name       string `json:"name"`
	Roll       string `json:"roll"`
	ClassName  string `json:"className"`
	Division   string `json:"division"`
	FatherName string `json:"fatherName"`
	Mobile     string `json:"mobile"`
	Address    string `json:"address"`
}

// Fields returns the form fields in a stable order.
func (n NewStudent) Fields() [][2]string {
	return [][2]string{
		{"name", n.Name},
		{"roll", n.Roll},
		{"className", n.ClassName},
		{"division", n.Division},
		{"fatherName", n.FatherName},
		{"mobile", n.Mobile},
		{"address", n.Address},
	}
}

// Attendance statuses.
const (
	StatusPresent = "Present"
	StatusAbsent  = "Absent"
)

// AttendanceRecord is one marked lecture.
type AttendanceRecord struct {
	ID        string    `json:"_id"`
	StudentID string    `json:"studentId"`
	Name      string    `json:"name,omitempty"`
	Date      string    `json:"date"`
	Lecture   int       `json:"lecture"`
	Status    string    `json:"status"`
	MarkedAt  time.Time `json:"markedAt"`
}

// DaySummary is the number of lectures a student attended on a day of
// the month.
type DaySummary struct {
	Day      int `json:"day"`
	Lectures int `json:"lectures"`
}

// LectureStatus is the outcome of one lecture on a given day.
type LectureStatus struct {
	Lecture int    `json:"lecture"`
	Status  string `json:"status"`
}

// TodaySummary counts students seen today.
type TodaySummary struct {
	Date    string `json:"date"`
	Total   int    `json:"total"`
	Present int    `json:"present"`
	Absent  int    `json:"absent"`
}
