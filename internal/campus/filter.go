package campus

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/alexjbarnes/campusctl/internal/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// StudentFilter narrows a student list. Zero fields match everything.
type StudentFilter struct {
	// Query matches name, student ID, roll or class as a substring.
	Query     string
	ClassName string
	Division  string
}

// fold lowercases s and strips combining marks so "José" matches "jose".
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}

	return cases.Fold().String(stripped)
}

// Match reports whether s passes the filter.
func (f StudentFilter) Match(s models.Student) bool {
	if f.ClassName != "" && fold(s.ClassName) != fold(f.ClassName) {
		return false
	}

	if f.Division != "" && fold(s.Division) != fold(f.Division) {
		return false
	}

	q := fold(strings.TrimSpace(f.Query))
	if q == "" {
		return true
	}

	for _, field := range []string{s.Name, s.StudentID, s.Roll, s.ClassName} {
		if strings.Contains(fold(field), q) {
			return true
		}
	}

	return false
}

// Filter returns the students that pass f, keeping their order.
func Filter(students []models.Student, f StudentFilter) []models.Student {
	out := make([]models.Student, 0, len(students))

	for _, s := range students {
		if f.Match(s) {
			out = append(out, s)
		}
	}

	return out
}

// Sortable fields.
const (
	SortByName      = "name"
	SortByRoll      = "roll"
	SortByStudentID = "studentId"
	SortByClass     = "className"
)

func sortKey(s models.Student, field string) string {
	switch field {
	case SortByName:
		return s.Name
	case SortByRoll:
		return s.Roll
	case SortByStudentID:
		return s.StudentID
	case SortByClass:
		return s.ClassName
	}

	return ""
}

// lessValue orders integers numerically, so roll 10 sorts after roll 9,
// and puts every integer before every non-integer. Non-integers compare
// folded.
func lessValue(a, b string) (less, equal bool) {
	ai, errA := strconv.Atoi(strings.TrimSpace(a))
	bi, errB := strconv.Atoi(strings.TrimSpace(b))

	switch {
	case errA == nil && errB == nil:
		return ai < bi, ai == bi
	case errA == nil:
		return true, false
	case errB == nil:
		return false, false
	}

	fa, fb := fold(a), fold(b)

	return fa < fb, fa == fb
}

// Sort orders students in place by field. The sort is stable.
func Sort(students []models.Student, field string, desc bool) error {
	switch field {
	case SortByName, SortByRoll, SortByStudentID, SortByClass:
	default:
		return fmt.Errorf("cannot sort by %q", field)
	}

	sort.SliceStable(students, func(i, j int) bool {
		less, equal := lessValue(sortKey(students[i], field), sortKey(students[j], field))
		if equal {
			return false
		}

		if desc {
			return !less
		}

		return less
	})

	return nil
}

// Page returns the 1-based page of size n. Out of range pages are empty.
func Page(students []models.Student, page, n int) []models.Student {
	if n <= 0 {
		return students
	}

	if page < 1 {
		page = 1
	}

	if len(students) == 0 || page-1 > (len(students)-1)/n {
		return nil
	}

	start := (page - 1) * n

	return students[start : start+min(n, len(students)-start)]
}

// Distinct returns the sorted set of non-empty class names and
// divisions in students.
func Distinct(students []models.Student) (classes, divisions []string) {
	seenClass := map[string]bool{}
	seenDiv := map[string]bool{}

	for _, s := range students {
		if s.ClassName != "" && !seenClass[s.ClassName] {
			seenClass[s.ClassName] = true
			classes = append(classes, s.ClassName)
		}

		if s.Division != "" && !seenDiv[s.Division] {
			seenDiv[s.Division] = true
			divisions = append(divisions, s.Division)
		}
	}

	sort.Strings(classes)
	sort.Strings(divisions)

	return classes, divisions
}
