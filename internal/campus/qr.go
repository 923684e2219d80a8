package campus

import (
	"fmt"
	"strings"
	"unicode"

	apperrors "github.com/alexjbarnes/campusctl/internal/errors"
	"github.com/alexjbarnes/campusctl/internal/models"
)

// QRPayload is what a student's ID card QR code carries. Cards printed
// at enrollment hold "ID:<id>|Name:<name>|Roll:<roll>"; profile cards
// hold the bare ID.
type QRPayload struct {
	StudentID string
	Name      string
	Roll      string
}

// ParseQRPayload reads either payload form. Keys are case-insensitive,
// unknown keys are ignored and the ID is required.
func ParseQRPayload(raw string) (QRPayload, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return QRPayload{}, fmt.Errorf("%w: empty", apperrors.ErrInvalidQRPayload)
	}

	if !strings.Contains(raw, "|") && !strings.Contains(raw, ":") {
		if strings.IndexFunc(raw, func(r rune) bool { return unicode.IsSpace(r) || unicode.IsControl(r) }) >= 0 {
			return QRPayload{}, fmt.Errorf("%w: %q", apperrors.ErrInvalidQRPayload, raw)
		}

		return QRPayload{StudentID: raw}, nil
	}

	var p QRPayload

	for _, field := range strings.Split(raw, "|") {
		key, value, ok := strings.Cut(field, ":")
		if !ok {
			return QRPayload{}, fmt.Errorf("%w: field %q has no key", apperrors.ErrInvalidQRPayload, field)
		}

		value = strings.TrimSpace(value)

		switch strings.ToLower(strings.TrimSpace(key)) {
		case "id":
			p.StudentID = value
		case "name":
			p.Name = value
		case "roll":
			p.Roll = value
		}
	}

	if p.StudentID == "" {
		return QRPayload{}, fmt.Errorf("%w: no ID field", apperrors.ErrInvalidQRPayload)
	}

	return p, nil
}

// String encodes the payload. Without name and roll it is the bare ID.
func (p QRPayload) String() string {
	if p.Name == "" && p.Roll == "" {
		return p.StudentID
	}

	clean := strings.NewReplacer("|", "/").Replace

	return fmt.Sprintf("ID:%s|Name:%s|Roll:%s", clean(p.StudentID), clean(p.Name), clean(p.Roll))
}

// PayloadFor builds the enrollment card payload of a student.
func PayloadFor(s models.Student) QRPayload {
	return QRPayload{StudentID: s.StudentID, Name: s.Name, Roll: s.Roll}
}
