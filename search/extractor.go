package search

import (
	"regexp"
	"time"
)

var (
	emailPattern = regexp.MustCompile(`[\p{L}\p{N}_.-]+@[\p{L}\p{N}_.-]+\.[\p{L}\p{N}_]+`)
	phonePattern = regexp.MustCompile(`\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`)
)

// Contact holds what ExtractContact found. Empty fields were not found.
type Contact struct {
	Email string
	Phone string
}

// ExtractContact returns the first e-mail address and the first North
// American phone number in text.
func ExtractContact(text string) Contact {
	return Contact{
		Email: emailPattern.FindString(text),
		Phone: phonePattern.FindString(text),
	}
}

// Candidate is one extracted search result. Name is never empty; the other
// fields are best effort and empty when unavailable.
type Candidate struct {
	Name         string    `json:"name"`
	Email        string    `json:"email,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	DocumentPath string    `json:"resume_path,omitempty"`
	ExtractedAt  time.Time `json:"timestamp"`
}
