package book

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when no book has the requested ISBN.
	ErrNotFound = errors.New("book not found")
	// ErrConflict is returned when a book with the same ISBN already exists.
	ErrConflict = errors.New("book already exists")
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("invalid book")
	// ErrUpstreamUnavailable is returned when the metadata source failed or
	// had nothing usable for the ISBN.
	ErrUpstreamUnavailable = errors.New("metadata source unavailable")
)

// Status is the circulation state of a book. It has no transition rules.
type Status string

const (
	StatusAvailable   Status = "AVAILABLE"
	StatusBorrowed    Status = "BORROWED"
	StatusReserved    Status = "RESERVED"
	StatusMaintenance Status = "MAINTENANCE"
)

// Statuses lists every valid status.
var Statuses = []Status{StatusAvailable, StatusBorrowed, StatusReserved, StatusMaintenance}

func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusBorrowed, StatusReserved, StatusMaintenance:
		return true
	}
	return false
}

// ParseStatus accepts any letter case.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return st, nil
}

const dateLayout = "2006-01-02"

// Date is a calendar date without time of day, encoded as YYYY-MM-DD.
type Date struct {
	time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return Date{t}, nil
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	parsed, err := ParseDate(s)
	if err != nil {
		return fmt.Errorf("date must be formatted YYYY-MM-DD: %w", err)
	}
	*d = parsed
	return nil
}

// Book is a catalog entry, identified by its ISBN.
type Book struct {
	ISBN          string    `json:"isbn"`
	Title         string    `json:"title"`
	Author        string    `json:"author"`
	PublishedDate *Date     `json:"published_date,omitempty"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NormalizeISBN strips hyphens and spaces and upper-cases a trailing x.
func NormalizeISBN(isbn string) string {
	isbn = strings.TrimSpace(isbn)
	isbn = strings.ReplaceAll(isbn, "-", "")
	isbn = strings.ReplaceAll(isbn, " ", "")
	return strings.ToUpper(isbn)
}

// CreateRequest is the payload accepted when a book is added to the catalog.
type CreateRequest struct {
	ISBN          string `json:"isbn" validate:"required,isbn"`
	Title         string `json:"title" validate:"required,notblank"`
	Author        string `json:"author" validate:"required,notblank"`
	PublishedDate string `json:"published_date" validate:"omitempty,past_date"`
	Status        string `json:"status" validate:"omitempty,book_status"`
}

// toBook assumes the request has been validated.
func (r CreateRequest) toBook() Book {
	b := Book{
		ISBN:   NormalizeISBN(r.ISBN),
		Title:  strings.TrimSpace(r.Title),
		Author: strings.TrimSpace(r.Author),
		Status: StatusAvailable,
	}
	if r.PublishedDate != "" {
		if d, err := ParseDate(r.PublishedDate); err == nil {
			b.PublishedDate = &d
		}
	}
	if r.Status != "" {
		if st, err := ParseStatus(r.Status); err == nil {
			b.Status = st
		}
	}
	return b
}
