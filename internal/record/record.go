// Package record holds the persisted student record and the stores that keep it.
package record

import (
	"context"
	"errors"
	"time"
)

// Collection is the document collection / table name used by every backend.
const Collection = "students"

// Student is one submitted record. Records are never updated or deleted.
type Student struct {
	ID         string    `json:"id"`
	SchoolName string    `json:"schoolName"`
	ClassName  string    `json:"className"`
	Section    string    `json:"section"`
	Name       string    `json:"name"`
	RollNumber string    `json:"rollNumber"`
	Department string    `json:"department"`
	Year       string    `json:"year"`
	ImageURL   *string   `json:"imageUrl"`
	CreatedAt  time.Time `json:"createdAt"`
}

// HasImage reports whether the record carries a non-empty image URL.
func (s Student) HasImage() bool {
	return s.ImageURL != nil && *s.ImageURL != ""
}

// Store persists records. ListAll returns records oldest first.
type Store interface {
	Insert(ctx context.Context, s Student) (Student, error)
	ListAll(ctx context.Context) ([]Student, error)
}

// Pinger is implemented by stores that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ErrInvalid is returned when a record misses a required field.
var ErrInvalid = errors.New("record: required field missing")

// Validate checks that every required field is set.
func (s Student) Validate() error {
	for _, v := range []string{s.SchoolName, s.ClassName, s.Section, s.Name, s.RollNumber, s.Department, s.Year} {
		if v == "" {
			return ErrInvalid
		}
	}
	return nil
}

// Schools returns the distinct non-empty school names in first-seen order.
func Schools(records []Student) []string {
	seen := make(map[string]struct{}, len(records))
	out := make([]string, 0)
	for _, r := range records {
		if r.SchoolName == "" {
			continue
		}
		if _, ok := seen[r.SchoolName]; ok {
			continue
		}
		seen[r.SchoolName] = struct{}{}
		out = append(out, r.SchoolName)
	}
	return out
}

// BySchool returns the records belonging to school, preserving order.
// An empty school matches nothing.
func BySchool(records []Student, school string) []Student {
	out := make([]Student, 0)
	if school == "" {
		return out
	}
	for _, r := range records {
		if r.SchoolName == school {
			out = append(out, r)
		}
	}
	return out
}

func stamp(s Student) Student {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	return s
}
