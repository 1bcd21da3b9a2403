// Package practice holds the practice-count domain: what a user logs,
// the backends that persist it, and the service the HTTP layer calls.
package practice

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// DateLayout is the day format used everywhere a date is exchanged.
const DateLayout = "2006-01-02"

var (
	ErrInvalid  = errors.New("invalid input")
	ErrNotFound = errors.New("not found")
	ErrUpstream = errors.New("upstream error")
)

// ValidationError names the offending field. It matches ErrInvalid.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalid }

type Practice struct {
	Name string `json:"name"`
}

type Profile struct {
	UserID     string `json:"userId"`
	Name       string `json:"name"`
	DharmaName string `json:"dharmaName"`
}

type Entry struct {
	Practice string `json:"practice"`
	Count    int    `json:"count"`
}

// Submission is one form post: a user's counts for a single day.
type Submission struct {
	UserID     string  `json:"userId"`
	Name       string  `json:"name"`
	DharmaName string  `json:"dharmaName"`
	Date       string  `json:"date"`
	Entries    []Entry `json:"entries"`
}

// Record is one logged row: a count against a practice on a date.
type Record struct {
	Date     string `json:"date"`
	Practice string `json:"practice"`
	Count    int    `json:"count"`
}

// Summary is what a backend knows about a user's history.
// StreakKnown is set when the backend computed Streak itself.
type Summary struct {
	UserID      string         `json:"userId"`
	Total       int            `json:"total"`
	Streak      int            `json:"streak"`
	StreakKnown bool           `json:"-"`
	Totals      map[string]int `json:"totals"`
	Records     []Record       `json:"records"`
}

// Backend persists profiles and entries.
type Backend interface {
	ListPractices(ctx context.Context) ([]Practice, error)
	GetProfile(ctx context.Context, userID string) (Profile, error)
	SaveProfile(ctx context.Context, p Profile) error
	Summary(ctx context.Context, userID string) (Summary, error)
	Submit(ctx context.Context, s Submission) error
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{Field: field, Reason: "is required"}
	}
	return nil
}

// Normalize trims every field.
func (p Profile) Normalize() Profile {
	return Profile{
		UserID:     strings.TrimSpace(p.UserID),
		Name:       strings.TrimSpace(p.Name),
		DharmaName: strings.TrimSpace(p.DharmaName),
	}
}

func (p Profile) Validate() error {
	if err := required("userId", p.UserID); err != nil {
		return err
	}
	if err := required("name", p.Name); err != nil {
		return err
	}
	return required("dharmaName", p.DharmaName)
}

// Normalize trims fields, fills the date from today when empty, drops
// zero-count rows and merges rows naming the same practice.
func (s Submission) Normalize(today time.Time) Submission {
	out := Submission{
		UserID:     strings.TrimSpace(s.UserID),
		Name:       strings.TrimSpace(s.Name),
		DharmaName: strings.TrimSpace(s.DharmaName),
		Date:       strings.TrimSpace(s.Date),
	}
	if out.Date == "" {
		out.Date = today.Format(DateLayout)
	}

	index := map[string]int{}
	for _, e := range s.Entries {
		name := strings.TrimSpace(e.Practice)
		if e.Count == 0 {
			continue
		}
		if i, ok := index[name]; ok {
			out.Entries[i].Count += e.Count
			continue
		}
		index[name] = len(out.Entries)
		out.Entries = append(out.Entries, Entry{Practice: name, Count: e.Count})
	}
	return out
}

func (s Submission) Validate() error {
	if err := (Profile{UserID: s.UserID, Name: s.Name, DharmaName: s.DharmaName}).Validate(); err != nil {
		return err
	}
	if _, err := time.Parse(DateLayout, s.Date); err != nil {
		return &ValidationError{Field: "date", Reason: "must be yyyy-mm-dd"}
	}
	if len(s.Entries) == 0 {
		return &ValidationError{Field: "entries", Reason: "at least one count greater than zero is required"}
	}
	for _, e := range s.Entries {
		if e.Practice == "" {
			return &ValidationError{Field: "practice", Reason: "is required"}
		}
		if e.Count <= 0 {
			return &ValidationError{Field: "count", Reason: fmt.Sprintf("must be greater than zero for %q", e.Practice)}
		}
	}
	return nil
}

// Sum returns the total count of the submission.
func (s Submission) Sum() int {
	n := 0
	for _, e := range s.Entries {
		n += e.Count
	}
	return n
}

// SortRecords orders records by date, then practice.
func SortRecords(rs []Record) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Date != rs[j].Date {
			return rs[i].Date < rs[j].Date
		}
		return rs[i].Practice < rs[j].Practice
	})
}
