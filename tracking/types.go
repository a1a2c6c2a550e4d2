// Package tracking holds the value types shared by the timer manager, the
// lifecycle coordinator, the gateway and the reference backend.
package tracking

import (
	"sort"
	"time"

	internalstrings "github.com/amonks/timekeep/internal/strings"
)

// SubjectType identifies what kind of task a timer is attached to.
type SubjectType string

const (
	// SubjectCase is a case subject.
	SubjectCase SubjectType = "case"
	// SubjectTodo is a todo subject.
	SubjectTodo SubjectType = "todo"
)

// ValidSubjectTypes returns all valid subject type values.
func ValidSubjectTypes() []SubjectType {
	return []SubjectType{SubjectCase, SubjectTodo}
}

// IsValid returns true if the subject type is a known value.
func (t SubjectType) IsValid() bool {
	for _, valid := range ValidSubjectTypes() {
		if t == valid {
			return true
		}
	}
	return false
}

// ParseSubjectType accepts a subject type in any case, with surrounding
// whitespace.
func ParseSubjectType(value string) (SubjectType, error) {
	parsed := SubjectType(internalstrings.NormalizeLowerTrimSpace(value))
	if !parsed.IsValid() {
		return "", FormatInvalidSubjectType(SubjectType(value))
	}
	return parsed, nil
}

// Subject is the task a timer or manual entry is recorded against.
type Subject struct {
	Type SubjectType `json:"type"`
	ID   string      `json:"id"`
}

// State is the locally running timer.
//
// Running, SubjectID and EntryID are either all set or all empty.
type State struct {
	Running        bool        `json:"running"`
	ElapsedSeconds int         `json:"elapsed_seconds"`
	SubjectID      string      `json:"subject_id,omitempty"`
	SubjectType    SubjectType `json:"subject_type,omitempty"`
	EntryID        string      `json:"entry_id,omitempty"`
}

// Idle returns the idle timer state.
func Idle() State {
	return State{}
}

// Valid reports whether the running flag agrees with the subject and entry.
func (s State) Valid() bool {
	if s.ElapsedSeconds < 0 {
		return false
	}
	if s.Running {
		return s.SubjectID != "" && s.EntryID != ""
	}
	return s.SubjectID == "" && s.EntryID == "" && s.ElapsedSeconds == 0
}

// Elapsed returns the elapsed time as a duration.
func (s State) Elapsed() time.Duration {
	return time.Duration(s.ElapsedSeconds) * time.Second
}

// ActiveTimer is a server-side timer that has started but not stopped.
type ActiveTimer struct {
	ID          string      `json:"id"`
	SubjectType SubjectType `json:"subject_type"`
	SubjectID   string      `json:"subject_id"`
	Description string      `json:"description,omitempty"`
	StartedAt   time.Time   `json:"started_at"`
}

// Roster is a read-only cache of the active timers for a user, keyed by ID.
type Roster struct {
	byID map[string]ActiveTimer
}

// NewRoster builds a roster from items. Later duplicates replace earlier ones.
func NewRoster(items []ActiveTimer) Roster {
	byID := make(map[string]ActiveTimer, len(items))
	for _, item := range items {
		if item.ID == "" {
			continue
		}
		byID[item.ID] = item
	}
	return Roster{byID: byID}
}

// Len returns the number of active timers.
func (r Roster) Len() int {
	return len(r.byID)
}

// Get returns the timer with the given ID.
func (r Roster) Get(id string) (ActiveTimer, bool) {
	item, ok := r.byID[id]
	return item, ok
}

// Contains reports whether a timer with the given ID is active.
func (r Roster) Contains(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// Items returns the timers ordered by start time, then ID.
func (r Roster) Items() []ActiveTimer {
	items := make([]ActiveTimer, 0, len(r.byID))
	for _, item := range r.byID {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].StartedAt.Equal(items[j].StartedAt) {
			return items[i].StartedAt.Before(items[j].StartedAt)
		}
		return items[i].ID < items[j].ID
	})
	return items
}

// ManualEntry is time recorded after the fact rather than with a timer.
type ManualEntry struct {
	Subject     Subject `json:"subject"`
	UserID      string  `json:"user_id"`
	Hours       int     `json:"hours"`
	Minutes     int     `json:"minutes"`
	Description string  `json:"description,omitempty"`
	// Date is the calendar day the work happened on, formatted as YYYY-MM-DD.
	Date string `json:"date"`
}

// Duration returns the recorded time.
func (e ManualEntry) Duration() time.Duration {
	return time.Duration(e.Hours)*time.Hour + time.Duration(e.Minutes)*time.Minute
}
