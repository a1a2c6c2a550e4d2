// Package state manages a timekeep state file.
//
// The tracking backend keeps its time-entry ledger in
// ~/.local/share/timekeep/state.json; the CLI keeps the signed-in session in
// ~/.local/state/timekeep/state.json. All writes go through file locking so
// concurrent processes never lose each other's updates.
package state

import (
	"time"

	"github.com/amonks/timekeep/tracking"
)

// State represents the persisted state file.
type State struct {
	Session *Session         `json:"session,omitempty"`
	Entries map[string]Entry `json:"entries"`
}

// Session records the signed-in user.
type Session struct {
	UserID     string    `json:"user_id"`
	SignedInAt time.Time `json:"signed_in_at"`
}

// EntryKind distinguishes timer entries from manual ones.
type EntryKind string

const (
	// EntryTimer is an entry created by starting a timer.
	EntryTimer EntryKind = "timer"
	// EntryManual is an entry recorded after the fact.
	EntryManual EntryKind = "manual"
)

// ValidEntryKinds returns all valid entry kind values.
func ValidEntryKinds() []EntryKind {
	return []EntryKind{EntryTimer, EntryManual}
}

// IsValid returns true if the kind is a known value.
func (k EntryKind) IsValid() bool {
	for _, valid := range ValidEntryKinds() {
		if k == valid {
			return true
		}
	}
	return false
}

// Entry is one recorded span of work.
type Entry struct {
	ID              string               `json:"id"`
	UserID          string               `json:"user_id"`
	Kind            EntryKind            `json:"kind"`
	SubjectType     tracking.SubjectType `json:"subject_type"`
	SubjectID       string               `json:"subject_id"`
	Description     string               `json:"description,omitempty"`
	StartedAt       time.Time            `json:"started_at,omitempty"`
	StoppedAt       time.Time            `json:"stopped_at,omitempty"`
	DurationSeconds int                  `json:"duration_seconds,omitempty"`
	// Date is set on manual entries (YYYY-MM-DD).
	Date string `json:"date,omitempty"`
}

// Active reports whether the entry is a timer that has not been stopped.
func (e Entry) Active() bool {
	return e.Kind == EntryTimer && e.StoppedAt.IsZero()
}

// ActiveTimer converts an active entry into its roster record.
func (e Entry) ActiveTimer() tracking.ActiveTimer {
	return tracking.ActiveTimer{
		ID:          e.ID,
		SubjectType: e.SubjectType,
		SubjectID:   e.SubjectID,
		Description: e.Description,
		StartedAt:   e.StartedAt,
	}
}
