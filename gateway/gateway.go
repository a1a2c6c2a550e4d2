// Package gateway is the only egress for time-tracking operations.
//
// Client performs ordinary request/response calls. Beacon performs
// fire-and-forget delivery of "stop all timers for user", for callers that
// cannot count on running long enough to see a response.
package gateway

import (
	"context"

	"github.com/amonks/timekeep/tracking"
)

// StopAllPath is the fixed RPC endpoint used for beacon delivery.
const StopAllPath = "/rpc/stop_all_active_timers"

// Gateway is the set of backend calls the timer manager depends on.
type Gateway interface {
	StartTimer(ctx context.Context, req StartRequest) (string, error)
	StopTimer(ctx context.Context, entryID string, subjectType tracking.SubjectType) error
	ActiveTimers(ctx context.Context, userID string) (ActiveTimers, error)
	StopAllActiveTimers(ctx context.Context, userID string) error
	AddManualTime(ctx context.Context, entry tracking.ManualEntry) error
	DeleteTimeEntry(ctx context.Context, id string, subjectType tracking.SubjectType) error
}

// StartRequest starts a timer. Exactly one of CaseID and TodoID is set.
type StartRequest struct {
	CaseID      string `json:"case_id,omitempty"`
	TodoID      string `json:"todo_id,omitempty"`
	UserID      string `json:"user_id"`
	Description string `json:"description,omitempty"`
}

// NewStartRequest builds a start request for a subject.
func NewStartRequest(subject tracking.Subject, userID, description string) StartRequest {
	req := StartRequest{UserID: userID, Description: description}
	switch subject.Type {
	case tracking.SubjectCase:
		req.CaseID = subject.ID
	default:
		req.TodoID = subject.ID
	}
	return req
}

// ActiveTimers is the active-timer listing as the backend returns it:
// todo timers live in time entries, case timers in time tracking.
type ActiveTimers struct {
	TimeEntries  []tracking.ActiveTimer `json:"time_entries"`
	TimeTracking []tracking.ActiveTimer `json:"time_tracking"`
}

// Roster merges both listings into a roster.
func (a ActiveTimers) Roster() tracking.Roster {
	items := make([]tracking.ActiveTimer, 0, len(a.TimeEntries)+len(a.TimeTracking))
	for _, item := range a.TimeEntries {
		if item.SubjectType == "" {
			item.SubjectType = tracking.SubjectTodo
		}
		items = append(items, item)
	}
	for _, item := range a.TimeTracking {
		if item.SubjectType == "" {
			item.SubjectType = tracking.SubjectCase
		}
		items = append(items, item)
	}
	return tracking.NewRoster(items)
}
