package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/amonks/timekeep/gateway"
	"github.com/amonks/timekeep/internal/state"
	"github.com/amonks/timekeep/tracking"
)

var testNow = time.Date(2026, time.March, 14, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*Server, *clockwork.FakeClock, string) {
	t.Helper()
	dataDir := t.TempDir()
	clock := clockwork.NewFakeClockAt(testNow)
	server, err := NewServer(ServerOptions{
		DataDir: dataDir,
		Clock:   clock,
		Logger:  log.New(io.Discard, "", 0),
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return server, clock, dataDir
}

func post(t *testing.T, handler http.Handler, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	request := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	response := httptest.NewRecorder()
	handler.ServeHTTP(response, request)
	return response
}

func startTimer(t *testing.T, handler http.Handler, req gateway.StartRequest) string {
	t.Helper()
	response := post(t, handler, "/timers/start", req)
	if response.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", response.Code, response.Body.String())
	}
	var payload startResponse
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.ID == "" {
		t.Fatalf("expected entry id")
	}
	return payload.ID
}

func activeTimers(t *testing.T, handler http.Handler, userID string) gateway.ActiveTimers {
	t.Helper()
	response := post(t, handler, "/timers/active", userRequest{UserID: userID})
	if response.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", response.Code, response.Body.String())
	}
	var payload gateway.ActiveTimers
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return payload
}

func TestStartListStop(t *testing.T) {
	server, clock, dataDir := newTestServer(t)
	handler := server.Handler()

	todoEntry := startTimer(t, handler, gateway.StartRequest{TodoID: "T1", UserID: "u1", Description: "  write   docs "})
	caseEntry := startTimer(t, handler, gateway.StartRequest{CaseID: "C1", UserID: "u1"})
	startTimer(t, handler, gateway.StartRequest{TodoID: "T9", UserID: "someone-else"})

	active := activeTimers(t, handler, "u1")
	if len(active.TimeEntries) != 1 || active.TimeEntries[0].ID != todoEntry {
		t.Fatalf("expected todo timer in time_entries, got %+v", active.TimeEntries)
	}
	if active.TimeEntries[0].Description != "write docs" {
		t.Fatalf("expected normalized description, got %q", active.TimeEntries[0].Description)
	}
	if len(active.TimeTracking) != 1 || active.TimeTracking[0].ID != caseEntry {
		t.Fatalf("expected case timer in time_tracking, got %+v", active.TimeTracking)
	}

	clock.Advance(90 * time.Second)
	response := post(t, handler, "/timers/stop", entryRequest{ID: todoEntry, SubjectType: tracking.SubjectTodo})
	if response.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", response.Code)
	}

	st, err := state.NewStore(dataDir).Load()
	if err != nil {
		t.Fatalf("load ledger: %v", err)
	}
	stopped := st.Entries[todoEntry]
	if stopped.Active() {
		t.Fatalf("expected entry to be stopped")
	}
	if stopped.DurationSeconds != 90 {
		t.Fatalf("expected 90 seconds, got %d", stopped.DurationSeconds)
	}

	active = activeTimers(t, handler, "u1")
	if len(active.TimeEntries) != 0 || len(active.TimeTracking) != 1 {
		t.Fatalf("expected only the case timer to remain, got %+v", active)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	server, clock, dataDir := newTestServer(t)
	handler := server.Handler()
	id := startTimer(t, handler, gateway.StartRequest{TodoID: "T1", UserID: "u1"})

	clock.Advance(time.Minute)
	if response := post(t, handler, "/timers/stop", entryRequest{ID: id}); response.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", response.Code)
	}
	clock.Advance(time.Minute)
	if response := post(t, handler, "/timers/stop", entryRequest{ID: id}); response.Code != http.StatusOK {
		t.Fatalf("expected duplicate stop to succeed, got %d", response.Code)
	}

	st, err := state.NewStore(dataDir).Load()
	if err != nil {
		t.Fatalf("load ledger: %v", err)
	}
	if got := st.Entries[id].DurationSeconds; got != 60 {
		t.Fatalf("expected duplicate stop to leave duration at 60, got %d", got)
	}
}

func TestStopUnknownEntry(t *testing.T) {
	server, _, _ := newTestServer(t)
	handler := server.Handler()

	response := post(t, handler, "/timers/stop", entryRequest{ID: "missing"})
	if response.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", response.Code)
	}

	id := startTimer(t, handler, gateway.StartRequest{TodoID: "T1", UserID: "u1"})
	response = post(t, handler, "/timers/stop", entryRequest{ID: id, SubjectType: tracking.SubjectCase})
	if response.Code != http.StatusNotFound {
		t.Fatalf("expected subject type mismatch to be 404, got %d", response.Code)
	}
}

func TestStartValidation(t *testing.T) {
	server, _, _ := newTestServer(t)
	handler := server.Handler()

	cases := []struct {
		name string
		req  gateway.StartRequest
	}{
		{name: "no subject", req: gateway.StartRequest{UserID: "u1"}},
		{name: "both subjects", req: gateway.StartRequest{CaseID: "C1", TodoID: "T1", UserID: "u1"}},
		{name: "no user", req: gateway.StartRequest{TodoID: "T1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			response := post(t, handler, "/timers/start", tc.req)
			if response.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", response.Code)
			}
		})
	}
}

func TestStopAllPaths(t *testing.T) {
	for _, path := range []string{"/timers/stop-all", gateway.StopAllPath} {
		t.Run(path, func(t *testing.T) {
			server, _, _ := newTestServer(t)
			handler := server.Handler()
			startTimer(t, handler, gateway.StartRequest{TodoID: "T1", UserID: "u1"})
			startTimer(t, handler, gateway.StartRequest{CaseID: "C1", UserID: "u1"})
			other := startTimer(t, handler, gateway.StartRequest{TodoID: "T2", UserID: "u2"})

			for i := 0; i < 2; i++ {
				response := post(t, handler, path, userRequest{UserID: "u1"})
				if response.Code != http.StatusOK {
					t.Fatalf("expected status 200, got %d", response.Code)
				}
			}

			active := activeTimers(t, handler, "u1")
			if len(active.TimeEntries)+len(active.TimeTracking) != 0 {
				t.Fatalf("expected no active timers, got %+v", active)
			}
			active = activeTimers(t, handler, "u2")
			if len(active.TimeEntries) != 1 || active.TimeEntries[0].ID != other {
				t.Fatalf("expected other user's timer untouched, got %+v", active)
			}
		})
	}
}

func TestStopAllRequiresUser(t *testing.T) {
	server, _, _ := newTestServer(t)

	response := post(t, server.Handler(), gateway.StopAllPath, userRequest{})
	if response.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", response.Code)
	}
}

func TestManualEntryValidation(t *testing.T) {
	server, _, _ := newTestServer(t)
	handler := server.Handler()
	subject := tracking.Subject{Type: tracking.SubjectCase, ID: "C1"}

	cases := []struct {
		name  string
		entry tracking.ManualEntry
	}{
		{name: "future date", entry: tracking.ManualEntry{Subject: subject, UserID: "u1", Hours: 1, Date: "2026-03-15"}},
		{name: "negative hours", entry: tracking.ManualEntry{Subject: subject, UserID: "u1", Hours: -1, Minutes: 30}},
		{name: "negative minutes", entry: tracking.ManualEntry{Subject: subject, UserID: "u1", Hours: 1, Minutes: -5}},
		{name: "minutes overflow", entry: tracking.ManualEntry{Subject: subject, UserID: "u1", Minutes: 60}},
		{name: "zero total", entry: tracking.ManualEntry{Subject: subject, UserID: "u1"}},
		{name: "bad date", entry: tracking.ManualEntry{Subject: subject, UserID: "u1", Hours: 1, Date: "14/03/2026"}},
		{name: "bad subject type", entry: tracking.ManualEntry{Subject: tracking.Subject{Type: "ticket", ID: "X"}, UserID: "u1", Hours: 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			response := post(t, handler, "/entries/manual", tc.entry)
			if response.Code != http.StatusUnprocessableEntity {
				t.Fatalf("expected status 422, got %d: %s", response.Code, response.Body.String())
			}
			var payload map[string]string
			if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if payload["error"] == "" {
				t.Fatalf("expected error message")
			}
		})
	}
}

func TestManualEntryRecorded(t *testing.T) {
	server, _, dataDir := newTestServer(t)
	handler := server.Handler()

	response := post(t, handler, "/entries/manual", tracking.ManualEntry{
		Subject: tracking.Subject{Type: tracking.SubjectTodo, ID: "T1"},
		UserID:  "u1",
		Hours:   1,
		Minutes: 15,
	})
	if response.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", response.Code, response.Body.String())
	}
	var payload startResponse
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	st, err := state.NewStore(dataDir).Load()
	if err != nil {
		t.Fatalf("load ledger: %v", err)
	}
	entry, ok := st.Entries[payload.ID]
	if !ok {
		t.Fatalf("expected entry %s to be stored", payload.ID)
	}
	if entry.Kind != state.EntryManual || entry.Active() {
		t.Fatalf("expected inactive manual entry, got %+v", entry)
	}
	if entry.DurationSeconds != 75*60 {
		t.Fatalf("expected 4500 seconds, got %d", entry.DurationSeconds)
	}
	if entry.Date != "2026-03-14" {
		t.Fatalf("expected today's date, got %q", entry.Date)
	}
}

func TestDeleteEntry(t *testing.T) {
	server, _, _ := newTestServer(t)
	handler := server.Handler()

	response := post(t, handler, "/entries/delete", entryRequest{ID: "missing", SubjectType: tracking.SubjectTodo})
	if response.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", response.Code)
	}

	id := startTimer(t, handler, gateway.StartRequest{TodoID: "T1", UserID: "u1"})
	response = post(t, handler, "/entries/delete", entryRequest{ID: id, SubjectType: tracking.SubjectTodo})
	if response.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", response.Code)
	}
	active := activeTimers(t, handler, "u1")
	if len(active.TimeEntries) != 0 {
		t.Fatalf("expected deleted timer to be gone, got %+v", active.TimeEntries)
	}
}

func TestRejectsUnknownFields(t *testing.T) {
	server, _, _ := newTestServer(t)

	request := httptest.NewRequest(http.MethodPost, "/timers/start", strings.NewReader(`{"todo_id":"T1","user_id":"u1","bogus":true}`))
	response := httptest.NewRecorder()
	server.Handler().ServeHTTP(response, request)
	if response.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", response.Code)
	}
}

func TestHealth(t *testing.T) {
	server, _, _ := newTestServer(t)
	handler := server.Handler()

	response := httptest.NewRecorder()
	handler.ServeHTTP(response, httptest.NewRequest(http.MethodGet, "/health", nil))
	if response.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", response.Code)
	}

	response = httptest.NewRecorder()
	handler.ServeHTTP(response, httptest.NewRequest(http.MethodPost, "/health", nil))
	if response.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405, got %d", response.Code)
	}
	if allow := response.Header().Get("Allow"); allow != http.MethodGet {
		t.Fatalf("expected Allow GET, got %q", allow)
	}
}

func TestNewServerRequiresDataDir(t *testing.T) {
	if _, err := NewServer(ServerOptions{}); err == nil {
		t.Fatalf("expected error without data dir")
	}
}
