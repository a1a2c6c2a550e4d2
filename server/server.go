// Package server is a reference time-tracking backend. It serves the RPCs the
// gateway calls and keeps its ledger in a locked JSON state file.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/amonks/timekeep/gateway"
	internalstrings "github.com/amonks/timekeep/internal/strings"
	"github.com/amonks/timekeep/internal/state"
	"github.com/amonks/timekeep/tracking"
)

// DateLayout is the calendar-day format of manual entries.
const DateLayout = "2006-01-02"

const shutdownTimeout = 5 * time.Second

var errEntryNotFound = errors.New("time entry not found")

// ServerOptions configures a tracking server.
type ServerOptions struct {
	DataDir string
	Clock   clockwork.Clock
	Logger  *log.Logger
}

// Server handles tracking RPCs.
type Server struct {
	store  *state.Store
	clock  clockwork.Clock
	logger *log.Logger
}

// NewServer creates a tracking server.
func NewServer(opts ServerOptions) (*Server, error) {
	if internalstrings.IsBlank(opts.DataDir) {
		return nil, fmt.Errorf("data dir is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "server: ", log.LstdFlags)
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Server{
		store:  state.NewStore(opts.DataDir),
		clock:  clock,
		logger: logger,
	}, nil
}

// Handler returns the HTTP handler for tracking RPCs.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/timers/start", s.handleStart)
	mux.HandleFunc("/timers/stop", s.handleStop)
	mux.HandleFunc("/timers/active", s.handleActive)
	mux.HandleFunc("/timers/stop-all", s.handleStopAll)
	mux.HandleFunc(gateway.StopAllPath, s.handleStopAll)
	mux.HandleFunc("/entries/manual", s.handleManual)
	mux.HandleFunc("/entries/delete", s.handleDelete)
	mux.HandleFunc("/health", s.handleHealth)
	return s.recoverHandler(mux)
}

// Serve runs the server on the given address until it fails or the process
// is interrupted.
func (s *Server) Serve(addr string) error {
	server := &http.Server{
		Addr:     addr,
		Handler:  s.Handler(),
		ErrorLog: s.logger,
	}

	listenErrs := make(chan error, 1)
	go func() {
		listenErrs <- server.ListenAndServe()
	}()
	s.logf("listening on %s", addr)

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupts)

	select {
	case err := <-listenErrs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logf("server stopped: %v", err)
			return err
		}
		return nil
	case <-interrupts:
		s.logf("interrupt received, shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		shutdownErr := server.Shutdown(shutdownCtx)
		cancel()
		listenErr := <-listenErrs
		if errors.Is(listenErr, http.ErrServerClosed) {
			listenErr = nil
		}
		if errors.Is(shutdownErr, http.ErrServerClosed) {
			shutdownErr = nil
		}
		return errors.Join(shutdownErr, listenErr)
	}
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	var payload gateway.StartRequest
	if err := decodeJSON(r, &payload); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	subject, err := startSubject(payload)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	userID := strings.TrimSpace(payload.UserID)
	if userID == "" {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("user id is required"))
		return
	}

	entry := state.Entry{
		ID:          uuid.NewString(),
		UserID:      userID,
		Kind:        state.EntryTimer,
		SubjectType: subject.Type,
		SubjectID:   subject.ID,
		Description: internalstrings.NormalizeWhitespace(payload.Description),
		StartedAt:   s.clock.Now().UTC(),
	}
	err = s.store.Update(func(st *state.State) error {
		st.Entries[entry.ID] = entry
		return nil
	})
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	s.logf("timer %s started for %s %s", entry.ID, subject.Type, subject.ID)
	writeJSON(w, http.StatusOK, startResponse{ID: entry.ID})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	var payload entryRequest
	if err := decodeJSON(r, &payload); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	id := strings.TrimSpace(payload.ID)
	if id == "" {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("entry id is required"))
		return
	}
	now := s.clock.Now().UTC()
	err := s.store.Update(func(st *state.State) error {
		entry, err := lookupEntry(st, id, payload.SubjectType)
		if err != nil {
			return err
		}
		if !entry.Active() {
			// Stopping a stopped timer is a no-op.
			return nil
		}
		stopEntry(&entry, now)
		st.Entries[id] = entry
		return nil
	})
	if err != nil {
		s.writeError(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, emptyResponse{})
}

func (s *Server) handleActive(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	var payload userRequest
	if err := decodeJSON(r, &payload); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	userID := strings.TrimSpace(payload.UserID)
	if userID == "" {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("user id is required"))
		return
	}
	st, err := s.store.Load()
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	response := gateway.ActiveTimers{
		TimeEntries:  []tracking.ActiveTimer{},
		TimeTracking: []tracking.ActiveTimer{},
	}
	for _, entry := range st.ActiveEntries(userID) {
		switch entry.SubjectType {
		case tracking.SubjectCase:
			response.TimeTracking = append(response.TimeTracking, entry.ActiveTimer())
		default:
			response.TimeEntries = append(response.TimeEntries, entry.ActiveTimer())
		}
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleStopAll(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	var payload userRequest
	if err := decodeJSON(r, &payload); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	userID := strings.TrimSpace(payload.UserID)
	if userID == "" {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("user id is required"))
		return
	}
	now := s.clock.Now().UTC()
	stopped := 0
	err := s.store.Update(func(st *state.State) error {
		for _, entry := range st.ActiveEntries(userID) {
			stopEntry(&entry, now)
			st.Entries[entry.ID] = entry
			stopped++
		}
		return nil
	})
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	if stopped > 0 {
		s.logf("stopped %d timers for %s via %s", stopped, userID, r.URL.Path)
	}
	writeJSON(w, http.StatusOK, emptyResponse{})
}

func (s *Server) handleManual(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	var payload tracking.ManualEntry
	if err := decodeJSON(r, &payload); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	userID := strings.TrimSpace(payload.UserID)
	if userID == "" {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("user id is required"))
		return
	}
	subjectID := strings.TrimSpace(payload.Subject.ID)
	if subjectID == "" {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("subject id is required"))
		return
	}
	date, err := s.validateManual(payload)
	if err != nil {
		s.writeError(w, r, http.StatusUnprocessableEntity, err)
		return
	}

	entry := state.Entry{
		ID:              uuid.NewString(),
		UserID:          userID,
		Kind:            state.EntryManual,
		SubjectType:     payload.Subject.Type,
		SubjectID:       subjectID,
		Description:     internalstrings.NormalizeWhitespace(payload.Description),
		DurationSeconds: int(payload.Duration() / time.Second),
		Date:            date,
	}
	err = s.store.Update(func(st *state.State) error {
		st.Entries[entry.ID] = entry
		return nil
	})
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, startResponse{ID: entry.ID})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	var payload entryRequest
	if err := decodeJSON(r, &payload); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	id := strings.TrimSpace(payload.ID)
	if id == "" {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("entry id is required"))
		return
	}
	err := s.store.Update(func(st *state.State) error {
		if _, err := lookupEntry(st, id, payload.SubjectType); err != nil {
			return err
		}
		delete(st.Entries, id)
		return nil
	})
	if err != nil {
		s.writeError(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, emptyResponse{})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// validateManual checks a manual entry and returns its normalized date.
func (s *Server) validateManual(entry tracking.ManualEntry) (string, error) {
	if !entry.Subject.Type.IsValid() {
		return "", tracking.FormatInvalidSubjectType(entry.Subject.Type)
	}
	if entry.Hours < 0 || entry.Minutes < 0 {
		return "", fmt.Errorf("hours and minutes must not be negative")
	}
	if entry.Minutes >= 60 {
		return "", fmt.Errorf("minutes must be less than 60")
	}
	if entry.Hours == 0 && entry.Minutes == 0 {
		return "", fmt.Errorf("time must be greater than zero")
	}
	today := s.clock.Now().Format(DateLayout)
	date := strings.TrimSpace(entry.Date)
	if date == "" {
		return today, nil
	}
	parsed, err := time.Parse(DateLayout, date)
	if err != nil {
		return "", fmt.Errorf("date must be formatted as YYYY-MM-DD")
	}
	date = parsed.Format(DateLayout)
	if date > today {
		return "", fmt.Errorf("date must not be in the future")
	}
	return date, nil
}

func startSubject(req gateway.StartRequest) (tracking.Subject, error) {
	caseID := strings.TrimSpace(req.CaseID)
	todoID := strings.TrimSpace(req.TodoID)
	switch {
	case caseID != "" && todoID != "":
		return tracking.Subject{}, fmt.Errorf("only one of case id and todo id may be set")
	case caseID != "":
		return tracking.Subject{Type: tracking.SubjectCase, ID: caseID}, nil
	case todoID != "":
		return tracking.Subject{Type: tracking.SubjectTodo, ID: todoID}, nil
	default:
		return tracking.Subject{}, fmt.Errorf("case id or todo id is required")
	}
}

// lookupEntry finds an entry. An empty subject type matches any entry.
func lookupEntry(st *state.State, id string, subjectType tracking.SubjectType) (state.Entry, error) {
	entry, ok := st.Entries[id]
	if !ok {
		return state.Entry{}, fmt.Errorf("%w: %s", errEntryNotFound, id)
	}
	if subjectType != "" && entry.SubjectType != subjectType {
		return state.Entry{}, fmt.Errorf("%w: %s is not a %s entry", errEntryNotFound, id, subjectType)
	}
	return entry, nil
}

func stopEntry(entry *state.Entry, now time.Time) {
	entry.StoppedAt = now
	if elapsed := now.Sub(entry.StartedAt); elapsed > 0 {
		entry.DurationSeconds = int(elapsed / time.Second)
	}
}

func statusFor(err error) int {
	if errors.Is(err, errEntryNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (s *Server) recoverHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writer := &responseTracker{ResponseWriter: w}
		defer func() {
			if recovered := recover(); recovered != nil {
				s.logf("panic handling request %s %s: %v\n%s", r.Method, r.URL.Path, recovered, debug.Stack())
				if writer.wroteHeader {
					return
				}
				writeJSON(writer, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			}
		}()
		next.ServeHTTP(writer, r)
	})
}

type startResponse struct {
	ID string `json:"id"`
}

type entryRequest struct {
	ID          string               `json:"id"`
	SubjectType tracking.SubjectType `json:"subject_type"`
}

type userRequest struct {
	UserID string `json:"user_id"`
}

type emptyResponse struct{}

func (s *Server) requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	s.writeError(w, r, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	return false
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	if decoder.More() {
		return fmt.Errorf("unexpected extra JSON data")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	s.logRequestError(r, status, err)
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) logRequestError(r *http.Request, status int, err error) {
	if s == nil || s.logger == nil {
		return
	}
	s.logger.Printf("request %s %s failed (%d): %v", r.Method, r.URL.Path, status, err)
}

func (s *Server) logf(format string, args ...any) {
	if s == nil || s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}

type responseTracker struct {
	http.ResponseWriter
	wroteHeader bool
}

func (w *responseTracker) WriteHeader(status int) {
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseTracker) Write(data []byte) (int, error) {
	if !w.wroteHeader {
		w.wroteHeader = true
	}
	return w.ResponseWriter.Write(data)
}
