// Package timer owns the single locally running timer and the cached roster
// of every active timer for the signed-in user.
//
// The manager has two states, idle and running. Start moves it to running,
// Stop and StopAll move it back to idle. Stop and StopAll always end idle,
// even when the backend call fails: the caller learns about the failure,
// but the timer is never left looking like it is still running.
package timer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/amonks/timekeep/gateway"
	"github.com/amonks/timekeep/tracking"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

// DefaultTickInterval is how often ElapsedSeconds advances.
const DefaultTickInterval = time.Second

// Options configures a Manager.
type Options struct {
	// UserID is the signed-in user whose timers are managed.
	UserID string
	// Clock drives the elapsed-time ticker. Defaults to the real clock.
	Clock clockwork.Clock
	// TickInterval defaults to one second.
	TickInterval time.Duration
	Logger       *log.Logger
	// Notify receives failures of user-invoked operations so they can be
	// shown to the user. Optional.
	Notify func(error)
}

// Manager owns the local timer state and the active-timer roster.
type Manager struct {
	gateway      gateway.Gateway
	userID       string
	clock        clockwork.Clock
	tickInterval time.Duration
	logger       *log.Logger
	notify       func(error)

	reloads singleflight.Group

	mu       sync.Mutex
	state    tracking.State
	starting bool
	// generation changes on every transition so a late stop or tick from an
	// earlier run cannot touch a newer one.
	generation uint64
	stopTick   chan struct{}
	roster     tracking.Roster
	// rosterVersion changes on every mutation so a reload that started
	// before it cannot overwrite the roster afterwards.
	rosterVersion uint64
}

// New creates an idle manager.
func New(gw gateway.Gateway, opts Options) (*Manager, error) {
	if gw == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	if strings.TrimSpace(opts.UserID) == "" {
		return nil, fmt.Errorf("user id is required")
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	interval := opts.TickInterval
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "timer: ", log.LstdFlags)
	}
	return &Manager{
		gateway:      gw,
		userID:       strings.TrimSpace(opts.UserID),
		clock:        clock,
		tickInterval: interval,
		logger:       logger,
		notify:       opts.Notify,
		state:        tracking.Idle(),
	}, nil
}

// UserID returns the user whose timers are managed.
func (m *Manager) UserID() string {
	return m.userID
}

// State returns a snapshot of the local timer.
func (m *Manager) State() tracking.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Roster returns the cached active timers.
func (m *Manager) Roster() tracking.Roster {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roster
}

// Active reports whether a local timer is running or any timer is cached as active.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Running || m.roster.Len() > 0
}

// Start starts a timer for subject and returns the backend entry ID.
//
// Start fails with tracking.ErrAlreadyRunning while a timer is running or
// being started; it never stops the running timer on the caller's behalf.
func (m *Manager) Start(ctx context.Context, subject tracking.Subject, description string) (string, error) {
	if !subject.Type.IsValid() {
		return "", tracking.FormatInvalidSubjectType(subject.Type)
	}
	subject.ID = strings.TrimSpace(subject.ID)
	if subject.ID == "" {
		return "", fmt.Errorf("subject id is required")
	}

	m.mu.Lock()
	if m.state.Running || m.starting {
		m.mu.Unlock()
		return "", tracking.ErrAlreadyRunning
	}
	m.starting = true
	m.mu.Unlock()

	entryID, err := m.gateway.StartTimer(ctx, gateway.NewStartRequest(subject, m.userID, description))

	m.mu.Lock()
	m.starting = false
	if err != nil {
		m.mu.Unlock()
		err = fmt.Errorf("start timer for %s %s: %w", subject.Type, subject.ID, err)
		m.report(err)
		return "", err
	}
	m.generation++
	m.state = tracking.State{
		Running:     true,
		SubjectID:   subject.ID,
		SubjectType: subject.Type,
		EntryID:     entryID,
	}
	m.startTickingLocked(m.generation)
	m.rosterVersion++
	m.mu.Unlock()

	m.refresh(ctx, "start")
	return entryID, nil
}

// Stop stops the running timer. It is a no-op when idle.
//
// The local timer is reset to idle whatever the backend answers; a failed
// stop is reported and returned but not retried.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.state.Running {
		m.mu.Unlock()
		return nil
	}
	entryID := m.state.EntryID
	subjectType := m.state.SubjectType
	generation := m.generation
	m.mu.Unlock()

	stopErr := m.gateway.StopTimer(ctx, entryID, subjectType)

	m.mu.Lock()
	if m.generation == generation {
		m.resetLocked()
	}
	m.rosterVersion++
	m.mu.Unlock()

	if stopErr != nil {
		stopErr = fmt.Errorf("stop timer %s: %w", entryID, stopErr)
		m.report(stopErr)
	}
	m.refresh(ctx, "stop")
	return stopErr
}

// StopAll asks the backend to stop every active timer for the user, then
// resets the local timer and clears the roster regardless of the outcome.
// Calling it with nothing running is harmless.
func (m *Manager) StopAll(ctx context.Context) error {
	err := m.gateway.StopAllActiveTimers(ctx, m.userID)

	m.mu.Lock()
	m.resetLocked()
	m.roster = tracking.Roster{}
	m.rosterVersion++
	m.mu.Unlock()

	if err != nil {
		return fmt.Errorf("stop all timers for %s: %w", m.userID, err)
	}
	return nil
}

// StopEntry stops an active timer by ID, including timers started by other
// processes. The local timer is reset when it is the one being stopped.
func (m *Manager) StopEntry(ctx context.Context, entryID string, subjectType tracking.SubjectType) error {
	if !subjectType.IsValid() {
		return tracking.FormatInvalidSubjectType(subjectType)
	}
	stopErr := m.gateway.StopTimer(ctx, entryID, subjectType)

	m.mu.Lock()
	if m.state.Running && m.state.EntryID == entryID {
		m.resetLocked()
	}
	m.rosterVersion++
	m.mu.Unlock()

	if stopErr != nil {
		stopErr = fmt.Errorf("stop timer %s: %w", entryID, stopErr)
		m.report(stopErr)
	}
	m.refresh(ctx, "stop")
	return stopErr
}

// Tick advances the running timer by one second. It does nothing when idle.
func (m *Manager) Tick() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Running {
		m.state.ElapsedSeconds++
	}
}

// ReloadActive replaces the cached roster with the backend's active timers.
// Concurrent reloads share one backend call. A reload that overlaps a start,
// stop or delete leaves the cache alone and returns it as is.
func (m *Manager) ReloadActive(ctx context.Context) (tracking.Roster, error) {
	result, err, _ := m.reloads.Do("active", func() (any, error) {
		m.mu.Lock()
		version := m.rosterVersion
		m.mu.Unlock()

		active, err := m.gateway.ActiveTimers(ctx, m.userID)
		if err != nil {
			return nil, err
		}
		roster := active.Roster()
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.rosterVersion != version {
			return m.roster, nil
		}
		m.roster = roster
		return roster, nil
	})
	if err != nil {
		return tracking.Roster{}, fmt.Errorf("reload active timers: %w", err)
	}
	return result.(tracking.Roster), nil
}

// AddManualTime records time against a subject without touching the timer.
// Validation failures from the backend are returned unchanged.
func (m *Manager) AddManualTime(ctx context.Context, entry tracking.ManualEntry) error {
	if !entry.Subject.Type.IsValid() {
		return tracking.FormatInvalidSubjectType(entry.Subject.Type)
	}
	if entry.UserID == "" {
		entry.UserID = m.userID
	}
	if err := m.gateway.AddManualTime(ctx, entry); err != nil {
		m.report(err)
		return err
	}
	return nil
}

// DeleteEntry removes a time entry and refreshes the roster.
func (m *Manager) DeleteEntry(ctx context.Context, id string, subjectType tracking.SubjectType) error {
	if !subjectType.IsValid() {
		return tracking.FormatInvalidSubjectType(subjectType)
	}
	if err := m.gateway.DeleteTimeEntry(ctx, id, subjectType); err != nil {
		m.report(err)
		return err
	}
	m.mu.Lock()
	m.rosterVersion++
	m.mu.Unlock()
	m.refresh(ctx, "delete")
	return nil
}

// refresh reloads the roster after a mutation without joining a reload that
// began before it.
func (m *Manager) refresh(ctx context.Context, op string) {
	m.reloads.Forget("active")
	if _, err := m.ReloadActive(ctx); err != nil {
		m.logf("refresh after %s: %v", op, err)
	}
}

// Close stops the ticker. The timer state is left as is.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopTick != nil {
		close(m.stopTick)
		m.stopTick = nil
	}
}

func (m *Manager) startTickingLocked(generation uint64) {
	if m.stopTick != nil {
		close(m.stopTick)
	}
	stop := make(chan struct{})
	m.stopTick = stop
	ticker := m.clock.NewTicker(m.tickInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.Chan():
				m.tickRun(generation)
			}
		}
	}()
}

func (m *Manager) tickRun(generation uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != generation || !m.state.Running {
		return
	}
	m.state.ElapsedSeconds++
}

func (m *Manager) resetLocked() {
	m.state = tracking.Idle()
	m.generation++
	if m.stopTick != nil {
		close(m.stopTick)
		m.stopTick = nil
	}
}

func (m *Manager) report(err error) {
	if err == nil || m.notify == nil {
		return
	}
	var validation *tracking.ValidationError
	if errors.As(err, &validation) {
		m.notify(validation)
		return
	}
	m.notify(err)
}

func (m *Manager) logf(format string, args ...any) {
	if m == nil || m.logger == nil {
		return
	}
	m.logger.Printf(format, args...)
}
