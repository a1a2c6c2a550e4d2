package main

import (
	"bytes"
	"context"
	"io"
	"log"
	"net/http/httptest"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/amonks/timekeep/gateway"
	"github.com/amonks/timekeep/lifecycle"
	"github.com/amonks/timekeep/server"
	"github.com/amonks/timekeep/timer"
	"github.com/amonks/timekeep/tracking"
)

// scriptedSignals delivers one signal as soon as the session starts waiting.
type scriptedSignals struct {
	*lifecycle.SignalSource
	sig os.Signal
}

func (s scriptedSignals) Run(ctx context.Context) os.Signal {
	if s.Dispatch(s.sig) {
		return s.sig
	}
	<-ctx.Done()
	return nil
}

type foregroundFixture struct {
	client  *gateway.Client
	manager *timer.Manager
	beacon  *gateway.Beacon
	clock   *clockwork.FakeClock
	out     *bytes.Buffer
}

func newForegroundFixture(t *testing.T) *foregroundFixture {
	t.Helper()
	srv, err := server.NewServer(server.ServerOptions{
		DataDir: t.TempDir(),
		Logger:  log.New(io.Discard, "", 0),
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	backend := httptest.NewServer(srv.Handler())
	t.Cleanup(backend.Close)

	client := gateway.NewClient(backend.URL)
	manager, err := timer.New(client, timer.Options{UserID: "u1", Logger: log.New(io.Discard, "", 0)})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	t.Cleanup(manager.Close)

	if _, err := manager.Start(context.Background(), tracking.Subject{Type: tracking.SubjectTodo, ID: "T1"}, ""); err != nil {
		t.Fatalf("start timer: %v", err)
	}
	return &foregroundFixture{
		client:  client,
		manager: manager,
		beacon:  gateway.NewBeacon(backend.URL, gateway.BeaconOptions{Logger: log.New(io.Discard, "", 0)}),
		clock:   clockwork.NewFakeClock(),
		out:     &bytes.Buffer{},
	}
}

func (f *foregroundFixture) session(signals signalRunner) foregroundSession {
	return foregroundSession{
		manager:      f.manager,
		beacon:       f.beacon,
		signals:      signals,
		clock:        f.clock,
		flushTimeout: 5 * time.Second,
		out:          f.out,
		logger:       log.New(io.Discard, "", 0),
	}
}

func (f *foregroundFixture) activeCount(t *testing.T) int {
	t.Helper()
	active, err := f.client.ActiveTimers(context.Background(), "u1")
	if err != nil {
		t.Fatalf("list active timers: %v", err)
	}
	return active.Roster().Len()
}

func TestForegroundStopsTimersOnTerminate(t *testing.T) {
	f := newForegroundFixture(t)
	source := lifecycle.NewSignalSource()

	if err := f.session(scriptedSignals{SignalSource: source, sig: syscall.SIGTERM}).run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if got := f.activeCount(t); got != 0 {
		t.Fatalf("expected no active timers, got %d", got)
	}
	if f.manager.State().Running {
		t.Fatalf("expected local timer to be idle")
	}
	if !strings.Contains(f.out.String(), "stopped on terminated") {
		t.Fatalf("unexpected output %q", f.out.String())
	}
	if source.Subscribers() != 0 {
		t.Fatalf("expected session to unsubscribe, got %d subscribers", source.Subscribers())
	}
}

func TestForegroundInterruptWarnsAndSendsBeacon(t *testing.T) {
	f := newForegroundFixture(t)
	source := lifecycle.NewSignalSource()
	var warnings []string
	source.OnWarning = func(warning string) { warnings = append(warnings, warning) }

	if err := f.session(scriptedSignals{SignalSource: source, sig: os.Interrupt}).run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(warnings) != 1 || warnings[0] != lifecycle.ActiveTimersWarning {
		t.Fatalf("warnings = %q", warnings)
	}
	if got := f.activeCount(t); got != 0 {
		t.Fatalf("expected beacon to stop the timer, %d still active", got)
	}
}

func TestForegroundEndsWhenTimerGoesIdle(t *testing.T) {
	f := newForegroundFixture(t)
	session := f.session(scriptedSignals{SignalSource: lifecycle.NewSignalSource(), sig: syscall.SIGUSR1})

	done := make(chan error, 1)
	go func() { done <- session.run(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("waiting for status ticker: %v", err)
	}
	if err := f.manager.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	f.clock.Advance(time.Second)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("session did not end after the timer stopped")
	}
	if !strings.Contains(f.out.String(), "timer stopped") {
		t.Fatalf("unexpected output %q", f.out.String())
	}
}
