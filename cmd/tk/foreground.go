package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/amonks/timekeep/gateway"
	"github.com/amonks/timekeep/internal/ui"
	"github.com/amonks/timekeep/lifecycle"
	"github.com/amonks/timekeep/timer"
)

// signalRunner is a lifecycle source that blocks until the process should exit.
type signalRunner interface {
	lifecycle.Source
	Run(ctx context.Context) os.Signal
}

// foregroundSession keeps a started timer alive until a lifecycle signal
// stops it.
type foregroundSession struct {
	manager      *timer.Manager
	beacon       *gateway.Beacon
	signals      signalRunner
	clock        clockwork.Clock
	graceDelay   time.Duration
	flushTimeout time.Duration
	out          io.Writer
	// live redraws the status line every second.
	live   bool
	logger *log.Logger
}

func (s foregroundSession) run(ctx context.Context) error {
	guard := lifecycle.NewFlushGuard(s.clock)
	coordinator, err := lifecycle.New(lifecycle.Options{
		Timers:       s.manager,
		Beacon:       s.beacon,
		Guard:        guard,
		Clock:        s.clock,
		UserID:       s.manager.UserID(),
		GraceDelay:   s.graceDelay,
		FlushTimeout: s.flushTimeout,
		Logger:       s.logger,
	})
	if err != nil {
		return err
	}
	deactivate := coordinator.Activate(s.signals)
	defer deactivate()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		s.watch(runCtx, cancel)
	}()

	sig := s.signals.Run(runCtx)
	cancel()
	<-watchDone

	settleCtx, settleCancel := context.WithTimeout(context.Background(), s.settleTimeout())
	defer settleCancel()
	if err := coordinator.Wait(settleCtx); err != nil {
		s.logger.Printf("timers may still be running: %v", err)
	}
	if err := s.beacon.Drain(settleCtx); err != nil {
		s.logger.Printf("stop-all request may not have been sent: %v", err)
	}

	if s.live {
		fmt.Fprintln(s.out)
	}
	if sig != nil {
		fmt.Fprintf(s.out, "stopped on %s\n", sig)
	} else {
		fmt.Fprintln(s.out, "timer stopped")
	}
	return nil
}

// watch redraws the status line and ends the session once the timer goes idle.
func (s foregroundSession) watch(ctx context.Context, done func()) {
	ticker := s.clock.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			st := s.manager.State()
			if s.live {
				fmt.Fprintf(s.out, "\r%s", ui.StatusLine(st))
			}
			if !st.Running {
				done()
				return
			}
		}
	}
}

func (s foregroundSession) settleTimeout() time.Duration {
	if s.flushTimeout > 0 {
		return s.flushTimeout
	}
	return lifecycle.DefaultFlushTimeout
}
