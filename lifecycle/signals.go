package lifecycle

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// SignalSource is a Source fed by operating-system signals, for command-line
// hosts:
//
//	SIGHUP   hidden (the terminal went away; the process keeps running)
//	SIGTERM  page-hide, then hard-terminate
//	SIGINT   before-terminate, then hard-terminate
type SignalSource struct {
	*Emitter
	// OnWarning receives the warnings returned by before-terminate handlers.
	OnWarning func(string)

	signals chan os.Signal
}

// NewSignalSource returns a source with no subscribers.
func NewSignalSource() *SignalSource {
	return &SignalSource{
		Emitter: NewEmitter(),
		signals: make(chan os.Signal, 4),
	}
}

// Run relays signals until one terminates the process or ctx is done. It
// returns the terminating signal, or nil when ctx ended first.
func (s *SignalSource) Run(ctx context.Context) os.Signal {
	signal.Notify(s.signals, syscall.SIGHUP, syscall.SIGTERM, os.Interrupt)
	defer signal.Stop(s.signals)

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-s.signals:
			if s.Dispatch(sig) {
				return sig
			}
		}
	}
}

// Dispatch emits the lifecycle signals for sig and reports whether sig
// terminates the process. Unknown signals are ignored.
func (s *SignalSource) Dispatch(sig os.Signal) bool {
	switch sig {
	case syscall.SIGHUP:
		s.Hide()
		return false
	case syscall.SIGTERM:
		s.PageHide()
		s.HardTerminate()
		return true
	case os.Interrupt:
		for _, warning := range s.BeforeTerminate() {
			if s.OnWarning != nil {
				s.OnWarning(warning)
			}
		}
		s.HardTerminate()
		return true
	}
	return false
}
