package lifecycle

import (
	"context"
	"fmt"
	"log"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	// DefaultGraceDelay is how long the guard stays set after a hidden-signal
	// flush settles, so a signal right behind it does not flush again.
	DefaultGraceDelay = time.Second
	// DefaultFlushTimeout bounds one sequential flush.
	DefaultFlushTimeout = 10 * time.Second
)

// ActiveTimersWarning is returned from before-terminate while timers are active.
const ActiveTimersWarning = "You have active timers. They are being stopped so no time is lost."

// Timers is the part of the timer manager the coordinator drives.
type Timers interface {
	StopAll(ctx context.Context) error
	Active() bool
}

// Beacon sends a fire-and-forget stop-all request.
type Beacon interface {
	SendStopAll(userID string) bool
}

// Options configures a Coordinator.
type Options struct {
	Timers Timers
	Beacon Beacon
	// Guard is shared with anything else that must respect in-flight flushes.
	Guard  *FlushGuard
	Clock  clockwork.Clock
	UserID string
	// GraceDelay defaults to one second.
	GraceDelay time.Duration
	// FlushTimeout defaults to ten seconds.
	FlushTimeout time.Duration
	Logger       *log.Logger
}

// Coordinator flushes active timers when lifecycle signals arrive.
//
// Handlers never return errors or panic to the signal source: a failed flush
// is logged, and the guard is always released on a deferred path.
type Coordinator struct {
	timers       Timers
	beacon       Beacon
	guard        *FlushGuard
	clock        clockwork.Clock
	userID       string
	graceDelay   time.Duration
	flushTimeout time.Duration
	logger       *log.Logger

	flushes sync.WaitGroup

	mu            sync.Mutex
	lastBeacon    time.Time
	beaconSent    bool
	subscriptions map[int]func()
	nextSub       int
}

// New creates a coordinator. It does nothing until activated.
func New(opts Options) (*Coordinator, error) {
	if opts.Timers == nil {
		return nil, fmt.Errorf("timers are required")
	}
	if opts.Beacon == nil {
		return nil, fmt.Errorf("beacon is required")
	}
	if opts.Guard == nil {
		return nil, fmt.Errorf("flush guard is required")
	}
	if strings.TrimSpace(opts.UserID) == "" {
		return nil, fmt.Errorf("user id is required")
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	graceDelay := opts.GraceDelay
	if graceDelay <= 0 {
		graceDelay = DefaultGraceDelay
	}
	flushTimeout := opts.FlushTimeout
	if flushTimeout <= 0 {
		flushTimeout = DefaultFlushTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "lifecycle: ", log.LstdFlags)
	}
	return &Coordinator{
		timers:        opts.Timers,
		beacon:        opts.Beacon,
		guard:         opts.Guard,
		clock:         clock,
		userID:        strings.TrimSpace(opts.UserID),
		graceDelay:    graceDelay,
		flushTimeout:  flushTimeout,
		logger:        logger,
		subscriptions: make(map[int]func()),
	}, nil
}

// Activate subscribes to src. The returned function unsubscribes and
// releases a guard that is only waiting out its grace delay.
func (c *Coordinator) Activate(src Source) (deactivate func()) {
	unsubscribers := []func(){
		src.OnHidden(c.handleHidden),
		src.OnPageHide(c.handlePageHide),
		src.OnBeforeTerminate(c.handleBeforeTerminate),
		src.OnHardTerminate(c.handleHardTerminate),
	}

	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	var once sync.Once
	teardown := func() {
		once.Do(func() {
			for _, unsubscribe := range unsubscribers {
				unsubscribe()
			}
			c.mu.Lock()
			delete(c.subscriptions, id)
			c.mu.Unlock()
			c.guard.ReleasePending()
		})
	}
	c.subscriptions[id] = teardown
	c.mu.Unlock()
	return teardown
}

// Logout stops every timer, then deactivates the coordinator and runs
// proceed. A failed flush is logged and never blocks proceed.
func (c *Coordinator) Logout(ctx context.Context, proceed func(context.Context) error) error {
	if err := c.stopAll(ctx, "logout"); err != nil {
		c.logf("logout: stop timers failed, continuing: %v", err)
	}
	c.deactivateAll()
	if proceed == nil {
		return nil
	}
	return proceed(ctx)
}

// Wait blocks until every in-flight sequential flush has settled or ctx is done.
func (c *Coordinator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.flushes.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) handleHidden() {
	if !c.guard.TryAcquire() {
		return
	}
	c.flushAsync("hidden", func() { c.guard.ReleaseAfter(c.graceDelay) })
}

func (c *Coordinator) handlePageHide() {
	if !c.guard.TryAcquire() {
		return
	}
	c.flushAsync("page hide", c.guard.Release)
}

func (c *Coordinator) handleBeforeTerminate() (warning string) {
	defer func() {
		if recovered := recover(); recovered != nil {
			c.logf("panic in before-terminate handler: %v\n%s", recovered, debug.Stack())
			warning = ""
		}
	}()
	if !c.timers.Active() {
		return ""
	}
	c.sendBeacon("before terminate")
	return ActiveTimersWarning
}

func (c *Coordinator) handleHardTerminate() {
	c.mu.Lock()
	recent := c.beaconSent && c.clock.Since(c.lastBeacon) < c.graceDelay
	c.mu.Unlock()
	if recent {
		return
	}
	c.sendBeacon("hard terminate")
}

// flushAsync runs StopAll without blocking the signal source. release runs
// once the flush settles, whatever the outcome.
func (c *Coordinator) flushAsync(reason string, release func()) {
	c.flushes.Add(1)
	go func() {
		defer c.flushes.Done()
		defer release()
		ctx, cancel := context.WithTimeout(context.Background(), c.flushTimeout)
		defer cancel()
		if err := c.stopAll(ctx, reason); err != nil {
			c.logf("%s: stop timers failed: %v", reason, err)
		}
	}()
}

func (c *Coordinator) stopAll(ctx context.Context, reason string) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			c.logf("panic stopping timers on %s: %v\n%s", reason, recovered, debug.Stack())
			err = fmt.Errorf("stop timers panicked: %v", recovered)
		}
	}()
	return c.timers.StopAll(ctx)
}

func (c *Coordinator) sendBeacon(reason string) {
	if !c.beacon.SendStopAll(c.userID) {
		c.logf("%s: stop-all beacon not queued", reason)
		return
	}
	c.mu.Lock()
	c.beaconSent = true
	c.lastBeacon = c.clock.Now()
	c.mu.Unlock()
}

func (c *Coordinator) deactivateAll() {
	c.mu.Lock()
	teardowns := make([]func(), 0, len(c.subscriptions))
	for _, teardown := range c.subscriptions {
		teardowns = append(teardowns, teardown)
	}
	c.mu.Unlock()
	for _, teardown := range teardowns {
		teardown()
	}
}

func (c *Coordinator) logf(format string, args ...any) {
	if c == nil || c.logger == nil {
		return
	}
	c.logger.Printf(format, args...)
}
