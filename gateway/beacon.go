package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"time"
)

const (
	defaultBeaconQueueSize = 16
	defaultBeaconTimeout   = 2 * time.Second
)

// BeaconOptions configures a Beacon.
type BeaconOptions struct {
	// QueueSize bounds undelivered beacons. Defaults to 16.
	QueueSize int
	// Timeout bounds a single delivery. Defaults to 2s.
	Timeout time.Duration
	// HTTPClient defaults to a client without a timeout of its own.
	HTTPClient *http.Client
	Logger     *log.Logger
}

// Beacon delivers "stop all timers for user" requests without making the
// caller wait. Requests are queued and sent by a background worker under
// their own context, so they keep going after the caller returns. Nothing is
// retried and no response is reported back.
type Beacon struct {
	url     string
	client  *http.Client
	timeout time.Duration
	logger  *log.Logger

	mu     sync.Mutex
	closed bool
	queue  chan beaconRequest
	done   chan struct{}
}

type beaconRequest struct {
	UserID string `json:"user_id"`
}

// NewBeacon creates a beacon for the backend at addr and starts its worker.
func NewBeacon(addr string, opts BeaconOptions) *Beacon {
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = defaultBeaconQueueSize
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultBeaconTimeout
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "beacon: ", log.LstdFlags)
	}
	b := &Beacon{
		url:     NormalizeBaseURL(addr) + StopAllPath,
		client:  client,
		timeout: timeout,
		logger:  logger,
		queue:   make(chan beaconRequest, queueSize),
		done:    make(chan struct{}),
	}
	go b.run()
	return b
}

// SendStopAll queues a stop-all request for the user. It never blocks and
// reports whether the request was queued.
func (b *Beacon) SendStopAll(userID string) bool {
	if userID == "" {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	select {
	case b.queue <- beaconRequest{UserID: userID}:
		return true
	default:
		b.logf("queue full, dropping stop-all for %s", userID)
		return false
	}
}

// Drain stops accepting beacons and waits until queued ones are delivered
// or ctx is done.
func (b *Beacon) Drain(ctx context.Context) error {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.queue)
	}
	b.mu.Unlock()

	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Beacon) run() {
	defer close(b.done)
	for req := range b.queue {
		if err := b.deliver(req); err != nil {
			b.logf("stop-all for %s not delivered: %v", req.UserID, err)
		}
	}
}

func (b *Beacon) deliver(payload beaconRequest) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %s", resp.Status)
	}
	return nil
}

func (b *Beacon) logf(format string, args ...any) {
	if b == nil || b.logger == nil {
		return
	}
	b.logger.Printf(format, args...)
}
