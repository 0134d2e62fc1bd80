package lobby

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Broadcast is one sequenced message produced by the coordinator
type Broadcast struct {
	Changes    []Change         `json:"changes"`
	Patch      []PatchOperation `json:"patch"`
	SequenceID uint64           `json:"sequenceId"`
	Timestamp  time.Time        `json:"timestamp"`

	// Priority marks a broadcast that bypassed the batching window
	Priority bool `json:"priority,omitempty"`
}

// SendFunc delivers a broadcast to subscribers. It is called from a single
// dispatch goroutine, in sequence order.
type SendFunc func(*Broadcast) error

// CoordinatorConfig tunes the batching and retry behavior
type CoordinatorConfig struct {
	// BatchWindow is how long changes accumulate before a flush
	BatchWindow time.Duration
	// MaxBatchSize flushes immediately once this many changes are pending
	MaxBatchSize int
	// MaxRetries bounds redelivery attempts for a failed send
	MaxRetries int
	// RetryBase is the first backoff interval; it doubles per attempt
	RetryBase time.Duration
	// HistorySize caps the retained diagnostics history
	HistorySize int
}

func (c CoordinatorConfig) withDefaults() CoordinatorConfig {
	if c.BatchWindow <= 0 {
		c.BatchWindow = time.Millisecond * 100
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = 50
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = time.Millisecond * 100
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 100
	}

	return c
}

// Coordinator turns a stream of listing-snapshot updates into throttled,
// sequenced broadcasts. Sequence numbers are never reused: a send that
// exhausts its retries leaves a gap, and receivers resync on gaps.
type Coordinator struct {
	cfg  CoordinatorConfig
	send SendFunc

	mu           sync.Mutex
	lastSnapshot map[string]*Listing
	pending      []Change
	timer        *time.Timer
	sequence     uint64
	history      []*Broadcast

	sent     atomic.Uint64
	failures atomic.Uint64

	dispatch chan *Broadcast
	done     chan struct{}
}

// NewCoordinator returns a running coordinator
func NewCoordinator(cfg CoordinatorConfig, send SendFunc) *Coordinator {
	c := &Coordinator{
		cfg:          cfg.withDefaults(),
		send:         send,
		lastSnapshot: make(map[string]*Listing),
		dispatch:     make(chan *Broadcast, 64),
		done:         make(chan struct{}),
	}

	go c.dispatchLoop()
	return c
}

// Update diffs the current snapshot against the last broadcast state and
// accumulates any changes. No changes is a no-op.
func (c *Coordinator) Update(current map[string]*Listing) {
	c.mu.Lock()
	defer c.mu.Unlock()

	changes := DetectChanges(c.lastSnapshot, current)
	if len(changes) == 0 {
		return
	}

	c.lastSnapshot = CloneMap(current)
	c.pending = append(c.pending, changes...)

	if len(c.pending) >= c.cfg.MaxBatchSize {
		c.flushLocked()
		return
	}

	c.armTimerLocked()
}

// UpdatePriority diffs like Update but ships the resulting changes
// immediately instead of batching them. Any already-pending batch is flushed
// first so broadcasts stay in mutation order.
func (c *Coordinator) UpdatePriority(current map[string]*Listing) {
	c.mu.Lock()
	defer c.mu.Unlock()

	changes := DetectChanges(c.lastSnapshot, current)
	if len(changes) == 0 {
		return
	}

	c.lastSnapshot = CloneMap(current)
	c.flushLocked()

	patch, err := GeneratePatch(changes)
	if err != nil {
		logrus.WithError(err).Error("could not generate priority patch")
		return
	}

	b := c.nextBroadcastLocked(changes, patch)
	b.Priority = true
	c.enqueue(b)
}

// SendImmediate bypasses the batching window for a single high-priority
// event, drawing from the same sequence counter
func (c *Coordinator) SendImmediate(change Change) {
	patch, err := GeneratePatch([]Change{change})
	if err != nil {
		logrus.WithError(err).WithField("tableId", change.TableID).Error("could not generate priority patch")
		return
	}

	c.mu.Lock()
	b := c.nextBroadcastLocked([]Change{change}, patch)
	b.Priority = true
	c.mu.Unlock()

	c.enqueue(b)
}

// Flush forces any pending changes out without waiting for the window
func (c *Coordinator) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushLocked()
}

// must hold c.mu
func (c *Coordinator) flushLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}

	if len(c.pending) == 0 {
		return
	}

	changes := c.pending
	c.pending = nil

	patch, err := GeneratePatch(changes)
	if err != nil {
		// a change that cannot be addressed means corrupt internal state;
		// drop the batch rather than ship it to client deserializers
		logrus.WithError(err).Error("could not generate patch for batch")
		return
	}

	c.enqueue(c.nextBroadcastLocked(changes, patch))
}

// must hold c.mu
func (c *Coordinator) nextBroadcastLocked(changes []Change, patch []PatchOperation) *Broadcast {
	c.sequence++
	b := &Broadcast{
		Changes:    changes,
		Patch:      patch,
		SequenceID: c.sequence,
		Timestamp:  time.Now(),
	}

	c.history = append(c.history, b)
	if len(c.history) > c.cfg.HistorySize {
		c.history = c.history[len(c.history)-c.cfg.HistorySize:]
	}

	return b
}

// must hold c.mu
func (c *Coordinator) armTimerLocked() {
	if c.timer != nil {
		c.timer.Reset(c.cfg.BatchWindow)
		return
	}

	c.timer = time.AfterFunc(c.cfg.BatchWindow, c.Flush)
}

func (c *Coordinator) enqueue(b *Broadcast) {
	select {
	case c.dispatch <- b:
	default:
		// the dispatch queue is bounded; shedding here is preferable to
		// unbounded memory growth, and receivers resync on the gap
		logrus.WithField("sequenceId", b.SequenceID).Warn("dispatch queue full, dropping broadcast")
		c.failures.Add(1)
	}
}

func (c *Coordinator) dispatchLoop() {
	for {
		select {
		case b := <-c.dispatch:
			c.deliver(b)
		case <-c.done:
			return
		}
	}
}

func (c *Coordinator) deliver(b *Broadcast) {
	backoff := c.cfg.RetryBase

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff)
			backoff *= 2
		}

		if err := c.send(b); err != nil {
			logrus.WithError(err).
				WithField("sequenceId", b.SequenceID).
				WithField("attempt", attempt).
				Warn("broadcast send failed")
			continue
		}

		c.sent.Add(1)
		return
	}

	// the sequence number is not rolled back; receivers detect the gap
	// and request a full resync
	logrus.WithField("sequenceId", b.SequenceID).Error("broadcast abandoned after retries")
	c.failures.Add(1)
}

// History returns a copy of the retained broadcast history
func (c *Coordinator) History() []*Broadcast {
	c.mu.Lock()
	defer c.mu.Unlock()

	history := make([]*Broadcast, len(c.history))
	copy(history, c.history)

	return history
}

// Stats reports counters for the health snapshot
func (c *Coordinator) Stats() (sequence, sent, failures uint64) {
	c.mu.Lock()
	sequence = c.sequence
	c.mu.Unlock()

	return sequence, c.sent.Load(), c.failures.Load()
}

// Stop terminates the dispatch loop. Pending changes are not flushed.
func (c *Coordinator) Stop() {
	close(c.done)
}
