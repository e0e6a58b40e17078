// ABOUTME: Retry dispatcher that sends queued messages to the backend one at a time
// ABOUTME: Applies fixed backoff, in-place retry, and conversation reset on exhaustion

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-relay/internal/conversation"
	"github.com/2389/coven-relay/internal/format"
)

// Defaults used when the corresponding Options field is zero.
const (
	DefaultAttempts     = 2
	DefaultBackoff      = time.Second
	DefaultResetKeyword = "remake"
)

// replyTimeout bounds each status or reply send.
const replyTimeout = 30 * time.Second

// ErrShuttingDown is returned by Enqueue after Close.
var ErrShuttingDown = errors.New("dispatcher shutting down")

// Notes are the user-visible status lines.
type Notes struct {
	Thinking  string
	Queued    string // formatted with the number of messages waiting ahead
	Working   string
	Failed    string
	Reset     string
	NoBackend string
}

// DefaultNotes returns the built-in status lines.
func DefaultNotes() Notes {
	return Notes{
		Thinking:  "thinking...",
		Queued:    "queued, %d waiting ahead of you",
		Working:   "your turn, thinking...",
		Failed:    "sorry, that failed; the conversation has been reset, please ask again",
		Reset:     "conversation reset",
		NoBackend: "no backend available right now, try again later",
	}
}

// Options configures a Dispatcher.
type Options struct {
	// Attempts is the number of backend calls an item gets, including the first.
	Attempts int
	// Backoff separates consecutive dispatches within a conversation.
	Backoff time.Duration
	// ResetKeyword, sent as the whole canonical text, resets the conversation.
	ResetKeyword string
	Notes        Notes
}

func (o *Options) applyDefaults() {
	if o.Attempts <= 0 {
		o.Attempts = DefaultAttempts
	}
	if o.Backoff <= 0 {
		o.Backoff = DefaultBackoff
	}
	if o.ResetKeyword == "" {
		o.ResetKeyword = DefaultResetKeyword
	}
	defaults := DefaultNotes()
	if o.Notes.Thinking == "" {
		o.Notes.Thinking = defaults.Thinking
	}
	if o.Notes.Queued == "" {
		o.Notes.Queued = defaults.Queued
	}
	if o.Notes.Working == "" {
		o.Notes.Working = defaults.Working
	}
	if o.Notes.Failed == "" {
		o.Notes.Failed = defaults.Failed
	}
	if o.Notes.Reset == "" {
		o.Notes.Reset = defaults.Reset
	}
	if o.Notes.NoBackend == "" {
		o.Notes.NoBackend = defaults.NoBackend
	}
}

// Request is one inbound message for a conversation.
type Request struct {
	Identity string
	// Text is the raw inbound text; it is canonicalized on enqueue.
	Text  string
	Reply conversation.Replier
}

// Dispatcher owns the queue-draining workers.
type Dispatcher struct {
	registry *conversation.Registry
	format   *format.Formatter
	opts     Options
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New creates a Dispatcher.
func New(registry *conversation.Registry, formatter *format.Formatter, opts Options, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	opts.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		registry: registry,
		format:   formatter,
		opts:     opts,
		logger:   logger.With("component", "dispatch"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Enqueue accepts one inbound message. The reset keyword resets the
// conversation immediately; anything else is queued and, if the queue was
// empty, dispatched right away.
func (d *Dispatcher) Enqueue(ctx context.Context, req Request) error {
	if d.isClosed() {
		return ErrShuttingDown
	}

	text := d.format.Canonical(req.Text)
	if text == "" {
		d.logger.Debug("ignoring empty message", "identity", req.Identity)
		return nil
	}

	if text == d.opts.ResetKeyword {
		return d.reset(ctx, req, text)
	}

	item := conversation.NewItem(uuid.New().String(), text, req.Reply, d.opts.Attempts)

	// A reset can close the state between Get and Push; the second pass
	// lands on the replacement.
	for range 2 {
		st, err := d.registry.Get(req.Identity)
		if err != nil {
			d.logger.Error("no conversation available", "identity", req.Identity, "error", err)
			d.send(ctx, req.Reply, req.Identity, d.format.Status(text, d.opts.Notes.NoBackend, true))
			return err
		}

		length, ok := st.Push(item)
		if !ok {
			continue
		}

		d.logger.Info("message enqueued",
			"identity", req.Identity,
			"item", item.ID,
			"queue_len", length,
		)

		if length == 1 {
			d.send(ctx, req.Reply, req.Identity, d.format.Status(text, d.opts.Notes.Thinking, true))
			d.start(st)
		} else {
			note := fmt.Sprintf(d.opts.Notes.Queued, length-2)
			d.send(ctx, req.Reply, req.Identity, d.format.Status(text, note, true))
		}
		return nil
	}

	return fmt.Errorf("enqueueing for %s: conversation reset concurrently", req.Identity)
}

// Close stops all workers and waits for them to exit. In-flight backend
// calls are cancelled; queued items are not answered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
}

func (d *Dispatcher) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Dispatcher) reset(ctx context.Context, req Request, text string) error {
	if _, err := d.registry.Reset(req.Identity); err != nil {
		d.logger.Error("reset failed", "identity", req.Identity, "error", err)
		d.send(ctx, req.Reply, req.Identity, d.format.Status(text, d.opts.Notes.NoBackend, true))
		return err
	}
	d.logger.Info("conversation reset by request", "identity", req.Identity)
	d.send(ctx, req.Reply, req.Identity, d.format.Status(text, d.opts.Notes.Reset, true))
	return nil
}

// start launches the worker for st.
func (d *Dispatcher) start(st *conversation.State) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		d.run(st)
	}()
}

// run drains st until it is empty, reset, or the dispatcher closes.
func (d *Dispatcher) run(st *conversation.State) {
	for {
		item, _, ok := st.Head()
		if !ok {
			return
		}

		if !d.dispatch(st, item) {
			return
		}

		next, remaining, ok := st.Head()
		if !ok {
			return
		}
		if next != item && remaining == d.opts.Attempts {
			d.send(d.ctx, next.Reply, st.Identity, d.format.Status(next.Text, d.opts.Notes.Working, true))
		}

		if !d.sleep(d.opts.Backoff) {
			return
		}
	}
}

// dispatch makes one backend attempt for item and applies the outcome.
// It returns true if the worker should keep draining st.
func (d *Dispatcher) dispatch(st *conversation.State, item *conversation.Item) bool {
	remaining, ok := st.BeginAttempt(item)
	if !ok {
		return false
	}

	logger := d.logger.With("identity", st.Identity, "item", item.ID, "account", st.Account)
	logger.Debug("dispatching", "remaining", remaining)

	start := time.Now()
	reply, err := st.Conversation.SendMessage(d.ctx, item.Text)

	// The state may have been reset while the call was outstanding.
	if !st.IsHead(item) {
		logger.Info("discarding result for reset conversation", "error", err)
		return false
	}

	if err == nil {
		logger.Info("backend replied", "duration", time.Since(start).Round(time.Millisecond), "length", len(reply))
		d.send(d.ctx, item.Reply, st.Identity, d.format.Reply(item.Text, reply))
		left, ok := st.Remove(item)
		return ok && left > 0
	}

	if d.ctx.Err() != nil {
		return false
	}

	if remaining > 0 {
		logger.Warn("backend call failed, will retry", "remaining", remaining, "error", err)
		return true
	}

	logger.Error("backend call failed, attempts exhausted", "error", err)
	d.send(d.ctx, item.Reply, st.Identity, d.format.Status(item.Text, d.opts.Notes.Failed, true))
	if _, _, err := d.registry.ResetIfCurrent(st.Identity, st); err != nil {
		logger.Error("reset after exhaustion failed", "error", err)
	}
	return false
}

// sleep waits for dur or until the dispatcher closes.
func (d *Dispatcher) sleep(dur time.Duration) bool {
	timer := time.NewTimer(dur)
	defer timer.Stop()

	select {
	case <-d.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// send delivers text best-effort; failures are logged and never retried.
func (d *Dispatcher) send(ctx context.Context, r conversation.Replier, identity, text string) {
	if r == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), replyTimeout)
	defer cancel()

	if err := r.Reply(ctx, text); err != nil {
		d.logger.Warn("failed to send reply", "identity", identity, "error", err)
	}
}
