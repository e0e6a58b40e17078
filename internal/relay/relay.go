// ABOUTME: Relay glue between the transport and the dispatcher
// ABOUTME: Answers pings directly and enqueues addressed messages with a reply target

package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/2389/coven-relay/internal/dispatch"
	"github.com/2389/coven-relay/internal/format"
)

// Defaults used when the corresponding Options field is empty.
const (
	DefaultPingKeyword = "/ping"
	DefaultPingReply   = "pong"
)

// ErrTransportSend wraps failures returned by Transport.Send.
var ErrTransportSend = errors.New("transport send failed")

// Transport sends text to a target.
type Transport interface {
	Send(ctx context.Context, target Target, text string) error
}

// Enqueuer accepts messages for dispatch.
type Enqueuer interface {
	Enqueue(ctx context.Context, req dispatch.Request) error
}

// Options configures a Relay.
type Options struct {
	PingKeyword string
	PingReply   string
}

// Relay routes inbound messages.
type Relay struct {
	transport  Transport
	dispatcher Enqueuer
	format     *format.Formatter
	opts       Options
	logger     *slog.Logger
}

// New creates a Relay.
func New(transport Transport, dispatcher Enqueuer, formatter *format.Formatter, opts Options, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PingKeyword == "" {
		opts.PingKeyword = DefaultPingKeyword
	}
	if opts.PingReply == "" {
		opts.PingReply = DefaultPingReply
	}
	return &Relay{
		transport:  transport,
		dispatcher: dispatcher,
		format:     formatter,
		opts:       opts,
		logger:     logger.With("component", "relay"),
	}
}

// Handle processes one inbound message. Transport failures while replying
// are logged, not returned.
func (r *Relay) Handle(ctx context.Context, in Inbound) error {
	target := ResolveTarget(in)
	logger := r.logger.With("target", target.Kind.String(), "to", target.ID, "sender", in.Sender)

	if strings.TrimSpace(in.Text) == r.opts.PingKeyword {
		logger.Debug("answering ping")
		return r.reply(ctx, target, r.opts.PingReply)
	}

	if !r.format.Addressed(in.Text) {
		logger.Debug("ignoring unaddressed message")
		return nil
	}

	logger.Info("relaying message", "topic", target.Topic, "preview", preview(in.Text, 50))

	err := r.dispatcher.Enqueue(ctx, dispatch.Request{
		Identity: target.Identity(),
		Text:     in.Text,
		Reply:    &replier{relay: r, target: target},
	})
	if err != nil {
		return fmt.Errorf("enqueueing message from %s: %w", in.Sender, err)
	}
	return nil
}

func (r *Relay) reply(ctx context.Context, target Target, text string) error {
	if err := r.transport.Send(ctx, target, text); err != nil {
		err = fmt.Errorf("%w: %w", ErrTransportSend, err)
		r.logger.Warn("reply not delivered", "to", target.ID, "error", err)
		return err
	}
	return nil
}

// replier sends dispatcher output back to a fixed target.
type replier struct {
	relay  *Relay
	target Target
}

func (p *replier) Reply(ctx context.Context, text string) error {
	return p.relay.reply(ctx, p.target, text)
}

func preview(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
