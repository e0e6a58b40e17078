// ABOUTME: Matrix bridge: login, sync loop and inbound message conversion
// ABOUTME: Filters rooms, drops own and duplicate events, hands messages to the relay

package matrix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/coven-relay/internal/dedupe"
	"github.com/2389/coven-relay/internal/relay"
)

// dedupeCapacity bounds how many event IDs are remembered.
const dedupeCapacity = 4096

// Options configures a Bridge.
type Options struct {
	Homeserver     string
	UserID         string
	AccessToken    string
	Username       string
	Password       string
	AllowedRooms   []string
	RespondToSelf  bool
	RenderMarkdown bool
	DedupeWindow   time.Duration

	// Separator is the line between question and answer in outgoing text.
	Separator string
}

// Handler receives inbound messages.
type Handler func(ctx context.Context, in relay.Inbound) error

// Bridge connects a Matrix account to the relay.
type Bridge struct {
	opts   Options
	client *mautrix.Client
	rooms  *roomCache
	seen   *dedupe.Window
	render renderer
	logger *slog.Logger
}

// New creates a Bridge. No network calls are made until Login or Run.
func New(opts Options, logger *slog.Logger) (*Bridge, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := mautrix.NewClient(opts.Homeserver, id.UserID(opts.UserID), opts.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}

	b := &Bridge{
		opts:   opts,
		client: client,
		seen:   dedupe.New(opts.DedupeWindow, dedupeCapacity),
		logger: logger.With("component", "matrix"),
	}
	b.rooms = newRoomCache(clientLookup{client: client})
	if opts.RenderMarkdown {
		b.render = newMarkdownRenderer(opts.Separator)
	}
	return b, nil
}

// Login authenticates with username and password. With an access token
// configured it only confirms the token with /whoami.
func (b *Bridge) Login(ctx context.Context) error {
	if b.opts.AccessToken != "" {
		resp, err := b.client.Whoami(ctx)
		if err != nil {
			return fmt.Errorf("checking access token: %w", err)
		}
		b.client.DeviceID = resp.DeviceID
		b.logger.Info("using access token", "user_id", resp.UserID, "device_id", resp.DeviceID)
		return nil
	}

	resp, err := b.client.Login(ctx, &mautrix.ReqLogin{
		Type: mautrix.AuthTypePassword,
		Identifier: mautrix.UserIdentifier{
			Type: mautrix.IdentifierTypeUser,
			User: b.opts.Username,
		},
		Password:                 b.opts.Password,
		InitialDeviceDisplayName: "coven-relay",
		StoreCredentials:         true,
	})
	if err != nil {
		return fmt.Errorf("logging in as %s: %w", b.opts.Username, err)
	}
	b.logger.Info("logged in", "user_id", resp.UserID, "device_id", resp.DeviceID)
	return nil
}

// UserID returns the logged-in user.
func (b *Bridge) UserID() id.UserID {
	return b.client.UserID
}

// Client exposes the underlying mautrix client for crypto setup.
func (b *Bridge) Client() *mautrix.Client {
	return b.client
}

// Run syncs until ctx is cancelled, calling handle for each accepted message.
// Messages are handled in arrival order on the sync goroutine.
func (b *Bridge) Run(ctx context.Context, handle Handler) error {
	defer b.seen.Close()

	syncer, ok := b.client.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("unexpected syncer type: %T", b.client.Syncer)
	}
	syncer.OnSync(b.client.DontProcessOldEvents)
	syncer.OnEventType(event.StateMember, func(ctx context.Context, evt *event.Event) {
		b.rooms.forget(evt.RoomID)
	})
	syncer.OnEventType(event.EventMessage, func(ctx context.Context, evt *event.Event) {
		in, ok := b.inbound(ctx, evt)
		if !ok {
			return
		}
		if err := handle(ctx, in); err != nil {
			b.logger.Warn("message not handled", "room", evt.RoomID, "event", evt.ID, "error", err)
		}
	})

	b.logger.Info("starting matrix sync",
		"homeserver", b.opts.Homeserver,
		"user_id", b.client.UserID,
		"allowed_rooms", len(b.opts.AllowedRooms),
	)

	err := b.client.SyncWithContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("matrix sync failed: %w", err)
	}
	b.logger.Info("matrix sync stopped")
	return nil
}

// inbound converts evt, reporting false for events the relay should not see.
func (b *Bridge) inbound(ctx context.Context, evt *event.Event) (relay.Inbound, bool) {
	content, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok || content.MsgType != event.MsgText {
		return relay.Inbound{}, false
	}

	if !b.isRoomAllowed(evt.RoomID) {
		b.logger.Debug("ignoring message from non-allowed room", "room", evt.RoomID)
		return relay.Inbound{}, false
	}

	self := evt.Sender == b.client.UserID
	if self && !b.opts.RespondToSelf {
		return relay.Inbound{}, false
	}

	if b.seen.CheckAndMark(evt.ID.String()) {
		b.logger.Debug("dropping duplicate event", "event", evt.ID)
		return relay.Inbound{}, false
	}

	info, err := b.rooms.get(ctx, evt.RoomID, b.client.UserID)
	if err != nil {
		b.logger.Warn("could not look up room", "room", evt.RoomID, "error", err)
		return relay.Inbound{}, false
	}

	in := relay.Inbound{
		ID:         evt.ID.String(),
		Sender:     evt.Sender.String(),
		SenderName: info.displayName(evt.Sender),
		Text:       stripReplyFallback(content.Body),
		Self:       self,
	}
	if info.direct {
		in.Recipient = b.client.UserID.String()
		if self {
			in.Recipient = info.counterpart.String()
		}
		b.rooms.rememberDirect(info.counterpart, evt.RoomID)
	} else {
		in.Channel = evt.RoomID.String()
		in.Topic = info.name
	}

	b.logger.Debug("received message",
		"room", evt.RoomID,
		"sender", evt.Sender,
		"direct", info.direct,
		"content", truncate(content.Body, 50),
	)
	return in, true
}

// stripReplyFallback drops the "> <@user> ..." quote that some clients
// prepend to replies, leaving the text the user actually typed.
func stripReplyFallback(body string) string {
	if !strings.HasPrefix(body, "> <") {
		return body
	}
	lines := strings.Split(body, "\n")
	i := 0
	for i < len(lines) && strings.HasPrefix(lines[i], ">") {
		i++
	}
	return strings.TrimLeft(strings.Join(lines[i:], "\n"), "\n")
}

// isRoomAllowed checks the room against the allow list; empty allows all.
func (b *Bridge) isRoomAllowed(roomID id.RoomID) bool {
	if len(b.opts.AllowedRooms) == 0 {
		return true
	}
	return slices.Contains(b.opts.AllowedRooms, roomID.String())
}

// truncate shortens s to maxLen runes, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
