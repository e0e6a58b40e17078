// ABOUTME: Outbound replies to Matrix rooms
// ABOUTME: Threads group replies onto the original event and optionally renders markdown

package matrix

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/coven-relay/internal/relay"
)

// Send delivers text to target. It implements relay.Transport.
func (b *Bridge) Send(ctx context.Context, target relay.Target, text string) error {
	roomID, err := b.roomFor(target)
	if err != nil {
		return err
	}

	content := buildContent(target, text, b.render)
	if _, err := b.client.SendMessageEvent(ctx, roomID, event.EventMessage, content); err != nil {
		return fmt.Errorf("sending to %s: %w", roomID, err)
	}
	b.logger.Debug("sent message", "room", roomID, "kind", target.Kind.String(), "length", len(text))
	return nil
}

func (b *Bridge) roomFor(target relay.Target) (id.RoomID, error) {
	if target.Kind == relay.Group {
		return id.RoomID(target.ID), nil
	}
	roomID, ok := b.rooms.directRoom(id.UserID(target.ID))
	if !ok {
		return "", fmt.Errorf("no direct room known for %s", target.ID)
	}
	return roomID, nil
}

// buildContent makes the message event for text. Group replies are threaded
// onto the original event and mention its sender; render, when non-nil,
// supplies an HTML body.
func buildContent(target relay.Target, text string, render renderer) *event.MessageEventContent {
	content := &event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    text,
	}

	var htmlBody string
	if render != nil {
		if out, err := render(text); err == nil {
			htmlBody = out
		}
	}

	if target.Kind == relay.Group && target.QuoteSender != "" {
		sender := id.UserID(target.QuoteSender)
		name := target.QuoteSenderName
		if name == "" {
			name = target.QuoteSender
		}
		content.Body = name + ": " + text
		content.Mentions = &event.Mentions{UserIDs: []id.UserID{sender}}
		if target.ReplyTo != "" {
			content.RelatesTo = (&event.RelatesTo{}).SetReplyTo(id.EventID(target.ReplyTo))
		}
		if htmlBody == "" {
			htmlBody = html.EscapeString(text)
		}
		htmlBody = fmt.Sprintf(`<a href="https://matrix.to/#/%s">%s</a>: %s`, sender, html.EscapeString(name), htmlBody)
	}

	if htmlBody != "" {
		content.Format = event.FormatHTML
		content.FormattedBody = htmlBody
	}
	return content
}

// renderer turns markdown text into HTML.
type renderer func(text string) (string, error)

// newMarkdownRenderer renders each part between separator lines on its own
// and joins them with a rule, so the separator never becomes a setext
// heading underline.
func newMarkdownRenderer(separator string) renderer {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	return func(text string) (string, error) {
		parts := []string{text}
		if separator != "" {
			parts = strings.Split(text, "\n"+separator+"\n")
		}

		var buf bytes.Buffer
		for i, part := range parts {
			if i > 0 {
				buf.WriteString("<hr>")
			}
			var out bytes.Buffer
			if err := md.Convert([]byte(part), &out); err != nil {
				return "", err
			}
			buf.Write(bytes.TrimSpace(out.Bytes()))
		}
		return buf.String(), nil
	}
}
