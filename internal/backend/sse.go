// ABOUTME: Server-Sent Events parsing for backend replies
// ABOUTME: Accumulates text deltas and stops at the done or error event

package backend

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// EventType represents SSE event types from the backend.
type EventType string

const (
	EventText  EventType = "text"
	EventDone  EventType = "done"
	EventError EventType = "error"
)

// TextEventData is the JSON structure for text events.
type TextEventData struct {
	Text string `json:"text"`
}

// DoneEventData is the JSON structure for the done event.
type DoneEventData struct {
	FullResponse   string `json:"full_response,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
}

// ErrorEventData is the JSON structure for error events.
type ErrorEventData struct {
	Error string `json:"error"`
}

// parseSSEStream reads events until done, error or EOF. When the stream
// ends without a full_response the accumulated text deltas are used.
func parseSSEStream(ctx context.Context, body io.Reader) (*DoneEventData, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var (
		eventType EventType
		dataLines []string
		text      strings.Builder
	)

	finish := func(done *DoneEventData) *DoneEventData {
		if done.FullResponse == "" {
			done.FullResponse = text.String()
		}
		return done
	}

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		line := scanner.Text()

		// Empty line signals end of event
		if line == "" {
			if eventType != "" && len(dataLines) > 0 {
				data := []byte(strings.Join(dataLines, "\n"))
				switch eventType {
				case EventText:
					var ev TextEventData
					if json.Unmarshal(data, &ev) == nil {
						text.WriteString(ev.Text)
					}
				case EventDone:
					var ev DoneEventData
					if err := json.Unmarshal(data, &ev); err != nil {
						return nil, fmt.Errorf("parsing done event: %w", err)
					}
					return finish(&ev), nil
				case EventError:
					var ev ErrorEventData
					if json.Unmarshal(data, &ev) == nil && ev.Error != "" {
						return nil, fmt.Errorf("backend error: %s", ev.Error)
					}
					return nil, fmt.Errorf("backend error: %s", string(data))
				}
			}
			eventType = ""
			dataLines = nil
			continue
		}

		if strings.HasPrefix(line, "event:") {
			eventType = EventType(strings.TrimSpace(strings.TrimPrefix(line, "event:")))
			continue
		}

		if strings.HasPrefix(line, "data:") {
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			continue
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading SSE stream: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return finish(&DoneEventData{}), nil
}
