// ABOUTME: Tests for the backend client against an httptest SSE server
// ABOUTME: Covers context continuity, auth header, error events, status codes and timeouts

package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-relay/internal/session"
)

type fakeBackend struct {
	mu       sync.Mutex
	requests []SendRequest
	auth     []string
	handle   func(w http.ResponseWriter, req SendRequest, n int)
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/conversation" || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.auth = append(f.auth, r.Header.Get("Authorization"))
	n := len(f.requests)
	f.mu.Unlock()

	f.handle(w, req, n)
}

func writeEvent(w http.ResponseWriter, event string, data any) {
	b, _ := json.Marshal(data)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, b)
	if fl, ok := w.(http.Flusher); ok {
		fl.Flush()
	}
}

func newServer(t *testing.T, handle func(w http.ResponseWriter, req SendRequest, n int)) (*fakeBackend, *httptest.Server) {
	t.Helper()
	fb := &fakeBackend{handle: handle}
	srv := httptest.NewServer(fb)
	t.Cleanup(srv.Close)
	return fb, srv
}

func TestConversation_SendMessage_ContinuesContext(t *testing.T) {
	fb, srv := newServer(t, func(w http.ResponseWriter, req SendRequest, n int) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeEvent(w, "text", TextEventData{Text: "ans"})
		writeEvent(w, "done", DoneEventData{
			FullResponse:   fmt.Sprintf("answer %d to %s", n, req.Content),
			ConversationID: "conv-1",
			MessageID:      fmt.Sprintf("reply-%d", n),
		})
	})

	client := NewClient(srv.URL+"/", 0)
	conv := client.NewConversation(session.Handle{Account: "a@x", Token: "tok-a"})
	assert.Equal(t, "", conv.ID())
	assert.Equal(t, "a@x", conv.Account())

	reply, err := conv.SendMessage(context.Background(), "first")
	require.NoError(t, err)
	assert.Equal(t, "answer 1 to first", reply)
	assert.Equal(t, "conv-1", conv.ID())

	reply, err = conv.SendMessage(context.Background(), "second")
	require.NoError(t, err)
	assert.Equal(t, "answer 2 to second", reply)

	require.Len(t, fb.requests, 2)
	assert.Empty(t, fb.requests[0].ConversationID)
	assert.Empty(t, fb.requests[0].ParentMessageID)
	assert.NotEmpty(t, fb.requests[0].MessageID)
	assert.Equal(t, "conv-1", fb.requests[1].ConversationID)
	assert.Equal(t, "reply-1", fb.requests[1].ParentMessageID)
	assert.Equal(t, []string{"Bearer tok-a", "Bearer tok-a"}, fb.auth)
}

func TestConversation_SendMessage_AccumulatesTextWithoutDone(t *testing.T) {
	_, srv := newServer(t, func(w http.ResponseWriter, req SendRequest, n int) {
		writeEvent(w, "text", TextEventData{Text: "hel"})
		writeEvent(w, "text", TextEventData{Text: "lo"})
	})

	conv := NewClient(srv.URL, 0).NewConversation(session.Handle{Token: "t"})
	reply, err := conv.SendMessage(context.Background(), "hi")

	require.NoError(t, err)
	assert.Equal(t, "hello", reply)
}

func TestConversation_SendMessage_ErrorEvent(t *testing.T) {
	_, srv := newServer(t, func(w http.ResponseWriter, req SendRequest, n int) {
		writeEvent(w, "error", ErrorEventData{Error: "rate limited"})
	})

	conv := NewClient(srv.URL, 0).NewConversation(session.Handle{Token: "t"})
	_, err := conv.SendMessage(context.Background(), "hi")

	require.ErrorIs(t, err, ErrCallFailed)
	assert.Contains(t, err.Error(), "rate limited")
	assert.Equal(t, "", conv.ID())
}

func TestConversation_SendMessage_StatusError(t *testing.T) {
	_, srv := newServer(t, func(w http.ResponseWriter, req SendRequest, n int) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(ErrorEventData{Error: "session expired"})
	})

	conv := NewClient(srv.URL, 0).NewConversation(session.Handle{Token: "t"})
	_, err := conv.SendMessage(context.Background(), "hi")

	require.ErrorIs(t, err, ErrCallFailed)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "session expired")
}

func TestConversation_SendMessage_EmptyResponse(t *testing.T) {
	_, srv := newServer(t, func(w http.ResponseWriter, req SendRequest, n int) {
		writeEvent(w, "done", DoneEventData{})
	})

	conv := NewClient(srv.URL, 0).NewConversation(session.Handle{Token: "t"})
	_, err := conv.SendMessage(context.Background(), "hi")

	assert.ErrorIs(t, err, ErrCallFailed)
}

func TestConversation_SendMessage_Timeout(t *testing.T) {
	release := make(chan struct{})
	_, srv := newServer(t, func(w http.ResponseWriter, req SendRequest, n int) {
		<-release
	})
	defer close(release)

	conv := NewClient(srv.URL, 50*time.Millisecond).NewConversation(session.Handle{Token: "t"})
	start := time.Now()
	_, err := conv.SendMessage(context.Background(), "hi")

	require.ErrorIs(t, err, ErrCallFailed)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestConversation_SendMessage_Unreachable(t *testing.T) {
	conv := NewClient("http://127.0.0.1:1", time.Second).NewConversation(session.Handle{Token: "t"})
	_, err := conv.SendMessage(context.Background(), "hi")

	assert.ErrorIs(t, err, ErrCallFailed)
}

func TestParseSSEStream_MultilineData(t *testing.T) {
	stream := "event: done\ndata: {\"full_response\":\ndata: \"multi\"}\n\n"

	done, err := parseSSEStream(context.Background(), strings.NewReader(stream))
	require.NoError(t, err)
	assert.Equal(t, "multi", done.FullResponse)
}
