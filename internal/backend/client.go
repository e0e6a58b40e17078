// ABOUTME: HTTP client for the conversational backend
// ABOUTME: Conversations carry backend context IDs across calls and stream SSE replies

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-relay/internal/session"
)

// ErrCallFailed wraps every failure of a backend call.
var ErrCallFailed = errors.New("backend call failed")

// SendRequest is the request body for POST /api/conversation.
type SendRequest struct {
	MessageID       string `json:"message_id"`
	ParentMessageID string `json:"parent_message_id,omitempty"`
	ConversationID  string `json:"conversation_id,omitempty"`
	Content         string `json:"content"`
}

// Client talks to the backend HTTP API.
type Client struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
}

// NewClient creates a backend client. A positive timeout bounds every call.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{},
		timeout: timeout,
	}
}

// NewConversation starts a fresh backend conversation bound to handle.
// Nothing is sent until the first SendMessage.
func (c *Client) NewConversation(handle session.Handle) *Conversation {
	return &Conversation{
		client: c,
		handle: handle,
	}
}

// Conversation is a stateful handle on one backend conversation.
// Calls are serialized.
type Conversation struct {
	client *Client
	handle session.Handle

	mu             sync.Mutex
	conversationID string
	parentID       string
}

// Account returns the account of the session this conversation is bound to.
func (cv *Conversation) Account() string {
	return cv.handle.Account
}

// ID returns the backend conversation ID, empty until the first successful call.
func (cv *Conversation) ID() string {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	return cv.conversationID
}

// SendMessage sends text and returns the backend's reply.
func (cv *Conversation) SendMessage(ctx context.Context, text string) (string, error) {
	cv.mu.Lock()
	defer cv.mu.Unlock()

	if cv.client.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cv.client.timeout)
		defer cancel()
	}

	req := SendRequest{
		MessageID:       uuid.New().String(),
		ParentMessageID: cv.parentID,
		ConversationID:  cv.conversationID,
		Content:         text,
	}

	done, err := cv.client.send(ctx, cv.handle.Token, req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCallFailed, err)
	}
	if done.FullResponse == "" {
		return "", fmt.Errorf("%w: empty response", ErrCallFailed)
	}

	if done.ConversationID != "" {
		cv.conversationID = done.ConversationID
	}
	if done.MessageID != "" {
		cv.parentID = done.MessageID
	} else {
		cv.parentID = req.MessageID
	}
	return done.FullResponse, nil
}

// send posts the request and reads the SSE stream to completion.
func (c *Client) send(ctx context.Context, token string, req SendRequest) (*DoneEventData, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/conversation", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, handleErrorResponse(resp)
	}

	return parseSSEStream(ctx, resp.Body)
}

// handleErrorResponse extracts error message from non-200 responses.
func handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var errResp ErrorEventData
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("backend error (%d): %s", resp.StatusCode, errResp.Error)
		}
	}

	return fmt.Errorf("backend returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
