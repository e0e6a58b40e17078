// Package backend is the client for the conversational backend service.
//
// The backend keeps its own context per conversation. A Conversation is the
// relay's handle on one such context: it remembers the backend conversation
// ID and the ID of the last message so each call continues where the
// previous one left off.
//
// # Wire Format
//
// Each call is a POST to /api/conversation authenticated with the session
// token as a bearer token:
//
//	{"message_id": "...", "parent_message_id": "...", "conversation_id": "...", "content": "..."}
//
// The response is a Server-Sent Events stream:
//
//	event: text
//	data: {"text": "partial"}
//
//	event: done
//	data: {"full_response": "...", "conversation_id": "...", "message_id": "..."}
//
// An "error" event, a non-200 status, a transport error, a timeout or an
// empty answer all fail the call with ErrCallFailed.
package backend
