// Package dispatch drains per-conversation queues into the backend.
//
// # State Machine
//
// Each conversation is Idle, Processing its head item, Awaiting-redispatch
// after a failed attempt, or Exhausted once the head item has used its
// attempt budget:
//
//	Idle --enqueue--> Processing --ok--> (next item | Idle)
//	                      |
//	                    fail
//	                      v
//	        attempts left? --yes--> Awaiting-redispatch --backoff--> Processing
//	                      |
//	                      no
//	                      v
//	                  Exhausted --> apology + conversation reset
//
// A failed item stays at the head of the queue; later items never overtake
// it and it never moves to the back.
//
// # Workers
//
// A conversation with queued items has exactly one worker goroutine. The
// worker is started by the Enqueue that makes the queue length one, and it
// exits when it removes the last item or when the conversation is reset.
// Both decisions are made under the conversation's lock, which is what keeps
// at most one backend call in flight per conversation.
//
// Consecutive dispatches within a conversation are separated by a fixed
// backoff, whether the next dispatch is a retry or a new item.
package dispatch
