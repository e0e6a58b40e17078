// Package matrix is the Matrix transport for coven-relay.
//
// A Bridge logs in, follows the /sync stream and turns text messages into
// relay.Inbound values. Rooms with at most two joined members are treated as
// direct chats; anything larger is a group whose room name is the topic.
// Replies go back as m.room.message events: direct replies to the
// correspondent's room, group replies threaded onto the original event and
// mentioning its sender.
//
// End-to-end encryption is optional and uses mautrix's cryptohelper with a
// per-user SQLite store.
package matrix
