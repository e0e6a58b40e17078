// ABOUTME: Resolves inbound messages into reply targets and conversation identities
// ABOUTME: A target is either an individual correspondent or a group channel

package relay

import "fmt"

// Kind distinguishes individual and group targets.
type Kind int

const (
	Individual Kind = iota
	Group
)

func (k Kind) String() string {
	switch k {
	case Individual:
		return "individual"
	case Group:
		return "group"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Inbound is one message delivered by a transport.
type Inbound struct {
	// ID is the transport's message ID, used for reply threading.
	ID         string
	Sender     string
	SenderName string
	// Recipient is who the message was sent to in a direct chat.
	Recipient string
	// Channel is set for group messages.
	Channel string
	Topic   string
	Text    string
	// Self is true when the bot's own account sent the message.
	Self bool
}

// Target is where replies for one inbound message go.
type Target struct {
	Kind Kind
	// ID is the correspondent for Individual targets and the channel for Group.
	ID    string
	Topic string
	// QuoteSender and ReplyTo are only set for Group targets.
	QuoteSender     string
	QuoteSenderName string
	ReplyTo         string
}

// ResolveTarget picks the reply target for in. A self-sent direct message
// is answered to its recipient, not back to the bot.
func ResolveTarget(in Inbound) Target {
	if in.Channel != "" {
		return Target{
			Kind:            Group,
			ID:              in.Channel,
			Topic:           in.Topic,
			QuoteSender:     in.Sender,
			QuoteSenderName: in.SenderName,
			ReplyTo:         in.ID,
		}
	}
	if in.Self && in.Recipient != "" {
		return Target{Kind: Individual, ID: in.Recipient}
	}
	return Target{Kind: Individual, ID: in.Sender}
}

// Identity is the conversation identity for t: the channel for groups and
// the correspondent for individuals.
func (t Target) Identity() string {
	if t.Kind == Group {
		return "group:" + t.ID
	}
	return "user:" + t.ID
}
