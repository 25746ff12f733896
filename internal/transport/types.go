// Package transport defines the chat-platform boundary. The scheduling core
// only ever sees these types; everything Telegram-specific stays in the
// telegram subpackage.
package transport

import "context"

// Message is one inbound chat message.
type Message struct {
	ID     int
	RoomID string

	// SenderID is a stable identity for the author; SenderMention is the
	// platform's way to address them inside a message body.
	SenderID      string
	SenderMention string

	Text string
}

// Adapter is a chat connection: a stream of inbound messages plus the
// capability to deliver text to a room.
type Adapter interface {
	Start(ctx context.Context, out chan<- Message) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, roomID, text string) error
}
