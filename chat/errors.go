package chat

import "errors"

var (
	// ErrOutboxFull is returned by Outbox.Deliver when the session's queue has
	// no room, and for every line after that. The recipient is disconnected;
	// other recipients are unaffected.
	ErrOutboxFull = errors.New("chat: outbox full")

	// ErrOutboxClosed is returned by Outbox.Deliver after the session started
	// its cleanup.
	ErrOutboxClosed = errors.New("chat: outbox closed")
)
