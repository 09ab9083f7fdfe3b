package chat

import "strings"

// Literal lines of the wire protocol.
const (
	PromptUsername      = "ENTER_USERNAME"
	ReplyEmptyName      = "ERROR Username cannot be empty. Connection closing."
	ReplyNameTaken      = "ERROR Username already taken. Connection closing."
	ReplyInvalidPrivate = "SERVER: Invalid private message format. Use: @username message"

	// SystemSender is the sender name of join/leave announcements and replies
	// generated by the relay itself.
	SystemSender = "SERVER"

	welcomePrefix = "WELCOME "
	quitCommand   = "/quit"
	exitCommand   = "/exit"
	usersCommand  = "/users"
)

// Kind classifies one trimmed inbound line.
type Kind int

const (
	KindEmpty Kind = iota
	KindQuit
	KindUsers
	KindBroadcast
	KindPrivate
	KindInvalidPrivate
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindQuit:
		return "quit"
	case KindUsers:
		return "users"
	case KindBroadcast:
		return "broadcast"
	case KindPrivate:
		return "private"
	case KindInvalidPrivate:
		return "invalid_private"
	default:
		return "unknown"
	}
}

// Message is a classified inbound line. Target is set only for KindPrivate.
type Message struct {
	Kind   Kind
	Sender string
	Target string
	Text   string
}

// Classify trims line and decides what sender meant by it.
//
// A line starting with '@' is a private message when a space follows a
// non-empty target name: "@bob hi there" targets "bob" with text "hi there".
// "@bob" alone and "@ bob" are malformed.
func Classify(sender, line string) Message {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return Message{Kind: KindEmpty, Sender: sender}
	case strings.EqualFold(line, quitCommand), strings.EqualFold(line, exitCommand):
		return Message{Kind: KindQuit, Sender: sender}
	case strings.EqualFold(line, usersCommand):
		return Message{Kind: KindUsers, Sender: sender}
	case strings.HasPrefix(line, "@"):
		space := strings.IndexByte(line, ' ')
		if space <= 1 {
			return Message{Kind: KindInvalidPrivate, Sender: sender, Text: line}
		}
		return Message{
			Kind:   KindPrivate,
			Sender: sender,
			Target: line[1:space],
			Text:   line[space+1:],
		}
	default:
		return Message{Kind: KindBroadcast, Sender: sender, Text: line}
	}
}

// FormatBroadcast renders a room line: "<sender>: <text>".
func FormatBroadcast(sender, text string) string {
	return sender + ": " + text
}

// FormatPrivate renders a private line: "<sender> (private): <text>".
func FormatPrivate(sender, text string) string {
	return sender + " (private): " + text
}

// FormatNotFound is the reply to a private message whose target is offline.
func FormatNotFound(target string) string {
	return FormatBroadcast(SystemSender, "User '"+target+"' not found.")
}

// FormatWelcome acknowledges a successful registration.
func FormatWelcome(name string) string {
	return welcomePrefix + name
}
