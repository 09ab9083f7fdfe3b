package wsgateway

import (
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const closeGrace = time.Second

// wsConn adapts a WebSocket to chat.Conn. A text frame normally carries one
// line; a frame holding line breaks is read as several lines, the same way a
// stream peer's bytes would be.
type wsConn struct {
	ws      *websocket.Conn
	remote  string
	pending []string
	once    sync.Once
	err     error
}

func newConn(ws *websocket.Conn, remote string, maxLineBytes int) *wsConn {
	ws.SetReadLimit(int64(maxLineBytes))
	return &wsConn{ws: ws, remote: remote}
}

func (c *wsConn) ReadLine() (string, error) {
	if len(c.pending) > 0 {
		line := c.pending[0]
		c.pending = c.pending[1:]
		return line, nil
	}

	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return "", io.EOF
			}

			return "", err
		}

		// Binary frames are not part of the protocol.
		if kind != websocket.TextMessage {
			continue
		}

		lines := splitLines(string(data))
		c.pending = lines[1:]
		return lines[0], nil
	}
}

func (c *wsConn) WriteLine(line string) error {
	return c.ws.WriteMessage(websocket.TextMessage, []byte(line))
}

func (c *wsConn) Close() error {
	c.once.Do(func() {
		// Best effort: the peer may already be gone.
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))

		c.err = c.ws.Close()
	})

	return c.err
}

func (c *wsConn) RemoteAddr() string {
	return c.remote
}

// splitLines breaks a frame at \n, \r\n and lone \r. One trailing break is
// dropped; the result always holds at least one line.
func splitLines(frame string) []string {
	frame = strings.ReplaceAll(frame, "\r\n", "\n")
	frame = strings.ReplaceAll(frame, "\r", "\n")
	frame = strings.TrimSuffix(frame, "\n")

	return strings.Split(frame, "\n")
}
