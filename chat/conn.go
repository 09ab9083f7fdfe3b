package chat

import (
	"bufio"
	"io"
	"net"
	"sync"
)

// DefaultMaxLineBytes caps one inbound line when the transport gives no limit.
const DefaultMaxLineBytes = 64 * 1024

// Conn is one line-oriented client connection. ReadLine is called only by the
// session's reader and WriteLine only by its writer, so implementations need
// not serialize the two against each other. Close must unblock both.
type Conn interface {
	// ReadLine returns the next line without its terminator, or io.EOF once
	// the peer has closed the stream.
	ReadLine() (string, error)

	// WriteLine writes line followed by a newline.
	WriteLine(line string) error

	// Close releases the underlying transport. Safe to call more than once.
	Close() error

	// RemoteAddr describes the peer for logs.
	RemoteAddr() string
}

// StreamConn adapts a newline-delimited byte stream (a TCP socket or an SSH
// channel) to Conn.
type StreamConn struct {
	rwc     io.ReadWriteCloser
	remote  string
	scanner *bufio.Scanner
	once    sync.Once
	err     error
}

// NewStreamConn wraps rwc.
//
// Parameters:
//   - rwc: The byte stream; closed by Close
//   - remote: Peer description used in logs
//   - maxLineBytes: Longest accepted line; values <= 0 use DefaultMaxLineBytes
//
// Returns:
//   - A StreamConn reading one line per ReadLine call. A line longer than
//     maxLineBytes ends the stream with bufio.ErrTooLong.
func NewStreamConn(rwc io.ReadWriteCloser, remote string, maxLineBytes int) *StreamConn {
	if maxLineBytes <= 0 {
		maxLineBytes = DefaultMaxLineBytes
	}

	scanner := bufio.NewScanner(rwc)
	scanner.Buffer(make([]byte, 0, min(4096, maxLineBytes)), maxLineBytes)

	return &StreamConn{rwc: rwc, remote: remote, scanner: scanner}
}

// NewNetConn wraps an accepted network connection.
func NewNetConn(conn net.Conn, maxLineBytes int) *StreamConn {
	return NewStreamConn(conn, conn.RemoteAddr().String(), maxLineBytes)
}

// ReadLine implements Conn. The line break, including a trailing carriage
// return, is stripped; other whitespace is left for callers to trim.
func (c *StreamConn) ReadLine() (string, error) {
	if c.scanner.Scan() {
		return c.scanner.Text(), nil
	}

	if err := c.scanner.Err(); err != nil {
		return "", err
	}

	return "", io.EOF
}

// WriteLine implements Conn.
func (c *StreamConn) WriteLine(line string) error {
	_, err := io.WriteString(c.rwc, line+"\n")
	return err
}

// Close implements Conn.
func (c *StreamConn) Close() error {
	c.once.Do(func() {
		c.err = c.rwc.Close()
	})

	return c.err
}

// RemoteAddr implements Conn.
func (c *StreamConn) RemoteAddr() string {
	return c.remote
}
