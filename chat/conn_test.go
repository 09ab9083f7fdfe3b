package chat

import (
	"bufio"
	"io"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopCloser struct {
	io.ReadWriter
	closed int
}

func (n *nopCloser) Close() error {
	n.closed++
	return nil
}

func TestStreamConn_ReadLine(t *testing.T) {
	t.Run("splits lines and reports EOF", func(t *testing.T) {
		rw := &nopCloser{ReadWriter: struct {
			io.Reader
			io.Writer
		}{strings.NewReader("alice\r\n hello \nlast"), io.Discard}}
		c := NewStreamConn(rw, "test", 0)

		for _, want := range []string{"alice", " hello ", "last"} {
			line, err := c.ReadLine()
			require.NoError(t, err)
			assert.Equal(t, want, line)
		}

		_, err := c.ReadLine()
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("overlong line ends the stream", func(t *testing.T) {
		rw := &nopCloser{ReadWriter: struct {
			io.Reader
			io.Writer
		}{strings.NewReader(strings.Repeat("x", 100) + "\n"), io.Discard}}
		c := NewStreamConn(rw, "test", 16)

		_, err := c.ReadLine()
		assert.ErrorIs(t, err, bufio.ErrTooLong)
	})
}

func TestStreamConn_WriteAndClose(t *testing.T) {
	server, client := net.Pipe()
	c := NewNetConn(server, 0)
	assert.Equal(t, "pipe", c.RemoteAddr())

	go func() {
		_ = c.WriteLine("WELCOME alice")
	}()

	line, err := bufio.NewReader(client).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "WELCOME alice\n", line)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Error(t, c.WriteLine("late"))
	_ = client.Close()
}

func TestStreamConn_CloseOnce(t *testing.T) {
	rw := &nopCloser{ReadWriter: struct {
		io.Reader
		io.Writer
	}{strings.NewReader(""), io.Discard}}
	c := NewStreamConn(rw, "test", 0)

	_ = c.Close()
	_ = c.Close()
	assert.Equal(t, 1, rw.closed)
}
