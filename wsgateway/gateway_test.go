package wsgateway

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cyberinferno/chatrelay/chat"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wsClient struct {
	t  *testing.T
	ws *websocket.Conn
}

func dial(t *testing.T, url string) *wsClient {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return &wsClient{t: t, ws: ws}
}

func (c *wsClient) send(line string) {
	c.t.Helper()
	require.NoError(c.t, c.ws.WriteMessage(websocket.TextMessage, []byte(line)))
}

func (c *wsClient) expect(want string) {
	c.t.Helper()
	require.NoError(c.t, c.ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	kind, data, err := c.ws.ReadMessage()
	require.NoError(c.t, err)
	assert.Equal(c.t, websocket.TextMessage, kind)
	assert.Equal(c.t, want, string(data))
}

func (c *wsClient) expectClosed() {
	c.t.Helper()
	require.NoError(c.t, c.ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := c.ws.ReadMessage()
	assert.Error(c.t, err)
}

type tcpClient struct {
	t     *testing.T
	conn  net.Conn
	lines chan string
}

// joinOverStream runs a stream session on the same hub as the gateway, the
// way the TCP listener would.
func joinOverStream(t *testing.T, hub *chat.Hub) *tcpClient {
	t.Helper()
	server, client := net.Pipe()
	c := &tcpClient{t: t, conn: client, lines: make(chan string, 64)}

	session := hub.NewSession(hub.IDs().Id(), chat.NewNetConn(server, 0))
	done := make(chan struct{})
	go func() {
		session.Handle()
		close(done)
	}()

	go func() {
		defer close(c.lines)
		scanner := bufio.NewScanner(client)
		for scanner.Scan() {
			c.lines <- scanner.Text()
		}
	}()

	t.Cleanup(func() {
		_ = client.Close()
		<-done
	})

	return c
}

func (c *tcpClient) send(line string) {
	c.t.Helper()
	_, err := c.conn.Write([]byte(line + "\n"))
	require.NoError(c.t, err)
}

func (c *tcpClient) expect(want string) {
	c.t.Helper()
	select {
	case got, ok := <-c.lines:
		require.True(c.t, ok, "connection closed while waiting for %q", want)
		require.Equal(c.t, want, got)
	case <-time.After(2 * time.Second):
		c.t.Fatalf("timed out waiting for %q", want)
	}
}

func newGateway(t *testing.T, maxLine int) (*Gateway, *chat.Hub, string) {
	t.Helper()
	hub := chat.NewHub(chat.Options{FlushTimeout: time.Second})
	gw := New("127.0.0.1:0", hub, maxLine, nil)
	srv := httptest.NewServer(gw.Handler())
	t.Cleanup(func() {
		_ = gw.Stop(context.Background())
		srv.Close()
	})
	return gw, hub, "ws" + strings.TrimPrefix(srv.URL, "http") + Path
}

func TestGateway_Chat(t *testing.T) {
	gw, hub, url := newGateway(t, 0)

	alice := dial(t, url)
	alice.expect(chat.PromptUsername)
	alice.send("alice\r\n")
	alice.expect("WELCOME alice")
	alice.expect("SERVER: alice has joined the chat.")

	bob := dial(t, url)
	bob.expect(chat.PromptUsername)
	bob.send("bob")
	bob.expect("WELCOME bob")
	bob.expect("SERVER: bob has joined the chat.")
	alice.expect("SERVER: bob has joined the chat.")

	assert.Equal(t, 2, gw.SessionCount())
	assert.Equal(t, []string{"alice", "bob"}, hub.Registry().Names())

	t.Run("binary frames are ignored", func(t *testing.T) {
		require.NoError(t, alice.ws.WriteMessage(websocket.BinaryMessage, []byte("noise")))
		alice.send("hi bob")
		alice.expect("alice: hi bob")
		bob.expect("alice: hi bob")
	})

	t.Run("private message", func(t *testing.T) {
		bob.send("@alice psst")
		alice.expect("bob (private): psst")
		bob.expect("bob (private): psst")
	})

	t.Run("quit", func(t *testing.T) {
		bob.send("/exit")
		bob.expectClosed()
		alice.expect("SERVER: bob has left the chat.")
		assert.Eventually(t, func() bool { return gw.SessionCount() == 1 }, time.Second, 10*time.Millisecond)
	})

	t.Run("stop closes sessions", func(t *testing.T) {
		require.NoError(t, gw.Stop(context.Background()))
		alice.expectClosed()
		assert.Zero(t, hub.Registry().Len())
	})
}

func TestGateway_Limits(t *testing.T) {
	_, hub, url := newGateway(t, 64)

	t.Run("oversized frame ends the session", func(t *testing.T) {
		c := dial(t, url)
		c.expect(chat.PromptUsername)
		c.send(strings.Repeat("x", 200))
		c.expectClosed()
		assert.Zero(t, hub.Registry().Len())
	})

	t.Run("plain http is refused", func(t *testing.T) {
		resp, err := http.Get("http" + strings.TrimPrefix(url, "ws"))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("post is refused", func(t *testing.T) {
		resp, err := http.Post("http"+strings.TrimPrefix(url, "ws"), "text/plain", strings.NewReader("hi"))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})
}

func TestGateway_StartStop(t *testing.T) {
	hub := chat.NewHub(chat.Options{})
	gw := New("127.0.0.1:0", hub, 0, nil)
	assert.Nil(t, gw.ListenAddr())

	require.NoError(t, gw.Start())
	assert.Error(t, gw.Start())

	c := dial(t, "ws://"+gw.ListenAddr().String()+Path)
	c.expect(chat.PromptUsername)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, gw.Stop(ctx))
	c.expectClosed()
}

func TestGateway_MixedTransports(t *testing.T) {
	_, hub, url := newGateway(t, 0)

	carol := joinOverStream(t, hub)
	carol.expect(chat.PromptUsername)
	carol.send("carol")
	carol.expect("WELCOME carol")
	carol.expect("SERVER: carol has joined the chat.")

	dave := dial(t, url)
	dave.expect(chat.PromptUsername)
	dave.send("dave\nSERVER: carol has left the chat.")
	dave.expect("WELCOME dave")
	dave.expect("SERVER: dave has joined the chat.")
	carol.expect("SERVER: dave has joined the chat.")

	t.Run("extra lines in the naming frame are chat lines", func(t *testing.T) {
		carol.expect("dave: SERVER: carol has left the chat.")
		dave.expect("dave: SERVER: carol has left the chat.")
		assert.Equal(t, []string{"carol", "dave"}, hub.Registry().Names())
	})

	t.Run("each line of a frame is relayed on its own", func(t *testing.T) {
		dave.send("hi\nSERVER: carol has left the chat.")
		carol.expect("dave: hi")
		carol.expect("dave: SERVER: carol has left the chat.")
		dave.expect("dave: hi")
		dave.expect("dave: SERVER: carol has left the chat.")
	})

	t.Run("stream lines reach the websocket peer", func(t *testing.T) {
		carol.send("@dave hello")
		dave.expect("carol (private): hello")
		carol.expect("carol (private): hello")
	})
}
