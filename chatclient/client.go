// Package chatclient is an event-driven client for the relay's line protocol.
// Callers register handlers for received lines, connection state changes and
// errors, then Connect. Lines are delivered to the handler one at a time, in
// the order the server sent them.
package chatclient

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"
)

var (
	// ErrClosed is returned by Connect and Send after Close.
	ErrClosed = errors.New("chatclient: client is closed")
	// ErrNotConnected is returned by Send while no connection is up.
	ErrNotConnected = errors.New("chatclient: not connected")
	// ErrAlreadyConnected is returned by Connect while connected or connecting.
	ErrAlreadyConnected = errors.New("chatclient: already connected or connecting")
)

// ConnectionState represents the current state of the connection.
type ConnectionState int

const (
	Disconnected ConnectionState = iota // Not connected and not attempting to connect
	Connecting                          // Connection attempt in progress
	Connected                           // Successfully connected
	Reconnecting                        // Waiting to redial after a lost connection
	Closed                              // Client has been closed and will not reconnect
)

// String returns a human-readable name for the connection state.
func (cs ConnectionState) String() string {
	switch cs {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Reconnecting:
		return "Reconnecting"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// ConnectionStateEvent is emitted when the connection state changes.
type ConnectionStateEvent struct {
	State     ConnectionState // The new connection state
	Address   string          // The server address
	Timestamp time.Time       // When the state change occurred
	Error     error           // Non-nil if the change was caused by an error
}

// LineEvent carries one line received from the server, without its newline.
type LineEvent struct {
	Line      string
	Timestamp time.Time
}

// ErrorEvent is emitted when a read, write or dial fails. A server closing
// the connection is reported as a state change, not as an error.
type ErrorEvent struct {
	Error     error
	Timestamp time.Time
}

// ConnectionStateHandler is called when the connection state changes.
// Handlers run on the client's own goroutines and must not call Close.
type ConnectionStateHandler func(event ConnectionStateEvent)

// LineHandler is called for every received line, from the read goroutine.
// It must not block for long: the next line is read only after it returns.
type LineHandler func(event LineEvent)

// ErrorHandler is called when an I/O error occurs.
type ErrorHandler func(event ErrorEvent)

// Config holds configuration for the client.
type Config struct {
	// Address is the "host:port" of the relay.
	Address string
	// AutoReconnect redials after the connection is lost. Off by default: the
	// relay keeps no state across connections.
	AutoReconnect bool
	// ReconnectInterval is the delay between reconnection attempts.
	ReconnectInterval time.Duration
	// WriteTimeout bounds one Send; 0 means no timeout.
	WriteTimeout time.Duration
	// ConnectionTimeout bounds one dial.
	ConnectionTimeout time.Duration
	// MaxLineBytes is the longest line accepted from the server.
	MaxLineBytes int
}

// DefaultConfig returns a Config with default values for address.
//
// Parameters:
//   - address: The "host:port" to connect to
//
// Returns:
//   - A Config with ReconnectInterval 5s, WriteTimeout 10s,
//     ConnectionTimeout 10s, MaxLineBytes 64 KiB and AutoReconnect off
func DefaultConfig(address string) Config {
	return Config{
		Address:           address,
		ReconnectInterval: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		ConnectionTimeout: 10 * time.Second,
		MaxLineBytes:      64 * 1024,
	}
}

// Client is a line-oriented relay client. It is safe for concurrent use.
type Client struct {
	config Config
	conn   net.Conn
	state  ConnectionState

	onConnectionState ConnectionStateHandler
	onLine            LineHandler
	onError           ErrorHandler

	mu            sync.RWMutex
	writeMu       sync.Mutex
	stopChan      chan struct{}
	reconnectChan chan struct{}
	wg            sync.WaitGroup
	closed        bool
	supervised    bool
}

// NewClient creates a client in the Disconnected state.
func NewClient(config Config) *Client {
	if config.MaxLineBytes <= 0 {
		config.MaxLineBytes = 64 * 1024
	}

	return &Client{
		config:        config,
		state:         Disconnected,
		stopChan:      make(chan struct{}),
		reconnectChan: make(chan struct{}, 1),
	}
}

// OnConnectionState registers the handler for state changes, replacing any
// previous one. Pass nil to clear it.
func (c *Client) OnConnectionState(handler ConnectionStateHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnectionState = handler
}

// OnLine registers the handler for received lines, replacing any previous
// one. Pass nil to clear it.
func (c *Client) OnLine(handler LineHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onLine = handler
}

// OnError registers the handler for I/O errors, replacing any previous one.
// Pass nil to clear it.
func (c *Client) OnError(handler ErrorHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = handler
}

// Connect dials the relay and starts reading.
//
// Returns:
//   - ErrClosed, ErrAlreadyConnected, or the dial error
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state == Connected || c.state == Connecting {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}

	startSupervisor := c.config.AutoReconnect && !c.supervised
	c.supervised = c.supervised || startSupervisor
	c.mu.Unlock()

	if startSupervisor {
		c.wg.Add(1)
		go c.reconnectHandler()
	}

	return c.connect()
}

// Disconnect closes the current connection. Connect may be called again.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	err := conn.Close()
	c.setState(Disconnected, nil)
	return err
}

// Close shuts the client down for good and waits for its goroutines.
// Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}

	c.closed = true
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	close(c.stopChan)
	c.wg.Wait()

	c.setState(Closed, nil)
	return nil
}

// Send writes line followed by a newline.
//
// Parameters:
//   - line: Text to send; embedded newlines are not allowed
//
// Returns:
//   - ErrClosed, ErrNotConnected, or the write error
func (c *Client) Send(line string) error {
	if strings.ContainsAny(line, "\r\n") {
		return fmt.Errorf("chatclient: line contains a line break")
	}

	c.mu.RLock()
	conn, state, closed := c.conn, c.state, c.closed
	c.mu.RUnlock()

	if closed {
		return ErrClosed
	}
	if state != Connected || conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.config.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)); err != nil {
			return err
		}
	}

	if _, err := io.WriteString(conn, line+"\n"); err != nil {
		c.emitError(err)
		c.triggerReconnect()
		return err
	}

	return nil
}

// GetState returns the current connection state.
func (c *Client) GetState() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsConnected reports whether the client is in the Connected state.
func (c *Client) IsConnected() bool {
	return c.GetState() == Connected
}

func (c *Client) connect() error {
	c.setState(Connecting, nil)

	dialer := net.Dialer{Timeout: c.config.ConnectionTimeout}
	conn, err := dialer.Dial("tcp", c.config.Address)
	if err != nil {
		c.setState(Disconnected, err)
		c.emitError(err)
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	c.conn = conn
	c.mu.Unlock()

	c.setState(Connected, nil)

	c.wg.Add(1)
	go c.readLoop(conn)

	return nil
}

func (c *Client) readLoop(conn net.Conn) {
	defer c.wg.Done()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), c.config.MaxLineBytes)

	for scanner.Scan() {
		c.emitLine(scanner.Text())
	}

	if c.isClosed() {
		return
	}

	err := scanner.Err()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		c.emitError(err)
	}

	c.mu.Lock()
	current := c.conn == conn
	if current {
		c.conn = nil
	}
	c.mu.Unlock()

	// Disconnect already reported the state for a connection it closed.
	if !current {
		return
	}

	_ = conn.Close()
	c.setState(Disconnected, err)
	c.triggerReconnect()
}

func (c *Client) reconnectHandler() {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopChan:
			return
		case <-c.reconnectChan:
		}

		c.setState(Reconnecting, nil)

		select {
		case <-c.stopChan:
			return
		case <-time.After(c.config.ReconnectInterval):
		}

		if c.isClosed() {
			return
		}

		if err := c.connect(); err != nil && !errors.Is(err, ErrClosed) {
			c.triggerReconnect()
		}
	}
}

func (c *Client) triggerReconnect() {
	if !c.config.AutoReconnect || c.isClosed() {
		return
	}

	select {
	case c.reconnectChan <- struct{}{}:
	default:
	}
}

func (c *Client) setState(state ConnectionState, err error) {
	c.mu.Lock()
	c.state = state
	handler := c.onConnectionState
	c.mu.Unlock()

	if handler != nil {
		handler(ConnectionStateEvent{
			State:     state,
			Address:   c.config.Address,
			Timestamp: time.Now(),
			Error:     err,
		})
	}
}

func (c *Client) emitLine(line string) {
	c.mu.RLock()
	handler := c.onLine
	c.mu.RUnlock()

	if handler != nil {
		handler(LineEvent{Line: line, Timestamp: time.Now()})
	}
}

func (c *Client) emitError(err error) {
	c.mu.RLock()
	handler := c.onError
	c.mu.RUnlock()

	if handler != nil {
		handler(ErrorEvent{Error: err, Timestamp: time.Now()})
	}
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
