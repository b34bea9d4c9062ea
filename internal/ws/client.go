package ws

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fathima-sithara/libamarket/internal/domain"
	"github.com/gofiber/websocket/v2"
)

var (
	ErrSendBufferFull = errors.New("send buffer full")
	ErrClosed         = errors.New("connection closed")
)

type State int32

const (
	StateConnecting State = iota
	StateIdentified
	StateActive
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateIdentified:
		return "identified"
	case StateActive:
		return "active"
	default:
		return "disconnected"
	}
}

// Socket is the part of *websocket.Conn the pumps need.
type Socket interface {
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

type Client struct {
	id     string
	userID string
	sock   Socket
	opts   Options
	state  atomic.Int32

	mu     sync.Mutex
	closed bool
	send   chan []byte
}

func newClient(id, userID string, sock Socket, opts Options) *Client {
	return &Client{id: id, userID: userID, sock: sock, opts: opts, send: make(chan []byte, opts.SendBuffer)}
}

func (c *Client) ID() string     { return c.id }
func (c *Client) UserID() string { return c.userID }
func (c *Client) State() State   { return State(c.state.Load()) }

func (c *Client) setState(s State) { c.state.Store(int32(s)) }

// Deliver queues ev for the write pump and never blocks.
func (c *Client) Deliver(ev domain.Event) error {
	b, err := Encode(ev)
	if err != nil {
		return err
	}
	return c.enqueue(b)
}

func (c *Client) enqueue(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- b:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
}

// readPump only drains the socket; clients have nothing to send besides
// control frames. It returns when the connection fails or closes.
func (c *Client) readPump() {
	c.sock.SetReadLimit(c.opts.MaxMessageSize)
	_ = c.sock.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.sock.SetPongHandler(func(string) error {
		return c.sock.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})
	for {
		if _, _, err := c.sock.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.sock.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.sock.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
				return
			}
			_ = c.sock.SetWriteDeadline(time.Now().Add(c.opts.WriteDeadline))
			if err := c.sock.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.sock.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteDeadline)); err != nil {
				return
			}
		}
	}
}
