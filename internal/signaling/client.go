package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roomdrop/roomdrop/internal/dns"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	handshakeWait  = 15 * time.Second
)

// ErrClosed is returned by Send after the connection has gone away.
var ErrClosed = errors.New("signaling connection closed")

// Client manages the websocket connection to the relay server.
type Client struct {
	serverURL string
	logger    *slog.Logger

	conn     *websocket.Conn
	incoming chan *Message
	outgoing chan *Message

	done      chan struct{}
	closeOnce sync.Once
	err       error
	errMu     sync.Mutex
}

// NewClient creates a client for the given ws:// or wss:// URL.
func NewClient(serverURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		serverURL: serverURL,
		logger:    logger,
		incoming:  make(chan *Message, 32),
		outgoing:  make(chan *Message, 32),
		done:      make(chan struct{}),
	}
}

// Connect dials the relay and starts the read and write pumps.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeWait,
		Proxy:            websocket.DefaultDialer.Proxy,
		NetDialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			ip, err := dns.Lookup(ctx, host)
			if err != nil {
				return nil, fmt.Errorf("dns lookup failed: %w", err)
			}
			var d net.Dialer
			return d.DialContext(ctx, network, net.JoinHostPort(ip, port))
		},
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	c.conn = conn

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readPump()
	go c.writePump()

	c.logger.Debug("connected to signaling server", "url", u.Redacted())
	return nil
}

func (c *Client) readPump() {
	defer func() {
		c.shutdown(nil)
		close(c.incoming)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.shutdown(err)
			}
			return
		}

		msg, err := Parse(data)
		if err != nil {
			c.logger.Warn("ignoring malformed signaling message", "error", err)
			continue
		}

		select {
		case c.incoming <- msg:
		case <-c.done:
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.shutdown(err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown(err)
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send queues a message for the relay. It is safe for concurrent use.
func (c *Client) Send(msg *Message) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.outgoing <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Join asks the relay to place this client in room.
func (c *Client) Join(room string) error {
	return c.Send(JoinMessage(room))
}

// Signal sends a negotiation message of the given type.
func (c *Client) Signal(msgType string, payload any) error {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		return err
	}
	return c.Send(msg)
}

// Incoming returns the channel of parsed messages from the relay. It is
// closed when the connection ends.
func (c *Client) Incoming() <-chan *Message {
	return c.incoming
}

// Done is closed when the connection has ended for any reason.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that ended the connection, if any.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Close ends the connection. Safe to call more than once.
func (c *Client) Close() {
	c.shutdown(nil)
}

func (c *Client) shutdown(err error) {
	c.closeOnce.Do(func() {
		if err != nil {
			c.errMu.Lock()
			c.err = err
			c.errMu.Unlock()
			c.logger.Debug("signaling connection ended", "error", err)
		}
		close(c.done)
	})
}
