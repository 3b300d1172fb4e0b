package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/foldlink/foldlink/internal/foldmsg"
	"github.com/foldlink/foldlink/internal/wire"
)

const (
	channelSize  = 256 // large enough for watcher event bursts
	pingPeriod   = 15 * time.Second
	pingTimeout  = 5 * time.Second
	writeTimeout = 5 * time.Second
)

var (
	ErrNotConnected = errors.New("relay not connected")
	ErrSendBusy     = errors.New("relay send buffer full")
)

// Client is the link to the paired peer. It implements the sync subsystem's
// Transport: Send is fire-and-forget, inbound packets are handed to the
// OnMessage callback from the read loop.
type Client struct {
	url       string
	encoding  wire.Encoding
	conn      *websocket.Conn
	msgTx     chan *foldmsg.Message
	onMessage func(*foldmsg.Message)
	closing   chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	mu        sync.Mutex
}

func New(url string, enc wire.Encoding) *Client {
	return &Client{
		url:      url,
		encoding: enc,
		msgTx:    make(chan *foldmsg.Message, channelSize),
		closing:  make(chan struct{}),
		closed:   make(chan struct{}),
	}
}

// OnMessage sets the inbound packet handler. Must be called before Connect.
func (c *Client) OnMessage(fn func(*foldmsg.Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = fn
}

// Connect dials the peer and starts the read and write loops.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("relay dial %s: %w", c.url, err)
	}
	conn.SetReadLimit(wire.MaxFrameSize)
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.wg.Add(2)
	go c.readLoop(ctx)
	go c.writeLoop(ctx)

	slog.Info("relay connected", "url", c.url, "encoding", c.encoding)
	return nil
}

// Send queues one message for the peer. It never blocks: a full buffer is an
// error, backpressure belongs to this layer and not to the sync engine.
func (c *Client) Send(msg *foldmsg.Message) error {
	select {
	case <-c.closing:
		return ErrNotConnected
	default:
	}

	select {
	case c.msgTx <- msg:
		return nil
	default:
		return ErrSendBusy
	}
}

func (c *Client) Close() {
	c.closeConnection(websocket.StatusNormalClosure, "shutdown")
	c.wg.Wait()
}

func (c *Client) closeConnection(status websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		close(c.closing)
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn != nil {
			conn.Close(status, reason)
		}
		close(c.closed)
	})
}

func (c *Client) readLoop(ctx context.Context) {
	defer func() {
		slog.Debug("relay reader shutdown")
		c.wg.Done()
		c.closeConnection(websocket.StatusNormalClosure, "shutdown")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closing:
			return
		default:
		}

		typ, raw, err := c.conn.Read(ctx)
		if err != nil {
			if !isExpectedCloseError(err) {
				slog.Warn("relay RECV", "error", err)
			}
			return
		}

		msg, _, err := wire.Unmarshal(typ, raw)
		if err != nil {
			slog.Warn("relay RECV decode", "error", err)
			continue
		}

		c.mu.Lock()
		handler := c.onMessage
		c.mu.Unlock()
		if handler != nil {
			handler(msg)
		}
	}
}

func (c *Client) writeLoop(ctx context.Context) {
	pingTicker := time.NewTicker(pingPeriod)
	defer func() {
		slog.Debug("relay writer shutdown")
		pingTicker.Stop()
		c.wg.Done()
		c.closeConnection(websocket.StatusNormalClosure, "shutdown")
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case <-c.closing:
			return

		case msg, ok := <-c.msgTx:
			if !ok {
				return
			}
			if err := c.write(ctx, msg); err != nil {
				slog.Warn("relay SEND", "id", msg.Id, "type", msg.Type, "error", err)
				return
			}

		case <-pingTicker.C:
			pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				slog.Warn("relay ping failed", "error", err)
				return
			}
		}
	}
}

func (c *Client) write(ctx context.Context, msg *foldmsg.Message) error {
	typ, data, err := wire.Marshal(msg, c.encoding)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.conn.Write(writeCtx, typ, data)
}

func isExpectedCloseError(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	default:
		return false
	}
}
