package socket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/VibeMonkeys/mcp-monkeys-sub000/internal/metrics"
	"github.com/VibeMonkeys/mcp-monkeys-sub000/internal/slack"
	"github.com/VibeMonkeys/mcp-monkeys-sub000/pkg/logger"
)

// Conn maintains the socket-mode websocket. It reconnects forever; the only
// way out is context cancellation.
type Conn struct {
	api            slack.API
	reconnectDelay time.Duration

	mu     sync.Mutex
	ws     *websocket.Conn
	frames chan []byte
}

func NewConn(api slack.API, reconnectDelay time.Duration) *Conn {
	if reconnectDelay == 0 {
		reconnectDelay = 5 * time.Second
	}
	return &Conn{
		api:            api,
		reconnectDelay: reconnectDelay,
		frames:         make(chan []byte, 64),
	}
}

// Frames delivers raw inbound frames. The channel closes when Run returns.
func (c *Conn) Frames() <-chan []byte {
	return c.frames
}

// Send writes v as a JSON frame on the current connection.
func (c *Conn) Send(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ws == nil {
		return websocket.ErrCloseSent
	}
	return c.ws.WriteJSON(v)
}

// Run connects and pumps frames until ctx is cancelled. Connection failures
// and dropped sockets trigger a delayed reconnect, never a shutdown.
func (c *Conn) Run(ctx context.Context) {
	defer close(c.frames)

	for {
		if err := c.connectAndPump(ctx); err != nil {
			logger.Warn("Socket connection lost", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.reconnectDelay):
		}

		metrics.SocketReconnects.Inc()
		logger.Info("Reconnecting socket", zap.Duration("delay", c.reconnectDelay))
	}
}

func (c *Conn) connectAndPump(ctx context.Context) error {
	url, err := c.api.OpenSocketConnection(ctx)
	if err != nil {
		return err
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()

	logger.Info("Socket connected")

	defer func() {
		c.mu.Lock()
		c.ws = nil
		c.mu.Unlock()
		ws.Close()
	}()

	// close the socket when ctx ends so ReadMessage unblocks
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			ws.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		select {
		case c.frames <- raw:
		case <-ctx.Done():
			return nil
		}
	}
}
