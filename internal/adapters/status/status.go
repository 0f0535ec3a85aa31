// Package status streams connector and engine status over a websocket.
package status

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

// Source returns the value pushed to clients; it must be JSON encodable.
type Source func() any

type StatusWSController struct {
	Source    Source
	Period    time.Duration
	ReadLimit int64
}

func NewStatusWSController(src Source, period time.Duration, readLimit int64) *StatusWSController {
	if period <= 0 {
		period = 2 * time.Second
	}
	return &StatusWSController{Source: src, Period: period, ReadLimit: readLimit}
}

type wsStatusConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func (c *wsStatusConn) TrySend(b []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- b:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsStatusConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *StatusWSController) HandleStatus(ctx context.Context, c *gin.Context) {
	client := c.GetString("client_token")
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "status").Msg("ws upgrade")
		return
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}
	log.Info().Str("module", "status").Str("client", client).Msg("new WS connection")

	conn := &wsStatusConn{
		conn: ws,
		send: make(chan []byte, 16),
	}
	ctx, cancel := context.WithCancel(ctx)

	ctl.sendStatus(conn)
	go ctl.writePump(ctx, cancel, conn)
	go ctl.readPump(ctx, cancel, client, conn)
}
