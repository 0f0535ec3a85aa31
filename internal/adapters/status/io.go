package status

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// writePump owns the connection: when it returns, the socket is closed and the
// read side unblocks.
func (ctl *StatusWSController) writePump(ctx context.Context, cancel context.CancelFunc, c *wsStatusConn) {
	ticker := time.NewTicker(ctl.Period)
	defer func() {
		ticker.Stop()
		cancel()
		c.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "status").Msg("writePump ctx done")
			return
		case <-ticker.C:
			ctl.sendStatus(c)
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "status").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "status").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *StatusWSController) readPump(ctx context.Context, cancel context.CancelFunc, client string, c *wsStatusConn) {
	defer func() {
		log.Info().Str("module", "status").Str("client", client).Msg("readPump closing")
		cancel()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Warn().Err(err).Str("module", "status").Str("client", client).Msg("readPump read error")
				}
				return
			}
			ctl.handleMessage(c, data)
		}
	}
}

func (ctl *StatusWSController) handleMessage(c *wsStatusConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "status").Msg("bad json")
		ctl.sendJSON(c, map[string]any{"type": "error", "error": "bad_payload"})
		return
	}

	switch env.Type {
	case "ping":
		ctl.sendJSON(c, map[string]string{"type": "pong"})
	case "status":
		ctl.sendStatus(c)
	default:
		log.Warn().Str("module", "status").Str("type", env.Type).Msg("unknown message")
		ctl.sendJSON(c, map[string]any{"type": "error", "error": "unknown_type"})
	}
}

func (ctl *StatusWSController) sendStatus(c *wsStatusConn) {
	ctl.sendJSON(c, ctl.Source())
}

func (ctl *StatusWSController) sendJSON(c *wsStatusConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "status").Msg("sendJSON marshal")
		return
	}
	if err := c.TrySend(b); err != nil {
		log.Debug().Err(err).Str("module", "status").Msg("status frame dropped")
	}
}
