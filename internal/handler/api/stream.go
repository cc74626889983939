package api

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	models "QuotaGame/internal/domain/models"
	xlogger "QuotaGame/pkg/logger"
)

const (
	streamWriteTimeout = 5 * time.Second
	streamPongWait     = 60 * time.Second
	streamPingEvery    = 50 * time.Second
	streamMaxMessage   = 4096
)

// streamFrame is one server-to-client message. Kind is "snapshot" or "error".
type streamFrame struct {
	Kind     string           `json:"kind"`
	Snapshot *models.Snapshot `json:"snapshot,omitempty"`
	Error    interface{}      `json:"error,omitempty"`
}

// Stream pushes snapshots at a fixed interval and applies commands sent by the client.
func (h *GameHandler) Stream(c echo.Context) error {
	req := &models.SeriesRequest{}
	if err := echo.QueryParamsBinder(c).Int("n", &req.N).BindError(); err != nil || req.N <= 0 {
		req.N = 200
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("stream upgrade failed", xlogger.Error(err))
		return nil
	}
	defer conn.Close()

	ctx := c.Request().Context()
	errs := make(chan interface{}, 8)
	done := make(chan struct{})

	go func() {
		defer close(done)
		conn.SetReadLimit(streamMaxMessage)
		_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamPongWait))
		})
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var cmd models.Command
			if err := json.Unmarshal(data, &cmd); err != nil {
				pushError(errs, map[string]string{"code": "ERR_BAD_REQUEST", "message": "malformed command"})
				continue
			}
			if err := h.session.Apply(ctx, cmd); err != nil {
				pushError(errs, toAppError(err))
			}
		}
	}()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	ping := time.NewTicker(streamPingEvery)
	defer ping.Stop()

	write := func(v interface{}) error {
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		return conn.WriteJSON(v)
	}

	for {
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return nil
		case e := <-errs:
			if err := write(streamFrame{Kind: "error", Error: e}); err != nil {
				return nil
			}
		case <-ticker.C:
			snap := h.session.Snapshot(req.N)
			if err := write(streamFrame{Kind: "snapshot", Snapshot: &snap}); err != nil {
				h.logger.Debug("stream closed", xlogger.Error(err))
				return nil
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		}
	}
}

func pushError(ch chan<- interface{}, e interface{}) {
	select {
	case ch <- e:
	default:
	}
}
