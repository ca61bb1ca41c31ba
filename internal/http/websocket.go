package http

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	applog "valuta/internal/log"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10
)

// handleWebSocket streams a state view for every snapshot. Clients only
// receive; anything they send besides control frames is discarded.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		s.logger.WarnContext(r.Context(), "Websocket upgrade failed", applog.FieldError, err.Error())
		return
	}
	defer conn.Close()

	logger := applog.FromContext(r.Context()).WithComponent(applog.ComponentWebSocket)
	snapshots, cancel := s.engine.Subscribe()
	defer cancel()
	logger.Debug("Websocket client connected")

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			logger.Debug("Websocket client disconnected")
			return
		case snap, ok := <-snapshots:
			if !ok {
				msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(newStateView(snap)); err != nil {
				logger.Debug("Websocket write failed", applog.FieldError, err.Error())
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
