package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"wifirtt/internal/live"
)

const viewerWriteTimeout = 10 * time.Second

// handleViewer upgrades to a WebSocket and attaches the connection to the
// live session until either side closes it.
func (s *Server) handleViewer(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", "err", err)
		return
	}

	q := live.NewQueue(s.cfg.ViewerQueue)
	if err := s.deps.Session.Connect(q); err != nil {
		s.log.Warn("viewer rejected", "err", err)
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()))
		_ = conn.Close()
		return
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range q.C() {
			_ = conn.SetWriteDeadline(time.Now().Add(viewerWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				_ = conn.Close()
				return
			}
		}
	}()

	// Viewers send nothing meaningful; reading detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	_ = s.deps.Session.Disconnect(q)
	q.Close()
	<-writerDone
	_ = conn.Close()
}
