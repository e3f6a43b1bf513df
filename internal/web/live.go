package web

import (
	"context"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	appLog "bellboard/internal/log"
)

const wsWriteTimeout = 5 * time.Second

// handleNow returns the board snapshot for this instant, gate applied.
func (s *Server) handleNow(w http.ResponseWriter, r *http.Request) {
	if s.board == nil {
		writeError(w, http.StatusServiceUnavailable, "board not running")
		return
	}
	writeJSON(w, http.StatusOK, s.board.Now())
}

// handleCountdownWS streams a snapshot on every board tick until the client
// goes away or the board stops.
func (s *Server) handleCountdownWS(w http.ResponseWriter, r *http.Request) {
	if s.board == nil {
		writeError(w, http.StatusServiceUnavailable, "board not running")
		return
	}

	opts := &websocket.AcceptOptions{}
	if len(s.cfg.CORSOrigins) > 0 {
		opts.OriginPatterns = s.cfg.CORSOrigins
	}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		appLog.Error("websocket accept failed", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "")

	snaps, cancel := s.board.Subscribe(4)
	defer cancel()

	// Clients only listen; CloseRead handles their close frame.
	ctx := conn.CloseRead(r.Context())

	if err := writeSnapshot(ctx, conn, s.board.Now()); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case snap, ok := <-snaps:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "board stopped")
				return
			}
			if err := writeSnapshot(ctx, conn, snap); err != nil {
				appLog.Debug("websocket write failed", "err", err.Error())
				return
			}
		}
	}
}

func writeSnapshot(ctx context.Context, conn *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}
