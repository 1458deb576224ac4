package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hailam/endgamelab/internal/tablebase"
	"github.com/hailam/endgamelab/internal/trainer"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The board page is served from elsewhere during development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsEvent struct {
	State  string                `json:"state"`
	FEN    string                `json:"fen"`
	Epoch  uint64                `json:"epoch"`
	Record *tablebase.Evaluation `json:"record,omitempty"`
	Error  string                `json:"error,omitempty"`
}

func encodeEvent(ev trainer.Event) []byte {
	out := wsEvent{
		State:  ev.State.String(),
		FEN:    ev.FEN,
		Epoch:  ev.Epoch,
		Record: ev.Record,
	}
	if ev.Err != nil {
		out.Error = ev.Err.Error()
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil
	}
	return data
}

// handleSessionWS streams a session's orchestrator events to the board
// layer, with periodic pings so intermediaries keep the connection alive.
func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	_, session, ok := s.session(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debugf("websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	// Reader only notices the peer going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case ev := <-session.Events():
			data := encodeEvent(ev)
			if data == nil {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
