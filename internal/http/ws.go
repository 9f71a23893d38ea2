package http

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roelfdiedericks/voxnote/internal/bus"
	. "github.com/roelfdiedericks/voxnote/internal/logging"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsSendBuffer = 64
	wsMaxMessage = 512
)

// handleWebSocket handles GET /api/ws. The stream opens with one event per
// active operation, then forwards every operation change. Clients that fall
// behind lose events rather than stall the bus.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		L_debug("http: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	send := make(chan bus.Event, wsSendBuffer)
	subID := s.bus.Subscribe(bus.TopicOperationChanged, func(ev bus.Event) {
		select {
		case send <- ev:
		default:
			L_warn("http: websocket client slow, dropping event", "seq", ev.Seq)
		}
	})
	defer s.bus.Unsubscribe(subID)

	L_debug("http: websocket connected", "client", clientIP(r))

	for _, snap := range s.ops.Active() {
		ev := bus.Event{Topic: bus.TopicOperationChanged, Data: snap, Timestamp: time.Now(), Source: "http"}
		if err := writeEvent(conn, ev); err != nil {
			return
		}
	}

	closed := make(chan struct{})
	go readPump(conn, closed)

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev := <-send:
			if err := writeEvent(conn, ev); err != nil {
				L_debug("http: websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			L_debug("http: websocket disconnected", "client", clientIP(r))
			return
		case <-s.shutdownChan:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(wsWriteWait))
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, ev bus.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(ev)
}

// readPump discards client messages and closes done when the peer goes away.
func readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(wsMaxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
