package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"itinerary/internal/builder"
	"itinerary/internal/metrics"
)

// Session websocket: the server pushes "state" messages after every change
// and accepts "reorder" and "ping" messages from the client.

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type wsReorderPayload struct {
	DayIndex int    `json:"dayIndex" validate:"gte=0"`
	ActiveID string `json:"activeId" validate:"required"`
	OverID   string `json:"overId" validate:"required"`
}

// SessionWSHandler handles /v1/sessions/{id}/ws
func (s *Server) SessionWSHandler(w http.ResponseWriter, r *http.Request, sess *Session) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })

	// gorilla connections allow one concurrent writer
	var wmu sync.Mutex
	write := func(v any) error {
		wmu.Lock()
		defer wmu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(v)
	}
	send := func(typ string, v any) error {
		payload, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return write(wsMessage{Type: typ, Payload: payload})
	}

	ch := s.Broker.Subscribe(sess.ID)
	defer s.Broker.Unsubscribe(sess.ID, ch)

	var initial sessionView
	sess.Do(func(b *builder.Store) { initial = viewOf(sess, b) })
	if err := send("state", initial); err != nil {
		return
	}

	// Fanout and keepalive
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(20 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				if err := send("state", evt.Data); err != nil {
					return
				}
			case <-ticker.C:
				wmu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				wmu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		switch msg.Type {
		case "ping":
			_ = write(wsMessage{Type: "pong"})
		case "reorder":
			var pl wsReorderPayload
			if err := json.Unmarshal(msg.Payload, &pl); err != nil {
				_ = send("error", map[string]string{"message": "invalid payload"})
				continue
			}
			if err := validateStruct(pl); err != nil {
				_ = send("error", map[string]string{"message": err.Error()})
				continue
			}
			// The resulting change reaches this connection through the broker.
			sess.Do(func(b *builder.Store) { b.ReorderEvents(pl.DayIndex, pl.ActiveID, pl.OverID) })
			metrics.BuilderMutations.WithLabelValues("reorderEvents").Inc()
		default:
			s.Log.Debug("ignoring websocket message", zap.String("type", msg.Type), zap.String("sessionId", sess.ID))
		}
	}
}
