package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"nhooyr.io/websocket"
)

// BatchEvent is the payload broadcast to /ratings/stream subscribers each
// time LiveUpdater commits a batch with at least one rating_main change.
type BatchEvent struct {
	BatchID   string    `json:"batch_id"`
	Changed   int       `json:"changed"`
	Timestamp time.Time `json:"timestamp"`
}

// Broadcast pushes a BatchEvent to every connected /ratings/stream
// subscriber, dropping it for any subscriber whose channel is currently full
// rather than blocking the caller. Satisfies liveupdater.Broadcaster.
func (s *Server) Broadcast(batchID string, changed int) {
	if changed <= 0 {
		return
	}
	event := BatchEvent{BatchID: batchID, Changed: changed, Timestamp: time.Now().UTC()}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	s.subscribersMu.Lock()
	defer s.subscribersMu.Unlock()
	for ch := range s.subscribers {
		select {
		case ch <- payload:
		default:
		}
	}
}

// handleStream implements the supplementary GET /ratings/stream websocket:
// additive dashboard UX sugar, never a substitute for the REST endpoints.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "closing")

	ch := make(chan []byte, 8)
	s.subscribersMu.Lock()
	s.subscribers[ch] = struct{}{}
	s.subscribersMu.Unlock()
	defer func() {
		s.subscribersMu.Lock()
		delete(s.subscribers, ch)
		s.subscribersMu.Unlock()
	}()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-ch:
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
