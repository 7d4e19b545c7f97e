package httpserver

import (
	"log"
	"net/http"

	"AngelLink/internal/notifier"

	"github.com/gorilla/websocket"
)

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return s.dashboardAllowed(r)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WARN] ws upgrade: %v", err)
		return
	}
	defer conn.Close()

	sub := s.hub.Subscribe()
	defer s.hub.Unsubscribe(sub)

	// Greet with the current state so a fresh dashboard does not wait for the
	// next refresh.
	if snap, ok := s.accounts.Current(); ok {
		if err := conn.WriteJSON(notifier.Event{Type: notifier.EventAccount, Data: notifier.FormatDisplay(snap)}); err != nil {
			return
		}
	}
	if err := conn.WriteJSON(notifier.Event{Type: notifier.EventEngine, Data: s.engine.State()}); err != nil {
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case evt, ok := <-sub:
			if !ok {
				return
			}
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
