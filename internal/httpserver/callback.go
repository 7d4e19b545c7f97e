package httpserver

import (
	"context"
	"log"
	"net/http"
	"strconv"

	"AngelLink/internal/model"
)

const closePage = `<!doctype html>
<html><head><meta charset="utf-8"><title>Angel login</title></head>
<body><p>Angel login received. You can close this window.</p>
<script>window.close()</script></body></html>`

// handleCallbackPost accepts the message the login popup posts back.
func (s *Server) handleCallbackPost(w http.ResponseWriter, r *http.Request) {
	var msg model.LinkMessage
	if err := readJSON(r, &msg); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	s.dispatch(msg)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "received"})
}

// handleCallbackGet is the redirect target of the login page. The result
// travels in the query string.
func (s *Server) handleCallbackGet(w http.ResponseWriter, r *http.Request) {
	if !navigationAllowed(r, s.callbackAllowed) {
		log.Printf("[WARN] rejected link callback from %q", r.Referer())
		http.Error(w, "callback not allowed", http.StatusForbidden)
		return
	}
	msg := messageFromQuery(r)
	s.dispatch(msg)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(closePage))
}

// dispatch hands msg to the linker off the request goroutine; the popup does
// not wait for the backend completion.
func (s *Server) dispatch(msg model.LinkMessage) {
	s.run(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.callbackTimeout)
		defer cancel()
		if _, err := s.linker.HandleMessage(ctx, msg); err != nil {
			log.Printf("[WARN] link callback: %v", err)
		}
	})
}

func messageFromQuery(r *http.Request) model.LinkMessage {
	q := r.URL.Query()
	provider := q.Get("provider")
	if provider == "" {
		provider = model.ProviderAngel
	}
	ok := true
	if v := q.Get("ok"); v != "" {
		ok, _ = strconv.ParseBool(v)
	}
	tokens := &model.Tokens{
		AuthToken:    q.Get("authToken"),
		RequestToken: q.Get("requestToken"),
		FeedToken:    q.Get("feedToken"),
		RefreshToken: q.Get("refreshToken"),
		TokenID:      q.Get("tokenId"),
	}
	tokens.Completed, _ = strconv.ParseBool(q.Get("completed"))
	if tokens.Empty() {
		tokens = nil
	}
	return model.LinkMessage{
		Provider: provider,
		OK:       ok,
		Message:  q.Get("message"),
		Tokens:   tokens,
	}
}
