package httpserver

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"AngelLink/internal/engine"
	"AngelLink/internal/linking"
	"AngelLink/internal/model"
	"AngelLink/internal/notifier"
	"AngelLink/internal/remote"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// Linker starts attempts and accepts popup messages.
type Linker interface {
	StartLinking(ctx context.Context) error
	HandleMessage(ctx context.Context, msg model.LinkMessage) (bool, error)
}

// Accounts exposes the current account snapshot.
type Accounts interface {
	Current() (model.Snapshot, bool)
	Funds() decimal.Decimal
}

// Engine exposes the engine control.
type Engine interface {
	State() model.EngineState
	Toggle(ctx context.Context) (model.Guidance, error)
}

// Server is the desk's local HTTP surface: the popup callback, the dashboard
// socket and a small JSON API.
type Server struct {
	linker   Linker
	accounts Accounts
	engine   Engine
	hub      *notifier.Hub
	origin   string

	// callbackOrigin is where the login popup's final page is served from.
	callbackOrigin string

	// callbackTimeout bounds the backend work a popup message triggers.
	callbackTimeout time.Duration
	run             func(func())
}

func New(linker Linker, accounts Accounts, eng Engine, hub *notifier.Hub, allowedOrigin string) *Server {
	return &Server{
		linker:          linker,
		accounts:        accounts,
		engine:          eng,
		hub:             hub,
		origin:          allowedOrigin,
		callbackTimeout: 30 * time.Second,
		run:             func(f func()) { go f() },
	}
}

// AcceptCallbacksFrom additionally admits popup messages posted from origin.
func (s *Server) AcceptCallbacksFrom(origin string) *Server {
	s.callbackOrigin = origin
	return s
}

func (s *Server) dashboardAllowed(r *http.Request) bool {
	return allowOrigin(r, s.origin)
}

// callbackAllowed admits the dashboard origin and the popup's origin.
func (s *Server) callbackAllowed(r *http.Request) bool {
	if allowOrigin(r, s.origin) {
		return true
	}
	return s.callbackOrigin != "" && allowOrigin(r, s.callbackOrigin)
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(securityHeaders)
	r.Use(cors(s.callbackAllowed))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.With(guardWrites(s.callbackAllowed)).Post("/callback/angel", s.handleCallbackPost)
	r.Get("/callback/angel", s.handleCallbackGet)

	r.Route("/api", func(api chi.Router) {
		api.Use(guardWrites(s.dashboardAllowed))
		api.Get("/state", s.handleState)
		api.Post("/link", s.handleLink)
		api.Post("/engine/toggle", s.handleToggle)
	})

	if s.hub != nil {
		r.Get("/ws", s.handleWS)
	}
	return r
}

type stateResponse struct {
	Ready    bool              `json:"ready"`
	Snapshot *model.Snapshot   `json:"snapshot,omitempty"`
	Display  *model.Display    `json:"display,omitempty"`
	Engine   model.EngineState `json:"engine"`
	Funds    string            `json:"funds"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	resp := stateResponse{
		Engine: s.engine.State(),
		Funds:  s.accounts.Funds().StringFixed(2),
	}
	if snap, ok := s.accounts.Current(); ok {
		display := notifier.FormatDisplay(snap)
		resp.Ready = true
		resp.Snapshot = &snap
		resp.Display = &display
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	err := s.linker.StartLinking(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "waiting"})
	case errors.Is(err, linking.ErrPopupBlocked):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, remote.ErrSessionExpired):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: remote.UserMessage(err, "could not start linking")})
	}
}

type toggleResponse struct {
	Guidance model.Guidance    `json:"guidance"`
	Engine   model.EngineState `json:"engine"`
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	guidance, err := s.engine.Toggle(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, toggleResponse{Guidance: guidance, Engine: s.engine.State()})
	case errors.Is(err, engine.ErrToggleInProgress):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, remote.ErrSessionExpired):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
	default:
		log.Printf("[WARN] engine toggle: %v", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: remote.UserMessage(err, "engine toggle failed")})
	}
}
