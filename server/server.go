// Package server exposes the webhook surface consumed by the telephony
// platform: the turn loop endpoints, the lifecycle callback, health and
// metrics.
package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/parleylabs/parley/lifecycle"
	"github.com/parleylabs/parley/logger"
	"github.com/parleylabs/parley/metrics"
	"github.com/parleylabs/parley/persona"
	"github.com/parleylabs/parley/telephony"
	"github.com/parleylabs/parley/turn"
)

// Server wires the webhook handlers over the turn engine and lifecycle
// dispatcher.
type Server struct {
	engine     *turn.Engine
	dispatcher *lifecycle.Dispatcher
	validator  *telephony.Validator
	health     *HealthChecker
}

// New creates a webhook server.
func New(engine *turn.Engine, dispatcher *lifecycle.Dispatcher, validator *telephony.Validator, health *HealthChecker) *Server {
	return &Server{
		engine:     engine,
		dispatcher: dispatcher,
		validator:  validator,
		health:     health,
	}
}

// Router builds the HTTP handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)

	r.Route("/webhooks", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Post("/turn/start", s.handleStart)
		r.Post("/turn/listen", s.handleListen)
		r.Post("/turn/respond", s.handleRespond)
		r.Post("/lifecycle", s.handleLifecycle)
	})

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	return otelhttp.NewHandler(r, "parley")
}

// authenticate rejects callbacks that fail signature validation before any
// handler side effect runs.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.validator.ValidateRequest(r); err != nil {
			logger.Warn("rejected unauthenticated callback",
				"path", r.URL.Path, "error", err)
			writeJSON(w, http.StatusForbidden, map[string]string{
				"error": "signature validation failed",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// turnInput reads the loop parameters from the merged query and form values.
// ParseForm is idempotent; validation usually parsed the form already.
func turnInput(r *http.Request) turn.Input {
	_ = r.ParseForm()
	return turn.Input{
		Role:         r.Form.Get("role"),
		Persona:      r.Form.Get("persona"),
		ConferenceID: r.Form.Get("conferenceId"),
	}
}

// handleStart begins the turn loop for one participant. Only the agent
// enters with the first-turn flag set: it opens the conversation.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	in := turnInput(r)
	in.IsFirstTurn = in.Role == persona.RoleAgent

	instr := s.engine.Step(r.Context(), in)
	writeJSON(w, http.StatusOK, instr)
}

// handleListen emits an introduction or a listen instruction.
func (s *Server) handleListen(w http.ResponseWriter, r *http.Request) {
	in := turnInput(r)
	in.IsFirstTurn, _ = strconv.ParseBool(r.Form.Get("isFirstTurn"))

	instr := s.engine.Step(r.Context(), in)
	writeJSON(w, http.StatusOK, instr)
}

// handleRespond produces the reply for captured speech.
func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request) {
	in := turnInput(r)
	in.CapturedSpeech = r.Form.Get("SpeechResult")
	if in.CapturedSpeech == "" {
		in.CapturedSpeech = r.Form.Get("capturedSpeech")
	}

	instr := s.engine.Step(r.Context(), in)
	writeJSON(w, http.StatusOK, instr)
}

// handleLifecycle classifies and dispatches a status callback. The response
// is always a success acknowledgment.
func (s *Server) handleLifecycle(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	ev := lifecycle.Classify(r.Form)
	ack := s.dispatcher.Dispatch(r.Context(), ev)
	writeJSON(w, http.StatusOK, ack)
}

// handleHealth reports aggregate dependency status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status == StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to write response", "error", err)
	}
}
