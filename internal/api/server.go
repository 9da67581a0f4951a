package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"proctorboard/internal/activity"
	"proctorboard/internal/auth"
	"proctorboard/internal/permissions"
	"proctorboard/pkg/interfaces"
	"proctorboard/pkg/types"
)

// StatsProvider reports registry counters for the health endpoint.
// Declared locally to avoid coupling the API layer to the realtime
// package's concrete registry.
type StatsProvider interface {
	Stats() map[string]int
}

// Server is the HTTP surface over the core components. No business logic
// lives here; handlers authorize, delegate, and serialize.
type Server struct {
	store       interfaces.Store
	gate        *permissions.Gate
	recorder    *activity.Recorder
	broadcaster interfaces.Broadcaster
	verifier    *auth.Verifier
	stats       StatsProvider
	validate    *validator.Validate
	router      *http.ServeMux
}

// NewServer wires the API server with its dependencies and routes.
func NewServer(store interfaces.Store, gate *permissions.Gate, recorder *activity.Recorder, broadcaster interfaces.Broadcaster, verifier *auth.Verifier, stats StatsProvider) *Server {
	s := &Server{
		store:       store,
		gate:        gate,
		recorder:    recorder,
		broadcaster: broadcaster,
		verifier:    verifier,
		stats:       stats,
		validate:    validator.New(),
		router:      http.NewServeMux(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	authed := func(h http.HandlerFunc) http.Handler {
		return s.corsMiddleware(s.jsonMiddleware(s.verifier.Middleware(h)))
	}

	s.router.Handle("/api/sessions", authed(s.handleSessions))
	s.router.Handle("/api/sessions/", authed(s.handleSessionSubtree))
	s.router.Handle("/api/rooms/", authed(s.handleRoomByID))
	s.router.Handle("/api/sections/", authed(s.handleSectionByID))
	s.router.Handle("/api/invitations/", authed(s.handleInvitationByID))
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// --- middleware ---

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// --- shared helpers ---

type errorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// sendError maps the error taxonomy onto HTTP statuses.
func (s *Server) sendError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, types.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, types.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, types.ErrNotFound),
		errors.Is(err, interfaces.ErrSessionNotFound),
		errors.Is(err, interfaces.ErrRoomNotFound),
		errors.Is(err, interfaces.ErrSectionNotFound),
		errors.Is(err, interfaces.ErrUserNotFound),
		errors.Is(err, interfaces.ErrInvitationNotFound),
		errors.Is(err, interfaces.ErrInvalidationNotFound):
		status = http.StatusNotFound
	case errors.Is(err, types.ErrConflict),
		errors.Is(err, interfaces.ErrDuplicateInvite),
		errors.Is(err, interfaces.ErrDuplicateMember):
		status = http.StatusConflict
	case types.IsValidation(err):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		log.Printf("Internal error: %v", err)
		s.sendJSON(w, status, errorResponse{Error: "internal server error", Code: status})
		return
	}
	s.sendJSON(w, status, errorResponse{Error: err.Error(), Code: status})
}

// decodeAndValidate parses the request body and runs struct validation.
func (s *Server) decodeAndValidate(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return types.NewValidationError("body", "invalid JSON")
	}
	if err := s.validate.Struct(v); err != nil {
		var invalid validator.ValidationErrors
		if errors.As(err, &invalid) && len(invalid) > 0 {
			return types.NewValidationError(invalid[0].Field(), "failed "+invalid[0].Tag()+" validation")
		}
		return types.NewValidationError("body", "validation failed")
	}
	return nil
}

// authorize resolves the caller's permissions on a session and requires
// the named capability. Called before every state change.
func (s *Server) authorize(r *http.Request, sessionID, capability string) (string, error) {
	userID, ok := auth.UserIDFrom(r.Context())
	if !ok {
		return "", types.ErrUnauthorized
	}
	perms, err := s.gate.Resolve(r.Context(), userID, sessionID)
	if err != nil {
		return "", err
	}
	if err := permissions.Require(perms, capability); err != nil {
		return "", err
	}
	return userID, nil
}

// actingUser loads the display identity for narratives and envelopes.
// A missing user record degrades to "Unknown User" rather than failing
// the mutation.
func (s *Server) actingUser(r *http.Request, userID string) *types.User {
	user, err := s.store.GetUser(r.Context(), userID)
	if err != nil {
		return nil
	}
	return user
}

// --- health ---

type healthResponse struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Database  string         `json:"database"`
	Realtime  map[string]int `json:"realtime,omitempty"`
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Database:  "connected",
	}
	if err := s.store.HealthCheck(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.Database = "unavailable"
	}
	if s.stats != nil {
		resp.Realtime = s.stats.Stats()
	}

	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	s.sendJSON(w, status, resp)
}
