// Package server exposes the game API over HTTP.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mazeportal/maze-api/internal/auth"
	"github.com/mazeportal/maze-api/internal/domain"
	apperrors "github.com/mazeportal/maze-api/internal/errors"
	"github.com/mazeportal/maze-api/internal/game"
	"github.com/mazeportal/maze-api/internal/health"
	"github.com/mazeportal/maze-api/internal/ratelimit"
	"github.com/mazeportal/maze-api/internal/store"
	"github.com/mazeportal/maze-api/pkg/logger"
)

// GameService is the game controller surface the HTTP layer depends on.
type GameService interface {
	Get(ctx context.Context, tgUser auth.TelegramUser, startParam string) (*game.GetResponse, error)
	Move(ctx context.Context, userID string, pos domain.Position) (*game.MessageResponse, error)
	Pickup(ctx context.Context, userID string) (*game.PickupResponse, error)
	Finish(ctx context.Context, userID string) (*game.FinishResponse, error)
	Update(ctx context.Context, userID string, update store.ProfileUpdate) (*game.MessageResponse, error)
	Referrals(ctx context.Context, userID string) (*game.ReferralsResponse, error)
}

// Server wires the game handlers, health checks and metrics into one mux.
type Server struct {
	svc      GameService
	errs     *apperrors.Handler
	checker  *health.Checker
	limiter  ratelimit.Limiter
	rules    *ratelimit.Rules
	log      *slog.Logger
	botToken string
	validate *validator.Validate
}

// NewServer constructs the HTTP server component. The limiter and checker
// are optional; a nil limiter disables rate limiting.
func NewServer(
	svc GameService,
	errs *apperrors.Handler,
	checker *health.Checker,
	limiter ratelimit.Limiter,
	rules *ratelimit.Rules,
	log *slog.Logger,
	botToken string,
) *Server {
	if log == nil {
		log = slog.Default()
	}

	return &Server{
		svc:      svc,
		errs:     errs,
		checker:  checker,
		limiter:  limiter,
		rules:    rules,
		log:      log,
		botToken: botToken,
		validate: validator.New(),
	}
}

// Routes builds the handler tree with the middleware chain applied.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/game", s.handleGame)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	var handler http.Handler = mux
	handler = requestLogging(s.log)(handler)
	handler = logger.Middleware(handler)
	handler = recoverPanics(s.log)(handler)

	return handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.checker == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
		return
	}

	results, healthy := s.checker.Check(r.Context())
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, results)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
