package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/mazeportal/maze-api/internal/auth"
	"github.com/mazeportal/maze-api/internal/domain"
	"github.com/mazeportal/maze-api/internal/game"
	"github.com/mazeportal/maze-api/internal/store"
	"github.com/mazeportal/maze-api/pkg/metrics"
)

// gameRequest is the single envelope every game action arrives in.
type gameRequest struct {
	InitData string      `json:"initData" validate:"required"`
	Action   string      `json:"action" validate:"omitempty,oneof=get move pickup finish update ref"`
	Position *position   `json:"position"`
	Update   *updateData `json:"updateData"`
}

type position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// updateData enumerates the only profile fields a client may change.
type updateData struct {
	TonAddress   *string `json:"tonAddress"`
	FirstName    *string `json:"firstName"`
	LastName     *string `json:"lastName"`
	Username     *string `json:"username"`
	PhotoURL     *string `json:"photoUrl"`
	LanguageCode *string `json:"languageCode"`
}

func (s *Server) handleGame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req gameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	initData, ok := auth.Validate(req.InitData, s.botToken)
	if !ok {
		writeError(w, http.StatusForbidden, "Invalid Telegram data")
		return
	}

	userID := initData.User.UserID()
	if !s.allow(r, userID) {
		writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
		return
	}

	action := req.Action
	if action == "" {
		action = "get"
	}

	start := time.Now()
	body, err := s.dispatch(r, action, initData, req)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordAction(action, status, time.Since(start))

	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, body)
}

func (s *Server) dispatch(r *http.Request, action string, initData *auth.InitData, req gameRequest) (any, error) {
	ctx := r.Context()
	userID := initData.User.UserID()

	switch action {
	case "get":
		return s.svc.Get(ctx, initData.User, initData.StartParam)
	case "move":
		if req.Position == nil {
			return nil, errInvalidPosition
		}
		pos := domain.Position{X: req.Position.X, Y: req.Position.Y}
		return s.svc.Move(ctx, userID, pos)
	case "pickup":
		return s.svc.Pickup(ctx, userID)
	case "finish":
		return s.svc.Finish(ctx, userID)
	case "update":
		return s.svc.Update(ctx, userID, profileUpdate(req.Update))
	case "ref":
		return s.svc.Referrals(ctx, userID)
	default:
		return nil, errUnknownAction
	}
}

var (
	errInvalidPosition = errors.New("invalid position")
	errUnknownAction   = errors.New("unknown action")
)

func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errInvalidPosition):
		writeError(w, http.StatusBadRequest, "Invalid position")
		return
	case errors.Is(err, errUnknownAction):
		writeError(w, http.StatusBadRequest, "Unknown action")
		return
	}

	var blocked *game.BlockedError
	if errors.As(err, &blocked) {
		writeJSON(w, http.StatusForbidden, map[string]any{
			"error":         "User is blocked",
			"remainingTime": blocked.RemainingTime,
		})
		return
	}

	message, status := s.errs.Handle(r.Context(), err)
	if status >= http.StatusInternalServerError {
		s.log.Error("game action failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
	}

	writeError(w, status, message)
}

// allow applies the per-user sliding-window limit. Limiter failures never
// reject traffic.
func (s *Server) allow(r *http.Request, userID string) bool {
	if s.limiter == nil || s.rules == nil || !s.rules.Enabled() {
		return true
	}
	if s.rules.IsWhitelisted(userID) {
		return true
	}

	limit, window := s.rules.PerUserLimit()
	result, err := s.limiter.Check(r.Context(), "user:"+userID, limit, window)
	if err != nil {
		s.log.Warn("rate limiter error",
			slog.String("user_id", userID),
			slog.Any("error", err))
		return true
	}

	return result.Allowed
}

func profileUpdate(u *updateData) store.ProfileUpdate {
	if u == nil {
		return store.ProfileUpdate{}
	}

	return store.ProfileUpdate{
		TonAddress:   u.TonAddress,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Username:     u.Username,
		PhotoURL:     u.PhotoURL,
		LanguageCode: u.LanguageCode,
	}
}
