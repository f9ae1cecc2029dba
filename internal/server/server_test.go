package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mazeportal/maze-api/internal/auth"
	"github.com/mazeportal/maze-api/internal/domain"
	apperrors "github.com/mazeportal/maze-api/internal/errors"
	"github.com/mazeportal/maze-api/internal/game"
	"github.com/mazeportal/maze-api/internal/ratelimit"
	"github.com/mazeportal/maze-api/internal/store"
	"github.com/mazeportal/maze-api/pkg/config"
)

const testToken = "12345:test-token"

// stubService satisfies GameService with canned responses per action.
type stubService struct {
	get       *game.GetResponse
	getErr    error
	move      *game.MessageResponse
	moveErr   error
	pickupErr error
	finishErr error

	lastMovePos    domain.Position
	lastStartParam string
	lastUpdate     store.ProfileUpdate
}

func (s *stubService) Get(_ context.Context, _ auth.TelegramUser, startParam string) (*game.GetResponse, error) {
	s.lastStartParam = startParam
	return s.get, s.getErr
}

func (s *stubService) Move(_ context.Context, _ string, pos domain.Position) (*game.MessageResponse, error) {
	s.lastMovePos = pos
	if s.moveErr != nil {
		return nil, s.moveErr
	}
	if s.move != nil {
		return s.move, nil
	}
	return &game.MessageResponse{Message: "Position updated"}, nil
}

func (s *stubService) Pickup(context.Context, string) (*game.PickupResponse, error) {
	if s.pickupErr != nil {
		return nil, s.pickupErr
	}
	return &game.PickupResponse{Message: "Item picked"}, nil
}

func (s *stubService) Finish(context.Context, string) (*game.FinishResponse, error) {
	if s.finishErr != nil {
		return nil, s.finishErr
	}
	return &game.FinishResponse{Message: "Maze completed", NewScore: 12}, nil
}

func (s *stubService) Update(_ context.Context, _ string, update store.ProfileUpdate) (*game.MessageResponse, error) {
	s.lastUpdate = update
	return &game.MessageResponse{Message: "User updated"}, nil
}

func (s *stubService) Referrals(context.Context, string) (*game.ReferralsResponse, error) {
	return &game.ReferralsResponse{Referrals: []domain.Referral{}}, nil
}

func signInitData(t *testing.T, token string, fields map[string]string) string {
	t.Helper()

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+fields[k])
	}

	mac := hmac.New(sha256.New, []byte("WebAppData"))
	mac.Write([]byte(token))
	secret := mac.Sum(nil)

	mac = hmac.New(sha256.New, secret)
	mac.Write([]byte(strings.Join(pairs, "\n")))
	hash := hex.EncodeToString(mac.Sum(nil))

	query := url.Values{}
	for k, v := range fields {
		query.Set(k, v)
	}
	query.Set("hash", hash)

	return query.Encode()
}

func validInitData(t *testing.T) string {
	return signInitData(t, testToken, map[string]string{
		"user":        `{"id":42,"first_name":"Ada"}`,
		"auth_date":   "1700000000",
		"start_param": "ref-99",
	})
}

func testServer(svc GameService, limiter ratelimit.Limiter, rules *ratelimit.Rules) *Server {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(svc, apperrors.NewHandler(log, false), nil, limiter, rules, log, testToken)
}

func postGame(t *testing.T, handler http.Handler, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/game", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHandleGame_GetDefaultsAction(t *testing.T) {
	svc := &stubService{get: &game.GetResponse{
		MazeID:   "maze-1",
		MazeSize: domain.MazeSize{Width: 2, Height: 1},
		Score:    5,
	}}
	srv := testServer(svc, nil, nil)

	rec := postGame(t, srv.Routes(), map[string]any{"initData": validInitData(t)})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "maze-1", body["mazeId"])
	assert.Equal(t, "ref-99", svc.lastStartParam)
}

func TestHandleGame_InvalidSignature(t *testing.T) {
	srv := testServer(&stubService{}, nil, nil)

	rec := postGame(t, srv.Routes(), map[string]any{
		"initData": "user=%7B%22id%22%3A42%7D&hash=deadbeef",
	})

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Invalid Telegram data", decodeBody(t, rec)["error"])
}

func TestHandleGame_MissingInitData(t *testing.T) {
	srv := testServer(&stubService{}, nil, nil)

	rec := postGame(t, srv.Routes(), map[string]any{"action": "get"})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid request body", decodeBody(t, rec)["error"])
}

func TestHandleGame_UnknownAction(t *testing.T) {
	srv := testServer(&stubService{}, nil, nil)

	rec := postGame(t, srv.Routes(), map[string]any{
		"initData": validInitData(t),
		"action":   "teleport",
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGame_MethodNotAllowed(t *testing.T) {
	srv := testServer(&stubService{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/game", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleGame_MovePassesPosition(t *testing.T) {
	svc := &stubService{}
	srv := testServer(svc, nil, nil)

	rec := postGame(t, srv.Routes(), map[string]any{
		"initData": validInitData(t),
		"action":   "move",
		"position": map[string]int{"x": 1, "y": 2},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Position updated", decodeBody(t, rec)["message"])
	assert.Equal(t, domain.Position{X: 1, Y: 2}, svc.lastMovePos)
}

func TestHandleGame_MoveWithoutPosition(t *testing.T) {
	srv := testServer(&stubService{}, nil, nil)

	rec := postGame(t, srv.Routes(), map[string]any{
		"initData": validInitData(t),
		"action":   "move",
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid position", decodeBody(t, rec)["error"])
}

func TestHandleGame_BlockedUser(t *testing.T) {
	svc := &stubService{getErr: &game.BlockedError{RemainingTime: 1800000}}
	srv := testServer(svc, nil, nil)

	rec := postGame(t, srv.Routes(), map[string]any{"initData": validInitData(t)})

	require.Equal(t, http.StatusForbidden, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "User is blocked", body["error"])
	assert.Equal(t, float64(1800000), body["remainingTime"])
}

func TestHandleGame_AppErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{"maze not found", apperrors.NewNotFoundError("maze"), http.StatusBadRequest, "Maze not found"},
		{"already passed", apperrors.NewAlreadyCompletedError(), http.StatusBadRequest, "Maze already passed"},
		{"cheat detected", apperrors.NewCheatError(), http.StatusForbidden, "Cheating detected. User is blocked."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{finishErr: tt.err}
			srv := testServer(svc, nil, nil)

			rec := postGame(t, srv.Routes(), map[string]any{
				"initData": validInitData(t),
				"action":   "finish",
			})

			require.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantError, decodeBody(t, rec)["error"])
		})
	}
}

func TestHandleGame_UpdatePassesClosedFieldSet(t *testing.T) {
	svc := &stubService{}
	srv := testServer(svc, nil, nil)

	rec := postGame(t, srv.Routes(), map[string]any{
		"initData": validInitData(t),
		"action":   "update",
		"updateData": map[string]any{
			"tonAddress": "UQabc",
			"score":      9999,
			"username":   "ada",
		},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.lastUpdate.TonAddress)
	assert.Equal(t, "UQabc", *svc.lastUpdate.TonAddress)
	require.NotNil(t, svc.lastUpdate.Username)
	assert.Equal(t, "ada", *svc.lastUpdate.Username)
	assert.Nil(t, svc.lastUpdate.FirstName)
}

type denyLimiter struct{}

func (denyLimiter) Check(context.Context, string, int, time.Duration) (*ratelimit.Result, error) {
	return &ratelimit.Result{Allowed: false}, nil
}

func TestHandleGame_RateLimited(t *testing.T) {
	rules := ratelimit.NewRules(config.RateLimitConfig{
		Enabled: true,
		PerUser: 1,
		Window:  time.Minute,
	})
	srv := testServer(&stubService{}, denyLimiter{}, rules)

	rec := postGame(t, srv.Routes(), map[string]any{"initData": validInitData(t)})

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Rate limit exceeded", decodeBody(t, rec)["error"])
}

func TestHandleGame_WhitelistBypassesLimit(t *testing.T) {
	rules := ratelimit.NewRules(config.RateLimitConfig{
		Enabled:   true,
		PerUser:   1,
		Window:    time.Minute,
		Whitelist: []string{"42"},
	})
	srv := testServer(&stubService{get: &game.GetResponse{MazeID: "m"}}, denyLimiter{}, rules)

	rec := postGame(t, srv.Routes(), map[string]any{"initData": validInitData(t)})

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRoutes_CorrelationIDHeader(t *testing.T) {
	srv := testServer(&stubService{get: &game.GetResponse{}}, nil, nil)

	rec := postGame(t, srv.Routes(), map[string]any{"initData": validInitData(t)})

	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}
