package game

import (
	"context"
	stdErrors "errors"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mazeportal/maze-api/internal/anticheat"
	"github.com/mazeportal/maze-api/internal/auth"
	"github.com/mazeportal/maze-api/internal/domain"
	errors "github.com/mazeportal/maze-api/internal/errors"
	"github.com/mazeportal/maze-api/internal/maze"
	"github.com/mazeportal/maze-api/internal/store"
)

var testStart = time.UnixMilli(1_700_000_000_000)

func testController(db *memDB, seed int64) *Controller {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctrl := NewController(
		db.userStore(),
		db.mazeStore(),
		maze.NewGenerator(rand.New(rand.NewSource(seed))),
		anticheat.NewPolicy(0, 0, 0),
		log,
	)
	ctrl.now = func() time.Time { return testStart }

	return ctrl
}

func testTelegramUser() auth.TelegramUser {
	return auth.TelegramUser{
		ID:        42,
		FirstName: "Ada",
		LastName:  "L",
		Username:  "ada",
		PhotoURL:  "https://t.me/i/userpic/ada.jpg",
	}
}

func seedUserInMaze(t *testing.T, db *memDB, ctrl *Controller) *GetResponse {
	t.Helper()

	resp, err := ctrl.Get(context.Background(), testTelegramUser(), "")
	require.NoError(t, err)
	return resp
}

func TestGet_CreatesUserAndFirstMaze(t *testing.T) {
	db := newMemDB()
	ctrl := testController(db, 1)

	resp, err := ctrl.Get(context.Background(), testTelegramUser(), "ref-99")
	require.NoError(t, err)

	assert.NotEmpty(t, resp.MazeID)
	assert.Equal(t, 3, resp.MazeSize.Width+resp.MazeSize.Height, "first maze grows 1x1 by one side")
	assert.Equal(t, int64(0), resp.Score)
	assert.Equal(t, "42", resp.UserData.UserID)
	assert.Equal(t, "Ada", resp.UserData.FirstName)
	assert.Empty(t, resp.UserData.Items)
	assert.Equal(t, maze.Entry(resp.MazeSize), resp.PlayerPosition)

	stored := db.users["42"]
	require.NotNil(t, stored)
	assert.Equal(t, "99", stored.InviterID, "inviter attributed from start param")
	assert.Equal(t, resp.MazeID, stored.CurrentMazeID)
}

func TestGet_InviterOnlySetAtCreation(t *testing.T) {
	db := newMemDB()
	ctrl := testController(db, 2)

	_, err := ctrl.Get(context.Background(), testTelegramUser(), "")
	require.NoError(t, err)

	_, err = ctrl.Get(context.Background(), testTelegramUser(), "ref-7")
	require.NoError(t, err)

	assert.Empty(t, db.users["42"].InviterID, "inviter is immutable after creation")
}

func TestGet_ReturnsExistingMaze(t *testing.T) {
	db := newMemDB()
	ctrl := testController(db, 3)

	first := seedUserInMaze(t, db, ctrl)
	second, err := ctrl.Get(context.Background(), testTelegramUser(), "")
	require.NoError(t, err)

	assert.Equal(t, first.MazeID, second.MazeID)
	assert.Len(t, db.mazes, 1)
}

func TestGet_Blocked(t *testing.T) {
	db := newMemDB()
	ctrl := testController(db, 4)
	seedUserInMaze(t, db, ctrl)

	db.users["42"].BlockedUntil = testStart.Add(30 * time.Minute).UnixMilli()

	_, err := ctrl.Get(context.Background(), testTelegramUser(), "")

	var blocked *BlockedError
	require.True(t, stdErrors.As(err, &blocked))
	assert.Equal(t, (30 * time.Minute).Milliseconds(), blocked.RemainingTime)
}

func TestGet_ConflictAdoptsWinner(t *testing.T) {
	db := newMemDB()
	ctrl := testController(db, 5)

	// A competing request wins the conditional write mid-flight.
	var winnerID string
	db.beforeAssign = func() {
		winner := &domain.Maze{
			MazeID: "winner-maze",
			UserID: "42",
			Size:   domain.MazeSize{Width: 2, Height: 1},
			Matrix: [][]domain.Cell{{{X: 0, Y: 0}, {X: 1, Y: 0}}},
		}
		db.mu.Lock()
		db.mazes[winner.MazeID] = winner
		db.users["42"].CurrentMazeID = winner.MazeID
		db.mu.Unlock()
		winnerID = winner.MazeID
	}

	resp, err := ctrl.Get(context.Background(), testTelegramUser(), "")
	require.NoError(t, err)

	assert.Equal(t, winnerID, resp.MazeID, "loser adopts the winning maze")
	assert.Len(t, db.mazes, 1, "the losing maze is discarded")
}

func TestGet_ConcurrentDuplicates(t *testing.T) {
	db := newMemDB()
	ctrl := testController(db, 6)

	const attempts = 8
	responses := make([]*GetResponse, attempts)
	errs := make([]error, attempts)

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			responses[i], errs[i] = ctrl.Get(context.Background(), testTelegramUser(), "")
		}(i)
	}
	wg.Wait()

	assert.Len(t, db.mazes, 1, "exactly one maze survives duplicate gets")
	for i := range responses {
		require.NoError(t, errs[i])
		assert.Equal(t, db.users["42"].CurrentMazeID, responses[i].MazeID)
	}
}

func TestMove(t *testing.T) {
	db := newMemDB()
	ctrl := testController(db, 7)
	resp := seedUserInMaze(t, db, ctrl)

	target := domain.Position{X: resp.MazeSize.Width - 1, Y: resp.MazeSize.Height - 1}
	msg, err := ctrl.Move(context.Background(), "42", target)
	require.NoError(t, err)
	assert.Equal(t, "Position updated", msg.Message)
	assert.Equal(t, target, db.mazes[resp.MazeID].PlayerPosition)
}

func TestMove_OutOfRange(t *testing.T) {
	db := newMemDB()
	ctrl := testController(db, 8)
	resp := seedUserInMaze(t, db, ctrl)

	for _, pos := range []domain.Position{
		{X: -1, Y: 0},
		{X: resp.MazeSize.Width, Y: 0},
		{X: 0, Y: resp.MazeSize.Height},
	} {
		_, err := ctrl.Move(context.Background(), "42", pos)
		var appErr *errors.AppError
		require.True(t, stdErrors.As(err, &appErr), "position %v", pos)
		assert.Equal(t, 400, appErr.HTTPStatus)
	}
}

func TestMove_NoCurrentMaze(t *testing.T) {
	db := newMemDB()
	ctrl := testController(db, 9)

	_, err := ctrl.Move(context.Background(), "42", domain.Position{})

	var appErr *errors.AppError
	require.True(t, stdErrors.As(err, &appErr))
	assert.Equal(t, 400, appErr.HTTPStatus)
}

func TestPickup(t *testing.T) {
	db := newMemDB()
	ctrl := testController(db, 10)
	resp := seedUserInMaze(t, db, ctrl)

	db.mazes[resp.MazeID].Item = &domain.Item{X: 0, Y: 0, Type: "cherry"}
	db.mazes[resp.MazeID].PlayerPosition = domain.Position{X: 0, Y: 0}

	picked, err := ctrl.Pickup(context.Background(), "42")
	require.NoError(t, err)

	assert.Equal(t, "Item picked", picked.Message)
	assert.True(t, picked.Item.Picked)
	assert.True(t, db.mazes[resp.MazeID].Item.Picked)
	assert.Equal(t, []string{"cherry"}, db.users["42"].Items)
}

func TestPickup_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		setup func(m *domain.Maze)
	}{
		{
			name:  "no item in maze",
			setup: func(m *domain.Maze) { m.Item = nil },
		},
		{
			name: "player elsewhere",
			setup: func(m *domain.Maze) {
				m.Item = &domain.Item{X: 0, Y: 0, Type: "apple"}
				m.PlayerPosition = domain.Position{X: 1, Y: 0}
			},
		},
		{
			name: "already picked",
			setup: func(m *domain.Maze) {
				m.Item = &domain.Item{X: 0, Y: 0, Type: "apple", Picked: true}
				m.PlayerPosition = domain.Position{X: 0, Y: 0}
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			db := newMemDB()
			ctrl := testController(db, 11)
			resp := seedUserInMaze(t, db, ctrl)

			tc.setup(db.mazes[resp.MazeID])

			_, err := ctrl.Pickup(context.Background(), "42")
			var appErr *errors.AppError
			require.True(t, stdErrors.As(err, &appErr))
			assert.Equal(t, 400, appErr.HTTPStatus)
			assert.Empty(t, db.users["42"].Items)
		})
	}
}

func TestFinish(t *testing.T) {
	db := newMemDB()
	ctrl := testController(db, 12)
	resp := seedUserInMaze(t, db, ctrl)

	// Finish at a plausible pace: well above moves*500ms.
	elapsed := time.Duration(db.mazes[resp.MazeID].NumberOfMoves)*time.Second + time.Second
	ctrl.now = func() time.Time { return testStart.Add(elapsed) }

	finished, err := ctrl.Finish(context.Background(), "42")
	require.NoError(t, err)

	area := int64(resp.MazeSize.Width) * int64(resp.MazeSize.Height)
	assert.Equal(t, "Maze completed", finished.Message)
	assert.Equal(t, area, finished.NewScore)

	user := db.users["42"]
	assert.Equal(t, area, user.Score, "score grows by maze area")
	assert.Empty(t, user.CurrentMazeID)
	require.NotNil(t, user.LastMazeSize)
	assert.Equal(t, resp.MazeSize, *user.LastMazeSize)

	m := db.mazes[resp.MazeID]
	assert.True(t, m.Passed)
	assert.Equal(t, elapsed.Milliseconds(), m.TimeToFinish)
}

func TestFinish_TooFastBlocksAndEscalates(t *testing.T) {
	db := newMemDB()
	ctrl := testController(db, 13)
	resp := seedUserInMaze(t, db, ctrl)

	db.users["42"].BlockDuration = 3600
	db.mazes[resp.MazeID].NumberOfMoves = 10

	ctrl.now = func() time.Time { return testStart.Add(time.Second) }

	_, err := ctrl.Finish(context.Background(), "42")

	var appErr *errors.AppError
	require.True(t, stdErrors.As(err, &appErr))
	assert.Equal(t, 403, appErr.HTTPStatus)

	user := db.users["42"]
	assert.Equal(t, int64(7200), user.BlockDuration, "prior 3600s doubles to 7200s")
	assert.Equal(t, testStart.Add(time.Second+7200*time.Second).UnixMilli(), user.BlockedUntil)
	assert.Equal(t, int64(0), user.Score, "no score on a cheated finish")
	assert.False(t, db.mazes[resp.MazeID].Passed, "maze stays unpassed for an honest retry")
}

func TestFinish_BlockCapped(t *testing.T) {
	db := newMemDB()
	ctrl := testController(db, 14)
	resp := seedUserInMaze(t, db, ctrl)

	db.users["42"].BlockDuration = 50000
	db.mazes[resp.MazeID].NumberOfMoves = 10
	ctrl.now = func() time.Time { return testStart.Add(time.Second) }

	_, err := ctrl.Finish(context.Background(), "42")
	require.Error(t, err)

	assert.Equal(t, int64(86400), db.users["42"].BlockDuration, "doubling caps at 24h")
}

func TestFinish_AlreadyPassed(t *testing.T) {
	db := newMemDB()
	ctrl := testController(db, 15)
	resp := seedUserInMaze(t, db, ctrl)

	db.mazes[resp.MazeID].Passed = true
	db.users["42"].Score = 5

	_, err := ctrl.Finish(context.Background(), "42")

	var appErr *errors.AppError
	require.True(t, stdErrors.As(err, &appErr))
	assert.Equal(t, 400, appErr.HTTPStatus)
	assert.Equal(t, int64(5), db.users["42"].Score, "score untouched")
}

func TestUpdate(t *testing.T) {
	db := newMemDB()
	ctrl := testController(db, 16)
	seedUserInMaze(t, db, ctrl)

	address := "UQabcdef"
	msg, err := ctrl.Update(context.Background(), "42", profileUpdate(address))
	require.NoError(t, err)

	assert.Equal(t, "User updated", msg.Message)
	assert.Equal(t, address, db.users["42"].TonAddress)
}

func TestUpdate_UnknownUser(t *testing.T) {
	db := newMemDB()
	ctrl := testController(db, 17)

	_, err := ctrl.Update(context.Background(), "42", profileUpdate("UQx"))

	var appErr *errors.AppError
	require.True(t, stdErrors.As(err, &appErr))
	assert.Equal(t, 400, appErr.HTTPStatus)
}

func TestReferrals(t *testing.T) {
	db := newMemDB()
	ctrl := testController(db, 18)
	seedUserInMaze(t, db, ctrl)

	db.users["100"] = &domain.User{UserID: "100", FirstName: "Bea", InviterID: "42"}
	db.users["101"] = &domain.User{UserID: "101", FirstName: "Cal", InviterID: "7"}

	resp, err := ctrl.Referrals(context.Background(), "42")
	require.NoError(t, err)

	require.Len(t, resp.Referrals, 1)
	assert.Equal(t, "100", resp.Referrals[0].UserID)
}

func profileUpdate(tonAddress string) (update store.ProfileUpdate) {
	update.TonAddress = &tonAddress
	return update
}
