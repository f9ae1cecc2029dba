// Package game orchestrates the six request actions over the user and
// maze stores, enforcing the session invariants.
package game

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mazeportal/maze-api/internal/anticheat"
	"github.com/mazeportal/maze-api/internal/auth"
	"github.com/mazeportal/maze-api/internal/domain"
	errors "github.com/mazeportal/maze-api/internal/errors"
	"github.com/mazeportal/maze-api/internal/maze"
	"github.com/mazeportal/maze-api/internal/store"
)

const refPrefix = "ref-"

// BlockedError carries the remaining block time for the 403 response.
type BlockedError struct {
	RemainingTime int64 // milliseconds
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("user is blocked for another %dms", e.RemainingTime)
}

// Controller handles game actions for authenticated users. It holds no
// per-request state; concurrent invocations only share the stores.
type Controller struct {
	users  store.UserStore
	mazes  store.MazeStore
	gen    *maze.Generator
	policy *anticheat.Policy
	log    *slog.Logger
	now    func() time.Time
}

// NewController wires a controller from its injected dependencies.
func NewController(
	users store.UserStore,
	mazes store.MazeStore,
	gen *maze.Generator,
	policy *anticheat.Policy,
	log *slog.Logger,
) *Controller {
	if log == nil {
		log = slog.Default()
	}

	return &Controller{
		users:  users,
		mazes:  mazes,
		gen:    gen,
		policy: policy,
		log:    log,
		now:    time.Now,
	}
}

// Get returns the user's current maze, creating the user and/or the next
// maze as needed. Concurrent duplicate calls are resolved by the store's
// conditional transactional write: the loser discards its generated maze
// and re-reads the winner's, exactly once.
func (c *Controller) Get(ctx context.Context, tgUser auth.TelegramUser, startParam string) (*GetResponse, error) {
	userID := tgUser.UserID()

	user, err := c.users.Get(ctx, userID)
	switch {
	case err == nil:
	case stdErrors.Is(err, store.ErrNotFound):
		user, err = c.createUser(ctx, tgUser, startParam)
		if err != nil {
			return nil, err
		}
	default:
		return nil, errors.NewDatabaseError(err)
	}

	now := c.now()
	if user.Blocked(now) {
		return nil, &BlockedError{RemainingTime: user.BlockedUntil - now.UnixMilli()}
	}

	current, err := c.currentMaze(ctx, user)
	if err != nil {
		return nil, err
	}

	if current == nil {
		current, err = c.createMaze(ctx, user)
		if err != nil {
			return nil, err
		}
		transitionRecorder(string(StateActiveNoMaze), string(StateActiveInMaze))
	}

	return &GetResponse{
		MazeID:         current.MazeID,
		MazeSize:       current.Size,
		MazeMatrix:     current.Matrix,
		WallColor:      current.WallColor,
		FloorColor:     current.FloorColor,
		PlayerColor:    current.PlayerColor,
		PortalColor:    current.PortalColor,
		FinishPosition: current.FinishPosition,
		PlayerPosition: current.PlayerPosition,
		Item:           current.Item,
		Score:          user.Score,
		UserData: UserData{
			UserID:     user.UserID,
			FirstName:  user.FirstName,
			LastName:   user.LastName,
			Username:   user.Username,
			PhotoURL:   user.PhotoURL,
			TonAddress: user.TonAddress,
			Items:      user.Items,
		},
	}, nil
}

// Move persists a new player position after range-checking it. Wall
// legality is the client's responsibility; the core only bounds-checks.
func (c *Controller) Move(ctx context.Context, userID string, pos domain.Position) (*MessageResponse, error) {
	_, current, err := c.userWithCurrentMaze(ctx, userID)
	if err != nil {
		return nil, err
	}

	if !current.Contains(pos) {
		return nil, errors.NewInvalidInputError("Invalid position")
	}

	if err := c.mazes.SetPlayerPosition(ctx, current.MazeID, pos); err != nil {
		return nil, errors.NewDatabaseError(err)
	}

	return &MessageResponse{Message: "Position updated"}, nil
}

// Pickup marks the maze's collectible as picked when the player stands on
// it and appends its type to the user's items. The two updates are not a
// cross-entity transaction: picked-state is monotonic and a retry is
// harmless.
func (c *Controller) Pickup(ctx context.Context, userID string) (*PickupResponse, error) {
	_, current, err := c.userWithCurrentMaze(ctx, userID)
	if err != nil {
		return nil, err
	}

	item := current.Item
	if item == nil || item.Picked ||
		current.PlayerPosition.X != item.X || current.PlayerPosition.Y != item.Y {
		return nil, errors.NewInvalidInputError("No item to pick here")
	}

	if err := c.mazes.MarkItemPicked(ctx, current.MazeID); err != nil {
		return nil, errors.NewDatabaseError(err)
	}

	if err := c.users.AppendItem(ctx, userID, item.Type); err != nil {
		return nil, errors.NewDatabaseError(err)
	}

	item.Picked = true

	return &PickupResponse{Message: "Item picked", Item: item}, nil
}

// Finish completes the current maze. A completion faster than the
// anti-cheat baseline blocks the user with an escalating duration and
// leaves the maze unpassed so it can be retried honestly after expiry.
func (c *Controller) Finish(ctx context.Context, userID string) (*FinishResponse, error) {
	user, err := c.users.Get(ctx, userID)
	if err != nil {
		return nil, c.mapUserErr(err)
	}
	if user.CurrentMazeID == "" {
		return nil, errors.NewNotFoundError("current maze")
	}

	current, err := c.mazes.Get(ctx, user.CurrentMazeID)
	if err != nil {
		return nil, c.mapMazeErr(err)
	}
	if current.Passed {
		return nil, errors.NewAlreadyCompletedError()
	}

	now := c.now()
	endTime := now.UnixMilli()
	actualTime := time.Duration(endTime-current.StartTime) * time.Millisecond

	if actualTime < c.policy.MinCompletionTime(current.NumberOfMoves) {
		if err := c.blockUser(ctx, user, now); err != nil {
			return nil, err
		}
		transitionRecorder(string(StateActiveInMaze), string(StateBlocked))

		return nil, errors.NewCheatError()
	}

	newScore := user.Score + int64(current.Size.Width)*int64(current.Size.Height)

	if err := c.mazes.Finish(ctx, current, endTime, actualTime.Milliseconds(), newScore); err != nil {
		if stdErrors.Is(err, store.ErrConflict) {
			// A concurrent finish won; the maze is passed either way.
			return nil, errors.NewAlreadyCompletedError()
		}
		return nil, errors.NewDatabaseError(err)
	}
	transitionRecorder(string(StateActiveInMaze), string(StateActiveNoMaze))

	return &FinishResponse{Message: "Maze completed", NewScore: newScore}, nil
}

// Update applies a partial profile update limited to the whitelisted
// fields of store.ProfileUpdate.
func (c *Controller) Update(ctx context.Context, userID string, update store.ProfileUpdate) (*MessageResponse, error) {
	if err := c.users.UpdateProfile(ctx, userID, update); err != nil {
		return nil, c.mapUserErr(err)
	}

	return &MessageResponse{Message: "User updated"}, nil
}

// Referrals lists users invited by the caller.
func (c *Controller) Referrals(ctx context.Context, userID string) (*ReferralsResponse, error) {
	referrals, err := c.users.Referrals(ctx, userID)
	if err != nil {
		return nil, errors.NewDatabaseError(err)
	}

	return &ReferralsResponse{Referrals: referrals}, nil
}

func (c *Controller) createUser(ctx context.Context, tgUser auth.TelegramUser, startParam string) (*domain.User, error) {
	var inviterID string
	if strings.HasPrefix(startParam, refPrefix) {
		inviterID = strings.TrimPrefix(startParam, refPrefix)
	}

	user := &domain.User{
		UserID:                tgUser.UserID(),
		IsBot:                 tgUser.IsBot,
		FirstName:             tgUser.FirstName,
		LastName:              tgUser.LastName,
		Username:              tgUser.Username,
		LanguageCode:          tgUser.LanguageCode,
		IsPremium:             tgUser.IsPremium,
		AddedToAttachmentMenu: tgUser.AddedToAttachmentMenu,
		AllowsWriteToPM:       tgUser.AllowsWriteToPM,
		PhotoURL:              tgUser.PhotoURL,
		InviterID:             inviterID,
		Items:                 []string{},
	}

	if err := c.users.Create(ctx, user); err != nil {
		return nil, errors.NewDatabaseError(err)
	}
	transitionRecorder(string(StateNew), string(StateActiveNoMaze))

	// Re-read so a concurrent creation race still yields the stored row.
	stored, err := c.users.Get(ctx, user.UserID)
	if err != nil {
		return nil, errors.NewDatabaseError(err)
	}

	return stored, nil
}

// currentMaze resolves the user's current maze reference, treating a
// dangling or already-passed reference as absent.
func (c *Controller) currentMaze(ctx context.Context, user *domain.User) (*domain.Maze, error) {
	if user.CurrentMazeID == "" {
		return nil, nil
	}

	current, err := c.mazes.Get(ctx, user.CurrentMazeID)
	if err != nil {
		if stdErrors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, errors.NewDatabaseError(err)
	}
	if current.Passed {
		return nil, nil
	}

	return current, nil
}

// createMaze generates and persists the next maze. On a conditional-write
// conflict it retries once by adopting the winning maze; the conflict is
// never surfaced to the caller.
func (c *Controller) createMaze(ctx context.Context, user *domain.User) (*domain.Maze, error) {
	generated, err := c.gen.NewForUser(user, c.now())
	if err != nil {
		return nil, errors.NewInvalidInputError(err.Error())
	}

	err = c.mazes.CreateForUser(ctx, generated)
	if err == nil {
		mazeRecorder(generated.Size.Width, generated.Size.Height)
		return generated, nil
	}
	if !stdErrors.Is(err, store.ErrConflict) {
		return nil, errors.NewDatabaseError(err)
	}

	c.log.Info("maze creation lost a race, adopting winner",
		slog.String("user_id", user.UserID),
		slog.String("discarded_maze_id", generated.MazeID),
	)

	winner, err := c.users.Get(ctx, user.UserID)
	if err != nil {
		return nil, errors.NewDatabaseError(err)
	}
	if winner.CurrentMazeID == "" {
		return nil, errors.NewConflictError("maze creation conflict left no current maze")
	}

	adopted, err := c.mazes.Get(ctx, winner.CurrentMazeID)
	if err != nil {
		return nil, errors.NewDatabaseError(err)
	}

	return adopted, nil
}

func (c *Controller) blockUser(ctx context.Context, user *domain.User, now time.Time) error {
	previous := time.Duration(user.BlockDuration) * time.Second
	next := c.policy.NextBlockDuration(previous)

	blockedUntil := now.Add(next).UnixMilli()
	if err := c.users.SetBlock(ctx, user.UserID, blockedUntil, int64(next.Seconds())); err != nil {
		return errors.NewDatabaseError(err)
	}

	c.log.Warn("cheat detected, user blocked",
		slog.String("user_id", user.UserID),
		slog.Duration("block", next),
	)
	cheatRecorder()

	return nil
}

// userWithCurrentMaze is the shared precondition of move and pickup: an
// existing user holding an unpassed current maze.
func (c *Controller) userWithCurrentMaze(ctx context.Context, userID string) (*domain.User, *domain.Maze, error) {
	user, err := c.users.Get(ctx, userID)
	if err != nil {
		return nil, nil, c.mapUserErr(err)
	}
	if user.CurrentMazeID == "" {
		return nil, nil, errors.NewNotFoundError("current maze")
	}

	current, err := c.mazes.Get(ctx, user.CurrentMazeID)
	if err != nil {
		return nil, nil, c.mapMazeErr(err)
	}
	if current.Passed {
		return nil, nil, errors.NewNotFoundError("unpassed maze")
	}

	return user, current, nil
}

func (c *Controller) mapUserErr(err error) error {
	if stdErrors.Is(err, store.ErrNotFound) {
		return errors.NewNotFoundError("user")
	}

	return errors.NewDatabaseError(err)
}

func (c *Controller) mapMazeErr(err error) error {
	if stdErrors.Is(err, store.ErrNotFound) {
		return errors.NewNotFoundError("maze")
	}

	return errors.NewDatabaseError(err)
}
