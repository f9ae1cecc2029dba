// Package store contains typed persistence operations for the two game
// entities, User and Maze, over the transactional backing store.
package store

import (
	"context"
	"errors"

	"github.com/mazeportal/maze-api/internal/domain"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a conditional transactional write lost a race
	// and was rolled back entirely.
	ErrConflict = errors.New("transactional write conflict")
)

// ProfileUpdate is the closed set of user fields the update action may
// touch. Nil pointers leave the field unchanged. Protected fields (score,
// block state, inviter, current maze) are deliberately not representable.
type ProfileUpdate struct {
	TonAddress   *string
	FirstName    *string
	LastName     *string
	Username     *string
	PhotoURL     *string
	LanguageCode *string
}

// Empty reports whether the update names no fields at all.
func (p ProfileUpdate) Empty() bool {
	return p.TonAddress == nil && p.FirstName == nil && p.LastName == nil &&
		p.Username == nil && p.PhotoURL == nil && p.LanguageCode == nil
}

// UserStore persists User records.
type UserStore interface {
	// Get fetches a user by id; ErrNotFound when absent.
	Get(ctx context.Context, userID string) (*domain.User, error)
	// Create inserts a new user. Creation is idempotent: a concurrent
	// insert of the same id is not an error.
	Create(ctx context.Context, user *domain.User) error
	// UpdateProfile applies a partial update of whitelisted fields.
	UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) error
	// AppendItem appends a collected item type to the user's item list.
	AppendItem(ctx context.Context, userID, itemType string) error
	// SetBlock records a block window (epoch ms) and its duration (s).
	SetBlock(ctx context.Context, userID string, blockedUntil, blockDuration int64) error
	// Referrals lists users whose inviterId equals inviterID.
	Referrals(ctx context.Context, inviterID string) ([]domain.Referral, error)
}

// MazeStore persists Maze records.
type MazeStore interface {
	// Get fetches a maze by id; ErrNotFound when absent.
	Get(ctx context.Context, mazeID string) (*domain.Maze, error)
	// CreateForUser atomically inserts the maze and assigns it as the
	// owner's current maze, guarded by the condition that the owner has
	// no current maze. Returns ErrConflict when the guard fails; nothing
	// is persisted in that case.
	CreateForUser(ctx context.Context, maze *domain.Maze) error
	// SetPlayerPosition persists a new player position.
	SetPlayerPosition(ctx context.Context, mazeID string, pos domain.Position) error
	// MarkItemPicked flags the maze's collectible as picked.
	MarkItemPicked(ctx context.Context, mazeID string) error
	// Finish atomically marks the maze passed with its timing fields and
	// applies the completion effects to the owner: new score, last maze
	// size, current maze cleared. ErrConflict if the maze was already
	// passed.
	Finish(ctx context.Context, maze *domain.Maze, endTime, timeToFinish, newScore int64) error
}
