package game

import (
	"context"
	"sync"

	"github.com/mazeportal/maze-api/internal/domain"
	"github.com/mazeportal/maze-api/internal/store"
)

// memDB is an in-memory test double of the store, honoring the same
// conditional-write semantics as the Postgres adapter.
type memDB struct {
	mu    sync.Mutex
	users map[string]*domain.User
	mazes map[string]*domain.Maze

	// beforeAssign, when set, runs inside CreateForUser before the
	// current-maze guard is evaluated. Tests use it to interleave a
	// competing writer.
	beforeAssign func()
}

func newMemDB() *memDB {
	return &memDB{
		users: make(map[string]*domain.User),
		mazes: make(map[string]*domain.Maze),
	}
}

func (db *memDB) userStore() store.UserStore { return &memUsers{db: db} }
func (db *memDB) mazeStore() store.MazeStore { return &memMazes{db: db} }

func copyUser(u *domain.User) *domain.User {
	cp := *u
	cp.Items = append([]string(nil), u.Items...)
	if u.LastMazeSize != nil {
		size := *u.LastMazeSize
		cp.LastMazeSize = &size
	}
	return &cp
}

func copyMaze(m *domain.Maze) *domain.Maze {
	cp := *m
	if m.Item != nil {
		item := *m.Item
		cp.Item = &item
	}
	return &cp
}

type memUsers struct {
	db *memDB
}

func (s *memUsers) Get(_ context.Context, userID string) (*domain.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	user, ok := s.db.users[userID]
	if !ok {
		return nil, store.ErrNotFound
	}

	return copyUser(user), nil
}

func (s *memUsers) Create(_ context.Context, user *domain.User) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, exists := s.db.users[user.UserID]; exists {
		return nil
	}
	s.db.users[user.UserID] = copyUser(user)

	return nil
}

func (s *memUsers) UpdateProfile(_ context.Context, userID string, update store.ProfileUpdate) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	user, ok := s.db.users[userID]
	if !ok {
		return store.ErrNotFound
	}

	apply := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	apply(&user.TonAddress, update.TonAddress)
	apply(&user.FirstName, update.FirstName)
	apply(&user.LastName, update.LastName)
	apply(&user.Username, update.Username)
	apply(&user.PhotoURL, update.PhotoURL)
	apply(&user.LanguageCode, update.LanguageCode)

	return nil
}

func (s *memUsers) AppendItem(_ context.Context, userID, itemType string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	user, ok := s.db.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	user.Items = append(user.Items, itemType)

	return nil
}

func (s *memUsers) SetBlock(_ context.Context, userID string, blockedUntil, blockDuration int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	user, ok := s.db.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	user.BlockedUntil = blockedUntil
	user.BlockDuration = blockDuration

	return nil
}

func (s *memUsers) Referrals(_ context.Context, inviterID string) ([]domain.Referral, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	referrals := make([]domain.Referral, 0)
	for _, user := range s.db.users {
		if user.InviterID == inviterID {
			referrals = append(referrals, domain.Referral{
				UserID:    user.UserID,
				FirstName: user.FirstName,
				LastName:  user.LastName,
				Username:  user.Username,
			})
		}
	}

	return referrals, nil
}

type memMazes struct {
	db *memDB
}

func (s *memMazes) Get(_ context.Context, mazeID string) (*domain.Maze, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	m, ok := s.db.mazes[mazeID]
	if !ok {
		return nil, store.ErrNotFound
	}

	return copyMaze(m), nil
}

func (s *memMazes) CreateForUser(_ context.Context, maze *domain.Maze) error {
	s.db.mu.Lock()
	if hook := s.db.beforeAssign; hook != nil {
		s.db.beforeAssign = nil
		s.db.mu.Unlock()
		hook()
		s.db.mu.Lock()
	}
	defer s.db.mu.Unlock()

	user, ok := s.db.users[maze.UserID]
	if !ok || user.CurrentMazeID != "" {
		return store.ErrConflict
	}

	s.db.mazes[maze.MazeID] = copyMaze(maze)
	user.CurrentMazeID = maze.MazeID

	return nil
}

func (s *memMazes) SetPlayerPosition(_ context.Context, mazeID string, pos domain.Position) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	m, ok := s.db.mazes[mazeID]
	if !ok {
		return store.ErrNotFound
	}
	m.PlayerPosition = pos

	return nil
}

func (s *memMazes) MarkItemPicked(_ context.Context, mazeID string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	m, ok := s.db.mazes[mazeID]
	if !ok || m.Item == nil {
		return store.ErrNotFound
	}
	m.Item.Picked = true

	return nil
}

func (s *memMazes) Finish(_ context.Context, maze *domain.Maze, endTime, timeToFinish, newScore int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	m, ok := s.db.mazes[maze.MazeID]
	if !ok {
		return store.ErrNotFound
	}
	if m.Passed {
		return store.ErrConflict
	}

	m.Passed = true
	m.EndTime = endTime
	m.TimeToFinish = timeToFinish

	user, ok := s.db.users[maze.UserID]
	if !ok {
		return store.ErrNotFound
	}
	user.Score = newScore
	size := m.Size
	user.LastMazeSize = &size
	user.CurrentMazeID = ""

	return nil
}
