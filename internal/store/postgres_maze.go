package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mazeportal/maze-api/internal/domain"
)

type postgresMazeStore struct {
	db  *sql.DB
	log *slog.Logger
}

// NewMazeStore creates a SQL-backed maze store.
func NewMazeStore(db *sql.DB, log *slog.Logger) MazeStore {
	if log == nil {
		log = slog.Default()
	}

	return &postgresMazeStore{db: db, log: log}
}

func (s *postgresMazeStore) Get(ctx context.Context, mazeID string) (*domain.Maze, error) {
	const query = `
		SELECT maze_id, user_id, width, height, matrix,
		       wall_color, floor_color, player_color, portal_color,
		       finish_x, finish_y, player_x, player_y, item,
		       start_time, end_time, number_of_moves, passed, time_to_finish
		FROM mazes
		WHERE maze_id = $1
	`

	var (
		m            domain.Maze
		matrix       []byte
		item         []byte
		endTime      sql.NullInt64
		timeToFinish sql.NullInt64
	)

	if err := s.db.QueryRowContext(ctx, query, mazeID).Scan(
		&m.MazeID,
		&m.UserID,
		&m.Size.Width,
		&m.Size.Height,
		&matrix,
		&m.WallColor,
		&m.FloorColor,
		&m.PlayerColor,
		&m.PortalColor,
		&m.FinishPosition.X,
		&m.FinishPosition.Y,
		&m.PlayerPosition.X,
		&m.PlayerPosition.Y,
		&item,
		&m.StartTime,
		&endTime,
		&m.NumberOfMoves,
		&m.Passed,
		&timeToFinish,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}

		s.log.Error("failed to fetch maze", slog.String("maze_id", mazeID), slog.Any("error", err))
		return nil, fmt.Errorf("select maze: %w", err)
	}

	if err := json.Unmarshal(matrix, &m.Matrix); err != nil {
		return nil, fmt.Errorf("unmarshal maze matrix: %w", err)
	}

	if len(item) > 0 {
		if err := json.Unmarshal(item, &m.Item); err != nil {
			return nil, fmt.Errorf("unmarshal maze item: %w", err)
		}
	}

	m.EndTime = endTime.Int64
	m.TimeToFinish = timeToFinish.Int64

	return &m, nil
}

// CreateForUser is the conditional transactional write guarding the
// at-most-one-unpassed-maze invariant: the maze insert and the owner's
// current_maze_id assignment commit together or not at all, and the
// assignment only applies while current_maze_id is unset.
func (s *postgresMazeStore) CreateForUser(ctx context.Context, maze *domain.Maze) error {
	matrix, err := json.Marshal(maze.Matrix)
	if err != nil {
		return fmt.Errorf("marshal maze matrix: %w", err)
	}

	var item []byte
	if maze.Item != nil {
		if item, err = json.Marshal(maze.Item); err != nil {
			return fmt.Errorf("marshal maze item: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin maze creation: %w", err)
	}
	defer rollback(tx, s.log)

	const insertMaze = `
		INSERT INTO mazes (
			maze_id, user_id, width, height, matrix,
			wall_color, floor_color, player_color, portal_color,
			finish_x, finish_y, player_x, player_y, item,
			start_time, number_of_moves, passed
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, FALSE)
	`

	if _, err := tx.ExecContext(
		ctx,
		insertMaze,
		maze.MazeID,
		maze.UserID,
		maze.Size.Width,
		maze.Size.Height,
		matrix,
		maze.WallColor,
		maze.FloorColor,
		maze.PlayerColor,
		maze.PortalColor,
		maze.FinishPosition.X,
		maze.FinishPosition.Y,
		maze.PlayerPosition.X,
		maze.PlayerPosition.Y,
		nullableBytes(item),
		maze.StartTime,
		maze.NumberOfMoves,
	); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}

		s.log.Error("failed to insert maze", slog.String("maze_id", maze.MazeID), slog.Any("error", err))
		return fmt.Errorf("insert maze: %w", err)
	}

	const assignMaze = `
		UPDATE users SET current_maze_id = $1
		WHERE user_id = $2 AND current_maze_id IS NULL
	`

	res, err := tx.ExecContext(ctx, assignMaze, maze.MazeID, maze.UserID)
	if err != nil {
		s.log.Error("failed to assign current maze", slog.String("user_id", maze.UserID), slog.Any("error", err))
		return fmt.Errorf("assign current maze: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrConflict
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit maze creation: %w", err)
	}

	return nil
}

func (s *postgresMazeStore) SetPlayerPosition(ctx context.Context, mazeID string, pos domain.Position) error {
	const query = `UPDATE mazes SET player_x = $2, player_y = $3 WHERE maze_id = $1`

	res, err := s.db.ExecContext(ctx, query, mazeID, pos.X, pos.Y)
	if err != nil {
		s.log.Error("failed to update player position", slog.String("maze_id", mazeID), slog.Any("error", err))
		return fmt.Errorf("update player position: %w", err)
	}

	return requireRow(res)
}

func (s *postgresMazeStore) MarkItemPicked(ctx context.Context, mazeID string) error {
	const query = `
		UPDATE mazes SET item = jsonb_set(item, '{picked}', 'true')
		WHERE maze_id = $1 AND item IS NOT NULL
	`

	res, err := s.db.ExecContext(ctx, query, mazeID)
	if err != nil {
		s.log.Error("failed to mark item picked", slog.String("maze_id", mazeID), slog.Any("error", err))
		return fmt.Errorf("mark item picked: %w", err)
	}

	return requireRow(res)
}

// Finish commits the completion effects atomically: the maze flips to
// passed with its timing fields, and the owner's score, last maze size
// and current maze reference update in the same transaction.
func (s *postgresMazeStore) Finish(ctx context.Context, maze *domain.Maze, endTime, timeToFinish, newScore int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin maze completion: %w", err)
	}
	defer rollback(tx, s.log)

	const passMaze = `
		UPDATE mazes SET passed = TRUE, end_time = $2, time_to_finish = $3
		WHERE maze_id = $1 AND passed = FALSE
	`

	res, err := tx.ExecContext(ctx, passMaze, maze.MazeID, endTime, timeToFinish)
	if err != nil {
		s.log.Error("failed to mark maze passed", slog.String("maze_id", maze.MazeID), slog.Any("error", err))
		return fmt.Errorf("mark maze passed: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrConflict
	}

	const settleUser = `
		UPDATE users
		SET score = $2, last_maze_width = $3, last_maze_height = $4, current_maze_id = NULL
		WHERE user_id = $1
	`

	if _, err := tx.ExecContext(
		ctx,
		settleUser,
		maze.UserID,
		newScore,
		maze.Size.Width,
		maze.Size.Height,
	); err != nil {
		s.log.Error("failed to settle maze completion", slog.String("user_id", maze.UserID), slog.Any("error", err))
		return fmt.Errorf("settle maze completion: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit maze completion: %w", err)
	}

	return nil
}

func nullableBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}

	return b
}

func rollback(tx *sql.Tx, log *slog.Logger) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		if log != nil {
			log.Error("transaction rollback failed", slog.Any("error", err))
		}
	}
}
