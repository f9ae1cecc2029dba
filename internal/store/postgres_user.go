package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/mazeportal/maze-api/internal/domain"
)

const userColumns = `
	user_id, is_bot, first_name, last_name, username, language_code,
	is_premium, added_to_attachment_menu, allows_write_to_pm, photo_url,
	ton_address, inviter_id, current_maze_id, score, items,
	blocked_until, block_duration, last_maze_width, last_maze_height,
	created_at`

type postgresUserStore struct {
	db  *sql.DB
	log *slog.Logger
}

// NewUserStore creates a SQL-backed user store.
func NewUserStore(db *sql.DB, log *slog.Logger) UserStore {
	if log == nil {
		log = slog.Default()
	}

	return &postgresUserStore{db: db, log: log}
}

func (s *postgresUserStore) Get(ctx context.Context, userID string) (*domain.User, error) {
	query := `SELECT` + userColumns + ` FROM users WHERE user_id = $1`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}

		s.log.Error("failed to fetch user", slog.String("user_id", userID), slog.Any("error", err))
		return nil, fmt.Errorf("select user: %w", err)
	}

	return user, nil
}

func (s *postgresUserStore) Create(ctx context.Context, user *domain.User) error {
	const query = `
		INSERT INTO users (
			user_id, is_bot, first_name, last_name, username, language_code,
			is_premium, added_to_attachment_menu, allows_write_to_pm, photo_url,
			ton_address, inviter_id, score, items, blocked_until, block_duration
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (user_id) DO NOTHING
	`

	items, err := json.Marshal(itemsOrEmpty(user.Items))
	if err != nil {
		return fmt.Errorf("marshal user items: %w", err)
	}

	if _, err := s.db.ExecContext(
		ctx,
		query,
		user.UserID,
		user.IsBot,
		user.FirstName,
		user.LastName,
		user.Username,
		user.LanguageCode,
		user.IsPremium,
		user.AddedToAttachmentMenu,
		user.AllowsWriteToPM,
		user.PhotoURL,
		user.TonAddress,
		nullableString(user.InviterID),
		user.Score,
		items,
		user.BlockedUntil,
		user.BlockDuration,
	); err != nil {
		s.log.Error("failed to create user", slog.String("user_id", user.UserID), slog.Any("error", err))
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

func (s *postgresUserStore) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) error {
	assignments := make([]string, 0, 6)
	args := []any{userID}

	appendField := func(column string, value *string) {
		if value == nil {
			return
		}
		args = append(args, *value)
		assignments = append(assignments, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	appendField("ton_address", update.TonAddress)
	appendField("first_name", update.FirstName)
	appendField("last_name", update.LastName)
	appendField("username", update.Username)
	appendField("photo_url", update.PhotoURL)
	appendField("language_code", update.LanguageCode)

	if len(assignments) == 0 {
		return nil
	}

	query := "UPDATE users SET " + joinAssignments(assignments) + " WHERE user_id = $1"

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		s.log.Error("failed to update user profile", slog.String("user_id", userID), slog.Any("error", err))
		return fmt.Errorf("update user profile: %w", err)
	}

	return requireRow(res)
}

func (s *postgresUserStore) AppendItem(ctx context.Context, userID, itemType string) error {
	const query = `UPDATE users SET items = items || to_jsonb($2::text) WHERE user_id = $1`

	res, err := s.db.ExecContext(ctx, query, userID, itemType)
	if err != nil {
		s.log.Error("failed to append user item", slog.String("user_id", userID), slog.Any("error", err))
		return fmt.Errorf("append user item: %w", err)
	}

	return requireRow(res)
}

func (s *postgresUserStore) SetBlock(ctx context.Context, userID string, blockedUntil, blockDuration int64) error {
	const query = `UPDATE users SET blocked_until = $2, block_duration = $3 WHERE user_id = $1`

	res, err := s.db.ExecContext(ctx, query, userID, blockedUntil, blockDuration)
	if err != nil {
		s.log.Error("failed to block user", slog.String("user_id", userID), slog.Any("error", err))
		return fmt.Errorf("set user block: %w", err)
	}

	return requireRow(res)
}

func (s *postgresUserStore) Referrals(ctx context.Context, inviterID string) ([]domain.Referral, error) {
	const query = `
		SELECT user_id, first_name, last_name, username
		FROM users
		WHERE inviter_id = $1
		ORDER BY created_at
	`

	rows, err := s.db.QueryContext(ctx, query, inviterID)
	if err != nil {
		s.log.Error("failed to list referrals", slog.String("inviter_id", inviterID), slog.Any("error", err))
		return nil, fmt.Errorf("select referrals: %w", err)
	}
	defer rows.Close()

	referrals := make([]domain.Referral, 0)
	for rows.Next() {
		var ref domain.Referral
		if err := rows.Scan(&ref.UserID, &ref.FirstName, &ref.LastName, &ref.Username); err != nil {
			return nil, fmt.Errorf("scan referral: %w", err)
		}
		referrals = append(referrals, ref)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate referrals: %w", err)
	}

	return referrals, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		user          domain.User
		inviterID     sql.NullString
		currentMazeID sql.NullString
		items         []byte
		lastWidth     sql.NullInt64
		lastHeight    sql.NullInt64
	)

	if err := row.Scan(
		&user.UserID,
		&user.IsBot,
		&user.FirstName,
		&user.LastName,
		&user.Username,
		&user.LanguageCode,
		&user.IsPremium,
		&user.AddedToAttachmentMenu,
		&user.AllowsWriteToPM,
		&user.PhotoURL,
		&user.TonAddress,
		&inviterID,
		&currentMazeID,
		&user.Score,
		&items,
		&user.BlockedUntil,
		&user.BlockDuration,
		&lastWidth,
		&lastHeight,
		&user.CreatedAt,
	); err != nil {
		return nil, err
	}

	user.InviterID = inviterID.String
	user.CurrentMazeID = currentMazeID.String

	if len(items) > 0 {
		if err := json.Unmarshal(items, &user.Items); err != nil {
			return nil, fmt.Errorf("unmarshal user items: %w", err)
		}
	}
	if user.Items == nil {
		user.Items = []string{}
	}

	if lastWidth.Valid && lastHeight.Valid {
		user.LastMazeSize = &domain.MazeSize{
			Width:  int(lastWidth.Int64),
			Height: int(lastHeight.Int64),
		}
	}

	return &user, nil
}

func itemsOrEmpty(items []string) []string {
	if items == nil {
		return []string{}
	}

	return items
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func joinAssignments(assignments []string) string {
	out := assignments[0]
	for _, a := range assignments[1:] {
		out += ", " + a
	}

	return out
}

func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// isUniqueViolation reports whether err is a Postgres duplicate-key error.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
