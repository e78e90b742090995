package user

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/agehcx/hiking-app-sub000/internal/apperrors"
	"github.com/agehcx/hiking-app-sub000/internal/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const notFoundMessage = "User not found"

const userColumns = `id, email, username, first_name, last_name, profile_picture, bio, experience,
	preferences, stats, achievements, location, is_active, last_login, email_verified,
	version, created_at, updated_at`

var nowFn = time.Now

type Store struct {
	db db.Querier
}

func NewStore(q db.Querier) *Store {
	return &Store{db: q}
}

// Create inserts u with a fresh id. Unique violations surface as
// DuplicateKey errors naming the column.
func (s *Store) Create(ctx context.Context, u User) (User, error) {
	u.ID = uuid.NewString()
	now := nowFn().UTC()
	u.CreatedAt, u.UpdatedAt = now, now

	prefs, stats, achievements, location, err := encodeDocs(u)
	if err != nil {
		return User{}, apperrors.Internal(err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO users (id, email, username, password_hash, first_name, last_name, profile_picture,
			bio, experience, preferences, stats, achievements, location, is_active, email_verified,
			created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`, u.ID, u.Email, u.Username, u.PasswordHash, u.FirstName, u.LastName, u.ProfilePicture,
		u.Bio, u.Experience, prefs, stats, achievements, location, u.IsActive, u.EmailVerified,
		u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return User{}, apperrors.FromDB(err, notFoundMessage)
	}
	return u, nil
}

// FindConflict reports which identity field is already taken: "email",
// "username" or "" when both are free. An email match is reported ahead of
// a username match held by another row. Inputs must be normalized.
func (s *Store) FindConflict(ctx context.Context, email, username string) (string, error) {
	var foundEmail, foundUsername string
	err := s.db.QueryRow(ctx, `
		SELECT email, username FROM users
		WHERE email = $1 OR username = $2
		ORDER BY (email = $1) DESC
		LIMIT 1
	`, email, username).Scan(&foundEmail, &foundUsername)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", apperrors.FromDB(err, notFoundMessage)
	}
	if foundEmail == email {
		return "email", nil
	}
	return "username", nil
}

// FindActiveByEmail is the only read that loads the password hash.
func (s *Store) FindActiveByEmail(ctx context.Context, email string) (User, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+userColumns+`, password_hash
		FROM users WHERE email = $1 AND is_active
	`, email)

	var hash string
	u, err := scanUser(row, &hash)
	if err != nil {
		return User{}, apperrors.FromDB(err, notFoundMessage)
	}
	u.PasswordHash = hash
	return u, nil
}

func (s *Store) FindActiveByID(ctx context.Context, id string) (User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return User{}, apperrors.Cast("Invalid ID format").WithField("id")
	}
	row := s.db.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users WHERE id = $1 AND is_active
	`, id)

	u, err := scanUser(row)
	if err != nil {
		return User{}, apperrors.FromDB(err, notFoundMessage)
	}
	return u, nil
}

func (s *Store) TouchLastLogin(ctx context.Context, id string) (time.Time, error) {
	at := nowFn().UTC()
	tag, err := s.db.Exec(ctx, `
		UPDATE users SET last_login = $2, updated_at = $2, version = version + 1
		WHERE id = $1
	`, id, at)
	if err != nil {
		return time.Time{}, apperrors.FromDB(err, notFoundMessage)
	}
	if tag.RowsAffected() == 0 {
		return time.Time{}, apperrors.NotFound(notFoundMessage)
	}
	return at, nil
}

// Leaderboard lists active users by adventure points, highest first.
func (s *Store) Leaderboard(ctx context.Context, limit int) ([]User, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+userColumns+`
		FROM users WHERE is_active
		ORDER BY (stats->>'adventurePoints')::numeric DESC, created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, apperrors.FromDB(err, notFoundMessage)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, apperrors.FromDB(err, notFoundMessage)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.FromDB(err, notFoundMessage)
	}
	return users, nil
}

func scanUser(row pgx.Row, extra ...any) (User, error) {
	var u User
	var prefs, stats, achievements, location []byte
	dest := []any{
		&u.ID, &u.Email, &u.Username, &u.FirstName, &u.LastName, &u.ProfilePicture, &u.Bio, &u.Experience,
		&prefs, &stats, &achievements, &location, &u.IsActive, &u.LastLogin, &u.EmailVerified,
		&u.Version, &u.CreatedAt, &u.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return User{}, err
	}

	if err := decodeDoc(prefs, &u.Preferences); err != nil {
		return User{}, fmt.Errorf("preferences: %w", err)
	}
	if err := decodeDoc(stats, &u.Stats); err != nil {
		return User{}, fmt.Errorf("stats: %w", err)
	}
	if err := decodeDoc(achievements, &u.Achievements); err != nil {
		return User{}, fmt.Errorf("achievements: %w", err)
	}
	if len(location) > 0 {
		u.Location = &Location{}
		if err := decodeDoc(location, u.Location); err != nil {
			return User{}, fmt.Errorf("location: %w", err)
		}
	}
	if u.Achievements == nil {
		u.Achievements = []Achievement{}
	}
	return u, nil
}

func decodeDoc(raw []byte, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func encodeDocs(u User) (prefs, stats, achievements, location []byte, err error) {
	if prefs, err = json.Marshal(u.Preferences); err != nil {
		return
	}
	if stats, err = json.Marshal(u.Stats); err != nil {
		return
	}
	if u.Achievements == nil {
		u.Achievements = []Achievement{}
	}
	if achievements, err = json.Marshal(u.Achievements); err != nil {
		return
	}
	if u.Location != nil {
		location, err = json.Marshal(u.Location)
	}
	return
}
