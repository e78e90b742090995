package db

import (
	"context"
	"fmt"
)

// schema is idempotent. Sub-documents live in JSONB columns; fields used by
// access patterns are promoted to indexed columns.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id              UUID PRIMARY KEY,
		email           TEXT NOT NULL,
		username        TEXT NOT NULL,
		password_hash   TEXT NOT NULL,
		first_name      TEXT NOT NULL CHECK (char_length(first_name) <= 50),
		last_name       TEXT NOT NULL CHECK (char_length(last_name) <= 50),
		profile_picture TEXT,
		bio             TEXT NOT NULL DEFAULT '' CHECK (char_length(bio) <= 500),
		experience      TEXT NOT NULL DEFAULT 'beginner'
		                CHECK (experience IN ('beginner','intermediate','advanced','expert')),
		preferences     JSONB NOT NULL DEFAULT '{}'::jsonb,
		stats           JSONB NOT NULL DEFAULT '{}'::jsonb,
		achievements    JSONB NOT NULL DEFAULT '[]'::jsonb,
		location        JSONB,
		is_active       BOOLEAN NOT NULL DEFAULT TRUE,
		last_login      TIMESTAMPTZ,
		email_verified  BOOLEAN NOT NULL DEFAULT FALSE,
		version         INTEGER NOT NULL DEFAULT 0,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT users_email_key UNIQUE (email),
		CONSTRAINT users_username_key UNIQUE (username),
		CHECK (email = lower(email)),
		CHECK (username = lower(username) AND char_length(username) BETWEEN 3 AND 30)
	)`,
	`CREATE INDEX IF NOT EXISTS users_email_active_idx ON users (email, is_active)`,
	`CREATE INDEX IF NOT EXISTS users_username_active_idx ON users (username, is_active)`,
	`CREATE INDEX IF NOT EXISTS users_points_idx ON users (((stats->>'adventurePoints')::numeric) DESC)`,
	`CREATE INDEX IF NOT EXISTS users_created_idx ON users (created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS trips (
		id          UUID PRIMARY KEY,
		user_id     UUID NOT NULL REFERENCES users (id),
		status      TEXT NOT NULL DEFAULT 'planning'
		            CHECK (status IN ('planning','confirmed','active','completed','cancelled')),
		is_public   BOOLEAN NOT NULL DEFAULT FALSE,
		start_date  TIMESTAMPTZ NOT NULL,
		end_date    TIMESTAMPTZ NOT NULL,
		tags        TEXT[] NOT NULL DEFAULT '{}',
		doc         JSONB NOT NULL,
		version     INTEGER NOT NULL DEFAULT 0,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS trips_owner_status_idx ON trips (user_id, status)`,
	`CREATE INDEX IF NOT EXISTS trips_public_status_idx ON trips (is_public, status)`,
	`CREATE INDEX IF NOT EXISTS trips_dates_idx ON trips (start_date, end_date)`,
	`CREATE INDEX IF NOT EXISTS trips_tags_idx ON trips USING GIN (tags)`,
	`CREATE INDEX IF NOT EXISTS trips_created_idx ON trips (created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS trips_destination_idx ON trips ((doc->'destination'->>'country'), (doc->>'difficulty'))`,
}

// Migrate applies the schema statements in order.
func Migrate(ctx context.Context, q Querier) error {
	for i, stmt := range schema {
		if _, err := q.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
