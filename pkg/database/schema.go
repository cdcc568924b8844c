package database

// since_day and until_day hold the calendar dates of since and until in the
// property timezone. They are written by the application so the exclusion
// constraint can index an immutable expression.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            UUID PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		first_name    TEXT,
		last_name     TEXT,
		role          TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('user', 'admin')),
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS reservations (
		id         UUID PRIMARY KEY,
		user_id    UUID NOT NULL REFERENCES users(id),
		since      TIMESTAMPTZ NOT NULL,
		until      TIMESTAMPTZ NOT NULL,
		since_day  DATE NOT NULL,
		until_day  DATE NOT NULL,
		state      TEXT NOT NULL DEFAULT 'ACTIVE' CHECK (state IN ('ACTIVE', 'CANCELED')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT reservations_since_before_until CHECK (since < until),
		CONSTRAINT reservations_at_least_one_night CHECK (since_day < until_day)
	)`,

	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'reservations_no_overlap') THEN
			ALTER TABLE reservations ADD CONSTRAINT reservations_no_overlap
				EXCLUDE USING gist (daterange(since_day, until_day, '[)') WITH &&)
				WHERE (state = 'ACTIVE');
		END IF;
	END
	$$`,

	`CREATE INDEX IF NOT EXISTS reservations_user_since_idx ON reservations (user_id, since)`,
	`CREATE INDEX IF NOT EXISTS reservations_active_since_day_idx ON reservations (since_day) WHERE state = 'ACTIVE'`,

	`CREATE TABLE IF NOT EXISTS guests (
		id             UUID PRIMARY KEY,
		reservation_id UUID NOT NULL REFERENCES reservations(id) ON DELETE CASCADE,
		position       INT NOT NULL,
		name           TEXT NOT NULL,
		email          TEXT,
		UNIQUE (reservation_id, position)
	)`,

	`CREATE INDEX IF NOT EXISTS guests_name_idx ON guests (lower(name))`,
}
