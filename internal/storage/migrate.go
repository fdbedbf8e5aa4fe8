package storage

import "context"

var migrations = []string{
	`create table if not exists users (
		id            text primary key,
		username      text not null unique,
		password_hash text not null,
		created_at    timestamptz not null
	)`,
	`create table if not exists messages (
		id         text primary key,
		from_id    text not null references users (id),
		to_id      text not null references users (id),
		text       text not null check (char_length(text) between 1 and 1000),
		created_at timestamptz not null,
		updated_at timestamptz not null
	)`,
	`create index if not exists messages_pair_idx on messages (from_id, to_id, created_at)`,
}

// Migrate applies the schema statements in order. Every statement is
// idempotent, so running it on each boot is safe.
func (s *Store) Migrate(ctx context.Context) error {
	for _, sql := range migrations {
		if _, err := s.db.Exec(ctx, sql); err != nil {
			return err
		}
	}

	s.logger.Info("Schema is up to date")

	return nil
}
