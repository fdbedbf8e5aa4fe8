package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/xid"
	"go.uber.org/zap"

	"chat-backend/internal/storage/zapadapter"
)

var (
	ErrUserExists   = errors.New("user already exists")
	ErrUserNotExist = errors.New("user does not exist")
	ErrMessageBadID = errors.New("bad sender or recipient id")
)

// MaxTextLength bounds message text at the storage layer (enforced by a check
// constraint as well, see migrate.go).
const MaxTextLength = 1000

var ErrTextTooLong = errors.New("message text exceeds maximum length")

// Store defines fields used in db interaction processes
type Store struct {
	logger *zap.SugaredLogger
	db     *pgxpool.Pool
}

// New sets provided zap logger via zapadapter into the pool config and returns
// a connected Store instance
func New(ctx context.Context, logger *zap.SugaredLogger, cfg Config, opts ...Option) (*Store, error) {
	config, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, err
	}
	config.ConnConfig.Logger = zapadapter.NewLogger(logger.Desugar())

	for _, opt := range opts {
		opt.apply(config)
	}

	pool, err := pgxpool.ConnectConfig(ctx, config)
	if err != nil {
		return nil, err
	}

	return &Store{
		logger: logger,
		db:     pool,
	}, nil
}

// Close releases the underlying pool
func (s *Store) Close() {
	s.db.Close()
}

// CreateUser creates a user with the provided username and bcrypt hash and returns the full record
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) (User, error) {
	s.logger.Debugf("Creating user (%s)", username)

	u := User{
		ID:        xid.New().String(),
		Username:  username,
		CreatedAt: time.Now(),
	}

	sql := "insert into users (id, username, password_hash, created_at) values ($1, $2, $3, $4)"
	_, err := s.db.Exec(ctx, sql, u.ID, username, passwordHash, u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return User{}, ErrUserExists
		}
		return User{}, err
	}

	s.logger.Debugf("Created user (%s) with id %s", username, u.ID)

	return u, nil
}

// UserByUsername returns the full user record including the password hash
func (s *Store) UserByUsername(ctx context.Context, username string) (User, error) {
	var u User
	sql := "select id, username, password_hash, created_at from users where username = $1"
	err := s.db.QueryRow(ctx, sql, username).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotExist
		}
		return User{}, err
	}

	return u, nil
}

// Users returns all registered users ordered by registration time
func (s *Store) Users(ctx context.Context) ([]User, error) {
	sql := "select id, username, created_at from users order by created_at asc"
	rows, err := s.db.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		var u User
		err = rows.Scan(&u.ID, &u.Username, &u.CreatedAt)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	s.logger.Debugf("Retrieved %d users", len(users))

	return users, nil
}

// CreateMessage creates a new message and returns the stored record with its
// assigned id and timestamps. Text length is checked before touching the pool.
func (s *Store) CreateMessage(ctx context.Context, from, to, text string) (Message, error) {
	s.logger.Debugf("Creating message from user (id: %s) to user (id: %s)", from, to)

	if len(text) > MaxTextLength {
		return Message{}, ErrTextTooLong
	}

	now := time.Now()
	m := Message{
		ID:        xid.New().String(),
		From:      from,
		To:        to,
		Text:      text,
		CreatedAt: now,
		UpdatedAt: now,
	}

	sql := "insert into messages (id, from_id, to_id, text, created_at, updated_at) values ($1, $2, $3, $4, $5, $6)"
	_, err := s.db.Exec(ctx, sql, m.ID, m.From, m.To, m.Text, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgerrcode.ForeignKeyViolation:
				return Message{}, ErrMessageBadID
			case pgerrcode.CheckViolation:
				return Message{}, ErrTextTooLong
			}
		}
		return Message{}, err
	}

	s.logger.Debugf("Created message with id %s", m.ID)

	return m, nil
}

// Conversation returns all messages exchanged between the two users in either
// direction, sorted by creation time (from earliest to latest)
func (s *Store) Conversation(ctx context.Context, userA, userB string) ([]Message, error) {
	s.logger.Debugf("Retrieving conversation between %s and %s", userA, userB)

	sql := `select id, from_id, to_id, text, created_at, updated_at
			  from messages
			 where (from_id = $1 and to_id = $2)
				or (from_id = $2 and to_id = $1)
			 order by created_at asc`

	rows, err := s.db.Query(ctx, sql, userA, userB)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		var m Message
		err = rows.Scan(&m.ID, &m.From, &m.To, &m.Text, &m.CreatedAt, &m.UpdatedAt)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	s.logger.Debugf("Retrieved %d messages", len(messages))

	return messages, nil
}
