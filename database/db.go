package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"roomchat/models"
)

// Supported drivers
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when an insert hits a unique constraint.
	ErrDuplicate = errors.New("record already exists")
)

// DB wraps the connection pool and the SQL dialect in use.
type DB struct {
	conn   *sql.DB
	driver string
	now    func() time.Time

	// appendMu makes createdAt non-decreasing in insertion order.
	appendMu    sync.Mutex
	lastCreated time.Time
}

// Open connects to the database and creates tables
func Open(driver, dsn string) (*DB, error) {
	switch driver {
	case DriverSQLite:
		return openSQLite(dsn)
	case DriverPostgres:
		return openPostgres(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func openSQLite(path string) (*DB, error) {
	conn, err := sql.Open(DriverSQLite, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writers anyway; one connection also keeps
	// ":memory:" databases from splitting per connection.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{conn: conn, driver: DriverSQLite, now: time.Now}
	if _, err := conn.Exec(sqliteSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return db, nil
}

const sqliteSchema = `
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	email TEXT UNIQUE NOT NULL,
	password TEXT NOT NULL,
	is_disabled INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	user_id INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL,
	FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS messages (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT UNIQUE NOT NULL,
	text TEXT NOT NULL DEFAULT '',
	user_email TEXT NOT NULL DEFAULT '',
	user_id TEXT NOT NULL DEFAULT '',
	image_url TEXT,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at, seq);
CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);
`

// Close closes the underlying pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping verifies the connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// rebind rewrites ? placeholders into $n for postgres.
func (db *DB) rebind(query string) string {
	if db.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// User queries

// CreateUser inserts a new user into the database
func (db *DB) CreateUser(ctx context.Context, email, passwordHash string) (*models.User, error) {
	createdAt := db.now()

	var id int64
	err := db.conn.QueryRowContext(ctx,
		db.rebind("INSERT INTO users (email, password, created_at) VALUES (?, ?, ?) RETURNING id"),
		email, passwordHash, toNanos(createdAt),
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return db.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by their ID
func (db *DB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return db.scanUser(db.conn.QueryRowContext(ctx,
		db.rebind("SELECT id, email, password, is_disabled, created_at FROM users WHERE id = ?"),
		id,
	))
}

// GetUserByEmail retrieves a user by their email
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return db.scanUser(db.conn.QueryRowContext(ctx,
		db.rebind("SELECT id, email, password, is_disabled, created_at FROM users WHERE email = ?"),
		email,
	))
}

func (db *DB) scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	var createdAt int64
	err := row.Scan(&user.ID, &user.Email, &user.Password, &user.IsDisabled, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read user: %w", err)
	}
	user.CreatedAt = fromNanos(createdAt)
	return user, nil
}

// Session queries

// CreateSession creates a new session for a user
func (db *DB) CreateSession(ctx context.Context, sessionID string, userID int64, expiresAt time.Time) error {
	_, err := db.conn.ExecContext(ctx,
		db.rebind("INSERT INTO sessions (id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)"),
		sessionID, userID, toNanos(db.now()), toNanos(expiresAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSession retrieves an unexpired session by its ID
func (db *DB) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	session := &models.Session{}
	var createdAt, expiresAt int64
	err := db.conn.QueryRowContext(ctx,
		db.rebind("SELECT id, user_id, created_at, expires_at FROM sessions WHERE id = ? AND expires_at > ?"),
		sessionID, toNanos(db.now()),
	).Scan(&session.ID, &session.UserID, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	session.CreatedAt = fromNanos(createdAt)
	session.ExpiresAt = fromNanos(expiresAt)
	return session, nil
}

// DeleteSession removes a session
func (db *DB) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := db.conn.ExecContext(ctx, db.rebind("DELETE FROM sessions WHERE id = ?"), sessionID)
	return err
}

// DeleteExpiredSessions removes sessions past their expiry and reports how many went.
func (db *DB) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	result, err := db.conn.ExecContext(ctx,
		db.rebind("DELETE FROM sessions WHERE expires_at <= ?"), toNanos(db.now()))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Message queries

// CreateMessage appends a message to the global room. ID and CreatedAt
// are assigned here and written back into msg.
func (db *DB) CreateMessage(ctx context.Context, msg *models.Message) error {
	msg.ID = uuid.New().String()

	db.appendMu.Lock()
	defer db.appendMu.Unlock()

	createdAt := db.now().UTC()
	if createdAt.Before(db.lastCreated) {
		createdAt = db.lastCreated
	}
	msg.CreatedAt = createdAt

	_, err := db.conn.ExecContext(ctx,
		db.rebind("INSERT INTO messages (id, text, user_email, user_id, image_url, created_at) VALUES (?, ?, ?, ?, ?, ?)"),
		msg.ID, msg.Text, msg.User, msg.UserID, msg.ImageURL, toNanos(msg.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	db.lastCreated = createdAt
	return nil
}

// ListMessages returns the whole room ordered by creation time, ties in
// insertion order.
func (db *DB) ListMessages(ctx context.Context) ([]models.Message, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, text, user_email, user_id, image_url, created_at
		FROM messages
		ORDER BY created_at ASC, seq ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var (
			msg       models.Message
			imageURL  sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&msg.ID, &msg.Text, &msg.User, &msg.UserID, &imageURL, &createdAt); err != nil {
			return nil, err
		}
		if imageURL.Valid {
			url := imageURL.String
			msg.ImageURL = &url
		}
		msg.CreatedAt = fromNanos(createdAt)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// CountMessages returns the number of messages in the room.
func (db *DB) CountMessages(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&count)
	return count, err
}

func isUniqueViolation(err error) bool {
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return isPostgresUniqueViolation(err)
}
