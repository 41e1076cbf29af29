// Package metadata provides the SQL store for registered share connections
// and chat history. PostgreSQL (lib/pq) and embedded SQLite are supported
// with the same queries.
package metadata

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/Harshal1803/Raspberry-NAS-Server/internal/logging"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/metrics"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

//go:embed migrations
var migrations embed.FS

// Dialect names the SQL backend.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// Store is a metadata store.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// ConnectionRow maps to the connections table.
type ConnectionRow struct {
	ID             string
	Host           string
	Share          string
	Username       string
	SealedPassword []byte
	CreatedAt      time.Time
	LastUsedAt     *time.Time
}

// HistoryRow maps to the chat_history table.
type HistoryRow struct {
	ID           int64     `json:"id"`
	ConnectionID string    `json:"-"`
	Query        string    `json:"query"`
	Action       string    `json:"action"`
	Response     string    `json:"response"`
	Success      bool      `json:"success"`
	CreatedAt    time.Time `json:"created_at"`
}

// Open connects to databaseURL. postgres:// and postgresql:// URLs use
// lib/pq; sqlite://<path> (or a bare file path) uses the embedded driver.
func Open(databaseURL string) (*Store, error) {
	dialect, dsn := parseURL(databaseURL)

	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if dialect == SQLite {
		// A single writer avoids SQLITE_BUSY between pooled connections.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{db: db, dialect: dialect}, nil
}

func parseURL(u string) (Dialect, string) {
	switch {
	case strings.HasPrefix(u, "postgres://"), strings.HasPrefix(u, "postgresql://"):
		return Postgres, u
	case strings.HasPrefix(u, "sqlite://"):
		u = strings.TrimPrefix(u, "sqlite://")
	}
	if !strings.Contains(u, "?") {
		u += "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}
	return SQLite, u
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect reports which backend the store talks to.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// UpdateConnectionMetrics updates the database connection metrics.
func (s *Store) UpdateConnectionMetrics() {
	metrics.SetDBConnectionsOpen(s.db.Stats().OpenConnections)
}

// Migrate runs the embedded migrations for the store's dialect in file
// name order. Migrations are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	dir := path.Join("migrations", string(s.dialect))
	files, err := fs.Glob(migrations, path.Join(dir, "*.up.sql"))
	if err != nil {
		return fmt.Errorf("glob migrations: %w", err)
	}

	for _, f := range files {
		logging.Info("running migration", zap.String("file", path.Base(f)))
		content, err := migrations.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
	}

	return nil
}

var placeholder = regexp.MustCompile(`\$\d+`)

// q adapts a query written with $N placeholders to the store's dialect.
// Placeholders must appear in argument order.
func (s *Store) q(query string) string {
	if s.dialect == Postgres {
		return query
	}
	return placeholder.ReplaceAllString(query, "?")
}

// CreateConnection inserts a connection row. CreatedAt is set when zero.
func (s *Store) CreateConnection(ctx context.Context, c *ConnectionRow) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("create_connection", time.Since(start)) }()

	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, s.q(
		`INSERT INTO connections (id, host, share, username, password_sealed, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`),
		c.ID, c.Host, c.Share, c.Username, c.SealedPassword, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert connection: %w", err)
	}
	logging.WithContext(ctx).Debug("created connection", logging.ConnectionID(c.ID), zap.String("host", c.Host))
	return nil
}

// GetConnection returns the connection with the given id.
func (s *Store) GetConnection(ctx context.Context, id string) (*ConnectionRow, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("get_connection", time.Since(start)) }()

	var c ConnectionRow
	var lastUsed sql.NullTime
	err := s.db.QueryRowContext(ctx, s.q(
		`SELECT id, host, share, username, password_sealed, created_at, last_used_at
		 FROM connections WHERE id = $1`), id).
		Scan(&c.ID, &c.Host, &c.Share, &c.Username, &c.SealedPassword, &c.CreatedAt, &lastUsed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get connection: %w", err)
	}
	if lastUsed.Valid {
		c.LastUsedAt = &lastUsed.Time
	}
	return &c, nil
}

// TouchConnection records that a connection was used.
func (s *Store) TouchConnection(ctx context.Context, id string) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("touch_connection", time.Since(start)) }()

	res, err := s.db.ExecContext(ctx, s.q(
		`UPDATE connections SET last_used_at = $1 WHERE id = $2`), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("touch connection: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendHistory inserts a chat history row. CreatedAt is set when zero.
func (s *Store) AppendHistory(ctx context.Context, h *HistoryRow) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("append_history", time.Since(start)) }()

	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, s.q(
		`INSERT INTO chat_history (connection_id, query, action, response, success, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`),
		h.ConnectionID, h.Query, h.Action, h.Response, h.Success, h.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

// ListHistory returns up to limit history rows for a connection, newest
// first.
func (s *Store) ListHistory(ctx context.Context, connectionID string, limit int) ([]HistoryRow, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("list_history", time.Since(start)) }()

	rows, err := s.db.QueryContext(ctx, s.q(
		`SELECT id, connection_id, query, action, response, success, created_at
		 FROM chat_history WHERE connection_id = $1
		 ORDER BY created_at DESC, id DESC LIMIT $2`), connectionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []HistoryRow
	for rows.Next() {
		var h HistoryRow
		if err := rows.Scan(&h.ID, &h.ConnectionID, &h.Query, &h.Action,
			&h.Response, &h.Success, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
