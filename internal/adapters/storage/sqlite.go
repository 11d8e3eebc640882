package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/jsamuelsen/quotebot/internal/domain"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// SQLiteStore keeps the QuoteSet in a positional table.
// Save replaces every row inside one transaction. Transactions begin
// IMMEDIATE, so WithLock holds the database write lock from its first Load
// to the final Save.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// lockedTx marks a context running inside WithLock of one store.
type lockedTx struct{ store *SQLiteStore }

// sqliteDSN sets the connection pragmas on every pooled connection.
func sqliteDSN(path string, busyTimeout time.Duration) string {
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")

	if busyTimeout > 0 {
		q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds()))
	}

	q.Set("_txlock", "immediate")

	return path + "?" + q.Encode()
}

// OpenSQLite opens (creating if needed) the database at path and applies migrations.
func OpenSQLite(ctx context.Context, path string, busyTimeout time.Duration, logger *slog.Logger) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}

	if strings.ContainsRune(path, '?') {
		return nil, fmt.Errorf("sqlite path %q must not contain '?'", path)
	}

	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, domain.NewStorageError("open", path, err)
	}

	db, err := sql.Open("sqlite", sqliteDSN(path, busyTimeout))
	if err != nil {
		return nil, domain.NewStorageError("open", path, err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	// The first connection applies the pragmas; a bad one fails here.
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, domain.NewStorageError("open", path, fmt.Errorf("applying pragmas: %w", err))
	}

	s := &SQLiteStore{db: db, path: path, logger: logger}
	s.checkJournalMode(ctx)

	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, domain.NewStorageError("open", path, err)
	}

	return s, nil
}

// checkJournalMode warns when SQLite silently kept another journal mode,
// as it does on filesystems without shared memory support.
func (s *SQLiteStore) checkJournalMode(ctx context.Context) {
	var mode string
	if err := s.db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err != nil {
		s.logger.WarnContext(ctx, "reading sqlite journal mode", slog.String("path", s.path), slog.Any("error", err))
		return
	}

	if !strings.EqualFold(mode, "wal") {
		s.logger.WarnContext(ctx, "sqlite is not in WAL mode",
			slog.String("path", s.path),
			slog.String("journal_mode", mode),
		)
	}
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, string(b))

	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// txFrom returns the transaction WithLock opened on ctx, if any.
func (s *SQLiteStore) txFrom(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(lockedTx{s}).(*sql.Tx)

	return tx, ok
}

func (s *SQLiteStore) conn(ctx context.Context) querier {
	if tx, ok := s.txFrom(ctx); ok {
		return tx
	}

	return s.db
}

// WithLock runs fn inside one IMMEDIATE transaction. Load and Save called
// with fn's ctx join it; the transaction commits only if fn returns nil.
// Writers in other processes wait up to the busy timeout, then fail with
// StorageUnavailable.
func (s *SQLiteStore) WithLock(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.NewStorageError("lock", s.path, err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(context.WithValue(ctx, lockedTx{s}, tx)); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return domain.NewStorageError("save", s.path, err)
	}

	return nil
}

// Load reads every row in position order.
func (s *SQLiteStore) Load(ctx context.Context) (domain.QuoteSet, error) {
	rows, err := s.conn(ctx).QueryContext(ctx,
		`SELECT text, author, theme, used FROM quotes ORDER BY position`)
	if err != nil {
		return nil, domain.NewStorageError("load", s.path, err)
	}
	defer rows.Close()

	set := domain.QuoteSet{}

	for rows.Next() {
		var q domain.Quote
		if err := rows.Scan(&q.Text, &q.Author, &q.Theme, &q.Used); err != nil {
			return nil, domain.NewMalformedDataError(len(set), "", err.Error())
		}

		if q.Text == "" {
			return nil, domain.NewMalformedDataError(len(set), "text", "must not be empty")
		}

		if q.Theme == "" {
			return nil, domain.NewMalformedDataError(len(set), "theme", "must not be empty")
		}

		set = append(set, q)
	}

	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("load", s.path, err)
	}

	return set, nil
}

// Save replaces the table contents with set. Inside WithLock the rows join
// its transaction; otherwise Save runs its own.
func (s *SQLiteStore) Save(ctx context.Context, set domain.QuoteSet) error {
	var err error
	if tx, ok := s.txFrom(ctx); ok {
		err = replaceRows(ctx, tx, set)
	} else {
		err = s.WithLock(ctx, func(ctx context.Context) error {
			tx, _ := s.txFrom(ctx)
			return replaceRows(ctx, tx, set)
		})
	}

	if err != nil {
		if domain.IsStorageUnavailable(err) {
			return err
		}

		return domain.NewStorageError("save", s.path, err)
	}

	s.logger.DebugContext(ctx, "quotes saved",
		slog.String("path", s.path),
		slog.Int("count", len(set)),
	)

	return nil
}

func replaceRows(ctx context.Context, q querier, set domain.QuoteSet) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM quotes`); err != nil {
		return err
	}

	stmt, err := q.PrepareContext(ctx,
		`INSERT INTO quotes(position, text, author, theme, used) VALUES(?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, quote := range set {
		if _, err := stmt.ExecContext(ctx, i, quote.Text, quote.Author, quote.Theme, quote.Used); err != nil {
			return err
		}
	}

	return nil
}

// Name implements ports.HealthChecker.
func (s *SQLiteStore) Name() string { return "quote-store" }

// Check pings the database.
func (s *SQLiteStore) Check(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}

	return s.db.Close()
}
