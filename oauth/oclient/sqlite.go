package oclient

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var _ TokenStore = &SQLiteStore{}

// SQLiteStore persists credentials in a local SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	sealer *Sealer
}

// OpenSQLite opens the database at path with WAL and a busy timeout. Writes go
// through a single connection to avoid "database is locked" errors.
func OpenSQLite(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)",
		path,
	)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}

// RunMigrations applies the embedded schema migrations. Already-applied
// migrations are skipped.
func RunMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// NewSQLiteStore creates a store on a migrated database.
func NewSQLiteStore(db *sql.DB, sealer *Sealer) *SQLiteStore {
	return &SQLiteStore{db: db, sealer: sealer}
}

// GetToken retrieves the stored credential for openID.
func (s *SQLiteStore) GetToken(ctx context.Context, openID string) (*Credential, error) {
	const query = `SELECT value FROM credentials WHERE openid = ?`
	var value []byte
	err := s.db.QueryRowContext(ctx, query, openID).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &StoreError{Op: "get", OpenID: openID, Err: err}
	}
	cred, err := s.sealer.Unmarshal(value)
	if err != nil {
		return nil, &StoreError{Op: "get", OpenID: openID, Err: err}
	}
	return cred, nil
}

// SaveToken upserts the credential for openID.
func (s *SQLiteStore) SaveToken(ctx context.Context, openID string, cred *Credential) error {
	value, err := s.sealer.Marshal(cred)
	if err != nil {
		return &StoreError{Op: "save", OpenID: openID, Err: err}
	}
	const query = `INSERT INTO credentials (openid, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(openid) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`
	if _, err := s.db.ExecContext(ctx, query, openID, value); err != nil {
		return &StoreError{Op: "save", OpenID: openID, Err: err}
	}
	return nil
}
