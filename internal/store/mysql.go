package store

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"log/slog"

	"github.com/go-sql-driver/mysql"
	"github.com/jekabolt/grbpwr-analytics/internal/dependency"
	"github.com/jekabolt/grbpwr-analytics/internal/schema"
	"github.com/jmoiron/sqlx"
	migrate "github.com/rubenv/sql-migrate"
)

// Config holds the MySQL connection settings.
type Config struct {
	DSN                string `mapstructure:"dsn"`
	Automigrate        bool   `mapstructure:"automigrate"`
	MaxOpenConnections int    `mapstructure:"max_open_connections"`
	MaxIdleConnections int    `mapstructure:"max_idle_connections"`
	TLSCAPath          string `mapstructure:"tls_ca_path"`
	// TablePrefix is prepended to every lookup table name, wp_ by default.
	TablePrefix string `mapstructure:"table_prefix"`
}

// MYSQLStore reads the WooCommerce Admin lookup tables. Inside Tx, db is the
// transaction and tx is set.
type MYSQLStore struct {
	db     dependency.DB
	tx     *sqlx.Tx
	tables schema.Tables
	close  context.CancelFunc
}

// certDirs are searched in order for CA paths of the form @certs/<file>.
var certDirs = []string{
	"./config/certs",
	"$HOME/config/grbpwr-analytics/certs",
	"/etc/grbpwr-analytics/certs",
}

func resolveCertPath(path string) string {
	name, ok := strings.CutPrefix(path, "@certs/")
	if !ok {
		return path
	}
	for _, dir := range certDirs {
		candidate := filepath.Join(os.ExpandEnv(dir), name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return filepath.Join(certDirs[0], name)
}

// registerTLSConfig registers the CA from TLSCAPath under the "custom" name,
// DSNs opt in with tls=custom.
func registerTLSConfig(cfg Config) error {
	if cfg.TLSCAPath == "" {
		return nil
	}
	path := resolveCertPath(cfg.TLSCAPath)
	pem, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read CA %s: %w", path, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return fmt.Errorf("no certificates in %s", path)
	}
	slog.Default().Info("mysql tls enabled", slog.String("ca", path))
	return mysql.RegisterTLSConfig("custom", &tls.Config{RootCAs: pool})
}

const (
	connMaxLifetime = 2 * time.Minute
	connMaxIdleTime = 30 * time.Second
	pingTimeout     = 10 * time.Second
	migrateTimeout  = 5 * time.Minute
)

// Open connects to the database and applies migrations when configured.
func Open(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	if err := registerTLSConfig(cfg); err != nil {
		return nil, fmt.Errorf("mysql tls: %w", err)
	}
	d, err := sqlx.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	tunePool(d, cfg)

	if err := prepare(ctx, d, cfg.Automigrate); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func tunePool(d *sqlx.DB, cfg Config) {
	if n := cfg.MaxOpenConnections; n > 0 {
		d.SetMaxOpenConns(n)
	}
	if n := cfg.MaxIdleConnections; n > 0 {
		d.SetMaxIdleConns(n)
	}
	d.SetConnMaxLifetime(connMaxLifetime)
	d.SetConnMaxIdleTime(connMaxIdleTime)
}

// prepare checks connectivity and runs pending migrations when migrateUp
// is set.
func prepare(ctx context.Context, d *sqlx.DB, migrateUp bool) error {
	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := d.PingContext(pctx); err != nil {
		return fmt.Errorf("ping mysql: %w", err)
	}
	if !migrateUp {
		return nil
	}

	mctx, cancel := context.WithTimeout(ctx, migrateTimeout)
	defer cancel()
	slog.Default().InfoContext(ctx, "applying migrations")
	return MigrateWithContext(mctx, d.DB)
}

// New opens the database and returns a store reading the lookup tables
// named by cfg.TablePrefix. The connection closes when ctx is done or Close
// is called.
func New(ctx context.Context, cfg Config) (*MYSQLStore, error) {
	d, err := Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	prefix := cfg.TablePrefix
	if prefix == "" {
		prefix = schema.DefaultPrefix
	}

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		<-ctx.Done()
		d.Close()
	}()

	return &MYSQLStore{
		db:     d,
		tables: schema.New(prefix),
		close:  cancel,
	}, nil
}

//go:embed sql
var fs embed.FS

var migrations = &migrate.EmbedFileSystemMigrationSource{
	FileSystem: fs,
	Root:       "sql",
}

// MigrateWithContext applies every pending migration. migrate.Exec takes
// no context, so ctx only bounds how long the caller waits.
func MigrateWithContext(ctx context.Context, db *sql.DB) error {
	errc := make(chan error, 1)
	var applied int
	go func() {
		n, err := migrate.Exec(db, "mysql", migrations, migrate.Up)
		applied = n
		errc <- err
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("migrations interrupted: %w", ctx.Err())
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	}
	slog.Default().InfoContext(ctx, "applied migrations", slog.Int("count", applied))
	return nil
}

// Rollback reverts at most steps migrations, all of them when steps is 0.
func Rollback(ctx context.Context, db *sql.DB, steps int) (int, error) {
	n, err := migrate.ExecMax(db, "mysql", migrations, migrate.Down, steps)
	if err != nil {
		return n, fmt.Errorf("roll back migrations: %w", err)
	}
	slog.Default().InfoContext(ctx, "rolled back migrations", slog.Int("count", n))
	return n, nil
}

func (ms *MYSQLStore) Close() {
	ms.close()
}

// Ping runs a trivial query, bounded to five seconds.
func (ms *MYSQLStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var one int
	if err := ms.db.GetContext(ctx, &one, "SELECT 1"); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// ResetStats deletes every row of the stats lookup tables in one transaction.
func (ms *MYSQLStore) ResetStats(ctx context.Context) error {
	return ms.Tx(ctx, func(ctx context.Context, rep dependency.Repository) error {
		for _, table := range ms.tables.Stats() {
			if err := ExecNamed(ctx, rep.DB(), "DELETE FROM "+table, nil); err != nil {
				return fmt.Errorf("can't reset %s: %w", table, err)
			}
		}
		return nil
	})
}
