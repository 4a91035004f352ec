package postgres

import (
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"url2pdf/internal/config"
)

// DB keeps a single *sql.DB open for the current DSN.
type DB struct {
	mu  sync.Mutex
	dsn string
	db  *sql.DB
}

func NewDB() *DB {
	return &DB{}
}

// Get returns the pool for dsn, replacing the previous one when the DSN
// changed. Connections are opened lazily.
func (d *DB) Get(dsn string) (*sql.DB, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db != nil && d.dsn == dsn {
		return d.db, nil
	}
	if d.db != nil {
		_ = d.db.Close()
		d.db = nil
		d.dsn = ""
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// This is a small, low-throughput control plane table.
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	d.db = db
	d.dsn = dsn
	return d.db, nil
}

func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	d.dsn = ""
	return err
}

// BuildDSN returns the connection URL for the token table. auth.postgres_dsn
// wins, then a postgres:// URL placed in auth.postgres.host; otherwise the URL
// is assembled from host, port, database, user and sslmode. Port defaults to
// 5432 unless the host already names one.
func BuildDSN(auth config.AuthConfig) (string, error) {
	if auth.PostgresDSN != "" {
		return auth.PostgresDSN, nil
	}
	pg := auth.Postgres
	if strings.HasPrefix(pg.Host, "postgres://") || strings.HasPrefix(pg.Host, "postgresql://") {
		return pg.Host, nil
	}
	for _, f := range []struct{ name, value string }{
		{"host", pg.Host},
		{"database", pg.Database},
		{"user", pg.User},
	} {
		if f.value == "" {
			return "", fmt.Errorf("auth.postgres.%s is empty", f.name)
		}
	}

	dsn := &url.URL{
		Scheme: "postgres",
		Host:   tokenDBAddr(pg),
		Path:   "/" + pg.Database,
		User:   url.User(pg.User),
	}
	if pg.Password != "" {
		dsn.User = url.UserPassword(pg.User, pg.Password)
	}
	if pg.SSLMode != "" {
		dsn.RawQuery = url.Values{"sslmode": {pg.SSLMode}}.Encode()
	}
	return dsn.String(), nil
}

// tokenDBAddr accepts "db", "db:7000", "::1", "[::1]" and "[::1]:7000".
func tokenDBAddr(pg config.PostgresConfig) string {
	if _, _, err := net.SplitHostPort(pg.Host); err == nil {
		return pg.Host
	}
	port := pg.Port
	if port == 0 {
		port = 5432
	}
	host := strings.TrimSuffix(strings.TrimPrefix(pg.Host, "["), "]")
	return net.JoinHostPort(host, strconv.Itoa(port))
}
