package utils

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// API keys and their per-interval request limits. A nil map means the
// store was never loaded.
var tokens struct {
	sync.RWMutex
	cache map[string]int
}

var tokenDB struct {
	sync.Mutex
	dsn string
	db  *sql.DB
}

var (
	// ErrInvalidAPIKey signals an unknown API key.
	ErrInvalidAPIKey = errors.New("invalid api key")
	// ErrTokenStoreNotReady signals that no key list has been loaded yet,
	// typically while Postgres is still unreachable at startup.
	ErrTokenStoreNotReady = errors.New("token store not ready")
)

// LoadTokens loads API keys from Postgres when configured, and from the
// static auth.api_keys map otherwise.
func LoadTokens(cfg Config) error {
	if cfg.Auth.Postgres.Host != "" {
		return LoadTokensFromPostgres(cfg.Auth.Postgres)
	}
	LoadTokensFromMap(cfg.Auth.APIKeys)
	return nil
}

func postgresDSN(cfg PostgresConfig) (string, error) {
	if strings.HasPrefix(cfg.Host, "postgres://") || strings.HasPrefix(cfg.Host, "postgresql://") {
		return cfg.Host, nil
	}
	switch {
	case cfg.Host == "":
		return "", fmt.Errorf("postgres host is empty")
	case cfg.Database == "":
		return "", fmt.Errorf("postgres database is empty")
	case cfg.User == "":
		return "", fmt.Errorf("postgres user is empty")
	}

	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	host := cfg.Host
	switch {
	case strings.HasPrefix(host, "["):
		if !strings.Contains(host, "]:") {
			host += ":" + strconv.Itoa(port)
		}
	case strings.Count(host, ":") >= 2:
		// bare IPv6 address
		host = "[" + host + "]:" + strconv.Itoa(port)
	case !strings.Contains(host, ":"):
		host += ":" + strconv.Itoa(port)
	}

	dsn := &url.URL{Scheme: "postgres", Host: host, Path: "/" + cfg.Database}
	if cfg.Password != "" {
		dsn.User = url.UserPassword(cfg.User, cfg.Password)
	} else {
		dsn.User = url.User(cfg.User)
	}
	if cfg.SSLMode != "" {
		dsn.RawQuery = url.Values{"sslmode": {cfg.SSLMode}}.Encode()
	}
	return dsn.String(), nil
}

func getTokenDB(cfg PostgresConfig) (*sql.DB, error) {
	dsn, err := postgresDSN(cfg)
	if err != nil {
		return nil, err
	}

	tokenDB.Lock()
	defer tokenDB.Unlock()

	if tokenDB.db != nil {
		if tokenDB.dsn == dsn {
			return tokenDB.db, nil
		}
		_ = tokenDB.db.Close()
		tokenDB.db, tokenDB.dsn = nil, ""
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	tokenDB.db, tokenDB.dsn = db, dsn
	return db, nil
}

const apiKeysDDL = `CREATE TABLE IF NOT EXISTS api_keys (
	key TEXT PRIMARY KEY,
	rate_limit INTEGER NOT NULL DEFAULT 30,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	comment TEXT
);`

// LoadTokensFromPostgres replaces the in-memory key list with the
// contents of the api_keys table, creating the table when absent.
func LoadTokensFromPostgres(cfg PostgresConfig) error {
	db, err := getTokenDB(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, apiKeysDDL); err != nil {
		return err
	}
	rows, err := db.QueryContext(ctx, `SELECT key, rate_limit FROM api_keys;`)
	if err != nil {
		return err
	}
	defer rows.Close()

	loaded := make(map[string]int)
	for rows.Next() {
		var key string
		var limit int
		if err := rows.Scan(&key, &limit); err != nil {
			return err
		}
		loaded[key] = limit
	}
	if err := rows.Err(); err != nil {
		return err
	}

	tokens.Lock()
	tokens.cache = loaded
	tokens.Unlock()
	Info("API keys loaded", "count", len(loaded))
	return nil
}

// LoadTokensFromMap replaces the in-memory key list with a copy of m.
func LoadTokensFromMap(m map[string]int) {
	loaded := make(map[string]int, len(m))
	for k, v := range m {
		loaded[k] = v
	}
	tokens.Lock()
	tokens.cache = loaded
	tokens.Unlock()
}

// TokensReady reports whether a key list has been loaded at least once.
func TokensReady() bool {
	tokens.RLock()
	defer tokens.RUnlock()
	return tokens.cache != nil
}

// ValidateToken reports whether token is a known API key.
func ValidateToken(token string) bool {
	tokens.RLock()
	defer tokens.RUnlock()
	_, ok := tokens.cache[token]
	return ok
}

// GetRateLimit returns the limit of token. Unknown keys and a limit of 0
// both mean unlimited.
func GetRateLimit(token string) int {
	tokens.RLock()
	defer tokens.RUnlock()
	return tokens.cache[token]
}

// RefreshTokensPeriodically reloads the Postgres key list every interval
// until stop is closed.
func RefreshTokensPeriodically(cfg PostgresConfig, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := LoadTokensFromPostgres(cfg); err != nil {
				Error("Failed to reload API keys", "error", err)
			}
		case <-stop:
			return
		}
	}
}
