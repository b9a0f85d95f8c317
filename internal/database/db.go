package database

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/TickerVal-io/tickerval/internal/config"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

var (
	db     *sql.DB
	driver string
)

// Init opens the database connection and creates the schema.
func Init(cfg *config.Config) error {
	driver = cfg.Database.Driver

	var dsn string
	switch driver {
	case "postgres":
		dsn = cfg.Database.DSN
		if dsn == "" {
			return fmt.Errorf("postgres driver selected but database.dsn is empty")
		}
	case "sqlite3":
		dataDir := filepath.Dir(cfg.Database.Path)
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %v", err)
		}
		dsn = cfg.Database.Path
		if cfg.Database.WALMode {
			dsn += "?_journal=WAL"
		}
	default:
		return fmt.Errorf("unsupported database driver %q", driver)
	}

	// Connect with retries, matching container start ordering.
	var lastErr error
	for i := 0; i < cfg.Database.MaxRetries; i++ {
		var err error
		db, err = sql.Open(driver, dsn)
		if err != nil {
			lastErr = fmt.Errorf("failed to open database: %v", err)
			log.Printf("Attempt %d/%d failed: %v", i+1, cfg.Database.MaxRetries, lastErr)
			time.Sleep(time.Duration(cfg.Database.RetryDelay) * time.Second)
			continue
		}
		if err := db.Ping(); err != nil {
			lastErr = fmt.Errorf("failed to ping database: %v", err)
			log.Printf("Attempt %d/%d failed: %v", i+1, cfg.Database.MaxRetries, lastErr)
			time.Sleep(time.Duration(cfg.Database.RetryDelay) * time.Second)
			continue
		}
		lastErr = nil
		break
	}
	if lastErr != nil {
		return fmt.Errorf("failed to connect to database after %d attempts: %v", cfg.Database.MaxRetries, lastErr)
	}

	if driver == "sqlite3" {
		db.SetMaxOpenConns(1) // SQLite only supports one writer
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(time.Hour)
	}

	if err := initTables(); err != nil {
		return fmt.Errorf("failed to initialize tables: %v", err)
	}

	log.Printf("Database initialized (driver: %s)", driver)
	return nil
}

// GetDB returns the database connection
func GetDB() *sql.DB {
	return db
}

// Driver returns the active driver name ("sqlite3" or "postgres").
func Driver() string {
	return driver
}

// Close closes the database connection
func Close() error {
	if db != nil {
		return db.Close()
	}
	return nil
}

// Rebind converts ?-style placeholders to $N for postgres. Queries in this
// codebase are written with ? and passed through here before execution.
func Rebind(query string) string {
	if driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// initTables creates the necessary tables if they don't exist
func initTables() error {
	// Email is the primary key throughout; there are no internal user IDs.
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			email TEXT PRIMARY KEY,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create users table: %v", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			token TEXT PRIMARY KEY,
			email TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			expires_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create sessions table: %v", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS subscriptions (
			email TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			plan_id TEXT,
			current_period_start TIMESTAMP,
			current_period_end TIMESTAMP,
			source TEXT,
			event_time TIMESTAMP,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create subscriptions table: %v", err)
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_sessions_email ON sessions(email)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_subscriptions_status ON subscriptions(status)`,
	}
	for _, stmt := range indexes {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create indexes: %v", err)
		}
	}

	return nil
}
