package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// MemoryDSN keeps the journal inside the process; nothing survives a restart.
const MemoryDSN = "file::memory:?cache=shared"

// Open accepts either a sqlite DSN ("file:...", ":memory:") or a plain file path.
func Open(dsn string) (*sql.DB, error) {
	inMemory := strings.Contains(dsn, ":memory:")
	if !strings.HasPrefix(dsn, "file:") && !inMemory {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir journal dir: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", dsn)
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if inMemory {
		// an in-memory database disappears with its last connection
		db.SetMaxOpenConns(1)
		db.SetConnMaxLifetime(0)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA synchronous=NORMAL; PRAGMA temp_store=MEMORY;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS notifications (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			intent_id TEXT NOT NULL,
			intent_type TEXT NOT NULL,
			kind TEXT NOT NULL,
			subject TEXT NOT NULL,
			severity TEXT NOT NULL,
			summary TEXT NOT NULL,
			channel TEXT NOT NULL,
			status TEXT NOT NULL,
			last_error TEXT,
			created_ts DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_created ON notifications(created_ts DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_intent ON notifications(intent_id);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate failed: %w", err)
		}
	}
	return nil
}
