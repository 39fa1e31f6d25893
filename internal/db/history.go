package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"
)

const schemaSQL = `CREATE TABLE IF NOT EXISTS command_history (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session    TEXT    NOT NULL,
	command    TEXT    NOT NULL,
	created_ms INTEGER NOT NULL
)`

// nowFunc stamps recorded commands; tests pin it.
var nowFunc = time.Now

// Entry is one recorded command.
type Entry struct {
	ID      int64
	Session string
	Command string
	At      time.Time
}

// History is the command history table. It is safe for concurrent use.
type History struct {
	db     *sql.DB
	mu     sync.Mutex
	closed bool
}

// OpenHistory connects to dbURL and creates the history table if needed.
func OpenHistory(ctx context.Context, dbURL string) (*History, error) {
	conn, err := Connect(dbURL)
	if err != nil {
		return nil, err
	}
	if _, err := conn.ExecContext(ctx, schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("history schema: %w", err)
	}
	return &History{db: conn}, nil
}

// Record appends command to the history of session. Blank commands are skipped.
func (h *History) Record(session, command string) error {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return sql.ErrConnDone
	}
	_, err := h.db.Exec(
		"INSERT INTO command_history (session, command, created_ms) VALUES (?, ?, ?)",
		session, command, nowFunc().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("history record: %w", err)
	}
	return nil
}

// Recent returns up to n entries, oldest first. n <= 0 returns everything.
func (h *History) Recent(ctx context.Context, n int) ([]Entry, error) {
	q := "SELECT id, session, command, created_ms FROM command_history ORDER BY id DESC"
	args := []any{}
	if n > 0 {
		q += " LIMIT ?"
		args = append(args, n)
	}
	rows, err := h.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ms int64
		if err := rows.Scan(&e.ID, &e.Session, &e.Command, &ms); err != nil {
			return nil, fmt.Errorf("history scan: %w", err)
		}
		e.At = time.UnixMilli(ms)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history query: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Close closes the database. Later Record calls fail.
func (h *History) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	return h.db.Close()
}
