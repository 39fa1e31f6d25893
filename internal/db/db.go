// Package db stores the commands typed at the debugger prompt in a libSQL
// database, so earlier sessions can be reviewed with "webdbg history".
package db

import (
	"database/sql"
	"fmt"

	// Registers "libsql" with database/sql for remote URLs (libsql://, https://, wss://).
	_ "github.com/tursodatabase/libsql-client-go/libsql"

	// Pure-Go SQLite driver; libsql-client-go hands file: URLs to it.
	_ "modernc.org/sqlite"
)

// driverName is the database/sql driver to use. Tests swap it to force open errors.
var driverName = "libsql"

// Connect opens a libSQL database connection and verifies it with a ping.
//
// Supported URL schemes:
//
//	Local file:   "file:path/to/webdbg.db"
//	Remote Turso: "libsql://[db-name].turso.io?authToken=[token]"
func Connect(dbURL string) (*sql.DB, error) {
	if dbURL == "" {
		return nil, fmt.Errorf("database URL must not be empty")
	}

	conn, err := sql.Open(driverName, dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open libsql: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return conn, nil
}
