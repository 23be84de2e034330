package sqlqueue

import (
	"strconv"
	"strings"
)

// Dialect holds the SQL differences between the supported databases.
type Dialect struct {
	// Name is the transport name the dialect registers under.
	Name string
	// Driver is the database/sql driver name.
	Driver string

	schema     string
	lockClause string
	numbered   bool
}

var (
	// SQLite stores the queue in a local database file.
	SQLite = Dialect{
		Name:   "sqlite",
		Driver: "sqlite3",
		schema: `
		CREATE TABLE IF NOT EXISTS %[1]s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uuid TEXT NOT NULL,
			topic TEXT NOT NULL,
			payload BLOB NOT NULL,
			metadata TEXT,
			created_at INTEGER NOT NULL,
			available_at INTEGER NOT NULL,
			locked_until INTEGER,
			retry_count INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS %[1]s_topic_available ON %[1]s(topic, available_at, id);
		`,
	}

	// Postgres lets several listeners share one queue using row locks.
	Postgres = Dialect{
		Name:   "postgres",
		Driver: "postgres",
		schema: `
		CREATE TABLE IF NOT EXISTS %[1]s (
			id BIGSERIAL PRIMARY KEY,
			uuid TEXT NOT NULL,
			topic TEXT NOT NULL,
			payload BYTEA NOT NULL,
			metadata TEXT,
			created_at BIGINT NOT NULL,
			available_at BIGINT NOT NULL,
			locked_until BIGINT,
			retry_count INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS %[1]s_topic_available ON %[1]s(topic, available_at, id);
		`,
		lockClause: "FOR UPDATE SKIP LOCKED",
		numbered:   true,
	}
)

// Rebind rewrites ? placeholders into the dialect's bind syntax.
func (d Dialect) Rebind(query string) string {
	if !d.numbered {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
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
