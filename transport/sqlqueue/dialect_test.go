package sqlqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRebind(t *testing.T) {
	query := `UPDATE t SET a = ? WHERE b = ? AND c = ?`

	assert.Equal(t, query, SQLite.Rebind(query))
	assert.Equal(t, `UPDATE t SET a = $1 WHERE b = $2 AND c = $3`, Postgres.Rebind(query))
}

func TestQueriesUseDialect(t *testing.T) {
	pg := newQueries(Postgres, "jobs")
	assert.Contains(t, pg.fetch, "FOR UPDATE SKIP LOCKED")
	assert.Contains(t, pg.fetch, "$4")
	assert.NotContains(t, pg.insert, "?")

	lite := newQueries(SQLite, "jobs")
	assert.NotContains(t, lite.fetch, "SKIP LOCKED")
	assert.Contains(t, lite.ack, "DELETE FROM jobs WHERE id = ?")
}
