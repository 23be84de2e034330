// Package sqlqueue provides database backed queues for SQLite and
// PostgreSQL. Messages are rows; a listener locks one row at a time,
// deletes it on ack and makes it available again with a backoff on nack.
//
// Only queue destinations are supported: every message reaches exactly one
// listener.
package sqlqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/drblury/msgkit/internal/runtime/jsoncodec"
	"github.com/drblury/msgkit/transport"
)

const (
	// DefaultTable holds the messages of every topic.
	DefaultTable = "msgkit_messages"

	// DefaultSQLiteFile is used when a sqlite connection factory has no url.
	DefaultSQLiteFile = "msgkit_queue.db"

	DefaultPollInterval = 100 * time.Millisecond
	DefaultLockTimeout  = 30 * time.Second
	DefaultRetryBackoff = time.Second
)

var (
	ErrClosed           = errors.New("sqlqueue: transport is closed")
	ErrTopicUnsupported = errors.New("sqlqueue: topic destinations are not supported, use a queue")
	ErrDSNRequired      = errors.New("sqlqueue: url is required")
	ErrInvalidTable     = errors.New("sqlqueue: invalid table name")
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func init() {
	transport.RegisterWithCapabilities(SQLite.Name, builder(SQLite), transport.SQLiteCapabilities)
	transport.RegisterWithCapabilities(Postgres.Name, builder(Postgres), transport.PostgresCapabilities)
}

func builder(d Dialect) transport.Builder {
	return func(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
		if transport.IsTopic(cfg) {
			return transport.Transport{}, ErrTopicUnsupported
		}

		t, err := New(ctx, Config{Dialect: d, DSN: cfg.GetURL()}, logger)
		if err != nil {
			return transport.Transport{}, err
		}

		return transport.Transport{
			Publisher:  t,
			Subscriber: t,
		}, nil
	}
}

// Config holds the queue settings.
type Config struct {
	Dialect Dialect

	// DSN is the sqlite file path or the postgres connection string.
	DSN string

	Table        string
	PollInterval time.Duration
	LockTimeout  time.Duration
	RetryBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.Dialect.Driver == "" {
		c.Dialect = SQLite
	}
	if c.DSN == "" && c.Dialect.Name == SQLite.Name {
		c.DSN = DefaultSQLiteFile
	}
	if c.Table == "" {
		c.Table = DefaultTable
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = DefaultLockTimeout
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}
	return c
}

func (c Config) dataSource() string {
	if c.Dialect.Name != SQLite.Name || strings.Contains(c.DSN, "?") {
		return c.DSN
	}
	return c.DSN + "?_journal_mode=WAL&_busy_timeout=5000"
}

// Transport implements both Publisher and Subscriber on top of database/sql.
type Transport struct {
	db      *sql.DB
	config  Config
	logger  watermill.LoggerAdapter
	queries queries

	closeOnce sync.Once
	closing   chan struct{}
	wg        sync.WaitGroup
}

type queries struct {
	insert  string
	fetch   string
	ack     string
	nack    string
	unlock  string
	pending string
}

func newQueries(d Dialect, table string) queries {
	return queries{
		insert: d.Rebind(fmt.Sprintf(
			`INSERT INTO %s (uuid, topic, payload, metadata, created_at, available_at) VALUES (?, ?, ?, ?, ?, ?)`, table)),
		fetch: d.Rebind(fmt.Sprintf(`
			UPDATE %[1]s SET locked_until = ?
			WHERE id = (
				SELECT id FROM %[1]s
				WHERE topic = ? AND available_at <= ? AND (locked_until IS NULL OR locked_until < ?)
				ORDER BY available_at, id
				LIMIT 1 %[2]s
			)
			RETURNING id, uuid, payload, metadata`, table, d.lockClause)),
		ack: d.Rebind(fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, table)),
		nack: d.Rebind(fmt.Sprintf(
			`UPDATE %s SET retry_count = retry_count + 1, locked_until = NULL, available_at = ? WHERE id = ?`, table)),
		unlock:  d.Rebind(fmt.Sprintf(`UPDATE %s SET locked_until = NULL WHERE id = ?`, table)),
		pending: d.Rebind(fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE topic = ?`, table)),
	}
}

// New opens the database and creates the queue table if needed.
func New(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (*Transport, error) {
	cfg = cfg.withDefaults()
	if cfg.DSN == "" {
		return nil, ErrDSNRequired
	}
	if !tableName.MatchString(cfg.Table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTable, cfg.Table)
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	db, err := sql.Open(cfg.Dialect.Driver, cfg.dataSource())
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", cfg.Dialect.Name, err)
	}

	if cfg.Dialect.Name == SQLite.Name {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to %s: %w", cfg.Dialect.Name, err)
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf(cfg.Dialect.schema, cfg.Table)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating queue table: %w", err)
	}

	return &Transport{
		db:      db,
		config:  cfg,
		logger:  logger,
		queries: newQueries(cfg.Dialect, cfg.Table),
		closing: make(chan struct{}),
	}, nil
}

func (t *Transport) isClosed() bool {
	select {
	case <-t.closing:
		return true
	default:
		return false
	}
}

// Publish inserts messages in a single transaction.
func (t *Transport) Publish(topic string, messages ...*message.Message) error {
	if t.isClosed() {
		return ErrClosed
	}

	tx, err := t.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			t.logger.Error("Failed to roll back publish", err, nil)
		}
	}()

	stmt, err := tx.Prepare(t.queries.insert)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	for _, msg := range messages {
		metadata, err := jsoncodec.Marshal(msg.Metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata: %w", err)
		}
		if _, err := stmt.Exec(msg.UUID, topic, msg.Payload, string(metadata), now, now); err != nil {
			return fmt.Errorf("inserting message: %w", err)
		}
	}

	return tx.Commit()
}

// Subscribe polls the table for topic and delivers one message at a time.
func (t *Transport) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if t.isClosed() {
		return nil, ErrClosed
	}

	out := make(chan *message.Message)
	t.wg.Add(1)
	go t.poll(ctx, topic, out)

	return out, nil
}

func (t *Transport) poll(ctx context.Context, topic string, out chan<- *message.Message) {
	defer t.wg.Done()
	defer close(out)

	ticker := time.NewTicker(t.config.PollInterval)
	defer ticker.Stop()

	for {
		// Drain everything available before waiting for the next tick.
		for {
			delivered, ok := t.deliverNext(ctx, topic, out)
			if !ok {
				return
			}
			if !delivered {
				break
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-t.closing:
			return
		case <-ticker.C:
		}
	}
}

// deliverNext reports whether a message was delivered and whether polling
// should continue.
func (t *Transport) deliverNext(ctx context.Context, topic string, out chan<- *message.Message) (bool, bool) {
	id, msg, err := t.fetch(ctx, topic)
	if errors.Is(err, sql.ErrNoRows) {
		return false, true
	}
	if err != nil {
		if ctx.Err() != nil {
			return false, false
		}
		t.logger.Error("Failed to fetch message", err, watermill.LogFields{"topic": topic})
		return false, true
	}

	msg.SetContext(ctx)
	select {
	case out <- msg:
	case <-ctx.Done():
		t.release(id, t.queries.unlock)
		return false, false
	case <-t.closing:
		t.release(id, t.queries.unlock)
		return false, false
	}

	select {
	case <-msg.Acked():
		t.release(id, t.queries.ack)
	case <-msg.Nacked():
		t.nack(id)
	case <-ctx.Done():
		t.release(id, t.queries.unlock)
		return false, false
	case <-t.closing:
		t.release(id, t.queries.unlock)
		return false, false
	}
	return true, true
}

func (t *Transport) fetch(ctx context.Context, topic string) (int64, *message.Message, error) {
	now := time.Now()
	lockUntil := now.Add(t.config.LockTimeout).UnixMilli()

	var (
		id       int64
		uuid     string
		payload  []byte
		metadata sql.NullString
	)
	err := t.db.QueryRowContext(ctx, t.queries.fetch, lockUntil, topic, now.UnixMilli(), now.UnixMilli()).
		Scan(&id, &uuid, &payload, &metadata)
	if err != nil {
		return 0, nil, err
	}

	msg := message.NewMessage(uuid, payload)
	if metadata.Valid && metadata.String != "" {
		if err := jsoncodec.UnmarshalString(metadata.String, &msg.Metadata); err != nil {
			t.logger.Error("Failed to decode metadata", err, watermill.LogFields{"uuid": uuid})
		}
	}
	return id, msg, nil
}

func (t *Transport) nack(id int64) {
	availableAt := time.Now().Add(t.config.RetryBackoff).UnixMilli()
	if _, err := t.db.Exec(t.queries.nack, availableAt, id); err != nil {
		t.logger.Error("Failed to nack message", err, watermill.LogFields{"id": id})
	}
}

func (t *Transport) release(id int64, query string) {
	if _, err := t.db.Exec(query, id); err != nil {
		t.logger.Error("Failed to update message", err, watermill.LogFields{"id": id})
	}
}

// GetPendingCount returns the number of stored messages for topic,
// including those currently locked by a listener.
func (t *Transport) GetPendingCount(topic string) (int64, error) {
	var count int64
	err := t.db.QueryRow(t.queries.pending, topic).Scan(&count)
	return count, err
}

// Dialect reports which database the transport talks to.
func (t *Transport) Dialect() Dialect {
	return t.config.Dialect
}

// Close stops every subscription and closes the database.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closing)
		t.wg.Wait()
		err = t.db.Close()
	})
	return err
}
