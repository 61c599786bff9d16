package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"  // PostgreSQL driver
	_ "modernc.org/sqlite" // SQLite driver
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Database is a SQL-backed DocumentStore. Documents live in a single
// table keyed by (collection, id) with a JSON body.
type Database struct {
	conn   *sql.DB
	driver string
}

type migration struct {
	version string
	query   string
}

var migrations = []migration{
	{
		version: "001_create_documents",
		query: `
			CREATE TABLE IF NOT EXISTS documents (
				collection VARCHAR(128) NOT NULL,
				id VARCHAR(255) NOT NULL,
				body TEXT NOT NULL,
				updated_at TIMESTAMP NOT NULL,
				PRIMARY KEY (collection, id)
			)
		`,
	},
	{
		version: "002_index_documents_collection",
		query:   `CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents (collection)`,
	},
}

// NewDatabase opens a connection, verifies it and applies migrations.
func NewDatabase(ctx context.Context, driver, dsn string) (*Database, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == DriverSQLite {
		// A single connection keeps :memory: databases shared and serializes writers.
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(20)
		conn.SetMaxIdleConns(5)
		conn.SetConnMaxLifetime(time.Hour)
		conn.SetConnMaxIdleTime(10 * time.Minute)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &Database{conn: conn, driver: driver}
	if err := db.RunMigrations(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection
func (db *Database) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// DB returns the underlying *sql.DB for queries
func (db *Database) DB() *sql.DB {
	return db.conn
}

// HealthCheck performs a health check on the database
func (db *Database) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return db.conn.PingContext(ctx)
}

// RunMigrations applies every migration not yet recorded in schema_migrations.
func (db *Database) RunMigrations(ctx context.Context) error {
	_, err := db.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, m := range migrations {
		if err := db.runMigration(ctx, m); err != nil {
			return fmt.Errorf("failed to run migration %s: %w", m.version, err)
		}
	}
	return nil
}

func (db *Database) runMigration(ctx context.Context, m migration) error {
	var exists bool
	err := db.conn.QueryRowContext(ctx,
		db.rebind("SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = ?)"), m.version).Scan(&exists)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.query); err != nil {
		return fmt.Errorf("failed to execute migration: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		db.rebind("INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)"), m.version, time.Now().UTC()); err != nil {
		return err
	}
	return tx.Commit()
}

// Get returns the document stored under collection/id.
func (db *Database) Get(ctx context.Context, collection, id string) (Document, bool, error) {
	doc, ok, err := db.get(ctx, db.conn, collection, id)
	if err != nil {
		return nil, false, fmt.Errorf("querying document %s/%s: %w", collection, id, err)
	}
	return doc, ok, nil
}

// Query scans a collection and returns documents matching filters, ordered by ID.
func (db *Database) Query(ctx context.Context, collection string, filters ...Filter) ([]Snapshot, error) {
	rows, err := db.conn.QueryContext(ctx,
		db.rebind("SELECT id, body FROM documents WHERE collection = ? ORDER BY id"), collection)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", collection, err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("scanning %s document: %w", collection, err)
		}
		doc, err := decodeBody(body)
		if err != nil {
			return nil, fmt.Errorf("decoding %s/%s: %w", collection, id, err)
		}
		if matches(doc, filters) {
			out = append(out, Snapshot{ID: id, Data: doc})
		}
	}
	return out, rows.Err()
}

// Set writes data under collection/id inside a transaction.
func (db *Database) Set(ctx context.Context, collection, id string, data Document, merge bool) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := db.set(ctx, tx, collection, id, data, merge); err != nil {
		return fmt.Errorf("writing document %s/%s: %w", collection, id, err)
	}
	return tx.Commit()
}

// Delete removes collection/id.
func (db *Database) Delete(ctx context.Context, collection, id string) error {
	_, err := db.conn.ExecContext(ctx,
		db.rebind("DELETE FROM documents WHERE collection = ? AND id = ?"), collection, id)
	if err != nil {
		return fmt.Errorf("deleting document %s/%s: %w", collection, id, err)
	}
	return nil
}

// BatchWrite applies ops in a single transaction.
func (db *Database) BatchWrite(ctx context.Context, ops []WriteOp) error {
	if err := validateBatch(ops); err != nil {
		return err
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, op := range ops {
		switch op.Kind {
		case OpSet:
			err = db.set(ctx, tx, op.Collection, op.ID, op.Data, op.Merge)
		case OpDelete:
			_, err = tx.ExecContext(ctx,
				db.rebind("DELETE FROM documents WHERE collection = ? AND id = ?"), op.Collection, op.ID)
		}
		if err != nil {
			return fmt.Errorf("batch %s %s/%s: %w", op.Kind, op.Collection, op.ID, err)
		}
	}
	return tx.Commit()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (db *Database) get(ctx context.Context, q queryer, collection, id string) (Document, bool, error) {
	var body string
	err := q.QueryRowContext(ctx,
		db.rebind("SELECT body FROM documents WHERE collection = ? AND id = ?"), collection, id).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	doc, err := decodeBody(body)
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

func (db *Database) set(ctx context.Context, tx *sql.Tx, collection, id string, data Document, merge bool) error {
	doc := data
	if merge {
		existing, ok, err := db.get(ctx, tx, collection, id)
		if err != nil {
			return err
		}
		if ok {
			doc = Merge(existing, data)
		}
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}

	_, err = tx.ExecContext(ctx, db.rebind(`
		INSERT INTO documents (collection, id, body, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at
	`), collection, id, string(body), time.Now().UTC())
	return err
}

// rebind rewrites ? placeholders into the driver's bind syntax.
func (db *Database) rebind(query string) string {
	if db.driver != DriverPostgres {
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

func decodeBody(body string) (Document, error) {
	doc := Document{}
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
