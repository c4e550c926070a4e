package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jgoulah/meterfetch/internal/cache"
	"github.com/jgoulah/meterfetch/pkg/models"
	_ "modernc.org/sqlite"
)

const timestampLayout = "2006-01-02 15:04:05"

// DB wraps the database connection
type DB struct {
	conn *sql.DB
}

// New creates a new database connection and initializes the schema
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the necessary tables
func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS usage_data (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		usage_point_id TEXT NOT NULL,
		endpoint TEXT NOT NULL,
		consumption REAL NOT NULL,
		price REAL NOT NULL DEFAULT 0,
		filled INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		published INTEGER DEFAULT 0,
		UNIQUE(timestamp, usage_point_id, endpoint)
	);
	CREATE INDEX IF NOT EXISTS idx_usage_timestamp ON usage_data(timestamp);
	CREATE INDEX IF NOT EXISTS idx_usage_point_endpoint ON usage_data(usage_point_id, endpoint);
	CREATE INDEX IF NOT EXISTS idx_usage_published ON usage_data(published);

	CREATE TABLE IF NOT EXISTS raw_payloads (
		cache_key TEXT PRIMARY KEY,
		body BLOB NOT NULL,
		created_at TEXT NOT NULL
	);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// insertUsage reports whether a new row was written
func (db *DB) insertUsage(tx *sql.Tx, data *models.UsageData) (bool, error) {
	query := `
	INSERT OR IGNORE INTO usage_data (timestamp, usage_point_id, endpoint, consumption, price, filled, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	createdAt := time.Now().UTC().Format(time.RFC3339)
	res, err := tx.Exec(query,
		data.Timestamp.UTC().Format(timestampLayout),
		data.UsagePointID,
		data.Endpoint,
		data.Consumption,
		data.Price,
		boolToInt(data.Filled),
		createdAt,
	)
	if err != nil {
		return false, fmt.Errorf("inserting usage data: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading affected rows: %w", err)
	}
	return n > 0, nil
}

// InsertSeries stores all rows in one transaction and returns how many were
// new. Rows already present for the same timestamp, usage point and endpoint
// are skipped.
func (db *DB) InsertSeries(rows []models.UsageData) (int, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	inserted := 0
	for i := range rows {
		ok, err := db.insertUsage(tx, &rows[i])
		if err != nil {
			return 0, err
		}
		if ok {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing series: %w", err)
	}
	return inserted, nil
}

// ListUsage retrieves all usage data for a usage point and endpoint, newest first
func (db *DB) ListUsage(usagePointID, endpoint string) ([]models.UsageData, error) {
	return db.queryUsage(`
	SELECT id, timestamp, usage_point_id, endpoint, consumption, price, filled
	FROM usage_data
	WHERE usage_point_id = ? AND endpoint = ?
	ORDER BY timestamp DESC
	`, usagePointID, endpoint)
}

// ListUnpublishedUsage retrieves usage data not yet published, newest first
func (db *DB) ListUnpublishedUsage(usagePointID, endpoint string) ([]models.UsageData, error) {
	return db.queryUsage(`
	SELECT id, timestamp, usage_point_id, endpoint, consumption, price, filled
	FROM usage_data
	WHERE usage_point_id = ? AND endpoint = ? AND published = 0
	ORDER BY timestamp DESC
	`, usagePointID, endpoint)
}

func (db *DB) queryUsage(query string, args ...any) ([]models.UsageData, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying usage data: %w", err)
	}
	defer rows.Close()

	var results []models.UsageData
	for rows.Next() {
		var data models.UsageData
		var tsStr string
		var filled int

		if err := rows.Scan(&data.ID, &tsStr, &data.UsagePointID, &data.Endpoint, &data.Consumption, &data.Price, &filled); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		data.Timestamp, err = time.Parse(timestampLayout, tsStr)
		if err != nil {
			return nil, fmt.Errorf("parsing timestamp: %w", err)
		}
		data.Filled = filled != 0

		results = append(results, data)
	}

	return results, rows.Err()
}

// MarkPublished marks a usage record as published
func (db *DB) MarkPublished(id int) error {
	query := `UPDATE usage_data SET published = 1 WHERE id = ?`
	_, err := db.conn.Exec(query, id)
	if err != nil {
		return fmt.Errorf("marking record as published: %w", err)
	}
	return nil
}

// Lookup implements cache.Cache on the raw_payloads table
func (db *DB) Lookup(ctx context.Context, key cache.Key) (models.RawPayload, bool, error) {
	var body []byte
	err := db.conn.QueryRowContext(ctx, `SELECT body FROM raw_payloads WHERE cache_key = ?`, key.String()).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("querying raw payload: %w", err)
	}
	return body, true, nil
}

// Store implements cache.Cache; the first payload stored for a key wins
func (db *DB) Store(ctx context.Context, key cache.Key, payload models.RawPayload) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO raw_payloads (cache_key, body, created_at) VALUES (?, ?, ?)`,
		key.String(), []byte(payload), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting raw payload: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
