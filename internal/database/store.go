package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/vpnprobe/internal/model"
)

// FileName is the database file inside the data directory.
const FileName = "vpnprobe.db"

var (
	// ErrSubscriptionExists is returned when adding a name that is taken.
	ErrSubscriptionExists = errors.New("subscription already exists")
	// ErrSubscriptionNotFound is returned for an unknown subscription name.
	ErrSubscriptionNotFound = errors.New("subscription not found")
	// ErrInvalidSubscription is returned for an entry without name or URL.
	ErrInvalidSubscription = errors.New("subscription needs a name and a URL")
)

// Store is the SQLite backed persistence for subscriptions, test runs and
// the active connection. It implements connection.StateStore.
type Store struct {
	db     *sql.DB
	dbPath string
}

// Options configures Store behavior.
type Options struct {
	// CreateIfNotExists creates the directory and database file if missing.
	CreateIfNotExists bool

	// EnableWAL enables write-ahead logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the store in dbDir.
func Open(dbDir string, opts Options) (*Store, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS subscriptions (
		name TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		last_update TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	-- One row per health check run; the full report is kept as JSON.
	CREATE TABLE IF NOT EXISTS test_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL UNIQUE,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		total INTEGER NOT NULL,
		alive INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		canceled INTEGER NOT NULL DEFAULT 0,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_test_runs_started ON test_runs(started_at);

	-- At most one production process.
	CREATE TABLE IF NOT EXISTS active_connection (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		pid INTEGER NOT NULL,
		config_path TEXT NOT NULL,
		profile_json TEXT NOT NULL,
		socks_port INTEGER NOT NULL,
		http_port INTEGER NOT NULL,
		started_at TEXT NOT NULL
	);
	`
	_, err := s.db.ExecContext(context.Background(), schema)
	return err
}

// AddSubscription stores a new subscription.
func (s *Store) AddSubscription(ctx context.Context, entry model.SubscriptionEntry) error {
	name := strings.TrimSpace(entry.Name)
	url := strings.TrimSpace(entry.URL)
	if name == "" || url == "" {
		return ErrInvalidSubscription
	}

	res, err := s.db.ExecContext(ctx, `
	INSERT INTO subscriptions (name, url, last_update, created_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(name) DO NOTHING
	`, name, url, formatTime(entry.LastUpdate), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to add subscription: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrSubscriptionExists, name)
	}
	return nil
}

// RemoveSubscription deletes a subscription by name.
func (s *Store) RemoveSubscription(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to remove subscription: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrSubscriptionNotFound, name)
	}
	return nil
}

// GetSubscription returns one subscription by name.
func (s *Store) GetSubscription(ctx context.Context, name string) (*model.SubscriptionEntry, error) {
	var entry model.SubscriptionEntry
	var lastUpdate string
	err := s.db.QueryRowContext(ctx, `
	SELECT name, url, last_update FROM subscriptions WHERE name = ?
	`, name).Scan(&entry.Name, &entry.URL, &lastUpdate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSubscriptionNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	entry.LastUpdate = parseTimestamp(lastUpdate)
	return &entry, nil
}

// ListSubscriptions returns all subscriptions ordered by name.
func (s *Store) ListSubscriptions(ctx context.Context) ([]model.SubscriptionEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT name, url, last_update FROM subscriptions ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	entries := make([]model.SubscriptionEntry, 0)
	for rows.Next() {
		var entry model.SubscriptionEntry
		var lastUpdate string
		if err := rows.Scan(&entry.Name, &entry.URL, &lastUpdate); err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		entry.LastUpdate = parseTimestamp(lastUpdate)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// TouchSubscription stamps the last successful fetch time.
func (s *Store) TouchSubscription(ctx context.Context, name string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
	UPDATE subscriptions SET last_update = ? WHERE name = ?
	`, formatTime(at), name)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrSubscriptionNotFound, name)
	}
	return nil
}

// TestRunRecord is the summary of a stored run, without the full report.
type TestRunRecord struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Total      int       `json:"total"`
	Alive      int       `json:"alive"`
	Failed     int       `json:"failed"`
	Canceled   bool      `json:"canceled"`
}

// SaveTestRun stores a report and returns its row id.
func (s *Store) SaveTestRun(ctx context.Context, report *model.TestReport) (int64, error) {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize report: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
	INSERT INTO test_runs (run_id, started_at, finished_at, total, alive, failed, canceled, report_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		report.RunID,
		formatTime(report.StartedAt),
		formatTime(report.FinishedAt),
		report.Total(),
		len(report.Alive),
		report.FailedCount(),
		report.Canceled,
		string(reportJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save test run: %w", err)
	}
	return res.LastInsertId()
}

// LatestTestRun returns the most recent report, or nil if none is stored.
func (s *Store) LatestTestRun(ctx context.Context) (*model.TestReport, error) {
	return s.queryReport(ctx, `SELECT report_json FROM test_runs ORDER BY id DESC LIMIT 1`)
}

// GetTestRun returns the report with the given row id, or nil.
func (s *Store) GetTestRun(ctx context.Context, id int64) (*model.TestReport, error) {
	return s.queryReport(ctx, `SELECT report_json FROM test_runs WHERE id = ?`, id)
}

func (s *Store) queryReport(ctx context.Context, query string, args ...any) (*model.TestReport, error) {
	var reportJSON string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get test run: %w", err)
	}

	var report model.TestReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &report, nil
}

// ListTestRuns returns up to limit run summaries, newest first.
// A non-positive limit returns all runs.
func (s *Store) ListTestRuns(ctx context.Context, limit int) ([]TestRunRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, run_id, started_at, finished_at, total, alive, failed, canceled
	FROM test_runs
	ORDER BY id DESC
	LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list test runs: %w", err)
	}
	defer rows.Close()

	records := make([]TestRunRecord, 0)
	for rows.Next() {
		var rec TestRunRecord
		var started, finished string
		if err := rows.Scan(&rec.ID, &rec.RunID, &started, &finished, &rec.Total, &rec.Alive, &rec.Failed, &rec.Canceled); err != nil {
			return nil, fmt.Errorf("failed to scan test run: %w", err)
		}
		rec.StartedAt = parseTimestamp(started)
		rec.FinishedAt = parseTimestamp(finished)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SaveActive records the production process, replacing any previous record.
func (s *Store) SaveActive(ctx context.Context, conn model.ActiveConnection) error {
	profileJSON, err := json.Marshal(conn.Profile)
	if err != nil {
		return fmt.Errorf("failed to serialize profile: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
	INSERT INTO active_connection (id, pid, config_path, profile_json, socks_port, http_port, started_at)
	VALUES (1, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		pid = excluded.pid,
		config_path = excluded.config_path,
		profile_json = excluded.profile_json,
		socks_port = excluded.socks_port,
		http_port = excluded.http_port,
		started_at = excluded.started_at
	`, conn.PID, conn.ConfigPath, string(profileJSON), conn.SocksPort, conn.HTTPPort, formatTime(conn.StartedAt))
	if err != nil {
		return fmt.Errorf("failed to save active connection: %w", err)
	}
	return nil
}

// LoadActive returns the recorded production process, or nil.
func (s *Store) LoadActive(ctx context.Context) (*model.ActiveConnection, error) {
	var conn model.ActiveConnection
	var profileJSON, started string
	err := s.db.QueryRowContext(ctx, `
	SELECT pid, config_path, profile_json, socks_port, http_port, started_at
	FROM active_connection WHERE id = 1
	`).Scan(&conn.PID, &conn.ConfigPath, &profileJSON, &conn.SocksPort, &conn.HTTPPort, &started)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load active connection: %w", err)
	}
	if err := json.Unmarshal([]byte(profileJSON), &conn.Profile); err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}
	conn.StartedAt = parseTimestamp(started)
	return &conn, nil
}

// ClearActive removes the production process record.
func (s *Store) ClearActive(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM active_connection`); err != nil {
		return fmt.Errorf("failed to clear active connection: %w", err)
	}
	return nil
}

// formatTime stores times as UTC RFC 3339 text; the zero time is stored empty.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// timestampFormats are tried in order when reading a stored time.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// parseTimestamp returns the zero time for empty or unknown text.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
