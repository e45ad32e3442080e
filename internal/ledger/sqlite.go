package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const createRecordsTableSQL = `
CREATE TABLE IF NOT EXISTS processing_records (
    zoom_uuid           TEXT PRIMARY KEY,
    meeting_topic       TEXT NULL,
    start_time          TEXT NULL,
    file_path           TEXT NULL,
    zoom_downloaded_at  TEXT NULL,
    youtube_uploaded_at TEXT NULL,
    youtube_url         TEXT NULL,
    discord_notified_at TEXT NULL,
    status              TEXT NULL,
    error_message       TEXT NULL
);
`

// Columns added after the first schema version, applied when missing
var optionalColumns = []struct {
	name string
	ddl  string
}{
	{"failure_count", "INTEGER NOT NULL DEFAULT 0"},
	{"error_notified_at", "TEXT NULL"},
	{"last_notified_error", "TEXT NULL"},
}

const selectRecordSQL = `SELECT zoom_uuid, meeting_topic, start_time, file_path,
	zoom_downloaded_at, youtube_uploaded_at, youtube_url, discord_notified_at,
	status, error_message, failure_count, error_notified_at, last_notified_error
	FROM processing_records`

const upsertRecordSQL = `INSERT INTO processing_records (zoom_uuid, meeting_topic, start_time,
	file_path, zoom_downloaded_at, youtube_uploaded_at, youtube_url, discord_notified_at,
	status, error_message, failure_count, error_notified_at, last_notified_error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(zoom_uuid) DO UPDATE SET
		meeting_topic = excluded.meeting_topic,
		start_time = excluded.start_time,
		file_path = excluded.file_path,
		zoom_downloaded_at = excluded.zoom_downloaded_at,
		youtube_uploaded_at = excluded.youtube_uploaded_at,
		youtube_url = excluded.youtube_url,
		discord_notified_at = excluded.discord_notified_at,
		status = excluded.status,
		error_message = excluded.error_message,
		failure_count = excluded.failure_count,
		error_notified_at = excluded.error_notified_at,
		last_notified_error = excluded.last_notified_error`

// SQLiteStore keeps the ledger in a SQLite table
type SQLiteStore struct {
	db     *sql.DB
	ownsDB bool
}

// NewSQLiteStore opens (or creates) the database file at path
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("ledger database path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}
	// SQLite allows a single writer
	db.SetMaxOpenConns(1)

	store, err := NewSQLiteStoreFromDB(context.Background(), db)
	if err != nil {
		db.Close()
		return nil, err
	}
	store.ownsDB = true
	return store, nil
}

// NewSQLiteStoreFromDB uses an already opened database and migrates its schema
func NewSQLiteStoreFromDB(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	store := &SQLiteStore{db: db}
	if err := store.migrate(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createRecordsTableSQL); err != nil {
		return fmt.Errorf("failed to create ledger table: %w", err)
	}

	existing, err := s.columns(ctx)
	if err != nil {
		return err
	}

	for _, col := range optionalColumns {
		if existing[col.name] {
			continue
		}
		q := fmt.Sprintf("ALTER TABLE processing_records ADD COLUMN %s %s", col.name, col.ddl)
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to add column %s: %w", col.name, err)
		}
	}
	return nil
}

func (s *SQLiteStore) columns(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, "PRAGMA table_info(processing_records)")
	if err != nil {
		return nil, fmt.Errorf("failed to inspect ledger table: %w", err)
	}
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("failed to read ledger columns: %w", err)
		}
		columns[name] = true
	}
	return columns, rows.Err()
}

// Get returns the record for id, or nil when there is none
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, selectRecordSQL+" WHERE zoom_uuid = ?", id)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record %s: %w", id, err)
	}
	return &record, nil
}

// Upsert inserts the record or replaces the existing row
func (s *SQLiteStore) Upsert(ctx context.Context, r Record) error {
	if r.ItemID == "" {
		return fmt.Errorf("record has no item id")
	}
	_, err := s.db.ExecContext(ctx, upsertRecordSQL,
		r.ItemID,
		nullString(r.Title),
		nullString(r.SourceTimestamp),
		nullString(r.LocalPath),
		nullString(formatTimestamp(r.DownloadedAt)),
		nullString(formatTimestamp(r.UploadedAt)),
		nullString(r.RemoteURL),
		nullString(formatTimestamp(r.NotifiedAt)),
		nullString(string(r.Status)),
		nullString(r.ErrorMessage),
		r.FailureCount,
		nullString(formatTimestamp(r.ErrorNotifiedAt)),
		nullString(r.LastNotifiedError),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert record %s: %w", r.ItemID, err)
	}
	return nil
}

// List returns every record in insertion order
func (s *SQLiteStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, selectRecordSQL+" ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read record: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Close closes the database when the store opened it
func (s *SQLiteStore) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		r                                                           Record
		title, startTime, filePath, remoteURL, status, errMsg       sql.NullString
		downloadedAt, uploadedAt, notifiedAt, errorNotifiedAt, last sql.NullString
		failureCount                                                sql.NullInt64
	)

	if err := row.Scan(&r.ItemID, &title, &startTime, &filePath,
		&downloadedAt, &uploadedAt, &remoteURL, &notifiedAt,
		&status, &errMsg, &failureCount, &errorNotifiedAt, &last); err != nil {
		return r, err
	}

	r.Title = title.String
	r.SourceTimestamp = startTime.String
	r.LocalPath = filePath.String
	r.RemoteURL = remoteURL.String
	r.Status = Status(status.String)
	r.ErrorMessage = errMsg.String
	r.FailureCount = int(failureCount.Int64)
	r.LastNotifiedError = last.String

	var err error
	if r.DownloadedAt, err = parseTimestamp(downloadedAt.String); err != nil {
		return r, err
	}
	if r.UploadedAt, err = parseTimestamp(uploadedAt.String); err != nil {
		return r, err
	}
	if r.NotifiedAt, err = parseTimestamp(notifiedAt.String); err != nil {
		return r, err
	}
	if r.ErrorNotifiedAt, err = parseTimestamp(errorNotifiedAt.String); err != nil {
		return r, err
	}
	return r, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
