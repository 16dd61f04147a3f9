package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/attensys/upload-relay/internal/model"
)

// SQLiteStore is the embedded store driver. It needs no external
// infrastructure, which also makes it the driver used by the test suites.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	// Busy timeout to avoid SQLITE_BUSY when the bridge reads while a
	// drain pass writes.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS pending_uploads (
		id TEXT PRIMARY KEY,
		file_name TEXT NOT NULL,
		file_data TEXT NOT NULL,
		credential TEXT NOT NULL,
		metadata_json TEXT,
		status TEXT NOT NULL,
		error TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_pending_uploads_status ON pending_uploads (status);

	CREATE TABLE IF NOT EXISTS upload_results (
		id TEXT PRIMARY KEY,
		result_json TEXT NOT NULL,
		completed_at TEXT NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Put(ctx context.Context, upload *model.PendingUpload) error {
	meta, err := marshalMetadata(upload.Metadata)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pending_uploads (id, file_name, file_data, credential, metadata_json, status, error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		upload.ID, upload.FileName, upload.FileData, upload.Credential, meta,
		string(upload.Status), upload.Error,
		upload.CreatedAt.UTC().Format(time.RFC3339Nano),
		upload.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateID
		}
		return fmt.Errorf("insert upload: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.PendingUpload, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, file_name, file_data, credential, metadata_json, status, error, created_at, updated_at
		 FROM pending_uploads WHERE id = ?`, id)
	return scanUpload(row)
}

func (s *SQLiteStore) GetByStatus(ctx context.Context, status model.UploadStatus) ([]*model.PendingUpload, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file_name, file_data, credential, metadata_json, status, error, created_at, updated_at
		 FROM pending_uploads WHERE status = ?`, string(status))
	if err != nil {
		return nil, fmt.Errorf("query by status: %w", err)
	}
	defer rows.Close()

	var uploads []*model.PendingUpload
	for rows.Next() {
		upload, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, upload)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate uploads: %w", err)
	}
	return uploads, nil
}

func (s *SQLiteStore) Update(ctx context.Context, upload *model.PendingUpload) error {
	meta, err := marshalMetadata(upload.Metadata)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE pending_uploads
		 SET file_name = ?, file_data = ?, credential = ?, metadata_json = ?, status = ?, error = ?, updated_at = ?
		 WHERE id = ?`,
		upload.FileName, upload.FileData, upload.Credential, meta,
		string(upload.Status), upload.Error,
		upload.UpdatedAt.UTC().Format(time.RFC3339Nano),
		upload.ID,
	)
	if err != nil {
		return fmt.Errorf("update upload: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update upload: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Remove(ctx context.Context, id string) error {
	// Double-delete is fine.
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_uploads WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("remove upload: %w", err)
	}
	return nil
}

func (s *SQLiteStore) PutResult(ctx context.Context, result *model.UploadResult) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO upload_results (id, result_json, completed_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET result_json = excluded.result_json, completed_at = excluded.completed_at`,
		result.ID, string(result.Result), result.CompletedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("store result: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetResult(ctx context.Context, id string) (*model.UploadResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, result_json, completed_at FROM upload_results WHERE id = ?`, id)

	var result model.UploadResult
	var resultJSON, completed string
	if err := row.Scan(&result.ID, &resultJSON, &completed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan result: %w", err)
	}
	result.Result = json.RawMessage(resultJSON)
	if t, err := time.Parse(time.RFC3339Nano, completed); err == nil {
		result.CompletedAt = t
	}
	return &result, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func marshalMetadata(meta map[string]string) (sql.NullString, error) {
	if meta == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal metadata: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUpload(row rowScanner) (*model.PendingUpload, error) {
	var upload model.PendingUpload
	var meta, errMsg sql.NullString
	var status, created, updated string

	if err := row.Scan(
		&upload.ID,
		&upload.FileName,
		&upload.FileData,
		&upload.Credential,
		&meta,
		&status,
		&errMsg,
		&created,
		&updated,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan upload: %w", err)
	}

	upload.Status = model.UploadStatus(status)
	if meta.Valid && meta.String != "" {
		var m map[string]string
		if err := json.Unmarshal([]byte(meta.String), &m); err == nil {
			upload.Metadata = m
		}
	}
	if errMsg.Valid {
		v := errMsg.String
		upload.Error = &v
	}
	if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
		upload.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updated); err == nil {
		upload.UpdatedAt = t
	}
	return &upload, nil
}
