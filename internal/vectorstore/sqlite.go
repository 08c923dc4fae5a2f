package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/davidamom/neuralflake/internal/domain"
)

// SQLite is a durable Store backed by a single SQLite file. Vectors are
// stored as little-endian float32 blobs and scored in process, which is
// plenty for corpora in the tens of thousands of chunks.
type SQLite struct {
	db  *sql.DB
	dim int

	mu      sync.Mutex
	nextSeq int64
}

// NewSQLite opens (or creates) the database at path. If the database already
// holds records, their vector size must match dim.
func NewSQLite(path string, dim int) (*SQLite, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: vector dimension must be positive, got %d", domain.ErrInvalidConfiguration, dim)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", domain.ErrStoreUnavailable, path, err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL; PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: set pragmas: %v", domain.ErrStoreUnavailable, err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping %s: %v", domain.ErrStoreUnavailable, path, err)
	}

	s := &SQLite{db: db, dim: dim}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.validateExistingDimension(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.loadSeq(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS records (
			id TEXT PRIMARY KEY,
			path TEXT NOT NULL DEFAULT '',
			file_type TEXT NOT NULL DEFAULT '',
			chunk_index INTEGER NOT NULL DEFAULT 0,
			start_offset INTEGER NOT NULL DEFAULT 0,
			end_offset INTEGER NOT NULL DEFAULT 0,
			title TEXT NOT NULL DEFAULT '',
			models TEXT NOT NULL DEFAULT '',
			text TEXT NOT NULL,
			vector BLOB NOT NULL,
			seq INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_records_path ON records(path);`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("%w: migrate: %v", domain.ErrStoreUnavailable, err)
		}
	}
	return nil
}

func (s *SQLite) validateExistingDimension() error {
	var blobLen sql.NullInt64
	err := s.db.QueryRow("SELECT length(vector) FROM records LIMIT 1").Scan(&blobLen)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: inspect existing records: %v", domain.ErrStoreUnavailable, err)
	}
	if blobLen.Valid && int(blobLen.Int64) != s.dim*4 {
		return fmt.Errorf("%w: store holds vectors of dimension %d, configured dimension is %d",
			domain.ErrInvalidConfiguration, blobLen.Int64/4, s.dim)
	}
	return nil
}

func (s *SQLite) loadSeq() error {
	var maxSeq sql.NullInt64
	if err := s.db.QueryRow("SELECT MAX(seq) FROM records").Scan(&maxSeq); err != nil {
		return fmt.Errorf("%w: load insert sequence: %v", domain.ErrStoreUnavailable, err)
	}
	if maxSeq.Valid {
		s.nextSeq = maxSeq.Int64
	}
	return nil
}

// Upsert writes records in a single transaction so a re-index run either
// fully replaces a document's chunks or leaves the store untouched.
func (s *SQLite) Upsert(ctx context.Context, records []Record) error {
	for _, rec := range records {
		if rec.ID == "" {
			return fmt.Errorf("%w: record ID must not be empty", domain.ErrInvalidArgument)
		}
		if len(rec.Vector) != s.dim {
			return fmt.Errorf("%w: record %s vector has dimension %d, store expects %d",
				domain.ErrInvalidConfiguration, rec.ID, len(rec.Vector), s.dim)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", domain.ErrStoreUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (id, path, file_type, chunk_index, start_offset, end_offset, title, models, text, vector, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			path = excluded.path,
			file_type = excluded.file_type,
			chunk_index = excluded.chunk_index,
			start_offset = excluded.start_offset,
			end_offset = excluded.end_offset,
			title = excluded.title,
			models = excluded.models,
			text = excluded.text,
			vector = excluded.vector,
			seq = excluded.seq`)
	if err != nil {
		return fmt.Errorf("%w: prepare upsert: %v", domain.ErrStoreUnavailable, err)
	}
	defer stmt.Close()

	s.mu.Lock()
	for _, rec := range records {
		s.nextSeq++
		seq := s.nextSeq

		models := ""
		if raw, ok := rec.Meta[MetaModels].([]string); ok && len(raw) > 0 {
			encoded, err := json.Marshal(raw)
			if err == nil {
				models = string(encoded)
			}
		}

		_, err = stmt.ExecContext(ctx,
			rec.ID,
			metaString(rec.Meta, MetaPath),
			metaString(rec.Meta, MetaFileType),
			metaInt(rec.Meta, MetaChunkIndex),
			metaInt(rec.Meta, MetaStart),
			metaInt(rec.Meta, MetaEnd),
			metaString(rec.Meta, MetaTitle),
			models,
			rec.Text,
			encodeVector(rec.Vector),
			seq,
		)
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("%w: upsert record %s: %v", domain.ErrStoreUnavailable, rec.ID, err)
		}
	}
	s.mu.Unlock()

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit upsert: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// Query loads all records and scores them in process.
func (s *SQLite) Query(ctx context.Context, vector []float32, topK int) ([]Result, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive, got %d", domain.ErrInvalidArgument, topK)
	}
	if len(vector) != s.dim {
		return nil, fmt.Errorf("%w: query vector has dimension %d, store expects %d",
			domain.ErrInvalidArgument, len(vector), s.dim)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, path, file_type, chunk_index, start_offset, end_offset, title, models, text, vector, seq
		FROM records`)
	if err != nil {
		return nil, fmt.Errorf("%w: query records: %v", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var items []scored
	for rows.Next() {
		rec, seq, err := scanRecord(rows, s.dim)
		if err != nil {
			return nil, err
		}
		items = append(items, scored{rec: rec, score: cosine(rec.Vector, vector), seq: seq})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate records: %v", domain.ErrStoreUnavailable, err)
	}
	return rank(items, topK), nil
}

// Delete removes records by ID. Unknown IDs are ignored.
func (s *SQLite) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	_, err := s.db.ExecContext(ctx, "DELETE FROM records WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return fmt.Errorf("%w: delete records: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// Count returns the number of stored records.
func (s *SQLite) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records").Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: count records: %v", domain.ErrStoreUnavailable, err)
	}
	return count, nil
}

// ListIDs returns IDs of records for one source path, ordered by chunk index.
func (s *SQLite) ListIDs(ctx context.Context, sourcePath string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM records WHERE path = ? ORDER BY chunk_index", sourcePath)
	if err != nil {
		return nil, fmt.Errorf("%w: list record IDs: %v", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: scan record ID: %v", domain.ErrStoreUnavailable, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate record IDs: %v", domain.ErrStoreUnavailable, err)
	}
	return ids, nil
}

func scanRecord(rows *sql.Rows, dim int) (Record, int64, error) {
	var (
		rec                    Record
		path, fileType, title  string
		chunkIndex, start, end int
		models                 string
		blob                   []byte
		seq                    int64
	)
	err := rows.Scan(&rec.ID, &path, &fileType, &chunkIndex, &start, &end, &title, &models, &rec.Text, &blob, &seq)
	if err != nil {
		return Record{}, 0, fmt.Errorf("%w: scan record: %v", domain.ErrStoreUnavailable, err)
	}

	rec.Vector, err = decodeVector(blob, dim)
	if err != nil {
		return Record{}, 0, fmt.Errorf("record %s: %w", rec.ID, err)
	}

	rec.Meta = map[string]any{
		MetaPath:       path,
		MetaFileType:   fileType,
		MetaChunkIndex: chunkIndex,
		MetaStart:      start,
		MetaEnd:        end,
		MetaTitle:      title,
	}
	if models != "" {
		var decoded []string
		if err := json.Unmarshal([]byte(models), &decoded); err == nil {
			rec.Meta[MetaModels] = decoded
		}
	}
	return rec, seq, nil
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, x := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(blob []byte, dim int) ([]float32, error) {
	if len(blob) != dim*4 {
		return nil, fmt.Errorf("%w: corrupt vector blob of %d bytes, expected %d",
			domain.ErrStoreUnavailable, len(blob), dim*4)
	}
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec, nil
}

func metaString(meta map[string]any, key string) string {
	s, _ := meta[key].(string)
	return s
}

func metaInt(meta map[string]any, key string) int {
	switch v := meta[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}
