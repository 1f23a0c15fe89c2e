package index

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/dgallion1/docqa/internal/document"
)

const (
	dbFile        = "index.db"
	metaFile      = "meta.json"
	formatVersion = 1
)

// meta is the JSON sidecar written next to index.db.
type meta struct {
	FormatVersion int       `json:"format_version"`
	ID            string    `json:"id"`
	Model         string    `json:"model"`
	Dim           int       `json:"dim"`
	Count         int       `json:"count"`
	ContentHash   string    `json:"content_hash"`
	CreatedAt     time.Time `json:"created_at"`
}

// DiskStore persists the index as a directory holding an SQLite database of
// entries and a meta.json sidecar. A new build is written to a sibling temp
// directory and renamed into place, so a reader in this process never sees
// a partial index. Concurrent writers in other processes are not coordinated.
type DiskStore struct {
	dir string
	log *slog.Logger

	mu     sync.Mutex
	cached *Index
}

func NewDiskStore(dir string, log *slog.Logger) *DiskStore {
	return &DiskStore{dir: filepath.Clean(dir), log: log}
}

// Dir returns the index directory.
func (s *DiskStore) Dir() string { return s.dir }

func (s *DiskStore) Replace(ctx context.Context, ix *Index) error {
	parent := filepath.Dir(s.dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("create index parent dir: %w", err)
	}

	tmp, err := os.MkdirTemp(parent, "."+filepath.Base(s.dir)+".build-*")
	if err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	if err := writeEntries(ctx, filepath.Join(tmp, dbFile), ix); err != nil {
		return err
	}
	if err := writeMeta(filepath.Join(tmp, metaFile), ix); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var old string
	if _, err := os.Stat(s.dir); err == nil {
		old = s.dir + ".old-" + ix.ID
		if err := os.Rename(s.dir, old); err != nil {
			return fmt.Errorf("move previous index aside: %w", err)
		}
	}
	if err := os.Rename(tmp, s.dir); err != nil {
		if old != "" {
			_ = os.Rename(old, s.dir)
		}
		return fmt.Errorf("publish index: %w", err)
	}
	if old != "" {
		if err := os.RemoveAll(old); err != nil {
			s.log.Warn("failed to remove previous index", "path", old, "error", err)
		}
	}

	s.cached = ix
	s.log.Info("index saved", "dir", s.dir, "index_id", ix.ID, "entries", ix.Len())
	return nil
}

// Current loads the published index. The meta read and the entry load
// happen under the same lock Replace swaps directories under, so the two
// always describe the same build.
func (s *DiskStore) Current(ctx context.Context) (*Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := readMeta(filepath.Join(s.dir, metaFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotBuilt
	}
	if err != nil {
		return nil, err
	}

	if s.cached != nil && s.cached.ID == m.ID {
		return s.cached, nil
	}

	ix, err := loadEntries(ctx, filepath.Join(s.dir, dbFile), m)
	if err != nil {
		return nil, err
	}
	s.cached = ix
	return ix, nil
}

func writeEntries(ctx context.Context, path string, ix *Index) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open index db: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, `CREATE TABLE entries (
		position    INTEGER PRIMARY KEY,
		text        TEXT NOT NULL,
		source_kind TEXT NOT NULL,
		source_name TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		vector      BLOB NOT NULL
	)`); err != nil {
		return fmt.Errorf("create entries table: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO entries
		(position, text, source_kind, source_name, chunk_index, vector)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range ix.Entries {
		if _, err := stmt.ExecContext(ctx, i, e.Chunk.Text, string(e.Chunk.Source.Kind),
			e.Chunk.Source.Name, e.Chunk.Index, float32SliceToBytes(e.Vector)); err != nil {
			return fmt.Errorf("insert entry %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit entries: %w", err)
	}
	return nil
}

func loadEntries(ctx context.Context, path string, m *meta) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open index db: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `SELECT text, source_kind, source_name, chunk_index, vector
		FROM entries ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, m.Count)
	for rows.Next() {
		var (
			e    Entry
			kind string
			blob []byte
		)
		if err := rows.Scan(&e.Chunk.Text, &kind, &e.Chunk.Source.Name, &e.Chunk.Index, &blob); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Chunk.Source.Kind = document.SourceKind(kind)
		e.Vector = bytesToFloat32Slice(blob)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	if len(entries) != m.Count {
		return nil, fmt.Errorf("index %s: found %d entries, meta says %d", m.ID, len(entries), m.Count)
	}

	ix, err := New(m.ID, m.Model, entries, m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("load index %s: %w", m.ID, err)
	}
	if ix.Dim != m.Dim {
		return nil, fmt.Errorf("index %s: dimension %d, meta says %d", m.ID, ix.Dim, m.Dim)
	}
	return ix, nil
}

func writeMeta(path string, ix *Index) error {
	data, err := json.MarshalIndent(meta{
		FormatVersion: formatVersion,
		ID:            ix.ID,
		Model:         ix.Model,
		Dim:           ix.Dim,
		Count:         ix.Len(),
		ContentHash:   ix.ContentHash,
		CreatedAt:     ix.CreatedAt,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write meta: %w", err)
	}
	return nil
}

func readMeta(path string) (*meta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m meta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if m.FormatVersion != formatVersion {
		return nil, fmt.Errorf("unsupported index format version %d", m.FormatVersion)
	}
	return &m, nil
}

func float32SliceToBytes(floats []float32) []byte {
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToFloat32Slice(data []byte) []float32 {
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
