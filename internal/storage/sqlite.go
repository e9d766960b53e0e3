package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dohr-michael/editthread/internal/tasks"
	"github.com/dohr-michael/editthread/internal/world"
)

const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	x          INTEGER NOT NULL,
	z          INTEGER NOT NULL,
	blocks     BLOB    NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (x, z)
);
CREATE TABLE IF NOT EXISTS tasks (
	id          TEXT PRIMARY KEY,
	type        TEXT NOT NULL,
	name        TEXT NOT NULL,
	status      TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	result      TEXT,
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL,
	started_at  INTEGER,
	finished_at INTEGER
);
CREATE INDEX IF NOT EXISTS tasks_updated ON tasks (updated_at DESC);
CREATE TABLE IF NOT EXISTS task_progress (
	task_id TEXT    NOT NULL,
	ts      INTEGER NOT NULL,
	text    TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS task_progress_task ON task_progress (task_id);
`

// SQLite stores world chunks and task records in one database file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer keeps SQLite from returning SQLITE_BUSY under WAL.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// =============================================================================
// CHUNKS
// =============================================================================

// LoadChunks returns the chunks at positions, all-air for chunks never saved.
func (s *SQLite) LoadChunks(ctx context.Context, positions []world.ChunkPos) ([]world.Chunk, error) {
	out := make([]world.Chunk, 0, len(positions))
	for _, p := range positions {
		var blob []byte
		err := s.db.QueryRowContext(ctx, `SELECT blocks FROM chunks WHERE x = ? AND z = ?`, p.X, p.Z).Scan(&blob)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			out = append(out, *world.NewChunk(p))
		case err != nil:
			return nil, fmt.Errorf("load chunk %s: %w", p, err)
		default:
			c, err := decodeBlocks(p, blob)
			if err != nil {
				return nil, err
			}
			out = append(out, *c)
		}
	}
	return out, nil
}

// SaveChunks writes chunks in a single transaction.
func (s *SQLite) SaveChunks(ctx context.Context, chunks []world.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixNano()
	for i := range chunks {
		c := &chunks[i]
		if !c.Valid() {
			return fmt.Errorf("chunk %s: malformed", c.Pos)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO chunks (x, z, blocks, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT (x, z) DO UPDATE SET blocks = excluded.blocks, updated_at = excluded.updated_at`,
			c.Pos.X, c.Pos.Z, encodeBlocks(c), now)
		if err != nil {
			return fmt.Errorf("save chunk %s: %w", c.Pos, err)
		}
	}
	return tx.Commit()
}

func encodeBlocks(c *world.Chunk) []byte {
	buf := make([]byte, 0, 2*len(c.Blocks))
	for _, b := range c.Blocks {
		buf = binary.LittleEndian.AppendUint16(buf, b)
	}
	return buf
}

func decodeBlocks(pos world.ChunkPos, blob []byte) (*world.Chunk, error) {
	c := world.NewChunk(pos)
	if len(blob) != 2*len(c.Blocks) {
		return nil, fmt.Errorf("chunk %s: stored size %d, want %d", pos, len(blob), 2*len(c.Blocks))
	}
	for i := range c.Blocks {
		c.Blocks[i] = binary.LittleEndian.Uint16(blob[2*i:])
	}
	return c, nil
}

// =============================================================================
// TASK RECORDS
// =============================================================================

// Save creates or rewrites a task record.
func (s *SQLite) Save(r *tasks.Record) error {
	if r.ID == "" {
		r.ID = tasks.GenerateTaskID()
	}
	now := time.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	var result sql.NullString
	if r.Result != nil {
		data, err := json.Marshal(r.Result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		result = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.Exec(
		`INSERT INTO tasks (id, type, name, status, error, result, created_at, updated_at, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			type = excluded.type, name = excluded.name, status = excluded.status,
			error = excluded.error, result = excluded.result, updated_at = excluded.updated_at,
			started_at = excluded.started_at, finished_at = excluded.finished_at`,
		r.ID, r.Type, r.Name, string(r.Status), r.Error, result,
		r.CreatedAt.UnixNano(), r.UpdatedAt.UnixNano(), nullTime(r.StartedAt), nullTime(r.FinishedAt))
	if err != nil {
		return fmt.Errorf("save task %s: %w", r.ID, err)
	}
	return nil
}

const selectTask = `SELECT id, type, name, status, error, result, created_at, updated_at, started_at, finished_at FROM tasks`

// Get reads a task record by ID.
func (s *SQLite) Get(id string) (*tasks.Record, error) {
	r, err := scanRecord(s.db.QueryRow(selectTask+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tasks.ErrNotFound
	}
	return r, err
}

// List returns records matching the filter, most recently updated first.
func (s *SQLite) List(filter tasks.ListFilter) ([]*tasks.Record, error) {
	query := selectTask + ` WHERE (? = '' OR status = ?) AND (? = '' OR type = ?) ORDER BY updated_at DESC`
	args := []any{string(filter.Status), string(filter.Status), filter.Type, filter.Type}
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []*tasks.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AppendProgress stores a progress line.
func (s *SQLite) AppendProgress(taskID string, p tasks.Progress) error {
	_, err := s.db.Exec(`INSERT INTO task_progress (task_id, ts, text) VALUES (?, ?, ?)`,
		taskID, p.Ts.UnixNano(), p.Text)
	if err != nil {
		return fmt.Errorf("append progress: %w", err)
	}
	return nil
}

// LoadProgress returns the progress lines of a task in insertion order.
func (s *SQLite) LoadProgress(taskID string) ([]tasks.Progress, error) {
	rows, err := s.db.Query(`SELECT ts, text FROM task_progress WHERE task_id = ? ORDER BY rowid`, taskID)
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	defer rows.Close()

	var out []tasks.Progress
	for rows.Next() {
		var ts int64
		var p tasks.Progress
		if err := rows.Scan(&ts, &p.Text); err != nil {
			return nil, err
		}
		p.Ts = time.Unix(0, ts)
		out = append(out, p)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*tasks.Record, error) {
	var (
		r                 tasks.Record
		status            string
		result            sql.NullString
		created, updated  int64
		started, finished sql.NullInt64
	)
	if err := row.Scan(&r.ID, &r.Type, &r.Name, &status, &r.Error, &result, &created, &updated, &started, &finished); err != nil {
		return nil, err
	}
	r.Status = tasks.TaskStatus(status)
	r.CreatedAt = time.Unix(0, created)
	r.UpdatedAt = time.Unix(0, updated)
	r.StartedAt = fromNull(started)
	r.FinishedAt = fromNull(finished)
	if result.Valid {
		var res tasks.Result
		if err := json.Unmarshal([]byte(result.String), &res); err != nil {
			return nil, fmt.Errorf("unmarshal result of %s: %w", r.ID, err)
		}
		r.Result = &res
	}
	return &r, nil
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromNull(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64)
	return &t
}

var (
	_ tasks.Store = (*SQLite)(nil)
	_ world.Store = (*SQLite)(nil)
)
