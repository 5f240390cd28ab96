// Package catalog records scans and their article groups in SQLite.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/eunmann/aspect-iter/pkg/article"
	"github.com/eunmann/aspect-iter/pkg/aspect"
	"github.com/eunmann/aspect-iter/pkg/logging"
	"github.com/eunmann/aspect-iter/pkg/metadata"
)

// ErrUnknownScan indicates a scan ID that was never begun.
var ErrUnknownScan = errors.New("unknown scan")

// Config holds configuration for the catalog database.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string
	// Synchronous sets the SQLite synchronous pragma: OFF, NORMAL or FULL.
	Synchronous string
	// BusyTimeout is how long a writer waits for a lock.
	BusyTimeout time.Duration
}

// DefaultConfig returns the configuration used by the CLI.
func DefaultConfig(dbPath string) Config {
	return Config{
		DBPath:      dbPath,
		Synchronous: "NORMAL",
		BusyTimeout: 5 * time.Second,
	}
}

// Validate checks configuration values.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("DBPath is required")
	}
	switch c.Synchronous {
	case "", "OFF", "NORMAL", "FULL":
	default:
		return fmt.Errorf("invalid Synchronous value %q: must be OFF, NORMAL, or FULL", c.Synchronous)
	}
	if c.BusyTimeout < 0 {
		return fmt.Errorf("BusyTimeout must be non-negative, got %v", c.BusyTimeout)
	}
	return nil
}

// Catalog is a handle on the database. It is safe for concurrent use;
// concurrent scans write under their own scan IDs.
type Catalog struct {
	db *sql.DB
}

// Scan is one recorded scan run.
type Scan struct {
	ID         string
	Plugin     string
	Params     map[string]string
	StartedAt  time.Time
	FinishedAt time.Time // zero while the scan is running
	// Error is set when the scan ended in failure.
	Error string
	Stats article.Stats
}

// Article is one stored group.
type Article struct {
	Key      string
	FullText string
	Metadata string
	Members  map[aspect.Role]string
	Fields   metadata.Fields
}

// Open creates or opens the catalog database.
func Open(ctx context.Context, cfg Config) (*Catalog, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	log := logging.WithPhase("catalog_open")

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One connection keeps pragmas and writes consistent.
	db.SetMaxOpenConns(1)

	syncMode := cfg.Synchronous
	if syncMode == "" {
		syncMode = "NORMAL"
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		fmt.Sprintf("PRAGMA synchronous=%s", syncMode),
		fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.BusyTimeout.Milliseconds()),
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute pragma %q: %w", pragma, err)
		}
	}
	if err := createSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	log.Debug().Str("db_path", cfg.DBPath).Msg("opened catalog")
	return &Catalog{db: db}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS scans (
	id TEXT PRIMARY KEY,
	plugin TEXT NOT NULL,
	params TEXT NOT NULL,
	started_at TEXT NOT NULL,
	finished_at TEXT,
	seen INTEGER NOT NULL DEFAULT 0,
	out_of_scope INTEGER NOT NULL DEFAULT 0,
	unrecognized INTEGER NOT NULL DEFAULT 0,
	malformed INTEGER NOT NULL DEFAULT 0,
	collisions INTEGER NOT NULL DEFAULT 0,
	groups_emitted INTEGER NOT NULL DEFAULT 0,
	error TEXT
);

CREATE TABLE IF NOT EXISTS articles (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	scan_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	key TEXT NOT NULL,
	full_text TEXT NOT NULL DEFAULT '',
	metadata TEXT NOT NULL DEFAULT '',
	UNIQUE(scan_id, key),
	FOREIGN KEY(scan_id) REFERENCES scans(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS members (
	article_id INTEGER NOT NULL,
	role TEXT NOT NULL,
	resource_id TEXT NOT NULL,
	PRIMARY KEY(article_id, role),
	FOREIGN KEY(article_id) REFERENCES articles(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS fields (
	article_id INTEGER NOT NULL,
	name TEXT NOT NULL,
	seq INTEGER NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY(article_id, name, seq),
	FOREIGN KEY(article_id) REFERENCES articles(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_members_resource ON members(resource_id);
`

func createSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// BeginScan records the start of a scan and returns its ID, a ULID so that
// IDs sort by start time.
func (c *Catalog) BeginScan(ctx context.Context, plugin string, params map[string]string) (string, error) {
	id := ulid.Make().String()
	p, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("encode params: %w", err)
	}
	_, err = c.db.ExecContext(ctx,
		"INSERT INTO scans (id, plugin, params, started_at) VALUES (?, ?, ?, ?)",
		id, plugin, string(p), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("insert scan: %w", err)
	}
	return id, nil
}

// PutRecord stores one group and its extracted fields under scanID.
// Records keep the order in which they are put.
func (c *Catalog) PutRecord(ctx context.Context, scanID string, rec metadata.Record) (err error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	g := rec.Group
	res, err := tx.ExecContext(ctx, `
		INSERT INTO articles (scan_id, seq, key, full_text, metadata)
		SELECT ?, COALESCE(MAX(seq), -1) + 1, ?, ?, ? FROM articles WHERE scan_id = ?`,
		scanID, g.Key, g.FullText, g.Metadata, scanID)
	if err != nil {
		return fmt.Errorf("insert article %s: %w", g.Key, err)
	}
	articleID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("article id: %w", err)
	}

	for role, id := range g.Members {
		if _, err = tx.ExecContext(ctx,
			"INSERT INTO members (article_id, role, resource_id) VALUES (?, ?, ?)",
			articleID, string(role), id); err != nil {
			return fmt.Errorf("insert member: %w", err)
		}
	}
	for name, values := range rec.Fields {
		for i, v := range values {
			if _, err = tx.ExecContext(ctx,
				"INSERT INTO fields (article_id, name, seq, value) VALUES (?, ?, ?, ?)",
				articleID, name, i, v); err != nil {
				return fmt.Errorf("insert field: %w", err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit article: %w", err)
	}
	return nil
}

// FinishScan records the successful end of a scan and its counters.
func (c *Catalog) FinishScan(ctx context.Context, scanID string, stats article.Stats) error {
	return c.finish(ctx, scanID, stats, sql.NullString{})
}

// FailScan records that a scan ended with cause. The counters are whatever
// the scan had reached.
func (c *Catalog) FailScan(ctx context.Context, scanID string, stats article.Stats, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return c.finish(ctx, scanID, stats, sql.NullString{String: msg, Valid: true})
}

func (c *Catalog) finish(ctx context.Context, scanID string, stats article.Stats, failure sql.NullString) error {
	res, err := c.db.ExecContext(ctx, `
		UPDATE scans SET finished_at = ?, seen = ?, out_of_scope = ?, unrecognized = ?,
			malformed = ?, collisions = ?, groups_emitted = ?, error = ?
		WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano),
		stats.Seen, stats.OutOfScope, stats.Unrecognized,
		stats.Malformed, stats.Collisions, stats.Groups, failure, scanID)
	if err != nil {
		return fmt.Errorf("update scan: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update scan: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish %s: %w", scanID, ErrUnknownScan)
	}
	return nil
}

// Scan returns one scan's record.
func (c *Catalog) Scan(ctx context.Context, scanID string) (Scan, error) {
	var (
		s               Scan
		params, started string
		finished        sql.NullString
		failure         sql.NullString
	)
	err := c.db.QueryRowContext(ctx, `
		SELECT id, plugin, params, started_at, finished_at, seen, out_of_scope,
			unrecognized, malformed, collisions, groups_emitted, error
		FROM scans WHERE id = ?`, scanID).Scan(
		&s.ID, &s.Plugin, &params, &started, &finished,
		&s.Stats.Seen, &s.Stats.OutOfScope, &s.Stats.Unrecognized,
		&s.Stats.Malformed, &s.Stats.Collisions, &s.Stats.Groups, &failure)
	if errors.Is(err, sql.ErrNoRows) {
		return Scan{}, fmt.Errorf("scan %s: %w", scanID, ErrUnknownScan)
	}
	if err != nil {
		return Scan{}, fmt.Errorf("query scan: %w", err)
	}
	if err := json.Unmarshal([]byte(params), &s.Params); err != nil {
		return Scan{}, fmt.Errorf("decode params: %w", err)
	}
	if s.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return Scan{}, fmt.Errorf("parse started_at: %w", err)
	}
	s.Error = failure.String
	if finished.Valid {
		if s.FinishedAt, err = time.Parse(time.RFC3339Nano, finished.String); err != nil {
			return Scan{}, fmt.Errorf("parse finished_at: %w", err)
		}
	}
	return s, nil
}

// Articles returns a scan's articles in the order they were put.
func (c *Catalog) Articles(ctx context.Context, scanID string) ([]Article, error) {
	rows, err := c.db.QueryContext(ctx,
		"SELECT id, key, full_text, metadata FROM articles WHERE scan_id = ? ORDER BY seq", scanID)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}
	var (
		ids  []int64
		arts []Article
	)
	for rows.Next() {
		var (
			id int64
			a  Article
		)
		if err := rows.Scan(&id, &a.Key, &a.FullText, &a.Metadata); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan article row: %w", err)
		}
		a.Members = make(map[aspect.Role]string)
		ids = append(ids, id)
		arts = append(arts, a)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate articles: %w", err)
	}
	rows.Close()

	index := make(map[int64]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}
	if err := c.loadMembers(ctx, scanID, arts, index); err != nil {
		return nil, err
	}
	if err := c.loadFields(ctx, scanID, arts, index); err != nil {
		return nil, err
	}
	return arts, nil
}

func (c *Catalog) loadMembers(ctx context.Context, scanID string, arts []Article, index map[int64]int) error {
	rows, err := c.db.QueryContext(ctx, `
		SELECT m.article_id, m.role, m.resource_id FROM members m
		JOIN articles a ON a.id = m.article_id WHERE a.scan_id = ?`, scanID)
	if err != nil {
		return fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id       int64
			role, rs string
		)
		if err := rows.Scan(&id, &role, &rs); err != nil {
			return fmt.Errorf("scan member row: %w", err)
		}
		arts[index[id]].Members[aspect.Role(role)] = rs
	}
	return rows.Err()
}

func (c *Catalog) loadFields(ctx context.Context, scanID string, arts []Article, index map[int64]int) error {
	rows, err := c.db.QueryContext(ctx, `
		SELECT f.article_id, f.name, f.value FROM fields f
		JOIN articles a ON a.id = f.article_id WHERE a.scan_id = ?
		ORDER BY f.article_id, f.name, f.seq`, scanID)
	if err != nil {
		return fmt.Errorf("query fields: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id          int64
			name, value string
		)
		if err := rows.Scan(&id, &name, &value); err != nil {
			return fmt.Errorf("scan field row: %w", err)
		}
		a := &arts[index[id]]
		if a.Fields == nil {
			a.Fields = make(metadata.Fields)
		}
		a.Fields.Add(name, value)
	}
	return rows.Err()
}

// Scans lists every scan, newest first.
func (c *Catalog) Scans(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT id FROM scans")
	if err != nil {
		return nil, fmt.Errorf("query scans: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	return ids, nil
}
