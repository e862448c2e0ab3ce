package database

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"imagetagger/logging"
	"imagetagger/types"
)

// InitDatabase opens (creating if needed) the database and its schema
func InitDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open database %s", dbPath)
	}

	// Create tables if they don't exist
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS images (
		key TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		path TEXT NOT NULL,
		tags TEXT NOT NULL DEFAULT '[]',
		run_id TEXT,
		classified_at TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_images_run ON images(run_id);
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		processed INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		checkpoints INTEGER NOT NULL DEFAULT 0
	);`

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "cannot create schema in %s", dbPath)
	}

	logging.DebugLog("Database ready: %s", dbPath)
	return db, nil
}

// OpenDatabase opens an existing database, failing when the file is missing
func OpenDatabase(dbPath string) (*sql.DB, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, errors.WithHint(
			errors.Wrapf(err, "database not available"),
			"run a classification with --db (or database.enabled: true) first")
	}
	return sql.Open("sqlite3", dbPath)
}

// Mirror copies every checkpoint of a classification run into the images table
type Mirror struct {
	db    *sql.DB
	path  string
	runID string
}

// NewMirror creates a mirror writing to db; path is only used for reporting
func NewMirror(db *sql.DB, path string) *Mirror {
	return &Mirror{db: db, path: path}
}

// Name identifies the mirror in log messages
func (m *Mirror) Name() string {
	return "sqlite:" + m.path
}

// RunID returns the identifier of the active run
func (m *Mirror) RunID() string {
	return m.runID
}

// BeginRun registers a new run and clears the rows of previous runs, so the
// images table always matches the latest output file
func (m *Mirror) BeginRun(source string) (string, error) {
	runID := uuid.NewString()
	now := time.Now().Format(time.RFC3339)

	tx, err := m.db.Begin()
	if err != nil {
		return "", errors.Wrap(err, "cannot begin run")
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM images"); err != nil {
		return "", errors.Wrap(err, "cannot clear previous results")
	}
	if _, err := tx.Exec("INSERT INTO runs (id, source, started_at) VALUES (?, ?, ?)", runID, source, now); err != nil {
		return "", errors.Wrap(err, "cannot record run")
	}
	if err := tx.Commit(); err != nil {
		return "", errors.Wrap(err, "cannot commit run")
	}

	m.runID = runID
	logging.DebugLog("Started run %s for %s", runID, source)
	return runID, nil
}

// Checkpoint stores the full result set in a single transaction
func (m *Mirror) Checkpoint(records map[string]types.ImageRecord) error {
	if m.runID == "" {
		return errors.New("checkpoint without an active run")
	}

	tx, err := m.db.Begin()
	if err != nil {
		return errors.Wrap(err, "cannot begin checkpoint")
	}
	defer tx.Rollback()

	// Prepare statement to avoid SQL injection
	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO images (key, name, path, tags, run_id, classified_at)
		VALUES (?, ?, ?, ?, ?, COALESCE((SELECT classified_at FROM images WHERE key = ?), ?))
	`)
	if err != nil {
		return errors.Wrap(err, "cannot prepare checkpoint statement")
	}
	defer stmt.Close()

	now := time.Now().Format(time.RFC3339)
	for key, rec := range records {
		tags, err := encodeTags(rec.AITags)
		if err != nil {
			return errors.Wrapf(err, "cannot encode tags for %s", key)
		}
		if _, err := stmt.Exec(key, filepath.Base(rec.Path), rec.Path, tags, m.runID, key, now); err != nil {
			return errors.Wrapf(err, "cannot store result for %s", rec.Path)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "cannot commit checkpoint")
	}
	return nil
}

// FinishRun stores the final counters of the active run
func (m *Mirror) FinishRun(stats types.ScanStats) error {
	if m.runID == "" {
		return errors.New("no active run")
	}
	_, err := m.db.Exec(`
		UPDATE runs SET finished_at = ?, processed = ?, failed = ?, checkpoints = ?
		WHERE id = ?`,
		time.Now().Format(time.RFC3339), stats.Processed, stats.Failed, stats.Checkpoints, m.runID)
	if err != nil {
		return errors.Wrapf(err, "cannot finish run %s", m.runID)
	}
	return nil
}

// TaggedImage is a stored classification result
type TaggedImage struct {
	Key          string
	Path         string
	Tags         []string
	ClassifiedAt string
}

// FindByTag returns the images carrying tag, ordered by key
func FindByTag(db *sql.DB, tag string) ([]TaggedImage, error) {
	rows, err := db.Query(`
		SELECT key, path, tags, COALESCE(classified_at, '') FROM images
		WHERE EXISTS (SELECT 1 FROM json_each(images.tags) WHERE json_each.value = ?)
		ORDER BY key`, tag)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot search for tag %q", tag)
	}
	defer rows.Close()

	var matches []TaggedImage
	for rows.Next() {
		var img TaggedImage
		var tags string
		if err := rows.Scan(&img.Key, &img.Path, &tags, &img.ClassifiedAt); err != nil {
			return nil, errors.Wrap(err, "cannot read search result")
		}
		if err := json.Unmarshal([]byte(tags), &img.Tags); err != nil {
			return nil, errors.Wrapf(err, "corrupt tags for %s", img.Key)
		}
		matches = append(matches, img)
	}
	return matches, rows.Err()
}

// TagCount is the number of images carrying a tag
type TagCount struct {
	Tag   string
	Count int
}

// RunInfo describes a recorded classification run
type RunInfo struct {
	ID          string
	Source      string
	StartedAt   string
	FinishedAt  string
	Processed   int
	Failed      int
	Checkpoints int
}

// ScanStats contains statistics about the stored results
type ScanStats struct {
	TotalImages  int
	TaggedImages int
	UniqueTags   int
	TopTags      []TagCount
	LastRun      *RunInfo
}

// GetScanStats retrieves statistics about the stored results
func GetScanStats(db *sql.DB, topN int) (*ScanStats, error) {
	var stats ScanStats

	// Count total images
	err := db.QueryRow("SELECT COUNT(*) FROM images").Scan(&stats.TotalImages)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get total images")
	}

	err = db.QueryRow("SELECT COUNT(*) FROM images WHERE json_array_length(tags) > 0").Scan(&stats.TaggedImages)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count tagged images")
	}

	err = db.QueryRow("SELECT COUNT(DISTINCT json_each.value) FROM images, json_each(images.tags)").Scan(&stats.UniqueTags)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count unique tags")
	}

	if topN > 0 {
		stats.TopTags, err = topTags(db, topN)
		if err != nil {
			return nil, err
		}
	}

	stats.LastRun, err = lastRun(db)
	if err != nil {
		return nil, err
	}

	return &stats, nil
}

func topTags(db *sql.DB, n int) ([]TagCount, error) {
	rows, err := db.Query(`
		SELECT json_each.value AS tag, COUNT(*) AS n
		FROM images, json_each(images.tags)
		GROUP BY tag ORDER BY n DESC, tag ASC LIMIT ?`, n)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count tags")
	}
	defer rows.Close()

	var counts []TagCount
	for rows.Next() {
		var tc TagCount
		if err := rows.Scan(&tc.Tag, &tc.Count); err != nil {
			return nil, errors.Wrap(err, "cannot read tag count")
		}
		counts = append(counts, tc)
	}
	return counts, rows.Err()
}

func lastRun(db *sql.DB) (*RunInfo, error) {
	var run RunInfo
	err := db.QueryRow(`
		SELECT id, source, started_at, COALESCE(finished_at, ''), processed, failed, checkpoints
		FROM runs ORDER BY started_at DESC, rowid DESC LIMIT 1`).
		Scan(&run.ID, &run.Source, &run.StartedAt, &run.FinishedAt, &run.Processed, &run.Failed, &run.Checkpoints)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read last run")
	}
	return &run, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	data, err := json.Marshal(tags)
	return string(data), err
}
