// Package catalog - SQLite index of recorded clips and snapshots.
package catalog

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// Recording is one clip row.
type Recording struct {
	ID             uuid.UUID
	Path           string
	Width          int
	Height         int
	FPS            float64
	Frames         int
	StartedAt      time.Time
	EndedAt        time.Time // zero while the clip is open
	TranscodedPath string
}

// Snapshot is one snapshot row. RecordingID is unset for snapshots taken
// outside a confirmed event.
type Snapshot struct {
	ID          uuid.UUID
	RecordingID uuid.NullUUID
	Path        string
	TakenAt     time.Time
	Regions     int
	Labels      []string
}

// Catalog stores recordings and snapshots.
type Catalog struct {
	db *sql.DB
}

// Open opens or creates the database at path and migrates it to the latest
// schema.
func Open(path string) (*Catalog, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "failed to create catalog directory %s", dir)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open catalog %s", path)
	}
	// A single connection serializes writes from the tick loop and transcode hooks.
	db.SetMaxOpenConns(1)

	c := &Catalog{db: db}
	if err := c.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// StartRecording inserts an open clip and returns its id.
func (c *Catalog) StartRecording(path string, width, height int, fps float64, startedAt time.Time) (uuid.UUID, error) {
	id := uuid.New()
	_, err := c.db.Exec(`
		INSERT INTO recordings (recording_id, path, width, height, fps, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id.String(), path, width, height, fps, startedAt.UnixNano())
	if err != nil {
		return uuid.Nil, errors.Wrapf(err, "failed to insert recording %s", path)
	}
	return id, nil
}

// FinishRecording stores the frame count and end time of a clip.
func (c *Catalog) FinishRecording(id uuid.UUID, frames int, endedAt time.Time) error {
	res, err := c.db.Exec(`UPDATE recordings SET frames = ?, ended_at = ? WHERE recording_id = ?`,
		frames, endedAt.UnixNano(), id.String())
	if err != nil {
		return errors.Wrapf(err, "failed to finish recording %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Errorf("recording %s not found", id)
	}
	return nil
}

// SetTranscoded records the transcoded output of the clip at path.
func (c *Catalog) SetTranscoded(path, output string) error {
	_, err := c.db.Exec(`UPDATE recordings SET transcoded_path = ? WHERE path = ?`, output, path)
	return errors.Wrapf(err, "failed to update recording %s", path)
}

// AddSnapshot inserts s with a fresh id and returns it.
func (c *Catalog) AddSnapshot(s Snapshot) (uuid.UUID, error) {
	id := uuid.New()
	_, err := c.db.Exec(`
		INSERT INTO snapshots (snapshot_id, recording_id, path, taken_at, regions, labels)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id.String(), nullString(s.RecordingID), s.Path, s.TakenAt.UnixNano(), s.Regions, strings.Join(s.Labels, ","))
	if err != nil {
		return uuid.Nil, errors.Wrapf(err, "failed to insert snapshot %s", s.Path)
	}
	return id, nil
}

// Recordings lists clips, oldest first.
func (c *Catalog) Recordings() ([]Recording, error) {
	rows, err := c.db.Query(`
		SELECT recording_id, path, width, height, fps, frames, started_at, ended_at, transcoded_path
		FROM recordings ORDER BY started_at, rowid`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query recordings")
	}
	defer rows.Close()

	var out []Recording
	for rows.Next() {
		var (
			r         Recording
			id        string
			startedAt int64
			endedAt   sql.NullInt64
		)
		if err := rows.Scan(&id, &r.Path, &r.Width, &r.Height, &r.FPS, &r.Frames, &startedAt, &endedAt, &r.TranscodedPath); err != nil {
			return nil, errors.Wrap(err, "failed to scan recording")
		}
		if r.ID, err = uuid.Parse(id); err != nil {
			return nil, errors.Wrapf(err, "invalid recording id %q", id)
		}
		r.StartedAt = time.Unix(0, startedAt)
		if endedAt.Valid {
			r.EndedAt = time.Unix(0, endedAt.Int64)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Snapshots lists snapshots, oldest first.
func (c *Catalog) Snapshots() ([]Snapshot, error) {
	rows, err := c.db.Query(`
		SELECT snapshot_id, recording_id, path, taken_at, regions, labels
		FROM snapshots ORDER BY taken_at, rowid`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query snapshots")
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var (
			s           Snapshot
			id          string
			recordingID sql.NullString
			takenAt     int64
			labels      string
		)
		if err := rows.Scan(&id, &recordingID, &s.Path, &takenAt, &s.Regions, &labels); err != nil {
			return nil, errors.Wrap(err, "failed to scan snapshot")
		}
		if s.ID, err = uuid.Parse(id); err != nil {
			return nil, errors.Wrapf(err, "invalid snapshot id %q", id)
		}
		if recordingID.Valid {
			rid, err := uuid.Parse(recordingID.String)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid recording id %q", recordingID.String)
			}
			s.RecordingID = uuid.NullUUID{UUID: rid, Valid: true}
		}
		s.TakenAt = time.Unix(0, takenAt)
		if labels != "" {
			s.Labels = strings.Split(labels, ",")
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

func nullString(id uuid.NullUUID) sql.NullString {
	if !id.Valid {
		return sql.NullString{}
	}
	return sql.NullString{String: id.UUID.String(), Valid: true}
}
