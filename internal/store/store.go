package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/andresmejia3/lotannot/internal/timeline"
	"github.com/andresmejia3/lotannot/internal/utils"
)

// Store manages the PostgreSQL connection for the annotation index.
type Store struct {
	conn *pgx.Conn
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// initSchema creates the annotation tables if they don't exist (Auto-Migration).
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS videos (
			id TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			interval_seconds INT NOT NULL DEFAULT 0,
			initial_time TEXT,
			day_start_time TEXT,
			night_start_time TEXT,
			indexed_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS lot_labels (
			video_id TEXT NOT NULL REFERENCES videos(id) ON DELETE CASCADE,
			lot_id TEXT NOT NULL,
			frame CHAR(5) NOT NULL,
			label TEXT NOT NULL,
			flags TEXT[] NOT NULL DEFAULT '{}',
			PRIMARY KEY (video_id, lot_id, frame)
		);
		CREATE TABLE IF NOT EXISTS difficult_frames (
			video_id TEXT NOT NULL REFERENCES videos(id) ON DELETE CASCADE,
			lot_id TEXT NOT NULL,
			frame CHAR(5) NOT NULL,
			label TEXT NOT NULL,
			PRIMARY KEY (video_id, lot_id, frame)
		);
		CREATE TABLE IF NOT EXISTS conditions (
			video_id TEXT NOT NULL REFERENCES videos(id) ON DELETE CASCADE,
			frame CHAR(5) NOT NULL,
			axis TEXT NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (video_id, frame, axis)
		);
		CREATE INDEX IF NOT EXISTS lot_labels_lot_idx ON lot_labels (video_id, lot_id);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// VideoID identifies a video in the index. It hashes the file when it is
// readable and falls back to a name-based UUID when the video is gone.
func VideoID(path string) string {
	if id, err := utils.GenerateVideoID(path); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+path)).String()
}

// Counts summarises what one export wrote.
type Counts struct {
	Labels     int64
	Difficult  int64
	Conditions int64
}

// ReplaceScene swaps every row of videoID for the contents of scene and
// cond in one transaction. cond may be nil.
func (s *Store) ReplaceScene(ctx context.Context, videoID, path string, scene *timeline.Scene, cond *timeline.Conditions) (Counts, error) {
	var counts Counts
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return counts, err
	}
	defer tx.Rollback(ctx) // no-op after Commit

	// Cascades to lot_labels, difficult_frames and conditions.
	if _, err := tx.Exec(ctx, "DELETE FROM videos WHERE id = $1", videoID); err != nil {
		return counts, fmt.Errorf("failed to clear video %s: %w", videoID, err)
	}

	var interval int
	var initial, dayStart, nightStart *string
	if cond != nil {
		interval = int(cond.Interval)
		initial, dayStart, nightStart = nonEmpty(cond.InitialTime), nonEmpty(cond.DayStartTime), nonEmpty(cond.NightStartTime)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO videos (id, path, interval_seconds, initial_time, day_start_time, night_start_time, indexed_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, videoID, path, interval, initial, dayStart, nightStart); err != nil {
		return counts, fmt.Errorf("failed to register video: %w", err)
	}

	var labelRows, difficultRows, conditionRows [][]any
	for _, lot := range scene.Occupancy.Buckets() {
		for _, e := range scene.Occupancy.Entries(lot) {
			flags := e.Flags
			if flags == nil {
				flags = []string{}
			}
			labelRows = append(labelRows, []any{videoID, lot, e.Frame, e.Label, flags})
		}
	}
	for _, lot := range scene.Difficult.Buckets() {
		for _, e := range scene.Difficult.Entries(lot) {
			difficultRows = append(difficultRows, []any{videoID, lot, e.Frame, e.Label})
		}
	}
	if cond != nil {
		for _, axis := range cond.Axes.Buckets() {
			for _, e := range cond.Axes.Entries(axis) {
				conditionRows = append(conditionRows, []any{videoID, e.Frame, axis, e.Label})
			}
		}
	}

	if counts.Labels, err = tx.CopyFrom(ctx, pgx.Identifier{"lot_labels"},
		[]string{"video_id", "lot_id", "frame", "label", "flags"}, pgx.CopyFromRows(labelRows)); err != nil {
		return counts, fmt.Errorf("failed to copy lot labels: %w", err)
	}
	if counts.Difficult, err = tx.CopyFrom(ctx, pgx.Identifier{"difficult_frames"},
		[]string{"video_id", "lot_id", "frame", "label"}, pgx.CopyFromRows(difficultRows)); err != nil {
		return counts, fmt.Errorf("failed to copy difficult frames: %w", err)
	}
	if counts.Conditions, err = tx.CopyFrom(ctx, pgx.Identifier{"conditions"},
		[]string{"video_id", "frame", "axis", "value"}, pgx.CopyFromRows(conditionRows)); err != nil {
		return counts, fmt.Errorf("failed to copy conditions: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Counts{}, err
	}
	return counts, nil
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// LabelCount is the number of label changes recorded for one lot.
type LabelCount struct {
	LotID    string
	Free     int
	Busy     int
	Occluded int
}

// LabelCounts returns per-lot label statistics for a video, ordered by lot id.
func (s *Store) LabelCounts(ctx context.Context, videoID string) ([]LabelCount, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT lot_id,
			COUNT(*) FILTER (WHERE label = 'free'),
			COUNT(*) FILTER (WHERE label = 'busy'),
			COUNT(*) FILTER (WHERE 'occluded' = ANY(flags))
		FROM lot_labels
		WHERE video_id = $1
		GROUP BY lot_id
		ORDER BY lot_id
	`, videoID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (LabelCount, error) {
		var c LabelCount
		err := row.Scan(&c.LotID, &c.Free, &c.Busy, &c.Occluded)
		return c, err
	})
}

// Labels returns the stored entries of one lot in frame order.
func (s *Store) Labels(ctx context.Context, videoID, lotID string) ([]timeline.Entry, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT frame, label, flags FROM lot_labels
		WHERE video_id = $1 AND lot_id = $2
		ORDER BY frame
	`, videoID, lotID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (timeline.Entry, error) {
		var e timeline.Entry
		err := row.Scan(&e.Frame, &e.Label, &e.Flags)
		return e, err
	})
}

// Condition returns the value of axis at frame, if one was exported.
func (s *Store) Condition(ctx context.Context, videoID, frame, axis string) (string, bool, error) {
	var value string
	err := s.conn.QueryRow(ctx,
		"SELECT value FROM conditions WHERE video_id = $1 AND frame = $2 AND axis = $3",
		videoID, frame, axis).Scan(&value)
	if err == pgx.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Video is one row of the videos table.
type Video struct {
	ID     string
	Path   string
	Labels int
}

// Videos lists indexed videos with their label row counts.
func (s *Store) Videos(ctx context.Context) ([]Video, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT v.id, v.path, COUNT(l.frame)
		FROM videos v LEFT JOIN lot_labels l ON l.video_id = v.id
		GROUP BY v.id, v.path
		ORDER BY v.path
	`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Video, error) {
		var v Video
		err := row.Scan(&v.ID, &v.Path, &v.Labels)
		return v, err
	})
}

// Reset drops all application tables to clear the database state.
// This is useful for development to force a schema refresh without migrations.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `
		DROP TABLE IF EXISTS conditions CASCADE;
		DROP TABLE IF EXISTS difficult_frames CASCADE;
		DROP TABLE IF EXISTS lot_labels CASCADE;
		DROP TABLE IF EXISTS videos CASCADE;
	`)
	return err
}
