package media

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hooplab/courtreel/internal/persistence/sqlite"
)

const schemaVersion = 1

// SqliteStore implements Store on SQLite. All asset columns live in one row;
// the metadata document and tags are stored as JSON blobs since they are
// written wholesale per stage and never queried column-wise.
type SqliteStore struct {
	DB *sql.DB
}

// NewSqliteStore opens (or creates) the asset database at dbPath.
func NewSqliteStore(dbPath string) (*SqliteStore, error) {
	db, err := sqlite.Open(dbPath)
	if err != nil {
		return nil, err
	}

	s := &SqliteStore{DB: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("media store: migration failed: %w", err)
	}
	return s, nil
}

func (s *SqliteStore) migrate() error {
	var currentVersion int
	if err := s.DB.QueryRow("PRAGMA user_version").Scan(&currentVersion); err != nil {
		return err
	}
	if currentVersion >= schemaVersion {
		return nil
	}

	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS media_assets (
		id TEXT PRIMARY KEY,
		source_path TEXT NOT NULL,
		original_filename TEXT NOT NULL,
		video_type TEXT NOT NULL DEFAULT '',
		team_id TEXT NOT NULL DEFAULT '',
		game_id TEXT NOT NULL DEFAULT '',
		training_session_id TEXT NOT NULL DEFAULT '',
		duration_seconds INTEGER NOT NULL DEFAULT 0,
		width INTEGER NOT NULL DEFAULT 0,
		height INTEGER NOT NULL DEFAULT 0,
		frame_rate REAL NOT NULL DEFAULT 0,
		codec TEXT NOT NULL DEFAULT '',
		bitrate INTEGER NOT NULL DEFAULT 0,
		file_size INTEGER NOT NULL DEFAULT 0,
		has_audio BOOLEAN NOT NULL DEFAULT 0,
		quality_rating TEXT NOT NULL DEFAULT 'unknown',
		tags TEXT NOT NULL DEFAULT '[]',
		primary_thumbnail_path TEXT NOT NULL DEFAULT '',
		processed_path TEXT NOT NULL DEFAULT '',
		metadata TEXT NOT NULL DEFAULT '{}',
		recorded_at TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		processing_start TEXT,
		processing_end TEXT,
		processing_error TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_assets_status ON media_assets(status);
	CREATE INDEX IF NOT EXISTS idx_assets_team ON media_assets(team_id);

	CREATE TABLE IF NOT EXISTS games (
		id TEXT PRIMARY KEY,
		team_id TEXT NOT NULL,
		scheduled_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_games_team_time ON games(team_id, scheduled_at);

	CREATE TABLE IF NOT EXISTS training_sessions (
		id TEXT PRIMARY KEY,
		team_id TEXT NOT NULL,
		scheduled_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_team_time ON training_sessions(team_id, scheduled_at);
	`

	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SqliteStore) Close() error { return s.DB.Close() }

const assetColumns = `id, source_path, original_filename, video_type, team_id, game_id,
	training_session_id, duration_seconds, width, height, frame_rate, codec, bitrate,
	file_size, has_audio, quality_rating, tags, primary_thumbnail_path, processed_path,
	metadata, recorded_at, status, processing_start, processing_end, processing_error`

func (s *SqliteStore) Put(ctx context.Context, a *Asset) error {
	tags, err := json.Marshal(a.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	doc := a.Metadata
	if doc == nil {
		doc = map[string]any{}
	}
	meta, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	query := `
	INSERT INTO media_assets (` + assetColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		source_path = excluded.source_path,
		original_filename = excluded.original_filename,
		video_type = excluded.video_type,
		team_id = excluded.team_id,
		game_id = excluded.game_id,
		training_session_id = excluded.training_session_id,
		duration_seconds = excluded.duration_seconds,
		width = excluded.width,
		height = excluded.height,
		frame_rate = excluded.frame_rate,
		codec = excluded.codec,
		bitrate = excluded.bitrate,
		file_size = excluded.file_size,
		has_audio = excluded.has_audio,
		quality_rating = excluded.quality_rating,
		tags = excluded.tags,
		primary_thumbnail_path = excluded.primary_thumbnail_path,
		processed_path = excluded.processed_path,
		metadata = excluded.metadata,
		recorded_at = excluded.recorded_at,
		status = excluded.status,
		processing_start = excluded.processing_start,
		processing_end = excluded.processing_end,
		processing_error = excluded.processing_error
	`
	_, err = s.DB.ExecContext(ctx, query,
		a.ID, a.SourcePath, a.OriginalFilename, string(a.VideoType), a.TeamID, a.GameID,
		a.TrainingSessionID, a.DurationSeconds, a.Width, a.Height, a.FrameRate, a.Codec,
		a.Bitrate, a.FileSize, a.HasAudio, string(a.QualityRating), string(tags),
		a.PrimaryThumbnailPath, a.ProcessedPath, string(meta),
		timePtr(a.RecordedAt), string(a.Status), timePtr(a.ProcessingStart),
		timePtr(a.ProcessingEnd), a.ProcessingError,
	)
	return err
}

func (s *SqliteStore) Get(ctx context.Context, id string) (*Asset, error) {
	row := s.DB.QueryRowContext(ctx, "SELECT "+assetColumns+" FROM media_assets WHERE id = ?", id)
	return scanAsset(row)
}

// Update runs read-modify-write inside a transaction so concurrent Update
// calls serialize on the row.
func (s *SqliteStore) Update(ctx context.Context, id string, fn func(*Asset) error) (*Asset, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, "SELECT "+assetColumns+" FROM media_assets WHERE id = ?", id)
	a, err := scanAsset(row)
	if err != nil {
		return nil, err
	}

	if err := fn(a); err != nil {
		return nil, err
	}

	tags, err := json.Marshal(a.Tags)
	if err != nil {
		return nil, fmt.Errorf("marshal tags: %w", err)
	}
	doc := a.Metadata
	if doc == nil {
		doc = map[string]any{}
	}
	meta, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
	UPDATE media_assets SET
		source_path = ?, original_filename = ?, video_type = ?, team_id = ?,
		game_id = ?, training_session_id = ?, duration_seconds = ?, width = ?,
		height = ?, frame_rate = ?, codec = ?, bitrate = ?, file_size = ?,
		has_audio = ?, quality_rating = ?, tags = ?, primary_thumbnail_path = ?,
		processed_path = ?, metadata = ?, recorded_at = ?, status = ?,
		processing_start = ?, processing_end = ?, processing_error = ?
	WHERE id = ?`,
		a.SourcePath, a.OriginalFilename, string(a.VideoType), a.TeamID,
		a.GameID, a.TrainingSessionID, a.DurationSeconds, a.Width,
		a.Height, a.FrameRate, a.Codec, a.Bitrate, a.FileSize,
		a.HasAudio, string(a.QualityRating), string(tags), a.PrimaryThumbnailPath,
		a.ProcessedPath, string(meta), timePtr(a.RecordedAt), string(a.Status),
		timePtr(a.ProcessingStart), timePtr(a.ProcessingEnd), a.ProcessingError,
		a.ID,
	)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return a, nil
}

// AddGame registers a scheduled game for auto-association lookups.
func (s *SqliteStore) AddGame(ctx context.Context, id, teamID string, scheduledAt time.Time) error {
	_, err := s.DB.ExecContext(ctx,
		"INSERT OR REPLACE INTO games (id, team_id, scheduled_at) VALUES (?, ?, ?)",
		id, teamID, scheduledAt.UTC().Format(time.RFC3339))
	return err
}

// AddTrainingSession registers a scheduled training session.
func (s *SqliteStore) AddTrainingSession(ctx context.Context, id, teamID string, scheduledAt time.Time) error {
	_, err := s.DB.ExecContext(ctx,
		"INSERT OR REPLACE INTO training_sessions (id, team_id, scheduled_at) VALUES (?, ?, ?)",
		id, teamID, scheduledAt.UTC().Format(time.RFC3339))
	return err
}

func (s *SqliteStore) FindGameNear(ctx context.Context, teamID string, t time.Time, window time.Duration) (string, bool, error) {
	return s.findNear(ctx, "games", teamID, t, window)
}

func (s *SqliteStore) FindTrainingSessionNear(ctx context.Context, teamID string, t time.Time, window time.Duration) (string, bool, error) {
	return s.findNear(ctx, "training_sessions", teamID, t, window)
}

func (s *SqliteStore) findNear(ctx context.Context, table, teamID string, t time.Time, window time.Duration) (string, bool, error) {
	lo := t.Add(-window).UTC().Format(time.RFC3339)
	hi := t.Add(window).UTC().Format(time.RFC3339)
	// Closest match wins when several events fall inside the window.
	query := fmt.Sprintf(`
	SELECT id FROM %s
	WHERE team_id = ? AND scheduled_at BETWEEN ? AND ?
	ORDER BY ABS(strftime('%%s', scheduled_at) - strftime('%%s', ?))
	LIMIT 1`, table)

	var id string
	err := s.DB.QueryRowContext(ctx, query, teamID, lo, hi, t.UTC().Format(time.RFC3339)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAsset(row rowScanner) (*Asset, error) {
	var (
		a                  Asset
		videoType, rating  string
		status             string
		tags, meta         string
		recordedAt         sql.NullString
		procStart, procEnd sql.NullString
	)
	err := row.Scan(
		&a.ID, &a.SourcePath, &a.OriginalFilename, &videoType, &a.TeamID, &a.GameID,
		&a.TrainingSessionID, &a.DurationSeconds, &a.Width, &a.Height, &a.FrameRate,
		&a.Codec, &a.Bitrate, &a.FileSize, &a.HasAudio, &rating, &tags,
		&a.PrimaryThumbnailPath, &a.ProcessedPath, &meta, &recordedAt, &status,
		&procStart, &procEnd, &a.ProcessingError,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	a.VideoType = VideoType(videoType)
	a.QualityRating = QualityRating(rating)
	a.Status = ProcessingStatus(status)
	if err := json.Unmarshal([]byte(tags), &a.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	if err := json.Unmarshal([]byte(meta), &a.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	a.RecordedAt = parseTimePtr(recordedAt)
	a.ProcessingStart = parseTimePtr(procStart)
	a.ProcessingEnd = parseTimePtr(procEnd)
	return &a, nil
}

func timePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}
