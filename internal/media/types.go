// Package media defines the asset model shared by every pipeline stage.
package media

import (
	"time"
)

// VideoType classifies what kind of basketball footage an asset holds.
// The empty string means "no hint" (generic upload).
type VideoType string

const (
	TypeFullGame         VideoType = "full_game"
	TypeGameHighlights   VideoType = "game_highlights"
	TypeTrainingSession  VideoType = "training_session"
	TypeDrillDemo        VideoType = "drill_demo"
	TypePlayerAnalysis   VideoType = "player_analysis"
	TypeTacticalAnalysis VideoType = "tactical_analysis"
)

// KnownVideoTypes lists every recognised non-empty video type.
var KnownVideoTypes = []VideoType{
	TypeFullGame,
	TypeGameHighlights,
	TypeTrainingSession,
	TypeDrillDemo,
	TypePlayerAnalysis,
	TypeTacticalAnalysis,
}

// Valid reports whether t is empty or one of the known types.
func (t VideoType) Valid() bool {
	if t == "" {
		return true
	}
	for _, k := range KnownVideoTypes {
		if t == k {
			return true
		}
	}
	return false
}

// ProcessingStatus is the asset lifecycle state. Transitions are forward
// only: pending -> processing -> {completed, failed}. A re-enqueue is a
// fresh pipeline run and resets to pending.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

// QualityRating is the coarse quality classification derived from the
// overall quality score.
type QualityRating string

const (
	RatingExcellent QualityRating = "excellent"
	RatingHigh      QualityRating = "high"
	RatingMedium    QualityRating = "medium"
	RatingLow       QualityRating = "low"
	RatingUnknown   QualityRating = "unknown"
)

// RatingForScore maps an overall quality score to a rating. Boundaries are
// inclusive at 80/65/45; a nil score means the probe produced nothing usable.
func RatingForScore(score *int) QualityRating {
	if score == nil {
		return RatingUnknown
	}
	switch {
	case *score >= 80:
		return RatingExcellent
	case *score >= 65:
		return RatingHigh
	case *score >= 45:
		return RatingMedium
	default:
		return RatingLow
	}
}

// Metadata document keys. Each stage owns its sub-key and replaces it
// wholesale on re-run.
const (
	DocTechnical       = "technical_metadata"
	DocContent         = "content_metadata"
	DocQuality         = "quality_assessment"
	DocBasketball      = "basketball_analysis"
	DocAudio           = "audio_analysis"
	DocFrames          = "frame_analysis"
	DocOptimized       = "optimized_versions"
	DocThumbnails      = "all_thumbnails"
	DocThumbnailSprite = "thumbnail_sprite"
)

// Asset is the media record driven through the pipeline. Stages mutate it
// exclusively through the store; there is no in-memory sharing between
// stages.
type Asset struct {
	ID               string
	SourcePath       string
	OriginalFilename string
	VideoType        VideoType

	TeamID            string
	GameID            string
	TrainingSessionID string

	DurationSeconds int
	Width           int
	Height          int
	FrameRate       float64
	Codec           string
	Bitrate         int64
	FileSize        int64
	HasAudio        bool

	QualityRating        QualityRating
	Tags                 []string
	PrimaryThumbnailPath string
	ProcessedPath        string
	Metadata             map[string]any

	RecordedAt *time.Time

	Status          ProcessingStatus
	ProcessingStart *time.Time
	ProcessingEnd   *time.Time
	ProcessingError string
}

// HasDimensions reports whether the extractor has populated the technical
// fields. Duration, width and height are set together or not at all.
func (a *Asset) HasDimensions() bool {
	return a.DurationSeconds > 0 && a.Width > 0 && a.Height > 0
}

// HasTag reports whether the asset carries the given tag.
func (a *Asset) HasTag(tag string) bool {
	for _, t := range a.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// MergeTags adds any missing tags, preserving order of existing ones.
func (a *Asset) MergeTags(tags []string) {
	for _, t := range tags {
		if !a.HasTag(t) {
			a.Tags = append(a.Tags, t)
		}
	}
}
