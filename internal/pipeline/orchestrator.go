// Package pipeline is the orchestration layer: it validates uploads,
// drives the per-asset processing state machine, dispatches the worker
// stages and performs basketball auto-tagging.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/hooplab/courtreel/internal/analyze"
	"github.com/hooplab/courtreel/internal/blob"
	"github.com/hooplab/courtreel/internal/log"
	"github.com/hooplab/courtreel/internal/media"
	"github.com/hooplab/courtreel/internal/optimize"
	"github.com/hooplab/courtreel/internal/queue"
	"github.com/hooplab/courtreel/internal/stage"
	"github.com/hooplab/courtreel/internal/thumbs"
)

const (
	// How long the orchestrator polls for extractor results before
	// proceeding degraded.
	defaultMetadataWait = 300 * time.Second
	defaultPollInterval = 10 * time.Second

	// Auto-association window around the recording time.
	associationWindow = 2 * time.Hour
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "courtreel",
		Subsystem: "pipeline",
		Name:      "runs_total",
		Help:      "Orchestrated pipeline runs by outcome.",
	}, []string{"outcome"})

	metadataWaitTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "courtreel",
		Subsystem: "pipeline",
		Name:      "metadata_wait_timeouts_total",
		Help:      "Metadata polls that hit the wait bound and proceeded degraded.",
	})
)

// Request is the orchestrator's job payload, normally enqueued right
// after upload.
type Request struct {
	AssetID string `json:"asset_id"`
	RunID   string `json:"run_id,omitempty"`
	// BasketballKeyframes asks the thumbnailer for type-specific capture
	// points on top of the standard set.
	BasketballKeyframes bool      `json:"basketball_keyframes,omitempty"`
	CustomTimestamps    []float64 `json:"custom_timestamps,omitempty"`
	MultiTier           bool      `json:"multi_tier,omitempty"`
	Streaming           bool      `json:"streaming,omitempty"`
}

// ExtractRequest is the extractor stage's job payload.
type ExtractRequest struct {
	AssetID string `json:"asset_id"`
}

// Orchestrator validates an uploaded asset and drives it through the
// processing stages.
type Orchestrator struct {
	Store media.Store
	Blobs blob.Store
	Queue *queue.Queue

	// MetadataWait and PollInterval bound the extractor wait loop.
	MetadataWait time.Duration
	PollInterval time.Duration
}

func NewOrchestrator(store media.Store, blobs blob.Store, q *queue.Queue) *Orchestrator {
	return &Orchestrator{
		Store:        store,
		Blobs:        blobs,
		Queue:        q,
		MetadataWait: defaultMetadataWait,
		PollInterval: defaultPollInterval,
	}
}

// Handle runs one pipeline pass for an asset: validate, dispatch the
// extractor and wait for its results, fan out thumbnails and
// optimization, auto-tag, and mark the record completed.
func (o *Orchestrator) Handle(ctx context.Context, req Request) error {
	logger := log.WithComponentFromContext(ctx, "pipeline")

	asset, err := o.Store.Get(ctx, req.AssetID)
	if errors.Is(err, media.ErrNotFound) {
		runsTotal.WithLabelValues("invalid").Inc()
		return stage.Validationf("asset %s not found", req.AssetID)
	}
	if err != nil {
		return err
	}

	if err := o.validate(ctx, asset); err != nil {
		runsTotal.WithLabelValues("invalid").Inc()
		return err
	}

	now := time.Now().UTC()
	if _, err := o.Store.Update(ctx, req.AssetID, func(a *media.Asset) error {
		a.Status = media.StatusProcessing
		a.ProcessingStart = &now
		a.ProcessingEnd = nil
		a.ProcessingError = ""
		return nil
	}); err != nil {
		return err
	}

	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	if _, err := o.Queue.Enqueue(ctx, stage.ExtractMetadata,
		ExtractRequest{AssetID: req.AssetID},
		queue.Options{UniqueKey: stage.UniqueKey(stage.ExtractMetadata, req.AssetID)},
	); err != nil && !errors.Is(err, queue.ErrDuplicate) {
		return err
	}

	asset, waited := o.awaitMetadata(ctx, req.AssetID)
	if !waited {
		metadataWaitTimeouts.Inc()
		logger.Warn().
			Str("asset_id", req.AssetID).
			Dur("wait", o.MetadataWait).
			Msg("metadata wait bound hit; continuing with partial metadata")
	}
	if asset == nil {
		// Store unreachable during the poll; treat like any transient error.
		return fmt.Errorf("pipeline: asset %s unreadable after metadata wait", req.AssetID)
	}

	o.dispatchStages(ctx, logger, asset, req, runID)

	if err := o.autoTag(ctx, asset); err != nil {
		runsTotal.WithLabelValues("tagging_error").Inc()
		return err
	}

	done := time.Now().UTC()
	if _, err := o.Store.Update(ctx, req.AssetID, func(a *media.Asset) error {
		a.Status = media.StatusCompleted
		a.ProcessingEnd = &done
		return nil
	}); err != nil {
		return err
	}

	runsTotal.WithLabelValues("completed").Inc()
	logger.Info().
		Str("asset_id", req.AssetID).
		Str("run_id", runID).
		Bool("metadata_waited", waited).
		Msg("pipeline run completed")
	return nil
}

// validate checks the source blob before any work is dispatched. The
// sniffed media type must be a video type; an extension that promises
// video over non-video bytes is rejected rather than silently accepted.
func (o *Orchestrator) validate(ctx context.Context, asset *media.Asset) error {
	if asset.SourcePath == "" {
		return stage.Validationf("asset %s has no source path", asset.ID)
	}
	if !o.Blobs.Exists(ctx, asset.SourcePath) {
		return stage.Validationf("source blob %s does not exist", asset.SourcePath)
	}
	size, err := o.Blobs.Size(ctx, asset.SourcePath)
	if err != nil {
		return err
	}
	if size == 0 {
		return stage.Validationf("source blob %s is empty", asset.SourcePath)
	}
	mt, err := o.Blobs.MimeType(ctx, asset.SourcePath)
	if err != nil {
		return err
	}
	if strings.HasPrefix(mt, "video/") {
		return nil
	}
	if mt != "application/octet-stream" {
		return stage.Validationf("source blob %s is %s, not a video type", asset.SourcePath, mt)
	}
	// Sniffing recognized nothing. Containers with a sniffable signature
	// would have shown it in their leading bytes, so such an extension
	// over unrecognizable content is a mismatch, not an unknown container.
	if ext := strings.ToLower(path.Ext(asset.SourcePath)); sniffableVideoExt[ext] {
		return stage.Validationf("source blob %s has a %s extension but its content is not a recognizable video", asset.SourcePath, ext)
	}
	return nil
}

// Container extensions whose signatures content sniffing reliably
// detects (mp4 ftyp box, webm EBML header, avi RIFF chunk).
var sniffableVideoExt = map[string]bool{
	".mp4":  true,
	".webm": true,
	".avi":  true,
}

// awaitMetadata polls the record until the extractor has filled in
// dimensions, the wait bound elapses, or the context is cancelled. The
// bool is false when the bound was hit.
func (o *Orchestrator) awaitMetadata(ctx context.Context, assetID string) (*media.Asset, bool) {
	deadline := time.Now().Add(o.MetadataWait)
	var last *media.Asset
	for {
		a, err := o.Store.Get(ctx, assetID)
		if err == nil {
			last = a
			if a.HasDimensions() {
				return a, true
			}
		}
		if time.Now().After(deadline) {
			return last, false
		}
		select {
		case <-ctx.Done():
			return last, false
		case <-time.After(o.PollInterval):
		}
	}
}

// dispatchStages fans out the thumbnailer and optimizer. Both are
// fire-and-forget; a duplicate in-flight run is not an error.
func (o *Orchestrator) dispatchStages(ctx context.Context, logger zerolog.Logger, asset *media.Asset, req Request, runID string) {
	if _, err := o.Queue.Enqueue(ctx, stage.GenerateThumbs,
		thumbs.Request{
			AssetID:             asset.ID,
			RunID:               runID,
			BasketballKeyframes: req.BasketballKeyframes,
			CustomTimestamps:    req.CustomTimestamps,
		},
		queue.Options{UniqueKey: stage.UniqueKey(stage.GenerateThumbs, asset.ID)},
	); err != nil && !errors.Is(err, queue.ErrDuplicate) {
		logger.Warn().Err(err).Str("asset_id", asset.ID).Msg("thumbnail dispatch failed")
	}

	tier := optimize.TierForAsset(asset.VideoType, asset.Width, asset.Bitrate)
	if _, err := o.Queue.Enqueue(ctx, stage.OptimizeQuality,
		optimize.Request{
			AssetID:   asset.ID,
			RunID:     runID,
			Tier:      tier,
			MultiTier: req.MultiTier,
			Streaming: req.Streaming,
		},
		queue.Options{UniqueKey: stage.UniqueKey(stage.OptimizeQuality, asset.ID)},
	); err != nil && !errors.Is(err, queue.ErrDuplicate) {
		logger.Warn().Err(err).Str("asset_id", asset.ID).Msg("optimization dispatch failed")
	}
}

// autoTag applies the basketball-specific record mutations: the keyframe
// flag, schedule auto-association and the per-type tag vocabulary.
func (o *Orchestrator) autoTag(ctx context.Context, asset *media.Asset) error {
	if !analyze.IsBasketball(asset) {
		return nil
	}

	gameID, sessionID := "", ""
	unassociated := asset.TeamID != "" && asset.GameID == "" && asset.TrainingSessionID == ""
	if unassociated && asset.RecordedAt != nil {
		if id, ok, err := o.Store.FindGameNear(ctx, asset.TeamID, *asset.RecordedAt, associationWindow); err != nil {
			return err
		} else if ok {
			gameID = id
		}
		if gameID == "" {
			if id, ok, err := o.Store.FindTrainingSessionNear(ctx, asset.TeamID, *asset.RecordedAt, associationWindow); err != nil {
				return err
			} else if ok {
				sessionID = id
			}
		}
	}

	_, err := o.Store.Update(ctx, asset.ID, func(a *media.Asset) error {
		if a.Metadata == nil {
			a.Metadata = make(map[string]any)
		}
		a.Metadata["keyframes_needed"] = true
		if gameID != "" && a.GameID == "" {
			a.GameID = gameID
		}
		if sessionID != "" && a.TrainingSessionID == "" {
			a.TrainingSessionID = sessionID
		}
		a.MergeTags(TagsForType(a.VideoType))
		return nil
	})
	return err
}
