package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hooplab/courtreel/internal/extract"
	"github.com/hooplab/courtreel/internal/log"
	"github.com/hooplab/courtreel/internal/media"
	"github.com/hooplab/courtreel/internal/optimize"
	"github.com/hooplab/courtreel/internal/queue"
	"github.com/hooplab/courtreel/internal/stage"
	"github.com/hooplab/courtreel/internal/thumbs"
)

// Stages bundles the stage executors for queue registration.
type Stages struct {
	Extractor    *extract.Extractor
	Thumbs       *thumbs.Generator
	Optimizer    *optimize.Optimizer
	Orchestrator *Orchestrator
}

// Register binds every stage to its queue, retry policy and failure
// hook. Must run before workers start.
func Register(q *queue.Queue, store media.Store, s Stages) {
	q.Register(queue.Handler{
		Stage:  stage.ExtractMetadata,
		Policy: stage.Policies[stage.ExtractMetadata],
		Run: func(ctx context.Context, job *queue.Job) error {
			var req ExtractRequest
			if err := json.Unmarshal(job.Payload, &req); err != nil {
				return stage.Validationf("bad extract payload: %v", err)
			}
			return s.Extractor.Handle(log.ContextWithAssetID(ctx, req.AssetID), req.AssetID)
		},
		Failed: func(ctx context.Context, job *queue.Job, err error) {
			var req ExtractRequest
			_ = json.Unmarshal(job.Payload, &req)
			markFailed(ctx, store, req.AssetID, err)
		},
	})

	q.Register(queue.Handler{
		Stage:  stage.GenerateThumbs,
		Policy: stage.Policies[stage.GenerateThumbs],
		Run: func(ctx context.Context, job *queue.Job) error {
			var req thumbs.Request
			if err := json.Unmarshal(job.Payload, &req); err != nil {
				return stage.Validationf("bad thumbnail payload: %v", err)
			}
			return s.Thumbs.Handle(log.ContextWithAssetID(ctx, req.AssetID), req)
		},
		Failed: func(ctx context.Context, job *queue.Job, err error) {
			var req thumbs.Request
			_ = json.Unmarshal(job.Payload, &req)
			if req.AssetID == "" {
				return
			}
			logCleanup(ctx, "thumbs", s.Thumbs.Cleanup(ctx, req.AssetID))
			markFailed(ctx, store, req.AssetID, err)
		},
	})

	q.Register(queue.Handler{
		Stage:  stage.OptimizeQuality,
		Policy: stage.Policies[stage.OptimizeQuality],
		Run: func(ctx context.Context, job *queue.Job) error {
			var req optimize.Request
			if err := json.Unmarshal(job.Payload, &req); err != nil {
				return stage.Validationf("bad optimize payload: %v", err)
			}
			return s.Optimizer.Handle(log.ContextWithAssetID(ctx, req.AssetID), req)
		},
		Failed: func(ctx context.Context, job *queue.Job, err error) {
			var req optimize.Request
			_ = json.Unmarshal(job.Payload, &req)
			if req.AssetID == "" {
				return
			}
			logCleanup(ctx, "optimize", s.Optimizer.Cleanup(ctx, req.AssetID))
			markFailed(ctx, store, req.AssetID, err)
		},
	})

	q.Register(queue.Handler{
		Stage:  stage.OrchestratePipeln,
		Policy: stage.Policies[stage.OrchestratePipeln],
		Run: func(ctx context.Context, job *queue.Job) error {
			var req Request
			if err := json.Unmarshal(job.Payload, &req); err != nil {
				return stage.Validationf("bad pipeline payload: %v", err)
			}
			return s.Orchestrator.Handle(log.ContextWithAssetID(ctx, req.AssetID), req)
		},
		Failed: func(ctx context.Context, job *queue.Job, err error) {
			var req Request
			_ = json.Unmarshal(job.Payload, &req)
			if req.AssetID == "" {
				return
			}
			// Terminal failure tears down every partial artifact the
			// record may already reference.
			logCleanup(ctx, "pipeline", s.Thumbs.Cleanup(ctx, req.AssetID))
			logCleanup(ctx, "pipeline", s.Optimizer.Cleanup(ctx, req.AssetID))
			runsTotal.WithLabelValues("failed").Inc()
			failedAt := time.Now().UTC()
			if _, uerr := store.Update(ctx, req.AssetID, func(a *media.Asset) error {
				a.Status = media.StatusFailed
				a.ProcessingError = err.Error()
				a.ProcessingEnd = &failedAt
				a.PrimaryThumbnailPath = ""
				a.ProcessedPath = ""
				return nil
			}); uerr != nil {
				logger := log.WithComponent("pipeline")
				logger.Error().Err(uerr).
					Str("asset_id", req.AssetID).Msg("failed to record terminal state")
			}
		},
	})
}

// markFailed records a stage's terminal failure on the asset.
func markFailed(ctx context.Context, store media.Store, assetID string, err error) {
	if assetID == "" {
		return
	}
	failedAt := time.Now().UTC()
	if _, uerr := store.Update(ctx, assetID, func(a *media.Asset) error {
		a.Status = media.StatusFailed
		a.ProcessingError = err.Error()
		a.ProcessingEnd = &failedAt
		return nil
	}); uerr != nil {
		logger := log.WithComponent("pipeline")
		logger.Error().Err(uerr).
			Str("asset_id", assetID).Msg("failed to record terminal state")
	}
}

func logCleanup(ctx context.Context, component string, err error) {
	if err != nil {
		logger := log.WithComponent(component)
		logger.Warn().Err(err).Msg("artifact cleanup failed")
	}
}
