package pipeline

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/hooplab/courtreel/internal/media"
	"github.com/hooplab/courtreel/internal/queue"
	"github.com/hooplab/courtreel/internal/stage"
)

// Submit enqueues a pipeline run for an asset and returns the job ID. A
// previously failed record is reset to pending so the run starts from a
// clean lifecycle state. While a run is already in flight the enqueue
// returns queue.ErrDuplicate.
func Submit(ctx context.Context, q *queue.Queue, store media.Store, req Request) (string, error) {
	if req.AssetID == "" {
		return "", errors.New("pipeline: submit requires an asset id")
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}

	a, err := store.Get(ctx, req.AssetID)
	if err != nil {
		return "", err
	}
	if a.Status == media.StatusFailed {
		if _, err := store.Update(ctx, req.AssetID, func(a *media.Asset) error {
			a.Status = media.StatusPending
			a.ProcessingError = ""
			a.ProcessingStart = nil
			a.ProcessingEnd = nil
			return nil
		}); err != nil {
			return "", err
		}
	}

	return q.Enqueue(ctx, stage.OrchestratePipeln, req,
		queue.Options{UniqueKey: stage.UniqueKey(stage.OrchestratePipeln, req.AssetID)})
}
