// Package stage defines the pipeline's stage identities, their retry
// policies, the shared error taxonomy, and the degraded-result type used
// by stages that mix fatal and best-effort sub-steps.
package stage

import "time"

// Stage names double as queue handler keys and metric labels.
const (
	ExtractMetadata   = "extract_metadata"
	GenerateThumbs    = "generate_thumbnails"
	OptimizeQuality   = "optimize_quality"
	OrchestratePipeln = "orchestrate_pipeline"
)

// Queue names group stages onto dedicated worker pools.
const (
	QueueMetadata     = "metadata"
	QueueThumbnails   = "thumbnails"
	QueueOptimization = "optimization"
	QueuePriority     = "priority"
)

// Policy is the per-stage retry/backoff/timeout budget. Backoff is indexed
// by the attempt that just failed (1-based); re-runs past the end of the
// slice reuse the last entry.
type Policy struct {
	Queue   string
	Tries   int
	Backoff []time.Duration
	Timeout time.Duration
}

// Policies holds the fixed budget for each stage.
var Policies = map[string]Policy{
	ExtractMetadata: {
		Queue:   QueueMetadata,
		Tries:   3,
		Backoff: []time.Duration{30 * time.Second, 60 * time.Second, 120 * time.Second},
		Timeout: 600 * time.Second,
	},
	GenerateThumbs: {
		Queue:   QueueThumbnails,
		Tries:   2,
		Backoff: []time.Duration{30 * time.Second, 120 * time.Second},
		Timeout: 1800 * time.Second,
	},
	OptimizeQuality: {
		Queue:   QueueOptimization,
		Tries:   2,
		Backoff: []time.Duration{300 * time.Second, 1800 * time.Second},
		Timeout: 7200 * time.Second,
	},
	OrchestratePipeln: {
		Queue:   QueuePriority,
		Tries:   3,
		Backoff: []time.Duration{60 * time.Second, 300 * time.Second, 900 * time.Second},
		Timeout: 900 * time.Second,
	},
}

// UniqueKey yields the one-in-flight-run-per-asset-per-stage key.
func UniqueKey(stageName, assetID string) string {
	return stageName + ":" + assetID
}
