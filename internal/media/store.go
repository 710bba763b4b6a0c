package media

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("asset not found")

// Store is the system-of-record for media assets and the club schedule
// used by auto-association.
//
// Design intent:
//   - Stages never share memory; all coordination goes through the store.
//   - Update takes a mutation func so partial-field writes stay in one place.
//   - Concurrent stages write disjoint metadata sub-keys; last write wins on
//     scalar fields. The queue's uniqueness key is what prevents two runs of
//     the same stage racing on the same sub-key.
type Store interface {
	// Put inserts or replaces an asset record.
	Put(ctx context.Context, a *Asset) error
	// Get returns the latest asset state. The orchestrator's poll loop calls
	// this repeatedly to observe extractor side effects.
	Get(ctx context.Context, id string) (*Asset, error)
	// Update applies fn to the current record and persists the result
	// atomically with respect to other Update calls.
	Update(ctx context.Context, id string, fn func(*Asset) error) (*Asset, error)

	// FindGameNear returns the ID of the game for teamID scheduled closest
	// to t within the window.
	FindGameNear(ctx context.Context, teamID string, t time.Time, window time.Duration) (string, bool, error)
	// FindTrainingSessionNear is the training-session counterpart.
	FindTrainingSessionNear(ctx context.Context, teamID string, t time.Time, window time.Duration) (string, bool, error)

	Close() error
}
