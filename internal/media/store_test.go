package media

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeUnderTest runs the same contract against both implementations.
type storeFixture struct {
	name  string
	store Store
	// addGame and addSession register schedule entries.
	addGame    func(id, teamID string, at time.Time)
	addSession func(id, teamID string, at time.Time)
}

func fixtures(t *testing.T) []storeFixture {
	t.Helper()
	ctx := context.Background()

	mem := NewMemoryStore()
	t.Cleanup(func() { _ = mem.Close() })

	sq, err := NewSqliteStore(filepath.Join(t.TempDir(), "media.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })

	return []storeFixture{
		{
			name:       "memory",
			store:      mem,
			addGame:    mem.AddGame,
			addSession: mem.AddTrainingSession,
		},
		{
			name:  "sqlite",
			store: sq,
			addGame: func(id, teamID string, at time.Time) {
				require.NoError(t, sq.AddGame(ctx, id, teamID, at))
			},
			addSession: func(id, teamID string, at time.Time) {
				require.NoError(t, sq.AddTrainingSession(ctx, id, teamID, at))
			},
		},
	}
}

func sampleAsset(id string) *Asset {
	recorded := time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)
	return &Asset{
		ID:               id,
		SourcePath:       "uploads/" + id + ".mp4",
		OriginalFilename: "basketball_game.mp4",
		VideoType:        TypeFullGame,
		TeamID:           "team-1",
		Tags:             []string{"basketball"},
		RecordedAt:       &recorded,
		Status:           StatusPending,
		Metadata:         map[string]any{},
	}
}

func TestStorePutGetRoundtrip(t *testing.T) {
	ctx := context.Background()
	for _, fx := range fixtures(t) {
		t.Run(fx.name, func(t *testing.T) {
			require.NoError(t, fx.store.Put(ctx, sampleAsset("a1")))

			got, err := fx.store.Get(ctx, "a1")
			require.NoError(t, err)
			assert.Equal(t, "uploads/a1.mp4", got.SourcePath)
			assert.Equal(t, TypeFullGame, got.VideoType)
			assert.Equal(t, []string{"basketball"}, got.Tags)
			require.NotNil(t, got.RecordedAt)
			assert.Equal(t, 2026, got.RecordedAt.Year())
		})
	}
}

func TestStoreGetMissing(t *testing.T) {
	ctx := context.Background()
	for _, fx := range fixtures(t) {
		t.Run(fx.name, func(t *testing.T) {
			_, err := fx.store.Get(ctx, "ghost")
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = fx.store.Update(ctx, "ghost", func(*Asset) error { return nil })
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreUpdateMutatesAtomically(t *testing.T) {
	ctx := context.Background()
	for _, fx := range fixtures(t) {
		t.Run(fx.name, func(t *testing.T) {
			require.NoError(t, fx.store.Put(ctx, sampleAsset("a2")))

			updated, err := fx.store.Update(ctx, "a2", func(a *Asset) error {
				a.Status = StatusProcessing
				a.Width = 1920
				a.Height = 1080
				a.Metadata["overall_quality_score"] = 88
				a.MergeTags([]string{"game", "basketball"})
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, StatusProcessing, updated.Status)

			got, err := fx.store.Get(ctx, "a2")
			require.NoError(t, err)
			assert.Equal(t, 1920, got.Width)
			assert.Equal(t, []string{"basketball", "game"}, got.Tags)
		})
	}
}

func TestStoreUpdateErrorLeavesRecordUntouched(t *testing.T) {
	ctx := context.Background()
	for _, fx := range fixtures(t) {
		t.Run(fx.name, func(t *testing.T) {
			require.NoError(t, fx.store.Put(ctx, sampleAsset("a3")))

			_, err := fx.store.Update(ctx, "a3", func(a *Asset) error {
				a.Status = StatusFailed
				return assert.AnError
			})
			require.Error(t, err)

			got, err := fx.store.Get(ctx, "a3")
			require.NoError(t, err)
			assert.Equal(t, StatusPending, got.Status)
		})
	}
}

func TestStoreFindGameNear(t *testing.T) {
	ctx := context.Background()
	recorded := time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)
	for _, fx := range fixtures(t) {
		t.Run(fx.name, func(t *testing.T) {
			fx.addGame("g1", "team-1", recorded.Add(30*time.Minute))
			fx.addGame("g2", "team-1", recorded.Add(8*time.Hour))
			fx.addGame("g3", "team-2", recorded)

			id, ok, err := fx.store.FindGameNear(ctx, "team-1", recorded, 2*time.Hour)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "g1", id, "only the game inside the window for the right team")

			_, ok, err = fx.store.FindGameNear(ctx, "team-3", recorded, 2*time.Hour)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStoreFindTrainingSessionNear(t *testing.T) {
	ctx := context.Background()
	recorded := time.Date(2026, 3, 16, 18, 0, 0, 0, time.UTC)
	for _, fx := range fixtures(t) {
		t.Run(fx.name, func(t *testing.T) {
			fx.addSession("s-far", "team-1", recorded.Add(-3*time.Hour))
			fx.addSession("s-near", "team-1", recorded.Add(-20*time.Minute))

			id, ok, err := fx.store.FindTrainingSessionNear(ctx, "team-1", recorded, 2*time.Hour)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "s-near", id, "closest candidate inside the window wins")
		})
	}
}

func TestSqliteMetadataDocumentRoundtrip(t *testing.T) {
	ctx := context.Background()
	sq, err := NewSqliteStore(filepath.Join(t.TempDir(), "media.db"))
	require.NoError(t, err)
	defer func() { _ = sq.Close() }()

	a := sampleAsset("a9")
	a.Metadata = map[string]any{
		DocContent:              map[string]any{"duration_bucket": "full_game"},
		"is_basketball_content": true,
		"basketball_confidence": float64(95),
	}
	require.NoError(t, sq.Put(ctx, a))

	got, err := sq.Get(ctx, "a9")
	require.NoError(t, err)
	assert.Equal(t, true, got.Metadata["is_basketball_content"])
	assert.Equal(t, float64(95), got.Metadata["basketball_confidence"])
	sub, ok := got.Metadata[DocContent].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "full_game", sub["duration_bucket"])
}

func TestRatingForScoreBoundaries(t *testing.T) {
	p := func(v int) *int { return &v }
	assert.Equal(t, RatingExcellent, RatingForScore(p(80)))
	assert.Equal(t, RatingHigh, RatingForScore(p(79)))
	assert.Equal(t, RatingMedium, RatingForScore(p(45)))
	assert.Equal(t, RatingLow, RatingForScore(p(44)))
	assert.Equal(t, RatingUnknown, RatingForScore(nil))
}
