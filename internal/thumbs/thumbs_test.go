package thumbs

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hooplab/courtreel/internal/blob"
	"github.com/hooplab/courtreel/internal/execx"
	"github.com/hooplab/courtreel/internal/media"
	"github.com/hooplab/courtreel/internal/stage"
)

func TestStandardMarks(t *testing.T) {
	marks := StandardMarks(1000)
	require.Len(t, marks, 5)
	assert.Equal(t, Mark{Label: "intro", Seconds: 20, Type: "standard"}, marks[0])
	assert.Equal(t, 250.0, marks[1].Seconds)
	assert.Equal(t, 500.0, marks[2].Seconds)
	assert.Equal(t, 750.0, marks[3].Seconds)
	assert.Equal(t, 950.0, marks[4].Seconds, "ending uses 95 percent when shorter than tail-5s")
}

func TestStandardMarksShortVideo(t *testing.T) {
	marks := StandardMarks(30)
	assert.Equal(t, 1.0, marks[0].Seconds, "intro floored at one second")
	assert.Equal(t, 25.0, marks[4].Seconds, "ending backs off five seconds from the tail")

	marks = StandardMarks(3)
	assert.Equal(t, 0.0, marks[4].Seconds, "ending never negative")
}

func TestTypeMarksFullGame(t *testing.T) {
	marks := TypeMarks(media.TypeFullGame, 4800)
	require.Len(t, marks, 8)

	want := map[string]float64{
		"q1_start": 96, "q1_mid": 600,
		"q2_start": 1200, "q2_mid": 1800,
		"q3_start": 2400, "q3_mid": 3000,
		"q4_start": 3600, "q4_mid": 4200,
	}
	for _, m := range marks {
		assert.Equal(t, "basketball", m.Type)
		assert.InDelta(t, want[m.Label], m.Seconds, 0.001, m.Label)
	}
}

func TestTypeMarksGameHighlights(t *testing.T) {
	marks := TypeMarks(media.TypeGameHighlights, 700)
	require.Len(t, marks, 6)
	assert.Equal(t, "segment_1", marks[0].Label)
	assert.InDelta(t, 100, marks[0].Seconds, 0.001)
	assert.Equal(t, "segment_6", marks[5].Label)
	assert.InDelta(t, 600, marks[5].Seconds, 0.001)
}

func TestTypeMarksPhaseTables(t *testing.T) {
	labels := func(marks []Mark) []string {
		out := make([]string, len(marks))
		for i, m := range marks {
			out[i] = m.Label
		}
		return out
	}

	assert.Equal(t,
		[]string{"warmup", "drills_start", "drills_mid", "scrimmage", "cooldown"},
		labels(TypeMarks(media.TypeTrainingSession, 3600)))
	assert.Equal(t,
		[]string{"setup", "demonstration", "execution", "repetition"},
		labels(TypeMarks(media.TypeDrillDemo, 120)))
	assert.Equal(t,
		[]string{"skill_1", "skill_2", "skill_3", "skill_4", "skill_5"},
		labels(TypeMarks(media.TypePlayerAnalysis, 600)))
	assert.Equal(t,
		[]string{"action_1", "action_2", "action_3", "action_4"},
		labels(TypeMarks(media.TypeTacticalAnalysis, 600)),
		"types without a phase table fall back to generic action marks")
}

func TestCustomMarksClamp(t *testing.T) {
	marks := CustomMarks([]float64{-3, 10.5, 9999}, 600)
	require.Len(t, marks, 3)
	assert.Equal(t, Mark{Label: "custom_1", Seconds: 0, Type: "custom"}, marks[0])
	assert.Equal(t, Mark{Label: "custom_2", Seconds: 10.5, Type: "custom"}, marks[1])
	assert.Equal(t, Mark{Label: "custom_3", Seconds: 600, Type: "custom"}, marks[2])
}

func TestFormatSeconds(t *testing.T) {
	assert.Equal(t, "20", formatSeconds(20))
	assert.Equal(t, "28.5", formatSeconds(28.5))
	assert.Equal(t, "1.25", formatSeconds(1.25))
}

type env struct {
	store *media.MemoryStore
	blobs *blob.LocalStore
	gen   *Generator
}

// failMatching fails every ffmpeg invocation whose output path contains one
// of the fragments; everything else succeeds and produces its output file.
func newEnv(t *testing.T, failFragments ...string) *env {
	t.Helper()
	blobs, err := blob.NewLocalStore(filepath.Join(t.TempDir(), "blobs"))
	require.NoError(t, err)
	store := media.NewMemoryStore()

	runner := &execx.FakeRunner{
		Stubs: []execx.Stub{
			{
				Match: func(c execx.Command) bool {
					out := c.Args[len(c.Args)-1]
					for _, frag := range failFragments {
						if strings.Contains(out, frag) {
							return true
						}
					}
					return false
				},
				Res: execx.Result{ExitOk: false, ExitCode: 1},
			},
			{
				Match:       func(execx.Command) bool { return true },
				Res:         execx.Result{ExitOk: true},
				TouchOutput: -1,
			},
		},
	}
	return &env{store: store, blobs: blobs, gen: New(store, blobs, runner)}
}

func (e *env) putAsset(t *testing.T, duration int, vt media.VideoType) {
	t.Helper()
	ctx := context.Background()
	a := &media.Asset{
		ID:               "a1",
		SourcePath:       "uploads/a1.mp4",
		OriginalFilename: "basketball_game.mp4",
		VideoType:        vt,
		TeamID:           "team-1",
		DurationSeconds:  duration,
		Status:           media.StatusProcessing,
	}
	require.NoError(t, e.store.Put(ctx, a))
	require.NoError(t, e.blobs.Write(ctx, a.SourcePath, strings.NewReader("video")))
}

func TestHandleGeneratesStandardSet(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.putAsset(t, 600, media.TypeFullGame)

	require.NoError(t, e.gen.Handle(ctx, Request{AssetID: "a1", RunID: "run-12345678"}))

	a, err := e.store.Get(ctx, "a1")
	require.NoError(t, err)

	entries, ok := a.Metadata[media.DocThumbnails].(map[string]Entry)
	require.True(t, ok)
	require.Len(t, entries, 5)

	half := entries["half"]
	assert.Equal(t, 300.0, half.Timestamp)
	assert.Equal(t, "thumbnails/a1/run-1234/half_medium.jpg", half.Path)
	assert.Len(t, half.Sizes, 3)
	assert.Equal(t, "thumbnails/a1/run-1234/half_small.jpg", half.Sizes["small"])
	assert.Equal(t, "thumbnails/a1/run-1234/half_large.jpg", half.Sizes["large"])

	assert.Equal(t, half.Path, a.PrimaryThumbnailPath)
	assert.Equal(t, "thumbnails/a1/run-1234/sprite.jpg", a.Metadata[media.DocThumbnailSprite])
	assert.True(t, e.blobs.Exists(ctx, half.Path))
}

func TestHandleBasketballKeyframes(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.putAsset(t, 4800, media.TypeFullGame)

	require.NoError(t, e.gen.Handle(ctx, Request{AssetID: "a1", RunID: "r1", BasketballKeyframes: true}))

	a, err := e.store.Get(ctx, "a1")
	require.NoError(t, err)
	entries := a.Metadata[media.DocThumbnails].(map[string]Entry)
	require.Len(t, entries, 13, "five standard plus eight quarter marks")
	assert.Equal(t, "basketball", entries["q2_start"].Type)
}

func TestHandleCustomTimestamps(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.putAsset(t, 600, media.TypeFullGame)

	req := Request{AssetID: "a1", RunID: "r1", CustomTimestamps: []float64{42.5}}
	require.NoError(t, e.gen.Handle(ctx, req))

	a, err := e.store.Get(ctx, "a1")
	require.NoError(t, err)
	entries := a.Metadata[media.DocThumbnails].(map[string]Entry)
	require.Contains(t, entries, "custom_1")
	assert.Equal(t, 42.5, entries["custom_1"].Timestamp)
	assert.Equal(t, "custom", entries["custom_1"].Type)
}

func TestHandleMediumFailureDropsLabel(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, "half_medium")
	e.putAsset(t, 600, media.TypeFullGame)

	require.NoError(t, e.gen.Handle(ctx, Request{AssetID: "a1", RunID: "r1"}))

	a, err := e.store.Get(ctx, "a1")
	require.NoError(t, err)
	entries := a.Metadata[media.DocThumbnails].(map[string]Entry)
	assert.NotContains(t, entries, "half")
	require.Len(t, entries, 4)
	assert.Equal(t, entries["intro"].Path, a.PrimaryThumbnailPath,
		"primary falls back to the first produced label")
}

func TestHandlePrimaryPrefersQ2StartWhenHalfMissing(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, "half_medium")
	e.putAsset(t, 4800, media.TypeFullGame)

	require.NoError(t, e.gen.Handle(ctx, Request{AssetID: "a1", RunID: "r1", BasketballKeyframes: true}))

	a, err := e.store.Get(ctx, "a1")
	require.NoError(t, err)
	entries := a.Metadata[media.DocThumbnails].(map[string]Entry)
	assert.Equal(t, entries["q2_start"].Path, a.PrimaryThumbnailPath)
}

func TestHandleSpriteSkippedBelowTwoThumbnails(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, "quarter_medium", "half_medium", "three_quarter_medium", "ending_medium")
	e.putAsset(t, 600, media.TypeFullGame)

	require.NoError(t, e.gen.Handle(ctx, Request{AssetID: "a1", RunID: "r1"}))

	a, err := e.store.Get(ctx, "a1")
	require.NoError(t, err)
	assert.NotContains(t, a.Metadata, media.DocThumbnailSprite)
}

func TestHandleValidation(t *testing.T) {
	ctx := context.Background()

	e := newEnv(t)
	err := e.gen.Handle(ctx, Request{AssetID: "ghost"})
	require.Error(t, err)
	assert.False(t, stage.IsRetryable(err))

	e = newEnv(t)
	e.putAsset(t, 0, media.TypeFullGame)
	err = e.gen.Handle(ctx, Request{AssetID: "a1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duration")
	assert.False(t, stage.IsRetryable(err))
}

func TestCleanupRemovesArtifacts(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.putAsset(t, 600, media.TypeFullGame)

	require.NoError(t, e.gen.Handle(ctx, Request{AssetID: "a1", RunID: "r1"}))
	a, err := e.store.Get(ctx, "a1")
	require.NoError(t, err)
	require.True(t, e.blobs.Exists(ctx, a.PrimaryThumbnailPath))

	require.NoError(t, e.gen.Cleanup(ctx, "a1"))
	assert.False(t, e.blobs.Exists(ctx, a.PrimaryThumbnailPath))
}
