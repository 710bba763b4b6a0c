package analyze

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hooplab/courtreel/internal/media"
	"github.com/hooplab/courtreel/internal/probe"
)

func TestAudioNoStreams(t *testing.T) {
	r := Audio(nil, media.TypeFullGame)
	assert.False(t, r.HasAudio)
	assert.Equal(t, "unknown", r.QualityTier)
	assert.False(t, r.LikelyCrowdNoise)
}

func TestAudioStreamProperties(t *testing.T) {
	streams := []probe.AudioInfo{{Codec: "aac", SampleRate: 48000, Channels: 2, BitRate: 192_000}}

	r := Audio(streams, media.TypeFullGame)
	assert.True(t, r.HasAudio)
	assert.Equal(t, 2, r.Channels)
	assert.Equal(t, 48000, r.SampleRate)
	assert.Equal(t, "excellent", r.QualityTier)
	assert.True(t, r.LikelyCrowdNoise)
	assert.True(t, r.LikelyWhistle)
	assert.True(t, r.LikelyCommentary)
}

func TestAudioTypeConditionedGuesses(t *testing.T) {
	streams := []probe.AudioInfo{{Codec: "aac", SampleRate: 44100, Channels: 2, BitRate: 128_000}}

	r := Audio(streams, media.TypeGameHighlights)
	assert.True(t, r.LikelyCrowdNoise)
	assert.True(t, r.LikelyCommentary)
	assert.False(t, r.LikelyWhistle)

	r = Audio(streams, media.TypeTrainingSession)
	assert.True(t, r.LikelyWhistle)
	assert.False(t, r.LikelyCrowdNoise)

	r = Audio(streams, media.TypeTacticalAnalysis)
	assert.False(t, r.LikelyCrowdNoise)
	assert.False(t, r.LikelyWhistle)
	assert.False(t, r.LikelyCommentary)
}

func TestFramesMath(t *testing.T) {
	fr := 29.97
	r := Frames(5400, &fr)
	require.NotNil(t, r)
	assert.Equal(t, int64(161838), r.TotalFrames)
	assert.Equal(t, int64(2700), r.EstimatedKeyframes)
}

func TestFramesUnknownInputs(t *testing.T) {
	fr := 25.0
	zero := 0.0
	assert.Nil(t, Frames(0, &fr))
	assert.Nil(t, Frames(120, nil))
	assert.Nil(t, Frames(120, &zero))
}
