package analyze

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hooplab/courtreel/internal/media"
	"github.com/hooplab/courtreel/internal/probe"
)

func fullHDReport() *probe.Report {
	fr := 30.0
	return &probe.Report{
		Video: &probe.VideoInfo{
			Codec:     "h264",
			Profile:   "high",
			Width:     1920,
			Height:    1080,
			FrameRate: &fr,
			BitRate:   6_000_000,
		},
		Audio: []probe.AudioInfo{
			{Codec: "aac", SampleRate: 48000, Channels: 2, BitRate: 192_000},
		},
		Container: probe.ContainerInfo{
			FormatName:      "mov,mp4,m4a,3gp,3g2,mj2",
			DurationSeconds: 5400,
			BitRate:         6_200_000,
			ProbeScore:      100,
		},
	}
}

func TestQualityNilReport(t *testing.T) {
	r := Quality(nil)
	assert.Equal(t, "unknown", r.Rating)
	assert.Nil(t, r.Overall)
	assert.Nil(t, r.VideoScore)
}

func TestQualityFullHDSource(t *testing.T) {
	r := Quality(fullHDReport())

	require.NotNil(t, r.VideoScore)
	// 50 base +25 width +15 bitrate +10 modern codec
	assert.Equal(t, 100, *r.VideoScore)
	require.NotNil(t, r.AudioScore)
	// 50 base +25 sample rate +15 bitrate +10 stereo
	assert.Equal(t, 100, *r.AudioScore)
	require.NotNil(t, r.EncodingScore)
	assert.Equal(t, 85, *r.EncodingScore)
	require.NotNil(t, r.StructuralScore)
	assert.Equal(t, 90, *r.StructuralScore)
	require.NotNil(t, r.Overall)
	// mean(100,100,85,90) = 93.75 -> 94
	assert.Equal(t, 94, *r.Overall)
	assert.Equal(t, "excellent", r.Rating)
}

func TestQualityAxesClampToRange(t *testing.T) {
	rep := fullHDReport()
	rep.Video.Width = 320
	rep.Video.BitRate = 100_000
	rep.Video.Codec = "mpeg4"
	r := Quality(rep)

	require.NotNil(t, r.VideoScore)
	// 50 -10 width -5 bitrate -5 legacy codec
	assert.Equal(t, 30, *r.VideoScore)

	for _, s := range []*int{r.VideoScore, r.AudioScore, r.EncodingScore, r.StructuralScore} {
		if s == nil {
			continue
		}
		assert.GreaterOrEqual(t, *s, 0)
		assert.LessOrEqual(t, *s, 100)
	}
}

func TestQualityNoAudioScoresZero(t *testing.T) {
	rep := fullHDReport()
	rep.Audio = nil
	r := Quality(rep)
	require.NotNil(t, r.AudioScore)
	assert.Equal(t, 0, *r.AudioScore)
}

func TestQualityLowProbeConfidencePenalty(t *testing.T) {
	rep := fullHDReport()
	rep.Container.ProbeScore = 40
	r := Quality(rep)
	require.NotNil(t, r.StructuralScore)
	// 80 base +10 mp4 -20 confidence
	assert.Equal(t, 70, *r.StructuralScore)
}

func TestQualityAviPenalty(t *testing.T) {
	rep := fullHDReport()
	rep.Container.FormatName = "avi"
	r := Quality(rep)
	require.NotNil(t, r.StructuralScore)
	assert.Equal(t, 75, *r.StructuralScore)
}

func TestRatingBoundariesInclusive(t *testing.T) {
	cases := []struct {
		score int
		want  string
	}{
		{100, "excellent"},
		{80, "excellent"},
		{79, "high"},
		{65, "high"},
		{64, "medium"},
		{45, "medium"},
		{44, "low"},
		{0, "low"},
	}
	for _, c := range cases {
		s := c.score
		assert.Equal(t, c.want, string(media.RatingForScore(&s)), "score %d", c.score)
	}
	assert.Equal(t, "unknown", string(media.RatingForScore(nil)))
}
