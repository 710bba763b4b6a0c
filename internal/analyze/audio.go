package analyze

import (
	"github.com/hooplab/courtreel/internal/media"
	"github.com/hooplab/courtreel/internal/probe"
)

// AudioReport is the audio_analysis sub-report. The crowd/whistle/
// commentary booleans are heuristic placeholders conditioned on the video
// type, not ML output.
type AudioReport struct {
	HasAudio         bool   `json:"has_audio"`
	Channels         int    `json:"channels"`
	SampleRate       int    `json:"sample_rate"`
	BitRate          int64  `json:"bit_rate"`
	QualityTier      string `json:"quality_tier"`
	LikelyCrowdNoise bool   `json:"likely_crowd_noise"`
	LikelyWhistle    bool   `json:"likely_whistle"`
	LikelyCommentary bool   `json:"likely_commentary"`
}

// Audio derives the audio sub-report from the probe's audio streams and
// the asset's declared video type.
func Audio(streams []probe.AudioInfo, videoType media.VideoType) AudioReport {
	out := AudioReport{}
	if len(streams) == 0 {
		out.QualityTier = "unknown"
		return out
	}

	a := streams[0]
	out.HasAudio = true
	out.Channels = a.Channels
	out.SampleRate = a.SampleRate
	out.BitRate = a.BitRate

	// Same thresholds as the quality assessment's audio axis, collapsed
	// to a coarse tier.
	if s := scoreAudio(streams); s != nil {
		out.QualityTier = string(media.RatingForScore(s))
	}

	switch videoType {
	case media.TypeFullGame:
		out.LikelyCrowdNoise = true
		out.LikelyWhistle = true
		out.LikelyCommentary = true
	case media.TypeGameHighlights:
		out.LikelyCrowdNoise = true
		out.LikelyCommentary = true
	case media.TypeTrainingSession, media.TypeDrillDemo:
		out.LikelyWhistle = true
	}
	return out
}

// FrameReport is the frame_analysis sub-report. Produced only when both
// duration and frame rate are known and positive.
type FrameReport struct {
	TotalFrames        int64 `json:"total_frames"`
	EstimatedKeyframes int64 `json:"estimated_keyframes"`
}

// Frames estimates frame counts from duration and frame rate, assuming a
// 2-second keyframe interval. Returns nil when either input is unknown.
func Frames(durationSeconds int, frameRate *float64) *FrameReport {
	if durationSeconds <= 0 || frameRate == nil || *frameRate <= 0 {
		return nil
	}
	return &FrameReport{
		TotalFrames:        int64(float64(durationSeconds) * *frameRate),
		EstimatedKeyframes: int64(durationSeconds / 2),
	}
}
