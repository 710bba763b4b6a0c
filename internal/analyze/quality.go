package analyze

import (
	"math"
	"strings"

	"github.com/hooplab/courtreel/internal/probe"
)

// QualityReport is the quality_assessment sub-report. Axis scores are nil
// when the probe produced no data for that axis; Overall is the rounded
// mean of the non-nil axes.
type QualityReport struct {
	VideoScore      *int   `json:"video_score"`
	AudioScore      *int   `json:"audio_score"`
	EncodingScore   *int   `json:"encoding_score"`
	StructuralScore *int   `json:"structural_score"`
	Overall         *int   `json:"overall_score"`
	Rating          string `json:"rating"`
}

var modernCodecs = map[string]bool{"h264": true, "hevc": true, "vp9": true}
var legacyCodecs = map[string]bool{"mpeg4": true, "xvid": true}

// Quality scores the four independent axes and aggregates them. A nil
// report yields rating "unknown" with all axes nil.
func Quality(r *probe.Report) QualityReport {
	if r == nil {
		return QualityReport{Rating: "unknown"}
	}

	out := QualityReport{
		VideoScore:      scoreVideo(r.Video),
		AudioScore:      scoreAudio(r.Audio),
		EncodingScore:   scoreEncoding(r.Video),
		StructuralScore: scoreStructural(&r.Container),
	}

	sum, n := 0, 0
	for _, s := range []*int{out.VideoScore, out.AudioScore, out.EncodingScore, out.StructuralScore} {
		if s != nil {
			sum += *s
			n++
		}
	}
	if n > 0 {
		overall := int(math.Round(float64(sum) / float64(n)))
		out.Overall = &overall
	}

	switch {
	case out.Overall == nil:
		out.Rating = "unknown"
	case *out.Overall >= 80:
		out.Rating = "excellent"
	case *out.Overall >= 65:
		out.Rating = "high"
	case *out.Overall >= 45:
		out.Rating = "medium"
	default:
		out.Rating = "low"
	}
	return out
}

func scoreVideo(v *probe.VideoInfo) *int {
	if v == nil {
		return nil
	}
	score := 50

	switch {
	case v.Width >= 1920:
		score += 25
	case v.Width >= 1280:
		score += 15
	case v.Width >= 640:
		score += 5
	default:
		score -= 10
	}

	switch {
	case v.BitRate >= 5_000_000:
		score += 15
	case v.BitRate >= 2_000_000:
		score += 10
	case v.BitRate >= 500_000:
		score += 5
	default:
		score -= 5
	}

	switch {
	case modernCodecs[v.Codec]:
		score += 10
	case legacyCodecs[v.Codec]:
		score -= 5
	}

	return clamp(score)
}

func scoreAudio(streams []probe.AudioInfo) *int {
	if len(streams) == 0 {
		zero := 0
		return &zero
	}
	a := streams[0]
	score := 50

	switch {
	case a.SampleRate >= 48000:
		score += 25
	case a.SampleRate >= 44100:
		score += 20
	case a.SampleRate >= 22050:
		score += 10
	default:
		score -= 10
	}

	switch {
	case a.BitRate >= 192_000:
		score += 15
	case a.BitRate >= 128_000:
		score += 10
	case a.BitRate >= 64_000:
		score += 5
	default:
		score -= 5
	}

	if a.Channels >= 2 {
		score += 10
	} else {
		score -= 5
	}

	return clamp(score)
}

func scoreEncoding(v *probe.VideoInfo) *int {
	if v == nil {
		return nil
	}
	score := 70
	switch strings.ToLower(v.Profile) {
	case "high", "main":
		score += 15
	case "baseline", "constrained baseline":
		score += 5
	}
	return clamp(score)
}

func scoreStructural(c *probe.ContainerInfo) *int {
	if c == nil || c.FormatName == "" {
		return nil
	}
	score := 80
	if strings.Contains(c.FormatName, "mp4") {
		score += 10
	}
	if strings.Contains(c.FormatName, "avi") {
		score -= 5
	}
	if c.ProbeScore < 50 {
		score -= 20
	}
	return clamp(score)
}

func clamp(score int) *int {
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return &score
}
