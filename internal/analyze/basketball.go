package analyze

import (
	"strings"

	"github.com/hooplab/courtreel/internal/media"
)

// Signals are the inputs to basketball classification. Stages build them
// either from a fresh probe (extractor) or from the persisted asset record
// (thumbnailer, optimizer, orchestrator re-evaluation).
type Signals struct {
	VideoType         media.VideoType
	TeamID            string
	GameID            string
	TrainingSessionID string
	Filename          string
	Tags              []string
	AspectRatio       float64
	DurationSeconds   int
	Width             int
}

// SignalsFromAsset builds classification inputs from the persisted record.
func SignalsFromAsset(a *media.Asset) Signals {
	ratio := 0.0
	if a.Width > 0 && a.Height > 0 {
		ratio = float64(a.Width) / float64(a.Height)
	}
	return Signals{
		VideoType:         a.VideoType,
		TeamID:            a.TeamID,
		GameID:            a.GameID,
		TrainingSessionID: a.TrainingSessionID,
		Filename:          a.OriginalFilename,
		Tags:              a.Tags,
		AspectRatio:       ratio,
		DurationSeconds:   a.DurationSeconds,
		Width:             a.Width,
	}
}

// BasketballReport is the basketball_analysis sub-report.
type BasketballReport struct {
	Confidence          int      `json:"confidence"`
	IsBasketballContent bool     `json:"is_basketball_content"`
	Signals             []string `json:"signals"`
	Recommendations     []string `json:"recommendations"`
}

// confidenceThreshold is where is_basketball_content flips to true.
const confidenceThreshold = 50

// Basketball computes the additive confidence score (capped at 100) and
// the conditional recommendations.
func Basketball(sig Signals) BasketballReport {
	out := BasketballReport{}
	add := func(points int, name string) {
		out.Confidence += points
		out.Signals = append(out.Signals, name)
	}

	if sig.VideoType != "" {
		add(30, "video_type")
	}
	if sig.TeamID != "" {
		add(25, "team_association")
	}
	if sig.GameID != "" {
		add(25, "game_association")
	}
	if sig.TrainingSessionID != "" {
		add(20, "training_session_association")
	}
	if ScanFilename(sig.Filename).BasketballKeywords > 0 {
		add(15, "filename_keyword")
	}
	for _, tag := range sig.Tags {
		if vocabularyContains(tag) {
			add(5, "tag:"+tag)
		}
	}
	if sig.AspectRatio > 0 && SportsFriendly(sig.AspectRatio) {
		add(10, "sports_friendly_aspect")
	}
	if basketballTypicalBuckets[DurationBucket(sig.DurationSeconds)] {
		add(15, "typical_duration")
	}

	if out.Confidence > 100 {
		out.Confidence = 100
	}
	out.IsBasketballContent = out.Confidence >= confidenceThreshold

	if out.IsBasketballContent {
		out.Recommendations = append(out.Recommendations, "enable_ai_analysis", "generate_keyframes")
		if sig.Width > 0 && sig.Width < 1280 {
			out.Recommendations = append(out.Recommendations, "suggest_upscaling")
		}
		if sig.GameID == "" && sig.TrainingSessionID == "" {
			out.Recommendations = append(out.Recommendations, "suggest_association")
		}
	}
	return out
}

// IsBasketball is the shorthand the downstream stages use to re-evaluate
// classification from the persisted record.
func IsBasketball(a *media.Asset) bool {
	return Basketball(SignalsFromAsset(a)).IsBasketballContent
}

func vocabularyContains(tag string) bool {
	t := strings.ToLower(tag)
	for _, term := range BasketballVocabulary {
		if t == term {
			return true
		}
	}
	return false
}
