// Package analyze derives the content, quality and basketball sub-reports
// from probe output and asset attributes. Everything here is pure
// computation; no I/O, no subprocesses.
package analyze

import (
	"math"
	"path/filepath"
	"strings"
)

// BasketballVocabulary is the fixed keyword list scanned against filenames
// and tags.
var BasketballVocabulary = []string{
	"basketball", "bball", "hoops",
	"game", "match", "training", "practice",
	"drill", "scrimmage", "court",
	"dunk", "layup", "shooting",
}

// Duration buckets, coarse content classification by clip length.
const (
	BucketHighlightClip   = "highlight_clip"
	BucketDrill           = "drill"
	BucketQuarter         = "quarter"
	BucketTrainingSession = "training_session"
	BucketFullGame        = "full_game"
)

// basketballTypicalBuckets are the duration buckets that suggest
// basketball footage.
var basketballTypicalBuckets = map[string]bool{
	BucketFullGame:        true,
	BucketQuarter:         true,
	BucketTrainingSession: true,
	BucketDrill:           true,
}

// FilenameAnalysis counts basketball vocabulary hits in a filename.
type FilenameAnalysis struct {
	BasketballKeywords int      `json:"basketball_keywords"`
	MatchedTerms       []string `json:"matched_terms"`
}

// ScanFilename tokenises the base filename (extension stripped) and counts
// vocabulary matches.
func ScanFilename(filename string) FilenameAnalysis {
	base := strings.ToLower(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	out := FilenameAnalysis{}
	for _, term := range BasketballVocabulary {
		if strings.Contains(base, term) {
			out.BasketballKeywords++
			out.MatchedTerms = append(out.MatchedTerms, term)
		}
	}
	return out
}

// DurationBucket classifies a duration in seconds into one of five buckets.
func DurationBucket(seconds int) string {
	switch {
	case seconds < 60:
		return BucketHighlightClip
	case seconds < 300:
		return BucketDrill
	case seconds < 900:
		return BucketQuarter
	case seconds < 3600:
		return BucketTrainingSession
	default:
		return BucketFullGame
	}
}

// Aspect ratio classes.
const (
	Aspect16x9   = "16:9"
	Aspect4x3    = "4:3"
	AspectCustom = "custom"
)

const aspectTolerance = 0.1

// AspectClass classifies a width/height ratio. 16:9 and 4:3 are detected
// within ±0.1 of the true ratio; anything else is custom.
func AspectClass(ratio float64) string {
	switch {
	case math.Abs(ratio-16.0/9.0) < aspectTolerance:
		return Aspect16x9
	case math.Abs(ratio-4.0/3.0) < aspectTolerance:
		return Aspect4x3
	default:
		return AspectCustom
	}
}

// SportsFriendly reports whether the aspect ratio suits court footage:
// 16:9 always, 4:3 never, custom only when wider than 1.5.
func SportsFriendly(ratio float64) bool {
	switch AspectClass(ratio) {
	case Aspect16x9:
		return true
	case Aspect4x3:
		return false
	default:
		return ratio > 1.5
	}
}

// ContentReport is the content_metadata sub-report.
type ContentReport struct {
	FilenameAnalysis FilenameAnalysis `json:"filename_analysis"`
	DurationBucket   string           `json:"duration_bucket"`
	AspectClass      string           `json:"aspect_class"`
	IsSportsFriendly bool             `json:"is_sports_friendly"`
}

// Content derives the content sub-report from filename, duration and
// aspect ratio.
func Content(filename string, durationSeconds int, aspectRatio float64) ContentReport {
	return ContentReport{
		FilenameAnalysis: ScanFilename(filename),
		DurationBucket:   DurationBucket(durationSeconds),
		AspectClass:      AspectClass(aspectRatio),
		IsSportsFriendly: SportsFriendly(aspectRatio),
	}
}
