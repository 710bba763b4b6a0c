package pipeline

import "github.com/hooplab/courtreel/internal/media"

// tagVocabulary is the fixed per-type tag set merged onto basketball
// assets during auto-tagging. Merging is additive and deduplicating;
// user-supplied tags are never removed.
var tagVocabulary = map[media.VideoType][]string{
	media.TypeFullGame:         {"basketball", "game", "full_game", "match"},
	media.TypeGameHighlights:   {"basketball", "game", "highlights"},
	media.TypeTrainingSession:  {"basketball", "training", "practice"},
	media.TypeDrillDemo:        {"basketball", "training", "drill", "demo"},
	media.TypePlayerAnalysis:   {"basketball", "player", "analysis"},
	media.TypeTacticalAnalysis: {"basketball", "tactics", "analysis"},
}

// TagsForType returns the vocabulary for a video type, nil for unknown
// types.
func TagsForType(vt media.VideoType) []string {
	return tagVocabulary[vt]
}
