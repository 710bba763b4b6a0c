package optimize

import "github.com/hooplab/courtreel/internal/media"

// Tier names the fixed encode presets.
type Tier string

const (
	TierMobile Tier = "mobile"
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
	TierUltra  Tier = "ultra"
)

// Preset fixes every tier-dependent encode parameter.
type Preset struct {
	Width        int
	Height       int
	VideoBitrate int64 // bits per second
	AudioBitrate int64
	FPS          int
	Profile      string
	Level        string
}

var Presets = map[Tier]Preset{
	TierMobile: {Width: 640, Height: 360, VideoBitrate: 800_000, AudioBitrate: 96_000, FPS: 30, Profile: "baseline", Level: "3.0"},
	TierLow:    {Width: 854, Height: 480, VideoBitrate: 1_200_000, AudioBitrate: 96_000, FPS: 30, Profile: "main", Level: "3.1"},
	TierMedium: {Width: 1280, Height: 720, VideoBitrate: 2_500_000, AudioBitrate: 128_000, FPS: 30, Profile: "main", Level: "4.0"},
	TierHigh:   {Width: 1920, Height: 1080, VideoBitrate: 5_000_000, AudioBitrate: 192_000, FPS: 30, Profile: "high", Level: "4.2"},
	TierUltra:  {Width: 3840, Height: 2160, VideoBitrate: 15_000_000, AudioBitrate: 256_000, FPS: 60, Profile: "high", Level: "5.1"},
}

// Valid reports whether t names a known preset.
func (t Tier) Valid() bool {
	_, ok := Presets[t]
	return ok
}

// Rating maps a tier to the coarse quality rating recorded on the asset
// after optimization.
func (t Tier) Rating() media.QualityRating {
	switch t {
	case TierUltra:
		return media.RatingExcellent
	case TierHigh:
		return media.RatingHigh
	case TierMedium:
		return media.RatingMedium
	default:
		return media.RatingLow
	}
}

// TierForAsset is the orchestrator's fixed tier decision table.
func TierForAsset(videoType media.VideoType, width int, bitrate int64) Tier {
	switch videoType {
	case media.TypeFullGame:
		if width >= 1920 {
			return TierHigh
		}
		return TierMedium
	case media.TypeDrillDemo:
		return TierMedium
	}
	if width >= 1920 && bitrate >= 5_000_000 {
		return TierHigh
	}
	if width >= 1280 {
		return TierMedium
	}
	return TierLow
}

// AdditionalTiers returns the multi-tier candidate set: every preset
// except the primary, dropping tiers the source resolution cannot fill
// (below 1920 wide drops ultra, below 1280 drops high).
func AdditionalTiers(primary Tier, sourceWidth int) []Tier {
	out := make([]Tier, 0, 4)
	for _, t := range []Tier{TierMobile, TierLow, TierMedium, TierHigh, TierUltra} {
		if t == primary {
			continue
		}
		if t == TierUltra && sourceWidth < 1920 {
			continue
		}
		if t == TierHigh && sourceWidth < 1280 {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Hints are the basketball-specific encode refinements. Court content
// gets denoise plus color lift, fast action gets wider motion search and
// sharpening, player tracking gets a light denoise and mild sharpen.
type Hints struct {
	CourtContent   bool
	FastAction     bool
	PlayerTracking bool
}

// HintsFor derives the encode hints from the basketball classification
// and video type.
func HintsFor(isBasketball bool, videoType media.VideoType) Hints {
	if !isBasketball {
		return Hints{}
	}
	return Hints{
		CourtContent:   true,
		FastAction:     videoType == media.TypeFullGame || videoType == media.TypeGameHighlights,
		PlayerTracking: videoType == media.TypePlayerAnalysis,
	}
}
