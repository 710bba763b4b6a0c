package thumbs

import (
	"fmt"

	"github.com/hooplab/courtreel/internal/media"
)

// Mark is one named capture point inside the video.
type Mark struct {
	Label   string
	Seconds float64
	Type    string // standard, basketball or custom
}

// StandardMarks returns the five fixed-fraction capture points every video
// gets. The intro mark is floored at 1s to skip leader black frames, and
// the ending mark backs off 5s from the tail.
func StandardMarks(duration int) []Mark {
	d := float64(duration)
	intro := d * 0.02
	if intro < 1 {
		intro = 1
	}
	ending := d * 0.95
	if tail := d - 5; tail < ending {
		ending = tail
	}
	if ending < 0 {
		ending = 0
	}
	return []Mark{
		{Label: "intro", Seconds: intro, Type: "standard"},
		{Label: "quarter", Seconds: d * 0.25, Type: "standard"},
		{Label: "half", Seconds: d * 0.50, Type: "standard"},
		{Label: "three_quarter", Seconds: d * 0.75, Type: "standard"},
		{Label: "ending", Seconds: ending, Type: "standard"},
	}
}

// fraction tables for the type-specific capture points. Game types get
// quarter-relative marks, training types get phase marks.
var typeFractions = map[media.VideoType][]struct {
	label string
	frac  float64
}{
	media.TypeFullGame: {
		{"q1_start", 0.02}, {"q1_mid", 0.125},
		{"q2_start", 0.25}, {"q2_mid", 0.375},
		{"q3_start", 0.50}, {"q3_mid", 0.625},
		{"q4_start", 0.75}, {"q4_mid", 0.875},
	},
	media.TypeTrainingSession: {
		{"warmup", 0.05}, {"drills_start", 0.20}, {"drills_mid", 0.40},
		{"scrimmage", 0.65}, {"cooldown", 0.90},
	},
	media.TypeDrillDemo: {
		{"setup", 0.05}, {"demonstration", 0.30},
		{"execution", 0.55}, {"repetition", 0.80},
	},
	media.TypePlayerAnalysis: {
		{"skill_1", 0.10}, {"skill_2", 0.30}, {"skill_3", 0.50},
		{"skill_4", 0.70}, {"skill_5", 0.90},
	},
}

// TypeMarks returns the basketball-specific capture points for a video
// type. game_highlights gets six evenly spaced segment marks; types with
// no table of their own get four generic action marks.
func TypeMarks(vt media.VideoType, duration int) []Mark {
	d := float64(duration)
	if vt == media.TypeGameHighlights {
		out := make([]Mark, 0, 6)
		for i := 1; i <= 6; i++ {
			out = append(out, Mark{
				Label:   fmt.Sprintf("segment_%d", i),
				Seconds: d * float64(i) / 7,
				Type:    "basketball",
			})
		}
		return out
	}
	if table, ok := typeFractions[vt]; ok {
		out := make([]Mark, 0, len(table))
		for _, t := range table {
			out = append(out, Mark{Label: t.label, Seconds: d * t.frac, Type: "basketball"})
		}
		return out
	}
	out := make([]Mark, 0, 4)
	for i := 1; i <= 4; i++ {
		out = append(out, Mark{
			Label:   fmt.Sprintf("action_%d", i),
			Seconds: d * float64(i) / 5,
			Type:    "basketball",
		})
	}
	return out
}

// CustomMarks labels caller-supplied timestamps custom_1, custom_2, …
// clamped into the playable range.
func CustomMarks(timestamps []float64, duration int) []Mark {
	out := make([]Mark, 0, len(timestamps))
	for i, ts := range timestamps {
		if ts < 0 {
			ts = 0
		}
		if max := float64(duration); ts > max {
			ts = max
		}
		out = append(out, Mark{
			Label:   fmt.Sprintf("custom_%d", i+1),
			Seconds: ts,
			Type:    "custom",
		})
	}
	return out
}
