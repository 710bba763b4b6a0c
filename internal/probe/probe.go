// Package probe wraps ffprobe: one JSON invocation per source file,
// parsed into typed stream and container reports.
package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/hooplab/courtreel/internal/execx"
	"github.com/hooplab/courtreel/internal/stage"
)

// Timeout is the hard wall-clock limit for a single probe invocation.
const Timeout = 300 * time.Second

// ErrMalformedOutput marks probe output that could not be parsed into a
// usable report. Callers treat it as retryable; transient environment
// issues (truncated reads, crashed probe) produce the same symptom.
var ErrMalformedOutput = errors.New("malformed probe output")

// Prober runs ffprobe through the shared subprocess runner.
type Prober struct {
	Runner  execx.Runner
	BinPath string
}

// NewProber returns a Prober using the given runner. binPath defaults to
// "ffprobe".
func NewProber(runner execx.Runner, binPath string) *Prober {
	if binPath == "" {
		binPath = "ffprobe"
	}
	return &Prober{Runner: runner, BinPath: binPath}
}

// Args returns the ffprobe argv for path: full format/stream/chapter/
// program data plus frame counting. Exported so tests can assert the wire
// contract without invoking anything.
func Args(path string) []string {
	return []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		"-show_chapters",
		"-show_programs",
		"-count_frames",
		path,
	}
}

// Probe runs ffprobe against path and parses the result.
func (p *Prober) Probe(ctx context.Context, path string) (*Report, error) {
	res, err := p.Runner.Run(ctx, execx.Command{
		Path:    p.BinPath,
		Args:    Args(path),
		Timeout: Timeout,
	})
	if err != nil {
		return nil, err
	}
	if !res.ExitOk {
		return nil, &stage.SubprocessError{
			Binary:   p.BinPath,
			ExitCode: res.ExitCode,
			TimedOut: res.TimedOut,
			Stderr:   res.Stderr,
		}
	}
	return ParseJSON(res.Stdout)
}

// Report is the fully parsed output of one ffprobe call. Video is the
// first video stream (nil if none). The json tags fix the shape of the
// technical_metadata sub-report.
type Report struct {
	Video     *VideoInfo    `json:"video"`
	Audio     []AudioInfo   `json:"audio"`
	Container ContainerInfo `json:"container"`
}

// VideoInfo holds the parsed properties of the primary video stream.
type VideoInfo struct {
	Codec              string `json:"codec"`
	Profile            string `json:"profile,omitempty"`
	Width              int    `json:"width"`
	Height             int    `json:"height"`
	PixFmt             string `json:"pix_fmt,omitempty"`
	ColorSpace         string `json:"color_space,omitempty"`
	DisplayAspectRatio string `json:"display_aspect_ratio,omitempty"`
	SampleAspectRatio  string `json:"sample_aspect_ratio,omitempty"`
	// FrameRate is parsed from the "N/D" average frame rate fraction,
	// rounded to 2 decimals. Nil when the denominator is zero or absent.
	FrameRate  *float64 `json:"frame_rate"`
	BitRate    int64    `json:"bit_rate"`
	FrameCount int64    `json:"frame_count,omitempty"`
}

// AspectRatio returns width/height as a float, or 0 when unknown.
func (v *VideoInfo) AspectRatio() float64 {
	if v == nil || v.Width <= 0 || v.Height <= 0 {
		return 0
	}
	return float64(v.Width) / float64(v.Height)
}

// AudioInfo holds one audio stream's properties.
type AudioInfo struct {
	Codec      string `json:"codec"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	BitRate    int64  `json:"bit_rate"`
	Language   string `json:"language,omitempty"`
	Title      string `json:"title,omitempty"`
}

// ContainerInfo holds format-level metadata.
type ContainerInfo struct {
	FormatName      string `json:"format_name"`
	DurationSeconds int    `json:"duration_seconds"` // rounded to nearest second
	Size            int64  `json:"size"`
	BitRate         int64  `json:"bit_rate"`
	ProbeScore      int    `json:"probe_score"`
}

// ParseJSON converts raw ffprobe JSON into a Report. Exported for testing
// without a real ffprobe binary. Missing or absent stream data yields
// ErrMalformedOutput.
func ParseJSON(data []byte) (*Report, error) {
	var raw ffprobeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if raw.Streams == nil {
		return nil, fmt.Errorf("%w: missing streams array", ErrMalformedOutput)
	}
	return buildReport(&raw), nil
}

// --- ffprobe JSON wire types ---

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
	ProbeScore int    `json:"probe_score"`
}

type ffprobeStream struct {
	CodecName          string            `json:"codec_name"`
	CodecType          string            `json:"codec_type"`
	Profile            string            `json:"profile"`
	Width              int               `json:"width"`
	Height             int               `json:"height"`
	PixFmt             string            `json:"pix_fmt"`
	ColorSpace         string            `json:"color_space"`
	DisplayAspectRatio string            `json:"display_aspect_ratio"`
	SampleAspectRatio  string            `json:"sample_aspect_ratio"`
	AvgFrameRate       string            `json:"avg_frame_rate"`
	RFrameRate         string            `json:"r_frame_rate"`
	NbReadFrames       string            `json:"nb_read_frames"`
	BitRate            string            `json:"bit_rate"`
	SampleRate         string            `json:"sample_rate"`
	Channels           int               `json:"channels"`
	Tags               map[string]string `json:"tags"`
}

func buildReport(raw *ffprobeOutput) *Report {
	r := &Report{
		Container: ContainerInfo{
			FormatName:      raw.Format.FormatName,
			DurationSeconds: int(math.Round(parseFloat(raw.Format.Duration))),
			Size:            parseInt64(raw.Format.Size),
			BitRate:         parseInt64(raw.Format.BitRate),
			ProbeScore:      raw.Format.ProbeScore,
		},
	}

	for i := range raw.Streams {
		s := &raw.Streams[i]
		switch s.CodecType {
		case "video":
			if r.Video == nil {
				v := convertVideo(s)
				r.Video = &v
			}
		case "audio":
			r.Audio = append(r.Audio, convertAudio(s))
		}
	}
	return r
}

func convertVideo(s *ffprobeStream) VideoInfo {
	fr := s.AvgFrameRate
	if fr == "" || fr == "0/0" {
		fr = s.RFrameRate
	}
	return VideoInfo{
		Codec:              s.CodecName,
		Profile:            s.Profile,
		Width:              s.Width,
		Height:             s.Height,
		PixFmt:             s.PixFmt,
		ColorSpace:         s.ColorSpace,
		DisplayAspectRatio: s.DisplayAspectRatio,
		SampleAspectRatio:  s.SampleAspectRatio,
		FrameRate:          ParseFrameRate(fr),
		BitRate:            parseInt64(s.BitRate),
		FrameCount:         parseInt64(s.NbReadFrames),
	}
}

func convertAudio(s *ffprobeStream) AudioInfo {
	return AudioInfo{
		Codec:      s.CodecName,
		SampleRate: int(parseInt64(s.SampleRate)),
		Channels:   s.Channels,
		BitRate:    parseInt64(s.BitRate),
		Language:   s.Tags["language"],
		Title:      s.Tags["title"],
	}
}

// ParseFrameRate parses an "N/D" fraction into frames per second rounded
// to 2 decimals. Returns nil for an empty fraction, a zero denominator, or
// unparseable input.
func ParseFrameRate(frac string) *float64 {
	if frac == "" {
		return nil
	}
	num, den, ok := strings.Cut(frac, "/")
	if !ok {
		// Plain number, e.g. "25".
		f, err := strconv.ParseFloat(frac, 64)
		if err != nil || f <= 0 {
			return nil
		}
		rounded := math.Round(f*100) / 100
		return &rounded
	}
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return nil
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return nil
	}
	rounded := math.Round(n/d*100) / 100
	return &rounded
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func parseInt64(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
