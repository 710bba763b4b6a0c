// Package optimize implements the quality optimization stage: tiered
// H.264 transcodes with basketball-aware filter bundles, an optional
// segmented-streaming variant, and size-reduction accounting.
package optimize

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hooplab/courtreel/internal/analyze"
	"github.com/hooplab/courtreel/internal/blob"
	"github.com/hooplab/courtreel/internal/execx"
	"github.com/hooplab/courtreel/internal/log"
	"github.com/hooplab/courtreel/internal/media"
	"github.com/hooplab/courtreel/internal/platform"
	"github.com/hooplab/courtreel/internal/stage"
)

const (
	encodeTimeout    = 7200 * time.Second
	streamingTimeout = 1800 * time.Second

	// Free disk must exceed this multiple of the estimated primary
	// output size before encoding starts.
	diskHeadroomFactor = 3
)

var encodesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "courtreel",
	Subsystem: "optimize",
	Name:      "encodes_total",
	Help:      "Tier encode invocations by tier and outcome.",
}, []string{"tier", "outcome"})

// Request is the stage's job payload.
type Request struct {
	AssetID string `json:"asset_id"`
	RunID   string `json:"run_id,omitempty"`
	Tier    Tier   `json:"tier"`
	// MultiTier additionally encodes every other preset the source
	// resolution can fill.
	MultiTier bool `json:"multi_tier,omitempty"`
	// Streaming produces a segmented VOD variant from the primary output.
	Streaming bool `json:"streaming,omitempty"`
}

// Version describes one produced output.
type Version struct {
	Tier Tier   `json:"tier"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// Report is the optimized_versions sub-report.
type Report struct {
	Primary    Version   `json:"primary"`
	Additional []Version `json:"additional"`
	Streaming  string    `json:"streaming,omitempty"`
	// SizeReductionPct is (original-optimized)/original*100 for the
	// primary output, rounded to 2 decimals. Negative when the encode
	// grew the file.
	SizeReductionPct float64 `json:"size_reduction_pct"`
}

// Optimizer transcodes source videos through the shared subprocess runner.
type Optimizer struct {
	Store      media.Store
	Blobs      blob.Store
	Runner     execx.Runner
	FFmpegPath string
	// OutputPrefix and StreamingPrefix are the blob-store roots for
	// transcode artifacts.
	OutputPrefix    string
	StreamingPrefix string
}

func New(store media.Store, blobs blob.Store, runner execx.Runner) *Optimizer {
	return &Optimizer{
		Store:           store,
		Blobs:           blobs,
		Runner:          runner,
		FFmpegPath:      "ffmpeg",
		OutputPrefix:    "optimized",
		StreamingPrefix: "streaming",
	}
}

// Handle runs optimization for one asset. A primary-tier failure is fatal
// and retried; additional tiers and the streaming variant only degrade.
func (o *Optimizer) Handle(ctx context.Context, req Request) error {
	logger := log.WithComponentFromContext(ctx, "optimize")
	res := &stage.Result{}

	asset, err := o.Store.Get(ctx, req.AssetID)
	if errors.Is(err, media.ErrNotFound) {
		return stage.Validationf("asset %s not found", req.AssetID)
	}
	if err != nil {
		return err
	}
	if asset.SourcePath == "" || !o.Blobs.Exists(ctx, asset.SourcePath) {
		return stage.Validationf("source blob %s does not exist", asset.SourcePath)
	}
	if !asset.HasDimensions() {
		return stage.Validationf("asset %s has unknown dimensions; extraction must run first", req.AssetID)
	}
	if !req.Tier.Valid() {
		return stage.Validationf("unknown quality tier %q", req.Tier)
	}

	source, err := o.Blobs.ResolveLocalPath(ctx, asset.SourcePath)
	if err != nil {
		return stage.Validationf("source blob %s not locally resolvable: %v", asset.SourcePath, err)
	}

	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	runDir := fmt.Sprintf("%s/%s/%s", o.OutputPrefix, req.AssetID, shortID(runID))

	if err := o.preflight(ctx, runDir, Presets[req.Tier], asset.DurationSeconds); err != nil {
		return err
	}

	hints := HintsFor(analyze.IsBasketball(asset), asset.VideoType)

	primary, err := o.encodeTier(ctx, source, runDir, req.Tier, hints)
	if err != nil {
		encodesTotal.WithLabelValues(string(req.Tier), "failed").Inc()
		return err
	}
	encodesTotal.WithLabelValues(string(req.Tier), "ok").Inc()

	report := Report{Primary: primary}
	if asset.FileSize > 0 {
		pct := float64(asset.FileSize-primary.Size) / float64(asset.FileSize) * 100
		report.SizeReductionPct = math.Round(pct*100) / 100
	}

	if req.MultiTier {
		for _, tier := range AdditionalTiers(req.Tier, asset.Width) {
			v, err := o.encodeTier(ctx, source, runDir, tier, hints)
			if err != nil {
				encodesTotal.WithLabelValues(string(tier), "failed").Inc()
				res.Degrade(string(tier), err.Error())
				logger.Warn().Str("tier", string(tier)).Err(err).Msg("additional tier encode failed")
				continue
			}
			encodesTotal.WithLabelValues(string(tier), "ok").Inc()
			report.Additional = append(report.Additional, v)
		}
	}

	if req.Streaming {
		key, err := o.segmentStreaming(ctx, primary.Path, req.AssetID, runID)
		if err != nil {
			res.Degrade("streaming", err.Error())
			logger.Warn().Err(err).Msg("streaming variant failed")
		} else {
			report.Streaming = key
		}
	}

	rating := req.Tier.Rating()
	_, err = o.Store.Update(ctx, req.AssetID, func(a *media.Asset) error {
		if a.Metadata == nil {
			a.Metadata = make(map[string]any)
		}
		a.Metadata[media.DocOptimized] = report
		a.ProcessedPath = primary.Path
		a.QualityRating = rating
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info().
		Str("asset_id", req.AssetID).
		Str("tier", string(req.Tier)).
		Int("additional", len(report.Additional)).
		Bool("streaming", report.Streaming != "").
		Float64("size_reduction_pct", report.SizeReductionPct).
		Int("degraded", len(res.Degradations)).
		Msg("optimization finished")
	return nil
}

// Cleanup removes every transcode artifact for an asset. Called by the
// stage's failure hook after retries are exhausted.
func (o *Optimizer) Cleanup(ctx context.Context, assetID string) error {
	err1 := o.Blobs.DeletePrefix(ctx, o.OutputPrefix+"/"+assetID)
	err2 := o.Blobs.DeletePrefix(ctx, o.StreamingPrefix+"/"+assetID)
	return errors.Join(err1, err2)
}

// preflight checks free disk space against the estimated primary output
// size. A zero reading means the platform cannot report free space and
// the check is skipped.
func (o *Optimizer) preflight(ctx context.Context, runDir string, preset Preset, durationSeconds int) error {
	dir, err := o.Blobs.ResolveLocalPath(ctx, runDir)
	if err != nil {
		return err
	}
	free, err := platform.FreeBytes(filepath.Dir(dir))
	if err != nil || free == 0 {
		return nil
	}
	estimated := uint64(preset.VideoBitrate/8) * uint64(durationSeconds)
	if need := estimated * diskHeadroomFactor; free < need {
		return &stage.ResourceError{
			Reason: fmt.Sprintf("insufficient disk space: %d bytes free, %d required", free, need),
		}
	}
	return nil
}

func (o *Optimizer) encodeTier(ctx context.Context, source, runDir string, tier Tier, hints Hints) (Version, error) {
	preset := Presets[tier]
	key := fmt.Sprintf("%s/%s.mp4", runDir, tier)
	out, err := o.Blobs.ResolveLocalPath(ctx, key)
	if err != nil {
		return Version{}, err
	}

	args := encodeArgs(source, out, preset, hints)
	r, err := o.Runner.Run(ctx, execx.Command{Path: o.FFmpegPath, Args: args, Timeout: encodeTimeout})
	if err != nil {
		return Version{}, err
	}
	if !r.ExitOk {
		return Version{}, &stage.SubprocessError{
			Binary:   o.FFmpegPath,
			ExitCode: r.ExitCode,
			TimedOut: r.TimedOut,
			Stderr:   r.Stderr,
		}
	}
	info, err := os.Stat(out)
	if err != nil || info.Size() == 0 {
		return Version{}, &stage.SubprocessError{Binary: o.FFmpegPath, Stderr: []string{"output missing or empty"}}
	}
	return Version{Tier: tier, Path: key, Size: info.Size()}, nil
}

// encodeArgs builds the fixed H.264 invocation for a tier: CRF 23 under a
// bitrate/maxrate/bufsize cap, AAC audio, faststart, a keyframe every 2
// seconds, plus the basketball filter bundles the hints select.
func encodeArgs(source, out string, preset Preset, hints Hints) []string {
	args := []string{
		"-y",
		"-i", source,
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "23",
		"-profile:v", preset.Profile,
		"-level", preset.Level,
		"-b:v", fmt.Sprintf("%d", preset.VideoBitrate),
		"-maxrate", fmt.Sprintf("%d", preset.VideoBitrate*3/2),
		"-bufsize", fmt.Sprintf("%d", preset.VideoBitrate*2),
		"-r", fmt.Sprintf("%d", preset.FPS),
		"-vf", filterChain(preset, hints),
	}
	if hints.FastAction {
		args = append(args, "-x264opts", "me=umh:merange=24:ref=4:bframes=2")
	}
	args = append(args,
		"-c:a", "aac",
		"-b:a", fmt.Sprintf("%d", preset.AudioBitrate),
		"-movflags", "+faststart",
		"-force_key_frames", "expr:gte(t,n_forced*2)",
		out,
	)
	return args
}

func filterChain(preset Preset, hints Hints) string {
	filters := []string{
		fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", preset.Width, preset.Height),
		fmt.Sprintf("pad=%d:%d:(ow-iw)/2:(oh-ih)/2", preset.Width, preset.Height),
	}
	switch {
	case hints.PlayerTracking:
		filters = append(filters, "hqdn3d=1:1:2:2", "unsharp=3:3:0.5:3:3:0.0")
	case hints.CourtContent:
		filters = append(filters, "hqdn3d=2:1:2:3", "eq=contrast=1.05:saturation=1.1")
	}
	if hints.FastAction {
		filters = append(filters, "unsharp=5:5:0.8:3:3:0.4")
	}
	return strings.Join(filters, ",")
}

// segmentStreaming remuxes the primary output into 6-second VOD segments.
func (o *Optimizer) segmentStreaming(ctx context.Context, primaryKey, assetID, runID string) (string, error) {
	in, err := o.Blobs.ResolveLocalPath(ctx, primaryKey)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("%s/%s/%s/index.m3u8", o.StreamingPrefix, assetID, shortID(runID))
	out, err := o.Blobs.ResolveLocalPath(ctx, key)
	if err != nil {
		return "", err
	}
	r, err := o.Runner.Run(ctx, execx.Command{
		Path: o.FFmpegPath,
		Args: []string{
			"-y",
			"-i", in,
			"-c", "copy",
			"-f", "hls",
			"-hls_time", "6",
			"-hls_playlist_type", "vod",
			out,
		},
		Timeout: streamingTimeout,
	})
	if err != nil {
		return "", err
	}
	if !r.ExitOk {
		return "", &stage.SubprocessError{
			Binary:   o.FFmpegPath,
			ExitCode: r.ExitCode,
			TimedOut: r.TimedOut,
			Stderr:   r.Stderr,
		}
	}
	if info, err := os.Stat(out); err != nil || info.Size() == 0 {
		return "", errors.New("streaming playlist missing or empty")
	}
	return key, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
