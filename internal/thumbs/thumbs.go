// Package thumbs implements the thumbnail generation stage: capture
// labeled frames at policy-derived timestamps, in three sizes, assemble a
// preview sprite and pick the primary thumbnail.
package thumbs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/hooplab/courtreel/internal/analyze"
	"github.com/hooplab/courtreel/internal/blob"
	"github.com/hooplab/courtreel/internal/execx"
	"github.com/hooplab/courtreel/internal/log"
	"github.com/hooplab/courtreel/internal/media"
	"github.com/hooplab/courtreel/internal/stage"
)

const (
	captureTimeout  = 60 * time.Second
	optimizeTimeout = 30 * time.Second
	spriteTimeout   = 120 * time.Second
)

// Size is one output resolution tier. A capture is usable only if its
// medium size succeeded.
type Size struct {
	Name   string
	Width  int
	Height int
}

var Sizes = []Size{
	{Name: "small", Width: 320, Height: 180},
	{Name: "medium", Width: 640, Height: 360},
	{Name: "large", Width: 1280, Height: 720},
}

var (
	capturesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "courtreel",
		Subsystem: "thumbs",
		Name:      "captures_total",
		Help:      "Single-frame capture invocations by outcome.",
	}, []string{"outcome"})

	spritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "courtreel",
		Subsystem: "thumbs",
		Name:      "sprites_total",
		Help:      "Sprite assembly attempts by outcome.",
	}, []string{"outcome"})
)

// Request is the stage's job payload.
type Request struct {
	AssetID string `json:"asset_id"`
	// RunID scopes artifact paths so a retry never overwrites a previous
	// attempt's files in place. Generated when empty.
	RunID               string    `json:"run_id,omitempty"`
	BasketballKeyframes bool      `json:"basketball_keyframes,omitempty"`
	CustomTimestamps    []float64 `json:"custom_timestamps,omitempty"`
}

// Entry is the persisted record for one label. Path is the medium size,
// which doubles as the display thumbnail.
type Entry struct {
	Path      string            `json:"path"`
	Timestamp float64           `json:"timestamp"`
	Type      string            `json:"type"`
	Sizes     map[string]string `json:"sizes"`
}

// Generator captures thumbnails through the shared subprocess runner.
type Generator struct {
	Store      media.Store
	Blobs      blob.Store
	Runner     execx.Runner
	FFmpegPath string
	// PathPrefix is the blob-store root for thumbnail artifacts.
	PathPrefix string
}

func New(store media.Store, blobs blob.Store, runner execx.Runner) *Generator {
	return &Generator{
		Store:      store,
		Blobs:      blobs,
		Runner:     runner,
		FFmpegPath: "ffmpeg",
		PathPrefix: "thumbnails",
	}
}

// Handle runs thumbnail generation for one asset. Per-label failures
// degrade the result; the stage itself fails only on unmet preconditions
// or a failed write-back.
func (g *Generator) Handle(ctx context.Context, req Request) error {
	logger := log.WithComponentFromContext(ctx, "thumbs")
	res := &stage.Result{}

	asset, err := g.Store.Get(ctx, req.AssetID)
	if errors.Is(err, media.ErrNotFound) {
		return stage.Validationf("asset %s not found", req.AssetID)
	}
	if err != nil {
		return err
	}
	if asset.SourcePath == "" || !g.Blobs.Exists(ctx, asset.SourcePath) {
		return stage.Validationf("source blob %s does not exist", asset.SourcePath)
	}
	if asset.DurationSeconds <= 0 {
		return stage.Validationf("asset %s has no known duration; extraction must run first", req.AssetID)
	}

	source, err := g.Blobs.ResolveLocalPath(ctx, asset.SourcePath)
	if err != nil {
		return stage.Validationf("source blob %s not locally resolvable: %v", asset.SourcePath, err)
	}

	marks := StandardMarks(asset.DurationSeconds)
	if req.BasketballKeyframes && analyze.IsBasketball(asset) {
		marks = append(marks, TypeMarks(asset.VideoType, asset.DurationSeconds)...)
	}
	marks = append(marks, CustomMarks(req.CustomTimestamps, asset.DurationSeconds)...)

	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	runDir := fmt.Sprintf("%s/%s/%s", g.PathPrefix, req.AssetID, shortID(runID))

	var order []string
	entries := make(map[string]Entry)
	var mediumLocals []string

	for _, mark := range marks {
		entry := Entry{Timestamp: mark.Seconds, Type: mark.Type, Sizes: make(map[string]string)}
		var mediumLocal string
		for _, size := range Sizes {
			key := fmt.Sprintf("%s/%s_%s.jpg", runDir, mark.Label, size.Name)
			local, err := g.Blobs.ResolveLocalPath(ctx, key)
			if err != nil {
				return err
			}
			if !g.capture(ctx, source, local, mark.Seconds, size) {
				capturesTotal.WithLabelValues("failed").Inc()
				res.Degrade(mark.Label+"_"+size.Name, "capture failed")
				logger.Warn().Str("label", mark.Label).Str("size", size.Name).Msg("thumbnail capture failed")
				continue
			}
			capturesTotal.WithLabelValues("ok").Inc()
			g.optimize(ctx, logger, local)
			entry.Sizes[size.Name] = key
			if size.Name == "medium" {
				entry.Path = key
				mediumLocal = local
			}
		}
		// Without the medium size there is nothing to display; the label
		// is dropped wholesale.
		if entry.Path == "" {
			res.Degrade(mark.Label, "no usable thumbnail")
			continue
		}
		order = append(order, mark.Label)
		entries[mark.Label] = entry
		mediumLocals = append(mediumLocals, mediumLocal)
	}

	spriteKey := g.sprite(ctx, logger, res, runDir, mediumLocals)
	primary := primaryLabel(order)

	_, err = g.Store.Update(ctx, req.AssetID, func(a *media.Asset) error {
		if a.Metadata == nil {
			a.Metadata = make(map[string]any)
		}
		a.Metadata[media.DocThumbnails] = entries
		if spriteKey != "" {
			a.Metadata[media.DocThumbnailSprite] = spriteKey
		} else {
			delete(a.Metadata, media.DocThumbnailSprite)
		}
		if primary != "" {
			a.PrimaryThumbnailPath = entries[primary].Path
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info().
		Str("asset_id", req.AssetID).
		Int("thumbnails", len(entries)).
		Int("degraded", len(res.Degradations)).
		Str("primary", primary).
		Msg("thumbnails generated")
	return nil
}

// Cleanup removes every thumbnail artifact for an asset. Called by the
// stage's failure hook after retries are exhausted.
func (g *Generator) Cleanup(ctx context.Context, assetID string) error {
	return g.Blobs.DeletePrefix(ctx, g.PathPrefix+"/"+assetID)
}

// capture grabs a single letterboxed frame. Success requires exit 0 and a
// non-empty output file.
func (g *Generator) capture(ctx context.Context, source, out string, seconds float64, size Size) bool {
	vf := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,unsharp=5:5:1.0:5:5:0.0",
		size.Width, size.Height, size.Width, size.Height,
	)
	res, err := g.Runner.Run(ctx, execx.Command{
		Path: g.FFmpegPath,
		Args: []string{
			"-y",
			"-ss", formatSeconds(seconds),
			"-i", source,
			"-vframes", "1",
			"-vf", vf,
			"-q:v", "2",
			out,
		},
		Timeout: captureTimeout,
	})
	if err != nil || !res.ExitOk {
		return false
	}
	return fileNonEmpty(out)
}

// optimize re-encodes a produced JPEG in place to shave bytes. Failures
// keep the original.
func (g *Generator) optimize(ctx context.Context, logger zerolog.Logger, path string) {
	tmp := path + ".opt.jpg"
	res, err := g.Runner.Run(ctx, execx.Command{
		Path:    g.FFmpegPath,
		Args:    []string{"-y", "-i", path, "-q:v", "4", tmp},
		Timeout: optimizeTimeout,
	})
	if err != nil || !res.ExitOk || !fileNonEmpty(tmp) {
		_ = os.Remove(tmp)
		logger.Debug().Str("path", path).Msg("thumbnail optimize pass skipped")
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		logger.Debug().Str("path", path).Err(err).Msg("thumbnail optimize rename failed")
	}
}

// sprite horizontally stacks up to the first four medium thumbnails.
// Fewer than two inputs skips assembly; failure degrades, never aborts.
func (g *Generator) sprite(ctx context.Context, logger zerolog.Logger, res *stage.Result, runDir string, locals []string) string {
	if len(locals) < 2 {
		spritesTotal.WithLabelValues("skipped").Inc()
		return ""
	}
	if len(locals) > 4 {
		locals = locals[:4]
	}
	key := runDir + "/sprite.jpg"
	out, err := g.Blobs.ResolveLocalPath(ctx, key)
	if err != nil {
		res.Degrade("sprite", err.Error())
		return ""
	}

	args := []string{"-y"}
	for _, l := range locals {
		args = append(args, "-i", l)
	}
	args = append(args,
		"-filter_complex", fmt.Sprintf("hstack=inputs=%d", len(locals)),
		"-q:v", "3",
		out,
	)
	r, err := g.Runner.Run(ctx, execx.Command{Path: g.FFmpegPath, Args: args, Timeout: spriteTimeout})
	if err != nil || !r.ExitOk || !fileNonEmpty(out) {
		spritesTotal.WithLabelValues("failed").Inc()
		res.Degrade("sprite", "assembly failed")
		logger.Warn().Msg("sprite assembly failed")
		return ""
	}
	spritesTotal.WithLabelValues("ok").Inc()
	return key
}

// primaryLabel applies the fixed preference order, falling back to the
// first label produced.
func primaryLabel(order []string) string {
	for _, want := range []string{"half", "q2_start", "action_2"} {
		for _, l := range order {
			if l == want {
				return l
			}
		}
	}
	if len(order) > 0 {
		return order[0]
	}
	return ""
}

func formatSeconds(s float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", s), "0"), ".")
}

func fileNonEmpty(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
