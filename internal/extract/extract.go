// Package extract implements the metadata extraction stage: probe the
// source video, derive the analysis sub-reports and persist everything
// on the asset record in a single store update.
package extract

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hooplab/courtreel/internal/analyze"
	"github.com/hooplab/courtreel/internal/blob"
	"github.com/hooplab/courtreel/internal/log"
	"github.com/hooplab/courtreel/internal/media"
	"github.com/hooplab/courtreel/internal/probe"
	"github.com/hooplab/courtreel/internal/stage"
)

var (
	extractTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "courtreel",
		Subsystem: "extract",
		Name:      "runs_total",
		Help:      "Metadata extraction runs by outcome.",
	}, []string{"outcome"})

	basketballTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "courtreel",
		Subsystem: "extract",
		Name:      "basketball_classified_total",
		Help:      "Assets classified as basketball content.",
	})
)

// Extractor probes a source video and writes the derived metadata back to
// the asset record.
type Extractor struct {
	Store  media.Store
	Blobs  blob.Store
	Prober *probe.Prober
}

func New(store media.Store, blobs blob.Store, prober *probe.Prober) *Extractor {
	return &Extractor{Store: store, Blobs: blobs, Prober: prober}
}

// Handle runs extraction for one asset. The write at the end is
// all-or-nothing: either every sub-report and flattened field lands, or
// the record is untouched and the job retries.
func (e *Extractor) Handle(ctx context.Context, assetID string) error {
	logger := log.WithComponentFromContext(ctx, "extract")

	asset, err := e.Store.Get(ctx, assetID)
	if errors.Is(err, media.ErrNotFound) {
		return stage.Validationf("asset %s not found", assetID)
	}
	if err != nil {
		return err
	}

	// Fail fast on bad input before spending a subprocess on it.
	if asset.SourcePath == "" {
		return stage.Validationf("asset %s has no source path", assetID)
	}
	if !e.Blobs.Exists(ctx, asset.SourcePath) {
		return stage.Validationf("source blob %s does not exist", asset.SourcePath)
	}
	size, err := e.Blobs.Size(ctx, asset.SourcePath)
	if err != nil {
		return err
	}
	if size == 0 {
		return stage.Validationf("source blob %s is empty", asset.SourcePath)
	}

	local, err := e.Blobs.ResolveLocalPath(ctx, asset.SourcePath)
	if err != nil {
		return stage.Validationf("source blob %s not locally resolvable: %v", asset.SourcePath, err)
	}

	report, err := e.Prober.Probe(ctx, local)
	if err != nil {
		extractTotal.WithLabelValues("probe_error").Inc()
		if errors.Is(err, probe.ErrMalformedOutput) {
			return &stage.ParseError{Err: err}
		}
		return err
	}
	if report.Video == nil {
		extractTotal.WithLabelValues("no_video").Inc()
		return stage.Validationf("asset %s has no video stream", assetID)
	}

	duration := report.Container.DurationSeconds
	aspect := report.Video.AspectRatio()

	content := analyze.Content(asset.OriginalFilename, duration, aspect)
	quality := analyze.Quality(report)
	audio := analyze.Audio(report.Audio, asset.VideoType)
	frames := analyze.Frames(duration, report.Video.FrameRate)
	hoops := analyze.Basketball(analyze.Signals{
		VideoType:         asset.VideoType,
		TeamID:            asset.TeamID,
		GameID:            asset.GameID,
		TrainingSessionID: asset.TrainingSessionID,
		Filename:          asset.OriginalFilename,
		Tags:              asset.Tags,
		AspectRatio:       aspect,
		DurationSeconds:   duration,
		Width:             report.Video.Width,
	})
	rating := media.RatingForScore(quality.Overall)

	_, err = e.Store.Update(ctx, assetID, func(a *media.Asset) error {
		if a.Metadata == nil {
			a.Metadata = make(map[string]any)
		}
		a.Metadata[media.DocTechnical] = report
		a.Metadata[media.DocContent] = content
		a.Metadata[media.DocQuality] = quality
		a.Metadata[media.DocBasketball] = hoops
		a.Metadata[media.DocAudio] = audio
		if frames != nil {
			a.Metadata[media.DocFrames] = frames
		} else {
			delete(a.Metadata, media.DocFrames)
		}

		// Flattened copies of the fields downstream queries filter on.
		a.Metadata["is_basketball_content"] = hoops.IsBasketballContent
		a.Metadata["basketball_confidence"] = hoops.Confidence
		if quality.Overall != nil {
			a.Metadata["overall_quality_score"] = *quality.Overall
		} else {
			delete(a.Metadata, "overall_quality_score")
		}

		a.DurationSeconds = duration
		a.Width = report.Video.Width
		a.Height = report.Video.Height
		a.Codec = report.Video.Codec
		if report.Video.FrameRate != nil {
			a.FrameRate = *report.Video.FrameRate
		}
		a.Bitrate = report.Container.BitRate
		if a.Bitrate == 0 {
			a.Bitrate = report.Video.BitRate
		}
		a.FileSize = size
		a.HasAudio = audio.HasAudio
		a.QualityRating = rating
		return nil
	})
	if err != nil {
		extractTotal.WithLabelValues("store_error").Inc()
		return err
	}

	extractTotal.WithLabelValues("ok").Inc()
	if hoops.IsBasketballContent {
		basketballTotal.Inc()
	}
	logger.Info().
		Str("asset_id", assetID).
		Int("duration_s", duration).
		Int("width", report.Video.Width).
		Int("height", report.Video.Height).
		Str("rating", string(rating)).
		Int("basketball_confidence", hoops.Confidence).
		Msg("metadata extracted")
	return nil
}
