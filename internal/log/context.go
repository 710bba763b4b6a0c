package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey string

const (
	assetIDKey ctxKey = "asset_id"
	jobIDKey   ctxKey = "job_id"
	stageKey   ctxKey = "stage"
)

// ContextWithAssetID stores the processed asset's ID in the context.
func ContextWithAssetID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, assetIDKey, id)
}

// ContextWithJobID stores the queue job ID in the context.
func ContextWithJobID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, jobIDKey, id)
}

// ContextWithStage stores the pipeline stage name in the context.
func ContextWithStage(ctx context.Context, stage string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, stageKey, stage)
}

// AssetIDFromContext extracts the asset ID from context if present.
func AssetIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(assetIDKey).(string); ok {
		return v
	}
	return ""
}

// JobIDFromContext extracts the queue job ID from context if present.
func JobIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(jobIDKey).(string); ok {
		return v
	}
	return ""
}

// StageFromContext extracts the stage name from context if present.
func StageFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(stageKey).(string); ok {
		return v
	}
	return ""
}

// WithContext enriches the supplied logger with correlation fields from context.
func WithContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	if ctx == nil {
		return logger
	}
	builder := logger.With()
	added := false
	if aid := AssetIDFromContext(ctx); aid != "" {
		builder = builder.Str("asset_id", aid)
		added = true
	}
	if jid := JobIDFromContext(ctx); jid != "" {
		builder = builder.Str("job_id", jid)
		added = true
	}
	if st := StageFromContext(ctx); st != "" {
		builder = builder.Str("stage", st)
		added = true
	}
	if !added {
		return logger
	}
	return builder.Logger()
}

// WithComponentFromContext returns a component logger enriched with
// correlation fields from ctx.
func WithComponentFromContext(ctx context.Context, component string) zerolog.Logger {
	return WithContext(ctx, WithComponent(component))
}
