package detail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"cinefinder/searchservice/internal/domain"
	"cinefinder/searchservice/internal/metrics"
	"cinefinder/searchservice/internal/providers/tmdb"
)

var (
	ErrInvalidItem   = errors.New("invalid item reference")
	ErrDetailsFailed = errors.New("details failed")
)

// Fetcher is the set of per-item upstream endpoints.
type Fetcher interface {
	Details(ctx context.Context, kind domain.MediaKind, id int) (tmdb.Details, error)
	Images(ctx context.Context, kind domain.MediaKind, id int) (tmdb.Images, error)
	Videos(ctx context.Context, kind domain.MediaKind, id int) (tmdb.Videos, error)
	Credits(ctx context.Context, kind domain.MediaKind, id int) (tmdb.Credits, error)
	Reviews(ctx context.Context, kind domain.MediaKind, id int) (tmdb.Reviews, error)
}

// Raw holds the five settled sub-resources of one item.
type Raw struct {
	Details tmdb.Details
	Images  tmdb.Images
	Videos  tmdb.Videos
	Credits tmdb.Credits
	Reviews tmdb.Reviews
}

type Aggregator struct {
	fetcher Fetcher
	limits  Limits
	logger  *slog.Logger
	tracer  trace.Tracer
}

type Option func(*Aggregator)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

func WithLimits(limits Limits) Option {
	return func(a *Aggregator) {
		a.limits = limits
	}
}

func NewAggregator(fetcher Fetcher, opts ...Option) *Aggregator {
	a := &Aggregator{
		fetcher: fetcher,
		limits:  DefaultLimits(),
		logger:  slog.Default(),
		tracer:  otel.Tracer("cinefinder/detail"),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	a.limits = a.limits.withDefaults()
	return a
}

// Load fetches details, images, videos, credits and reviews concurrently and
// normalizes them into one view model. The join is all-or-nothing: the first
// failing fetch cancels the others and the load returns ErrDetailsFailed.
func (a *Aggregator) Load(ctx context.Context, kind domain.MediaKind, id int) (domain.DetailViewModel, error) {
	if !kind.Valid() || id <= 0 {
		return domain.DetailViewModel{}, fmt.Errorf("%w: %s/%d", ErrInvalidItem, kind, id)
	}

	ctx, span := a.tracer.Start(ctx, "detail.load", trace.WithAttributes(
		attribute.String("media.kind", string(kind)),
		attribute.Int("media.id", id),
	))
	defer span.End()

	startedAt := time.Now()
	raw, err := a.fetchAll(ctx, kind, id)
	metrics.DetailLoadDuration.Observe(time.Since(startedAt).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "details failed")
		metrics.DetailLoadsTotal.WithLabelValues("error").Inc()
		a.logger.Warn("detail load failed",
			slog.String("kind", string(kind)),
			slog.Int("id", id),
			slog.Int64("elapsedMs", time.Since(startedAt).Milliseconds()),
			slog.String("error", err.Error()),
		)
		return domain.DetailViewModel{}, fmt.Errorf("%w: %w", ErrDetailsFailed, err)
	}

	model := Normalize(kind, id, raw, a.limits)
	metrics.DetailLoadsTotal.WithLabelValues("ok").Inc()
	a.logger.Debug("detail load completed",
		slog.String("kind", string(kind)),
		slog.Int("id", id),
		slog.Bool("gallery", model.Gallery != nil),
		slog.Bool("cast", model.Cast != nil),
		slog.Bool("trailer", model.Trailer != nil),
		slog.Bool("reviews", model.Reviews != nil),
		slog.Bool("externalLink", model.ExternalLink != nil),
		slog.Int64("elapsedMs", time.Since(startedAt).Milliseconds()),
	)
	return model, nil
}

func (a *Aggregator) fetchAll(ctx context.Context, kind domain.MediaKind, id int) (Raw, error) {
	var raw Raw
	group, groupCtx := errgroup.WithContext(ctx)

	// Each task writes only its own field of raw; Wait orders the writes
	// before the read below.
	group.Go(func() (err error) {
		raw.Details, err = a.fetcher.Details(groupCtx, kind, id)
		return wrapFetch("details", err)
	})
	group.Go(func() (err error) {
		raw.Images, err = a.fetcher.Images(groupCtx, kind, id)
		return wrapFetch("images", err)
	})
	group.Go(func() (err error) {
		raw.Videos, err = a.fetcher.Videos(groupCtx, kind, id)
		return wrapFetch("videos", err)
	})
	group.Go(func() (err error) {
		raw.Credits, err = a.fetcher.Credits(groupCtx, kind, id)
		return wrapFetch("credits", err)
	})
	group.Go(func() (err error) {
		raw.Reviews, err = a.fetcher.Reviews(groupCtx, kind, id)
		return wrapFetch("reviews", err)
	})

	if err := group.Wait(); err != nil {
		return Raw{}, err
	}
	return raw, nil
}

func wrapFetch(resource string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("fetch %s: %w", resource, err)
}
