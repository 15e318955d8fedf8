// Package registry aggregates every configuration of every client into a
// single Collection, tolerating the common case where a client has no
// configuration of a given type.
package registry

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

	"github.com/saturnino-fabrica-de-software/rekko-console/internal/domain"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/metrics"
)

const DefaultConcurrency = 16

// Source is the read side of the configuration service.
type Source interface {
	ListClients(ctx context.Context, forceRefresh bool) ([]domain.Client, error)
	// GetConfig returns domain.ErrConfigNotFound when the client has no
	// configuration of type t.
	GetConfig(ctx context.Context, t domain.ConfigType, clientID int64, forceRefresh bool) (domain.Config, error)
}

type Loader struct {
	source      Source
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	concurrency int
}

type LoaderOption func(*Loader)

// WithConcurrency caps the number of probes in flight.
func WithConcurrency(n int) LoaderOption {
	return func(l *Loader) {
		if n > 0 {
			l.concurrency = n
		}
	}
}

func WithMetrics(m *metrics.Metrics) LoaderOption {
	return func(l *Loader) {
		l.metrics = m
	}
}

func NewLoader(source Source, logger *slog.Logger, opts ...LoaderOption) *Loader {
	l := &Loader{
		source:      source,
		logger:      logger.With("component", "registry"),
		tracer:      otel.Tracer("rekko-console/registry"),
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type probe struct {
	clientID int64
	t        domain.ConfigType
	cfg      domain.Config
	err      error
}

// LoadAll fetches the client list and probes every (client, type) pair.
// Only a failure to list clients fails the load: a missing pair contributes
// nothing and any other per-pair failure is logged and skipped. Result
// order is client order, then type order, whatever order probes finish in.
func (l *Loader) LoadAll(ctx context.Context, forceRefresh bool) (coll *Collection, err error) {
	start := time.Now()
	ctx, span := l.tracer.Start(ctx, "registry.LoadAll",
		trace.WithAttributes(attribute.Bool("force_refresh", forceRefresh)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		l.metrics.ObserveLoad(start, err)
	}()

	clients, err := l.source.ListClients(ctx, forceRefresh)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}

	types := domain.ConfigTypes()
	probes := make([]probe, len(clients)*len(types))

	// Plain group: a failed probe must not cancel its siblings.
	var g errgroup.Group
	g.SetLimit(l.concurrency)

	for i, client := range clients {
		for j, t := range types {
			slot := &probes[i*len(types)+j]
			slot.clientID = client.ID
			slot.t = t

			g.Go(func() error {
				slot.cfg, slot.err = l.source.GetConfig(ctx, slot.t, slot.clientID, forceRefresh)
				return nil
			})
		}
	}
	_ = g.Wait()

	report := LoadReport{Clients: len(clients), Probes: len(probes)}
	configs := make([]domain.Config, 0, len(probes))

	for _, p := range probes {
		switch {
		case errors.Is(p.err, domain.ErrConfigNotFound), p.err == nil && p.cfg == nil:
			report.NotFound++
			l.metrics.ObserveProbe(string(p.t), metrics.OutcomeNotFound)
			l.logger.DebugContext(ctx, "no configuration for client",
				slog.Int64("client_id", p.clientID),
				slog.String("type", string(p.t)),
			)
		case p.err != nil:
			report.Failed++
			l.metrics.ObserveProbe(string(p.t), metrics.OutcomeFailed)
			l.logger.WarnContext(ctx, "configuration probe failed, skipping",
				slog.Int64("client_id", p.clientID),
				slog.String("type", string(p.t)),
				slog.Any("error", p.err),
			)
		default:
			report.Found++
			l.metrics.ObserveProbe(string(p.t), metrics.OutcomeFound)
			configs = append(configs, p.cfg)
		}
	}

	coll = NewCollection(clients, configs)
	coll.report = report

	span.SetAttributes(
		attribute.Int("clients", report.Clients),
		attribute.Int("probes", report.Probes),
		attribute.Int("found", report.Found),
		attribute.Int("failed", report.Failed),
	)
	l.logger.InfoContext(ctx, "registry loaded",
		slog.Int("clients", report.Clients),
		slog.Int("probes", report.Probes),
		slog.Int("found", report.Found),
		slog.Int("not_found", report.NotFound),
		slog.Int("failed", report.Failed),
		slog.Duration("elapsed", time.Since(start)),
	)

	return coll, nil
}
