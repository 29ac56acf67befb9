package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sifan077/LinkTrace/internal/app/model"
	"github.com/sifan077/LinkTrace/internal/app/repository"
	"github.com/sifan077/LinkTrace/internal/infra/metrics"
	"go.uber.org/zap"
)

// GeoEnricher resolves a network address or a coordinate pair into a
// best-effort location. Implementations call external providers and are
// expected to fail; the recorder treats every failure as "no location".
type GeoEnricher interface {
	Lookup(ctx context.Context, address string) (model.Location, error)
	ReverseLookup(ctx context.Context, lat, lon float64) (model.Location, error)
}

// VisitRecorder turns visit events into persisted history entries. It owns
// address normalization and geolocation enrichment.
type VisitRecorder struct {
	logger   *zap.Logger
	visits   repository.VisitRepository
	enricher GeoEnricher
}

// NewVisitRecorder creates a recorder writing through the given repository.
func NewVisitRecorder(logger *zap.Logger, visits repository.VisitRepository, enricher GeoEnricher) *VisitRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VisitRecorder{
		logger:   logger,
		visits:   visits,
		enricher: enricher,
	}
}

// Record appends one visit. Enrichment failure degrades to an "Unknown"
// location; the visit is stored regardless. A link deleted between
// resolution and recording makes this a silent no-op.
func (r *VisitRecorder) Record(ctx context.Context, event model.VisitEvent) error {
	address := NormalizeAddress(event.Address)

	visit := &model.Visit{
		LinkCode:  event.LinkCode,
		Timestamp: event.OccurredAt,
		Address:   address,
		UserAgent: event.UserAgent,
		Location:  r.enrich(ctx, address, event.Lat, event.Lon),
	}

	if err := r.visits.Append(ctx, visit); err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			// Lost the race against deletion or the reaper. Expected.
			r.logger.Debug("visit dropped, link gone",
				zap.String("link_code", event.LinkCode))
			return nil
		}
		return fmt.Errorf("record visit: %w", err)
	}
	return nil
}

func (r *VisitRecorder) enrich(ctx context.Context, address string, lat, lon *float64) *model.Location {
	var (
		loc model.Location
		err error
	)
	if lat != nil && lon != nil {
		loc, err = r.enricher.ReverseLookup(ctx, *lat, *lon)
		loc.Lat, loc.Lon = lat, lon
	} else {
		loc, err = r.enricher.Lookup(ctx, address)
	}

	if err != nil {
		metrics.GeoLookupFailures.Inc()
		r.logger.Debug("geolocation lookup failed",
			zap.String("address", address),
			zap.Error(err))
		unresolved := unknownLocation()
		unresolved.Lat, unresolved.Lon = lat, lon
		return unresolved
	}
	if !loc.Resolved() && lat == nil {
		return nil
	}
	return &loc
}

func unknownLocation() *model.Location {
	return &model.Location{City: "Unknown", Region: "Unknown", Country: "Unknown"}
}

// NormalizeAddress reduces a raw client address to a single plain IP: the
// first entry of a proxy chain, with any IPv4-mapped IPv6 prefix stripped.
func NormalizeAddress(raw string) string {
	addr := strings.TrimSpace(raw)
	if i := strings.IndexByte(addr, ','); i >= 0 {
		addr = strings.TrimSpace(addr[:i])
	}
	addr = strings.TrimPrefix(addr, "::ffff:")
	if addr == "" {
		addr = "unknown"
	}
	return addr
}
