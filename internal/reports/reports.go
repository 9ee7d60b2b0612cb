// Package reports serves orders stats reports, reading through the report
// cache.
package reports

import (
	"context"
	"log/slog"

	"github.com/jekabolt/grbpwr-analytics/internal/dependency"
	"github.com/jekabolt/grbpwr-analytics/internal/entity"
	"github.com/jekabolt/grbpwr-analytics/internal/form"
	"github.com/jekabolt/grbpwr-analytics/internal/observability"
	"github.com/jekabolt/grbpwr-analytics/internal/reportcache"
)

// Config holds request defaults.
type Config struct {
	DefaultInterval  string `mapstructure:"default_interval"`
	DefaultPerPage   int    `mapstructure:"default_per_page"`
	MaxPerPage       int    `mapstructure:"max_per_page"`
	DefaultRangeDays int    `mapstructure:"default_range_days"`
}

// Defaults converts c into request defaults. Zero fields fall back to
// form.DefaultDefaults.
func (c Config) Defaults() form.Defaults {
	return form.Defaults{
		Interval:   entity.Granularity(c.DefaultInterval),
		PerPage:    c.DefaultPerPage,
		MaxPerPage: c.MaxPerPage,
		RangeDays:  c.DefaultRangeDays,
	}
}

type Service struct {
	store dependency.OrdersStats
	cache dependency.ReportCache
}

// New returns a report service. cache may be nil.
func New(store dependency.OrdersStats, cache dependency.ReportCache) *Service {
	return &Service{
		store: store,
		cache: cache,
	}
}

type cacheKey struct {
	Report string              `json:"report"`
	Query  *entity.ReportQuery `json:"query"`
}

// OrdersStats returns the orders stats report for q. Cache failures are
// logged and never fail the report.
func (s *Service) OrdersStats(ctx context.Context, q *entity.ReportQuery) (*entity.OrdersStats, error) {
	key, err := reportcache.Key(cacheKey{Report: "orders_stats", Query: q})
	if err != nil {
		slog.Default().WarnContext(ctx, "can't build report cache key", slog.String("err", err.Error()))
	}

	if key != "" && s.cache != nil {
		var cached entity.OrdersStats
		found, err := s.cache.Get(ctx, key, &cached)
		switch {
		case err != nil:
			observability.CacheLookups.WithLabelValues("error").Inc()
			slog.Default().WarnContext(ctx, "report cache get failed", slog.String("err", err.Error()))
		case found:
			observability.CacheLookups.WithLabelValues("hit").Inc()
			return &cached, nil
		default:
			observability.CacheLookups.WithLabelValues("miss").Inc()
		}
	}

	stats, err := s.store.GetOrdersStats(ctx, q)
	if err != nil {
		return nil, err
	}
	observability.ReportCount.WithLabelValues(segmentLabel(q.SegmentBy)).Inc()

	if key != "" && s.cache != nil {
		if err := s.cache.Set(ctx, key, stats); err != nil {
			slog.Default().WarnContext(ctx, "report cache set failed", slog.String("err", err.Error()))
		}
	}
	return stats, nil
}

func segmentLabel(by entity.SegmentBy) string {
	switch by {
	case entity.SegmentByProduct, entity.SegmentByVariation, entity.SegmentByCategory,
		entity.SegmentByCoupon, entity.SegmentByCustomerType:
		return string(by)
	}
	return "none"
}
