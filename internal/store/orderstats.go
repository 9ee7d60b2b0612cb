package store

import (
	"context"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	"github.com/jekabolt/grbpwr-analytics/internal/dependency"
	"github.com/jekabolt/grbpwr-analytics/internal/entity"
	"github.com/jekabolt/grbpwr-analytics/internal/segment"
	"golang.org/x/sync/errgroup"
)

type ordersStatsStore struct {
	*MYSQLStore
}

// OrdersStats returns an object implementing the orders stats interface
func (ms *MYSQLStore) OrdersStats() dependency.OrdersStats {
	return &ordersStatsStore{
		MYSQLStore: ms,
	}
}

// GetOrdersStats computes totals over [After, Before] and one page of dense
// intervals, and attaches the segments of the query's dimension to both.
func (s *ordersStatsStore) GetOrdersStats(ctx context.Context, q *entity.ReportQuery) (*entity.OrdersStats, error) {
	if err := segment.Validate(q.SegmentBy, q.ProductIncludes); err != nil {
		return nil, err
	}

	filters, err := filterWhere(s.tables, q)
	if err != nil {
		return nil, err
	}
	where := and(rangeWhere(s.tables, q.After, q.Before), filters)

	all := listBuckets(q.After, q.Before, q.Interval)
	page, pages := pageBuckets(all, q.Order, q.Page, q.PerPage)

	stats := &entity.OrdersStats{
		Totals:    entity.Totals{Segments: []entity.Segment{}},
		Intervals: make([]entity.Interval, 0, len(page)),
		Total:     len(all),
		Pages:     pages,
		Page:      q.Page,
	}

	expr := timeExpr(q.Interval, s.tables.OrderStats+".date_created")
	var pageWhere sq.Sqlizer
	ids := make([]string, 0, len(page))
	if len(page) > 0 {
		from, to := window(page)
		pageWhere = and(rangeWhere(s.tables, from, to), filters)
		for _, b := range page {
			ids = append(ids, b.ID)
		}
	}

	var (
		byBucket = map[string]entity.Subtotals{}
		segments = map[string][]entity.Segment{}
		known    []entity.SegmentRef
	)
	err = s.fetch(ctx,
		func(ctx context.Context) error {
			var err error
			stats.Totals.Subtotals, err = s.totals(ctx, where)
			if err != nil {
				return fmt.Errorf("can't get totals: %w", err)
			}
			return nil
		},
		func(ctx context.Context) error {
			if len(page) == 0 {
				return nil
			}
			var err error
			byBucket, err = s.intervals(ctx, pageWhere, expr)
			if err != nil {
				return fmt.Errorf("can't get intervals: %w", err)
			}
			return nil
		},
		func(ctx context.Context) error {
			var err error
			known, err = s.KnownSegments(ctx, q)
			if err != nil {
				return err
			}
			only := segmentIncludes(q)

			seg := segment.New(s.db, s.tables)
			stats.Totals.Segments, err = seg.Totals(ctx, segment.Request{
				By:              q.SegmentBy,
				ProductIncludes: q.ProductIncludes,
				Where:           where,
				Known:           known,
				Only:            only,
			})
			if err != nil {
				return fmt.Errorf("can't get totals segments: %w", err)
			}
			if len(page) == 0 {
				return nil
			}
			segments, err = seg.Intervals(ctx, segment.IntervalRequest{
				Request: segment.Request{
					By:              q.SegmentBy,
					ProductIncludes: q.ProductIncludes,
					Where:           pageWhere,
					Known:           known,
					Only:            only,
				},
				TimeExpr: expr,
				Buckets:  ids,
				Limit:    uint64(len(page)),
			})
			if err != nil {
				return fmt.Errorf("can't get interval segments: %w", err)
			}
			return nil
		},
	)
	if err != nil {
		return nil, err
	}

	for _, b := range page {
		st, ok := byBucket[b.ID]
		if !ok {
			st = segment.Row{}.Subtotals()
		}
		segs, ok := segments[b.ID]
		if !ok {
			segs = []entity.Segment{}
		}
		stats.Intervals = append(stats.Intervals, entity.Interval{
			Interval:  b.ID,
			DateStart: b.Start,
			DateEnd:   b.End,
			Subtotals: entity.IntervalSubtotals{Subtotals: st, Segments: segs},
		})
	}

	slog.Default().DebugContext(ctx, "orders stats",
		slog.String("segment_by", string(q.SegmentBy)),
		slog.Int("intervals", len(stats.Intervals)),
		slog.Int("segments", len(known)),
	)
	return stats, nil
}

// fetch runs independent reads. Outside a transaction they run in parallel
// across pooled connections, the first error cancels the rest.
func (s *ordersStatsStore) fetch(ctx context.Context, fns ...func(context.Context) error) error {
	if s.InTx() {
		for _, fn := range fns {
			if err := fn(ctx); err != nil {
				return err
			}
		}
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, fn := range fns {
		fn := fn
		g.Go(func() error { return fn(ctx) })
	}
	return g.Wait()
}

func (s *ordersStatsStore) totals(ctx context.Context, where sq.Sqlizer) (entity.Subtotals, error) {
	query, args, err := sq.Select(segment.OrderSelections(s.tables.OrderStats, nil).Columns()...).
		From(s.tables.OrderStats).
		Where(where).
		ToSql()
	if err != nil {
		return entity.Subtotals{}, err
	}

	rows := []segment.Row{}
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return entity.Subtotals{}, err
	}
	if len(rows) == 0 {
		return segment.Row{}.Subtotals(), nil
	}
	return rows[0].Subtotals(), nil
}

func (s *ordersStatsStore) intervals(ctx context.Context, where sq.Sqlizer, expr string) (map[string]entity.Subtotals, error) {
	cols := append([]string{expr + " AS time_interval"}, segment.OrderSelections(s.tables.OrderStats, nil).Columns()...)
	query, args, err := sq.Select(cols...).
		From(s.tables.OrderStats).
		Where(where).
		GroupBy("time_interval").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows := []segment.Row{}
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make(map[string]entity.Subtotals, len(rows))
	for _, r := range rows {
		out[r.TimeInterval] = r.Subtotals()
	}
	return out, nil
}
