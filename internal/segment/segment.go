// Package segment breaks orders stats down by a dimension: product,
// variation, category, coupon or customer type.
package segment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jekabolt/grbpwr-analytics/internal/entity"
	"github.com/jekabolt/grbpwr-analytics/internal/observability"
	"github.com/jekabolt/grbpwr-analytics/internal/schema"
)

// Querier runs a query and scans all result rows into dest.
type Querier interface {
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// Request describes a totals segmentation.
type Request struct {
	By              entity.SegmentBy
	ProductIncludes []int64
	// Where restricts the order stats rows: time range and report filters.
	Where sq.Sqlizer
	// Known is every segment that must appear in the result, in output order.
	Known []entity.SegmentRef
	// Only restricts aggregation to these segment ids. Includes filters
	// select whole orders, so without it co-purchased products, coupons or
	// categories of those orders come back as extra segments.
	Only []int64
}

// IntervalRequest describes a segmentation per time bucket.
type IntervalRequest struct {
	Request
	// TimeExpr buckets an order stats row, e.g. DATE_FORMAT(date_created, '%Y-%m-%d').
	TimeExpr string
	// Buckets lists the bucket ids of the requested page in output order.
	Buckets []string
	// Limit and Offset page over buckets. They are multiplied by the number
	// of known segments since each bucket yields one row per segment.
	Limit  uint64
	Offset uint64
}

// Segmenter runs segmentation queries against the order lookup tables.
type Segmenter struct {
	db     Querier
	tables schema.Tables
}

// New returns a Segmenter reading the given tables.
func New(db Querier, tables schema.Tables) *Segmenter {
	return &Segmenter{
		db:     db,
		tables: tables,
	}
}

// Totals returns one segment per known dimension value over the whole range.
// An empty or unknown dimension yields an empty list without querying.
func (s *Segmenter) Totals(ctx context.Context, req Request) ([]entity.Segment, error) {
	shape, ok, err := Resolve(s.tables, req.By, req.ProductIncludes)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []entity.Segment{}, nil
	}
	restrict(shape, req.Only)
	if shape.ProductBound {
		return s.productTotals(ctx, shape, req)
	}
	return s.orderTotals(ctx, shape, req)
}

// Intervals returns the segments of every requested bucket keyed by bucket id.
// An empty or unknown dimension yields an empty map without querying.
func (s *Segmenter) Intervals(ctx context.Context, req IntervalRequest) (map[string][]entity.Segment, error) {
	shape, ok, err := Resolve(s.tables, req.By, req.ProductIncludes)
	if err != nil {
		return nil, err
	}
	if !ok {
		return map[string][]entity.Segment{}, nil
	}
	restrict(shape, req.Only)
	if shape.ProductBound {
		return s.productIntervals(ctx, shape, req)
	}
	return s.orderIntervals(ctx, shape, req)
}

// restrict limits shape to segment ids in only. Interval paging relies on
// it: a bucket may yield at most one row per known segment.
func restrict(shape *Shape, only []int64) {
	if len(only) == 0 {
		return
	}
	in := sq.Eq{shape.GroupBy: only}
	if shape.Where == nil {
		shape.Where = in
		return
	}
	shape.Where = sq.And{shape.Where, in}
}

// scoped adds the dimension joins and every restriction to b.
func (s *Segmenter) scoped(b sq.SelectBuilder, shape *Shape, where sq.Sqlizer) sq.SelectBuilder {
	for _, j := range shape.Joins {
		b = b.Join(j)
	}
	if where != nil {
		b = b.Where(where)
	}
	if shape.Where != nil {
		b = b.Where(shape.Where)
	}
	return b
}

// paged orders interval rows and applies the page window scaled by the
// number of segments.
func paged(b sq.SelectBuilder, req IntervalRequest) sq.SelectBuilder {
	b = b.OrderBy("time_interval", "segment_id")
	if req.Limit == 0 {
		return b
	}
	n := uint64(len(req.Known))
	if n == 0 {
		n = 1
	}
	b = b.Limit(req.Limit * n)
	if req.Offset > 0 {
		b = b.Offset(req.Offset * n)
	}
	return b
}

func (s *Segmenter) selectRows(ctx context.Context, kind string, b sq.SelectBuilder) ([]Row, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build %s query: %w", kind, err)
	}

	start := time.Now()
	rows := []Row{}
	err = s.db.SelectContext(ctx, &rows, query, args...)
	observability.QueryLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.QueryErrors.WithLabelValues(kind).Inc()
		return nil, fmt.Errorf("can't run %s query: %w", kind, err)
	}

	slog.Default().DebugContext(ctx, "segment query",
		slog.String("kind", kind),
		slog.Int("rows", len(rows)),
		slog.Duration("took", time.Since(start)),
	)
	return rows, nil
}
