package segment

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jekabolt/grbpwr-analytics/internal/entity"
)

func (s *Segmenter) orderQuery(shape *Shape, where sq.Sqlizer, timeExpr string) sq.SelectBuilder {
	var cols []string
	if timeExpr != "" {
		cols = append(cols, timeExpr+" AS time_interval")
	}
	cols = append(cols, shape.GroupBy+" AS segment_id")
	cols = append(cols, shape.Selections.Columns()...)

	b := s.scoped(sq.Select(cols...).From(s.tables.OrderStats), shape, where)
	if timeExpr != "" {
		return b.GroupBy("time_interval", shape.GroupBy)
	}
	return b.GroupBy(shape.GroupBy)
}

func (s *Segmenter) orderTotals(ctx context.Context, shape *Shape, req Request) ([]entity.Segment, error) {
	rows, err := s.selectRows(ctx, "order_totals", s.orderQuery(shape, req.Where, ""))
	if err != nil {
		return nil, err
	}
	return mergeTotals(req.Known, partial{rows: rows, apply: applyAll}), nil
}

func (s *Segmenter) orderIntervals(ctx context.Context, shape *Shape, req IntervalRequest) (map[string][]entity.Segment, error) {
	rows, err := s.selectRows(ctx, "order_intervals", paged(s.orderQuery(shape, req.Where, req.TimeExpr), req))
	if err != nil {
		return nil, err
	}
	return mergeIntervals(req.Buckets, req.Known, partial{rows: rows, apply: applyAll}), nil
}
