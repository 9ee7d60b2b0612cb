package segment

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jekabolt/grbpwr-analytics/internal/entity"
)

// uniqueOrders aliases the derived table holding each order once per segment.
const uniqueOrders = "uniq_orders"

// productLevel sums line item metrics per segment, and per bucket when
// timeExpr is set.
func (s *Segmenter) productLevel(shape *Shape, where sq.Sqlizer, timeExpr string) sq.SelectBuilder {
	var cols []string
	if timeExpr != "" {
		cols = append(cols, timeExpr+" AS time_interval")
	}
	cols = append(cols, shape.GroupBy+" AS segment_id")
	cols = append(cols, ProductLevelSelections(s.tables.ProductLookup).Columns()...)

	b := s.scoped(sq.Select(cols...).From(s.tables.OrderStats), shape, where)
	if timeExpr != "" {
		return b.GroupBy("time_interval", shape.GroupBy)
	}
	return b.GroupBy(shape.GroupBy)
}

// orderLevel computes per-order metrics per segment over the joined rows
// collapsed to one row per order and segment.
func (s *Segmenter) orderLevel(shape *Shape, where sq.Sqlizer, timeExpr string) sq.SelectBuilder {
	os := s.tables.OrderStats

	var inner []string
	if timeExpr != "" {
		inner = append(inner, timeExpr+" AS time_interval")
	}
	inner = append(inner,
		os+".order_id",
		shape.GroupBy+" AS segment_id",
		fmt.Sprintf("MAX(%s.num_items_sold) AS num_items_sold", os),
		fmt.Sprintf("MAX(%s.net_total) AS net_total", os),
		fmt.Sprintf("MAX(%s.refund_total) AS refund_total", os),
		fmt.Sprintf("MAX(%s.returning_customer) AS returning_customer", os),
	)
	dedup := s.scoped(sq.Select(inner...).From(os), shape, where)
	if timeExpr != "" {
		dedup = dedup.GroupBy("time_interval", os+".order_id", shape.GroupBy)
	} else {
		dedup = dedup.GroupBy(os+".order_id", shape.GroupBy)
	}

	var outer []string
	if timeExpr != "" {
		outer = append(outer, uniqueOrders+".time_interval AS time_interval")
	}
	outer = append(outer, uniqueOrders+".segment_id AS segment_id")
	outer = append(outer, OrderLevelSelections(uniqueOrders).Columns()...)

	b := sq.Select(outer...).FromSelect(dedup, uniqueOrders)
	if timeExpr != "" {
		return b.GroupBy(uniqueOrders+".time_interval", uniqueOrders+".segment_id")
	}
	return b.GroupBy(uniqueOrders + ".segment_id")
}

func (s *Segmenter) productTotals(ctx context.Context, shape *Shape, req Request) ([]entity.Segment, error) {
	products, err := s.selectRows(ctx, "product_level_totals", s.productLevel(shape, req.Where, ""))
	if err != nil {
		return nil, err
	}
	orders, err := s.selectRows(ctx, "order_level_totals", s.orderLevel(shape, req.Where, ""))
	if err != nil {
		return nil, err
	}
	return mergeTotals(req.Known,
		partial{rows: products, apply: applyProductLevel},
		partial{rows: orders, apply: applyOrderLevel},
	), nil
}

func (s *Segmenter) productIntervals(ctx context.Context, shape *Shape, req IntervalRequest) (map[string][]entity.Segment, error) {
	products, err := s.selectRows(ctx, "product_level_intervals", paged(s.productLevel(shape, req.Where, req.TimeExpr), req))
	if err != nil {
		return nil, err
	}
	orders, err := s.selectRows(ctx, "order_level_intervals", paged(s.orderLevel(shape, req.Where, req.TimeExpr), req))
	if err != nil {
		return nil, err
	}
	return mergeIntervals(req.Buckets, req.Known,
		partial{rows: products, apply: applyProductLevel},
		partial{rows: orders, apply: applyOrderLevel},
	), nil
}
