package segment

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/jekabolt/grbpwr-analytics/internal/entity"
	gerr "github.com/jekabolt/grbpwr-analytics/internal/errors"
	"github.com/jekabolt/grbpwr-analytics/internal/schema"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	query string
	args  []interface{}
}

// fakeQuerier records every query and answers with canned rows in call order.
// When err is set, calls from index errAt on fail with it.
type fakeQuerier struct {
	calls   []call
	results [][]Row
	err     error
	errAt   int
}

func (f *fakeQuerier) SelectContext(_ context.Context, dest interface{}, query string, args ...interface{}) error {
	f.calls = append(f.calls, call{query: query, args: args})
	if f.err != nil && len(f.calls)-1 >= f.errAt {
		return f.err
	}
	rows, ok := dest.(*[]Row)
	if !ok {
		return fmt.Errorf("unexpected dest %T", dest)
	}
	i := len(f.calls) - 1
	if i < len(f.results) {
		*rows = f.results[i]
	}
	return nil
}

func dec(v string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.RequireFromString(v), Valid: true}
}

func products(ids ...int64) []entity.SegmentRef {
	refs := make([]entity.SegmentRef, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, entity.SegmentRef{ID: id, Label: fmt.Sprintf("product %d", id)})
	}
	return refs
}

var tables = schema.New(schema.DefaultPrefix)

func TestSelections(t *testing.T) {
	t.Run("product level", func(t *testing.T) {
		cols := ProductLevelSelections("wp_wc_order_product_lookup").Columns()
		assert.Contains(t, cols, "SUM(wp_wc_order_product_lookup.product_qty) AS num_items_sold")
		assert.Contains(t, cols, "SUM(wp_wc_order_product_lookup.product_net_revenue) AS net_revenue")
		assert.Len(t, cols, 7)
	})

	t.Run("order level", func(t *testing.T) {
		sel := OrderLevelSelections("uniq_orders")
		expr, ok := sel.Expr(entity.MetricNumNewCustomers)
		require.True(t, ok)
		assert.Equal(t, "COUNT(uniq_orders.returning_customer) - SUM(uniq_orders.returning_customer)", expr)

		expr, ok = sel.Expr(entity.MetricAvgOrderValue)
		require.True(t, ok)
		assert.Contains(t, expr, "NULLIF(COUNT(uniq_orders.order_id), 0)")
	})

	t.Run("order selections cover every metric", func(t *testing.T) {
		sel := OrderSelections("wp_wc_order_stats", nil)
		for _, m := range entity.Metrics {
			_, ok := sel.Expr(m)
			assert.True(t, ok, m)
		}
	})

	t.Run("override", func(t *testing.T) {
		base := OrderSelections("os", nil)
		sel := OrderSelections("os", map[string]string{entity.MetricCoupons: "SUM(c.discount_amount)"})
		expr, _ := sel.Expr(entity.MetricCoupons)
		assert.Equal(t, "SUM(c.discount_amount)", expr)

		expr, _ = base.Expr(entity.MetricCoupons)
		assert.Equal(t, "SUM(os.coupon_total)", expr)
		assert.Len(t, sel, len(base))
	})
}

func TestResolve(t *testing.T) {
	t.Run("none", func(t *testing.T) {
		_, ok, err := Resolve(tables, entity.SegmentByNone, nil)
		assert.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("unknown", func(t *testing.T) {
		_, ok, err := Resolve(tables, entity.SegmentBy("warehouse"), nil)
		assert.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("variation needs exactly one product", func(t *testing.T) {
		for _, includes := range [][]int64{nil, {1, 2}} {
			_, _, err := Resolve(tables, entity.SegmentByVariation, includes)
			assert.True(t, errors.Is(err, gerr.ErrInvalidSegmentingVariation))
			assert.ErrorIs(t, Validate(entity.SegmentByVariation, includes), gerr.ErrInvalidSegmentingVariation)
		}
	})

	t.Run("variation", func(t *testing.T) {
		shape, ok, err := Resolve(tables, entity.SegmentByVariation, []int64{42})
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, shape.ProductBound)
		assert.Equal(t, "wp_wc_order_product_lookup.variation_id", shape.GroupBy)

		sql, args, err := shape.Where.ToSql()
		require.NoError(t, err)
		assert.Equal(t, "wp_wc_order_product_lookup.product_id = ?", sql)
		assert.Equal(t, []interface{}{int64(42)}, args)
	})

	t.Run("category", func(t *testing.T) {
		shape, _, err := Resolve(tables, entity.SegmentByCategory, nil)
		require.NoError(t, err)
		assert.Len(t, shape.Joins, 3)
		assert.Equal(t, "wp_term_taxonomy.term_taxonomy_id", shape.GroupBy)
	})

	t.Run("coupon", func(t *testing.T) {
		shape, _, err := Resolve(tables, entity.SegmentByCoupon, nil)
		require.NoError(t, err)
		assert.False(t, shape.ProductBound)
		assert.Equal(t, "wp_wc_order_coupon_lookup AS coupon_lookup ON wp_wc_order_stats.order_id = coupon_lookup.order_id", shape.Joins[0])
		expr, _ := shape.Selections.Expr(entity.MetricCoupons)
		assert.Equal(t, "SUM(coupon_lookup.discount_amount)", expr)
	})

	assert.True(t, IsProductBound(entity.SegmentByProduct))
	assert.False(t, IsProductBound(entity.SegmentByCustomerType))
	assert.False(t, IsProductBound(entity.SegmentByNone))
}

func TestTotalsWithoutDimension(t *testing.T) {
	db := &fakeQuerier{}
	s := New(db, tables)

	segs, err := s.Totals(context.Background(), Request{By: entity.SegmentByNone})
	require.NoError(t, err)
	assert.Empty(t, segs)
	assert.NotNil(t, segs)

	intervals, err := s.Intervals(context.Background(), IntervalRequest{Request: Request{By: "bogus"}})
	require.NoError(t, err)
	assert.Empty(t, intervals)
	assert.Empty(t, db.calls)
}

func TestTotalsVariationPrecondition(t *testing.T) {
	db := &fakeQuerier{}
	s := New(db, tables)

	_, err := s.Totals(context.Background(), Request{By: entity.SegmentByVariation, ProductIncludes: []int64{1, 2}})
	var perr *gerr.ParameterError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "wc_admin_reports_invalid_segmenting_variation", perr.Code)
	assert.Empty(t, db.calls)
}

func TestProductTotals(t *testing.T) {
	db := &fakeQuerier{
		results: [][]Row{
			{
				{SegmentID: 1, NumItemsSold: dec("3"), GrossRevenue: dec("30.50"), NetRevenue: dec("25")},
				{SegmentID: 3, NumItemsSold: dec("1"), GrossRevenue: dec("7")},
			},
			{
				{SegmentID: 1, OrdersCount: dec("2"), AvgItemsPerOrder: dec("1.5"), AvgOrderValue: dec("12.5"), NumReturningCustomers: dec("1"), NumNewCustomers: dec("1")},
				{SegmentID: 3, OrdersCount: dec("0"), AvgOrderValue: dec("9")},
			},
		},
	}
	s := New(db, tables)

	segs, err := s.Totals(context.Background(), Request{
		By:    entity.SegmentByProduct,
		Where: sq.Expr("wp_wc_order_stats.date_created >= ?", "2024-01-01"),
		Known: products(1, 2, 3),
	})
	require.NoError(t, err)
	require.Len(t, db.calls, 2)

	productQuery := db.calls[0].query
	assert.Contains(t, productQuery, "JOIN wp_wc_order_product_lookup ON wp_wc_order_stats.order_id = wp_wc_order_product_lookup.order_id")
	assert.Contains(t, productQuery, "GROUP BY wp_wc_order_product_lookup.product_id")
	assert.Equal(t, []interface{}{"2024-01-01"}, db.calls[0].args)

	orderQuery := db.calls[1].query
	assert.Contains(t, orderQuery, "MAX(wp_wc_order_stats.net_total) AS net_total")
	assert.Contains(t, orderQuery, "GROUP BY wp_wc_order_stats.order_id, wp_wc_order_product_lookup.product_id")
	assert.Contains(t, orderQuery, ") AS uniq_orders GROUP BY uniq_orders.segment_id")

	require.Len(t, segs, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{segs[0].ID, segs[1].ID, segs[2].ID})
	assert.Equal(t, "product 2", segs[1].Label)

	assert.Equal(t, int64(3), segs[0].Subtotals.NumItemsSold)
	assert.True(t, decimal.RequireFromString("30.5").Equal(segs[0].Subtotals.GrossRevenue))
	assert.Equal(t, int64(2), segs[0].Subtotals.OrdersCount)
	assert.True(t, decimal.RequireFromString("12.5").Equal(segs[0].Subtotals.AvgOrderValue))

	// no rows at all for product 2
	assert.Equal(t, entity.Subtotals{
		GrossRevenue:     decimal.Zero,
		NetRevenue:       decimal.Zero,
		Coupons:          decimal.Zero,
		Refunds:          decimal.Zero,
		Taxes:            decimal.Zero,
		Shipping:         decimal.Zero,
		AvgItemsPerOrder: decimal.Zero,
		AvgOrderValue:    decimal.Zero,
	}, segs[1].Subtotals)

	// averages are zero without orders
	assert.True(t, segs[2].Subtotals.AvgOrderValue.IsZero())
	assert.Equal(t, int64(1), segs[2].Subtotals.NumItemsSold)
}

func TestProductIntervalsLimit(t *testing.T) {
	db := &fakeQuerier{}
	s := New(db, tables)

	_, err := s.Intervals(context.Background(), IntervalRequest{
		Request: Request{
			By:    entity.SegmentByProduct,
			Known: products(1, 2, 3),
		},
		TimeExpr: "DATE_FORMAT(wp_wc_order_stats.date_created, '%Y-%m-%d')",
		Limit:    10,
		Offset:   10,
	})
	require.NoError(t, err)
	require.Len(t, db.calls, 2)
	for _, c := range db.calls {
		assert.Contains(t, c.query, "ORDER BY time_interval, segment_id LIMIT 30 OFFSET 30")
	}
	assert.Contains(t, db.calls[0].query, "GROUP BY time_interval, wp_wc_order_product_lookup.product_id")
	assert.Contains(t, db.calls[1].query, "GROUP BY time_interval, wp_wc_order_stats.order_id, wp_wc_order_product_lookup.product_id")
	assert.Contains(t, db.calls[1].query, "GROUP BY uniq_orders.time_interval, uniq_orders.segment_id")
}

func TestIntervalsDensify(t *testing.T) {
	buckets := []string{"2024-01", "2024-02", "2024-03", "2024-04", "2024-05"}
	db := &fakeQuerier{
		results: [][]Row{
			{
				{TimeInterval: "2024-02", SegmentID: 1, NumItemsSold: dec("2"), GrossRevenue: dec("20")},
				{TimeInterval: "2024-04", SegmentID: 3, NumItemsSold: dec("1"), GrossRevenue: dec("5")},
			},
			{
				{TimeInterval: "2024-02", SegmentID: 1, OrdersCount: dec("1"), AvgItemsPerOrder: dec("2")},
				{TimeInterval: "2024-04", SegmentID: 3, OrdersCount: dec("1"), AvgItemsPerOrder: dec("1")},
			},
		},
	}
	s := New(db, tables)

	got, err := s.Intervals(context.Background(), IntervalRequest{
		Request:  Request{By: entity.SegmentByCategory, Known: products(1, 2, 3)},
		TimeExpr: "DATE_FORMAT(wp_wc_order_stats.date_created, '%Y-%m')",
		Buckets:  buckets,
		Limit:    5,
	})
	require.NoError(t, err)
	require.Len(t, got, 5)

	records := 0
	for _, b := range buckets {
		segs := got[b]
		require.Len(t, segs, 3, b)
		for i, seg := range segs {
			assert.Equal(t, int64(i+1), seg.ID)
			assert.Len(t, seg.Subtotals.Map(), len(entity.Metrics))
			records++
		}
	}
	assert.Equal(t, 15, records)

	assert.Equal(t, int64(1), got["2024-02"][0].Subtotals.OrdersCount)
	assert.True(t, decimal.NewFromInt(20).Equal(got["2024-02"][0].Subtotals.GrossRevenue))
	assert.True(t, got["2024-03"][0].Subtotals.GrossRevenue.IsZero())
	assert.Equal(t, int64(1), got["2024-04"][2].Subtotals.NumItemsSold)

	assert.Contains(t, db.calls[0].query, "JOIN wp_term_taxonomy ON wp_term_relationships.term_taxonomy_id = wp_term_taxonomy.term_taxonomy_id")
	assert.Contains(t, db.calls[0].query, "LIMIT 15")
	assert.Contains(t, db.calls[0].args, schema.ProductCategoryTaxonomy)
}

func TestIntervalsUnknownSegmentsAppended(t *testing.T) {
	db := &fakeQuerier{
		results: [][]Row{
			{{TimeInterval: "2024-01-01", SegmentID: 9, OrdersCount: dec("1")}},
		},
	}
	s := New(db, tables)

	got, err := s.Intervals(context.Background(), IntervalRequest{
		Request:  Request{By: entity.SegmentByCoupon, Known: products(4)},
		TimeExpr: "DATE(wp_wc_order_stats.date_created)",
	})
	require.NoError(t, err)
	require.Len(t, db.calls, 1)
	assert.NotContains(t, db.calls[0].query, "LIMIT")

	segs := got["2024-01-01"]
	require.Len(t, segs, 2)
	assert.Equal(t, int64(4), segs[0].ID)
	assert.Equal(t, int64(9), segs[1].ID)
	assert.Equal(t, int64(1), segs[1].Subtotals.OrdersCount)
}

func TestCustomerTypeTotals(t *testing.T) {
	db := &fakeQuerier{
		results: [][]Row{
			{
				{SegmentID: 0, OrdersCount: dec("3"), NetRevenue: dec("60"), GrossRevenue: dec("60"), NumNewCustomers: dec("3"), NumReturningCustomers: dec("0"), AvgOrderValue: dec("20")},
				{SegmentID: 1, OrdersCount: dec("2"), NetRevenue: dec("20"), GrossRevenue: dec("20"), NumNewCustomers: dec("0"), NumReturningCustomers: dec("2"), AvgOrderValue: dec("10")},
			},
		},
	}
	s := New(db, tables)

	segs, err := s.Totals(context.Background(), Request{
		By: entity.SegmentByCustomerType,
		Known: []entity.SegmentRef{
			{ID: 0, Label: "New customer"},
			{ID: 1, Label: "Returning customer"},
		},
	})
	require.NoError(t, err)
	require.Len(t, db.calls, 1)
	assert.Contains(t, db.calls[0].query, "GROUP BY wp_wc_order_stats.returning_customer")
	assert.False(t, strings.Contains(db.calls[0].query, "uniq_orders"))

	require.Len(t, segs, 2)
	assert.Equal(t, "New customer", segs[0].Label)
	assert.Equal(t, int64(3), segs[0].Subtotals.OrdersCount)
	assert.True(t, decimal.NewFromInt(60).Equal(segs[0].Subtotals.NetRevenue))
	assert.Equal(t, int64(3), segs[0].Subtotals.NumNewCustomers)

	assert.Equal(t, "Returning customer", segs[1].Label)
	assert.Equal(t, int64(2), segs[1].Subtotals.NumReturningCustomers)
	assert.Equal(t, int64(0), segs[1].Subtotals.NumNewCustomers)

	total := segs[0].Subtotals.GrossRevenue.Add(segs[1].Subtotals.GrossRevenue)
	assert.True(t, decimal.NewFromInt(80).Equal(total))
}

func TestQueryError(t *testing.T) {
	boom := errors.New("connection refused")
	s := New(&fakeQuerier{err: boom}, tables)

	_, err := s.Totals(context.Background(), Request{By: entity.SegmentByProduct, Known: products(1)})
	assert.ErrorIs(t, err, boom)
}

func TestOrderLevelQueryErrorFailsSegmentation(t *testing.T) {
	boom := errors.New("lock wait timeout")
	productRows := []Row{{TimeInterval: "2024-01-01", SegmentID: 1, GrossRevenue: dec("10")}}

	t.Run("totals", func(t *testing.T) {
		db := &fakeQuerier{results: [][]Row{productRows}, err: boom, errAt: 1}
		segs, err := New(db, tables).Totals(context.Background(), Request{
			By:    entity.SegmentByProduct,
			Known: products(1),
		})
		require.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "order_level_totals")
		assert.Nil(t, segs)
		assert.Len(t, db.calls, 2)
	})

	t.Run("intervals", func(t *testing.T) {
		db := &fakeQuerier{results: [][]Row{productRows}, err: boom, errAt: 1}
		got, err := New(db, tables).Intervals(context.Background(), IntervalRequest{
			Request:  Request{By: entity.SegmentByProduct, Known: products(1)},
			TimeExpr: "DATE(wp_wc_order_stats.date_created)",
			Buckets:  []string{"2024-01-01"},
			Limit:    1,
		})
		require.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "order_level_intervals")
		assert.Nil(t, got)
		assert.Len(t, db.calls, 2)
	})
}

// mysqlLikeQuerier answers with canned rows sorted by bucket and segment id,
// keeping only segment ids bound by an IN restriction on column and cutting
// the result at the query's LIMIT.
type mysqlLikeQuerier struct {
	column  string
	results [][]Row
	calls   int
}

var limitRe = regexp.MustCompile(`LIMIT (\d+)`)

func (f *mysqlLikeQuerier) SelectContext(_ context.Context, dest interface{}, query string, args ...interface{}) error {
	rows := f.results[f.calls]
	f.calls++

	if strings.Contains(query, f.column+" IN (") {
		only := map[int64]bool{}
		for _, a := range args {
			if id, ok := a.(int64); ok {
				only[id] = true
			}
		}
		var kept []Row
		for _, r := range rows {
			if only[r.SegmentID] {
				kept = append(kept, r)
			}
		}
		rows = kept
	}
	if m := limitRe.FindStringSubmatch(query); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return err
		}
		if n < len(rows) {
			rows = rows[:n]
		}
	}
	*dest.(*[]Row) = rows
	return nil
}

func TestIncludesRestrictSegments(t *testing.T) {
	// order 1 holds products 501 and 502, the report includes only 502
	productRows := []Row{
		{TimeInterval: "2024-01-01", SegmentID: 501, NumItemsSold: dec("1"), GrossRevenue: dec("4")},
		{TimeInterval: "2024-01-01", SegmentID: 502, NumItemsSold: dec("1"), GrossRevenue: dec("6")},
	}
	orderRows := []Row{
		{TimeInterval: "2024-01-01", SegmentID: 501, OrdersCount: dec("1")},
		{TimeInterval: "2024-01-01", SegmentID: 502, OrdersCount: dec("1")},
	}
	req := Request{
		By:              entity.SegmentByProduct,
		ProductIncludes: []int64{502},
		Known:           products(502),
		Only:            []int64{502},
	}

	t.Run("intervals", func(t *testing.T) {
		db := &mysqlLikeQuerier{column: tables.ProductLookup + ".product_id", results: [][]Row{productRows, orderRows}}
		got, err := New(db, tables).Intervals(context.Background(), IntervalRequest{
			Request:  req,
			TimeExpr: "DATE(wp_wc_order_stats.date_created)",
			Buckets:  []string{"2024-01-01"},
			Limit:    1,
		})
		require.NoError(t, err)

		segs := got["2024-01-01"]
		require.Len(t, segs, 1)
		assert.Equal(t, int64(502), segs[0].ID)
		assert.Equal(t, "6", segs[0].Subtotals.GrossRevenue.String())
		assert.Equal(t, int64(1), segs[0].Subtotals.OrdersCount)
	})

	t.Run("totals match intervals", func(t *testing.T) {
		db := &mysqlLikeQuerier{column: tables.ProductLookup + ".product_id", results: [][]Row{productRows, orderRows}}
		segs, err := New(db, tables).Totals(context.Background(), req)
		require.NoError(t, err)

		require.Len(t, segs, 1)
		assert.Equal(t, int64(502), segs[0].ID)
		assert.Equal(t, "6", segs[0].Subtotals.GrossRevenue.String())
	})

	t.Run("query", func(t *testing.T) {
		db := &fakeQuerier{}
		_, err := New(db, tables).Totals(context.Background(), Request{
			By:    entity.SegmentByCoupon,
			Known: products(7),
			Only:  []int64{7},
		})
		require.NoError(t, err)
		require.Len(t, db.calls, 1)
		assert.Contains(t, db.calls[0].query, "coupon_lookup.coupon_id IN (?)")
		assert.Contains(t, db.calls[0].args, int64(7))
	})
}

func TestRowSubtotals(t *testing.T) {
	st := Row{OrdersCount: dec("0"), AvgOrderValue: dec("15"), Taxes: dec("1.25")}.Subtotals()
	assert.True(t, st.AvgOrderValue.IsZero())
	assert.True(t, decimal.RequireFromString("1.25").Equal(st.Taxes))
	assert.True(t, st.Shipping.IsZero())
}
