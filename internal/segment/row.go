package segment

import (
	"github.com/jekabolt/grbpwr-analytics/internal/entity"
	"github.com/shopspring/decimal"
)

// Row is one aggregated result row. A row carries either product level
// metrics, order level metrics or both, depending on the query it came from;
// absent metrics scan as NULL.
type Row struct {
	TimeInterval string `db:"time_interval"`
	SegmentID    int64  `db:"segment_id"`

	NumItemsSold decimal.NullDecimal `db:"num_items_sold"`
	GrossRevenue decimal.NullDecimal `db:"gross_revenue"`
	Coupons      decimal.NullDecimal `db:"coupons"`
	Refunds      decimal.NullDecimal `db:"refunds"`
	Taxes        decimal.NullDecimal `db:"taxes"`
	Shipping     decimal.NullDecimal `db:"shipping"`
	NetRevenue   decimal.NullDecimal `db:"net_revenue"`

	OrdersCount           decimal.NullDecimal `db:"orders_count"`
	AvgItemsPerOrder      decimal.NullDecimal `db:"avg_items_per_order"`
	AvgOrderValue         decimal.NullDecimal `db:"avg_order_value"`
	NumReturningCustomers decimal.NullDecimal `db:"num_returning_customers"`
	NumNewCustomers       decimal.NullDecimal `db:"num_new_customers"`
}

// applyFunc copies the metrics a query produced into dst.
type applyFunc func(dst *entity.Subtotals, r Row)

func applyProductLevel(dst *entity.Subtotals, r Row) {
	dst.NumItemsSold = toInt(r.NumItemsSold)
	dst.GrossRevenue = toDecimal(r.GrossRevenue)
	dst.Coupons = toDecimal(r.Coupons)
	dst.Refunds = toDecimal(r.Refunds)
	dst.Taxes = toDecimal(r.Taxes)
	dst.Shipping = toDecimal(r.Shipping)
	dst.NetRevenue = toDecimal(r.NetRevenue)
}

func applyOrderLevel(dst *entity.Subtotals, r Row) {
	dst.OrdersCount = toInt(r.OrdersCount)
	dst.AvgItemsPerOrder = toDecimal(r.AvgItemsPerOrder)
	dst.AvgOrderValue = toDecimal(r.AvgOrderValue)
	dst.NumReturningCustomers = toInt(r.NumReturningCustomers)
	dst.NumNewCustomers = toInt(r.NumNewCustomers)
}

func applyAll(dst *entity.Subtotals, r Row) {
	applyProductLevel(dst, r)
	applyOrderLevel(dst, r)
}

// Subtotals converts the row into report subtotals, NULL metrics become zero.
func (r Row) Subtotals() entity.Subtotals {
	s := zeroSubtotals()
	applyAll(&s, r)
	finalize(&s)
	return s
}

func zeroSubtotals() entity.Subtotals {
	return entity.Subtotals{
		GrossRevenue:     decimal.Zero,
		NetRevenue:       decimal.Zero,
		Coupons:          decimal.Zero,
		Refunds:          decimal.Zero,
		Taxes:            decimal.Zero,
		Shipping:         decimal.Zero,
		AvgItemsPerOrder: decimal.Zero,
		AvgOrderValue:    decimal.Zero,
	}
}

// finalize zeroes the averages of groups without orders.
func finalize(s *entity.Subtotals) {
	if s.OrdersCount == 0 {
		s.AvgItemsPerOrder = decimal.Zero
		s.AvgOrderValue = decimal.Zero
	}
}

func toDecimal(d decimal.NullDecimal) decimal.Decimal {
	if !d.Valid {
		return decimal.Zero
	}
	return d.Decimal
}

func toInt(d decimal.NullDecimal) int64 {
	if !d.Valid {
		return 0
	}
	return d.Decimal.IntPart()
}
