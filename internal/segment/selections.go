package segment

import (
	"fmt"

	"github.com/jekabolt/grbpwr-analytics/internal/entity"
)

// Selection is a single aggregated output column.
type Selection struct {
	Metric string
	Expr   string
}

// Selections is an ordered set of aggregated output columns.
type Selections []Selection

// Columns renders the selections as "expr AS metric" select columns.
func (s Selections) Columns() []string {
	cols := make([]string, 0, len(s))
	for _, sel := range s {
		cols = append(cols, fmt.Sprintf("%s AS %s", sel.Expr, sel.Metric))
	}
	return cols
}

// Override returns a copy of s with the formula of every metric named in
// overrides replaced. Unknown metrics are ignored.
func (s Selections) Override(overrides map[string]string) Selections {
	out := make(Selections, len(s))
	copy(out, s)
	if len(overrides) == 0 {
		return out
	}
	for i, sel := range out {
		if expr, ok := overrides[sel.Metric]; ok {
			out[i].Expr = expr
		}
	}
	return out
}

// Expr returns the formula of the given metric.
func (s Selections) Expr(metric string) (string, bool) {
	for _, sel := range s {
		if sel.Metric == metric {
			return sel.Expr, true
		}
	}
	return "", false
}

// ProductLevelSelections sums line item columns of the product lookup table.
// Shipping is summed as recorded per line item; there is no allocation of
// order level shipping taxes to products.
func ProductLevelSelections(products string) Selections {
	return Selections{
		{entity.MetricNumItemsSold, fmt.Sprintf("SUM(%s.product_qty)", products)},
		{entity.MetricGrossRevenue, fmt.Sprintf("SUM(%s.product_gross_revenue)", products)},
		{entity.MetricCoupons, fmt.Sprintf("SUM(%s.coupon_amount)", products)},
		{entity.MetricRefunds, fmt.Sprintf("SUM(%s.refund_amount)", products)},
		{entity.MetricTaxes, fmt.Sprintf("SUM(%s.tax_amount)", products)},
		{entity.MetricShipping, fmt.Sprintf("SUM(%s.shipping_amount)", products)},
		{entity.MetricNetRevenue, fmt.Sprintf("SUM(%s.product_net_revenue)", products)},
	}
}

// OrderLevelSelections computes per-order metrics over a set that holds each
// order at most once per segment.
func OrderLevelSelections(orders string) Selections {
	return Selections{
		{entity.MetricOrdersCount, fmt.Sprintf("COUNT(%s.order_id)", orders)},
		{entity.MetricAvgItemsPerOrder, fmt.Sprintf("AVG(%s.num_items_sold)", orders)},
		{entity.MetricAvgOrderValue, avgOrderValue(orders)},
		{entity.MetricNumReturningCustomers, fmt.Sprintf("SUM(%s.returning_customer)", orders)},
		{entity.MetricNumNewCustomers, newCustomers(orders)},
	}
}

// OrderSelections computes every metric straight from the order stats table.
// overrides replaces single formulas, e.g. coupons when one order fans out to
// several coupon rows.
func OrderSelections(orderStats string, overrides map[string]string) Selections {
	return Selections{
		{entity.MetricNumItemsSold, fmt.Sprintf("SUM(%s.num_items_sold)", orderStats)},
		{entity.MetricGrossRevenue, fmt.Sprintf("SUM(%s.gross_total)", orderStats)},
		{entity.MetricCoupons, fmt.Sprintf("SUM(%s.coupon_total)", orderStats)},
		{entity.MetricRefunds, fmt.Sprintf("SUM(%s.refund_total)", orderStats)},
		{entity.MetricTaxes, fmt.Sprintf("SUM(%s.tax_total)", orderStats)},
		{entity.MetricShipping, fmt.Sprintf("SUM(%s.shipping_total)", orderStats)},
		{entity.MetricNetRevenue, fmt.Sprintf("SUM(%[1]s.net_total) - SUM(%[1]s.refund_total)", orderStats)},
		{entity.MetricOrdersCount, fmt.Sprintf("COUNT(%s.order_id)", orderStats)},
		{entity.MetricAvgItemsPerOrder, fmt.Sprintf("AVG(%s.num_items_sold)", orderStats)},
		{entity.MetricAvgOrderValue, avgOrderValue(orderStats)},
		{entity.MetricNumReturningCustomers, fmt.Sprintf("SUM(%s.returning_customer)", orderStats)},
		{entity.MetricNumNewCustomers, newCustomers(orderStats)},
	}.Override(overrides)
}

func avgOrderValue(t string) string {
	return fmt.Sprintf("(SUM(%[1]s.net_total) - SUM(%[1]s.refund_total)) / NULLIF(COUNT(%[1]s.order_id), 0)", t)
}

func newCustomers(t string) string {
	return fmt.Sprintf("COUNT(%[1]s.returning_customer) - SUM(%[1]s.returning_customer)", t)
}
