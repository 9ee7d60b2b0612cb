package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Granularity controls the time bucket size of an interval report.
type Granularity string

const (
	GranularityHour    Granularity = "hour"
	GranularityDay     Granularity = "day"
	GranularityWeek    Granularity = "week"
	GranularityMonth   Granularity = "month"
	GranularityQuarter Granularity = "quarter"
	GranularityYear    Granularity = "year"
)

// Granularities lists every supported interval granularity.
var Granularities = []Granularity{
	GranularityHour,
	GranularityDay,
	GranularityWeek,
	GranularityMonth,
	GranularityQuarter,
	GranularityYear,
}

// SegmentBy is the dimension a report is broken down by.
type SegmentBy string

const (
	SegmentByNone         SegmentBy = ""
	SegmentByProduct      SegmentBy = "product"
	SegmentByVariation    SegmentBy = "variation"
	SegmentByCategory     SegmentBy = "category"
	SegmentByCoupon       SegmentBy = "coupon"
	SegmentByCustomerType SegmentBy = "customer_type"
)

// SortOrder orders report intervals by date.
type SortOrder string

const (
	SortOrderDesc SortOrder = "desc"
	SortOrderAsc  SortOrder = "asc"
)

// FilterMatch tells how several filters are combined.
type FilterMatch string

const (
	FilterMatchAll FilterMatch = "all"
	FilterMatchAny FilterMatch = "any"
)

// CustomerType filters orders by whether the customer ordered before.
type CustomerType string

const (
	CustomerTypeNew       CustomerType = "new"
	CustomerTypeReturning CustomerType = "returning"
)

// ReportQuery is a validated orders stats request.
type ReportQuery struct {
	After    time.Time   `json:"after"`
	Before   time.Time   `json:"before"`
	Interval Granularity `json:"interval"`
	Page     int         `json:"page"`
	PerPage  int         `json:"per_page"`
	Order    SortOrder   `json:"order"`
	Match    FilterMatch `json:"match"`

	SegmentBy SegmentBy `json:"segmentby"`

	ProductIncludes  []int64      `json:"product_includes,omitempty"`
	ProductExcludes  []int64      `json:"product_excludes,omitempty"`
	CategoryIncludes []int64      `json:"category_includes,omitempty"`
	CategoryExcludes []int64      `json:"category_excludes,omitempty"`
	CouponIncludes   []int64      `json:"coupon_includes,omitempty"`
	CouponExcludes   []int64      `json:"coupon_excludes,omitempty"`
	CustomerIncludes []int64      `json:"customer_includes,omitempty"`
	CustomerExcludes []int64      `json:"customer_excludes,omitempty"`
	CustomerType     CustomerType `json:"customer_type,omitempty"`
	StatusIs         []string     `json:"status_is,omitempty"`
	StatusIsNot      []string     `json:"status_is_not,omitempty"`
}

// Subtotals carries every order metric of a report row. All fields are
// always set; empty groups report zeros.
type Subtotals struct {
	GrossRevenue          decimal.Decimal `json:"gross_revenue"`
	NetRevenue            decimal.Decimal `json:"net_revenue"`
	Coupons               decimal.Decimal `json:"coupons"`
	Refunds               decimal.Decimal `json:"refunds"`
	Taxes                 decimal.Decimal `json:"taxes"`
	Shipping              decimal.Decimal `json:"shipping"`
	OrdersCount           int64           `json:"orders_count"`
	NumItemsSold          int64           `json:"num_items_sold"`
	AvgItemsPerOrder      decimal.Decimal `json:"avg_items_per_order"`
	AvgOrderValue         decimal.Decimal `json:"avg_order_value"`
	NumReturningCustomers int64           `json:"num_returning_customers"`
	NumNewCustomers       int64           `json:"num_new_customers"`
}

// Metric names, matching the JSON keys of Subtotals.
const (
	MetricGrossRevenue          = "gross_revenue"
	MetricNetRevenue            = "net_revenue"
	MetricCoupons               = "coupons"
	MetricRefunds               = "refunds"
	MetricTaxes                 = "taxes"
	MetricShipping              = "shipping"
	MetricOrdersCount           = "orders_count"
	MetricNumItemsSold          = "num_items_sold"
	MetricAvgItemsPerOrder      = "avg_items_per_order"
	MetricAvgOrderValue         = "avg_order_value"
	MetricNumReturningCustomers = "num_returning_customers"
	MetricNumNewCustomers       = "num_new_customers"
)

// Metrics lists every metric name in report order.
var Metrics = []string{
	MetricGrossRevenue,
	MetricNetRevenue,
	MetricCoupons,
	MetricRefunds,
	MetricTaxes,
	MetricShipping,
	MetricOrdersCount,
	MetricNumItemsSold,
	MetricAvgItemsPerOrder,
	MetricAvgOrderValue,
	MetricNumReturningCustomers,
	MetricNumNewCustomers,
}

// Map returns the subtotals keyed by metric name.
func (s Subtotals) Map() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		MetricGrossRevenue:          s.GrossRevenue,
		MetricNetRevenue:            s.NetRevenue,
		MetricCoupons:               s.Coupons,
		MetricRefunds:               s.Refunds,
		MetricTaxes:                 s.Taxes,
		MetricShipping:              s.Shipping,
		MetricOrdersCount:           decimal.NewFromInt(s.OrdersCount),
		MetricNumItemsSold:          decimal.NewFromInt(s.NumItemsSold),
		MetricAvgItemsPerOrder:      s.AvgItemsPerOrder,
		MetricAvgOrderValue:         s.AvgOrderValue,
		MetricNumReturningCustomers: decimal.NewFromInt(s.NumReturningCustomers),
		MetricNumNewCustomers:       decimal.NewFromInt(s.NumNewCustomers),
	}
}

// SegmentRef identifies one value of a segmenting dimension.
type SegmentRef struct {
	ID    int64  `db:"id" json:"segment_id"`
	Label string `db:"label" json:"segment_label"`
}

// Segment is the metrics of one dimension value, optionally within a time bucket.
type Segment struct {
	ID        int64     `json:"segment_id"`
	Label     string    `json:"segment_label"`
	Subtotals Subtotals `json:"subtotals"`
}

// Totals is the report over the whole requested range.
type Totals struct {
	Subtotals
	Segments []Segment `json:"segments"`
}

// IntervalSubtotals is the report of a single time bucket.
type IntervalSubtotals struct {
	Subtotals
	Segments []Segment `json:"segments"`
}

// Interval is one time bucket of an interval report.
type Interval struct {
	Interval  string            `json:"interval"`
	DateStart time.Time         `json:"date_start"`
	DateEnd   time.Time         `json:"date_end"`
	Subtotals IntervalSubtotals `json:"subtotals"`
}

// OrdersStats is the orders stats report: totals plus one page of intervals.
type OrdersStats struct {
	Totals    Totals     `json:"totals"`
	Intervals []Interval `json:"intervals"`
	Total     int        `json:"total"`
	Pages     int        `json:"pages"`
	Page      int        `json:"page_no"`
}
