package form

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	v "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/jekabolt/grbpwr-analytics/internal/entity"
	gerr "github.com/jekabolt/grbpwr-analytics/internal/errors"
)

// Defaults are applied to parameters a request leaves out.
type Defaults struct {
	Interval   entity.Granularity
	PerPage    int
	MaxPerPage int
	// RangeDays is the length of the range when after is not given.
	RangeDays int
}

// DefaultDefaults are used for zero Defaults fields.
var DefaultDefaults = Defaults{
	Interval:   entity.GranularityWeek,
	PerPage:    10,
	MaxPerPage: 100,
	RangeDays:  7,
}

func (d Defaults) withFallback() Defaults {
	if d.Interval == "" {
		d.Interval = DefaultDefaults.Interval
	}
	if d.PerPage <= 0 {
		d.PerPage = DefaultDefaults.PerPage
	}
	if d.MaxPerPage <= 0 {
		d.MaxPerPage = DefaultDefaults.MaxPerPage
	}
	if d.RangeDays <= 0 {
		d.RangeDays = DefaultDefaults.RangeDays
	}
	return d
}

// OrdersStatsRequest holds raw orders stats parameters.
type OrdersStatsRequest struct {
	After     string `json:"after"`
	Before    string `json:"before"`
	Interval  string `json:"interval"`
	Page      int    `json:"page"`
	PerPage   int    `json:"per_page"`
	Order     string `json:"order"`
	Match     string `json:"match"`
	SegmentBy string `json:"segmentby"`

	ProductIncludes  []int64  `json:"product_includes"`
	ProductExcludes  []int64  `json:"product_excludes"`
	CategoryIncludes []int64  `json:"category_includes"`
	CategoryExcludes []int64  `json:"category_excludes"`
	CouponIncludes   []int64  `json:"coupon_includes"`
	CouponExcludes   []int64  `json:"coupon_excludes"`
	CustomerIncludes []int64  `json:"customer_includes"`
	CustomerExcludes []int64  `json:"customer_excludes"`
	CustomerType     string   `json:"customer_type"`
	StatusIs         []string `json:"status_is"`
	StatusIsNot      []string `json:"status_is_not"`

	after  time.Time
	before time.Time
}

// ParseOrdersStats reads parameters from URL query values. Lists are
// accepted comma separated, repeated, or with the key[] suffix.
func ParseOrdersStats(values url.Values) (*OrdersStatsRequest, error) {
	r := &OrdersStatsRequest{
		After:        values.Get("after"),
		Before:       values.Get("before"),
		Interval:     values.Get("interval"),
		Order:        values.Get("order"),
		Match:        values.Get("match"),
		SegmentBy:    values.Get("segmentby"),
		CustomerType: values.Get("customer_type"),
		StatusIs:     list(values, "status_is"),
		StatusIsNot:  list(values, "status_is_not"),
	}

	var err error
	if r.Page, err = intParam(values, "page"); err != nil {
		return nil, err
	}
	if r.PerPage, err = intParam(values, "per_page"); err != nil {
		return nil, err
	}

	ids := []struct {
		key string
		dst *[]int64
	}{
		{"product_includes", &r.ProductIncludes},
		{"product_excludes", &r.ProductExcludes},
		{"category_includes", &r.CategoryIncludes},
		{"category_excludes", &r.CategoryExcludes},
		{"coupon_includes", &r.CouponIncludes},
		{"coupon_excludes", &r.CouponExcludes},
		{"customer_includes", &r.CustomerIncludes},
		{"customer_excludes", &r.CustomerExcludes},
	}
	for _, id := range ids {
		if *id.dst, err = idList(values, id.key); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Validate applies d to missing parameters and checks every parameter.
func (r *OrdersStatsRequest) Validate(now time.Time, d Defaults) error {
	d = d.withFallback()
	if err := r.applyDefaults(now, d); err != nil {
		return err
	}

	granularities := make([]interface{}, 0, len(entity.Granularities))
	for _, g := range entity.Granularities {
		granularities = append(granularities, string(g))
	}

	return ValidateStruct(r,
		v.Field(&r.Interval, v.In(granularities...)),
		v.Field(&r.Page, v.Min(1)),
		v.Field(&r.PerPage, v.Min(1), v.Max(d.MaxPerPage)),
		v.Field(&r.Order, v.In(string(entity.SortOrderAsc), string(entity.SortOrderDesc))),
		v.Field(&r.Match, v.In(string(entity.FilterMatchAll), string(entity.FilterMatchAny))),
		v.Field(&r.CustomerType, v.In(string(entity.CustomerTypeNew), string(entity.CustomerTypeReturning))),
		v.Field(&r.After, v.By(r.rangeRule)),
		v.Field(&r.ProductIncludes, v.Each(v.Min(int64(1)))),
		v.Field(&r.ProductExcludes, v.Each(v.Min(int64(1)))),
		v.Field(&r.CategoryIncludes, v.Each(v.Min(int64(1)))),
		v.Field(&r.CategoryExcludes, v.Each(v.Min(int64(1)))),
		v.Field(&r.CouponIncludes, v.Each(v.Min(int64(1)))),
		v.Field(&r.CouponExcludes, v.Each(v.Min(int64(1)))),
		v.Field(&r.StatusIs, v.Each(v.Length(1, 200))),
		v.Field(&r.StatusIsNot, v.Each(v.Length(1, 200))),
	)
}

func (r *OrdersStatsRequest) rangeRule(interface{}) error {
	if r.after.After(r.before) {
		return fmt.Errorf("must not be later than before")
	}
	return nil
}

// defaultBeforeStep truncates an omitted before so that repeated default
// range requests build the same query and share a report cache entry.
const defaultBeforeStep = time.Minute

func (r *OrdersStatsRequest) applyDefaults(now time.Time, d Defaults) error {
	var err error
	r.before = now.Truncate(defaultBeforeStep)
	if r.Before != "" {
		if r.before, err = parseDate(r.Before); err != nil {
			return gerr.NewParameterError(codeInvalidParam, "Invalid parameter(s): before: "+err.Error())
		}
	}
	r.after = r.before.AddDate(0, 0, -d.RangeDays)
	if r.After != "" {
		if r.after, err = parseDate(r.After); err != nil {
			return gerr.NewParameterError(codeInvalidParam, "Invalid parameter(s): after: "+err.Error())
		}
	}

	if r.Interval == "" {
		r.Interval = string(d.Interval)
	}
	if r.Page == 0 {
		r.Page = 1
	}
	if r.PerPage == 0 {
		r.PerPage = d.PerPage
	}
	if r.Order == "" {
		r.Order = string(entity.SortOrderDesc)
	}
	if r.Match == "" {
		r.Match = string(entity.FilterMatchAll)
	}
	return nil
}

// Query validates the request and converts it into a report query.
func (r *OrdersStatsRequest) Query(now time.Time, d Defaults) (*entity.ReportQuery, error) {
	if err := r.Validate(now, d); err != nil {
		return nil, err
	}
	return &entity.ReportQuery{
		After:            r.after,
		Before:           r.before,
		Interval:         entity.Granularity(r.Interval),
		Page:             r.Page,
		PerPage:          r.PerPage,
		Order:            entity.SortOrder(r.Order),
		Match:            entity.FilterMatch(r.Match),
		SegmentBy:        entity.SegmentBy(r.SegmentBy),
		ProductIncludes:  r.ProductIncludes,
		ProductExcludes:  r.ProductExcludes,
		CategoryIncludes: r.CategoryIncludes,
		CategoryExcludes: r.CategoryExcludes,
		CouponIncludes:   r.CouponIncludes,
		CouponExcludes:   r.CouponExcludes,
		CustomerIncludes: r.CustomerIncludes,
		CustomerExcludes: r.CustomerExcludes,
		CustomerType:     entity.CustomerType(r.CustomerType),
		StatusIs:         r.StatusIs,
		StatusIsNot:      r.StatusIsNot,
	}, nil
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not a valid date", s)
}

func list(values url.Values, key string) []string {
	var out []string
	for _, raw := range append(values[key], values[key+"[]"]...) {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func idList(values url.Values, key string) ([]int64, error) {
	raw := list(values, key)
	if len(raw) == 0 {
		return nil, nil
	}
	ids := make([]int64, 0, len(raw))
	for _, s := range raw {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, gerr.NewParameterError(codeInvalidParam, fmt.Sprintf("Invalid parameter(s): %s: %q is not an id.", key, s))
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func intParam(values url.Values, key string) (int, error) {
	s := values.Get(key)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, gerr.NewParameterError(codeInvalidParam, fmt.Sprintf("Invalid parameter(s): %s: %q is not a number.", key, s))
	}
	return n, nil
}
