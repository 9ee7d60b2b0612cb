package store

import (
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jekabolt/grbpwr-analytics/internal/entity"
	"github.com/jekabolt/grbpwr-analytics/internal/schema"
)

const statusPrefix = "wc-"

// rangeWhere restricts order stats rows to [from, to].
func rangeWhere(t schema.Tables, from, to time.Time) sq.Sqlizer {
	return sq.And{
		sq.GtOrEq{t.OrderStats + ".date_created": from},
		sq.LtOrEq{t.OrderStats + ".date_created": to},
	}
}

// filterWhere builds the report filters over the order stats table. The
// filters are combined with AND, or with OR when match is any. It returns nil
// when no filter is set.
func filterWhere(t schema.Tables, q *entity.ReportQuery) (sq.Sqlizer, error) {
	os := t.OrderStats
	var clauses []sq.Sqlizer

	subqueries := []struct {
		ids []int64
		not bool
		sub func(ids []int64) sq.SelectBuilder
	}{
		{q.ProductIncludes, false, productOrders(t)},
		{q.ProductExcludes, true, productOrders(t)},
		{q.CategoryIncludes, false, categoryOrders(t)},
		{q.CategoryExcludes, true, categoryOrders(t)},
		{q.CouponIncludes, false, couponOrders(t)},
		{q.CouponExcludes, true, couponOrders(t)},
	}
	for _, s := range subqueries {
		if len(s.ids) == 0 {
			continue
		}
		clause, err := inSubquery(os+".order_id", s.not, s.sub(s.ids))
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause)
	}

	if len(q.CustomerIncludes) > 0 {
		clauses = append(clauses, sq.Eq{os + ".customer_id": q.CustomerIncludes})
	}
	if len(q.CustomerExcludes) > 0 {
		clauses = append(clauses, sq.NotEq{os + ".customer_id": q.CustomerExcludes})
	}

	switch q.CustomerType {
	case entity.CustomerTypeNew:
		clauses = append(clauses, sq.Eq{os + ".returning_customer": 0})
	case entity.CustomerTypeReturning:
		clauses = append(clauses, sq.Eq{os + ".returning_customer": 1})
	}

	if len(q.StatusIs) > 0 {
		clauses = append(clauses, sq.Eq{os + ".status": normalizeStatuses(q.StatusIs)})
	}
	if len(q.StatusIsNot) > 0 {
		clauses = append(clauses, sq.NotEq{os + ".status": normalizeStatuses(q.StatusIsNot)})
	}

	switch {
	case len(clauses) == 0:
		return nil, nil
	case q.Match == entity.FilterMatchAny:
		return sq.Or(clauses), nil
	default:
		return sq.And(clauses), nil
	}
}

func productOrders(t schema.Tables) func(ids []int64) sq.SelectBuilder {
	return func(ids []int64) sq.SelectBuilder {
		return sq.Select("order_id").
			From(t.ProductLookup).
			Where(sq.Or{
				sq.Eq{"product_id": ids},
				sq.Eq{"variation_id": ids},
			})
	}
}

func categoryOrders(t schema.Tables) func(ids []int64) sq.SelectBuilder {
	return func(ids []int64) sq.SelectBuilder {
		return sq.Select(t.ProductLookup + ".order_id").
			From(t.ProductLookup).
			Join(fmt.Sprintf("%[1]s ON %[2]s.product_id = %[1]s.object_id", t.TermRelationships, t.ProductLookup)).
			Where(sq.Eq{t.TermRelationships + ".term_taxonomy_id": ids})
	}
}

func couponOrders(t schema.Tables) func(ids []int64) sq.SelectBuilder {
	return func(ids []int64) sq.SelectBuilder {
		return sq.Select("order_id").
			From(t.CouponLookup).
			Where(sq.Eq{"coupon_id": ids})
	}
}

func inSubquery(col string, not bool, sub sq.SelectBuilder) (sq.Sqlizer, error) {
	query, args, err := sub.ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build filter subquery: %w", err)
	}
	op := "IN"
	if not {
		op = "NOT IN"
	}
	return sq.Expr(fmt.Sprintf("%s %s (%s)", col, op, query), args...), nil
}

// normalizeStatuses adds the wc- prefix order statuses are stored with.
func normalizeStatuses(statuses []string) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		if !strings.HasPrefix(s, statusPrefix) {
			s = statusPrefix + s
		}
		out = append(out, s)
	}
	return out
}

// and joins the non nil clauses.
func and(clauses ...sq.Sqlizer) sq.Sqlizer {
	out := sq.And{}
	for _, c := range clauses {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}
