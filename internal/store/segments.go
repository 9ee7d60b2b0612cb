package store

import (
	"context"
	"fmt"

	"github.com/jekabolt/grbpwr-analytics/internal/entity"
	"github.com/jekabolt/grbpwr-analytics/internal/schema"
	"github.com/jekabolt/grbpwr-analytics/internal/segment"
)

const (
	LabelNewCustomer       = "New customer"
	LabelReturningCustomer = "Returning customer"
)

// customerTypeSegments are the values of returning_customer.
var customerTypeSegments = []entity.SegmentRef{
	{ID: 0, Label: LabelNewCustomer},
	{ID: 1, Label: LabelReturningCustomer},
}

// KnownSegments lists every value of the segmenting dimension of q in
// ascending id order, or the included ids in request order when the
// matching includes filter is set. Ids without a label get an empty one.
func (s *ordersStatsStore) KnownSegments(ctx context.Context, q *entity.ReportQuery) ([]entity.SegmentRef, error) {
	if err := segment.Validate(q.SegmentBy, q.ProductIncludes); err != nil {
		return nil, err
	}
	t := s.tables

	switch q.SegmentBy {
	case entity.SegmentByProduct:
		if len(q.ProductIncludes) > 0 {
			return s.labelled(ctx, q.ProductIncludes, postTitles(t))
		}
		return s.segmentRefs(ctx, fmt.Sprintf(`
			SELECT DISTINCT pl.product_id AS id, COALESCE(p.post_title, '') AS label
			FROM %s pl
			LEFT JOIN %s p ON p.ID = pl.product_id
			ORDER BY id`, t.ProductLookup, t.Posts), nil)

	case entity.SegmentByVariation:
		return s.segmentRefs(ctx, fmt.Sprintf(`
			SELECT DISTINCT pl.variation_id AS id, COALESCE(p.post_title, '') AS label
			FROM %s pl
			LEFT JOIN %s p ON p.ID = pl.variation_id
			WHERE pl.product_id = :productId
			ORDER BY id`, t.ProductLookup, t.Posts),
			map[string]any{"productId": q.ProductIncludes[0]})

	case entity.SegmentByCategory:
		if len(q.CategoryIncludes) > 0 {
			return s.labelled(ctx, q.CategoryIncludes, categoryNames(t))
		}
		return s.segmentRefs(ctx, fmt.Sprintf(`
			SELECT tt.term_taxonomy_id AS id, COALESCE(t.name, '') AS label
			FROM %s tt
			LEFT JOIN %s t ON t.term_id = tt.term_id
			WHERE tt.taxonomy = :taxonomy
			ORDER BY id`, t.TermTaxonomy, t.Terms),
			map[string]any{"taxonomy": schema.ProductCategoryTaxonomy})

	case entity.SegmentByCoupon:
		if len(q.CouponIncludes) > 0 {
			return s.labelled(ctx, q.CouponIncludes, postTitles(t))
		}
		return s.segmentRefs(ctx, fmt.Sprintf(`
			SELECT DISTINCT cl.coupon_id AS id, COALESCE(p.post_title, '') AS label
			FROM %s cl
			LEFT JOIN %s p ON p.ID = cl.coupon_id
			ORDER BY id`, t.CouponLookup, t.Posts), nil)

	case entity.SegmentByCustomerType:
		out := make([]entity.SegmentRef, len(customerTypeSegments))
		copy(out, customerTypeSegments)
		return out, nil
	}
	return []entity.SegmentRef{}, nil
}

// segmentIncludes returns the includes filter over the segmenting dimension
// of q, nil when there is none.
func segmentIncludes(q *entity.ReportQuery) []int64 {
	switch q.SegmentBy {
	case entity.SegmentByProduct:
		return q.ProductIncludes
	case entity.SegmentByCategory:
		return q.CategoryIncludes
	case entity.SegmentByCoupon:
		return q.CouponIncludes
	}
	return nil
}

func postTitles(t schema.Tables) string {
	return fmt.Sprintf(`SELECT ID AS id, post_title AS label FROM %s WHERE ID IN (:ids)`, t.Posts)
}

func categoryNames(t schema.Tables) string {
	return fmt.Sprintf(`
		SELECT tt.term_taxonomy_id AS id, t.name AS label
		FROM %s tt
		JOIN %s t ON t.term_id = tt.term_id
		WHERE tt.term_taxonomy_id IN (:ids)`, t.TermTaxonomy, t.Terms)
}

func (s *ordersStatsStore) segmentRefs(ctx context.Context, query string, params map[string]any) ([]entity.SegmentRef, error) {
	refs, err := QueryListNamed[entity.SegmentRef](ctx, s.db, query, params)
	if err != nil {
		return nil, fmt.Errorf("can't get segments: %w", err)
	}
	if refs == nil {
		refs = []entity.SegmentRef{}
	}
	return refs, nil
}

// labelled returns ids in the given order with labels looked up by query.
func (s *ordersStatsStore) labelled(ctx context.Context, ids []int64, query string) ([]entity.SegmentRef, error) {
	found, err := QueryListNamed[entity.SegmentRef](ctx, s.db, query, map[string]any{"ids": ids})
	if err != nil {
		return nil, fmt.Errorf("can't get segment labels: %w", err)
	}
	labels := make(map[int64]string, len(found))
	for _, ref := range found {
		labels[ref.ID] = ref.Label
	}

	seen := make(map[int64]struct{}, len(ids))
	refs := make([]entity.SegmentRef, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		refs = append(refs, entity.SegmentRef{ID: id, Label: labels[id]})
	}
	return refs, nil
}
