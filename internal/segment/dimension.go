package segment

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jekabolt/grbpwr-analytics/internal/entity"
	gerr "github.com/jekabolt/grbpwr-analytics/internal/errors"
	"github.com/jekabolt/grbpwr-analytics/internal/schema"
)

// Shape is the resolved SQL shape of a segmenting dimension.
type Shape struct {
	By entity.SegmentBy
	// ProductBound dimensions join one row per line item and need the two
	// pass product level / order level aggregation.
	ProductBound bool
	Joins        []string
	Where        sq.Sqlizer
	GroupBy      string
	// Selections is used by order bound dimensions only.
	Selections Selections
}

type dimension struct {
	productBound bool
	resolve      func(t schema.Tables, productIncludes []int64) (*Shape, error)
}

var dimensions = map[entity.SegmentBy]dimension{
	entity.SegmentByProduct: {
		productBound: true,
		resolve: func(t schema.Tables, _ []int64) (*Shape, error) {
			return &Shape{
				Joins:   []string{productJoin(t)},
				GroupBy: t.ProductLookup + ".product_id",
			}, nil
		},
	},
	entity.SegmentByVariation: {
		productBound: true,
		resolve: func(t schema.Tables, productIncludes []int64) (*Shape, error) {
			if len(productIncludes) != 1 {
				return nil, gerr.ErrInvalidSegmentingVariation
			}
			return &Shape{
				Joins:   []string{productJoin(t)},
				Where:   sq.Eq{t.ProductLookup + ".product_id": productIncludes[0]},
				GroupBy: t.ProductLookup + ".variation_id",
			}, nil
		},
	},
	entity.SegmentByCategory: {
		productBound: true,
		resolve: func(t schema.Tables, _ []int64) (*Shape, error) {
			return &Shape{
				Joins: []string{
					productJoin(t),
					fmt.Sprintf("%[1]s ON %[2]s.product_id = %[1]s.object_id", t.TermRelationships, t.ProductLookup),
					fmt.Sprintf("%[1]s ON %[2]s.term_taxonomy_id = %[1]s.term_taxonomy_id", t.TermTaxonomy, t.TermRelationships),
				},
				Where:   sq.Eq{t.TermTaxonomy + ".taxonomy": schema.ProductCategoryTaxonomy},
				GroupBy: t.TermTaxonomy + ".term_taxonomy_id",
			}, nil
		},
	},
	entity.SegmentByCoupon: {
		resolve: func(t schema.Tables, _ []int64) (*Shape, error) {
			return &Shape{
				Joins: []string{
					fmt.Sprintf("%s AS %s ON %s.order_id = %[2]s.order_id", t.CouponLookup, couponAlias, t.OrderStats),
				},
				GroupBy: couponAlias + ".coupon_id",
				Selections: OrderSelections(t.OrderStats, map[string]string{
					entity.MetricCoupons: fmt.Sprintf("SUM(%s.discount_amount)", couponAlias),
				}),
			}, nil
		},
	},
	entity.SegmentByCustomerType: {
		resolve: func(t schema.Tables, _ []int64) (*Shape, error) {
			return &Shape{
				GroupBy:    t.OrderStats + ".returning_customer",
				Selections: OrderSelections(t.OrderStats, nil),
			}, nil
		},
	},
}

const couponAlias = "coupon_lookup"

func productJoin(t schema.Tables) string {
	return fmt.Sprintf("%[1]s ON %[2]s.order_id = %[1]s.order_id", t.ProductLookup, t.OrderStats)
}

// Resolve returns the query shape for the dimension by. ok is false when by
// is empty or not a supported dimension, the report is then not segmented.
func Resolve(t schema.Tables, by entity.SegmentBy, productIncludes []int64) (shape *Shape, ok bool, err error) {
	d, ok := dimensions[by]
	if !ok {
		return nil, false, nil
	}
	shape, err = d.resolve(t, productIncludes)
	if err != nil {
		return nil, false, err
	}
	shape.By = by
	shape.ProductBound = d.productBound
	return shape, true, nil
}

// Validate checks the preconditions of segmenting by the given dimension.
func Validate(by entity.SegmentBy, productIncludes []int64) error {
	if by == entity.SegmentByVariation && len(productIncludes) != 1 {
		return gerr.ErrInvalidSegmentingVariation
	}
	return nil
}

// IsProductBound reports whether by is a line item level dimension.
func IsProductBound(by entity.SegmentBy) bool {
	return dimensions[by].productBound
}
