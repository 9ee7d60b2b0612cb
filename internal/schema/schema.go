// Package schema names the lookup tables the reports are computed from.
package schema

// DefaultPrefix is the table prefix of a stock installation.
const DefaultPrefix = "wp_"

// ProductCategoryTaxonomy is the taxonomy that marks product categories in
// the term taxonomy table.
const ProductCategoryTaxonomy = "product_cat"

// Tables holds fully qualified lookup table names.
type Tables struct {
	OrderStats        string
	ProductLookup     string
	CouponLookup      string
	CustomerLookup    string
	TermRelationships string
	TermTaxonomy      string
	Terms             string
	Posts             string
}

// New returns table names for the given prefix. An empty prefix falls back
// to DefaultPrefix.
func New(prefix string) Tables {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Tables{
		OrderStats:        prefix + "wc_order_stats",
		ProductLookup:     prefix + "wc_order_product_lookup",
		CouponLookup:      prefix + "wc_order_coupon_lookup",
		CustomerLookup:    prefix + "wc_customer_lookup",
		TermRelationships: prefix + "term_relationships",
		TermTaxonomy:      prefix + "term_taxonomy",
		Terms:             prefix + "terms",
		Posts:             prefix + "posts",
	}
}

// Stats returns the tables that hold report data and are rewritten by the
// lookup synchronisation.
func (t Tables) Stats() []string {
	return []string{t.OrderStats, t.ProductLookup, t.CouponLookup, t.CustomerLookup}
}
