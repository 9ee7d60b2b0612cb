package dependency

import (
	"context"
	"database/sql"

	"github.com/jekabolt/grbpwr-analytics/internal/entity"
	"github.com/jmoiron/sqlx"
)

type (
	ContextStore interface {
		Tx(ctx context.Context, fn func(ctx context.Context, store Repository) error) error
	}

	OrdersStats interface {
		// GetOrdersStats returns totals and one page of intervals for the query,
		// both broken down by the query's segmenting dimension.
		GetOrdersStats(ctx context.Context, q *entity.ReportQuery) (*entity.OrdersStats, error)
		// KnownSegments lists every value of the query's segmenting dimension
		// with its label.
		KnownSegments(ctx context.Context, q *entity.ReportQuery) ([]entity.SegmentRef, error)
	}

	Repository interface {
		ContextStore
		OrdersStats() OrdersStats
		// ResetStats deletes every row of the stats lookup tables.
		ResetStats(ctx context.Context) error
		Ping(ctx context.Context) error
		DB() DB
		InTx() bool
		Close()
	}

	// ReportCache stores serialized report results.
	ReportCache interface {
		// Get decodes a cached value into dst and reports whether it was found.
		Get(ctx context.Context, key string, dst any) (bool, error)
		Set(ctx context.Context, key string, v any) error
		Close() error
	}

	Reports interface {
		OrdersStats(ctx context.Context, q *entity.ReportQuery) (*entity.OrdersStats, error)
	}

	DB interface {
		BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
		ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)

		// sqlx methods
		GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
		QueryRowxContext(ctx context.Context, query string, args ...interface{}) *sqlx.Row
		QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error)
		SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	}
)
