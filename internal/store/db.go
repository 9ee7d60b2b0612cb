package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Knetic/go-namedParameterQuery"
	"github.com/go-sql-driver/mysql"
	"github.com/jekabolt/grbpwr-analytics/internal/dependency"
	"github.com/jmoiron/sqlx"
)

// MySQL error numbers worth retrying a transaction on.
const (
	errLockWaitTimeout = 1205
	errLockDeadlock    = 1213
)

var errNotInTx = errors.New("not in transaction")

// txConn is the DB handed to code running inside Tx. Nested transactions
// are not supported.
type txConn struct {
	*sqlx.Tx
}

func (txConn) BeginTxx(context.Context, *sql.TxOptions) (*sqlx.Tx, error) {
	return nil, errors.New("already in transaction")
}

func (ms *MYSQLStore) DB() dependency.DB {
	return ms.db
}

// InTx reports whether ms is bound to an open transaction.
func (ms *MYSQLStore) InTx() bool {
	return ms.tx != nil
}

// Tx runs f against a store bound to a serializable transaction. The
// transaction is committed when f returns nil and rolled back otherwise.
// Deadlocks and lock wait timeouts restart f from scratch, so f must return
// driver errors unchanged or wrapped with %w.
func (ms *MYSQLStore) Tx(ctx context.Context, f func(context.Context, dependency.Repository) error) error {
	for {
		err := ms.runTx(ctx, f)
		if !retryable(err) {
			return err
		}
	}
}

func (ms *MYSQLStore) runTx(ctx context.Context, f func(context.Context, dependency.Repository) error) error {
	tx, err := ms.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	bound := &MYSQLStore{
		db:     txConn{Tx: tx},
		tx:     tx,
		tables: ms.tables,
		close:  func() {},
	}

	if err := f(ctx, bound); err != nil {
		_ = bound.finish(tx.Rollback)
		return err
	}
	if err := bound.finish(tx.Commit); err != nil {
		_ = tx.Rollback()
		return err
	}
	return nil
}

// finish ends the bound transaction with end and detaches ms from it.
func (ms *MYSQLStore) finish(end func() error) error {
	if ms.tx == nil {
		return errNotInTx
	}
	if err := end(); err != nil {
		return err
	}
	ms.db, ms.tx = nil, nil
	return nil
}

func retryable(err error) bool {
	var e *mysql.MySQLError
	if !errors.As(err, &e) {
		return false
	}
	return e.Number == errLockDeadlock || e.Number == errLockWaitTimeout
}

// expandNamed rewrites :name parameters to positional ones and expands
// slice arguments for IN clauses.
func expandNamed(query string, params map[string]any) (string, []any, error) {
	q := namedParameterQuery.NewNamedParameterQuery(query)
	q.SetValuesFromMap(params)
	expanded, args, err := sqlx.In(q.GetParsedQuery(), q.GetParsedParameters()...)
	if err != nil {
		return "", nil, fmt.Errorf("expand params: %w", err)
	}
	return expanded, args, nil
}

// QueryListNamed runs a named query and scans every row into T.
func QueryListNamed[T any](ctx context.Context, conn dependency.DB, query string, params map[string]any) ([]T, error) {
	query, args, err := expandNamed(query, params)
	if err != nil {
		return nil, err
	}

	rows, err := conn.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var v T
		if err := rows.StructScan(&v); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// ExecNamed executes a named statement.
func ExecNamed(ctx context.Context, conn dependency.DB, query string, params map[string]any) error {
	query, args, err := expandNamed(query, params)
	if err != nil {
		return err
	}
	if _, err := conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	return nil
}
