package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/jekabolt/grbpwr-analytics/internal/dependency"
	"github.com/stretchr/testify/require"
)

// countRows returns the number of rows in table.
func countRows(t *testing.T, conn dependency.DB, table string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.GetContext(context.Background(), &n, "SELECT COUNT(*) FROM "+table))
	return n
}

// bulkInsert inserts rows into table with a single statement. Columns are
// taken from the first row in sorted order.
func bulkInsert(ctx context.Context, conn dependency.DB, table string, rows []map[string]any) error {
	if len(rows) == 0 {
		return nil
	}

	cols := make([]string, 0, len(rows[0]))
	for c := range rows[0] {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"
	tuples := make([]string, len(rows))
	args := make([]any, 0, len(rows)*len(cols))
	for i, row := range rows {
		tuples[i] = tuple
		for _, c := range cols {
			args = append(args, row[c])
		}
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, strings.Join(cols, ", "), strings.Join(tuples, ", "))
	if _, err := conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("bulk insert into %s: %w", table, err)
	}
	return nil
}
