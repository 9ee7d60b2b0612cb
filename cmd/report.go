package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/jekabolt/grbpwr-analytics/internal/form"
	"github.com/jekabolt/grbpwr-analytics/internal/reports"
	"github.com/jekabolt/grbpwr-analytics/internal/store"
	"github.com/spf13/cobra"
)

var (
	reportCmd = &cobra.Command{
		Use:   "report",
		Short: "Build an orders stats report and print it as JSON",
		Example: `  grbpwr-analytics report --query "interval=day&segmentby=product&product_includes=12,15"
  grbpwr-analytics report --query "segmentby=customer_type&after=2024-01-01&before=2024-02-01"`,
		RunE: report,
	}

	reportQuery string
)

func init() {
	reportCmd.Flags().StringVarP(&reportQuery, "query", "q", "", "report parameters as a URL query string")
}

func report(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	values, err := url.ParseQuery(reportQuery)
	if err != nil {
		return fmt.Errorf("invalid query: %w", err)
	}
	req, err := form.ParseOrdersStats(values)
	if err != nil {
		return err
	}
	q, err := req.Query(time.Now().UTC(), cfg.Reports.Defaults())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	db, err := store.New(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()

	stats, err := reports.New(db.OrdersStats(), nil).OrdersStats(ctx, q)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}
