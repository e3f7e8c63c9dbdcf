// Command sales-import backfills successfully closed express-pipeline
// deals from the CRM into all_sales_tracking.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"trafficops_backend/internal/amocrm"
	"trafficops_backend/internal/importer"
	"trafficops_backend/internal/tracking"
	"trafficops_backend/platform/config"
	"trafficops_backend/platform/db"
	"trafficops_backend/platform/logger"
)

const dateLayout = "2006-01-02"

func main() {
	var fromFlag, toFlag string
	var daysFlag int

	cmd := &cobra.Command{
		Use:          "sales-import",
		Short:        "Backfill express-pipeline sales from the CRM",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			from, to, err := resolveWindow(fromFlag, toFlag, daysFlag)
			if err != nil {
				return err
			}
			return run(cmd.Context(), from, to)
		},
	}
	cmd.Flags().StringVar(&fromFlag, "from", "", "window start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&toFlag, "to", "", "window end date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&daysFlag, "days", 0, "import the last N days")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, from, to time.Time) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg.Env)
	log.Info("starting sales import", "from", from, "to", to)

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	crm := amocrm.NewClient(cfg, log)
	imp := importer.NewExpressImporter(crm, tracking.New(pool), cfg, log)

	stats, err := imp.Run(ctx, from, to)
	stats.WriteSummary(os.Stdout)
	if err != nil {
		return fmt.Errorf("import aborted: %w", err)
	}
	if len(stats.Errors) > 0 {
		log.Warn("import finished with record errors", "errors", len(stats.Errors))
	}
	return nil
}

// resolveWindow turns the mutually complementary flags into a time range.
// No flags means all time (zero bounds).
func resolveWindow(fromFlag, toFlag string, days int) (time.Time, time.Time, error) {
	var from, to time.Time

	if days > 0 {
		if fromFlag != "" || toFlag != "" {
			return from, to, fmt.Errorf("--days cannot be combined with --from/--to")
		}
		to = time.Now().UTC()
		from = to.AddDate(0, 0, -days)
		return from, to, nil
	}

	var err error
	if fromFlag != "" {
		if from, err = time.Parse(dateLayout, fromFlag); err != nil {
			return from, to, fmt.Errorf("invalid --from date %q", fromFlag)
		}
	}
	if toFlag != "" {
		if to, err = time.Parse(dateLayout, toFlag); err != nil {
			return from, to, fmt.Errorf("invalid --to date %q", toFlag)
		}
		// Include the whole end day.
		to = to.AddDate(0, 0, 1).Add(-time.Second)
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return from, to, fmt.Errorf("--to is before --from")
	}
	return from, to, nil
}
