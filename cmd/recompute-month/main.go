// recompute-month recomputes a single month's payout run from the command
// line, bypassing the HTTP surface. Useful after bulk basis imports or a
// team member config fix.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... \
//     go run ./cmd/recompute-month --month-key 2025-07
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/payouts_backend/config"
	"bitbucket.org/mmdatafocus/payouts_backend/fx"
	"bitbucket.org/mmdatafocus/payouts_backend/models"
	"bitbucket.org/mmdatafocus/payouts_backend/utils"
	"bitbucket.org/mmdatafocus/payouts_backend/workflow"
)

func main() {
	monthKey := flag.String("month-key", "", "Required: month key (YYYY-MM)")
	monthId := flag.Int("month-id", 0, "Optional: month id (overrides --month-key)")
	skipFx := flag.Bool("skip-fx", false, "Use the fixed fallback FX rate instead of calling the provider")
	flag.Parse()

	if *monthId <= 0 && strings.TrimSpace(*monthKey) == "" {
		fmt.Fprintln(os.Stderr, "--month-key or --month-id is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	ctx := context.Background()
	ctx = utils.SetUserIdInContext(ctx, 0)
	ctx = utils.SetUsernameInContext(ctx, "System")
	ctx = utils.SetUserEmailInContext(ctx, "system@mmdatafocus.com")

	id := *monthId
	if id <= 0 {
		var month models.Month
		if err := db.WithContext(ctx).Where("month_key = ?", strings.TrimSpace(*monthKey)).First(&month).Error; err != nil {
			fmt.Fprintf(os.Stderr, "month %q not found: %v\n", *monthKey, err)
			os.Exit(1)
		}
		id = month.ID
	}

	var resolver fx.Resolver
	if !*skipFx {
		resolver = fx.NewDefaultRateCache()
	}

	result, err := workflow.ComputePayouts(ctx, resolver, id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "compute failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Recomputed %s: run=%d status=%s lines=%d fx=%s (%s)\n",
		result.MonthKey, result.Run.ID, result.Status, len(result.Lines),
		result.FxRate.Rate.String(), result.FxRate.Source)
}
