package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/prodscope/prodscope/internal/client"
	"github.com/prodscope/prodscope/internal/health"
	"github.com/prodscope/prodscope/internal/sim"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show data-source health",
	Long: `Print the status of every data source feeding the insight pipeline.

In simulation mode this reports the seeded record set after a refresh; with
--live it queries the backend's data-source endpoint.`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var prober health.Prober
	if cfg.Simulate {
		prober = sim.NewProbe(nil, 0, nil)
	} else {
		prober = client.New(cfg.APIURL, cfg.UserID)
	}

	monitor := health.NewMonitor(health.Config{Prober: prober}, logger)
	if err := monitor.RefreshAll(ctx); err != nil {
		return fmt.Errorf("refresh data sources: %w", err)
	}

	isTTY := term.IsTerminal(int(os.Stdout.Fd()))
	now := time.Now()
	theme := defaultTheme

	for _, r := range monitor.Records() {
		status := string(r.Status)
		if isTTY {
			status = theme.statusStyle(status).Render(status)
		}
		fmt.Printf("%-22s %-12s %s", r.Name, string(r.Kind), status)
		if r.ResponseTimeMs > 0 {
			fmt.Printf("  %4dms", r.ResponseTimeMs)
		}
		fmt.Printf("  sync %s\n", r.LastSyncLabel(now))
	}

	fmt.Printf("\n%.0f%% of sources online\n", monitor.HealthFraction()*100)
	return nil
}
