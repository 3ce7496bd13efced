package cli

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/spf13/cobra"

	"github.com/prodscope/prodscope/internal/client"
	"github.com/prodscope/prodscope/internal/conversation"
	"github.com/prodscope/prodscope/internal/health"
	"github.com/prodscope/prodscope/internal/metrics"
	"github.com/prodscope/prodscope/internal/sim"
	"github.com/prodscope/prodscope/internal/workflow"
)

var dashQuery string

var dashCmd = &cobra.Command{
	Use:   "dash",
	Short: "Run the interactive insight dashboard",
	Long: `Run the full-screen dashboard: pipeline progress, analyst chat and
data-source health side by side.

Examples:
  prodscope dash
  prodscope dash --live --query "yoga mats"
  prodscope dash --config dashboard.yaml`,
	RunE: runDash,
}

func init() {
	dashCmd.Flags().StringVarP(&dashQuery, "query", "q", "product category overview",
		"analysis query for live runs")
}

func runDash(cmd *cobra.Command, args []string) error {
	ledger := workflow.NewLedger(workflow.Config{MaxStep: cfg.MaxStageStep}, logger)
	monitor := health.NewMonitor(health.Config{
		PromoteChance:  cfg.PromoteChance,
		Jitter:         cfg.LatencyJitter,
		RefreshLatency: cfg.RefreshLatency,
	}, logger)
	collector := metrics.NewCollector()

	var deliverer conversation.Deliverer
	var liveStart func(ctx context.Context) error

	if cfg.Simulate {
		deliverer = sim.NewDeliverer(cfg.ReplyDelay, rand.New(rand.NewSource(time.Now().UnixNano())))
	} else {
		api := client.New(cfg.APIURL, cfg.UserID)
		deliverer = api
		liveStart = func(ctx context.Context) error {
			start := time.Now()
			analysisID, err := api.StartAnalysis(ctx, dashQuery)
			if err != nil {
				return err
			}
			feed := workflow.NewFeed(api.BaseURL(), analysisID, ledger, logger)
			if err := feed.Run(ctx); err != nil {
				return err
			}
			collector.RecordTiming(metrics.OpAnalysis, time.Since(start))
			return nil
		}
	}

	controller := conversation.NewController(conversation.NewLedger(nil), deliverer, logger)

	model := newDashboardModel(dashboardDeps{
		title:      cfg.AppTitle,
		logger:     logger,
		ledger:     ledger,
		controller: controller,
		monitor:    monitor,
		collector:  collector,
		liveStart:  liveStart,
		stageTick:  cfg.StageTickInterval,
		healthTick: cfg.HealthTickInterval,
	})

	p := tea.NewProgram(model)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("dashboard error: %w", err)
	}
	return nil
}
