package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"prsheet/internal/blocks"
	"prsheet/internal/metrics"
	"prsheet/internal/source"
	"prsheet/internal/syncer"
)

var dryRun bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile recently merged pull requests into the sheet",
	Long: `Collect pull requests merged within the configured lookback window, update or
insert their rows, and sort every repository block by team and merge time.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, log := mustLoad()
		defer func() { _ = log.Sync() }()

		ctx, stop := signalContext()
		defer stop()

		if dryRun {
			r, err := newRunner(ctx, cfg, log, metrics.NoopRecorder{}, nil)
			if err != nil {
				fatalf("failed to initialize: %v", err)
			}
			p, report, err := r.Plan(ctx)
			printReport(report)
			if err != nil {
				fatalf("dry run failed: %v", err)
			}
			printPreview(p)
			return
		}

		store := openHistory(cfg, log)
		if store != nil {
			defer store.Close()
		}
		r, err := newRunner(ctx, cfg, log, metrics.NoopRecorder{}, store)
		if err != nil {
			fatalf("failed to initialize: %v", err)
		}
		out := r.Run(ctx)
		printReport(out.Report)
		printResult(out.Result)
		if err := out.Result.Err(); err != nil {
			fatalf("❌ %v", err)
		}
	},
}

func printReport(report source.Report) {
	fmt.Printf("📥 Collected %d records from %d sources in %s\n", report.Records, report.Sources, formatDuration(report.Elapsed))
	for _, f := range report.Failed {
		fmt.Printf("⚠️  %v\n", f)
	}
}

func printResult(res syncer.Result) {
	fmt.Printf("🔄 Run %s\n", res.RunID)
	fmt.Printf("   updated %d, inserted %d, unchanged %d\n", res.Updates, res.Inserts, res.Unchanged)
	fmt.Printf("   %d blocks, %d unsorted, %d moves\n", res.Blocks, res.Unsorted, res.Moves)
	if res.Failure == nil {
		fmt.Printf("✅ Done in %s\n", formatDuration(res.Elapsed))
	}
}

func printPreview(p syncer.Preview) {
	if p.Plan.Empty() && len(p.Sort.Moves) == 0 {
		fmt.Println("✅ Sheet is up to date.")
		return
	}
	for _, op := range p.Plan.Operations() {
		fmt.Printf("   %-6s row %-4d %s\n", op.Kind, op.Row, op.Record.Key)
	}
	for _, m := range p.Sort.Moves {
		fmt.Printf("   move   row %-4d -> %d\n", m.From, m.To)
	}
	fmt.Printf("📋 %d updates, %d inserts, %d moves across %d blocks (%s)\n",
		len(p.Plan.Updates), len(p.Plan.Inserts), len(p.Sort.Moves), len(p.Blocks), unsortedSummary(p.Blocks, p.Sort))
}

func unsortedSummary(bs []blocks.Block, res blocks.Result) string {
	if res.Unsorted == 0 {
		return "all sorted"
	}
	return fmt.Sprintf("%d of %d unsorted", res.Unsorted, len(bs))
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

func init() {
	syncCmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "Print the planned writes without changing the sheet")
	rootCmd.AddCommand(syncCmd)
}
