package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"prsheet/internal/config"
	"prsheet/internal/history"
)

var statusCount int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent sync runs",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(configPath)
		if err != nil {
			fatalf("failed to load config: %v", err)
		}
		path, err := config.HistoryPath(cfg)
		if err != nil {
			fatalf("failed to locate run history: %v", err)
		}
		store, err := history.Open(path)
		if err != nil {
			fatalf("failed to open run history: %v", err)
		}
		defer store.Close()

		runs, err := store.Recent(context.Background(), statusCount)
		if err != nil {
			fatalf("failed to read run history: %v", err)
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded yet. Run 'prsheet sync' first.")
			return
		}
		for _, r := range runs {
			icon := "✅"
			switch r.Outcome {
			case "failure":
				icon = "❌"
			case "canceled":
				icon = "⚠️ "
			}
			fmt.Printf("%s %s  %-8s %-15s %6s  +%d ~%d ↕%d\n",
				icon, r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Outcome, r.Phase,
				formatDuration(r.Elapsed), r.Inserts, r.Updates, r.Moves)
			if r.Cause != "" {
				fmt.Printf("   %s\n", r.Cause)
			}
			if r.SourcesFailed > 0 {
				fmt.Printf("   %d sources failed\n", r.SourcesFailed)
			}
		}
	},
}

func init() {
	statusCmd.Flags().IntVarP(&statusCount, "number", "n", 10, "Number of runs to show")
	rootCmd.AddCommand(statusCmd)
}
