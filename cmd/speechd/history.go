package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/sati-bodhi/gpu-accelerated-speech-to-text-for-ubuntu/internal/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent transcripts and routing statistics",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "number of entries to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgFile)
	if err != nil {
		return err
	}
	if _, err := os.Stat(cfg.Paths.HistoryDB); err != nil {
		fmt.Println("No history yet.")
		return nil
	}

	store, err := history.Open(cfg.Paths.HistoryDB)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	entries, err := store.Recent(ctx, historyLimit)
	if err != nil {
		return err
	}
	st, err := store.Stats(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tPATH\tCONF\tTOOK\tTEXT")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s\t%s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"),
			e.Path,
			e.Confidence,
			e.ProcessingTime.Round(10*time.Millisecond),
			truncate(e.Text, 60))
	}
	tw.Flush()

	fmt.Println()
	fmt.Printf("Processed: %d (fast %d, corrected %d, fallback %d)\n", st.Processed, st.Fast, st.Corrected, st.Fallback)
	fmt.Printf("Average processing: %s, average correction: %s\n",
		st.AvgProcessingTime.Round(time.Millisecond), st.AvgCorrectionTime.Round(time.Millisecond))
	return nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
