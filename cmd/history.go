/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/valpere/perevod/internal/store"
)

var (
	historyLimit     int
	historyOlderThan time.Duration
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect the request history",
	Long: `List, summarise and clear the SQLite request history.

The history records which provider served each request and why a fallback
happened. Source texts are not stored, only their digests.`,
}

func openHistory() (*store.Store, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("no history database configured (use --db)")
	}
	db, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openHistory()
		if err != nil {
			return err
		}
		defer db.Close()

		records, err := db.ListRequests(context.Background(), historyLimit)
		if err != nil {
			return fmt.Errorf("failed to list requests: %w", err)
		}

		if len(records) == 0 {
			fmt.Println("No requests in history.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tTARGET\tSOURCE\tRUNES\tSTATUS\tROLE\tPROVIDER\tFALLBACK\tLATENCY\tERROR")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\t%s\t%dms\t%s\n",
				r.Timestamp.Local().Format("2006-01-02 15:04:05"),
				r.TargetLang, r.SourceKind, r.TextRunes, r.StatusCode,
				dash(r.ProviderUsed), dash(r.Provider), dash(r.FallbackReason), r.LatencyMs, r.Error)
		}
		return w.Flush()
	},
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show provider usage and fallback reasons",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openHistory()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.Stats(context.Background())
		if err != nil {
			return fmt.Errorf("failed to get stats: %w", err)
		}

		fmt.Printf("Total requests:  %d\n", stats.Total)
		fmt.Printf("Succeeded:       %d\n", stats.Succeeded)
		fmt.Printf("Failed:          %d\n", stats.Failed)
		fmt.Printf("Average latency: %.0fms\n", stats.AvgLatencyMs)

		printCounts("By role:", stats.ByRole)
		printCounts("By provider:", stats.ByProvider)
		printCounts("By fallback reason:", stats.ByReason)
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove history entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openHistory()
		if err != nil {
			return err
		}
		defer db.Close()

		var n int64
		if historyOlderThan > 0 {
			n, err = db.Prune(context.Background(), time.Now().Add(-historyOlderThan))
		} else {
			n, err = db.Clear(context.Background())
		}
		if err != nil {
			return fmt.Errorf("failed to clear history: %w", err)
		}
		fmt.Printf("Removed %d entries from history.\n", n)
		return nil
	},
}

func printCounts(title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Println(title)
	for _, k := range keys {
		fmt.Printf("  %-20s %d\n", k, counts[k])
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyListCmd.Flags().IntVarP(&historyLimit, "limit", "n", 50, "Number of entries to show (0 = all)")
	historyClearCmd.Flags().DurationVar(&historyOlderThan, "older-than", 0, "Only remove entries older than this (e.g. 720h)")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyStatsCmd)
	historyCmd.AddCommand(historyClearCmd)
}
