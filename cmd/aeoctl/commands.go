package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aeo-tracker/backend/internal/storage/models"
	"github.com/aeo-tracker/backend/internal/temporal"
)

func newExportCmd(open storeOpener) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every collection as one JSON snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, backend, err := open()
			if err != nil {
				return err
			}
			defer backend.Close()

			snapshot, err := store.ExportData(cmd.Context())
			if err != nil {
				return codeError(2, "exporting: %s", err)
			}

			w := cmd.OutOrStdout()
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return codeError(1, "creating %s: %s", out, err)
				}
				defer f.Close()
				w = f
			}
			return writeJSON(w, snapshot)
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "Write the snapshot to this file instead of stdout")

	return cmd
}

func newImportCmd(open storeOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "import <snapshot.json>",
		Short: "Replace the collections present in a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return codeError(1, "reading %s: %s", args[0], err)
			}

			var snapshot models.Snapshot
			if err := json.Unmarshal(raw, &snapshot); err != nil {
				return codeError(1, "parsing %s: %s", args[0], err)
			}

			store, backend, err := open()
			if err != nil {
				return err
			}
			defer backend.Close()

			if err := store.ImportData(cmd.Context(), snapshot); err != nil {
				return codeError(2, "importing: %s", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "imported %d position records, %d variability tests, %d monitoring settings\n",
				len(snapshot.PositionRecords), len(snapshot.VariabilityTests), len(snapshot.MonitoringSettings))
			return nil
		},
	}
}

func newClearCmd(open storeOpener) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete position records and variability tests older than --days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if days <= 0 {
				return codeError(1, "--days must be positive")
			}

			store, backend, err := open()
			if err != nil {
				return err
			}
			defer backend.Close()

			result, err := store.ClearOldData(cmd.Context(), days)
			if err != nil {
				return codeError(2, "clearing: %s", err)
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().IntVar(&days, "days", temporal.DefaultRetentionDays, "Days of history to keep")

	return cmd
}

type seedFlags struct {
	brand   string
	query   string
	website string
	days    int
}

func newSeedCmd(open storeOpener) *cobra.Command {
	var flags seedFlags

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill the store with deterministic demo history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if flags.brand == "" || flags.query == "" {
				return codeError(1, "--brand and --query are required")
			}
			if flags.days <= 0 {
				return codeError(1, "--days must be positive")
			}

			store, backend, err := open()
			if err != nil {
				return err
			}
			defer backend.Close()

			n, err := seedHistory(cmd.Context(), store, flags, time.Now().UTC())
			if err != nil {
				return codeError(2, "seeding: %s", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d position records and %d variability tests\n", n, flags.days)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.brand, "brand", "", "Brand to seed")
	f.StringVar(&flags.query, "query", "", "Query to seed")
	f.StringVar(&flags.website, "website", "", "Brand website")
	f.IntVar(&flags.days, "days", 14, "Days of history to generate")

	return cmd
}

// seedHistory writes one position record per roster LLM per day, oldest
// first, plus one variability test per day. Positions follow a fixed
// pattern so repeated runs produce the same shape.
func seedHistory(ctx context.Context, store *temporal.Store, flags seedFlags, now time.Time) (int, error) {
	roster := store.Roster()
	saved := 0

	for day := flags.days - 1; day >= 0; day-- {
		at := now.AddDate(0, 0, -day)
		results := make([]models.VariabilityResult, 0, len(roster))

		for i, llm := range roster {
			pos := 1 + (day+i)%5
			_, err := store.SavePositionRecord(ctx, models.PositionRecord{
				Timestamp: at.Add(time.Duration(i) * time.Minute).Format(time.RFC3339),
				Brand:     flags.brand,
				Query:     flags.query,
				Website:   flags.website,
				LLM:       llm,
				Position:  pos,
				Mentions:  6 - pos,
				Sentiment: models.SentimentNeutral,
			})
			if err != nil {
				return saved, err
			}
			saved++

			results = append(results, temporal.ScoreVariability(llm, pos, 1+(day+i+1)%5, pos))
		}

		_, err := store.SaveVariabilityTest(ctx, models.VariabilityTest{
			Timestamp: at.Format(time.RFC3339),
			Brand:     flags.brand,
			Query:     flags.query,
			Website:   flags.website,
			Results:   results,
		})
		if err != nil {
			return saved, err
		}
	}

	return saved, nil
}

func newTrendsCmd(open storeOpener) *cobra.Command {
	var (
		brand string
		query string
		hours int
	)

	cmd := &cobra.Command{
		Use:   "trends",
		Short: "Print the per-LLM position trends and their summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if brand == "" || query == "" {
				return codeError(1, "--brand and --query are required")
			}

			store, backend, err := open()
			if err != nil {
				return err
			}
			defer backend.Close()

			trends, err := store.GetPositionTrends(cmd.Context(), brand, query, hours)
			if err != nil {
				return codeError(2, "computing trends: %s", err)
			}
			analysis, err := store.AnalyzeTrends(cmd.Context(), brand, query, hours)
			if err != nil {
				return codeError(2, "analyzing trends: %s", err)
			}

			return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
				"trends":   trends,
				"analysis": analysis,
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&brand, "brand", "", "Brand to report on")
	f.StringVar(&query, "query", "", "Query to report on")
	f.IntVar(&hours, "hours", temporal.DefaultTrendHours, "Trend window in hours")

	return cmd
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
