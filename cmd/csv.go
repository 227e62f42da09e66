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
	"encoding/csv"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/valpere/perevod/internal/classifier"
	"github.com/valpere/perevod/internal/lang"
	"github.com/valpere/perevod/internal/orchestrator"
)

var (
	csvInputFile  string
	csvOutputFile string
	csvTargetLang string
	csvColumns    []int
	csvSkipHeader bool
)

var csvCmd = &cobra.Command{
	Use:   "csv",
	Short: "Translate columns of a CSV file",
	Long: `Translate one or more columns in a CSV file, one routed request per cell.

By default all columns are translated. Use -l to select specific columns
(0-indexed). The flag may be repeated to select multiple columns.
Cells that fail to translate keep their original text and are reported.

Example:
  perevod translate csv -i data.csv -o out.csv -t pt-br -l 1 -l 3 --header`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if csvInputFile == csvOutputFile {
			return fmt.Errorf("input file and output file cannot be the same")
		}
		target, ok := lang.Resolve(csvTargetLang)
		if !ok {
			return fmt.Errorf("unsupported target language %q", csvTargetLang)
		}

		f, err := os.Open(csvInputFile)
		if err != nil {
			return fmt.Errorf("failed to open input CSV: %w", err)
		}
		defer f.Close()

		reader := csv.NewReader(f)
		reader.FieldsPerRecord = -1
		records, err := reader.ReadAll()
		if err != nil {
			return fmt.Errorf("failed to read CSV: %w", err)
		}
		if len(records) == 0 {
			return fmt.Errorf("CSV file is empty")
		}

		router, db, err := buildRouter(cfg)
		if err != nil {
			return err
		}
		defer router.Close()
		if db != nil {
			defer db.Close()
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		colSet := make(map[int]bool, len(csvColumns))
		for _, c := range csvColumns {
			colSet[c] = true
		}
		translateAll := len(csvColumns) == 0

		var translated, failed int
		out := make([][]string, len(records))
		for rowIdx, row := range records {
			out[rowIdx] = make([]string, len(row))
			copy(out[rowIdx], row)
			if csvSkipHeader && rowIdx == 0 {
				continue
			}

			for colIdx, cell := range row {
				if !translateAll && !colSet[colIdx] {
					continue
				}
				if cell == "" {
					continue
				}
				if ctx.Err() != nil {
					return fmt.Errorf("interrupted at row %d: %w", rowIdx, ctx.Err())
				}

				res := orchestrator.Flatten(router.Route(ctx, orchestrator.Request{
					Text:   cell,
					Target: string(target),
					Source: classifier.SourceText,
				}))
				if !res.OK {
					failed++
					fmt.Fprintf(os.Stderr, "Row %d col %d: %s, keeping original\n", rowIdx, colIdx, res.Error)
					continue
				}
				out[rowIdx][colIdx] = res.Text
				translated++
			}
		}

		outFile, err := os.Create(csvOutputFile)
		if err != nil {
			return fmt.Errorf("failed to create output CSV: %w", err)
		}
		defer outFile.Close()

		writer := csv.NewWriter(outFile)
		if err := writer.WriteAll(out); err != nil {
			return fmt.Errorf("failed to write output CSV: %w", err)
		}
		if err := writer.Error(); err != nil {
			return fmt.Errorf("failed to flush output CSV: %w", err)
		}

		fmt.Printf("CSV translated: %s (%d cells translated, %d kept)\n", csvOutputFile, translated, failed)
		return nil
	},
}

func init() {
	translateCmd.AddCommand(csvCmd)

	csvCmd.Flags().StringVarP(&csvInputFile, "input", "i", "", "Input CSV file (required)")
	csvCmd.Flags().StringVarP(&csvOutputFile, "output", "o", "", "Output CSV file (required)")
	csvCmd.Flags().StringVarP(&csvTargetLang, "target", "t", "", "Target language (required)")
	csvCmd.Flags().IntSliceVarP(&csvColumns, "column", "l", nil, "Column index to translate (0-indexed, repeatable; default: all columns)")
	csvCmd.Flags().BoolVar(&csvSkipHeader, "header", false, "Leave the first row untranslated")

	csvCmd.MarkFlagRequired("input")
	csvCmd.MarkFlagRequired("output")
	csvCmd.MarkFlagRequired("target")
}
