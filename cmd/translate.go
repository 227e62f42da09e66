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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/valpere/perevod/internal/classifier"
	"github.com/valpere/perevod/internal/lang"
	"github.com/valpere/perevod/internal/orchestrator"
)

var (
	inputFile  string
	outputFile string
	targetLang string
	sourceKind string
	jsonOutput bool
)

var translateCmd = &cobra.Command{
	Use:   "translate [text]",
	Short: "Translate text through the routing engine",
	Long: `Translate a text given as arguments, read from --input, or piped on stdin.

Targets: en, ru, es-es, es-latam, pt-br, pt-pt. Regional tags such as
pt-BR, es-419, es-MX or en-US are mapped onto these.

The result goes to stdout (or --output). With --json the full routing
result is printed, including provider_used (primary or secondary), the
provider name and fallback_reason.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if inputFile != "" && inputFile == outputFile {
			return fmt.Errorf("input file and output file cannot be the same")
		}

		target, ok := lang.Resolve(targetLang)
		if !ok {
			return fmt.Errorf("unsupported target language %q", targetLang)
		}
		source, ok := classifier.ParseSourceKind(sourceKind)
		if !ok {
			return fmt.Errorf("unsupported source kind %q", sourceKind)
		}

		text, err := readInput(cmd.InOrStdin(), args)
		if err != nil {
			return err
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

		out := router.Route(ctx, orchestrator.Request{Text: text, Target: string(target), Source: source})
		res := orchestrator.Flatten(out)

		var payload []byte
		if jsonOutput {
			payload, err = json.MarshalIndent(res, "", "  ")
			if err != nil {
				return err
			}
			payload = append(payload, '\n')
		} else if res.OK {
			payload = []byte(res.Text)
			if outputFile == "" {
				payload = append(payload, '\n')
			}
		}

		if err := writeOutput(cmd.OutOrStdout(), payload); err != nil {
			return err
		}
		if !res.OK {
			return fmt.Errorf("translation failed (%d): %s", res.StatusCode, res.Error)
		}

		provider := ""
		if res.ProviderUsed != nil {
			provider = *res.ProviderUsed
		}
		if res.Provider != nil {
			provider += " (" + *res.Provider + ")"
		}
		reason := "none"
		if res.FallbackReason != nil {
			reason = *res.FallbackReason
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Translated to %s by %s (fallback: %s)\n", target, provider, reason)
		return nil
	},
}

func readInput(stdin io.Reader, args []string) (string, error) {
	switch {
	case len(args) > 0:
		return strings.Join(args, " "), nil
	case inputFile == "" || inputFile == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	default:
		data, err := os.ReadFile(inputFile)
		if err != nil {
			return "", fmt.Errorf("failed to read input file: %w", err)
		}
		return string(data), nil
	}
}

func writeOutput(stdout io.Writer, payload []byte) error {
	if outputFile == "" {
		_, err := stdout.Write(payload)
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(outputFile, payload, 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(translateCmd)

	translateCmd.Flags().StringVarP(&inputFile, "input", "i", "", "Input file to translate (default stdin)")
	translateCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file for the translation (default stdout)")
	translateCmd.Flags().StringVarP(&targetLang, "target", "t", "", "Target language (required)")
	translateCmd.Flags().StringVar(&sourceKind, "source-kind", "text", "Where the text came from: text or speech")
	translateCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the full routing result as JSON")

	translateCmd.MarkFlagRequired("target")
}
