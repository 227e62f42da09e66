// Package chunker translates line-oriented text one line at a time so the
// line layout of lists and tables survives translation.
package chunker

import (
	"context"
	"fmt"
	"strings"

	"github.com/valpere/perevod/internal/classifier"
)

// TranslateFunc translates a single non-blank line.
type TranslateFunc func(ctx context.Context, line string) (string, error)

// LineError reports which line failed.
type LineError struct {
	// Line is the zero-based index of the failing line.
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line+1, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// TranslateLines splits text on "\r\n", "\n" and "\r" and translates every
// non-blank line with fn, sequentially. Blank lines are kept verbatim and are
// never sent. The first failure aborts the whole call; later lines are not
// sent. Translated lines are joined with "\n".
func TranslateLines(ctx context.Context, text string, fn TranslateFunc) (string, error) {
	lines := classifier.SplitLines(text)
	out := make([]string, len(lines))

	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			out[i] = line
			continue
		}
		if err := ctx.Err(); err != nil {
			return "", &LineError{Line: i, Err: err}
		}

		translated, err := fn(ctx, line)
		if err != nil {
			return "", &LineError{Line: i, Err: err}
		}
		out[i] = translated
	}

	return strings.Join(out, "\n"), nil
}
