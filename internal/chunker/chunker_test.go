package chunker

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type recorder struct {
	sent   []string
	failOn string
}

func (r *recorder) translate(_ context.Context, line string) (string, error) {
	r.sent = append(r.sent, line)
	if line == r.failOn {
		return "", errors.New("upstream failed")
	}
	return strings.ToUpper(line), nil
}

func TestTranslateLines_PreservesLayout(t *testing.T) {
	rec := &recorder{}
	got, err := TranslateLines(context.Background(), "- one\n\n- two\r\n  \r- three", rec.translate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "- ONE\n\n- TWO\n  \n- THREE"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
	if len(rec.sent) != 3 {
		t.Errorf("expected 3 lines sent, got %d: %v", len(rec.sent), rec.sent)
	}
}

func TestTranslateLines_BlankLinesNeverSent(t *testing.T) {
	rec := &recorder{}
	if _, err := TranslateLines(context.Background(), "a\n   \n\t\nb", rec.translate); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, line := range rec.sent {
		if strings.TrimSpace(line) == "" {
			t.Errorf("blank line %q was sent", line)
		}
	}
}

func TestTranslateLines_StopsAtFirstFailure(t *testing.T) {
	rec := &recorder{failOn: "3. third"}
	text := "1. first\n2. second\n3. third\n4. fourth\n5. fifth"

	got, err := TranslateLines(context.Background(), text, rec.translate)
	if err == nil {
		t.Fatal("expected error")
	}
	if got != "" {
		t.Errorf("expected no partial output, got %q", got)
	}

	var lineErr *LineError
	if !errors.As(err, &lineErr) {
		t.Fatalf("expected *LineError, got %T", err)
	}
	if lineErr.Line != 2 {
		t.Errorf("expected failing line 2, got %d", lineErr.Line)
	}

	if len(rec.sent) != 3 {
		t.Errorf("expected 3 lines sent, got %d: %v", len(rec.sent), rec.sent)
	}
	for _, line := range rec.sent {
		if line == "4. fourth" || line == "5. fifth" {
			t.Errorf("line after the failure was sent: %q", line)
		}
	}
}

func TestTranslateLines_TrailingNewline(t *testing.T) {
	rec := &recorder{}
	got, err := TranslateLines(context.Background(), "a\nb\n", rec.translate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "A\nB\n" {
		t.Errorf("expected %q, got %q", "A\nB\n", got)
	}
}

func TestTranslateLines_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := &recorder{}
	_, err := TranslateLines(ctx, "a\nb", rec.translate)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if len(rec.sent) != 0 {
		t.Errorf("expected no lines sent, got %v", rec.sent)
	}
}
