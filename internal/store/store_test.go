package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/valpere/perevod/internal"
	"github.com/valpere/perevod/internal/classifier"
	"github.com/valpere/perevod/internal/orchestrator"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_New(t *testing.T) {
	s := newTestStore(t)
	if s == nil {
		t.Fatal("expected non-nil store")
	}
}

func TestStore_New_InvalidPath(t *testing.T) {
	_, err := New("/nonexistent/path/test.db")
	if err == nil {
		t.Error("expected error for invalid path")
	}
}

func TestStore_SaveAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	records := []internal.RequestRecord{
		{ID: "a", TargetLang: "en", SourceKind: "text", OK: true, ProviderUsed: "primary", Provider: "openai", StatusCode: 200, Timestamp: base},
		{ID: "b", TargetLang: "ru", SourceKind: "speech", OK: true, ProviderUsed: "secondary", Provider: "deepl", FallbackReason: "nsfw_router", StatusCode: 200, Timestamp: base.Add(time.Minute)},
		{ID: "c", TargetLang: "pt-br", SourceKind: "text", OK: false, StatusCode: 502, UpstreamStatus: 503, Error: "secondary provider error", Timestamp: base.Add(2 * time.Minute)},
	}
	for _, r := range records {
		if err := s.SaveRequest(ctx, r); err != nil {
			t.Fatalf("SaveRequest failed: %v", err)
		}
	}

	got, err := s.ListRequests(ctx, 0)
	if err != nil {
		t.Fatalf("ListRequests failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got))
	}
	if got[0].ID != "c" || got[2].ID != "a" {
		t.Errorf("expected newest first, got %s..%s", got[0].ID, got[2].ID)
	}
	if got[0].UpstreamStatus != 503 || got[0].OK {
		t.Errorf("failure record not round-tripped: %+v", got[0])
	}
	if got[1].FallbackReason != "nsfw_router" {
		t.Errorf("expected nsfw_router, got %q", got[1].FallbackReason)
	}

	limited, err := s.ListRequests(ctx, 2)
	if err != nil {
		t.Fatalf("ListRequests failed: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("expected 2 records, got %d", len(limited))
	}
}

func TestStore_SaveRequest_FillsDefaults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveRequest(ctx, internal.RequestRecord{TargetLang: "en", SourceKind: "text", StatusCode: 400}); err != nil {
		t.Fatalf("SaveRequest failed: %v", err)
	}

	got, err := s.ListRequests(ctx, 1)
	if err != nil {
		t.Fatalf("ListRequests failed: %v", err)
	}
	if len(got) != 1 || got[0].ID == "" || got[0].Timestamp.IsZero() {
		t.Errorf("expected generated id and timestamp, got %+v", got)
	}
}

func TestStore_Stats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	records := []internal.RequestRecord{
		{TargetLang: "en", OK: true, ProviderUsed: "primary", Provider: "openai", StatusCode: 200, LatencyMs: 100},
		{TargetLang: "en", OK: true, ProviderUsed: "primary", Provider: "openai", StatusCode: 200, LatencyMs: 300},
		{TargetLang: "ru", OK: true, ProviderUsed: "secondary", Provider: "deepl", FallbackReason: "too_short", StatusCode: 200, LatencyMs: 200},
		{TargetLang: "ru", OK: false, StatusCode: 502, LatencyMs: 400},
	}
	for _, r := range records {
		if err := s.SaveRequest(ctx, r); err != nil {
			t.Fatalf("SaveRequest failed: %v", err)
		}
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Total != 4 || stats.Succeeded != 3 || stats.Failed != 1 {
		t.Errorf("unexpected counts: %+v", stats)
	}
	if stats.AvgLatencyMs != 250 {
		t.Errorf("expected avg latency 250, got %v", stats.AvgLatencyMs)
	}
	if stats.ByRole["primary"] != 2 || stats.ByRole["secondary"] != 1 {
		t.Errorf("unexpected role counts: %v", stats.ByRole)
	}
	if stats.ByProvider["openai"] != 2 || stats.ByProvider["deepl"] != 1 {
		t.Errorf("unexpected provider counts: %v", stats.ByProvider)
	}
	if stats.ByReason["none"] != 2 || stats.ByReason["too_short"] != 1 {
		t.Errorf("unexpected reason counts: %v", stats.ByReason)
	}
}

func TestStore_Stats_Empty(t *testing.T) {
	s := newTestStore(t)

	stats, err := s.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Total != 0 || stats.AvgLatencyMs != 0 {
		t.Errorf("expected empty stats, got %+v", stats)
	}
}

func TestStore_ClearAndPrune(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	s.SaveRequest(ctx, internal.RequestRecord{TargetLang: "en", StatusCode: 200, Timestamp: now.Add(-48 * time.Hour)})
	s.SaveRequest(ctx, internal.RequestRecord{TargetLang: "en", StatusCode: 200, Timestamp: now})

	pruned, err := s.Prune(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if pruned != 1 {
		t.Errorf("expected 1 pruned, got %d", pruned)
	}

	cleared, err := s.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if cleared != 1 {
		t.Errorf("expected 1 cleared, got %d", cleared)
	}
}

func TestDigest_Normalizes(t *testing.T) {
	// "é" precomposed vs "e" + combining acute.
	if Digest("  caf\u00e9 ") != Digest("cafe\u0301") {
		t.Error("expected NFC-equivalent texts to share a digest")
	}
	if Digest("hello") == Digest("hullo") {
		t.Error("expected different texts to differ")
	}
	if len(Digest("x")) != 64 {
		t.Errorf("expected hex sha256, got %q", Digest("x"))
	}
}

func TestNewRecord(t *testing.T) {
	req := orchestrator.Request{Text: " привет ", Target: "en", Source: classifier.SourceSpeech}
	out := &orchestrator.Success{Text: "hi", Role: orchestrator.RoleSecondary, Provider: "deepl", FallbackReason: orchestrator.ReasonNSFWRouter}

	rec := NewRecord(req, out, 1500*time.Millisecond)
	if !rec.OK || rec.ProviderUsed != "secondary" || rec.Provider != "deepl" || rec.FallbackReason != "nsfw_router" {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.TextRunes != 6 {
		t.Errorf("expected 6 runes, got %d", rec.TextRunes)
	}
	if rec.SourceKind != "speech" || rec.LatencyMs != 1500 || rec.StatusCode != 200 {
		t.Errorf("unexpected record: %+v", rec)
	}

	fail := &orchestrator.Failure{Error: "Text is required", StatusCode: 400}
	rec = NewRecord(orchestrator.Request{Target: "en"}, fail, 0)
	if rec.OK || rec.ProviderUsed != "" || rec.Provider != "" || rec.StatusCode != 400 || rec.Error != "Text is required" {
		t.Errorf("unexpected failure record: %+v", rec)
	}
}

func TestStore_Observer(t *testing.T) {
	s := newTestStore(t)
	observe := s.Observer(zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	observe(ctx, orchestrator.Request{Text: "hello", Target: "ru", Source: classifier.SourceText},
		&orchestrator.Success{Text: "привет", Role: orchestrator.RolePrimary, Provider: "openai"}, time.Millisecond)

	got, err := s.ListRequests(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListRequests failed: %v", err)
	}
	if len(got) != 1 || got[0].ProviderUsed != "primary" || got[0].Provider != "openai" || got[0].TargetLang != "ru" {
		t.Errorf("expected observed request to be stored, got %+v", got)
	}
}
