package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/valpere/perevod/internal/classifier"
	"github.com/valpere/perevod/internal/translator"
	"github.com/valpere/perevod/internal/validator"
)

type mockService struct {
	nameVal       string
	translateFunc func(ctx context.Context, req translator.Request) (*translator.Outcome, error)
	availableFunc func(ctx context.Context) error
	callCount     atomic.Int32

	mu   sync.Mutex
	sent []string
}

func (m *mockService) Name() string { return m.nameVal }

func (m *mockService) Translate(ctx context.Context, req translator.Request) (*translator.Outcome, error) {
	m.callCount.Add(1)
	m.mu.Lock()
	m.sent = append(m.sent, req.Text)
	m.mu.Unlock()
	if m.translateFunc != nil {
		return m.translateFunc(ctx, req)
	}
	return &translator.Outcome{Provider: m.nameVal, Text: "mock result", FinishReason: "stop"}, nil
}

func (m *mockService) IsAvailable(ctx context.Context) error {
	if m.availableFunc != nil {
		return m.availableFunc(ctx)
	}
	return nil
}

func returning(text, finish string) func(context.Context, translator.Request) (*translator.Outcome, error) {
	return func(context.Context, translator.Request) (*translator.Outcome, error) {
		return &translator.Outcome{Text: text, FinishReason: finish}, nil
	}
}

func failing(err error) func(context.Context, translator.Request) (*translator.Outcome, error) {
	return func(context.Context, translator.Request) (*translator.Outcome, error) {
		return nil, err
	}
}

func missingKey(context.Context) error { return translator.ErrMissingKey }

func newMocks() (*mockService, *mockService) {
	primary := &mockService{nameVal: "openai", translateFunc: returning("Hola, ¿cómo estás?", "stop")}
	secondary := &mockService{nameVal: "deepl", translateFunc: returning("Hola, ¿qué tal?", "")}
	return primary, secondary
}

func expectSuccess(t *testing.T, out Outcome) *Success {
	t.Helper()
	s, ok := out.(*Success)
	if !ok {
		t.Fatalf("expected *Success, got %#v", out)
	}
	return s
}

func expectFailure(t *testing.T, out Outcome) *Failure {
	t.Helper()
	f, ok := out.(*Failure)
	if !ok {
		t.Fatalf("expected *Failure, got %#v", out)
	}
	return f
}

func TestRoute_UnsupportedTarget(t *testing.T) {
	primary, secondary := newMocks()
	o := New(primary, secondary, nil)

	for _, target := range []string{"fr", "EN", " pt-br "} {
		f := expectFailure(t, o.Route(context.Background(), Request{Text: "Hello", Target: target}))
		if f.StatusCode != 400 || f.Error != "Unsupported target" || f.Detail != "unsupported_target" {
			t.Errorf("target %q: unexpected failure: %+v", target, f)
		}
	}

	f := expectFailure(t, o.Route(context.Background(), Request{Text: "Hello", Target: "fr"}))
	if f.FallbackReason != "" {
		t.Errorf("expected no fallback reason, got %q", f.FallbackReason)
	}
	if primary.callCount.Load() != 0 || secondary.callCount.Load() != 0 {
		t.Errorf("expected no provider calls, got primary=%d secondary=%d", primary.callCount.Load(), secondary.callCount.Load())
	}
}

func TestRoute_InvalidText(t *testing.T) {
	primary, secondary := newMocks()
	o := New(primary, secondary, nil)

	cases := map[string]string{
		"   \n":                             "Text is required",
		strings.Repeat("a", MaxTextRunes+1): "Text is too long",
	}
	for text, want := range cases {
		f := expectFailure(t, o.Route(context.Background(), Request{Text: text, Target: "en"}))
		if f.StatusCode != 400 || f.Error != want {
			t.Errorf("expected 400 %q, got %d %q", want, f.StatusCode, f.Error)
		}
	}
	if primary.callCount.Load() != 0 || secondary.callCount.Load() != 0 {
		t.Error("expected no provider calls for invalid input")
	}
}

func TestRoute_MaxLengthCountsRunes(t *testing.T) {
	primary, secondary := newMocks()
	o := New(primary, secondary, validator.New(validator.Basic, nil))

	primary.translateFunc = returning(strings.Repeat("b", MaxTextRunes), "stop")
	out := o.Route(context.Background(), Request{Text: strings.Repeat("я", MaxTextRunes), Target: "en"})
	expectSuccess(t, out)
}

func TestRoute_PrimaryAccepted(t *testing.T) {
	primary, secondary := newMocks()
	o := New(primary, secondary, nil)

	s := expectSuccess(t, o.Route(context.Background(), Request{Text: "Hello, how are you?", Target: "es-es"}))

	if s.Role != RolePrimary || s.Provider != "openai" || s.Text != "Hola, ¿cómo estás?" {
		t.Errorf("unexpected success: %+v", s)
	}
	if res := Flatten(s); *res.ProviderUsed != "primary" || *res.Provider != "openai" {
		t.Errorf("expected provider_used primary via openai, got %q via %q", *res.ProviderUsed, *res.Provider)
	}
	if s.FallbackReason != "" {
		t.Errorf("expected no fallback reason, got %q", s.FallbackReason)
	}
	if s.FinishReason != "stop" {
		t.Errorf("expected finish reason stop, got %q", s.FinishReason)
	}
	if secondary.callCount.Load() != 0 {
		t.Errorf("expected secondary not to be called, got %d", secondary.callCount.Load())
	}
}

func TestRoute_ApologeticSourceStaysOnPrimary(t *testing.T) {
	primary, secondary := newMocks()
	primary.translateFunc = returning("I'm sorry, I can't come today.", "stop")
	o := New(primary, secondary, nil)

	s := expectSuccess(t, o.Route(context.Background(), Request{Text: "Lo siento, hoy no puedo ir.", Target: "en"}))

	if s.Role != RolePrimary || s.FallbackReason != "" || s.Text != "I'm sorry, I can't come today." {
		t.Errorf("expected the primary answer to be kept, got %+v", s)
	}
	if secondary.callCount.Load() != 0 {
		t.Errorf("expected secondary not to be called, got %d", secondary.callCount.Load())
	}
}

func TestRoute_PrimaryNetworkError(t *testing.T) {
	primary, secondary := newMocks()
	primary.translateFunc = failing(&translator.ProviderError{Provider: "openai", Kind: translator.KindTransport, Detail: "dial tcp: timeout"})
	o := New(primary, secondary, nil)

	s := expectSuccess(t, o.Route(context.Background(), Request{Text: "Hello, how are you?", Target: "es-es"}))

	if s.Role != RoleSecondary || s.Provider != "deepl" || s.FallbackReason != ReasonPrimaryError {
		t.Errorf("unexpected success: %+v", s)
	}
	if primary.callCount.Load() != 1 || secondary.callCount.Load() != 1 {
		t.Errorf("expected one call each, got primary=%d secondary=%d", primary.callCount.Load(), secondary.callCount.Load())
	}
}

func TestRoute_PlainErrorIsPrimaryError(t *testing.T) {
	primary, secondary := newMocks()
	primary.translateFunc = failing(errors.New("boom"))
	o := New(primary, secondary, nil)

	s := expectSuccess(t, o.Route(context.Background(), Request{Text: "Hello", Target: "ru"}))
	if s.FallbackReason != ReasonPrimaryError {
		t.Errorf("expected %q, got %q", ReasonPrimaryError, s.FallbackReason)
	}
}

func TestRoute_SensitiveTextSkipsPrimary(t *testing.T) {
	primary, secondary := newMocks()
	o := New(primary, secondary, nil)

	s := expectSuccess(t, o.Route(context.Background(), Request{Text: "send me nudes", Target: "ru"}))

	if s.FallbackReason != ReasonNSFWRouter || s.Provider != "deepl" {
		t.Errorf("unexpected success: %+v", s)
	}
	if primary.callCount.Load() != 0 {
		t.Errorf("expected primary not to be called, got %d", primary.callCount.Load())
	}
}

func TestRoute_SpeechTiers(t *testing.T) {
	primary, secondary := newMocks()
	o := New(primary, secondary, validator.New(validator.Basic, nil))

	out := o.Route(context.Background(), Request{
		Text:   "we watched porn and talked about sex all evening",
		Target: "ru",
		Source: classifier.SourceSpeech,
	})
	if s := expectSuccess(t, out); s.FallbackReason != ReasonNSFWRouter {
		t.Errorf("expected %q, got %q", ReasonNSFWRouter, s.FallbackReason)
	}

	out = o.Route(context.Background(), Request{
		Text:   "we talked about sex education at school today",
		Target: "ru",
		Source: classifier.SourceSpeech,
	})
	if s := expectSuccess(t, out); s.Provider != "openai" {
		t.Errorf("expected a single weak term to keep the primary, got %+v", s)
	}
}

func TestRoute_MissingPrimaryKey(t *testing.T) {
	primary, secondary := newMocks()
	primary.availableFunc = missingKey
	o := New(primary, secondary, nil)

	s := expectSuccess(t, o.Route(context.Background(), Request{Text: "Hello", Target: "en"}))

	if s.FallbackReason != ReasonMissingPrimaryKey {
		t.Errorf("expected %q, got %q", ReasonMissingPrimaryKey, s.FallbackReason)
	}
	if primary.callCount.Load() != 0 {
		t.Errorf("expected primary not to be called, got %d", primary.callCount.Load())
	}
}

func TestRoute_GateRejections(t *testing.T) {
	long := strings.Repeat("This sentence is long enough. ", 5)

	cases := []struct {
		name   string
		text   string
		reply  string
		finish string
		want   FallbackReason
	}{
		{"empty", "Hello", "", "stop", ReasonEmpty},
		{"content filter", "Hello", "anything", "content_filter", ReasonContentFilter},
		{"too short", long, "ok", "stop", ReasonTooShort},
		{"refusal", "Hello, please translate this", "I'm sorry, but I can't help with that.", "stop", ReasonRefusal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			primary, secondary := newMocks()
			primary.translateFunc = returning(tc.reply, tc.finish)
			o := New(primary, secondary, validator.New(validator.Standard, nil))

			s := expectSuccess(t, o.Route(context.Background(), Request{Text: tc.text, Target: "es-es"}))
			if s.FallbackReason != tc.want {
				t.Errorf("expected %q, got %q", tc.want, s.FallbackReason)
			}
			if s.Provider != "deepl" {
				t.Errorf("expected deepl, got %q", s.Provider)
			}
			if primary.callCount.Load() != 1 {
				t.Errorf("expected the primary to be tried once, got %d", primary.callCount.Load())
			}
		})
	}
}

func TestRoute_WrongLangWhenStrict(t *testing.T) {
	primary, secondary := newMocks()
	primary.translateFunc = returning("Hello, how are you doing today?", "stop")
	o := New(primary, secondary, validator.New(validator.Strict, nil))

	s := expectSuccess(t, o.Route(context.Background(), Request{Text: "Hello, how are you doing today?", Target: "ru"}))
	if s.FallbackReason != ReasonWrongLang {
		t.Errorf("expected %q, got %q", ReasonWrongLang, s.FallbackReason)
	}
}

func TestRoute_SecondaryNotConfigured(t *testing.T) {
	primary, secondary := newMocks()
	primary.translateFunc = returning("", "content_filter")
	secondary.availableFunc = missingKey
	o := New(primary, secondary, nil)

	f := expectFailure(t, o.Route(context.Background(), Request{Text: "Hello", Target: "en"}))

	if f.StatusCode != 502 || f.Error != "secondary provider is not configured" {
		t.Errorf("unexpected failure: %+v", f)
	}
	if f.FallbackReason != ReasonContentFilter {
		t.Errorf("expected %q, got %q", ReasonContentFilter, f.FallbackReason)
	}
	if f.UpstreamStatus != 200 || f.Detail != "content_filter" {
		t.Errorf("expected the primary's detail to be carried, got status=%d detail=%q", f.UpstreamStatus, f.Detail)
	}
	if secondary.callCount.Load() != 0 {
		t.Errorf("expected secondary not to be called, got %d", secondary.callCount.Load())
	}
}

func TestRoute_SecondaryFailure(t *testing.T) {
	primary, secondary := newMocks()
	primary.availableFunc = missingKey
	secondary.translateFunc = failing(&translator.ProviderError{Provider: "deepl", Kind: translator.KindStatus, Status: 456, Detail: "Quota exceeded"})
	o := New(primary, secondary, nil)

	out := o.Route(context.Background(), Request{Text: "Hello", Target: "en"})
	f := expectFailure(t, out)

	if f.StatusCode != 502 || f.UpstreamStatus != 456 || f.Detail != "Quota exceeded" {
		t.Errorf("unexpected failure: %+v", f)
	}
	if f.FallbackReason != ReasonMissingPrimaryKey {
		t.Errorf("expected %q, got %q", ReasonMissingPrimaryKey, f.FallbackReason)
	}

	res := Flatten(out)
	if res.ProviderUsed != nil || res.Provider != nil {
		t.Errorf("expected no provider on failure, got %+v", res)
	}
}

func TestRoute_StructuredTextUsesLineSplitter(t *testing.T) {
	primary, secondary := newMocks()
	primary.availableFunc = missingKey
	secondary.translateFunc = func(_ context.Context, req translator.Request) (*translator.Outcome, error) {
		return &translator.Outcome{Text: strings.ToUpper(req.Text)}, nil
	}
	o := New(primary, secondary, nil)

	s := expectSuccess(t, o.Route(context.Background(), Request{Text: "1. one\n\n2. two\n3. three", Target: "en"}))

	if s.Text != "1. ONE\n\n2. TWO\n3. THREE" {
		t.Errorf("unexpected text %q", s.Text)
	}
	if secondary.callCount.Load() != 3 {
		t.Errorf("expected 3 line calls, got %d", secondary.callCount.Load())
	}
}

func TestRoute_StructuredLineFailureStopsFanOut(t *testing.T) {
	primary, secondary := newMocks()
	primary.availableFunc = missingKey
	secondary.translateFunc = func(_ context.Context, req translator.Request) (*translator.Outcome, error) {
		if req.Text == "- two" {
			return nil, &translator.ProviderError{Provider: "deepl", Kind: translator.KindStatus, Status: 429, Detail: "Too many requests"}
		}
		return &translator.Outcome{Text: req.Text}, nil
	}
	o := New(primary, secondary, nil)

	f := expectFailure(t, o.Route(context.Background(), Request{Text: "- one\n- two\n- three\n- four\n- five", Target: "en"}))

	if f.UpstreamStatus != 429 {
		t.Errorf("expected upstream status 429, got %d", f.UpstreamStatus)
	}
	if secondary.callCount.Load() != 2 {
		t.Errorf("expected fan-out to stop after 2 calls, got %d", secondary.callCount.Load())
	}
}

func TestRoute_PrimaryGetsWholeStructuredText(t *testing.T) {
	primary, secondary := newMocks()
	primary.translateFunc = returning("1. uno\n2. dos\n3. tres\n4. cuatro", "stop")
	o := New(primary, secondary, nil)

	expectSuccess(t, o.Route(context.Background(), Request{Text: "1. one\n2. two\n3. three\n4. four", Target: "es-es"}))
	if primary.callCount.Load() != 1 {
		t.Errorf("expected a single primary call, got %d", primary.callCount.Load())
	}
}

func TestRoute_Deterministic(t *testing.T) {
	primary, secondary := newMocks()
	primary.translateFunc = returning("ok", "stop")
	o := New(primary, secondary, nil)

	req := Request{Text: strings.Repeat("Some long input sentence. ", 5), Target: "pt-br"}
	first, _ := json.Marshal(Flatten(o.Route(context.Background(), req)))
	second, _ := json.Marshal(Flatten(o.Route(context.Background(), req)))

	if string(first) != string(second) {
		t.Errorf("expected identical results, got %s and %s", first, second)
	}
}

func TestRoute_Concurrent(t *testing.T) {
	primary, secondary := newMocks()
	o := New(primary, secondary, nil)

	var wg sync.WaitGroup
	var failures atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := o.Route(context.Background(), Request{Text: "Hello", Target: "es-latam"}).(*Success); !ok {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	if failures.Load() != 0 {
		t.Errorf("expected all routes to succeed, got %d failures", failures.Load())
	}
	if primary.callCount.Load() != 20 {
		t.Errorf("expected 20 primary calls, got %d", primary.callCount.Load())
	}
}

func TestRoute_Observer(t *testing.T) {
	primary, secondary := newMocks()

	var calls int
	var seen Outcome
	o := New(primary, secondary, nil, WithObserver(func(_ context.Context, req Request, out Outcome, _ time.Duration) {
		calls++
		seen = out
		if req.Source != classifier.SourceText {
			t.Errorf("expected default source %q, got %q", classifier.SourceText, req.Source)
		}
	}))

	out := o.Route(context.Background(), Request{Text: "Hello", Target: "en"})
	if calls != 1 {
		t.Errorf("expected observer to be called once, got %d", calls)
	}
	if seen != out {
		t.Error("expected observer to receive the returned outcome")
	}
}

func TestFlatten_JSON(t *testing.T) {
	b, err := json.Marshal(Flatten(&Success{Text: "Hola", Role: RolePrimary, Provider: "openai", FinishReason: "stop"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["ok"] != true || got["provider_used"] != "primary" || got["provider"] != "openai" || got["status_code"] != float64(200) {
		t.Errorf("unexpected result %s", b)
	}
	if v, ok := got["fallback_reason"]; !ok || v != nil {
		t.Errorf("expected fallback_reason to be null, got %s", b)
	}

	res := Flatten(&Failure{Error: "Unsupported target", StatusCode: 400, Detail: "unsupported_target"})
	if res.OK || res.StatusCode != 400 || res.Details != "unsupported_target" || res.ProviderUsed != nil {
		t.Errorf("unexpected failure result %+v", res)
	}
}

type closingService struct {
	mockService
	closed atomic.Int32
	err    error
}

func (c *closingService) Close() error {
	c.closed.Add(1)
	return c.err
}

func TestClose_ClosesProvidersThatHoldResources(t *testing.T) {
	primary := &mockService{nameVal: "openai"}
	closeErr := errors.New("close failed")
	secondary := &closingService{mockService: mockService{nameVal: "google"}, err: closeErr}
	o := New(primary, secondary, nil)

	if err := o.Close(); !errors.Is(err, closeErr) {
		t.Errorf("expected close error, got %v", err)
	}
	if secondary.closed.Load() != 1 {
		t.Errorf("expected secondary closed once, got %d", secondary.closed.Load())
	}
	if err := New(nil, nil, nil).Close(); err != nil {
		t.Errorf("expected nil providers to close cleanly, got %v", err)
	}
}
