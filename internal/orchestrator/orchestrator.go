// Package orchestrator routes a translation request between the primary and
// secondary providers: it pre-routes sensitive input, validates the primary's
// answer and falls back with a machine-readable reason.
package orchestrator

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/valpere/perevod/internal/chunker"
	"github.com/valpere/perevod/internal/classifier"
	"github.com/valpere/perevod/internal/lang"
	"github.com/valpere/perevod/internal/translator"
	"github.com/valpere/perevod/internal/validator"
)

// MaxTextRunes is the longest accepted input.
const MaxTextRunes = 10000

const (
	errUnsupportedTarget    = "Unsupported target"
	errTextRequired         = "Text is required"
	errTextTooLong          = "Text is too long"
	errSecondaryMissing     = "secondary provider is not configured"
	errSecondaryFailed      = "secondary provider error"
	detailUnsupportedTarget = "unsupported_target"
)

type Request struct {
	Text   string
	Target string
	// Source defaults to classifier.SourceText.
	Source classifier.SourceKind
}

// Observer is notified once per routed request.
type Observer func(ctx context.Context, req Request, out Outcome, elapsed time.Duration)

type Option func(*Orchestrator)

func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

func WithObserver(fn Observer) Option {
	return func(o *Orchestrator) { o.observer = fn }
}

// Orchestrator holds only injected collaborators and is safe for concurrent use.
type Orchestrator struct {
	primary   translator.TranslationService
	secondary translator.TranslationService
	gate      *validator.Gate
	log       zerolog.Logger
	observer  Observer
}

// New creates an Orchestrator. A nil gate selects the Standard strictness
// without a language detector.
func New(primary, secondary translator.TranslationService, gate *validator.Gate, opts ...Option) *Orchestrator {
	if gate == nil {
		gate = validator.New(validator.Standard, nil)
	}
	o := &Orchestrator{
		primary:   primary,
		secondary: secondary,
		gate:      gate,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Close releases providers that hold resources, such as a shared SDK client.
func (o *Orchestrator) Close() error {
	var errs []error
	for _, svc := range []translator.TranslationService{o.primary, o.secondary} {
		if c, ok := svc.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

// Route runs one routing pass. It never returns nil.
func (o *Orchestrator) Route(ctx context.Context, req Request) Outcome {
	if req.Source == "" {
		req.Source = classifier.SourceText
	}

	start := time.Now()
	out := o.route(ctx, req)
	elapsed := time.Since(start)

	o.logOutcome(req, out, elapsed)
	if o.observer != nil {
		o.observer(ctx, req, out, elapsed)
	}
	return out
}

func (o *Orchestrator) route(ctx context.Context, req Request) Outcome {
	p, ok := lang.Lookup(req.Target)
	if !ok {
		return &Failure{Error: errUnsupportedTarget, StatusCode: 400, Detail: detailUnsupportedTarget}
	}

	trimmed := strings.TrimSpace(req.Text)
	if trimmed == "" {
		return &Failure{Error: errTextRequired, StatusCode: 400}
	}
	if utf8.RuneCountInString(trimmed) > MaxTextRunes {
		return &Failure{Error: errTextTooLong, StatusCode: 400}
	}

	var (
		reason     FallbackReason
		finish     string
		primaryErr *translator.ProviderError
	)

	switch {
	case o.isSensitive(req.Text, req.Source):
		reason = ReasonNSFWRouter
	case o.primary == nil || o.primary.IsAvailable(ctx) != nil:
		reason = ReasonMissingPrimaryKey
	default:
		out, err := o.primary.Translate(ctx, translator.Request{Text: req.Text, Target: p.Tag})
		switch {
		case errors.Is(err, translator.ErrMissingKey):
			reason = ReasonMissingPrimaryKey
		case err != nil:
			reason = ReasonPrimaryError
			primaryErr = asProviderError(o.primary.Name(), err)
			o.log.Warn().
				Str("provider", primaryErr.Provider).
				Str("kind", string(primaryErr.Kind)).
				Int("status", primaryErr.Status).
				Str("details", primaryErr.Detail).
				Msg("primary provider failed")
		default:
			finish = out.FinishReason
			verdict := o.gate.Evaluate(req.Text, out.Text, p.Tag, finish)
			if verdict.Accepted {
				return &Success{Text: out.Text, Role: RolePrimary, Provider: o.primary.Name(), FinishReason: finish}
			}
			reason = FallbackReason(verdict.Reason)
			if verdict.Reason == validator.ReasonContentFilter {
				primaryErr = &translator.ProviderError{
					Provider: o.primary.Name(),
					Kind:     translator.KindEmpty,
					Status:   200,
					Detail:   validator.FinishContentFilter,
				}
			}
		}
	}

	return o.fallback(ctx, req.Text, p, reason, finish, primaryErr)
}

func (o *Orchestrator) fallback(ctx context.Context, text string, p lang.Profile, reason FallbackReason, finish string, primaryErr *translator.ProviderError) Outcome {
	if o.secondary == nil || o.secondary.IsAvailable(ctx) != nil {
		f := &Failure{
			Error:          errSecondaryMissing,
			StatusCode:     502,
			FallbackReason: reason,
			FinishReason:   finish,
		}
		if primaryErr != nil {
			f.UpstreamStatus = primaryErr.Status
			f.Detail = primaryErr.Detail
		}
		return f
	}

	translated, err := o.translateSecondary(ctx, text, p.Tag)
	if err != nil {
		f := &Failure{
			Error:          errSecondaryFailed,
			StatusCode:     502,
			FallbackReason: reason,
			FinishReason:   finish,
		}
		if errors.Is(err, translator.ErrMissingKey) {
			f.Error = errSecondaryMissing
			return f
		}
		pErr := asProviderError(o.secondary.Name(), err)
		f.UpstreamStatus = pErr.Status
		f.Detail = pErr.Detail
		o.log.Warn().
			Str("provider", pErr.Provider).
			Str("kind", string(pErr.Kind)).
			Int("status", pErr.Status).
			Str("details", pErr.Detail).
			Msg("secondary provider failed")
		return f
	}

	return &Success{
		Text:           translated,
		Role:           RoleSecondary,
		Provider:       o.secondary.Name(),
		FallbackReason: reason,
		FinishReason:   finish,
	}
}

func (o *Orchestrator) translateSecondary(ctx context.Context, text string, target lang.Tag) (string, error) {
	if classifier.UseLineByLine(text) {
		return chunker.TranslateLines(ctx, text, func(ctx context.Context, line string) (string, error) {
			out, err := o.secondary.Translate(ctx, translator.Request{Text: line, Target: target})
			if err != nil {
				return "", err
			}
			return out.Text, nil
		})
	}

	out, err := o.secondary.Translate(ctx, translator.Request{Text: text, Target: target})
	if err != nil {
		return "", err
	}
	return out.Text, nil
}

func (o *Orchestrator) isSensitive(text string, source classifier.SourceKind) bool {
	if source != classifier.SourceSpeech {
		return classifier.IsSensitive(text, source)
	}

	score := classifier.ScoreSpeech(text)
	o.log.Debug().
		Int("score", score.Score).
		Strs("strong", score.Strong).
		Strs("weak", score.Weak).
		Bool("skipped", score.Skipped).
		Msg("speech sensitivity score")
	return score.Route()
}

// asProviderError normalizes err, which may be wrapped by the line splitter.
func asProviderError(provider string, err error) *translator.ProviderError {
	var pErr *translator.ProviderError
	if errors.As(err, &pErr) {
		return pErr
	}
	return &translator.ProviderError{
		Provider: provider,
		Kind:     translator.KindTransport,
		Detail:   translator.Truncate(err.Error(), translator.MaxDetailRunes),
		Err:      err,
	}
}

func (o *Orchestrator) logOutcome(req Request, out Outcome, elapsed time.Duration) {
	res := Flatten(out)
	ev := o.log.Info().
		Str("target", req.Target).
		Str("source", string(req.Source)).
		Int("status_code", res.StatusCode).
		Dur("latency", elapsed)
	if res.ProviderUsed != nil {
		ev = ev.Str("provider_used", *res.ProviderUsed)
	}
	if res.Provider != nil {
		ev = ev.Str("provider", *res.Provider)
	}
	if res.FallbackReason != nil {
		ev = ev.Str("fallback_reason", *res.FallbackReason)
	}
	if res.FinishReason != nil {
		ev = ev.Str("finish_reason", *res.FinishReason)
	}
	ev.Msg("translation routed")
}
