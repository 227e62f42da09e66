package orchestrator

// FallbackReason names why the secondary provider handled a request.
type FallbackReason string

const (
	ReasonNSFWRouter        FallbackReason = "nsfw_router"
	ReasonMissingPrimaryKey FallbackReason = "missing_primary_key"
	ReasonEmpty             FallbackReason = "empty"
	ReasonContentFilter     FallbackReason = "content_filter"
	ReasonTooShort          FallbackReason = "too_short"
	ReasonRefusal           FallbackReason = "refusal_text"
	ReasonWrongLang         FallbackReason = "wrong_lang"
	ReasonPrimaryError      FallbackReason = "primary_error"
)

// Role says which of the two configured providers produced a translation.
type Role string

const (
	RolePrimary   Role = "primary"
	RoleSecondary Role = "secondary"
)

// Outcome is the result of one routing pass: either *Success or *Failure.
type Outcome interface {
	outcome()
	// Status is the HTTP status a surface should answer with.
	Status() int
}

type Success struct {
	Text string
	Role Role
	// Provider is the name of the adapter behind Role, e.g. "openai".
	Provider string
	// FallbackReason is empty when the primary provider's answer was accepted.
	FallbackReason FallbackReason
	FinishReason   string
}

type Failure struct {
	Error      string
	StatusCode int
	// UpstreamStatus and Detail describe the last upstream failure, if any.
	UpstreamStatus int
	Detail         string
	FallbackReason FallbackReason
	FinishReason   string
}

func (*Success) outcome() {}
func (*Failure) outcome() {}

func (*Success) Status() int   { return 200 }
func (f *Failure) Status() int { return f.StatusCode }

// TranslationResult is the flat, caller-facing record of an Outcome.
type TranslationResult struct {
	OK             bool    `json:"ok"`
	Text           string  `json:"text,omitempty"`
	Provider       *string `json:"provider"`
	ProviderUsed   *string `json:"provider_used"`
	FallbackReason *string `json:"fallback_reason"`
	FinishReason   *string `json:"finish_reason"`
	Error          string  `json:"error,omitempty"`
	Status         int     `json:"status,omitempty"`
	Details        string  `json:"details,omitempty"`
	StatusCode     int     `json:"status_code"`
}

// Flatten converts an Outcome into its TranslationResult. Empty optional
// fields become JSON nulls.
func Flatten(o Outcome) TranslationResult {
	switch v := o.(type) {
	case *Success:
		return TranslationResult{
			OK:             true,
			Text:           v.Text,
			Provider:       optional(v.Provider),
			ProviderUsed:   optional(string(v.Role)),
			FallbackReason: optional(string(v.FallbackReason)),
			FinishReason:   optional(v.FinishReason),
			StatusCode:     v.Status(),
		}
	case *Failure:
		return TranslationResult{
			FallbackReason: optional(string(v.FallbackReason)),
			FinishReason:   optional(v.FinishReason),
			Error:          v.Error,
			Status:         v.UpstreamStatus,
			Details:        v.Detail,
			StatusCode:     v.Status(),
		}
	}
	return TranslationResult{Error: "no outcome", StatusCode: 500}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
