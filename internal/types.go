package internal

import "time"

// RequestRecord is one routed translation as kept in the request history.
// The source text itself is not stored, only its digest and length.
type RequestRecord struct {
	ID             string    `json:"id"`
	TargetLang     string    `json:"target_lang"`
	SourceKind     string    `json:"source_kind"`
	TextDigest     string    `json:"text_digest"`
	TextRunes      int       `json:"text_runes"`
	OK             bool      `json:"ok"`
	ProviderUsed   string    `json:"provider_used,omitempty"`
	Provider       string    `json:"provider,omitempty"`
	FallbackReason string    `json:"fallback_reason,omitempty"`
	FinishReason   string    `json:"finish_reason,omitempty"`
	StatusCode     int       `json:"status_code"`
	UpstreamStatus int       `json:"upstream_status,omitempty"`
	Error          string    `json:"error,omitempty"`
	LatencyMs      int64     `json:"latency_ms"`
	Timestamp      time.Time `json:"timestamp"`
}
