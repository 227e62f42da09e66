package translator

import (
	"context"
	"time"

	"github.com/valpere/perevod/internal/lang"
)

// ServiceConfig carries the credentials and endpoint of one provider.
type ServiceConfig struct {
	Credentials string `mapstructure:"credentials" json:"credentials"`
	APIKey      string `mapstructure:"api_key" json:"api_key"`
	Model       string `mapstructure:"model" json:"model"`
	BaseURL     string `mapstructure:"base_url" json:"base_url"`
}

type Request struct {
	Text   string
	Target lang.Tag
}

// Outcome is a provider's answer to one Request.
type Outcome struct {
	Provider string
	Text     string
	// FinishReason is the termination reason reported by generative
	// providers. Dedicated translation APIs leave it empty.
	FinishReason string
	Latency      time.Duration
}

type TranslationService interface {
	Name() string
	Translate(ctx context.Context, req Request) (*Outcome, error)
	// IsAvailable returns ErrMissingKey when the service has no credential.
	IsAvailable(ctx context.Context) error
}
