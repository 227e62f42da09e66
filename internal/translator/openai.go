package translator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/valpere/perevod/internal/lang"
)

const DefaultOpenAIModel = openai.GPT4oMini

// OpenAIService is the primary, generative provider. It talks to any
// OpenAI-compatible chat completions endpoint.
type OpenAIService struct {
	apiKey string
	model  string
	client *openai.Client
}

// NewOpenAIService creates the primary provider. httpClient carries the retry
// policy and timeouts; nil selects http.DefaultClient.
func NewOpenAIService(cfg ServiceConfig, httpClient *http.Client) *OpenAIService {
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}

	conf := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		conf.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if httpClient != nil {
		conf.HTTPClient = httpClient
	}

	return &OpenAIService{
		apiKey: cfg.APIKey,
		model:  model,
		client: openai.NewClientWithConfig(conf),
	}
}

func (s *OpenAIService) Name() string {
	return "openai"
}

func (s *OpenAIService) Model() string {
	return s.model
}

func (s *OpenAIService) IsAvailable(ctx context.Context) error {
	if s.apiKey == "" {
		return ErrMissingKey
	}
	return nil
}

// Translate asks the model for a translation. The returned text is trimmed but
// otherwise verbatim; an empty completion is an Outcome, not an error, so the
// caller can tell it apart from a failed call.
func (s *OpenAIService) Translate(ctx context.Context, req Request) (*Outcome, error) {
	if s.apiKey == "" {
		return nil, ErrMissingKey
	}

	p, ok := lang.Lookup(string(req.Target))
	if !ok {
		return nil, fmt.Errorf("unsupported target %q", req.Target)
	}

	start := time.Now()
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		// Temperature is omitted from the request body when zero, which the
		// API reads as 1.
		Temperature: math.SmallestNonzeroFloat32,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt(p)},
			{Role: openai.ChatMessageRoleUser, Content: req.Text},
		},
	})
	if err != nil {
		return nil, s.normalizeError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, newProviderError(s.Name(), KindMalformed, http.StatusOK, "malformed response", nil)
	}

	choice := resp.Choices[0]
	return &Outcome{
		Provider:     s.Name(),
		Text:         strings.TrimSpace(choice.Message.Content),
		FinishReason: string(choice.FinishReason),
		Latency:      time.Since(start),
	}, nil
}

func (s *OpenAIService) normalizeError(err error) *ProviderError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return newProviderError(s.Name(), KindStatus, apiErr.HTTPStatusCode, apiErr.Message, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := string(reqErr.Body)
		if detail == "" {
			detail = reqErr.Error()
		}
		return newProviderError(s.Name(), KindStatus, reqErr.HTTPStatusCode, detail, err)
	}

	// A success status whose body does not decode.
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return newProviderError(s.Name(), KindMalformed, http.StatusOK, "json", err)
	}

	return newProviderError(s.Name(), KindTransport, 0, err.Error(), err)
}
