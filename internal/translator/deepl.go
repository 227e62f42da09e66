package translator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/valpere/perevod/internal/lang"
)

const DefaultDeepLBaseURL = "https://api-free.deepl.com"

// maxDeepLBody bounds how much of a response body is read.
const maxDeepLBody = 4 << 20

// DeepLService is the secondary, dedicated machine-translation provider.
type DeepLService struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewDeepLService creates the secondary provider. httpClient carries the
// retry policy and timeouts; nil selects http.DefaultClient.
func NewDeepLService(cfg ServiceConfig, httpClient *http.Client) *DeepLService {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultDeepLBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &DeepLService{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpClient,
	}
}

func (s *DeepLService) Name() string {
	return "deepl"
}

func (s *DeepLService) IsAvailable(ctx context.Context) error {
	if s.apiKey == "" {
		return ErrMissingKey
	}
	return nil
}

func (s *DeepLService) Translate(ctx context.Context, req Request) (*Outcome, error) {
	if s.apiKey == "" {
		return nil, ErrMissingKey
	}

	p, ok := lang.Lookup(string(req.Target))
	if !ok {
		return nil, fmt.Errorf("unsupported target %q", req.Target)
	}

	form := url.Values{
		"text":                {req.Text},
		"target_lang":         {p.DeepL},
		"preserve_formatting": {"1"},
		"split_sentences":     {"nonewlines"},
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v2/translate", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Authorization", "DeepL-Auth-Key "+s.apiKey)

	start := time.Now()
	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, newProviderError(s.Name(), KindTransport, 0, err.Error(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDeepLBody))
	if err != nil {
		return nil, newProviderError(s.Name(), KindTransport, resp.StatusCode, err.Error(), err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, newProviderError(s.Name(), KindStatus, resp.StatusCode, string(body), nil)
	}

	var deeplResp struct {
		Translations []struct {
			DetectedSourceLanguage string `json:"detected_source_language"`
			Text                   string `json:"text"`
		} `json:"translations"`
	}
	if err := json.Unmarshal(body, &deeplResp); err != nil {
		return nil, newProviderError(s.Name(), KindMalformed, resp.StatusCode, "", err)
	}

	if len(deeplResp.Translations) == 0 || deeplResp.Translations[0].Text == "" {
		return nil, newProviderError(s.Name(), KindEmpty, resp.StatusCode, "", nil)
	}

	return &Outcome{
		Provider: s.Name(),
		Text:     deeplResp.Translations[0].Text,
		Latency:  time.Since(start),
	}, nil
}
