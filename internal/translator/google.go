package translator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	translate "cloud.google.com/go/translate"
	"google.golang.org/api/googleapi"
	gtransport "google.golang.org/api/googleapi/transport"
	"google.golang.org/api/option"

	"github.com/valpere/perevod/internal/lang"
)

// GoogleService is an alternative secondary provider backed by Cloud
// Translation. It authenticates with an API key, which keeps the shared retry
// transport in the path, or with a service-account credentials file.
//
// The Cloud Translation client is created on first use and shared by later
// calls until Close.
type GoogleService struct {
	apiKey      string
	credentials string
	endpoint    string
	client      *http.Client

	mu      sync.Mutex
	gclient *translate.Client
}

func NewGoogleService(cfg ServiceConfig, httpClient *http.Client) *GoogleService {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &GoogleService{
		apiKey:      cfg.APIKey,
		credentials: cfg.Credentials,
		endpoint:    cfg.BaseURL,
		client:      httpClient,
	}
}

func (s *GoogleService) Name() string {
	return "google"
}

func (s *GoogleService) IsAvailable(ctx context.Context) error {
	if s.apiKey == "" && s.credentials == "" {
		return ErrMissingKey
	}
	return nil
}

func (s *GoogleService) clientOptions() []option.ClientOption {
	var opts []option.ClientOption
	if s.endpoint != "" {
		opts = append(opts, option.WithEndpoint(s.endpoint))
	}

	if s.apiKey != "" {
		base := s.client.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		keyed := &http.Client{
			Transport: &gtransport.APIKey{Key: s.apiKey, Transport: base},
			Timeout:   s.client.Timeout,
		}
		return append(opts, option.WithHTTPClient(keyed))
	}
	return append(opts, option.WithCredentialsFile(s.credentials))
}

func (s *GoogleService) translateClient(ctx context.Context) (*translate.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gclient != nil {
		return s.gclient, nil
	}
	// The client outlives the request that created it.
	c, err := translate.NewClient(context.WithoutCancel(ctx), s.clientOptions()...)
	if err != nil {
		return nil, err
	}
	s.gclient = c
	return c, nil
}

// Close releases the shared client. A later Translate creates a new one.
func (s *GoogleService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gclient == nil {
		return nil
	}
	err := s.gclient.Close()
	s.gclient = nil
	return err
}

func (s *GoogleService) Translate(ctx context.Context, req Request) (*Outcome, error) {
	if err := s.IsAvailable(ctx); err != nil {
		return nil, err
	}

	p, ok := lang.Lookup(string(req.Target))
	if !ok {
		return nil, fmt.Errorf("unsupported target %q", req.Target)
	}

	client, err := s.translateClient(ctx)
	if err != nil {
		return nil, newProviderError(s.Name(), KindTransport, 0, fmt.Sprintf("failed to create client: %v", err), err)
	}

	start := time.Now()
	translations, err := client.Translate(ctx, []string{req.Text}, p.Google, &translate.Options{
		Format: translate.Text,
	})
	if err != nil {
		var gErr *googleapi.Error
		if errors.As(err, &gErr) {
			return nil, newProviderError(s.Name(), KindStatus, gErr.Code, gErr.Message, err)
		}
		return nil, newProviderError(s.Name(), KindTransport, 0, err.Error(), err)
	}

	if len(translations) == 0 || translations[0].Text == "" {
		return nil, newProviderError(s.Name(), KindEmpty, http.StatusOK, "no translation returned", nil)
	}

	return &Outcome{
		Provider: s.Name(),
		Text:     translations[0].Text,
		Latency:  time.Since(start),
	}, nil
}
