// Package retry provides the bounded retry policy shared by every outbound
// provider call, packaged as an http.RoundTripper.
package retry

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
)

// Policy bounds how a request is retried. The zero value performs a single
// attempt.
type Policy struct {
	// MaxAttempts counts the first attempt.
	MaxAttempts     int
	InitialInterval time.Duration
	Multiplier      float64
	// MaxRetryAfter caps a server-specified Retry-After delay.
	MaxRetryAfter time.Duration
	// Statuses lists the HTTP status codes that are retried.
	Statuses []int
}

// DefaultPolicy retries 429 and transient 5xx responses, three attempts in
// total, waiting 0.6s then 1.2s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: 600 * time.Millisecond,
		Multiplier:      2,
		MaxRetryAfter:   30 * time.Second,
		Statuses: []int{
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
	}
}

// Retryable reports whether a response with status should be retried.
func (p Policy) Retryable(status int) bool {
	for _, s := range p.Statuses {
		if s == status {
			return true
		}
	}
	return false
}

func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("retry: max attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.InitialInterval < 0 || p.MaxRetryAfter < 0 {
		return fmt.Errorf("retry: intervals must not be negative")
	}
	if p.Multiplier < 1 {
		return fmt.Errorf("retry: multiplier must be at least 1, got %v", p.Multiplier)
	}
	return nil
}

func (p Policy) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = 0
	b.MaxInterval = time.Minute
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Transport retries requests according to Policy. Requests with a body are
// only retried when the body can be rewound through GetBody.
type Transport struct {
	Base   http.RoundTripper
	Policy Policy

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func NewTransport(base http.RoundTripper, p Policy) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{Base: base, Policy: p}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	attempts := t.Policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	bo := t.Policy.newBackOff()

	for attempt := 1; ; attempt++ {
		r := req
		if attempt > 1 {
			var err error
			if r, err = rewind(req); err != nil {
				return nil, err
			}
		}

		resp, err := t.Base.RoundTrip(r)
		if err != nil {
			return nil, err
		}
		if attempt >= attempts || !t.Policy.Retryable(resp.StatusCode) || !canRewind(req) {
			return resp, nil
		}

		wait := bo.NextBackOff()
		if d, ok := t.retryAfter(resp.Header.Get("Retry-After")); ok {
			wait = d
		}
		drain(resp.Body)

		if err := t.doSleep(req.Context(), wait); err != nil {
			return nil, err
		}
	}
}

func canRewind(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

func rewind(req *http.Request) (*http.Request, error) {
	r := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return r, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("retry: rewind body: %w", err)
	}
	r.Body = body
	return r, nil
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	_ = body.Close()
}

// retryAfter parses a Retry-After header given either in seconds or as an
// HTTP date, capped at Policy.MaxRetryAfter.
func (t *Transport) retryAfter(v string) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}

	var d time.Duration
	if secs, err := strconv.Atoi(v); err == nil {
		d = time.Duration(secs) * time.Second
	} else if when, err := http.ParseTime(v); err == nil {
		now := time.Now
		if t.now != nil {
			now = t.now
		}
		d = when.Sub(now())
	} else {
		return 0, false
	}

	if d < 0 {
		d = 0
	}
	if limit := t.Policy.MaxRetryAfter; limit > 0 && d > limit {
		d = limit
	}
	return d, true
}

func (t *Transport) doSleep(ctx context.Context, d time.Duration) error {
	if t.sleep != nil {
		return t.sleep(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Timeouts bounds a single outbound call.
type Timeouts struct {
	Dial           time.Duration
	ResponseHeader time.Duration
	// Total bounds the whole call including retries. Zero disables it.
	Total time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Dial:           3 * time.Second,
		ResponseHeader: 20 * time.Second,
		Total:          90 * time.Second,
	}
}

// NewClient returns a pooled client whose transport applies p.
func NewClient(p Policy, to Timeouts) *http.Client {
	base := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   to.Dial,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   to.Dial + 7*time.Second,
		ResponseHeaderTimeout: to.ResponseHeader,
	}
	return &http.Client{
		Transport: NewTransport(base, p),
		Timeout:   to.Total,
	}
}
