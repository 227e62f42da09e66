// Package telegram connects the bot to the Bot API through
// go-telegram-bot-api, adding a configurable endpoint, context binding and
// bounded file downloads.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	DefaultBaseURL = "https://api.telegram.org"

	// Voice notes above this size are refused by getFile anyway.
	maxDownloadBytes = 20 << 20
)

// IsNotModified reports whether err is the harmless "message is not modified"
// rejection of an edit that changes nothing.
func IsNotModified(err error) bool {
	var apiErr *tgbotapi.Error
	return errors.As(err, &apiErr) && strings.Contains(strings.ToLower(apiErr.Message), "message is not modified")
}

// RetryAfter returns the flood-control delay carried by err, or 0.
func RetryAfter(err error) time.Duration {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return time.Duration(apiErr.RetryAfter) * time.Second
	}
	return 0
}

// boundClient attaches ctx to every request, so cancelling ctx aborts a
// pending long poll.
type boundClient struct {
	ctx  context.Context
	http *http.Client
}

func (c *boundClient) Do(req *http.Request) (*http.Response, error) {
	return c.http.Do(req.WithContext(c.ctx))
}

// Client is a BotAPI whose requests are bound to the context it was created with.
type Client struct {
	*tgbotapi.BotAPI
	http    *boundClient
	baseURL string
}

// New verifies token with getMe and returns a client. httpClient must allow
// requests at least as long as the long-poll timeout; nil selects a client
// with a 90s timeout.
func New(ctx context.Context, token, baseURL string, httpClient *http.Client) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 90 * time.Second}
	}

	hc := &boundClient{ctx: ctx, http: httpClient}
	api, err := tgbotapi.NewBotAPIWithClient(token, baseURL+"/bot%s/%s", hc)
	if err != nil {
		return nil, fmt.Errorf("telegram getMe: %w", err)
	}
	return &Client{BotAPI: api, http: hc, baseURL: baseURL}, nil
}

// DownloadFile resolves fileID and returns the file's contents.
func (c *Client) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	f, err := c.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("telegram getFile: %w", err)
	}
	if f.FilePath == "" {
		return nil, fmt.Errorf("telegram getFile: no file_path for %s", fileID)
	}

	url := fmt.Sprintf("%s/file/bot%s/%s", c.baseURL, c.Token, f.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram download: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("telegram download: %w", err)
	}
	if len(data) > maxDownloadBytes {
		return nil, fmt.Errorf("telegram download: file exceeds %d bytes", maxDownloadBytes)
	}
	return data, nil
}
