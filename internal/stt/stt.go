// Package stt turns voice messages into text with an OpenAI-compatible
// transcription endpoint.
package stt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultModel = openai.Whisper1

	transcribePrompt = "Transcribe exactly. Language may be Russian, Spanish, or English. " +
		"Do not add extra words. Do not translate."
)

var (
	ErrMissingKey = errors.New("stt: api key is not configured")
	ErrNoAudio    = errors.New("stt: audio is empty")
	ErrNoSpeech   = errors.New("stt: transcript is empty")
)

type Config struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

type Transcriber struct {
	apiKey string
	model  string
	client *openai.Client
}

func New(cfg Config, httpClient *http.Client) *Transcriber {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	conf := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		conf.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if httpClient != nil {
		conf.HTTPClient = httpClient
	}

	return &Transcriber{
		apiKey: cfg.APIKey,
		model:  model,
		client: openai.NewClientWithConfig(conf),
	}
}

// Transcribe returns the trimmed transcript of an OGG/Opus voice note.
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if t.apiKey == "" {
		return "", ErrMissingKey
	}
	if len(audio) == 0 {
		return "", ErrNoAudio
	}

	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:       t.model,
		FilePath:    "audio.ogg",
		Reader:      bytes.NewReader(audio),
		Prompt:      transcribePrompt,
		Temperature: 0,
		Format:      openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrNoSpeech
	}
	return text, nil
}
