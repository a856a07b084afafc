// Package tts relays text-to-speech requests to Sarvam AI.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/victornm/tquiz/internal/errors"
)

const (
	DefaultEndpoint = "https://api.sarvam.ai/text-to-speech"

	DefaultModel              = "bulbul:v2"
	DefaultTargetLanguageCode = "en-IN"
	DefaultSpeaker            = "anushka"
	AudioFormat               = "wav"

	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 16 << 20
)

var (
	ErrEmptyText = errors.New(errors.CodeInvalidArgument,
		errors.WithMessagef("text is required"))

	ErrNotConfigured = errors.New(errors.CodeInternal,
		errors.WithMessagef("Sarvam AI API key not configured"))

	ErrConversionFailed = errors.New(errors.CodeInternal,
		errors.WithMessagef("Text-to-speech conversion failed"))
)

type Config struct {
	Endpoint   string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

func NewClient(c Config) *Client {
	cl := &Client{
		endpoint: c.Endpoint,
		apiKey:   c.APIKey,
		http:     c.HTTPClient,
	}

	if cl.endpoint == "" {
		cl.endpoint = DefaultEndpoint
	}

	if cl.http == nil {
		timeout := c.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		cl.http = &http.Client{Timeout: timeout}
	}

	return cl
}

// Request is what the presentation layer sends. Empty fields fall back to the
// package defaults.
type Request struct {
	Text               string `json:"text"`
	Model              string `json:"model,omitempty"`
	TargetLanguageCode string `json:"target_language_code,omitempty"`
	Speaker            string `json:"speaker,omitempty"`
}

// Audio is one base64 encoded clip in the requested format.
type Audio string

type providerRequest struct {
	Text               string `json:"text"`
	Model              string `json:"model"`
	TargetLanguageCode string `json:"target_language_code"`
	Speaker            string `json:"speaker"`
	AudioFormat        string `json:"audio_format"`
}

type providerResponse struct {
	Audios []string `json:"audios"`
}

func (r Request) withDefaults() providerRequest {
	pr := providerRequest{
		Text:               r.Text,
		Model:              r.Model,
		TargetLanguageCode: r.TargetLanguageCode,
		Speaker:            r.Speaker,
		AudioFormat:        AudioFormat,
	}

	if pr.Model == "" {
		pr.Model = DefaultModel
	}
	if pr.TargetLanguageCode == "" {
		pr.TargetLanguageCode = DefaultTargetLanguageCode
	}
	if pr.Speaker == "" {
		pr.Speaker = DefaultSpeaker
	}

	return pr
}

// Synthesize converts text to speech and returns the first clip.
func (c *Client) Synthesize(ctx context.Context, req Request) (Audio, error) {
	if strings.TrimSpace(req.Text) == "" {
		return "", ErrEmptyText
	}

	if c.apiKey == "" {
		return "", ErrNotConfigured
	}

	audio, err := c.synthesize(ctx, req.withDefaults())
	if err != nil {
		slog.ErrorContext(ctx, "tts: synthesize failed", "error", err)
		return "", ErrConversionFailed.With(errors.WithCause(err))
	}

	return audio, nil
}

func (c *Client) synthesize(ctx context.Context, pr providerRequest) (Audio, error) {
	body, err := json.Marshal(pr)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("api-subscription-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("sarvam ai api error: %d", resp.StatusCode)
	}

	var out providerResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	if len(out.Audios) == 0 {
		return "", fmt.Errorf("no audio in response")
	}

	return Audio(out.Audios[0]), nil
}
