// Package trivia fetches question batches from the Open Trivia Database and
// normalizes them into domain questions.
package trivia

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/victornm/tquiz/internal/domain"
)

const (
	DefaultBaseURL = "https://opentdb.com/api.php"
	defaultTimeout = 10 * time.Second
	userAgent      = "tquiz/1.0"

	// maxBodyBytes bounds how much of a provider response is read.
	maxBodyBytes = 1 << 20
)

type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	// Rand drives the choice shuffle. Nil means a runtime-seeded source.
	Rand *rand.Rand
}

// Client is the question source used by quiz sessions.
type Client struct {
	baseURL string
	http    *http.Client

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewClient(c Config) *Client {
	cl := &Client{
		baseURL: c.BaseURL,
		http:    c.HTTPClient,
		rnd:     c.Rand,
	}

	if cl.baseURL == "" {
		cl.baseURL = DefaultBaseURL
	}

	if cl.http == nil {
		timeout := c.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		cl.http = &http.Client{Timeout: timeout}
	}

	if cl.rnd == nil {
		cl.rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	return cl
}

type apiResponse struct {
	ResponseCode int           `json:"response_code"`
	Results      []rawQuestion `json:"results"`
}

type rawQuestion struct {
	Category         string   `json:"category"`
	Type             string   `json:"type"`
	Difficulty       string   `json:"difficulty"`
	Question         string   `json:"question"`
	CorrectAnswer    string   `json:"correct_answer"`
	IncorrectAnswers []string `json:"incorrect_answers"`
}

// FetchQuestions requests count questions from the provider. Every failure is
// reported as a *FetchError.
func (c *Client) FetchQuestions(ctx context.Context, count int) ([]domain.Question, error) {
	if count <= 0 {
		return nil, rejected(fmt.Errorf("invalid question count %d", count))
	}

	raw, err := c.fetch(ctx, count)
	if err != nil {
		slog.ErrorContext(ctx, "trivia: fetch questions failed", "count", count, "error", err)
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return Normalize(raw, c.rnd), nil
}

func (c *Client) fetch(ctx context.Context, count int) ([]rawQuestion, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, rejected(fmt.Errorf("parse base url: %w", err))
	}
	q := u.Query()
	q.Set("amount", strconv.Itoa(count))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, rejected(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, networkFailure(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, rejected(fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, networkFailure(fmt.Errorf("read body: %w", err))
	}

	var ar apiResponse
	if err := json.Unmarshal(body, &ar); err != nil {
		return nil, rejected(fmt.Errorf("decode response: %w", err))
	}

	if ar.ResponseCode != 0 {
		return nil, rejected(fmt.Errorf("response code %d", ar.ResponseCode))
	}

	if len(ar.Results) == 0 {
		return nil, rejected(fmt.Errorf("empty result set"))
	}

	return ar.Results, nil
}
