// Package client talks to the inference service over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"yashubustudio/reviewlens/sentiment"
)

// Config controls endpoints, per-operation timeouts and retries.
type Config struct {
	BaseURL         string
	PredictTimeout  time.Duration
	EvaluateTimeout time.Duration
	HealthTimeout   time.Duration
	MaxRetries      int
	InitialBackoff  time.Duration
}

// DefaultConfig returns the settings used by the dashboard.
func DefaultConfig() Config {
	return Config{
		BaseURL:         "http://localhost:8000",
		PredictTimeout:  180 * time.Second,
		EvaluateTimeout: 30 * time.Second,
		HealthTimeout:   10 * time.Second,
		MaxRetries:      3,
		InitialBackoff:  time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if strings.TrimSpace(c.BaseURL) == "" {
		c.BaseURL = d.BaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.PredictTimeout <= 0 {
		c.PredictTimeout = d.PredictTimeout
	}
	if c.EvaluateTimeout <= 0 {
		c.EvaluateTimeout = d.EvaluateTimeout
	}
	if c.HealthTimeout <= 0 {
		c.HealthTimeout = d.HealthTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	return c
}

// APIError is a non-2xx response from the service.
type APIError struct {
	Op      string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: backend returned %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: backend returned %d: %s", e.Op, e.Status, e.Message)
}

// Retryable reports whether the status is worth another attempt.
func (e *APIError) Retryable() bool {
	switch e.Status {
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// IsTimeout reports whether err came from an attempt running out of time.
// The service may still be loading its model in that case.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

// Client calls /predict, /evaluate and /health.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// New creates a client. A nil logger disables logging.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg.withDefaults(),
		http:   &http.Client{},
		logger: logger,
	}
}

// BaseURL returns the service root the client talks to.
func (c *Client) BaseURL() string {
	return c.cfg.BaseURL
}

// Predict uploads a CSV and parses the annotated CSV that comes back.
func (c *Client) Predict(ctx context.Context, filename string, data []byte) (*sentiment.Table, error) {
	body, err := c.do(ctx, "predict", c.cfg.PredictTimeout, func(ctx context.Context) (*http.Request, error) {
		return newMultipartRequest(ctx, c.cfg.BaseURL+"/predict", []filePart{{field: "file", name: filename, data: data}})
	})
	if err != nil {
		return nil, err
	}
	return sentiment.ReadTableBytes(body)
}

// Evaluate submits edited predictions and ground truth and returns the score.
func (c *Client) Evaluate(ctx context.Context, predCSV, truthCSV []byte) (sentiment.EvalResult, error) {
	var res sentiment.EvalResult
	body, err := c.do(ctx, "evaluate", c.cfg.EvaluateTimeout, func(ctx context.Context) (*http.Request, error) {
		return newMultipartRequest(ctx, c.cfg.BaseURL+"/evaluate", []filePart{
			{field: "predictions_file", name: "pred.csv", data: predCSV},
			{field: "ground_truth_file", name: "gt.csv", data: truthCSV},
		})
	})
	if err != nil {
		return res, err
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return res, fmt.Errorf("decode evaluate response: %w", err)
	}
	return res, nil
}

// Health fetches the service status.
func (c *Client) Health(ctx context.Context) (sentiment.Health, error) {
	var h sentiment.Health
	body, err := c.do(ctx, "health", c.cfg.HealthTimeout, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/health", nil)
	})
	if err != nil {
		return h, err
	}
	if err := json.Unmarshal(body, &h); err != nil {
		return h, fmt.Errorf("decode health response: %w", err)
	}
	return h, nil
}

// do runs one logical call. Each attempt gets its own timeout; 5xx and
// transport failures are retried with exponential backoff.
func (c *Client) do(ctx context.Context, op string, timeout time.Duration, build func(context.Context) (*http.Request, error)) ([]byte, error) {
	var out []byte
	attempt := func() error {
		actx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		req, err := build(actx)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%s: build request: %w", op, err))
		}
		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
				return backoff.Permanent(fmt.Errorf("%s: %w", op, err))
			}
			return fmt.Errorf("%s: %w", op, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return backoff.Permanent(fmt.Errorf("%s: read response: %w", op, err))
			}
			return fmt.Errorf("%s: read response: %w", op, err)
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			out = data
			return nil
		}
		apiErr := &APIError{Op: op, Status: resp.StatusCode, Message: errorMessage(data)}
		if apiErr.Retryable() {
			return apiErr
		}
		return backoff.Permanent(apiErr)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialBackoff
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.cfg.MaxRetries)), ctx)

	err := backoff.RetryNotify(attempt, policy, func(err error, wait time.Duration) {
		c.logger.Warn("retrying request",
			zap.String("op", op),
			zap.Duration("wait", wait),
			zap.Error(err))
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// errorMessage extracts {"error": "..."} or falls back to the raw body.
func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(body))
}

type filePart struct {
	field string
	name  string
	data  []byte
}

func newMultipartRequest(ctx context.Context, url string, parts []filePart) (*http.Request, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, p := range parts {
		fw, err := w.CreateFormFile(p.field, p.name)
		if err != nil {
			return nil, err
		}
		if _, err := fw.Write(p.data); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req, nil
}
