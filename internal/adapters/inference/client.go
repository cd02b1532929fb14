package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/domain"
	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/ports"
)

type Client struct {
	httpClient *http.Client
	baseURL    string
	breaker    *gobreaker.CircuitBreaker
	maxRetries uint64
	retryWait  time.Duration
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithRetries(maxRetries uint64, initialWait time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.retryWait = initialWait
	}
}

func NewClient(baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("inference base url is required")
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		maxRetries: 2,
		retryWait:  100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "inference",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return c, nil
}

type upstreamStatusError struct {
	status int
}

func (e *upstreamStatusError) Error() string {
	return fmt.Sprintf("inference responded %d", e.status)
}

type predictResponse struct {
	Recommendations json.RawMessage `json:"recommendations"`
}

// Predict posts {"user_id": ...} to /predict, as a number when the id is an
// integer. Transport failures and 5xx responses are retried; 4xx responses
// are not.
func (c *Client) Predict(ctx context.Context, userID string) (ports.Prediction, error) {
	reqBody, err := json.Marshal(map[string]domain.UserID{"user_id": domain.UserID(userID)})
	if err != nil {
		return ports.Prediction{}, err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryWait
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, c.maxRetries), ctx)

	var body []byte
	operation := func() error {
		out, execErr := c.breaker.Execute(func() (interface{}, error) {
			return c.post(ctx, "/predict", reqBody)
		})
		switch {
		case errors.Is(execErr, gobreaker.ErrOpenState), errors.Is(execErr, gobreaker.ErrTooManyRequests):
			return backoff.Permanent(execErr)
		case execErr != nil:
			return execErr
		}
		res := out.(postResult)
		if res.status >= 400 {
			return backoff.Permanent(&upstreamStatusError{status: res.status})
		}
		body = res.body
		return nil
	}
	if err := backoff.Retry(operation, policy); err != nil {
		var statusErr *upstreamStatusError
		if errors.As(err, &statusErr) && statusErr.status == http.StatusBadRequest {
			return ports.Prediction{}, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		return ports.Prediction{}, fmt.Errorf("%w: %v", domain.ErrDependencyUnavailable, err)
	}

	if !json.Valid(body) {
		return ports.Prediction{}, fmt.Errorf("%w: inference response is not valid json", domain.ErrDependencyUnavailable)
	}
	// Bodies that are not objects pass through without recommendations.
	var parsed predictResponse
	_ = json.Unmarshal(body, &parsed)
	return ports.Prediction{Recommendations: parsed.Recommendations, Raw: body}, nil
}

type postResult struct {
	status int
	body   []byte
}

// post returns an error only for outcomes that should count against the
// breaker: transport failures and 5xx.
func (c *Client) post(ctx context.Context, path string, payload []byte) (postResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return postResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return postResult{}, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return postResult{}, err
	}
	if resp.StatusCode >= 500 {
		return postResult{}, &upstreamStatusError{status: resp.StatusCode}
	}
	return postResult{status: resp.StatusCode, body: raw}, nil
}

var _ ports.InferenceClient = (*Client)(nil)
