// Package agent talks to the external classification and reply-generation service.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"github.com/vdavid/mailpilot/internal/metrics"
	"go.uber.org/zap"
)

const (
	endpointClassify = "classify"
	endpointRespond  = "respond"

	maxResponseBytes = 1 << 20
)

// ErrUnavailable is returned while an endpoint's circuit breaker is open.
var ErrUnavailable = errors.New("agent unavailable")

// StatusError is returned for a non-2xx response.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("agent %s returned status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

type ClassifyRequest struct {
	Subject    string   `json:"subject"`
	Body       string   `json:"body"`
	Sender     string   `json:"sender"`
	Categories []string `json:"categories"`
}

type ClassifyResponse struct {
	Category string `json:"category"`
}

type RespondRequest struct {
	UserID  string `json:"user_id"`
	Sender  string `json:"sender"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// RespondResponse is a drafted reply. Scale is the top of the confidence
// range when the service states it, and zero otherwise.
type RespondResponse struct {
	Subject    string  `json:"subject"`
	Body       string  `json:"body"`
	Confidence float64 `json:"confidence"`
	Scale      float64 `json:"scale,omitempty"`
}

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client calls the agent over HTTP. Each endpoint has its own circuit breaker
// so a failing generator does not stop classification.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	breakers   map[string]*gobreaker.CircuitBreaker
}

func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		baseURL:    opts.BaseURL,
		httpClient: httpClient,
		logger:     logger,
		breakers:   make(map[string]*gobreaker.CircuitBreaker),
	}
	for _, endpoint := range []string{endpointClassify, endpointRespond} {
		c.breakers[endpoint] = c.newBreaker(endpoint)
	}
	return c
}

func (c *Client) newBreaker(endpoint string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "agent-" + endpoint,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures >= 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		IsSuccessful: func(err error) bool {
			// A cancelled caller says nothing about the agent's health.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("agent circuit breaker changed state",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}

// Classify asks the agent to pick one of req.Categories.
func (c *Client) Classify(ctx context.Context, req ClassifyRequest) (*ClassifyResponse, error) {
	var resp ClassifyResponse
	if err := c.call(ctx, endpointClassify, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Respond asks the agent to draft a reply with a confidence score.
func (c *Client) Respond(ctx context.Context, req RespondRequest) (*RespondResponse, error) {
	var resp RespondResponse
	if err := c.call(ctx, endpointRespond, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) call(ctx context.Context, endpoint string, in, out any) error {
	start := time.Now()
	_, err := c.breakers[endpoint].Execute(func() (interface{}, error) {
		return nil, c.post(ctx, endpoint, in, out)
	})
	metrics.RecordAgentCall(endpoint, callStatus(err), time.Since(start))

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, endpoint, err)
	}
	return err
}

func (c *Client) post(ctx context.Context, endpoint string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call agent %s: %w", endpoint, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read agent %s response: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode agent %s response: %w", endpoint, err)
	}
	return nil
}

func callStatus(err error) string {
	var statusErr *StatusError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &statusErr):
		return strconv.Itoa(statusErr.StatusCode)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "open"
	default:
		return "error"
	}
}
