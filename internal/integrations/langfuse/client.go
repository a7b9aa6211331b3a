// Package langfuse is a narrow client for the Langfuse public API: prompt
// retrieval at startup and best-effort trace/event ingestion during
// requests. Ingestion is queued to a background worker; a full queue or a
// failed POST drops events with a warning and never reaches the request
// path.
package langfuse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"repair-agent/internal/logging"
)

const (
	defaultQueueSize     = 256
	defaultBatchSize     = 32
	defaultFlushInterval = 3 * time.Second
	defaultTimeout       = 10 * time.Second
)

// HTTPStatusError captures non-2xx upstream responses.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("langfuse: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

type ingestionEvent struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Body      any    `json:"body"`
}

type ingestionBatch struct {
	Batch []ingestionEvent `json:"batch"`
}

type traceBody struct {
	ID        string         `json:"id"`
	Name      string         `json:"name,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Output    any            `json:"output,omitempty"`
}

type eventBody struct {
	ID        string         `json:"id"`
	TraceID   string         `json:"traceId"`
	Name      string         `json:"name"`
	StartTime string         `json:"startTime"`
	Input     any            `json:"input,omitempty"`
	Output    any            `json:"output,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// promptResponse is the minimal response shape of the prompt endpoint.
type promptResponse struct {
	Name    string `json:"name"`
	Prompt  string `json:"prompt"`
	Version int    `json:"version"`
}

// Client talks to one Langfuse project. The zero value is not usable; use
// New or Disabled.
type Client struct {
	host       string
	publicKey  string
	secretKey  string
	httpClient *http.Client
	logger     logging.Logger
	disabled   bool

	queue chan ingestionEvent
	stop  chan struct{}
	wg    sync.WaitGroup

	flushInterval time.Duration
	batchSize     int
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

func WithFlushInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.flushInterval = d
		}
	}
}

// New creates a Client and starts its ingestion worker.
func New(host, publicKey, secretKey string, logger logging.Logger, opts ...Option) (*Client, error) {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if host == "" {
		return nil, errors.New("langfuse: host must not be empty")
	}
	if publicKey == "" || secretKey == "" {
		return nil, errors.New("langfuse: key pair must not be empty")
	}
	if logger == nil {
		return nil, errors.New("langfuse: logger must not be nil")
	}
	c := &Client{
		host:          host,
		publicKey:     publicKey,
		secretKey:     secretKey,
		httpClient:    &http.Client{Timeout: defaultTimeout},
		logger:        logger,
		queue:         make(chan ingestionEvent, defaultQueueSize),
		stop:          make(chan struct{}),
		flushInterval: defaultFlushInterval,
		batchSize:     defaultBatchSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.wg.Add(1)
	go c.worker()
	return c, nil
}

// Disabled returns a no-op client: trace ids are empty, nothing is queued,
// and GetPrompt fails so callers fall back to their defaults.
func Disabled() *Client {
	return &Client{disabled: true}
}

// Close flushes pending events and stops the worker.
func (c *Client) Close() {
	if c.disabled {
		return
	}
	close(c.stop)
	c.wg.Wait()
}

// GetPrompt fetches instruction text by prompt name and label.
func (c *Client) GetPrompt(ctx context.Context, name, label string) (string, error) {
	if c.disabled {
		return "", errors.New("langfuse: client disabled")
	}
	endpoint := c.host + "/api/public/v2/prompts/" + url.PathEscape(name)
	if label != "" {
		endpoint += "?label=" + url.QueryEscape(label)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("langfuse: create prompt request: %w", err)
	}
	req.SetBasicAuth(c.publicKey, c.secretKey)

	raw, err := c.doJSONRequest(req, endpoint)
	if err != nil {
		return "", fmt.Errorf("langfuse: prompt request failed: %w", err)
	}

	var payload promptResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("langfuse: decode prompt response: %w", err)
	}
	if strings.TrimSpace(payload.Prompt) == "" {
		return "", errors.New("langfuse: prompt text is empty")
	}
	return payload.Prompt, nil
}

// StartTrace opens a trace and returns its id. Disabled clients return "".
func (c *Client) StartTrace(name string, metadata map[string]any) string {
	if c.disabled {
		return ""
	}
	traceID := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	c.enqueue(ingestionEvent{
		ID:        uuid.NewString(),
		Type:      "trace-create",
		Timestamp: now,
		Body: traceBody{
			ID:        traceID,
			Name:      name,
			Timestamp: now,
			Metadata:  metadata,
		},
	})
	return traceID
}

// EndTrace records final metadata for a trace as an upsert.
func (c *Client) EndTrace(traceID string, metadata map[string]any) {
	if c.disabled || traceID == "" {
		return
	}
	c.enqueue(ingestionEvent{
		ID:        uuid.NewString(),
		Type:      "trace-create",
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Body: traceBody{
			ID:       traceID,
			Metadata: metadata,
			Output:   metadata["success"],
		},
	})
}

// LogToolExecution records one tool invocation under a trace.
func (c *Client) LogToolExecution(traceID, tool string, input, output any, metadata map[string]any) {
	if c.disabled || traceID == "" {
		return
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	c.enqueue(ingestionEvent{
		ID:        uuid.NewString(),
		Type:      "event-create",
		Timestamp: now,
		Body: eventBody{
			ID:        uuid.NewString(),
			TraceID:   traceID,
			Name:      tool,
			StartTime: now,
			Input:     input,
			Output:    output,
			Metadata:  metadata,
		},
	})
}

func (c *Client) enqueue(evt ingestionEvent) {
	select {
	case c.queue <- evt:
	default:
		c.logger.Warn("Langfuse ingestion queue full, dropping event")
	}
}

func (c *Client) worker() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.flush()
		case <-c.stop:
			c.flush()
			return
		}
	}
}

func (c *Client) flush() {
	var batch []ingestionEvent
	for len(batch) < c.batchSize {
		select {
		case evt := <-c.queue:
			batch = append(batch, evt)
		default:
			goto drained
		}
	}
drained:
	if len(batch) == 0 {
		return
	}
	if err := c.postBatch(batch); err != nil {
		c.logger.WithError(err).Warn("Langfuse ingestion failed, dropping batch")
	}
}

func (c *Client) postBatch(batch []ingestionEvent) error {
	body, err := json.Marshal(ingestionBatch{Batch: batch})
	if err != nil {
		return fmt.Errorf("langfuse: marshal batch: %w", err)
	}
	endpoint := c.host + "/api/public/ingestion"

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("langfuse: create ingestion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.publicKey, c.secretKey)

	if _, err := c.doJSONRequest(req, endpoint); err != nil {
		return err
	}
	return nil
}

func (c *Client) doJSONRequest(req *http.Request, endpoint string) ([]byte, error) {
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        endpoint,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}
