package interceptors

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/farolabs/beacon/core"
	"github.com/farolabs/beacon/selflog"
)

// Collector uploads events to an HTTP collector endpoint in NDJSON batches.
//
// Events are batched in memory and flushed by size or timeout on a
// background goroutine. A failed flush is remembered and returned by the
// next Intercept calls, so the dispatcher's health tracker notices the
// outage; a successful health probe clears the remembered failure.
type Collector struct {
	serverURL string
	apiKey    string
	client    *http.Client

	// Batching configuration
	batchSize    int
	batchTimeout time.Duration

	// Internal state
	batch   []wireEvent
	batchMu sync.Mutex
	timer   *time.Timer
	stopCh  chan struct{}
	flushCh chan struct{}
	wg      sync.WaitGroup

	lastErr   error
	lastErrMu sync.Mutex

	// Options
	useCompression bool
	retryCount     int
	retryDelay     time.Duration
}

// CollectorOption configures a collector interceptor.
type CollectorOption func(*Collector)

// WithCollectorAPIKey sets the API key sent with every request.
func WithCollectorAPIKey(apiKey string) CollectorOption {
	return func(c *Collector) {
		c.apiKey = apiKey
	}
}

// WithCollectorBatchSize sets how many events trigger a flush.
func WithCollectorBatchSize(size int) CollectorOption {
	return func(c *Collector) {
		c.batchSize = size
	}
}

// WithCollectorBatchTimeout sets how long a partial batch may wait.
func WithCollectorBatchTimeout(timeout time.Duration) CollectorOption {
	return func(c *Collector) {
		c.batchTimeout = timeout
	}
}

// WithCollectorCompression enables gzip compression of request bodies.
func WithCollectorCompression(enabled bool) CollectorOption {
	return func(c *Collector) {
		c.useCompression = enabled
	}
}

// WithCollectorRetry configures retry behavior for failed uploads.
func WithCollectorRetry(count int, delay time.Duration) CollectorOption {
	return func(c *Collector) {
		c.retryCount = count
		c.retryDelay = delay
	}
}

// WithCollectorHTTPClient sets a custom HTTP client.
func WithCollectorHTTPClient(client *http.Client) CollectorOption {
	return func(c *Collector) {
		c.client = client
	}
}

// NewCollector creates a collector interceptor uploading to serverURL.
func NewCollector(serverURL string, opts ...CollectorOption) *Collector {
	c := &Collector{
		serverURL:    serverURL,
		client:       &http.Client{Timeout: 30 * time.Second},
		batchSize:    100,
		batchTimeout: 5 * time.Second,
		batch:        make([]wireEvent, 0),
		stopCh:       make(chan struct{}),
		flushCh:      make(chan struct{}, 1),
		retryCount:   3,
		retryDelay:   time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.wg.Add(1)
	go c.backgroundFlusher()

	return c
}

// Name identifies the interceptor in health reports.
func (c *Collector) Name() string {
	return "collector"
}

// Intercept adds the event to the batch. It returns the error of the most
// recent failed flush, if any, so repeated upload failures are visible to
// the caller.
func (c *Collector) Intercept(ctx context.Context, event *core.Event) error {
	c.batchMu.Lock()
	c.batch = append(c.batch, toWire(event))

	if len(c.batch) >= c.batchSize {
		select {
		case c.flushCh <- struct{}{}:
		default:
			// Flush already signaled
		}
	}

	// Reset the batch timer
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.batchTimeout, func() {
		select {
		case c.flushCh <- struct{}{}:
		default:
		}
	})
	c.batchMu.Unlock()

	c.lastErrMu.Lock()
	defer c.lastErrMu.Unlock()
	return c.lastErr
}

// HealthCheck probes the collector's health endpoint. Success clears any
// remembered flush failure.
func (c *Collector) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+"/healthz", nil)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("collector health check failed with status %d", resp.StatusCode)
	}

	c.setLastErr(nil)
	return nil
}

// backgroundFlusher handles size- and timeout-triggered flushing.
func (c *Collector) backgroundFlusher() {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopCh:
			// Final flush before stopping
			c.flush()
			return
		case <-c.flushCh:
			c.flush()
		}
	}
}

// flush uploads the current batch.
func (c *Collector) flush() error {
	c.batchMu.Lock()
	if len(c.batch) == 0 {
		c.batchMu.Unlock()
		return nil
	}

	// Copy and clear batch
	events := make([]wireEvent, len(c.batch))
	copy(events, c.batch)
	c.batch = c.batch[:0]
	c.batchMu.Unlock()

	payload, err := encodeNDJSON(events)
	if err != nil {
		c.setLastErr(err)
		return err
	}

	// Send with retries
	for attempt := 0; attempt <= c.retryCount; attempt++ {
		if attempt > 0 {
			time.Sleep(c.retryDelay * time.Duration(attempt))
		}

		if err := c.send(payload); err == nil {
			c.setLastErr(nil)
			return nil
		} else if attempt == c.retryCount {
			err = fmt.Errorf("failed to upload %d events after %d attempts: %w", len(events), c.retryCount+1, err)
			c.setLastErr(err)
			if selflog.IsEnabled() {
				selflog.Printf("[collector] %v", err)
			}
			return err
		}
	}

	return nil
}

// send posts one NDJSON payload.
func (c *Collector) send(payload []byte) error {
	url := c.serverURL + "/events"

	var body io.Reader = bytes.NewReader(payload)
	compressed := false

	if c.useCompression {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		if _, err := gz.Write(payload); err != nil {
			return err
		}
		if err := gz.Close(); err != nil {
			return err
		}
		body = &buf
		compressed = true
	}

	req, err := http.NewRequest(http.MethodPost, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-ndjson")
	if compressed {
		req.Header.Set("Content-Encoding", "gzip")
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	bodyBytes, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(bodyBytes, &errResp); err == nil && errResp.Error != "" {
		return fmt.Errorf("collector error (status %d): %s", resp.StatusCode, errResp.Error)
	}

	return fmt.Errorf("collector returned status %d: %s", resp.StatusCode, string(bodyBytes))
}

// Close flushes remaining events and stops the background flusher.
func (c *Collector) Close() error {
	c.batchMu.Lock()
	if c.timer != nil {
		c.timer.Stop()
	}
	c.batchMu.Unlock()

	close(c.stopCh)
	c.wg.Wait()

	return nil
}

func (c *Collector) setLastErr(err error) {
	c.lastErrMu.Lock()
	defer c.lastErrMu.Unlock()
	c.lastErr = err
}

func encodeNDJSON(events []wireEvent) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, event := range events {
		if err := enc.Encode(event); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
