// Package lynkapi is the event delivery client of the embed SDK: it queues
// tracking events, delivers them to the collector in batches and exposes the
// catalog and booking endpoints used by the widgets.
package lynkapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vincentbai/lynk-embed/internal/clock"
	"github.com/vincentbai/lynk-embed/internal/httpx"
	xlog "github.com/vincentbai/lynk-embed/internal/log"
	"github.com/vincentbai/lynk-embed/internal/metrics"
	"github.com/vincentbai/lynk-embed/internal/models"
	"github.com/vincentbai/lynk-embed/internal/page"
	"github.com/vincentbai/lynk-embed/internal/session"
)

const (
	DefaultBaseURL       = "https://api.lynk.coach/v1"
	DefaultFlushInterval = 5 * time.Second
	DefaultMaxQueueSize  = 100
	DefaultRequeueLimit  = 50

	APIKeyHeader    = "X-Lynk-API-Key"
	requestIDHeader = "X-Request-ID"
	maxErrorBody    = 512
)

// Flush triggers, used as metric labels.
const (
	triggerPeriodic = "periodic"
	triggerOverflow = "overflow"
	triggerManual   = "manual"
	triggerDestroy  = "destroy"
)

// Config identifies the academy and tunes delivery.
type Config struct {
	AcademyID  string
	APIKey     string
	APIBaseURL string
	Debug      bool

	FlushInterval time.Duration
	MaxQueueSize  int
	RequeueLimit  int
	Timeout       time.Duration
}

func (c *Config) applyDefaults() {
	if c.APIBaseURL == "" {
		c.APIBaseURL = DefaultBaseURL
	}
	c.APIBaseURL = strings.TrimRight(c.APIBaseURL, "/")
	if c.FlushInterval <= 0 {
		c.FlushInterval = DefaultFlushInterval
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = DefaultMaxQueueSize
	}
	if c.RequeueLimit <= 0 {
		c.RequeueLimit = DefaultRequeueLimit
	}
}

// Validate checks the fields every request depends on.
func (c Config) Validate() error {
	if c.AcademyID == "" {
		return errors.New("academy id is required")
	}
	if c.APIKey == "" {
		return errors.New("api key is required")
	}
	return nil
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default hardened HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithClock drives timestamps, session expiry and the flush ticker.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) { c.clock = clk }
}

// WithSessionStore sets the cookie store the session id is persisted in.
func WithSessionStore(store session.Store) Option {
	return func(c *Client) { c.store = store }
}

// WithPage sets the provider for url, referrer and user agent enrichment.
func WithPage(p page.Provider) Option {
	return func(c *Client) { c.page = p }
}

// WithLogger replaces the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = &l }
}

// Client owns one bounded event queue and its flush loop. It is safe for
// concurrent use; the queue lock is never held across network calls.
type Client struct {
	cfg      Config
	http     *http.Client
	clock    clock.Clock
	store    session.Store
	sessions *session.Manager
	page     page.Provider
	logger   *zerolog.Logger

	mu     sync.Mutex
	queue  []models.EnrichedEvent
	closed bool

	ticker   clock.Ticker
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	final    sync.WaitGroup
}

// New builds a client and starts its periodic flush.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client config: %w", err)
	}
	cfg.applyDefaults()

	c := &Client{
		cfg:  cfg,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = httpx.NewClient(cfg.Timeout)
	}
	if c.clock == nil {
		c.clock = clock.Real{}
	}
	if c.store == nil {
		c.store = session.NewMemoryJar(c.clock)
	}
	if c.page == nil {
		c.page = page.Static{}
	}
	if c.logger == nil {
		l := xlog.Component("LynkAPI", cfg.Debug)
		c.logger = &l
	}
	l := c.logger.With().Str(xlog.FieldAcademyID, cfg.AcademyID).Logger()
	c.logger = &l
	c.sessions = session.NewManager(c.store, c.clock)

	c.ticker = c.clock.NewTicker(cfg.FlushInterval)
	go c.run()
	return c, nil
}

// AcademyID returns the academy this client reports for.
func (c *Client) AcademyID() string {
	return c.cfg.AcademyID
}

// SessionID returns the current session id, creating one if needed.
func (c *Client) SessionID() string {
	return c.sessions.ID(c.cfg.AcademyID)
}

// Len returns the number of events waiting for delivery.
func (c *Client) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

func (c *Client) run() {
	defer close(c.done)
	for {
		select {
		case <-c.ticker.C():
			c.flush(context.Background(), triggerPeriodic)
		case <-c.stop:
			return
		}
	}
}

// Track enriches ev and appends it to the queue. A full queue is flushed
// first. Delivery failures are never returned; only events that cannot be
// admitted (invalid, or after Destroy) produce an error.
func (c *Client) Track(ctx context.Context, ev models.TrackingEvent) error {
	if err := ev.Validate(); err != nil {
		metrics.AddEventsDropped(c.cfg.AcademyID, "invalid", 1)
		c.logger.Warn().Err(err).Msg("Dropping invalid event")
		return fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}

	c.mu.Lock()
	closed := c.closed
	full := len(c.queue) >= c.cfg.MaxQueueSize
	c.mu.Unlock()

	if closed {
		metrics.AddEventsDropped(c.cfg.AcademyID, "closed", 1)
		return ErrClosed
	}
	if full {
		c.logger.Warn().Msg("Queue full, flushing immediately")
		c.flush(ctx, triggerOverflow)
	}

	enriched := c.enrich(ev)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		metrics.AddEventsDropped(c.cfg.AcademyID, "closed", 1)
		return ErrClosed
	}
	if len(c.queue) >= c.cfg.MaxQueueSize {
		// Only reachable when concurrent producers refilled the queue
		// while the forced flush was in flight.
		c.mu.Unlock()
		metrics.AddEventsDropped(c.cfg.AcademyID, "capacity", 1)
		c.logger.Warn().Str(xlog.FieldEventName, ev.EventName).Msg("Queue still full after flush, dropping event")
		return nil
	}
	c.queue = append(c.queue, enriched)
	n := len(c.queue)
	c.mu.Unlock()

	metrics.IncEventsQueued(c.cfg.AcademyID)
	metrics.SetQueueLength(c.cfg.AcademyID, n)
	c.logger.Debug().Str(xlog.FieldEventName, ev.EventName).Msg("Event queued")
	return nil
}

func (c *Client) enrich(ev models.TrackingEvent) models.EnrichedEvent {
	ts := ev.Timestamp
	if ts == 0 {
		ts = c.clock.Now().UnixMilli()
	}
	pg := c.page.Current()
	return models.EnrichedEvent{
		EventName:  ev.EventName,
		Properties: maps.Clone(ev.Properties),
		Timestamp:  ts,
		AcademyID:  c.cfg.AcademyID,
		SessionID:  c.sessions.ID(c.cfg.AcademyID),
		URL:        pg.URL,
		Referrer:   pg.Referrer,
		UserAgent:  pg.UserAgent,
	}
}

// Flush delivers everything queued so far as one batch. Failures are logged
// and a bounded prefix of the batch is restored to the front of the queue.
func (c *Client) Flush(ctx context.Context) {
	c.flush(ctx, triggerManual)
}

func (c *Client) flush(ctx context.Context, trigger string) {
	c.mu.Lock()
	if len(c.queue) == 0 {
		c.mu.Unlock()
		return
	}
	events := c.queue
	c.queue = nil
	c.mu.Unlock()
	metrics.SetQueueLength(c.cfg.AcademyID, 0)

	if err := c.send(ctx, events); err != nil {
		metrics.IncFlush(c.cfg.AcademyID, trigger, "failure")
		c.logger.Error().Err(err).Int(xlog.FieldCount, len(events)).Str("trigger", trigger).Msg("Failed to flush events")
		c.requeue(events)
		return
	}

	metrics.IncFlush(c.cfg.AcademyID, trigger, "success")
	metrics.AddEventsDelivered(c.cfg.AcademyID, len(events))
	c.logger.Debug().Int(xlog.FieldCount, len(events)).Str("trigger", trigger).Msg("Flushed events")
}

// requeue prepends the oldest failed events to whatever arrived meanwhile
// and truncates the result to the queue capacity.
func (c *Client) requeue(failed []models.EnrichedEvent) {
	keep := min(len(failed), c.cfg.RequeueLimit)

	c.mu.Lock()
	merged := make([]models.EnrichedEvent, 0, keep+len(c.queue))
	merged = append(merged, failed[:keep]...)
	merged = append(merged, c.queue...)
	overflow := 0
	if len(merged) > c.cfg.MaxQueueSize {
		overflow = len(merged) - c.cfg.MaxQueueSize
		merged = merged[:c.cfg.MaxQueueSize]
	}
	c.queue = merged
	n := len(merged)
	c.mu.Unlock()

	metrics.AddEventsRequeued(c.cfg.AcademyID, keep)
	metrics.AddEventsDropped(c.cfg.AcademyID, "requeue_limit", len(failed)-keep)
	metrics.AddEventsDropped(c.cfg.AcademyID, "capacity", overflow)
	metrics.SetQueueLength(c.cfg.AcademyID, n)
}

func (c *Client) send(ctx context.Context, events []models.EnrichedEvent) error {
	// Delivery outlives the caller, like a keepalive request outlives the page.
	ctx = context.WithoutCancel(ctx)
	return c.do(ctx, "flush events", http.MethodPost, "/events", models.EventBatch{Events: events}, nil)
}

// do issues one request against the API and decodes a JSON response into out.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("lynk api: %s: encode body: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.APIBaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("lynk api: %s: build request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(APIKeyHeader, c.cfg.APIKey)
	requestID := xlog.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	req.Header.Set(requestIDHeader, requestID)

	resp, err := c.http.Do(req)
	if err != nil {
		return &APIError{Sentinel: ErrTransport, Operation: op, Err: err}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{
			Sentinel:  ErrUnexpectedStatus,
			Operation: op,
			Status:    resp.StatusCode,
			Body:      strings.TrimSpace(string(snippet)),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &APIError{Sentinel: ErrBadResponse, Operation: op, Status: resp.StatusCode, Err: err}
	}
	return nil
}

func (c *Client) shutdown() bool {
	first := false
	c.stopOnce.Do(func() {
		first = true
		c.ticker.Stop()
		close(c.stop)
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
	})
	return first
}

// Destroy stops the flush ticker and starts one final flush in the
// background. It does not wait for delivery and does not cancel a flush
// that is already in flight.
func (c *Client) Destroy() {
	if !c.shutdown() {
		return
	}
	c.final.Add(1)
	go func() {
		defer c.final.Done()
		c.flush(context.Background(), triggerDestroy)
	}()
}

// Close stops the flush ticker and delivers what is left before returning,
// or gives up when ctx is done.
func (c *Client) Close(ctx context.Context) error {
	if c.shutdown() {
		c.flush(ctx, triggerDestroy)
	}
	finished := make(chan struct{})
	go func() {
		c.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until the flush loop and any final flush started by Destroy
// have finished.
func (c *Client) Wait() {
	<-c.done
	c.final.Wait()
}
