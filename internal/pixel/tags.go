package pixel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vincentbai/lynk-embed/internal/httpx"
	"github.com/vincentbai/lynk-embed/internal/page"
)

// Command is one call into a third-party tag queue, e.g.
// gtag('event', 'purchase', {...}) or fbq('track', 'Lead', {...}).
type Command struct {
	Method string         `json:"method"`
	Target string         `json:"target,omitempty"`
	Params map[string]any `json:"params,omitempty"`
}

// Tag receives commands for one tag library.
type Tag interface {
	Command(ctx context.Context, cmd Command) error
}

// DataLayer buffers commands in memory so a server-rendered page can replay
// them into the browser tag library with Script.
type DataLayer struct {
	fn string

	mu       sync.Mutex
	commands []Command
	loaded   bool
}

// NewDataLayer returns a buffer replayed through the global JS function fn
// ("gtag" or "fbq").
func NewDataLayer(fn string) *DataLayer {
	return &DataLayer{fn: fn}
}

// Command records cmd. The gtag "js" bootstrap is recorded once, so several
// Google destinations can share one layer.
func (d *DataLayer) Command(_ context.Context, cmd Command) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cmd.Method == "js" {
		if d.loaded {
			return nil
		}
		d.loaded = true
	}
	d.commands = append(d.commands, cmd)
	return nil
}

// Commands returns a copy of everything recorded so far.
func (d *DataLayer) Commands() []Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Command, len(d.commands))
	copy(out, d.commands)
	return out
}

// Drain returns and forgets the recorded commands.
func (d *DataLayer) Drain() []Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.commands
	d.commands = nil
	return out
}

// Script writes the buffered commands as JS calls, one per line. JSON
// encoding escapes <, > and & so the output is safe inside a script element.
func (d *DataLayer) Script(w io.Writer) error {
	for _, cmd := range d.Commands() {
		args := []any{cmd.Method}
		if cmd.Target != "" {
			args = append(args, cmd.Target)
		}
		if cmd.Params != nil {
			args = append(args, cmd.Params)
		}
		parts := make([]string, 0, len(args))
		for _, a := range args {
			b, err := json.Marshal(a)
			if err != nil {
				return fmt.Errorf("encode %s command: %w", d.fn, err)
			}
			parts = append(parts, string(b))
		}
		if _, err := fmt.Fprintf(w, "%s(%s);\n", d.fn, strings.Join(parts, ",")); err != nil {
			return err
		}
	}
	return nil
}

// httpTag is shared plumbing for tags that deliver server-side.
type httpTag struct {
	client  *http.Client
	limiter *rate.Limiter
}

// DefaultTagRate is the request rate used when a tag is given none.
const DefaultTagRate = 10

func newHTTPTag(client *http.Client, perSecond float64) httpTag {
	if client == nil {
		client = httpx.NewClient(0)
	}
	if perSecond <= 0 {
		perSecond = DefaultTagRate
	}
	return httpTag{client: client, limiter: rate.NewLimiter(rate.Limit(perSecond), max(1, int(perSecond)))}
}

func (h httpTag) post(ctx context.Context, endpoint string, body any) error {
	if err := h.limiter.Wait(ctx); err != nil {
		return err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, req.URL.Host)
	}
	return nil
}

// MeasurementProtocol sends gtag events to GA4 from the server.
type MeasurementProtocol struct {
	httpTag
	Endpoint      string
	MeasurementID string
	APISecret     string
	// ClientID identifies the browser; usually the session id.
	ClientID func() string
}

// DefaultMeasurementEndpoint is the GA4 Measurement Protocol collect URL.
const DefaultMeasurementEndpoint = "https://www.google-analytics.com/mp/collect"

// NewMeasurementProtocol returns a GA4 tag limited to perSecond requests.
func NewMeasurementProtocol(client *http.Client, measurementID, apiSecret string, clientID func() string, perSecond float64) *MeasurementProtocol {
	return &MeasurementProtocol{
		httpTag:       newHTTPTag(client, perSecond),
		Endpoint:      DefaultMeasurementEndpoint,
		MeasurementID: measurementID,
		APISecret:     apiSecret,
		ClientID:      clientID,
	}
}

// Command forwards "event" commands; bootstrap commands are meaningless
// server-side and ignored.
func (m *MeasurementProtocol) Command(ctx context.Context, cmd Command) error {
	if cmd.Method != "event" {
		return nil
	}
	q := url.Values{"measurement_id": {m.MeasurementID}, "api_secret": {m.APISecret}}
	clientID := ""
	if m.ClientID != nil {
		clientID = m.ClientID()
	}
	body := map[string]any{
		"client_id": clientID,
		"events":    []map[string]any{{"name": cmd.Target, "params": cmd.Params}},
	}
	return m.post(ctx, m.Endpoint+"?"+q.Encode(), body)
}

// ConversionsAPI sends fbq events to Meta from the server.
type ConversionsAPI struct {
	httpTag
	Endpoint    string
	PixelID     string
	AccessToken string
	Page        page.Provider
	Now         func() time.Time
}

// DefaultConversionsEndpoint is the Graph API base for pixel events.
const DefaultConversionsEndpoint = "https://graph.facebook.com/v19.0"

// NewConversionsAPI returns a Meta tag limited to perSecond requests.
func NewConversionsAPI(client *http.Client, pixelID, accessToken string, p page.Provider, perSecond float64) *ConversionsAPI {
	return &ConversionsAPI{
		httpTag:     newHTTPTag(client, perSecond),
		Endpoint:    DefaultConversionsEndpoint,
		PixelID:     pixelID,
		AccessToken: accessToken,
		Page:        p,
		Now:         time.Now,
	}
}

// Command forwards "track" commands; "init" is ignored.
func (c *ConversionsAPI) Command(ctx context.Context, cmd Command) error {
	if cmd.Method != "track" {
		return nil
	}
	var pg page.Context
	if c.Page != nil {
		pg = c.Page.Current()
	}
	event := map[string]any{
		"event_name":       cmd.Target,
		"event_time":       c.Now().Unix(),
		"action_source":    "website",
		"event_source_url": pg.URL,
		"user_data":        map[string]any{"client_user_agent": pg.UserAgent},
	}
	if len(cmd.Params) > 0 {
		event["custom_data"] = cmd.Params
	}
	endpoint := fmt.Sprintf("%s/%s/events?%s", c.Endpoint, url.PathEscape(c.PixelID),
		url.Values{"access_token": {c.AccessToken}}.Encode())
	return c.post(ctx, endpoint, map[string]any{"data": []any{event}})
}
