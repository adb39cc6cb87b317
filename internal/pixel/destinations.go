package pixel

import (
	"context"
	"maps"
	"time"
)

// Platform names, used in logs and metrics.
const (
	PlatformGoogleAds = "google_ads"
	PlatformGA4       = "ga4"
	PlatformMeta      = "meta"
)

// ConsentCategory groups destinations under one consent flag.
type ConsentCategory int

const (
	ConsentMarketing ConsentCategory = iota
	ConsentAnalytics
)

// Event is what the pixel forwards to destinations.
type Event struct {
	Name      string
	Data      map[string]any
	Timestamp int64
}

// Destination is one third-party platform the pixel forwards to.
type Destination interface {
	Platform() string
	Category() ConsentCategory
	// Load bootstraps the platform's tag, once per Init.
	Load(ctx context.Context) error
	Send(ctx context.Context, ev Event) error
}

var googleAdsEvents = map[string]string{
	"purchase":       "purchase",
	"begin_checkout": "begin_checkout",
	"generate_lead":  "generate_lead",
	"contact":        "contact",
	"page_view":      "page_view",
}

var ga4Events = map[string]string{
	"page_view":      "page_view",
	"purchase":       "purchase",
	"begin_checkout": "begin_checkout",
	"generate_lead":  "generate_lead",
	"contact":        "contact",
}

var metaEvents = map[string]string{
	"page_view":      "PageView",
	"purchase":       "Purchase",
	"begin_checkout": "InitiateCheckout",
	"generate_lead":  "Lead",
	"contact":        "Contact",
}

// truthy mirrors how the browser tags treat optional values.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case int:
		return x != 0
	case int64:
		return x != 0
	case float64:
		return x != 0
	default:
		return true
	}
}

func currencyOr(data map[string]any) any {
	if c, ok := data["currency"]; ok && truthy(c) {
		return c
	}
	return "USD"
}

func loadGtag(ctx context.Context, tag Tag, now func() time.Time, id string) error {
	if err := tag.Command(ctx, Command{Method: "js", Target: now().UTC().Format(time.RFC3339)}); err != nil {
		return err
	}
	return tag.Command(ctx, Command{Method: "config", Target: id})
}

// GoogleAds forwards conversions through gtag.
type GoogleAds struct {
	ID  string
	Tag Tag
	Now func() time.Time
}

func (g *GoogleAds) Platform() string          { return PlatformGoogleAds }
func (g *GoogleAds) Category() ConsentCategory { return ConsentMarketing }

func (g *GoogleAds) Load(ctx context.Context) error {
	return loadGtag(ctx, g.Tag, nowOr(g.Now), g.ID)
}

func (g *GoogleAds) Send(ctx context.Context, ev Event) error {
	name, ok := googleAdsEvents[ev.Name]
	if !ok {
		name = "custom"
	}
	params := map[string]any{
		"send_to":  g.ID,
		"currency": currencyOr(ev.Data),
	}
	for src, dst := range map[string]string{"value": "value", "transactionId": "transaction_id", "items": "items"} {
		if v, ok := ev.Data[src]; ok && v != nil {
			params[dst] = v
		}
	}
	maps.Copy(params, ev.Data)
	return g.Tag.Command(ctx, Command{Method: "event", Target: name, Params: params})
}

// GoogleAnalytics forwards events to a GA4 property through gtag.
type GoogleAnalytics struct {
	ID        string
	AcademyID string
	Tag       Tag
	Now       func() time.Time

	// Bootstrapped is set when another Google destination already sent
	// gtag('js') to Tag; Load then only adds the GA4 config.
	Bootstrapped bool
}

func (g *GoogleAnalytics) Platform() string          { return PlatformGA4 }
func (g *GoogleAnalytics) Category() ConsentCategory { return ConsentAnalytics }

func (g *GoogleAnalytics) Load(ctx context.Context) error {
	if g.Bootstrapped {
		return g.Tag.Command(ctx, Command{Method: "config", Target: g.ID})
	}
	return loadGtag(ctx, g.Tag, nowOr(g.Now), g.ID)
}

func (g *GoogleAnalytics) Send(ctx context.Context, ev Event) error {
	name, ok := ga4Events[ev.Name]
	if !ok {
		name = "custom_" + ev.Name
	}
	params := maps.Clone(ev.Data)
	if params == nil {
		params = make(map[string]any, 1)
	}
	params["academy_id"] = g.AcademyID
	return g.Tag.Command(ctx, Command{Method: "event", Target: name, Params: params})
}

// Meta forwards events to a Meta (Facebook) pixel through fbq.
type Meta struct {
	PixelID string
	Tag     Tag
}

func (m *Meta) Platform() string          { return PlatformMeta }
func (m *Meta) Category() ConsentCategory { return ConsentMarketing }

func (m *Meta) Load(ctx context.Context) error {
	if err := m.Tag.Command(ctx, Command{Method: "init", Target: m.PixelID}); err != nil {
		return err
	}
	return m.Tag.Command(ctx, Command{Method: "track", Target: "PageView"})
}

func (m *Meta) Send(ctx context.Context, ev Event) error {
	name, ok := metaEvents[ev.Name]
	if !ok {
		name = "CustomEvent"
	}
	params := map[string]any{"content_type": "product"}
	maps.Copy(params, ev.Data)
	if v := ev.Data["value"]; truthy(v) {
		params["value"] = v
		params["currency"] = currencyOr(ev.Data)
	}
	return m.Tag.Command(ctx, Command{Method: "track", Target: name, Params: params})
}

func nowOr(now func() time.Time) func() time.Time {
	if now == nil {
		return time.Now
	}
	return now
}
