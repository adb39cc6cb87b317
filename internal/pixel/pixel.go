// Package pixel is the marketing pixel: it persists every event through the
// delivery client and forwards it to the configured ad and analytics
// platforms, subject to the visitor's consent.
package pixel

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vincentbai/lynk-embed/internal/clock"
	xlog "github.com/vincentbai/lynk-embed/internal/log"
	"github.com/vincentbai/lynk-embed/internal/lynkapi"
	"github.com/vincentbai/lynk-embed/internal/metrics"
	"github.com/vincentbai/lynk-embed/internal/models"
	"github.com/vincentbai/lynk-embed/internal/page"
	"github.com/vincentbai/lynk-embed/internal/session"
)

// Pixels holds the per-platform ids configured for an academy.
type Pixels struct {
	Google          string `yaml:"google"`          // Google Ads conversion id (AW-xxxxxxxx)
	GoogleAnalytics string `yaml:"googleAnalytics"` // GA4 measurement id (G-xxxxxxxx)
	Facebook        string `yaml:"facebook"`        // Meta pixel id
}

// Consent flags. A nil flag counts as granted.
type Consent struct {
	Analytics *bool `yaml:"analytics"`
	Marketing *bool `yaml:"marketing"`
}

func (c Consent) allows(cat ConsentCategory) bool {
	switch cat {
	case ConsentAnalytics:
		return c.Analytics == nil || *c.Analytics
	default:
		return c.Marketing == nil || *c.Marketing
	}
}

// merge overlays the non-nil flags of partial.
func (c Consent) merge(partial Consent) Consent {
	if partial.Analytics != nil {
		v := *partial.Analytics
		c.Analytics = &v
	}
	if partial.Marketing != nil {
		v := *partial.Marketing
		c.Marketing = &v
	}
	return c
}

// Config configures one pixel instance.
type Config struct {
	AcademyID    string
	APIKey       string
	APIBaseURL   string
	Debug        bool
	Pixels       Pixels
	Consent      Consent
	AutoPageView *bool // default true
}

// EventTracker is the delivery client the pixel persists events through.
type EventTracker interface {
	Track(ctx context.Context, ev models.TrackingEvent) error
	Destroy()
}

// Option customises a Pixel.
type Option func(*Pixel)

// WithTracker supplies the delivery client instead of building one.
func WithTracker(t EventTracker) Option {
	return func(p *Pixel) { p.api = t }
}

// WithPage sets the host page. A *page.Tracker also feeds automatic page views.
func WithPage(pp page.Provider) Option {
	return func(p *Pixel) { p.page = pp }
}

// WithSessionStore sets the cookie store for attribution and session cookies.
func WithSessionStore(s session.Store) Option {
	return func(p *Pixel) { p.store = s }
}

// WithClock drives timestamps and cookie expiry.
func WithClock(c clock.Clock) Option {
	return func(p *Pixel) { p.clock = c }
}

// WithGtag routes Google Ads and GA4 commands to tag.
func WithGtag(tag Tag) Option {
	return func(p *Pixel) { p.gtag = tag }
}

// WithAnalyticsTag routes GA4 commands to tag instead of the shared gtag,
// e.g. a MeasurementProtocol.
func WithAnalyticsTag(tag Tag) Option {
	return func(p *Pixel) { p.ga4 = tag }
}

// WithFbq routes Meta commands to tag.
func WithFbq(tag Tag) Option {
	return func(p *Pixel) { p.fbq = tag }
}

// WithDestinations appends extra destinations.
func WithDestinations(d ...Destination) Option {
	return func(p *Pixel) { p.extra = append(p.extra, d...) }
}

// WithClientOptions passes options to the delivery client built by New.
func WithClientOptions(opts ...lynkapi.Option) Option {
	return func(p *Pixel) { p.clientOpts = append(p.clientOpts, opts...) }
}

type navigationSource interface {
	Subscribe(fn func(page.Navigation)) (unsubscribe func())
}

// Pixel forwards tracking events. Events tracked before Init are held and
// processed in order once Init completes.
type Pixel struct {
	cfg          Config
	api          EventTracker
	page         page.Provider
	store        session.Store
	clock        clock.Clock
	gtag         Tag
	fbq          Tag
	ga4          Tag
	extra        []Destination
	clientOpts   []lynkapi.Option
	destinations []Destination
	logger       zerolog.Logger

	mu          sync.Mutex
	initialized bool
	pending     []Event
	consent     Consent
	unsubscribe func()
}

// New builds a pixel. Unless WithTracker is given, it owns a new delivery
// client sharing the pixel's page, cookie store and clock.
func New(cfg Config, opts ...Option) (*Pixel, error) {
	if cfg.AutoPageView == nil {
		enabled := true
		cfg.AutoPageView = &enabled
	}
	p := &Pixel{cfg: cfg, consent: cfg.Consent}
	for _, opt := range opts {
		opt(p)
	}
	if p.clock == nil {
		p.clock = clock.Real{}
	}
	if p.page == nil {
		p.page = page.Static{}
	}
	if p.store == nil {
		p.store = session.NewMemoryJar(p.clock)
	}
	if p.gtag == nil {
		p.gtag = NewDataLayer("gtag")
	}
	if p.fbq == nil {
		p.fbq = NewDataLayer("fbq")
	}
	p.logger = xlog.Component("LynkPixel", cfg.Debug).With().Str(xlog.FieldAcademyID, cfg.AcademyID).Logger()

	if p.api == nil {
		clientOpts := append([]lynkapi.Option{
			lynkapi.WithPage(p.page),
			lynkapi.WithSessionStore(p.store),
			lynkapi.WithClock(p.clock),
		}, p.clientOpts...)
		api, err := lynkapi.New(lynkapi.Config{
			AcademyID:  cfg.AcademyID,
			APIKey:     cfg.APIKey,
			APIBaseURL: cfg.APIBaseURL,
			Debug:      cfg.Debug,
		}, clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("create pixel client: %w", err)
		}
		p.api = api
	}

	now := p.clock.Now
	if cfg.Pixels.Google != "" {
		p.destinations = append(p.destinations, &GoogleAds{ID: cfg.Pixels.Google, Tag: p.gtag, Now: now})
	}
	if cfg.Pixels.Facebook != "" {
		p.destinations = append(p.destinations, &Meta{PixelID: cfg.Pixels.Facebook, Tag: p.fbq})
	}
	if cfg.Pixels.GoogleAnalytics != "" {
		ga4 := &GoogleAnalytics{ID: cfg.Pixels.GoogleAnalytics, AcademyID: cfg.AcademyID, Tag: p.gtag, Now: now}
		if p.ga4 != nil {
			ga4.Tag = p.ga4
		} else {
			ga4.Bootstrapped = cfg.Pixels.Google != ""
		}
		p.destinations = append(p.destinations, ga4)
	}
	p.destinations = append(p.destinations, p.extra...)
	return p, nil
}

// Gtag returns the tag Google commands are sent to.
func (p *Pixel) Gtag() Tag { return p.gtag }

// Fbq returns the tag Meta commands are sent to.
func (p *Pixel) Fbq() Tag { return p.fbq }

// Initialized reports whether Init has completed.
func (p *Pixel) Initialized() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initialized
}

// Init loads the destinations, captures attribution, records the first page
// view and then processes everything tracked so far. Bots are ignored.
func (p *Pixel) Init(ctx context.Context) {
	p.mu.Lock()
	if p.initialized {
		p.mu.Unlock()
		p.logger.Warn().Msg("Pixel already initialized")
		return
	}
	p.mu.Unlock()

	current := p.page.Current()
	if page.IsBot(current.UserAgent) {
		p.logger.Info().Msg("Bot detected, skipping pixel initialization")
		return
	}

	platforms := make([]string, 0, len(p.destinations))
	for _, d := range p.destinations {
		platforms = append(platforms, d.Platform())
	}
	p.logger.Info().Strs("pixels", platforms).Msg("Initializing Lynk Pixel")

	for _, d := range p.destinations {
		if err := d.Load(ctx); err != nil {
			p.logger.Warn().Err(err).Str(xlog.FieldPlatform, d.Platform()).Msg("Failed to load platform tag")
			continue
		}
		p.logger.Debug().Str(xlog.FieldPlatform, d.Platform()).Msg("Platform tag loaded")
	}

	p.captureAttribution(ctx)

	if *p.cfg.AutoPageView {
		p.TrackPageView(ctx, PageView{})
		if src, ok := p.page.(navigationSource); ok {
			unsubscribe := src.Subscribe(func(nav page.Navigation) {
				p.TrackPageView(context.Background(), PageView{Path: nav.Path, Title: nav.Title})
			})
			p.mu.Lock()
			p.unsubscribe = unsubscribe
			p.mu.Unlock()
		}
	}

	// Drain before flipping the flag so held events keep their order.
	for {
		p.mu.Lock()
		if len(p.pending) == 0 {
			p.initialized = true
			p.mu.Unlock()
			break
		}
		batch := p.pending
		p.pending = nil
		p.mu.Unlock()
		for _, ev := range batch {
			p.process(ctx, ev)
		}
	}

	p.logger.Info().Msg("Pixel initialized successfully")
}

// Track records a custom event.
func (p *Pixel) Track(ctx context.Context, name string, data map[string]any) {
	ev := Event{Name: name, Data: data, Timestamp: p.clock.Now().UnixMilli()}

	p.mu.Lock()
	if !p.initialized {
		p.pending = append(p.pending, ev)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	p.process(ctx, ev)
}

func (p *Pixel) process(ctx context.Context, ev Event) {
	p.logger.Debug().Str(xlog.FieldEventName, ev.Name).Msg("Processing event")

	err := p.api.Track(ctx, models.TrackingEvent{
		EventName:  "pixel_" + ev.Name,
		Properties: ev.Data,
		Timestamp:  ev.Timestamp,
	})
	if err != nil {
		p.logger.Warn().Err(err).Str(xlog.FieldEventName, ev.Name).Msg("Event not queued")
	}

	p.mu.Lock()
	consent := p.consent
	p.mu.Unlock()

	for _, d := range p.destinations {
		if !consent.allows(d.Category()) {
			metrics.IncPixelForward(d.Platform(), "skipped_consent")
			continue
		}
		if err := d.Send(ctx, ev); err != nil {
			metrics.IncPixelForward(d.Platform(), "error")
			p.logger.Warn().Err(err).Str(xlog.FieldPlatform, d.Platform()).Msg("Failed to forward event")
			continue
		}
		metrics.IncPixelForward(d.Platform(), "sent")
		p.logger.Debug().Str(xlog.FieldPlatform, d.Platform()).Str(xlog.FieldEventName, ev.Name).Msg("Event forwarded")
	}
}

// SetConsent updates the consent flags for future events.
func (p *Pixel) SetConsent(partial Consent) {
	p.mu.Lock()
	p.consent = p.consent.merge(partial)
	c := p.consent
	p.mu.Unlock()

	e := p.logger.Info()
	if c.Analytics != nil {
		e = e.Bool("analytics", *c.Analytics)
	}
	if c.Marketing != nil {
		e = e.Bool("marketing", *c.Marketing)
	}
	e.Msg("Consent updated")
}

// Destroy stops automatic page views and destroys the delivery client.
func (p *Pixel) Destroy() {
	p.mu.Lock()
	unsubscribe := p.unsubscribe
	p.unsubscribe = nil
	p.initialized = false
	p.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	p.api.Destroy()
}
