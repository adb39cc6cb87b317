// Package config loads SDK settings from YAML files, LYNK_* environment
// variables and embed script tags.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vincentbai/lynk-embed/internal/booking"
	"github.com/vincentbai/lynk-embed/internal/httpx"
	"github.com/vincentbai/lynk-embed/internal/lynkapi"
	"github.com/vincentbai/lynk-embed/internal/page"
	"github.com/vincentbai/lynk-embed/internal/pixel"
)

// Widget holds booking widget settings.
type Widget struct {
	Type               string `yaml:"type"`
	PreselectedBatchID string `yaml:"preselectedBatchId"`
	SuccessMessage     string `yaml:"successMessage"`
}

// ServerTags holds credentials for delivering conversions to the ad
// platforms over HTTP instead of through browser tags. Endpoints default to
// the platforms' public APIs.
type ServerTags struct {
	GA4APISecret    string  `yaml:"ga4ApiSecret"`
	GA4Endpoint     string  `yaml:"ga4Endpoint"`
	MetaAccessToken string  `yaml:"metaAccessToken"`
	MetaEndpoint    string  `yaml:"metaEndpoint"`
	RatePerSecond   float64 `yaml:"ratePerSecond"`
}

// Config is the full SDK configuration.
type Config struct {
	AcademyID     string        `yaml:"academyId"`
	APIKey        string        `yaml:"apiKey"`
	APIBaseURL    string        `yaml:"apiBaseUrl"`
	Debug         bool          `yaml:"debug"`
	LogLevel      string        `yaml:"logLevel"`
	FlushInterval time.Duration `yaml:"flushInterval"`
	MaxQueueSize  int           `yaml:"maxQueueSize"`
	RequeueLimit  int           `yaml:"requeueLimit"`
	HTTPTimeout   time.Duration `yaml:"httpTimeout"`

	Pixels       pixel.Pixels  `yaml:"pixels"`
	Consent      pixel.Consent `yaml:"consent"`
	AutoPageView *bool         `yaml:"autoPageView"`
	Widget       Widget        `yaml:"widget"`
	ServerTags   ServerTags    `yaml:"serverTags"`

	// SessionFile persists the cookie jar between CLI runs.
	SessionFile string `yaml:"sessionFile"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		APIBaseURL:    lynkapi.DefaultBaseURL,
		FlushInterval: lynkapi.DefaultFlushInterval,
		MaxQueueSize:  lynkapi.DefaultMaxQueueSize,
		RequeueLimit:  lynkapi.DefaultRequeueLimit,
		HTTPTimeout:   10 * time.Second,
		Widget:        Widget{Type: booking.TypeBoth},
	}
}

// Load applies, in increasing precedence: defaults, the YAML file at path
// (if path is not empty) and LYNK_* environment variables. The result is
// validated.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes path over cfg. Unknown keys are rejected.
func loadFile(path string, cfg *Config) error {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.AcademyID = ParseString("LYNK_ACADEMY_ID", cfg.AcademyID)
	cfg.APIKey = ParseString("LYNK_API_KEY", cfg.APIKey)
	cfg.APIBaseURL = ParseString("LYNK_API_BASE_URL", cfg.APIBaseURL)
	cfg.Debug = ParseBool("LYNK_DEBUG", cfg.Debug)
	cfg.LogLevel = ParseString("LYNK_LOG_LEVEL", cfg.LogLevel)
	cfg.FlushInterval = ParseDuration("LYNK_FLUSH_INTERVAL", cfg.FlushInterval)
	cfg.MaxQueueSize = ParseInt("LYNK_MAX_QUEUE_SIZE", cfg.MaxQueueSize)
	cfg.RequeueLimit = ParseInt("LYNK_REQUEUE_LIMIT", cfg.RequeueLimit)
	cfg.HTTPTimeout = ParseDuration("LYNK_HTTP_TIMEOUT", cfg.HTTPTimeout)

	cfg.Pixels.Google = ParseString("LYNK_GOOGLE_PIXEL", cfg.Pixels.Google)
	cfg.Pixels.GoogleAnalytics = ParseString("LYNK_GA4_ID", cfg.Pixels.GoogleAnalytics)
	cfg.Pixels.Facebook = ParseString("LYNK_FACEBOOK_PIXEL", cfg.Pixels.Facebook)
	cfg.Consent.Analytics = parseOptionalBool("LYNK_CONSENT_ANALYTICS", cfg.Consent.Analytics)
	cfg.Consent.Marketing = parseOptionalBool("LYNK_CONSENT_MARKETING", cfg.Consent.Marketing)
	cfg.AutoPageView = parseOptionalBool("LYNK_AUTO_PAGE_VIEW", cfg.AutoPageView)

	cfg.ServerTags.GA4APISecret = ParseString("LYNK_GA4_API_SECRET", cfg.ServerTags.GA4APISecret)
	cfg.ServerTags.GA4Endpoint = ParseString("LYNK_GA4_ENDPOINT", cfg.ServerTags.GA4Endpoint)
	cfg.ServerTags.MetaAccessToken = ParseString("LYNK_META_ACCESS_TOKEN", cfg.ServerTags.MetaAccessToken)
	cfg.ServerTags.MetaEndpoint = ParseString("LYNK_META_ENDPOINT", cfg.ServerTags.MetaEndpoint)

	cfg.Widget.Type = ParseString("LYNK_WIDGET_TYPE", cfg.Widget.Type)
	cfg.SessionFile = ParseString("LYNK_SESSION_FILE", cfg.SessionFile)
}

// Validate checks required fields and ranges.
func (c Config) Validate() error {
	var errs []error
	if c.AcademyID == "" {
		errs = append(errs, errors.New("academyId is required"))
	}
	if c.APIKey == "" {
		errs = append(errs, errors.New("apiKey is required"))
	}
	if u, err := url.Parse(c.APIBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("apiBaseUrl %q is not an absolute URL", c.APIBaseURL))
	}
	if c.FlushInterval <= 0 {
		errs = append(errs, errors.New("flushInterval must be positive"))
	}
	if c.MaxQueueSize <= 0 {
		errs = append(errs, errors.New("maxQueueSize must be positive"))
	}
	if c.RequeueLimit < 0 || c.RequeueLimit > c.MaxQueueSize {
		errs = append(errs, fmt.Errorf("requeueLimit must be between 0 and maxQueueSize (%d)", c.MaxQueueSize))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, errors.New("httpTimeout must be positive"))
	}
	if c.ServerTags.GA4APISecret != "" && c.Pixels.GoogleAnalytics == "" {
		errs = append(errs, errors.New("serverTags.ga4ApiSecret needs pixels.googleAnalytics"))
	}
	if c.ServerTags.MetaAccessToken != "" && c.Pixels.Facebook == "" {
		errs = append(errs, errors.New("serverTags.metaAccessToken needs pixels.facebook"))
	}
	if c.ServerTags.RatePerSecond < 0 {
		errs = append(errs, errors.New("serverTags.ratePerSecond cannot be negative"))
	}
	switch c.Widget.Type {
	case booking.TypeBooking, booking.TypeAppointment, booking.TypeBoth:
	default:
		errs = append(errs, fmt.Errorf("widget.type %q must be booking, appointment or both", c.Widget.Type))
	}
	return errors.Join(errs...)
}

// Client returns the delivery client settings.
func (c Config) Client() lynkapi.Config {
	return lynkapi.Config{
		AcademyID:     c.AcademyID,
		APIKey:        c.APIKey,
		APIBaseURL:    c.APIBaseURL,
		Debug:         c.Debug,
		FlushInterval: c.FlushInterval,
		MaxQueueSize:  c.MaxQueueSize,
		RequeueLimit:  c.RequeueLimit,
		Timeout:       c.HTTPTimeout,
	}
}

// Pixel returns the pixel settings.
func (c Config) Pixel() pixel.Config {
	return pixel.Config{
		AcademyID:    c.AcademyID,
		APIKey:       c.APIKey,
		APIBaseURL:   c.APIBaseURL,
		Debug:        c.Debug,
		Pixels:       c.Pixels,
		Consent:      c.Consent,
		AutoPageView: c.AutoPageView,
	}
}

// Booking returns the booking widget settings.
func (c Config) Booking() booking.Config {
	return booking.Config{
		AcademyID:          c.AcademyID,
		APIKey:             c.APIKey,
		APIBaseURL:         c.APIBaseURL,
		Debug:              c.Debug,
		Type:               c.Widget.Type,
		PreselectedBatchID: c.Widget.PreselectedBatchID,
		SuccessMessage:     c.Widget.SuccessMessage,
	}
}

// PixelTags returns pixel options routing GA4 and Meta commands to their
// server-side APIs when credentials are configured. clientID identifies the
// visitor to GA4, usually the delivery client's session id.
func (c Config) PixelTags(pg page.Provider, clientID func() string) []pixel.Option {
	var opts []pixel.Option
	st := c.ServerTags
	if st.GA4APISecret != "" && c.Pixels.GoogleAnalytics != "" {
		mp := pixel.NewMeasurementProtocol(httpx.NewClient(c.HTTPTimeout), c.Pixels.GoogleAnalytics, st.GA4APISecret, clientID, st.RatePerSecond)
		if st.GA4Endpoint != "" {
			mp.Endpoint = st.GA4Endpoint
		}
		opts = append(opts, pixel.WithAnalyticsTag(mp))
	}
	if st.MetaAccessToken != "" && c.Pixels.Facebook != "" {
		capi := pixel.NewConversionsAPI(httpx.NewClient(c.HTTPTimeout), c.Pixels.Facebook, st.MetaAccessToken, pg, st.RatePerSecond)
		if st.MetaEndpoint != "" {
			capi.Endpoint = st.MetaEndpoint
		}
		opts = append(opts, pixel.WithFbq(capi))
	}
	return opts
}
