// Package booking implements the booking widget flow without a UI: loading
// what can be booked, submitting the visitor's choice and reporting the
// conversion.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vincentbai/lynk-embed/internal/clock"
	xlog "github.com/vincentbai/lynk-embed/internal/log"
	"github.com/vincentbai/lynk-embed/internal/lynkapi"
	"github.com/vincentbai/lynk-embed/internal/models"
	"github.com/vincentbai/lynk-embed/internal/pixel"
)

// Widget types.
const (
	TypeBooking     = "booking"
	TypeAppointment = "appointment"
	TypeBoth        = "both"
)

// Visitor-facing messages.
const (
	DefaultSuccessMessage = "Thank you! We will contact you shortly."
	FailureMessage        = "Something went wrong. Please try again or contact us directly."
)

var (
	// ErrBookingFailed is returned by Submit when the backend rejects the
	// booking or cannot be reached. Show FailureMessage to the visitor.
	ErrBookingFailed = errors.New("booking failed")
	// ErrNoSelection means Submit was called without exactly one item.
	ErrNoSelection = errors.New("select a batch or an appointment slot")
)

// API is the part of the delivery client the widget uses.
type API interface {
	FetchAcademyConfig(ctx context.Context) (*models.EmbedConfig, error)
	ListBatches(ctx context.Context) ([]models.Batch, error)
	ListAppointmentSlots(ctx context.Context, date string) ([]models.AppointmentSlot, error)
	CreateBooking(ctx context.Context, req models.BookingRequest) (*models.Booking, error)
	Destroy()
}

// ConversionTracker receives purchase conversions for accepted bookings.
// *pixel.Pixel satisfies it.
type ConversionTracker interface {
	TrackPurchase(ctx context.Context, p pixel.Purchase)
}

// Config configures a widget.
type Config struct {
	AcademyID          string
	APIKey             string
	APIBaseURL         string
	Debug              bool
	Type               string // booking|appointment|both, default both
	PreselectedBatchID string
	SuccessMessage     string
	OnSuccess          func(*models.Booking)
	OnError            func(error)
}

// Option customises a Widget.
type Option func(*Widget)

// WithAPI supplies the backend client instead of building one.
func WithAPI(api API) Option {
	return func(w *Widget) { w.api = api }
}

// WithConversionTracker reports accepted bookings as purchases.
func WithConversionTracker(t ConversionTracker) Option {
	return func(w *Widget) { w.tracker = t }
}

// WithClock sets the clock used to decide what "today" is.
func WithClock(c clock.Clock) Option {
	return func(w *Widget) { w.clock = c }
}

// WithClientOptions passes options to the client built by New.
func WithClientOptions(opts ...lynkapi.Option) Option {
	return func(w *Widget) { w.clientOpts = append(w.clientOpts, opts...) }
}

// Widget drives one booking widget mount.
type Widget struct {
	cfg        Config
	api        API
	tracker    ConversionTracker
	clock      clock.Clock
	clientOpts []lynkapi.Option
	logger     zerolog.Logger

	academy *models.EmbedConfig
}

// New builds a widget. Without WithAPI it owns a new delivery client.
func New(cfg Config, opts ...Option) (*Widget, error) {
	if cfg.Type == "" {
		cfg.Type = TypeBoth
	}
	switch cfg.Type {
	case TypeBooking, TypeAppointment, TypeBoth:
	default:
		return nil, fmt.Errorf("unknown widget type %q", cfg.Type)
	}
	if cfg.SuccessMessage == "" {
		cfg.SuccessMessage = DefaultSuccessMessage
	}

	w := &Widget{cfg: cfg}
	for _, opt := range opts {
		opt(w)
	}
	if w.clock == nil {
		w.clock = clock.Real{}
	}
	w.logger = xlog.Component("LynkButton", cfg.Debug).With().Str(xlog.FieldAcademyID, cfg.AcademyID).Logger()

	if w.api == nil {
		api, err := lynkapi.New(lynkapi.Config{
			AcademyID:  cfg.AcademyID,
			APIKey:     cfg.APIKey,
			APIBaseURL: cfg.APIBaseURL,
			Debug:      cfg.Debug,
		}, append([]lynkapi.Option{lynkapi.WithClock(w.clock)}, w.clientOpts...)...)
		if err != nil {
			return nil, fmt.Errorf("create widget client: %w", err)
		}
		w.api = api
	}
	return w, nil
}

// Init loads the academy's embed config. A failure is logged and the widget
// carries on with its local settings.
func (w *Widget) Init(ctx context.Context) {
	w.logger.Info().Msg("Initializing Lynk Button")
	cfg, err := w.api.FetchAcademyConfig(ctx)
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to load academy config")
		return
	}
	w.academy = cfg
	w.logger.Debug().Str("academy", cfg.Academy.Name).Msg("Academy config loaded")
}

// AcademyConfig returns the config loaded by Init, or nil.
func (w *Widget) AcademyConfig() *models.EmbedConfig {
	return w.academy
}

// SuccessMessage is the text to show once a booking is accepted.
func (w *Widget) SuccessMessage() string {
	return w.cfg.SuccessMessage
}

// Options is what the visitor can choose from.
type Options struct {
	Batches []models.Batch
	Slots   []models.AppointmentSlot
	// Preselected is the batch named by PreselectedBatchID, if listed.
	Preselected *models.Batch
}

// Today returns today's date as YYYY-MM-DD in UTC.
func (w *Widget) Today() string {
	return w.clock.Now().UTC().Format(time.DateOnly)
}

// LoadOptions fetches batches and today's slots concurrently, depending on
// the widget type. On failure the returned Options still hold whatever did
// load.
func (w *Widget) LoadOptions(ctx context.Context) (Options, error) {
	var (
		opts Options
		g    errgroup.Group
	)
	if w.cfg.Type == TypeBooking || w.cfg.Type == TypeBoth {
		g.Go(func() error {
			batches, err := w.api.ListBatches(ctx)
			if err != nil {
				return fmt.Errorf("list batches: %w", err)
			}
			opts.Batches = batches
			return nil
		})
	}
	if w.cfg.Type == TypeAppointment || w.cfg.Type == TypeBoth {
		today := w.Today()
		g.Go(func() error {
			slots, err := w.api.ListAppointmentSlots(ctx, today)
			if err != nil {
				return fmt.Errorf("list appointment slots: %w", err)
			}
			opts.Slots = slots
			return nil
		})
	}
	err := g.Wait()
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to load data")
	}

	if w.cfg.PreselectedBatchID != "" {
		for i := range opts.Batches {
			if opts.Batches[i].ID == w.cfg.PreselectedBatchID {
				opts.Preselected = &opts.Batches[i]
				break
			}
		}
	}
	return opts, err
}

// Selection is the item being booked. Exactly one field is set.
type Selection struct {
	Batch *models.Batch
	Slot  *models.AppointmentSlot
}

// Form is what the visitor typed in. Details holds any custom fields.
type Form struct {
	Name    string
	Phone   string
	Email   string
	Details map[string]string
}

// Submit creates the booking and reports it as a purchase conversion.
func (w *Widget) Submit(ctx context.Context, sel Selection, form Form) (*models.Booking, error) {
	req, err := buildRequest(sel, form)
	if err != nil {
		return nil, err
	}

	booking, err := w.api.CreateBooking(ctx, req)
	if err != nil {
		w.logger.Error().Err(err).Str("type", req.Type).Msg("Booking failed")
		err = fmt.Errorf("%w: %w", ErrBookingFailed, err)
		if w.cfg.OnError != nil {
			w.cfg.OnError(err)
		}
		return nil, err
	}
	w.logger.Info().Str("booking_id", booking.ID).Str("type", req.Type).Msg("Booking created")

	if w.tracker != nil {
		purchase := pixel.Purchase{Currency: "USD", TransactionID: booking.ID}
		if sel.Batch != nil {
			purchase.Value = sel.Batch.Price
			purchase.Currency = sel.Batch.Currency
		}
		w.tracker.TrackPurchase(ctx, purchase)
	}
	if w.cfg.OnSuccess != nil {
		w.cfg.OnSuccess(booking)
	}
	return booking, nil
}

func buildRequest(sel Selection, form Form) (models.BookingRequest, error) {
	req := models.BookingRequest{
		Customer: models.Customer{Name: form.Name, Phone: form.Phone, Email: form.Email},
		Details:  make(map[string]string, len(form.Details)+3),
	}
	switch {
	case sel.Batch != nil && sel.Slot == nil:
		req.Type = models.BookingTypeBatch
		req.ItemID = sel.Batch.ID
	case sel.Slot != nil && sel.Batch == nil:
		req.Type = models.BookingTypeAppointment
		req.ItemID = sel.Slot.ID
	default:
		return req, ErrNoSelection
	}
	for k, v := range form.Details {
		req.Details[k] = v
	}
	req.Details["name"] = form.Name
	req.Details["phone"] = form.Phone
	req.Details["email"] = form.Email
	return req, nil
}

// Destroy releases the widget's client.
func (w *Widget) Destroy() {
	w.api.Destroy()
}
