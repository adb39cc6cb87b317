package lynkapi

import (
	"context"
	"net/http"
	"net/url"

	"github.com/vincentbai/lynk-embed/internal/models"
)

func (c *Client) academyPath(suffix string) string {
	return "/academies/" + url.PathEscape(c.cfg.AcademyID) + suffix
}

// FetchAcademyConfig returns the academy, widget and pixel configuration.
func (c *Client) FetchAcademyConfig(ctx context.Context) (*models.EmbedConfig, error) {
	var cfg models.EmbedConfig
	if err := c.do(ctx, "fetch academy config", http.MethodGet, c.academyPath("/embed-config"), nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ListBatches returns the batches currently open for booking.
func (c *Client) ListBatches(ctx context.Context) ([]models.Batch, error) {
	var batches []models.Batch
	if err := c.do(ctx, "fetch batches", http.MethodGet, c.academyPath("/batches?available=true"), nil, &batches); err != nil {
		return nil, err
	}
	return batches, nil
}

// ListAppointmentSlots returns open slots, optionally for one YYYY-MM-DD date.
func (c *Client) ListAppointmentSlots(ctx context.Context, date string) ([]models.AppointmentSlot, error) {
	path := c.academyPath("/appointments")
	if date != "" {
		path += "?" + url.Values{"date": {date}}.Encode()
	}
	var slots []models.AppointmentSlot
	if err := c.do(ctx, "fetch appointment slots", http.MethodGet, path, nil, &slots); err != nil {
		return nil, err
	}
	return slots, nil
}

// CreateBooking submits a booking for this client's academy. The academy id
// always overrides whatever the caller put in req.
func (c *Client) CreateBooking(ctx context.Context, req models.BookingRequest) (*models.Booking, error) {
	req.AcademyID = c.cfg.AcademyID
	var booking models.Booking
	if err := c.do(ctx, "create booking", http.MethodPost, "/bookings", req, &booking); err != nil {
		return nil, err
	}
	return &booking, nil
}
