package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vincentbai/lynk-embed/internal/models"
)

// CatalogBatch is a batch as stored, including embed visibility.
type CatalogBatch struct {
	models.Batch
	Capacity          int
	Enrolled          int
	AllowEmbedBooking bool
}

// SaveAcademy stores or replaces an academy's embed config.
func (d *Database) SaveAcademy(ctx context.Context, cfg models.EmbedConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal embed config: %w", err)
	}
	_, err = d.db.ExecContext(ctx, `INSERT INTO academies(id, config_json) VALUES(?, json(?))
	ON CONFLICT(id) DO UPDATE SET config_json = excluded.config_json`, cfg.Academy.ID, string(data))
	if err != nil {
		return fmt.Errorf("failed to save academy: %w", err)
	}
	return nil
}

// AcademyConfig returns the embed config for an academy.
func (d *Database) AcademyConfig(ctx context.Context, academyID string) (*models.EmbedConfig, error) {
	var data string
	err := d.db.QueryRowContext(ctx, "SELECT config_json FROM academies WHERE id = ?", academyID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("academy %s: %w", academyID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query academy: %w", err)
	}
	var cfg models.EmbedConfig
	if err := json.Unmarshal([]byte(data), &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode embed config: %w", err)
	}
	return &cfg, nil
}

// SaveBatch stores or replaces a batch.
func (d *Database) SaveBatch(ctx context.Context, academyID string, b CatalogBatch) error {
	_, err := d.db.ExecContext(ctx, `
	INSERT INTO batches(academy_id, id, name, description, schedule, price, currency, capacity, enrolled, coach_name, venue_name, allow_embed_booking)
	VALUES(?,?,?,?,?,?,?,?,?,?,?,?)
	ON CONFLICT(academy_id, id) DO UPDATE SET
	  name = excluded.name, description = excluded.description, schedule = excluded.schedule,
	  price = excluded.price, currency = excluded.currency, capacity = excluded.capacity,
	  enrolled = excluded.enrolled, coach_name = excluded.coach_name, venue_name = excluded.venue_name,
	  allow_embed_booking = excluded.allow_embed_booking`,
		academyID, b.ID, b.Name, b.Description, b.Schedule, b.Price, b.Currency, b.Capacity, b.Enrolled,
		b.CoachName, b.VenueName, b.AllowEmbedBooking)
	if err != nil {
		return fmt.Errorf("failed to save batch: %w", err)
	}
	return nil
}

// AvailableBatches lists batches open to embed booking with spots left.
func (d *Database) AvailableBatches(ctx context.Context, academyID string) ([]models.Batch, error) {
	rows, err := d.db.QueryContext(ctx, `
	SELECT id, name, description, schedule, price, currency, capacity - enrolled, coach_name, venue_name
	FROM batches
	WHERE academy_id = ? AND allow_embed_booking = 1 AND enrolled < capacity
	ORDER BY id`, academyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query batches: %w", err)
	}
	defer rows.Close()

	batches := []models.Batch{}
	for rows.Next() {
		var b models.Batch
		if err := rows.Scan(&b.ID, &b.Name, &b.Description, &b.Schedule, &b.Price, &b.Currency,
			&b.AvailableSpots, &b.CoachName, &b.VenueName); err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// SaveSlot stores or replaces an appointment slot.
func (d *Database) SaveSlot(ctx context.Context, academyID string, s models.AppointmentSlot, booked bool) error {
	_, err := d.db.ExecContext(ctx, `
	INSERT INTO appointment_slots(academy_id, id, date, time, duration, coach_id, coach_name, booked)
	VALUES(?,?,?,?,?,?,?,?)
	ON CONFLICT(academy_id, id) DO UPDATE SET
	  date = excluded.date, time = excluded.time, duration = excluded.duration,
	  coach_id = excluded.coach_id, coach_name = excluded.coach_name, booked = excluded.booked`,
		academyID, s.ID, s.Date, s.Time, s.Duration, s.CoachID, s.CoachName, booked)
	if err != nil {
		return fmt.Errorf("failed to save slot: %w", err)
	}
	return nil
}

// OpenSlots lists unbooked slots, on one date when date is not empty.
func (d *Database) OpenSlots(ctx context.Context, academyID, date string) ([]models.AppointmentSlot, error) {
	rows, err := d.db.QueryContext(ctx, `
	SELECT id, date, time, duration, coach_id, coach_name
	FROM appointment_slots
	WHERE academy_id = ? AND booked = 0 AND (? = '' OR date = ?)
	ORDER BY date, time, id`, academyID, date, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query slots: %w", err)
	}
	defer rows.Close()

	slots := []models.AppointmentSlot{}
	for rows.Next() {
		var s models.AppointmentSlot
		if err := rows.Scan(&s.ID, &s.Date, &s.Time, &s.Duration, &s.CoachID, &s.CoachName); err != nil {
			return nil, fmt.Errorf("failed to scan slot: %w", err)
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

func validateBooking(req models.BookingRequest) error {
	if req.AcademyID == "" {
		return fmt.Errorf("%w: academyId cannot be empty", ErrInvalidBooking)
	}
	if req.ItemID == "" {
		return fmt.Errorf("%w: itemId cannot be empty", ErrInvalidBooking)
	}
	if req.Type != models.BookingTypeBatch && req.Type != models.BookingTypeAppointment {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidBooking, req.Type)
	}
	if req.Customer.Name == "" {
		return fmt.Errorf("%w: customer name cannot be empty", ErrInvalidBooking)
	}
	return nil
}

// CreateBooking reserves the requested item and records the booking in one
// transaction. A batch gains one enrolment; a slot is marked booked.
func (d *Database) CreateBooking(ctx context.Context, id string, req models.BookingRequest, now time.Time) (*models.Booking, error) {
	if err := validateBooking(req); err != nil {
		return nil, err
	}
	customer, err := json.Marshal(req.Customer)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal customer: %w", err)
	}
	details := req.Details
	if details == nil {
		details = map[string]string{}
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal details: %w", err)
	}

	transaction, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = transaction.Rollback() }()

	var reserve string
	switch req.Type {
	case models.BookingTypeBatch:
		reserve = `UPDATE batches SET enrolled = enrolled + 1
		WHERE academy_id = ? AND id = ? AND allow_embed_booking = 1 AND enrolled < capacity`
	default:
		reserve = `UPDATE appointment_slots SET booked = 1
		WHERE academy_id = ? AND id = ? AND booked = 0`
	}
	res, err := transaction.ExecContext(ctx, reserve, req.AcademyID, req.ItemID)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve %s: %w", req.Type, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("failed to reserve %s: %w", req.Type, err)
	} else if n == 0 {
		return nil, d.unavailable(ctx, transaction, req)
	}

	booking := &models.Booking{
		ID:        id,
		AcademyID: req.AcademyID,
		Type:      req.Type,
		ItemID:    req.ItemID,
		Customer:  req.Customer,
		Status:    "pending",
		CreatedAt: nowISO(now),
	}
	if _, err := transaction.ExecContext(ctx, `
	INSERT INTO bookings(id, academy_id, type, item_id, customer_json, details_json, status, created_at)
	VALUES(?,?,?,?,json(?),json(?),?,?)`,
		booking.ID, booking.AcademyID, booking.Type, booking.ItemID, string(customer), string(detailsJSON),
		booking.Status, booking.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to insert booking: %w", err)
	}
	if err := transaction.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return booking, nil
}

// unavailable distinguishes an unknown item from one that is taken.
func (d *Database) unavailable(ctx context.Context, tx *sql.Tx, req models.BookingRequest) error {
	table := "batches"
	if req.Type == models.BookingTypeAppointment {
		table = "appointment_slots"
	}
	var exists int
	err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table+" WHERE academy_id = ? AND id = ?",
		req.AcademyID, req.ItemID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to look up %s: %w", req.Type, err)
	}
	if exists == 0 {
		return fmt.Errorf("%s %s: %w", req.Type, req.ItemID, ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w", req.Type, req.ItemID, ErrUnavailable)
}

// Bookings lists an academy's bookings, oldest first.
func (d *Database) Bookings(ctx context.Context, academyID string) ([]models.Booking, error) {
	rows, err := d.db.QueryContext(ctx, `
	SELECT id, type, item_id, customer_json, status, created_at
	FROM bookings WHERE academy_id = ? ORDER BY created_at, id`, academyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []models.Booking
	for rows.Next() {
		b := models.Booking{AcademyID: academyID}
		var customer string
		if err := rows.Scan(&b.ID, &b.Type, &b.ItemID, &customer, &b.Status, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		if err := json.Unmarshal([]byte(customer), &b.Customer); err != nil {
			return nil, fmt.Errorf("failed to decode customer: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}
