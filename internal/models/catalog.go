package models

// Academy identifies the business an SDK instance is mounted for.
type Academy struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Slug         string `json:"slug,omitempty"`
	Logo         string `json:"logo,omitempty"`
	PrimaryColor string `json:"primaryColor,omitempty"`
	ContactEmail string `json:"contactEmail,omitempty"`
	ContactPhone string `json:"contactPhone,omitempty"`
	Website      string `json:"website,omitempty"`
	Timezone     string `json:"timezone,omitempty"`
	Currency     string `json:"currency,omitempty"`
}

// CustomField is an extra form input configured for the booking widget.
type CustomField struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Label       string   `json:"label"`
	Type        string   `json:"type"` // text|email|tel|number|select|textarea
	Required    bool     `json:"required"`
	Options     []string `json:"options,omitempty"`
	Placeholder string   `json:"placeholder,omitempty"`
}

// ButtonSettings is the widget part of the embed config.
type ButtonSettings struct {
	Type             string        `json:"type"` // booking|appointment|both
	ButtonText       string        `json:"buttonText,omitempty"`
	ModalTitle       string        `json:"modalTitle,omitempty"`
	SuccessMessage   string        `json:"successMessage,omitempty"`
	DefaultTab       string        `json:"defaultTab,omitempty"`
	ShowPrices       bool          `json:"showPrices"`
	ShowAvailability bool          `json:"showAvailability"`
	RequirePhone     bool          `json:"requirePhone"`
	RequireEmail     bool          `json:"requireEmail"`
	CustomFields     []CustomField `json:"customFields,omitempty"`
}

// PixelSettings is the pixel part of the embed config.
type PixelSettings struct {
	GoogleAdsID       string `json:"googleAdsId,omitempty"`
	GoogleAnalyticsID string `json:"googleAnalyticsId,omitempty"`
	FacebookPixelID   string `json:"facebookPixelId,omitempty"`
	ConsentRequired   bool   `json:"consentRequired"`
	ConsentMessage    string `json:"consentMessage,omitempty"`
}

// EmbedConfig is returned by GET /academies/{id}/embed-config.
type EmbedConfig struct {
	Academy Academy         `json:"academy"`
	Button  *ButtonSettings `json:"button,omitempty"`
	Pixel   *PixelSettings  `json:"pixel,omitempty"`
}

// Batch is a bookable group class.
type Batch struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Description    string  `json:"description,omitempty"`
	Schedule       string  `json:"schedule"`
	Price          float64 `json:"price"`
	Currency       string  `json:"currency"`
	AvailableSpots int     `json:"availableSpots"`
	CoachName      string  `json:"coachName,omitempty"`
	VenueName      string  `json:"venueName,omitempty"`
}

// AppointmentSlot is a bookable one-off time slot.
type AppointmentSlot struct {
	ID        string `json:"id"`
	Date      string `json:"date"` // YYYY-MM-DD
	Time      string `json:"time"` // HH:MM
	Duration  int    `json:"duration"`
	CoachID   string `json:"coachId,omitempty"`
	CoachName string `json:"coachName,omitempty"`
}

// Customer is the person making a booking.
type Customer struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

// Booking types.
const (
	BookingTypeBatch       = "batch"
	BookingTypeAppointment = "appointment"
)

// BookingRequest is the body of POST /bookings.
type BookingRequest struct {
	AcademyID string            `json:"academyId"`
	Type      string            `json:"type"`
	ItemID    string            `json:"itemId"`
	Customer  Customer          `json:"customer"`
	Details   map[string]string `json:"details,omitempty"`
}

// Booking is the confirmation returned by POST /bookings.
type Booking struct {
	ID        string   `json:"id"`
	AcademyID string   `json:"academyId"`
	Type      string   `json:"type"`
	ItemID    string   `json:"itemId"`
	Customer  Customer `json:"customer"`
	Status    string   `json:"status"`
	CreatedAt string   `json:"createdAt"`
}
