package pixel

import "context"

// PageView overrides parts of a page view. Empty fields fall back to the
// current page.
type PageView struct {
	Path  string
	Title string
}

// TrackPageView records a page_view for the current page.
func (p *Pixel) TrackPageView(ctx context.Context, pv PageView) {
	cur := p.page.Current()
	path := pv.Path
	if path == "" {
		path = cur.Path()
	}
	title := pv.Title
	if title == "" {
		title = cur.Title
	}
	p.Track(ctx, "page_view", map[string]any{
		"path":     path,
		"title":    title,
		"url":      cur.URL,
		"referrer": cur.Referrer,
	})
}

// Item is one line of a purchase.
type Item struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// Purchase is a completed registration or payment.
type Purchase struct {
	Value         float64
	Currency      string
	TransactionID string
	Items         []Item
}

// TrackPurchase records a purchase conversion.
func (p *Pixel) TrackPurchase(ctx context.Context, pu Purchase) {
	data := map[string]any{
		"value":         pu.Value,
		"currency":      pu.Currency,
		"transactionId": pu.TransactionID,
	}
	if pu.Items != nil {
		data["items"] = pu.Items
	}
	p.Track(ctx, "purchase", data)
}

// Checkout is a booking that has been started.
type Checkout struct {
	Value     float64
	Currency  string
	BatchID   string
	BatchName string
}

// TrackBeginCheckout records the start of a booking.
func (p *Pixel) TrackBeginCheckout(ctx context.Context, c Checkout) {
	p.Track(ctx, "begin_checkout", compact(map[string]any{
		"value":     c.Value,
		"currency":  c.Currency,
		"batchId":   c.BatchID,
		"batchName": c.BatchName,
	}))
}

// Lead is a captured enquiry form.
type Lead struct {
	Value    float64
	Currency string
	FormName string
}

// TrackLead records a lead.
func (p *Pixel) TrackLead(ctx context.Context, l Lead) {
	p.Track(ctx, "generate_lead", compact(map[string]any{
		"value":    l.Value,
		"currency": l.Currency,
		"formName": l.FormName,
	}))
}

// Contact methods.
const (
	ContactPhone    = "phone"
	ContactEmail    = "email"
	ContactWhatsApp = "whatsapp"
	ContactForm     = "form"
)

// Contact is a visitor reaching out.
type Contact struct {
	Method string
	Value  float64
}

// TrackContact records a contact.
func (p *Pixel) TrackContact(ctx context.Context, c Contact) {
	p.Track(ctx, "contact", compact(map[string]any{
		"method": c.Method,
		"value":  c.Value,
	}))
}

// compact drops zero values so optional fields stay absent.
func compact(m map[string]any) map[string]any {
	for k, v := range m {
		if !truthy(v) {
			delete(m, k)
		}
	}
	return m
}
