package pixel

import (
	"context"
	"encoding/json"
	"time"

	xlog "github.com/vincentbai/lynk-embed/internal/log"
	"github.com/vincentbai/lynk-embed/internal/models"
	"github.com/vincentbai/lynk-embed/internal/session"
)

// Attribution cookies.
const (
	AttributionCookie = "lynk_attribution"
	GclidCookie       = "lynk_gclid"
	FbclidCookie      = "lynk_fbclid"
	AttributionTTL    = 30 * 24 * time.Hour
)

// Attribution is the campaign that brought the visitor in.
type Attribution struct {
	Source    string `json:"source"`
	Medium    string `json:"medium"`
	Campaign  string `json:"campaign,omitempty"`
	Content   string `json:"content,omitempty"`
	Term      string `json:"term,omitempty"`
	Timestamp string `json:"timestamp"`
}

func (a Attribution) properties() map[string]any {
	props := map[string]any{
		"source":    a.Source,
		"medium":    a.Medium,
		"timestamp": a.Timestamp,
	}
	for k, v := range map[string]string{"campaign": a.Campaign, "content": a.Content, "term": a.Term} {
		if v != "" {
			props[k] = v
		}
	}
	return props
}

// ReadAttribution returns the stored attribution, if any.
func ReadAttribution(store session.Store) (Attribution, bool) {
	raw, ok := session.GetValue(store, AttributionCookie)
	if !ok {
		return Attribution{}, false
	}
	var a Attribution
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return Attribution{}, false
	}
	return a, true
}

// captureAttribution stores UTM parameters and ad click ids from the landing
// URL. Only a visit carrying utm_source, utm_medium or utm_campaign replaces
// the stored attribution.
func (p *Pixel) captureAttribution(ctx context.Context) {
	q := p.page.Current().Query()
	now := p.clock.Now()

	if q.Get("utm_source") != "" || q.Get("utm_medium") != "" || q.Get("utm_campaign") != "" {
		a := Attribution{
			Source:    q.Get("utm_source"),
			Medium:    q.Get("utm_medium"),
			Campaign:  q.Get("utm_campaign"),
			Content:   q.Get("utm_content"),
			Term:      q.Get("utm_term"),
			Timestamp: now.UTC().Format("2006-01-02T15:04:05.000Z"),
		}
		if a.Source == "" {
			a.Source = "direct"
		}
		if a.Medium == "" {
			a.Medium = "none"
		}

		raw, err := json.Marshal(a)
		if err != nil {
			p.logger.Warn().Err(err).Msg("Failed to encode attribution")
		} else {
			session.SetValue(p.store, AttributionCookie, string(raw), AttributionTTL, now)
		}

		if err := p.api.Track(ctx, models.TrackingEvent{
			EventName:  "attribution_captured",
			Properties: a.properties(),
		}); err != nil {
			p.logger.Warn().Err(err).Str(xlog.FieldEventName, "attribution_captured").Msg("Event not queued")
		}
	}

	if gclid := q.Get("gclid"); gclid != "" {
		session.SetValue(p.store, GclidCookie, gclid, AttributionTTL, now)
	}
	if fbclid := q.Get("fbclid"); fbclid != "" {
		session.SetValue(p.store, FbclidCookie, fbclid, AttributionTTL, now)
	}
}
