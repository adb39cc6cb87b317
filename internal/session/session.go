package session

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/vincentbai/lynk-embed/internal/clock"
)

const (
	// CookiePrefix names the session cookie; the academy id is appended.
	CookiePrefix = "lynk_session"
	// Lifetime is fixed from the moment the cookie is first written.
	Lifetime = 30 * time.Minute

	tokenAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	tokenLength   = 9
)

// CookieName returns the session cookie name for an academy.
func CookieName(academyID string) string {
	return CookiePrefix + "_" + academyID
}

// NewID builds "<unix millis>-<9 char base36 token>".
func NewID(now time.Time) string {
	token, err := gonanoid.Generate(tokenAlphabet, tokenLength)
	if err != nil {
		token = strconv.FormatInt(now.UnixNano(), 36)
		if len(token) > tokenLength {
			token = token[len(token)-tokenLength:]
		}
	}
	return strconv.FormatInt(now.UnixMilli(), 10) + "-" + token
}

// Manager derives session ids for one store.
type Manager struct {
	store Store
	clock clock.Clock
}

// NewManager returns a Manager. A nil clock means wall time.
func NewManager(store Store, clk clock.Clock) *Manager {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Manager{store: store, clock: clk}
}

// ID returns the live session id for academyID, creating and persisting a
// new one when none exists. Reads never extend the expiry.
func (m *Manager) ID(academyID string) string {
	name := CookieName(academyID)
	if id, ok := m.store.Get(name); ok {
		return id
	}

	now := m.clock.Now()
	id := NewID(now)
	m.store.Set(&http.Cookie{
		Name:     name,
		Value:    id,
		Path:     "/",
		Expires:  now.Add(Lifetime),
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// SetValue writes a URL-encoded, site-wide cookie with the given lifetime.
func SetValue(store Store, name, value string, ttl time.Duration, now time.Time) {
	store.Set(&http.Cookie{
		Name:     name,
		Value:    url.QueryEscape(value),
		Path:     "/",
		Expires:  now.Add(ttl),
		SameSite: http.SameSiteLaxMode,
	})
}

// GetValue reads a cookie written by SetValue.
func GetValue(store Store, name string) (string, bool) {
	raw, ok := store.Get(name)
	if !ok {
		return "", false
	}
	v, err := url.QueryUnescape(raw)
	if err != nil {
		return raw, true
	}
	return v, true
}
