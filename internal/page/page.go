// Package page describes the host page an SDK instance is mounted on and lets
// the host announce client-side navigations explicitly.
package page

import (
	"net/http"
	"net/url"
	"regexp"
	"sync"
)

// Context is the page state captured when an event is enqueued.
type Context struct {
	URL       string
	Referrer  string
	UserAgent string
	Title     string
}

// Path returns the path component of the page URL.
func (c Context) Path() string {
	u, err := url.Parse(c.URL)
	if err != nil {
		return ""
	}
	return u.Path
}

// Query returns the query parameters of the page URL.
func (c Context) Query() url.Values {
	u, err := url.Parse(c.URL)
	if err != nil {
		return url.Values{}
	}
	return u.Query()
}

// Provider yields the current page context.
type Provider interface {
	Current() Context
}

// Static is a Provider for pages that never navigate.
type Static Context

func (s Static) Current() Context { return Context(s) }

// FromRequest builds a Context from an incoming page request.
func FromRequest(r *http.Request) Context {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	u := url.URL{Scheme: scheme, Host: r.Host, Path: r.URL.Path, RawQuery: r.URL.RawQuery}
	return Context{
		URL:       u.String(),
		Referrer:  r.Referer(),
		UserAgent: r.UserAgent(),
	}
}

var botPattern = regexp.MustCompile(`(?i)bot|crawler|spider|crawling`)

// IsBot reports whether the user agent looks like an automated client.
func IsBot(userAgent string) bool {
	return botPattern.MatchString(userAgent)
}

// Navigation is announced when the host changes route without a page load.
type Navigation struct {
	URL   string
	Path  string
	Title string
}

// Tracker is a Provider whose URL follows host-announced navigations.
// Subscribers are called synchronously from Navigate.
type Tracker struct {
	mu     sync.Mutex
	ctx    Context
	nextID int
	subs   map[int]func(Navigation)
}

// NewTracker starts tracking from the initial page load.
func NewTracker(initial Context) *Tracker {
	return &Tracker{ctx: initial, subs: make(map[int]func(Navigation))}
}

func (t *Tracker) Current() Context {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ctx
}

// Navigate records a route change. The document referrer is unchanged, as
// in a browser history push.
func (t *Tracker) Navigate(rawURL, title string) {
	t.mu.Lock()
	t.ctx.URL = rawURL
	t.ctx.Title = title
	nav := Navigation{URL: rawURL, Path: t.ctx.Path(), Title: title}
	subs := make([]func(Navigation), 0, len(t.subs))
	for _, fn := range t.subs {
		subs = append(subs, fn)
	}
	t.mu.Unlock()

	for _, fn := range subs {
		fn(nav)
	}
}

// Subscribe registers fn for future navigations.
func (t *Tracker) Subscribe(fn func(Navigation)) (unsubscribe func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++
	t.subs[id] = fn
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.subs, id)
	}
}
