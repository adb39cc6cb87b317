// Package session derives the per-academy session identifier and owns the
// cookie stores it is persisted in.
package session

import (
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/vincentbai/lynk-embed/internal/clock"
)

// Store is a cookie jar scoped to the page the SDK is mounted on.
type Store interface {
	// Get returns the value of a live cookie.
	Get(name string) (string, bool)
	// Set writes a cookie. Expires in the past deletes it.
	Set(c *http.Cookie)
}

// MemoryJar is an in-process Store that honours cookie expiry against a clock.
type MemoryJar struct {
	mu      sync.Mutex
	clock   clock.Clock
	cookies map[string]storedCookie
}

type storedCookie struct {
	Value    string        `json:"value"`
	Path     string        `json:"path,omitempty"`
	Expires  time.Time     `json:"expires"`
	SameSite http.SameSite `json:"sameSite,omitempty"`
}

// NewMemoryJar returns an empty jar. A nil clock means wall time.
func NewMemoryJar(clk clock.Clock) *MemoryJar {
	if clk == nil {
		clk = clock.Real{}
	}
	return &MemoryJar{clock: clk, cookies: make(map[string]storedCookie)}
}

func (j *MemoryJar) Get(name string) (string, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	c, ok := j.cookies[name]
	if !ok {
		return "", false
	}
	if !c.Expires.IsZero() && !j.clock.Now().Before(c.Expires) {
		delete(j.cookies, name)
		return "", false
	}
	return c.Value, true
}

func (j *MemoryJar) Set(c *http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if c.MaxAge < 0 || (!c.Expires.IsZero() && !j.clock.Now().Before(c.Expires)) {
		delete(j.cookies, c.Name)
		return
	}
	j.cookies[c.Name] = storedCookie{Value: c.Value, Path: c.Path, Expires: c.Expires, SameSite: c.SameSite}
}

// Clear removes every cookie, like a user wiping site data.
func (j *MemoryJar) Clear() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cookies = make(map[string]storedCookie)
}

// RequestStore reads cookies from an incoming request and writes them to the
// response, for hosts that render pages server-side.
type RequestStore struct {
	mu      sync.Mutex
	r       *http.Request
	w       http.ResponseWriter
	written map[string]string
}

// NewRequestStore binds a Store to one request/response pair.
func NewRequestStore(w http.ResponseWriter, r *http.Request) *RequestStore {
	return &RequestStore{r: r, w: w, written: make(map[string]string)}
}

func (s *RequestStore) Get(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.written[name]; ok {
		return v, v != ""
	}
	c, err := s.r.Cookie(name)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

func (s *RequestStore) Set(c *http.Cookie) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.MaxAge < 0 {
		s.written[c.Name] = ""
	} else {
		s.written[c.Name] = c.Value
	}
	http.SetCookie(s.w, c)
}

// JarStore adapts an http.CookieJar to the page URL the SDK is mounted on.
type JarStore struct {
	jar http.CookieJar
	u   *url.URL
}

// NewJarStore scopes jar to pageURL.
func NewJarStore(jar http.CookieJar, pageURL *url.URL) *JarStore {
	return &JarStore{jar: jar, u: pageURL}
}

func (s *JarStore) Get(name string) (string, bool) {
	for _, c := range s.jar.Cookies(s.u) {
		if c.Name == name && c.Value != "" {
			return c.Value, true
		}
	}
	return "", false
}

func (s *JarStore) Set(c *http.Cookie) {
	s.jar.SetCookies(s.u, []*http.Cookie{c})
}
