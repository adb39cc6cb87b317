package lynkapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/vincentbai/lynk-embed/internal/clock"
	"github.com/vincentbai/lynk-embed/internal/models"
	"github.com/vincentbai/lynk-embed/internal/page"
	"github.com/vincentbai/lynk-embed/internal/session"
)

const (
	testAcademy = "demo-academy-123"
	testKey     = "lk_test_key"
)

var testStart = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

// fakeCollector records every POST /events batch and can be told to fail.
type fakeCollector struct {
	mu        sync.Mutex
	batches   []models.EventBatch
	headers   []http.Header
	failNext  int
	onRequest func(n int)
}

func (f *fakeCollector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Path != "/events" {
		http.NotFound(w, r)
		return
	}
	var batch models.EventBatch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.batches = append(f.batches, batch)
	f.headers = append(f.headers, r.Header.Clone())
	n := len(f.batches)
	fail := f.failNext > 0
	if fail {
		f.failNext--
	}
	hook := f.onRequest
	f.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	if fail {
		http.Error(w, "collector unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeCollector) requests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func (f *fakeCollector) batch(i int) models.EventBatch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batches[i]
}

func (f *fakeCollector) header(i int) http.Header {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.headers[i]
}

func (f *fakeCollector) setHook(fn func(n int)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onRequest = fn
}

func (f *fakeCollector) setFail(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = n
}

func names(events []models.EnrichedEvent) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.EventName)
	}
	return out
}

type testEnv struct {
	client    *Client
	collector *fakeCollector
	server    *httptest.Server
	clock     *clock.Mock
	jar       *session.MemoryJar
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	collector := &fakeCollector{}
	srv := httptest.NewServer(collector)
	clk := clock.NewMock(testStart)
	jar := session.NewMemoryJar(clk)

	base := []Option{
		WithHTTPClient(srv.Client()),
		WithClock(clk),
		WithSessionStore(jar),
		WithPage(page.Static{URL: "https://academy.example/", Referrer: "https://google.com/", UserAgent: "Mozilla/5.0 test"}),
	}
	c, err := New(Config{AcademyID: testAcademy, APIKey: testKey, APIBaseURL: srv.URL}, append(base, opts...)...)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	t.Cleanup(func() {
		c.Destroy()
		c.Wait()
		srv.Close()
	})
	return &testEnv{client: c, collector: collector, server: srv, clock: clk, jar: jar}
}
