package config

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vincentbai/lynk-embed/internal/lynkapi"
	"github.com/vincentbai/lynk-embed/internal/models"
	"github.com/vincentbai/lynk-embed/internal/page"
	"github.com/vincentbai/lynk-embed/internal/pixel"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(strings.TrimSpace(body)), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, "lynk.yaml", `
academyId: demo-academy-123
apiKey: lk_test
apiBaseUrl: http://localhost:8080/v1
flushInterval: 2s
pixels:
  google: AW-1
  googleAnalytics: G-2
  facebook: "3"
consent:
  marketing: false
widget:
  type: booking
  preselectedBatchId: batch-1
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "demo-academy-123", cfg.AcademyID)
	assert.Equal(t, 2*time.Second, cfg.FlushInterval)
	assert.Equal(t, lynkapi.DefaultMaxQueueSize, cfg.MaxQueueSize)
	assert.Equal(t, "G-2", cfg.Pixels.GoogleAnalytics)
	require.NotNil(t, cfg.Consent.Marketing)
	assert.False(t, *cfg.Consent.Marketing)
	assert.Nil(t, cfg.Consent.Analytics)

	pc := cfg.Pixel()
	assert.Equal(t, "AW-1", pc.Pixels.Google)
	bc := cfg.Booking()
	assert.Equal(t, "booking", bc.Type)
	assert.Equal(t, "batch-1", bc.PreselectedBatchID)
	cc := cfg.Client()
	assert.Equal(t, 2*time.Second, cc.FlushInterval)
	assert.Equal(t, 10*time.Second, cc.Timeout)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "lynk.yaml", `
academyId: a
apiKey: k
apiKeys: typo
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strict config parse error")
}

func TestLoadRejectsOtherFormats(t *testing.T) {
	path := writeConfig(t, "lynk.json", `{}`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "only YAML supported")
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "lynk.yml", `
academyId: from-file
apiKey: k
maxQueueSize: 20
requeueLimit: 10
`)
	t.Setenv("LYNK_ACADEMY_ID", "from-env")
	t.Setenv("LYNK_FLUSH_INTERVAL", "250ms")
	t.Setenv("LYNK_DEBUG", "yes")
	t.Setenv("LYNK_CONSENT_ANALYTICS", "false")
	t.Setenv("LYNK_MAX_QUEUE_SIZE", "not-a-number")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.AcademyID)
	assert.Equal(t, 250*time.Millisecond, cfg.FlushInterval)
	assert.True(t, cfg.Debug)
	require.NotNil(t, cfg.Consent.Analytics)
	assert.False(t, *cfg.Consent.Analytics)
	assert.Equal(t, 20, cfg.MaxQueueSize, "invalid env value keeps the file value")
}

func TestLoadFromEnvOnly(t *testing.T) {
	t.Setenv("LYNK_ACADEMY_ID", "a")
	t.Setenv("LYNK_API_KEY", "k")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, lynkapi.DefaultBaseURL, cfg.APIBaseURL)
	assert.Equal(t, "both", cfg.Widget.Type)
	assert.Nil(t, cfg.AutoPageView)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "academyId is required")
	assert.Contains(t, err.Error(), "apiKey is required")

	cfg.AcademyID, cfg.APIKey = "a", "k"
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.APIBaseURL = "/relative"
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.RequeueLimit = cfg.MaxQueueSize + 1
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Widget.Type = "course"
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.ServerTags.MetaAccessToken = "tok"
	assert.ErrorContains(t, bad.Validate(), "needs pixels.facebook")
}

type nopTracker struct{}

func (nopTracker) Track(context.Context, models.TrackingEvent) error { return nil }
func (nopTracker) Destroy() {}

func TestPixelTagsDeliverServerSide(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	t.Setenv("LYNK_ACADEMY_ID", "demo-academy-123")
	t.Setenv("LYNK_API_KEY", "k")
	t.Setenv("LYNK_GA4_ID", "G-2")
	t.Setenv("LYNK_FACEBOOK_PIXEL", "3")
	t.Setenv("LYNK_GA4_API_SECRET", "secret")
	t.Setenv("LYNK_GA4_ENDPOINT", srv.URL+"/mp/collect")
	t.Setenv("LYNK_META_ACCESS_TOKEN", "tok")
	t.Setenv("LYNK_META_ENDPOINT", srv.URL+"/meta")
	cfg, err := Load("")
	require.NoError(t, err)

	pg := page.Static{URL: "https://academy.example/", UserAgent: "Mozilla/5.0"}
	opts := cfg.PixelTags(pg, func() string { return "sess-1" })
	require.Len(t, opts, 2)

	px, err := pixel.New(cfg.Pixel(), append([]pixel.Option{pixel.WithTracker(nopTracker{}), pixel.WithPage(pg)}, opts...)...)
	require.NoError(t, err)
	ctx := context.Background()
	px.Init(ctx)
	px.TrackPurchase(ctx, pixel.Purchase{Value: 10, Currency: "EUR", TransactionID: "bk_1"})

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, paths, "/mp/collect")
	assert.Contains(t, paths, "/meta/3/events")
}

func TestPixelTagsNeedCredentials(t *testing.T) {
	cfg := Default()
	cfg.Pixels = pixel.Pixels{GoogleAnalytics: "G-2", Facebook: "3"}
	assert.Empty(t, cfg.PixelTags(page.Static{}, nil))
}
