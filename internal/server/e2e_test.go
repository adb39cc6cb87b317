package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vincentbai/lynk-embed/internal/booking"
	"github.com/vincentbai/lynk-embed/internal/clock"
	"github.com/vincentbai/lynk-embed/internal/database"
	"github.com/vincentbai/lynk-embed/internal/lynkapi"
	"github.com/vincentbai/lynk-embed/internal/models"
	"github.com/vincentbai/lynk-embed/internal/page"
	"github.com/vincentbai/lynk-embed/internal/pixel"
	"github.com/vincentbai/lynk-embed/internal/session"
)

// TestEmbedFlow drives a pixel and a booking widget against the collector,
// sharing one browser cookie jar.
func TestEmbedFlow(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()
	srv := httptest.NewServer(server.Handler())
	defer srv.Close()

	ctx := context.Background()
	clk := clock.NewMock(testNow)
	jar := session.NewMemoryJar(clk)
	nav := page.NewTracker(page.Context{
		URL:       "https://elitetennis.com/?utm_source=google&utm_medium=cpc",
		Title:     "Elite Tennis",
		UserAgent: "Mozilla/5.0",
	})

	api, err := lynkapi.New(lynkapi.Config{
		AcademyID:  database.DemoAcademyID,
		APIKey:     testKey,
		APIBaseURL: srv.URL + "/v1",
	}, lynkapi.WithHTTPClient(srv.Client()), lynkapi.WithClock(clk), lynkapi.WithSessionStore(jar), lynkapi.WithPage(nav))
	require.NoError(t, err)

	px, err := pixel.New(pixel.Config{
		AcademyID: database.DemoAcademyID,
		Pixels:    pixel.Pixels{Google: "AW-123456789"},
	}, pixel.WithTracker(api), pixel.WithPage(nav), pixel.WithSessionStore(jar), pixel.WithClock(clk))
	require.NoError(t, err)
	px.Init(ctx)
	nav.Navigate("https://elitetennis.com/book", "Book")

	widget, err := booking.New(booking.Config{
		AcademyID:  database.DemoAcademyID,
		APIKey:     testKey,
		APIBaseURL: srv.URL + "/v1",
	}, booking.WithConversionTracker(px), booking.WithClock(clk),
		booking.WithClientOptions(lynkapi.WithHTTPClient(srv.Client()), lynkapi.WithSessionStore(jar)))
	require.NoError(t, err)
	defer widget.Destroy()

	widget.Init(ctx)
	require.NotNil(t, widget.AcademyConfig())

	opts, err := widget.LoadOptions(ctx)
	require.NoError(t, err)
	require.Len(t, opts.Batches, 2)
	require.Len(t, opts.Slots, 2)

	bk, err := widget.Submit(ctx, booking.Selection{Batch: &opts.Batches[0]}, booking.Form{Name: "Ada", Email: "ada@example.com"})
	require.NoError(t, err)

	require.NoError(t, api.Close(ctx))

	events, err := server.db.RecentEvents(ctx, database.DemoAcademyID, 10)
	require.NoError(t, err)
	var names []string
	for i := len(events) - 1; i >= 0; i-- {
		names = append(names, events[i].EventName)
	}
	assert.ElementsMatch(t, []string{"attribution_captured", "pixel_page_view", "pixel_page_view", "pixel_purchase"}, names)

	sessionID := events[0].SessionID
	for _, ev := range events {
		assert.Equal(t, sessionID, ev.SessionID, "one session across the page")
	}
	for _, ev := range events {
		if ev.EventName == "pixel_purchase" {
			assert.Equal(t, bk.ID, ev.Properties["transactionId"])
			assert.Equal(t, "INR", ev.Properties["currency"])
			assert.Equal(t, "https://elitetennis.com/book", ev.URL)
		}
	}

	bookings, err := server.db.Bookings(ctx, database.DemoAcademyID)
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	assert.Equal(t, bk.ID, bookings[0].ID)
}

// TestNegativeTimestampDoesNotPoisonQueue checks that an event the collector
// would reject never reaches it, so the rest of the queue still lands.
func TestNegativeTimestampDoesNotPoisonQueue(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()
	srv := httptest.NewServer(server.Handler())
	defer srv.Close()

	ctx := context.Background()
	clk := clock.NewMock(testNow)
	api, err := lynkapi.New(lynkapi.Config{
		AcademyID:  database.DemoAcademyID,
		APIKey:     testKey,
		APIBaseURL: srv.URL + "/v1",
	}, lynkapi.WithHTTPClient(srv.Client()), lynkapi.WithClock(clk), lynkapi.WithSessionStore(session.NewMemoryJar(clk)))
	require.NoError(t, err)

	err = api.Track(ctx, models.TrackingEvent{EventName: "bad", Timestamp: -1})
	require.ErrorIs(t, err, lynkapi.ErrInvalidEvent)
	for i := 0; i < 60; i++ {
		require.NoError(t, api.Track(ctx, models.TrackingEvent{EventName: "good"}))
	}
	require.NoError(t, api.Close(ctx))

	assert.Equal(t, 0, api.Len())
	n, err := server.db.CountEvents(ctx, database.DemoAcademyID)
	require.NoError(t, err)
	assert.Equal(t, 60, n)
}

func TestDemoPageRunsPixelServerSide(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()
	srv := httptest.NewServer(server.Handler())
	defer srv.Close()
	server.publicURL = srv.URL
	server.selfClient = srv.Client()

	ctx := context.Background()
	resp, err := srv.Client().Get(srv.URL + "/demo/" + database.DemoAcademyID + "?utm_source=google&utm_medium=cpc")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	doc := string(body)
	assert.Contains(t, doc, "<title>Elite Tennis Academy</title>")
	assert.Contains(t, doc, `gtag("config","AW-123456789");`)
	assert.Contains(t, doc, `data-academy-id="`+database.DemoAcademyID+`"`)

	var sessionCookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "lynk_session_"+database.DemoAcademyID {
			sessionCookie = c
		}
	}
	require.NotNil(t, sessionCookie, "session cookie is set on the response")

	events, err := server.db.RecentEvents(ctx, database.DemoAcademyID, 10)
	require.NoError(t, err)
	var names []string
	for _, ev := range events {
		names = append(names, ev.EventName)
		assert.Equal(t, sessionCookie.Value, ev.SessionID)
	}
	assert.ElementsMatch(t, []string{"attribution_captured", "pixel_page_view"}, names)

	// A returning visitor keeps the session from the request cookie.
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/demo/"+database.DemoAcademyID, nil)
	require.NoError(t, err)
	req.AddCookie(sessionCookie)
	resp, err = srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	for _, c := range resp.Cookies() {
		assert.NotEqual(t, sessionCookie.Name, c.Name, "existing session is reused")
	}
	events, err = server.db.RecentEvents(ctx, database.DemoAcademyID, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, sessionCookie.Value, events[0].SessionID)
	assert.Equal(t, srv.URL+"/demo/"+database.DemoAcademyID, events[0].URL)
}

func TestDemoPageUnknownAcademy(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/demo/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
