package lynkapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/vincentbai/lynk-embed/internal/clock"
	"github.com/vincentbai/lynk-embed/internal/models"
	"github.com/vincentbai/lynk-embed/internal/page"
	"github.com/vincentbai/lynk-embed/internal/session"
)

func track(t *testing.T, c *Client, name string) {
	t.Helper()
	require.NoError(t, c.Track(context.Background(), models.TrackingEvent{EventName: name}))
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(Config{APIKey: "k"})
	assert.Error(t, err)
	_, err = New(Config{AcademyID: "a"})
	assert.Error(t, err)
}

func TestFlushDeliversInOrder(t *testing.T) {
	env := newTestEnv(t)
	for _, name := range []string{"a", "b", "c"} {
		track(t, env.client, name)
	}

	env.client.Flush(context.Background())

	require.Equal(t, 1, env.collector.requests())
	assert.Equal(t, []string{"a", "b", "c"}, names(env.collector.batch(0).Events))
	assert.Equal(t, 0, env.client.Len())

	h := env.collector.header(0)
	assert.Equal(t, testKey, h.Get(APIKeyHeader))
	assert.Equal(t, "application/json", h.Get("Content-Type"))
	assert.NotEmpty(t, h.Get("X-Request-ID"))
}

func TestFlushEmptyQueueIsNoop(t *testing.T) {
	env := newTestEnv(t)
	env.client.Flush(context.Background())
	assert.Equal(t, 0, env.collector.requests())
}

func TestTrackForcesFlushWhenFull(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < DefaultMaxQueueSize; i++ {
		track(t, env.client, fmt.Sprintf("e%d", i))
	}
	require.Equal(t, 0, env.collector.requests())
	require.Equal(t, DefaultMaxQueueSize, env.client.Len())

	track(t, env.client, "overflow")

	require.Equal(t, 1, env.collector.requests(), "exactly one forced flush")
	assert.Len(t, env.collector.batch(0).Events, DefaultMaxQueueSize)
	assert.Equal(t, 1, env.client.Len())
}

func TestFailedFlushRequeuesBoundedPrefix(t *testing.T) {
	tests := []struct {
		queued int
		want   int
	}{
		{queued: 80, want: 50},
		{queued: 50, want: 50},
		{queued: 30, want: 30},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d events", tt.queued), func(t *testing.T) {
			env := newTestEnv(t)
			for i := 0; i < tt.queued; i++ {
				track(t, env.client, fmt.Sprintf("e%d", i))
			}
			env.collector.setFail(1)

			env.client.Flush(context.Background())
			require.Equal(t, tt.want, env.client.Len())

			env.client.Flush(context.Background())
			retried := names(env.collector.batch(1).Events)
			want := names(env.collector.batch(0).Events)[:tt.want]
			assert.Equal(t, want, retried, "oldest failed events are kept")
		})
	}
}

func TestFailOnceThenSucceed(t *testing.T) {
	env := newTestEnv(t)
	track(t, env.client, "a")
	track(t, env.client, "b")
	env.collector.setFail(1)

	env.client.Flush(context.Background())
	assert.Equal(t, 2, env.client.Len())

	env.client.Flush(context.Background())
	assert.Equal(t, 0, env.client.Len())

	require.Equal(t, 2, env.collector.requests())
	if diff := cmp.Diff(env.collector.batch(0), env.collector.batch(1)); diff != "" {
		t.Errorf("retried batch differs (-first +second):\n%s", diff)
	}
}

func TestRequeuedEventsPrecedeEventsTrackedDuringFlush(t *testing.T) {
	env := newTestEnv(t)
	env.collector.setHook(func(n int) {
		if n == 1 {
			// Producers keep going while the request is in flight.
			_ = env.client.Track(context.Background(), models.TrackingEvent{EventName: "late"})
		}
	})
	track(t, env.client, "a")
	track(t, env.client, "b")
	env.collector.setFail(1)

	env.client.Flush(context.Background())
	require.Equal(t, []string{"a", "b"}, names(env.collector.batch(0).Events))

	env.client.Flush(context.Background())
	assert.Equal(t, []string{"a", "b", "late"}, names(env.collector.batch(1).Events))
}

func TestRequeueTruncatesToCapacity(t *testing.T) {
	env := newTestEnv(t)
	env.collector.setHook(func(n int) {
		if n == 1 {
			for i := 0; i < 70; i++ {
				_ = env.client.Track(context.Background(), models.TrackingEvent{EventName: fmt.Sprintf("late%d", i)})
			}
		}
	})
	for i := 0; i < 80; i++ {
		track(t, env.client, fmt.Sprintf("e%d", i))
	}
	env.collector.setFail(1)

	env.client.Flush(context.Background())

	assert.Equal(t, DefaultMaxQueueSize, env.client.Len())
	env.client.Flush(context.Background())
	got := names(env.collector.batch(1).Events)
	assert.Equal(t, "e0", got[0])
	assert.Equal(t, "e49", got[49])
	assert.Equal(t, "late0", got[50])
	assert.Equal(t, "late49", got[99])
}

func TestTransportFailureRequeues(t *testing.T) {
	env := newTestEnv(t)
	track(t, env.client, "a")
	env.server.Close()

	env.client.Flush(context.Background())
	assert.Equal(t, 1, env.client.Len())
}

func TestFlushSurvivesCallerCancellation(t *testing.T) {
	env := newTestEnv(t)
	track(t, env.client, "a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	env.client.Flush(ctx)

	assert.Equal(t, 1, env.collector.requests())
	assert.Equal(t, 0, env.client.Len())
}

func TestPeriodicFlush(t *testing.T) {
	env := newTestEnv(t)
	track(t, env.client, "tick")

	env.clock.Advance(DefaultFlushInterval - time.Millisecond)
	assert.Never(t, func() bool { return env.collector.requests() > 0 }, 50*time.Millisecond, 5*time.Millisecond)

	env.clock.Advance(time.Millisecond)
	require.Eventually(t, func() bool { return env.collector.requests() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"tick"}, names(env.collector.batch(0).Events))
}

func TestDestroyStopsTimerAndFlushesOnce(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent(),
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)

	env := newTestEnv(t)
	track(t, env.client, "last")

	env.client.Destroy()
	env.client.Wait()

	assert.Equal(t, 0, env.clock.ActiveTickers())
	require.Equal(t, 1, env.collector.requests(), "destroy performs one final flush")

	env.clock.Advance(10 * DefaultFlushInterval)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, env.collector.requests(), "no periodic flush after destroy")

	err := env.client.Track(context.Background(), models.TrackingEvent{EventName: "after"})
	assert.ErrorIs(t, err, ErrClosed)

	env.server.Close()
}

func TestCloseDeliversSynchronously(t *testing.T) {
	env := newTestEnv(t)
	track(t, env.client, "a")

	require.NoError(t, env.client.Close(context.Background()))
	assert.Equal(t, 1, env.collector.requests())
	assert.Equal(t, 0, env.clock.ActiveTickers())
}

func TestTrackRejectsEmptyEventName(t *testing.T) {
	env := newTestEnv(t)
	err := env.client.Track(context.Background(), models.TrackingEvent{Properties: map[string]any{"x": 1}})
	assert.ErrorIs(t, err, ErrInvalidEvent)
	assert.ErrorIs(t, err, models.ErrEmptyEventName)
	assert.Equal(t, 0, env.client.Len())
}

func TestTrackRejectsNegativeTimestamp(t *testing.T) {
	env := newTestEnv(t)
	err := env.client.Track(context.Background(), models.TrackingEvent{EventName: "bad", Timestamp: -1})
	assert.ErrorIs(t, err, ErrInvalidEvent)
	assert.ErrorIs(t, err, models.ErrNegativeTimestamp)
	assert.Equal(t, 0, env.client.Len())

	track(t, env.client, "good")
	env.client.Flush(context.Background())
	require.Equal(t, 1, env.collector.requests())
	assert.Equal(t, []string{"good"}, names(env.collector.batch(0).Events))
}

func TestTrackRacingCloseNeverStrandsEvents(t *testing.T) {
	env := newTestEnv(t)

	var (
		wg       sync.WaitGroup
		accepted atomic.Int64
	)
	start := make(chan struct{})
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for i := 0; i < 10; i++ {
				err := env.client.Track(context.Background(), models.TrackingEvent{EventName: "e"})
				if err == nil {
					accepted.Add(1)
				} else if !errors.Is(err, ErrClosed) {
					t.Errorf("unexpected Track error: %v", err)
				}
			}
		}()
	}
	close(start)
	require.NoError(t, env.client.Close(context.Background()))
	wg.Wait()

	assert.Equal(t, 0, env.client.Len(), "nothing may be queued after close")
	delivered := 0
	for i := 0; i < env.collector.requests(); i++ {
		delivered += len(env.collector.batch(i).Events)
	}
	assert.Equal(t, int(accepted.Load()), delivered)
}

func TestEnrichment(t *testing.T) {
	tr := page.NewTracker(page.Context{URL: "https://academy.example/", Referrer: "https://google.com/", UserAgent: "UA/1.0"})
	env := newTestEnv(t, WithPage(tr))

	require.NoError(t, env.client.Track(context.Background(), models.TrackingEvent{
		EventName:  "explicit",
		Timestamp:  1234,
		Properties: map[string]any{"value": 10.0},
	}))
	tr.Navigate("https://academy.example/batches", "Batches")
	env.clock.Advance(time.Second)
	track(t, env.client, "defaulted")

	env.client.Flush(context.Background())
	events := env.collector.batch(0).Events
	require.Len(t, events, 2)

	assert.Equal(t, int64(1234), events[0].Timestamp)
	assert.Equal(t, testStart.Add(time.Second).UnixMilli(), events[1].Timestamp)

	assert.Equal(t, "https://academy.example/", events[0].URL, "page state is captured at enqueue time")
	assert.Equal(t, "https://academy.example/batches", events[1].URL)
	for _, e := range events {
		assert.Equal(t, testAcademy, e.AcademyID)
		assert.Equal(t, "https://google.com/", e.Referrer)
		assert.Equal(t, "UA/1.0", e.UserAgent)
	}
	assert.Equal(t, map[string]any{"value": 10.0}, events[0].Properties)
}

func TestSessionCorrelation(t *testing.T) {
	env := newTestEnv(t)
	track(t, env.client, "a")
	track(t, env.client, "b")
	env.jar.Clear()
	track(t, env.client, "c")

	env.client.Flush(context.Background())
	events := env.collector.batch(0).Events
	require.Len(t, events, 3)
	assert.NotEmpty(t, events[0].SessionID)
	assert.Equal(t, events[0].SessionID, events[1].SessionID, "same cookie jar, same session")
	assert.NotEqual(t, events[1].SessionID, events[2].SessionID, "cleared cookies start a new session")

	v, ok := env.jar.Get(session.CookieName(testAcademy))
	require.True(t, ok)
	assert.Equal(t, events[2].SessionID, v)
}

func TestSessionSharedBetweenClients(t *testing.T) {
	clk := clock.NewMock(testStart)
	jar := session.NewMemoryJar(clk)
	newClient := func() *Client {
		c, err := New(Config{AcademyID: testAcademy, APIKey: testKey, APIBaseURL: "http://127.0.0.1:0"},
			WithClock(clk), WithSessionStore(jar), WithHTTPClient(http.DefaultClient))
		require.NoError(t, err)
		t.Cleanup(func() {
			c.shutdown()
			c.Wait()
		})
		return c
	}
	assert.Equal(t, newClient().SessionID(), newClient().SessionID())
}

func TestErrorsAreMatchable(t *testing.T) {
	err := error(&APIError{Sentinel: ErrUnexpectedStatus, Operation: "fetch batches", Status: 502, Body: "bad gateway"})
	assert.True(t, errors.Is(err, ErrUnexpectedStatus))
	assert.Equal(t, 502, StatusCode(err))
	assert.Contains(t, err.Error(), "HTTP 502")
	assert.Equal(t, 0, StatusCode(errors.New("other")))
}
