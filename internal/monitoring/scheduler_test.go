package monitoring

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeo-tracker/backend/internal/events"
	"github.com/aeo-tracker/backend/internal/storage/models"
	"github.com/aeo-tracker/backend/internal/storage/slots"
	"github.com/aeo-tracker/backend/internal/temporal"
	"github.com/aeo-tracker/backend/internal/tracking"
)

// fakeProber saves the scripted positions for each LLM, as the real tracker
// would, and remembers which targets it was asked about.
type fakeProber struct {
	store     *temporal.Store
	positions map[string]int
	err       error
	// during runs inside TrackPositions, while the scheduler waits.
	during func()

	mu      sync.Mutex
	targets []tracking.Target
}

func (p *fakeProber) TrackPositions(ctx context.Context, target tracking.Target) ([]models.PositionRecord, error) {
	p.mu.Lock()
	p.targets = append(p.targets, target)
	p.mu.Unlock()

	if p.during != nil {
		p.during()
	}
	if p.err != nil {
		return nil, p.err
	}

	var out []models.PositionRecord
	for _, llm := range []string{"ChatGPT", "Claude"} {
		pos, ok := p.positions[llm]
		if !ok {
			continue
		}
		r, err := p.store.SavePositionRecord(ctx, models.PositionRecord{
			Brand:    target.Brand,
			Query:    target.Query,
			Website:  target.Website,
			LLM:      llm,
			Position: pos,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func setup(t *testing.T) (*Scheduler, *temporal.Store, *fakeProber, *clock, *events.Hub) {
	t.Helper()

	c := &clock{now: time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)}
	store := temporal.NewStore(slots.NewMemory(0), temporal.WithClock(c.Now))
	prober := &fakeProber{store: store, positions: map[string]int{"ChatGPT": 3, "Claude": 2}}
	hub := events.NewHub(8)
	s := NewScheduler(store, prober, time.Minute, WithClock(c.Now), WithNotifier(hub))
	return s, store, prober, c, hub
}

func saveSetting(t *testing.T, store *temporal.Store, brand string, freq models.Frequency, threshold int, active bool) {
	t.Helper()
	require.NoError(t, store.SaveMonitoringSettings(context.Background(), models.MonitoringSettings{
		Brand:          brand,
		Query:          "best EVs",
		Website:        brand + ".com",
		Frequency:      freq,
		AlertThreshold: threshold,
		IsActive:       active,
	}))
}

func TestRunDue_RunsOnlyDueActiveSettings(t *testing.T) {
	s, store, prober, c, _ := setup(t)
	ctx := context.Background()

	saveSetting(t, store, "tesla", models.FrequencyHourly, 2, true)
	saveSetting(t, store, "rivian", models.FrequencyDaily, 2, true)
	saveSetting(t, store, "lucid", models.FrequencyHourly, 2, false)

	_, err := s.RunDue(ctx)
	require.NoError(t, err)
	assert.Len(t, prober.targets, 2, "both active settings have never run")

	settings, err := store.GetMonitoringSettings(ctx, models.MonitoringFilter{Brand: "tesla"})
	require.NoError(t, err)
	require.NotNil(t, settings[0].LastRun)
	assert.Equal(t, "2026-05-04T08:00:00.000Z", *settings[0].LastRun)

	c.Advance(30 * time.Minute)
	_, err = s.RunDue(ctx)
	require.NoError(t, err)
	assert.Len(t, prober.targets, 2, "nothing is due yet")

	c.Advance(30 * time.Minute)
	_, err = s.RunDue(ctx)
	require.NoError(t, err)
	require.Len(t, prober.targets, 3, "the hourly setting is due again")
	assert.Equal(t, tracking.Target{Brand: "tesla", Query: "best EVs", Website: "tesla.com"}, prober.targets[2])

	lucid, err := store.GetMonitoringSettings(ctx, models.MonitoringFilter{Brand: "lucid"})
	require.NoError(t, err)
	assert.Nil(t, lucid[0].LastRun)
}

func TestRunDue_AlertsOnThreshold(t *testing.T) {
	s, store, prober, c, hub := setup(t)
	ctx := context.Background()

	feed, cancel := hub.Subscribe()
	defer cancel()

	saveSetting(t, store, "tesla", models.FrequencyHourly, 2, true)

	alerts, err := s.RunDue(ctx)
	require.NoError(t, err)
	assert.Empty(t, alerts, "no previous run to compare with")

	c.Advance(time.Hour)
	prober.positions = map[string]int{"ChatGPT": 1, "Claude": 3}

	alerts, err = s.RunDue(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1, "Claude moved by one, below the threshold")
	assert.Equal(t, Alert{
		Brand:     "tesla",
		Query:     "best EVs",
		Website:   "tesla.com",
		LLM:       "ChatGPT",
		Previous:  3,
		Current:   1,
		Threshold: 2,
		At:        "2026-05-04T09:00:00.000Z",
	}, alerts[0])
	assert.Equal(t, 2, alerts[0].Change())

	var got []events.Event
	for len(feed) > 0 {
		got = append(got, <-feed)
	}
	var alertEvents int
	for _, e := range got {
		if e.Type == events.MonitoringAlert {
			alertEvents++
			assert.Equal(t, alerts[0], e.Payload)
		}
	}
	assert.Equal(t, 1, alertEvents)
}

func TestRunDue_ZeroThresholdNeverAlerts(t *testing.T) {
	s, store, prober, c, _ := setup(t)
	ctx := context.Background()

	saveSetting(t, store, "tesla", models.FrequencyHourly, 0, true)

	_, err := s.RunDue(ctx)
	require.NoError(t, err)

	c.Advance(time.Hour)
	prober.positions = map[string]int{"ChatGPT": 9}
	alerts, err := s.RunDue(ctx)
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestRunDue_ProbeFailureStillStampsLastRun(t *testing.T) {
	s, store, prober, _, _ := setup(t)
	ctx := context.Background()

	prober.err = errors.New("all providers down")
	saveSetting(t, store, "tesla", models.FrequencyDaily, 1, true)

	alerts, err := s.RunDue(ctx)
	require.NoError(t, err)
	assert.Empty(t, alerts)

	settings, err := store.GetMonitoringSettings(ctx, models.MonitoringFilter{})
	require.NoError(t, err)
	require.NotNil(t, settings[0].LastRun)
}

func TestRunDue_KeepsSettingsEditedDuringRun(t *testing.T) {
	s, store, prober, _, _ := setup(t)
	ctx := context.Background()

	saveSetting(t, store, "tesla", models.FrequencyHourly, 1, true)
	prober.during = func() {
		saveSetting(t, store, "tesla", models.FrequencyDaily, 5, false)
	}

	_, err := s.RunDue(ctx)
	require.NoError(t, err)

	settings, err := store.GetMonitoringSettings(ctx, models.MonitoringFilter{Brand: "tesla"})
	require.NoError(t, err)
	require.Len(t, settings, 1)
	assert.Equal(t, models.FrequencyDaily, settings[0].Frequency)
	assert.Equal(t, 5, settings[0].AlertThreshold)
	assert.False(t, settings[0].IsActive)
	require.NotNil(t, settings[0].LastRun)
	assert.Equal(t, "2026-05-04T08:00:00.000Z", *settings[0].LastRun)
}

func TestRunDue_SettingsDeletedDuringRunStayDeleted(t *testing.T) {
	s, store, prober, _, _ := setup(t)
	ctx := context.Background()

	saveSetting(t, store, "tesla", models.FrequencyHourly, 1, true)
	prober.during = func() {
		require.NoError(t, store.ImportData(ctx, models.Snapshot{MonitoringSettings: []models.MonitoringSettings{}}))
	}

	_, err := s.RunDue(ctx)
	require.NoError(t, err)

	settings, err := store.GetMonitoringSettings(ctx, models.MonitoringFilter{})
	require.NoError(t, err)
	assert.Empty(t, settings)
}

func TestRunDue_UnparseableLastRunIsDue(t *testing.T) {
	s, store, prober, _, _ := setup(t)
	ctx := context.Background()

	garbage := "yesterday"
	require.NoError(t, store.SaveMonitoringSettings(ctx, models.MonitoringSettings{
		Brand: "tesla", Query: "best EVs", Frequency: models.FrequencyDaily, IsActive: true, LastRun: &garbage,
	}))

	_, err := s.RunDue(ctx)
	require.NoError(t, err)
	assert.Len(t, prober.targets, 1)
}

func TestRun_StopsOnCancel(t *testing.T) {
	s, store, prober, _, _ := setup(t)
	saveSetting(t, store, "tesla", models.FrequencyDaily, 1, true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		prober.mu.Lock()
		defer prober.mu.Unlock()
		return len(prober.targets) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
