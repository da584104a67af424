package session

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryo-dashboard/internal/plot"
	"cryo-dashboard/internal/protocol"
	"cryo-dashboard/internal/render"
	"cryo-dashboard/internal/simulator"
	"cryo-dashboard/internal/transport"
)

type fakeUpstream struct {
	events chan protocol.Message
	health chan transport.Health

	mu        sync.Mutex
	connected bool
	sent      []protocol.Kind
	saved     []protocol.ExperimentConfig
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		events: make(chan protocol.Message, 16),
		health: make(chan transport.Health, 4),
	}
}

func (f *fakeUpstream) record(k protocol.Kind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return transport.ErrNotConnected
	}
	f.sent = append(f.sent, k)
	return nil
}

func (f *fakeUpstream) requests() []protocol.Kind {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.Kind(nil), f.sent...)
}

func (f *fakeUpstream) connect() {
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	f.health <- transport.HealthConnected
}

func (f *fakeUpstream) RequestTemperatures() error { return f.record(protocol.KindGetTemperatures) }
func (f *fakeUpstream) RequestDCField() error      { return f.record(protocol.KindGetDCField) }
func (f *fakeUpstream) RequestACField() error      { return f.record(protocol.KindGetACField) }
func (f *fakeUpstream) RequestPointsTaken() error  { return f.record(protocol.KindGetPointsTaken) }
func (f *fakeUpstream) RequestPointsTotal() error  { return f.record(protocol.KindGetPointsTotal) }
func (f *fakeUpstream) RequestClientCount() error  { return f.record(protocol.KindGetClientCount) }
func (f *fakeUpstream) RequestRMS() error          { return f.record(protocol.KindGetRMS) }
func (f *fakeUpstream) RequestMagnetTrace() error  { return f.record(protocol.KindGetMagnetTrace) }
func (f *fakeUpstream) RequestTemperatureTrace() error {
	return f.record(protocol.KindGetTemperatureTrace)
}
func (f *fakeUpstream) RequestPressureTrace() error { return f.record(protocol.KindGetPressureTrace) }
func (f *fakeUpstream) RequestLatestConfig() error  { return f.record(protocol.KindGetLatestConfig) }
func (f *fakeUpstream) RequestCryoStatus() error    { return f.record(protocol.KindGetCryoStatus) }
func (f *fakeUpstream) BeginCooldown() error        { return f.record(protocol.KindBeginCooldown) }

func (f *fakeUpstream) RequestExperimentList(int) error {
	return f.record(protocol.KindGetExperimentList)
}

func (f *fakeUpstream) SaveConfig(cfg protocol.ExperimentConfig) error {
	if err := f.record(protocol.KindSetConfig); err != nil {
		return err
	}
	f.mu.Lock()
	f.saved = append(f.saved, cfg)
	f.mu.Unlock()
	return nil
}

func (f *fakeUpstream) Events() <-chan protocol.Message { return f.events }
func (f *fakeUpstream) Health() <-chan transport.Health { return f.health }

func (f *fakeUpstream) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

type frameSink struct {
	frames chan Frame
}

func (s *frameSink) WriteFrame(f Frame) error {
	s.frames <- f
	return nil
}

// next returns the first frame matching typ and target, skipping others.
func (s *frameSink) next(t *testing.T, typ, target string) Frame {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case f := <-s.frames:
			if f.Type == typ && (target == "" || f.Target == target) {
				return f
			}
		case <-timeout:
			t.Fatalf("no %s frame for %q", typ, target)
			return Frame{}
		}
	}
}

// quiet asserts that nothing is written for a short while.
func (s *frameSink) quiet(t *testing.T) {
	t.Helper()
	select {
	case f := <-s.frames:
		t.Fatalf("unexpected frame %+v", f)
	case <-time.After(100 * time.Millisecond):
	}
}

func message(t *testing.T, kind protocol.Kind, payload any) protocol.Message {
	t.Helper()
	frame, err := protocol.Encode(kind, payload)
	require.NoError(t, err)
	var env protocol.Envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	return protocol.Message{Kind: kind, Data: env.Data}
}

type harness struct {
	up      *fakeUpstream
	sink    *frameSink
	session *Session
	history *plot.History
	cancel  context.CancelFunc
	done    chan error
}

func start(t *testing.T, interval time.Duration) *harness {
	t.Helper()
	h := &harness{
		up:      newFakeUpstream(),
		sink:    &frameSink{frames: make(chan Frame, 256)},
		history: plot.NewHistory(100),
		done:    make(chan error, 1),
	}
	h.session = New(h.up, h.sink, Options{
		ID:              "test",
		ClientID:        "webbrowser_test",
		Probes:          []string{"t_still", "t_1"},
		Channels:        []string{"p_1"},
		Window:          20,
		RefreshInterval: interval,
		History:         h.history,
		Logger:          zerolog.Nop(),
	})
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.session.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(3 * time.Second):
			t.Error("session did not stop")
		}
	})

	assert.Equal(t, "connecting", h.sink.next(t, FrameHealth, render.TargetHealth).Health)
	page := h.sink.next(t, FramePage, "")
	assert.Equal(t, "status", page.Page)
	assert.Equal(t, "Experiment status", page.Title)
	return h
}

func (h *harness) submit(t *testing.T, a Action) {
	t.Helper()
	require.NoError(t, h.session.Submit(context.Background(), a))
}

func (h *harness) send(t *testing.T, kind protocol.Kind, payload any) {
	t.Helper()
	h.up.events <- message(t, kind, payload)
}

func TestConnectRunsPageRefresh(t *testing.T) {
	h := start(t, time.Hour)
	h.up.connect()

	assert.Equal(t, "connected", h.sink.next(t, FrameHealth, render.TargetHealth).Health)
	require.Eventually(t, func() bool { return len(h.up.requests()) == 8 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []protocol.Kind{
		protocol.KindGetTemperatures, protocol.KindGetACField, protocol.KindGetDCField,
		protocol.KindGetClientCount, protocol.KindGetPointsTaken, protocol.KindGetPointsTotal,
		protocol.KindGetMagnetTrace, protocol.KindGetTemperatureTrace,
	}, h.up.requests())
}

func TestTemperatureFlow(t *testing.T) {
	h := start(t, time.Hour)

	// no chart yet: the whole page is re-rendered
	h.send(t, protocol.KindTemperatures, protocol.Snapshot{Timestamp: 1700000000, Values: map[string]float64{"t_1": 4.2}})
	page := h.sink.next(t, FramePage, "")
	assert.Contains(t, page.HTML, "t_1 = 4.2000K")

	h.send(t, protocol.KindTemperatureTrace, map[string][]float64{
		"times": {1700000001, 1700000002},
		"t_1":   {3, 4},
	})
	first := h.sink.next(t, FramePlot, render.TargetTemperaturePlot)
	require.NotNil(t, first.Plot)
	assert.Equal(t, 0, first.Plot.Revision)
	require.Len(t, first.Plot.Traces, 2)
	assert.Equal(t, []float64{3, 4}, first.Plot.Traces[1].Y)

	h.send(t, protocol.KindTemperatures, protocol.Snapshot{Timestamp: 1700000003, Values: map[string]float64{"t_1": 5}})
	patch := h.sink.next(t, FramePatch, render.TargetTemperatureList)
	assert.Contains(t, patch.HTML, "t_1 = 5.0000K")
	next := h.sink.next(t, FramePlot, render.TargetTemperaturePlot)
	assert.Equal(t, 1, next.Plot.Revision)
	assert.Equal(t, []float64{1700000001, 1700000003}, next.Plot.Layout.XAxis.Range)

	assert.Len(t, h.history.Series("t_1", time.Time{}), 2)
}

func TestPatchesSkipAbsentTargets(t *testing.T) {
	h := start(t, time.Hour)
	h.up.connect()
	h.sink.next(t, FrameHealth, render.TargetHealth)

	h.submit(t, Action{Name: ActionNavigate, Page: "info"})
	assert.Equal(t, "info", h.sink.next(t, FramePage, "").Page)

	// late response for a page that is no longer open
	h.send(t, protocol.KindDCField, 8.1234)
	h.send(t, protocol.KindPointsTaken, 7)
	h.sink.quiet(t)

	h.send(t, protocol.KindConnectionCount, 3)
	assert.Equal(t, "3", h.sink.next(t, FramePatch, render.TargetConnections).HTML)

	h.submit(t, Action{Name: ActionNavigate, Page: "status"})
	page := h.sink.next(t, FramePage, "")
	assert.Contains(t, page.HTML, "B_large = 8.1234T")
	assert.Contains(t, page.HTML, "taken = 7")
}

func TestCountersPatch(t *testing.T) {
	h := start(t, time.Hour)
	h.send(t, protocol.KindPointsTotal, 10)
	h.sink.next(t, FramePatch, render.TargetCounters)
	h.send(t, protocol.KindPointsTaken, 7)
	patch := h.sink.next(t, FramePatch, render.TargetCounters)
	assert.Contains(t, patch.HTML, "taken = 7")
	assert.Contains(t, patch.HTML, "remaining = 3")
	assert.Contains(t, patch.HTML, "total = 10")
}

func TestMalformedPayloadIsDropped(t *testing.T) {
	h := start(t, time.Hour)
	h.up.events <- protocol.Message{Kind: protocol.KindDCField, Data: json.RawMessage(`"high"`)}
	h.up.events <- protocol.Message{Kind: protocol.KindTemperatures, Data: json.RawMessage(`[1,2]`)}
	h.sink.quiet(t)

	h.send(t, protocol.KindACField, 0.5)
	assert.Contains(t, h.sink.next(t, FramePatch, render.TargetMagnetList).HTML, "B_small = 0.5000T")
}

func TestSaveConfig(t *testing.T) {
	h := start(t, time.Hour)

	form := map[string]string{}
	for _, f := range protocol.ConfigFields {
		form[f.Name] = "1"
	}
	form["sr830_sensitivity"] = "1e-06"

	h.submit(t, Action{Name: ActionSaveConfig, Form: form})
	assert.Contains(t, h.sink.next(t, FrameNotice, render.TargetNotice).HTML, "Not connected")

	h.up.connect()
	h.sink.next(t, FrameHealth, render.TargetHealth)
	h.submit(t, Action{Name: ActionSaveConfig, Form: map[string]string{"sr830_frequency": "10"}})
	assert.Contains(t, h.sink.next(t, FrameNotice, render.TargetNotice).HTML, "Configuration not saved")

	h.submit(t, Action{Name: ActionSaveConfig, Form: form})
	require.Eventually(t, func() bool {
		h.up.mu.Lock()
		defer h.up.mu.Unlock()
		return len(h.up.saved) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1e-6, h.up.saved[0]["sr830_sensitivity"])

	h.send(t, protocol.KindConfigSaved, nil)
	assert.Contains(t, h.sink.next(t, FrameNotice, render.TargetNotice).HTML, "Experiment configuration saved.")
}

func TestTimerRequestsCounters(t *testing.T) {
	h := start(t, 20*time.Millisecond)
	h.up.connect()
	h.sink.next(t, FrameHealth, render.TargetHealth)
	h.submit(t, Action{Name: ActionNavigate, Page: "info"})

	count := func(k protocol.Kind) int {
		n := 0
		for _, s := range h.up.requests() {
			if s == k {
				n++
			}
		}
		return n
	}
	require.Eventually(t, func() bool {
		return count(protocol.KindGetPointsTotal) >= 3
	}, 2*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, count(protocol.KindGetClientCount), 3)
	assert.GreaterOrEqual(t, count(protocol.KindGetPointsTaken), 3)
}

func TestDataPagePagination(t *testing.T) {
	h := start(t, time.Hour)
	h.up.connect()
	h.sink.next(t, FrameHealth, render.TargetHealth)

	h.submit(t, Action{Name: ActionNavigate, Page: "data"})
	assert.Contains(t, h.sink.next(t, FramePage, "").HTML, "Loading experiments")

	rows := make([]protocol.ExperimentRow, 10)
	for i := range rows {
		rows[i] = protocol.ExperimentRow{ID: int64(i + 1)}
	}
	h.send(t, protocol.KindExperimentList, protocol.ExperimentList{Count: 15, Page: 1, Rows: rows})
	table := h.sink.next(t, FramePatch, render.TargetDataTable)
	assert.Contains(t, table.HTML, ">next</button>")
	assert.NotContains(t, table.HTML, ">previous</button>")

	h.submit(t, Action{Name: ActionExperimentsPage, ListPage: 2})
	require.Eventually(t, func() bool {
		reqs := h.up.requests()
		n := 0
		for _, k := range reqs {
			if k == protocol.KindGetExperimentList {
				n++
			}
		}
		return n == 2
	}, time.Second, 10*time.Millisecond)
}

func TestEndToEndWithSimulator(t *testing.T) {
	sim := simulator.New(simulator.Options{Seed: 11, Probes: []string{"t_still", "t_1"}})
	ts := httptest.NewServer(sim)
	defer ts.Close()

	up := transport.New(transport.Options{
		URL:      "ws" + strings.TrimPrefix(ts.URL, "http"),
		ClientID: "webbrowser_e2e",
		Logger:   zerolog.Nop(),
	})
	sink := &frameSink{frames: make(chan Frame, 1024)}
	s := New(up, sink, Options{
		ID:       "e2e",
		ClientID: "webbrowser_e2e",
		Probes:   []string{"t_still", "t_1"},
		Channels: []string{"p_1"},
		Window:   20,
		Logger:   zerolog.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	sink.next(t, FramePage, "")
	assert.Equal(t, "connected", sink.next(t, FrameHealth, render.TargetHealth).Health)
	magnet := sink.next(t, FramePlot, render.TargetMagnetPlot)
	assert.Len(t, magnet.Plot.Traces[0].X, 100)
	temps := sink.next(t, FramePlot, render.TargetTemperaturePlot)
	assert.Len(t, temps.Plot.Traces, 2)
	require.Eventually(t, func() bool { return len(sim.Identities()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, "webbrowser_e2e", sim.Identities()[0])

	require.NoError(t, s.Submit(ctx, Action{Name: ActionNavigate, Page: "cryo"}))
	sink.next(t, FramePlot, render.TargetPressurePlot)
	assert.Contains(t, sink.next(t, FramePatch, render.TargetCryoStatus).HTML, "Status: idle")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("session did not stop")
	}
}
