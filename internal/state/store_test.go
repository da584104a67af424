package state

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryo-dashboard/internal/protocol"
	"cryo-dashboard/internal/transport"
)

func newStore() *Store {
	return New(Options{
		Probes:   []string{"t_still", "t_1"},
		Channels: []string{"p_1"},
		Window:   20,
	})
}

func TestParsePage(t *testing.T) {
	for _, p := range Pages() {
		got, ok := ParsePage(p.String())
		require.True(t, ok, p.String())
		assert.Equal(t, p, got)
	}
	_, ok := ParsePage("settings")
	assert.False(t, ok)
}

func TestNewStoreDefaults(t *testing.T) {
	s := newStore()
	snap := s.Snapshot()

	assert.Equal(t, PageStatus, snap.Page)
	assert.Equal(t, transport.HealthConnecting, snap.Health)
	assert.Equal(t, 1, snap.ListPage)
	assert.Equal(t, map[string]float64{"t_still": 0, "t_1": 0}, snap.Temperatures)
	assert.Equal(t, map[string]float64{"p_1": 0}, snap.Pressures)
	assert.True(t, snap.TemperaturesAt.IsZero())
	assert.False(t, s.TemperatureChart().Initialized())
}

func TestSetTemperaturesIgnoresUnknownProbes(t *testing.T) {
	s := newStore()
	appended := s.SetTemperatures(protocol.Snapshot{
		Timestamp: 1700000000,
		Values:    map[string]float64{"t_1": 4.2, "t_9": 1},
	})
	assert.False(t, appended, "chart is not initialised yet")

	snap := s.Snapshot()
	assert.Equal(t, map[string]float64{"t_still": 0, "t_1": 4.2}, snap.Temperatures)
	assert.Equal(t, int64(1700000000), snap.TemperaturesAt.Unix())
}

func TestTraceInitOnlyOnce(t *testing.T) {
	s := newStore()
	trace := protocol.Trace{{Timestamp: 1, Values: map[string]float64{"p_1": 1e-3}}}
	require.True(t, s.InitPressureTrace(trace))
	assert.False(t, s.InitPressureTrace(trace))

	assert.True(t, s.SetPressures(protocol.Snapshot{Timestamp: 2, Values: map[string]float64{"p_1": 2e-3}}))
	assert.Equal(t, 1, s.PressureChart().Revision)
	assert.Equal(t, 2, s.PressureChart().Series("p_1").Len())
}

func TestPointsRemaining(t *testing.T) {
	s := newStore()
	s.SetPointsTaken(3)
	s.SetPointsTotal(10)
	assert.Equal(t, 7, s.Snapshot().PointsRemaining())
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	s := newStore()
	cfg := protocol.DefaultExperimentConfig()
	s.SetConfig(cfg)
	s.SetExperiments(protocol.ExperimentList{
		Count: 1,
		Page:  2,
		Rows:  []protocol.ExperimentRow{{ID: 7, Config: cfg}},
	})
	s.SetCryoStatus(protocol.CryoStatus{Status: "cooling", Ack: "ok"})

	snap := s.Snapshot()
	before := s.Snapshot()

	snap.Temperatures["t_1"] = 99
	snap.Config["sr830_frequency"] = -1
	snap.Experiments.Rows[0].ID = 0
	snap.Experiments.Rows[0].Config["magnet_max_field"] = -1
	snap.Cryo.Status = "changed"

	if diff := cmp.Diff(before, s.Snapshot()); diff != "" {
		t.Fatalf("store changed through snapshot (-before +after):\n%s", diff)
	}
	assert.Equal(t, 2, s.ListPage())
}

func TestSetConfigCopies(t *testing.T) {
	s := newStore()
	cfg := protocol.ExperimentConfig{"sr830_frequency": 1000}
	s.SetConfig(cfg)
	cfg["sr830_frequency"] = 1
	assert.Equal(t, float64(1000), s.Snapshot().Config["sr830_frequency"])
}

func TestHealthAndNotice(t *testing.T) {
	s := newStore()
	s.SetHealth(transport.HealthReconnecting)
	s.SetNotice(Notice{Level: "info", Text: "Configuration saved"})
	s.SetPage(PageCryo)

	snap := s.Snapshot()
	assert.Equal(t, transport.HealthReconnecting, snap.Health)
	assert.Equal(t, "Configuration saved", snap.Notice.Text)
	assert.Equal(t, PageCryo, s.Page())
}
