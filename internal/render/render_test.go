package render

import (
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryo-dashboard/internal/protocol"
	"cryo-dashboard/internal/state"
	"cryo-dashboard/internal/transport"
)

func snapshot() state.Snapshot {
	s := state.New(state.Options{
		Probes:   []string{"t_still", "t_1", "t_2"},
		Channels: []string{"p_1", "p_2"},
		Window:   20,
	})
	s.SetTemperatures(protocol.Snapshot{
		Timestamp: 1700000000,
		Values:    map[string]float64{"t_still": 2.22123, "t_1": 3.33136, "t_2": 4.4414},
	})
	s.SetPressures(protocol.Snapshot{Timestamp: 1700000000, Values: map[string]float64{"p_1": 0.00123456, "p_2": 2e-5}})
	s.SetDCField(8.00004)
	s.SetACField(-0.12345)
	s.SetPointsTaken(7)
	s.SetPointsTotal(10)
	s.SetConnections(3)
	s.SetHealth(transport.HealthConnected)
	return s.Snapshot()
}

func TestRound(t *testing.T) {
	assert.Equal(t, 12.35, Round(12.3456, 2))
	assert.Equal(t, -12.35, Round(-12.3456, 2))
	assert.Equal(t, float64(3), Round(2.5, 0))
	assert.Equal(t, 2.2212, Round(2.22123, 4))
}

func TestLegacyRoundDiffers(t *testing.T) {
	// 10 XOR 2 is 8, so the old rounding divides by eighths
	assert.Equal(t, 12.375, LegacyRound(12.3456, 2))
	assert.NotEqual(t, Round(12.3456, 2), LegacyRound(12.3456, 2))
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "2.2212", Temperature(2.22123))
	assert.Equal(t, "-0.1235", Field(-0.12345))
	assert.Equal(t, "1.235e-03", Pressure(0.00123456))
}

func TestRenderersAreReferentiallyTransparent(t *testing.T) {
	snap := snapshot()
	snap.Experiments = &protocol.ExperimentList{Count: 2, Page: 1, Rows: []protocol.ExperimentRow{
		{ID: 2, Created: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), Config: protocol.DefaultExperimentConfig()},
		{ID: 1, Created: time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC), Config: protocol.DefaultExperimentConfig()},
	}}
	renderers := map[string]func(state.Snapshot) (string, error){
		"status":      StatusPage,
		"config":      ConfigPage,
		"cryo":        CryoPage,
		"info":        InfoPage,
		"data":        DataPage,
		"temps":       TemperatureList,
		"pressures":   PressureList,
		"magnet":      MagnetList,
		"counters":    Counters,
		"connections": Connections,
		"health":      Health,
	}
	for name, fn := range renderers {
		first, err := fn(snap)
		require.NoError(t, err, name)
		for i := 0; i < 5; i++ {
			again, err := fn(snap)
			require.NoError(t, err, name)
			require.Equal(t, first, again, name)
		}
	}
}

func TestStatusCounters(t *testing.T) {
	out, err := StatusPage(snapshot())
	require.NoError(t, err)
	assert.Contains(t, out, "taken = 7")
	assert.Contains(t, out, "remaining = 3")
	assert.Contains(t, out, "total = 10")
	assert.Contains(t, out, `id="data-status"`)
}

func TestTemperatureListOrderAndPrecision(t *testing.T) {
	out, err := TemperatureList(snapshot())
	require.NoError(t, err)
	still := strings.Index(out, "t_still = 2.2212K")
	one := strings.Index(out, "t_1 = 3.3314K")
	two := strings.Index(out, "t_2 = 4.4414K")
	require.True(t, still >= 0 && one >= 0 && two >= 0, out)
	assert.True(t, still < one && one < two)
	assert.Contains(t, out, "2023-11-14 22:13:20 UTC")
}

func TestMagnetList(t *testing.T) {
	snap := snapshot()
	out, err := MagnetList(snap)
	require.NoError(t, err)
	assert.Contains(t, out, "B_large = 8.0000T")
	assert.Contains(t, out, "B_small = -0.1235T")
	assert.NotContains(t, out, "B_rms")

	snap.HasRMS, snap.RMS = true, 0.545535
	out, err = MagnetList(snap)
	require.NoError(t, err)
	assert.Contains(t, out, "B_rms = 0.5455T")
}

func TestPagination(t *testing.T) {
	cases := []struct {
		count, page    int
		previous, next int
	}{
		{count: 0, page: 1},
		{count: 10, page: 1},
		{count: 11, page: 1, next: 2},
		{count: 11, page: 2, previous: 1},
		{count: 35, page: 2, previous: 1, next: 3},
		{count: 30, page: 3, previous: 2},
	}
	for _, c := range cases {
		prev, next := Pagination(c.count, c.page)
		assert.Equal(t, c.previous, prev, "count=%d page=%d", c.count, c.page)
		assert.Equal(t, c.next, next, "count=%d page=%d", c.count, c.page)
	}
}

func TestDataTable(t *testing.T) {
	snap := snapshot()

	out, err := DataTable(snap)
	require.NoError(t, err)
	assert.Contains(t, out, "Loading experiments")

	snap.Experiments = &protocol.ExperimentList{Count: 0, Page: 1}
	out, err = DataTable(snap)
	require.NoError(t, err)
	assert.Equal(t, "No experiments have been configured.", out)

	rows := make([]protocol.ExperimentRow, 10)
	for i := range rows {
		rows[i] = protocol.ExperimentRow{ID: int64(25 - i), PointsTaken: 1, PointsTotal: 2}
	}
	snap.Experiments = &protocol.ExperimentList{Count: 25, Page: 2, Rows: rows}
	out, err = DataTable(snap)
	require.NoError(t, err)
	assert.Contains(t, out, `data-page="1">previous</button>`)
	assert.Contains(t, out, `data-page="3">next</button>`)
	assert.Contains(t, out, "page 2 of 3")
	assert.NotContains(t, out, "/export")

	snap.Export = true
	out, err = DataTable(snap)
	require.NoError(t, err)
	assert.Contains(t, out, `href="/api/v1/experiments/25/export"`)

	snap.Experiments.Page = 3
	out, err = DataTable(snap)
	require.NoError(t, err)
	assert.NotContains(t, out, ">next</button>")
}

var nameAttr = regexp.MustCompile(`name="([^"]+)"`)

func TestConfigFormRoundTrip(t *testing.T) {
	snap := snapshot()
	cfg := protocol.DefaultExperimentConfig()
	cfg["sr830_sensitivity"] = 5e-3
	cfg["magnet_max_field"] = 7.25
	snap.Config = cfg

	out, err := ConfigForm(snap)
	require.NoError(t, err)

	seen := map[string]int{}
	for _, m := range nameAttr.FindAllStringSubmatch(out, -1) {
		seen[m[1]]++
	}
	require.Len(t, seen, len(protocol.ConfigFields))
	for _, f := range protocol.ConfigFields {
		assert.Equal(t, 1, seen[f.Name], f.Name)
	}
	assert.Contains(t, out, `<option value="0.005" selected>0.005V</option>`)
	assert.Contains(t, out, `value="7.25"`)

	// a browser submitting the rendered form yields the same configuration
	values := url.Values{}
	for _, f := range protocol.ConfigFields {
		values.Set(f.Name, f.FormatValue(cfg[f.Name]))
	}
	parsed, err := protocol.ParseConfigForm(values)
	require.NoError(t, err)
	assert.Equal(t, cfg, parsed)
}

func TestCryoFragments(t *testing.T) {
	snap := snapshot()
	out, err := CryoStatus(snap)
	require.NoError(t, err)
	assert.Equal(t, "Status: unknown", out)

	snap.Cryo = &protocol.CryoStatus{Status: "cooling down", Ack: "ok"}
	out, err = CryoStatus(snap)
	require.NoError(t, err)
	assert.Equal(t, "Status: cooling down", out)
	out, err = CryoAck(snap)
	require.NoError(t, err)
	assert.Equal(t, "Latest ack: ok", out)
}

func TestHealthBadgeAndNotice(t *testing.T) {
	snap := snapshot()
	out, err := Health(snap)
	require.NoError(t, err)
	assert.Equal(t, `<span class="badge badge--connected">connected</span>`, out)

	out, err = Notice(snap)
	require.NoError(t, err)
	assert.Empty(t, out)

	snap.Notice = state.Notice{Level: "info", Text: "Configuration <saved>"}
	out, err = Notice(snap)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration &lt;saved&gt;")
}
