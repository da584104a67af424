// Package state holds the per-tab client state: the latest readings, the
// acquisition counters, the experiment configuration, the live charts and the
// page currently on screen. A Store is owned by one session loop and is not
// safe for concurrent use.
package state

import (
	"time"

	"cryo-dashboard/internal/plot"
	"cryo-dashboard/internal/protocol"
	"cryo-dashboard/internal/transport"
)

// Page is the closed set of dashboard pages.
type Page int

const (
	PageStatus Page = iota
	PageConfig
	PageCryo
	PageInfo
	PageDataManagement
)

var pageKeys = map[Page]string{
	PageStatus:         "status",
	PageConfig:         "config",
	PageCryo:           "cryo",
	PageInfo:           "info",
	PageDataManagement: "data",
}

func (p Page) String() string {
	return pageKeys[p]
}

// ParsePage resolves a page key sent by the browser.
func ParsePage(key string) (Page, bool) {
	for p, k := range pageKeys {
		if k == key {
			return p, true
		}
	}
	return PageStatus, false
}

// Pages lists every page in navigation order.
func Pages() []Page {
	return []Page{PageStatus, PageConfig, PageCryo, PageDataManagement, PageInfo}
}

// Notice is a one-line message shown above the page content.
type Notice struct {
	Level string
	Text  string
}

// Options sizes a new store.
type Options struct {
	Probes   []string
	Channels []string
	Window   int
	// Export marks experiments as downloadable from the local archive.
	Export bool
}

// Store is the mutable source of truth for one tab.
type Store struct {
	probes   []string
	channels []string

	temperatures   map[string]float64
	temperaturesAt float64
	pressures      map[string]float64
	pressuresAt    float64

	dcField     float64
	acField     float64
	rms         float64
	hasRMS      bool
	pointsTaken int
	pointsTotal int
	connections int

	config      protocol.ExperimentConfig
	cryo        *protocol.CryoStatus
	experiments *protocol.ExperimentList
	listPage    int
	export      bool

	page   Page
	health transport.Health
	notice Notice

	temperatureChart *plot.Chart
	pressureChart    *plot.Chart
	magnetChart      *plot.Chart
}

// New creates a store with every probe and channel at zero.
func New(opts Options) *Store {
	s := &Store{
		probes:       append([]string(nil), opts.Probes...),
		channels:     append([]string(nil), opts.Channels...),
		temperatures: make(map[string]float64, len(opts.Probes)),
		pressures:    make(map[string]float64, len(opts.Channels)),
		listPage:     1,
		export:       opts.Export,
		page:         PageStatus,
		health:       transport.HealthConnecting,
		temperatureChart: plot.NewChart(plot.Layout{
			Title:  "Temperature over time",
			XTitle: "Time [seconds]",
			YTitle: "Temperature [Kelvin]",
		}, opts.Window),
		pressureChart: plot.NewChart(plot.Layout{
			Title:  "Pressure over time",
			XTitle: "Time [seconds]",
			YTitle: "Pressure",
		}, opts.Window),
		magnetChart: plot.NewChart(plot.Layout{
			Title:  "Magnetic field strength over time (small magnet)",
			XTitle: "Time [seconds]",
			YTitle: "Field strength [Tesla]",
		}, opts.Window),
	}
	for _, p := range s.probes {
		s.temperatures[p] = 0
	}
	for _, c := range s.channels {
		s.pressures[c] = 0
	}
	return s
}

// SetTemperatures copies the known probes out of snap. When the temperature
// chart is live the snapshot is also appended to it; the return value reports
// whether that happened.
func (s *Store) SetTemperatures(snap protocol.Snapshot) bool {
	for _, p := range s.probes {
		if v, ok := snap.Values[p]; ok {
			s.temperatures[p] = v
		}
	}
	if snap.Timestamp != 0 {
		s.temperaturesAt = snap.Timestamp
	}
	return s.temperatureChart.Append(snap)
}

// SetPressures is SetTemperatures for the pressure channels.
func (s *Store) SetPressures(snap protocol.Snapshot) bool {
	for _, c := range s.channels {
		if v, ok := snap.Values[c]; ok {
			s.pressures[c] = v
		}
	}
	if snap.Timestamp != 0 {
		s.pressuresAt = snap.Timestamp
	}
	return s.pressureChart.Append(snap)
}

// InitTemperatureTrace loads the first temperature trace. It returns false if
// the chart was already initialised.
func (s *Store) InitTemperatureTrace(trace protocol.Trace) bool {
	if s.temperatureChart.Initialized() {
		return false
	}
	s.temperatureChart.Init(s.probes, trace)
	return true
}

// InitPressureTrace loads the first pressure trace.
func (s *Store) InitPressureTrace(trace protocol.Trace) bool {
	if s.pressureChart.Initialized() {
		return false
	}
	s.pressureChart.Init(s.channels, trace)
	return true
}

// SetMagnetTrace replaces the magnet chart data.
func (s *Store) SetMagnetTrace(mt protocol.MagnetTrace) {
	s.magnetChart.Replace("Total magnetic field strength", mt.Times, mt.Values)
}

func (s *Store) SetDCField(v float64)     { s.dcField = v }
func (s *Store) SetACField(v float64)     { s.acField = v }
func (s *Store) SetPointsTaken(n int)     { s.pointsTaken = n }
func (s *Store) SetPointsTotal(n int)     { s.pointsTotal = n }
func (s *Store) SetConnections(n int)     { s.connections = n }
func (s *Store) SetPage(p Page)           { s.page = p }
func (s *Store) SetNotice(n Notice)       { s.notice = n }
func (s *Store) SetListPage(page int)     { s.listPage = page }
func (s *Store) Page() Page               { return s.page }
func (s *Store) Health() transport.Health { return s.health }
func (s *Store) ListPage() int            { return s.listPage }

func (s *Store) SetRMS(v float64) {
	s.rms = v
	s.hasRMS = true
}

func (s *Store) SetHealth(h transport.Health) {
	s.health = h
}

// SetConfig replaces the experiment configuration.
func (s *Store) SetConfig(cfg protocol.ExperimentConfig) {
	s.config = cfg.Clone()
}

func (s *Store) SetCryoStatus(cs protocol.CryoStatus) {
	s.cryo = &cs
}

// SetExperiments stores the latest experiment list page.
func (s *Store) SetExperiments(list protocol.ExperimentList) {
	rows := append([]protocol.ExperimentRow(nil), list.Rows...)
	list.Rows = rows
	s.experiments = &list
	if list.Page > 0 {
		s.listPage = list.Page
	}
}

// TemperatureChart, PressureChart and MagnetChart expose the live charts.
// They are owned by the store and read only from the session loop.
func (s *Store) TemperatureChart() *plot.Chart { return s.temperatureChart }
func (s *Store) PressureChart() *plot.Chart    { return s.pressureChart }
func (s *Store) MagnetChart() *plot.Chart      { return s.magnetChart }

// Snapshot is a read-only copy of the store for renderers.
type Snapshot struct {
	Page Page

	Probes         []string
	Temperatures   map[string]float64
	TemperaturesAt time.Time
	Channels       []string
	Pressures      map[string]float64
	PressuresAt    time.Time

	DCField     float64
	ACField     float64
	RMS         float64
	HasRMS      bool
	PointsTaken int
	PointsTotal int
	Connections int

	Config      protocol.ExperimentConfig
	Cryo        *protocol.CryoStatus
	Experiments *protocol.ExperimentList
	ListPage    int
	Export      bool

	Health transport.Health
	Notice Notice
}

// PointsRemaining is total minus taken.
func (s Snapshot) PointsRemaining() int {
	return s.PointsTotal - s.PointsTaken
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() Snapshot {
	out := Snapshot{
		Page:           s.page,
		Probes:         append([]string(nil), s.probes...),
		Temperatures:   make(map[string]float64, len(s.temperatures)),
		TemperaturesAt: unix(s.temperaturesAt),
		Channels:       append([]string(nil), s.channels...),
		Pressures:      make(map[string]float64, len(s.pressures)),
		PressuresAt:    unix(s.pressuresAt),
		DCField:        s.dcField,
		ACField:        s.acField,
		RMS:            s.rms,
		HasRMS:         s.hasRMS,
		PointsTaken:    s.pointsTaken,
		PointsTotal:    s.pointsTotal,
		Connections:    s.connections,
		Config:         s.config.Clone(),
		ListPage:       s.listPage,
		Export:         s.export,
		Health:         s.health,
		Notice:         s.notice,
	}
	for k, v := range s.temperatures {
		out.Temperatures[k] = v
	}
	for k, v := range s.pressures {
		out.Pressures[k] = v
	}
	if s.cryo != nil {
		cs := *s.cryo
		out.Cryo = &cs
	}
	if s.experiments != nil {
		list := *s.experiments
		list.Rows = make([]protocol.ExperimentRow, len(s.experiments.Rows))
		for i, r := range s.experiments.Rows {
			r.Config = r.Config.Clone()
			list.Rows[i] = r
		}
		out.Experiments = &list
	}
	return out
}

func unix(ts float64) time.Time {
	return protocol.Snapshot{Timestamp: ts}.Time()
}
