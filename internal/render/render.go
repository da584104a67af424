// Package render turns state snapshots into HTML. Every function is pure: the
// same snapshot always produces the same bytes.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strconv"
	"time"

	"cryo-dashboard/internal/protocol"
	"cryo-dashboard/internal/state"
)

// DOM targets that fragments are patched into.
const (
	TargetContent         = "content"
	TargetTemperatureList = "temperature-list"
	TargetPressureList    = "pressure-list"
	TargetMagnetList      = "magnet-list"
	TargetCounters        = "data-status"
	TargetConnections     = "connections"
	TargetHealth          = "health"
	TargetNotice          = "notice"
	TargetCryoStatus      = "cryo-status"
	TargetCryoAck         = "cryo-ack"
	TargetDataTable       = "datatable-wrapper"
	TargetConfigForm      = "config-form"
	TargetTemperaturePlot = "temperature-plot"
	TargetPressurePlot    = "pressure-plot"
	TargetMagnetPlot      = "magnet-plot"
)

// PageSize is the number of experiments per table page.
const PageSize = 10

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.New("render").ParseFS(templateFS, "templates/*.html"))

func execute(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.UTC().Format("2006-01-02 15:04:05 UTC")
}

type reading struct {
	Label string
	Value string
}

// Temperature formats a reading in kelvin at four decimals.
func Temperature(v float64) string {
	return strconv.FormatFloat(Round(v, 4), 'f', 4, 64)
}

// Field formats a field strength in tesla at four decimals.
func Field(v float64) string {
	return strconv.FormatFloat(Round(v, 4), 'f', 4, 64)
}

// Pressure formats a pressure in scientific notation.
func Pressure(v float64) string {
	return strconv.FormatFloat(v, 'e', 3, 64)
}

func temperatureReadings(s state.Snapshot) []reading {
	out := make([]reading, 0, len(s.Probes))
	for _, p := range s.Probes {
		out = append(out, reading{Label: p, Value: Temperature(s.Temperatures[p])})
	}
	return out
}

func pressureReadings(s state.Snapshot) []reading {
	out := make([]reading, 0, len(s.Channels))
	for _, c := range s.Channels {
		out = append(out, reading{Label: c, Value: Pressure(s.Pressures[c])})
	}
	return out
}

type listView struct {
	Readings  []reading
	UpdatedAt string
}

// TemperatureList renders the current temperature of every probe.
func TemperatureList(s state.Snapshot) (string, error) {
	return execute("temperature_list", listView{
		Readings:  temperatureReadings(s),
		UpdatedAt: stamp(s.TemperaturesAt),
	})
}

// PressureList renders the current pressure of every gauge channel.
func PressureList(s state.Snapshot) (string, error) {
	return execute("pressure_list", listView{
		Readings:  pressureReadings(s),
		UpdatedAt: stamp(s.PressuresAt),
	})
}

type magnetView struct {
	DC     string
	AC     string
	RMS    string
	HasRMS bool
}

func magnet(s state.Snapshot) magnetView {
	return magnetView{
		DC:     Field(s.DCField),
		AC:     Field(s.ACField),
		RMS:    Field(s.RMS),
		HasRMS: s.HasRMS,
	}
}

// MagnetList renders the large and small magnet field strengths.
func MagnetList(s state.Snapshot) (string, error) {
	return execute("magnet_list", magnet(s))
}

type countersView struct {
	Taken     int
	Remaining int
	Total     int
}

func counters(s state.Snapshot) countersView {
	return countersView{Taken: s.PointsTaken, Remaining: s.PointsRemaining(), Total: s.PointsTotal}
}

// Counters renders the taken / remaining / total block.
func Counters(s state.Snapshot) (string, error) {
	return execute("counters", counters(s))
}

// Connections renders the connected client counter.
func Connections(s state.Snapshot) (string, error) {
	return execute("connections", s.Connections)
}

// Health renders the connection health badge.
func Health(s state.Snapshot) (string, error) {
	return execute("health", s.Health.String())
}

// Notice renders the notice bar. An empty notice renders nothing.
func Notice(s state.Snapshot) (string, error) {
	return execute("notice", s.Notice)
}

type cryoView struct {
	Status string
	Ack    string
	Known  bool
}

func cryo(s state.Snapshot) cryoView {
	if s.Cryo == nil {
		return cryoView{}
	}
	return cryoView{Status: string(s.Cryo.Status), Ack: string(s.Cryo.Ack), Known: true}
}

// CryoStatus renders the "Status: ..." line.
func CryoStatus(s state.Snapshot) (string, error) {
	return execute("cryo_status", cryo(s))
}

// CryoAck renders the "Latest ack: ..." line.
func CryoAck(s state.Snapshot) (string, error) {
	return execute("cryo_ack", cryo(s))
}

type experimentRow struct {
	ID        int64
	Created   string
	Taken     int
	Total     int
	FieldMin  string
	FieldMax  string
	FreqMin   string
	FreqMax   string
	ExportURL string
}

type tableView struct {
	Empty    bool
	Loading  bool
	Rows     []experimentRow
	Count    int
	Page     int
	Pages    int
	Previous int
	Next     int
}

// Pagination reports the neighbouring pages of page for a list of count rows.
// Zero means there is no such page.
func Pagination(count, page int) (previous, next int) {
	if page > 1 {
		previous = page - 1
	}
	if count > page*PageSize {
		next = page + 1
	}
	return previous, next
}

func table(s state.Snapshot) tableView {
	if s.Experiments == nil {
		return tableView{Loading: true}
	}
	list := s.Experiments
	if list.Count < 1 {
		return tableView{Empty: true}
	}
	page := list.Page
	if page < 1 {
		page = 1
	}
	v := tableView{
		Count: list.Count,
		Page:  page,
		Pages: (list.Count + PageSize - 1) / PageSize,
	}
	v.Previous, v.Next = Pagination(list.Count, page)
	for _, r := range list.Rows {
		row := experimentRow{
			ID:       r.ID,
			Created:  stamp(r.Created),
			Taken:    r.PointsTaken,
			Total:    r.PointsTotal,
			FieldMin: configValue(r.Config, "magnet_min_field"),
			FieldMax: configValue(r.Config, "magnet_max_field"),
			FreqMin:  configValue(r.Config, "n9310a_min_frequency"),
			FreqMax:  configValue(r.Config, "n9310a_max_frequency"),
		}
		if s.Export {
			row.ExportURL = fmt.Sprintf("/api/v1/experiments/%d/export", r.ID)
		}
		v.Rows = append(v.Rows, row)
	}
	return v
}

func configValue(cfg protocol.ExperimentConfig, name string) string {
	v, ok := cfg[name]
	if !ok {
		return "-"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// DataTable renders the experiment table with its pagination controls.
func DataTable(s state.Snapshot) (string, error) {
	return execute("data_table", table(s))
}

type option struct {
	Value    string
	Label    string
	Selected bool
}

type formField struct {
	Name    string
	Label   string
	Choice  bool
	Step    string
	Value   string
	Options []option
}

type formGroup struct {
	Title  string
	Fields []formField
}

func form(s state.Snapshot) []formGroup {
	cfg := s.Config
	if cfg == nil {
		cfg = protocol.DefaultExperimentConfig()
	}
	var groups []formGroup
	for _, f := range protocol.ConfigFields {
		if len(groups) == 0 || groups[len(groups)-1].Title != f.Group {
			groups = append(groups, formGroup{Title: f.Group})
		}
		ff := formField{Name: f.Name, Label: f.Label, Step: "any"}
		v, ok := cfg[f.Name]
		switch f.Kind {
		case protocol.FieldChoice:
			ff.Choice = true
			for _, o := range f.Options {
				ff.Options = append(ff.Options, option{
					Value:    f.FormatValue(o),
					Label:    f.FormatValue(o) + "V",
					Selected: ok && o == v,
				})
			}
		case protocol.FieldInt:
			ff.Step = "1"
		}
		if ok {
			ff.Value = f.FormatValue(v)
		}
		g := &groups[len(groups)-1]
		g.Fields = append(g.Fields, ff)
	}
	return groups
}

// ConfigForm renders the experiment configuration form prefilled from the
// latest configuration, or from defaults if none arrived yet.
func ConfigForm(s state.Snapshot) (string, error) {
	return execute("config_form", form(s))
}

type statusPage struct {
	Temperatures listView
	Magnet       magnetView
	Counters     countersView
}

// StatusPage renders the experiment status page.
func StatusPage(s state.Snapshot) (string, error) {
	return execute("status_page", statusPage{
		Temperatures: listView{Readings: temperatureReadings(s), UpdatedAt: stamp(s.TemperaturesAt)},
		Magnet:       magnet(s),
		Counters:     counters(s),
	})
}

// ConfigPage renders the configuration page.
func ConfigPage(s state.Snapshot) (string, error) {
	return execute("config_page", form(s))
}

type cryoPage struct {
	Temperatures listView
	Pressures    listView
	Cryo         cryoView
}

// CryoPage renders the cryogenics page.
func CryoPage(s state.Snapshot) (string, error) {
	return execute("cryo_page", cryoPage{
		Temperatures: listView{Readings: temperatureReadings(s), UpdatedAt: stamp(s.TemperaturesAt)},
		Pressures:    listView{Readings: pressureReadings(s), UpdatedAt: stamp(s.PressuresAt)},
		Cryo:         cryo(s),
	})
}

// InfoPage renders the about page.
func InfoPage(state.Snapshot) (string, error) {
	return execute("info_page", nil)
}

// DataPage renders the data management page.
func DataPage(s state.Snapshot) (string, error) {
	return execute("data_page", table(s))
}
