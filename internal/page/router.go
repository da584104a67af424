// Package page maps each dashboard page to its title, renderer, the requests
// that refresh it and the DOM targets it contains.
package page

import (
	"errors"
	"fmt"

	"cryo-dashboard/internal/protocol"
	"cryo-dashboard/internal/render"
	"cryo-dashboard/internal/state"
)

// Requester is the set of upstream requests a page refresh may send.
// transport.Client implements it.
type Requester interface {
	RequestTemperatures() error
	RequestDCField() error
	RequestACField() error
	RequestPointsTaken() error
	RequestPointsTotal() error
	RequestClientCount() error
	RequestRMS() error
	RequestMagnetTrace() error
	RequestTemperatureTrace() error
	RequestPressureTrace() error
	RequestLatestConfig() error
	RequestCryoStatus() error
	RequestExperimentList(page int) error
}

// Route describes one page.
type Route struct {
	Page    state.Page
	Title   string
	Render  func(state.Snapshot) (string, error)
	Refresh []protocol.Kind
	Targets []string
	Plots   []string
}

// Has reports whether target is rendered by this page.
func (r Route) Has(target string) bool {
	for _, t := range r.Targets {
		if t == target {
			return true
		}
	}
	for _, t := range r.Plots {
		if t == target {
			return true
		}
	}
	return false
}

// StatusTree is requested by every page that shows live readings.
var StatusTree = []protocol.Kind{
	protocol.KindGetTemperatures,
	protocol.KindGetACField,
	protocol.KindGetDCField,
	protocol.KindGetClientCount,
	protocol.KindGetPointsTaken,
	protocol.KindGetPointsTotal,
}

// Tick is requested by the periodic timer regardless of the open page.
var Tick = []protocol.Kind{
	protocol.KindGetClientCount,
	protocol.KindGetPointsTaken,
	protocol.KindGetPointsTotal,
}

// ShellTargets are always on screen, whatever page is open.
var ShellTargets = []string{render.TargetConnections, render.TargetHealth, render.TargetNotice}

func with(base []protocol.Kind, extra ...protocol.Kind) []protocol.Kind {
	out := make([]protocol.Kind, 0, len(base)+len(extra))
	out = append(out, base...)
	return append(out, extra...)
}

var routes = map[state.Page]Route{
	state.PageStatus: {
		Page:    state.PageStatus,
		Title:   "Experiment status",
		Render:  render.StatusPage,
		Refresh: with(StatusTree, protocol.KindGetMagnetTrace, protocol.KindGetTemperatureTrace),
		Targets: []string{render.TargetTemperatureList, render.TargetMagnetList, render.TargetCounters},
		Plots:   []string{render.TargetTemperaturePlot, render.TargetMagnetPlot},
	},
	state.PageConfig: {
		Page:    state.PageConfig,
		Title:   "Experiment configuration",
		Render:  render.ConfigPage,
		Refresh: with(StatusTree, protocol.KindGetLatestConfig),
		Targets: []string{render.TargetConfigForm},
	},
	state.PageCryo: {
		Page:    state.PageCryo,
		Title:   "Cryogenics configuration",
		Render:  render.CryoPage,
		Refresh: with(StatusTree, protocol.KindGetTemperatureTrace, protocol.KindGetPressureTrace, protocol.KindGetCryoStatus),
		Targets: []string{render.TargetTemperatureList, render.TargetPressureList, render.TargetCryoStatus, render.TargetCryoAck},
		Plots:   []string{render.TargetTemperaturePlot, render.TargetPressurePlot},
	},
	state.PageInfo: {
		Page:   state.PageInfo,
		Title:  "About this page",
		Render: render.InfoPage,
	},
	state.PageDataManagement: {
		Page:    state.PageDataManagement,
		Title:   "Data management",
		Render:  render.DataPage,
		Refresh: []protocol.Kind{protocol.KindGetExperimentList},
		Targets: []string{render.TargetDataTable},
	},
}

// Lookup returns the route of p.
func Lookup(p state.Page) (Route, bool) {
	r, ok := routes[p]
	return r, ok
}

// Request sends the upstream request for kind. The experiment list is always
// requested from its first page.
func Request(r Requester, kind protocol.Kind) error {
	switch kind {
	case protocol.KindGetTemperatures:
		return r.RequestTemperatures()
	case protocol.KindGetDCField:
		return r.RequestDCField()
	case protocol.KindGetACField:
		return r.RequestACField()
	case protocol.KindGetPointsTaken:
		return r.RequestPointsTaken()
	case protocol.KindGetPointsTotal:
		return r.RequestPointsTotal()
	case protocol.KindGetClientCount:
		return r.RequestClientCount()
	case protocol.KindGetRMS:
		return r.RequestRMS()
	case protocol.KindGetMagnetTrace:
		return r.RequestMagnetTrace()
	case protocol.KindGetTemperatureTrace:
		return r.RequestTemperatureTrace()
	case protocol.KindGetPressureTrace:
		return r.RequestPressureTrace()
	case protocol.KindGetLatestConfig:
		return r.RequestLatestConfig()
	case protocol.KindGetCryoStatus:
		return r.RequestCryoStatus()
	case protocol.KindGetExperimentList:
		return r.RequestExperimentList(1)
	default:
		return fmt.Errorf("no refresh request for %s", kind)
	}
}

// RequestAll sends every request in kinds, in order, and joins the failures.
func RequestAll(r Requester, kinds []protocol.Kind) error {
	var errs []error
	for _, k := range kinds {
		if err := Request(r, k); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", k, err))
		}
	}
	return errors.Join(errs...)
}
