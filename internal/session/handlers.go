package session

import (
	"errors"

	"cryo-dashboard/internal/protocol"
	"cryo-dashboard/internal/render"
)

var errNotNumber = errors.New("payload is not a number")

type handler func(s *Session, msg protocol.Message) error

var handlers = map[protocol.Kind]handler{
	protocol.KindConnectionCount:  (*Session).onConnectionCount,
	protocol.KindTemperatures:     (*Session).onTemperatures,
	protocol.KindPressures:        (*Session).onPressures,
	protocol.KindDCField:          (*Session).onDCField,
	protocol.KindACField:          (*Session).onACField,
	protocol.KindRMS:              (*Session).onRMS,
	protocol.KindPointsTaken:      (*Session).onPointsTaken,
	protocol.KindPointsTotal:      (*Session).onPointsTotal,
	protocol.KindMagnetTrace:      (*Session).onMagnetTrace,
	protocol.KindTemperatureTrace: (*Session).onTemperatureTrace,
	protocol.KindPressureTrace:    (*Session).onPressureTrace,
	protocol.KindLatestConfig:     (*Session).onLatestConfig,
	protocol.KindConfigSaved:      (*Session).onConfigSaved,
	protocol.KindCryoStatus:       (*Session).onCryoStatus,
	protocol.KindExperimentList:   (*Session).onExperimentList,
}

// handle applies one upstream message. Payloads that fail to decode are
// logged and dropped; only a failed browser write ends the session.
func (s *Session) handle(msg protocol.Message) error {
	h, ok := handlers[msg.Kind]
	if !ok {
		s.log.Debug().Str("event", msg.Kind.String()).Msg("no handler for event")
		return nil
	}
	return h(s, msg)
}

func (s *Session) dropped(msg protocol.Message, err error) error {
	s.log.Warn().Err(err).Str("event", msg.Kind.String()).Msg("dropping malformed payload")
	return nil
}

func (s *Session) onConnectionCount(msg protocol.Message) error {
	n, ok := protocol.DecodeInt(msg)
	if !ok {
		return s.dropped(msg, errNotNumber)
	}
	s.store.SetConnections(n)
	return s.patch(render.TargetConnections, render.Connections)
}

func (s *Session) onTemperatures(msg protocol.Message) error {
	var snap protocol.Snapshot
	if err := msg.Into(&snap); err != nil {
		return s.dropped(msg, err)
	}
	if s.opts.History != nil {
		s.opts.History.Record(snap)
	}
	if s.store.SetTemperatures(snap) {
		if err := s.patch(render.TargetTemperatureList, render.TemperatureList); err != nil {
			return err
		}
		return s.plot(render.TargetTemperaturePlot)
	}
	if s.ctrl.Present(render.TargetTemperatureList) {
		return s.refresh()
	}
	return nil
}

func (s *Session) onPressures(msg protocol.Message) error {
	var snap protocol.Snapshot
	if err := msg.Into(&snap); err != nil {
		return s.dropped(msg, err)
	}
	appended := s.store.SetPressures(snap)
	if err := s.patch(render.TargetPressureList, render.PressureList); err != nil {
		return err
	}
	if appended {
		return s.plot(render.TargetPressurePlot)
	}
	return nil
}

func (s *Session) onDCField(msg protocol.Message) error {
	v, ok := protocol.DecodeFloat(msg)
	if !ok {
		return s.dropped(msg, errNotNumber)
	}
	s.store.SetDCField(v)
	return s.patch(render.TargetMagnetList, render.MagnetList)
}

func (s *Session) onACField(msg protocol.Message) error {
	v, ok := protocol.DecodeFloat(msg)
	if !ok {
		return s.dropped(msg, errNotNumber)
	}
	s.store.SetACField(v)
	return s.patch(render.TargetMagnetList, render.MagnetList)
}

func (s *Session) onRMS(msg protocol.Message) error {
	v, ok := protocol.DecodeFloat(msg)
	if !ok {
		return s.dropped(msg, errNotNumber)
	}
	s.store.SetRMS(v)
	return s.patch(render.TargetMagnetList, render.MagnetList)
}

func (s *Session) onPointsTaken(msg protocol.Message) error {
	n, ok := protocol.DecodeInt(msg)
	if !ok {
		return s.dropped(msg, errNotNumber)
	}
	s.store.SetPointsTaken(n)
	return s.patch(render.TargetCounters, render.Counters)
}

func (s *Session) onPointsTotal(msg protocol.Message) error {
	n, ok := protocol.DecodeInt(msg)
	if !ok {
		return s.dropped(msg, errNotNumber)
	}
	s.store.SetPointsTotal(n)
	return s.patch(render.TargetCounters, render.Counters)
}

func (s *Session) onMagnetTrace(msg protocol.Message) error {
	var mt protocol.MagnetTrace
	if err := msg.Into(&mt); err != nil {
		return s.dropped(msg, err)
	}
	s.store.SetMagnetTrace(mt)
	return s.plot(render.TargetMagnetPlot)
}

// onTemperatureTrace seeds the temperature chart. Once seeded, later traces
// only redraw what is already there.
func (s *Session) onTemperatureTrace(msg protocol.Message) error {
	var trace protocol.Trace
	if err := msg.Into(&trace); err != nil {
		return s.dropped(msg, err)
	}
	if !s.store.InitTemperatureTrace(trace) {
		if err := s.patch(render.TargetTemperatureList, render.TemperatureList); err != nil {
			return err
		}
	}
	return s.plot(render.TargetTemperaturePlot)
}

func (s *Session) onPressureTrace(msg protocol.Message) error {
	var trace protocol.Trace
	if err := msg.Into(&trace); err != nil {
		return s.dropped(msg, err)
	}
	if !s.store.InitPressureTrace(trace) {
		if err := s.patch(render.TargetPressureList, render.PressureList); err != nil {
			return err
		}
	}
	return s.plot(render.TargetPressurePlot)
}

func (s *Session) onLatestConfig(msg protocol.Message) error {
	var cfg protocol.ExperimentConfig
	if err := msg.Into(&cfg); err != nil {
		return s.dropped(msg, err)
	}
	s.store.SetConfig(cfg)
	return s.patch(render.TargetConfigForm, render.ConfigForm)
}

func (s *Session) onConfigSaved(protocol.Message) error {
	return s.notice("info", "Experiment configuration saved.")
}

func (s *Session) onCryoStatus(msg protocol.Message) error {
	var cs protocol.CryoStatus
	if err := msg.Into(&cs); err != nil {
		return s.dropped(msg, err)
	}
	s.store.SetCryoStatus(cs)
	if err := s.patch(render.TargetCryoStatus, render.CryoStatus); err != nil {
		return err
	}
	return s.patch(render.TargetCryoAck, render.CryoAck)
}

func (s *Session) onExperimentList(msg protocol.Message) error {
	var list protocol.ExperimentList
	if err := msg.Into(&list); err != nil {
		return s.dropped(msg, err)
	}
	if list.Page < 1 {
		list.Page = s.store.ListPage()
	}
	s.store.SetExperiments(list)
	return s.patch(render.TargetDataTable, render.DataTable)
}
