// Package session runs the event loop behind one browser tab. Upstream
// events, browser actions, health changes and the refresh timer are handled
// one at a time on a single goroutine that owns the tab's state.
package session

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"cryo-dashboard/internal/page"
	"cryo-dashboard/internal/plot"
	"cryo-dashboard/internal/protocol"
	"cryo-dashboard/internal/render"
	"cryo-dashboard/internal/state"
	"cryo-dashboard/internal/transport"
)

// ErrClosed is returned by Submit once the session loop has stopped.
var ErrClosed = errors.New("session closed")

// Upstream is the instrument server connection. transport.Client implements it.
type Upstream interface {
	page.Requester
	SaveConfig(cfg protocol.ExperimentConfig) error
	BeginCooldown() error
	Events() <-chan protocol.Message
	Health() <-chan transport.Health
	Run(ctx context.Context) error
}

// Sink receives frames bound for the browser.
type Sink interface {
	WriteFrame(f Frame) error
}

// Frame types sent to the browser.
const (
	FramePage   = "page"
	FramePatch  = "patch"
	FramePlot   = "plot"
	FrameHealth = "health"
	FrameNotice = "notice"
)

// Frame is one instruction to the browser shell.
type Frame struct {
	Type   string       `json:"type"`
	Page   string       `json:"page,omitempty"`
	Title  string       `json:"title,omitempty"`
	Target string       `json:"target,omitempty"`
	HTML   string       `json:"html,omitempty"`
	Plot   *plot.Update `json:"plot,omitempty"`
	Health string       `json:"health,omitempty"`
}

// Browser actions.
const (
	ActionNavigate        = "navigate"
	ActionSaveConfig      = "save_config"
	ActionBeginCooldown   = "begin_cooldown"
	ActionCryoStatus      = "cryo_status"
	ActionExperimentsPage = "experiments_page"
)

// Action is a user interaction reported by the browser shell.
type Action struct {
	Name     string            `json:"action"`
	Page     string            `json:"page,omitempty"`
	ListPage int               `json:"list_page,omitempty"`
	Form     map[string]string `json:"form,omitempty"`
}

// Options configures a Session.
type Options struct {
	ID              string
	ClientID        string
	Probes          []string
	Channels        []string
	Window          int
	RefreshInterval time.Duration
	Export          bool
	History         *plot.History
	Logger          zerolog.Logger
}

// Session is the state and event loop of one tab.
type Session struct {
	opts  Options
	up    Upstream
	sink  Sink
	store *state.Store
	ctrl  *page.Controller
	log   zerolog.Logger

	actions chan Action
	done    chan struct{}
}

// New creates a session. Nothing happens until Run.
func New(up Upstream, sink Sink, opts Options) *Session {
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = 5 * time.Second
	}
	store := state.New(state.Options{
		Probes:   opts.Probes,
		Channels: opts.Channels,
		Window:   opts.Window,
		Export:   opts.Export,
	})
	return &Session{
		opts:    opts,
		up:      up,
		sink:    sink,
		store:   store,
		ctrl:    page.NewController(store, up),
		log:     opts.Logger.With().Str("session", opts.ID).Str("client_id", opts.ClientID).Logger(),
		actions: make(chan Action, 16),
		done:    make(chan struct{}),
	}
}

// Submit queues a browser action for the loop.
func (s *Session) Submit(ctx context.Context, a Action) error {
	select {
	case s.actions <- a:
		return nil
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run renders the status page and serves the tab until ctx ends or the
// browser can no longer be written to.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)
	ctx, cancel := context.WithCancel(ctx)

	upDone := make(chan error, 1)
	go func() { upDone <- s.up.Run(ctx) }()
	upstream := (<-chan error)(upDone)
	defer func() {
		cancel()
		if upstream != nil {
			<-upstream
		}
	}()

	if err := s.sendHealth(); err != nil {
		return err
	}
	if err := s.navigate(state.PageStatus, false); err != nil {
		return err
	}

	ticker := time.NewTicker(s.opts.RefreshInterval)
	defer ticker.Stop()

	events := s.up.Events()
	health := s.up.Health()
	for {
		var err error
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			err = s.handle(msg)
		case h, ok := <-health:
			if !ok {
				health = nil
				continue
			}
			err = s.onHealth(h)
		case a := <-s.actions:
			err = s.onAction(a)
		case <-ticker.C:
			s.request(page.Tick)
		case upErr := <-upstream:
			upstream = nil
			s.log.Error().Err(upErr).Msg("upstream connection abandoned")
			err = s.onHealth(transport.HealthDisconnected)
		}
		if err != nil {
			return err
		}
	}
}

func (s *Session) onHealth(h transport.Health) error {
	if s.store.Health() == h {
		return nil
	}
	s.store.SetHealth(h)
	s.log.Info().Str("health", h.String()).Msg("upstream health changed")
	if err := s.sendHealth(); err != nil {
		return err
	}
	if h == transport.HealthConnected {
		s.request(s.ctrl.Current().Refresh)
	}
	return nil
}

func (s *Session) onAction(a Action) error {
	switch a.Name {
	case ActionNavigate:
		p, ok := state.ParsePage(a.Page)
		if !ok {
			s.log.Warn().Str("page", a.Page).Msg("navigation to unknown page")
			return nil
		}
		return s.navigate(p, true)
	case ActionSaveConfig:
		values := make(url.Values, len(a.Form))
		for k, v := range a.Form {
			values.Set(k, v)
		}
		cfg, err := protocol.ParseConfigForm(values)
		if err != nil {
			return s.notice("error", "Configuration not saved: "+err.Error())
		}
		return s.emitted(s.up.SaveConfig(cfg))
	case ActionBeginCooldown:
		return s.emitted(s.up.BeginCooldown())
	case ActionCryoStatus:
		return s.emitted(s.up.RequestCryoStatus())
	case ActionExperimentsPage:
		return s.emitted(s.ctrl.ExperimentsPage(a.ListPage))
	default:
		s.log.Warn().Str("action", a.Name).Msg("unknown browser action")
		return nil
	}
}

// emitted reports a failed user-initiated request in the notice bar.
func (s *Session) emitted(err error) error {
	if err == nil {
		return nil
	}
	s.log.Warn().Err(err).Msg("request not sent")
	if errors.Is(err, transport.ErrNotConnected) {
		return s.notice("warning", "Not connected to the instrument server.")
	}
	return s.notice("error", "Request failed: "+err.Error())
}

func (s *Session) request(kinds []protocol.Kind) {
	if err := page.RequestAll(s.up, kinds); err != nil {
		if errors.Is(err, transport.ErrNotConnected) {
			s.log.Debug().Err(err).Msg("refresh skipped")
			return
		}
		s.log.Warn().Err(err).Msg("refresh failed")
	}
}

func (s *Session) navigate(p state.Page, shouldUpdate bool) error {
	view, err := s.ctrl.Navigate(p, shouldUpdate)
	switch {
	case view.Key == "":
		s.log.Error().Err(err).Str("page", p.String()).Msg("render page")
		return nil
	case err != nil && !errors.Is(err, transport.ErrNotConnected):
		s.log.Warn().Err(err).Str("page", p.String()).Msg("page refresh incomplete")
	}
	if err := s.sink.WriteFrame(Frame{Type: FramePage, Page: view.Key, Title: view.Title, HTML: view.HTML}); err != nil {
		return err
	}
	for _, target := range view.Plots {
		if err := s.plot(target); err != nil {
			return err
		}
	}
	return nil
}

// refresh re-renders the open page without sending any request.
func (s *Session) refresh() error {
	return s.navigate(s.store.Page(), false)
}

func (s *Session) patch(target string, fn func(state.Snapshot) (string, error)) error {
	if !s.ctrl.Present(target) {
		return nil
	}
	html, err := fn(s.store.Snapshot())
	if err != nil {
		s.log.Error().Err(err).Str("target", target).Msg("render fragment")
		return nil
	}
	return s.sink.WriteFrame(Frame{Type: FramePatch, Target: target, HTML: html})
}

func (s *Session) chart(target string) *plot.Chart {
	switch target {
	case render.TargetTemperaturePlot:
		return s.store.TemperatureChart()
	case render.TargetPressurePlot:
		return s.store.PressureChart()
	case render.TargetMagnetPlot:
		return s.store.MagnetChart()
	}
	return nil
}

// plot sends the chart behind target if it is on screen and has data.
func (s *Session) plot(target string) error {
	c := s.chart(target)
	if c == nil || !c.Initialized() || !s.ctrl.Present(target) {
		return nil
	}
	u := c.Update(target)
	return s.sink.WriteFrame(Frame{Type: FramePlot, Target: target, Plot: &u})
}

func (s *Session) sendHealth() error {
	snap := s.store.Snapshot()
	html, err := render.Health(snap)
	if err != nil {
		return err
	}
	return s.sink.WriteFrame(Frame{Type: FrameHealth, Target: render.TargetHealth, Health: snap.Health.String(), HTML: html})
}

func (s *Session) notice(level, text string) error {
	s.store.SetNotice(state.Notice{Level: level, Text: text})
	html, err := render.Notice(s.store.Snapshot())
	if err != nil {
		return err
	}
	return s.sink.WriteFrame(Frame{Type: FrameNotice, Target: render.TargetNotice, HTML: html})
}
