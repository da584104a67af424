// Package simulator is a stand-in instrument server. It speaks the dashboard
// protocol over a websocket and answers every request with mocked readings,
// so the dashboard can be developed and tested without the cryostat.
package simulator

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"cryo-dashboard/internal/protocol"
)

const listPageSize = 10

// Options configures a Server.
type Options struct {
	Probes   []string
	Channels []string
	Logger   zerolog.Logger
	Seed     uint64
	// SkipIdentity disables the identity request sent to new connections.
	SkipIdentity bool
}

// Server is an http.Handler that upgrades to the instrument protocol.
type Server struct {
	opts     Options
	upgrader websocket.Upgrader

	randMu sync.Mutex
	rng    *rand.Rand

	mu          sync.Mutex
	peers       map[*peer]struct{}
	identities  []string
	requests    map[protocol.Kind]int
	config      protocol.ExperimentConfig
	experiments []protocol.ExperimentRow
	cooling     bool
	ack         string
	pointsTaken int
	pointsTotal int
}

type peer struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (p *peer) send(kind protocol.Kind, payload any) error {
	frame, err := protocol.Encode(kind, payload)
	if err != nil {
		return err
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return p.conn.WriteMessage(websocket.TextMessage, frame)
}

// New creates a simulator holding the default experiment configuration.
func New(opts Options) *Server {
	if len(opts.Probes) == 0 {
		opts.Probes = []string{"t_still", "t_1", "t_2", "t_3", "t_4", "t_5", "t_6"}
	}
	if len(opts.Channels) == 0 {
		opts.Channels = []string{"p_1", "p_2", "p_3", "p_4", "p_5", "p_6"}
	}
	seed := opts.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Server{
		opts:        opts,
		rng:         rand.New(rand.NewPCG(seed, seed>>1|1)),
		peers:       make(map[*peer]struct{}),
		requests:    make(map[protocol.Kind]int),
		config:      protocol.DefaultExperimentConfig(),
		ack:         "idle",
		pointsTaken: 21,
		pointsTotal: 210,
	}
}

// ServeHTTP upgrades the request and serves one dashboard connection.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.opts.Logger.Warn().Err(err).Msg("simulator upgrade failed")
		return
	}
	p := &peer{conn: conn}
	s.mu.Lock()
	s.peers[p] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.peers, p)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	if !s.opts.SkipIdentity {
		if err := p.send(protocol.KindIdentityRequest, nil); err != nil {
			return
		}
	}
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := protocol.DecodeOutbound(frame)
		if err != nil {
			s.opts.Logger.Warn().Err(err).Msg("simulator dropping frame")
			continue
		}
		if err := s.handle(p, msg); err != nil {
			s.opts.Logger.Warn().Err(err).Str("event", msg.Kind.String()).Msg("simulator reply failed")
			return
		}
	}
}

func (s *Server) handle(p *peer, msg protocol.Message) error {
	s.mu.Lock()
	s.requests[msg.Kind]++
	s.mu.Unlock()

	switch msg.Kind {
	case protocol.KindIdentity:
		var id string
		if err := msg.Into(&id); err != nil {
			return err
		}
		s.mu.Lock()
		s.identities = append(s.identities, id)
		s.mu.Unlock()
		return nil
	case protocol.KindGetTemperatures:
		return p.send(protocol.KindTemperatures, s.Temperatures())
	case protocol.KindGetDCField:
		return p.send(protocol.KindDCField, round(math.Abs(s.normal(8, 0.2)), 4))
	case protocol.KindGetACField:
		return p.send(protocol.KindACField, round(s.normal(0, 0.5), 4))
	case protocol.KindGetRMS:
		return p.send(protocol.KindRMS, round(math.Abs(s.normal(0.545535, 1)), 5))
	case protocol.KindGetPointsTaken:
		s.mu.Lock()
		n := s.pointsTaken
		s.mu.Unlock()
		return p.send(protocol.KindPointsTaken, n)
	case protocol.KindGetPointsTotal:
		s.mu.Lock()
		n := s.pointsTotal
		s.mu.Unlock()
		return p.send(protocol.KindPointsTotal, n)
	case protocol.KindGetClientCount:
		return p.send(protocol.KindConnectionCount, s.ClientCount())
	case protocol.KindGetMagnetTrace:
		return p.send(protocol.KindMagnetTrace, s.magnetTrace())
	case protocol.KindGetTemperatureTrace:
		return p.send(protocol.KindTemperatureTrace, s.trace(s.opts.Probes, s.temperatureBase))
	case protocol.KindGetPressureTrace:
		return p.send(protocol.KindPressureTrace, s.trace(s.opts.Channels, s.pressureBase))
	case protocol.KindGetLatestConfig:
		s.mu.Lock()
		cfg := s.config.Clone()
		s.mu.Unlock()
		return p.send(protocol.KindLatestConfig, cfg)
	case protocol.KindSetConfig:
		return s.setConfig(p, msg)
	case protocol.KindBeginCooldown:
		s.mu.Lock()
		s.cooling = true
		s.ack = "cooldown started"
		s.mu.Unlock()
		return p.send(protocol.KindCryoStatus, s.CryoStatus())
	case protocol.KindGetCryoStatus:
		return p.send(protocol.KindCryoStatus, s.CryoStatus())
	case protocol.KindGetExperimentList:
		req := protocol.ExperimentListRequest{Page: 1}
		if err := msg.Into(&req); err != nil {
			return err
		}
		return p.send(protocol.KindExperimentList, s.ExperimentPage(req.Page))
	default:
		return fmt.Errorf("unhandled event %s", msg.Kind)
	}
}

// setConfig stores the new configuration as a fresh experiment, pushes it to
// every connected dashboard and acknowledges the sender.
func (s *Server) setConfig(p *peer, msg protocol.Message) error {
	var cfg protocol.ExperimentConfig
	if err := msg.Into(&cfg); err != nil {
		return err
	}
	s.mu.Lock()
	s.config = cfg.Clone()
	s.pointsTaken = 0
	s.pointsTotal = pointsFor(cfg)
	s.experiments = append(s.experiments, protocol.ExperimentRow{
		ID:          int64(len(s.experiments) + 1),
		Created:     time.Now().UTC().Truncate(time.Second),
		PointsTotal: s.pointsTotal,
		Config:      cfg.Clone(),
	})
	s.mu.Unlock()

	s.Broadcast(protocol.KindLatestConfig, cfg)
	return p.send(protocol.KindConfigSaved, nil)
}

func pointsFor(cfg protocol.ExperimentConfig) int {
	steps := cfg["n9310a_sweep_steps"] * cfg["magnet_sweep_steps"] * cfg["data_points_per_measurement"]
	if steps < 1 {
		return 0
	}
	return int(steps)
}

// Broadcast sends one event to every connected dashboard.
func (s *Server) Broadcast(kind protocol.Kind, payload any) {
	s.mu.Lock()
	peers := make([]*peer, 0, len(s.peers))
	for p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()
	for _, p := range peers {
		if err := p.send(kind, payload); err != nil {
			s.opts.Logger.Debug().Err(err).Msg("simulator broadcast failed")
		}
	}
}

// Stream pushes unsolicited temperature and pressure readings at every tick
// until ctx ends, as the real server does while recording.
func (s *Server) Stream(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Broadcast(protocol.KindTemperatures, s.Temperatures())
			s.Broadcast(protocol.KindPressures, s.Pressures())
		}
	}
}

// Temperatures is one mocked reading of every probe.
func (s *Server) Temperatures() protocol.Snapshot {
	return s.reading(s.opts.Probes, s.temperatureBase)
}

// Pressures is one mocked reading of every gauge channel.
func (s *Server) Pressures() protocol.Snapshot {
	return s.reading(s.opts.Channels, s.pressureBase)
}

func (s *Server) reading(labels []string, sample func(int) float64) protocol.Snapshot {
	snap := protocol.Snapshot{
		Timestamp: float64(time.Now().UnixMilli()) / 1000,
		Values:    make(map[string]float64, len(labels)),
	}
	for i, l := range labels {
		snap.Values[l] = round(sample(i), 4)
	}
	return snap
}

// temperatureBase follows the mocked probe means of 2.2212 K, 3.3313 K and so on.
func (s *Server) temperatureBase(i int) float64 {
	return math.Abs(s.normal(2.2212+1.1101*float64(i), 1))
}

func (s *Server) pressureBase(i int) float64 {
	return math.Abs(s.normal(math.Pow(10, -float64(i+1)), math.Pow(10, -float64(i+2))))
}

func (s *Server) trace(labels []string, sample func(int) float64) map[string][]float64 {
	const n = 20
	now := float64(time.Now().Unix())
	out := make(map[string][]float64, len(labels)+1)
	times := make([]float64, n)
	for j := range times {
		times[j] = now - float64(n-j)*10.5/n
	}
	out["times"] = times
	for i, l := range labels {
		ys := make([]float64, n)
		for j := range ys {
			ys[j] = sample(i)
		}
		out[l] = ys
	}
	return out
}

func (s *Server) magnetTrace() protocol.MagnetTrace {
	const n = 100
	mt := protocol.MagnetTrace{Times: make([]float64, n), Values: make([]float64, n)}
	for i := 0; i < n; i++ {
		t := float64(i) * 10.5 / n
		mt.Times[i] = t
		mt.Values[i] = s.normal(8, 0.2) + math.Sin(t)
	}
	return mt
}

// CryoStatus reports the gas handling state.
func (s *Server) CryoStatus() protocol.CryoStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := "idle"
	if s.cooling {
		status = "cooling down"
	}
	return protocol.CryoStatus{Status: protocol.Text(status), Ack: protocol.Text(s.ack)}
}

// ExperimentPage returns a 1-indexed page of stored experiments, newest first.
func (s *Server) ExperimentPage(page int) protocol.ExperimentList {
	if page < 1 {
		page = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	list := protocol.ExperimentList{Count: len(s.experiments), Page: page}
	start := (page - 1) * listPageSize
	for i := len(s.experiments) - 1 - start; i >= 0 && len(list.Rows) < listPageSize; i-- {
		row := s.experiments[i]
		row.Config = row.Config.Clone()
		list.Rows = append(list.Rows, row)
	}
	return list
}

// SetExperiments replaces the stored experiment list.
func (s *Server) SetExperiments(rows []protocol.ExperimentRow) {
	s.mu.Lock()
	s.experiments = append([]protocol.ExperimentRow(nil), rows...)
	s.mu.Unlock()
}

// SetPoints overrides the acquisition counters.
func (s *Server) SetPoints(taken, total int) {
	s.mu.Lock()
	s.pointsTaken, s.pointsTotal = taken, total
	s.mu.Unlock()
}

// Config is the currently stored experiment configuration.
func (s *Server) Config() protocol.ExperimentConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config.Clone()
}

// ClientCount is the number of open dashboard connections.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

// Identities lists client identifiers received so far, in order.
func (s *Server) Identities() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.identities...)
}

// Requests counts how often kind was received.
func (s *Server) Requests(kind protocol.Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[kind]
}

// DisconnectAll drops every open connection.
func (s *Server) DisconnectAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for p := range s.peers {
		_ = p.conn.Close()
	}
}

func (s *Server) normal(mean, stddev float64) float64 {
	s.randMu.Lock()
	defer s.randMu.Unlock()
	return mean + stddev*s.rng.NormFloat64()
}

func round(v float64, dec int) float64 {
	p := math.Pow(10, float64(dec))
	return math.Round(v*p) / p
}
