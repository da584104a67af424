// Package protocol defines the versioned message schema exchanged with the
// instrument server. Every event travels inside an Envelope; the Kind constants
// name what the envelope carries and map onto the server's wire names.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Version is the schema version written into every envelope.
const Version = 1

var (
	ErrUnknownEvent       = errors.New("unknown event")
	ErrUnsupportedVersion = errors.New("unsupported schema version")
	ErrMalformed          = errors.New("malformed envelope")
)

// Kind identifies a message in either direction.
type Kind int

const (
	KindUnknown Kind = iota

	// inbound, server to dashboard
	KindConnectionCount
	KindTemperatures
	KindPressures
	KindDCField
	KindACField
	KindPointsTaken
	KindPointsTotal
	KindRMS
	KindMagnetTrace
	KindTemperatureTrace
	KindPressureTrace
	KindLatestConfig
	KindConfigSaved
	KindCryoStatus
	KindExperimentList
	KindIdentityRequest

	// outbound, dashboard to server
	KindGetTemperatures
	KindGetDCField
	KindGetACField
	KindGetPointsTaken
	KindGetPointsTotal
	KindGetClientCount
	KindGetRMS
	KindGetMagnetTrace
	KindGetTemperatureTrace
	KindGetPressureTrace
	KindGetLatestConfig
	KindSetConfig
	KindBeginCooldown
	KindGetCryoStatus
	KindGetExperimentList
	KindIdentity
)

var wireNames = map[Kind]string{
	KindConnectionCount:  "number_of_clients",
	KindTemperatures:     "b_temperatures",
	KindPressures:        "b_pressures",
	KindDCField:          "b_dc_field",
	KindACField:          "b_ac_field",
	KindPointsTaken:      "b_n_points_taken",
	KindPointsTotal:      "b_n_points_total",
	KindRMS:              "b_rms",
	KindMagnetTrace:      "b_magnet_trace",
	KindTemperatureTrace: "b_temperature_trace",
	KindPressureTrace:    "b_pressure_trace",
	KindLatestConfig:     "b_latest_experiment_config",
	KindConfigSaved:      "b_experiment_configuration_saved",
	KindCryoStatus:       "b_cryo_status",
	KindExperimentList:   "b_experiment_list",
	KindIdentityRequest:  "idn",

	KindGetTemperatures:     "b_get_temperatures",
	KindGetDCField:          "b_get_dc_field",
	KindGetACField:          "b_get_ac_field",
	KindGetPointsTaken:      "b_get_n_points_taken",
	KindGetPointsTotal:      "b_get_n_points_total",
	KindGetClientCount:      "get_number_of_clients",
	KindGetRMS:              "b_get_rms",
	KindGetMagnetTrace:      "b_get_magnet_trace",
	KindGetTemperatureTrace: "b_get_temperature_trace",
	KindGetPressureTrace:    "b_get_pressure_trace",
	KindGetLatestConfig:     "b_get_latest_experiment_config",
	KindSetConfig:           "b_set_experiment_config",
	KindBeginCooldown:       "b_begin_cooldown",
	KindGetCryoStatus:       "b_get_cryo_status",
	KindGetExperimentList:   "b_get_experiment_list",
	KindIdentity:            "idn",
}

var (
	inboundByName  = map[string]Kind{}
	outboundByName = map[string]Kind{}
)

func init() {
	for k, name := range wireNames {
		if k.Inbound() {
			inboundByName[name] = k
		} else {
			outboundByName[name] = k
		}
	}
}

// Inbound reports whether the kind flows from the server to the dashboard.
func (k Kind) Inbound() bool {
	return k >= KindConnectionCount && k <= KindIdentityRequest
}

// WireName is the event name used on the connection.
func (k Kind) WireName() string {
	return wireNames[k]
}

func (k Kind) String() string {
	if name, ok := wireNames[k]; ok {
		return name
	}
	return "unknown"
}

// Envelope is the framing of every message on the upstream connection.
type Envelope struct {
	V     int             `json:"v"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Message is a decoded envelope whose name resolved to a Kind.
type Message struct {
	Kind Kind
	Data json.RawMessage
}

// Encode wraps payload into a versioned envelope for kind.
func Encode(kind Kind, payload any) ([]byte, error) {
	name := kind.WireName()
	if name == "" {
		return nil, fmt.Errorf("encode kind %d: %w", kind, ErrUnknownEvent)
	}
	env := Envelope{V: Version, Event: name}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", name, err)
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

// DecodeInbound parses a frame received from the server.
func DecodeInbound(frame []byte) (Message, error) {
	return decode(frame, inboundByName)
}

// DecodeOutbound parses a frame sent by a dashboard. The simulator uses it.
func DecodeOutbound(frame []byte) (Message, error) {
	return decode(frame, outboundByName)
}

func decode(frame []byte, names map[string]Kind) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.V != Version {
		return Message{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, env.V)
	}
	kind, ok := names[env.Event]
	if !ok {
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
	return Message{Kind: kind, Data: env.Data}, nil
}

// Into unmarshals the message payload into v. A missing payload leaves v untouched.
func (m Message) Into(v any) error {
	if len(m.Data) == 0 || string(m.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Kind, err)
	}
	return nil
}
