package protocol

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ExperimentConfig maps instrument parameter names to values. The dashboard
// does not interpret it beyond filling and reading the form.
type ExperimentConfig map[string]float64

// FieldKind controls how a config field is rendered and parsed.
type FieldKind int

const (
	FieldFloat FieldKind = iota
	FieldInt
	FieldChoice
)

// ConfigField describes one named input of the configuration form.
type ConfigField struct {
	Name    string
	Label   string
	Group   string
	Kind    FieldKind
	Options []float64
}

// SR830Sensitivities are the selectable lock-in sensitivities in volts.
var SR830Sensitivities = []float64{
	2e-9, 5e-9, 10e-9, 20e-9, 50e-9, 100e-9, 200e-9, 500e-9,
	1e-6, 2e-6, 5e-6, 10e-6, 20e-6, 50e-6, 100e-6, 200e-6, 500e-6,
	1e-3, 2e-3, 5e-3, 10e-3, 20e-3, 50e-3, 100e-3, 200e-3, 500e-3, 1,
}

const (
	GroupLockIn    = "Lock-in amplifier (SR830)"
	GroupSignalGen = "Signal generator (N9310A)"
	GroupMagnet    = "Cryogenics magnet"
	GroupScope     = "Oscilloscope (Analog Discovery 2)"
	GroupData      = "Data collection"
)

// ConfigFields is the ordered set of form inputs. Rendering and parsing both
// walk this list so every field appears exactly once in each.
var ConfigFields = []ConfigField{
	{Name: "sr830_sensitivity", Label: "Sensitivity [V]", Group: GroupLockIn, Kind: FieldChoice, Options: SR830Sensitivities},
	{Name: "sr830_frequency", Label: "Frequency [Hz]", Group: GroupLockIn, Kind: FieldFloat},
	{Name: "sr830_buffersize", Label: "Buffer size", Group: GroupLockIn, Kind: FieldInt},
	{Name: "n9310a_min_frequency", Label: "Minimum frequency [Hz]", Group: GroupSignalGen, Kind: FieldFloat},
	{Name: "n9310a_max_frequency", Label: "Maximum frequency [Hz]", Group: GroupSignalGen, Kind: FieldFloat},
	{Name: "n9310a_min_amplitude", Label: "Minimum amplitude [V]", Group: GroupSignalGen, Kind: FieldFloat},
	{Name: "n9310a_max_amplitude", Label: "Maximum amplitude [V]", Group: GroupSignalGen, Kind: FieldFloat},
	{Name: "n9310a_sweep_steps", Label: "Number of sweep points", Group: GroupSignalGen, Kind: FieldInt},
	{Name: "magnet_min_field", Label: "Minimum field strength [T]", Group: GroupMagnet, Kind: FieldFloat},
	{Name: "magnet_max_field", Label: "Maximum field strength [T]", Group: GroupMagnet, Kind: FieldFloat},
	{Name: "magnet_sweep_steps", Label: "Number of sweep points", Group: GroupMagnet, Kind: FieldInt},
	{Name: "oscope_resistor", Label: "Resistor value [Ohm]", Group: GroupScope, Kind: FieldFloat},
	{Name: "data_wait_before_measuring", Label: "Delay before measuring [s]", Group: GroupData, Kind: FieldFloat},
	{Name: "data_points_per_measurement", Label: "Points per measurement", Group: GroupData, Kind: FieldInt},
}

// DefaultExperimentConfig is what the server hands out before any experiment exists.
func DefaultExperimentConfig() ExperimentConfig {
	return ExperimentConfig{
		"sr830_sensitivity":           1e-6,
		"sr830_frequency":             1000,
		"sr830_buffersize":            256,
		"n9310a_min_frequency":        1000,
		"n9310a_max_frequency":        1000,
		"n9310a_min_amplitude":        0.5,
		"n9310a_max_amplitude":        0.5,
		"n9310a_sweep_steps":          1,
		"magnet_min_field":            5,
		"magnet_max_field":            6,
		"magnet_sweep_steps":          10,
		"oscope_resistor":             1,
		"data_wait_before_measuring":  1,
		"data_points_per_measurement": 10,
	}
}

// Clone returns an independent copy.
func (c ExperimentConfig) Clone() ExperimentConfig {
	if c == nil {
		return nil
	}
	out := make(ExperimentConfig, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// ErrMissingField is returned when a registered field is absent from a form.
var ErrMissingField = errors.New("missing config field")

// ParseConfigForm builds the set_config payload from submitted form values.
// Each registered field is read exactly once; unregistered inputs are ignored.
func ParseConfigForm(values url.Values) (ExperimentConfig, error) {
	out := make(ExperimentConfig, len(ConfigFields))
	var errs []error
	for _, f := range ConfigFields {
		raw, ok := values[f.Name]
		if !ok || len(raw) == 0 {
			errs = append(errs, fmt.Errorf("%w: %s", ErrMissingField, f.Name))
			continue
		}
		v, err := parseField(f, raw[0])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out[f.Name] = v
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func parseField(f ConfigField, raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if f.Kind == FieldInt {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return 0, fmt.Errorf("%s: expected an integer, got %q", f.Name, raw)
		}
		return float64(n), nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: expected a number, got %q", f.Name, raw)
	}
	return v, nil
}

// FormatValue renders a config value the way the form input expects it.
func (f ConfigField) FormatValue(v float64) string {
	if f.Kind == FieldInt {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
