package protocol

import (
	"encoding/json"
	"errors"
	"net/url"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWireNamesAreUniquePerDirection(t *testing.T) {
	in := map[string]Kind{}
	out := map[string]Kind{}
	for k := KindConnectionCount; k <= KindIdentity; k++ {
		name := k.WireName()
		require.NotEmpty(t, name, "kind %d has no wire name", k)
		seen := out
		if k.Inbound() {
			seen = in
		}
		prev, dup := seen[name]
		require.False(t, dup, "%s used by %d and %d", name, prev, k)
		seen[name] = k
	}
}

func TestEncodeDecodeOutbound(t *testing.T) {
	frame, err := Encode(KindGetExperimentList, ExperimentListRequest{Page: 3})
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1,"event":"b_get_experiment_list","data":{"page":3}}`, string(frame))

	msg, err := DecodeOutbound(frame)
	require.NoError(t, err)
	assert.Equal(t, KindGetExperimentList, msg.Kind)

	var req ExperimentListRequest
	require.NoError(t, msg.Into(&req))
	assert.Equal(t, 3, req.Page)
}

func TestEncodeWithoutPayload(t *testing.T) {
	frame, err := Encode(KindGetTemperatures, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1,"event":"b_get_temperatures"}`, string(frame))
}

func TestDecodeInboundErrors(t *testing.T) {
	_, err := DecodeInbound([]byte(`{"v":2,"event":"b_rms","data":1}`))
	assert.True(t, errors.Is(err, ErrUnsupportedVersion))

	_, err = DecodeInbound([]byte(`{"v":1,"event":"b_get_rms"}`))
	assert.True(t, errors.Is(err, ErrUnknownEvent), "outbound names are not valid inbound")

	_, err = DecodeInbound([]byte(`not json`))
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestIdentityNameIsSharedAcrossDirections(t *testing.T) {
	in, err := DecodeInbound([]byte(`{"v":1,"event":"idn"}`))
	require.NoError(t, err)
	assert.Equal(t, KindIdentityRequest, in.Kind)

	out, err := DecodeOutbound([]byte(`{"v":1,"event":"idn","data":"webbrowser_x"}`))
	require.NoError(t, err)
	assert.Equal(t, KindIdentity, out.Kind)
}

func TestSnapshotSkipsNonNumeric(t *testing.T) {
	var s Snapshot
	require.NoError(t, json.Unmarshal([]byte(`{"t_still":1.5,"t_1":null,"t_2":"x","timestamp":1603707641.5}`), &s))
	assert.Equal(t, map[string]float64{"t_still": 1.5}, s.Values)
	assert.Equal(t, 1603707641.5, s.Timestamp)
	assert.Equal(t, int64(1603707641), s.Time().Unix())
}

func TestTraceAcceptsRowsAndColumns(t *testing.T) {
	var rows Trace
	require.NoError(t, json.Unmarshal([]byte(`[{"timestamp":1,"p_1":2},{"timestamp":2,"p_1":3}]`), &rows))

	var cols Trace
	require.NoError(t, json.Unmarshal([]byte(`{"times":[1,2],"p_1":[2,3]}`), &cols))

	if diff := cmp.Diff(rows, cols); diff != "" {
		t.Fatalf("row and column forms differ (-rows +cols):\n%s", diff)
	}
}

func TestMagnetTraceAndText(t *testing.T) {
	msg, err := DecodeInbound([]byte(`{"v":1,"event":"b_magnet_trace","data":{"times":[0,1],"magnet_trace":[8.1,8.2]}}`))
	require.NoError(t, err)
	var mt MagnetTrace
	require.NoError(t, msg.Into(&mt))
	assert.Equal(t, []float64{8.1, 8.2}, mt.Values)

	var cs CryoStatus
	require.NoError(t, json.Unmarshal([]byte(`{"status":4,"ack":"OK"}`), &cs))
	assert.Equal(t, Text("4"), cs.Status)
	assert.Equal(t, Text("OK"), cs.Ack)
}

func TestDecodeScalars(t *testing.T) {
	msg, err := DecodeInbound([]byte(`{"v":1,"event":"b_n_points_taken","data":21}`))
	require.NoError(t, err)
	n, ok := DecodeInt(msg)
	require.True(t, ok)
	assert.Equal(t, 21, n)

	msg, err = DecodeInbound([]byte(`{"v":1,"event":"b_dc_field"}`))
	require.NoError(t, err)
	_, ok = DecodeFloat(msg)
	assert.False(t, ok, "missing payload must not decode")
}

func TestParseConfigFormTakesEveryFieldOnce(t *testing.T) {
	values := url.Values{}
	for _, f := range ConfigFields {
		values.Set(f.Name, f.FormatValue(DefaultExperimentConfig()[f.Name]))
	}
	values.Set("df_auto_cool", "Begin automatic cooldown")

	cfg, err := ParseConfigForm(values)
	require.NoError(t, err)
	require.Len(t, cfg, len(ConfigFields))
	if diff := cmp.Diff(DefaultExperimentConfig(), cfg); diff != "" {
		t.Fatalf("parsed config differs (-want +got):\n%s", diff)
	}
}

func TestParseConfigFormReportsEveryProblem(t *testing.T) {
	values := url.Values{}
	for _, f := range ConfigFields {
		values.Set(f.Name, "1")
	}
	values.Del("oscope_resistor")
	values.Set("sr830_buffersize", "1.5")

	_, err := ParseConfigForm(values)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingField))
	assert.Contains(t, err.Error(), "sr830_buffersize")
}
