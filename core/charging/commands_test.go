package charging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/smartcharge/core/clock"
	"github.com/kilianp07/smartcharge/core/kv"
)

func TestParseCommand(t *testing.T) {
	cmd, err := ParseCommand("  Window 23:00   05:30 ")
	require.NoError(t, err)
	assert.Equal(t, Command{Name: "window", Args: []string{"23:00", "05:30"}}, cmd)
	assert.Equal(t, "window 23:00 05:30", cmd.String())

	_, err = ParseCommand("   ")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestExecuteSettings(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{Version: "0.9.0"}, nil)
	s := h.ctrl.Settings()

	tests := []struct {
		line  string
		reply string
		check func(t *testing.T)
	}{
		{"target 90", "Target set to 90%", func(t *testing.T) { assert.Equal(t, 90, s.TargetSOC()) }},
		{"window 00:30 04:30", "Cheap window set to 00:30-04:30 (4h)", func(t *testing.T) {
			assert.Equal(t, clock.Window{Start: clock.TimeOfDay{Minute: 30}, End: clock.TimeOfDay{Hour: 4, Minute: 30}}, s.Window())
		}},
		{"rates 0.075 0.25", "Rates set: cheap £0.075, standard £0.250 per kWh", func(t *testing.T) {
			assert.InDelta(t, 0.075, s.Tariff().CheapRate, 1e-12)
		}},
		{"charger 7.4", "Charger rate set to 7.40 kW", func(t *testing.T) { assert.InDelta(t, 7.4, s.RateProfile().NameplateKW, 1e-12) }},
		{"readyby 07:15", "Ready by 07:15", func(t *testing.T) { assert.Equal(t, clock.TimeOfDay{Hour: 7, Minute: 15}, s.ReadyBy()) }},
		{"readyby off", "Ready-by disabled", func(t *testing.T) { assert.True(t, s.ReadyBy().IsMidnight()) }},
		{"rate set 1.234", "Measured rate set to 1.23 kW", func(t *testing.T) { assert.Equal(t, "1.23", h.get(KeyMeasuredRate)) }},
		{"rate measured off", "Use measured rate: no", func(t *testing.T) { assert.False(t, s.RateProfile().UseMeasured) }},
		{"rate clear", "Measured rate cleared", func(t *testing.T) { assert.Zero(t, s.RateProfile().MeasuredKW) }},
		{"battery 52", "Battery capacity set to 52.0 kWh", func(t *testing.T) {
			c, _ := s.BatteryOverrides()
			assert.Equal(t, 52.0, c)
		}},
		{"battery auto", "Battery capacity from vehicle", nil},
		{"soh 91", "SOH set to 91%", func(t *testing.T) {
			_, soh := s.BatteryOverrides()
			assert.Equal(t, 91.0, soh)
		}},
		{"disable", "Scheduled charging disabled", func(t *testing.T) { assert.False(t, s.Enabled()) }},
		{"enable", "Scheduled charging enabled", func(t *testing.T) { assert.True(t, s.Enabled()) }},
		{"version", "smartcharge 0.9.0", nil},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			cmd, err := ParseCommand(tt.line)
			require.NoError(t, err)
			reply, err := h.ctrl.Execute(ctx, cmd)
			require.NoError(t, err)
			assert.Equal(t, tt.reply, reply)
			if tt.check != nil {
				tt.check(t)
			}
		})
	}
}

func TestExecuteRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{}, nil)

	invalid := []string{
		"target 10", "target 101", "target abc", "target",
		"window 25:00 05:00", "window 23:00",
		"rates -1 0.3", "rates x y",
		"charger 0", "charger fast",
		"readyby 7pm",
		"rate set 40", "rate set 0", "rate measured maybe", "rate",
		"battery -5", "soh 120", "soh none",
	}
	for _, line := range invalid {
		cmd, err := ParseCommand(line)
		require.NoError(t, err)
		_, err = h.ctrl.Execute(ctx, cmd)
		assert.ErrorIs(t, err, ErrInvalidArgument, line)
	}

	for _, line := range []string{"charge", "rate reset"} {
		cmd, _ := ParseCommand(line)
		_, err := h.ctrl.Execute(ctx, cmd)
		assert.ErrorIs(t, err, ErrUnknownCommand, line)
	}

	// Nothing reached the store.
	assert.Equal(t, 80, h.ctrl.Settings().TargetSOC())
	assert.Equal(t, DefaultDefaults().Window, h.ctrl.Settings().Window())
}

func TestTargetArmsNativeAutoStop(t *testing.T) {
	ch := &autoStopCharger{}
	ctrl := New(&fakeTelemetry{}, ch, nil, kv.NewMemoryStore(), Options{NativeAutoStop: true})
	_, err := ctrl.Execute(context.Background(), Command{Name: "target", Args: []string{"70"}})
	require.NoError(t, err)
	assert.Equal(t, []int{70}, ch.targets)
}

func TestStatusCommand(t *testing.T) {
	h := newHarness(t, Options{}, nil)
	h.tel.plugged, h.tel.soc = true, 60
	reply, err := h.ctrl.Execute(context.Background(), Command{Name: "status"})
	require.NoError(t, err)
	assert.Contains(t, reply, "State: idle")
	assert.Contains(t, reply, "Cheap window: 23:30-05:30")
	assert.Contains(t, reply, "Est. cost: £0.56 (all cheap rate)")
}
