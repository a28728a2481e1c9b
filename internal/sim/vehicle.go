// Package sim provides a simulated vehicle and clock for dry runs of the
// charge controller.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/smartcharge/core/charging"
)

// ErrNotPlugged is returned by StartCharge while the vehicle is unplugged.
var ErrNotPlugged = errors.New("sim: vehicle not plugged in")

// Config describes a simulated vehicle.
type Config struct {
	NominalCapacityKWh float64 `json:"nominal_capacity_kwh"`
	StateOfHealth      float64 `json:"soh"`
	SOC                float64 `json:"soc"`
	ChargeRateKW       float64 `json:"charge_rate_kw"`
	// AutoStartOnPlug makes the vehicle start charging by itself when
	// plugged in, as most cars do.
	AutoStartOnPlug bool `json:"auto_start_on_plug"`
}

// Vehicle implements charging.Telemetry, charging.ChargeController and
// charging.AutoStopper.
type Vehicle struct {
	cfg     Config
	battery *Battery

	mu       sync.Mutex
	plugged  bool
	charging bool
	autoStop int
	commands []string
}

// NewVehicle creates an unplugged vehicle.
func NewVehicle(cfg Config) *Vehicle {
	soh := cfg.StateOfHealth
	if soh <= 0 {
		soh = 100
	}
	return &Vehicle{
		cfg: cfg,
		battery: &Battery{
			CapacityKWh:  cfg.NominalCapacityKWh * soh / 100,
			SOC:          cfg.SOC,
			ChargeRateKW: cfg.ChargeRateKW,
		},
	}
}

// PlugIn connects the charger and returns the resulting events.
func (v *Vehicle) PlugIn(now time.Time) []charging.Event {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.plugged {
		return nil
	}
	v.plugged = true
	evs := []charging.Event{{Type: charging.EventPlugIn, Time: now}}
	if v.cfg.AutoStartOnPlug && !v.reachedAutoStop() {
		v.charging = true
		evs = append(evs, charging.Event{Type: charging.EventChargeStart, Time: now})
	}
	return evs
}

// Unplug disconnects the charger.
func (v *Vehicle) Unplug(now time.Time) []charging.Event {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.plugged {
		return nil
	}
	v.plugged, v.charging = false, false
	return []charging.Event{{Type: charging.EventUnplug, Time: now}}
}

// Advance charges for dt and returns a charge-stop event when the vehicle's
// own auto-stop or a full pack ends the charge.
func (v *Vehicle) Advance(now time.Time, dt time.Duration) []charging.Event {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.charging {
		return nil
	}
	v.battery.Charge(dt)
	if v.reachedAutoStop() || v.battery.Level() >= 100 {
		v.charging = false
		return []charging.Event{{Type: charging.EventChargeStop, Time: now}}
	}
	return nil
}

func (v *Vehicle) reachedAutoStop() bool {
	return v.autoStop > 0 && v.battery.Level() >= float64(v.autoStop)
}

// Commands returns the commands received so far.
func (v *Vehicle) Commands() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.commands...)
}

func (v *Vehicle) SOC() (float64, error) { return v.battery.Level(), nil }

func (v *Vehicle) PluggedIn() (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.plugged, nil
}

func (v *Vehicle) Charging() (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.charging, nil
}

func (v *Vehicle) CapacityKWh() (float64, error) { return v.cfg.NominalCapacityKWh, nil }

func (v *Vehicle) StateOfHealth() (float64, error) { return v.cfg.StateOfHealth, nil }

// StartCharge starts charging. The charge-start event is reported by the next
// Advance through the Charging reading, as a real vehicle does.
func (v *Vehicle) StartCharge(context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.commands = append(v.commands, "charge start")
	if !v.plugged {
		return ErrNotPlugged
	}
	v.charging = true
	return nil
}

func (v *Vehicle) StopCharge(context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.commands = append(v.commands, "charge stop")
	v.charging = false
	return nil
}

func (v *Vehicle) SetAutoStopTarget(_ context.Context, percent int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.commands = append(v.commands, fmt.Sprintf("suffsoc %d", percent))
	v.autoStop = percent
	return nil
}
