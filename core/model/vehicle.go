package model

import (
	"fmt"
	"math"
)

// DefaultNominalCapacityKWh is used when the vehicle does not report a usable
// pack size.
const DefaultNominalCapacityKWh = 40.0

// Battery describes the traction battery of the vehicle.
type Battery struct {
	NominalCapacityKWh float64 // pack size reported by the vehicle, 0 means unknown
	StateOfHealth      float64 // percent of original capacity, 0 means unknown

	// Optional user overrides. Zero means unset.
	CapacityOverrideKWh float64
	SOHOverride         float64
}

// Validate checks that the overrides are sound.
func (b Battery) Validate() error {
	if b.CapacityOverrideKWh < 0 {
		return fmt.Errorf("capacity override must not be negative")
	}
	if b.SOHOverride < 0 || b.SOHOverride > 100 {
		return fmt.Errorf("soh override must be within 0-100")
	}
	return nil
}

// EffectiveSOH returns the state of health used for capacity estimation.
// An override wins; an unknown or implausible reading counts as 100 %.
func (b Battery) EffectiveSOH() float64 {
	if b.SOHOverride > 0 {
		return b.SOHOverride
	}
	if b.StateOfHealth <= 0 || b.StateOfHealth > 100 || math.IsNaN(b.StateOfHealth) {
		return 100
	}
	return b.StateOfHealth
}

// EffectiveCapacityKWh is the usable capacity. It is derived on every call so
// that fresh telemetry is always taken into account.
func (b Battery) EffectiveCapacityKWh() float64 {
	if b.CapacityOverrideKWh > 0 {
		return b.CapacityOverrideKWh
	}
	nominal := b.NominalCapacityKWh
	if nominal <= 0 || math.IsNaN(nominal) {
		nominal = DefaultNominalCapacityKWh
	}
	return nominal * b.EffectiveSOH() / 100
}

// EnergyNeededKWh returns the energy required to go from soc to target percent.
func (b Battery) EnergyNeededKWh(soc, target float64) float64 {
	need := b.EffectiveCapacityKWh() * (target - soc) / 100
	if need < 0 || math.IsNaN(need) {
		return 0
	}
	return need
}

// VehicleState is a snapshot of the live vehicle readings. Unavailable readings
// are reported as their zero value.
type VehicleState struct {
	SOC      float64 // percent
	Plugged  bool
	Charging bool
	Battery  Battery
}

// AtTarget reports whether the state of charge already meets target.
func (v VehicleState) AtTarget(target float64) bool {
	return v.SOC >= target
}
