package sim

import (
	"math"
	"sync"
	"time"
)

// Battery models an EV traction battery charged at a constant power.
type Battery struct {
	CapacityKWh  float64 // usable capacity
	SOC          float64 // state of charge in percent
	ChargeRateKW float64 // power delivered into the pack while charging
	mu           sync.Mutex
}

// Charge adds the energy of dt at the charge rate, capped at 100 %. It returns
// the energy actually stored.
func (b *Battery) Charge(dt time.Duration) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	hours := dt.Hours()
	if hours <= 0 || b.CapacityKWh <= 0 {
		return 0
	}
	avail := (100 - b.SOC) / 100 * b.CapacityKWh
	kWh := math.Min(b.ChargeRateKW*hours, avail)
	if kWh < 0 {
		kWh = 0
	}
	b.SOC += kWh / b.CapacityKWh * 100
	b.SOC = math.Min(math.Max(b.SOC, 0), 100)
	return kWh
}

// Level returns the state of charge.
func (b *Battery) Level() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.SOC
}
