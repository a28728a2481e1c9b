package sim

import (
	"context"
	"time"

	"github.com/kilianp07/smartcharge/core/charging"
)

// Driver runs a controller against a simulated vehicle. Charge state changes
// caused by controller commands are reported back as events, the way the
// vehicle would publish them.
type Driver struct {
	Ctrl    *charging.Controller
	Vehicle *Vehicle
	Clock   *Clock
	// Step is the tick interval. Zero means five minutes.
	Step time.Duration

	charging bool
}

func (d *Driver) step() time.Duration {
	if d.Step <= 0 {
		return 5 * time.Minute
	}
	return d.Step
}

// PlugIn plugs the vehicle in at the current time.
func (d *Driver) PlugIn(ctx context.Context) {
	d.deliver(ctx, d.Vehicle.PlugIn(d.Clock.Now()))
}

// Unplug unplugs the vehicle at the current time.
func (d *Driver) Unplug(ctx context.Context) {
	d.deliver(ctx, d.Vehicle.Unplug(d.Clock.Now()))
}

// Execute runs a user command and reports any resulting charge change.
func (d *Driver) Execute(ctx context.Context, line string) (string, error) {
	cmd, err := charging.ParseCommand(line)
	if err != nil {
		return "", err
	}
	reply, err := d.Ctrl.Execute(ctx, cmd)
	d.sync(ctx)
	return reply, err
}

// RunUntil advances time step by step until t, charging the vehicle and
// ticking the controller after every step.
func (d *Driver) RunUntil(ctx context.Context, t time.Time) {
	for d.Clock.Now().Before(t) {
		now := d.Clock.Advance(d.step())
		d.deliver(ctx, d.Vehicle.Advance(now, d.step()))
		d.Ctrl.Tick(ctx)
		d.sync(ctx)
	}
}

func (d *Driver) deliver(ctx context.Context, evs []charging.Event) {
	for _, ev := range evs {
		switch ev.Type {
		case charging.EventChargeStart:
			d.charging = true
		case charging.EventChargeStop, charging.EventUnplug:
			d.charging = false
		}
		d.Ctrl.Handle(ctx, ev)
		d.sync(ctx)
	}
}

// sync reports charge changes made by controller commands. The loop is
// bounded because each report can trigger another command.
func (d *Driver) sync(ctx context.Context) {
	for i := 0; i < 3; i++ {
		c, _ := d.Vehicle.Charging()
		if c == d.charging {
			return
		}
		d.charging = c
		typ := charging.EventChargeStop
		if c {
			typ = charging.EventChargeStart
		}
		d.Ctrl.Handle(ctx, charging.Event{Type: typ, Time: d.Clock.Now()})
	}
}
