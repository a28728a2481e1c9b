package charging

import (
	"context"
	"fmt"
	"time"
)

// Telemetry reads live vehicle metrics. Any error means the reading is
// currently unavailable; the controller then assumes 0 or false.
type Telemetry interface {
	SOC() (float64, error)
	PluggedIn() (bool, error)
	Charging() (bool, error)
	CapacityKWh() (float64, error)
	StateOfHealth() (float64, error)
}

// ChargeController issues raw charge commands to the vehicle.
type ChargeController interface {
	StartCharge(ctx context.Context) error
	StopCharge(ctx context.Context) error
}

// AutoStopper is implemented by controllers whose vehicle can stop charging
// by itself once a target SOC is reached.
type AutoStopper interface {
	SetAutoStopTarget(ctx context.Context, percent int) error
}

// Notifier delivers user notifications. Delivery is best effort.
type Notifier interface {
	Raise(ctx context.Context, severity, topic, message string) error
}

// StatusPublisher receives a fresh report after every tick, event and command.
type StatusPublisher interface {
	Publish(r Report)
}

// EventType names a vehicle lifecycle event.
type EventType int

const (
	EventPlugIn EventType = iota + 1
	EventUnplug
	EventChargeStart
	EventChargeStop
)

func (t EventType) String() string {
	switch t {
	case EventPlugIn:
		return "plug_in"
	case EventUnplug:
		return "unplug"
	case EventChargeStart:
		return "charge_start"
	case EventChargeStop:
		return "charge_stop"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event is a lifecycle event delivered to Controller.Handle.
type Event struct {
	Type EventType
	Time time.Time
}
