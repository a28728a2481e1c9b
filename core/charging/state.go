package charging

import "fmt"

// State is the session state of the controller.
type State int

const (
	// Idle means unplugged, paused, scheduling disabled or nothing to do.
	Idle State = iota
	// WaitingForWindow means plugged below target with the start still ahead.
	WaitingForWindow
	ChargingScheduled
	ChargingManual
	// Completed means the last session ended at or above the target.
	Completed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case WaitingForWindow:
		return "waiting_for_window"
	case ChargingScheduled:
		return "charging_scheduled"
	case ChargingManual:
		return "charging_manual"
	case Completed:
		return "completed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText encodes the state name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Charging reports whether the state is one of the charging states.
func (s State) Charging() bool { return s == ChargingScheduled || s == ChargingManual }

// Mode tells who started the current charge.
type Mode string

const (
	ModeNone      Mode = ""
	ModeScheduled Mode = "scheduled"
	ModeManual    Mode = "manual"
)

func (m Mode) state() State {
	if m == ModeManual {
		return ChargingManual
	}
	return ChargingScheduled
}
