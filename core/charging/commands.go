package charging

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kilianp07/smartcharge/core/clock"
	"github.com/kilianp07/smartcharge/core/kv"
	"github.com/kilianp07/smartcharge/core/tariff"
)

// Command is a parsed user command such as "target 90" or "window 23:30 05:30".
type Command struct {
	Name string   `json:"name"`
	Args []string `json:"args,omitempty"`
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// ParseCommand splits a command line into name and arguments.
func ParseCommand(line string) (Command, error) {
	f := strings.Fields(line)
	if len(f) == 0 {
		return Command{}, fmt.Errorf("%w: empty command", ErrInvalidArgument)
	}
	return Command{Name: strings.ToLower(f[0]), Args: f[1:]}, nil
}

// Usage lists the accepted commands.
const Usage = `status | start | stop | enable | disable | target <20-100>
window <HH:MM> <HH:MM> | rates <cheap> <standard> | charger <kW>
readyby <HH:MM>|off | rate measured on|off | rate set <kW> | rate clear
battery <kWh>|auto | soh <pct>|auto | version`

// Execute runs a user command and returns the reply. Arguments are validated
// here; the evaluator only ever sees stored, valid settings. Setting changes
// take effect immediately through a fresh evaluation.
func (c *Controller) Execute(ctx context.Context, cmd Command) (reply string, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Errorf("command %q: recovered from panic: %v", cmd, r)
			reply, err = "", fmt.Errorf("command %q failed", cmd.Name)
		}
	}()

	switch cmd.Name {
	case "status":
		return c.Report().Text(), nil
	case "version":
		return "smartcharge " + c.opts.Version, nil
	case "start":
		return c.manualStart(ctx)
	case "stop":
		return c.manualStop(ctx)
	}

	reply, err = c.configure(ctx, cmd)
	if err != nil {
		return "", err
	}
	c.run(ctx, "command", nil)
	return reply, nil
}

func (c *Controller) configure(ctx context.Context, cmd Command) (string, error) {
	s := c.settings
	switch cmd.Name {
	case "enable", "disable":
		on := cmd.Name == "enable"
		if err := s.SetEnabled(on); err != nil {
			return "", err
		}
		if on {
			return "Scheduled charging enabled", nil
		}
		return "Scheduled charging disabled", nil

	case "target":
		if err := wantArgs(cmd, 1); err != nil {
			return "", err
		}
		n, err := strconv.Atoi(cmd.Args[0])
		if err != nil {
			return "", fmt.Errorf("%w: target %q is not a whole number", ErrInvalidArgument, cmd.Args[0])
		}
		if err := s.SetTargetSOC(n); err != nil {
			return "", err
		}
		c.armAutoStop(ctx, n)
		return fmt.Sprintf("Target set to %d%%", n), nil

	case "window":
		if err := wantArgs(cmd, 2); err != nil {
			return "", err
		}
		w, err := clock.ParseWindow(cmd.Args[0], cmd.Args[1])
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		if err := s.SetWindow(w); err != nil {
			return "", err
		}
		return fmt.Sprintf("Cheap window set to %s (%s)", w, FormatDuration(float64(w.DurationMinutes()))), nil

	case "rates":
		if err := wantArgs(cmd, 2); err != nil {
			return "", err
		}
		cheap, err1 := parseFloat(cmd.Args[0])
		std, err2 := parseFloat(cmd.Args[1])
		if err1 != nil || err2 != nil {
			return "", fmt.Errorf("%w: rates must be numbers", ErrInvalidArgument)
		}
		if err := s.SetTariff(tariff.Tariff{CheapRate: cheap, StandardRate: std}); err != nil {
			return "", err
		}
		cur := c.opts.Currency
		return fmt.Sprintf("Rates set: cheap %s%.3f, standard %s%.3f per kWh", cur, cheap, cur, std), nil

	case "charger":
		if err := wantArgs(cmd, 1); err != nil {
			return "", err
		}
		kw, err := parseFloat(cmd.Args[0])
		if err != nil {
			return "", fmt.Errorf("%w: charger rate %q is not a number", ErrInvalidArgument, cmd.Args[0])
		}
		if err := s.SetChargerKW(kw); err != nil {
			return "", err
		}
		return fmt.Sprintf("Charger rate set to %.2f kW", kw), nil

	case "readyby":
		if err := wantArgs(cmd, 1); err != nil {
			return "", err
		}
		if strings.EqualFold(cmd.Args[0], "off") {
			if err := s.SetReadyBy(clock.TimeOfDay{}); err != nil {
				return "", err
			}
			return "Ready-by disabled", nil
		}
		t, err := clock.ParseTimeOfDay(cmd.Args[0])
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		if err := s.SetReadyBy(t); err != nil {
			return "", err
		}
		if t.IsMidnight() {
			return "Ready-by disabled", nil
		}
		return "Ready by " + t.String(), nil

	case "rate":
		return c.configureRate(cmd)

	case "battery":
		if err := wantArgs(cmd, 1); err != nil {
			return "", err
		}
		v, err := parseAuto(cmd.Args[0])
		if err != nil {
			return "", err
		}
		if err := s.SetBatteryOverride(v); err != nil {
			return "", err
		}
		if v == 0 {
			return "Battery capacity from vehicle", nil
		}
		return fmt.Sprintf("Battery capacity set to %.1f kWh", v), nil

	case "soh":
		if err := wantArgs(cmd, 1); err != nil {
			return "", err
		}
		v, err := parseAuto(cmd.Args[0])
		if err != nil {
			return "", err
		}
		if err := s.SetSOHOverride(v); err != nil {
			return "", err
		}
		if v == 0 {
			return "SOH from vehicle", nil
		}
		return fmt.Sprintf("SOH set to %.0f%%", v), nil
	}
	return "", fmt.Errorf("%w: %q\n%s", ErrUnknownCommand, cmd.Name, Usage)
}

func (c *Controller) configureRate(cmd Command) (string, error) {
	if len(cmd.Args) == 0 {
		return "", fmt.Errorf("%w: rate measured on|off | rate set <kW> | rate clear", ErrInvalidArgument)
	}
	s := c.settings
	switch strings.ToLower(cmd.Args[0]) {
	case "measured":
		if len(cmd.Args) != 2 {
			return "", fmt.Errorf("%w: rate measured on|off", ErrInvalidArgument)
		}
		on, err := kv.ParseBool(cmd.Args[1])
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		if err := s.SetUseMeasured(on); err != nil {
			return "", err
		}
		return "Use measured rate: " + kv.FormatBool(on), nil
	case "set":
		if len(cmd.Args) != 2 {
			return "", fmt.Errorf("%w: rate set <kW>", ErrInvalidArgument)
		}
		kw, err := parseFloat(cmd.Args[1])
		if err != nil || kw == 0 {
			return "", fmt.Errorf("%w: measured rate %q", ErrInvalidArgument, cmd.Args[1])
		}
		if err := s.SetMeasuredKW(kw); err != nil {
			return "", err
		}
		return fmt.Sprintf("Measured rate set to %.2f kW", kw), nil
	case "clear":
		if err := s.SetMeasuredKW(0); err != nil {
			return "", err
		}
		return "Measured rate cleared", nil
	}
	return "", fmt.Errorf("%w: rate %q", ErrUnknownCommand, cmd.Args[0])
}

// manualStart charges now regardless of the schedule. The session is still
// subject to the stop-at-target logic.
func (c *Controller) manualStart(ctx context.Context) (string, error) {
	s := c.snapshot()
	if !s.vehicle.Plugged {
		return "", ErrNotPlugged
	}
	if s.atTarget() {
		return "", fmt.Errorf("%w: %.0f%% >= %d%%", ErrAtTarget, s.vehicle.SOC, s.target)
	}
	c.armAutoStop(ctx, s.target)
	if err := c.charger.StartCharge(ctx); err != nil {
		return "", fmt.Errorf("start charge: %w", err)
	}
	c.mode = ModeManual
	c.paused = false
	c.heldAt = time.Time{}
	c.requestedAt = s.now
	if c.est.Active() {
		c.persistSession(c.est.Session(), ModeManual)
	}
	c.setState(ChargingManual)
	c.record(s, "command", "start", "manual")
	c.publish(s)
	return fmt.Sprintf("Charging started (manual). Target %d%%", s.target), nil
}

// manualStop stops charging and pauses scheduling until the vehicle is
// unplugged.
func (c *Controller) manualStop(ctx context.Context) (string, error) {
	s := c.snapshot()
	if err := c.charger.StopCharge(ctx); err != nil {
		return "", fmt.Errorf("stop charge: %w", err)
	}
	if c.est.Active() {
		c.finishSession(ctx, s)
	}
	c.mode = ModeNone
	c.paused = true
	c.requestedAt = time.Time{}
	c.setState(Idle)
	c.record(s, "command", "stop", "manual")
	c.notify(ctx, "info", "Charging stopped (manual)")
	c.publish(s)
	return "Charging stopped. Scheduling paused until unplug.", nil
}

func wantArgs(cmd Command, n int) error {
	if len(cmd.Args) != n {
		return fmt.Errorf("%w: %s expects %d argument(s)", ErrInvalidArgument, cmd.Name, n)
	}
	return nil
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// parseAuto reads an override value where "auto" means unset.
func parseAuto(s string) (float64, error) {
	if strings.EqualFold(s, "auto") {
		return 0, nil
	}
	v, err := parseFloat(s)
	if err != nil || !(v > 0) {
		return 0, fmt.Errorf("%w: %q must be a positive number or auto", ErrInvalidArgument, s)
	}
	return v, nil
}
