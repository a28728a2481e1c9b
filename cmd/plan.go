package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/smartcharge/config"
	"github.com/kilianp07/smartcharge/core/charging"
	"github.com/kilianp07/smartcharge/core/clock"
	"github.com/kilianp07/smartcharge/core/kv"
	"github.com/kilianp07/smartcharge/core/scheduler"
	"github.com/kilianp07/smartcharge/internal/sim"
	"github.com/kilianp07/smartcharge/pkg/export"
)

type planOptions struct {
	SOC         float64
	CapacityKWh float64
	SOH         float64
	Target      int
	ReadyBy     string
	At          string
	Format      string
	Simulate    bool
	VehicleKW   float64
	Input       string
}

var planOpts planOptions

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show when a plug-in now would charge and what it would cost",
	Long: "Solve the charge schedule offline for a vehicle plugged in at --at.\n" +
		"Window, rates and charger come from the charging section of the config\n" +
		"file when it exists, otherwise from the built-in defaults.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ch, err := loadChargingConfig(cfgPath, cmd.Flags().Changed("config"))
		if err != nil {
			return err
		}
		if planOpts.Input != "" {
			in, err := readPlanInput(cmd.InOrStdin(), planOpts.Input)
			if err != nil {
				return fmt.Errorf("plan input: %w", err)
			}
			if err := applyPlanInput(&ch, &planOpts, in); err != nil {
				return fmt.Errorf("plan input: %w", err)
			}
		}
		return runPlan(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), ch, planOpts, time.Now())
	},
}

func init() {
	f := planCmd.Flags()
	f.Float64Var(&planOpts.SOC, "soc", 0, "current state of charge in percent")
	f.Float64Var(&planOpts.CapacityKWh, "capacity", 40, "nominal battery capacity in kWh")
	f.Float64Var(&planOpts.SOH, "soh", 100, "battery state of health in percent")
	f.IntVar(&planOpts.Target, "target", 0, "target SOC in percent (default from config)")
	f.StringVar(&planOpts.ReadyBy, "readyby", "", "ready-by time HH:MM or off (default from config)")
	f.StringVar(&planOpts.At, "at", "", "plug-in time HH:MM (default now)")
	f.StringVarP(&planOpts.Format, "format", "f", "text", "output format: text, json, yaml or csv")
	f.BoolVar(&planOpts.Simulate, "simulate", false, "simulate the night and report the finished session")
	f.Float64Var(&planOpts.VehicleKW, "vehicle-rate", 0, "actual charging power for --simulate (default charger rate)")
	f.StringVarP(&planOpts.Input, "input", "i", "", "scenario file (.yaml or .json, - for YAML on stdin) replacing the flags above")
	rootCmd.AddCommand(planCmd)
}

// loadChargingConfig reads the charging section. A missing default config
// file is not an error.
func loadChargingConfig(path string, explicit bool) (config.ChargingConfig, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) && !explicit {
		var c config.ChargingConfig
		c.SetDefaults()
		return c, nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.ChargingConfig{}, fmt.Errorf("load config: %w", err)
	}
	return cfg.Charging, nil
}

func readPlanInput(stdin io.Reader, path string) (scheduler.PlanInput, error) {
	if path == "-" {
		return scheduler.DecodePlanInput(stdin, "yaml")
	}
	return scheduler.LoadPlanInput(path)
}

// applyPlanInput copies a scenario over the configured charging settings and
// the vehicle flags.
func applyPlanInput(ch *config.ChargingConfig, o *planOptions, in scheduler.PlanInput) error {
	if _, _, _, err := in.Request(); err != nil {
		return err
	}
	ch.CheapStart, ch.CheapEnd = in.WindowStart, in.WindowEnd
	ch.CheapRate, ch.StandardRate = in.CheapRate, in.StandardRate
	ch.ReadyBy = in.ReadyBy
	if ch.ReadyBy == "" {
		ch.ReadyBy = "off"
	}
	if in.RateKW > 0 {
		ch.ChargerKW = in.RateKW
	}
	o.SOC = in.SOC
	o.Target = int(math.Round(in.TargetSOC))
	o.CapacityKWh = in.CapacityKWh
	o.SOH = 100
	o.ReadyBy = ""
	return nil
}

func runPlan(ctx context.Context, out, notes io.Writer, ch config.ChargingConfig, o planOptions, now time.Time) error {
	if o.SOC < 0 || o.SOC > 100 {
		return fmt.Errorf("soc %.1f outside 0..100", o.SOC)
	}
	if o.Target != 0 {
		ch.TargetSOC = o.Target
	}
	if o.ReadyBy != "" {
		ch.ReadyBy = o.ReadyBy
	}
	defaults, err := ch.Defaults()
	if err != nil {
		return err
	}
	start := now
	if o.At != "" {
		t, err := clock.ParseTimeOfDay(o.At)
		if err != nil {
			return fmt.Errorf("at: %w", err)
		}
		start = time.Date(now.Year(), now.Month(), now.Day(), t.Hour, t.Minute, 0, 0, now.Location())
	}
	kw := o.VehicleKW
	if kw <= 0 {
		kw = defaults.ChargerKW
	}

	clk := sim.NewClock(start)
	vehicle := sim.NewVehicle(sim.Config{
		NominalCapacityKWh: o.CapacityKWh,
		StateOfHealth:      o.SOH,
		SOC:                o.SOC,
		ChargeRateKW:       kw,
		AutoStartOnPlug:    o.Simulate,
	})
	var notifier charging.Notifier
	if o.Simulate {
		notifier = &printNotifier{w: notes, now: clk.Now}
	}
	ctrl := charging.New(vehicle, vehicle, notifier, kv.NewMemoryStore(), charging.Options{
		Defaults:        defaults,
		StopAtWindowEnd: ch.StopAtWindowEnd,
		Currency:        ch.Currency,
		Version:         Version,
		Clock:           clk.Now,
	})

	if !o.Simulate {
		vehicle.PlugIn(start)
		ctrl.Handle(ctx, charging.Event{Type: charging.EventPlugIn, Time: start})
		return export.Write(out, o.Format, ctrl.Report())
	}
	d := &sim.Driver{Ctrl: ctrl, Vehicle: vehicle, Clock: clk}
	d.PlugIn(ctx)
	d.RunUntil(ctx, start.Add(24*time.Hour))
	return export.Write(out, o.Format, ctrl.Report())
}

// printNotifier writes notifications with the simulated time.
type printNotifier struct {
	w   io.Writer
	now func() time.Time
}

func (p *printNotifier) Raise(_ context.Context, severity, _, message string) error {
	_, err := fmt.Fprintf(p.w, "[%s %s] %s\n", p.now().Format("15:04"), severity, message)
	return err
}
