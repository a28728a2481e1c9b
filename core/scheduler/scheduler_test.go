package scheduler

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/kilianp07/smartcharge/core/clock"
	"github.com/kilianp07/smartcharge/core/tariff"
)

func tod(h, m int) clock.TimeOfDay { return clock.TimeOfDay{Hour: h, Minute: m} }

var overnight = clock.Window{Start: tod(23, 30), End: tod(5, 30)}

func TestSolveWindowStartMeetsDeadline(t *testing.T) {
	d := Solve(Request{SOC: 50, TargetSOC: 80, CapacityKWh: 40, RateKW: 2, Window: overnight, ReadyBy: tod(8, 30)})
	if d.Reason != WindowStart {
		t.Fatalf("expected window_start got %s", d.Reason)
	}
	if math.Abs(d.KWhNeeded-12) > 1e-9 || math.Abs(d.ChargeMinutes()-360) > 1e-9 {
		t.Fatalf("unexpected energy/duration %v kWh %v min", d.KWhNeeded, d.ChargeMinutes())
	}
	if d.ReadyByMinute == nil || *d.ReadyByMinute != 1950 {
		t.Fatalf("ready-by not normalised: %v", d.ReadyByMinute)
	}
	if d.FinishMinute == nil || *d.FinishMinute != 1770 {
		t.Fatalf("expected finish 1770 got %v", d.FinishMinute)
	}
	if d.StartMinute != 1410 || d.HasPreWindowOverflow {
		t.Fatalf("unexpected start %v overflow %v", d.StartMinute, d.HasPreWindowOverflow)
	}
}

func TestSolveEarlyStartRequired(t *testing.T) {
	w := clock.Window{Start: tod(23, 0), End: tod(5, 30)}
	// 10 kWh at 2 kW is 300 minutes.
	base := Request{SOC: 55, TargetSOC: 80, CapacityKWh: 40, RateKW: 2, Window: w}

	base.ReadyBy = tod(7, 0)
	d := Solve(base)
	if d.Reason != WindowStart || *d.FinishMinute != 1680 {
		t.Fatalf("07:00 should be met from window start: %+v", d)
	}

	base.ReadyBy = tod(3, 0)
	d = Solve(base)
	if d.Reason != EarlyStartRequired {
		t.Fatalf("expected early start got %s", d.Reason)
	}
	if math.Abs(d.StartMinute-1320) > 1e-9 {
		t.Fatalf("expected start 1320 got %v", d.StartMinute)
	}
	if *d.FinishMinute != 1620 || !d.HasPreWindowOverflow {
		t.Fatalf("unexpected decision %+v", d)
	}
	if clock.FormatMinute(d.StartMinute) != "22:00" {
		t.Fatalf("unexpected start clock %s", clock.FormatMinute(d.StartMinute))
	}
}

func TestSolveReadyByDisabled(t *testing.T) {
	windows := []clock.Window{overnight, {Start: tod(1, 0), End: tod(6, 0)}, {Start: tod(12, 0), End: tod(14, 0)}}
	for _, w := range windows {
		for soc := 0.0; soc <= 100; soc += 12.5 {
			d := Solve(Request{SOC: soc, TargetSOC: 80, CapacityKWh: 40, RateKW: 2, Window: w})
			if d.Reason != WindowStart || d.StartMinute != float64(w.Start.Minutes()) {
				t.Fatalf("window %s soc %v: %+v", w, soc, d)
			}
			if d.FinishMinute != nil || d.ReadyByMinute != nil {
				t.Fatalf("no finish expected without deadline")
			}
		}
	}
}

func TestSolveRateFallback(t *testing.T) {
	for _, r := range []float64{0, -1, math.NaN()} {
		d := Solve(Request{SOC: 50, TargetSOC: 80, CapacityKWh: 40, RateKW: r, Window: overnight})
		if d.RateKW != DefaultRateKW || math.Abs(d.ChargeDurationHours-6) > 1e-9 {
			t.Fatalf("rate %v: unexpected %+v", r, d)
		}
	}
}

func TestSolveAtTarget(t *testing.T) {
	d := Solve(Request{SOC: 90, TargetSOC: 80, CapacityKWh: 40, RateKW: 2, Window: overnight, ReadyBy: tod(7, 0)})
	if d.KWhNeeded != 0 || d.ChargeDurationHours != 0 || d.Reason != WindowStart {
		t.Fatalf("unexpected %+v", d)
	}
	c := d.Cost(overnight, tariff.Tariff{CheapRate: 0.07, StandardRate: 0.29})
	if c.TotalCost != 0 || c.HasOverflow {
		t.Fatalf("expected zero cost %+v", c)
	}
}

func TestDecisionCost(t *testing.T) {
	d := Solve(Request{SOC: 50, TargetSOC: 80, CapacityKWh: 40, RateKW: 2, Window: overnight})
	c := d.Cost(overnight, tariff.Tariff{CheapRate: 0.07, StandardRate: 0.292})
	if c.HasOverflow || math.Abs(c.CheapWindowKWh-12) > 1e-9 {
		t.Fatalf("unexpected cost %+v", c)
	}
	if d.EndMinute() != 1770 {
		t.Fatalf("expected estimated end 1770 got %v", d.EndMinute())
	}
}

func TestEligible(t *testing.T) {
	noDeadline := Solve(Request{SOC: 50, TargetSOC: 80, CapacityKWh: 40, RateKW: 2, Window: overnight})
	cases := map[int]bool{1409: false, 1410: true, 0: true, 329: true, 330: false, 720: false}
	for m, want := range cases {
		if got := noDeadline.Eligible(m, overnight); got != want {
			t.Fatalf("minute %d: got %v want %v", m, got, want)
		}
	}

	w := clock.Window{Start: tod(23, 0), End: tod(5, 30)}
	early := Solve(Request{SOC: 55, TargetSOC: 80, CapacityKWh: 40, RateKW: 2, Window: w, ReadyBy: tod(3, 0)})
	if !early.Eligible(22*60, w) || !early.Eligible(60, w) {
		t.Fatalf("early start should be eligible from 22:00 overnight")
	}
	if early.Eligible(21*60+59, w) || early.Eligible(6*60, w) {
		t.Fatalf("early start span too wide")
	}

	late := Solve(Request{SOC: 50, TargetSOC: 80, CapacityKWh: 40, RateKW: 2, Window: overnight, ReadyBy: tod(8, 30)})
	if late.Eligible(7*60, overnight) || late.Eligible(6*60, overnight) {
		t.Fatalf("a charge finishing inside the window should not run past it")
	}
	if got := late.SpanMinutes(overnight); got != 360 {
		t.Fatalf("expected a 360 minute span got %v", got)
	}

	long := Solve(Request{SOC: 20, TargetSOC: 80, CapacityKWh: 40, RateKW: 2, Window: overnight, ReadyBy: tod(8, 30)})
	if long.Reason != EarlyStartRequired || long.StartMinute != 1230 {
		t.Fatalf("expected early start at 20:30 got %+v", long)
	}
	if !long.Eligible(7*60, overnight) || long.Eligible(8*60+30, overnight) {
		t.Fatalf("span should run to the predicted finish at 08:30")
	}
	if got := late.MinutesUntilStart(23 * 60); got != 30 {
		t.Fatalf("expected 30 minutes to start got %v", got)
	}
}

func TestDecodePlanInput(t *testing.T) {
	data := "soc: 50\ntarget_soc: 80\ncapacity_kwh: 40\nrate_kw: 2\nwindow_start: \"23:30\"\nwindow_end: \"05:30\"\nready_by: \"08:30\"\ncheap_rate: 0.07\nstandard_rate: 0.292\n"
	in, err := DecodePlanInput(bytes.NewBufferString(data), "yaml")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	req, w, tf, err := in.Request()
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if w != overnight || req.ReadyBy != tod(8, 30) || tf.CheapRate != 0.07 {
		t.Fatalf("bad request %+v %v %+v", req, w, tf)
	}
}

func TestLoadPlanInputFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.json")
	if err := os.WriteFile(path, []byte(`{"soc":20,"target_soc":90,"window_start":"00:30","window_end":"04:30","ready_by":"off"}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	in, err := LoadPlanInput(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	req, _, _, err := in.Request()
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if !req.ReadyBy.IsMidnight() || req.Window.Start != tod(0, 30) {
		t.Fatalf("bad request %+v", req)
	}
	if _, err := LoadPlanInput(path + ".txt"); err == nil {
		t.Fatalf("expected error for wrong ext")
	}
}

func TestPlanInputErrors(t *testing.T) {
	if _, err := DecodePlanInput(bytes.NewBufferString("{}"), "toml"); err == nil {
		t.Fatalf("expected format error")
	}
	if _, err := DecodePlanInput(bytes.NewBufferString(":"), "yaml"); err == nil {
		t.Fatalf("expected yaml error")
	}
	bad := []PlanInput{
		{WindowStart: "25:00", WindowEnd: "05:00"},
		{WindowStart: "23:00", WindowEnd: "05:00", ReadyBy: "7h"},
		{WindowStart: "23:00", WindowEnd: "05:00", CheapRate: -1},
		{WindowStart: "23:00", WindowEnd: "05:00", TargetSOC: 120},
	}
	for _, in := range bad {
		if _, _, _, err := in.Request(); err == nil {
			t.Fatalf("expected error for %+v", in)
		}
	}
}
