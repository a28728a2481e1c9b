package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/smartcharge/core/charging"
	"github.com/kilianp07/smartcharge/core/clock"
	"github.com/kilianp07/smartcharge/core/scheduler"
	"github.com/kilianp07/smartcharge/core/tariff"
)

func sampleReport() charging.Report {
	return charging.Report{
		Time:      time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC),
		State:     charging.WaitingForWindow,
		TargetSOC: 80,
		Window:    clock.Window{Start: clock.TimeOfDay{Hour: 23, Minute: 30}, End: clock.TimeOfDay{Hour: 5, Minute: 30}},
		ReadyBy:   "off",
		Vehicle:   charging.VehicleReport{SOC: 40, Plugged: true},
		Rates:     charging.RateReport{EffectiveKW: 2},
		Plan: &charging.PlanReport{
			Decision: scheduler.Decision{StartMinute: 1410, Reason: scheduler.WindowStart, KWhNeeded: 16, ChargeDurationHours: 8, RateKW: 2},
			Start:    "23:30",
			Cost:     tariff.CostBreakdown{CheapWindowKWh: 12, PostWindowKWh: 4, TotalCost: 2.008, HasOverflow: true},
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleReport()); err != nil {
		t.Fatalf("write: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 2 || len(rows[0]) != len(rows[1]) {
		t.Fatalf("unexpected shape %v", rows)
	}
	got := map[string]string{}
	for i, h := range rows[0] {
		got[h] = rows[1][i]
	}
	want := map[string]string{
		"state":           "waiting_for_window",
		"soc":             "40.000",
		"window":          "23:30-05:30",
		"plan_start":      "23:30",
		"plan_reason":     "window_start",
		"kwh_needed":      "16.000",
		"est_cost":        "2.008",
		"post_window_kwh": "4.000",
		"time":            "2026-03-10T18:00:00Z",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}
}

func TestWriteCSVWithoutPlan(t *testing.T) {
	r := sampleReport()
	r.Plan = nil
	var buf bytes.Buffer
	if err := WriteCSV(&buf, r); err != nil {
		t.Fatalf("write: %v", err)
	}
	rows, _ := csv.NewReader(&buf).ReadAll()
	if len(rows[1]) != len(csvHeader) || rows[1][10] != "" {
		t.Fatalf("unexpected row %v", rows[1])
	}
}

func TestWriteFormats(t *testing.T) {
	r := sampleReport()

	var js bytes.Buffer
	if err := Write(&js, "json", r); err != nil {
		t.Fatalf("json: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(js.Bytes(), &decoded); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	plan := decoded["plan"].(map[string]any)
	if plan["reason"] != "window_start" || plan["start"] != "23:30" {
		t.Fatalf("unexpected plan %v", plan)
	}

	var ym bytes.Buffer
	if err := Write(&ym, "YAML", r); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	var y map[string]any
	if err := yaml.Unmarshal(ym.Bytes(), &y); err != nil {
		t.Fatalf("decode yaml: %v", err)
	}
	window := y["window"].(map[string]any)
	if window["start"] != "23:30" {
		t.Fatalf("unexpected window %v", window)
	}
	yplan := y["plan"].(map[string]any)
	if yplan["kwh_needed"] != 16 {
		t.Fatalf("decision not inlined: %v", yplan)
	}

	var txt bytes.Buffer
	if err := Write(&txt, "", r); err != nil {
		t.Fatalf("text: %v", err)
	}
	if !strings.Contains(txt.String(), "Plan: start 23:30 (window_start)") {
		t.Fatalf("unexpected text %q", txt.String())
	}

	if err := Write(&txt, "xml", r); err == nil {
		t.Fatal("expected error for unknown format")
	}
}
