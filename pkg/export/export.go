// Package export renders a charging report as text, JSON, YAML or CSV.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/smartcharge/core/charging"
)

// Formats lists the accepted format names.
var Formats = []string{"text", "json", "yaml", "csv"}

// Write renders r to w in the named format.
func Write(w io.Writer, format string, r charging.Report) error {
	switch strings.ToLower(format) {
	case "", "text":
		_, err := io.WriteString(w, r.Text()+"\n")
		return err
	case "json":
		return WriteJSON(w, r)
	case "yaml", "yml":
		return WriteYAML(w, r)
	case "csv":
		return WriteCSV(w, r)
	}
	return fmt.Errorf("unknown format %q (want one of %s)", format, strings.Join(Formats, ", "))
}

// WriteJSON writes the report to w in indented JSON.
func WriteJSON(w io.Writer, r charging.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteYAML writes the report to w in YAML.
func WriteYAML(w io.Writer, r charging.Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return err
	}
	return enc.Close()
}

var csvHeader = []string{
	"time", "state", "soc", "target_soc", "plugged", "charging", "window", "in_window", "ready_by",
	"effective_kw", "plan_start", "plan_finish", "plan_reason", "kwh_needed", "duration_h",
	"est_cost", "pre_window_kwh", "cheap_kwh", "post_window_kwh",
}

// WriteCSV writes a header and one row summarizing the report and its plan.
// Plan columns are empty when there is nothing to charge.
func WriteCSV(w io.Writer, r charging.Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	rec := []string{
		r.Time.Format(time.RFC3339),
		r.State.String(),
		formatFloat(r.Vehicle.SOC),
		strconv.Itoa(r.TargetSOC),
		strconv.FormatBool(r.Vehicle.Plugged),
		strconv.FormatBool(r.Vehicle.Charging),
		r.Window.String(),
		strconv.FormatBool(r.InWindow),
		r.ReadyBy,
		formatFloat(r.Rates.EffectiveKW),
	}
	if p := r.Plan; p != nil {
		rec = append(rec,
			p.Start,
			p.Finish,
			p.Reason.String(),
			formatFloat(p.KWhNeeded),
			formatFloat(p.ChargeDurationHours),
			formatFloat(p.Cost.TotalCost),
			formatFloat(p.Cost.PreWindowKWh),
			formatFloat(p.Cost.CheapWindowKWh),
			formatFloat(p.Cost.PostWindowKWh),
		)
	} else {
		rec = append(rec, make([]string, 9)...)
	}
	if err := cw.Write(rec); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 3, 64)
}
