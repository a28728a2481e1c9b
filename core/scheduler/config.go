package scheduler

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/smartcharge/core/clock"
	"github.com/kilianp07/smartcharge/core/tariff"
)

// PlanInput describes an offline planning scenario.
type PlanInput struct {
	SOC          float64 `json:"soc" yaml:"soc"`
	TargetSOC    float64 `json:"target_soc" yaml:"target_soc"`
	CapacityKWh  float64 `json:"capacity_kwh" yaml:"capacity_kwh"`
	RateKW       float64 `json:"rate_kw" yaml:"rate_kw"`
	WindowStart  string  `json:"window_start" yaml:"window_start"`
	WindowEnd    string  `json:"window_end" yaml:"window_end"`
	ReadyBy      string  `json:"ready_by" yaml:"ready_by"`
	CheapRate    float64 `json:"cheap_rate" yaml:"cheap_rate"`
	StandardRate float64 `json:"standard_rate" yaml:"standard_rate"`
}

// Request converts the input into a solver request, validating the times.
func (p PlanInput) Request() (Request, clock.Window, tariff.Tariff, error) {
	w, err := clock.ParseWindow(p.WindowStart, p.WindowEnd)
	if err != nil {
		return Request{}, clock.Window{}, tariff.Tariff{}, err
	}
	var readyBy clock.TimeOfDay
	if p.ReadyBy != "" && p.ReadyBy != "off" {
		if readyBy, err = clock.ParseTimeOfDay(p.ReadyBy); err != nil {
			return Request{}, clock.Window{}, tariff.Tariff{}, fmt.Errorf("ready_by: %w", err)
		}
	}
	t := tariff.Tariff{CheapRate: p.CheapRate, StandardRate: p.StandardRate}
	if err := t.Validate(); err != nil {
		return Request{}, clock.Window{}, tariff.Tariff{}, err
	}
	if p.TargetSOC < 0 || p.TargetSOC > 100 || p.SOC < 0 || p.SOC > 100 {
		return Request{}, clock.Window{}, tariff.Tariff{}, fmt.Errorf("soc and target_soc must be within 0-100")
	}
	req := Request{
		SOC:         p.SOC,
		TargetSOC:   p.TargetSOC,
		CapacityKWh: p.CapacityKWh,
		RateKW:      p.RateKW,
		Window:      w,
		ReadyBy:     readyBy,
	}
	return req, w, t, nil
}

// LoadPlanInput loads a PlanInput from a JSON or YAML file.
func LoadPlanInput(path string) (PlanInput, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return PlanInput{}, err
	}
	ext := strings.ToLower(filepath.Ext(path))
	var in PlanInput
	switch ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &in)
	case ".json":
		err = json.Unmarshal(b, &in)
	default:
		return PlanInput{}, fmt.Errorf("unsupported plan format: %s", ext)
	}
	return in, err
}

// DecodePlanInput reads from r to decode a PlanInput.
func DecodePlanInput(r io.Reader, format string) (PlanInput, error) {
	var in PlanInput
	switch strings.ToLower(format) {
	case "yaml", "yml":
		dec := yaml.NewDecoder(r)
		if err := dec.Decode(&in); err != nil {
			return in, err
		}
	case "json":
		dec := json.NewDecoder(r)
		if err := dec.Decode(&in); err != nil {
			return in, err
		}
	default:
		return in, fmt.Errorf("unsupported format: %s", format)
	}
	return in, nil
}
