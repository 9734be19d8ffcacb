package core

import (
	"fmt"
	"strconv"
	"strings"
)

// ConfigItem describes a single model configuration parameter.
type ConfigItem struct {
	Name    string
	Default string
	Caption string
}

// ConfigSchema is the ordered parameter list a model accepts.
type ConfigSchema []ConfigItem

// Defaults returns the schema's default values.
func (s ConfigSchema) Defaults() Values {
	v := make(Values, len(s))
	for _, item := range s {
		v[item.Name] = item.Default
	}
	return v
}

// Values holds key/value model configuration.
type Values map[string]string

// Merged overlays v on top of the schema defaults.
func (v Values) Merged(s ConfigSchema) Values {
	out := s.Defaults()
	for k, val := range v {
		out[k] = val
	}
	return out
}

// String returns the raw value for name, or "".
func (v Values) String(name string) string { return v[name] }

// Float parses the value for name as a float64.
func (v Values) Float(name string) (float64, error) {
	raw := strings.TrimSpace(v[name])
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("config %s: %w", name, err)
	}
	return f, nil
}

// Int parses the value for name as an int.
func (v Values) Int(name string) (int, error) {
	raw := strings.TrimSpace(v[name])
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config %s: %w", name, err)
	}
	return n, nil
}

// Bool interprets on/off (and the usual true/false spellings) as a boolean.
func (v Values) Bool(name string) bool {
	switch strings.ToLower(strings.TrimSpace(v[name])) {
	case "on", "1", "true", "yes":
		return true
	default:
		return false
	}
}

// RangeModelSchema lists the basic range model parameters.
var RangeModelSchema = ConfigSchema{
	{Name: "range", Default: "275", Caption: "wireless range (pixels)"},
	{Name: "bandwidth", Default: "54000", Caption: "bandwidth (bps)"},
	{Name: "jitter", Default: "0.0", Caption: "transmission jitter (usec)"},
	{Name: "delay", Default: "5000.0", Caption: "transmission delay (usec)"},
	{Name: "error", Default: "0.0", Caption: "error rate (%)"},
}

// Ns2ModelSchema lists the ns-2 scripted mobility parameters.
var Ns2ModelSchema = ConfigSchema{
	{Name: "file", Default: "", Caption: "mobility script file"},
	{Name: "refresh_ms", Default: "50", Caption: "refresh time (ms)"},
	{Name: "loop", Default: "on", Caption: "loop"},
	{Name: "autostart", Default: "", Caption: "auto-start seconds (0.0 for runtime)"},
	{Name: "map", Default: "", Caption: "node mapping (optional, e.g. 0:1,1:2,2:3)"},
	{Name: "script_start", Default: "", Caption: "script file to run upon start"},
	{Name: "script_pause", Default: "", Caption: "script file to run upon pause"},
	{Name: "script_stop", Default: "", Caption: "script file to run upon stop"},
}
