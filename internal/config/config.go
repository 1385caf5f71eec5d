// Package config loads the optional YAML profile that presets CLI flags.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ghodss/yaml"
)

// Profile mirrors the persistent CLI flags. Zero values mean "not set".
type Profile struct {
	Adapter          string    `json:"adapter,omitempty"`
	VendorID         uint16    `json:"vid,omitempty"`
	ProductID        uint16    `json:"pid,omitempty"`
	Serial           string    `json:"serial,omitempty"`
	Speed            int       `json:"speed,omitempty"`
	ProgrammingClock int       `json:"programmingClock,omitempty"`
	PollTimeout      Duration  `json:"pollTimeout,omitempty"`
	PollInterval     Duration  `json:"pollInterval,omitempty"`
	SettleDelay      *Duration `json:"settleDelay,omitempty"`
	MetricsFile      string    `json:"metricsFile,omitempty"`

	Simulator SimulatorProfile `json:"simulator,omitempty"`
}

// SimulatorProfile configures the built-in target simulator.
type SimulatorProfile struct {
	DID       uint32 `json:"did,omitempty"`
	Locked    bool   `json:"locked,omitempty"`
	FlashSize int    `json:"flashSize,omitempty"`
}

// Duration accepts Go duration strings ("250ms", "5s") in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"5s\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Load reads a profile from path.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML profile.
func Parse(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &p, nil
}
