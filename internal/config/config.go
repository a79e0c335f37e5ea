package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
)

// Default file names, relative to the working directory.
const (
	DefaultConfigPath = "de_mavlink.config.module.json"
	DefaultLocalPath  = "de_mavlink.local"
)

// ErrMissingField is matched by every MissingFieldError.
var ErrMissingField = errors.New("missing configuration field")

// MissingFieldError names a mandatory key absent from the config file.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing configuration field %q", e.Field)
}

func (e *MissingFieldError) Is(target error) bool {
	return target == ErrMissingField
}

// Port accepts both "60000" and 60000 in JSON; Drone-Engage config files
// carry ports as strings.
type Port int

func (p *Port) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("port %q: %w", s, err)
		}
		*p = Port(n)
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("port %s: not a string or integer", b)
	}
	*p = Port(n)
	return nil
}

// Config holds the module configuration.
type Config struct {
	ModuleID   string `json:"module_id"`
	TargetIP   string `json:"s2s_udp_target_ip"`
	TargetPort Port   `json:"s2s_udp_target_port"`
	ListenIP   string `json:"s2s_udp_listening_ip"`
	ListenPort Port   `json:"s2s_udp_listening_port"`

	LoggerEnabled bool   `json:"logger_enabled"`
	LoggerDebug   bool   `json:"logger_debug"`
	LogDir        string `json:"log_dir"`

	EventFireChannel *int `json:"event_fire_channel"`
	EventWaitChannel *int `json:"event_wait_channel"`

	TelemetryRateHz float64  `json:"telemetry_rate_hz"`
	MonitorListen   string   `json:"monitor_listen"`
	EtcdEndpoints   []string `json:"etcd_endpoints"`
}

// DefaultConfig returns a Config with defaults for every optional field.
// Mandatory fields are left empty.
func DefaultConfig() Config {
	return Config{
		LogDir:          "./logs",
		TelemetryRateHz: 10,
	}
}

// Load reads the JSON config file at path over DefaultConfig and checks
// the mandatory fields.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes config JSON over DefaultConfig and validates it.
func Parse(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate returns a *MissingFieldError for the first absent mandatory field.
func (c Config) Validate() error {
	switch {
	case c.ModuleID == "":
		return &MissingFieldError{Field: "module_id"}
	case c.TargetIP == "":
		return &MissingFieldError{Field: "s2s_udp_target_ip"}
	case c.TargetPort == 0:
		return &MissingFieldError{Field: "s2s_udp_target_port"}
	case c.ListenIP == "":
		return &MissingFieldError{Field: "s2s_udp_listening_ip"}
	case c.ListenPort == 0:
		return &MissingFieldError{Field: "s2s_udp_listening_port"}
	}
	return nil
}

// TargetAddr is the communicator's UDP address.
func (c Config) TargetAddr() string {
	return net.JoinHostPort(c.TargetIP, strconv.Itoa(int(c.TargetPort)))
}

// ListenAddr is the local UDP address this module binds.
func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.ListenIP, strconv.Itoa(int(c.ListenPort)))
}

// EventChannels returns the fire and wait channels, ok only when both are set.
func (c Config) EventChannels() (fire, wait int, ok bool) {
	if c.EventFireChannel == nil || c.EventWaitChannel == nil {
		return 0, 0, false
	}
	return *c.EventFireChannel, *c.EventWaitChannel, true
}
