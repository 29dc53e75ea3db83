// Package config loads the stack's tunables from a YAML file via
// gopkg.in/yaml.v2, replacing the teacher's const-only config package;
// the teacher's own client/client_with_reconnect.go already calls a
// config.ReadConfig("config.yaml") that the const-based package never
// defined - this fills in what that call site always expected.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config holds every knob a PcpCore/Connection needs, in one YAML
// document.
type Config struct {
	ProtocolID      uint8 `yaml:"protocol_id"`
	PreferredMSS    int   `yaml:"preferred_mss"`
	PayloadPoolSize int   `yaml:"payload_pool_size"`
	WindowScale     uint8 `yaml:"window_scale"`
	ReadBufferSize  int   `yaml:"read_buffer_size"`
	WriteBufferSize int   `yaml:"write_buffer_size"`

	ClientPortLower uint16 `yaml:"client_port_lower"`
	ClientPortUpper uint16 `yaml:"client_port_upper"`

	MSL           time.Duration `yaml:"msl"`
	MinRTO        time.Duration `yaml:"min_rto"`
	MaxRTO        time.Duration `yaml:"max_rto"`
	KeepaliveIdle time.Duration `yaml:"keepalive_idle"`

	Debug     bool `yaml:"debug"`
	PoolDebug bool `yaml:"pool_debug"`
}

// Default mirrors the teacher's DefaultPcpCoreConfig/DefaultRsConfig
// values where they overlap, with RFC-recommended TCP defaults (2-minute
// MSL) filled in for what the teacher never parameterized.
func Default() *Config {
	return &Config{
		ProtocolID:      6,
		PreferredMSS:    1440,
		PayloadPoolSize: 2000,
		WindowScale:     0,
		ReadBufferSize:  64 * 1024,
		WriteBufferSize: 64 * 1024,
		ClientPortLower: 32768,
		ClientPortUpper: 60999,
		MSL:             2 * time.Minute,
		MinRTO:          200 * time.Millisecond,
		MaxRTO:          60 * time.Second,
		KeepaliveIdle:   2 * time.Hour,
		Debug:           false,
		PoolDebug:       false,
	}
}

// ReadConfig loads a Config from a YAML file, starting from Default and
// overriding only the fields the file sets.
func ReadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
