// Package config loads the caster's JSON configuration file, in the
// shape of the teacher's jsonconfig package (a plain struct decoded
// with encoding/json, decoded over a struct pre-filled with defaults) generalized
// from that package's NTRIP-server fields to the caster's own
// ntrip/network/tcp/data_forwarding/rtcm/caster/app key groups, plus
// environment-variable overrides and struct-tag validation.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// NTRIP holds the listener and per-connection policy keys.
type NTRIP struct {
	Port                    int `json:"port" validate:"min=1,max=65535"`
	MaxConnectionsPerUser   int `json:"max_connections_per_user" validate:"min=1"`
	ConnectionTimeoutSec    int `json:"connection_timeout" validate:"min=1"`
}

// Network holds the listen address and buffer sizing keys.
type Network struct {
	Host           string `json:"host" validate:"required"`
	MaxConnections int    `json:"max_connections" validate:"min=1"`
	BufferSize     int    `json:"buffer_size" validate:"min=1"`
	MaxBufferSize  int    `json:"max_buffer_size" validate:"min=1"`
}

// TCP holds keepalive and socket timeout tuning.
type TCP struct {
	KeepaliveEnabled  bool `json:"keepalive_enabled"`
	KeepaliveIdleSec  int  `json:"keepalive_idle" validate:"min=1"`
	KeepaliveIntvlSec int  `json:"keepalive_interval" validate:"min=1"`
	KeepaliveCount    int  `json:"keepalive_count" validate:"min=1"`
	SocketTimeoutSec  int  `json:"socket_timeout" validate:"min=1"`
}

// DataForwarding holds forwarder.Config's tuning as config keys.
type DataForwarding struct {
	RingBufferSize     int     `json:"ring_buffer_size" validate:"min=1"`
	BroadcastInterval  float64 `json:"broadcast_interval" validate:"min=0"`
	DataSendTimeoutSec int     `json:"data_send_timeout" validate:"min=1"`
}

// RTCM holds the inspector's STR_FIX duration and bitrate recompute
// interval.
type RTCM struct {
	ParseDurationSec int `json:"parse_duration" validate:"min=1"`
	ParseIntervalSec int `json:"parse_interval" validate:"min=1"`
}

// Caster holds the caster's own sourcetable CAS; line identity.
type Caster struct {
	Country   string  `json:"country" validate:"len=3"`
	Latitude  float64 `json:"latitude" validate:"min=-90,max=90"`
	Longitude float64 `json:"longitude" validate:"min=-180,max=180"`
}

// App holds the NET; line / sourcetable identity strings.
type App struct {
	Name    string `json:"name"`
	Author  string `json:"author"`
	Website string `json:"website"`
	Contact string `json:"contact"`
}

// Logging holds the ambient logging keys SPEC_FULL adds beyond the
// core contract: level and the anti-spam throttle window.
type Logging struct {
	Level              string `json:"level"`
	ThrottleWindowMs   int    `json:"throttle_window_ms" validate:"min=0"`
}

// Config is the full decoded JSON configuration file.
type Config struct {
	NTRIP          NTRIP          `json:"ntrip"`
	Network        Network        `json:"network"`
	TCP            TCP            `json:"tcp"`
	DataForwarding DataForwarding `json:"data_forwarding"`
	RTCM           RTCM           `json:"rtcm"`
	Caster         Caster         `json:"caster"`
	App            App            `json:"app"`
	Logging        Logging        `json:"logging"`
}

// Default returns the configuration the core falls back to for any
// key not present in a loaded file.
func Default() Config {
	return Config{
		NTRIP: NTRIP{
			Port:                  2101,
			MaxConnectionsPerUser: 3,
			ConnectionTimeoutSec:  1800,
		},
		Network: Network{
			Host:           "0.0.0.0",
			MaxConnections: 5000,
			BufferSize:     81920,
			MaxBufferSize:  655360,
		},
		TCP: TCP{
			KeepaliveEnabled:  true,
			KeepaliveIdleSec:  60,
			KeepaliveIntvlSec: 10,
			KeepaliveCount:    3,
			SocketTimeoutSec:  120,
		},
		DataForwarding: DataForwarding{
			RingBufferSize:     60,
			BroadcastInterval:  0.01,
			DataSendTimeoutSec: 5,
		},
		RTCM: RTCM{
			ParseDurationSec: 30,
			ParseIntervalSec: 5,
		},
		Caster: Caster{
			Country: "USA",
		},
		Logging: Logging{
			Level:            "info",
			ThrottleWindowMs: 1000,
		},
	}
}

// Load reads and decodes the JSON file at path over a copy of
// Default(), so any key the file omits keeps its default, then
// applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	cfg := Default()
	if err := json.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: invalid JSON in %s: %w", path, err)
	}

	ApplyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate runs the struct-tag validation rules over the config.
func (c Config) Validate() error {
	return validator.New().Struct(c)
}

// envOverrides lists the environment variables that may override a
// config key, each paired with a setter closure. Kept as an explicit
// table rather than reflection over json tags: the set of overridable
// keys is small and fixed, and an explicit table is what a reader
// diffs against the external-interface key list in one glance.
func envOverrides(c *Config) map[string]func(string) error {
	return map[string]func(string) error{
		"NTRIPCASTER_NTRIP_PORT":                     intSetter(&c.NTRIP.Port),
		"NTRIPCASTER_NTRIP_MAX_CONNECTIONS_PER_USER":  intSetter(&c.NTRIP.MaxConnectionsPerUser),
		"NTRIPCASTER_NTRIP_CONNECTION_TIMEOUT":        intSetter(&c.NTRIP.ConnectionTimeoutSec),
		"NTRIPCASTER_NETWORK_HOST":                    stringSetter(&c.Network.Host),
		"NTRIPCASTER_NETWORK_MAX_CONNECTIONS":         intSetter(&c.Network.MaxConnections),
		"NTRIPCASTER_DATA_FORWARDING_RING_BUFFER_SIZE": intSetter(&c.DataForwarding.RingBufferSize),
		"NTRIPCASTER_RTCM_PARSE_DURATION":             intSetter(&c.RTCM.ParseDurationSec),
		"NTRIPCASTER_RTCM_PARSE_INTERVAL":             intSetter(&c.RTCM.ParseIntervalSec),
		"NTRIPCASTER_CASTER_COUNTRY":                  stringSetter(&c.Caster.Country),
		"NTRIPCASTER_LOGGING_LEVEL":                   stringSetter(&c.Logging.Level),
	}
}

// ApplyEnvOverrides mutates cfg in place from any of the recognized
// environment variables that are set. An unparseable value is ignored
// rather than erroring startup over a malformed override.
func ApplyEnvOverrides(cfg *Config) {
	for name, set := range envOverrides(cfg) {
		v, ok := os.LookupEnv(name)
		if !ok {
			continue
		}
		set(v)
	}
}

func intSetter(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func stringSetter(dst *string) func(string) error {
	return func(v string) error {
		*dst = v
		return nil
	}
}
