package core

import (
	"fmt"
	"strings"
)

type DispatcherSettings struct {
	SilentPoolSize int `koanf:"silent_pool_size" mapstructure:"silent_pool_size"`
	InFlightShards int `koanf:"in_flight_shards" mapstructure:"in_flight_shards"`
}

type TelemetrySettings struct {
	Disabled         bool   `koanf:"disabled" mapstructure:"disabled"`
	SchemaVersion    string `koanf:"schema_version" mapstructure:"schema_version"`
	HeaderByteBudget int    `koanf:"header_byte_budget" mapstructure:"header_byte_budget"`
}

type Config struct {
	ServiceName string             `koanf:"service_name" mapstructure:"service_name"`
	Dispatcher  DispatcherSettings `koanf:"dispatcher" mapstructure:"dispatcher"`
	Telemetry   TelemetrySettings  `koanf:"telemetry" mapstructure:"telemetry"`
}

const minTelemetryByteBudget = 64

func DefaultConfig() Config {
	return Config{
		ServiceName: "authcore",
		Dispatcher: DispatcherSettings{
			SilentPoolSize: defaultSilentPoolSize,
			InFlightShards: defaultShardCount,
		},
		Telemetry: TelemetrySettings{
			SchemaVersion:    TelemetrySchemaVersion,
			HeaderByteBudget: DefaultTelemetryByteBudget,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Dispatcher.SilentPoolSize < 1 {
		return fmt.Errorf("core: dispatcher.silent_pool_size must be at least 1")
	}
	if c.Dispatcher.InFlightShards < 1 {
		return fmt.Errorf("core: dispatcher.in_flight_shards must be at least 1")
	}
	if strings.TrimSpace(c.Telemetry.SchemaVersion) == "" {
		return fmt.Errorf("core: telemetry.schema_version is required")
	}
	if c.Telemetry.HeaderByteBudget < minTelemetryByteBudget {
		return fmt.Errorf("core: telemetry.header_byte_budget must be at least %d", minTelemetryByteBudget)
	}
	return nil
}

func (c Config) dispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		SilentPoolSize: c.Dispatcher.SilentPoolSize,
		InFlightShards: c.Dispatcher.InFlightShards,
	}
}

func (c Config) ledgerConfig() TelemetryLedgerConfig {
	return TelemetryLedgerConfig{
		SchemaVersion: c.Telemetry.SchemaVersion,
		ByteBudget:    c.Telemetry.HeaderByteBudget,
		Shards:        c.Dispatcher.InFlightShards,
	}
}
