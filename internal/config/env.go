package config

import "github.com/kelseyhightower/envconfig"

// EnvPrefix prefixes every environment variable, e.g. FARM_HTTP_ADDR or
// FARM_SCHEDULER_CLIENT_PRIORITIES.
const EnvPrefix = "FARM"

// FromEnv overlays FARM_* environment variables onto cfg. Unset variables
// leave the current value alone.
func FromEnv(cfg *Config) error {
	return envconfig.Process(EnvPrefix, cfg)
}
