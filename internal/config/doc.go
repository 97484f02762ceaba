// Package config loads controller configuration: built-in defaults, an
// optional JSON file, then FARM_* environment variables.
//
//	cfg, err := config.Load("/etc/farm.json")
//	if err != nil { /* handle */ }
//	if err := config.FromEnv(&cfg); err != nil { /* handle */ }
//	if err := cfg.Validate(); err != nil { /* handle */ }
package config
