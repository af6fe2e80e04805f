package config

import (
	"os"
	"strconv"
)

// applyEnv overlays environment variables on a loaded config.
// Falls back to the current values if variables are not set.
func applyEnv(cfg *Config) {
	if v := os.Getenv("OPSCYCLE_PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("OPSCYCLE_DB"); v != "" {
		cfg.Store.SQLitePath = v
	}
	if v := os.Getenv("OPSCYCLE_DRIVER_ENABLED"); v != "" {
		cfg.Driver.Enabled = v == "1" || v == "true"
	}
	if v := getEnvInt("OPSCYCLE_DRIVER_INTERVAL_MINUTES"); v > 0 {
		cfg.Driver.IntervalMinutes = v
	}
}

func getEnvInt(key string) int {
	val := os.Getenv(key)
	if val == "" {
		return 0
	}
	num, err := strconv.Atoi(val)
	if err != nil {
		return 0
	}
	return num
}
