package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	EnvLogLevel     = "PATTERNBUS_LOG_LEVEL"
	EnvLogFormat    = "PATTERNBUS_LOG_FORMAT"
	EnvScheduler    = "PATTERNBUS_SCHEDULER"
	EnvBacklog      = "PATTERNBUS_BACKLOG"
	EnvCopyPayloads = "PATTERNBUS_COPY_PAYLOADS"
	EnvMetrics      = "PATTERNBUS_METRICS"
	EnvTimeout      = "PATTERNBUS_TIMEOUT"
)

var (
	trueValues  = []string{"1", "yes", "true", "on"}
	falseValues = []string{"0", "no", "false", "off"}
)

// ApplyEnvOverrides replaces settings in cfg with any that are set in the environment.
// Values that can't be interpreted are ignored, leaving the current setting in place.
func ApplyEnvOverrides(cfg *Config) {
	cfg.Log.Level = envVal(EnvLogLevel, cfg.Log.Level)
	cfg.Log.Format = envVal(EnvLogFormat, cfg.Log.Format)
	cfg.Scheduler.Mode = envVal(EnvScheduler, cfg.Scheduler.Mode)
	cfg.Scheduler.Backlog = int(envInt(EnvBacklog, int64(cfg.Scheduler.Backlog)))
	cfg.Transport.CopyPayloads = envBool(EnvCopyPayloads, cfg.Transport.CopyPayloads)
	cfg.Metrics.Enabled = envBool(EnvMetrics, cfg.Metrics.Enabled)
	cfg.RequestTimeout = envDuration(EnvTimeout, cfg.RequestTimeout)
}

// envVal returns the trimmed value of key, or defaultVal if it's unset or blank.
// Keys are compared case-insensitive.
func envVal(key string, defaultVal string) string {
	for _, kv := range os.Environ() {
		k, v, found := strings.Cut(kv, "=")
		if !found || !strings.EqualFold(k, key) {
			continue
		}
		if trimmed := strings.TrimSpace(v); len(trimmed) > 0 {
			return trimmed
		}
		return defaultVal
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	sval := strings.ToLower(envVal(key, ""))
	if len(sval) == 0 {
		return defaultVal
	}
	for _, v := range trueValues {
		if sval == v {
			return true
		}
	}
	for _, v := range falseValues {
		if sval == v {
			return false
		}
	}
	return defaultVal
}

func envInt(key string, defaultVal int64) int64 {
	sval := envVal(key, "")
	if len(sval) == 0 {
		return defaultVal
	}
	ival, err := strconv.ParseInt(sval, 10, 64)
	if err != nil {
		return defaultVal
	}
	return ival
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	sval := envVal(key, "")
	if len(sval) == 0 {
		return defaultVal
	}
	dval, err := time.ParseDuration(sval)
	if err != nil {
		return defaultVal
	}
	return dval
}
