package utils

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aetherhq/aether-backend/internal/pkg/logger"
)

// lookup reads key and parses it. Unset, blank, or unparseable values fall
// back to def; the outcome is logged at debug.
func lookup[T any](key string, def T, log *logger.Logger, parse func(string) (T, error)) T {
	if log != nil {
		log = log.With("env_var", key)
	}
	raw, ok := os.LookupEnv(key)
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		if log != nil {
			log.Debug("Environment variable not found, using default", "default", def)
		}
		return def
	}
	v, err := parse(raw)
	if err != nil {
		if log != nil {
			log.Debug("Environment variable could not be parsed, using default", "provided", raw, "default", def, "error", err)
		}
		return def
	}
	if log != nil {
		log.Debug("Environment variable found, using it", "value", v)
	}
	return v
}

func GetEnv(key, defaultVal string, log *logger.Logger) string {
	return lookup(key, defaultVal, log, func(s string) (string, error) { return s, nil })
}

func GetEnvAsInt(key string, defaultVal int, log *logger.Logger) int {
	return lookup(key, defaultVal, log, strconv.Atoi)
}

func GetEnvAsInt64(key string, defaultVal int64, log *logger.Logger) int64 {
	return lookup(key, defaultVal, log, func(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) })
}

func GetEnvAsFloat(key string, defaultVal float64, log *logger.Logger) float64 {
	return lookup(key, defaultVal, log, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}

func GetEnvAsBool(key string, defaultVal bool, log *logger.Logger) bool {
	return lookup(key, defaultVal, log, parseBool)
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("not a bool: %q", s)
}

// GetEnvAsDuration accepts Go duration strings ("90s", "5m") or a bare number of seconds.
func GetEnvAsDuration(key string, defaultVal time.Duration, log *logger.Logger) time.Duration {
	return lookup(key, defaultVal, log, func(s string) (time.Duration, error) {
		if d, err := time.ParseDuration(s); err == nil {
			return d, nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("not a duration: %q", s)
		}
		return time.Duration(n) * time.Second, nil
	})
}

// GetEnvAsList splits a comma-separated value, dropping blank entries.
func GetEnvAsList(key string, defaultVal []string, log *logger.Logger) []string {
	return lookup(key, defaultVal, log, func(s string) ([]string, error) {
		var out []string
		for _, part := range strings.Split(s, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	})
}

// GetEnvAsMap parses "k1=v1,k2=v2"; malformed pairs are skipped.
func GetEnvAsMap(key string, log *logger.Logger) map[string]string {
	return lookup(key, map[string]string(nil), log, func(s string) (map[string]string, error) {
		out := map[string]string{}
		for _, part := range strings.Split(s, ",") {
			k, v, ok := strings.Cut(part, "=")
			k, v = strings.TrimSpace(k), strings.TrimSpace(v)
			if ok && k != "" && v != "" {
				out[k] = v
			}
		}
		if len(out) == 0 {
			return nil, nil
		}
		return out, nil
	})
}
