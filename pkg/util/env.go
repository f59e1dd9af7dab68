package util

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

// LoadEnv loads .env and .env.<env> from the working directory. Values already
// present in the process environment win.
func LoadEnv(env string) error {
	files := make([]string, 0, 2)
	for _, name := range []string{".env", fmt.Sprintf(".env.%s", env)} {
		if _, err := os.Stat(name); err == nil {
			files = append(files, name)
		}
	}
	if len(files) == 0 {
		return fmt.Errorf("no env file found for %q", env)
	}
	return godotenv.Load(files...)
}

func GetEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func GetEnvOr(key, fallback string) string {
	if v := GetEnv(key); v != "" {
		return v
	}
	return fallback
}

func GetIntEnv(key string) int64 {
	return cast.ToInt64(GetEnv(key))
}

func GetIntEnvOr(key string, fallback int64) int64 {
	v := GetEnv(key)
	if v == "" {
		return fallback
	}
	n, err := cast.ToInt64E(v)
	if err != nil {
		return fallback
	}
	return n
}

func GetBoolEnv(key string) bool {
	return GetBoolEnvOr(key, false)
}

func GetBoolEnvOr(key string, fallback bool) bool {
	switch strings.ToLower(GetEnv(key)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// GetDurationEnvOr accepts Go duration strings ("1500ms", "10s") or a bare
// number of milliseconds.
func GetDurationEnvOr(key string, fallback time.Duration) time.Duration {
	v := GetEnv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := cast.ToInt64E(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}

// GetListEnv splits a comma separated variable, dropping empty items.
func GetListEnv(key string) []string {
	raw := GetEnv(key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
