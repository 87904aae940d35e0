// Package envconfig applies environment overrides to evaluation settings.
package envconfig

import (
	"os"
	"strconv"
	"strings"

	"codejudge/internal/judge/model"
	appErr "codejudge/pkg/errors"

	"github.com/joho/godotenv"
)

const (
	EnvPistonURL         = "PISTON_API_URL"
	EnvMaxConcurrent     = "MAX_CONCURRENT"
	EnvRequestsPerSecond = "REQUESTS_PER_SECOND"
)

// LoadDotEnv loads .env style files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return appErr.Wrapf(err, appErr.InvalidConfig, "load env file %s failed", f)
		}
	}
	return nil
}

// Apply overrides the Piston URL and admission limits from lookup.
// lookup is usually os.LookupEnv.
func Apply(pistonURL *string, cfg *model.Config, lookup func(string) (string, bool)) error {
	if v, ok := lookupNonEmpty(lookup, EnvPistonURL); ok && pistonURL != nil {
		*pistonURL = v
	}
	if v, ok := lookupNonEmpty(lookup, EnvMaxConcurrent); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return appErr.ConfigError(EnvMaxConcurrent, "must be a positive integer")
		}
		cfg.MaxConcurrent = n
	}
	if v, ok := lookupNonEmpty(lookup, EnvRequestsPerSecond); ok {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil || r <= 0 {
			return appErr.ConfigError(EnvRequestsPerSecond, "must be a positive number")
		}
		cfg.RequestsPerSecond = r
		if cfg.BurstCapacity > 0 && float64(cfg.BurstCapacity) < r {
			cfg.BurstCapacity = 0
		}
	}
	return nil
}

func lookupNonEmpty(lookup func(string) (string, bool), key string) (string, bool) {
	v, ok := lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}
