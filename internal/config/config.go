// Package config loads runtime settings for the relay and the scorekeeper client.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/DoyleJ11/league-scorekeeper/internal/platform/logging"
	"github.com/DoyleJ11/league-scorekeeper/internal/platform/resilience"
)

const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"
)

// Config stores runtime configuration.
type Config struct {
	AppEnv      string `validate:"oneof=dev stage prod"`
	LogLevel    logging.Level
	HTTPAddr    string `validate:"required"`
	DatabaseURL string

	// Number of games in a match = SetsPerMatch * GamesPerSet.
	SetsPerMatch int `validate:"gte=1"`
	GamesPerSet  int `validate:"gte=1"`

	RelayURL          string        `validate:"omitempty,url"`
	ReconnectAttempts int           `validate:"gte=1"`
	ReconnectInterval time.Duration `validate:"gt=0"`
	WSOriginPatterns  []string

	LeagueAPIURL     string        `validate:"omitempty,url"`
	LeagueAPIToken   string
	LeagueAPITimeout time.Duration `validate:"gt=0"`
	LeagueCircuit    resilience.CircuitBreakerConfig

	CachePath string `validate:"required"`
}

func (c Config) GameCount() int {
	return c.SetsPerMatch * c.GamesPerSet
}

// LoadDotEnv seeds the environment from the given files (default .env). Missing files are
// ignored and variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func Load() (Config, error) {
	cfg := Config{
		AppEnv:         strings.ToLower(strings.TrimSpace(getEnv("APP_ENV", EnvDev))),
		LogLevel:       logging.ParseLevel(getEnv("LOG_LEVEL", "info")),
		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:    strings.TrimSpace(getEnv("DATABASE_URL", "")),
		RelayURL:       strings.TrimSpace(getEnv("RELAY_URL", "ws://localhost:8080/ws")),
		LeagueAPIURL:   strings.TrimSpace(getEnv("LEAGUE_API_URL", "")),
		LeagueAPIToken: strings.TrimSpace(getEnv("LEAGUE_API_TOKEN", "")),
		CachePath:      getEnv("CACHE_PATH", "scorekeeper-cache.db"),
	}
	cfg.WSOriginPatterns = splitCSV(getEnv("WS_ORIGIN_PATTERNS", ""))

	var err error
	if cfg.SetsPerMatch, err = getEnvAsInt("SETS_PER_MATCH", 4); err != nil {
		return Config{}, fmt.Errorf("parse SETS_PER_MATCH: %w", err)
	}
	if cfg.GamesPerSet, err = getEnvAsInt("GAMES_PER_SET", 4); err != nil {
		return Config{}, fmt.Errorf("parse GAMES_PER_SET: %w", err)
	}
	if cfg.ReconnectAttempts, err = getEnvAsInt("RECONNECT_ATTEMPTS", 5); err != nil {
		return Config{}, fmt.Errorf("parse RECONNECT_ATTEMPTS: %w", err)
	}
	if cfg.ReconnectInterval, err = getEnvAsDuration("RECONNECT_INTERVAL", 3*time.Second); err != nil {
		return Config{}, fmt.Errorf("parse RECONNECT_INTERVAL: %w", err)
	}
	if cfg.LeagueAPITimeout, err = getEnvAsDuration("LEAGUE_API_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, fmt.Errorf("parse LEAGUE_API_TIMEOUT: %w", err)
	}

	circuitEnabled, err := strconv.ParseBool(getEnv("LEAGUE_API_CIRCUIT_ENABLED", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("parse LEAGUE_API_CIRCUIT_ENABLED: %w", err)
	}
	failureCount, err := getEnvAsInt("LEAGUE_API_CIRCUIT_FAILURE_COUNT", 5)
	if err != nil {
		return Config{}, fmt.Errorf("parse LEAGUE_API_CIRCUIT_FAILURE_COUNT: %w", err)
	}
	openTimeout, err := getEnvAsDuration("LEAGUE_API_CIRCUIT_OPEN_TIMEOUT", 15*time.Second)
	if err != nil {
		return Config{}, fmt.Errorf("parse LEAGUE_API_CIRCUIT_OPEN_TIMEOUT: %w", err)
	}
	cfg.LeagueCircuit = resilience.NormalizeCircuitBreakerConfig(resilience.CircuitBreakerConfig{
		Enabled:          circuitEnabled,
		FailureThreshold: failureCount,
		OpenTimeout:      openTimeout,
	})

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.AppEnv == EnvProd && cfg.LeagueAPIURL == "" {
		return Config{}, fmt.Errorf("LEAGUE_API_URL is required when APP_ENV=%s", EnvProd)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}

func getEnvAsInt(key string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	out, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}

	return out, nil
}

func getEnvAsDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}
	return time.ParseDuration(value)
}

func splitCSV(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
