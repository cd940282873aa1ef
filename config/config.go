// Package config loads the server settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // CLOCK_TZ must resolve on hosts without a zoneinfo database

	"github.com/joho/godotenv"
	"github.com/warp/clock/shift"
)

type Config struct {
	Addr   string
	DBPath string

	TimeZone string
	Location *time.Location

	QuantumMinutes       int
	MinShiftMinutes      int
	MidnightGraceMinutes int
	MaxDailyHours        int
	MaxOccurrences       int

	Calendar string

	LogJSON  bool
	LogLevel string

	AllowedOriginsRaw string

	// unparsable collects environment values that could not be read.
	unparsable []string
}

// Load reads .env (if present) and the CLOCK_* environment variables.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	cfg.Addr = getEnv("CLOCK_ADDR", ":8080")
	cfg.DBPath = getEnv("CLOCK_DB", "clock.db")
	cfg.TimeZone = getEnv("CLOCK_TZ", "Europe/Berlin")
	cfg.QuantumMinutes = cfg.getEnvInt("CLOCK_QUANTUM_MINUTES", 5)
	cfg.MinShiftMinutes = cfg.getEnvInt("CLOCK_MIN_SHIFT_MINUTES", 5)
	cfg.MidnightGraceMinutes = cfg.getEnvInt("CLOCK_MIDNIGHT_GRACE_MINUTES", 2)
	cfg.MaxDailyHours = cfg.getEnvInt("CLOCK_MAX_DAILY_HOURS", 10)
	cfg.MaxOccurrences = cfg.getEnvInt("CLOCK_MAX_OCCURRENCES", 366)
	cfg.Calendar = getEnv("CLOCK_CALENDAR", "none")
	cfg.LogJSON = cfg.getEnvBool("CLOCK_LOG_JSON", false)
	cfg.LogLevel = getEnv("CLOCK_LOG_LEVEL", "info")
	cfg.AllowedOriginsRaw = getEnv("CLOCK_ALLOWED_ORIGINS", "*")

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the settings and resolves the time zone.
func (c *Config) Validate() error {
	problems := append([]string(nil), c.unparsable...)

	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		problems = append(problems, fmt.Sprintf("CLOCK_TZ: unknown time zone %q", c.TimeZone))
	} else {
		c.Location = loc
	}
	if c.QuantumMinutes <= 0 {
		problems = append(problems, "CLOCK_QUANTUM_MINUTES must be positive")
	} else if (24*60)%c.QuantumMinutes != 0 {
		problems = append(problems, "CLOCK_QUANTUM_MINUTES must divide a day")
	}
	if c.MinShiftMinutes < 0 {
		problems = append(problems, "CLOCK_MIN_SHIFT_MINUTES must not be negative")
	}
	if c.MidnightGraceMinutes < 0 {
		problems = append(problems, "CLOCK_MIDNIGHT_GRACE_MINUTES must not be negative")
	}
	if c.MaxOccurrences <= 0 {
		problems = append(problems, "CLOCK_MAX_OCCURRENCES must be positive")
	}
	if _, err := shift.NewCalendar(c.Calendar); err != nil {
		problems = append(problems, "CLOCK_CALENDAR: "+err.Error())
	}

	if len(problems) > 0 {
		return errors.New("invalid config: " + strings.Join(problems, "; "))
	}
	return nil
}

// Policy returns the engine rules described by the config.
func (c Config) Policy() shift.Policy {
	return shift.Policy{
		Quantum:        time.Duration(c.QuantumMinutes) * time.Minute,
		MinDuration:    time.Duration(c.MinShiftMinutes) * time.Minute,
		MidnightGrace:  time.Duration(c.MidnightGraceMinutes) * time.Minute,
		MaxDaily:       time.Duration(c.MaxDailyHours) * time.Hour,
		MaxOccurrences: c.MaxOccurrences,
	}
}

// AllowedOrigins splits the comma separated CORS origin list.
func (c Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.AllowedOriginsRaw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func (c *Config) getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		c.unparsable = append(c.unparsable, fmt.Sprintf("%s: %q is not a number", key, value))
		return fallback
	}
	return parsed
}

func (c *Config) getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		c.unparsable = append(c.unparsable, fmt.Sprintf("%s: %q is not a boolean", key, value))
		return fallback
	}
	return parsed
}
