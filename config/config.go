// Package config loads and validates the tunable parameters of the duel
// subsystem: problem count and timeout, rate limiting, reconnect grace,
// matchmaking cadence and tolerance slope, the Elo K-factor, and rank
// thresholds.
package config

import (
	"encoding/json"
	"log"
	"os"
	"strconv"
)

// RankThreshold is one band in the rating-to-rank table.
type RankThreshold struct {
	Name   string `json:"name"`
	Rating float64 `json:"rating"`
}

// Config holds all configurable duel parameters.
type Config struct {
	ProblemCount      int     `json:"problem_count"`
	ProblemTimeoutSec int     `json:"problem_timeout_sec"`
	RateWindowSec     int     `json:"rate_window_sec"`
	RateMax           int     `json:"rate_max"`
	ReconnectGraceSec int     `json:"reconnect_grace_sec"`
	MatchmakeIntervalSec int  `json:"matchmake_interval_sec"`
	ToleranceSlope    float64 `json:"tolerance_slope"` // rating-points per second
	EloK              float64 `json:"elo_k"`
	MaxNameLength     int     `json:"max_name_length"`
	WSPort            int     `json:"ws_port"`

	// AuthJWKSBaseURL is the base URL of the external identity provider's
	// JWKS issuer (e.g. "https://auth.example.com"); empty disables token
	// validation and the gateway rejects every connection with "invalid token".
	AuthJWKSBaseURL string `json:"auth_jwks_base_url"`

	// DatabaseURL is the Postgres connection string for the persistence
	// store. Empty disables persistence (an in-memory store is used so
	// the runner's settlement path still runs, but nothing survives
	// restart) — same nil-store convention the teacher repo uses.
	DatabaseURL string `json:"-"`

	// RankThresholds is ordered ascending by Rating; the highest
	// threshold not exceeding a rating gives the rank name.
	RankThresholds []RankThreshold `json:"rank_thresholds"`
}

// Defaults returns a Config with every value from spec.md §4.5/§6.
func Defaults() *Config {
	return &Config{
		ProblemCount:         3,
		ProblemTimeoutSec:    120,
		RateWindowSec:        10,
		RateMax:              3,
		ReconnectGraceSec:    10,
		MatchmakeIntervalSec: 3,
		ToleranceSlope:       50,
		EloK:                 32,
		MaxNameLength:        24,
		WSPort:               8080,
		RankThresholds: []RankThreshold{
			{Name: "Bronze", Rating: 0},
			{Name: "Silver", Rating: 1200},
			{Name: "Gold", Rating: 1700},
			{Name: "Elite", Rating: 2300},
			{Name: "Sensei", Rating: 3000},
			{Name: "Legend", Rating: 5000},
		},
	}
}

// RankFor returns the name of the highest threshold not exceeding rating.
func (c *Config) RankFor(rating float64) string {
	name := ""
	for _, t := range c.RankThresholds {
		if rating >= t.Rating {
			name = t.Name
		}
	}
	return name
}

// Load reads configuration from an optional config.json file, then
// applies environment variable overrides. Fields not set in either
// source retain their default values.
func Load() *Config {
	cfg := Defaults()

	if f, err := os.Open("config.json"); err == nil {
		defer f.Close()
		if err := json.NewDecoder(f).Decode(cfg); err != nil {
			log.Printf("Warning: failed to parse config.json: %v", err)
		}
	}

	overrideInt(&cfg.ProblemCount, "PROBLEM_COUNT")
	overrideInt(&cfg.ProblemTimeoutSec, "PROBLEM_TIMEOUT_SEC")
	overrideInt(&cfg.RateWindowSec, "RATE_WINDOW_SEC")
	overrideInt(&cfg.RateMax, "RATE_MAX")
	overrideInt(&cfg.ReconnectGraceSec, "RECONNECT_GRACE_SEC")
	overrideInt(&cfg.MatchmakeIntervalSec, "MATCHMAKE_INTERVAL_SEC")
	overrideFloat(&cfg.ToleranceSlope, "TOLERANCE_SLOPE")
	overrideFloat(&cfg.EloK, "ELO_K")
	overrideInt(&cfg.MaxNameLength, "MAX_NAME_LENGTH")
	overrideInt(&cfg.WSPort, "WS_PORT")
	overrideString(&cfg.AuthJWKSBaseURL, "AUTH_JWKS_BASE_URL")
	overrideString(&cfg.DatabaseURL, "DATABASE_URL")

	if cfg.ReconnectGraceSec < 5 {
		cfg.ReconnectGraceSec = 5
	}
	if cfg.ReconnectGraceSec > 15 {
		cfg.ReconnectGraceSec = 15
	}

	return cfg
}

func overrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			*field = n
		} else {
			log.Printf("Warning: invalid value for %s: %q", envKey, val)
		}
	}
}

func overrideFloat(field *float64, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		if n, err := strconv.ParseFloat(val, 64); err == nil {
			*field = n
		} else {
			log.Printf("Warning: invalid value for %s: %q", envKey, val)
		}
	}
}

func overrideString(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}
