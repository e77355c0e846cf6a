// Package config loads the externally adjustable knobs of the matching
// core from environment variables (with optional .env support), the
// same layering the teacher uses for consensus timing knobs.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every configuration key spec.md §6 names, plus the
// process-level knobs (listen address, store path, log file) every
// service in the corpus externalizes.
type Config struct {
	// Domain knobs (spec.md §6).
	CommissionRate         float64
	MaxOrdersPerUser       int
	OrderExpiryHours       int
	MatchingInterval       time.Duration
	QCSMDeadline           time.Duration
	NegotiationDeadline    time.Duration
	SpreadAlertCap         float64
	OrderBookMirrorTTL     time.Duration

	// Process knobs.
	ListenAddr  string
	StorePath   string
	LogFile     string
	SinkTimeout time.Duration
}

// Default returns the specification's stated defaults.
func Default() Config {
	return Config{
		CommissionRate:      0.001,
		MaxOrdersPerUser:    50,
		OrderExpiryHours:    24,
		MatchingInterval:    5 * time.Second,
		QCSMDeadline:        60 * time.Second,
		NegotiationDeadline: 30 * time.Second,
		SpreadAlertCap:      0.20,
		OrderBookMirrorTTL:  30 * time.Second,

		ListenAddr:  ":8080",
		StorePath:   "data/tradecore.db",
		LogFile:     "data/tradecore.log",
		SinkTimeout: 5 * time.Second,
	}
}

// LoadFromEnv loads a .env file (if present) then overlays environment
// variables on top of Default(). envPath == "" loads ".env" from the
// current directory; a missing file is not an error.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("COMMISSION_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.CommissionRate = f
		}
	}
	if v := os.Getenv("MAX_ORDERS_PER_USER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxOrdersPerUser = n
		}
	}
	if v := os.Getenv("ORDER_EXPIRY_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.OrderExpiryHours = n
		}
	}
	if v := os.Getenv("MATCHING_INTERVAL_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.MatchingInterval = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("QCSM_DEADLINE_S"); v != "" {
		if s, err := strconv.Atoi(v); err == nil {
			cfg.QCSMDeadline = time.Duration(s) * time.Second
		}
	}
	if v := os.Getenv("NEGOTIATION_DEADLINE_S"); v != "" {
		if s, err := strconv.Atoi(v); err == nil {
			cfg.NegotiationDeadline = time.Duration(s) * time.Second
		}
	}
	if v := os.Getenv("SPREAD_ALERT_CAP"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.SpreadAlertCap = f
		}
	}
	if v := os.Getenv("ORDER_BOOK_MIRROR_TTL_S"); v != "" {
		if s, err := strconv.Atoi(v); err == nil {
			cfg.OrderBookMirrorTTL = time.Duration(s) * time.Second
		}
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("STORE_PATH"); v != "" {
		cfg.StorePath = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("SINK_TIMEOUT_S"); v != "" {
		if s, err := strconv.Atoi(v); err == nil {
			cfg.SinkTimeout = time.Duration(s) * time.Second
		}
	}

	return cfg
}
