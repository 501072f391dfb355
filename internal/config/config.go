package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

type AppConfig struct {
	BrokerURL       string
	BrokerUsername  string
	BrokerPassword  string
	BrokerRetries   int
	BrokerBackoffMS int
	BrokerTimeoutMS int
	BrokerAutoPoll  bool

	AutoReply bool

	EngineHeuristic  string
	EngineMaxDepth   int
	EngineMaxSeconds int
	EngineMaxMoves   int
	EngineAutoDepth  bool
	StockfishPath    string

	HTTPAddr    string
	DatabaseURL string
	MessagesDir string
}

// BrokerEnabled reports whether a broker relay was configured.
func (c *AppConfig) BrokerEnabled() bool { return c.BrokerURL != "" }

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		BrokerRetries:    10,
		BrokerBackoffMS:  500,
		BrokerTimeoutMS:  5000,
		AutoReply:        true,
		EngineHeuristic:  "material",
		EngineMaxDepth:   6,
		EngineMaxSeconds: 5,
		EngineMaxMoves:   150,
		HTTPAddr:         ":8080",
	}

	cfg.BrokerURL = env("BROKER_URL")
	cfg.BrokerUsername = env("BROKER_USERNAME")
	cfg.BrokerPassword = env("BROKER_PASSWORD")
	// 0 retries is valid: a single GET
	intVar(&cfg.BrokerRetries, "BROKER_RETRIES", 0)
	intVar(&cfg.BrokerBackoffMS, "BROKER_BACKOFF_MS", 0)
	intVar(&cfg.BrokerTimeoutMS, "BROKER_TIMEOUT_MS", 1)
	boolVar(&cfg.BrokerAutoPoll, "BROKER_AUTO_POLL")

	boolVar(&cfg.AutoReply, "AUTO_REPLY")

	if v := env("ENGINE_HEURISTIC"); v != "" {
		cfg.EngineHeuristic = strings.ToLower(v)
	}
	intVar(&cfg.EngineMaxDepth, "ENGINE_MAX_DEPTH", 1)
	intVar(&cfg.EngineMaxSeconds, "ENGINE_MAX_SECONDS", 1)
	intVar(&cfg.EngineMaxMoves, "ENGINE_MAX_MOVES", 1)
	boolVar(&cfg.EngineAutoDepth, "ENGINE_AUTO_DEPTH")
	cfg.StockfishPath = env("STOCKFISH_PATH")

	if v := env("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	cfg.DatabaseURL = env("DATABASE_URL")
	cfg.MessagesDir = env("MESSAGES_DIR")

	if cfg.BrokerURL != "" {
		u, err := url.Parse(cfg.BrokerURL)
		if err != nil {
			return nil, fmt.Errorf("BROKER_URL: %w", err)
		}
		switch strings.ToLower(u.Scheme) {
		case "http", "https", "redis", "rediss":
		default:
			return nil, fmt.Errorf("BROKER_URL: unsupported scheme %q", u.Scheme)
		}
	}
	switch cfg.EngineHeuristic {
	case "random", "material":
	case "uci":
		if cfg.StockfishPath == "" {
			return nil, fmt.Errorf("STOCKFISH_PATH is required for ENGINE_HEURISTIC=uci")
		}
	default:
		return nil, fmt.Errorf("ENGINE_HEURISTIC: unknown heuristic %q", cfg.EngineHeuristic)
	}

	return cfg, nil
}

func env(k string) string { return strings.TrimSpace(os.Getenv(k)) }

// intVar keeps the default when the variable is unset, malformed or below floor.
func intVar(dst *int, k string, floor int) {
	if v := env(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= floor {
			*dst = n
		}
	}
}

func boolVar(dst *bool, k string) {
	if v := env(k); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
