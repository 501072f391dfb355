// Package appbuilder turns AppConfig into the runtime dependencies of the client.
package appbuilder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/park285/cheese-wargame/internal/broker"
	"github.com/park285/cheese-wargame/internal/config"
	"github.com/park285/cheese-wargame/internal/controller"
	"github.com/park285/cheese-wargame/internal/engine"
	"github.com/park285/cheese-wargame/internal/engine/chessengine"
	"github.com/park285/cheese-wargame/internal/loop"
	"github.com/park285/cheese-wargame/internal/msgcat"
	"github.com/park285/cheese-wargame/internal/results"
	"go.uber.org/zap"
)

type Deps struct {
	Engine   engine.Factory
	Relay    broker.Relay // nil when no broker is configured
	Results  results.Repository
	Messages *msgcat.Catalog

	cfg    *config.AppConfig
	logger *zap.Logger
}

func New(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Deps{cfg: cfg, logger: logger}

	d.Engine = chessengine.Factory(chessengine.Config{
		Heuristic:     cfg.EngineHeuristic,
		MaxDepth:      cfg.EngineMaxDepth,
		MaxSeconds:    cfg.EngineMaxSeconds,
		MaxMoves:      cfg.EngineMaxMoves,
		AutoDepth:     cfg.EngineAutoDepth,
		StockfishPath: cfg.StockfishPath,
		Logger:        logger.Named("engine"),
	})

	relay, err := NewRelay(cfg)
	if err != nil {
		return nil, fmt.Errorf("init broker relay: %w", err)
	}
	d.Relay = relay

	// Results (Postgres optional)
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		repo, err := results.NewPostgresRepository(pctx, cfg.DatabaseURL)
		if err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("init results repository: %w", err)
		}
		d.Results = repo
	} else {
		d.Results = results.NewMemoryRepository()
	}

	cat, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("load messages: %w", err)
	}
	d.Messages = cat

	logger.Info("deps_ready",
		zap.Bool("broker", relay != nil),
		zap.Bool("postgres", cfg.DatabaseURL != ""),
		zap.String("heuristic", cfg.EngineHeuristic),
	)
	return d, nil
}

// NewRelay picks the relay implementation from the broker URL scheme. It returns a
// nil Relay when BROKER_URL is unset.
func NewRelay(cfg *config.AppConfig) (broker.Relay, error) {
	rc := broker.RelayConfig{URL: cfg.BrokerURL, Username: cfg.BrokerUsername, Password: cfg.BrokerPassword}
	if !rc.Enabled() {
		return nil, nil
	}
	scheme, err := rc.Scheme()
	if err != nil {
		return nil, err
	}
	switch scheme {
	case "redis", "rediss":
		r, err := broker.NewRedisRelayFromURL(rc.URL, rc.Password)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return broker.NewHTTPRelay(rc.URL,
			broker.WithTimeout(time.Duration(cfg.BrokerTimeoutMS)*time.Millisecond),
			broker.WithBasicAuth(rc.Username, rc.Password),
		), nil
	}
}

// ControllerOptions wires the broker client, results store, catalog and logger into
// a controller driven by sched.
func (d *Deps) ControllerOptions(sched loop.Scheduler) []controller.Option {
	opts := []controller.Option{
		controller.WithResults(d.Results),
		controller.WithMessages(d.Messages),
		controller.WithLogger(d.logger.Named("controller")),
		controller.WithAutoPoll(d.cfg.BrokerAutoPoll),
	}
	if d.Relay != nil {
		client := broker.NewClient(d.Relay, sched,
			broker.WithRetries(d.cfg.BrokerRetries),
			broker.WithBackoff(time.Duration(d.cfg.BrokerBackoffMS)*time.Millisecond),
			broker.WithRequestTimeout(time.Duration(d.cfg.BrokerTimeoutMS)*time.Millisecond),
			broker.WithLogger(d.logger.Named("broker")),
		)
		opts = append(opts, controller.WithBroker(client))
	}
	return opts
}

func (d *Deps) Close() error {
	var errs []error
	if c, ok := d.Relay.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if d.Results != nil {
		errs = append(errs, d.Results.Close())
	}
	return errors.Join(errs...)
}
