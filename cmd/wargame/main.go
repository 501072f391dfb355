package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/park285/cheese-wargame/internal/appbuilder"
	appcfg "github.com/park285/cheese-wargame/internal/config"
	"github.com/park285/cheese-wargame/internal/controller"
	"github.com/park285/cheese-wargame/internal/loop"
	"github.com/park285/cheese-wargame/internal/obslog"
	"github.com/park285/cheese-wargame/internal/render"
	"github.com/park285/cheese-wargame/internal/session"
	"github.com/park285/cheese-wargame/internal/uiws"
	"go.uber.org/zap"
)

func main() {
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	cfg, err := appcfg.Load()
	if err != nil {
		logger.Fatal("config_error", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := appbuilder.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("deps_init_error", zap.Error(err))
	}

	lp := loop.New()
	lifecycle := session.NewLifecycle(deps.Engine, cfg.AutoReply, logger.Named("session"))

	// UI 명령은 연결 goroutine에서 들어오므로 항상 loop로 넘긴다
	var ctrl *controller.Controller
	hub := uiws.NewHub(func(cmd controller.Command) {
		lp.Post(func() {
			if err := ctrl.Dispatch(cmd); err != nil {
				logger.Info("ui_command_error", zap.String("type", cmd.Type), zap.Error(err))
			}
		})
	}, uiws.WithLogger(logger.Named("ui")))

	sink := render.Multi{hub, render.NewLogSink(logger.Named("render"))}
	ctrl = controller.New(lp, lifecycle, sink, deps.ControllerOptions(lp)...)
	lp.Post(func() {
		if err := ctrl.NewGame(); err != nil {
			logger.Error("first_game_error", zap.Error(err))
		}
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           uiws.NewRouter(hub, render.NewPNGRenderer(0), deps.Results),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http_serve_error", zap.Error(err))
			stop()
		}
	}()
	logger.Info("wargame_started",
		zap.String("addr", cfg.HTTPAddr),
		zap.Bool("broker", cfg.BrokerEnabled()),
		zap.Bool("auto_reply", cfg.AutoReply),
	)

	// loop은 main goroutine에서 signal까지 돈다
	_ = lp.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http_shutdown_error", zap.Error(err))
	}
	if err := lp.Close(shutdownCtx); err != nil {
		logger.Warn("loop_close_error", zap.Error(err))
	}
	lifecycle.Close()
	if err := deps.Close(); err != nil {
		logger.Warn("deps_close_error", zap.Error(err))
	}
	logger.Info("wargame_stopped")
}
