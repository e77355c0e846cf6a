// Command server boots the order-book matching core: the Persistent
// Store, Market Cache, Order Book Service, Matching Engine, Session
// Fan-Out hub and the HTTP/WebSocket surface in front of them.
// Grounded on the teacher's cmd/node/main.go bootstrap shape (env
// config, tee'd logger, signal.NotifyContext shutdown, goroutine per
// long-running loop), stripped of everything consensus/p2p/crypto
// related, which SPEC_FULL.md's Non-goals exclude.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/tradecore/internal/api"
	"github.com/uhyunpark/tradecore/internal/cache"
	"github.com/uhyunpark/tradecore/internal/config"
	"github.com/uhyunpark/tradecore/internal/matching"
	"github.com/uhyunpark/tradecore/internal/obs"
	"github.com/uhyunpark/tradecore/internal/platform"
	"github.com/uhyunpark/tradecore/internal/sfo"
	"github.com/uhyunpark/tradecore/internal/sink"
	"github.com/uhyunpark/tradecore/internal/store"
)

// confirmationAdapter satisfies sfo.CommandHandler by forwarding a
// session's structured confirmation response straight to ME by
// opaque key (spec.md §4.4 "Inbound ... forwarded to ME by opaque
// key"). It lives here rather than inside sfo, since sfo never imports
// matching.
type confirmationAdapter struct {
	engine *matching.Engine
}

func (a confirmationAdapter) HandleConfirmationResponse(key string, accepted bool) error {
	if accepted {
		return a.engine.AcceptConfirmation(key)
	}
	return a.engine.DeclineConfirmation(key)
}

func main() {
	cfg := config.LoadFromEnv("")

	logger, err := platform.NewLoggerWithFile(cfg.LogFile)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	logger.Info("logger_initialized", zap.String("log_file", cfg.LogFile))

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		logger.Fatal("store_open_failed", zap.Error(err))
	}
	defer st.Close()

	ch := cache.New(logger)

	var messagingSink matching.MessagingSink
	if url := os.Getenv("MESSAGING_WEBHOOK_URL"); url != "" {
		messagingSink = sink.NewWebhookSink(url, cfg.SinkTimeout, logger)
		logger.Info("messaging_sink_configured", zap.String("url", url))
	} else {
		messagingSink = sink.NewNoopSink(logger)
		logger.Info("messaging_sink_disabled")
	}

	svc := obs.New(st, ch, logger, cfg)
	engine := matching.New(st, ch, svc, messagingSink, logger, cfg, platform.RealClock{})
	svc.SetMatcher(engine)

	hub := sfo.NewHub(logger, confirmationAdapter{engine: engine})
	router := sfo.NewRouter(hub, ch, logger)

	server := api.NewServer(svc, engine, hub, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go hub.Run()
	router.Start(ctx)
	go engine.Run(ctx)

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.Handler(),
	}

	go func() {
		logger.Info("http_server_starting", zap.String("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http_server_failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown_signal_received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http_server_shutdown_error", zap.Error(err))
	}
}
