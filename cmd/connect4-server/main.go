package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	appcfg "github.com/park285/connect4-arena/internal/config"
	"github.com/park285/connect4-arena/internal/gateway"
	"github.com/park285/connect4-arena/internal/httpapi"
	"github.com/park285/connect4-arena/internal/match"
	"github.com/park285/connect4-arena/internal/msgcat"
	"github.com/park285/connect4-arena/internal/obslog"
	"github.com/park285/connect4-arena/internal/timers"
	"github.com/park285/connect4-arena/internal/wshub"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	cat, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		logger.Fatal("messages load error", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		store  match.Store
		health httpapi.Pinger
	)
	if cfg.RedisURL != "" {
		rs, err := match.OpenRedisStore(ctx, cfg.RedisURL, cfg.MatchTTL)
		if err != nil {
			logger.Fatal("redis init error", zap.Error(err))
		}
		store, health = rs, rs
	} else {
		logger.Warn("REDIS_URL not set; matches live in memory only")
		store = match.NewMemoryStore()
	}
	defer store.Close()

	clock := clockwork.NewRealClock()
	mgr := match.NewManager(store, clock)
	if cfg.DatabaseURL != "" {
		repo, err := match.NewRepository(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("archive init error", zap.Error(err))
		}
		defer repo.Close()
		if err := repo.EnsureSchema(ctx); err != nil {
			logger.Fatal("archive schema error", zap.Error(err))
		}
		mgr.AttachRepository(repo)
	}

	hub := wshub.New(wshub.Options{AllowedOrigins: cfg.AllowedOrigins})
	svc := match.NewService(mgr, hub, timers.New(clock), match.Options{
		TurnDuration:          cfg.TurnDuration,
		CountdownDuration:     cfg.CountdownDuration,
		NoticeDelay:           cfg.DisconnectNoticeDelay,
		ReconnectGrace:        cfg.ReconnectGrace,
		MaxMissedTurns:        cfg.MaxMissedTurns,
		TurnTimerOnDisconnect: match.DisconnectPolicy(cfg.TurnTimerOnDisconnect),
	})
	defer svc.Close()
	hub.Bind(gateway.New(svc, hub, cat))

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	wsSrv := &http.Server{Addr: cfg.WSAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	api := httpapi.New(svc, health)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("ws_listen", zap.String("addr", cfg.WSAddr))
		if err := wsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("http_listen", zap.String("addr", cfg.HTTPAddr))
		return api.ListenAndServe(cfg.HTTPAddr)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = hub.Close(shutdownCtx)
		_ = wsSrv.Shutdown(shutdownCtx)
		return api.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exited", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
