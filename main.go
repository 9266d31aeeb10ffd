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

	"peasurvey/internal/api"
	"peasurvey/internal/config"
	"peasurvey/internal/conversation"
	"peasurvey/internal/geo"
	"peasurvey/internal/redis"
	"peasurvey/internal/service/ai"
	"peasurvey/internal/worker"
)

func main() {
	cfg, err := config.Load(config.ConfigPath())
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	var snapshots conversation.Snapshotter
	mirror, err := redis.NewSessionMirror(cfg)
	switch {
	case err == nil:
		snapshots = mirror
		defer mirror.Close()
	case errors.Is(err, redis.ErrDisabled):
		log.Printf("redis mirror disabled")
	default:
		log.Printf("redis mirror unavailable, sessions stay in memory: %v", err)
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	sessions := conversation.NewRegistry(cfg.BasicConfig.SessionTTL(), snapshots)
	sessions.OnCreate(func(st *conversation.Store) {
		log.Printf("session %s opened with %d restored messages", st.SessionID(), st.Len())
	})
	sessions.StartJanitor(bgCtx, time.Minute)

	var position geo.Holder
	geo.Acquire(bgCtx, newLocator(cfg), &position)

	var (
		manager   api.QueryManager
		configErr error
	)
	service, err := ai.NewService(bgCtx, cfg)
	var cfgErr *config.ConfigurationError
	switch {
	case errors.As(err, &cfgErr):
		// Keep serving so the browser gets the notice instead of a dead port.
		log.Printf("starting without model access: %v", err)
		configErr = err
	case err != nil:
		log.Fatalf("init model client: %v", err)
	default:
		m := worker.NewManager(service, sessions, worker.Config{
			IdleTimeout:   cfg.BasicConfig.WorkerIdleTimeout(),
			RatePerMinute: cfg.BasicConfig.QueryRatePerMinute,
			DefaultBias:   position.Current,
		})
		defer m.Shutdown()
		manager = m
	}

	handler := api.NewHandler(manager, sessions, api.Config{
		ConfigErr:      configErr,
		Located:        position.Known,
		AllowedOrigins: cfg.BasicConfig.AllowedOrigins,
		SessionTTL:     cfg.BasicConfig.SessionTTL(),
	})
	router, err := api.NewRouter(handler)
	if err != nil {
		log.Fatalf("build router: %v", err)
	}

	srv := &http.Server{
		Addr:         cfg.BasicConfig.ServerAddress,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		log.Printf("listening on %s (model %s)", srv.Addr, cfg.Model.Name)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server forced to shutdown: %v", err)
	}
}

func newLocator(cfg *config.Config) geo.Locator {
	if bias := cfg.StaticBias(); bias != nil {
		return geo.StaticLocator{Bias: bias}
	}
	if cfg.Geo.LookupURL != "" {
		return &geo.IPLocator{URL: cfg.Geo.LookupURL}
	}
	return nil
}
