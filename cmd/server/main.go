package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/juju/loggo/v2"

	"github.com/seguraabc/asistencia25/internal/auth"
	"github.com/seguraabc/asistencia25/internal/cache"
	"github.com/seguraabc/asistencia25/internal/clients"
	"github.com/seguraabc/asistencia25/internal/config"
	"github.com/seguraabc/asistencia25/internal/db"
	rollbookgrpc "github.com/seguraabc/asistencia25/internal/grpc"
	internalhttp "github.com/seguraabc/asistencia25/internal/http"
	"github.com/seguraabc/asistencia25/internal/jobs"
	"github.com/seguraabc/asistencia25/internal/repository"
	"github.com/seguraabc/asistencia25/internal/seed"
)

var logger = loggo.GetLogger("rollbook")

func main() {
	cfg := config.Load()
	if err := loggo.ConfigureLoggers(cfg.LogConfig); err != nil {
		logger.Warningf("invalid LOG_CONFIG %q: %v", cfg.LogConfig, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conns, err := clients.New(ctx, cfg)
	if err != nil {
		logger.Criticalf("client setup failed: %v", err)
		os.Exit(1)
	}
	defer conns.Close()

	store := db.NewStore(conns.Postgres)
	schemaCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	if err := store.EnsureSchema(schemaCtx); err != nil {
		logger.Warningf("courses table not verified: %v", err)
	}
	cancel()

	localCache := cache.New(conns.Redis)
	sessions := auth.NewChainResolver(localCache)
	courses := repository.NewCourseRepository(store, localCache, sessions)
	var seeder internalhttp.Seeder
	if cfg.SeedExampleData {
		seeder = seed.New(store, localCache)
	}

	server := internalhttp.NewServer(cfg, courses, sessions, seeder)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	health := rollbookgrpc.NewHealth()
	grpcServer := rollbookgrpc.NewServer(health)
	jobs.StartHealthProbe(ctx, &jobs.HealthProbe{
		Targets: map[string]jobs.Pinger{
			rollbookgrpc.RemoteService: store,
			rollbookgrpc.CacheService:  localCache,
		},
		Sink:     health,
		Interval: cfg.HealthProbeInterval,
		Timeout:  cfg.DialTimeout,
	})

	go func() {
		logger.Infof("http listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Criticalf("http server error: %v", err)
			stop()
		}
	}()

	go func() {
		listener, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			logger.Criticalf("grpc listen error: %v", err)
			stop()
			return
		}
		logger.Infof("grpc listening on %s", cfg.GRPCAddr)
		if err := grpcServer.Serve(listener); err != nil {
			logger.Criticalf("grpc server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	health.Shutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown error: %v", err)
	}
	grpcServer.GracefulStop()
}
