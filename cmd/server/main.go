package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/halloran/castellan/internal/httpapi"
	"github.com/halloran/castellan/internal/infrastructure/config"
	"github.com/halloran/castellan/internal/infrastructure/database"
	"github.com/halloran/castellan/internal/infrastructure/logger"
	"github.com/halloran/castellan/internal/infrastructure/metrics"
	"github.com/halloran/castellan/internal/middleware"
	"github.com/halloran/castellan/internal/repositories/postgres"
	"github.com/halloran/castellan/internal/services/access"
	"github.com/halloran/castellan/internal/services/authorization"
	"github.com/halloran/castellan/pkg/cache/memorycache"
)

const defaultEnv = "dev"

func main() {
	env := os.Getenv("ENV")
	if env == "" {
		env = defaultEnv
	}

	log, err := logger.New(env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(env, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(env string, log *zap.Logger) error {
	if err := config.InitConfig(env); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pg, err := database.NewPostgres(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pg.Close()

	log.Info("connected to database",
		zap.String("host", cfg.Database.Host),
		zap.Int("port", cfg.Database.Port),
		zap.String("database", cfg.Database.Database),
	)

	admins := postgres.NewAdminRepository(pg.DB)
	assignments := postgres.NewAssignmentRepository(pg.DB)
	templates := postgres.NewRoleTemplateRepository(pg.DB)
	permissions := postgres.NewPermissionRepository(pg.DB)

	conditions, err := authorization.NewCELConditions()
	if err != nil {
		return fmt.Errorf("failed to create condition evaluator: %w", err)
	}
	evaluator := authorization.NewEvaluator(admins, assignments, templates, permissions, &authorization.Config{
		Conditions:         conditions,
		ConditionsWarnOnly: cfg.Conditions.Mode == "warn",
		Logger:             log.Named("evaluator"),
	})

	collector := metrics.NewCollector()
	exporter := metrics.NewPrometheusExporter(collector)

	var svc *access.Service
	if cfg.Cache.Enabled {
		permCache, err := memorycache.New(&memorycache.Config{
			MaxSizeBytes:  cfg.Cache.MaxSizeBytes,
			DefaultTTL:    time.Duration(cfg.Cache.TTLMinutes) * time.Minute,
			EnableMetrics: true,
		})
		if err != nil {
			return fmt.Errorf("failed to create permission cache: %w", err)
		}
		defer permCache.Close()
		collector.SetCache(permCache)
		svc = access.NewServiceWithCache(evaluator, admins, assignments, permCache,
			time.Duration(cfg.Cache.TTLMinutes)*time.Minute, log.Named("access"))
	} else {
		svc = access.NewService(evaluator, admins, assignments, log.Named("access"))
	}

	api := httpapi.NewServer(svc, log.Named("httpapi"))
	api.SetMetrics(collector, exporter)

	apiServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           middleware.HeaderIdentity(api),
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Hosts mounting their own gRPC services alongside the health service
	// add method-to-permission entries here.
	grpcRoutes := map[string]string{}
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		metrics.UnaryServerInterceptor(collector, exporter),
		middleware.UnaryServerInterceptor(svc, grpcRoutes, log.Named("grpc")),
	))
	healthpb.RegisterHealthServer(grpcServer, health.NewServer())
	reflection.Register(grpcServer)

	grpcListener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen on grpc port: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("grpc server listening", zap.String("addr", grpcListener.Addr().String()))
		if err := grpcServer.Serve(grpcListener); err != nil {
			return fmt.Errorf("grpc server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		log.Info("api server listening", zap.String("addr", apiServer.Addr))
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		log.Info("metrics server listening", zap.String("addr", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server error: %w", err)
		}
		return nil
	})

	// Refresh cache gauges periodically.
	g.Go(func() error {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				exporter.Update()
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("api server shutdown", zap.Error(err))
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("metrics server shutdown", zap.Error(err))
		}
		grpcServer.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("shutdown complete")
	return nil
}
