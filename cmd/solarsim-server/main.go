// Command solarsim-server serves the simulator over REST and gRPC.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/signalsfoundry/orbital-power-sim/internal/api"
	"github.com/signalsfoundry/orbital-power-sim/internal/config"
	"github.com/signalsfoundry/orbital-power-sim/internal/logging"
	"github.com/signalsfoundry/orbital-power-sim/internal/nbi"
	"github.com/signalsfoundry/orbital-power-sim/internal/observability"
	"github.com/signalsfoundry/orbital-power-sim/internal/simulation"
	"github.com/signalsfoundry/orbital-power-sim/kb"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "config file (yaml, json or toml); SOLARSIM_* variables override it")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "solarsim-server:", err)
		os.Exit(1)
	}
	log := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, listeners{}); err != nil {
		log.Error(ctx, "server exited", logging.Err(err))
		os.Exit(1)
	}
}

// listeners lets tests inject pre-bound sockets. Nil entries are opened
// from the configured addresses; a nil gRPC or metrics listener with an
// empty address disables that server.
type listeners struct {
	http    net.Listener
	grpc    net.Listener
	metrics net.Listener
}

func run(ctx context.Context, cfg config.Config, log logging.Logger, lis listeners) error {
	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFrom(cfg), log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	collector, err := observability.NewCollector(prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	registry := kb.NewRunRegistry(cfg.Registry.Capacity)
	// Events are delivered outside the registry lock; read the live size.
	unsubscribe := registry.Subscribe(func(kb.Event) {
		collector.SetRecordedRuns(registry.Len())
	})
	defer unsubscribe()

	exporter, err := simulation.NewCSVExporter(cfg.Output.Dir)
	if err != nil {
		return err
	}

	svc := simulation.NewService(simulation.OptionsFrom(cfg.Simulation),
		simulation.WithExporter(exporter),
		simulation.WithRegistry(registry),
		simulation.WithObserver(collector),
		simulation.WithLogger(log),
	)

	if lis.http == nil {
		if lis.http, err = net.Listen("tcp", cfg.HTTP.Addr); err != nil {
			return fmt.Errorf("listen http %s: %w", cfg.HTTP.Addr, err)
		}
	}
	if lis.grpc == nil && cfg.GRPC.Addr != "" {
		if lis.grpc, err = net.Listen("tcp", cfg.GRPC.Addr); err != nil {
			return fmt.Errorf("listen grpc %s: %w", cfg.GRPC.Addr, err)
		}
	}
	if lis.metrics == nil && cfg.Metrics.Addr != "" {
		if lis.metrics, err = net.Listen("tcp", cfg.Metrics.Addr); err != nil {
			return fmt.Errorf("listen metrics %s: %w", cfg.Metrics.Addr, err)
		}
	}

	gin.SetMode(gin.ReleaseMode)
	handler := api.NewHandler(svc, exporter, api.AppInfo{Name: cfg.App.Name, Version: cfg.App.Version}, log)
	httpSrv := &http.Server{
		Handler:           api.NewRouter(handler, log, collector),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var (
		grpcSrv   *grpc.Server
		healthSrv *health.Server
	)
	if lis.grpc != nil {
		grpcSrv = grpc.NewServer(
			grpc.StatsHandler(otelgrpc.NewServerHandler()),
			grpc.ChainUnaryInterceptor(
				nbi.RequestIDUnaryServerInterceptor(log),
				nbi.TracingUnaryServerInterceptor(),
				collector.UnaryServerInterceptor(),
			),
		)
		nbi.RegisterSimulationServiceServer(grpcSrv, nbi.NewSimulationService(svc, log))
		healthSrv = health.NewServer()
		healthSrv.SetServingStatus(nbi.SimulationServiceName, healthpb.HealthCheckResponse_SERVING)
		healthpb.RegisterHealthServer(grpcSrv, healthSrv)
	} else {
		log.Info(ctx, "gRPC disabled: grpc.addr is empty")
	}

	var metricsSrv *http.Server
	if lis.metrics != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		metricsSrv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info(ctx, "serving REST API", logging.String("addr", lis.http.Addr().String()))
		if err := httpSrv.Serve(lis.http); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if grpcSrv != nil {
		g.Go(func() error {
			log.Info(ctx, "serving gRPC", logging.String("addr", lis.grpc.Addr().String()))
			if err := grpcSrv.Serve(lis.grpc); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
	}
	if metricsSrv != nil {
		g.Go(func() error {
			log.Info(ctx, "serving Prometheus metrics", logging.String("addr", lis.metrics.Addr().String()))
			if err := metricsSrv.Serve(lis.metrics); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info(context.Background(), "shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if grpcSrv != nil {
			healthSrv.Shutdown()
			stopped := make(chan struct{})
			go func() {
				grpcSrv.GracefulStop()
				close(stopped)
			}()
			select {
			case <-stopped:
			case <-shutdownCtx.Done():
				grpcSrv.Stop()
			}
		}

		var errs []error
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if metricsSrv != nil {
			if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("metrics shutdown: %w", err))
			}
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}
