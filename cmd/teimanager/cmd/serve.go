package cmd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/nazq/tei-manager-sub000/internal/admin"
	"github.com/nazq/tei-manager-sub000/internal/config"
	"github.com/nazq/tei-manager-sub000/internal/gpudetect"
	"github.com/nazq/tei-manager-sub000/internal/health"
	"github.com/nazq/tei-manager-sub000/internal/instance"
	"github.com/nazq/tei-manager-sub000/internal/logging"
	"github.com/nazq/tei-manager-sub000/internal/metrics"
	"github.com/nazq/tei-manager-sub000/internal/mux"
	"github.com/nazq/tei-manager-sub000/internal/muxpb"
	"github.com/nazq/tei-manager-sub000/internal/pool"
	"github.com/nazq/tei-manager-sub000/internal/registry"
	"github.com/nazq/tei-manager-sub000/internal/state"
)

var apiPortOverride uint16

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the fleet manager until SIGINT or SIGTERM",
	RunE:  runServe,
}

func init() {
	rootCmd.Flags().Uint16Var(&apiPortOverride, "port", 0, "override the configured admin API port")
	serveCmd.Flags().Uint16Var(&apiPortOverride, "port", 0, "override the configured admin API port")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logging.Init(logging.Config{Level: logLevel, Format: logFormat})
	log := logging.WithComponent("serve")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if apiPortOverride != 0 {
		cfg.APIPort = apiPortOverride
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	gpus := gpudetect.DetectOnce()
	log.Info().Int("gpu_count", gpus.Count()).Msg("gpu detection complete")

	collector := metrics.New("")
	reg := registry.New(cfg.MaxInstances, cfg.InstancePortStart, cfg.InstancePortEnd)
	reg.SetMetrics(collector)
	backendPool := pool.New(reg, collector, pool.DefaultConfig())
	store := state.New(cfg.StateFile, reg)

	gracePeriod := time.Duration(cfg.GracefulShutdownTimeoutSecs) * time.Second

	seedFleet(log, cfg, reg, store)

	prober := health.GRPCProber{Pool: backendPool}
	monitor := health.New(reg, prober, health.Config{
		CheckInterval:            time.Duration(cfg.HealthCheckIntervalSecs) * time.Second,
		StartupTimeout:           time.Duration(cfg.StartupTimeoutSecs) * time.Second,
		MaxFailuresBeforeRestart: int(cfg.MaxFailuresBeforeRestart),
		GracefulShutdownTimeout:  gracePeriod,
		WorkerBinaryPath:         cfg.WorkerBinaryPath,
		Metrics:                  collector,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
		cancel()
	}()

	go monitor.Run(ctx)

	adminSrv := admin.New(reg, backendPool, store, collector, cfg.WorkerBinaryPath, gracePeriod)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.APIPort),
		Handler: adminSrv.ServeMux(),
	}
	go func() {
		log.Info().Uint16("port", cfg.APIPort).Msg("admin http server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("admin http server exited")
		}
	}()

	var grpcServer *grpc.Server
	if cfg.GRPCEnabled {
		grpcServer = grpc.NewServer(
			grpc.MaxRecvMsgSize(cfg.GRPCMaxMessageSizeMB*1024*1024),
			grpc.MaxSendMsgSize(cfg.GRPCMaxMessageSizeMB*1024*1024),
			grpc.MaxConcurrentStreams(uint32(cfg.GRPCMaxParallelStreams)),
		)
		muxService := mux.New(reg, backendPool, collector).WithMaxParallelStreams(cfg.GRPCMaxParallelStreams)
		muxpb.RegisterMultiplexerServer(grpcServer, muxService)

		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
		if err != nil {
			return fmt.Errorf("listen on grpc port %d: %w", cfg.GRPCPort, err)
		}
		go func() {
			log.Info().Uint16("port", cfg.GRPCPort).Msg("multiplexer grpc server listening")
			if err := grpcServer.Serve(lis); err != nil {
				log.Error().Err(err).Msg("grpc server exited")
			}
		}()
	}

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), gracePeriod)
	defer shutdownCancel()

	monitor.Stop()
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	_ = httpServer.Shutdown(shutdownCtx)

	stopAll(log, reg, gracePeriod)
	backendPool.Stop()

	if err := store.Save(); err != nil {
		log.Error().Err(err).Msg("failed to save state on shutdown")
	}
	reg.Close()

	log.Info().Msg("shutdown complete")
	return nil
}

// seedFleet populates the registry either by restoring from the persisted
// state file or by starting the instances listed in the static config; the
// two are mutually exclusive per SPEC_FULL SS4.7, with restore taking
// precedence when enabled and a state file is actually present.
func seedFleet(log zerolog.Logger, cfg config.ManagerConfig, reg *registry.Registry, store *state.Store) {
	if cfg.AutoRestoreOnRestart {
		if _, err := os.Stat(cfg.StateFile); err == nil {
			if err := store.Restore(cfg.WorkerBinaryPath); err != nil {
				log.Error().Err(err).Msg("failed to restore fleet from state file")
			}
			return
		}
		log.Info().Msg("auto_restore_on_restart is set but no state file exists yet; seeding from config")
	}

	for _, instCfg := range cfg.Instances {
		inst, err := reg.Add(instCfg)
		if err != nil {
			log.Error().Err(err).Str("instance", instCfg.Name).Msg("failed to register configured instance")
			continue
		}
		if err := inst.Start(cfg.WorkerBinaryPath); err != nil {
			log.Error().Err(err).Str("instance", instCfg.Name).Msg("failed to start configured instance")
			continue
		}
		reg.NotifyStarted(instCfg.Name)
	}
}

func stopAll(log zerolog.Logger, reg *registry.Registry, gracePeriod time.Duration) {
	instances := reg.List()
	var wg sync.WaitGroup
	for _, inst := range instances {
		wg.Add(1)
		go func(inst *instance.Instance) {
			defer wg.Done()
			if err := inst.Stop(gracePeriod); err != nil {
				log.Error().Err(err).Str("instance", inst.Config.Name).Msg("failed to stop instance during shutdown")
			}
		}(inst)
	}
	wg.Wait()
}
