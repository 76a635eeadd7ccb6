package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"inverter-drive/internal/api"
	"inverter-drive/internal/config"
	"inverter-drive/internal/drive"
	"inverter-drive/internal/infra"
	"inverter-drive/internal/logging"
	"inverter-drive/internal/params"
	"inverter-drive/internal/recorder"
	"inverter-drive/internal/server"
	"inverter-drive/internal/simulator"
	"inverter-drive/internal/store"
	"inverter-drive/internal/usecase"
	handler "inverter-drive/internal/usecase/drivelink"
)

func main() {
	configPath := pflag.StringP("config", "c", "configs/config.yaml", "config file")
	headless := pflag.Int("headless", 0, "run N steps without servers, then exit (default simulation.max_steps)")
	scenario := pflag.String("scenario", "", "scenario file, overrides params.scenario_file")
	pflag.Parse()

	// 1. 配置加载
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if !pflag.CommandLine.Changed("headless") {
		*headless = cfg.Simulation.MaxSteps
	}
	if *scenario != "" {
		cfg.Params.ScenarioFile = *scenario
	}

	logger := logging.New(cfg.Log)
	err = run(cfg, *headless, logger)
	if err != nil {
		logger.Error("drivesim exited with error", zap.Error(err))
	}
	_ = logger.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "drivesim: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, headless int, logger *zap.Logger) error {
	initial, err := cfg.DriveParameters()
	if err != nil {
		return err
	}
	consts, err := cfg.Constants()
	if err != nil {
		return err
	}
	paramStore, err := params.NewStore(initial, logger)
	if err != nil {
		return err
	}
	driveID := cfg.Simulation.DriveID

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. 运行日志 (sqlite)
	runID := uuid.NewString()
	var journal *store.Store
	if cfg.Store.Enabled {
		journal, err = store.New(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer journal.Close()
		if runID, err = journal.CreateRun(driveID, cfg.Simulation.TimeStep); err != nil {
			return fmt.Errorf("create run: %w", err)
		}
	}
	logger = logger.With(zap.String("drive_id", driveID))
	logger.Info("Starting drive simulation", zap.String("run_id", runID), zap.Int("headless_steps", headless))

	sinks := simulator.NewFanout()
	faults := &simulator.FaultFanout{}
	faults.Add(func(t drive.FaultTransition) {
		logger.Info("Fault transition",
			zap.Stringer("from", t.From),
			zap.Stringer("to", t.To),
			zap.String("cause", string(t.Cause)),
			zap.Float64("sim_time", t.SimTime))
	})
	if journal != nil {
		events := store.NewEventWriter(journal, runID, cfg.Simulation.QueueSize, logger)
		defer events.Close()
		faults.Add(events.Observe)
	}

	// 3. 录制
	if cfg.Recorder.Enabled {
		rec, err := recorder.Open(cfg.Recorder.Path, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := rec.Close(); err != nil {
				logger.Error("Recorder close failed", zap.Error(err))
			}
		}()
		sinks.Add(rec)
	}

	// 4. 消息队列
	producer, err := infra.NewProducer(cfg.MessageQueue, cfg.Redis, logger)
	if err != nil {
		return fmt.Errorf("message queue: %w", err)
	}
	defer producer.Close()
	dispatcher := usecase.NewDataDispatcher(producer, usecase.DispatcherConfig{
		DriveID:      driveID,
		Workers:      cfg.Simulation.Workers,
		QueueSize:    cfg.Simulation.QueueSize,
		PublishEvery: cfg.Simulation.PublishEvery,
	}, logger)
	dispatcher.Start()
	defer dispatcher.Stop()
	sinks.Add(dispatcher)
	faults.Add(dispatcher.OnFault)

	// 5. 仿真
	seed := cfg.Simulation.Seed
	session, err := drive.NewSession(initial,
		drive.WithConstants(consts),
		drive.WithTimeStep(cfg.Simulation.TimeStep),
		drive.WithSink(sinks),
		drive.WithFaultObserver(faults.Observe),
		drive.WithRand(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	)
	if err != nil {
		return err
	}
	runner := simulator.NewRunner(session, paramStore, simulator.Config{
		RunID:        runID,
		DriveID:      driveID,
		TickInterval: cfg.Simulation.TickInterval,
		StepsPerTick: cfg.Simulation.StepsPerTick,
	}, logger)

	if cfg.Params.ScenarioFile != "" {
		sc, err := params.LoadScenario(cfg.Params.ScenarioFile)
		if err != nil {
			return fmt.Errorf("scenario: %w", err)
		}
		runner.SetScenario(sc)
		logger.Info("Scenario loaded", zap.String("file", cfg.Params.ScenarioFile), zap.Int("events", len(sc.Events)))
	}
	if cfg.Params.PresetFile != "" {
		w := params.NewWatcher(cfg.Params.PresetFile, paramStore, logger)
		go func() {
			if err := w.Run(ctx); err != nil {
				logger.Error("Preset watcher stopped", zap.Error(err))
			}
		}()
	}

	finish := func(runErr error) {
		st := runner.Status()
		status, summary := store.StatusFinished, fmt.Sprintf("fault=%s skipped=%d", st.Fault, st.SkippedTicks)
		if runErr != nil && !errors.Is(runErr, context.Canceled) {
			status, summary = store.StatusFailed, runErr.Error()
		}
		logger.Info("Run finished", zap.Uint64("ticks", st.Tick), zap.Float64("sim_time", st.SimTime), zap.String("status", status))
		if journal != nil {
			if err := journal.FinishRun(runID, st.Tick, status, summary); err != nil {
				logger.Error("Failed to finish run", zap.Error(err))
			}
		}
	}

	if headless > 0 {
		start := time.Now()
		n, err := runner.RunSteps(ctx, headless)
		logger.Info("Headless run done", zap.Int("steps", n), zap.Duration("elapsed", time.Since(start)))
		finish(err)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	return serve(ctx, cfg, runner, sinks, faults, finish, logger)
}

// serve 启动实时运行和对外服务, 直到收到信号或某个服务失败
func serve(ctx context.Context, cfg *config.Config, runner *simulator.Runner, sinks *simulator.Fanout,
	faults *simulator.FaultFanout, finish func(error), logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errCh := make(chan error, 3)

	hub := api.NewHub(cfg.Simulation.PublishEvery, logger)
	go hub.Run(ctx)
	sinks.Add(hub)
	faults.Add(hub.OnFault)

	sm := handler.NewSessionManager(cfg.Simulation.DriveID, logger)
	sinks.Add(sm)
	h := handler.NewHandler(sm, runner, handler.NewInMemoryAuthService(cfg.Auth), logger)

	var tcp *server.TCPServer
	if cfg.Server.Enabled {
		tcp = server.NewTCPServer(cfg, logger, h)
		go func() {
			if err := tcp.Start(ctx); err != nil {
				errCh <- fmt.Errorf("tcp server: %w", err)
			}
		}()
	}

	var httpSrv *http.Server
	if cfg.HTTP.Enabled {
		mux := http.NewServeMux()
		(&api.Handler{Status: runner.Status, Hub: hub}).RegisterRoutes(mux)
		httpSrv = &http.Server{Addr: cfg.HTTP.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("HTTP server listening", zap.String("addr", cfg.HTTP.Addr))
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http server: %w", err)
			}
		}()
	}

	runDone := make(chan error, 1)
	go func() { runDone <- runner.Run(ctx) }()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-errCh:
		logger.Error("Service failed, shutting down", zap.Error(runErr))
	}
	cancel()
	<-runDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	var stopErr error
	if tcp != nil {
		stopErr = multierr.Append(stopErr, tcp.Stop(shutdownCtx))
	}
	if httpSrv != nil {
		stopErr = multierr.Append(stopErr, httpSrv.Shutdown(shutdownCtx))
	}
	if stopErr != nil {
		logger.Warn("Shutdown incomplete", zap.Errors("errors", multierr.Errors(stopErr)))
	}

	finish(runErr)
	return runErr
}
