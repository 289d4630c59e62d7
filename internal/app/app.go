package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/AMR-Platform/Interface/internal/config"
	"github.com/AMR-Platform/Interface/internal/hub"
	"github.com/AMR-Platform/Interface/internal/mirror"
	servernet "github.com/AMR-Platform/Interface/internal/net"
	"github.com/AMR-Platform/Interface/internal/net/proto"
	"github.com/AMR-Platform/Interface/internal/net/ws"
	"github.com/AMR-Platform/Interface/internal/relay"
	"github.com/AMR-Platform/Interface/internal/sim"
	"github.com/AMR-Platform/Interface/internal/telemetry"
	"github.com/AMR-Platform/Interface/internal/world"
	"github.com/AMR-Platform/Interface/logging"
	loggingSinks "github.com/AMR-Platform/Interface/logging/sinks"
)

type Options struct {
	Config *config.Config
	Logger telemetry.Logger
	// Listener, when set, is served instead of binding Config.Listen.
	Listener net.Listener
	// Sinks supplements the console and json sinks built from Config.Logging.
	Sinks map[string]logging.Sink
}

// Run builds the simulator and serves observers until ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Defaults()
	}
	telemetryLogger := opts.Logger
	if telemetryLogger == nil {
		telemetryLogger = telemetry.WrapLogger(log.Default())
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 5 * time.Second
	}

	grid, err := world.Generate(cfg.World)
	if err != nil {
		return fmt.Errorf("generate world: %w", err)
	}

	router, err := newRouter(cfg.Logging, opts.Sinks)
	if err != nil {
		return fmt.Errorf("construct logging router: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			telemetryLogger.Printf("failed to close logging router: %v", cerr)
		}
	}()

	metrics := telemetry.WrapMetrics(router.Metrics())
	deps := sim.Deps{
		Logger:    telemetryLogger,
		Metrics:   metrics,
		Publisher: router,
	}

	engine, err := sim.NewEngine(grid, cfg.Engine(), deps)
	if err != nil {
		return fmt.Errorf("construct engine: %w", err)
	}
	scheduler := sim.NewScheduler(engine, sim.SchedulerConfig{
		TickRate:        cfg.TickRate,
		CommandCapacity: cfg.Scheduler.CommandCapacity,
		WarningStep:     cfg.Scheduler.WarningStep,
	}, deps)

	observers := hub.New(hub.Config{
		OutboundBuffer: cfg.Hub.OutboundBuffer,
		Logger:         telemetryLogger,
		Metrics:        metrics,
		Publisher:      router,
	})
	observers.SetListener(scheduler)

	encoder := proto.NewFrameEncoder(engine.StaticMap())
	scheduler.OnAfterStep(func(result sim.StepResult) {
		frame, err := encoder.Encode(result.Snapshot)
		if err != nil {
			telemetryLogger.Printf("failed to encode frame %d: %v", result.Tick, err)
			return
		}
		observers.Broadcast(frame)
	})

	if cfg.Relay.Enabled {
		motion, err := relay.Dial(cfg.Relay.Config, telemetryLogger, metrics)
		if err != nil {
			return err
		}
		defer motion.Close()
		scheduler.OnAfterStep(motion.Observe)
		scheduler.OnIdle(motion.Halt)
		telemetryLogger.Printf("relaying motion tokens to %s", cfg.Relay.Address)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var workers sync.WaitGroup

	publisher, err := mirror.Connect(cfg.Mirror)
	if err != nil {
		return fmt.Errorf("connect mirror: %w", err)
	}
	if publisher != nil {
		m := mirror.New(publisher, cfg.Mirror, telemetryLogger, metrics)
		scheduler.OnAfterStep(m.Observe)
		workers.Add(1)
		go func() {
			defer workers.Done()
			m.Run(runCtx)
		}()
		telemetryLogger.Printf("mirroring telemetry to %s topic %s", cfg.Mirror.Backend, cfg.Mirror.Topic)
	}

	wsHandler := ws.NewHandler(observers, scheduler, ws.HandlerConfig{
		Logger:       telemetryLogger,
		Publisher:    router,
		WriteTimeout: cfg.Hub.WriteTimeout,
	})
	handler := servernet.NewHTTPHandler(servernet.HTTPHandlerConfig{
		Scheduler: scheduler,
		Hub:       observers,
		WebSocket: wsHandler.Handle,
		Metrics:   router.Metrics(),

		Observability: cfg.Observability,
	})

	listener := opts.Listener
	if listener == nil {
		listener, err = net.Listen("tcp", cfg.Listen)
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.Listen, err)
		}
	}
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	workers.Add(1)
	go func() {
		defer workers.Done()
		scheduler.Run(runCtx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		telemetryLogger.Printf("server listening on %s", listener.Addr())
		serveErr <- srv.Serve(listener)
	}()

	var result error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			result = fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		telemetryLogger.Printf("server shutdown: %v", err)
	}
	observers.Shutdown()
	cancel()
	workers.Wait()
	return result
}

// newRouter builds the logging router. The router closes every sink it was
// given, including the json log file.
func newRouter(cfg logging.Config, extra map[string]logging.Sink) (*logging.Router, error) {
	sinks := map[string]logging.Sink{
		"console": loggingSinks.NewConsoleSink(os.Stdout, cfg.Console),
	}
	if cfg.HasSink("json") && cfg.JSON.FilePath != "" {
		file, err := os.OpenFile(cfg.JSON.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open json log %s: %w", cfg.JSON.FilePath, err)
		}
		sinks["json"] = loggingSinks.NewJSON(file, cfg.JSON.FlushInterval)
	}
	for name, sink := range extra {
		sinks[name] = sink
	}
	return logging.NewRouter(cfg, logging.SystemClock{}, nil, sinks)
}
