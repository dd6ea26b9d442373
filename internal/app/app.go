package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"rallypoint/server/internal/config"
	"rallypoint/server/internal/nav"
	servernet "rallypoint/server/internal/net"
	"rallypoint/server/internal/net/ws"
	"rallypoint/server/internal/sim"
	"rallypoint/server/internal/telemetry"
	"rallypoint/server/internal/world"
	"rallypoint/server/logging"
	loggingSinks "rallypoint/server/logging/sinks"
)

// Config carries the startup options for Run.
type Config struct {
	ConfigPath string
	Logger     telemetry.Logger
}

// Run wires the movement core, starts the tick loop and config watcher, and
// serves the HTTP surface until the context is cancelled or the server
// fails.
func Run(ctx context.Context, cfg Config) error {
	telemetryLogger := cfg.Logger
	if telemetryLogger == nil {
		telemetryLogger = telemetry.WrapLogger(log.Default())
	}

	fileCfg, err := config.Load(cfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if raw := os.Getenv("RALLYPOINT_TICK_RATE"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil {
			fileCfg.TickRate = value
		} else {
			telemetryLogger.Printf("invalid RALLYPOINT_TICK_RATE=%q: %v", raw, err)
		}
	}
	if raw := os.Getenv("RALLYPOINT_LISTEN_ADDR"); raw != "" {
		fileCfg.ListenAddr = raw
	}

	router, metrics, err := buildLogging(fileCfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to construct logging router: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			telemetryLogger.Printf("failed to close logging router: %v", cerr)
		}
	}()

	grid := nav.NewGrid(fileCfg.WorldObstacles(), fileCfg.World.Width, fileCfg.World.Depth, fileCfg.GridConfig())
	formations := world.NewFormationTable()

	engine := sim.NewEngine(fileCfg.EngineConfig(), sim.Deps{
		Nav:        nav.NewGridQuery(grid),
		Formations: formations,
		Publisher:  router,
		Logger:     telemetryLogger,
		Metrics:    telemetry.WrapMetrics(metrics),
		Clock:      logging.SystemClock{},
	})
	seedWorld(engine.Agents(), formations, fileCfg)

	stop := make(chan struct{})
	defer close(stop)

	feed := ws.NewFeed(engine, ws.FeedConfig{Logger: telemetryLogger})
	go feed.Run(stop)

	loop := sim.NewLoop(engine, sim.LoopConfig{
		TickRate:        fileCfg.TickRate,
		CatchupMaxTicks: fileCfg.CatchupMaxTicks,
	}, sim.LoopHooks{
		AfterStep: func(result sim.LoopStepResult) {
			metrics.TelemetryStore("tick_duration_micros", uint64(result.Duration.Microseconds()))
		},
	})
	go loop.Run(stop)

	go func() {
		if err := config.Watch(cfg.ConfigPath, telemetryLogger, stop, func(next config.Config) {
			engine.SetAvoidanceConfig(next.AvoidanceConfig())
			engine.SetOptimizerConfig(next.OptimizerConfig())
		}); err != nil {
			telemetryLogger.Printf("config watcher unavailable: %v", err)
		}
	}()

	handler := servernet.NewHTTPHandler(engine, servernet.HTTPHandlerConfig{
		Logger:   telemetryLogger,
		Metrics:  metrics,
		WSFeed:   feed,
		TickRate: fileCfg.TickRate,
	})

	srv := &http.Server{Addr: fileCfg.ListenAddr, Handler: handler}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	telemetryLogger.Printf("server listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func buildLogging(cfg config.LoggingConfig) (*logging.Router, *logging.Metrics, error) {
	logConfig := logging.DefaultConfig()
	if len(cfg.Sinks) > 0 {
		logConfig.EnabledSinks = cfg.Sinks
	}
	logConfig.Console.UseColor = cfg.UseColor

	var named []logging.NamedSink
	if logConfig.HasSink("console") {
		named = append(named, logging.NamedSink{
			Name: "console",
			Sink: loggingSinks.NewConsoleSink(os.Stdout, logConfig.Console),
		})
	}
	if logConfig.HasSink("json") && cfg.JSONPath != "" {
		file, err := os.OpenFile(cfg.JSONPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, err
		}
		named = append(named, logging.NamedSink{
			Name: "json",
			Sink: loggingSinks.NewJSONSink(file, logConfig.JSON.FlushInterval),
		})
	}
	if logConfig.HasSink("memory") {
		named = append(named, logging.NamedSink{
			Name: "memory",
			Sink: loggingSinks.NewMemorySink(),
		})
	}

	router, err := logging.NewRouter(logging.SystemClock{}, logConfig, named)
	if err != nil {
		return nil, nil, err
	}
	return router, logging.NewMetrics(), nil
}

func seedWorld(agents *world.AgentTable, formations *world.FormationTable, cfg config.Config) {
	for _, agent := range cfg.Agents {
		speed := agent.Speed
		if speed <= 0 {
			speed = 5
		}
		agents.Add(world.Agent{
			ID:       agent.ID,
			Position: world.Vec3{X: agent.X, Y: agent.Y, Z: agent.Z},
			Speed:    speed,
			Team:     agent.Team,
		})
	}
	for _, formation := range cfg.Formations {
		formations.Add(world.Formation{
			ID:       formation.ID,
			LeaderID: formation.Leader,
			Type:     config.FormationShape(formation.Shape),
			Spacing:  formation.Spacing,
			Members:  formation.Members,
		})
	}
}
