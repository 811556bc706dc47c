package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"boatpilot/internal/api"
	"boatpilot/pkg/config"
	"boatpilot/pkg/db"
	"boatpilot/pkg/geo"
	"boatpilot/pkg/guidance"
	"boatpilot/pkg/logging"
	"boatpilot/pkg/store"
	"boatpilot/pkg/supervisor"
	"boatpilot/pkg/vehicle"
	"boatpilot/pkg/vehicle/mockboat"
	"boatpilot/pkg/version"
)

const (
	defaultConfigPath = "configs/boatpilot.yaml"
	sampleRetention   = 30 * 24 * time.Hour
)

var (
	configPath  = flag.String("config", defaultConfigPath, "Path to the config file")
	initConfig  = flag.Bool("init-config", false, "Generate default config file and exit")
	missionName = flag.String("mission", missionSteer, "Mission to run: steer, square or dry")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println("boatpilot", version.Version)
		return
	}

	if *initConfig {
		if err := config.GenerateDefault(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Config file generated:", *configPath)
		return
	}

	// Optional; BOATPILOT_ADDRESS may come from here
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, *missionName); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: boatpilot failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, mission string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	appCfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&appCfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("boatpilot started", "version", version.Version, "mission", mission, "provider", appCfg.Vehicle.Provider)

	if err := checkMission(mission); err != nil {
		return err
	}

	dbConn, st, err := initDB(appCfg)
	if err != nil {
		return err
	}
	defer st.Close()

	link, err := initializeLink(appCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize vehicle link: %w", err)
	}
	defer link.Close()

	var fence *geo.Fence
	if appCfg.Geofence.Path != "" {
		if fence, err = geo.LoadFence(appCfg.Geofence.Path); err != nil {
			return fmt.Errorf("failed to load geofence: %w", err)
		}
		slog.Info("Geofence loaded", "path", appCfg.Geofence.Path)
	}

	sess := supervisor.New(link, supervisor.Config{
		PollInterval:       appCfg.Guidance.PollInterval.D(),
		ConnectTimeout:     appCfg.Vehicle.ConnectTimeout.D(),
		HomeTimeout:        supervisor.DefaultConfig().HomeTimeout,
		HomeErrorBoundFeet: appCfg.Guidance.HomeBound.Feet(),
	})
	sess.SetRecorder(st)

	engine := guidance.New(sess, link, guidance.Config{
		PollInterval:     appCfg.Guidance.PollInterval.D(),
		HeadingTolerance: appCfg.Guidance.HeadingTolerance,
	})
	engine.SetFence(fence)
	sess.SetHomeReturner(engine)

	tel := api.NewTelemetryHandler(appCfg.Server.TelemetryEvery.D())
	pump := api.NewTelemetryPump(sess, tel, appCfg.Server.TelemetryEvery.D())

	g, gctx := errgroup.WithContext(ctx)

	if appCfg.Server.Address != "" {
		srv := api.NewServer(appCfg.Server.Address, tel, api.NewEventsHandler(sess, st), cancel)
		srv.Handler = loggingMiddleware(srv.Handler)
		g.Go(func() error {
			return runServerLifecycle(gctx, srv)
		})
	}

	g.Go(func() error {
		return pump.Run(gctx)
	})

	g.Go(func() error {
		// The process lives as long as the mission
		defer cancel()
		return runMission(gctx, &missionDeps{
			cfg:     appCfg,
			session: sess,
			engine:  engine,
			link:    link,
			fence:   fence,
			db:      dbConn,
		}, mission)
	})

	return g.Wait()
}

func initDB(appCfg *config.Config) (*db.DB, *store.SQLiteStore, error) {
	dbConn, err := db.Init(appCfg.DB.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if n, err := dbConn.PruneSamples(sampleRetention); err != nil {
		slog.Warn("Failed to prune telemetry samples", "error", err)
	} else if n > 0 {
		slog.Info("Pruned old telemetry samples", "count", n)
	}
	return dbConn, store.NewSQLiteStore(dbConn), nil
}

func initializeLink(appCfg *config.Config) (vehicle.Link, error) {
	switch appCfg.Vehicle.Provider {
	case "mock":
		m := appCfg.Mock
		hdg := m.StartHeading
		slog.Info("Using simulated boat", "lat", m.StartLat, "lon", m.StartLon)
		return mockboat.New(mockboat.Config{
			Start:        geo.Point{Lat: m.StartLat, Lon: m.StartLon},
			StartHeading: &hdg,
			CruiseSpeed:  m.CruiseSpeed,
			TurnRate:     m.TurnRate,
			LockDelay:    m.LockDelay.D(),
		}), nil
	default:
		return nil, fmt.Errorf("unknown vehicle provider %q", appCfg.Vehicle.Provider)
	}
}

func runServerLifecycle(ctx context.Context, srv *http.Server) error {
	slog.Info("Starting server", "addr", srv.Addr)
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()
	select {
	case <-ctx.Done():
		slog.Info("Shutting down server...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logging.Trace(slog.Default(), "Request Processed", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
