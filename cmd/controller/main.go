package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"heating_controller/internal/handlers"
	"heating_controller/internal/hardware"
	"heating_controller/internal/logger"
	"heating_controller/internal/models"
	"heating_controller/internal/repository"
	"heating_controller/internal/server"
	"heating_controller/internal/service"
	"heating_controller/internal/syncproto"

	"github.com/spf13/viper"
)

const (
	defaultControlTick = 10 * time.Second
	defaultSampleTick  = 30 * time.Second
)

func main() {
	// init logger
	log := logger.Get(logger.InfoLevel)

	// load config.yml
	if err := loadConfig(); err != nil {
		log.Fatalw("error reading config", "err", err)
	}

	// open DB
	db, err := openDB(log)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			log.Fatalw("failed to close sqlite", "err", cerr)
		}
	}()

	// context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// wire dependencies
	repos := repository.NewRepository(db)
	cfg := zoneConfig()
	if err := repos.Zones.Seed(ctx, append(append([]string{}, cfg.ZoneNames...), models.BoilerZone)); err != nil {
		log.Fatalw("failed to seed zones", "err", err)
	}

	hw := hardware.NewMock(cfg.ZoneNames, viper.GetFloat64("controller.hardware.start_temp"))
	services := service.NewService(repos, hw, cfg, log.SugaredLogger)

	publisher := syncproto.NewPublisher(services, log.SugaredLogger)
	registerSyncCommands(publisher, services)
	services.SetNotifier(publisher)

	apiHandler := handlers.NewHandler(services, publisher, log)

	// start background loops
	go publisher.Run(ctx)
	go services.AutoControl.Run(ctx, tickOrDefault("controller.ticks.control", defaultControlTick))
	go services.Sampler.Run(ctx, tickOrDefault("controller.ticks.sample", defaultSampleTick))

	// start HTTP server
	srv := &server.Server{}
	runHTTPServer(srv, viper.GetString("controller.port"), apiHandler, log)

	// graceful shutdown
	waitForShutdown(cancel, srv, log)
}

func loadConfig() error {
	viper.AddConfigPath("configs") // configs/config.yml
	viper.SetConfigName("config")
	return viper.ReadInConfig()
}

// zoneConfig reads the zone topology from configuration.
func zoneConfig() service.Config {
	var zones []struct {
		Name string `mapstructure:"name"`
		Room string `mapstructure:"room"`
	}
	if err := viper.UnmarshalKey("controller.zones", &zones); err != nil {
		logger.Get(logger.InfoLevel).Fatalw("invalid controller.zones config", "err", err)
	}

	cfg := service.Config{
		RoomMap:              make(map[string]string, len(zones)),
		ZonesWithoutSetpoint: viper.GetStringSlice("controller.zones_without_setpoint"),
		Timezone:             viper.GetString("controller.timezone"),
	}
	for _, z := range zones {
		cfg.ZoneNames = append(cfg.ZoneNames, z.Name)
		if z.Room != "" {
			cfg.RoomMap[z.Name] = z.Room
		}
	}
	return cfg
}

// registerSyncCommands exposes the write operations to dashboard
// subscribers over the sync link.
func registerSyncCommands(publisher *syncproto.Publisher, services *service.Service) {
	publisher.RegisterCommandHandler(syncproto.CommandZoneUpdate, func(ctx context.Context, req syncproto.CommandRequest) (any, error) {
		var body struct {
			TargetSetpointF *float64 `json:"target_setpoint_f"`
			ControlMode     *string  `json:"control_mode"`
			OverrideMode    string   `json:"override_mode"`
			OverrideUntil   string   `json:"override_until"`
		}
		if err := json.Unmarshal(req.CommandData, &body); err != nil {
			return nil, err
		}
		zone, err := services.UpdateZone(ctx, req.ZoneName, service.ZoneUpdateRequest{
			TargetSetpoint: body.TargetSetpointF,
			ControlMode:    body.ControlMode,
			OverrideMode:   body.OverrideMode,
			OverrideUntil:  body.OverrideUntil,
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{"zone": zone}, nil
	})

	publisher.RegisterCommandHandler(syncproto.CommandZoneCommand, func(ctx context.Context, req syncproto.CommandRequest) (any, error) {
		var body struct {
			Command string `json:"command"`
		}
		if err := json.Unmarshal(req.CommandData, &body); err != nil {
			return nil, err
		}
		zone, err := services.CommandZone(ctx, req.ZoneName, body.Command)
		if err != nil {
			return nil, err
		}
		return map[string]any{"zone": zone}, nil
	})

	publisher.RegisterCommandHandler(syncproto.CommandUniformSetpoint, func(ctx context.Context, req syncproto.CommandRequest) (any, error) {
		var body struct {
			SetpointF *float64 `json:"setpoint_f"`
		}
		if err := json.Unmarshal(req.CommandData, &body); err != nil {
			return nil, err
		}
		if body.SetpointF == nil {
			return nil, service.ErrNoUpdateFields
		}
		zones, err := services.UniformSetpoint(ctx, *body.SetpointF)
		if err != nil {
			return nil, err
		}
		return map[string]any{"zones": zones}, nil
	})
}

// openDB initializes the SQLite database using configuration.
func openDB(log *logger.Logger) (*sql.DB, error) {
	dbPath := viper.GetString("controller.db.path")
	if dbPath == "" {
		log.Infow("controller.db.path not set in config; using default file", "default", "heating.db")
		dbPath = "heating.db"
	}
	return repository.InitDB(dbPath)
}

func tickOrDefault(key string, fallback time.Duration) time.Duration {
	if d := viper.GetDuration(key); d > 0 {
		return d
	}
	return fallback
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		if port == "" {
			port = "8080"
		}
		if err := srv.Run(port, handler.InitRoutes()); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	// stop background goroutines
	cancel()

	// allow in-flight requests to complete
	ctx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalw("server forced to shutdown", "err", err)
	}
}
