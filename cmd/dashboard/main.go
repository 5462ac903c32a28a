package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"heating_controller/internal/dashboard"
	"heating_controller/internal/logger"
	"heating_controller/internal/server"

	"github.com/spf13/viper"
)

func main() {
	// init logger
	log := logger.Get(logger.InfoLevel)

	// load config.yml
	if err := loadConfig(); err != nil {
		log.Fatalw("error reading config", "err", err)
	}

	controllerURL := viper.GetString("dashboard.controller_ws_url")
	if controllerURL == "" {
		controllerURL = "ws://localhost:8080/ws"
		log.Infow("dashboard.controller_ws_url not set; using default", "default", controllerURL)
	}

	// context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// wire dependencies
	mirror := dashboard.NewMirror()
	client := dashboard.NewClient(controllerURL, mirror, log.SugaredLogger)
	apiHandler := dashboard.NewHandler(mirror, client, log)

	// keep the subscription to the controller alive
	go client.Run(ctx)

	// start HTTP server
	srv := &server.Server{}
	go func() {
		port := viper.GetString("dashboard.port")
		if port == "" {
			port = "8081"
		}
		if err := srv.Run(port, apiHandler.InitRoutes()); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()

	// graceful shutdown
	waitForShutdown(cancel, srv, log)
}

func loadConfig() error {
	viper.AddConfigPath("configs") // configs/config.yml
	viper.SetConfigName("config")
	return viper.ReadInConfig()
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	// stop the sync client
	cancel()

	// allow in-flight requests to complete
	ctx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalw("server forced to shutdown", "err", err)
	}
}
