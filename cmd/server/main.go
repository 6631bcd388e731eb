// Package main is the entry point for the LacyLights pixel output server.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"github.com/bbernstein/lacylights-pixels/internal/config"
	"github.com/bbernstein/lacylights-pixels/internal/logger"
	"github.com/bbernstein/lacylights-pixels/internal/services/device"
	"github.com/bbernstein/lacylights-pixels/internal/services/frame"
	"github.com/bbernstein/lacylights-pixels/internal/services/preview"
	"github.com/bbernstein/lacylights-pixels/internal/services/pubsub"
	"github.com/bbernstein/lacylights-pixels/internal/services/telemetry"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Load .env file if present
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg := config.Load()

	lg, err := logger.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	// Print startup banner
	printBanner(cfg)

	specs, err := config.LoadDevices(cfg.DevicesFile)
	if err != nil {
		lg.Fatalf("Failed to load devices: %v", err)
	}

	ps := pubsub.New()
	registry := device.NewRegistry(lg, ps, cfg.Crossfade, device.DefaultFactories())
	started := startDevices(registry, specs, lg)
	lg.Infof("%d of %d devices registered", started, len(specs))

	// MQTT telemetry
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var tele *telemetry.Publisher
	teleDone := make(chan struct{})
	if cfg.TelemetryEnabled() {
		tele = telemetry.New(mqtt.NewClient(telemetry.ClientOptions(cfg, lg)), cfg.MQTTTopicPrefix, lg)
		// connect retries in the background until the broker is reachable
		go func() {
			defer close(teleDone)
			if err := tele.Start(ctx, ps); err != nil && ctx.Err() == nil {
				lg.WithError(err).Error("telemetry disabled")
			}
		}()
	}

	svc := preview.NewService(ps, statusFunc(registry), lg, Version)

	// Create HTTP server
	httpServer := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     buildRouter(cfg, svc),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		lg.Infof("Server listening on http://localhost:%s", cfg.Port)
		if cfg.PreviewEnabled {
			lg.Infof("Preview stream: ws://localhost:%s/ws/preview", cfg.Port)
		}
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			lg.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	lg.Info("Shutting down server...")

	// Blackout every device before anything else goes away
	registry.Shutdown()
	ps.Close()
	cancel()
	if tele != nil {
		<-teleDone
		tele.Stop()
	}

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		lg.Fatalf("Server shutdown error: %v", err)
	}

	lg.Info("Server stopped")
}

// startDevices registers every configured device and starts the test colour
// of those that have one. It returns how many devices were registered.
func startDevices(registry *device.Registry, specs []config.DeviceSpec, lg logger.Logger) int {
	l := lg.With(logger.Fields{"module": "main"})
	count := 0
	for _, spec := range specs {
		d, err := registry.Create(spec.ID, spec.Type, spec.Config)
		if err != nil {
			l.WithError(err).Errorf("skipping device %s", spec.ID)
			continue
		}
		count++
		if spec.TestColor == nil {
			continue
		}
		if err := d.SetEffect(frame.NewSolid(*spec.TestColor)); err != nil {
			l.WithError(err).Warnf("device %s: test colour not shown", spec.ID)
		}
	}
	return count
}

func statusFunc(registry *device.Registry) preview.StatusFunc {
	return func() []device.Status {
		devices := registry.List()
		out := make([]device.Status, 0, len(devices))
		for _, d := range devices {
			out = append(out, d.Status())
		}
		return out
	}
}

// buildRouter wires middleware and the status and preview routes.
func buildRouter(cfg *config.Config, svc *preview.Service) http.Handler {
	router := chi.NewRouter()

	// Middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	if cfg.IsDevelopment() {
		router.Use(middleware.Logger)
	}
	router.Use(middleware.Recoverer)

	// CORS
	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   []string{cfg.CORSOrigin, "http://localhost:3000", "http://localhost:4000"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		Debug:            cfg.IsDevelopment(),
	})
	router.Use(corsMiddleware.Handler)

	if cfg.PreviewEnabled {
		router.Mount("/", svc.Routes())
	} else {
		router.Mount("/", svc.StatusRoutes())
	}
	return router
}

// printBanner prints the startup banner.
func printBanner(cfg *config.Config) {
	fmt.Println("============================================")
	fmt.Println("  LacyLights Pixel Server")
	fmt.Printf("  Version: %s\n", Version)
	fmt.Printf("  Build:   %s\n", BuildTime)
	fmt.Printf("  Commit:  %s\n", GitCommit)
	fmt.Println("============================================")
	fmt.Printf("  Environment: %s\n", cfg.Env)
	fmt.Printf("  Port:        %s\n", cfg.Port)
	fmt.Printf("  Devices:     %s\n", cfg.DevicesFile)
	fmt.Printf("  Crossfade:   %s\n", cfg.Crossfade)
	fmt.Printf("  Preview:     %v\n", cfg.PreviewEnabled)
	if cfg.TelemetryEnabled() {
		fmt.Printf("  MQTT:        %s\n", cfg.MQTTBroker)
	} else {
		fmt.Println("  MQTT:        disabled")
	}
	fmt.Println("============================================")
}
