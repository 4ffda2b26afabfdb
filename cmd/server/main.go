package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hass-uconnect/hass-uconnect/internal/api/handlers"
	"github.com/hass-uconnect/hass-uconnect/internal/api/uconnect"
	"github.com/hass-uconnect/hass-uconnect/internal/config"
	"github.com/hass-uconnect/hass-uconnect/internal/metrics"
	"github.com/hass-uconnect/hass-uconnect/internal/repository"
	"github.com/hass-uconnect/hass-uconnect/internal/service"
	"github.com/hass-uconnect/hass-uconnect/pkg/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Debug)
	defer logger.Sync()

	logger.Info("Starting hass-uconnect",
		zap.String("port", cfg.ServerPort),
		zap.String("brand", cfg.Brand),
		zap.String("region", cfg.Region))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	endpoint, err := uconnect.Resolve(uconnect.Brand(cfg.Brand), uconnect.Region(cfg.Region))
	if err != nil {
		logger.Fatal("Unknown brand/region", zap.Error(err))
	}

	// Persistence is optional; without DATABASE_URL everything stays in
	// memory.
	var store service.Store
	var commandRepo *repository.CommandRepository
	if cfg.DatabaseURL != "" {
		db, err := repository.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("Failed to connect database", zap.Error(err))
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			logger.Fatal("Failed to migrate database", zap.Error(err))
		}
		logger.Info("Database migrated successfully")

		repoStore := repository.NewStore(db)
		store = repoStore
		commandRepo = repoStore.Commands
	}

	m := metrics.New()

	transport := uconnect.NewTransport(endpoint, uconnect.TransportOptions{
		Timeout:          cfg.RequestTimeout,
		DisableTLSVerify: cfg.DisableTLSVerify,
		MaxRetries:       3,
		InitialBackoff:   500 * time.Millisecond,
		MaxBackoff:       10 * time.Second,
	}, logger)

	creds := uconnect.Credentials{
		Username: cfg.Username,
		Password: cfg.Password,
		PIN:      cfg.PIN,
	}
	auth := uconnect.NewSessionManager(endpoint, creds, transport, logger, func(from, to string) {
		logger.Info("Session state changed", zap.String("from", from), zap.String("to", to))
	})
	client := uconnect.NewClient(endpoint, transport, auth, logger)

	wsHub := ws.NewHub(logger)
	go wsHub.Run()

	vehicleService := service.NewVehicleService(service.PollerConfig{
		Interval:     cfg.ScanInterval,
		FetchTimeout: cfg.FetchTimeout,
	}, client, auth, store, m, logger)

	wsHub.SetInitDataProvider(func() *ws.InitData {
		vehicles := vehicleService.Vehicles()
		states := make(map[string]interface{}, len(vehicles))
		for _, v := range vehicles {
			if st, err := vehicleService.GetState(ctx, v.VIN); err == nil && st != nil {
				states[v.VIN] = st
			}
		}
		return &ws.InitData{Vehicles: vehicles, States: states}
	})

	if err := vehicleService.Start(ctx); err != nil {
		logger.Error("Failed to start vehicle service", zap.Error(err))
	}

	// Bridge service events onto the websocket hub.
	go func() {
		for ev := range vehicleService.Subscribe() {
			switch ev.Type {
			case service.EventState:
				wsHub.BroadcastStateUpdate(ev.State)
			case service.EventCommandResult:
				wsHub.BroadcastCommandResult(ev.Command)
			case service.EventReauthNeeded:
				wsHub.BroadcastReauthRequired()
			}
		}
	}()

	handler := handlers.NewHandler(logger, vehicleService, commandRepo, m, wsHub, cfg.AddCommandEntities)

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	handler.RegisterRoutes(router)

	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("addr", server.Addr))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	vehicleService.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func initLogger(debug bool) *zap.Logger {
	var config zap.Config
	if debug {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}

	logger, _ := config.Build()
	return logger
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
