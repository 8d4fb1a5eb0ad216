package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GrainArc/HydroMesh/config"
	"github.com/GrainArc/HydroMesh/logging"
	"github.com/GrainArc/HydroMesh/metrics"
	"github.com/GrainArc/HydroMesh/models"
	"github.com/GrainArc/HydroMesh/routers"
	"github.com/GrainArc/HydroMesh/services"
	"github.com/GrainArc/HydroMesh/views"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	log := logging.NewFromEnv(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	ctx := context.Background()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Error(ctx, "load config", logging.String("path", *configPath), logging.Err(err))
			os.Exit(1)
		}
		log.Warn(ctx, "config file not found, using defaults", logging.String("path", *configPath))
		cfg = config.Default()
	}
	config.MainConfig = cfg
	gin.SetMode(cfg.Server.Mode)

	db, err := models.OpenDB(cfg.Database)
	if err != nil {
		log.Error(ctx, "open database", logging.String("driver", cfg.Database.Driver), logging.Err(err))
		os.Exit(1)
	}

	collector, err := metrics.NewCollector(prometheus.DefaultRegisterer)
	if err != nil {
		log.Error(ctx, "register metrics", logging.Err(err))
		os.Exit(1)
	}

	cache := services.NewMeshCache(cfg.Cache.MaxSize, cfg.Cache.TTL)
	defer cache.Close()
	water := services.NewWaterService(cfg.Mesh, cache, collector, log)
	store := services.NewLevelStore(db)
	builds := services.NewBuildManager(water, store, cfg.Sites, log)
	ctrl := views.NewWaterController(water, store, builds, &config.MainConfig, log)

	engine := routers.NewEngine(ctrl, collector, routers.RequestLogger(log))
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info(ctx, "hydromesh listening", logging.String("addr", cfg.Server.Addr), logging.Int("sites", len(cfg.Sites)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "server stopped", logging.Err(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "shutdown", logging.Err(err))
	}
	log.Info(ctx, "hydromesh stopped")
}
