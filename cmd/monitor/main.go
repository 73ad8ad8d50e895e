package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"movers/internal/alert"
	"movers/internal/classifier"
	"movers/internal/client/clob"
	"movers/internal/client/gamma"
	"movers/internal/client/kalshi"
	"movers/internal/client/opinion"
	"movers/internal/config"
	cronrunner "movers/internal/cron"
	"movers/internal/db"
	"movers/internal/delta"
	"movers/internal/handler"
	"movers/internal/logger"
	"movers/internal/notify"
	"movers/internal/pipeline"
	"movers/internal/profiler"
	"movers/internal/provider"
	gormrepository "movers/internal/repository/gorm"
	signalfeed "movers/internal/signal"

	_ "movers/docs"
)

func main() {
	cfgPath := os.Getenv("MV_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if raw := os.Getenv("MV_ENV_ONLY"); raw != "" {
		envOnly = strings.EqualFold(raw, "true") || raw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config load failed:", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init failed:", err)
		os.Exit(1)
	}
	defer log.Sync()

	database, err := db.Open(cfg.DB)
	if err != nil {
		log.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(database)

	if err := db.Migrate(database, log); err != nil {
		log.Fatal("migrations failed", zap.Error(err))
	}

	store := gormrepository.New(database.Gorm)

	var spot *signalfeed.SpotFeed
	if strings.TrimSpace(cfg.Spot.Endpoint) != "" {
		spotHTTP := &http.Client{Timeout: cfg.Spot.Timeout}
		spot = signalfeed.NewSpotFeed(spotHTTP, log, cfg.Spot.Endpoint, cfg.Spot.Symbols)
	}

	prof := profiler.New(store, log, cfg.Profiler, cfg.Pipeline.ProfileBatch)
	if err := prof.LoadModel(); err != nil {
		log.Warn("model load failed, profiling runs rule-only", zap.Error(err))
	}

	runner := &pipeline.Runner{
		Repo:       store,
		Adapters:   buildAdapters(cfg, log),
		Profiler:   prof,
		Deltas:     delta.New(store, log),
		Classifier: classifier.New(store, spot, log),
		Alerter:    alert.New(store, notify.New(cfg.Telegram, log), log, cfg.Alerts),
		Spot:       spot,
		Logger:     log,
		Retention:  cfg.Pipeline.Retention,
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: database.Gorm, Spot: spot}
	healthHandler.Register(engine)
	moversHandler := handler.NewMoversHandler(store, log, cfg.Movers)
	moversHandler.Register(engine)
	handler.RegisterDocs(engine)
	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prof.StartReloader(ctx)

	if spot != nil && cfg.Spot.Stream && strings.TrimSpace(cfg.Spot.StreamURL) != "" {
		stream := &signalfeed.SpotStream{Feed: spot, Logger: log, URL: cfg.Spot.StreamURL}
		go stream.Run(ctx)
	}

	// First cycle runs before the scheduler so the read API has data as
	// soon as the process is up.
	runner.RunCycle(ctx)

	interval := cfg.Pipeline.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	sched := cronrunner.New(log, ctx)
	if _, err := sched.Every(interval, func(ctx context.Context) {
		runner.RunCycle(ctx)
	}); err != nil {
		log.Fatal("cycle schedule failed", zap.Error(err))
	}
	sched.Start()
	defer sched.Stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown requested")
	case err := <-errCh:
		log.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// buildAdapters constructs every provider adapter; disabled ones stay in
// the slice and report Enabled() false so the pipeline skips them.
func buildAdapters(cfg config.Config, log *zap.Logger) []provider.Adapter {
	pm := cfg.Providers.Polymarket
	gammaClient := gamma.NewClient(&http.Client{Timeout: pm.Timeout}, pm.GammaBaseURL)
	clobClient := clob.NewClient(&http.Client{Timeout: pm.Timeout}, pm.ClobBaseURL)

	ks := cfg.Providers.Kalshi
	kalshiClient := kalshi.NewClient(&http.Client{Timeout: ks.Timeout}, ks.BaseURL)

	op := cfg.Providers.Opinion
	opinionClient := opinion.NewClient(&http.Client{Timeout: op.Timeout},
		op.BaseURL, op.APIKey, op.MaxRPS, op.MaxRetries, op.RetryBase)

	return []provider.Adapter{
		provider.NewPolymarketAdapter(gammaClient, clobClient, pm, log),
		provider.NewKalshiAdapter(kalshiClient, ks, log),
		provider.NewOpinionAdapter(opinionClient, op, log),
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
