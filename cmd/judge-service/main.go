package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"codejudge/internal/common/cache"
	commonmw "codejudge/internal/common/http/middleware"
	"codejudge/internal/common/metrics"
	"codejudge/internal/common/mq"
	"codejudge/internal/common/ratelimit"
	"codejudge/internal/judge/admission"
	"codejudge/internal/judge/consumer"
	"codejudge/internal/judge/controller"
	"codejudge/internal/judge/envconfig"
	"codejudge/internal/judge/executor"
	"codejudge/internal/judge/service"
	"codejudge/pkg/utils/logger"
	"codejudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/judge_service.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	envFile := flag.String("env", ".env", "Path to env file")
	flag.Parse()

	if err := envconfig.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "load env failed: %v\n", err)
		return
	}
	path := *configPath
	if _, err := os.Stat(path); err != nil && path == defaultConfigPath {
		path = ""
	}
	appCfg, err := loadAppConfig(path, os.LookupEnv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	judgeCfg := appCfg.Judge.Config
	clientOpts := []executor.Option{
		executor.WithRunTimeout(appCfg.Piston.RunTimeout),
		executor.WithUserAgent("codejudge-service"),
	}
	baseURL := appCfg.Piston.URL
	if appCfg.Piston.FallbackToPublic {
		endpoint := executor.ResolveEndpoint(rootCtx, baseURL, appCfg.Piston.ProbeTimeout, clientOpts...)
		if endpoint.Reason != "" {
			logger.Warn(rootCtx, "falling back to public execution api", zap.String("reason", endpoint.Reason))
		}
		baseURL = endpoint.BaseURL
		if endpoint.Public {
			judgeCfg = executor.PublicLimits(judgeCfg)
		}
	}
	pistonClient := executor.NewClient(baseURL, clientOpts...)

	admissionCtrl, err := admission.NewController(judgeCfg)
	if err != nil {
		logger.Error(rootCtx, "init admission failed", zap.Error(err))
		return
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var judgeMetrics *service.Metrics
	if appCfg.Metrics.Enabled {
		judgeMetrics = service.NewMetrics(registry)
		if appCfg.Metrics.Host {
			host := metrics.NewHostCollector(registry, appCfg.Metrics.HostInterval, nil)
			go host.Run(rootCtx)
		}
	}

	orchestrator, err := service.NewOrchestrator(judgeCfg, admissionCtrl, pistonClient, service.WithMetrics(judgeMetrics))
	if err != nil {
		logger.Error(rootCtx, "init orchestrator failed", zap.Error(err))
		return
	}

	var sharedCache cache.Cache = cache.NewLocalCache(appCfg.Redis.LocalCacheSize)
	if appCfg.Redis.Enabled {
		redisCache, err := cache.NewRedisCache(appCfg.Redis.RedisConfig)
		if err != nil {
			logger.Error(rootCtx, "init redis failed", zap.Error(err))
			return
		}
		defer func() {
			_ = redisCache.Close()
		}()
		sharedCache = redisCache
	}
	limiter := ratelimit.NewService(sharedCache, appCfg.RateLimit.Window, appCfg.RateLimit.RedisTimeout)

	var mqClient *mq.KafkaQueue
	if appCfg.Kafka.Enabled {
		mqClient, err = mq.NewKafkaQueue(appCfg.Kafka.KafkaConfig)
		if err != nil {
			logger.Error(rootCtx, "init kafka failed", zap.Error(err))
			return
		}
		defer func() {
			_ = mqClient.Close()
		}()
		handler, err := consumer.NewHandler(consumer.Config{
			Evaluator:      orchestrator,
			Publisher:      mqClient,
			VerdictTopic:   appCfg.Kafka.VerdictTopic,
			MaxSourceBytes: appCfg.Judge.MaxSourceBytes,
		})
		if err != nil {
			logger.Error(rootCtx, "init submission consumer failed", zap.Error(err))
			return
		}
		if err := mqClient.Subscribe(rootCtx, appCfg.Kafka.SubmissionTopic, handler.HandleMessage, appCfg.Kafka.subscribeOptions()); err != nil {
			logger.Error(rootCtx, "subscribe kafka failed", zap.Error(err))
			return
		}
		if err := mqClient.Start(); err != nil {
			logger.Error(rootCtx, "start kafka consumer failed", zap.Error(err))
			return
		}
	}

	judgeController := controller.NewJudgeController(controller.Config{
		Evaluator:      orchestrator,
		Runtimes:       pistonClient,
		Cache:          sharedCache,
		RuntimesTTL:    appCfg.Piston.RuntimesTTL,
		MaxSourceBytes: appCfg.Judge.MaxSourceBytes,
		AllowedOrigins: appCfg.CORS.AllowedOrigins,
	})
	httpServer := buildHTTPServer(appCfg, judgeController, limiter, registry)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(rootCtx, "init http listener failed", zap.Error(err))
		return
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(rootCtx, "judge http server started",
			zap.String("addr", appCfg.Server.Addr),
			zap.String("piston", pistonClient.BaseURL()),
			zap.Int("max_concurrent", judgeCfg.MaxConcurrent),
			zap.Float64("requests_per_second", judgeCfg.RequestsPerSecond),
		)
		errCh <- httpServer.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "http server stopped", zap.Error(err))
		}
	case <-rootCtx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error(context.Background(), "http server shutdown failed", zap.Error(err))
	}
	if mqClient != nil {
		_ = mqClient.Stop()
	}
}

func buildHTTPServer(cfg *AppConfig, judgeController *controller.JudgeController, limiter *ratelimit.Service, registry *prometheus.Registry) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContext())
	router.Use(commonmw.RequestLogger())
	router.Use(commonmw.CORS(cfg.CORS))

	router.GET("/healthz", func(c *gin.Context) {
		response.Success(c, gin.H{"status": "ok"})
	})
	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api/v1/judge")
	judgeController.Register(api, commonmw.RateLimit(limiter, "evaluate", cfg.RateLimit.RateLimitPolicy))

	return &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}
