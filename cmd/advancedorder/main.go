package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/wyfcoding/tradingterminal/internal/advancedorder/application"
	"github.com/wyfcoding/tradingterminal/internal/advancedorder/domain"
	"github.com/wyfcoding/tradingterminal/internal/advancedorder/infrastructure/gateway"
	"github.com/wyfcoding/tradingterminal/internal/advancedorder/infrastructure/messaging"
	"github.com/wyfcoding/tradingterminal/internal/advancedorder/infrastructure/persistence"
	"github.com/wyfcoding/tradingterminal/internal/advancedorder/interfaces"
	"github.com/wyfcoding/tradingterminal/pkg/cache"
	"github.com/wyfcoding/tradingterminal/pkg/config"
	"github.com/wyfcoding/tradingterminal/pkg/db"
	"github.com/wyfcoding/tradingterminal/pkg/logger"
	"github.com/wyfcoding/tradingterminal/pkg/metrics"
	"github.com/wyfcoding/tradingterminal/pkg/middleware"
	"github.com/wyfcoding/tradingterminal/pkg/mq"
	"github.com/wyfcoding/tradingterminal/pkg/utils"
)

func main() {
	configPath := flag.String("config", "configs/advancedorder/config.toml", "配置文件路径")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		FilePath:   cfg.Logger.FilePath,
		MaxSize:    cfg.Logger.MaxSize,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAge:     cfg.Logger.MaxAge,
		Compress:   cfg.Logger.Compress,
		WithCaller: cfg.Logger.WithCaller,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Fatal(ctx, "service exited with error", "error", err)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()

	// 指标
	m := metrics.New(cfg.ServiceName)
	if err := m.Register(); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	if cfg.Metrics.Enabled {
		if err := metrics.StartHTTPServer(cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
	}

	// 数据库
	database, err := db.Init(db.Config{
		Driver:             cfg.Database.Driver,
		DSN:                cfg.Database.DSN,
		MaxOpenConns:       cfg.Database.MaxOpenConns,
		MaxIdleConns:       cfg.Database.MaxIdleConns,
		ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
		LogEnabled:         cfg.Environment != "prod",
		SlowQueryThreshold: 200,
		Metrics:            m,
	})
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer database.Close()

	if cfg.Environment != "prod" {
		if err := database.AutoMigrate(&domain.AdvancedOrder{}, &domain.AdvancedOrderExecution{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
	}

	// Redis
	redisCache, err := cache.New(cache.Config{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		MaxPoolSize:  cfg.Redis.MaxPoolSize,
		ConnTimeout:  cfg.Redis.ConnTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		return fmt.Errorf("init redis: %w", err)
	}
	defer redisCache.Close()

	// Kafka
	producer, err := mq.NewProducer(mq.KafkaConfig{
		Brokers:      cfg.Kafka.Brokers,
		MaxRetries:   cfg.Kafka.MaxRetries,
		RetryBackoff: cfg.Kafka.RetryBackoff,
	})
	if err != nil {
		return fmt.Errorf("init kafka producer: %w", err)
	}
	defer producer.Close()

	// 网关
	exchangeGateway, err := buildGateway(cfg.Gateway)
	if err != nil {
		return err
	}

	// 仓储与事件
	orderRepo := persistence.NewGormOrderRepository(database.DB)
	execRepo := persistence.NewGormExecutionRepository(database.DB)
	publisher := messaging.NewKafkaEventPublisher(producer, cfg.Kafka.LifecycleTopic, cfg.Kafka.ExecutionTopic)

	// 引擎与服务
	manager := application.NewEngineManager(exchangeGateway, orderRepo, execRepo, publisher, m, log, cfg.Engine)
	idGen := utils.NewSnowflakeID(1)
	cmdService := application.NewCommandService(orderRepo, execRepo, manager, idGen, m, log)
	queryService := application.NewQueryService(orderRepo, execRepo, redisCache, log)
	httpHandler := interfaces.NewHTTPHandler(cmdService, queryService)

	// 崩溃恢复：active 订单从执行日志重建后继续驱动
	if err := manager.ResumeActive(ctx); err != nil {
		return fmt.Errorf("resume active orders: %w", err)
	}

	// HTTP
	if cfg.Environment == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.GinRecoveryMiddleware(),
		middleware.GinLoggingMiddleware(),
		middleware.GinMetricsMiddleware(m),
		middleware.GinRateLimitMiddleware(middleware.NewRateLimiter(1000, 500)),
	)
	api := router.Group("/api/v1")
	httpHandler.RegisterRoutes(api)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info(gctx, "http server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info(context.Background(), "shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn(context.Background(), "http shutdown", "error", err)
		}

		// 执行循环停机不落终态，active 订单重启后恢复
		manager.Shutdown()
		return nil
	})

	return g.Wait()
}

// buildGateway 按配置构造交易所网关适配器
func buildGateway(cfg config.GatewayConfig) (domain.ExchangeGateway, error) {
	switch cfg.Adapter {
	case "", "paper":
		return gateway.NewPaperGateway(), nil
	default:
		return nil, fmt.Errorf("unknown gateway adapter: %s", cfg.Adapter)
	}
}
