// PaymentService 主程序
// 功能：订单确认后的幂等建单、支付结果回调与支付事件发布
// 架构：DDD + 事务性发件箱 + Kafka
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wyfcoding/orderfulfillment/internal/payment/application"
	"github.com/wyfcoding/orderfulfillment/internal/payment/infrastructure/messaging"
	paymysql "github.com/wyfcoding/orderfulfillment/internal/payment/infrastructure/persistence/mysql"
	eventhandler "github.com/wyfcoding/orderfulfillment/internal/payment/interfaces/events"
	httphandler "github.com/wyfcoding/orderfulfillment/internal/payment/interfaces/http"
	"github.com/wyfcoding/orderfulfillment/pkg/cache"
	"github.com/wyfcoding/orderfulfillment/pkg/config"
	"github.com/wyfcoding/orderfulfillment/pkg/db"
	"github.com/wyfcoding/orderfulfillment/pkg/logger"
	"github.com/wyfcoding/orderfulfillment/pkg/metrics"
	"github.com/wyfcoding/orderfulfillment/pkg/middleware"
	"github.com/wyfcoding/orderfulfillment/pkg/mq"
	"github.com/wyfcoding/orderfulfillment/pkg/outbox"
	"github.com/wyfcoding/orderfulfillment/pkg/utils"
)

func main() {
	// 1. 加载配置
	configPath := "configs/payment/config.toml"
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	if err := logger.Init(cfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	logger.Info(ctx, "Starting PaymentService",
		"service", cfg.ServiceName,
		"version", cfg.Version,
		"environment", cfg.Environment,
	)

	// 3. 初始化数据库
	database, err := db.Init(db.Config{
		Driver:             cfg.Database.Driver,
		DSN:                cfg.Database.DSN,
		MaxOpenConns:       cfg.Database.MaxOpenConns,
		MaxIdleConns:       cfg.Database.MaxIdleConns,
		ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
		LogEnabled:         cfg.Database.LogEnabled,
		SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
	})
	if err != nil {
		logger.Fatal(ctx, "Failed to initialize database", "error", err)
	}
	defer database.Close()

	if cfg.Environment != "production" {
		if err := database.AutoMigrate(&paymysql.PaymentModel{}, &outbox.Event{}); err != nil {
			logger.Fatal(ctx, "Failed to migrate database", "error", err)
		}
	}

	// 4. 初始化 Redis（发件箱租约）
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
		logger.Fatal(ctx, "Failed to initialize Redis", "error", err)
	}
	defer redisCache.Close()

	// 5. 初始化指标
	metricsInstance := metrics.New(cfg.ServiceName)
	if err := metricsInstance.Register(); err != nil {
		logger.Fatal(ctx, "Failed to register metrics", "error", err)
	}
	if cfg.Metrics.Enabled {
		if err := metrics.StartHTTPServer(cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
			logger.Fatal(ctx, "Failed to start metrics HTTP server", "error", err)
		}
	}

	// 6. 初始化仓储与应用服务
	paymentRepo := paymysql.NewPaymentRepository(database)
	idGen := utils.NewSnowflakeID(2)
	paymentService := application.NewPaymentService(paymentRepo, idGen)

	// 7. 初始化 Kafka 生产者与消费路由
	mqCfg := mq.Config{
		Brokers:        cfg.Kafka.Brokers,
		GroupID:        cfg.Kafka.GroupID,
		SessionTimeout: cfg.Kafka.SessionTimeout,
		MaxRetries:     cfg.Kafka.MaxRetries,
		RetryBackoff:   cfg.Kafka.RetryBackoff,
	}
	producer := mq.NewProducer(mqCfg)
	defer producer.Close()

	dlq := mq.NewDeadLetterQueue(producer, cfg.Kafka.DLTSuffix)
	router := mq.NewRouter(mqCfg, dlq, cfg.Kafka.ConsumerMaxAttempts)
	eventhandler.NewEventHandler(paymentService).RegisterRoutes(router)

	// 8. 初始化发件箱中继
	lease := outbox.NewRedisLease(redisCache, "outbox:lease:payment", uuid.NewString(), cfg.Outbox.LeaseTTLDuration())
	relay := outbox.NewRelay(outbox.NewGormStore(database.DB), cfg.Outbox.PollIntervalDuration(), cfg.Outbox.BatchSize, lease, metricsInstance)
	messaging.RegisterPublishers(relay, producer)

	// 9. 创建 HTTP 服务器
	httpServer := createHTTPServer(cfg, metricsInstance, paymentService)

	// 10. 启动并等待退出信号
	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		relay.Run(gctx)
		return nil
	})
	g.Go(func() error {
		router.Start(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info(gctx, "Starting HTTP server", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error(ctx, "PaymentService exited with error", "error", err)
	}
	logger.Info(ctx, "PaymentService stopped")
}

// createHTTPServer 创建 HTTP 服务器
func createHTTPServer(cfg *config.Config, m *metrics.Metrics, paymentService *application.PaymentService) *http.Server {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(middleware.GinLoggingMiddleware())
	router.Use(middleware.GinRecoveryMiddleware())
	router.Use(middleware.GinCORSMiddleware())
	router.Use(middleware.GinMetricsMiddleware(m))

	httphandler.NewPaymentHandler(paymentService).RegisterRoutes(&router.RouterGroup)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"service":   cfg.ServiceName,
			"timestamp": time.Now().Unix(),
		})
	})

	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}
}
