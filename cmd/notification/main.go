// NotificationService 主程序
// 功能：消费订单与支付的终态事件并投递通知，死信主题兜底毒消息
// 架构：DDD + Kafka 有界重试 + DLT
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
	"golang.org/x/sync/errgroup"

	"github.com/wyfcoding/orderfulfillment/internal/notification/application"
	notimysql "github.com/wyfcoding/orderfulfillment/internal/notification/infrastructure/persistence/mysql"
	eventhandler "github.com/wyfcoding/orderfulfillment/internal/notification/interfaces/events"
	httphandler "github.com/wyfcoding/orderfulfillment/internal/notification/interfaces/http"
	"github.com/wyfcoding/orderfulfillment/pkg/config"
	"github.com/wyfcoding/orderfulfillment/pkg/db"
	"github.com/wyfcoding/orderfulfillment/pkg/logger"
	"github.com/wyfcoding/orderfulfillment/pkg/metrics"
	"github.com/wyfcoding/orderfulfillment/pkg/middleware"
	"github.com/wyfcoding/orderfulfillment/pkg/mq"
)

func main() {
	// 1. 加载配置
	configPath := "configs/notification/config.toml"
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
	logger.Info(ctx, "Starting NotificationService",
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
		if err := database.AutoMigrate(&notimysql.NotificationModel{}); err != nil {
			logger.Fatal(ctx, "Failed to migrate database", "error", err)
		}
	}

	// 4. 初始化指标
	metricsInstance := metrics.New(cfg.ServiceName)
	if err := metricsInstance.Register(); err != nil {
		logger.Fatal(ctx, "Failed to register metrics", "error", err)
	}
	if cfg.Metrics.Enabled {
		if err := metrics.StartHTTPServer(cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
			logger.Fatal(ctx, "Failed to start metrics HTTP server", "error", err)
		}
	}

	// 5. 初始化仓储与应用服务
	notificationRepo := notimysql.NewNotificationRepository(database)
	notifier := application.NewNotifierService(notificationRepo)

	// 6. 初始化 Kafka 消费路由（业务主题 + 对应死信主题）
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
	eventhandler.NewEventHandler(notifier).RegisterRoutes(router)
	eventhandler.NewDLTHandler(metricsInstance, cfg.Kafka.DLTSuffix).RegisterRoutes(router)

	// 7. 创建 HTTP 服务器
	httpServer := createHTTPServer(cfg, metricsInstance, notifier)

	// 8. 启动并等待退出信号
	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(runCtx)
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
		logger.Error(ctx, "NotificationService exited with error", "error", err)
	}
	logger.Info(ctx, "NotificationService stopped")
}

// createHTTPServer 创建 HTTP 服务器
func createHTTPServer(cfg *config.Config, m *metrics.Metrics, notifier *application.NotifierService) *http.Server {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(middleware.GinLoggingMiddleware())
	router.Use(middleware.GinRecoveryMiddleware())
	router.Use(middleware.GinCORSMiddleware())
	router.Use(middleware.GinMetricsMiddleware(m))

	httphandler.NewNotificationHandler(notifier).RegisterRoutes(&router.RouterGroup)

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
