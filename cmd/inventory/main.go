// InventoryService 主程序
// 功能：原子库存预占/释放、持久库存投影、库存供给，以及同进程托管的商品目录同步
// 架构：DDD + Redis Lua 原子脚本 + 事务性发件箱 + Kafka
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

	invapp "github.com/wyfcoding/orderfulfillment/internal/inventory/application"
	"github.com/wyfcoding/orderfulfillment/internal/inventory/infrastructure/messaging"
	invmysql "github.com/wyfcoding/orderfulfillment/internal/inventory/infrastructure/persistence/mysql"
	invredis "github.com/wyfcoding/orderfulfillment/internal/inventory/infrastructure/persistence/redis"
	inveventhandler "github.com/wyfcoding/orderfulfillment/internal/inventory/interfaces/events"
	invhttphandler "github.com/wyfcoding/orderfulfillment/internal/inventory/interfaces/http"
	prodapp "github.com/wyfcoding/orderfulfillment/internal/product/application"
	prodmysql "github.com/wyfcoding/orderfulfillment/internal/product/infrastructure/persistence/mysql"
	prodeventhandler "github.com/wyfcoding/orderfulfillment/internal/product/interfaces/events"
	prodhttphandler "github.com/wyfcoding/orderfulfillment/internal/product/interfaces/http"
	"github.com/wyfcoding/orderfulfillment/pkg/cache"
	"github.com/wyfcoding/orderfulfillment/pkg/config"
	"github.com/wyfcoding/orderfulfillment/pkg/db"
	"github.com/wyfcoding/orderfulfillment/pkg/logger"
	"github.com/wyfcoding/orderfulfillment/pkg/metrics"
	"github.com/wyfcoding/orderfulfillment/pkg/middleware"
	"github.com/wyfcoding/orderfulfillment/pkg/mq"
	"github.com/wyfcoding/orderfulfillment/pkg/outbox"
)

func main() {
	// 1. 加载配置
	configPath := "configs/inventory/config.toml"
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
	logger.Info(ctx, "Starting InventoryService",
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
		err := database.AutoMigrate(
			&invmysql.InventoryRecordModel{},
			&invmysql.StockLedgerModel{},
			&prodmysql.ProductModel{},
			&prodmysql.ProductSyncLedgerModel{},
			&outbox.Event{},
		)
		if err != nil {
			logger.Fatal(ctx, "Failed to migrate database", "error", err)
		}
	}

	// 4. 初始化 Redis
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

	// 6. 初始化库存侧：原子存取、仓储、应用服务
	stockStore := invredis.NewStockStore(redisCache)
	inventoryRepo := invmysql.NewInventoryRepository(database)
	projectionUnit := invmysql.NewProjectionUnit(database)
	eventWriter := invmysql.NewEventWriter(database)

	reservationService := invapp.NewReservationService(stockStore, eventWriter, metricsInstance, cfg.Saga.DedupTTLDuration())
	projector := invapp.NewProjector(projectionUnit, metricsInstance)
	inventoryService := invapp.NewInventoryService(stockStore, inventoryRepo)

	// 7. 初始化商品目录同步（同进程托管）
	syncUnit := prodmysql.NewSyncUnit(database)
	productRepo := prodmysql.NewProductRepository(database)
	syncService := prodapp.NewSyncService(syncUnit, productRepo)

	// 8. 初始化 Kafka 生产者与消费路由
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
	inveventhandler.NewEventHandler(reservationService).RegisterRoutes(router)
	prodeventhandler.NewEventHandler(syncService).RegisterRoutes(router)

	// 9. 初始化发件箱中继（发布 + 同址投影）
	lease := outbox.NewRedisLease(redisCache, "outbox:lease:inventory", uuid.NewString(), cfg.Outbox.LeaseTTLDuration())
	relay := outbox.NewRelay(outbox.NewGormStore(database.DB), cfg.Outbox.PollIntervalDuration(), cfg.Outbox.BatchSize, lease, metricsInstance)
	messaging.RegisterPublishers(relay, producer, projector)

	// 10. 创建 HTTP 服务器
	httpServer := createHTTPServer(cfg, metricsInstance, inventoryService, syncService)

	// 11. 启动并等待退出信号
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
		logger.Error(ctx, "InventoryService exited with error", "error", err)
	}
	logger.Info(ctx, "InventoryService stopped")
}

// createHTTPServer 创建 HTTP 服务器
func createHTTPServer(cfg *config.Config, m *metrics.Metrics, inventoryService *invapp.InventoryService, syncService *prodapp.SyncService) *http.Server {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(middleware.GinLoggingMiddleware())
	router.Use(middleware.GinRecoveryMiddleware())
	router.Use(middleware.GinCORSMiddleware())
	router.Use(middleware.GinMetricsMiddleware(m))

	invhttphandler.NewInventoryHandler(inventoryService).RegisterRoutes(&router.RouterGroup)
	prodhttphandler.NewProductHandler(syncService).RegisterRoutes(&router.RouterGroup)

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
