package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"billpay/internal/auth"
	"billpay/internal/config"
	"billpay/internal/handler"
	"billpay/internal/infrastructure/cache"
	"billpay/internal/infrastructure/database"
	"billpay/internal/infrastructure/lock"
	"billpay/internal/infrastructure/logger"
	"billpay/internal/infrastructure/metrics"
	"billpay/internal/infrastructure/mq"
	"billpay/internal/job"
	"billpay/internal/pricing"
	"billpay/internal/repository"
	"billpay/internal/service"
	"billpay/pkg/idgen"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	workerID := flag.Int64("worker", 1, "雪花算法 worker id")
	flag.Parse()

	// 加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		stdlog.Fatalf("加载配置失败: %v", err)
	}

	log, err := logger.NewLogger(cfg.Log)
	if err != nil {
		stdlog.Fatalf("初始化日志失败: %v", err)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, *workerID, log); err != nil {
		log.Fatal("服务异常退出", zap.Error(err))
	}
}

func run(cfg *config.Config, workerID int64, log *zap.Logger) error {
	// 初始化 ID 生成器
	if err := idgen.Init(workerID); err != nil {
		return err
	}

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis 始终需要：用户锁依赖它
	redisClient, err := cache.InitRedis(ctx, &cfg.Redis, log)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	// 用户数据存储
	var store repository.Store
	switch cfg.Storage.Driver {
	case "mysql":
		db, err := database.InitMySQL(&cfg.MySQL, log)
		if err != nil {
			return err
		}
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}
		store = repository.NewMySQLStore(db, cfg.Storage.MaxRetries)
	default:
		store = repository.NewRedisStore(redisClient, cfg.Storage.MaxRetries)
	}
	log.Info("存储后端就绪", zap.String("driver", cfg.Storage.Driver))

	m := metrics.New()
	ledger := service.NewLedgerService(store, cfg, log)
	locker := lock.NewUserLocker(redisClient, cfg.Business.LockTTL(), cfg.Business.LockRetryInterval(), cfg.Business.LockMaxRetries)
	issuer := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience, cfg.Auth.TokenTTL())
	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience)
	accounts := service.NewAccountService(store, ledger, auth.NewLocalProvider(store), issuer, log)
	pay := service.NewPayService(ledger, locker, cfg, m, log)

	// 启动后台任务
	if cfg.Kafka.Enabled {
		producer, err := mq.NewSyncProducer(&cfg.Kafka)
		if err != nil {
			return err
		}
		publisher := mq.NewKafkaPublisher(producer, log)
		defer publisher.Close()

		outboxSender := job.NewOutboxSender(store, publisher, cfg, m, log)
		go outboxSender.Start(ctx)
	}

	pendingJob := job.NewPendingTransactionJob(store, ledger, cfg, m, log)
	go pendingJob.Start(ctx)

	// 设置路由
	h := handler.NewHandler(accounts, ledger, pay, pricing.NewCatalog(cfg.Catalog), log)
	router := handler.SetupRouter(h, verifier, m, log)

	// 启动 HTTP 服务
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("服务启动", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		return err
	}

	log.Info("正在关闭服务...")

	// 取消上下文，停止后台任务
	cancel()

	// 关闭 HTTP 服务（等待最多5秒）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("服务关闭异常", zap.Error(err))
	}

	log.Info("服务已关闭")
	return nil
}
