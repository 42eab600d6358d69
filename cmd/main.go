package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Gopher0727/InterviewRoom/config"
	"github.com/Gopher0727/InterviewRoom/internal/api"
	"github.com/Gopher0727/InterviewRoom/internal/events"
	"github.com/Gopher0727/InterviewRoom/internal/handlers"
	grpcserver "github.com/Gopher0727/InterviewRoom/internal/pkg/grpc"
	"github.com/Gopher0727/InterviewRoom/internal/pkg/kafka"
	"github.com/Gopher0727/InterviewRoom/internal/services"
	"github.com/Gopher0727/InterviewRoom/internal/storage"
	"github.com/Gopher0727/InterviewRoom/internal/utils"
	"github.com/Gopher0727/InterviewRoom/middleware/jwt"
	logger "github.com/Gopher0727/InterviewRoom/middleware/log"
	"github.com/Gopher0727/InterviewRoom/utils/ratelimit"
	"github.com/Gopher0727/InterviewRoom/utils/snowflake"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", "config/config.toml", "配置文件路径")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("配置初始化失败: %v", err)
	}

	appLogger, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		log.Fatalf("日志初始化失败: %v", err)
	}
	zlog := appLogger.Logger

	store, err := storage.Open(cfg)
	if err != nil {
		zlog.Fatal("存储初始化失败", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}

	// 协程池承载事件投递，防止高并发下 Goroutine 暴涨
	pool := utils.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, zlog)
	pool.Start()

	publisher, producer := newPublisher(cfg, pool, zlog)

	svc := services.New(services.Options{
		Store:          store,
		Logger:         zlog,
		Publisher:      publisher,
		LockStripes:    cfg.Rooms.LockStripes,
		InvitationTTL:  cfg.Invitation.TTL,
		GuestRetention: cfg.Invitation.GuestRetention,
	})

	limiterClient := newLimiterClient(cfg, zlog)
	limiter := ratelimit.NewRedisLimiter(limiterClient, zlog, cfg.RateLimit.FailOpen)
	tokens := jwt.NewTokenManager(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	mw := api.NewMiddlewareManager(tokens, limiter, zlog, &cfg.RateLimit)

	gin.SetMode(cfg.Server.Mode)
	router := api.NewRouter(mw, &api.Handlers{
		Rooms:        handlers.NewRoomHandler(svc.Rooms, zlog),
		Participants: handlers.NewParticipantHandler(svc.Participants, zlog),
		Settings:     handlers.NewSettingsHandler(svc.Settings, zlog),
		Invitations:  handlers.NewInvitationHandler(svc.Invitations, zlog),
	}, cfg.RateLimit.MaxConcurrency)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		zlog.Info("正在启动 HTTP 服务", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("启动 HTTP 服务失败", zap.Error(err))
		}
	}()

	var grpcSrv *grpcserver.Server
	if cfg.GRPC.Address != "" {
		grpcSrv, err = grpcserver.NewServer(cfg.GRPC.Address, zlog)
		if err != nil {
			zlog.Fatal("gRPC 初始化失败", zap.Error(err))
		}
		go func() {
			if err := grpcSrv.Start(); err != nil {
				zlog.Error("gRPC 服务退出", zap.Error(err))
			}
		}()
		grpcSrv.SetServing(true)
	}

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	sweepDone := make(chan struct{})
	go runSweeper(sweepCtx, svc.Invitations, cfg.Invitation.SweepInterval, zlog, sweepDone)

	// 按依赖逆序关闭：先停入口，再排空协程池，最后释放存储与日志
	wait := gfshutdown.GracefulShutdown(context.Background(), shutdownTimeout, map[string]gfshutdown.Operation{
		"rooms": func(ctx context.Context) error {
			var errs []error
			if grpcSrv != nil {
				if err := grpcSrv.Stop(ctx); err != nil {
					errs = append(errs, fmt.Errorf("grpc: %w", err))
				}
			}
			if err := httpServer.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("http: %w", err))
			}
			stopSweep()
			<-sweepDone

			pool.Stop()
			if producer != nil {
				if err := producer.Close(); err != nil {
					errs = append(errs, fmt.Errorf("kafka: %w", err))
				}
			}
			if limiterClient != nil {
				_ = limiterClient.Close()
			}
			if err := store.Close(); err != nil {
				errs = append(errs, fmt.Errorf("store: %w", err))
			}
			zlog.Info("服务已关闭")
			_ = appLogger.Close()
			return errors.Join(errs...)
		},
	})
	os.Exit(<-wait)
}

// newPublisher 未启用 Kafka 或连接失败时降级为丢弃事件，不影响房间操作
func newPublisher(cfg *config.Config, pool *utils.WorkerPool, zlog *zap.Logger) (events.Publisher, *kafka.Producer) {
	if !cfg.Kafka.Enabled {
		return events.Nop{}, nil
	}
	producer, err := kafka.NewProducer(&cfg.Kafka)
	if err != nil {
		zlog.Warn("Kafka 生产者初始化失败，事件将被丢弃", zap.Error(err))
		return events.Nop{}, nil
	}
	ids, err := snowflake.NewGenerator(cfg.Kafka.NodeID)
	if err != nil {
		zlog.Warn("事件 ID 生成器初始化失败，事件将不带 ID", zap.Int64("node_id", cfg.Kafka.NodeID), zap.Error(err))
		ids = nil
	}
	return kafka.NewEventPublisher(producer, ids, pool, cfg.Kafka.Topic, cfg.Kafka.MaxRetries, zlog), producer
}

// newLimiterClient 限流依赖 Redis；连不上时返回 nil，限流器随之放行
func newLimiterClient(cfg *config.Config, zlog *zap.Logger) *redis.Client {
	if !cfg.RateLimit.Enabled || cfg.Redis.Host == "" {
		return nil
	}
	rc := cfg.Redis
	client, err := storage.InitRedis(rc.Host, rc.Port, rc.Password, rc.DB, rc.PoolSize, rc.MinIdleConns)
	if err != nil {
		zlog.Warn("限流 Redis 不可用，限流已关闭", zap.Error(err))
		return nil
	}
	return client
}

func runSweeper(ctx context.Context, invitations *services.InvitationService, interval time.Duration, zlog *zap.Logger, done chan<- struct{}) {
	defer close(done)
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := invitations.SweepExpired(logger.WithTraceID(ctx, ""))
			if err != nil {
				zlog.Error("清理过期邀请失败", zap.Error(err))
				continue
			}
			if res.Expired > 0 || res.Purged > 0 {
				zlog.Info("清理过期邀请", zap.Int("expired", res.Expired), zap.Int("purged", res.Purged))
			}
		}
	}
}
