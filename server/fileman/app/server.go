package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	commonauth "interview_server/server/common/auth"
	"interview_server/server/common/infra/cache"
	"interview_server/server/common/infra/db"
	"interview_server/server/common/infra/mq"
	"interview_server/server/common/infra/object"
	commonlog "interview_server/server/common/log"
	fileapi "interview_server/server/fileman/api"
	"interview_server/server/fileman/domain"
	"interview_server/server/fileman/repository"
	"interview_server/server/fileman/service"
)

type Server struct {
	HTTPServer *http.Server

	shutdownHub context.CancelFunc
	cleanup     []func()
}

func NewServer(cfg Config) (*Server, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.PostgresDSN, 0)
	if err != nil {
		return nil, fmt.Errorf("initialize postgres: %w", err)
	}

	minioClient, err := object.NewClient(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("initialize minio: %w", err)
	}
	if err := object.EnsureBucket(ctx, minioClient, cfg.MinioBucket); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure minio bucket: %w", err)
	}

	rdb := cache.NewClient(cfg.RedisAddr, cfg.RedisDB)
	if err := cache.Ping(ctx, rdb); err != nil {
		commonlog.Warnf("redis unavailable, caching and realtime events degraded: %v", err)
		rdb = nil
	}

	publisher := (*service.EventPublisher)(nil)
	if cfg.UseMQ {
		conn, err := mq.NewConnection(cfg.RabbitURL)
		if err != nil {
			commonlog.Warnf("rabbitmq unavailable, durable file events disabled: %v", err)
		} else {
			publisher, err = service.NewEventPublisher(conn, rdb)
			if err != nil {
				pool.Close()
				return nil, fmt.Errorf("initialize event publisher: %w", err)
			}
		}
	}
	if publisher == nil {
		publisher, err = service.NewEventPublisher(nil, rdb)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("initialize event publisher: %w", err)
		}
	}

	var analyzer *service.Analyzer
	if cfg.GeminiAPIKey != "" || cfg.DeepSeekAPIKey != "" {
		analyzer, err = service.NewAnalyzer(ctx, service.AnalyzerConfig{
			GeminiAPIKey:    cfg.GeminiAPIKey,
			GeminiModel:     cfg.GeminiModel,
			DeepSeekAPIKey:  cfg.DeepSeekAPIKey,
			DeepSeekBaseURL: cfg.DeepSeekBaseURL,
			DeepSeekModel:   cfg.DeepSeekModel,
			Timeout:         cfg.AnalyzeTimeout,
		})
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("initialize analyzer: %w", err)
		}
	} else {
		commonlog.Warnf("no AI provider key configured, analysis endpoint will fail softly")
	}

	fileRepo := repository.NewFileRepository(pool)
	blobStore := service.NewBlobStore(minioClient, cfg.MinioBucket)
	userHub := service.NewUserHubClient(rdb, cfg.UserHubEndpoints...)
	limits := domain.UploadLimits{MaxSizeBytes: cfg.MaxUploadBytes}

	var docAnalyzer service.DocumentAnalyzer
	if analyzer != nil {
		docAnalyzer = analyzer
	}
	fileSvc := service.NewFileService(blobStore, fileRepo, userHub, docAnalyzer, publisher, rdb, limits)
	authSvc := commonauth.NewService(cfg.JWTSecret, cfg.JWTTTLMinutes)

	hub := service.NewHub()
	hubCtx, stopHub := context.WithCancel(context.Background())
	go hub.Run(hubCtx, rdb)

	h := fileapi.NewHandler(fileSvc, hub, authSvc)
	if cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	h.RegisterRoutes(r)

	httpServer := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 60 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	return &Server{
		HTTPServer:  httpServer,
		shutdownHub: stopHub,
		cleanup: []func(){
			publisher.Close,
			pool.Close,
		},
	}, nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	err := s.HTTPServer.Shutdown(ctx)
	s.shutdownHub()
	for _, fn := range s.cleanup {
		fn()
	}
	return err
}
