package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	commonauth "interview_server/server/common/auth"
	"interview_server/server/common/infra/db"
	"interview_server/server/common/infra/object"
	commonlog "interview_server/server/common/log"
	userapi "interview_server/server/userhub/api"
	"interview_server/server/userhub/repository"
	"interview_server/server/userhub/service"
)

type Server struct {
	HTTPServer *http.Server

	cleanup []func()
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

	var google service.GoogleExchanger
	if cfg.GoogleClientID != "" && cfg.GoogleClientSecret != "" {
		google = service.NewGoogleOAuth(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURI)
	} else {
		commonlog.Warnf("google oauth is not configured, social login disabled")
	}

	userRepo := repository.NewUserRepository(pool)
	userSvc := service.NewUserService(userRepo, google, minioClient, cfg.MinioBucket)
	authSvc := commonauth.NewService(cfg.JWTSecret, cfg.JWTTTLMinutes)

	h := userapi.NewHandler(userSvc, authSvc)
	if cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	h.RegisterRoutes(r)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		HTTPServer: httpServer,
		cleanup:    []func(){pool.Close},
	}, nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	err := s.HTTPServer.Shutdown(ctx)
	for _, fn := range s.cleanup {
		fn()
	}
	return err
}
