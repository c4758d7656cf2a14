package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/betbot/tradegate/internal/gate"
)

const (
	RequestIDContextKey = "request_id"
	RequestIDHeaderKey  = "X-Request-ID"
	TradeIDHeaderKey    = "X-Trade-ID"

	DefaultShutdownTimeout = 30 * time.Second
)

// Config HTTP 入口参数
type Config struct {
	Addr         string
	DefaultAsset string // 请求未带 coin 时使用

	// ShutdownTimeout 等待进行中请求的上限，应大于一笔交易的最长耗时
	ShutdownTimeout time.Duration
}

// Server 交易网关的 HTTP 入口
type Server struct {
	cfg       Config
	gate      *gate.Gate
	validator *Validator
	log       *logrus.Entry

	httpSrv *http.Server
}

func New(cfg Config, g *gate.Gate) (*Server, error) {
	if g == nil {
		return nil, errors.New("api: gate is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":3000"
	}
	if cfg.DefaultAsset == "" {
		cfg.DefaultAsset = "XRP"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	s := &Server{
		cfg:       cfg,
		gate:      g,
		validator: GetValidator(),
		log:       logrus.WithField("component", "api"),
	}
	s.httpSrv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Router 注册全部路由
func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(requestIDMiddleware())
	r.Use(accessLogMiddleware(s.log))
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	r.GET("/trade", s.handleTrade)
	r.POST("/trade", s.handleTrade)

	r.GET("/status", s.handleStatus)
	r.POST("/admin/resume", s.handleResume)
	r.POST("/admin/halt", s.handleHalt)

	return r
}

// Run 启动 HTTP 服务，直到 ctx 结束或监听失败
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("listening on %s", s.cfg.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// Shutdown 停止接收新请求并等待进行中的请求（包括正在下单的请求）完成
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
