package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	v1 "github.com/sabriotcore-code/rei-api/internal/api/v1"
)

// ShutdownTimeout 优雅关闭等待时间
const ShutdownTimeout = 10 * time.Second

// Server HTTP服务器
type Server struct {
	app    *App
	router *gin.Engine
	v1     *v1.Handler
	http   *http.Server
	logger *slog.Logger
}

// NewServer 创建服务器
func NewServer(app *App) *Server {
	if !app.Config.Server.DevMode {
		gin.SetMode(gin.ReleaseMode)
	}

	// 同步未启用时传入 nil 接口，处理器据此返回 503
	var syncRunner v1.SyncRunner
	if app.Sync != nil {
		syncRunner = app.Sync
	}

	s := &Server{
		app:    app,
		router: gin.New(),
		v1:     v1.NewHandler(app.Actions, app.Cache, syncRunner, app.Ledger),
		logger: app.Logger,
	}
	s.router.Use(gin.Recovery(), s.requestLogger())
	s.setupRoutes()
	return s
}

// setupRoutes 设置路由
func (s *Server) setupRoutes() {
	// CORS
	s.router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	// 健康检查与动作协议挂在根路径
	s.v1.RegisterActionRoutes(&s.router.RouterGroup)

	api := s.router.Group("/api")
	{
		s.v1.RegisterRoutes(api)
	}

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   fmt.Sprintf("no route for %s %s", c.Request.Method, c.Request.URL.Path),
		})
	})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String())
	}
}

// Handler 返回路由（用于测试）
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run 启动后台任务并监听 addr，ctx 结束后优雅关闭
func (s *Server) Run(ctx context.Context, addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.app.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			s.app.Close()
			return fmt.Errorf("http server failed: %w", err)
		}
		return s.app.Close()
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	err := s.http.Shutdown(shutdownCtx)
	if cerr := s.app.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
