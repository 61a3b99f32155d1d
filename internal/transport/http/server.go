// Package http 提供只读查询接口：回放产生的交易流水与 HTML 报告。
package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ggiesa/AutonoTrader/internal/store/trades"
)

// Server 包装 Gin 路由与底层 http.Server。
type Server struct {
	addr   string
	store  *trades.Store
	router *gin.Engine
}

// Config 配置查询服务。ReportDir 为空时不挂报告静态目录。
type Config struct {
	Addr      string
	Store     *trades.Store
	ReportDir string
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("trade store 不能为空")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8990"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.ReportDir != "" {
		router.Static("/reports", cfg.ReportDir)
	}

	s := &Server{addr: cfg.Addr, store: cfg.Store, router: router}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", s.handleHealth)
	api := s.router.Group("/api/trades")
	api.GET("/buys", s.handleBuys)
	api.GET("/sells", s.handleSells)
	api.GET("/pending", s.handlePending)
}

// Router 暴露底层路由，便于测试。
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleBuys(c *gin.Context) {
	buys, err := s.store.ListBuys(symbolParam(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"buys": buys})
}

func (s *Server) handleSells(c *gin.Context) {
	sells, err := s.store.ListSells(symbolParam(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sells": sells})
}

func (s *Server) handlePending(c *gin.Context) {
	pending, err := s.store.ListPending(symbolParam(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": pending})
}

func symbolParam(c *gin.Context) string {
	return strings.TrimSpace(c.Query("symbol"))
}

// Start 启动 HTTP 服务，阻塞直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
