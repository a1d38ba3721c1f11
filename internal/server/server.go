// Package server 提供 HTTP 形式的合成接口：上传一张图片和一段视频，直接返回合成后的动态照片。
// 服务不落盘、不保存状态，每个请求都是一次独立的合成。
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/John-Robertt/mpmux/internal/logger"
)

// HeaderVideoOffset 是 /mux 响应里携带视频偏移的头。
const HeaderVideoOffset = "X-Motion-Video-Offset"

type Options struct {
	// MaxUploadBytes 是单个请求体的上限（两份文件合计）。
	MaxUploadBytes int64
	// CORSOrigins 为空时允许任意来源。
	CORSOrigins []string
	Version     string
}

// New 构造路由。调用方负责把它挂到 http.Server 上。
func New(log logger.Logger, opts Options) *gin.Engine {
	if log == nil {
		log = logger.Nop()
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLog(log))
	router.Use(cors.New(corsConfig(opts.CORSOrigins)))

	h := NewHandler(log, opts)

	api := router.Group("/api/v1")
	{
		api.GET("/health", h.HealthCheck)
		api.POST("/mux", h.Mux)
		api.POST("/inspect", h.Inspect)
	}
	return router
}

func corsConfig(origins []string) cors.Config {
	config := cors.DefaultConfig()
	if len(origins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = append([]string(nil), origins...)
	}
	config.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "X-Requested-With"}
	config.ExposeHeaders = []string{HeaderVideoOffset, "Content-Disposition"}
	return config
}

// requestLog 用项目自己的 logger 记录访问日志（gin 默认的 Logger 写 stdout）。
func requestLog(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Infof("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Round(time.Millisecond))
	}
}

// Run 启动 HTTP 服务，ctx 结束时优雅关闭（最多等待 5 秒）。
func Run(ctx context.Context, addr string, handler http.Handler, log logger.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("服务启动：%s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Infof("服务正在关闭...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Infof("服务已退出")
	return nil
}
