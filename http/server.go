// Package http 提供HTTP服务器功能
package http

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"herhealth/logging"
)

// Server HTTP服务器
type Server struct {
	server *http.Server
	config ServerConfig
	log    *zap.SugaredLogger
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	AllowedOrigins []string
	RatePerSecond  float64
	RateBurst      int
}

// DefaultServerConfig 默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:           8000,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   200 * time.Second,
		RequestTimeout: 190 * time.Second,
		MaxBodyBytes:   1 << 20,
		AllowedOrigins: []string{"*"},
		RatePerSecond:  2,
		RateBurst:      5,
	}
}

// NewServer 创建HTTP服务器
func NewServer(config ServerConfig, api *API) *Server {
	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", config.Port),
			Handler:           NewHandler(config, api),
			ReadTimeout:       config.ReadTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      config.WriteTimeout,
			IdleTimeout:       120 * time.Second,
		},
		config: config,
		log:    logging.ComponentLogger("server"),
	}
}

// NewHandler 组装路由和中间件链
func NewHandler(config ServerConfig, api *API) http.Handler {
	mux := http.NewServeMux()
	api.Register(mux, RateLimitMiddleware(NewIPRateLimiter(config.RatePerSecond, config.RateBurst)))

	// WebSocket连接是长连接，不能经过超时处理器
	timed := TimeoutMiddleware(config.RequestTimeout)(mux)
	routed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isWebSocketUpgrade(r) {
			mux.ServeHTTP(w, r)
			return
		}
		timed.ServeHTTP(w, r)
	})

	chain := Chain(
		RecoveryMiddleware,                    // 1. 恢复中间件（最先执行，捕获panic）
		LoggerMiddleware,                      // 2. 请求ID与访问日志
		MetricsMiddleware(api.Metrics),        // 3. 请求计数
		SecurityHeadersMiddleware,             // 4. 安全头中间件
		CORSMiddleware(config.AllowedOrigins), // 5. CORS中间件
		RequestSizeMiddleware(config.MaxBodyBytes),
	)
	return chain(routed)
}

// Start 启动服务器，阻塞直到服务器关闭
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", s.server.Addr)
	}
	return s.Serve(listener)
}

// Serve 在给定监听器上提供服务
func (s *Server) Serve(listener net.Listener) error {
	s.log.Infow("starting HTTP server", logging.FieldAddress, listener.Addr().String())
	if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server failed")
	}
	return nil
}

// Stop 停止服务器
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	if err := s.server.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "server forced to shutdown")
	}
	return nil
}

// Addr 返回服务器地址
func (s *Server) Addr() string {
	return s.server.Addr
}
