package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"HealthForce-Goa/internal/observability/metrics"
	"HealthForce-Goa/internal/surge"
	"HealthForce-Goa/pkg/logger"
)

const (
	serviceName    = "HealthForce Goa API"
	serviceVersion = "1.0.0"
)

// Server 负责暴露模拟后端的 REST 接口。
type Server struct {
	surge          *surge.Service
	metrics        *metrics.Recorder
	metricsPath    string
	allowedOrigins []string
	log            *slog.Logger
	now            func() time.Time
	router         chi.Router
}

// Option 定义可选配置。
type Option func(*Server)

// WithMetrics 为所有路由记录请求指标，path 非空时同时挂载指标端点。
func WithMetrics(rec *metrics.Recorder, path string) Option {
	return func(s *Server) {
		s.metrics = rec
		s.metricsPath = path
	}
}

// WithAllowedOrigins 设置 CORS 允许的来源，默认允许全部。
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.allowedOrigins = origins
		}
	}
}

// WithLogger 指定请求日志输出。
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// NewServer 构造 API 服务实例。
func NewServer(svc *surge.Service, opts ...Option) *Server {
	s := &Server{
		surge:          svc,
		allowedOrigins: []string{"*"},
		now:            time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.log == nil {
		s.log = logger.Named("api")
	}
	s.router = s.buildRouter()
	return s
}

// Handler 返回完整的路由，便于测试或嵌入其他服务。
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	r.Get("/", s.handleRoot)
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Route("/surge", func(r chi.Router) {
			r.Post("/run", s.handleRunSurge)
			r.Get("/status/{runID}", s.handleSurgeStatus)
			r.Get("/list", s.handleListSurgeRuns)
			r.Post("/approve", s.handleApprove)
		})
		r.Post("/demo/book", s.handleBookDemo)
		r.Post("/auth/login", s.handleLogin)
		r.Get("/dashboard/{role}", s.handleDashboard)
		r.Get("/inventory/{zone}", s.handleInventory)
		r.Get("/forecast/{zone}", s.handleForecast)
	})
	if s.metrics != nil && s.metricsPath != "" {
		r.Method(http.MethodGet, s.metricsPath, s.metrics.Handler())
	}
	return r
}

// requestLogger 以 slog 记录每个请求，替代 chi 自带的标准库日志。
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("处理请求",
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 5 * time.Second
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           withContext(ctx, s.router),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.Info("模拟后端已启动", slog.String("address", addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			writeDetail(w, http.StatusServiceUnavailable, "服务已关闭")
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}

func (s *Server) timestamp() string {
	return s.now().Format(surge.TimestampLayout)
}
