package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/life2you_mini/poolcore/internal/alert"
	"github.com/life2you_mini/poolcore/internal/model"
)

// DetectorStatus 单个检测器的状态
type DetectorStatus struct {
	PoolID        string          `json:"pool_id"`
	Metric        string          `json:"metric"`
	Health        model.Severity  `json:"health"`
	VolatilityBps decimal.Decimal `json:"volatility_bps"`
	WindowSize    int             `json:"window_size"`
	Poisoned      bool            `json:"poisoned"`
	History       []model.Alert   `json:"history"`
}

// HTTPServer 指标、健康检查与告警查询接口
type HTTPServer struct {
	server  *http.Server
	engine  *alert.Engine
	results ResultStore
	logger  *zap.Logger
}

// NewHTTPServer 创建 HTTP 服务，results 为 nil 时不提供结果查询
func NewHTTPServer(addr string, engine *alert.Engine, results ResultStore, gatherer prometheus.Gatherer, logger *zap.Logger) *HTTPServer {
	s := &HTTPServer{
		engine:  engine,
		results: results,
		logger:  logger.With(zap.String("component", "http_server")),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/healthz", s.health)
	r.Get("/alerts/{pool}/{metric}", s.detectorStatus)
	if results != nil {
		r.Get("/results/{pool}", s.latestResult)
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler 路由，测试使用
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start 在后台监听
func (s *HTTPServer) Start() {
	go func() {
		s.logger.Info("HTTP 服务启动", zap.String("addr", s.server.Addr))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP 服务异常退出", zap.Error(err))
		}
	}()
}

// Stop 优雅关闭
func (s *HTTPServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("HTTP 请求",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)))
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *HTTPServer) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"detectors": len(s.engine.Keys()),
	})
}

func (s *HTTPServer) detectorStatus(w http.ResponseWriter, r *http.Request) {
	pool := chi.URLParam(r, "pool")
	metric := chi.URLParam(r, "metric")

	known := false
	for _, m := range s.engine.Metrics() {
		if m == metric {
			known = true
			break
		}
	}
	if !known {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown metric"})
		return
	}

	history := s.engine.History(pool, metric)
	if history == nil {
		history = []model.Alert{}
	}
	writeJSON(w, http.StatusOK, DetectorStatus{
		PoolID:        pool,
		Metric:        metric,
		Health:        s.engine.Health(pool, metric),
		VolatilityBps: s.engine.VolatilityScore(pool, metric),
		WindowSize:    len(s.engine.WindowValues(pool, metric)),
		Poisoned:      s.engine.Poisoned(pool, metric),
		History:       history,
	})
}

func (s *HTTPServer) latestResult(w http.ResponseWriter, r *http.Request) {
	pool := chi.URLParam(r, "pool")
	res, err := s.results.GetLatestResult(r.Context(), pool)
	if err != nil {
		s.logger.Error("读取最近结果失败", zap.String("pool_id", pool), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load result"})
		return
	}
	if res == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no result"})
		return
	}
	writeJSON(w, http.StatusOK, res)
}
