package webui

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"RentalInsight/src/config"
	"RentalInsight/src/processor"
	"RentalInsight/src/storage"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server 仪表盘数据接口，只读访问清洗结果快照
type Server struct {
	addr     string
	columns  columnNames
	snapshot *processor.DataFrameWrapper
	logger   *storage.Logger
	metrics  *processor.Metrics
	queries  *queryDecoder
	router   chi.Router
}

type columnNames struct {
	region string
	state  string
}

func NewServer(addr string, dcfg *config.DataConfig, snapshot *processor.DataFrameWrapper,
	logger *storage.Logger, metrics *processor.Metrics) *Server {
	if dcfg == nil {
		dcfg = config.DefaultDataConfig()
	}
	s := &Server{
		addr:     addr,
		columns:  columnNames{region: dcfg.Columns.Region, state: dcfg.Columns.State},
		snapshot: snapshot,
		logger:   logger,
		metrics:  metrics,
		queries:  newQueryDecoder(),
	}
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// 日志流是长连接，不经过请求日志
	r.Get("/logs", s.handleLogs)
	if s.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(requestLogger(s.logger))
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Use(s.requireSnapshot)

		r.Get("/summary", s.handleSummary)
		r.Get("/states", s.handleStates)
		r.Get("/cities", s.handleCities)
		r.Get("/prices", s.handlePrices)
		r.Get("/map", s.handleMap)
		r.Get("/compare", s.handleCompare)
		r.Get("/data", s.handleData)
	})
	return r
}

// ListenAndServe 阻塞直到ctx结束，然后优雅关闭
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("仪表盘接口已启动", zap.String("addr", s.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("启动HTTP服务失败: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// requireSnapshot 尚未加载数据时返回503
func (s *Server) requireSnapshot(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.snapshot.Loaded() {
			render.Render(w, r, errUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(logger *storage.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Debug("request completed",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)))
		})
	}
}
