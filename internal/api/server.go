// Package api serves quotes and the discovered pool index over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"poolscope/internal/quote"
)

const apiVersion = "v1"

// Quoter answers quote requests.
type Quoter interface {
	Quote(ctx context.Context, req quote.Request) (*quote.Result, error)
}

// Server is the HTTP surface.
type Server struct {
	engine *gin.Engine
	quoter Quoter
	pools  map[uint64]PoolChain
	logger *zap.Logger
}

func NewServer(quoter Quoter, pools []PoolChain, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	byID := make(map[uint64]PoolChain, len(pools))
	for _, chain := range pools {
		byID[chain.ChainID] = chain
	}

	s := &Server{
		engine: gin.New(),
		quoter: quoter,
		pools:  byID,
		logger: logger,
	}

	r := s.engine
	r.Use(gin.Recovery())

	corsConf := cors.DefaultConfig()
	corsConf.AllowAllOrigins = true
	corsConf.AddAllowHeaders(requestIDHeader)
	corsConf.AddExposeHeaders(requestIDHeader)
	r.Use(cors.New(corsConf))

	r.Use(requestID())
	r.Use(metricsMiddleware())
	r.Use(accessLog(logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group(apiVersion)
	v1.POST("/quote", s.postQuote)
	v1.GET("/pools/:chainId", s.getPools)

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server started", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("failed to stop http server", zap.Error(err))
		return err
	}
	s.logger.Info("http server stopped gracefully")
	return <-errCh
}
