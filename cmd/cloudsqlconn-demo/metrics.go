package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// debugServer is the demo's small gin-based HTTP surface: a liveness
// probe, a snapshot of per-instance dial state, and the process's
// Prometheus metrics.
type debugServer struct {
	httpServer *http.Server
}

func createDebugServer(app *application, addr string, logger *zap.Logger) *debugServer {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	engine.GET("/debug/instances", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"instances": app.snapshot()})
	})

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	logger.Info("starting debug server", zap.String("address", addr))

	return &debugServer{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           engine,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
		},
	}
}

func runDebugServer(server *debugServer, logger *zap.Logger) {
	if err := server.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("debug server error", zap.Error(err))
	}
}

func (s *debugServer) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
