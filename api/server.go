// Package api exposes the peer-review calls over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/blndgs/peerreview"
	"github.com/blndgs/peerreview/account"
)

// Service runs contract calls on behalf of the API. *pipeline.Pipeline
// satisfies it.
type Service interface {
	Account(ctx context.Context) (*account.SmartAccount, error)
	SendFunction(ctx context.Context, functionName string, inputs map[string]string) (*peerreview.Result, error)
	Read(ctx context.Context, functionName string, inputs map[string]string) (any, error)
}

// Server serves the call registry and runs calls through a Service.
type Server struct {
	svc    Service
	engine *gin.Engine
}

// NewServer builds the router. It registers the custom validators on gin's
// binding engine.
func NewServer(svc Service) (*Server, error) {
	if err := peerreview.NewValidator(); err != nil {
		return nil, err
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestID(), accessLog())

	s := &Server{svc: svc, engine: engine}

	v1 := engine.Group("/v1")
	v1.GET("/calls", s.ListCalls)
	v1.GET("/account", s.Account)
	v1.POST("/calls/:function", s.Call)

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return s, nil
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to shut down http server")
		}
	}()

	log.Info().Str("addr", addr).Msg("http server listening")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
