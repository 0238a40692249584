// Package server exposes the executor over HTTP: conversation lifecycle,
// token appends, inference passes, and logit retrieval.
package server

import (
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/parley-ml/parley/conversation"
	"github.com/parley-ml/parley/engine/simengine"
	"github.com/parley-ml/parley/envconfig"
	"github.com/parley-ml/parley/executor"
	"github.com/parley-ml/parley/logutil"
	"github.com/parley-ml/parley/version"
)

// Server owns the conversation registry for one executor instance.
type Server struct {
	exec *executor.Executor
	eng  *simengine.Engine

	mu    sync.RWMutex
	convs map[string]*conversation.Conversation
}

func NewServer(exec *executor.Executor, eng *simengine.Engine) *Server {
	return &Server{
		exec:  exec,
		eng:   eng,
		convs: make(map[string]*conversation.Conversation),
	}
}

// requestIDMiddleware tags every request with an id for log correlation.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}

		c.Header("X-Request-Id", id)
		c.Set("request_id", id)
		c.Next()
	}
}

// GenerateRoutes builds the HTTP router.
func (s *Server) GenerateRoutes() http.Handler {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowWildcard = true
	corsConfig.AllowBrowserExtensions = true
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = []string{"Authorization", "Content-Type", "User-Agent", "Accept", "X-Requested-With", "X-Request-Id"}

	r := gin.Default()
	r.HandleMethodNotAllowed = true
	r.Use(
		cors.New(corsConfig),
		requestIDMiddleware(),
	)

	// General
	r.HEAD("/", func(c *gin.Context) { c.String(http.StatusOK, "Parley is running") })
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "Parley is running") })
	r.HEAD("/api/version", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"version": version.Version}) })
	r.GET("/api/version", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"version": version.Version}) })

	// Conversation lifecycle
	r.POST("/api/conversations", s.CreateHandler)
	r.DELETE("/api/conversations/:id", s.DropHandler)
	r.POST("/api/conversations/:id/fork", s.ForkHandler)

	// Token flow
	r.POST("/api/conversations/:id/append", s.AppendHandler)
	r.GET("/api/conversations/:id/logits", s.LogitsHandler)
	r.POST("/api/infer", s.InferHandler)

	// Diagnostics
	r.GET("/api/stats", s.StatsHandler)

	return r
}

// Serve runs the HTTP server on the listener until it fails.
func Serve(ln net.Listener, exec *executor.Executor, eng *simengine.Engine) error {
	slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))
	slog.Info("server config", "env", envconfig.Values())

	s := NewServer(exec, eng)

	srv := http.Server{Handler: s.GenerateRoutes()}

	slog.Info("listening", "addr", ln.Addr())
	return srv.Serve(ln)
}
