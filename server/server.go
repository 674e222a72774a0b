package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dselans/zpeek/config"
)

const (
	ShutdownTimeout = 5 * time.Second
)

type Server struct {
	cfg     *config.Config
	log     *logrus.Entry
	router  *gin.Engine
	started time.Time
}

func New(cfg *config.Config) (*Server, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, errors.Wrap(err, "error validating config")
	}

	if cfg.CLI.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:     cfg,
		log:     logrus.WithField("pkg", "server"),
		router:  gin.New(),
		started: time.Now(),
	}

	s.router.Use(gin.Recovery())
	s.router.Use(requestLogger(s.log))

	s.registerRoutes()

	return s, nil
}

// Handler exposes the router, mostly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	llog := s.log.WithFields(logrus.Fields{
		"method": "Run",
		"listen": s.cfg.TOML.Server.Listen,
	})

	srv := &http.Server{
		Addr:              s.cfg.TOML.Server.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		llog.Info("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "server exited")
	case <-ctx.Done():
		llog.Debug("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "unable to shut down server")
	}

	if err := <-errCh; err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "server exited")
	}

	llog.Debug("exit")

	return nil
}

func requestLogger(log *logrus.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		llog := log.WithFields(logrus.Fields{
			"method":    c.Request.Method,
			"path":      path,
			"status":    status,
			"duration":  time.Since(start).String(),
			"client_ip": c.ClientIP(),
		})

		switch {
		case status >= 500:
			llog.Error("http request")
		case status >= 400:
			llog.Warn("http request")
		default:
			llog.Debug("http request")
		}
	}
}
