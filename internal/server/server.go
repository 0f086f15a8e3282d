package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/mohatt/github-api-utils/internal/github"
	"github.com/mohatt/github-api-utils/internal/inspector"
)

// Server exposes the inspector over HTTP.
type Server struct {
	inspector *inspector.Inspector
	wrapper   *github.Wrapper
	listen    string
}

// New returns a server for the given collaborators.
func New(listen string, insp *inspector.Inspector, wrapper *github.Wrapper) *Server {
	return &Server{inspector: insp, wrapper: wrapper, listen: listen}
}

// Router builds the gin engine with all routes and middleware attached.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(RequestID(), AccessLog(), Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/v1")
	v1.GET("/repos/:owner/:repo", s.handleInspect)
	v1.GET("/rate_limit", s.handleRateLimit)
	return router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.listen, Handler: s.Router()}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("listen", s.listen).Info("http server started")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleInspect(c *gin.Context) {
	owner, repo := c.Param("owner"), c.Param("repo")
	res, err := s.inspector.Inspect(c.Request.Context(), owner, repo)
	if err != nil {
		status, kind := http.StatusBadGateway, "crawler_error"

		var apiErr *inspector.APIError
		if errors.As(err, &apiErr) {
			kind = "api_error"
			var ghErr *github.APIError
			if errors.As(err, &ghErr) && ghErr.Status == http.StatusNotFound {
				status = http.StatusNotFound
			}
		}

		log.WithError(err).WithField("repo", owner+"/"+repo).Warn("inspection failed")
		c.JSON(status, gin.H{"error": gin.H{"message": err.Error(), "code": kind}})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(res.Raw))
}

func (s *Server) handleRateLimit(c *gin.Context) {
	res, err := s.wrapper.CallJSON(c.Request.Context(), "rate_limit/show")
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": gin.H{"message": err.Error(), "code": "api_error"}})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(res.Raw))
}
