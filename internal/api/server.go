package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"drain-guard/internal/ml"
	"drain-guard/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes the inference service over HTTP
type Server struct {
	service *services.InferenceService
	router  *gin.Engine
	http    *http.Server
}

// NewServer builds the router for addr
func NewServer(addr string, service *services.InferenceService) *Server {
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		service: service,
		router:  router,
		http: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.GET("/healthz", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/api")
	api.POST("/predict", s.handlePredict)
	api.GET("/schema", s.handleSchema)
}

// Handler returns the HTTP handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	log.Printf("HTTP Server: Listening on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("HTTP Server: Shutting down...")
	return s.http.Shutdown(ctx)
}

// errorStatus maps a pipeline error to an HTTP status code
func errorStatus(err error) int {
	switch ml.ErrorKind(err) {
	case ml.KindInvalidInput:
		return http.StatusBadRequest
	case ml.KindSchemaMismatch:
		return http.StatusUnprocessableEntity
	case ml.KindModelUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
