package api

import (
	"net/http"

	"drain-guard/internal/ml"
	"drain-guard/internal/models"
	"github.com/gin-gonic/gin"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// SchemaResponse describes the loaded artifacts
type SchemaResponse struct {
	Features   []string   `json:"features"`
	Ranges     []ml.Range `json:"ranges,omitempty"`
	ScalerKind string     `json:"scaler_kind"`
	ModelKind  string     `json:"model_kind"`
	Version    string     `json:"version,omitempty"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handlePredict(c *gin.Context) {
	var req models.InferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "malformed request body: " + err.Error(),
			Kind:  ml.KindInvalidInput,
		})
		return
	}
	req.Source = "http"

	resp, err := s.service.Infer(c.Request.Context(), &req)
	if err != nil {
		c.JSON(errorStatus(err), ErrorResponse{Error: err.Error(), Kind: ml.ErrorKind(err)})
		return
	}
	s.service.Forward(resp)

	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSchema(c *gin.Context) {
	p := s.service.Predictor()
	if p == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: ml.ErrModelUnavailable.Error(),
			Kind:  ml.KindModelUnavailable,
		})
		return
	}

	c.JSON(http.StatusOK, SchemaResponse{
		Features:   p.Schema().Features(),
		Ranges:     p.Ranges(),
		ScalerKind: p.ScalerKind(),
		ModelKind:  p.ModelKind(),
		Version:    p.Version(),
	})
}
