package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/eezybuild/eezybuild/internal/models"
	"github.com/eezybuild/eezybuild/pkg/apierr"
	"github.com/eezybuild/eezybuild/pkg/ingest"
)

type ingestRequest struct {
	SourceURL string `json:"sourceUrl"`
}

func (s *Server) handleChat(c *gin.Context) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, apierr.New(apierr.InvalidInput, err))
		return
	}

	if s.chat == nil {
		s.writeError(c, apierr.Errorf(apierr.MissingConfiguration, "chat pipeline is not configured"))
		return
	}

	answer, err := s.chat.Answer(c.Request.Context(), req.Message, req.ProjectContext)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, answer)
}

// writeError sends the user-safe message for err's kind. The kind code is
// the only diagnostic that leaves the server.
func (s *Server) writeError(c *gin.Context, err error) {
	kind := apierr.KindOf(err)
	if kind == apierr.InvalidInput {
		s.log.Warn("rejected chat request", "request_id", c.GetString("request_id"), "error", err)
	}
	c.JSON(apierr.HTTPStatus(kind), models.ErrorResponse{
		Error:   apierr.UserMessage(kind),
		Details: string(kind),
		Images:  []models.Image{},
	})
}

func (s *Server) handleIngest(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, models.IngestResponse{Success: false, Error: "invalid request body"})
		return
	}

	if s.ingest == nil {
		c.JSON(http.StatusInternalServerError, models.IngestResponse{
			Success: false,
			Error:   apierr.UserMessage(apierr.MissingConfiguration),
		})
		return
	}

	sourceURL := strings.TrimSpace(req.SourceURL)
	if sourceURL == "" {
		sourceURL = s.config.SourceURL
	}

	result, err := s.ingest.RefreshRegulationsIndex(c.Request.Context(), sourceURL)
	if errors.Is(err, ingest.ErrRunInProgress) {
		c.JSON(http.StatusConflict, models.IngestResponse{Success: false, Error: err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.IngestResponse{Success: false, Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, models.IngestResponse{
		Success:         true,
		PagesCrawled:    result.PagesCrawled,
		ChunksProcessed: result.ChunksProcessed,
		VectorsCreated:  result.VectorsCreated,
		Message:         "Building regulations index refreshed successfully",
	})
}
