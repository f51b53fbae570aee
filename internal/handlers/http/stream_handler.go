package http

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"camwatch/internal/core/domain"
	"camwatch/internal/core/ports"
	"camwatch/internal/infrastructure/probe"
	"camwatch/pkg/errors"
	"camwatch/pkg/validation"

	"github.com/gin-gonic/gin"
)

// Prober checks that an RTSP source is reachable.
type Prober interface {
	Probe(ctx context.Context, rawURL string) (*probe.Result, error)
}

type StreamHandler struct {
	streamService ports.StreamService
	prober        Prober
	wsBaseURL     string
}

func NewStreamHandler(streamService ports.StreamService, prober Prober, wsBaseURL string) *StreamHandler {
	return &StreamHandler{
		streamService: streamService,
		prober:        prober,
		wsBaseURL:     strings.TrimSuffix(wsBaseURL, "/"),
	}
}

func (h *StreamHandler) SetupRoutes(api *gin.RouterGroup) {
	api.POST("/streams", h.CreateStream)
	api.GET("/streams", h.ListStreams)
	api.GET("/streams/:id", h.GetStream)
	api.PATCH("/streams/:id", h.UpdateStream)
	api.DELETE("/streams/:id", h.DeleteStream)
	api.PATCH("/streams/:id/status", h.UpdateStreamStatus)
	api.POST("/streams/:id/probe", h.ProbeStream)
}

// StreamWSURL is the address a browser connects to for a live view of rtspURL.
func StreamWSURL(base, rtspURL string) string {
	escaped := strings.ReplaceAll(url.QueryEscape(rtspURL), "+", "%20")
	return base + "/ws/stream/?url=" + escaped
}

type streamResponse struct {
	ID                  domain.StreamID     `json:"id"`
	Name                string              `json:"name"`
	Description         string              `json:"description"`
	RTSPURL             string              `json:"rtsp_url"`
	ConfidenceThreshold float64             `json:"confidence_threshold"`
	DetectionEnabled    bool                `json:"detection_enabled"`
	Status              domain.StreamStatus `json:"status"`
	LastConnected       *time.Time          `json:"last_connected"`
	CreatedAt           time.Time           `json:"created_at"`
	WSURL               string              `json:"ws_url"`
}

func (h *StreamHandler) toResponse(s *domain.Stream) streamResponse {
	return streamResponse{
		ID:                  s.ID,
		Name:                s.Name,
		Description:         s.Description,
		RTSPURL:             s.RTSPURL,
		ConfidenceThreshold: s.ConfidenceThreshold,
		DetectionEnabled:    s.DetectionEnabled,
		Status:              s.Status,
		LastConnected:       s.LastConnected,
		CreatedAt:           s.CreatedAt,
		WSURL:               StreamWSURL(h.wsBaseURL, s.RTSPURL),
	}
}

type CreateStreamRequest struct {
	Name                string   `json:"name"`
	Description         string   `json:"description"`
	RTSPURL             string   `json:"rtsp_url"`
	ConfidenceThreshold *float64 `json:"confidence_threshold"`
}

func (h *StreamHandler) CreateStream(c *gin.Context) {
	var req CreateStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("Invalid JSON"))
		return
	}

	if err := validation.ValidateStreamName(req.Name); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}
	if err := validation.ValidateRTSPURL(req.RTSPURL); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}
	if req.ConfidenceThreshold != nil {
		if err := validation.ValidateConfidence(*req.ConfidenceThreshold, "confidence_threshold"); err != nil {
			c.Error(errors.NewInvalidInputError(err.Error()))
			return
		}
	}

	ctx := c.Request.Context()
	stream, err := h.streamService.CreateStream(ctx, req.Name, req.Description, req.RTSPURL)
	if err != nil {
		c.Error(err)
		return
	}
	if req.ConfidenceThreshold != nil && *req.ConfidenceThreshold != stream.ConfidenceThreshold {
		if stream, err = h.streamService.SetThreshold(ctx, stream.ID, *req.ConfidenceThreshold); err != nil {
			c.Error(err)
			return
		}
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":      stream.ID,
		"message": "Stream created and started",
		"ws_url":  StreamWSURL(h.wsBaseURL, stream.RTSPURL),
	})
}

func (h *StreamHandler) ListStreams(c *gin.Context) {
	streams, err := h.streamService.ListStreams(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}

	out := make([]streamResponse, 0, len(streams))
	for _, s := range streams {
		out = append(out, h.toResponse(s))
	}
	c.JSON(http.StatusOK, gin.H{"streams": out})
}

func (h *StreamHandler) GetStream(c *gin.Context) {
	stream, err := h.streamService.GetStream(c.Request.Context(), domain.StreamID(c.Param("id")))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stream": h.toResponse(stream)})
}

type UpdateStreamRequest struct {
	ConfidenceThreshold *float64 `json:"confidence_threshold"`
}

// UpdateStream changes the stream's confidence threshold.
func (h *StreamHandler) UpdateStream(c *gin.Context) {
	var req UpdateStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("Invalid JSON"))
		return
	}
	if req.ConfidenceThreshold == nil {
		c.Error(errors.NewInvalidInputError("confidence_threshold is required"))
		return
	}

	stream, err := h.streamService.SetThreshold(c.Request.Context(), domain.StreamID(c.Param("id")), *req.ConfidenceThreshold)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stream": h.toResponse(stream)})
}

type UpdateStreamStatusRequest struct {
	Action domain.StreamAction `json:"action"`
}

var actionMessages = map[domain.StreamAction]string{
	domain.StreamActionStart:  "Stream started",
	domain.StreamActionPause:  "Stream paused",
	domain.StreamActionResume: "Stream resumed",
}

func (h *StreamHandler) UpdateStreamStatus(c *gin.Context) {
	var req UpdateStreamStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("Invalid JSON"))
		return
	}
	message, ok := actionMessages[req.Action]
	if !ok {
		c.Error(errors.NewInvalidInputError("Invalid action"))
		return
	}

	stream, err := h.streamService.ApplyAction(c.Request.Context(), domain.StreamID(c.Param("id")), req.Action)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": message,
		"status":  stream.DetectionEnabled,
	})
}

func (h *StreamHandler) DeleteStream(c *gin.Context) {
	if err := h.streamService.DeleteStream(c.Request.Context(), domain.StreamID(c.Param("id"))); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Stream deleted"})
}

// ProbeStream checks that the stream's camera answers and sends media.
func (h *StreamHandler) ProbeStream(c *gin.Context) {
	ctx := c.Request.Context()
	stream, err := h.streamService.GetStream(ctx, domain.StreamID(c.Param("id")))
	if err != nil {
		c.Error(err)
		return
	}

	result, err := h.prober.Probe(ctx, stream.RTSPURL)
	if err != nil {
		c.Error(errors.NewUpstreamError(err, "camera unreachable").WithContext("stream_id", stream.ID))
		return
	}
	c.JSON(http.StatusOK, gin.H{"probe": result})
}
