package http

import (
	"net/http"
	"strconv"
	"time"

	"camwatch/internal/core/domain"
	"camwatch/internal/core/ports"
	"camwatch/pkg/errors"

	"github.com/gin-gonic/gin"
)

const maxDetectionPage = 500

type DetectionHandler struct {
	detectionService ports.DetectionService
	media            MediaURLs
}

func NewDetectionHandler(detectionService ports.DetectionService, media MediaURLs) *DetectionHandler {
	return &DetectionHandler{
		detectionService: detectionService,
		media:            media,
	}
}

func (h *DetectionHandler) SetupRoutes(api *gin.RouterGroup) {
	api.POST("/detections", h.CreateDetection)
	api.GET("/detections", h.ListDetections)
	api.GET("/detections/:id", h.GetDetection)
	api.PUT("/detections/:id", h.ReplaceDetection)
	api.PATCH("/detections/:id", h.PatchDetection)
	api.DELETE("/detections/:id", h.DeleteDetection)
}

type detectionResponse struct {
	ID              domain.DetectionID `json:"id"`
	StreamID        domain.StreamID    `json:"stream_id"`
	Timestamp       time.Time          `json:"timestamp"`
	ConfidenceScore float64            `json:"confidence_score"`
	ImagePath       string             `json:"image_path"`
	ImageURL        string             `json:"image_url,omitempty"`
}

func (h *DetectionHandler) toResponse(d *domain.Detection) detectionResponse {
	return detectionResponse{
		ID:              d.ID,
		StreamID:        d.StreamID,
		Timestamp:       d.CreatedAt,
		ConfidenceScore: d.Confidence,
		ImagePath:       d.ImagePath,
		ImageURL:        h.media.URL(d.ImagePath),
	}
}

// DetectionRequest is shared by create, replace and patch. Absent fields
// are nil.
type DetectionRequest struct {
	StreamID        *domain.StreamID `json:"stream_id"`
	ConfidenceScore *float64         `json:"confidence_score"`
	ImagePath       *string          `json:"image_path"`
}

func (r DetectionRequest) missing() string {
	switch {
	case r.StreamID == nil || *r.StreamID == "":
		return "stream_id"
	case r.ConfidenceScore == nil:
		return "confidence_score"
	}
	return ""
}

func (h *DetectionHandler) CreateDetection(c *gin.Context) {
	var req DetectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("Invalid JSON"))
		return
	}
	if field := req.missing(); field != "" {
		c.Error(errors.NewInvalidInputError("Missing required field: " + field))
		return
	}

	var imagePath string
	if req.ImagePath != nil {
		imagePath = *req.ImagePath
	}

	detection, err := h.detectionService.CreateDetection(c.Request.Context(), *req.StreamID, *req.ConfidenceScore, imagePath)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":      detection.ID,
		"message": "Detection created",
	})
}

// ListDetections supports ?stream_id= and ?limit= filters.
func (h *DetectionHandler) ListDetections(c *gin.Context) {
	filter := ports.DetectionFilter{StreamID: domain.StreamID(c.Query("stream_id"))}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxDetectionPage {
			c.Error(errors.NewInvalidInputError("limit must be between 1 and 500"))
			return
		}
		filter.Limit = limit
	}

	detections, err := h.detectionService.ListDetections(c.Request.Context(), filter)
	if err != nil {
		c.Error(err)
		return
	}

	out := make([]detectionResponse, 0, len(detections))
	for _, d := range detections {
		out = append(out, h.toResponse(d))
	}
	c.JSON(http.StatusOK, gin.H{"detections": out})
}

func (h *DetectionHandler) GetDetection(c *gin.Context) {
	detection, err := h.detectionService.GetDetection(c.Request.Context(), domain.DetectionID(c.Param("id")))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"detection": h.toResponse(detection)})
}

// ReplaceDetection requires every field; an absent image_path clears it.
func (h *DetectionHandler) ReplaceDetection(c *gin.Context) {
	var req DetectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("Invalid JSON"))
		return
	}
	if field := req.missing(); field != "" {
		c.Error(errors.NewInvalidInputError("Missing required field: " + field))
		return
	}
	if req.ImagePath == nil {
		empty := ""
		req.ImagePath = &empty
	}
	h.update(c, req)
}

func (h *DetectionHandler) PatchDetection(c *gin.Context) {
	var req DetectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("Invalid JSON"))
		return
	}
	h.update(c, req)
}

func (h *DetectionHandler) update(c *gin.Context, req DetectionRequest) {
	detection, err := h.detectionService.UpdateDetection(c.Request.Context(), domain.DetectionID(c.Param("id")), ports.DetectionUpdate{
		StreamID:   req.StreamID,
		Confidence: req.ConfidenceScore,
		ImagePath:  req.ImagePath,
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":   "Detection updated",
		"detection": h.toResponse(detection),
	})
}

func (h *DetectionHandler) DeleteDetection(c *gin.Context) {
	if err := h.detectionService.DeleteDetection(c.Request.Context(), domain.DetectionID(c.Param("id"))); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Detection deleted"})
}
