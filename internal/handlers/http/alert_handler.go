package http

import (
	"net/http"
	"time"

	"camwatch/internal/core/domain"
	"camwatch/internal/core/ports"
	"camwatch/pkg/errors"

	"github.com/gin-gonic/gin"
)

// MediaURLs maps a stored snapshot path to its public address.
type MediaURLs interface {
	URL(path string) string
}

type AlertHandler struct {
	alertService ports.AlertService
	media        MediaURLs
}

func NewAlertHandler(alertService ports.AlertService, media MediaURLs) *AlertHandler {
	return &AlertHandler{
		alertService: alertService,
		media:        media,
	}
}

func (h *AlertHandler) SetupRoutes(api *gin.RouterGroup) {
	api.GET("/alerts", h.ListAlerts)
	api.GET("/alerts/:id", h.GetAlert)
	api.PATCH("/alerts/:id", h.UpdateAlert)
	api.DELETE("/alerts/:id", h.DeleteAlert)
}

type alertResponse struct {
	ID              domain.AlertID     `json:"id"`
	DetectionID     domain.DetectionID `json:"detection_id"`
	StreamID        domain.StreamID    `json:"stream_id"`
	ConfidenceScore float64            `json:"confidence_score"`
	ImageURL        *string            `json:"image_url"`
	Timestamp       time.Time          `json:"timestamp"`
	Viewed          bool               `json:"viewed"`
}

func (h *AlertHandler) toResponse(v *domain.AlertView) alertResponse {
	resp := alertResponse{
		ID:              v.Alert.ID,
		DetectionID:     v.Detection.ID,
		StreamID:        v.Detection.StreamID,
		ConfidenceScore: v.Detection.Confidence,
		Timestamp:       v.Alert.CreatedAt,
		Viewed:          v.Alert.Viewed,
	}
	if v.Detection.ImagePath != "" {
		u := h.media.URL(v.Detection.ImagePath)
		resp.ImageURL = &u
	}
	return resp
}

func (h *AlertHandler) ListAlerts(c *gin.Context) {
	views, err := h.alertService.ListAlerts(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}

	out := make([]alertResponse, 0, len(views))
	for _, v := range views {
		out = append(out, h.toResponse(v))
	}
	c.JSON(http.StatusOK, gin.H{"alerts": out})
}

func (h *AlertHandler) GetAlert(c *gin.Context) {
	view, err := h.alertService.GetAlert(c.Request.Context(), domain.AlertID(c.Param("id")))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alert": h.toResponse(view)})
}

type UpdateAlertRequest struct {
	Viewed *bool `json:"viewed"`
}

// UpdateAlert marks an alert viewed or unviewed. A body without "viewed"
// leaves the alert unchanged.
func (h *AlertHandler) UpdateAlert(c *gin.Context) {
	var req UpdateAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("Invalid JSON"))
		return
	}

	ctx := c.Request.Context()
	id := domain.AlertID(c.Param("id"))

	var (
		view *domain.AlertView
		err  error
	)
	if req.Viewed != nil {
		view, err = h.alertService.SetViewed(ctx, id, *req.Viewed)
	} else {
		view, err = h.alertService.GetAlert(ctx, id)
	}
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Alert updated",
		"viewed":  view.Alert.Viewed,
	})
}

func (h *AlertHandler) DeleteAlert(c *gin.Context) {
	if err := h.alertService.DeleteAlert(c.Request.Context(), domain.AlertID(c.Param("id"))); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Alert deleted"})
}
