package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/typeers/backend/internal/campaigns"
	"github.com/typeers/backend/internal/models"
	"github.com/typeers/backend/internal/services"
)

type CampaignHandler struct {
	services *services.Container
}

func NewCampaignHandler(s *services.Container) *CampaignHandler {
	return &CampaignHandler{services: s}
}

// Tiers returns the per-tier limits for client-side validation.
func (h *CampaignHandler) Tiers(c *gin.Context) {
	tiers := make([]gin.H, 0, len(models.Tiers))
	for _, t := range models.Tiers {
		tiers = append(tiers, gin.H{"tier": t, "limits": models.TierLimitTable[t]})
	}
	c.JSON(http.StatusOK, gin.H{"tiers": tiers})
}

func (h *CampaignHandler) Submit(c *gin.Context) {
	var req campaigns.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	campaign, err := h.services.Campaigns.Submit(c.Request.Context(), getUserID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"campaign": campaign.Summary()})
}

func (h *CampaignHandler) Get(c *gin.Context) {
	view, err := h.services.Query.PublicCampaign(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaign": view})
}

// ListActive lists playable campaigns, optionally for one community.
func (h *CampaignHandler) ListActive(c *gin.Context) {
	ctx := c.Request.Context()
	var list []models.CampaignSummary
	if community := c.Query("community"); community != "" {
		list = h.services.Query.CommunityCampaigns(ctx, community, queryLimit(c))
	} else {
		list = h.services.Query.ActiveCampaigns(ctx, queryLimit(c))
	}
	c.JSON(http.StatusOK, gin.H{"campaigns": list})
}

// ForPost resolves the campaign behind an external post for the viewer.
func (h *CampaignHandler) ForPost(c *gin.Context) {
	view, err := h.services.Query.CampaignForPost(c.Request.Context(), c.Param("postId"), getUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *CampaignHandler) Analytics(c *gin.Context) {
	row, err := h.services.Query.CampaignAnalytics(c.Request.Context(), c.Param("id"), getUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, row)
}

func (h *CampaignHandler) ListPending(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"campaigns": h.services.Query.PendingCampaigns(c.Request.Context(), queryLimit(c))})
}

func (h *CampaignHandler) Approve(c *gin.Context) {
	campaign, err := h.services.Campaigns.Approve(c.Request.Context(), c.Param("id"), getUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaign": campaign.Summary(), "post_id": campaign.ExternalPostID})
}

func (h *CampaignHandler) Reject(c *gin.Context) {
	if err := h.services.Campaigns.Reject(c.Request.Context(), c.Param("id"), getUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": models.StatusRejected})
}

// Dashboard returns the caller's creator dashboard.
func (h *CampaignHandler) Dashboard(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.Query.Dashboard(c.Request.Context(), getUserID(c)))
}
