package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/typeers/backend/internal/services"
)

type PlayHandler struct {
	services *services.Container
}

func NewPlayHandler(s *services.Container) *PlayHandler {
	return &PlayHandler{services: s}
}

// StartSession consumes the caller's single play of a campaign.
func (h *PlayHandler) StartSession(c *gin.Context) {
	view, err := h.services.Rewards.StartSession(c.Request.Context(), c.Param("id"), getUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

type sessionClaimRequest struct {
	Position *int `json:"position" binding:"required"`
}

// ClaimFromSession claims the reward hidden at a shuffled position.
func (h *PlayHandler) ClaimFromSession(c *gin.Context) {
	var req sessionClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	reward, err := h.services.Rewards.ClaimFromSession(c.Request.Context(), c.Param("sessionId"), getUserID(c), *req.Position)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reward": reward})
}

type claimRequest struct {
	RewardIndex *int `json:"reward_index" binding:"required"`
}

// Claim claims a reward by its original word index.
func (h *PlayHandler) Claim(c *gin.Context) {
	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	reward, err := h.services.Rewards.Claim(c.Request.Context(), c.Param("id"), getUserID(c), *req.RewardIndex)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reward": reward})
}

type finishRequest struct {
	Completed bool `json:"completed"`
}

func (h *PlayHandler) Finish(c *gin.Context) {
	var req finishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	counted, err := h.services.Rewards.FinishSession(c.Request.Context(), c.Param("id"), getUserID(c), req.Completed)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"counted": counted})
}

func (h *PlayHandler) Played(c *gin.Context) {
	played, err := h.services.Rewards.HasPlayed(c.Request.Context(), c.Param("id"), getUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"played": played})
}

func (h *PlayHandler) Claimed(c *gin.Context) {
	indices, err := h.services.Rewards.ClaimedIndices(c.Request.Context(), c.Param("id"), getUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"claimed_indices": indices})
}

// BrandClick counts a brand link click and returns the attributed URL.
func (h *PlayHandler) BrandClick(c *gin.Context) {
	ctx := c.Request.Context()
	campaign, err := h.services.Store.Get(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	url, err := h.services.Counters.TrackBrandClick(ctx, h.services.Attribution, campaign)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// AffiliateClick counts a reward's affiliate link click and returns the
// attributed URL.
func (h *PlayHandler) AffiliateClick(c *gin.Context) {
	ctx := c.Request.Context()
	campaign, err := h.services.Store.Get(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	url, err := h.services.Counters.TrackAffiliateClick(ctx, h.services.Attribution, campaign, c.Param("rewardId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}
