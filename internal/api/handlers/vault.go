package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/typeers/backend/internal/services"
)

type VaultHandler struct {
	services *services.Container
}

func NewVaultHandler(s *services.Container) *VaultHandler {
	return &VaultHandler{services: s}
}

func (h *VaultHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": h.services.Query.Vault(c.Request.Context(), getUserID(c))})
}

// Redeem reveals a vault item's value.
func (h *VaultHandler) Redeem(c *gin.Context) {
	item, err := h.services.Rewards.Redeem(c.Request.Context(), getUserID(c), c.Param("itemId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": item})
}

func (h *VaultHandler) Balance(c *gin.Context) {
	balance, err := h.services.Query.Balance(c.Request.Context(), getUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": balance})
}
