package http

import (
	"errors"
	"net/http"

	"superfan/pkg/logger"
	"superfan/services/reward/internal/usecase"

	"github.com/gin-gonic/gin"
)

type RewardHandler struct {
	rewardUseCase usecase.RewardUseCase
	logger        *logger.Logger
}

func NewRewardHandler(rewardUseCase usecase.RewardUseCase, logger *logger.Logger) *RewardHandler {
	return &RewardHandler{
		rewardUseCase: rewardUseCase,
		logger:        logger,
	}
}

type ClaimRequest struct {
	ClubID string `json:"club_id" binding:"required"`
}

// ListRewards godoc
// @Summary      List rewards
// @Description  List the active rewards in a club's catalog
// @Tags         rewards
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        club_id query string true "Club ID"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Router       /rewards [get]
func (h *RewardHandler) ListRewards(c *gin.Context) {
	clubID := c.Query("club_id")
	if clubID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "club_id is required"})
		return
	}

	rewards, err := h.rewardUseCase.ListRewards(c.Request.Context(), clubID)
	if err != nil {
		h.logger.Error("Failed to list rewards: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"rewards": rewards, "count": len(rewards)})
}

// ClaimReward godoc
// @Summary      Claim a reward
// @Description  Claim a free reward; requires the reward's minimum tier and an unused quarterly allowance
// @Tags         rewards
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Reward ID"
// @Param        request body ClaimRequest true "Claim request"
// @Success      200  {object}  map[string]interface{}
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /rewards/{id}/claim [post]
func (h *RewardHandler) ClaimReward(c *gin.Context) {
	userID := c.GetString("user_id")
	rewardID := c.Param("id")

	var req ClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.rewardUseCase.ClaimReward(c.Request.Context(), userID, req.ClubID, rewardID)
	if err != nil {
		h.respondClaimError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"purchase":    result.Purchase,
		"access_url":  result.AccessURL,
		"access_code": result.Purchase.AccessCode,
	})
}

func (h *RewardHandler) respondClaimError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, usecase.ErrNotAMember), errors.Is(err, usecase.ErrRewardNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, usecase.ErrTierTooLow):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, usecase.ErrAlreadyClaimed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "reason": "already_claimed"})
	case errors.Is(err, usecase.ErrClaimLimit):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "reason": "claim_limit"})
	case errors.Is(err, usecase.ErrSoldOut):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "reason": "sold_out"})
	default:
		h.logger.Error("Failed to claim reward: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
