package http

import (
	"errors"
	"net/http"
	"strconv"

	"superfan/pkg/ledger"
	"superfan/pkg/logger"
	"superfan/services/wallet/internal/usecase"

	"github.com/gin-gonic/gin"
)

type WalletHandler struct {
	walletUseCase usecase.WalletUseCase
	logger        *logger.Logger
}

func NewWalletHandler(walletUseCase usecase.WalletUseCase, logger *logger.Logger) *WalletHandler {
	return &WalletHandler{
		walletUseCase: walletUseCase,
		logger:        logger,
	}
}

type SpendRequest struct {
	ClubID         string `json:"club_id" binding:"required"`
	Points         int64  `json:"points" binding:"required,min=1"`
	PreserveStatus bool   `json:"preserve_status"`
	ReferenceID    string `json:"reference_id"`
}

type EscrowRequest struct {
	UserID      string `json:"user_id" binding:"required"`
	ClubID      string `json:"club_id" binding:"required"`
	Points      int64  `json:"points" binding:"required,min=1"`
	ReferenceID string `json:"reference_id"`
}

// GetWallet godoc
// @Summary      Get wallet
// @Description  Get point balances and tier standing for the authenticated member
// @Tags         wallet
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        club_id query string true "Club ID"
// @Success      200  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]string
// @Router       /wallet [get]
func (h *WalletHandler) GetWallet(c *gin.Context) {
	userID := c.GetString("user_id")
	clubID := c.Query("club_id")
	if clubID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "club_id is required"})
		return
	}

	wallet, err := h.walletUseCase.GetWallet(c.Request.Context(), userID, clubID)
	if err != nil {
		if errors.Is(err, usecase.ErrNotAMember) {
			c.JSON(http.StatusNotFound, gin.H{"error": "membership not found"})
			return
		}
		h.logger.Error("Failed to get wallet: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, wallet)
}

// Spend godoc
// @Summary      Spend points
// @Description  Spend points from a club wallet, consuming purchased points before earned points
// @Tags         wallet
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body SpendRequest true "Spend request"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /wallet/spend [post]
func (h *WalletHandler) Spend(c *gin.Context) {
	userID := c.GetString("user_id")

	var req SpendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.walletUseCase.Spend(c.Request.Context(), userID, req.ClubID, req.Points, req.PreserveStatus, req.ReferenceID)
	if err != nil {
		h.respondSpendError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"points_spent": result.SpentPurchased + result.SpentEarned,
		"spent_breakdown": gin.H{
			"purchased": result.SpentPurchased,
			"earned":    result.SpentEarned,
		},
		"remaining_balance": result.RemainingBalance,
		"status_preserved":  result.StatusPreserved,
	})
}

func (h *WalletHandler) respondSpendError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, usecase.ErrNotAMember), errors.Is(err, ledger.ErrWalletNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "wallet or membership not found"})
	case errors.Is(err, ledger.ErrInsufficientPointsStatusProtection):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "reason": "status_protection"})
	case errors.Is(err, ledger.ErrInsufficientPoints):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "reason": "insufficient_points"})
	case errors.Is(err, ledger.ErrInvalidPoints):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Failed to spend points: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// GetTransactions godoc
// @Summary      Get transactions
// @Description  Get the ledger history for a club wallet
// @Tags         wallet
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        club_id query string true "Club ID"
// @Param        limit query int false "Number of transactions"
// @Param        offset query int false "Offset"
// @Success      200  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]string
// @Router       /wallet/transactions [get]
func (h *WalletHandler) GetTransactions(c *gin.Context) {
	userID := c.GetString("user_id")
	clubID := c.Query("club_id")
	if clubID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "club_id is required"})
		return
	}

	limit := 50
	offset := 0

	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	transactions, err := h.walletUseCase.GetTransactions(c.Request.Context(), userID, clubID, limit, offset)
	if err != nil {
		if errors.Is(err, usecase.ErrNotAMember) || errors.Is(err, ledger.ErrWalletNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "wallet or membership not found"})
			return
		}
		h.logger.Error("Failed to get transactions: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": transactions, "count": len(transactions)})
}

// GetStatus godoc
// @Summary      Get tier status
// @Description  Get status points, tier thresholds and any temporary tier boost
// @Tags         wallet
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        club_id query string true "Club ID"
// @Success      200  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]string
// @Router       /wallet/status [get]
func (h *WalletHandler) GetStatus(c *gin.Context) {
	userID := c.GetString("user_id")
	clubID := c.Query("club_id")
	if clubID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "club_id is required"})
		return
	}

	view, err := h.walletUseCase.GetStatus(c.Request.Context(), userID, clubID)
	if err != nil {
		if errors.Is(err, usecase.ErrNotAMember) {
			c.JSON(http.StatusNotFound, gin.H{"error": "membership not found"})
			return
		}
		h.logger.Error("Failed to get status: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, view)
}

// Escrow godoc
// @Summary      Escrow points
// @Description  Reserve a member's earned points against a pending pre-order (admin only)
// @Tags         wallet
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body EscrowRequest true "Escrow request"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /wallet/escrow [post]
func (h *WalletHandler) Escrow(c *gin.Context) {
	var req EscrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	wallet, err := h.walletUseCase.Escrow(c.Request.Context(), req.UserID, req.ClubID, req.Points, req.ReferenceID)
	if err != nil {
		h.respondEscrowError(c, err)
		return
	}

	c.JSON(http.StatusOK, wallet)
}

// ReleaseEscrow godoc
// @Summary      Release escrowed points
// @Description  Return previously escrowed points to a member's status calculation (admin only)
// @Tags         wallet
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body EscrowRequest true "Release request"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /wallet/escrow/release [post]
func (h *WalletHandler) ReleaseEscrow(c *gin.Context) {
	var req EscrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	wallet, err := h.walletUseCase.ReleaseEscrow(c.Request.Context(), req.UserID, req.ClubID, req.Points, req.ReferenceID)
	if err != nil {
		h.respondEscrowError(c, err)
		return
	}

	c.JSON(http.StatusOK, wallet)
}

func (h *WalletHandler) respondEscrowError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ledger.ErrWalletNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "wallet not found"})
	case errors.Is(err, ledger.ErrEscrowExceedsEarned):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "reason": "escrow_exceeds_earned"})
	case errors.Is(err, ledger.ErrReleaseExceedsEscrow):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "reason": "release_exceeds_escrow"})
	case errors.Is(err, ledger.ErrInvalidPoints):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Failed to update escrow: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
