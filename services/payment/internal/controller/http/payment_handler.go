package http

import (
	"errors"
	"io"
	"net/http"

	"superfan/pkg/ledger"
	"superfan/pkg/logger"
	"superfan/services/payment/internal/processor"
	"superfan/services/payment/internal/usecase"

	"github.com/gin-gonic/gin"
)

// SignatureHeader carries the processor's HMAC over the raw webhook body.
const SignatureHeader = "Processor-Signature"

type PaymentHandler struct {
	checkoutUseCase usecase.CheckoutUseCase
	campaignUseCase usecase.CampaignUseCase
	webhookUseCase  usecase.WebhookUseCase
	logger          *logger.Logger
}

func NewPaymentHandler(
	checkoutUseCase usecase.CheckoutUseCase,
	campaignUseCase usecase.CampaignUseCase,
	webhookUseCase usecase.WebhookUseCase,
	logger *logger.Logger,
) *PaymentHandler {
	return &PaymentHandler{
		checkoutUseCase: checkoutUseCase,
		campaignUseCase: campaignUseCase,
		webhookUseCase:  webhookUseCase,
		logger:          logger,
	}
}

type CheckoutRequest struct {
	Type       string `json:"type" binding:"required"`
	RewardID   string `json:"reward_id"`
	CampaignID string `json:"campaign_id"`
	ClubID     string `json:"club_id"`
	Points     int64  `json:"points"`
	Units      int64  `json:"units"`
}

type PledgeRequest struct {
	Points         int64  `json:"points" binding:"required,min=1"`
	PreserveStatus *bool  `json:"preserve_status"`
	ReferenceID    string `json:"reference_id"`
}

type PresaleConfirmRequest struct {
	CampaignID  string `json:"campaign_id" binding:"required"`
	SessionID   string `json:"session_id"`
	TxHash      string `json:"tx_hash" binding:"required"`
	AmountCents int64  `json:"amount_cents" binding:"required,min=1"`
	Units       int64  `json:"units" binding:"required,min=1"`
}

// CreateCheckout godoc
// @Summary      Create checkout session
// @Description  Create a processor checkout session for a reward, a point pack or campaign tickets
// @Tags         payment
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body CheckoutRequest true "Checkout request"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /checkout [post]
func (h *PaymentHandler) CreateCheckout(c *gin.Context) {
	userID := c.GetString("user_id")

	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.checkoutUseCase.CreateCheckout(c.Request.Context(), userID, usecase.CheckoutRequest{
		Type:       usecase.CheckoutType(req.Type),
		RewardID:   req.RewardID,
		CampaignID: req.CampaignID,
		ClubID:     req.ClubID,
		Points:     req.Points,
		Units:      req.Units,
	})
	if err != nil {
		h.respondCheckoutError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *PaymentHandler) respondCheckoutError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, usecase.ErrInvalidCheckout):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid checkout request"})
	case errors.Is(err, usecase.ErrRewardNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "reward not found"})
	case errors.Is(err, usecase.ErrCampaignNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
	case errors.Is(err, usecase.ErrCampaignNotActive):
		c.JSON(http.StatusBadRequest, gin.H{"error": "campaign is not active"})
	case errors.Is(err, usecase.ErrNotAMember):
		c.JSON(http.StatusNotFound, gin.H{"error": "membership not found"})
	default:
		h.logger.Error("Failed to create checkout: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// HandleWebhook godoc
// @Summary      Receive processor webhook
// @Description  Verify, deduplicate and reconcile one payment processor event
// @Tags         payment
// @Accept       json
// @Produce      json
// @Param        Processor-Signature header string true "HMAC signature over the raw body"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Router       /webhooks/processor [post]
func (h *PaymentHandler) HandleWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	outcome, err := h.webhookUseCase.HandleEvent(c.Request.Context(), payload, c.GetHeader(SignatureHeader))
	if err != nil {
		switch {
		case errors.Is(err, processor.ErrMissingSignature),
			errors.Is(err, processor.ErrInvalidSignature),
			errors.Is(err, processor.ErrStaleSignature),
			errors.Is(err, usecase.ErrMalformedEvent):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			// Transient failure: answering 5xx makes the processor redeliver.
			h.logger.Error("Failed to process webhook event: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		}
		return
	}

	c.JSON(http.StatusOK, outcome)
}

// GetCampaign godoc
// @Summary      Get campaign
// @Description  Get a campaign with its funding totals and percent funded
// @Tags         payment
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Campaign ID"
// @Success      200  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]string
// @Router       /campaigns/{id} [get]
func (h *PaymentHandler) GetCampaign(c *gin.Context) {
	view, err := h.campaignUseCase.GetCampaign(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, usecase.ErrCampaignNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
			return
		}
		h.logger.Error("Failed to get campaign: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, view)
}

// Pledge godoc
// @Summary      Pledge points
// @Description  Spend wallet points into an active campaign, protecting tier status unless opted out
// @Tags         payment
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Campaign ID"
// @Param        request body PledgeRequest true "Pledge request"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /campaigns/{id}/pledge [post]
func (h *PaymentHandler) Pledge(c *gin.Context) {
	userID := c.GetString("user_id")

	var req PledgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.campaignUseCase.Pledge(c.Request.Context(), userID, usecase.PledgeRequest{
		CampaignID:     c.Param("id"),
		Points:         req.Points,
		PreserveStatus: req.PreserveStatus,
		ReferenceID:    req.ReferenceID,
	})
	if err != nil {
		h.respondPledgeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *PaymentHandler) respondPledgeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, usecase.ErrCampaignNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
	case errors.Is(err, usecase.ErrCampaignNotActive):
		c.JSON(http.StatusBadRequest, gin.H{"error": "campaign is not active", "reason": "campaign_not_active"})
	case errors.Is(err, usecase.ErrNotAMember), errors.Is(err, ledger.ErrWalletNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "membership not found"})
	case errors.Is(err, ledger.ErrInsufficientPointsStatusProtection):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "spending this many points would drop your status tier",
			"reason": "status_protection",
		})
	case errors.Is(err, ledger.ErrInsufficientPoints):
		c.JSON(http.StatusBadRequest, gin.H{"error": "insufficient points", "reason": "insufficient_points"})
	case errors.Is(err, ledger.ErrInvalidPoints):
		c.JSON(http.StatusBadRequest, gin.H{"error": "points must be positive"})
	default:
		h.logger.Error("Failed to pledge: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// ConfirmPresale godoc
// @Summary      Confirm presale purchase
// @Description  Record a settled on-chain presale buy, idempotent by transaction hash
// @Tags         payment
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body PresaleConfirmRequest true "Presale confirmation"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /presale/confirm [post]
func (h *PaymentHandler) ConfirmPresale(c *gin.Context) {
	userID := c.GetString("user_id")

	var req PresaleConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	purchase, err := h.campaignUseCase.ConfirmPresale(c.Request.Context(), usecase.PresaleConfirmation{
		CampaignID:  req.CampaignID,
		UserID:      userID,
		SessionID:   req.SessionID,
		TxHash:      req.TxHash,
		AmountCents: req.AmountCents,
		Units:       req.Units,
	})
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrCampaignNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
		case errors.Is(err, usecase.ErrCampaignNotActive):
			c.JSON(http.StatusBadRequest, gin.H{"error": "campaign is not accepting presale purchases"})
		case errors.Is(err, usecase.ErrAmountMismatch):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "reason": "amount_mismatch"})
		case errors.Is(err, usecase.ErrInvalidPresale):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid presale confirmation"})
		default:
			h.logger.Error("Failed to confirm presale: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"purchase": purchase})
}

// RefundCampaign godoc
// @Summary      Refund campaign backers
// @Description  Sweep an expired or failed campaign and refund every refundable purchase
// @Tags         payment
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Campaign ID"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /campaigns/{id}/refund [post]
func (h *PaymentHandler) RefundCampaign(c *gin.Context) {
	summary, err := h.campaignUseCase.RefundCampaign(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrCampaignNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
		case errors.Is(err, usecase.ErrCampaignNotEligible):
			c.JSON(http.StatusBadRequest, gin.H{"error": "only expired or failed campaigns can be refunded"})
		default:
			h.logger.Error("Failed to refund campaign: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, summary)
}

// ExpireCampaigns godoc
// @Summary      Expire overdue campaigns
// @Description  Mark active campaigns whose deadline has passed as expired
// @Tags         payment
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  map[string]interface{}
// @Router       /campaigns/expire [post]
func (h *PaymentHandler) ExpireCampaigns(c *gin.Context) {
	n, err := h.campaignUseCase.ExpireCampaigns(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to expire campaigns: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"expired_count": n})
}
