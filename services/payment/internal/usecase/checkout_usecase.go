package usecase

import (
	"context"
	"errors"
	"fmt"

	"superfan/pkg/config"
	"superfan/pkg/logger"
	"superfan/pkg/models"
	"superfan/services/payment/internal/processor"
	"superfan/services/payment/internal/repo/persistent"

	"gorm.io/gorm"
)

const defaultCurrency = "usd"

var (
	ErrNotAMember      = errors.New("membership not found")
	ErrRewardNotFound  = errors.New("reward not found")
	ErrInvalidCheckout = errors.New("invalid checkout request")
)

type CheckoutType string

const (
	CheckoutReward  CheckoutType = "reward"
	CheckoutCredits CheckoutType = "credits"
	CheckoutTickets CheckoutType = "tickets"
)

type CheckoutRequest struct {
	Type       CheckoutType
	RewardID   string
	CampaignID string
	ClubID     string
	Points     int64
	Units      int64
}

type CheckoutResult struct {
	PurchaseID  string `json:"purchase_id"`
	SessionID   string `json:"session_id"`
	RedirectURL string `json:"redirect_url"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

type CheckoutUseCase interface {
	CreateCheckout(ctx context.Context, userID string, req CheckoutRequest) (*CheckoutResult, error)
}

type checkoutUseCase struct {
	purchaseRepo   persistent.PurchaseRepository
	rewardRepo     persistent.RewardRepository
	campaignRepo   persistent.CampaignRepository
	membershipRepo persistent.MembershipRepository
	processor      processor.Client
	cfg            *config.Config
	logger         *logger.Logger
}

func NewCheckoutUseCase(
	purchaseRepo persistent.PurchaseRepository,
	rewardRepo persistent.RewardRepository,
	campaignRepo persistent.CampaignRepository,
	membershipRepo persistent.MembershipRepository,
	client processor.Client,
	cfg *config.Config,
	log *logger.Logger,
) CheckoutUseCase {
	return &checkoutUseCase{
		purchaseRepo:   purchaseRepo,
		rewardRepo:     rewardRepo,
		campaignRepo:   campaignRepo,
		membershipRepo: membershipRepo,
		processor:      client,
		cfg:            cfg,
		logger:         log,
	}
}

// CreateCheckout records a pending purchase with the expected amount, then
// asks the processor for a hosted checkout session. The expected amount and
// currency stay on the purchase so the webhook can verify the confirmed
// charge against what was quoted.
func (uc *checkoutUseCase) CreateCheckout(ctx context.Context, userID string, req CheckoutRequest) (*CheckoutResult, error) {
	purchase, description, err := uc.buildPurchase(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	ok, err := uc.membershipRepo.IsMember(ctx, userID, purchase.ClubID)
	if err != nil {
		uc.logger.Error("Failed to check membership: %v", err)
		return nil, fmt.Errorf("failed to check membership: %w", err)
	}
	if !ok {
		return nil, ErrNotAMember
	}

	if err := uc.purchaseRepo.Create(ctx, purchase); err != nil {
		uc.logger.Error("Failed to create purchase: %v", err)
		return nil, fmt.Errorf("failed to create purchase: %w", err)
	}

	session, err := uc.processor.CreateCheckoutSession(ctx, processor.CheckoutParams{
		AmountCents: purchase.ExpectedCents,
		Currency:    purchase.ExpectedCurrency,
		Reference:   purchase.ID,
		Description: description,
		SuccessURL:  uc.cfg.CheckoutSuccessURL,
		CancelURL:   uc.cfg.CheckoutCancelURL,
	})
	if err != nil {
		purchase.Status = models.PurchaseStatusFailed
		if saveErr := uc.purchaseRepo.Save(ctx, purchase); saveErr != nil {
			uc.logger.Error("Failed to mark purchase failed: %v", saveErr)
		}
		uc.logger.Error("Failed to create checkout session: %v", err)
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	purchase.SessionID = &session.ID
	if err := uc.purchaseRepo.Save(ctx, purchase); err != nil {
		uc.logger.Error("Failed to store session id: %v", err)
		return nil, fmt.Errorf("failed to store session id: %w", err)
	}

	uc.logger.Info("checkout session %s created for purchase %s (%d %s)",
		session.ID, purchase.ID, purchase.ExpectedCents, purchase.ExpectedCurrency)
	return &CheckoutResult{
		PurchaseID:  purchase.ID,
		SessionID:   session.ID,
		RedirectURL: session.URL,
		AmountCents: purchase.ExpectedCents,
		Currency:    purchase.ExpectedCurrency,
	}, nil
}

func (uc *checkoutUseCase) buildPurchase(ctx context.Context, userID string, req CheckoutRequest) (*models.Purchase, string, error) {
	switch req.Type {
	case CheckoutReward:
		if req.RewardID == "" {
			return nil, "", ErrInvalidCheckout
		}
		reward, err := uc.rewardRepo.FindByID(ctx, req.RewardID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, "", ErrRewardNotFound
			}
			return nil, "", fmt.Errorf("failed to load reward: %w", err)
		}
		if !reward.Active || reward.PriceCents <= 0 {
			return nil, "", ErrRewardNotFound
		}
		return &models.Purchase{
			UserID:           userID,
			ClubID:           reward.ClubID,
			RewardID:         &reward.ID,
			Method:           models.MethodPurchasedUpgrade,
			Status:           models.PurchaseStatusPending,
			OriginalCents:    reward.OriginalPriceCents,
			ExpectedCents:    reward.PriceCents,
			ExpectedCurrency: defaultCurrency,
			Points:           reward.PointValue,
		}, reward.Title, nil

	case CheckoutCredits:
		if req.ClubID == "" || req.Points < 1 {
			return nil, "", ErrInvalidCheckout
		}
		amount := req.Points * int64(uc.cfg.PointPriceCents)
		return &models.Purchase{
			UserID:           userID,
			ClubID:           req.ClubID,
			Method:           models.MethodCreditPurchase,
			Status:           models.PurchaseStatusPending,
			ExpectedCents:    amount,
			ExpectedCurrency: defaultCurrency,
			Points:           req.Points,
		}, fmt.Sprintf("%d club points", req.Points), nil

	case CheckoutTickets:
		if req.CampaignID == "" || req.Units < 1 {
			return nil, "", ErrInvalidCheckout
		}
		campaign, err := uc.campaignRepo.FindByID(ctx, req.CampaignID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, "", ErrCampaignNotFound
			}
			return nil, "", fmt.Errorf("failed to load campaign: %w", err)
		}
		if campaign.Status != models.CampaignStatusActive {
			return nil, "", ErrCampaignNotActive
		}
		return &models.Purchase{
			UserID:           userID,
			ClubID:           campaign.ClubID,
			CampaignID:       &campaign.ID,
			Method:           models.MethodTicketPurchase,
			Status:           models.PurchaseStatusPending,
			ExpectedCents:    req.Units * campaign.UnitPriceCents,
			ExpectedCurrency: defaultCurrency,
			Units:            req.Units,
		}, campaign.Title, nil

	default:
		return nil, "", ErrInvalidCheckout
	}
}
