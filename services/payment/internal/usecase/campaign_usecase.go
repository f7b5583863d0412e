package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"superfan/pkg/config"
	"superfan/pkg/ledger"
	"superfan/pkg/logger"
	"superfan/pkg/models"
	"superfan/pkg/queue"
	"superfan/services/payment/internal/processor"
	"superfan/services/payment/internal/repo/persistent"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	campaignSnapshotTTL = 5 * time.Second
	presaleCurrency     = "usdc"
)

var (
	ErrCampaignNotFound    = errors.New("campaign not found")
	ErrCampaignNotActive   = errors.New("campaign is not active")
	ErrCampaignNotEligible = errors.New("campaign is not eligible for refunds")
	ErrInvalidPresale      = errors.New("invalid presale confirmation")
	ErrAmountMismatch      = errors.New("amount does not match units at campaign price")
)

// CampaignView is a campaign with its funding progress precomputed, shaped
// for caching and for API responses.
type CampaignView struct {
	models.Campaign
	PercentFunded int `json:"percent_funded"`
}

type PledgeRequest struct {
	CampaignID     string
	Points         int64
	PreserveStatus *bool
	ReferenceID    string
}

type PledgeResult struct {
	Purchase      *models.Purchase    `json:"purchase"`
	Spend         *ledger.SpendResult `json:"spend"`
	CreditedCents int64               `json:"credited_cents"`
	Replayed      bool                `json:"replayed,omitempty"`
}

type PresaleConfirmation struct {
	CampaignID  string
	UserID      string
	SessionID   string
	TxHash      string
	AmountCents int64
	Units       int64
}

type RefundSummary struct {
	CampaignID    string   `json:"campaign_id"`
	RefundedCount int      `json:"refunded_count"`
	Errors        []string `json:"errors,omitempty"`
}

type CampaignUseCase interface {
	GetCampaign(ctx context.Context, campaignID string) (*CampaignView, error)
	Pledge(ctx context.Context, userID string, req PledgeRequest) (*PledgeResult, error)
	ConfirmPresale(ctx context.Context, conf PresaleConfirmation) (*models.Purchase, error)
	CreditFunding(ctx context.Context, purchaseID, campaignID string, cents, receivedCents, units int64) error
	RefundCampaign(ctx context.Context, campaignID string) (*RefundSummary, error)
	ExpireCampaigns(ctx context.Context) (int64, error)
}

type campaignUseCase struct {
	campaignRepo   persistent.CampaignRepository
	purchaseRepo   persistent.PurchaseRepository
	membershipRepo persistent.MembershipRepository
	pointLedger    *ledger.Ledger
	processor      processor.Client
	redisClient    *redis.Client
	queueClient    *queue.Client
	cfg            *config.Config
	logger         *logger.Logger
}

func NewCampaignUseCase(
	campaignRepo persistent.CampaignRepository,
	purchaseRepo persistent.PurchaseRepository,
	membershipRepo persistent.MembershipRepository,
	pointLedger *ledger.Ledger,
	client processor.Client,
	redisClient *redis.Client,
	queueClient *queue.Client,
	cfg *config.Config,
	log *logger.Logger,
) CampaignUseCase {
	return &campaignUseCase{
		campaignRepo:   campaignRepo,
		purchaseRepo:   purchaseRepo,
		membershipRepo: membershipRepo,
		pointLedger:    pointLedger,
		processor:      client,
		redisClient:    redisClient,
		queueClient:    queueClient,
		cfg:            cfg,
		logger:         log,
	}
}

// GetCampaign returns the campaign with funding progress, served from a short
// redis snapshot so progress polling does not hammer the database.
func (uc *campaignUseCase) GetCampaign(ctx context.Context, campaignID string) (*CampaignView, error) {
	cacheKey := fmt.Sprintf("campaign:snapshot:%s", campaignID)
	if uc.redisClient != nil {
		if cached, err := uc.redisClient.Get(ctx, cacheKey).Result(); err == nil {
			var view CampaignView
			if err := json.Unmarshal([]byte(cached), &view); err == nil {
				return &view, nil
			}
		}
	}

	campaign, err := uc.campaignRepo.FindByID(ctx, campaignID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCampaignNotFound
		}
		return nil, fmt.Errorf("failed to load campaign: %w", err)
	}

	view := &CampaignView{Campaign: *campaign, PercentFunded: campaign.PercentFunded()}
	if uc.redisClient != nil {
		if data, err := json.Marshal(view); err == nil {
			if err := uc.redisClient.Set(ctx, cacheKey, data, campaignSnapshotTTL).Err(); err != nil {
				uc.logger.Warn("Failed to cache campaign snapshot: %v", err)
			}
		}
	}
	return view, nil
}

// Pledge spends wallet points into a campaign. The spend, the pledge row and
// the funding credit are each keyed to the same reference, so a replayed
// request converges on the original pledge without spending or funding twice.
// The replay check runs before the campaign gate: a retry keeps returning its
// recorded outcome even after the campaign leaves active. Status protection
// is on unless the caller explicitly opts out.
func (uc *campaignUseCase) Pledge(ctx context.Context, userID string, req PledgeRequest) (*PledgeResult, error) {
	if req.Points < 1 {
		return nil, ledger.ErrInvalidPoints
	}

	if req.ReferenceID != "" {
		existing, err := uc.purchaseRepo.FindBySessionID(ctx, pledgeSessionRef(userID, req.ReferenceID))
		if err == nil {
			return uc.replayPledge(ctx, existing, req.ReferenceID)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to check for replayed pledge: %w", err)
		}
	}

	campaign, err := uc.campaignRepo.FindByID(ctx, req.CampaignID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCampaignNotFound
		}
		return nil, fmt.Errorf("failed to load campaign: %w", err)
	}
	if campaign.Status != models.CampaignStatusActive {
		return nil, ErrCampaignNotActive
	}

	ok, err := uc.membershipRepo.IsMember(ctx, userID, campaign.ClubID)
	if err != nil {
		uc.logger.Error("Failed to check membership: %v", err)
		return nil, fmt.Errorf("failed to check membership: %w", err)
	}
	if !ok {
		return nil, ErrNotAMember
	}

	wallet, err := uc.pointLedger.WalletByMember(ctx, userID, campaign.ClubID)
	if err != nil {
		return nil, err
	}

	preserve := true
	if req.PreserveStatus != nil {
		preserve = *req.PreserveStatus
	}
	ref := req.ReferenceID
	if ref == "" {
		ref = uuid.New().String()
	}

	spend, err := uc.pointLedger.Spend(ctx, wallet.ID, req.Points, preserve, ref)
	if err != nil {
		return nil, err
	}

	creditedCents := req.Points * int64(uc.cfg.PointPriceCents)

	// A pledge has no processor session, so a user-scoped ledger ref doubles
	// as the purchase-level idempotency key.
	sessionRef := pledgeSessionRef(userID, ref)
	now := time.Now().UTC()
	purchase := &models.Purchase{
		UserID:      userID,
		ClubID:      campaign.ClubID,
		CampaignID:  &campaign.ID,
		Method:      models.MethodTicketPurchase,
		Status:      models.PurchaseStatusCompleted,
		Points:      req.Points,
		SessionID:   &sessionRef,
		CompletedAt: &now,
	}
	if err := uc.purchaseRepo.Create(ctx, purchase); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost a same-reference race; the winner's row carries the outcome
			// and the funding credit replays against it.
			existing, findErr := uc.purchaseRepo.FindBySessionID(ctx, sessionRef)
			if findErr != nil {
				return nil, fmt.Errorf("failed to load replayed pledge: %w", findErr)
			}
			if err := uc.CreditFunding(ctx, existing.ID, campaign.ID, creditedCents, 0, 0); err != nil {
				return nil, err
			}
			return &PledgeResult{Purchase: existing, Spend: spend, CreditedCents: creditedCents, Replayed: true}, nil
		}
		return nil, fmt.Errorf("failed to record pledge: %w", err)
	}

	if err := uc.CreditFunding(ctx, purchase.ID, campaign.ID, creditedCents, 0, 0); err != nil {
		uc.logger.Error("Failed to credit pledge funding for campaign %s: %v", campaign.ID, err)
		return nil, err
	}

	uc.logger.Info("user %s pledged %d points (%d cents) to campaign %s", userID, req.Points, creditedCents, campaign.ID)
	return &PledgeResult{Purchase: purchase, Spend: spend, CreditedCents: creditedCents}, nil
}

// replayPledge rebuilds the recorded outcome of a pledge and re-applies its
// replay-keyed side effects, so a retry that died between the pledge row and
// the funding credit still converges.
func (uc *campaignUseCase) replayPledge(ctx context.Context, p *models.Purchase, ref string) (*PledgeResult, error) {
	wallet, err := uc.pointLedger.WalletByMember(ctx, p.UserID, p.ClubID)
	if err != nil {
		return nil, err
	}
	spend, err := uc.pointLedger.Spend(ctx, wallet.ID, p.Points, true, ref)
	if err != nil {
		return nil, err
	}

	creditedCents := p.Points * int64(uc.cfg.PointPriceCents)
	if p.CampaignID != nil {
		if err := uc.CreditFunding(ctx, p.ID, *p.CampaignID, creditedCents, 0, 0); err != nil {
			return nil, err
		}
	}
	return &PledgeResult{Purchase: p, Spend: spend, CreditedCents: creditedCents, Replayed: true}, nil
}

// pledgeSessionRef scopes the caller-chosen reference to the user, so one
// member replaying a reference can never land on another member's pledge.
func pledgeSessionRef(userID, ref string) string {
	return fmt.Sprintf("pledge-%s-%s", userID, ref)
}

// ConfirmPresale records an on-chain presale buy after the transaction
// settled. Replaying a tx hash returns the original purchase and re-applies
// its purchase-keyed funding credit, which lands once however often the
// confirmation retries. The amount must equal units times the campaign unit
// price exactly; unlike card payments there is no processor to reconcile
// against later.
func (uc *campaignUseCase) ConfirmPresale(ctx context.Context, conf PresaleConfirmation) (*models.Purchase, error) {
	if conf.TxHash == "" || conf.Units < 1 {
		return nil, ErrInvalidPresale
	}

	existing, err := uc.purchaseRepo.FindByTxHash(ctx, conf.TxHash)
	if err == nil {
		return uc.replayPresale(ctx, existing)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check tx hash: %w", err)
	}

	campaign, err := uc.campaignRepo.FindByID(ctx, conf.CampaignID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCampaignNotFound
		}
		return nil, fmt.Errorf("failed to load campaign: %w", err)
	}
	if campaign.Status != models.CampaignStatusActive && campaign.Status != models.CampaignStatusFunded {
		return nil, ErrCampaignNotActive
	}
	if conf.AmountCents != conf.Units*campaign.UnitPriceCents {
		return nil, fmt.Errorf("%w: %d cents for %d units at %d cents each",
			ErrAmountMismatch, conf.AmountCents, conf.Units, campaign.UnitPriceCents)
	}

	txHash := conf.TxHash
	now := time.Now().UTC()
	purchase := &models.Purchase{
		UserID:      conf.UserID,
		ClubID:      campaign.ClubID,
		CampaignID:  &campaign.ID,
		Method:      models.MethodPresalePurchase,
		Status:      models.PurchaseStatusCompleted,
		PaidCents:   conf.AmountCents,
		Currency:    presaleCurrency,
		Units:       conf.Units,
		TxHash:      &txHash,
		CompletedAt: &now,
	}
	if conf.SessionID != "" {
		sessionID := conf.SessionID
		purchase.SessionID = &sessionID
	}
	if err := uc.purchaseRepo.Create(ctx, purchase); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			replayed, findErr := uc.purchaseRepo.FindByTxHash(ctx, conf.TxHash)
			if findErr != nil {
				return nil, fmt.Errorf("failed to load replayed presale purchase: %w", findErr)
			}
			return uc.replayPresale(ctx, replayed)
		}
		return nil, fmt.Errorf("failed to record presale purchase: %w", err)
	}

	if err := uc.CreditFunding(ctx, purchase.ID, campaign.ID, conf.AmountCents, conf.AmountCents, conf.Units); err != nil {
		uc.logger.Error("Failed to credit presale funding for campaign %s: %v", campaign.ID, err)
		return nil, err
	}

	uc.logger.Info("presale purchase %s confirmed for campaign %s (tx %s)", purchase.ID, campaign.ID, conf.TxHash)
	return purchase, nil
}

// replayPresale re-applies the funding credit of a recorded presale buy,
// covering a confirmation that died between the purchase row and the credit.
func (uc *campaignUseCase) replayPresale(ctx context.Context, p *models.Purchase) (*models.Purchase, error) {
	if p.CampaignID != nil {
		if err := uc.CreditFunding(ctx, p.ID, *p.CampaignID, p.PaidCents, p.PaidCents, p.Units); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// CreditFunding applies a purchase's confirmed contribution to its campaign
// and flips the campaign to funded once the goal is crossed. The credit is
// keyed to the purchase, so replays apply nothing; the funded check still
// runs on every call, covering a caller that died between the credit and the
// check. The funded transition is a conditional update that succeeds for
// exactly one caller, so the funded event publishes once however many credits
// land concurrently.
func (uc *campaignUseCase) CreditFunding(ctx context.Context, purchaseID, campaignID string, cents, receivedCents, units int64) error {
	if _, err := uc.campaignRepo.AddFundingOnce(ctx, purchaseID, campaignID, cents, receivedCents, units); err != nil {
		return fmt.Errorf("failed to add funding: %w", err)
	}

	funded, err := uc.campaignRepo.MarkFunded(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("failed to check funded transition: %w", err)
	}
	if !funded {
		return nil
	}

	campaign, err := uc.campaignRepo.FindByID(ctx, campaignID)
	if err != nil {
		uc.logger.Error("Failed to load funded campaign %s: %v", campaignID, err)
		return nil
	}
	uc.logger.Info("campaign %s reached its funding goal (%d cents)", campaignID, campaign.CurrentFundingCents)

	if uc.queueClient != nil {
		go func() {
			task := map[string]interface{}{
				"type":        queue.TaskCampaignFunded,
				"campaign_id": campaign.ID,
				"club_id":     campaign.ClubID,
				"title":       campaign.Title,
				"priority":    7,
			}
			if err := uc.queueClient.PublishMemberEventTask(task); err != nil {
				uc.logger.Error("[MEMBER EVENT QUEUE] Failed to publish campaign funded task: %v", err)
			}
		}()
	}
	return nil
}

// RefundCampaign sweeps refundable purchases of an expired or failed
// campaign. Card buys go back through the processor, point pledges come back
// as purchased points, presale buys settle on chain and are only marked. The
// sweep is re-runnable: failures and interrupted in-flight rows stay
// refundable, already processed rows are never picked up again.
func (uc *campaignUseCase) RefundCampaign(ctx context.Context, campaignID string) (*RefundSummary, error) {
	campaign, err := uc.campaignRepo.FindByID(ctx, campaignID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCampaignNotFound
		}
		return nil, fmt.Errorf("failed to load campaign: %w", err)
	}
	if campaign.Status != models.CampaignStatusExpired && campaign.Status != models.CampaignStatusFailed {
		return nil, ErrCampaignNotEligible
	}

	purchases, err := uc.purchaseRepo.ListRefundable(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to list refundable purchases: %w", err)
	}

	summary := &RefundSummary{CampaignID: campaignID}
	for i := range purchases {
		p := &purchases[i]
		switch {
		case p.PaymentIntentID != nil && p.PaidCents > 0:
			// Pending marks the processor call in flight. A sweep that dies
			// mid-call leaves the row refundable, and the purchase-scoped
			// idempotency key dedups the re-issued refund at the processor.
			p.RefundStatus = models.RefundStatusPending
			if err := uc.purchaseRepo.Save(ctx, p); err != nil {
				summary.Errors = append(summary.Errors, fmt.Sprintf("purchase %s: %v", p.ID, err))
				continue
			}
			callCtx, cancel := context.WithTimeout(ctx, uc.cfg.ProcessorTimeout)
			refund, err := uc.processor.CreateRefund(callCtx, *p.PaymentIntentID, p.PaidCents, "refund-"+p.ID)
			cancel()
			if err != nil {
				p.RefundStatus = models.RefundStatusFailed
				summary.Errors = append(summary.Errors, fmt.Sprintf("purchase %s: %v", p.ID, err))
			} else {
				p.RefundStatus = models.RefundStatusProcessed
				p.RefundID = refund.ID
			}

		case p.Points > 0:
			if err := uc.refundPledge(ctx, p); err != nil {
				p.RefundStatus = models.RefundStatusFailed
				summary.Errors = append(summary.Errors, fmt.Sprintf("purchase %s: %v", p.ID, err))
			} else {
				p.RefundStatus = models.RefundStatusProcessed
			}

		case p.Method == models.MethodPresalePurchase:
			p.RefundStatus = models.RefundStatusFailed
			summary.Errors = append(summary.Errors, fmt.Sprintf("purchase %s: presale refunds settle on chain", p.ID))

		default:
			// Nothing was paid and no points moved, nothing to return.
			continue
		}

		if err := uc.purchaseRepo.Save(ctx, p); err != nil {
			uc.logger.Error("Failed to save refund state for purchase %s: %v", p.ID, err)
			summary.Errors = append(summary.Errors, fmt.Sprintf("purchase %s: %v", p.ID, err))
			continue
		}
		if p.RefundStatus == models.RefundStatusProcessed {
			summary.RefundedCount++
			uc.publishRefundProcessed(p)
		}
	}

	if err := uc.campaignRepo.MarkFailed(ctx, campaignID); err != nil {
		return summary, fmt.Errorf("failed to mark campaign failed: %w", err)
	}

	uc.logger.Info("refund sweep for campaign %s: %d refunded, %d errors",
		campaignID, summary.RefundedCount, len(summary.Errors))
	return summary, nil
}

// refundPledge returns a pledge's points as purchased credit. The ref is
// derived from the purchase id, so a sweep re-run replays instead of
// crediting twice.
func (uc *campaignUseCase) refundPledge(ctx context.Context, p *models.Purchase) error {
	wallet, err := uc.pointLedger.WalletByMember(ctx, p.UserID, p.ClubID)
	if err != nil {
		return fmt.Errorf("failed to load wallet: %w", err)
	}
	meta := map[string]any{"campaign_id": *p.CampaignID, "purchase_id": p.ID}
	if _, err := uc.pointLedger.Credit(ctx, wallet.ID, p.Points, models.SourcePurchased, "refund-"+p.ID, meta); err != nil {
		return fmt.Errorf("failed to credit points back: %w", err)
	}
	return nil
}

func (uc *campaignUseCase) publishRefundProcessed(p *models.Purchase) {
	if uc.queueClient == nil {
		return
	}
	task := map[string]interface{}{
		"type":        queue.TaskRefundProcessed,
		"user_id":     p.UserID,
		"club_id":     p.ClubID,
		"purchase_id": p.ID,
		"cents":       p.PaidCents,
		"points":      p.Points,
		"priority":    5,
	}
	if p.CampaignID != nil {
		task["campaign_id"] = *p.CampaignID
	}
	go func() {
		if err := uc.queueClient.PublishMemberEventTask(task); err != nil {
			uc.logger.Error("[MEMBER EVENT QUEUE] Failed to publish refund processed task: %v", err)
		}
	}()
}

// ExpireCampaigns fails over active campaigns whose deadline has passed.
func (uc *campaignUseCase) ExpireCampaigns(ctx context.Context) (int64, error) {
	n, err := uc.campaignRepo.ExpireDue(ctx, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to expire campaigns: %w", err)
	}
	if n > 0 {
		uc.logger.Info("expired %d campaigns past deadline", n)
	}
	return n, nil
}
