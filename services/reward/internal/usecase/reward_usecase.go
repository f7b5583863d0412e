package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"superfan/pkg/config"
	"superfan/pkg/ledger"
	"superfan/pkg/logger"
	"superfan/pkg/models"
	"superfan/pkg/queue"
	"superfan/pkg/s3"
	"superfan/pkg/status"
	"superfan/services/reward/internal/repo/persistent"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

var (
	ErrNotAMember     = errors.New("membership not found")
	ErrRewardNotFound = errors.New("reward not found")
	ErrTierTooLow     = errors.New("tier requirement not met")
	ErrAlreadyClaimed = errors.New("reward already claimed")
	ErrClaimLimit     = errors.New("free claim limit reached for this quarter")
	ErrSoldOut        = errors.New("reward sold out")
)

type ClaimResult struct {
	Purchase  *models.Purchase `json:"purchase"`
	AccessURL string           `json:"access_url,omitempty"`
}

type RewardUseCase interface {
	ListRewards(ctx context.Context, clubID string) ([]models.Reward, error)
	ClaimReward(ctx context.Context, userID, clubID, rewardID string) (*ClaimResult, error)
}

type rewardUseCase struct {
	rewardRepo     persistent.RewardRepository
	purchaseRepo   persistent.PurchaseRepository
	membershipRepo persistent.MembershipRepository
	ledger         *ledger.Ledger
	s3Client       *s3.Client
	redisClient    *redis.Client
	queueClient    *queue.Client
	cfg            *config.Config
	logger         *logger.Logger
}

func NewRewardUseCase(
	rewardRepo persistent.RewardRepository,
	purchaseRepo persistent.PurchaseRepository,
	membershipRepo persistent.MembershipRepository,
	l *ledger.Ledger,
	s3Client *s3.Client,
	redisClient *redis.Client,
	queueClient *queue.Client,
	cfg *config.Config,
	log *logger.Logger,
) RewardUseCase {
	return &rewardUseCase{
		rewardRepo:     rewardRepo,
		purchaseRepo:   purchaseRepo,
		membershipRepo: membershipRepo,
		ledger:         l,
		s3Client:       s3Client,
		redisClient:    redisClient,
		queueClient:    queueClient,
		cfg:            cfg,
		logger:         log,
	}
}

func (uc *rewardUseCase) ListRewards(ctx context.Context, clubID string) ([]models.Reward, error) {
	rewards, err := uc.rewardRepo.ListByClub(ctx, clubID)
	if err != nil {
		uc.logger.Error("Failed to list rewards: %v", err)
		return nil, fmt.Errorf("failed to list rewards: %w", err)
	}
	return rewards, nil
}

// ClaimReward runs the free-claim chain: membership, reward validity, tier
// gate against the effective tier, one claim per reward, the quarterly
// free-claim allowance, then the stock guard. The claim is recorded as a
// completed purchase with access granted.
func (uc *rewardUseCase) ClaimReward(ctx context.Context, userID, clubID, rewardID string) (*ClaimResult, error) {
	ok, err := uc.membershipRepo.IsMember(ctx, userID, clubID)
	if err != nil {
		uc.logger.Error("Failed to check membership: %v", err)
		return nil, fmt.Errorf("failed to check membership: %w", err)
	}
	if !ok {
		return nil, ErrNotAMember
	}

	reward, err := uc.rewardRepo.FindByID(ctx, rewardID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRewardNotFound
		}
		uc.logger.Error("Failed to load reward: %v", err)
		return nil, fmt.Errorf("failed to load reward: %w", err)
	}
	if reward.ClubID != clubID || !reward.Active {
		return nil, ErrRewardNotFound
	}

	tier, err := uc.effectiveTier(ctx, userID, clubID)
	if err != nil {
		return nil, err
	}
	if !tier.AtLeast(reward.Tier) {
		return nil, ErrTierTooLow
	}

	claimed, err := uc.purchaseRepo.HasClaimedReward(ctx, userID, rewardID)
	if err != nil {
		uc.logger.Error("Failed to check prior claims: %v", err)
		return nil, fmt.Errorf("failed to check prior claims: %w", err)
	}
	if claimed {
		return nil, ErrAlreadyClaimed
	}

	used, err := uc.purchaseRepo.CountFreeClaimsSince(ctx, userID, clubID, quarterStart(time.Now().UTC()))
	if err != nil {
		uc.logger.Error("Failed to count free claims: %v", err)
		return nil, fmt.Errorf("failed to count free claims: %w", err)
	}
	if used >= int64(uc.cfg.FreeClaimsPerQuarter) {
		return nil, ErrClaimLimit
	}

	available, err := uc.rewardRepo.ClaimUnit(ctx, rewardID)
	if err != nil {
		uc.logger.Error("Failed to claim reward stock: %v", err)
		return nil, fmt.Errorf("failed to claim reward stock: %w", err)
	}
	if !available {
		return nil, ErrSoldOut
	}

	now := time.Now()
	purchase := &models.Purchase{
		UserID:       userID,
		ClubID:       clubID,
		RewardID:     &reward.ID,
		Method:       models.MethodFreeClaim,
		Status:       models.PurchaseStatusCompleted,
		AccessStatus: models.AccessStatusGranted,
		AccessCode:   uuid.New().String(),
		CompletedAt:  &now,
	}
	if err := uc.purchaseRepo.Create(ctx, purchase); err != nil {
		if relErr := uc.rewardRepo.ReleaseUnit(ctx, rewardID); relErr != nil {
			uc.logger.Error("Failed to release reward stock after claim failure: %v", relErr)
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrAlreadyClaimed
		}
		uc.logger.Error("Failed to record claim: %v", err)
		return nil, fmt.Errorf("failed to record claim: %w", err)
	}

	result := &ClaimResult{Purchase: purchase}
	if reward.Kind == models.RewardKindDigital && reward.AssetKey != "" && uc.s3Client != nil {
		url, err := uc.s3Client.PresignedURL(reward.AssetKey, uc.cfg.RewardAccessTTL)
		if err != nil {
			uc.logger.Error("Failed to presign reward asset %s: %v", reward.AssetKey, err)
		} else {
			result.AccessURL = url
		}
	}

	if uc.queueClient != nil {
		go func() {
			task := map[string]interface{}{
				"type":      queue.TaskRewardRedeemed,
				"user_id":   userID,
				"club_id":   clubID,
				"reward_id": reward.ID,
				"title":     reward.Title,
				"priority":  5,
			}
			if err := uc.queueClient.PublishMemberEventTask(task); err != nil {
				uc.logger.Error("[MEMBER EVENT QUEUE] Failed to publish reward redemption task: %v", err)
			}
		}()
	}

	uc.logger.Info("user %s claimed reward %s in club %s", userID, reward.ID, clubID)
	return result, nil
}

// effectiveTier mirrors the wallet service tier computation, honoring a
// cached rolling-window boost so eligibility matches what the member sees.
func (uc *rewardUseCase) effectiveTier(ctx context.Context, userID, clubID string) (status.Tier, error) {
	wallet, err := uc.ledger.GetOrCreateWallet(ctx, userID, clubID)
	if err != nil {
		uc.logger.Error("Failed to get wallet: %v", err)
		return "", fmt.Errorf("failed to get wallet: %w", err)
	}

	base := status.TierFor(wallet.StatusPoints())

	boostKey := fmt.Sprintf("status:boost:%s", wallet.ID)
	if cached, err := uc.redisClient.Get(ctx, boostKey).Result(); err == nil {
		boosted := status.Tier(cached)
		if boosted.Valid() && boosted.AtLeast(base) {
			return boosted, nil
		}
	}

	earned, err := uc.ledger.EarnedInWindow(ctx, wallet.ID, time.Now().Add(-uc.cfg.StatusBoostWindow))
	if err != nil {
		uc.logger.Warn("Failed to compute earning window for wallet %s: %v", wallet.ID, err)
		return base, nil
	}

	boosted := status.TierFor(earned)
	if !boosted.AtLeast(base) || boosted == base {
		return base, nil
	}

	if err := uc.redisClient.Set(ctx, boostKey, string(boosted), uc.cfg.StatusBoostWindow).Err(); err != nil {
		uc.logger.Warn("Failed to cache status boost for wallet %s: %v", wallet.ID, err)
	}
	return boosted, nil
}

// quarterStart returns the first instant of the calendar quarter containing t.
func quarterStart(t time.Time) time.Time {
	month := time.Month(((int(t.Month())-1)/3)*3 + 1)
	return time.Date(t.Year(), month, 1, 0, 0, 0, 0, t.Location())
}
