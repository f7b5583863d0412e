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
	"superfan/pkg/status"
	"superfan/services/wallet/internal/repo/persistent"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrNotAMember = errors.New("membership not found")

// TierInfo describes a wallet's standing. Effective can sit above Current for
// a bounded window when recent earning qualifies for a temporary boost; the
// boost never touches the ledger.
type TierInfo struct {
	Current      status.Tier `json:"current"`
	Effective    status.Tier `json:"effective"`
	Boosted      bool        `json:"boosted"`
	Next         status.Tier `json:"next,omitempty"`
	Progress     int         `json:"progress"`
	PointsToNext int64       `json:"points_to_next"`
}

type WalletView struct {
	WalletID        string   `json:"wallet_id"`
	ClubID          string   `json:"club_id"`
	Balance         int64    `json:"balance"`
	EarnedPoints    int64    `json:"earned_points"`
	PurchasedPoints int64    `json:"purchased_points"`
	SpentPoints     int64    `json:"spent_points"`
	EscrowedPoints  int64    `json:"escrowed_points"`
	StatusPoints    int64    `json:"status_points"`
	Tier            TierInfo `json:"tier"`
}

type StatusView struct {
	StatusPoints int64            `json:"status_points"`
	Tier         TierInfo         `json:"tier"`
	Thresholds   map[string]int64 `json:"thresholds"`
}

type WalletUseCase interface {
	GetWallet(ctx context.Context, userID, clubID string) (*WalletView, error)
	Spend(ctx context.Context, userID, clubID string, points int64, preserveStatus bool, ref string) (*ledger.SpendResult, error)
	GetTransactions(ctx context.Context, userID, clubID string, limit, offset int) ([]models.PointTransaction, error)
	GetStatus(ctx context.Context, userID, clubID string) (*StatusView, error)
	Escrow(ctx context.Context, userID, clubID string, points int64, ref string) (*models.Wallet, error)
	ReleaseEscrow(ctx context.Context, userID, clubID string, points int64, ref string) (*models.Wallet, error)
}

type walletUseCase struct {
	ledger         *ledger.Ledger
	membershipRepo persistent.MembershipRepository
	redisClient    *redis.Client
	cfg            *config.Config
	logger         *logger.Logger
}

func NewWalletUseCase(l *ledger.Ledger, membershipRepo persistent.MembershipRepository, redisClient *redis.Client, cfg *config.Config, log *logger.Logger) WalletUseCase {
	return &walletUseCase{
		ledger:         l,
		membershipRepo: membershipRepo,
		redisClient:    redisClient,
		cfg:            cfg,
		logger:         log,
	}
}

func (uc *walletUseCase) GetWallet(ctx context.Context, userID, clubID string) (*WalletView, error) {
	if err := uc.requireMembership(ctx, userID, clubID); err != nil {
		return nil, err
	}

	wallet, err := uc.ledger.GetOrCreateWallet(ctx, userID, clubID)
	if err != nil {
		uc.logger.Error("Failed to get wallet: %v", err)
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}

	return &WalletView{
		WalletID:        wallet.ID,
		ClubID:          wallet.ClubID,
		Balance:         wallet.Balance(),
		EarnedPoints:    wallet.EarnedPoints,
		PurchasedPoints: wallet.PurchasedPoints,
		SpentPoints:     wallet.SpentPoints,
		EscrowedPoints:  wallet.EscrowedPoints,
		StatusPoints:    wallet.StatusPoints(),
		Tier:            uc.tierInfo(ctx, wallet),
	}, nil
}

func (uc *walletUseCase) Spend(ctx context.Context, userID, clubID string, points int64, preserveStatus bool, ref string) (*ledger.SpendResult, error) {
	if err := uc.requireMembership(ctx, userID, clubID); err != nil {
		return nil, err
	}

	wallet, err := uc.ledger.WalletByMember(ctx, userID, clubID)
	if err != nil {
		return nil, err
	}

	if ref == "" {
		ref = uuid.New().String()
	}

	result, err := uc.ledger.Spend(ctx, wallet.ID, points, preserveStatus, ref)
	if err != nil {
		return nil, err
	}

	uc.logger.Info("wallet %s spent %d points (purchased=%d, earned=%d, preserve=%t)",
		wallet.ID, points, result.SpentPurchased, result.SpentEarned, preserveStatus)
	return result, nil
}

func (uc *walletUseCase) GetTransactions(ctx context.Context, userID, clubID string, limit, offset int) ([]models.PointTransaction, error) {
	if err := uc.requireMembership(ctx, userID, clubID); err != nil {
		return nil, err
	}

	wallet, err := uc.ledger.WalletByMember(ctx, userID, clubID)
	if err != nil {
		return nil, err
	}

	transactions, err := uc.ledger.Transactions(ctx, wallet.ID, limit, offset)
	if err != nil {
		uc.logger.Error("Failed to get transactions: %v", err)
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	return transactions, nil
}

func (uc *walletUseCase) GetStatus(ctx context.Context, userID, clubID string) (*StatusView, error) {
	if err := uc.requireMembership(ctx, userID, clubID); err != nil {
		return nil, err
	}

	wallet, err := uc.ledger.GetOrCreateWallet(ctx, userID, clubID)
	if err != nil {
		uc.logger.Error("Failed to get wallet: %v", err)
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}

	thresholds := make(map[string]int64, len(status.Tiers))
	for _, tier := range status.Tiers {
		thresholds[string(tier)] = status.Threshold(tier)
	}

	return &StatusView{
		StatusPoints: wallet.StatusPoints(),
		Tier:         uc.tierInfo(ctx, wallet),
		Thresholds:   thresholds,
	}, nil
}

func (uc *walletUseCase) Escrow(ctx context.Context, userID, clubID string, points int64, ref string) (*models.Wallet, error) {
	wallet, err := uc.ledger.WalletByMember(ctx, userID, clubID)
	if err != nil {
		return nil, err
	}

	if ref == "" {
		ref = uuid.New().String()
	}

	result, err := uc.ledger.Escrow(ctx, wallet.ID, points, ref)
	if err != nil {
		return nil, err
	}

	uc.logger.Info("escrowed %d points on wallet %s", points, wallet.ID)
	return result.Wallet, nil
}

func (uc *walletUseCase) ReleaseEscrow(ctx context.Context, userID, clubID string, points int64, ref string) (*models.Wallet, error) {
	wallet, err := uc.ledger.WalletByMember(ctx, userID, clubID)
	if err != nil {
		return nil, err
	}

	if ref == "" {
		ref = uuid.New().String()
	}

	result, err := uc.ledger.ReleaseEscrow(ctx, wallet.ID, points, ref)
	if err != nil {
		return nil, err
	}

	uc.logger.Info("released %d escrowed points on wallet %s", points, wallet.ID)
	return result.Wallet, nil
}

func (uc *walletUseCase) requireMembership(ctx context.Context, userID, clubID string) error {
	ok, err := uc.membershipRepo.IsMember(ctx, userID, clubID)
	if err != nil {
		uc.logger.Error("Failed to check membership: %v", err)
		return fmt.Errorf("failed to check membership: %w", err)
	}
	if !ok {
		return ErrNotAMember
	}
	return nil
}

func (uc *walletUseCase) tierInfo(ctx context.Context, wallet *models.Wallet) TierInfo {
	base := status.TierFor(wallet.StatusPoints())
	effective, boosted := uc.effectiveTier(ctx, wallet, base)

	info := TierInfo{
		Current:      base,
		Effective:    effective,
		Boosted:      boosted,
		Progress:     status.Progress(wallet.StatusPoints(), base),
		PointsToNext: status.PointsToNext(wallet.StatusPoints()),
	}
	if next, ok := status.NextTier(base); ok {
		info.Next = next
	}
	return info
}

// effectiveTier applies the rolling-window boost: points earned inside the
// configured window can qualify the member for a higher tier than the current
// status points support. The boosted tier is cached for the window and only
// shapes responses and eligibility checks.
func (uc *walletUseCase) effectiveTier(ctx context.Context, wallet *models.Wallet, base status.Tier) (status.Tier, bool) {
	boostKey := fmt.Sprintf("status:boost:%s", wallet.ID)
	if cached, err := uc.redisClient.Get(ctx, boostKey).Result(); err == nil {
		boosted := status.Tier(cached)
		if boosted.Valid() && boosted.AtLeast(base) {
			return boosted, boosted != base
		}
	}

	earned, err := uc.ledger.EarnedInWindow(ctx, wallet.ID, time.Now().Add(-uc.cfg.StatusBoostWindow))
	if err != nil {
		uc.logger.Warn("Failed to compute earning window for wallet %s: %v", wallet.ID, err)
		return base, false
	}

	boosted := status.TierFor(earned)
	if !boosted.AtLeast(base) || boosted == base {
		return base, false
	}

	if err := uc.redisClient.Set(ctx, boostKey, string(boosted), uc.cfg.StatusBoostWindow).Err(); err != nil {
		uc.logger.Warn("Failed to cache status boost for wallet %s: %v", wallet.ID, err)
	}
	return boosted, true
}
