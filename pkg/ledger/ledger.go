package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"superfan/pkg/logger"
	"superfan/pkg/models"

	"gorm.io/gorm"
)

// Business-rule failures surfaced to callers. Infrastructure failures are
// wrapped with context instead of using these.
var (
	ErrWalletNotFound = errors.New("wallet not found")
	ErrInvalidPoints  = errors.New("points must be positive")
	ErrMissingRef     = errors.New("transaction ref is required")
	ErrInvalidSource  = errors.New("invalid source for operation")
	ErrWalletConflict = errors.New("concurrent wallet update")

	ErrInsufficientFunds                  = errors.New("insufficient funds")
	ErrInsufficientPoints                 = errors.New("insufficient points")
	ErrInsufficientPointsStatusProtection = errors.New("insufficient points due to status protection")

	ErrEscrowExceedsEarned  = errors.New("escrow exceeds available earned points")
	ErrReleaseExceedsEscrow = errors.New("release exceeds escrowed points")
)

// casRetries bounds how often a mutation is retried after losing a
// counter compare-and-swap to a concurrent writer.
const casRetries = 3

var errStaleWallet = errors.New("stale wallet counters")

// Ledger owns all wallet mutations. Every mutation runs in its own database
// transaction, swaps the wallet counters conditionally on their prior values
// and appends exactly one PointTransaction row keyed by (wallet_id, ref).
type Ledger struct {
	db  *gorm.DB
	log *logger.Logger
}

func New(db *gorm.DB, log *logger.Logger) *Ledger {
	return &Ledger{db: db, log: log}
}

// Result reports a ledger mutation. For a replayed ref the wallet counters
// reflect the balances recorded when the original mutation applied.
type Result struct {
	Wallet   *models.Wallet
	Tx       *models.PointTransaction
	Replayed bool
}

// Credit applies a positive point mutation. Earned and purchased credits grow
// the matching counter; a release credit frees previously escrowed points.
func (l *Ledger) Credit(ctx context.Context, walletID string, points int64, source models.PointSource, ref string, meta map[string]any) (*Result, error) {
	apply := func(w *models.Wallet) error {
		switch source {
		case models.SourceEarned:
			w.EarnedPoints += points
		case models.SourcePurchased:
			w.PurchasedPoints += points
		case models.SourceRelease:
			if w.EscrowedPoints < points {
				return ErrReleaseExceedsEscrow
			}
			w.EscrowedPoints -= points
		default:
			return fmt.Errorf("%w: credit %s", ErrInvalidSource, source)
		}
		return nil
	}
	return l.mutate(ctx, walletID, models.TransactionTypeCredit, points, source, ref, staticMeta(meta), apply)
}

// Debit applies a negative point mutation. A spent debit consumes purchased
// points before earned points; an escrow debit reserves earned points out of
// the status calculation.
func (l *Ledger) Debit(ctx context.Context, walletID string, points int64, source models.PointSource, ref string, meta map[string]any) (*Result, error) {
	apply := func(w *models.Wallet) error {
		switch source {
		case models.SourceSpent:
			if _, _, err := applySpend(w, points, false); err != nil {
				return ErrInsufficientFunds
			}
		case models.SourceEscrow:
			if w.StatusPoints() < points {
				return ErrEscrowExceedsEarned
			}
			w.EscrowedPoints += points
		default:
			return fmt.Errorf("%w: debit %s", ErrInvalidSource, source)
		}
		return nil
	}
	return l.mutate(ctx, walletID, models.TransactionTypeDebit, points, source, ref, staticMeta(meta), apply)
}

// Escrow reserves earned points against a pending pre-order. Escrowed points
// stop counting toward status until released.
func (l *Ledger) Escrow(ctx context.Context, walletID string, points int64, ref string) (*Result, error) {
	return l.Debit(ctx, walletID, points, models.SourceEscrow, ref, nil)
}

// ReleaseEscrow returns previously escrowed points to the status calculation.
func (l *Ledger) ReleaseEscrow(ctx context.Context, walletID string, points int64, ref string) (*Result, error) {
	return l.Credit(ctx, walletID, points, models.SourceRelease, ref, nil)
}

// GetOrCreateWallet returns the member's wallet for the club, creating it on
// the first qualifying ledger event.
func (l *Ledger) GetOrCreateWallet(ctx context.Context, userID, clubID string) (*models.Wallet, error) {
	var wallet models.Wallet
	err := l.db.WithContext(ctx).Where("user_id = ? AND club_id = ?", userID, clubID).First(&wallet).Error
	if err == nil {
		return &wallet, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load wallet: %w", err)
	}

	wallet = models.Wallet{UserID: userID, ClubID: clubID}
	if err := l.db.WithContext(ctx).Create(&wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost the race against a concurrent first credit for this member.
			return l.WalletByMember(ctx, userID, clubID)
		}
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}
	l.log.Info("created wallet %s for user %s in club %s", wallet.ID, userID, clubID)
	return &wallet, nil
}

func (l *Ledger) Wallet(ctx context.Context, walletID string) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := l.db.WithContext(ctx).Where("id = ?", walletID).First(&wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to load wallet: %w", err)
	}
	return &wallet, nil
}

func (l *Ledger) WalletByMember(ctx context.Context, userID, clubID string) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := l.db.WithContext(ctx).Where("user_id = ? AND club_id = ?", userID, clubID).First(&wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to load wallet: %w", err)
	}
	return &wallet, nil
}

// Transactions lists the wallet's ledger entries, newest first.
func (l *Ledger) Transactions(ctx context.Context, walletID string, limit, offset int) ([]models.PointTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	var txns []models.PointTransaction
	err := l.db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&txns).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txns, nil
}

// EarnedInWindow sums earned credits recorded since the given time. It feeds
// the rolling-window tier qualification and never touches the counters.
func (l *Ledger) EarnedInWindow(ctx context.Context, walletID string, since time.Time) (int64, error) {
	var total int64
	err := l.db.WithContext(ctx).
		Model(&models.PointTransaction{}).
		Select("COALESCE(SUM(points), 0)").
		Where("wallet_id = ? AND type = ? AND source = ? AND created_at >= ?",
			walletID, models.TransactionTypeCredit, models.SourceEarned, since).
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum earned points: %w", err)
	}
	return total, nil
}

func (l *Ledger) mutate(ctx context.Context, walletID string, txType models.TransactionType, points int64, source models.PointSource, ref string, metaFn func() map[string]any, apply func(w *models.Wallet) error) (*Result, error) {
	if points <= 0 {
		return nil, ErrInvalidPoints
	}
	if ref == "" {
		return nil, ErrMissingRef
	}

	if replay, err := l.replayed(ctx, walletID, ref); err != nil {
		return nil, err
	} else if replay != nil {
		return replay, nil
	}

	for attempt := 0; attempt < casRetries; attempt++ {
		res, err := l.attempt(ctx, walletID, txType, points, source, ref, metaFn, apply)
		if err == nil {
			return res, nil
		}
		if errors.Is(err, errStaleWallet) {
			continue
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// The same ref landed concurrently; hand back the recorded outcome.
			if replay, rerr := l.replayed(ctx, walletID, ref); rerr == nil && replay != nil {
				return replay, nil
			}
		}
		return nil, err
	}
	l.log.Warn("wallet %s update lost %d compare-and-swap rounds", walletID, casRetries)
	return nil, ErrWalletConflict
}

func (l *Ledger) attempt(ctx context.Context, walletID string, txType models.TransactionType, points int64, source models.PointSource, ref string, metaFn func() map[string]any, apply func(w *models.Wallet) error) (*Result, error) {
	var (
		wallet models.Wallet
		row    models.PointTransaction
	)
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", walletID).First(&wallet).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrWalletNotFound
			}
			return fmt.Errorf("failed to load wallet: %w", err)
		}

		before := wallet
		if err := apply(&wallet); err != nil {
			return err
		}

		update := tx.Model(&models.Wallet{}).
			Where("id = ? AND earned_points = ? AND purchased_points = ? AND spent_points = ? AND escrowed_points = ?",
				wallet.ID, before.EarnedPoints, before.PurchasedPoints, before.SpentPoints, before.EscrowedPoints).
			Updates(map[string]any{
				"earned_points":    wallet.EarnedPoints,
				"purchased_points": wallet.PurchasedPoints,
				"spent_points":     wallet.SpentPoints,
				"escrowed_points":  wallet.EscrowedPoints,
			})
		if update.Error != nil {
			return fmt.Errorf("failed to update wallet: %w", update.Error)
		}
		if update.RowsAffected == 0 {
			return errStaleWallet
		}

		row = models.PointTransaction{
			WalletID:       wallet.ID,
			Type:           txType,
			Points:         points,
			Source:         source,
			Ref:            ref,
			EarnedAfter:    wallet.EarnedPoints,
			PurchasedAfter: wallet.PurchasedPoints,
			SpentAfter:     wallet.SpentPoints,
			EscrowedAfter:  wallet.EscrowedPoints,
			Metadata:       encodeMeta(metaFn()),
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("failed to record transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Result{Wallet: &wallet, Tx: &row}, nil
}

// replayed returns the recorded outcome when the (wallet, ref) pair has been
// applied before, and nil when the ref is new.
func (l *Ledger) replayed(ctx context.Context, walletID, ref string) (*Result, error) {
	var row models.PointTransaction
	err := l.db.WithContext(ctx).Where("wallet_id = ? AND ref = ?", walletID, ref).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check ref: %w", err)
	}

	wallet, err := l.Wallet(ctx, walletID)
	if err != nil {
		return nil, err
	}
	snapshot := *wallet
	snapshot.EarnedPoints = row.EarnedAfter
	snapshot.PurchasedPoints = row.PurchasedAfter
	snapshot.SpentPoints = row.SpentAfter
	snapshot.EscrowedPoints = row.EscrowedAfter
	l.log.Info("replayed ref %s for wallet %s", ref, walletID)
	return &Result{Wallet: &snapshot, Tx: &row, Replayed: true}, nil
}

func staticMeta(meta map[string]any) func() map[string]any {
	return func() map[string]any { return meta }
}

func encodeMeta(meta map[string]any) string {
	if len(meta) == 0 {
		return ""
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return ""
	}
	return string(raw)
}
