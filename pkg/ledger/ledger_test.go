package ledger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"superfan/pkg/logger"
	"superfan/pkg/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestLedger(t *testing.T) (*Ledger, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Wallet{}, &models.PointTransaction{}))
	return New(db, logger.New()), db
}

func seedWallet(t *testing.T, db *gorm.DB, earned, purchased, spent, escrowed int64) *models.Wallet {
	t.Helper()
	wallet := &models.Wallet{
		UserID:          uuid.New().String(),
		ClubID:          uuid.New().String(),
		EarnedPoints:    earned,
		PurchasedPoints: purchased,
		SpentPoints:     spent,
		EscrowedPoints:  escrowed,
	}
	require.NoError(t, db.Create(wallet).Error)
	return wallet
}

func reload(t *testing.T, db *gorm.DB, walletID string) *models.Wallet {
	t.Helper()
	var wallet models.Wallet
	require.NoError(t, db.Where("id = ?", walletID).First(&wallet).Error)
	return &wallet
}

func countTransactions(t *testing.T, db *gorm.DB, walletID string) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&models.PointTransaction{}).Where("wallet_id = ?", walletID).Count(&count).Error)
	return count
}

func TestCredit_Earned(t *testing.T) {
	l, db := newTestLedger(t)
	wallet := seedWallet(t, db, 0, 0, 0, 0)

	res, err := l.Credit(context.Background(), wallet.ID, 100, models.SourceEarned, "evt-1", nil)

	assert.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.Equal(t, int64(100), res.Wallet.EarnedPoints)
	assert.Equal(t, int64(100), res.Wallet.Balance())
	assert.Equal(t, int64(100), res.Wallet.StatusPoints())
	assert.Equal(t, models.TransactionTypeCredit, res.Tx.Type)
	assert.Equal(t, int64(1), countTransactions(t, db, wallet.ID))
}

func TestCredit_Purchased(t *testing.T) {
	l, db := newTestLedger(t)
	wallet := seedWallet(t, db, 0, 0, 0, 0)

	res, err := l.Credit(context.Background(), wallet.ID, 250, models.SourcePurchased, "pack-1", nil)

	assert.NoError(t, err)
	assert.Equal(t, int64(250), res.Wallet.PurchasedPoints)
	assert.Equal(t, int64(250), res.Wallet.Balance())
	// Purchased points never count toward status.
	assert.Equal(t, int64(0), res.Wallet.StatusPoints())
}

func TestCredit_ReplayIsNoOp(t *testing.T) {
	l, db := newTestLedger(t)
	wallet := seedWallet(t, db, 0, 0, 0, 0)

	first, err := l.Credit(context.Background(), wallet.ID, 100, models.SourceEarned, "evt-dup", nil)
	require.NoError(t, err)

	second, err := l.Credit(context.Background(), wallet.ID, 100, models.SourceEarned, "evt-dup", nil)

	assert.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Wallet.EarnedPoints, second.Wallet.EarnedPoints)
	assert.Equal(t, int64(100), reload(t, db, wallet.ID).EarnedPoints)
	assert.Equal(t, int64(1), countTransactions(t, db, wallet.ID))
}

func TestCredit_SameRefDifferentWallets(t *testing.T) {
	l, db := newTestLedger(t)
	first := seedWallet(t, db, 0, 0, 0, 0)
	second := seedWallet(t, db, 0, 0, 0, 0)

	_, err := l.Credit(context.Background(), first.ID, 100, models.SourceEarned, "evt-shared", nil)
	require.NoError(t, err)

	res, err := l.Credit(context.Background(), second.ID, 50, models.SourceEarned, "evt-shared", nil)

	// Refs are scoped per wallet, so the second credit applies normally.
	assert.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.Equal(t, int64(50), res.Wallet.EarnedPoints)
}

func TestCredit_RejectsInvalidInput(t *testing.T) {
	l, db := newTestLedger(t)
	wallet := seedWallet(t, db, 0, 0, 0, 0)

	_, err := l.Credit(context.Background(), wallet.ID, 0, models.SourceEarned, "ref-1", nil)
	assert.ErrorIs(t, err, ErrInvalidPoints)

	_, err = l.Credit(context.Background(), wallet.ID, -10, models.SourceEarned, "ref-2", nil)
	assert.ErrorIs(t, err, ErrInvalidPoints)

	_, err = l.Credit(context.Background(), wallet.ID, 10, models.SourceEarned, "", nil)
	assert.ErrorIs(t, err, ErrMissingRef)

	_, err = l.Credit(context.Background(), wallet.ID, 10, models.SourceSpent, "ref-3", nil)
	assert.ErrorIs(t, err, ErrInvalidSource)
}

func TestCredit_WalletNotFound(t *testing.T) {
	l, _ := newTestLedger(t)

	_, err := l.Credit(context.Background(), uuid.New().String(), 10, models.SourceEarned, "ref-1", nil)

	assert.ErrorIs(t, err, ErrWalletNotFound)
}

func TestDebit_SpentConsumesPurchasedFirst(t *testing.T) {
	l, db := newTestLedger(t)
	wallet := seedWallet(t, db, 100, 50, 0, 0)

	res, err := l.Debit(context.Background(), wallet.ID, 30, models.SourceSpent, "order-1", nil)

	assert.NoError(t, err)
	assert.Equal(t, int64(120), res.Wallet.Balance())
	assert.Equal(t, int64(30), res.Wallet.SpentPoints)
	// Earned points untouched while purchased points cover the debit.
	assert.Equal(t, int64(100), res.Wallet.EarnedPoints)
}

func TestDebit_InsufficientFunds(t *testing.T) {
	l, db := newTestLedger(t)
	wallet := seedWallet(t, db, 10, 0, 0, 0)

	_, err := l.Debit(context.Background(), wallet.ID, 40, models.SourceSpent, "order-1", nil)

	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, int64(10), reload(t, db, wallet.ID).Balance())
	assert.Equal(t, int64(0), countTransactions(t, db, wallet.ID))
}

func TestEscrow_MovesStatusPoints(t *testing.T) {
	l, db := newTestLedger(t)
	wallet := seedWallet(t, db, 100, 0, 0, 0)

	res, err := l.Escrow(context.Background(), wallet.ID, 60, "preorder-1")

	assert.NoError(t, err)
	assert.Equal(t, int64(60), res.Wallet.EscrowedPoints)
	assert.Equal(t, int64(40), res.Wallet.StatusPoints())
	// Escrow reserves status points without burning balance.
	assert.Equal(t, int64(100), res.Wallet.Balance())
}

func TestEscrow_CannotExceedEarned(t *testing.T) {
	l, db := newTestLedger(t)
	wallet := seedWallet(t, db, 100, 500, 0, 80)

	_, err := l.Escrow(context.Background(), wallet.ID, 30, "preorder-2")

	assert.ErrorIs(t, err, ErrEscrowExceedsEarned)
}

func TestReleaseEscrow_RestoresStatusPoints(t *testing.T) {
	l, db := newTestLedger(t)
	wallet := seedWallet(t, db, 100, 0, 0, 60)

	res, err := l.ReleaseEscrow(context.Background(), wallet.ID, 60, "preorder-1-release")

	assert.NoError(t, err)
	assert.Equal(t, int64(0), res.Wallet.EscrowedPoints)
	assert.Equal(t, int64(100), res.Wallet.StatusPoints())
}

func TestReleaseEscrow_CannotExceedEscrowed(t *testing.T) {
	l, db := newTestLedger(t)
	wallet := seedWallet(t, db, 100, 0, 0, 20)

	_, err := l.ReleaseEscrow(context.Background(), wallet.ID, 30, "preorder-release")

	assert.ErrorIs(t, err, ErrReleaseExceedsEscrow)
}

func TestEscrow_BlocksSpending(t *testing.T) {
	l, db := newTestLedger(t)
	wallet := seedWallet(t, db, 100, 0, 0, 40)

	_, err := l.Debit(context.Background(), wallet.ID, 80, models.SourceSpent, "order-1", nil)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	res, err := l.Debit(context.Background(), wallet.ID, 60, models.SourceSpent, "order-2", nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(40), res.Wallet.EarnedPoints)
	assert.Equal(t, int64(40), res.Wallet.EscrowedPoints)
}

func TestGetOrCreateWallet(t *testing.T) {
	l, _ := newTestLedger(t)
	userID := uuid.New().String()
	clubID := uuid.New().String()

	first, err := l.GetOrCreateWallet(context.Background(), userID, clubID)
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)

	second, err := l.GetOrCreateWallet(context.Background(), userID, clubID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	other, err := l.GetOrCreateWallet(context.Background(), userID, uuid.New().String())
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestWalletByMember_NotFound(t *testing.T) {
	l, _ := newTestLedger(t)

	_, err := l.WalletByMember(context.Background(), uuid.New().String(), uuid.New().String())

	assert.ErrorIs(t, err, ErrWalletNotFound)
}

func TestTransactions_Paging(t *testing.T) {
	l, db := newTestLedger(t)
	wallet := seedWallet(t, db, 0, 0, 0, 0)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		_, err := l.Credit(ctx, wallet.ID, int64(i*10), models.SourceEarned, fmt.Sprintf("evt-%d", i), nil)
		require.NoError(t, err)
	}

	page, err := l.Transactions(ctx, wallet.ID, 2, 0)
	assert.NoError(t, err)
	assert.Len(t, page, 2)

	all, err := l.Transactions(ctx, wallet.ID, 10, 0)
	assert.NoError(t, err)
	assert.Len(t, all, 3)

	rest, err := l.Transactions(ctx, wallet.ID, 10, 2)
	assert.NoError(t, err)
	assert.Len(t, rest, 1)
}

func TestTransactions_NewestFirst(t *testing.T) {
	l, db := newTestLedger(t)
	wallet := seedWallet(t, db, 0, 0, 0, 0)
	ctx := context.Background()

	_, err := l.Credit(ctx, wallet.ID, 10, models.SourceEarned, "evt-old", nil)
	require.NoError(t, err)
	_, err = l.Credit(ctx, wallet.ID, 20, models.SourceEarned, "evt-new", nil)
	require.NoError(t, err)

	// Push the first entry firmly into the past so ordering is unambiguous.
	require.NoError(t, db.Model(&models.PointTransaction{}).
		Where("wallet_id = ? AND ref = ?", wallet.ID, "evt-old").
		Update("created_at", time.Now().Add(-time.Hour)).Error)

	txns, err := l.Transactions(ctx, wallet.ID, 10, 0)
	assert.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, "evt-new", txns[0].Ref)
	assert.Equal(t, "evt-old", txns[1].Ref)
}

func TestEarnedInWindow(t *testing.T) {
	l, db := newTestLedger(t)
	wallet := seedWallet(t, db, 0, 0, 0, 0)
	ctx := context.Background()

	_, err := l.Credit(ctx, wallet.ID, 100, models.SourceEarned, "evt-recent", nil)
	require.NoError(t, err)
	_, err = l.Credit(ctx, wallet.ID, 50, models.SourceEarned, "evt-stale", nil)
	require.NoError(t, err)
	_, err = l.Credit(ctx, wallet.ID, 70, models.SourcePurchased, "pack-1", nil)
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.PointTransaction{}).
		Where("wallet_id = ? AND ref = ?", wallet.ID, "evt-stale").
		Update("created_at", time.Now().Add(-48*time.Hour)).Error)

	total, err := l.EarnedInWindow(ctx, wallet.ID, time.Now().Add(-time.Hour))

	assert.NoError(t, err)
	// Only the recent earned credit counts; purchased credits never do.
	assert.Equal(t, int64(100), total)
}

func TestLedger_InvariantsHoldAcrossMixedOperations(t *testing.T) {
	l, db := newTestLedger(t)
	wallet := seedWallet(t, db, 0, 0, 0, 0)
	ctx := context.Background()

	steps := []func() error{
		func() error { _, err := l.Credit(ctx, wallet.ID, 520, models.SourceEarned, "e1", nil); return err },
		func() error { _, err := l.Credit(ctx, wallet.ID, 30, models.SourcePurchased, "p1", nil); return err },
		func() error { _, err := l.Spend(ctx, wallet.ID, 50, false, "s1"); return err },
		func() error { _, err := l.Escrow(ctx, wallet.ID, 100, "esc1"); return err },
		func() error { _, err := l.ReleaseEscrow(ctx, wallet.ID, 40, "rel1"); return err },
		func() error { _, err := l.Spend(ctx, wallet.ID, 200, true, "s2"); return err },
	}

	for i, step := range steps {
		require.NoError(t, step(), "step %d", i)
		current := reload(t, db, wallet.ID)
		assert.GreaterOrEqual(t, current.Balance(), int64(0), "balance after step %d", i)
		assert.GreaterOrEqual(t, current.StatusPoints(), int64(0), "status points after step %d", i)
	}
}
