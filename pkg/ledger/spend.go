package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"superfan/pkg/models"
	"superfan/pkg/status"
)

// SpendResult is the outcome of one spend, including how the total split
// across purchased and earned points.
type SpendResult struct {
	SpentPurchased   int64 `json:"spent_purchased"`
	SpentEarned      int64 `json:"spent_earned"`
	RemainingBalance int64 `json:"remaining_balance"`
	StatusPreserved  bool  `json:"status_preserved"`
	Replayed         bool  `json:"-"`
}

// Spend consumes points purchased-first, optionally refusing to touch the
// earned points that back the wallet's current tier. Replaying a ref returns
// the originally recorded split without spending again.
func (l *Ledger) Spend(ctx context.Context, walletID string, points int64, preserveStatus bool, ref string) (*SpendResult, error) {
	var spentPurchased, spentEarned int64
	apply := func(w *models.Wallet) error {
		var err error
		spentPurchased, spentEarned, err = applySpend(w, points, preserveStatus)
		return err
	}
	metaFn := func() map[string]any {
		return map[string]any{
			"spent_purchased": spentPurchased,
			"spent_earned":    spentEarned,
			"preserve_status": preserveStatus,
		}
	}

	res, err := l.mutate(ctx, walletID, models.TransactionTypeDebit, points, models.SourceSpent, ref, metaFn, apply)
	if err != nil {
		return nil, err
	}
	if res.Replayed {
		return replaySpendResult(res)
	}
	return &SpendResult{
		SpentPurchased:   spentPurchased,
		SpentEarned:      spentEarned,
		RemainingBalance: res.Wallet.Balance(),
		StatusPreserved:  preserveStatus,
	}, nil
}

// applySpend consumes points purchased-first and reports the split. Escrowed
// earned points are never spendable. With protect set, the earned portion is
// additionally capped so status points cannot fall below the threshold of the
// tier they currently back.
func applySpend(w *models.Wallet, points int64, protect bool) (spentPurchased, spentEarned int64, err error) {
	purchasedAvail := w.PurchasedPoints - w.SpentPoints
	if purchasedAvail < 0 {
		purchasedAvail = 0
	}
	earnedAvail := w.StatusPoints()
	if protect {
		earnedAvail -= status.Threshold(status.TierFor(w.StatusPoints()))
	}

	if purchasedAvail+earnedAvail < points {
		if protect && purchasedAvail+w.StatusPoints() >= points {
			return 0, 0, ErrInsufficientPointsStatusProtection
		}
		return 0, 0, ErrInsufficientPoints
	}

	spentPurchased = points
	if spentPurchased > purchasedAvail {
		spentPurchased = purchasedAvail
	}
	spentEarned = points - spentPurchased
	w.SpentPoints += spentPurchased
	w.EarnedPoints -= spentEarned
	return spentPurchased, spentEarned, nil
}

func replaySpendResult(res *Result) (*SpendResult, error) {
	var meta struct {
		SpentPurchased int64 `json:"spent_purchased"`
		SpentEarned    int64 `json:"spent_earned"`
		PreserveStatus bool  `json:"preserve_status"`
	}
	if res.Tx.Metadata != "" {
		if err := json.Unmarshal([]byte(res.Tx.Metadata), &meta); err != nil {
			return nil, fmt.Errorf("failed to decode spend metadata: %w", err)
		}
	}
	return &SpendResult{
		SpentPurchased:   meta.SpentPurchased,
		SpentEarned:      meta.SpentEarned,
		RemainingBalance: res.Tx.BalanceAfter(),
		StatusPreserved:  meta.PreserveStatus,
		Replayed:         true,
	}, nil
}
