package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"superfan/pkg/config"
	"superfan/pkg/ledger"
	"superfan/pkg/logger"
	"superfan/pkg/models"
	"superfan/services/payment/internal/processor"
	"superfan/services/payment/internal/repo/persistent"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Processor event types the engine reconciles. Everything else is
// acknowledged and ignored.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventIntentSucceeded   = "payment_intent.succeeded"
	EventIntentFailed      = "payment_intent.payment_failed"
)

var (
	ErrMalformedEvent     = errors.New("malformed webhook event")
	ErrIntegrityViolation = errors.New("confirmed amount does not match the checkout record")

	errUnknownReference = errors.New("no purchase for payment reference")
)

type WebhookStatus string

const (
	WebhookProcessed WebhookStatus = "processed"
	WebhookDuplicate WebhookStatus = "duplicate"
	WebhookIgnored   WebhookStatus = "ignored"
	WebhookFailed    WebhookStatus = "failed"
)

type WebhookOutcome struct {
	Status    WebhookStatus `json:"status"`
	EventID   string        `json:"event_id,omitempty"`
	EventType string        `json:"event_type,omitempty"`
}

type WebhookUseCase interface {
	HandleEvent(ctx context.Context, payload []byte, sigHeader string) (*WebhookOutcome, error)
}

type webhookUseCase struct {
	webhookEventRepo persistent.WebhookEventRepository
	purchaseRepo     persistent.PurchaseRepository
	pointLedger      *ledger.Ledger
	campaigns        CampaignUseCase
	cfg              *config.Config
	logger           *logger.Logger
}

func NewWebhookUseCase(
	webhookEventRepo persistent.WebhookEventRepository,
	purchaseRepo persistent.PurchaseRepository,
	pointLedger *ledger.Ledger,
	campaigns CampaignUseCase,
	cfg *config.Config,
	log *logger.Logger,
) WebhookUseCase {
	return &webhookUseCase{
		webhookEventRepo: webhookEventRepo,
		purchaseRepo:     purchaseRepo,
		pointLedger:      pointLedger,
		campaigns:        campaigns,
		cfg:              cfg,
		logger:           log,
	}
}

type eventEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// HandleEvent verifies, dedups and dispatches one processor delivery.
//
// The error return drives the HTTP response: signature and envelope errors
// mean the request itself is bad, transient processing errors come back so
// the handler answers 500 and the processor redelivers. Integrity failures
// are recorded on the event and acknowledged; retrying a mismatched amount
// can never succeed, and acknowledging stops the redelivery loop.
func (uc *webhookUseCase) HandleEvent(ctx context.Context, payload []byte, sigHeader string) (*WebhookOutcome, error) {
	if err := processor.VerifySignature(payload, sigHeader, uc.cfg.ProcessorWebhookSecret, processor.DefaultTolerance); err != nil {
		return nil, err
	}

	var envelope eventEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if envelope.ID == "" || envelope.Type == "" {
		return nil, fmt.Errorf("%w: missing id or type", ErrMalformedEvent)
	}

	event := &models.WebhookEvent{
		EventID:   envelope.ID,
		EventType: envelope.Type,
		Payload:   string(payload),
	}
	claimed, err := uc.webhookEventRepo.InsertClaimed(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("failed to record webhook event: %w", err)
	}
	if !claimed {
		existing, err := uc.webhookEventRepo.FindByEventID(ctx, envelope.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load webhook event: %w", err)
		}
		if existing.ProcessedAt != nil {
			return &WebhookOutcome{Status: WebhookDuplicate, EventID: envelope.ID, EventType: envelope.Type}, nil
		}
		reclaimed, err := uc.webhookEventRepo.Claim(ctx, envelope.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to claim webhook event: %w", err)
		}
		if !reclaimed {
			// Another delivery owns the claim right now.
			return &WebhookOutcome{Status: WebhookDuplicate, EventID: envelope.ID, EventType: envelope.Type}, nil
		}
	}

	outcome, procErr := uc.dispatch(ctx, envelope)
	if procErr != nil {
		if markErr := uc.webhookEventRepo.MarkFailed(ctx, envelope.ID, procErr.Error()); markErr != nil {
			uc.logger.Error("Failed to mark webhook event %s failed: %v", envelope.ID, markErr)
		}
		if errors.Is(procErr, ErrIntegrityViolation) || errors.Is(procErr, ErrMalformedEvent) {
			uc.logger.Error("webhook event %s rejected: %v", envelope.ID, procErr)
			return &WebhookOutcome{Status: WebhookFailed, EventID: envelope.ID, EventType: envelope.Type}, nil
		}
		return nil, procErr
	}

	if err := uc.webhookEventRepo.MarkProcessed(ctx, envelope.ID); err != nil {
		return nil, fmt.Errorf("failed to mark webhook event processed: %w", err)
	}
	return outcome, nil
}

func (uc *webhookUseCase) dispatch(ctx context.Context, envelope eventEnvelope) (*WebhookOutcome, error) {
	outcome := &WebhookOutcome{Status: WebhookProcessed, EventID: envelope.ID, EventType: envelope.Type}

	var err error
	switch envelope.Type {
	case EventCheckoutCompleted:
		err = uc.handleSessionCompleted(ctx, envelope.Data.Object)
	case EventIntentSucceeded:
		err = uc.handleIntentSucceeded(ctx, envelope.Data.Object)
	case EventIntentFailed:
		err = uc.handleIntentFailed(ctx, envelope.Data.Object)
	default:
		uc.logger.Info("ignoring webhook event type %s", envelope.Type)
		outcome.Status = WebhookIgnored
		return outcome, nil
	}

	if err != nil {
		if errors.Is(err, errUnknownReference) {
			uc.logger.Warn("webhook event %s matches no purchase: %v", envelope.ID, err)
			outcome.Status = WebhookIgnored
			return outcome, nil
		}
		return nil, err
	}
	return outcome, nil
}

func (uc *webhookUseCase) handleSessionCompleted(ctx context.Context, raw json.RawMessage) error {
	var obj struct {
		ID            string `json:"id"`
		PaymentIntent string `json:"payment_intent"`
		AmountTotal   int64  `json:"amount_total"`
		Currency      string `json:"currency"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil || obj.ID == "" {
		return fmt.Errorf("%w: checkout session object", ErrMalformedEvent)
	}

	purchase, err := uc.purchaseRepo.FindBySessionID(ctx, obj.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: session %s", errUnknownReference, obj.ID)
		}
		return fmt.Errorf("failed to load purchase: %w", err)
	}
	return uc.completeFromProcessor(ctx, purchase, obj.AmountTotal, obj.Currency, obj.PaymentIntent)
}

func (uc *webhookUseCase) handleIntentSucceeded(ctx context.Context, raw json.RawMessage) error {
	var obj struct {
		ID             string `json:"id"`
		Amount         int64  `json:"amount"`
		AmountReceived int64  `json:"amount_received"`
		Currency       string `json:"currency"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil || obj.ID == "" {
		return fmt.Errorf("%w: payment intent object", ErrMalformedEvent)
	}

	purchase, err := uc.purchaseRepo.FindByPaymentIntentID(ctx, obj.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// The session event binds the intent; until then the intent id
			// matches nothing and the session event carries the completion.
			return fmt.Errorf("%w: payment intent %s", errUnknownReference, obj.ID)
		}
		return fmt.Errorf("failed to load purchase: %w", err)
	}

	amount := obj.AmountReceived
	if amount == 0 {
		amount = obj.Amount
	}
	return uc.completeFromProcessor(ctx, purchase, amount, obj.Currency, obj.ID)
}

func (uc *webhookUseCase) handleIntentFailed(ctx context.Context, raw json.RawMessage) error {
	var obj struct {
		ID               string `json:"id"`
		LastPaymentError struct {
			Message string `json:"message"`
		} `json:"last_payment_error"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil || obj.ID == "" {
		return fmt.Errorf("%w: payment intent object", ErrMalformedEvent)
	}

	purchase, err := uc.purchaseRepo.FindByPaymentIntentID(ctx, obj.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: payment intent %s", errUnknownReference, obj.ID)
		}
		return fmt.Errorf("failed to load purchase: %w", err)
	}

	failed, err := uc.purchaseRepo.FailPending(ctx, purchase.ID)
	if err != nil {
		return fmt.Errorf("failed to mark purchase failed: %w", err)
	}
	if failed {
		uc.logger.Info("purchase %s failed at processor: %s", purchase.ID, obj.LastPaymentError.Message)
	}
	return nil
}

// completeFromProcessor reconciles one confirmed payment against its
// purchase. The confirmed amount and currency must equal the intent-time
// record exactly. Ledger and campaign funding credits are keyed to the
// purchase and run before the completion flip: a delivery that fails after a
// credit leaves the purchase pending, so the processor redelivers and the
// retry replays the credits as no-ops on its way to the flip.
func (uc *webhookUseCase) completeFromProcessor(ctx context.Context, purchase *models.Purchase, paidCents int64, currency, intentID string) error {
	if purchase.Status == models.PurchaseStatusCompleted {
		return nil
	}

	if paidCents != purchase.ExpectedCents || !strings.EqualFold(currency, purchase.ExpectedCurrency) {
		return fmt.Errorf("%w: purchase %s confirmed %d %s, expected %d %s",
			ErrIntegrityViolation, purchase.ID, paidCents, currency,
			purchase.ExpectedCents, purchase.ExpectedCurrency)
	}

	switch purchase.Method {
	case models.MethodPurchasedUpgrade:
		if err := uc.creditPoints(ctx, purchase, models.SourceEarned); err != nil {
			return err
		}
	case models.MethodCreditPurchase:
		if err := uc.creditPoints(ctx, purchase, models.SourcePurchased); err != nil {
			return err
		}
	case models.MethodTicketPurchase:
		if purchase.CampaignID != nil {
			if err := uc.campaigns.CreditFunding(ctx, purchase.ID, *purchase.CampaignID, paidCents, paidCents, purchase.Units); err != nil {
				return fmt.Errorf("failed to credit campaign funding: %w", err)
			}
		}
	}

	now := time.Now().UTC()
	purchase.PaidCents = paidCents
	purchase.Currency = strings.ToLower(currency)
	purchase.CompletedAt = &now
	if intentID != "" {
		intent := intentID
		purchase.PaymentIntentID = &intent
	}
	if purchase.Method == models.MethodPurchasedUpgrade {
		purchase.AccessStatus = models.AccessStatusGranted
		purchase.AccessCode = uuid.New().String()
	}

	flipped, err := uc.purchaseRepo.Complete(ctx, purchase)
	if err != nil {
		return fmt.Errorf("failed to complete purchase: %w", err)
	}
	if !flipped {
		// Lost the flip to a concurrent delivery. The credits above are
		// replay-keyed, so nothing landed twice.
		return nil
	}
	purchase.Status = models.PurchaseStatusCompleted

	uc.logger.Info("purchase %s completed: %d %s via %s", purchase.ID, paidCents, purchase.Currency, purchase.Method)
	return nil
}

// creditPoints lands the points a purchase carries. The ref is derived from
// the purchase id, so retried deliveries replay instead of crediting twice.
func (uc *webhookUseCase) creditPoints(ctx context.Context, purchase *models.Purchase, source models.PointSource) error {
	if purchase.Points <= 0 {
		return nil
	}
	wallet, err := uc.pointLedger.GetOrCreateWallet(ctx, purchase.UserID, purchase.ClubID)
	if err != nil {
		return fmt.Errorf("failed to load wallet: %w", err)
	}
	meta := map[string]any{"purchase_id": purchase.ID, "method": string(purchase.Method)}
	if purchase.RewardID != nil {
		meta["reward_id"] = *purchase.RewardID
	}
	if _, err := uc.pointLedger.Credit(ctx, wallet.ID, purchase.Points, source, "purchase-"+purchase.ID, meta); err != nil {
		return fmt.Errorf("failed to credit points: %w", err)
	}
	return nil
}
