package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"superfan/pkg/config"
	"superfan/pkg/logger"
)

// CheckoutSession is the processor's handle for a hosted payment page.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type Refund struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type CheckoutParams struct {
	AmountCents int64
	Currency    string
	Reference   string
	Description string
	SuccessURL  string
	CancelURL   string
}

type Client interface {
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
	CreateRefund(ctx context.Context, paymentIntentID string, amountCents int64, idempotencyKey string) (*Refund, error)
}

type restClient struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
	logger     *logger.Logger
}

func NewClient(cfg *config.Config, log *logger.Logger) Client {
	return &restClient{
		baseURL:    strings.TrimRight(cfg.ProcessorBaseURL, "/"),
		secretKey:  cfg.ProcessorSecretKey,
		httpClient: &http.Client{Timeout: cfg.ProcessorTimeout},
		logger:     log,
	}
}

func (c *restClient) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(params.AmountCents, 10))
	form.Set("currency", params.Currency)
	form.Set("client_reference_id", params.Reference)
	form.Set("description", params.Description)
	form.Set("success_url", params.SuccessURL)
	form.Set("cancel_url", params.CancelURL)

	var session CheckoutSession
	if err := c.post(ctx, "/v1/checkout/sessions", form, "", &session); err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}
	return &session, nil
}

// CreateRefund refunds a captured payment. The idempotency key makes retried
// sweeps safe; the processor returns the original refund for a repeated key.
func (c *restClient) CreateRefund(ctx context.Context, paymentIntentID string, amountCents int64, idempotencyKey string) (*Refund, error) {
	form := url.Values{}
	form.Set("payment_intent", paymentIntentID)
	form.Set("amount", strconv.FormatInt(amountCents, 10))

	var refund Refund
	if err := c.post(ctx, "/v1/refunds", form, idempotencyKey, &refund); err != nil {
		return nil, fmt.Errorf("failed to create refund: %w", err)
	}
	return &refund, nil
}

func (c *restClient) post(ctx context.Context, path string, form url.Values, idempotencyKey string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.secretKey, "")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("processor returned %d: %s", resp.StatusCode, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
