package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/utjfc/reg-agent/pkg/models"
)

// Payment is the C2 Direct Debit vendor contract (§4.2).
type Payment interface {
	CreateBillingRequest(ctx context.Context, record *models.RegistrationRecord) (string, error)
	ActivateSubscription(ctx context.Context, billingRequestID string, dayOfMonth int) error
}

// PaymentProvider talks to a GoCardless-style Direct Debit API over plain
// REST with bearer-token auth, following the same hand-rolled HTTP client
// shape used for this repo's other REST vendors rather than pulling in a
// dedicated SDK.
type PaymentProvider struct {
	accessToken string
	baseURL     string
	client      *http.Client
}

// PaymentConfig configures a PaymentProvider.
type PaymentConfig struct {
	AccessToken string
	BaseURL     string
}

// NewPaymentProvider builds a PaymentProvider.
func NewPaymentProvider(cfg PaymentConfig) (*PaymentProvider, error) {
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("adapters: payment access token is required")
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.gocardless.com"
	}
	return &PaymentProvider{
		accessToken: cfg.AccessToken,
		baseURL:     baseURL,
		client:      &http.Client{Timeout: 20 * time.Second},
	}, nil
}

// CreateBillingRequest submits a billing request for a completed
// registration snapshot and returns its ID (§4.2).
func (p *PaymentProvider) CreateBillingRequest(ctx context.Context, record *models.RegistrationRecord) (string, error) {
	body := map[string]any{
		"billing_requests": map[string]any{
			"metadata": map[string]string{
				"team":       record.Team,
				"age_group":  record.AgeGroup,
				"season":     record.Season,
				"child_name": record.ChildFirstName + " " + record.ChildLastName,
			},
			"mandate_request": map[string]any{"scheme": "bacs"},
		},
	}

	var result struct {
		BillingRequests struct {
			ID string `json:"id"`
		} `json:"billing_requests"`
	}
	if err := p.apiRequest(ctx, http.MethodPost, "/billing_requests", body, &result); err != nil {
		return "", fmt.Errorf("adapters: create billing request: %w", err)
	}
	return result.BillingRequests.ID, nil
}

// ActivateSubscription starts the recurring subscription against an
// already-fulfilled billing request. dayOfMonth must already have been
// normalised via models.NormalizePaymentDay (§4.2, §8).
func (p *PaymentProvider) ActivateSubscription(ctx context.Context, billingRequestID string, dayOfMonth int) error {
	body := map[string]any{
		"subscriptions": map[string]any{
			"amount":        3500,
			"currency":      "GBP",
			"interval_unit": "monthly",
			"day_of_month":  dayOfMonth,
			"links":         map[string]string{"billing_request": billingRequestID},
		},
	}
	if err := p.apiRequest(ctx, http.MethodPost, "/subscriptions", body, nil); err != nil {
		return fmt.Errorf("adapters: activate subscription: %w", err)
	}
	return nil
}

func (p *PaymentProvider) apiRequest(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("GoCardless-Version", "2015-07-06")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("payment API error (%d): %s", resp.StatusCode, string(respBody))
	}
	if out != nil {
		return json.Unmarshal(respBody, out)
	}
	return nil
}
