package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/utjfc/reg-agent/internal/retry"
)

// SMS is the C2 SMS vendor contract (§4.2): send(to, body) -> message_sid.
type SMS interface {
	Send(ctx context.Context, to, body string) (string, error)
}

// TwilioSMS sends SMS via Twilio's REST API using HTTP Basic Auth and a
// form-encoded body, the same shape this repo's voice adapter would have
// used for Twilio Voice.
type TwilioSMS struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	client     *http.Client
}

// TwilioSMSConfig configures a TwilioSMS adapter.
type TwilioSMSConfig struct {
	AccountSID string
	AuthToken  string
	From       string
}

// NewTwilioSMS builds a TwilioSMS adapter.
func NewTwilioSMS(cfg TwilioSMSConfig) (*TwilioSMS, error) {
	if cfg.AccountSID == "" {
		return nil, fmt.Errorf("adapters: twilio account SID is required")
	}
	if cfg.AuthToken == "" {
		return nil, fmt.Errorf("adapters: twilio auth token is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("adapters: twilio from number is required")
	}
	return &TwilioSMS{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		from:       cfg.From,
		baseURL:    fmt.Sprintf("https://api.twilio.com/2010-04-01/Accounts/%s", cfg.AccountSID),
		client:     &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// Send dispatches an SMS, retrying transient failures up to 3 times with
// exponential backoff starting at 1s (§4.2).
func (t *TwilioSMS) Send(ctx context.Context, to, body string) (string, error) {
	result, err := retry.RetryWithBackoff(ctx, retry.SMSSendPolicy(), 4, func(attempt int) (string, error) {
		return t.sendOnce(ctx, to, body)
	})
	if err != nil {
		return "", fmt.Errorf("adapters: send sms: %w", err)
	}
	return result.Value, nil
}

func (t *TwilioSMS) sendOnce(ctx context.Context, to, body string) (string, error) {
	params := url.Values{
		"To":   {to},
		"From": {t.from},
		"Body": {body},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/Messages.json", strings.NewReader(params.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(t.accountSID, t.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("twilio API error (%d): %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		SID string `json:"sid"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("parse twilio response: %w", err)
	}
	return result.SID, nil
}
