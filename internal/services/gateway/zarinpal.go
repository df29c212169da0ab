package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const (
	zarinpalStartPayURL = "https://www.zarinpal.com/pg/StartPay/"
	zarinpalVerifyURL   = "https://api.zarinpal.com/pg/v4/payment/verify.json"
)

// zarinpal verification succeeds on code 100 (verified) or 101 (already
// verified). Amounts are submitted in Rial, ten times the Toman price.
type zarinpal struct {
	merchantID string
	verifyURL  string
	client     *http.Client
	logger     *zap.Logger
}

func NewZarinpal(merchantID string, client *http.Client, logger *zap.Logger) Provider {
	return &zarinpal{
		merchantID: strings.TrimSpace(merchantID),
		verifyURL:  zarinpalVerifyURL,
		client:     client,
		logger:     logger,
	}
}

func (z *zarinpal) Name() Name { return Zarinpal }

func (z *zarinpal) Configured() bool { return z.merchantID != "" }

func (z *zarinpal) CreateLink(_ context.Context, _ int64, _ string) (Link, error) {
	authority, err := newToken(12)
	if err != nil {
		return Link{}, err
	}
	return Link{Ref: authority, URL: zarinpalStartPayURL + authority}, nil
}

func (z *zarinpal) Verify(ctx context.Context, ref string, amount int64) bool {
	if !z.Configured() {
		return false
	}

	payload := map[string]any{
		"merchant_id": z.merchantID,
		"authority":   ref,
		"amount":      amount * 10,
	}

	var response struct {
		Data struct {
			Code int `json:"code"`
		} `json:"data"`
	}
	if err := postJSON(ctx, z.client, z.verifyURL, nil, payload, &response); err != nil {
		if z.logger != nil {
			z.logger.Warn("zarinpal verification call failed", zap.Error(err))
		}
		return false
	}

	return response.Data.Code == 100 || response.Data.Code == 101
}

// postJSON runs one JSON POST and decodes the response body. Shared by all
// adapters; the caller interprets provider-specific success codes.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal verify payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("verify request: %w", err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode verify response: %w", err)
	}
	return nil
}
