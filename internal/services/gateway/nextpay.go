package gateway

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const (
	nextpayPayURL    = "https://nextpay.org/nx/gateway/payment/"
	nextpayVerifyURL = "https://nextpay.org/nx/gateway/verify"
)

// nextpay carries its api key in the request body; status 1 means paid.
type nextpay struct {
	apiKey    string
	verifyURL string
	client    *http.Client
	logger    *zap.Logger
}

func NewNextPay(apiKey string, client *http.Client, logger *zap.Logger) Provider {
	return &nextpay{
		apiKey:    strings.TrimSpace(apiKey),
		verifyURL: nextpayVerifyURL,
		client:    client,
		logger:    logger,
	}
}

func (n *nextpay) Name() Name { return NextPay }

func (n *nextpay) Configured() bool { return n.apiKey != "" }

func (n *nextpay) CreateLink(_ context.Context, _ int64, _ string) (Link, error) {
	token, err := newToken(10)
	if err != nil {
		return Link{}, err
	}
	return Link{Ref: token, URL: nextpayPayURL + token}, nil
}

func (n *nextpay) Verify(ctx context.Context, ref string, _ int64) bool {
	if !n.Configured() {
		return false
	}

	payload := map[string]any{
		"token":   ref,
		"api_key": n.apiKey,
	}

	var response struct {
		Status int `json:"status"`
	}
	if err := postJSON(ctx, n.client, n.verifyURL, nil, payload, &response); err != nil {
		if n.logger != nil {
			n.logger.Warn("nextpay verification call failed", zap.Error(err))
		}
		return false
	}

	return response.Status == 1
}
