package gateway

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const (
	idpayPayURL    = "https://idpay.ir/p/"
	idpayVerifyURL = "https://api.idpay.ir/v1.1/payment/verify"
)

// idpay authenticates with an X-API-KEY header; status 100 means paid.
type idpay struct {
	apiKey    string
	verifyURL string
	client    *http.Client
	logger    *zap.Logger
}

func NewIDPay(apiKey string, client *http.Client, logger *zap.Logger) Provider {
	return &idpay{
		apiKey:    strings.TrimSpace(apiKey),
		verifyURL: idpayVerifyURL,
		client:    client,
		logger:    logger,
	}
}

func (i *idpay) Name() Name { return IDPay }

func (i *idpay) Configured() bool { return i.apiKey != "" }

func (i *idpay) CreateLink(_ context.Context, _ int64, _ string) (Link, error) {
	transID, err := newToken(10)
	if err != nil {
		return Link{}, err
	}
	return Link{Ref: transID, URL: idpayPayURL + transID}, nil
}

func (i *idpay) Verify(ctx context.Context, ref string, _ int64) bool {
	if !i.Configured() {
		return false
	}

	headers := map[string]string{"X-API-KEY": i.apiKey}
	payload := map[string]any{"id": ref}

	var response struct {
		Status int `json:"status"`
	}
	if err := postJSON(ctx, i.client, i.verifyURL, headers, payload, &response); err != nil {
		if i.logger != nil {
			i.logger.Warn("idpay verification call failed", zap.Error(err))
		}
		return false
	}

	return response.Status == 100
}
