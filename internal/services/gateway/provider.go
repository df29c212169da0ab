package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/zafa0981-prog/telegram-store-bot/internal/config"
)

var ErrUnknownProvider = errors.New("unknown payment provider")

// Name is the closed set of supported payment providers.
type Name string

const (
	Zarinpal Name = "zarinpal"
	IDPay    Name = "idpay"
	NextPay  Name = "nextpay"
)

func Names() []Name {
	return []Name{Zarinpal, IDPay, NextPay}
}

func ParseName(raw string) (Name, error) {
	switch Name(strings.ToLower(strings.TrimSpace(raw))) {
	case Zarinpal:
		return Zarinpal, nil
	case IDPay:
		return IDPay, nil
	case NextPay:
		return NextPay, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, raw)
	}
}

// Link is the outcome of local redirect-link creation: an opaque reference
// unique to this call and the URL the buyer follows.
type Link struct {
	Ref string
	URL string
}

// Provider is the capability every gateway adapter exposes. CreateLink is a
// local stub and never talks to the provider; Verify calls the provider's
// confirmation endpoint and coerces every failure to false.
type Provider interface {
	Name() Name
	Configured() bool
	CreateLink(ctx context.Context, amount int64, description string) (Link, error)
	Verify(ctx context.Context, ref string, amount int64) bool
}

// Set holds one adapter per provider name.
type Set struct {
	providers map[Name]Provider
}

func NewSet(cfg config.PaymentsConfig, client *http.Client, logger *zap.Logger) *Set {
	return &Set{
		providers: map[Name]Provider{
			Zarinpal: NewZarinpal(cfg.ZarinpalMerchantID, client, logger),
			IDPay:    NewIDPay(cfg.IDPayAPIKey, client, logger),
			NextPay:  NewNextPay(cfg.NextPayAPIKey, client, logger),
		},
	}
}

func (s *Set) ByName(name Name) (Provider, bool) {
	if s == nil {
		return nil, false
	}
	provider, ok := s.providers[name]
	return provider, ok
}

// AnyConfigured reports whether at least one provider holds a credential.
func (s *Set) AnyConfigured() bool {
	if s == nil {
		return false
	}
	for _, provider := range s.providers {
		if provider.Configured() {
			return true
		}
	}
	return false
}
