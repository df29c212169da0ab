package botapp

import (
	"path/filepath"
	"testing"

	"github.com/zafa0981-prog/telegram-store-bot/internal/config"
	gatewaysvc "github.com/zafa0981-prog/telegram-store-bot/internal/services/gateway"
)

func TestHasExplicitPurchaseID(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"تراکنش 42 abc123", true},
		{"42 abc123", true},
		{"abc123", false},
		{"receipt abc123", false},
		{"تراکنش zero abc123", false},
		{"0 abc123", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := hasExplicitPurchaseID(tc.text); got != tc.want {
			t.Fatalf("hasExplicitPurchaseID(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestProviderOrderPutsDefaultFirst(t *testing.T) {
	cfg := config.Default()
	cfg.Payments.DefaultGateway = "nextpay"
	app := &App{
		cfg:   cfg,
		store: config.NewStore(filepath.Join(t.TempDir(), "config.yaml"), cfg),
	}

	order := app.providerOrder()
	if len(order) != 3 {
		t.Fatalf("expected 3 providers, got %d", len(order))
	}
	if order[0] != gatewaysvc.NextPay {
		t.Fatalf("default gateway not first: %v", order)
	}
	seen := map[gatewaysvc.Name]bool{}
	for _, name := range order {
		if seen[name] {
			t.Fatalf("duplicate provider in order: %v", order)
		}
		seen[name] = true
	}
}

func TestProviderOrderFallsBackOnUnknownDefault(t *testing.T) {
	cfg := config.Default()
	cfg.Payments.DefaultGateway = "paypal"
	app := &App{
		cfg:   cfg,
		store: config.NewStore(filepath.Join(t.TempDir(), "config.yaml"), cfg),
	}

	order := app.providerOrder()
	if len(order) != 3 {
		t.Fatalf("expected 3 providers, got %d", len(order))
	}
	if order[0] != gatewaysvc.Zarinpal {
		t.Fatalf("expected canonical order, got %v", order)
	}
}
