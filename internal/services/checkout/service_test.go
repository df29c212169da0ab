package checkout

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/zafa0981-prog/telegram-store-bot/internal/catalog"
	pgrepo "github.com/zafa0981-prog/telegram-store-bot/internal/repo/postgres"
	"github.com/zafa0981-prog/telegram-store-bot/internal/services/gateway"
)

type userStoreStub struct {
	nextID int64
	byTG   map[int64]int64
}

func newUserStoreStub() *userStoreStub {
	return &userStoreStub{nextID: 1, byTG: map[int64]int64{}}
}

func (s *userStoreStub) EnsureUser(_ context.Context, telegramID int64, _ string) (int64, error) {
	if telegramID <= 0 {
		return 0, errors.New("invalid telegram id")
	}
	if id, ok := s.byTG[telegramID]; ok {
		return id, nil
	}
	id := s.nextID
	s.nextID++
	s.byTG[telegramID] = id
	return id, nil
}

type purchaseStoreStub struct {
	nextID  int64
	records map[int64]pgrepo.PurchaseRecord
	order   []int64
	clock   time.Time
}

func newPurchaseStoreStub() *purchaseStoreStub {
	return &purchaseStoreStub{
		nextID:  1,
		records: map[int64]pgrepo.PurchaseRecord{},
		clock:   time.Now().UTC(),
	}
}

func (s *purchaseStoreStub) CreatePending(_ context.Context, userID int64, productKey, plan, provider, providerRef string, amount int64) (int64, error) {
	if userID <= 0 || amount <= 0 {
		return 0, errors.New("invalid create payload")
	}
	id := s.nextID
	s.nextID++
	s.clock = s.clock.Add(time.Second)
	s.records[id] = pgrepo.PurchaseRecord{
		ID:          id,
		UserID:      userID,
		ProductKey:  productKey,
		Plan:        plan,
		Provider:    provider,
		ProviderRef: providerRef,
		Amount:      amount,
		CreatedAt:   s.clock,
	}
	s.order = append(s.order, id)
	return id, nil
}

func (s *purchaseStoreStub) FindByID(_ context.Context, purchaseID int64) (pgrepo.PurchaseRecord, error) {
	rec, ok := s.records[purchaseID]
	if !ok {
		return pgrepo.PurchaseRecord{}, pgrepo.ErrPurchaseNotFound
	}
	return rec, nil
}

func (s *purchaseStoreStub) LatestPendingForUser(_ context.Context, userID int64) (pgrepo.PurchaseRecord, error) {
	for i := len(s.order) - 1; i >= 0; i-- {
		rec := s.records[s.order[i]]
		if rec.UserID == userID && !rec.Success {
			return rec, nil
		}
	}
	return pgrepo.PurchaseRecord{}, pgrepo.ErrPurchaseNotFound
}

func (s *purchaseStoreStub) MarkSuccess(_ context.Context, purchaseID int64, proofRef string) error {
	rec, ok := s.records[purchaseID]
	if !ok {
		return pgrepo.ErrPurchaseNotFound
	}
	if rec.Success {
		return nil
	}
	rec.Success = true
	rec.ProviderRef = proofRef
	s.records[purchaseID] = rec
	return nil
}

func (s *purchaseStoreStub) ListAll(_ context.Context, limit int) ([]pgrepo.PurchaseReport, error) {
	if limit <= 0 {
		limit = 50
	}
	var reports []pgrepo.PurchaseReport
	for i := len(s.order) - 1; i >= 0 && len(reports) < limit; i-- {
		reports = append(reports, pgrepo.PurchaseReport{PurchaseRecord: s.records[s.order[i]]})
	}
	return reports, nil
}

type catalogStub struct {
	products map[string]catalog.Product
}

func newCatalogStub() *catalogStub {
	return &catalogStub{products: map[string]catalog.Product{
		"p1": {
			Key:   "p1",
			Title: "Video Course",
			Plans: map[string]catalog.Plan{
				catalog.PlanEconomic: {Name: "Economic", Price: 10000, DownloadLink: "https://drive.example/econ"},
				catalog.PlanGolden:   {Name: "Golden", Price: 25000, DownloadLink: "https://drive.example/gold"},
			},
		},
	}}
}

func (s *catalogStub) List() ([]catalog.Summary, error) {
	var items []catalog.Summary
	for key, product := range s.products {
		items = append(items, catalog.Summary{Key: key, Title: product.Title})
	}
	return items, nil
}

func (s *catalogStub) Load(key string) (catalog.Product, error) {
	product, ok := s.products[key]
	if !ok {
		return catalog.Product{}, catalog.ErrProductNotFound
	}
	return product, nil
}

func (s *catalogStub) setPrice(key, tier string, price int64) {
	product := s.products[key]
	plan := product.Plans[tier]
	plan.Price = price
	product.Plans[tier] = plan
	s.products[key] = product
}

type providerStub struct {
	name         gateway.Name
	configured   bool
	verifyResult bool
	verifiedRefs []string
	linkCount    int
}

func (p *providerStub) Name() gateway.Name { return p.name }
func (p *providerStub) Configured() bool   { return p.configured }

func (p *providerStub) CreateLink(_ context.Context, _ int64, _ string) (gateway.Link, error) {
	p.linkCount++
	ref := fmt.Sprintf("tok-%s-%d", p.name, p.linkCount)
	return gateway.Link{Ref: ref, URL: "https://pay.example/" + ref}, nil
}

func (p *providerStub) Verify(_ context.Context, ref string, _ int64) bool {
	p.verifiedRefs = append(p.verifiedRefs, ref)
	return p.verifyResult
}

type gatewaysStub struct {
	providers map[gateway.Name]gateway.Provider
}

func newGatewaysStub(providers ...*providerStub) *gatewaysStub {
	set := &gatewaysStub{providers: map[gateway.Name]gateway.Provider{}}
	for _, provider := range providers {
		set.providers[provider.name] = provider
	}
	return set
}

func (s *gatewaysStub) ByName(name gateway.Name) (gateway.Provider, bool) {
	provider, ok := s.providers[name]
	return provider, ok
}

func newTestService(users *userStoreStub, purchases *purchaseStoreStub, products *catalogStub, gateways *gatewaysStub) *Service {
	return NewService(Dependencies{
		Users:     users,
		Purchases: purchases,
		Catalog:   products,
		Gateways:  gateways,
	})
}

func TestBeginCheckoutSnapshotsPlanPrice(t *testing.T) {
	users := newUserStoreStub()
	purchases := newPurchaseStoreStub()
	products := newCatalogStub()
	idpay := &providerStub{name: gateway.IDPay}
	svc := newTestService(users, purchases, products, newGatewaysStub(idpay))

	result, err := svc.BeginCheckout(context.Background(), BeginCheckoutInput{
		TelegramID: 100,
		Username:   "u1",
		ProductKey: "p1",
		Plan:       "economic",
		Provider:   gateway.IDPay,
	})
	if err != nil {
		t.Fatalf("begin checkout: %v", err)
	}
	if result.Amount != 10000 {
		t.Fatalf("unexpected amount: %d", result.Amount)
	}
	if result.PayURL == "" || result.PurchaseID == 0 {
		t.Fatalf("incomplete result: %+v", result)
	}

	// a later price change must not touch the recorded amount
	products.setPrice("p1", "economic", 99999)

	record, err := purchases.FindByID(context.Background(), result.PurchaseID)
	if err != nil {
		t.Fatalf("find purchase: %v", err)
	}
	if record.Amount != 10000 {
		t.Fatalf("amount was recomputed: %d", record.Amount)
	}
	if record.Success {
		t.Fatal("new purchase must be pending")
	}
	if record.ProviderRef == "" {
		t.Fatal("provider_ref must start as the link token")
	}
}

func TestBeginCheckoutRejectsUnknownProductAndPlan(t *testing.T) {
	svc := newTestService(newUserStoreStub(), newPurchaseStoreStub(), newCatalogStub(), newGatewaysStub(&providerStub{name: gateway.Zarinpal}))

	_, err := svc.BeginCheckout(context.Background(), BeginCheckoutInput{
		TelegramID: 100, ProductKey: "missing", Plan: "economic", Provider: gateway.Zarinpal,
	})
	if !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}

	_, err = svc.BeginCheckout(context.Background(), BeginCheckoutInput{
		TelegramID: 100, ProductKey: "p1", Plan: "platinum", Provider: gateway.Zarinpal,
	})
	if !errors.Is(err, ErrPlanNotFound) {
		t.Fatalf("expected ErrPlanNotFound, got %v", err)
	}
}

func TestBeginCheckoutRejectsUnknownProvider(t *testing.T) {
	svc := newTestService(newUserStoreStub(), newPurchaseStoreStub(), newCatalogStub(), newGatewaysStub())

	_, err := svc.BeginCheckout(context.Background(), BeginCheckoutInput{
		TelegramID: 100, ProductKey: "p1", Plan: "economic", Provider: gateway.NextPay,
	})
	if !errors.Is(err, gateway.ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestSubmitProofAutoAcceptsWithoutCredentials(t *testing.T) {
	users := newUserStoreStub()
	purchases := newPurchaseStoreStub()
	products := newCatalogStub()
	idpay := &providerStub{name: gateway.IDPay, configured: false}
	svc := newTestService(users, purchases, products, newGatewaysStub(idpay))

	begin, err := svc.BeginCheckout(context.Background(), BeginCheckoutInput{
		TelegramID: 100, Username: "u1", ProductKey: "p1", Plan: "economic", Provider: gateway.IDPay,
	})
	if err != nil {
		t.Fatalf("begin checkout: %v", err)
	}

	result, err := svc.SubmitProof(context.Background(), SubmitProofInput{
		TelegramID: 100,
		Text:       fmt.Sprintf("تراکنش %d abc123", begin.PurchaseID),
	})
	if err != nil {
		t.Fatalf("submit proof: %v", err)
	}
	if !result.Verified {
		t.Fatal("expected auto-accept without credentials")
	}
	if result.DownloadLink != "https://drive.example/econ" {
		t.Fatalf("unexpected download link: %q", result.DownloadLink)
	}
	if len(idpay.verifiedRefs) != 0 {
		t.Fatal("unconfigured provider must not be called")
	}

	record, err := purchases.FindByID(context.Background(), begin.PurchaseID)
	if err != nil {
		t.Fatalf("find purchase: %v", err)
	}
	if !record.Success {
		t.Fatal("purchase should be successful")
	}
	if record.ProviderRef != "abc123" {
		t.Fatalf("provider_ref not overwritten with proof: %q", record.ProviderRef)
	}
}

func TestSubmitProofConfiguredProviderGoverns(t *testing.T) {
	users := newUserStoreStub()
	purchases := newPurchaseStoreStub()
	products := newCatalogStub()
	zarinpal := &providerStub{name: gateway.Zarinpal, configured: true, verifyResult: false}
	svc := newTestService(users, purchases, products, newGatewaysStub(zarinpal))

	begin, err := svc.BeginCheckout(context.Background(), BeginCheckoutInput{
		TelegramID: 100, ProductKey: "p1", Plan: "golden", Provider: gateway.Zarinpal,
	})
	if err != nil {
		t.Fatalf("begin checkout: %v", err)
	}

	result, err := svc.SubmitProof(context.Background(), SubmitProofInput{
		TelegramID: 100, Text: "ref-777",
	})
	if err != nil {
		t.Fatalf("submit proof: %v", err)
	}
	if result.Verified {
		t.Fatal("expected verification failure to keep purchase pending")
	}
	if result.DownloadLink != "" {
		t.Fatalf("no fulfillment payload on failure, got %q", result.DownloadLink)
	}
	if len(zarinpal.verifiedRefs) != 1 || zarinpal.verifiedRefs[0] != "ref-777" {
		t.Fatalf("provider verify not called with proof: %v", zarinpal.verifiedRefs)
	}

	record, _ := purchases.FindByID(context.Background(), begin.PurchaseID)
	if record.Success {
		t.Fatal("purchase must stay pending")
	}

	// the provider changes its mind; the same purchase can then be fulfilled
	zarinpal.verifyResult = true
	result, err = svc.SubmitProof(context.Background(), SubmitProofInput{TelegramID: 100, Text: "ref-777"})
	if err != nil {
		t.Fatalf("resubmit proof: %v", err)
	}
	if !result.Verified || result.DownloadLink == "" {
		t.Fatalf("expected fulfillment on verified resubmission: %+v", result)
	}
}

func TestSubmitProofPerPurchasePolicy(t *testing.T) {
	// zarinpal holds a credential, idpay does not: an idpay purchase still
	// auto-accepts while zarinpal purchases need a real verification.
	users := newUserStoreStub()
	purchases := newPurchaseStoreStub()
	products := newCatalogStub()
	zarinpal := &providerStub{name: gateway.Zarinpal, configured: true, verifyResult: false}
	idpay := &providerStub{name: gateway.IDPay, configured: false}
	svc := newTestService(users, purchases, products, newGatewaysStub(zarinpal, idpay))

	begin, err := svc.BeginCheckout(context.Background(), BeginCheckoutInput{
		TelegramID: 100, ProductKey: "p1", Plan: "economic", Provider: gateway.IDPay,
	})
	if err != nil {
		t.Fatalf("begin checkout: %v", err)
	}

	result, err := svc.SubmitProof(context.Background(), SubmitProofInput{
		TelegramID: 100, Text: fmt.Sprintf("%d proof-1", begin.PurchaseID),
	})
	if err != nil {
		t.Fatalf("submit proof: %v", err)
	}
	if !result.Verified {
		t.Fatal("idpay purchase should auto-accept while idpay lacks a credential")
	}
	if len(zarinpal.verifiedRefs) != 0 {
		t.Fatal("zarinpal must not be consulted for an idpay purchase")
	}
}

func TestSubmitProofResolvesLatestPendingForSubmitterOnly(t *testing.T) {
	users := newUserStoreStub()
	purchases := newPurchaseStoreStub()
	products := newCatalogStub()
	idpay := &providerStub{name: gateway.IDPay}
	svc := newTestService(users, purchases, products, newGatewaysStub(idpay))

	older, err := svc.BeginCheckout(context.Background(), BeginCheckoutInput{
		TelegramID: 100, ProductKey: "p1", Plan: "economic", Provider: gateway.IDPay,
	})
	if err != nil {
		t.Fatalf("begin checkout for user 100: %v", err)
	}
	newer, err := svc.BeginCheckout(context.Background(), BeginCheckoutInput{
		TelegramID: 200, ProductKey: "p1", Plan: "golden", Provider: gateway.IDPay,
	})
	if err != nil {
		t.Fatalf("begin checkout for user 200: %v", err)
	}

	// user 100 submits a bare proof: it applies to their own purchase, not
	// the globally newest pending one
	result, err := svc.SubmitProof(context.Background(), SubmitProofInput{TelegramID: 100, Text: "xyz"})
	if err != nil {
		t.Fatalf("submit proof: %v", err)
	}
	if result.PurchaseID != older.PurchaseID {
		t.Fatalf("resolved purchase %d, want submitter's own %d", result.PurchaseID, older.PurchaseID)
	}

	record, _ := purchases.FindByID(context.Background(), newer.PurchaseID)
	if record.Success {
		t.Fatal("other user's purchase must stay untouched")
	}
}

func TestSubmitProofRejectsForeignPurchaseID(t *testing.T) {
	users := newUserStoreStub()
	purchases := newPurchaseStoreStub()
	products := newCatalogStub()
	idpay := &providerStub{name: gateway.IDPay}
	svc := newTestService(users, purchases, products, newGatewaysStub(idpay))

	begin, err := svc.BeginCheckout(context.Background(), BeginCheckoutInput{
		TelegramID: 100, ProductKey: "p1", Plan: "economic", Provider: gateway.IDPay,
	})
	if err != nil {
		t.Fatalf("begin checkout: %v", err)
	}

	_, err = svc.SubmitProof(context.Background(), SubmitProofInput{
		TelegramID: 200,
		Text:       fmt.Sprintf("تراکنش %d stolen", begin.PurchaseID),
	})
	if !errors.Is(err, ErrPurchaseNotFound) {
		t.Fatalf("expected ErrPurchaseNotFound for foreign purchase, got %v", err)
	}

	record, _ := purchases.FindByID(context.Background(), begin.PurchaseID)
	if record.Success {
		t.Fatal("foreign submission must not mutate the purchase")
	}
}

func TestSubmitProofIsIdempotentOnSuccess(t *testing.T) {
	users := newUserStoreStub()
	purchases := newPurchaseStoreStub()
	products := newCatalogStub()
	idpay := &providerStub{name: gateway.IDPay}
	svc := newTestService(users, purchases, products, newGatewaysStub(idpay))

	begin, err := svc.BeginCheckout(context.Background(), BeginCheckoutInput{
		TelegramID: 100, ProductKey: "p1", Plan: "economic", Provider: gateway.IDPay,
	})
	if err != nil {
		t.Fatalf("begin checkout: %v", err)
	}

	text := fmt.Sprintf("تراکنش %d abc123", begin.PurchaseID)
	if _, err := svc.SubmitProof(context.Background(), SubmitProofInput{TelegramID: 100, Text: text}); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	// second submission with a different proof: no error, state unchanged
	result, err := svc.SubmitProof(context.Background(), SubmitProofInput{
		TelegramID: 100,
		Text:       fmt.Sprintf("تراکنش %d other", begin.PurchaseID),
	})
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if !result.Verified {
		t.Fatal("resubmission on fulfilled purchase should still return the payload")
	}

	record, _ := purchases.FindByID(context.Background(), begin.PurchaseID)
	if !record.Success {
		t.Fatal("success flag must stay set")
	}
	if record.ProviderRef != "abc123" {
		t.Fatalf("provider_ref overwritten more than once: %q", record.ProviderRef)
	}
}

func TestSubmitProofWithoutPendingPurchase(t *testing.T) {
	svc := newTestService(newUserStoreStub(), newPurchaseStoreStub(), newCatalogStub(), newGatewaysStub(&providerStub{name: gateway.IDPay}))

	_, err := svc.SubmitProof(context.Background(), SubmitProofInput{TelegramID: 100, Text: "abc"})
	if !errors.Is(err, ErrPurchaseNotFound) {
		t.Fatalf("expected ErrPurchaseNotFound, got %v", err)
	}
}

type linkResolverStub struct {
	lastRef string
}

func (s *linkResolverStub) Resolve(_ context.Context, ref string) (string, error) {
	s.lastRef = ref
	return "https://signed.example/" + ref, nil
}

func TestSubmitProofResolvesFulfillmentLink(t *testing.T) {
	users := newUserStoreStub()
	purchases := newPurchaseStoreStub()
	products := newCatalogStub()
	idpay := &providerStub{name: gateway.IDPay}
	resolver := &linkResolverStub{}

	svc := NewService(Dependencies{
		Users:     users,
		Purchases: purchases,
		Catalog:   products,
		Gateways:  newGatewaysStub(idpay),
		Links:     resolver,
	})

	begin, err := svc.BeginCheckout(context.Background(), BeginCheckoutInput{
		TelegramID: 100, ProductKey: "p1", Plan: "golden", Provider: gateway.IDPay,
	})
	if err != nil {
		t.Fatalf("begin checkout: %v", err)
	}

	result, err := svc.SubmitProof(context.Background(), SubmitProofInput{
		TelegramID: 100, Text: fmt.Sprintf("%d proof", begin.PurchaseID),
	})
	if err != nil {
		t.Fatalf("submit proof: %v", err)
	}
	if resolver.lastRef != "https://drive.example/gold" {
		t.Fatalf("resolver not called with plan payload: %q", resolver.lastRef)
	}
	if result.DownloadLink != "https://signed.example/https://drive.example/gold" {
		t.Fatalf("unexpected resolved link: %q", result.DownloadLink)
	}
}

func TestBrowseReturnsBothPlanTiers(t *testing.T) {
	svc := newTestService(newUserStoreStub(), newPurchaseStoreStub(), newCatalogStub(), newGatewaysStub())

	product, err := svc.Browse(context.Background(), "p1")
	if err != nil {
		t.Fatalf("browse: %v", err)
	}
	econ, ok := product.Plan(catalog.PlanEconomic)
	if !ok || econ.Price != 10000 {
		t.Fatalf("unexpected economic plan: %+v ok=%v", econ, ok)
	}
	gold, ok := product.Plan(catalog.PlanGolden)
	if !ok || gold.Price != 25000 {
		t.Fatalf("unexpected golden plan: %+v ok=%v", gold, ok)
	}

	if _, err := svc.Browse(context.Background(), "missing"); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestListPurchasesNewestFirst(t *testing.T) {
	users := newUserStoreStub()
	purchases := newPurchaseStoreStub()
	products := newCatalogStub()
	idpay := &providerStub{name: gateway.IDPay}
	svc := newTestService(users, purchases, products, newGatewaysStub(idpay))

	first, _ := svc.BeginCheckout(context.Background(), BeginCheckoutInput{
		TelegramID: 100, ProductKey: "p1", Plan: "economic", Provider: gateway.IDPay,
	})
	second, _ := svc.BeginCheckout(context.Background(), BeginCheckoutInput{
		TelegramID: 100, ProductKey: "p1", Plan: "golden", Provider: gateway.IDPay,
	})

	reports, err := svc.ListPurchases(context.Background(), 10)
	if err != nil {
		t.Fatalf("list purchases: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(reports))
	}
	if reports[0].ID != second.PurchaseID || reports[1].ID != first.PurchaseID {
		t.Fatalf("reports not newest first: %d, %d", reports[0].ID, reports[1].ID)
	}
}
