package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/zafa0981-prog/telegram-store-bot/internal/catalog"
	pgrepo "github.com/zafa0981-prog/telegram-store-bot/internal/repo/postgres"
	"github.com/zafa0981-prog/telegram-store-bot/internal/services/gateway"
)

var (
	ErrValidation       = errors.New("validation error")
	ErrProductNotFound  = errors.New("product not found")
	ErrPlanNotFound     = errors.New("plan not found")
	ErrPurchaseNotFound = errors.New("purchase not found")
)

type UserStore interface {
	EnsureUser(ctx context.Context, telegramID int64, username string) (int64, error)
}

type PurchaseStore interface {
	CreatePending(ctx context.Context, userID int64, productKey, plan, provider, providerRef string, amount int64) (int64, error)
	FindByID(ctx context.Context, purchaseID int64) (pgrepo.PurchaseRecord, error)
	LatestPendingForUser(ctx context.Context, userID int64) (pgrepo.PurchaseRecord, error)
	MarkSuccess(ctx context.Context, purchaseID int64, proofRef string) error
	ListAll(ctx context.Context, limit int) ([]pgrepo.PurchaseReport, error)
}

type Catalog interface {
	List() ([]catalog.Summary, error)
	Load(key string) (catalog.Product, error)
}

type Gateways interface {
	ByName(name gateway.Name) (gateway.Provider, bool)
}

type LinkResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

type Service struct {
	users     UserStore
	purchases PurchaseStore
	catalog   Catalog
	gateways  Gateways
	links     LinkResolver
	logger    *zap.Logger
}

type Dependencies struct {
	Users     UserStore
	Purchases PurchaseStore
	Catalog   Catalog
	Gateways  Gateways
	Links     LinkResolver
	Logger    *zap.Logger
}

type BeginCheckoutInput struct {
	TelegramID int64
	Username   string
	ProductKey string
	Plan       string
	Provider   gateway.Name
}

type BeginCheckoutResult struct {
	PurchaseID   int64
	PayURL       string
	Amount       int64
	PlanName     string
	ProductTitle string
}

type SubmitProofInput struct {
	TelegramID int64
	Username   string
	Text       string
}

type SubmitProofResult struct {
	Verified     bool
	PurchaseID   int64
	Amount       int64
	DownloadLink string
}

func NewService(deps Dependencies) *Service {
	return &Service{
		users:     deps.Users,
		purchases: deps.Purchases,
		catalog:   deps.Catalog,
		gateways:  deps.Gateways,
		links:     deps.Links,
		logger:    deps.Logger,
	}
}

// Browse resolves one product with both plan tiers for display.
func (s *Service) Browse(_ context.Context, productKey string) (catalog.Product, error) {
	if s.catalog == nil {
		return catalog.Product{}, fmt.Errorf("catalog is nil")
	}

	product, err := s.catalog.Load(productKey)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			return catalog.Product{}, ErrProductNotFound
		}
		return catalog.Product{}, err
	}
	return product, nil
}

func (s *Service) ListProducts(_ context.Context) ([]catalog.Summary, error) {
	if s.catalog == nil {
		return nil, fmt.Errorf("catalog is nil")
	}
	return s.catalog.List()
}

// BeginCheckout creates the redirect link and records the pending purchase.
// The amount is snapshotted from the plan price at call time; later catalog
// edits never change it. The ledger is written only after every lookup and
// the link stub succeed.
func (s *Service) BeginCheckout(ctx context.Context, in BeginCheckoutInput) (BeginCheckoutResult, error) {
	if in.TelegramID <= 0 {
		return BeginCheckoutResult{}, ErrValidation
	}
	if s.users == nil || s.purchases == nil || s.catalog == nil || s.gateways == nil {
		return BeginCheckoutResult{}, fmt.Errorf("checkout dependencies are not configured")
	}

	product, err := s.catalog.Load(in.ProductKey)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			return BeginCheckoutResult{}, ErrProductNotFound
		}
		return BeginCheckoutResult{}, err
	}

	planTier := strings.ToLower(strings.TrimSpace(in.Plan))
	plan, ok := product.Plan(planTier)
	if !ok {
		return BeginCheckoutResult{}, ErrPlanNotFound
	}

	provider, ok := s.gateways.ByName(in.Provider)
	if !ok {
		return BeginCheckoutResult{}, fmt.Errorf("%w: %q", gateway.ErrUnknownProvider, in.Provider)
	}

	link, err := provider.CreateLink(ctx, plan.Price, product.Title)
	if err != nil {
		return BeginCheckoutResult{}, fmt.Errorf("create payment link: %w", err)
	}

	userID, err := s.users.EnsureUser(ctx, in.TelegramID, in.Username)
	if err != nil {
		return BeginCheckoutResult{}, err
	}

	purchaseID, err := s.purchases.CreatePending(ctx, userID, product.Key, planTier, string(provider.Name()), link.Ref, plan.Price)
	if err != nil {
		return BeginCheckoutResult{}, err
	}

	if s.logger != nil {
		s.logger.Info("checkout started",
			zap.Int64("purchase_id", purchaseID),
			zap.String("product", product.Key),
			zap.String("plan", planTier),
			zap.String("provider", string(provider.Name())),
			zap.Int64("amount", plan.Price),
		)
	}

	return BeginCheckoutResult{
		PurchaseID:   purchaseID,
		PayURL:       link.URL,
		Amount:       plan.Price,
		PlanName:     plan.Name,
		ProductTitle: product.Title,
	}, nil
}

// SubmitProof resolves the submitted receipt text against the submitter's
// purchases. An unverified proof is the expected negative branch, not an
// error: the purchase stays pending and the caller re-prompts. The success
// flag flips only after verification resolves.
func (s *Service) SubmitProof(ctx context.Context, in SubmitProofInput) (SubmitProofResult, error) {
	if in.TelegramID <= 0 || strings.TrimSpace(in.Text) == "" {
		return SubmitProofResult{}, ErrValidation
	}
	if s.users == nil || s.purchases == nil || s.catalog == nil || s.gateways == nil {
		return SubmitProofResult{}, fmt.Errorf("checkout dependencies are not configured")
	}

	submission := parseProof(in.Text)
	if submission.Proof == "" {
		return SubmitProofResult{}, ErrValidation
	}

	userID, err := s.users.EnsureUser(ctx, in.TelegramID, in.Username)
	if err != nil {
		return SubmitProofResult{}, err
	}

	record, err := s.resolvePurchase(ctx, userID, submission.PurchaseID)
	if err != nil {
		return SubmitProofResult{}, err
	}

	product, err := s.catalog.Load(record.ProductKey)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			return SubmitProofResult{}, ErrProductNotFound
		}
		return SubmitProofResult{}, err
	}
	plan, ok := product.Plan(record.Plan)
	if !ok {
		return SubmitProofResult{}, ErrPlanNotFound
	}

	if !s.verify(ctx, record, submission.Proof) {
		return SubmitProofResult{Verified: false, PurchaseID: record.ID, Amount: record.Amount}, nil
	}

	if err := s.purchases.MarkSuccess(ctx, record.ID, submission.Proof); err != nil {
		return SubmitProofResult{}, err
	}

	download := plan.DownloadLink
	if s.links != nil {
		resolved, err := s.links.Resolve(ctx, plan.DownloadLink)
		if err != nil {
			return SubmitProofResult{}, fmt.Errorf("resolve fulfillment link: %w", err)
		}
		download = resolved
	}

	if s.logger != nil {
		s.logger.Info("purchase fulfilled",
			zap.Int64("purchase_id", record.ID),
			zap.String("product", record.ProductKey),
			zap.String("plan", record.Plan),
		)
	}

	return SubmitProofResult{
		Verified:     true,
		PurchaseID:   record.ID,
		Amount:       record.Amount,
		DownloadLink: download,
	}, nil
}

// ListPurchases is the administrative report, newest first.
func (s *Service) ListPurchases(ctx context.Context, limit int) ([]pgrepo.PurchaseReport, error) {
	if s.purchases == nil {
		return nil, fmt.Errorf("purchase store is nil")
	}
	return s.purchases.ListAll(ctx, limit)
}

func (s *Service) resolvePurchase(ctx context.Context, userID, purchaseID int64) (pgrepo.PurchaseRecord, error) {
	if purchaseID > 0 {
		record, err := s.purchases.FindByID(ctx, purchaseID)
		if err != nil {
			if errors.Is(err, pgrepo.ErrPurchaseNotFound) {
				return pgrepo.PurchaseRecord{}, ErrPurchaseNotFound
			}
			return pgrepo.PurchaseRecord{}, err
		}
		// purchases belong to their buyer; other users cannot claim them
		if record.UserID != userID {
			return pgrepo.PurchaseRecord{}, ErrPurchaseNotFound
		}
		return record, nil
	}

	record, err := s.purchases.LatestPendingForUser(ctx, userID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrPurchaseNotFound) {
			return pgrepo.PurchaseRecord{}, ErrPurchaseNotFound
		}
		return pgrepo.PurchaseRecord{}, err
	}
	return record, nil
}

// verify applies the degraded-trust policy: a provider without a credential
// auto-accepts its own purchases; a configured provider's answer is final.
// Policy is evaluated per call, never cached.
func (s *Service) verify(ctx context.Context, record pgrepo.PurchaseRecord, proof string) bool {
	name, err := gateway.ParseName(record.Provider)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("purchase carries unknown provider, accepting proof unverified",
				zap.Int64("purchase_id", record.ID),
				zap.String("provider", record.Provider),
			)
		}
		return true
	}

	provider, ok := s.gateways.ByName(name)
	if !ok || !provider.Configured() {
		return true
	}

	return provider.Verify(ctx, proof, record.Amount)
}
