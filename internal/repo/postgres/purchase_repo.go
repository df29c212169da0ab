package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrPurchaseNotFound = errors.New("purchase not found")

type PurchaseRepo struct {
	pool *pgxpool.Pool
}

type PurchaseRecord struct {
	ID          int64
	UserID      int64
	ProductKey  string
	Plan        string
	Provider    string
	ProviderRef string
	Amount      int64
	Success     bool
	CreatedAt   time.Time
}

// PurchaseReport is one row of the administrative listing, joined with the
// buyer's chat identity.
type PurchaseReport struct {
	PurchaseRecord
	TelegramID int64
	Username   string
}

func NewPurchaseRepo(pool *pgxpool.Pool) *PurchaseRepo {
	return &PurchaseRepo{pool: pool}
}

// CreatePending records a new purchase with the amount snapshot taken by the
// caller. The provider_ref starts as the link-creation token.
func (r *PurchaseRepo) CreatePending(ctx context.Context, userID int64, productKey, plan, provider, providerRef string, amount int64) (int64, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}
	if userID <= 0 || strings.TrimSpace(productKey) == "" || strings.TrimSpace(plan) == "" {
		return 0, fmt.Errorf("invalid purchase create payload")
	}
	if strings.TrimSpace(provider) == "" || amount <= 0 {
		return 0, fmt.Errorf("invalid purchase provider or amount")
	}

	var id int64
	err := r.pool.QueryRow(ctx, `
INSERT INTO purchases (user_id, product_key, plan, provider, provider_ref, amount, success, created_at)
VALUES ($1, $2, $3, $4, $5, $6, FALSE, NOW())
RETURNING id
`, userID, productKey, plan, strings.ToLower(strings.TrimSpace(provider)), providerRef, amount).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create pending purchase: %w", err)
	}

	return id, nil
}

func (r *PurchaseRepo) FindByID(ctx context.Context, purchaseID int64) (PurchaseRecord, error) {
	if r.pool == nil {
		return PurchaseRecord{}, fmt.Errorf("postgres pool is nil")
	}
	if purchaseID <= 0 {
		return PurchaseRecord{}, fmt.Errorf("invalid purchase id")
	}

	record, err := scanPurchase(r.pool.QueryRow(ctx, `
SELECT id, user_id, product_key, plan, provider, provider_ref, amount, success, created_at
FROM purchases
WHERE id = $1
LIMIT 1
`, purchaseID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseRecord{}, ErrPurchaseNotFound
		}
		return PurchaseRecord{}, fmt.Errorf("find purchase by id: %w", err)
	}

	return record, nil
}

// LatestPendingForUser returns the most recently created unfinished purchase
// of one user. Lookup is scoped to the submitter, never global.
func (r *PurchaseRepo) LatestPendingForUser(ctx context.Context, userID int64) (PurchaseRecord, error) {
	if r.pool == nil {
		return PurchaseRecord{}, fmt.Errorf("postgres pool is nil")
	}
	if userID <= 0 {
		return PurchaseRecord{}, fmt.Errorf("invalid user id")
	}

	record, err := scanPurchase(r.pool.QueryRow(ctx, `
SELECT id, user_id, product_key, plan, provider, provider_ref, amount, success, created_at
FROM purchases
WHERE user_id = $1
  AND NOT success
ORDER BY created_at DESC, id DESC
LIMIT 1
`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseRecord{}, ErrPurchaseNotFound
		}
		return PurchaseRecord{}, fmt.Errorf("find latest pending purchase: %w", err)
	}

	return record, nil
}

// MarkSuccess flips success to true and overwrites provider_ref with the
// submitted proof. Calling it on an already successful purchase is a no-op;
// the transition is monotonic.
func (r *PurchaseRepo) MarkSuccess(ctx context.Context, purchaseID int64, proofRef string) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if purchaseID <= 0 {
		return fmt.Errorf("invalid purchase id")
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE purchases
SET success = TRUE,
	provider_ref = $2
WHERE id = $1
  AND NOT success
`, purchaseID, proofRef)
	if err != nil {
		return fmt.Errorf("mark purchase success: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// no row flipped: either already successful (fine) or absent
	if _, err := r.FindByID(ctx, purchaseID); err != nil {
		return err
	}
	return nil
}

func (r *PurchaseRepo) ListAll(ctx context.Context, limit int) ([]PurchaseReport, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx, `
SELECT p.id, p.user_id, p.product_key, p.plan, p.provider, p.provider_ref, p.amount, p.success, p.created_at,
	COALESCE(u.telegram_id, 0), COALESCE(u.username, '')
FROM purchases p
LEFT JOIN users u ON p.user_id = u.id
ORDER BY p.created_at DESC, p.id DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	defer rows.Close()

	var reports []PurchaseReport
	for rows.Next() {
		var report PurchaseReport
		if err := rows.Scan(
			&report.ID,
			&report.UserID,
			&report.ProductKey,
			&report.Plan,
			&report.Provider,
			&report.ProviderRef,
			&report.Amount,
			&report.Success,
			&report.CreatedAt,
			&report.TelegramID,
			&report.Username,
		); err != nil {
			return nil, fmt.Errorf("scan purchase report: %w", err)
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate purchase reports: %w", err)
	}

	return reports, nil
}

func scanPurchase(row pgx.Row) (PurchaseRecord, error) {
	var record PurchaseRecord
	if err := row.Scan(
		&record.ID,
		&record.UserID,
		&record.ProductKey,
		&record.Plan,
		&record.Provider,
		&record.ProviderRef,
		&record.Amount,
		&record.Success,
		&record.CreatedAt,
	); err != nil {
		return PurchaseRecord{}, err
	}
	return record, nil
}
