package dto

import "time"

type PurchaseReportResponse struct {
	ID          int64     `json:"id"`
	TelegramID  int64     `json:"telegram_id"`
	Username    string    `json:"username,omitempty"`
	ProductKey  string    `json:"product_key"`
	Plan        string    `json:"plan"`
	Provider    string    `json:"provider"`
	ProviderRef string    `json:"provider_ref,omitempty"`
	Amount      int64     `json:"amount"`
	Success     bool      `json:"success"`
	CreatedAt   time.Time `json:"created_at"`
}

type PurchaseListResponse struct {
	Purchases []PurchaseReportResponse `json:"purchases"`
}
