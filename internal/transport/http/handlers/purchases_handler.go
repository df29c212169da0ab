package handlers

import (
	"net/http"
	"strconv"

	checkoutsvc "github.com/zafa0981-prog/telegram-store-bot/internal/services/checkout"
	"github.com/zafa0981-prog/telegram-store-bot/internal/transport/http/dto"
	httperrors "github.com/zafa0981-prog/telegram-store-bot/internal/transport/http/errors"
)

type PurchasesHandler struct {
	checkout *checkoutsvc.Service
}

func NewPurchasesHandler(checkout *checkoutsvc.Service) *PurchasesHandler {
	return &PurchasesHandler{checkout: checkout}
}

func (h *PurchasesHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.checkout == nil {
		writeInternal(w, "CHECKOUT_SERVICE_UNAVAILABLE", "checkout service is unavailable")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeBadRequest(w, "VALIDATION_ERROR", "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	reports, err := h.checkout.ListPurchases(r.Context(), limit)
	if err != nil {
		writeInternal(w, "INTERNAL_ERROR", "failed to list purchases")
		return
	}

	purchases := make([]dto.PurchaseReportResponse, 0, len(reports))
	for _, report := range reports {
		purchases = append(purchases, dto.PurchaseReportResponse{
			ID:          report.ID,
			TelegramID:  report.TelegramID,
			Username:    report.Username,
			ProductKey:  report.ProductKey,
			Plan:        report.Plan,
			Provider:    report.Provider,
			ProviderRef: report.ProviderRef,
			Amount:      report.Amount,
			Success:     report.Success,
			CreatedAt:   report.CreatedAt,
		})
	}

	httperrors.Write(w, http.StatusOK, dto.PurchaseListResponse{Purchases: purchases})
}
