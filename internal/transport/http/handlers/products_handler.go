package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	checkoutsvc "github.com/zafa0981-prog/telegram-store-bot/internal/services/checkout"
	"github.com/zafa0981-prog/telegram-store-bot/internal/transport/http/dto"
	httperrors "github.com/zafa0981-prog/telegram-store-bot/internal/transport/http/errors"
)

type ProductsHandler struct {
	checkout *checkoutsvc.Service
}

func NewProductsHandler(checkout *checkoutsvc.Service) *ProductsHandler {
	return &ProductsHandler{checkout: checkout}
}

func (h *ProductsHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.checkout == nil {
		writeInternal(w, "CHECKOUT_SERVICE_UNAVAILABLE", "checkout service is unavailable")
		return
	}

	summaries, err := h.checkout.ListProducts(r.Context())
	if err != nil {
		writeInternal(w, "INTERNAL_ERROR", "failed to list products")
		return
	}

	products := make([]dto.ProductSummaryResponse, 0, len(summaries))
	for _, summary := range summaries {
		products = append(products, dto.ProductSummaryResponse{Key: summary.Key, Title: summary.Title})
	}

	httperrors.Write(w, http.StatusOK, dto.ProductListResponse{Products: products})
}

func (h *ProductsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.checkout == nil {
		writeInternal(w, "CHECKOUT_SERVICE_UNAVAILABLE", "checkout service is unavailable")
		return
	}

	product, err := h.checkout.Browse(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		if errors.Is(err, checkoutsvc.ErrProductNotFound) {
			writeNotFound(w, "PRODUCT_NOT_FOUND", "product not found")
			return
		}
		writeInternal(w, "INTERNAL_ERROR", "failed to load product")
		return
	}

	plans := make(map[string]dto.ProductPlanResponse, len(product.Plans))
	for tier, plan := range product.Plans {
		plans[tier] = dto.ProductPlanResponse{Name: plan.Name, Price: plan.Price}
	}

	httperrors.Write(w, http.StatusOK, dto.ProductResponse{
		Key:         product.Key,
		Title:       product.Title,
		Description: product.Description,
		Plans:       plans,
	})
}
