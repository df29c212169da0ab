package apiapp

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zafa0981-prog/telegram-store-bot/internal/config"
	checkoutsvc "github.com/zafa0981-prog/telegram-store-bot/internal/services/checkout"
	"github.com/zafa0981-prog/telegram-store-bot/internal/transport/http/handlers"
)

type Dependencies struct {
	CheckoutService *checkoutsvc.Service
	ConfigStore     *config.Store
	Logger          *zap.Logger
	Config          config.Config
}

func RegisterRoutes(r chi.Router, deps Dependencies) {
	healthHandler := handlers.NewHealthHandler()
	productsHandler := handlers.NewProductsHandler(deps.CheckoutService)
	purchasesHandler := handlers.NewPurchasesHandler(deps.CheckoutService)
	settingsHandler := handlers.NewSettingsHandler(gatewayStore(deps.ConfigStore))
	adminMW := AdminAuthMiddleware(deps.Config.Admin, deps.Logger)

	r.Get("/healthz", healthHandler.Get)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/products", productsHandler.List)
		r.Get("/products/{key}", productsHandler.Get)
		r.Route("/purchases", func(r chi.Router) {
			r.Use(adminMW)
			r.Get("/", purchasesHandler.List)
		})
		r.Route("/settings/gateway", func(r chi.Router) {
			r.Use(adminMW)
			r.Get("/", settingsHandler.GetGateway)
			r.Put("/", settingsHandler.PutGateway)
		})
	})
}

// gatewayStore keeps the nil check out of the handler: a nil *config.Store
// must surface as a nil interface, not a typed nil.
func gatewayStore(store *config.Store) handlers.GatewayStore {
	if store == nil {
		return nil
	}
	return store
}
