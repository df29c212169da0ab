package handlers

import (
	"net/http"

	"github.com/zafa0981-prog/telegram-store-bot/internal/services/gateway"
	"github.com/zafa0981-prog/telegram-store-bot/internal/transport/http/dto"
	httperrors "github.com/zafa0981-prog/telegram-store-bot/internal/transport/http/errors"
)

// GatewayStore is the slice of the config store the settings endpoints need.
type GatewayStore interface {
	DefaultGateway() string
	SetDefaultGateway(name string) error
}

type SettingsHandler struct {
	store GatewayStore
}

func NewSettingsHandler(store GatewayStore) *SettingsHandler {
	return &SettingsHandler{store: store}
}

func (h *SettingsHandler) GetGateway(w http.ResponseWriter, _ *http.Request) {
	if h.store == nil {
		writeInternal(w, "CONFIG_STORE_UNAVAILABLE", "config store is unavailable")
		return
	}

	httperrors.Write(w, http.StatusOK, dto.GatewaySettingResponse{
		DefaultGateway: h.store.DefaultGateway(),
	})
}

func (h *SettingsHandler) PutGateway(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeInternal(w, "CONFIG_STORE_UNAVAILABLE", "config store is unavailable")
		return
	}

	var req dto.GatewaySettingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}

	name, err := gateway.ParseName(req.DefaultGateway)
	if err != nil {
		writeBadRequest(w, "UNKNOWN_GATEWAY", "default_gateway must be one of zarinpal, idpay, nextpay")
		return
	}

	if err := h.store.SetDefaultGateway(string(name)); err != nil {
		writeInternal(w, "INTERNAL_ERROR", "failed to persist default gateway")
		return
	}

	httperrors.Write(w, http.StatusOK, dto.GatewaySettingResponse{
		DefaultGateway: string(name),
	})
}
