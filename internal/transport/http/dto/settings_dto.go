package dto

type GatewaySettingResponse struct {
	DefaultGateway string `json:"default_gateway"`
}

type GatewaySettingRequest struct {
	DefaultGateway string `json:"default_gateway"`
}
