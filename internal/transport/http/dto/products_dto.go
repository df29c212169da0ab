package dto

type ProductPlanResponse struct {
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

type ProductResponse struct {
	Key         string                         `json:"key"`
	Title       string                         `json:"title"`
	Description string                         `json:"description,omitempty"`
	Plans       map[string]ProductPlanResponse `json:"plans"`
}

type ProductListResponse struct {
	Products []ProductSummaryResponse `json:"products"`
}

type ProductSummaryResponse struct {
	Key   string `json:"key"`
	Title string `json:"title"`
}
