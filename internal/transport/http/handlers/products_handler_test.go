package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zafa0981-prog/telegram-store-bot/internal/catalog"
	checkoutsvc "github.com/zafa0981-prog/telegram-store-bot/internal/services/checkout"
)

func newCatalogDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	definition := `{
		"title": "Video Course",
		"description": "Lessons",
		"plans": {
			"economic": {"name": "Economic", "price": 10000, "download_link": "https://drive.example/econ"},
			"golden": {"name": "Golden", "price": 25000, "download_link": "https://drive.example/gold"}
		}
	}`
	productDir := filepath.Join(dir, "course")
	if err := os.MkdirAll(productDir, 0o755); err != nil {
		t.Fatalf("mkdir product dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(productDir, "product.json"), []byte(definition), 0o644); err != nil {
		t.Fatalf("write definition: %v", err)
	}
	return dir
}

func newProductsRouter(t *testing.T) http.Handler {
	t.Helper()
	svc := checkoutsvc.NewService(checkoutsvc.Dependencies{
		Catalog: catalog.New(newCatalogDir(t)),
	})
	h := NewProductsHandler(svc)

	r := chi.NewRouter()
	r.Get("/api/v1/products", h.List)
	r.Get("/api/v1/products/{key}", h.Get)
	return r
}

func TestProductsHandlerList(t *testing.T) {
	router := newProductsRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/products", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusOK)
	}
	var resp struct {
		Products []struct {
			Key   string `json:"key"`
			Title string `json:"title"`
		} `json:"products"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Products) != 1 || resp.Products[0].Key != "course" || resp.Products[0].Title != "Video Course" {
		t.Fatalf("unexpected products: %+v", resp.Products)
	}
}

func TestProductsHandlerGet(t *testing.T) {
	router := newProductsRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/products/course", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusOK)
	}
	var resp struct {
		Key   string `json:"key"`
		Plans map[string]struct {
			Name  string `json:"name"`
			Price int64  `json:"price"`
		} `json:"plans"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Key != "course" {
		t.Fatalf("unexpected key: %q", resp.Key)
	}
	if resp.Plans["economic"].Price != 10000 || resp.Plans["golden"].Price != 25000 {
		t.Fatalf("unexpected plans: %+v", resp.Plans)
	}
}

func TestProductsHandlerGetUnknownKey(t *testing.T) {
	router := newProductsRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/products/missing", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusNotFound)
	}
}
