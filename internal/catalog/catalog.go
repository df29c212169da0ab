package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var ErrProductNotFound = errors.New("product not found")

const (
	PlanEconomic = "economic"
	PlanGolden   = "golden"

	definitionFile = "product.json"
)

type Plan struct {
	Name         string `json:"name"`
	Price        int64  `json:"price"`
	DownloadLink string `json:"download_link"`
}

type Product struct {
	Key         string          `json:"-"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	CoverImage  string          `json:"cover_image"`
	Plans       map[string]Plan `json:"plans"`
}

type Summary struct {
	Key   string
	Title string
}

// Catalog indexes a directory of product definitions. It holds no cache:
// every call re-reads storage, so edits show up without a restart.
type Catalog struct {
	dir string
}

func New(dir string) *Catalog {
	return &Catalog{dir: dir}
}

// List returns (key, title) for every product whose definition parses.
// Broken entries are skipped, not surfaced.
func (c *Catalog) List() ([]Summary, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("read catalog dir: %w", err)
	}

	var items []Summary
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		product, err := c.Load(entry.Name())
		if err != nil {
			continue
		}
		items = append(items, Summary{Key: product.Key, Title: product.Title})
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })
	return items, nil
}

// Load reads one product definition. Any missing or malformed definition is
// reported as ErrProductNotFound.
func (c *Catalog) Load(key string) (Product, error) {
	key = strings.TrimSpace(key)
	if key == "" || key != filepath.Base(key) || strings.HasPrefix(key, ".") {
		return Product{}, ErrProductNotFound
	}

	data, err := os.ReadFile(filepath.Join(c.dir, key, definitionFile))
	if err != nil {
		return Product{}, ErrProductNotFound
	}

	var product Product
	if err := json.Unmarshal(data, &product); err != nil {
		return Product{}, ErrProductNotFound
	}
	product.Key = key

	if err := validate(product); err != nil {
		return Product{}, ErrProductNotFound
	}

	return product, nil
}

// Plan resolves one tier of a product.
func (p Product) Plan(name string) (Plan, bool) {
	plan, ok := p.Plans[name]
	return plan, ok
}

// CoverPath is the on-disk location of the product's cover image.
func (c *Catalog) CoverPath(product Product) string {
	if strings.TrimSpace(product.CoverImage) == "" {
		return ""
	}
	return filepath.Join(c.dir, product.Key, product.CoverImage)
}

func validate(product Product) error {
	if strings.TrimSpace(product.Title) == "" {
		return fmt.Errorf("product title is empty")
	}
	for _, tier := range []string{PlanEconomic, PlanGolden} {
		plan, ok := product.Plans[tier]
		if !ok {
			return fmt.Errorf("plan %q is missing", tier)
		}
		if plan.Price <= 0 {
			return fmt.Errorf("plan %q has non-positive price", tier)
		}
	}
	return nil
}
