// Package catalog serves the static product catalog grouped by category.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultCategory is the fallback category.
const DefaultCategory = "kitchen"

// unknownCategory labels fallbacks for names outside the category list.
const unknownCategory = "unknown"

// ErrCatalogUnavailable is returned when neither the requested category nor
// the default category has products.
var ErrCatalogUnavailable = errors.New("catalog unavailable: default category has no products")

// Categories is the fixed category order used for lookups.
var Categories = []models.Category{
	{ID: "kitchen", Name: "Kitchen", Icon: "👨‍🍳"},
	{ID: "bathroom", Name: "Bathroom", Icon: "🚿"},
	{ID: "cleaning", Name: "Cleaning", Icon: "🧹"},
	{ID: "decoration", Name: "Decoration", Icon: "🖼️"},
}

// Provider caches categories loaded from a Source.
type Provider struct {
	source          Source
	categories      []models.Category
	defaultCategory string
	logger          *zap.Logger

	mu     sync.RWMutex
	loaded map[string][]models.Product
	group  singleflight.Group
}

// NewProvider creates a catalog provider. An empty defaultCategory means
// DefaultCategory.
func NewProvider(source Source, defaultCategory string) *Provider {
	if defaultCategory == "" {
		defaultCategory = DefaultCategory
	}
	return &Provider{
		source:          source,
		categories:      Categories,
		defaultCategory: defaultCategory,
		logger:          util.GetLogger(),
		loaded:          make(map[string][]models.Product),
	}
}

// Categories returns the category list in lookup order.
func (p *Provider) Categories() []models.Category {
	out := make([]models.Category, len(p.categories))
	copy(out, p.categories)
	return out
}

// DefaultCategory is the fallback category name.
func (p *Provider) DefaultCategory() string {
	return p.defaultCategory
}

// GetCategory returns the products of name, substituting the default
// category when name has none.
func (p *Provider) GetCategory(ctx context.Context, name string) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "Catalog.GetCategory")
	defer span.End()

	// Only listed categories are loaded, cached and used as metric labels.
	label := unknownCategory
	if p.isKnown(name) {
		label = name
		if products, ok := p.cached(name); ok && len(products) > 0 {
			return products, nil
		}
		if products := p.loadCategory(ctx, name); len(products) > 0 {
			return products, nil
		}
	}

	if name != p.defaultCategory {
		p.logger.Info("Category empty, using default as fallback",
			zap.String("category", name),
			zap.String("fallback", p.defaultCategory))
		util.CatalogFallbacksTotal.WithLabelValues(label).Inc()

		if products, ok := p.cached(p.defaultCategory); ok && len(products) > 0 {
			return products, nil
		}
		if products := p.loadCategory(ctx, p.defaultCategory); len(products) > 0 {
			return products, nil
		}
	}

	return nil, fmt.Errorf("%w (requested %q)", ErrCatalogUnavailable, name)
}

// GetProductByID searches categories in fixed order, loading on demand, and
// stops at the first match.
func (p *Provider) GetProductByID(ctx context.Context, id string) (models.Product, bool) {
	ctx, span := util.StartSpan(ctx, "Catalog.GetProductByID")
	defer span.End()

	for _, category := range p.categories {
		products, ok := p.cached(category.ID)
		if !ok {
			products = p.loadCategory(ctx, category.ID)
		}
		for _, product := range products {
			if product.ID == id {
				return product, true
			}
		}
	}

	p.logger.Warn("Product not found", zap.String("product_id", id))
	return models.Product{}, false
}

// ClearCache drops every loaded category.
func (p *Provider) ClearCache() {
	p.mu.Lock()
	p.loaded = make(map[string][]models.Product)
	p.mu.Unlock()
}

func (p *Provider) isKnown(name string) bool {
	if name == p.defaultCategory {
		return true
	}
	for _, c := range p.categories {
		if c.ID == name {
			return true
		}
	}
	return false
}

func (p *Provider) cached(name string) ([]models.Product, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	products, ok := p.loaded[name]
	if !ok {
		return nil, false
	}
	return cloneProducts(products), true
}

// loadCategory fetches a category from the source and caches the result,
// empty included. Load failures are logged and yield an empty category.
func (p *Provider) loadCategory(ctx context.Context, name string) []models.Product {
	v, _, _ := p.group.Do(name, func() (interface{}, error) {
		raw, err := p.source.Load(ctx, name)
		if err != nil {
			p.logger.Error("Error loading category data",
				zap.String("category", name),
				zap.Error(err))
			raw = nil
		}
		if raw == nil && err == nil {
			p.logger.Warn("Category data not found", zap.String("category", name))
		}

		products := make([]models.Product, 0, len(raw))
		for _, r := range raw {
			if r.ID == "" {
				p.logger.Warn("Skipping catalog record without id", zap.String("category", name))
				continue
			}
			products = append(products, Normalize(r, name))
		}

		p.mu.Lock()
		p.loaded[name] = products
		p.mu.Unlock()
		return products, nil
	})

	return cloneProducts(v.([]models.Product))
}

func cloneProducts(in []models.Product) []models.Product {
	out := make([]models.Product, len(in))
	copy(out, in)
	return out
}
