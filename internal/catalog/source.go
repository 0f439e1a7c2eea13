package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

// Source loads the raw records of one category. A category without data is
// reported as (nil, nil).
type Source interface {
	Load(ctx context.Context, category string) ([]RawProduct, error)
}

// RawProduct is a catalog record as authored. Older data files use
// capitalized keys and FinalPrice; Normalize resolves them once on ingest.
type RawProduct struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	NameAlt     string           `json:"Name"`
	Description string           `json:"description"`
	DescAlt     string           `json:"Description"`
	Price       *decimal.Decimal `json:"price"`
	PriceAlt    *decimal.Decimal `json:"Price"`
	FinalPrice  *decimal.Decimal `json:"FinalPrice"`
	Category    string           `json:"category"`
	InStock     *bool            `json:"inStock"`
	Image       string           `json:"image"`
	ImageAlt    string           `json:"Image"`
	Features    []string         `json:"features"`
	Rating      *float64         `json:"rating"`
	OnSale      bool             `json:"onSale"`
	IsNew       bool             `json:"isNew"`
}

type categoryFile struct {
	Products []RawProduct `json:"products"`
}

// Normalize maps a raw record onto the canonical product schema.
func Normalize(raw RawProduct, category string) models.Product {
	p := models.Product{
		ID:          raw.ID,
		Name:        firstNonEmpty(raw.Name, raw.NameAlt),
		Description: firstNonEmpty(raw.Description, raw.DescAlt),
		Category:    firstNonEmpty(raw.Category, category),
		InStock:     raw.InStock == nil || *raw.InStock,
		Image:       firstNonEmpty(raw.Image, raw.ImageAlt),
		Features:    raw.Features,
		OnSale:      raw.OnSale,
		IsNew:       raw.IsNew,
	}

	switch {
	case raw.FinalPrice != nil:
		p.Price = *raw.FinalPrice
	case raw.PriceAlt != nil:
		p.Price = *raw.PriceAlt
	case raw.Price != nil:
		p.Price = *raw.Price
	}
	if p.Price.IsNegative() {
		p.Price = decimal.Zero
	}

	if raw.Rating != nil {
		r := *raw.Rating
		if r < 0 {
			r = 0
		}
		if r > 5 {
			r = 5
		}
		p.Rating = &r
	}
	return p
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// DirSource reads <category>.json files from a file system.
type DirSource struct {
	fsys fs.FS
}

// NewDirSource creates a source over fsys, e.g. os.DirFS("public/json")
func NewDirSource(fsys fs.FS) *DirSource {
	return &DirSource{fsys: fsys}
}

func (s *DirSource) Load(_ context.Context, category string) ([]RawProduct, error) {
	data, err := fs.ReadFile(s.fsys, path.Clean(category)+".json")
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s.json: %w", category, err)
	}

	var file categoryFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse %s.json: %w", category, err)
	}
	return file.Products, nil
}
