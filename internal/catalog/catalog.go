package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"kynara/internal/domain"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type file struct {
	Products []domain.Product `yaml:"products"`
}

// Catalog is the read-only product list offered by the shop.
type Catalog struct {
	products []domain.Product
	byID     map[string]domain.Product
}

// Load reads a YAML catalog from path, or the built-in catalog when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Parse(defaultCatalog)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(f.Products) == 0 {
		return nil, errors.New("catalog has no products")
	}
	c := &Catalog{
		products: f.Products,
		byID:     make(map[string]domain.Product, len(f.Products)),
	}
	for _, p := range f.Products {
		if strings.TrimSpace(p.ID) == "" {
			return nil, fmt.Errorf("product %q has no id", p.Name)
		}
		if p.Price <= 0 {
			return nil, fmt.Errorf("product %s has non-positive price %d", p.ID, p.Price)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate product id %s", p.ID)
		}
		c.byID[p.ID] = p
	}
	return c, nil
}

func (c *Catalog) Products() []domain.Product {
	return slices.Clone(c.products)
}

func (c *Catalog) Find(id string) (domain.Product, error) {
	p, ok := c.byID[id]
	if !ok {
		return domain.Product{}, fmt.Errorf("%w: %s", domain.ErrUnknownProduct, id)
	}
	return p, nil
}
