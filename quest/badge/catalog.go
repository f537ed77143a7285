package badge

import "github.com/onboardly/questengine/model"

// Catalog is the immutable badge registry, loaded once at process
// start and injected wherever badges are resolved.
type Catalog struct {
	byID  map[string]model.Badge
	order []string
}

// NewCatalog builds a Catalog from a list of badges. Later duplicates
// of the same id overwrite earlier ones.
func NewCatalog(badges []model.Badge) *Catalog {
	c := &Catalog{byID: make(map[string]model.Badge, len(badges))}
	for _, b := range badges {
		if _, seen := c.byID[b.ID]; !seen {
			c.order = append(c.order, b.ID)
		}
		c.byID[b.ID] = b
	}
	return c
}

// Get returns the badge with the given id.
func (c *Catalog) Get(id string) (model.Badge, bool) {
	b, ok := c.byID[id]
	return b, ok
}

// Has reports whether the catalog contains the given id.
func (c *Catalog) Has(id string) bool {
	_, ok := c.byID[id]
	return ok
}

// All returns every badge in catalog order.
func (c *Catalog) All() []model.Badge {
	out := make([]model.Badge, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

// Len returns the number of badges in the catalog.
func (c *Catalog) Len() int { return len(c.byID) }
