// Package catalog defines the closed set of consumption categories, their
// expiry windows and display symbols.
package catalog

import (
	"fmt"
	"strings"
	"time"
)

// Tag identifies a category.
type Tag string

// Category describes one tracked consumption kind.
type Category struct {
	Tag     Tag           `koanf:"tag"`
	Symbol  string        `koanf:"symbol"`
	Window  time.Duration `koanf:"window"`
	Aliases []string      `koanf:"aliases"`
}

// Catalog is an ordered, immutable set of categories. The order given at
// construction is the canonical rendering order.
type Catalog struct {
	ordered []Category
	byKey   map[string]int
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := New([]Category{
		{Tag: "beer", Symbol: "🍺", Window: 3 * time.Hour, Aliases: []string{"piwo"}},
		{Tag: "vodka", Symbol: "🍸", Window: 2 * time.Hour, Aliases: []string{"wodka", "wódka"}},
		{Tag: "whiskey", Symbol: "🥃", Window: 2 * time.Hour, Aliases: []string{"whisky"}},
		{Tag: "other", Symbol: "🍷", Window: 2 * time.Hour, Aliases: []string{"inne", "wine"}},
		{Tag: "blunt", Symbol: "🍃", Window: 4 * time.Hour},
	})
	if err != nil {
		panic(err)
	}
	return c
}

// New validates categories and builds a Catalog.
func New(categories []Category) (*Catalog, error) {
	if len(categories) == 0 {
		return nil, fmt.Errorf("%w: no categories", ErrInvalidCatalog)
	}
	c := &Catalog{
		ordered: make([]Category, 0, len(categories)),
		byKey:   make(map[string]int, len(categories)*3),
	}
	for _, cat := range categories {
		tag := Tag(normalize(string(cat.Tag)))
		if tag == "" {
			return nil, fmt.Errorf("%w: empty tag", ErrInvalidCatalog)
		}
		if cat.Window <= 0 {
			return nil, fmt.Errorf("%w: category %q needs a positive window", ErrInvalidCatalog, tag)
		}
		if strings.TrimSpace(cat.Symbol) == "" {
			return nil, fmt.Errorf("%w: category %q needs a symbol", ErrInvalidCatalog, tag)
		}
		idx := len(c.ordered)
		keys := append([]string{string(tag), cat.Symbol}, cat.Aliases...)
		for _, k := range keys {
			k = normalize(k)
			if k == "" {
				continue
			}
			if prev, dup := c.byKey[k]; dup && prev != idx {
				return nil, fmt.Errorf("%w: key %q used by %q and %q", ErrInvalidCatalog, k, c.ordered[prev].Tag, tag)
			}
			c.byKey[k] = idx
		}
		cat.Tag = tag
		cat.Aliases = append([]string(nil), cat.Aliases...)
		c.ordered = append(c.ordered, cat)
	}
	return c, nil
}

// Categories returns the categories in canonical order.
func (c *Catalog) Categories() []Category {
	out := make([]Category, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// Tags returns the tags in canonical order.
func (c *Catalog) Tags() []Tag {
	out := make([]Tag, len(c.ordered))
	for i, cat := range c.ordered {
		out[i] = cat.Tag
	}
	return out
}

// Get returns the category for an exact tag.
func (c *Catalog) Get(tag Tag) (Category, bool) {
	idx, ok := c.byKey[normalize(string(tag))]
	if !ok || c.ordered[idx].Tag != Tag(normalize(string(tag))) {
		return Category{}, false
	}
	return c.ordered[idx], true
}

// Lookup resolves a tag, alias or symbol, case-insensitively.
func (c *Catalog) Lookup(key string) (Category, bool) {
	idx, ok := c.byKey[normalize(key)]
	if !ok {
		return Category{}, false
	}
	return c.ordered[idx], true
}

// Window returns the expiry window of tag, or zero when unknown.
func (c *Catalog) Window(tag Tag) time.Duration {
	cat, ok := c.Get(tag)
	if !ok {
		return 0
	}
	return cat.Window
}

// Symbol returns the display symbol of tag, or an empty string when unknown.
func (c *Catalog) Symbol(tag Tag) string {
	cat, ok := c.Get(tag)
	if !ok {
		return ""
	}
	return cat.Symbol
}

// Names lists the tags joined for help and error text.
func (c *Catalog) Names() string {
	names := make([]string, len(c.ordered))
	for i, cat := range c.ordered {
		names[i] = string(cat.Tag)
	}
	return strings.Join(names, ", ")
}

// Shortest returns the smallest expiry window in the catalog.
func (c *Catalog) Shortest() time.Duration {
	var m time.Duration
	for i, cat := range c.ordered {
		if i == 0 || cat.Window < m {
			m = cat.Window
		}
	}
	return m
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
