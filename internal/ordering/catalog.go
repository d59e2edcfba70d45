// Package ordering groups materials by category, orders each group, applies
// drag-and-drop reorders and balances the groups across display columns.
//
// Everything here is pure: functions take copies and return new slices, so
// callers decide when results are applied and persisted.
package ordering

import (
	"sort"
	"strings"
)

// DefaultFallback is the bucket for materials without a category.
const DefaultFallback = "Other"

// DefaultCategories is the built-in catalog in display priority order.
var DefaultCategories = []string{
	"Documentation",
	"UREC Forms",
	"Questionnaire",
	"System Design",
	"Github Repository",
	"To Do's",
	"Meeting Notes",
	DefaultFallback,
}

// Category is either a preset from the catalog, carrying its priority rank,
// or a custom free-text name.
type Category struct {
	Name   string `json:"name"`
	Preset bool   `json:"preset"`
	Rank   int    `json:"rank"`
}

// Custom reports whether c is outside the catalog.
func (c Category) Custom() bool { return !c.Preset }

func (c Category) String() string { return c.Name }

// Catalog is the ordered set of preset categories plus the fallback bucket.
type Catalog struct {
	presets  []string
	rank     map[string]int
	fallback string
}

// NewCatalog builds a catalog. A blank fallback means DefaultFallback; the
// fallback is appended to the presets when missing.
func NewCatalog(presets []string, fallback string) *Catalog {
	fallback = strings.TrimSpace(fallback)
	if fallback == "" {
		fallback = DefaultFallback
	}

	c := &Catalog{rank: make(map[string]int, len(presets)+1), fallback: fallback}
	for _, p := range presets {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, dup := c.rank[p]; dup {
			continue
		}
		c.rank[p] = len(c.presets)
		c.presets = append(c.presets, p)
	}
	if _, ok := c.rank[fallback]; !ok {
		c.rank[fallback] = len(c.presets)
		c.presets = append(c.presets, fallback)
	}
	return c
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	return NewCatalog(DefaultCategories, DefaultFallback)
}

func orDefault(c *Catalog) *Catalog {
	if c == nil {
		return DefaultCatalog()
	}
	return c
}

// Fallback returns the bucket for blank categories.
func (c *Catalog) Fallback() string { return c.fallback }

// Normalize trims name and maps blank to the fallback.
func (c *Catalog) Normalize(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return c.fallback
	}
	return name
}

// Resolve classifies name after normalizing it.
func (c *Catalog) Resolve(name string) Category {
	name = c.Normalize(name)
	if r, ok := c.rank[name]; ok {
		return Category{Name: name, Preset: true, Rank: r}
	}
	return Category{Name: name, Rank: -1}
}

// Options lists the preset categories in priority order.
func (c *Catalog) Options() []Category {
	out := make([]Category, len(c.presets))
	for i, p := range c.presets {
		out[i] = Category{Name: p, Preset: true, Rank: i}
	}
	return out
}

// Sort returns names with presets first in catalog order, then custom
// categories alphabetically.
func (c *Catalog) Sort(names []string) []string {
	out := append([]string(nil), names...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, iPreset := c.rank[out[i]]
		rj, jPreset := c.rank[out[j]]
		switch {
		case iPreset && jPreset:
			return ri < rj
		case iPreset != jPreset:
			return iPreset
		default:
			return out[i] < out[j]
		}
	})
	return out
}
