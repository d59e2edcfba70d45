package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/qkgalias/capstone-hub/internal/ordering"
)

// DefaultMaxColumns caps the board width when neither the file nor the
// environment sets it.
const DefaultMaxColumns = 8

// DefaultFallbackCategory receives materials with a blank category.
const DefaultFallbackCategory = ordering.DefaultFallback

// CategoriesConfig is the category catalog loaded from categories.yaml.
type CategoriesConfig struct {
	Categories []string `yaml:"categories"`
	Fallback   string   `yaml:"fallback"`
	MaxColumns int      `yaml:"max_columns"`
}

// DefaultCategoriesConfig returns the built-in catalog.
func DefaultCategoriesConfig() *CategoriesConfig {
	return &CategoriesConfig{
		Categories: append([]string(nil), ordering.DefaultCategories...),
		Fallback:   DefaultFallbackCategory,
		MaxColumns: DefaultMaxColumns,
	}
}

// LoadCategoriesConfig reads the catalog at path.
func LoadCategoriesConfig(path string) (*CategoriesConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read categories config: %w", err)
	}

	var cfg CategoriesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse categories config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, fmt.Errorf("categories config %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadCategoriesConfigOrDefault loads the catalog, falling back to the
// built-in one only when the file does not exist.
func LoadCategoriesConfigOrDefault(path string) (*CategoriesConfig, error) {
	cfg, err := LoadCategoriesConfig(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultCategoriesConfig(), nil
	}
	return cfg, err
}

// Catalog resolves the effective catalog for c, applying the
// HUB_MAX_COLUMNS override.
func (c *Config) Catalog() (*CategoriesConfig, error) {
	cats, err := LoadCategoriesConfigOrDefault(c.CategoriesFile)
	if err != nil {
		return nil, err
	}
	if c.MaxColumns > 0 {
		cats.MaxColumns = c.MaxColumns
	}
	return cats, nil
}

func (c *CategoriesConfig) normalize() error {
	seen := make(map[string]bool, len(c.Categories))
	names := make([]string, 0, len(c.Categories))
	for _, name := range c.Categories {
		name = strings.TrimSpace(name)
		if name == "" {
			return errors.New("category names must not be blank")
		}
		key := strings.ToLower(name)
		if seen[key] {
			return fmt.Errorf("duplicate category %q", name)
		}
		seen[key] = true
		names = append(names, name)
	}
	c.Categories = names

	c.Fallback = strings.TrimSpace(c.Fallback)
	if c.Fallback == "" {
		c.Fallback = DefaultFallbackCategory
	}
	if !seen[strings.ToLower(c.Fallback)] {
		c.Categories = append(c.Categories, c.Fallback)
	}

	switch {
	case c.MaxColumns < 0:
		return errors.New("max_columns must not be negative")
	case c.MaxColumns == 0:
		c.MaxColumns = DefaultMaxColumns
	}
	return nil
}
