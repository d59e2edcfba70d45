package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qkgalias/capstone-hub/internal/ordering"
)

func writeCatalog(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "categories.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadCategoriesConfig(t *testing.T) {
	path := writeCatalog(t, `
categories:
  - Docs
  - " Repo "
fallback: Misc
max_columns: 4
`)
	cfg, err := LoadCategoriesConfig(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"Docs", "Repo", "Misc"}, cfg.Categories, "fallback is appended when missing")
	assert.Equal(t, "Misc", cfg.Fallback)
	assert.Equal(t, 4, cfg.MaxColumns)
}

func TestLoadCategoriesConfig_Defaults(t *testing.T) {
	cfg, err := LoadCategoriesConfig(writeCatalog(t, "categories: [Docs]\n"))
	require.NoError(t, err)

	assert.Equal(t, DefaultFallbackCategory, cfg.Fallback)
	assert.Equal(t, DefaultMaxColumns, cfg.MaxColumns)
}

func TestLoadCategoriesConfig_Invalid(t *testing.T) {
	for name, body := range map[string]string{
		"duplicate":    "categories: [Docs, docs]\n",
		"blank":        "categories: [Docs, '  ']\n",
		"negative":     "categories: [Docs]\nmax_columns: -2\n",
		"not yaml map": "categories: {",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := LoadCategoriesConfig(writeCatalog(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadCategoriesConfigOrDefault(t *testing.T) {
	cfg, err := LoadCategoriesConfigOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultCategoriesConfig(), cfg)

	_, err = LoadCategoriesConfigOrDefault(writeCatalog(t, "categories: [A, a]\n"))
	assert.Error(t, err, "a broken file is not silently replaced")
}

func TestDefaultCategoriesConfigFollowsOrdering(t *testing.T) {
	cfg := DefaultCategoriesConfig()
	assert.Equal(t, ordering.DefaultCategories, cfg.Categories)
	assert.Equal(t, ordering.DefaultFallback, cfg.Fallback)

	cfg.Categories[0] = "changed"
	assert.Equal(t, "Documentation", ordering.DefaultCategories[0], "the default list is copied")
}

func TestShippedCatalogMatchesDefault(t *testing.T) {
	cfg, err := LoadCategoriesConfig(filepath.Join("..", "..", "config", "categories.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultCategoriesConfig(), cfg)
}

func TestConfigCatalog_MaxColumnsOverride(t *testing.T) {
	path := writeCatalog(t, "categories: [Docs]\nmax_columns: 4\n")

	cfg := &Config{CategoriesFile: path}
	cats, err := cfg.Catalog()
	require.NoError(t, err)
	assert.Equal(t, 4, cats.MaxColumns)

	cfg.MaxColumns = 2
	cats, err = cfg.Catalog()
	require.NoError(t, err)
	assert.Equal(t, 2, cats.MaxColumns)
}
