package input

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"pricewatch/internal/mocks"
	"pricewatch/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeInput(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validInput = `{
	"sites": [
		{
			"root_domain": "shop.example.com",
			"category": "api",
			"env_variables": {"consumer_key": "ck_1", "consumer_secret": "cs_1"}
		},
		{
			"root_domain": "other.net",
			"category": "scrape",
			"selectors": {"price": ".price"}
		},
		{
			"root_domain": "disabled.org",
			"category": "scrape",
			"disabled": true,
			"selectors": {"price": ".price"}
		}
	],
	"products": [
		{"product_name": "Widget", "urls": ["https://example.com/w", "https://disabled.org/w"]},
		{"product_name": "Gone", "urls": ["https://disabled.org/g"]}
	]
}`

func TestLoad_Valid(t *testing.T) {
	path := writeInput(t, validInput)

	file, err := Load(context.Background(), path, mocks.RelaxedLogger())

	require.NoError(t, err)
	require.Len(t, file.Sites, 2)
	// Root domains are normalized to the registered domain.
	assert.Equal(t, "example.com", file.Sites[0].RootDomain)
	assert.Equal(t, models.SourceAPI, file.Sites[0].Category)
	assert.Equal(t, "other.net", file.Sites[1].RootDomain)

	// Disabled domain URLs are filtered; a product with no URLs left is dropped.
	require.Len(t, file.Products, 1)
	assert.Equal(t, "Widget", file.Products[0].ProductName)
	assert.Equal(t, []string{"https://example.com/w"}, file.Products[0].URLs)
}

func TestLoad_SkipsInvalidSites(t *testing.T) {
	path := writeInput(t, `{
		"sites": [
			{"root_domain": "example.com", "category": "api"},
			{"root_domain": "example.com", "category": "mystery"},
			{"root_domain": "", "category": "scrape", "selectors": {"price": ".p"}},
			{"root_domain": "good.com", "category": "scrape", "selectors": {"price": ".p"}}
		],
		"products": [{"product_name": "W", "urls": ["https://good.com/w"]}]
	}`)

	file, err := Load(context.Background(), path, mocks.RelaxedLogger())

	require.NoError(t, err)
	require.Len(t, file.Sites, 1)
	assert.Equal(t, "good.com", file.Sites[0].RootDomain)
}

func TestLoad_NoUsableSites(t *testing.T) {
	path := writeInput(t, `{"sites": [], "products": []}`)

	_, err := Load(context.Background(), path, mocks.RelaxedLogger())

	assert.ErrorIs(t, err, models.ErrNoSites)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "absent.json"), mocks.RelaxedLogger())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read input file")
}

func TestSiteMapping(t *testing.T) {
	sites := []*models.Site{
		{RootDomain: "a.com", Category: models.SourceAPI},
		{RootDomain: "b.com", Category: models.SourceScrape},
		{RootDomain: "c.com", Category: models.SourceScrape, Disabled: true},
	}

	mapping := SiteMapping(sites)

	assert.Len(t, mapping, 2)
	assert.Contains(t, mapping, "a.com")
	assert.Contains(t, mapping, "b.com")
	assert.NotContains(t, mapping, "c.com")
}
