package fixup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCatalog_Embedded(t *testing.T) {
	c, err := LoadCatalog("")
	require.NoError(t, err)

	slugs := c.CanonicalSlugs()
	assert.Contains(t, slugs, "beauty")
	assert.Contains(t, slugs, "cleaning")

	beauty, ok := c.Category("beauty")
	require.True(t, ok)
	assert.NotEmpty(t, beauty.Services)
	for _, svc := range beauty.Services {
		assert.Positive(t, svc.BasePrice, svc.Name)
	}
}

func TestLoadCatalog_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testCatalog), 0o600))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"cleaning", "beauty"}, c.CanonicalSlugs())

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseCatalog_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "empty",
			yaml:    "categories: []",
			wantErr: "catalog validation failed",
		},
		{
			name:    "bad slug",
			yaml:    "categories:\n  - slug: Home Cleaning\n    name: Cleaning\n",
			wantErr: "Tag: slug",
		},
		{
			name:    "duplicate slug",
			yaml:    "categories:\n  - slug: cleaning\n    name: A\n  - slug: cleaning\n    name: B\n",
			wantErr: "Tag: unique",
		},
		{
			name:    "zero price",
			yaml:    "categories:\n  - slug: cleaning\n    name: Cleaning\n    services:\n      - name: Deep\n        base_price: 0\n",
			wantErr: "Tag: gt",
		},
		{
			name:    "alias names another category",
			yaml:    "categories:\n  - slug: cleaning\n    name: Cleaning\n    aliases: [beauty]\n  - slug: beauty\n    name: Beauty\n",
			wantErr: "names category beauty",
		},
		{
			name:    "malformed yaml",
			yaml:    "categories: [",
			wantErr: "failed to parse catalog",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
