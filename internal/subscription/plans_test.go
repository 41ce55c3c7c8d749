package subscription

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPlanTable(t *testing.T) {
	table := DefaultPlanTable()
	require.NoError(t, table.Validate())

	free, ok := table.Lookup("FREE")
	require.True(t, ok)
	assert.Equal(t, 5, free.MaxServices)

	pro, ok := table.Lookup("pro")
	require.True(t, ok)
	assert.True(t, pro.Unlimited)

	_, ok = table.Lookup("platinum")
	assert.False(t, ok)

	names := []string{}
	for _, tier := range table.Ordered() {
		names = append(names, tier.Name)
	}
	assert.Equal(t, []string{"free", "basic", "premium", "pro", "enterprise"}, names)
}

func TestLoadPlanTableFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
version: staging-3
tiers:
  - name: free
    rank: 0
    max_services: 2
  - name: studio
    rank: 1
    unlimited: true
`), 0600))

	table, err := LoadPlanTable(path)
	require.NoError(t, err)
	assert.Equal(t, "staging-3", table.Version)

	free, ok := table.Lookup("free")
	require.True(t, ok)
	assert.Equal(t, 2, free.MaxServices)

	studio, ok := table.Lookup("studio")
	require.True(t, ok)
	assert.True(t, studio.Unlimited)
}

func TestLoadPlanTableMissingFileFallsBack(t *testing.T) {
	table, err := LoadPlanTable(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "default-1", table.Version)
}

func TestLoadPlanTableRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
version: broken
tiers:
  - name: basic
    max_services: 3
`), 0600))

	_, err := LoadPlanTable(path)
	assert.ErrorContains(t, err, "free tier is required")
}

func TestValidateDuplicateTier(t *testing.T) {
	table := PlanTable{Version: "x", Tiers: []Tier{{Name: "free", MaxServices: 1}, {Name: "FREE"}}}
	assert.ErrorContains(t, table.Validate(), "duplicate tier")
}
