package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationNames_SortedAndEmbedded(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)

	assert.Equal(t, []string{
		"001_orders.sql",
		"002_locks_preferences.sql",
		"003_menu_items.sql",
	}, names)

	for _, name := range names {
		content, err := migrationFiles.ReadFile("migrations/" + name)
		require.NoError(t, err)
		assert.NotEmpty(t, content, name)
	}
}
