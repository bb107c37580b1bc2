package synonyms

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTable(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)
	assert.NotEmpty(t, r.Groups())

	id, ok := r.GroupOf("Шампунь")
	require.True(t, ok)
	assert.Equal(t, GroupID("shampoo"), id)

	_, ok = r.GroupOf("unrelated")
	assert.False(t, ok)
}

func TestGroupsOfPhrases(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)

	groups := r.GroupsOf("Туалетная бумага Zewa 8 рулонов")
	assert.Contains(t, groups, GroupID("toilet_paper"))

	groups = r.GroupsOf("Кондиционер для белья Lenor 1 л")
	assert.Equal(t, []GroupID{"fabric_softener"}, groups)
}

func TestSharedGroups(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)

	assert.Equal(t, 1, r.SharedGroups("Молоко Простоквашино 2.5%", "Milk Prostokvashino 2.5%"))
	assert.Equal(t, 2, r.SharedGroups("Сок и вода", "juice water pack"))
	assert.Equal(t, 0, r.SharedGroups("Шампунь", "Сок"))
}

func TestDuplicateWordRejected(t *testing.T) {
	_, err := New(map[string][]string{
		"a": {"гель"},
		"b": {"Гель"},
	})
	require.ErrorIs(t, err, ErrDuplicateWord)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "groups.yaml")
	require.NoError(t, os.WriteFile(path, []byte("groups:\n  tea: [чай, tea]\n"), 0o600))

	r, err := Load(path)
	require.NoError(t, err)
	id, ok := r.GroupOf("TEA")
	require.True(t, ok)
	assert.Equal(t, GroupID("tea"), id)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = Parse([]byte("groups: {}"))
	require.Error(t, err)
}
