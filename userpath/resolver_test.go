package userpath

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveCreatesAndPersists(t *testing.T) {
	root := t.TempDir()
	r, err := Open(Config{RootDir: root})
	require.NoError(t, err)
	defer r.Close()

	p1, err := r.Resolve("alice")
	require.NoError(t, err)
	require.FileExists(t, p1.Data)
	require.Equal(t, p1.Data+".index", p1.Index)

	p2, err := r.Resolve("alice")
	require.NoError(t, err)
	require.Equal(t, p1, p2)
}

func TestResolveDistinctUsersDistinctPaths(t *testing.T) {
	root := t.TempDir()
	r, err := Open(Config{RootDir: root})
	require.NoError(t, err)
	defer r.Close()

	a, err := r.Resolve("alice")
	require.NoError(t, err)
	b, err := r.Resolve("bob")
	require.NoError(t, err)
	require.NotEqual(t, a.Data, b.Data)
}

func TestOpenRequiresRootDir(t *testing.T) {
	_, err := Open(Config{})
	require.Error(t, err)
}

func TestResolvePersistsAcrossReopen(t *testing.T) {
	root := t.TempDir()
	r, err := Open(Config{RootDir: root})
	require.NoError(t, err)
	p1, err := r.Resolve("carol")
	require.NoError(t, err)
	require.NoError(t, r.Close())

	r2, err := Open(Config{RootDir: root})
	require.NoError(t, err)
	defer r2.Close()
	p2, err := r2.Resolve("carol")
	require.NoError(t, err)
	require.Equal(t, p1, p2)
}

func TestMappingDatabaseOmittedUsesDefault(t *testing.T) {
	root := t.TempDir()
	r, err := Open(Config{RootDir: root})
	require.NoError(t, err)
	defer r.Close()
	_, err = os.Stat(root + "/backups.db")
	require.NoError(t, err)
}
