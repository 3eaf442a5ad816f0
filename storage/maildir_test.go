package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMailDirPutGet(t *testing.T) {
	md, err := NewMailDir(t.TempDir())
	require.NoError(t, err)

	data := []byte("From: ana@example.com\r\nSubject: oi\r\n\r\ncorpo")
	relPath, err := md.Put(data)
	require.NoError(t, err)

	// O caminho relativo segue o formato AAAA/MM/DD/<arquivo>.eml
	require.Equal(t, time.Now().Format("2006/01/02"), filepath.ToSlash(filepath.Dir(relPath)))
	require.Equal(t, ".eml", filepath.Ext(relPath))

	got, err := md.Get(relPath)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestMailDirGetMissing(t *testing.T) {
	md, err := NewMailDir(t.TempDir())
	require.NoError(t, err)

	_, err = md.Get("2024/01/01/inexistente.eml")
	require.ErrorIs(t, err, ErrContentUnavailable)
}

func TestMailDirPutUniquePaths(t *testing.T) {
	root := t.TempDir()
	md, err := NewMailDir(root)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		relPath, err := md.Put([]byte("conteudo"))
		require.NoError(t, err)
		require.False(t, seen[relPath], "caminho repetido: %s", relPath)
		seen[relPath] = true

		_, err = os.Stat(filepath.Join(root, filepath.FromSlash(relPath)))
		require.NoError(t, err)
	}
}
