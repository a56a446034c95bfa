package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"esaj-crawler/internal/model"

	"github.com/stretchr/testify/require"
)

func TestFilesystem(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	fsys := NewFilesystem(root)

	doc := testDocument("11")
	path := fsys.Path(doc.CaseNumber, doc.DocType, doc.DocID)
	require.Equal(t, filepath.Join(root, "10012345620238260100", "Peticao_11.pdf"), path)

	has, err := fsys.HasDocument(ctx, doc.CaseNumber, doc.DocType, doc.DocID)
	require.NoError(t, err)
	require.False(t, has)

	require.NoError(t, fsys.PersistDocument(ctx, doc))
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, doc.Content, content)

	has, err = fsys.HasDocument(ctx, doc.CaseNumber, doc.DocType, doc.DocID)
	require.NoError(t, err)
	require.True(t, has)

	require.ErrorIs(t, fsys.PersistDocument(ctx, doc), model.ErrAlreadyStored)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
