package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"esaj-crawler/internal/model"
	"esaj-crawler/internal/oab"
)

// Filesystem lays documents out as <root>/<case digits>/<docType>_<docId>.pdf.
type Filesystem struct {
	root string
}

func NewFilesystem(root string) Filesystem {
	return Filesystem{root: root}
}

func (f Filesystem) Location() string {
	return f.root
}

// Path is where the document is (or would be) stored.
func (f Filesystem) Path(caseNumber, docType, docId string) string {
	return filepath.Join(
		f.root,
		oab.SanitizeNumeric(caseNumber),
		fmt.Sprintf("%s_%s.pdf", docType, docId),
	)
}

func (f Filesystem) HasDocument(ctx context.Context, caseNumber, docType, docId string) (bool, error) {
	_, err := os.Stat(f.Path(caseNumber, docType, docId))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %w", model.ErrPersistence, err)
	}
	return true, nil
}

func (f Filesystem) PersistDocument(ctx context.Context, doc model.DocumentRecord) error {
	path := f.Path(doc.CaseNumber, doc.DocType, doc.DocID)
	exists, err := f.HasDocument(ctx, doc.CaseNumber, doc.DocType, doc.DocID)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", model.ErrAlreadyStored, path)
	}

	err = os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrPersistence, err)
	}
	err = writeFileAtomic(path, doc.Content)
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrPersistence, err)
	}
	return nil
}

// writeFileAtomic makes sure a crash never leaves a truncated file behind, which a
// later run would mistake for an already stored document.
func writeFileAtomic(path string, content []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".partial-*")
	if err != nil {
		return err
	}
	_, err = tmp.Write(content)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
