package download

import (
	"net/url"
	"strings"
)

const (
	DefaultDocType = "document"
	DefaultDocId   = "no_id"
)

var docTypeReplacer = strings.NewReplacer(
	" ", "",
	"ç", "c",
	"ã", "a",
	"é", "e",
	"í", "i",
	"ó", "o",
	"ô", "o",
	"�", "",
)

// both values end up in file names and object keys
var pathReplacer = strings.NewReplacer(
	"/", "_",
	"\\", "_",
	"..", "_",
)

// pathComponent keeps value inside a single path element.
func pathComponent(value, fallback string) string {
	value = strings.TrimSpace(pathReplacer.Replace(value))
	if value == "" || value == "." {
		return fallback
	}
	return value
}

// SanitizeDocType folds the document type into something usable as a filename component.
func SanitizeDocType(docType string) string {
	return docTypeReplacer.Replace(docType)
}

// ParseMetadata reads the sanitized document type and the document id off a pdf url,
// falling back to DefaultDocType and DefaultDocId.
func ParseMetadata(pdfUrl string) (docType, docId string) {
	docType, docId = DefaultDocType, DefaultDocId
	parsed, err := url.Parse(pdfUrl)
	if err != nil {
		return docType, docId
	}
	query := parsed.Query()
	if v := query.Get("deTipoDocDigital"); v != "" {
		docType = v
	}
	if v := query.Get("idDocumento"); v != "" {
		docId = v
	}
	return pathComponent(SanitizeDocType(docType), DefaultDocType), pathComponent(docId, DefaultDocId)
}
