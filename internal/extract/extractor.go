// Package extract provides per-page text extraction from PDF documents.
package extract

import "github.com/hyperjump/kaiwa/internal/models"

// PageExtractor extracts per-page plain text from raw document bytes.
type PageExtractor interface {
	// ExtractPages returns the text of each page in order, with 1-based page
	// numbers. Pages with no text are still returned (empty Text) so page
	// numbering stays aligned with the source document.
	ExtractPages(content []byte) ([]models.PageText, error)
}
