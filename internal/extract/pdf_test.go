package extract

import "testing"

func TestPDFExtractor_RejectsGarbage(t *testing.T) {
	e := NewPDFExtractor()
	if _, err := e.ExtractPages([]byte("this is not a pdf")); err == nil {
		t.Error("expected error for non-PDF bytes")
	}
	if _, err := e.ExtractPages(nil); err == nil {
		t.Error("expected error for empty input")
	}
}
