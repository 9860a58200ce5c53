package model

// SourceDocument is the already-ingested source a claim must be verified
// against. Produced upstream by document ingestion (PDF/DOCX extraction,
// OCR fallback); immutable here.
type SourceDocument struct {
	URL         string   `json:"url"`
	ContentHash string   `json:"content_hash"`
	FullText    string   `json:"full_text"`
	Pages       []string `json:"pages"` // 1-indexed: Pages[0] is page 1
}

// DocumentDigest is a url/hash pair recorded on lineage rows, used by the
// staleness checker to compare against current ingestion output.
type DocumentDigest struct {
	URL         string `json:"url"`
	ContentHash string `json:"content_hash"`
}

// PageCount returns the number of pages in the document.
func (d SourceDocument) PageCount() int {
	return len(d.Pages)
}

// Page returns the text of the 1-indexed page n, or "" if out of range.
func (d SourceDocument) Page(n int) string {
	if n < 1 || n > len(d.Pages) {
		return ""
	}
	return d.Pages[n-1]
}
