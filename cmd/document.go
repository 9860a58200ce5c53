package main

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/claimtrace/internal/model"
)

// loadDocument reads a source document JSON file as produced by ingestion.
// Documents without a content hash get one computed from the full text, so
// staleness checks work for locally-prepared files too.
func loadDocument(path string) (model.SourceDocument, error) {
	var doc model.SourceDocument

	data, err := os.ReadFile(path)
	if err != nil {
		return doc, eris.Wrapf(err, "read document %s", path)
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, eris.Wrapf(err, "parse document %s", path)
	}

	if doc.FullText == "" && len(doc.Pages) > 0 {
		doc.FullText = strings.Join(doc.Pages, "\n")
	}
	if doc.FullText == "" {
		return doc, eris.Errorf("document %s has no text content", path)
	}
	if doc.ContentHash == "" {
		sum := sha256.Sum256([]byte(doc.FullText))
		doc.ContentHash = "sha256:" + hex.EncodeToString(sum[:])
	}

	return doc, nil
}
