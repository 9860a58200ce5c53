package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDocFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDocument(t *testing.T) {
	path := writeDocFile(t, `{
		"url": "https://example.com/q2-report.pdf",
		"content_hash": "sha256:abc123",
		"full_text": "Revenue grew 10% in Q2.",
		"pages": ["Revenue grew 10% in Q2."]
	}`)

	doc, err := loadDocument(path)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/q2-report.pdf", doc.URL)
	assert.Equal(t, "sha256:abc123", doc.ContentHash)
	assert.Equal(t, "Revenue grew 10% in Q2.", doc.FullText)
}

func TestLoadDocument_ComputesMissingHash(t *testing.T) {
	path := writeDocFile(t, `{"url": "https://example.com/a.pdf", "full_text": "some text"}`)

	doc, err := loadDocument(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(doc.ContentHash, "sha256:"))
	assert.Len(t, doc.ContentHash, len("sha256:")+64)
}

func TestLoadDocument_JoinsPagesWhenFullTextMissing(t *testing.T) {
	path := writeDocFile(t, `{"url": "https://example.com/a.pdf", "pages": ["page one", "page two"]}`)

	doc, err := loadDocument(path)
	require.NoError(t, err)
	assert.Equal(t, "page one\npage two", doc.FullText)
}

func TestLoadDocument_NoText(t *testing.T) {
	path := writeDocFile(t, `{"url": "https://example.com/a.pdf"}`)

	_, err := loadDocument(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no text content")
}

func TestLoadDocument_MissingFile(t *testing.T) {
	_, err := loadDocument(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}

func TestLoadDocument_BadJSON(t *testing.T) {
	path := writeDocFile(t, `not json`)
	_, err := loadDocument(path)
	require.Error(t, err)
}
