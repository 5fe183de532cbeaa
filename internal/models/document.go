// Package models defines core data structures for documents, themes, and analysis results.
package models

// Document is a single free-text item from a corpus batch, paired with its
// embedding. Documents live for one pipeline run and are never persisted.
type Document struct {
	Index     int       `json:"index"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"-"`
}

// Assignment records that one document was claimed by one theme during an
// assignment pass. A document index appears in at most one Assignment per run.
type Assignment struct {
	DocumentIndex int     `json:"document_index"`
	ThemeIndex    int     `json:"theme_index"`
	Similarity    float64 `json:"similarity"`
}
