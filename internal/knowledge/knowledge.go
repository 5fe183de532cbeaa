// Package knowledge maintains a searchable base of known themes from earlier
// analyses. The proposer's prompt context is enriched with the known themes
// most similar to the current query, so recurring themes keep stable names
// across runs.
package knowledge

import (
	"fmt"
	"os"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// KnownTheme is one entry of the knowledge file.
type KnownTheme struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	Keywords    []string `yaml:"keywords,omitempty" json:"keywords,omitempty"`
}

// Base indexes known themes with Bleve. The index is in-memory and rebuilt
// from the source file; Reload is safe to call concurrently with Search.
type Base struct {
	path   string
	logger *zap.Logger

	mu     sync.RWMutex
	index  bleve.Index
	themes []KnownTheme
}

// NewBase loads the themes file at path and builds the index. A missing file
// yields an empty base, not an error, so a fresh install works without setup.
func NewBase(path string, logger *zap.Logger) (*Base, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Base{path: path, logger: logger}
	if err := b.Reload(); err != nil {
		return nil, err
	}
	return b, nil
}

func buildIndexMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	themeMapping := bleve.NewDocumentMapping()
	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = standard.Name
	themeMapping.AddFieldMappingsAt("name", textField)
	themeMapping.AddFieldMappingsAt("description", textField)
	themeMapping.AddFieldMappingsAt("keywords", textField)
	im.DefaultMapping = themeMapping
	return im
}

// Reload re-reads the themes file and swaps in a fresh index.
func (b *Base) Reload() error {
	themes, err := loadThemesFile(b.path)
	if err != nil {
		return err
	}

	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return fmt.Errorf("failed to create knowledge index: %w", err)
	}
	batch := index.NewBatch()
	for i, theme := range themes {
		if err := batch.Index(fmt.Sprintf("theme-%d", i), theme); err != nil {
			_ = index.Close()
			return fmt.Errorf("failed to index known theme %q: %w", theme.Name, err)
		}
	}
	if err := index.Batch(batch); err != nil {
		_ = index.Close()
		return fmt.Errorf("failed to build knowledge index: %w", err)
	}

	b.mu.Lock()
	old := b.index
	b.index = index
	b.themes = themes
	b.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	b.logger.Info("knowledge base loaded",
		zap.String("path", b.path),
		zap.Int("themes", len(themes)))
	return nil
}

// Search returns up to limit known themes relevant to query, formatted as
// "Name: Description" lines for prompt context, best match first.
func (b *Base) Search(query string, limit int) ([]string, error) {
	if query == "" {
		return nil, nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.themes) == 0 {
		return nil, nil
	}
	req := bleve.NewSearchRequest(bleve.NewMatchQuery(query))
	req.Size = limit
	req.Fields = []string{"name", "description"}
	results, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("knowledge search failed: %w", err)
	}

	out := make([]string, 0, len(results.Hits))
	for _, hit := range results.Hits {
		name, _ := hit.Fields["name"].(string)
		desc, _ := hit.Fields["description"].(string)
		if name == "" {
			continue
		}
		out = append(out, name+": "+desc)
	}
	return out, nil
}

// Len returns the number of known themes.
func (b *Base) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.themes)
}

// Close releases the index.
func (b *Base) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.index != nil {
		err := b.index.Close()
		b.index = nil
		return err
	}
	return nil
}

func loadThemesFile(path string) ([]KnownTheme, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read themes file: %w", err)
	}
	var themes []KnownTheme
	if err := yaml.Unmarshal(data, &themes); err != nil {
		return nil, fmt.Errorf("failed to parse themes file: %w", err)
	}
	return themes, nil
}
