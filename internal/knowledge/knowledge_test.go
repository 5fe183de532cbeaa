package knowledge

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const themesYAML = `
- name: Customer Support Issues
  description: Complaints about slow or unhelpful support responses
  keywords: [support, ticket, response]
- name: Pricing Concerns
  description: Posts about cost, subscription fees and price increases
  keywords: [price, expensive, subscription]
- name: Feature Requests
  description: Users asking for new product capabilities
  keywords: [feature, request, roadmap]
`

func writeThemes(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "themes.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNewBase_MissingFileIsEmpty(t *testing.T) {
	b, err := NewBase(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if b.Len() != 0 {
		t.Errorf("len: got %d, want 0", b.Len())
	}
	hits, err := b.Search("anything", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("hits: got %v", hits)
	}
}

func TestBase_SearchRelevanceOrdering(t *testing.T) {
	b, err := NewBase(writeThemes(t, themesYAML), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if b.Len() != 3 {
		t.Fatalf("len: got %d, want 3", b.Len())
	}

	hits, err := b.Search("support ticket complaints", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) == 0 {
		t.Fatal("no hits for support query")
	}
	if !strings.HasPrefix(hits[0], "Customer Support Issues:") {
		t.Errorf("best hit: got %q", hits[0])
	}
}

func TestBase_SearchEmptyQuery(t *testing.T) {
	b, err := NewBase(writeThemes(t, themesYAML), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	hits, err := b.Search("", 5)
	if err != nil {
		t.Fatal(err)
	}
	if hits != nil {
		t.Errorf("empty query should return nil, got %v", hits)
	}
}

func TestBase_Reload(t *testing.T) {
	path := writeThemes(t, themesYAML)
	b, err := NewBase(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	extra := themesYAML + `
- name: Shipping Delays
  description: Orders arriving late or lost in transit
  keywords: [shipping, delivery, late]
`
	if err := os.WriteFile(path, []byte(extra), 0600); err != nil {
		t.Fatal(err)
	}
	if err := b.Reload(); err != nil {
		t.Fatal(err)
	}
	if b.Len() != 4 {
		t.Errorf("len after reload: got %d, want 4", b.Len())
	}
	hits, err := b.Search("late delivery", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || !strings.HasPrefix(hits[0], "Shipping Delays:") {
		t.Errorf("reloaded search: got %v", hits)
	}
}

func TestBase_MalformedFile(t *testing.T) {
	path := writeThemes(t, "not: [valid: yaml: list")
	if _, err := NewBase(path, nil); err == nil {
		t.Error("expected error for malformed themes file")
	}
}
