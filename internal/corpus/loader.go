// Package corpus loads social-listening documents from local files for the
// analyze CLI mode. One document is one hit: a line of a text file, a row of
// a spreadsheet, an element of a JSON array, or the full text of a PDF or
// DOCX file.
package corpus

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// Loader reads corpus files into document texts.
type Loader struct {
	logger *zap.Logger
}

// NewLoader returns a new Loader.
func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{logger: logger}
}

// Load reads every path (file or directory) and returns the collected
// document texts. Directories are walked recursively; files with unsupported
// extensions are skipped with a log line, not an error.
func (l *Loader) Load(paths []string) ([]string, error) {
	var docs []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		if info.IsDir() {
			err = filepath.WalkDir(path, func(p string, d fs.DirEntry, werr error) error {
				if werr != nil {
					return werr
				}
				if d.IsDir() {
					return nil
				}
				fileDocs, ferr := l.loadFile(p)
				if ferr != nil {
					return ferr
				}
				docs = append(docs, fileDocs...)
				return nil
			})
			if err != nil {
				return nil, err
			}
			continue
		}
		fileDocs, err := l.loadFile(path)
		if err != nil {
			return nil, err
		}
		docs = append(docs, fileDocs...)
	}
	return docs, nil
}

func (l *Loader) loadFile(path string) ([]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".txt", ".md", "":
		return splitLines(content), nil
	case ".json":
		docs, err := parseJSONDocs(content)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return docs, nil
	case ".xlsx":
		docs, err := loadExcel(content)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return docs, nil
	case ".pdf":
		text, err := loadPDF(content)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if strings.TrimSpace(text) == "" {
			return nil, nil
		}
		return []string{text}, nil
	case ".docx":
		text, err := loadDocx(content)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if strings.TrimSpace(text) == "" {
			return nil, nil
		}
		return []string{text}, nil
	default:
		l.logger.Debug("skipping unsupported file", zap.String("path", path))
		return nil, nil
	}
}

// splitLines returns non-empty trimmed lines, UTF-8 validated.
func splitLines(content []byte) []string {
	if !utf8.Valid(content) {
		content = []byte(strings.ToValidUTF8(string(content), "�"))
	}
	var docs []string
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			docs = append(docs, line)
		}
	}
	return docs
}

// parseJSONDocs accepts either an array of strings or an array of objects
// with a "text" field.
func parseJSONDocs(content []byte) ([]string, error) {
	var asStrings []string
	if err := json.Unmarshal(content, &asStrings); err == nil {
		return nonEmpty(asStrings), nil
	}
	var asObjects []struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(content, &asObjects); err != nil {
		return nil, fmt.Errorf("expected a JSON array of strings or {\"text\": ...} objects: %w", err)
	}
	docs := make([]string, 0, len(asObjects))
	for _, o := range asObjects {
		docs = append(docs, o.Text)
	}
	return nonEmpty(docs), nil
}

func loadExcel(content []byte) ([]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	var docs []string
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("get rows for sheet %q: %w", sheet, err)
		}
		for _, row := range rows {
			text := strings.TrimSpace(strings.Join(row, " "))
			if text != "" {
				docs = append(docs, text)
			}
		}
	}
	return docs, nil
}

func loadPDF(content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open PDF: %w", err)
	}
	var buf bytes.Buffer
	numPages := r.NumPage()
	for i := 0; i < numPages; i++ {
		page := r.Page(i + 1)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("extract page %d: %w", i+1, err)
		}
		buf.WriteString(text)
		if i < numPages-1 {
			buf.WriteByte('\n')
		}
	}
	return buf.String(), nil
}

func nonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
