package corpus

import (
	"archive/zip"
	"bytes"
	"fmt"
	"regexp"
	"strings"
)

// docxDocumentXMLPath is the default path to the main document body inside a
// .docx zip.
const docxDocumentXMLPath = "word/document.xml"

// contentTypesPath is the path to [Content_Types].xml in OOXML packages.
const contentTypesPath = "[Content_Types].xml"

// docxMainContentType is the content type for the main document in DOCX files.
const docxMainContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"

// wtTag matches <w:t>text</w:t> with any attributes (e.g. xml:space).
var wtTag = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)

var partNameRe = regexp.MustCompile(`<Override[^>]+PartName="([^"]+)"[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"`)

// partNameRe2 handles the case where ContentType appears before PartName.
var partNameRe2 = regexp.MustCompile(`<Override[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"[^>]+PartName="([^"]+)"`)

// findDocxMainDocumentPath finds the main document path from
// [Content_Types].xml. Returns the path without leading slash, or empty
// string if not found.
func findDocxMainDocumentPath(zr *zip.Reader) string {
	for _, f := range zr.File {
		if f.Name != contentTypesPath {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return ""
		}
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(rc); err != nil {
			_ = rc.Close()
			return ""
		}
		_ = rc.Close()

		content := buf.String()
		if matches := partNameRe.FindStringSubmatch(content); len(matches) > 1 {
			return strings.TrimPrefix(matches[1], "/")
		}
		if matches := partNameRe2.FindStringSubmatch(content); len(matches) > 1 {
			return strings.TrimPrefix(matches[1], "/")
		}
		return ""
	}
	return ""
}

// loadDocx extracts text from .docx bytes. DOCX is a ZIP containing
// word/document.xml (OOXML); all <w:t>...</w:t> text nodes are collected so
// content survives regardless of paragraph/run attributes.
func loadDocx(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open DOCX: not a zip: %w", err)
	}

	docPath := findDocxMainDocumentPath(zr)
	if docPath == "" {
		docPath = docxDocumentXMLPath
	}

	var docXML []byte
	for _, f := range zr.File {
		if f.Name != docPath {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open DOCX part %s: %w", f.Name, err)
		}
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(rc); err != nil {
			_ = rc.Close()
			return "", fmt.Errorf("read DOCX part %s: %w", f.Name, err)
		}
		_ = rc.Close()
		docXML = buf.Bytes()
		break
	}
	if docXML == nil {
		return "", fmt.Errorf("DOCX part %s not found", docPath)
	}

	parts := wtTag.FindAllStringSubmatch(string(docXML), -1)
	if len(parts) == 0 {
		return "", nil
	}
	var b strings.Builder
	for i, p := range parts {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strings.TrimSpace(p[1]))
	}
	return strings.TrimSpace(b.String()), nil
}
