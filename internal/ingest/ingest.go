// Package ingest turns input files into corpus text. Plain text passes
// through untouched; HTML is reduced to its readable text first.
package ingest

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
)

// Kind is the format of an input document.
type Kind int

const (
	// KindText is plain UTF-8 text.
	KindText Kind = iota
	// KindHTML is an HTML page.
	KindHTML
)

// KindFromPath guesses the document format from the file extension.
func KindFromPath(path string) Kind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm", ".xhtml":
		return KindHTML
	default:
		return KindText
	}
}

// Open returns a reader over the corpus text of the file at path. The caller
// closes it.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if KindFromPath(path) == KindText {
		return f, nil
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	pageURL := &url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	text, err := HTMLText(f, pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to extract text from %s: %w", path, err)
	}
	return io.NopCloser(strings.NewReader(text)), nil
}

// ReadFile returns the corpus text of the file at path.
func ReadFile(path string) (string, error) {
	rc, err := Open(path)
	if err != nil {
		return "", err
	}
	defer func(rc io.ReadCloser) {
		_ = rc.Close()
	}(rc)
	data, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// HTMLText extracts the readable text of an HTML document. pageURL may be nil.
// go-readability picks the main content first; when it finds none the whole
// document is used. Text nodes are joined with spaces so words in adjacent
// elements never run together. Script and style contents are dropped.
func HTMLText(r io.Reader, pageURL *url.URL) (string, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}

	if pageURL == nil {
		pageURL = &url.URL{Scheme: "http", Host: "localhost", Path: "/"}
	}
	parser := readability.NewParser()
	article, err := parser.Parse(bytes.NewReader(raw), pageURL)
	if err == nil && strings.TrimSpace(article.Content) != "" {
		text, err := textOf(strings.NewReader(article.Content))
		if err == nil && text != "" {
			return text, nil
		}
	}

	return textOf(bytes.NewReader(raw))
}

// textOf walks the document in order and collects its text nodes.
func textOf(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", err
	}

	var parts []string
	var walk func(s *goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, c *goquery.Selection) {
			switch goquery.NodeName(c) {
			case "#text":
				if t := strings.TrimSpace(c.Text()); t != "" {
					parts = append(parts, t)
				}
			case "script", "style", "noscript", "template", "head":
			default:
				walk(c)
			}
		})
	}
	walk(doc.Selection)
	return strings.Join(parts, " "), nil
}
