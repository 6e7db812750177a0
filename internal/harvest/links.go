package harvest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/html"
)

// ErrTooLarge is returned when a body exceeds the configured size limit
var ErrTooLarge = errors.New("body exceeds size limit")

// ExtractPDFLinks returns every <a href> on the page whose path ends in
// .pdf, resolved against base, deduplicated, in document order
func ExtractPDFLinks(htmlContent []byte, base *url.URL) ([]string, error) {
	doc, err := html.Parse(bytes.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	// a <base href> overrides the page URL for relative links
	if b := findBase(doc); b != "" {
		if u, err := base.Parse(b); err == nil {
			base = u
		}
	}

	seen := make(map[string]bool)
	var links []string

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			if href := attr(n, "href"); href != "" {
				if link, ok := resolvePDF(base, href); ok && !seen[link] {
					seen[link] = true
					links = append(links, link)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return links, nil
}

func resolvePDF(base *url.URL, href string) (string, bool) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", false
	}
	if !strings.HasSuffix(strings.ToLower(ref.Path), ".pdf") {
		return "", false
	}
	u := base.ResolveReference(ref)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	u.Fragment = ""
	return u.String(), true
}

func findBase(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "base" {
		return attr(n, "href")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBase(c); b != "" {
			return b
		}
	}
	return ""
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// FileName derives an upload file name from a document URL
func FileName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return path.Base(rawURL)
	}
	name := path.Base(u.Path)
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	if name == "/" || name == "." || name == "" {
		return "document.pdf"
	}
	return name
}

// ReadLimitedBody reads up to maxBytes from a reader and fails with
// ErrTooLarge if there is more
func ReadLimitedBody(body io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}
