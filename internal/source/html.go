package source

import (
	"bytes"
	"errors"
	"io"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

// readHTML extracts the main text of a saved page or chat export. Pages that
// readability cannot reduce fall back to a plain text walk of the document.
func readHTML(data []byte, path string) (string, error) {
	pageURL := &url.URL{Scheme: "file", Path: path}
	article, err := readability.FromReader(bytes.NewReader(data), pageURL)
	if err == nil {
		text := strings.TrimSpace(article.TextContent)
		if len(text) > 100 {
			if title := strings.TrimSpace(article.Title); title != "" && !strings.HasPrefix(text, title) {
				text = title + "\n\n" + text
			}
			return text, nil
		}
	}
	return HTMLText(string(data))
}

var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true, "section": true, "article": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true, "blockquote": true, "pre": true,
}

// HTMLText returns the visible text of an HTML snippet with block elements
// separated by blank lines.
func HTMLText(s string) (string, error) {
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	skip := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return "", err
			}
			return collapseBlank(b.String()), nil
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if tt == html.StartTagToken && (tag == "script" || tag == "style") {
				skip++
			}
			if blockTags[tag] {
				b.WriteString("\n\n")
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if (tag == "script" || tag == "style") && skip > 0 {
				skip--
			}
			if blockTags[tag] {
				b.WriteString("\n\n")
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

func collapseBlank(s string) string {
	var paras []string
	for _, p := range strings.Split(s, "\n\n") {
		p = strings.Join(strings.Fields(p), " ")
		if p != "" {
			paras = append(paras, p)
		}
	}
	return strings.Join(paras, "\n\n")
}
