// Package clean prepares raw document text for analysis.
//
// Order:
//  1. drop invalid UTF-8 and normalize line endings
//  2. strip a leading --- delimited header block
//  3. remove configured export artifacts
//  4. NFKC normalization and removal of format characters (ZWJ, BOM, ...)
//  5. collapse runs of blank lines and horizontal whitespace
package clean

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	manyNewlines = regexp.MustCompile(`\n{3,}`)
	hspace       = regexp.MustCompile(`[ \t]+`)
	trailing     = regexp.MustCompile(`(?m)[ \t]+$`)
)

var chainPool = sync.Pool{
	New: func() any {
		return transform.Chain(
			norm.NFKC,
			runes.Remove(runes.In(unicode.Cf)),
		)
	},
}

// Cleaner is safe for concurrent use.
type Cleaner struct {
	artifacts []*regexp.Regexp
}

// New compiles the artifact patterns case-insensitively.
func New(artifactPatterns []string) (*Cleaner, error) {
	c := &Cleaner{}
	for _, expr := range artifactPatterns {
		re, err := regexp.Compile("(?i)" + expr)
		if err != nil {
			return nil, fmt.Errorf("compiling artifact pattern %q: %w", expr, err)
		}
		c.artifacts = append(c.artifacts, re)
	}
	return c, nil
}

// Clean runs the full preparation pipeline.
func (c *Cleaner) Clean(text string) string {
	text = strings.ToValidUTF8(text, "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	text = StripHeader(text)
	for _, re := range c.artifacts {
		text = re.ReplaceAllString(text, "")
	}

	tr := chainPool.Get().(transform.Transformer)
	if out, _, err := transform.String(tr, text); err == nil {
		text = out
	}
	tr.Reset()
	chainPool.Put(tr)

	text = hspace.ReplaceAllString(text, " ")
	text = trailing.ReplaceAllString(text, "")
	text = manyNewlines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// StripHeader removes a header block that opens with a --- line at the top
// of the text and closes with the next --- line. Text without a closing
// delimiter is returned unchanged.
func StripHeader(text string) string {
	body := strings.TrimLeft(text, " \t\n")
	first, rest, ok := strings.Cut(body, "\n")
	if !ok || strings.TrimSpace(first) != "---" {
		return text
	}
	for offset := 0; ; {
		line, after, more := strings.Cut(rest[offset:], "\n")
		if strings.TrimSpace(line) == "---" {
			if !more {
				return ""
			}
			return strings.TrimLeft(after, " \t\n")
		}
		if !more {
			return text
		}
		offset += len(line) + 1
	}
}
