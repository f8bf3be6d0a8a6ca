package relocate

import (
	"path"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

var md = goldmark.New(goldmark.WithExtensions(extension.Linkify))

// Obsidian style embeds: ![[file.ext]] or ![[file.ext|alias]]
var wikiEmbed = regexp.MustCompile(`!\[\[([^\]|]+)(?:\|[^\]]*)?\]\]`)

var mediaKinds = map[string]string{
	".png": "image", ".jpg": "image", ".jpeg": "image", ".gif": "image", ".webp": "image", ".svg": "image",
	".mp4": "video", ".mov": "video", ".webm": "video", ".mkv": "video",
	".mp3": "audio", ".wav": "audio", ".m4a": "audio", ".ogg": "audio", ".flac": "audio",
}

var modalityOrder = []string{"text", "image", "video", "audio", "weblink", "code"}

// Modality lists the content kinds present in a markdown body. "text" is
// always present.
func Modality(body string) []string {
	found := map[string]bool{"text": true}

	for _, m := range wikiEmbed.FindAllStringSubmatch(body, -1) {
		if kind, ok := mediaKinds[strings.ToLower(path.Ext(strings.TrimSpace(m[1])))]; ok {
			found[kind] = true
		}
	}

	src := []byte(body)
	doc := md.Parser().Parse(text.NewReader(src))
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Image:
			kind, ok := mediaKinds[strings.ToLower(path.Ext(string(node.Destination)))]
			if !ok {
				kind = "image"
			}
			found[kind] = true
		case *ast.Link:
			if isWebURL(string(node.Destination)) {
				found["weblink"] = true
			}
		case *ast.AutoLink:
			if node.AutoLinkType == ast.AutoLinkURL {
				found["weblink"] = true
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			found["code"] = true
		}
		return ast.WalkContinue, nil
	})

	var out []string
	for _, k := range modalityOrder {
		if found[k] {
			out = append(out, k)
		}
	}
	return out
}

func isWebURL(s string) bool {
	s = strings.ToLower(s)
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "www.")
}
