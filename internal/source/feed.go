package source

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"
)

// readFeed flattens an exported journal feed into one document: each entry
// becomes a titled, dated section.
func readFeed(data []byte) (string, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("parsing feed: %w", err)
	}

	var sections []string
	for _, item := range feed.Items {
		if s := feedSection(item); s != "" {
			sections = append(sections, s)
		}
	}
	return strings.Join(sections, "\n\n"), nil
}

func feedSection(item *gofeed.Item) string {
	body := item.Content
	if body == "" {
		body = item.Description
	}
	text, err := HTMLText(body)
	if err != nil {
		text = strings.TrimSpace(body)
	}

	var head []string
	if title := strings.TrimSpace(item.Title); title != "" {
		head = append(head, title)
	}
	if item.PublishedParsed != nil {
		head = append(head, item.PublishedParsed.Format("2006-01-02"))
	} else if item.UpdatedParsed != nil {
		head = append(head, item.UpdatedParsed.Format("2006-01-02"))
	}

	switch {
	case len(head) == 0:
		return text
	case text == "":
		return strings.Join(head, " - ")
	}
	return strings.Join(head, " - ") + "\n\n" + text
}
