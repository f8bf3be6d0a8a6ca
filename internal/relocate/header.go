package relocate

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Header is the front matter written at the top of every fragment file.
// Field order is the on-disk order.
type Header struct {
	ChunkID             string         `yaml:"chunk_id"`
	ExtractionDate      string         `yaml:"extraction_date"`
	ChunkSource         string         `yaml:"chunk_source"`
	SourceChunkSequence int            `yaml:"source_chunk_sequence"`
	TotalChunks         int            `yaml:"total_chunks"`
	ContentDate         *string        `yaml:"content_date"`
	ContentDateType     *string        `yaml:"content_date_type"`
	ContentDateStatus   string         `yaml:"content_date_status"`
	QualityScore        float64        `yaml:"quality_score"`
	QualityHistory      []QualityEntry `yaml:"quality_history"`
	Disposition         string         `yaml:"disposition"`
	Status              string         `yaml:"status"`
	Priority            int            `yaml:"priority"`
	Theme               string         `yaml:"theme"`
	CoordinateKey       string         `yaml:"coordinate_key"`
	Tags                []string       `yaml:"tags"`
	Modality            []string       `yaml:"modality"`
	WordCount           int            `yaml:"word_count"`
	ParentPiece         *string        `yaml:"parent_piece"`
	ParentPieceStatus   string         `yaml:"parent_piece_status"`
	NextAction          *string        `yaml:"next_action"`
	Annotations         *string        `yaml:"annotations"`
}

type QualityEntry struct {
	Score       float64 `yaml:"score"`
	Date        string  `yaml:"date"`
	Method      string  `yaml:"method"`
	HumanEdited bool    `yaml:"human_edited"`
}

var sectionComments = map[string]string{
	"chunk_id":       "# Identity",
	"content_date":   "# Temporal",
	"quality_score":  "# Quality",
	"disposition":    "# Routing",
	"coordinate_key": "# Coordinates",
	"modality":       "# Content",
	"parent_piece":   "# Assembly",
	"next_action":    "# Workflow",
}

// Render writes the header as front matter followed by body.
func Render(h Header, body string) ([]byte, error) {
	var node yaml.Node
	if err := node.Encode(h); err != nil {
		return nil, fmt.Errorf("encoding header: %w", err)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if c, ok := sectionComments[node.Content[i].Value]; ok {
			node.Content[i].HeadComment = c
		}
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return nil, fmt.Errorf("encoding header: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding header: %w", err)
	}
	buf.WriteString("---\n\n")
	buf.WriteString(strings.TrimRight(body, "\n"))
	buf.WriteString("\n")
	return buf.Bytes(), nil
}

var errNoHeader = errors.New("no front matter")

// ParseHeader splits a fragment file into its header and body.
func ParseHeader(data []byte) (Header, string, error) {
	var h Header
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	if !strings.HasPrefix(text, "---\n") {
		return h, text, errNoHeader
	}
	front, body, ok := strings.Cut(text[4:], "\n---\n")
	if !ok {
		return h, text, errNoHeader
	}
	if err := yaml.Unmarshal([]byte(front), &h); err != nil {
		return h, text, fmt.Errorf("parsing front matter: %w", err)
	}
	return h, strings.TrimLeft(body, "\n"), nil
}
