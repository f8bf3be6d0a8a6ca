// Package source discovers inbox documents and extracts their text.
package source

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/TobiSchelling/flatdrop/internal/relocate"
)

// ErrUnsupported is returned for extensions without a reader.
var ErrUnsupported = errors.New("unsupported document type")

// Document is one candidate file in the inbox.
type Document struct {
	relocate.Source
	Name    string
	Ext     string
	Size    int64
	ModTime time.Time
}

// Fingerprint identifies this version of the file: name, size and
// modification time in seconds.
func (d Document) Fingerprint() string {
	secs := float64(d.ModTime.Unix()) + float64(d.ModTime.Nanosecond())/1e9
	return d.Name + "_" + strconv.FormatInt(d.Size, 10) + "_" + strconv.FormatFloat(secs, 'f', -1, 64)
}

// Discover walks inbox recursively and returns documents with one of exts,
// sorted by key. Hidden files and directories are skipped.
func Discover(vaultRoot, inbox string, exts []string) ([]Document, error) {
	want := make([]string, len(exts))
	for i, e := range exts {
		want[i] = strings.ToLower(e)
	}

	var docs []Document
	err := filepath.WalkDir(inbox, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && p != inbox {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(d.Name()))
		if !slices.Contains(want, ext) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(inbox, p)
		if err != nil {
			return err
		}
		key, err := filepath.Rel(vaultRoot, p)
		if err != nil || strings.HasPrefix(key, "..") {
			key = p
		}
		docs = append(docs, Document{
			Source: relocate.Source{
				Path: p,
				Key:  filepath.ToSlash(key),
				Rel:  filepath.ToSlash(rel),
			},
			Name:    d.Name(),
			Ext:     ext,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", inbox, err)
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Key < docs[j].Key })
	return docs, nil
}

// Read returns the text of doc using the reader for its extension.
func Read(doc Document) (string, error) {
	data, err := os.ReadFile(doc.Path)
	if err != nil {
		return "", err
	}
	switch doc.Ext {
	case ".md", ".markdown", ".txt":
		return string(data), nil
	case ".rtf":
		return StripRTF(string(data)), nil
	case ".html", ".htm":
		return readHTML(data, doc.Path)
	case ".rss", ".atom", ".xml":
		return readFeed(data)
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupported, doc.Ext)
}

// CountByType groups documents by extension without the dot.
func CountByType(docs []Document) map[string]int {
	out := make(map[string]int)
	for _, d := range docs {
		out[strings.TrimPrefix(d.Ext, ".")]++
	}
	return out
}

// Stat describes a single file given on the command line. Its key is the
// cleaned path itself.
func Stat(p string) (Document, error) {
	info, err := os.Stat(p)
	if err != nil {
		return Document{}, err
	}
	if info.IsDir() {
		return Document{}, fmt.Errorf("%s is a directory", p)
	}
	p = filepath.Clean(p)
	return Document{
		Source:  relocate.Source{Path: p, Key: filepath.ToSlash(p), Rel: info.Name()},
		Name:    info.Name(),
		Ext:     strings.ToLower(filepath.Ext(p)),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}
