// Package relocate writes classified fragments into the vault and archives
// their source documents.
package relocate

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/TobiSchelling/flatdrop/internal/chunk"
	"github.com/TobiSchelling/flatdrop/internal/logger"
	"github.com/TobiSchelling/flatdrop/internal/triage"
)

// Operations reported in Error.Op.
const (
	OpWrite   = "write"
	OpArchive = "archive"
)

// Error describes a failed filesystem step of a placement.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Source identifies an inbox document.
type Source struct {
	// Path is the absolute location.
	Path string
	// Key is the slash separated path relative to the vault root.
	Key string
	// Rel is the slash separated path relative to the inbox.
	Rel string
}

// Item pairs a fragment with its routing decision.
type Item struct {
	Fragment chunk.Fragment
	Decision triage.Decision
}

// Placed describes one written fragment file.
type Placed struct {
	ID       string
	Path     string
	Dest     string
	Sequence int
	Item
}

// Placement is the result of relocating one document.
type Placement struct {
	Fragments   []Placed
	ArchivePath string
}

// IDGenerator yields timestamp-and-counter identifiers. The counter never
// repeats within one generator.
type IDGenerator struct {
	now func() time.Time
	n   atomic.Int64
}

func NewIDGenerator(now func() time.Time) *IDGenerator {
	if now == nil {
		now = time.Now
	}
	return &IDGenerator{now: now}
}

// Next returns an identifier such as 20261014-093012-chunk-007.
func (g *IDGenerator) Next() string {
	n := g.n.Add(1)
	return fmt.Sprintf("%s-chunk-%03d", g.now().Format("20060102-150405"), n)
}

// Engine performs placements under one vault root.
type Engine struct {
	root    string
	archive string
	ids     *IDGenerator
	now     func() time.Time
	log     *logger.Logger
}

// New creates an engine. now may be nil.
func New(vaultRoot, archiveDir string, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{
		root:    vaultRoot,
		archive: archiveDir,
		ids:     NewIDGenerator(now),
		now:     now,
		log:     logger.Named("relocate"),
	}
}

// Place writes every fragment of src and then archives src. Either all of it
// happens or, on error, the fragments already written are removed and src is
// left where it was.
func (e *Engine) Place(src Source, items []Item) (Placement, error) {
	var p Placement
	rollback := func() {
		for _, f := range p.Fragments {
			if err := os.Remove(f.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				e.log.Warn().Err(err).Str("path", f.Path).Msg("rollback failed")
			}
		}
	}

	for _, it := range items {
		placed, err := e.write(src, it)
		if err != nil {
			rollback()
			return Placement{}, err
		}
		p.Fragments = append(p.Fragments, placed)
	}

	archived, err := e.Archive(src)
	if err != nil {
		rollback()
		return Placement{}, err
	}
	p.ArchivePath = archived
	return p, nil
}

func (e *Engine) write(src Source, it Item) (Placed, error) {
	dir := filepath.Join(e.root, filepath.FromSlash(it.Decision.Dir))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Placed{}, &Error{Op: OpWrite, Path: dir, Err: err}
	}

	f, id, err := e.createUnique(dir)
	if err != nil {
		return Placed{}, &Error{Op: OpWrite, Path: dir, Err: err}
	}
	placed := Placed{
		ID:       id,
		Path:     f.Name(),
		Dest:     it.Decision.Dir,
		Sequence: it.Fragment.Sequence,
		Item:     it,
	}

	data, err := Render(e.header(id, src, it), it.Fragment.Text)
	if err == nil {
		_, err = f.Write(data)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(placed.Path)
		return Placed{}, &Error{Op: OpWrite, Path: placed.Path, Err: err}
	}
	return placed, nil
}

// createUnique opens a new file named after the next free identifier.
func (e *Engine) createUnique(dir string) (*os.File, string, error) {
	for attempt := 0; attempt < 1000; attempt++ {
		id := e.ids.Next()
		f, err := os.OpenFile(filepath.Join(dir, id+".md"), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, "", err
		}
		return f, id, nil
	}
	return nil, "", fmt.Errorf("no free identifier in %s", dir)
}

func (e *Engine) header(id string, src Source, it Item) Header {
	now := e.now()
	frag := it.Fragment
	h := Header{
		ChunkID:             id,
		ExtractionDate:      now.Format(time.RFC3339),
		ChunkSource:         src.Key,
		SourceChunkSequence: frag.Sequence,
		TotalChunks:         frag.Total,
		ContentDateStatus:   DateStatusNeeded,
		QualityScore:        frag.Score,
		QualityHistory: []QualityEntry{{
			Score:  frag.Score,
			Date:   now.Format(time.RFC3339),
			Method: "pattern-" + string(frag.Method),
		}},
		Disposition:       string(it.Decision.Disposition),
		Status:            it.Decision.Status,
		Priority:          it.Decision.Priority,
		Theme:             frag.Theme,
		CoordinateKey:     frag.Coordinate.Key(),
		Tags:              frag.Coordinate.Tags(),
		Modality:          Modality(frag.Text),
		WordCount:         frag.Words(),
		ParentPieceStatus: "unassigned",
	}
	if date, ok := ContentDate(frag.Text); ok {
		kind := DateTypeApproximate
		h.ContentDate, h.ContentDateType = &date, &kind
		h.ContentDateStatus = DateStatusExtracted
	}
	return h
}

// Archive moves src under the archive root, mirroring its inbox-relative
// path. An existing archive file is never overwritten.
func (e *Engine) Archive(src Source) (string, error) {
	dest := filepath.Join(e.archive, filepath.FromSlash(path.Clean(src.Rel)))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", &Error{Op: OpArchive, Path: dest, Err: err}
	}
	dest = e.freeName(dest)

	if err := move(src.Path, dest); err != nil {
		return "", &Error{Op: OpArchive, Path: src.Path, Err: err}
	}
	e.log.Debug().Str("source", src.Key).Str("archive", dest).Msg("archived")
	return dest, nil
}

func (e *Engine) freeName(dest string) string {
	if _, err := os.Lstat(dest); errors.Is(err, fs.ErrNotExist) {
		return dest
	}
	ext := filepath.Ext(dest)
	base := strings.TrimSuffix(dest, ext)
	stamp := e.now().Format("20060102-150405")
	for i := 0; ; i++ {
		candidate := fmt.Sprintf("%s.%s%s", base, stamp, ext)
		if i > 0 {
			candidate = fmt.Sprintf("%s.%s-%d%s", base, stamp, i, ext)
		}
		if _, err := os.Lstat(candidate); errors.Is(err, fs.ErrNotExist) {
			return candidate
		}
	}
}

// move renames src to dst, copying across devices when needed.
func move(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil || !errors.Is(err, syscall.EXDEV) {
		return err
	}

	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if err := copyFile(src, dst, info); err != nil {
		os.Remove(dst)
		return err
	}
	return os.Remove(src)
}

// CopyFile copies src to dst preserving mode and modification time.
func CopyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	return copyFile(src, dst, info)
}

func copyFile(src, dst string, info fs.FileInfo) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
