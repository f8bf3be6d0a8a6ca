package pipeline

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/TobiSchelling/flatdrop/internal/relocate"
)

// Backup copies the inbox tree to <dest>/<inbox name>. dest must not exist.
func Backup(inbox, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("backup %s already exists", dest)
	}
	target := filepath.Join(dest, filepath.Base(inbox))
	return filepath.WalkDir(inbox, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(inbox, p)
		if err != nil {
			return err
		}
		out := filepath.Join(target, rel)
		if d.IsDir() {
			return os.MkdirAll(out, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return relocate.CopyFile(p, out)
	})
}
