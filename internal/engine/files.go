package engine

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/tendant/simple-curator/internal/curate"
)

// Images lists the kept images of a job. When the directory holds no
// *.jpg files the manifest is used instead.
func (e *Engine) Images(id string) ([]string, error) {
	dir, err := e.jobDir(id)
	if err != nil {
		return nil, err
	}
	files := jpegFiles(dir)
	if len(files) > 0 {
		return files, nil
	}

	entries, err := curate.ReadManifest(dir)
	if err != nil {
		return []string{}, nil
	}
	files = []string{}
	for _, m := range entries {
		if m.File != "" {
			files = append(files, m.File)
		}
	}
	return files, nil
}

// ImagePath resolves one file of a job's output directory. name must be a
// bare file name; the resolved path must stay inside the directory.
func (e *Engine) ImagePath(id, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return "", ErrInvalidFilename
	}
	dir, err := e.jobDir(id)
	if err != nil {
		return "", err
	}
	path, err := filepath.EvalSymlinks(filepath.Join(dir, name))
	if err != nil || !within(dir, path) {
		return "", ErrNotFound
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", ErrNotFound
	}
	return path, nil
}

// jobDir resolves a job's output directory with symlinks followed. It must
// exist and lie strictly below the project root.
func (e *Engine) jobDir(id string) (string, error) {
	ent := e.lookup(id)
	if ent == nil {
		return "", ErrNotFound
	}
	ent.mu.Lock()
	outDir := ent.job.OutDir
	ent.mu.Unlock()
	if outDir == "" {
		return "", ErrNotFound
	}

	dir, err := filepath.EvalSymlinks(e.abs(outDir))
	if err != nil || !within(e.root, dir) {
		return "", ErrNotFound
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", ErrNotFound
	}
	return dir, nil
}

// within reports whether child is a strict descendant of parent.
func within(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil || rel == "." {
		return false
	}
	return filepath.IsLocal(rel)
}
