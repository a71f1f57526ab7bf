// Package testcases has helpers for tests that need a real project directory
package testcases

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TempDir offers actions on a temp directory that is removed after the test
type TempDir struct {
	t    *testing.T
	root string
}

func NewTempDir(t *testing.T) *TempDir {
	return &TempDir{
		t:    t,
		root: t.TempDir(),
	}
}

// Root returns the temp directory.
func (h *TempDir) Root() string {
	return h.root
}

// Remove deletes a file from the temp directory.
func (h *TempDir) Remove(file string) *TempDir {
	return h.failIfErr(os.Remove(h.Path(file)))
}

// Chtimes sets access and modification time of a file in the temp directory.
func (h *TempDir) Chtimes(file string, t time.Time) *TempDir {
	return h.failIfErr(os.Chtimes(h.Path(file), t, t))
}

// Mkdir makes a sub-directory in the temp directory.
func (h *TempDir) Mkdir(dir string) *TempDir {
	return h.failIfErr(os.MkdirAll(h.Path(dir), 0755))
}

// Write writes content to a file in the temp directory, creating parents.
func (h *TempDir) Write(file, content string) *TempDir {
	return h.WriteMode(file, content, 0644)
}

func (h *TempDir) WriteMode(file, content string, mode os.FileMode) *TempDir {
	h.failIfErr(os.MkdirAll(filepath.Dir(h.Path(file)), 0755))
	h.failIfErr(os.WriteFile(h.Path(file), []byte(content), mode))
	return h.failIfErr(os.Chmod(h.Path(file), mode))
}

// WriteFiles writes files (path->content) in the temp directory.
func (h *TempDir) WriteFiles(files map[string]string) *TempDir {
	for path, content := range files {
		h.Write(path, content)
	}
	return h
}

// Read returns the content of a file in the temp directory.
func (h *TempDir) Read(file string) string {
	b, err := os.ReadFile(h.Path(file))
	h.failIfErr(err)
	return string(b)
}

// Path returns the path to a file in the temp directory, file uses / separators.
func (h *TempDir) Path(file string) string {
	elem := []string{h.root}
	elem = append(elem, strings.Split(file, "/")...)
	return filepath.Join(elem...)
}

func (h *TempDir) failIfErr(err error) *TempDir {
	if err != nil {
		h.t.Fatal(err)
	}
	return h
}
