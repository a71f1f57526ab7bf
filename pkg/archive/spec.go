// Package archive writes reproducible build context tarballs.
package archive

import (
	"fmt"
	"maps"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/turbokube/assemble/pkg/schema"
)

// BaseName is the archive file name without extension
const BaseName = "docker-build"

// Entry adds a file or directory tree at Name, replacing anything at the same name under Root
type Entry struct {
	Source string
	Name   string
}

// Spec describes an archive. Customizers return modified copies.
type Spec struct {
	// Image is used in error messages
	Image string
	// Root is walked recursively, names are relative to it
	Root    string
	Entries []Entry
	// Modes override file modes by archive name
	Modes        map[string]os.FileMode
	Excludes     []string
	Compression  schema.Compression
	LongFileMode schema.TarLongFileMode
}

// Customizer returns a modified copy of spec
type Customizer func(Spec) (Spec, error)

// NewSpec applies customizers in order
func NewSpec(image string, root string, customizers ...Customizer) (Spec, error) {
	spec := Spec{Image: image, Root: root}
	for _, c := range customizers {
		var err error
		if spec, err = c(spec); err != nil {
			return Spec{}, fmt.Errorf("archive for image %s: %w", image, err)
		}
	}
	return spec, nil
}

// Name normalizes a path to an archive name: forward slashes, relative, no leading slash
func Name(p string) string {
	n := path.Clean(strings.TrimPrefix(filepath.ToSlash(p), "/"))
	if n == "." {
		return ""
	}
	return n
}

// Path is the archive file in dir, with extension from compression
func (s Spec) Path(dir string) string {
	return filepath.Join(dir, BaseName+s.Compression.Extension())
}

// WithDockerfile puts the file at path as Dockerfile in the archive root
func WithDockerfile(path string) Customizer {
	return WithEntries(Entry{Source: path, Name: schema.DockerfileName})
}

func WithEntries(entries ...Entry) Customizer {
	return func(s Spec) (Spec, error) {
		for _, e := range entries {
			if Name(e.Name) == "" && e.Source == "" {
				return s, fmt.Errorf("archive entry requires source or name, got %v", e)
			}
		}
		s.Entries = append(slices.Clone(s.Entries), entries...)
		return s, nil
	}
}

// WithFileModes sets explicit modes from octal strings keyed by path relative to the archive root
func WithFileModes(modes map[string]string) Customizer {
	return func(s Spec) (Spec, error) {
		out := maps.Clone(s.Modes)
		if out == nil {
			out = make(map[string]os.FileMode, len(modes))
		}
		for p, m := range modes {
			mode, err := strconv.ParseUint(m, 8, 32)
			if err != nil {
				return s, schema.ConfigError("fileMode", m, fmt.Sprintf("for %s is not an octal file mode", p))
			}
			out[Name(p)] = os.FileMode(mode)
		}
		s.Modes = out
		return s, nil
	}
}

// WithExcludes adds patternmatcher patterns, matched against archive names
func WithExcludes(patterns ...string) Customizer {
	return func(s Spec) (Spec, error) {
		s.Excludes = append(slices.Clone(s.Excludes), patterns...)
		return s, nil
	}
}

func WithCompression(c schema.Compression) Customizer {
	return func(s Spec) (Spec, error) {
		s.Compression = c
		return s, nil
	}
}

func WithLongFileMode(m schema.TarLongFileMode) Customizer {
	return func(s Spec) (Spec, error) {
		s.LongFileMode = m
		return s, nil
	}
}
