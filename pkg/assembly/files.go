package assembly

import (
	"os"
	"slices"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// FileEntry is one assembled file, identified by source and destination
type FileEntry struct {
	// Layer is the layer id, empty for the root layer
	Layer  string `json:"layer,omitempty"`
	Source string `json:"source"`
	// Dest is where the file was copied to on the build host
	Dest string `json:"dest"`
	// Target is the absolute path in the image
	Target string `json:"target"`
	// FileMode is an octal mode string when one was configured
	FileMode     string    `json:"fileMode,omitempty"`
	LastModified time.Time `json:"lastModified"`
}

// Files tracks the entries of one assembly, per layer in declaration order.
// Not safe for concurrent use.
type Files struct {
	Name      string
	TargetDir string
	layers    []string
	entries   map[string][]*FileEntry
}

func NewFiles(name, targetDir string) *Files {
	return &Files{
		Name:      name,
		TargetDir: targetDir,
		entries:   map[string][]*FileEntry{},
	}
}

// AddLayer registers a layer so it is listed even without entries
func (f *Files) AddLayer(layer string) {
	if _, ok := f.entries[layer]; !ok {
		f.layers = append(f.layers, layer)
		f.entries[layer] = nil
	}
}

// Add records an entry, replacing any entry with the same source and destination
func (f *Files) Add(e FileEntry) {
	f.AddLayer(e.Layer)
	for i, existing := range f.entries[e.Layer] {
		if existing.Source == e.Source && existing.Dest == e.Dest {
			f.entries[e.Layer][i] = &e
			return
		}
	}
	f.entries[e.Layer] = append(f.entries[e.Layer], &e)
}

// Layers returns layer ids in declaration order
func (f *Files) Layers() []string {
	return slices.Clone(f.layers)
}

func (f *Files) Entries(layer string) []FileEntry {
	out := make([]FileEntry, 0, len(f.entries[layer]))
	for _, e := range f.entries[layer] {
		out = append(out, *e)
	}
	return out
}

// All returns entries of all layers in layer order
func (f *Files) All() []FileEntry {
	var out []FileEntry
	for _, l := range f.layers {
		out = append(out, f.Entries(l)...)
	}
	return out
}

// RecordAndGetChanged returns entries whose source was modified since the last call, or since assembly.
// Returned entries get the observed modification time recorded so they are not returned again until touched.
func (f *Files) RecordAndGetChanged(fs afero.Fs) ([]FileEntry, error) {
	var changed []FileEntry
	for _, l := range f.layers {
		for _, e := range f.entries[l] {
			info, err := fs.Stat(e.Source)
			if err != nil {
				if os.IsNotExist(err) {
					zap.L().Warn("assembled source is gone", zap.String("source", e.Source))
					continue
				}
				return nil, err
			}
			if info.ModTime().After(e.LastModified) {
				e.LastModified = info.ModTime()
				changed = append(changed, *e)
			}
		}
	}
	return changed, nil
}

// UpdatedEntries groups entries by layer
func UpdatedEntries(entries []FileEntry) map[string][]FileEntry {
	out := map[string][]FileEntry{}
	for _, e := range entries {
		out[e.Layer] = append(out[e.Layer], e)
	}
	return out
}
