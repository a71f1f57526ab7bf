package layers

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/afero"
	"github.com/turbokube/assemble/pkg/schema"
	v1 "github.com/turbokube/assemble/pkg/schema/v1"
	"go.uber.org/zap"
)

// ErrLayerID is returned when more than one layer is declared and any has a blank id
var ErrLayerID = fmt.Errorf("%w: layers require a proper id", schema.ErrConfiguration)

// ErrNoArtifact is returned by FindArtifact when the output dir has no artifact
var ErrNoArtifact = errors.New("no artifact found")

// Resolve returns the layers to process, in declaration order.
// Explicit layers win over inline file sets and files, which form a single root layer.
// With nothing declared, artifact (if non-empty) becomes the root layer.
func Resolve(assembly v1.AssemblyConfiguration, artifact string) ([]v1.Layer, error) {
	var result []v1.Layer
	switch {
	case len(assembly.Layers) > 0:
		if len(assembly.FileSets) > 0 || len(assembly.Files) > 0 {
			zap.L().Warn("inline fileSets and files are ignored when layers are declared",
				zap.String("assembly", assembly.Name))
		}
		result = slices.Clone(assembly.Layers)
	case len(assembly.FileSets) > 0 || len(assembly.Files) > 0:
		result = []v1.Layer{{FileSets: assembly.FileSets, Files: assembly.Files}}
	case artifact != "" && !assembly.ExcludeFinalOutputArtifact:
		zap.L().Debug("default artifact layer", zap.String("artifact", artifact))
		result = []v1.Layer{{Files: []v1.FileEntry{{Source: artifact}}}}
	default:
		return nil, nil
	}

	if err := validateIDs(result); err != nil {
		return nil, err
	}
	return result, nil
}

// Validate checks the ids of declared layers without touching the filesystem
func Validate(assembly v1.AssemblyConfiguration) error {
	return validateIDs(slices.Clone(assembly.Layers))
}

// validateIDs trims ids in place and rejects blank ids among several layers, unusable and duplicate ids
func validateIDs(result []v1.Layer) error {
	seen := make(map[string]bool, len(result))
	for i, l := range result {
		l.ID = strings.TrimSpace(l.ID)
		result[i] = l
		if len(result) > 1 && l.ID == "" {
			return fmt.Errorf("%w: layer %d of %d", ErrLayerID, i+1, len(result))
		}
		if l.ID == "." || l.ID == ".." || strings.ContainsAny(l.ID, `/\`) {
			return schema.ConfigError("layers.id", l.ID, "must be usable as a directory name")
		}
		if seen[l.ID] {
			return schema.ConfigError("layers.id", l.ID, "is declared more than once")
		}
		seen[l.ID] = true
	}
	return nil
}

// FindArtifact returns the most recently modified file in dir with one of extensions
func FindArtifact(fs afero.Fs, dir string, extensions []string) (string, error) {
	infos, err := afero.ReadDir(fs, dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w in %s", ErrNoArtifact, dir)
		}
		return "", err
	}
	var newest os.FileInfo
	for _, info := range infos {
		if info.IsDir() || !slices.Contains(extensions, filepath.Ext(info.Name())) {
			continue
		}
		if newest == nil || info.ModTime().After(newest.ModTime()) {
			newest = info
		}
	}
	if newest == nil {
		return "", fmt.Errorf("%w in %s with extension %v", ErrNoArtifact, dir, extensions)
	}
	return filepath.Join(dir, newest.Name()), nil
}
