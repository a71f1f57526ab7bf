package assembly

import (
	"errors"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/turbokube/assemble/pkg/layers"
	"github.com/turbokube/assemble/pkg/schema"
	"go.uber.org/zap"
)

// DefaultOutputDir is the project build output, relative to the base dir
const DefaultOutputDir = "target"

// Project is the build tool's view of the code being assembled
type Project struct {
	BaseDir string
	// OutputDir is where the project build puts its artifacts
	OutputDir  string
	Properties map[string]string
	// Artifact is the final build artifact, found in OutputDir when empty
	Artifact           string
	ArtifactExtensions []string
}

func (p Project) outputDir() string {
	dir := p.OutputDir
	if dir == "" {
		dir = DefaultOutputDir
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(p.BaseDir, dir)
}

// FindArtifact returns Artifact or the newest file with an artifact extension in OutputDir, empty if none
func (p Project) FindArtifact(fs afero.Fs) (string, error) {
	if p.Artifact != "" {
		return p.Artifact, nil
	}
	extensions := p.ArtifactExtensions
	if len(extensions) == 0 {
		extensions = schema.ArtifactExtensions()
	}
	found, err := layers.FindArtifact(fs, p.outputDir(), extensions)
	if errors.Is(err, layers.ErrNoArtifact) {
		zap.L().Debug("no project artifact", zap.Error(err))
		return "", nil
	}
	return found, err
}
