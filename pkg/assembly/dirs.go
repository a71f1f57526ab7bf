package assembly

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/distribution/reference"
	"github.com/spf13/afero"
	"github.com/turbokube/assemble/pkg/schema"
	"go.uber.org/zap"
)

// BuildDirs are the per image directories under an output base
type BuildDirs struct {
	// Base is the global output base shared by all images
	Base string `json:"base"`
	// Build is the build context root
	Build string `json:"build"`
	// Work is scratch space, used for tar mode assembly
	Work string `json:"work"`
	// Tmp holds transient archives
	Tmp string `json:"tmp"`
}

// NewBuildDirs computes <base>/<image with : as />/{build,work,tmp} and creates the directories
func NewBuildDirs(fs afero.Fs, outputBase string, image string) (BuildDirs, error) {
	if _, err := reference.ParseNormalizedNamed(image); err != nil {
		return BuildDirs{}, schema.ConfigError("name", image, err.Error())
	}
	root := filepath.Join(outputBase, filepath.FromSlash(strings.ReplaceAll(image, ":", "/")))
	dirs := BuildDirs{
		Base:  outputBase,
		Build: filepath.Join(root, "build"),
		Work:  filepath.Join(root, "work"),
		Tmp:   filepath.Join(root, "tmp"),
	}
	for _, d := range []string{dirs.Build, dirs.Work, dirs.Tmp} {
		if err := fs.MkdirAll(d, 0755); err != nil {
			return BuildDirs{}, fmt.Errorf("create build directory %s for image %s: %w", d, image, err)
		}
	}
	zap.L().Debug("build dirs", zap.String("image", image), zap.String("build", dirs.Build))
	return dirs, nil
}

// Clean empties Build and Work so a rebuild only ships the current layers
func (d BuildDirs) Clean(fs afero.Fs) error {
	for _, dir := range []string{d.Build, d.Work} {
		if err := fs.RemoveAll(dir); err != nil {
			return fmt.Errorf("clean %s: %w", dir, err)
		}
		if err := fs.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create build directory %s: %w", dir, err)
		}
	}
	return nil
}
