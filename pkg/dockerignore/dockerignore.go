// Package dockerignore reads build context ignore files.
package dockerignore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/moby/patternmatcher/ignorefile"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const FileName = ".dockerignore"

// Read returns the patterns of contextDir/.dockerignore, nil if there is none
func Read(fs afero.Fs, contextDir string) ([]string, error) {
	file := filepath.Join(contextDir, FileName)
	f, err := fs.Open(file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	patterns, err := ignorefile.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	zap.L().Debug("dockerignore", zap.String("file", file), zap.Strings("patterns", patterns))
	return patterns, nil
}
