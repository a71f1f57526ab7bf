package schema

import (
	"path/filepath"

	v1 "github.com/turbokube/assemble/pkg/schema/v1"
)

// BuildMode is one of DockerfileMode, GeneratedMode, ArchiveMode
type BuildMode interface {
	isBuildMode()
}

// DockerfileMode means the user supplied a Dockerfile that is validated and interpolated
type DockerfileMode struct {
	// Dockerfile is an absolute path
	Dockerfile string
	// ContextDir is an absolute path, the Dockerfile's directory unless configured
	ContextDir string
	// Filter is the interpolation delimiter spec
	Filter string
}

// GeneratedMode means the Dockerfile is synthesized from configuration
type GeneratedMode struct{}

// ArchiveMode means a prebuilt image archive is passed through as is
type ArchiveMode struct {
	// Path is an absolute path
	Path string
}

func (DockerfileMode) isBuildMode() {}
func (GeneratedMode) isBuildMode()  {}
func (ArchiveMode) isBuildMode()    {}

// Mode selects the build strategy. Relative paths are resolved against baseDir.
// Call Validate first, Mode does not check mutual exclusion.
func Mode(cfg v1.BuildConfiguration, baseDir string) BuildMode {
	abs := func(p string) string {
		if filepath.IsAbs(p) {
			return filepath.Clean(p)
		}
		return filepath.Join(baseDir, p)
	}
	if cfg.DockerArchive != "" {
		return ArchiveMode{Path: abs(cfg.DockerArchive)}
	}
	if cfg.Dockerfile == "" && cfg.ContextDir == "" {
		return GeneratedMode{}
	}
	filter := cfg.Filter
	if filter == "" {
		filter = DefaultFilter
	}
	m := DockerfileMode{Filter: filter}
	switch {
	case cfg.ContextDir != "" && cfg.Dockerfile == "":
		m.ContextDir = abs(cfg.ContextDir)
		m.Dockerfile = filepath.Join(m.ContextDir, DockerfileName)
	case cfg.ContextDir != "":
		m.ContextDir = abs(cfg.ContextDir)
		if filepath.IsAbs(cfg.Dockerfile) {
			m.Dockerfile = filepath.Clean(cfg.Dockerfile)
		} else {
			m.Dockerfile = filepath.Join(m.ContextDir, cfg.Dockerfile)
		}
	default:
		m.Dockerfile = abs(cfg.Dockerfile)
		m.ContextDir = filepath.Dir(m.Dockerfile)
	}
	return m
}
