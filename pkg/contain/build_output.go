package contain

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/distribution/reference"
	"github.com/turbokube/assemble/pkg/archive"
	"github.com/turbokube/assemble/pkg/assembly"
	"go.uber.org/zap"
)

// BuildOutput lists what was built, for the daemon client or daemonless builder that takes over
type BuildOutput struct {
	Builds []Artifact `json:"builds"`
	// Trace is internal, doesn't need to match the output of any other tool
	Trace *BuildTrace `json:"trace,omitempty"`
}

// Artifact is the result of one image pipeline
type Artifact struct {
	// Name without :tag or digest
	ImageName string `json:"imageName"`
	// Tag is the configured image name including tag
	Tag string `json:"tag"`
	// Mode is dockerfile, generated or archive
	Mode    string         `json:"mode"`
	Archive archive.Result `json:"archive"`
	// Dockerfile is the generated or interpolated Dockerfile, empty in archive mode
	Dockerfile  string             `json:"dockerfile,omitempty"`
	Dirs        assembly.BuildDirs `json:"dirs"`
	Layers      []LayerOutput      `json:"layers,omitempty"`
	Annotations map[string]string  `json:"annotations,omitempty"`
	BuildArgs   map[string]string  `json:"buildArgs,omitempty"`
	Tags        []string           `json:"tags,omitempty"`
	CacheFrom   []string           `json:"cacheFrom,omitempty"`
	Platforms   []string           `json:"platforms,omitempty"`
	NoCache     bool               `json:"noCache,omitempty"`
	Cleanup     string             `json:"cleanup,omitempty"`
}

// LayerOutput is the per layer file manifest
type LayerOutput struct {
	ID string `json:"id"`
	// DiffID is the uncompressed digest of the layer as an image layer rooted at the target dir
	DiffID  string               `json:"diffID,omitempty"`
	Entries []assembly.FileEntry `json:"entries"`
}

func newArtifact(image string) (*Artifact, error) {
	ref, err := reference.Parse(image)
	if err != nil {
		zap.L().Error("parse", zap.String("ref", image), zap.Error(err))
		return nil, err
	}
	named, ok := ref.(reference.Named)
	if !ok {
		return nil, fmt.Errorf("image %s has no name", image)
	}
	return &Artifact{
		ImageName: named.Name(),
		Tag:       image,
	}, nil
}

// Print writes the archive path for each built artifact
func (b *BuildOutput) Print(w io.Writer) {
	for _, a := range b.Builds {
		fmt.Fprintf(w, "%s %s\n", a.Tag, a.Archive.Path)
	}
}

func (b *BuildOutput) WriteJSON(w io.Writer) error {
	j, err := json.Marshal(b)
	if err != nil {
		return err
	}
	_, err = w.Write(j)
	return err
}

// Files rebuilds the assembly file tracker from the layer manifest, for change detection after a build
func (a Artifact) Files() *assembly.Files {
	files := assembly.NewFiles("", "")
	for _, l := range a.Layers {
		files.AddLayer(l.ID)
		for _, e := range l.Entries {
			files.Add(e)
		}
	}
	return files
}
