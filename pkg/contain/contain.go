// Package contain runs the per image pipeline from configuration to build archive.
package contain

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/turbokube/assemble/pkg/annotate"
	"github.com/turbokube/assemble/pkg/archive"
	"github.com/turbokube/assemble/pkg/assembly"
	"github.com/turbokube/assemble/pkg/dockerfile"
	"github.com/turbokube/assemble/pkg/dockerignore"
	"github.com/turbokube/assemble/pkg/layers"
	"github.com/turbokube/assemble/pkg/resolve"
	"github.com/turbokube/assemble/pkg/schema"
	v1 "github.com/turbokube/assemble/pkg/schema/v1"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// State is a pipeline stage; an image only moves forward
type State int

const (
	Configured State = iota
	DirectoriesCreated
	FilesAssembled
	DockerfileSynthesized
	DockerfileValidated
	Archived
)

func (s State) String() string {
	return [...]string{
		"CONFIGURED",
		"DIRECTORIES_CREATED",
		"FILES_ASSEMBLED",
		"DOCKERFILE_SYNTHESIZED",
		"DOCKERFILE_VALIDATED",
		"ARCHIVED",
	}[s]
}

// ImageError is the one error for a failed image, Stage is the last state reached
type ImageError struct {
	Image string
	Stage State
	Err   error
}

func (e *ImageError) Error() string {
	return fmt.Sprintf("image %s failed after %s: %v", e.Image, e.Stage, e.Err)
}

func (e *ImageError) Unwrap() error {
	return e.Err
}

// Options are shared by all images of a build and never modified
type Options struct {
	Fs afero.Fs
	// OutputBase is the root of per image build dirs
	OutputBase string
	// Properties are -D style overrides, used for configuration and Dockerfile interpolation
	Properties     map[string]string
	PropertyMode   resolve.PropertyMode
	PropertyPrefix string
	// Workers bounds file copy parallelism per image
	Workers  int
	Progress assembly.Progress
	// Parallelism bounds concurrent images, 0 for no limit
	Parallelism int
	// FailFast cancels remaining images after the first failure
	FailFast bool
}

func (o Options) fs() afero.Fs {
	if o.Fs == nil {
		return schema.Fs
	}
	return o.Fs
}

type pipeline struct {
	image string
	state State
	opts  Options
}

func (p *pipeline) advance(s State) {
	p.state = s
	zap.L().Debug("state", zap.String("image", p.image), zap.Stringer("state", s))
}

func (p *pipeline) fail(err error) error {
	return &ImageError{Image: p.image, Stage: p.state, Err: err}
}

// Run builds one image's archive
func Run(ctx context.Context, image v1.ImageConfiguration, project assembly.Project, opts Options) (*Artifact, error) {
	p := &pipeline{image: image.Name, opts: opts}
	if image.Name == "" {
		return nil, p.fail(schema.ConfigError("name", "", "is required"))
	}
	prefix := opts.PropertyPrefix
	if prefix == "" {
		prefix = resolve.DefaultPrefix
	}
	cfg, err := resolve.New(prefix, opts.Properties, opts.PropertyMode).ResolveBuildConfiguration(image.Build)
	if err != nil {
		return nil, p.fail(err)
	}
	mode, err := validate(cfg, project)
	if err != nil {
		return nil, p.fail(err)
	}
	artifact, err := newArtifact(image.Name)
	if err != nil {
		return nil, p.fail(schema.ConfigError("name", image.Name, err.Error()))
	}
	artifact.BuildArgs = cfg.Args
	artifact.Tags = cfg.Tags
	artifact.CacheFrom = cfg.CacheFrom
	artifact.Platforms = cfg.Platforms
	artifact.NoCache = cfg.NoCache != nil && *cfg.NoCache
	artifact.Cleanup = cfg.Cleanup
	p.advance(Configured)

	fs := opts.fs()
	dirs, err := assembly.NewBuildDirs(fs, opts.OutputBase, image.Name)
	if err != nil {
		return nil, p.fail(err)
	}
	artifact.Dirs = dirs
	p.advance(DirectoriesCreated)

	switch m := mode.(type) {
	case schema.ArchiveMode:
		artifact.Mode = "archive"
		if artifact.Archive, err = archive.Stat(fs, m.Path); err != nil {
			return nil, p.fail(err)
		}
	case schema.GeneratedMode:
		artifact.Mode = "generated"
		err = p.generated(ctx, cfg, dirs, project, artifact)
	case schema.DockerfileMode:
		artifact.Mode = "dockerfile"
		err = p.dockerfile(ctx, cfg, m, dirs, project, artifact)
	default:
		err = fmt.Errorf("unsupported build mode %T", m)
	}
	if err != nil {
		return nil, p.fail(err)
	}
	p.advance(Archived)
	zap.L().Info("image archived",
		zap.String("image", image.Name),
		zap.String("mode", artifact.Mode),
		zap.String("archive", artifact.Archive.Path),
		zap.String("digest", artifact.Archive.Digest),
	)
	return artifact, nil
}

// validate rejects configuration errors before any file I/O
func validate(cfg v1.BuildConfiguration, project assembly.Project) (schema.BuildMode, error) {
	if err := schema.Validate(cfg); err != nil {
		return nil, err
	}
	mode := schema.Mode(cfg, project.BaseDir)
	if _, ok := mode.(schema.ArchiveMode); ok {
		return mode, nil
	}
	if err := layers.Validate(schema.Assembly(cfg)); err != nil {
		return nil, err
	}
	if _, ok := mode.(schema.GeneratedMode); ok {
		if err := dockerfile.Validate(cfg); err != nil {
			return nil, err
		}
	}
	return mode, nil
}

func (p *pipeline) assemble(ctx context.Context, cfg v1.BuildConfiguration, dirs assembly.BuildDirs, project assembly.Project) (*assembly.Files, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m := assembly.Manager{Fs: p.opts.fs(), Workers: p.opts.Workers, Progress: p.opts.Progress}
	files, err := m.Assemble(ctx, p.image, dirs, cfg, project)
	if err != nil {
		return nil, err
	}
	p.advance(FilesAssembled)
	return files, nil
}

// layerOutputs lists entries per layer with the DiffID of the layer as it would be appended to an image
func (p *pipeline) layerOutputs(cfg v1.BuildConfiguration, dirs assembly.BuildDirs, files *assembly.Files) ([]LayerOutput, error) {
	a := schema.Assembly(cfg)
	mode, err := schema.ParseAssemblyMode(a.Mode)
	if err != nil {
		return nil, err
	}
	root := dirs.Build
	if mode == schema.AssemblyModeTar {
		root = dirs.Work
	}
	var out []LayerOutput
	for _, l := range files.Layers() {
		entries := files.Entries(l)
		o := LayerOutput{ID: l, Entries: entries}
		if len(entries) > 0 {
			modes := map[string]string{}
			for _, e := range entries {
				if e.FileMode != "" {
					modes[e.Target] = e.FileMode
				}
			}
			spec, err := archive.NewSpec(p.image, "",
				archive.WithEntries(archive.Entry{Source: filepath.Join(root, l, a.Name), Name: a.TargetDir}),
				archive.WithFileModes(modes),
			)
			if err != nil {
				return nil, err
			}
			layer, err := archive.ImageLayer(p.opts.fs(), spec)
			if err != nil {
				return nil, fmt.Errorf("layer %q: %w", l, err)
			}
			diffID, err := layer.DiffID()
			if err != nil {
				return nil, err
			}
			o.DiffID = diffID.String()
		}
		out = append(out, o)
	}
	return out, nil
}

// buildModes maps archive names relative to the build dir to configured modes
func buildModes(files *assembly.Files, dirs assembly.BuildDirs) map[string]string {
	modes := map[string]string{}
	for _, e := range files.All() {
		if e.FileMode == "" {
			continue
		}
		rel, err := filepath.Rel(dirs.Build, e.Dest)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		modes[filepath.ToSlash(rel)] = e.FileMode
	}
	return modes
}

func archiveCustomizers(cfg v1.BuildConfiguration) ([]archive.Customizer, error) {
	compression, err := schema.ParseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}
	longFileMode, err := schema.ParseTarLongFileMode(schema.Assembly(cfg).TarLongFileMode)
	if err != nil {
		return nil, err
	}
	return []archive.Customizer{
		archive.WithCompression(compression),
		archive.WithLongFileMode(longFileMode),
	}, nil
}

func (p *pipeline) generated(ctx context.Context, cfg v1.BuildConfiguration, dirs assembly.BuildDirs, project assembly.Project, artifact *Artifact) error {
	fs := p.opts.fs()
	files, err := p.assemble(ctx, cfg, dirs, project)
	if err != nil {
		return err
	}
	if artifact.Layers, err = p.layerOutputs(cfg, dirs, files); err != nil {
		return err
	}

	content, err := dockerfile.Synthesize(cfg, files.Layers())
	if err != nil {
		return err
	}
	artifact.Dockerfile = filepath.Join(dirs.Build, schema.DockerfileName)
	if err := afero.WriteFile(fs, artifact.Dockerfile, []byte(content), 0644); err != nil {
		return fmt.Errorf("write %s: %w", artifact.Dockerfile, err)
	}
	from := cfg.From
	if from == "" {
		from = schema.DefaultBaseImage
	}
	if artifact.Annotations, err = annotate.BaseImage(from); err != nil {
		return err
	}
	p.advance(DockerfileSynthesized)

	customizers, err := archiveCustomizers(cfg)
	if err != nil {
		return err
	}
	spec, err := archive.NewSpec(p.image, dirs.Build,
		append(customizers, archive.WithFileModes(buildModes(files, dirs)))...)
	if err != nil {
		return err
	}
	artifact.Archive, err = archive.Write(fs, spec, spec.Path(dirs.Tmp))
	return err
}

func (p *pipeline) dockerfile(ctx context.Context, cfg v1.BuildConfiguration, m schema.DockerfileMode, dirs assembly.BuildDirs, project assembly.Project, artifact *Artifact) error {
	fs := p.opts.fs()
	files, err := p.assemble(ctx, cfg, dirs, project)
	if err != nil {
		return err
	}
	if artifact.Layers, err = p.layerOutputs(cfg, dirs, files); err != nil {
		return err
	}

	props := maps.Clone(project.Properties)
	if props == nil {
		props = map[string]string{}
	}
	maps.Copy(props, p.opts.Properties)
	content, err := dockerfile.InterpolateFile(fs, m.Dockerfile, props, m.Filter)
	if err != nil {
		return err
	}
	a := schema.Assembly(cfg)
	dockerfile.CheckAssemblyReference(m.Dockerfile, content, a.Name, a.TargetDir)
	artifact.Dockerfile = filepath.Join(dirs.Build, schema.DockerfileName)
	if err := afero.WriteFile(fs, artifact.Dockerfile, []byte(content), 0644); err != nil {
		return fmt.Errorf("write %s: %w", artifact.Dockerfile, err)
	}
	if cfg.From != "" && !strings.Contains(cfg.From, "${") {
		if artifact.Annotations, err = annotate.BaseImage(cfg.From); err != nil {
			return err
		}
	}
	p.advance(DockerfileValidated)

	ignore, err := dockerignore.Read(fs, m.ContextDir)
	if err != nil {
		return err
	}
	if rel, err := filepath.Rel(m.ContextDir, p.opts.OutputBase); err == nil && rel != "." && !strings.HasPrefix(rel, "..") {
		ignore = append(ignore, filepath.ToSlash(rel))
	}
	mode, err := schema.ParseAssemblyMode(a.Mode)
	if err != nil {
		return err
	}
	var entries []archive.Entry
	for _, l := range files.Layers() {
		src := assembly.Source(l, a.Name, mode)
		entries = append(entries, archive.Entry{
			Source: filepath.Join(dirs.Build, filepath.FromSlash(src)),
			Name:   path.Clean(src),
		})
	}
	customizers, err := archiveCustomizers(cfg)
	if err != nil {
		return err
	}
	spec, err := archive.NewSpec(p.image, m.ContextDir, append(customizers,
		archive.WithExcludes(ignore...),
		archive.WithEntries(entries...),
		archive.WithDockerfile(artifact.Dockerfile),
		archive.WithFileModes(buildModes(files, dirs)),
	)...)
	if err != nil {
		return err
	}
	artifact.Archive, err = archive.Write(fs, spec, spec.Path(dirs.Tmp))
	return err
}

// RunAll builds images concurrently. A failed image does not stop others unless FailFast.
// The output lists successful images in configuration order; errors are joined.
func RunAll(ctx context.Context, images []v1.ImageConfiguration, project assembly.Project, opts Options) (*BuildOutput, error) {
	start := time.Now()
	results := make([]*Artifact, len(images))
	errs := make([]error, len(images))

	var g *errgroup.Group
	gctx := ctx
	if opts.FailFast {
		g, gctx = errgroup.WithContext(ctx)
	} else {
		g = &errgroup.Group{}
	}
	if opts.Parallelism > 0 {
		g.SetLimit(opts.Parallelism)
	}
	for i, image := range images {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				errs[i] = &ImageError{Image: image.Name, Stage: Configured, Err: err}
				return nil
			}
			a, err := Run(gctx, image, project, opts)
			if err != nil {
				zap.L().Error("image failed", zap.String("image", image.Name), zap.Error(err))
				errs[i] = err
				if opts.FailFast {
					return err
				}
				return nil
			}
			results[i] = a
			return nil
		})
	}
	_ = g.Wait()

	end := time.Now()
	output := &BuildOutput{
		Trace: &BuildTrace{Start: &start, End: &end, Env: BuildTraceEnv(os.Environ())},
	}
	for _, a := range results {
		if a != nil {
			output.Builds = append(output.Builds, *a)
		}
	}
	return output, errors.Join(errs...)
}
