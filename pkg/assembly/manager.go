package assembly

import (
	"context"
	"fmt"
	"path"
	"path/filepath"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/spf13/afero"
	"github.com/turbokube/assemble/pkg/archive"
	"github.com/turbokube/assemble/pkg/layers"
	"github.com/turbokube/assemble/pkg/localdir"
	"github.com/turbokube/assemble/pkg/schema"
	v1 "github.com/turbokube/assemble/pkg/schema/v1"
	"go.uber.org/zap"
)

const (
	// ChangedFilesDir is the scratch tree under Tmp for incremental archives
	ChangedFilesDir = "changed-files"
	// ChangedFilesArchiveName is the incremental archive under Tmp
	ChangedFilesArchiveName = "changed-files.tar"
)

// Progress is called as files are copied
type Progress func(done, total int)

// Manager assembles files for images. It holds no per image state.
type Manager struct {
	Fs afero.Fs
	// Workers bounds file copy parallelism, 0 for the default
	Workers  int
	Progress Progress
}

func (m Manager) fs() afero.Fs {
	if m.Fs == nil {
		return schema.Fs
	}
	return m.Fs
}

// Source is the build context path a layer is copied or added from
func Source(layer string, name string, mode schema.AssemblyMode) string {
	p := path.Join("/", layer, name)
	if mode == schema.AssemblyModeTar {
		return p + ".tar"
	}
	return p
}

// Assemble copies each layer's files into the build context.
// In dir mode files end up in Build/<layer>/<name>.
// In tar mode they are staged in Work and archived to Build/<layer>/<name>.tar.
func (m Manager) Assemble(ctx context.Context, image string, dirs BuildDirs, cfg v1.BuildConfiguration, project Project) (*Files, error) {
	fs := m.fs()
	a := schema.Assembly(cfg)
	mode, err := schema.ParseAssemblyMode(a.Mode)
	if err != nil {
		return nil, err
	}
	permissions, err := schema.ParsePermissionMode(a.Permissions)
	if err != nil {
		return nil, err
	}
	longFileMode, err := schema.ParseTarLongFileMode(a.TarLongFileMode)
	if err != nil {
		return nil, err
	}
	artifact, err := project.FindArtifact(fs)
	if err != nil {
		return nil, err
	}
	resolved, err := layers.Resolve(a, artifact)
	if err != nil {
		return nil, err
	}

	if err := dirs.Clean(fs); err != nil {
		return nil, err
	}
	base := dirs.Build
	if mode == schema.AssemblyModeTar {
		base = dirs.Work
	}
	processor := localdir.Processor{
		Fs:          fs,
		BaseDir:     project.BaseDir,
		OutputDir:   dirs.Base,
		Permissions: permissions,
		Workers:     m.Workers,
		Progress:    m.Progress,
	}

	files := NewFiles(a.Name, a.TargetDir)
	for _, l := range resolved {
		layerRoot, err := securejoin.SecureJoin(base, l.ID)
		if err != nil {
			return nil, err
		}
		target := filepath.Join(layerRoot, a.Name)
		entries, err := processor.Process(ctx, target, l.FileSets, l.Files)
		if err != nil {
			return nil, fmt.Errorf("layer %q: %w", l.ID, err)
		}
		files.AddLayer(l.ID)
		modes := map[string]string{}
		for _, e := range entries {
			rel, err := filepath.Rel(target, e.Dest)
			if err != nil {
				return nil, err
			}
			fe := FileEntry{
				Layer:        l.ID,
				Source:       e.Source,
				Dest:         e.Dest,
				Target:       path.Join(a.TargetDir, filepath.ToSlash(rel)),
				LastModified: e.ModTime,
			}
			if e.Mode != 0 {
				fe.FileMode = fmt.Sprintf("%04o", e.Mode)
				modes[rel] = fe.FileMode
			}
			files.Add(fe)
		}
		if mode == schema.AssemblyModeTar {
			if err := m.layerArchive(image, target, filepath.Join(dirs.Build, filepath.FromSlash(Source(l.ID, a.Name, mode))), modes, longFileMode); err != nil {
				return nil, err
			}
		}
		zap.L().Debug("layer assembled",
			zap.String("image", image),
			zap.String("layer", l.ID),
			zap.Int("files", len(entries)),
		)
	}
	zap.L().Info("assembly done",
		zap.String("image", image),
		zap.String("name", a.Name),
		zap.Int("layers", len(resolved)),
		zap.Int("files", len(files.All())),
	)
	return files, nil
}

func (m Manager) layerArchive(image, root, target string, modes map[string]string, longFileMode schema.TarLongFileMode) error {
	spec, err := archive.NewSpec(image, root,
		archive.WithFileModes(modes),
		archive.WithLongFileMode(longFileMode),
	)
	if err != nil {
		return err
	}
	_, err = archive.Write(m.fs(), spec, target)
	return err
}

// ChangedFilesArchive copies changed entries to Tmp/changed-files at their image paths
// and archives that tree to Tmp/changed-files.tar, for extraction at / in a running container.
func (m Manager) ChangedFilesArchive(ctx context.Context, image string, dirs BuildDirs, changed []FileEntry) (archive.Result, error) {
	fs := m.fs()
	root := filepath.Join(dirs.Tmp, ChangedFilesDir)
	if err := fs.RemoveAll(root); err != nil {
		return archive.Result{}, err
	}
	if err := fs.MkdirAll(root, 0755); err != nil {
		return archive.Result{}, err
	}
	entries := make([]localdir.Entry, 0, len(changed))
	modes := map[string]string{}
	for _, c := range changed {
		dest, err := securejoin.SecureJoin(root, c.Target)
		if err != nil {
			return archive.Result{}, err
		}
		mode, err := localdir.ParseMode("fileMode", c.FileMode)
		if err != nil {
			return archive.Result{}, err
		}
		entries = append(entries, localdir.Entry{
			Source:  c.Source,
			Dest:    dest,
			Mode:    mode,
			DirMode: localdir.DefaultDirMode,
		})
		if c.FileMode != "" {
			modes[c.Target] = c.FileMode
		}
	}
	processor := localdir.Processor{Fs: fs, Workers: m.Workers, Progress: m.Progress}
	if err := processor.Copy(ctx, entries); err != nil {
		return archive.Result{}, err
	}
	spec, err := archive.NewSpec(image, root, archive.WithFileModes(modes))
	if err != nil {
		return archive.Result{}, err
	}
	return archive.Write(fs, spec, filepath.Join(dirs.Tmp, ChangedFilesArchiveName))
}
