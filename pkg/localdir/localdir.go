package localdir

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/moby/patternmatcher"
	"github.com/spf13/afero"
	"github.com/turbokube/assemble/pkg/schema"
	v1 "github.com/turbokube/assemble/pkg/schema/v1"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ExecMode is the file mode applied with the exec permission mode
const ExecMode os.FileMode = 0755

// DefaultDirMode applies to created directories unless a file set says otherwise
const DefaultDirMode os.FileMode = 0755

// Entry is one file selected for assembly
type Entry struct {
	// Source is the absolute source path
	Source string
	// Dest is the absolute destination path under the processor target
	Dest string
	// Mode is set on Dest when non-zero, otherwise the source mode is kept
	Mode os.FileMode
	// DirMode is used for directories created for Dest
	DirMode os.FileMode
	Size    int64
	ModTime time.Time
}

// Processor selects and copies the files of file sets and file entries
type Processor struct {
	Fs afero.Fs
	// BaseDir resolves relative file set directories and file sources
	BaseDir string
	// OutputDir is excluded from file sets by default, typically the project's build output
	OutputDir   string
	Permissions schema.PermissionMode
	// Workers bounds parallelism, 0 means GOMAXPROCS
	Workers int
	// Progress is called after each copied file
	Progress func(done, total int)
}

func (p Processor) fs() afero.Fs {
	if p.Fs == nil {
		return schema.Fs
	}
	return p.Fs
}

func (p Processor) workers() int {
	if p.Workers > 0 {
		return p.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (p Processor) abs(dir string) string {
	if filepath.IsAbs(dir) {
		return filepath.Clean(dir)
	}
	return filepath.Join(p.BaseDir, dir)
}

// ParseMode parses an octal mode string such as 0644, empty meaning 0
func ParseMode(key string, s string) (os.FileMode, error) {
	if s == "" {
		return 0, nil
	}
	m, err := strconv.ParseUint(s, 8, 32)
	if err != nil || m > 07777 {
		return 0, schema.ConfigError(key, s, "is not an octal file mode")
	}
	return os.FileMode(m), nil
}

// Enumerate lists the files of sets and files, in declared order, with destinations under target.
// Each file set and file entry is enumerated concurrently.
// When destinations collide the last declared entry wins, at the position of the first.
func (p Processor) Enumerate(ctx context.Context, target string, sets []v1.FileSet, files []v1.FileEntry) ([]Entry, error) {
	results := make([][]Entry, len(sets)+len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers())
	for i, set := range sets {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			entries, err := p.fileSet(target, set)
			if err != nil {
				return err
			}
			results[i] = entries
			return nil
		})
	}
	for i, file := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			entries, err := p.fileEntry(target, file)
			if err != nil {
				return err
			}
			results[len(sets)+i] = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Entry
	at := make(map[string]int)
	for _, entries := range results {
		for _, e := range entries {
			if i, exists := at[e.Dest]; exists {
				zap.L().Debug("destination declared again, last wins",
					zap.String("dest", e.Dest),
					zap.String("previous", out[i].Source),
					zap.String("source", e.Source),
				)
				out[i] = e
				continue
			}
			at[e.Dest] = len(out)
			out = append(out, e)
		}
	}
	return out, nil
}

func (p Processor) matchers(set v1.FileSet, dir string) (*patternmatcher.PatternMatcher, *patternmatcher.PatternMatcher, error) {
	includes := set.Includes
	if len(includes) == 0 {
		includes = []string{"**"}
	}
	include, err := patternmatcher.New(includes)
	if err != nil {
		return nil, nil, fmt.Errorf("file set %s includes: %w", set.Directory, err)
	}
	excludes := append([]string{}, set.Excludes...)
	if set.UseDefaultExcludes == nil || *set.UseDefaultExcludes {
		excludes = append(excludes, schema.IgnoreDefault()...)
		if p.OutputDir != "" {
			rel, err := filepath.Rel(dir, p.abs(p.OutputDir))
			if err == nil && rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
				excludes = append(excludes, filepath.ToSlash(rel))
			}
		}
	}
	exclude, err := patternmatcher.New(excludes)
	if err != nil {
		return nil, nil, fmt.Errorf("file set %s excludes: %w", set.Directory, err)
	}
	return include, exclude, nil
}

func (p Processor) fileSet(target string, set v1.FileSet) ([]Entry, error) {
	fs := p.fs()
	dir := p.abs(set.Directory)
	info, err := fs.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("file set directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("file set directory %s is not a directory", dir)
	}
	include, exclude, err := p.matchers(set, dir)
	if err != nil {
		return nil, err
	}
	fileMode, err := ParseMode("fileMode", set.FileMode)
	if err != nil {
		return nil, err
	}
	dirMode, err := ParseMode("directoryMode", set.DirectoryMode)
	if err != nil {
		return nil, err
	}
	maxSize := 0
	if set.MaxSize != "" {
		if maxSize, err = NewSize(set.MaxSize); err != nil {
			return nil, err
		}
	}

	var entries []Entry
	bytesTotal := int64(0)
	err = afero.Walk(fs, dir, func(file string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if file == dir {
			return nil
		}
		rel, err := filepath.Rel(dir, file)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		excluded, err := exclude.MatchesOrParentMatches(rel)
		if err != nil {
			return err
		}
		if excluded {
			zap.L().Debug("excluded", zap.String("path", file))
			if fi.IsDir() && !exclude.Exclusions() {
				return filepath.SkipDir
			}
			return nil
		}
		if fi.IsDir() {
			return nil
		}
		included, err := include.MatchesOrParentMatches(rel)
		if err != nil {
			return err
		}
		if !included {
			return nil
		}
		if set.MaxFiles > 0 && len(entries) >= set.MaxFiles {
			return fmt.Errorf("number of files in %s exceeds maxFiles: %d", dir, set.MaxFiles)
		}
		bytesTotal += fi.Size()
		if maxSize > 0 && bytesTotal > int64(maxSize) {
			return fmt.Errorf("accumulated file size %d in %s exceeds maxSize: %d", bytesTotal, dir, maxSize)
		}
		dest, err := securejoin.SecureJoin(target, path.Join(set.OutputDirectory, rel))
		if err != nil {
			return err
		}
		entries = append(entries, p.entry(file, dest, fi, fileMode, dirMode))
		return nil
	})
	if err != nil {
		return nil, err
	}
	zap.L().Debug("file set enumerated",
		zap.String("directory", dir),
		zap.Int("files", len(entries)),
		zap.Int64("bytes", bytesTotal),
	)
	return entries, nil
}

func (p Processor) fileEntry(target string, file v1.FileEntry) ([]Entry, error) {
	fs := p.fs()
	source := p.abs(file.Source)
	info, err := fs.Stat(source)
	if err != nil {
		return nil, fmt.Errorf("file source %s: %w", source, err)
	}
	fileMode, err := ParseMode("fileMode", file.FileMode)
	if err != nil {
		return nil, err
	}
	destName := file.DestName
	if destName == "" {
		destName = filepath.Base(source)
	}
	destDir := path.Join(file.OutputDirectory, destName)
	if !info.IsDir() {
		dest, err := securejoin.SecureJoin(target, destDir)
		if err != nil {
			return nil, err
		}
		return []Entry{p.entry(source, dest, info, fileMode, 0)}, nil
	}
	var entries []Entry
	err = afero.Walk(fs, source, func(f string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(source, f)
		if err != nil {
			return err
		}
		dest, err := securejoin.SecureJoin(target, path.Join(destDir, filepath.ToSlash(rel)))
		if err != nil {
			return err
		}
		entries = append(entries, p.entry(f, dest, fi, fileMode, 0))
		return nil
	})
	return entries, err
}

func (p Processor) entry(source, dest string, fi os.FileInfo, fileMode, dirMode os.FileMode) Entry {
	e := Entry{
		Source:  source,
		Dest:    dest,
		Size:    fi.Size(),
		ModTime: fi.ModTime(),
		DirMode: DefaultDirMode,
	}
	switch p.Permissions {
	case schema.PermissionsExec:
		e.Mode = ExecMode
	case schema.PermissionsKeep:
		e.Mode = fileMode
		if dirMode != 0 {
			e.DirMode = dirMode
		}
	}
	return e
}

// Copy copies entries concurrently, preserving contents and modification time
func (p Processor) Copy(ctx context.Context, entries []Entry) error {
	total := len(entries)
	var done atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers())
	for _, e := range entries {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := p.copyFile(e); err != nil {
				return err
			}
			n := done.Add(1)
			if p.Progress != nil {
				p.Progress(int(n), total)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	zap.L().Debug("files copied", zap.Int("files", total))
	return nil
}

func (p Processor) copyFile(e Entry) error {
	fs := p.fs()
	if err := fs.MkdirAll(filepath.Dir(e.Dest), e.DirMode); err != nil {
		return fmt.Errorf("create directory for %s: %w", e.Dest, err)
	}
	src, err := fs.Open(e.Source)
	if err != nil {
		return fmt.Errorf("open %s: %w", e.Source, err)
	}
	defer src.Close()
	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", e.Source, err)
	}
	mode := info.Mode().Perm()
	if e.Mode != 0 {
		mode = e.Mode
	}
	dst, err := fs.OpenFile(e.Dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("create %s: %w", e.Dest, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("copy %s to %s: %w", e.Source, e.Dest, err)
	}
	if err := dst.Close(); err != nil {
		return err
	}
	if err := fs.Chmod(e.Dest, mode); err != nil {
		return err
	}
	return fs.Chtimes(e.Dest, info.ModTime(), info.ModTime())
}

// Process enumerates then copies, returning the copied entries
func (p Processor) Process(ctx context.Context, target string, sets []v1.FileSet, files []v1.FileEntry) ([]Entry, error) {
	entries, err := p.Enumerate(ctx, target, sets, files)
	if err != nil {
		return nil, err
	}
	if err := p.Copy(ctx, entries); err != nil {
		return nil, err
	}
	zap.L().Info("assembled",
		zap.String("target", target),
		zap.Int("files", len(entries)),
	)
	return entries, nil
}
