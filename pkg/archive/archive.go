package archive

import (
	"archive/tar"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/moby/patternmatcher"
	"github.com/spf13/afero"
	"github.com/turbokube/assemble/pkg/schema"
	"go.uber.org/zap"
)

const (
	defaultFileMode = int64(0644)
	defaultDirMode  = int64(0755)
	// nameLimit is the ustar name field length
	nameLimit = 100
)

// Result describes a written archive
type Result struct {
	Path string `json:"path"`
	// Digest is sha256 of the archive file as written, including compression
	Digest  string `json:"digest"`
	Size    int64  `json:"size"`
	Entries int    `json:"entries"`
}

type item struct {
	source string
	info   os.FileInfo
	link   string
}

type content struct {
	dirs  map[string]item
	files map[string]item
}

// Write writes the archive described by spec to target, creating parent directories
func Write(fs afero.Fs, spec Spec, target string) (Result, error) {
	result, err := write(fs, spec, target)
	if err != nil {
		return Result{}, fmt.Errorf("archive %s for image %s: %w", target, spec.Image, err)
	}
	zap.L().Info("archive written",
		zap.String("image", spec.Image),
		zap.String("path", result.Path),
		zap.String("compression", spec.Compression.String()),
		zap.Int("entries", result.Entries),
		zap.Int64("size", result.Size),
	)
	return result, nil
}

func write(fs afero.Fs, spec Spec, target string) (Result, error) {
	if err := fs.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return Result{}, err
	}
	f, err := fs.Create(target)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()

	h := sha256.New()
	counter := &countingWriter{w: io.MultiWriter(f, h)}
	c, err := compressor(counter, spec.Compression)
	if err != nil {
		return Result{}, err
	}
	n, err := WriteTar(fs, spec, c)
	if err != nil {
		return Result{}, err
	}
	if err := c.Close(); err != nil {
		return Result{}, err
	}
	if err := f.Close(); err != nil {
		return Result{}, err
	}
	return Result{
		Path:    target,
		Digest:  "sha256:" + hex.EncodeToString(h.Sum(nil)),
		Size:    counter.n,
		Entries: n,
	}, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

func compressor(w io.Writer, c schema.Compression) (io.WriteCloser, error) {
	switch c {
	case schema.CompressionGzip:
		return gzip.NewWriter(w), nil
	case schema.CompressionBzip2:
		return bzip2.NewWriter(w, &bzip2.WriterConfig{Level: bzip2.DefaultCompression})
	}
	return nopWriteCloser{w}, nil
}

// WriteTar writes uncompressed tar content to w and returns the number of entries.
// Directories come first, then files, each sorted by name.
// Timestamps are zero and ownership is root so that identical input gives identical output.
func WriteTar(fs afero.Fs, spec Spec, w io.Writer) (int, error) {
	c, err := collect(fs, spec)
	if err != nil {
		return 0, err
	}
	tw := tar.NewWriter(w)

	dn := make([]string, 0, len(c.dirs))
	for d := range c.dirs {
		dn = append(dn, d)
	}
	sort.Strings(dn)
	fn := make([]string, 0, len(c.files))
	for f := range c.files {
		fn = append(fn, f)
	}
	sort.Strings(fn)

	for _, d := range dn {
		mode := defaultDirMode
		if it := c.dirs[d]; it.info != nil {
			mode = int64(it.info.Mode().Perm())
		}
		if m, ok := spec.Modes[d]; ok {
			mode = int64(m)
		}
		hdr := &tar.Header{
			Name:     d + "/",
			Mode:     mode,
			Typeflag: tar.TypeDir,
		}
		if err := writeHeader(tw, spec, hdr); err != nil {
			return 0, err
		}
	}

	for _, f := range fn {
		it := c.files[f]
		mode := defaultFileMode
		if it.info != nil {
			mode = int64(it.info.Mode().Perm())
		}
		if m, ok := spec.Modes[f]; ok {
			mode = int64(m)
		}
		if it.link != "" {
			hdr := &tar.Header{
				Name:     f,
				Linkname: it.link,
				Mode:     mode,
				Typeflag: tar.TypeSymlink,
			}
			if err := writeHeader(tw, spec, hdr); err != nil {
				return 0, err
			}
			continue
		}
		hdr := &tar.Header{
			Name:     f,
			Size:     it.info.Size(),
			Mode:     mode,
			Typeflag: tar.TypeReg,
		}
		if err := writeHeader(tw, spec, hdr); err != nil {
			return 0, err
		}
		if err := copyContent(fs, tw, it.source); err != nil {
			return 0, err
		}
	}
	if err := tw.Close(); err != nil {
		return 0, err
	}
	return len(dn) + len(fn), nil
}

func copyContent(fs afero.Fs, w io.Writer, source string) error {
	r, err := fs.Open(source)
	if err != nil {
		return err
	}
	defer r.Close()
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("%s: %w", source, err)
	}
	return nil
}

func writeHeader(tw *tar.Writer, spec Spec, hdr *tar.Header) error {
	hdr.ModTime = time.Unix(0, 0)
	if len(hdr.Name) > nameLimit {
		switch spec.LongFileMode {
		case schema.TarLongFileGnu:
			hdr.Format = tar.FormatGNU
		case schema.TarLongFileWarn:
			zap.L().Warn("archive entry name exceeds 100 characters",
				zap.String("image", spec.Image),
				zap.String("name", hdr.Name),
			)
			hdr.Format = tar.FormatPAX
		case schema.TarLongFileFail:
			return fmt.Errorf("entry name exceeds %d characters: %s", nameLimit, hdr.Name)
		case schema.TarLongFileTruncate:
			hdr.Name = hdr.Name[:nameLimit]
		default:
			hdr.Format = tar.FormatPAX
		}
	}
	return tw.WriteHeader(hdr)
}

func collect(fs afero.Fs, spec Spec) (content, error) {
	c := content{dirs: map[string]item{}, files: map[string]item{}}
	if spec.Root != "" {
		exclude, err := patternmatcher.New(spec.Excludes)
		if err != nil {
			return c, err
		}
		if err := c.walk(fs, spec.Root, "", exclude); err != nil {
			return c, err
		}
	}
	for _, e := range spec.Entries {
		name := Name(e.Name)
		if e.Source == "" {
			c.dirs[name] = item{}
			continue
		}
		info, err := fs.Stat(e.Source)
		if err != nil {
			return c, err
		}
		if info.IsDir() {
			if name != "" {
				c.dirs[name] = item{source: e.Source, info: info}
			}
			if err := c.walk(fs, e.Source, name, nil); err != nil {
				return c, err
			}
			continue
		}
		delete(c.dirs, name)
		c.files[name] = item{source: e.Source, info: info}
	}
	for _, names := range []map[string]item{c.files, c.dirs} {
		for n := range names {
			for p := path.Dir(n); p != "." && p != "/"; p = path.Dir(p) {
				if _, ok := c.dirs[p]; !ok {
					c.dirs[p] = item{}
				}
			}
		}
	}
	return c, nil
}

func (c content) walk(fs afero.Fs, root string, prefix string, exclude *patternmatcher.PatternMatcher) error {
	return afero.Walk(fs, root, func(file string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if file == root {
			return nil
		}
		rel, err := filepath.Rel(root, file)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if exclude != nil {
			excluded, err := exclude.MatchesOrParentMatches(rel)
			if err != nil {
				return err
			}
			if excluded {
				zap.L().Debug("archive excluded", zap.String("path", file))
				if info.IsDir() && !exclude.Exclusions() {
					return filepath.SkipDir
				}
				return nil
			}
		}
		name := Name(path.Join(prefix, rel))
		switch {
		case info.IsDir():
			c.dirs[name] = item{source: file, info: info}
		case info.Mode()&os.ModeSymlink != 0:
			link, err := readlink(fs, file)
			if err != nil {
				return err
			}
			c.files[name] = item{source: file, info: info, link: link}
		case info.Mode().IsRegular():
			c.files[name] = item{source: file, info: info}
		default:
			zap.L().Debug("archive skipped irregular file", zap.String("path", file))
		}
		return nil
	})
}

func readlink(fs afero.Fs, file string) (string, error) {
	r, ok := fs.(afero.LinkReader)
	if !ok {
		return "", fmt.Errorf("symlink %s on a filesystem without readlink", file)
	}
	return r.ReadlinkIfPossible(file)
}

// Stat describes an existing archive file, for archives built elsewhere
func Stat(fs afero.Fs, file string) (Result, error) {
	f, err := fs.Open(file)
	if err != nil {
		return Result{}, fmt.Errorf("archive %s: %w", file, err)
	}
	defer f.Close()
	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return Result{}, fmt.Errorf("archive %s: %w", file, err)
	}
	return Result{
		Path:   file,
		Digest: "sha256:" + hex.EncodeToString(h.Sum(nil)),
		Size:   n,
	}, nil
}
