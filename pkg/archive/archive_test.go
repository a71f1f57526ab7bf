package archive_test

import (
	"archive/tar"
	"bytes"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	. "github.com/onsi/gomega"
	"github.com/spf13/afero"
	"github.com/turbokube/assemble/pkg/archive"
	"github.com/turbokube/assemble/pkg/schema"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type entry struct {
	name    string
	mode    int64
	content string
}

func buildDir(t *testing.T) afero.Fs {
	fs := afero.NewMemMapFs()
	for name, c := range map[string]string{
		"/b/build/maven/app.jar":     "jar",
		"/b/build/maven/lib/dep.jar": "dep",
		"/b/build/Dockerfile":        "FROM original",
		"/b/build/.git/HEAD":         "ref",
		"/b/Dockerfile.interpolated": "FROM busybox",
	} {
		if err := fs.MkdirAll(filepath.Dir(name), 0755); err != nil {
			t.Fatal(err)
		}
		if err := afero.WriteFile(fs, name, []byte(c), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return fs
}

func read(t *testing.T, r io.Reader) []entry {
	var out []entry
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatal(err)
		}
		if hdr.ModTime.Unix() != 0 || hdr.Uid != 0 || hdr.Gid != 0 {
			t.Errorf("not reproducible header: %v", hdr)
		}
		b, err := io.ReadAll(tr)
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, entry{name: hdr.Name, mode: hdr.Mode, content: string(b)})
	}
}

func TestWrite(t *testing.T) {
	RegisterTestingT(t)
	zap.ReplaceGlobals(zaptest.NewLogger(t))

	fs := buildDir(t)
	spec, err := archive.NewSpec("example.com/app:1.0", "/b/build",
		archive.WithDockerfile("/b/Dockerfile.interpolated"),
		archive.WithExcludes(".git"),
		archive.WithFileModes(map[string]string{"/maven/app.jar": "0755"}),
	)
	Expect(err).NotTo(HaveOccurred())
	Expect(spec.Path("/b/tmp")).To(Equal("/b/tmp/docker-build.tar"))

	result, err := archive.Write(fs, spec, spec.Path("/b/tmp"))
	Expect(err).NotTo(HaveOccurred())
	Expect(result.Entries).To(Equal(5))
	Expect(result.Digest).To(HavePrefix("sha256:"))

	f, err := fs.Open(result.Path)
	Expect(err).NotTo(HaveOccurred())
	defer f.Close()
	Expect(read(t, f)).To(Equal([]entry{
		{name: "maven/", mode: 0755},
		{name: "maven/lib/", mode: 0755},
		{name: "Dockerfile", mode: 0644, content: "FROM busybox"},
		{name: "maven/app.jar", mode: 0755, content: "jar"},
		{name: "maven/lib/dep.jar", mode: 0644, content: "dep"},
	}))
}

func TestWriteIsReproducible(t *testing.T) {
	RegisterTestingT(t)

	fs := buildDir(t)
	spec, err := archive.NewSpec("app", "/b/build", archive.WithCompression(schema.CompressionGzip))
	Expect(err).NotTo(HaveOccurred())
	Expect(spec.Path("/b/tmp")).To(Equal("/b/tmp/docker-build.tar.gz"))

	first, err := archive.Write(fs, spec, "/b/tmp/first.tar.gz")
	Expect(err).NotTo(HaveOccurred())
	second, err := archive.Write(fs, spec, "/b/tmp/second.tar.gz")
	Expect(err).NotTo(HaveOccurred())
	Expect(first.Digest).To(Equal(second.Digest))

	f, err := fs.Open(first.Path)
	Expect(err).NotTo(HaveOccurred())
	defer f.Close()
	zr, err := gzip.NewReader(f)
	Expect(err).NotTo(HaveOccurred())
	Expect(read(t, zr)).To(HaveLen(7))
}

func TestWriteBzip2(t *testing.T) {
	RegisterTestingT(t)

	fs := buildDir(t)
	spec, err := archive.NewSpec("app", "/b/build/maven", archive.WithCompression(schema.CompressionBzip2))
	Expect(err).NotTo(HaveOccurred())
	result, err := archive.Write(fs, spec, spec.Path("/b/tmp"))
	Expect(err).NotTo(HaveOccurred())
	Expect(result.Path).To(Equal("/b/tmp/docker-build.tar.bz2"))

	b, err := afero.ReadFile(fs, result.Path)
	Expect(err).NotTo(HaveOccurred())
	zr, err := bzip2.NewReader(bytes.NewReader(b), nil)
	Expect(err).NotTo(HaveOccurred())
	names := []string{}
	for _, e := range read(t, zr) {
		names = append(names, e.name)
	}
	Expect(names).To(Equal([]string{"lib/", "app.jar", "lib/dep.jar"}))
}

func TestLongFileModes(t *testing.T) {
	RegisterTestingT(t)
	zap.ReplaceGlobals(zaptest.NewLogger(t))

	long := strings.Repeat("a", 120) + ".jar"
	fs := afero.NewMemMapFs()
	Expect(afero.WriteFile(fs, "/r/"+long, []byte("x"), 0644)).To(Succeed())

	for _, mode := range []schema.TarLongFileMode{schema.TarLongFilePosix, schema.TarLongFileGnu, schema.TarLongFileWarn} {
		spec, err := archive.NewSpec("app", "/r", archive.WithLongFileMode(mode))
		Expect(err).NotTo(HaveOccurred())
		b := &bytes.Buffer{}
		_, err = archive.WriteTar(fs, spec, b)
		Expect(err).NotTo(HaveOccurred())
		Expect(read(t, b)[0].name).To(Equal(long))
	}

	spec, _ := archive.NewSpec("app", "/r", archive.WithLongFileMode(schema.TarLongFileTruncate))
	b := &bytes.Buffer{}
	_, err := archive.WriteTar(fs, spec, b)
	Expect(err).NotTo(HaveOccurred())
	Expect(read(t, b)[0].name).To(HaveLen(100))

	spec, _ = archive.NewSpec("example/app", "/r", archive.WithLongFileMode(schema.TarLongFileFail))
	_, err = archive.Write(fs, spec, "/out/docker-build.tar")
	Expect(err).To(MatchError(ContainSubstring("archive /out/docker-build.tar for image example/app")))
	Expect(err).To(MatchError(ContainSubstring("exceeds 100 characters")))
}

func TestInvalidFileMode(t *testing.T) {
	RegisterTestingT(t)

	_, err := archive.NewSpec("app", "/r", archive.WithFileModes(map[string]string{"a": "rwx"}))
	Expect(err).To(MatchError(schema.ErrConfiguration))
}

func TestCustomizersDoNotShareState(t *testing.T) {
	RegisterTestingT(t)

	base, err := archive.NewSpec("app", "/r", archive.WithExcludes("a"))
	Expect(err).NotTo(HaveOccurred())
	one, _ := archive.WithExcludes("b")(base)
	two, _ := archive.WithExcludes("c")(base)
	Expect(base.Excludes).To(Equal([]string{"a"}))
	Expect(one.Excludes).To(Equal([]string{"a", "b"}))
	Expect(two.Excludes).To(Equal([]string{"a", "c"}))
}

func TestImageLayer(t *testing.T) {
	RegisterTestingT(t)

	fs := buildDir(t)
	spec, err := archive.NewSpec("app", "/b/build/maven")
	Expect(err).NotTo(HaveOccurred())
	l1, err := archive.ImageLayer(fs, spec)
	Expect(err).NotTo(HaveOccurred())
	l2, err := archive.ImageLayer(fs, spec)
	Expect(err).NotTo(HaveOccurred())
	d1, err := l1.Digest()
	Expect(err).NotTo(HaveOccurred())
	d2, err := l2.Digest()
	Expect(err).NotTo(HaveOccurred())
	Expect(d1).To(Equal(d2))
}

func TestStat(t *testing.T) {
	RegisterTestingT(t)

	fs := afero.NewMemMapFs()
	Expect(afero.WriteFile(fs, "/a.tar", []byte("abc"), 0644)).To(Succeed())
	result, err := archive.Stat(fs, "/a.tar")
	Expect(err).NotTo(HaveOccurred())
	Expect(result.Size).To(Equal(int64(3)))
	Expect(result.Digest).To(Equal("sha256:ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"))

	_, err = archive.Stat(fs, "/missing.tar")
	Expect(err).To(MatchError(ContainSubstring("/missing.tar")))
}
