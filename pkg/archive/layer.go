package archive

import (
	"bytes"
	"io"

	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/tarball"
	"github.com/spf13/afero"
)

// ImageLayer builds a reproducible image layer from the uncompressed tar of spec.
// Compression in spec is ignored, the layer compresses on demand.
func ImageLayer(fs afero.Fs, spec Spec) (v1.Layer, error) {
	b := &bytes.Buffer{}
	if _, err := WriteTar(fs, spec, b); err != nil {
		return nil, err
	}
	// Return a new copy of the buffer each time it's opened.
	return tarball.LayerFromOpener(func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewBuffer(b.Bytes())), nil
	})
}
