// Package annotate derives OCI annotations for build outputs
package annotate

import (
	"strings"

	"github.com/google/go-containerregistry/pkg/name"
	specsv1 "github.com/opencontainers/image-spec/specs-go/v1"
)

// BaseImage returns the standard base image annotations used by crane rebase for a FROM reference.
// A tag reference only sets the name. A digest reference sets the digest annotation
// and, if the reference has a part before '@', the name.
func BaseImage(base string) (map[string]string, error) {
	if base == "" {
		return nil, nil
	}
	ref, err := name.ParseReference(base)
	if err != nil {
		return nil, err
	}
	d, ok := ref.(name.Digest)
	if !ok {
		return map[string]string{specsv1.AnnotationBaseImageName: base}, nil
	}
	anns := map[string]string{
		specsv1.AnnotationBaseImageDigest: d.DigestStr(),
	}
	if at := strings.Index(base, "@"); at > 0 {
		anns[specsv1.AnnotationBaseImageName] = base[:at]
	}
	return anns, nil
}
