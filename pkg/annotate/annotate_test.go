package annotate_test

import (
	"testing"

	. "github.com/onsi/gomega"
	specsv1 "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/turbokube/assemble/pkg/annotate"
)

func TestBaseImage(t *testing.T) {
	RegisterTestingT(t)

	anns, err := annotate.BaseImage("eclipse-temurin:21")
	Expect(err).NotTo(HaveOccurred())
	Expect(anns).To(Equal(map[string]string{specsv1.AnnotationBaseImageName: "eclipse-temurin:21"}))

	d := "sha256:deadb33fdeadb33fdeadb33fdeadb33fdeadb33fdeadb33fdeadb33fdeadb33f"
	anns, err = annotate.BaseImage("localhost:1234/test/foo:latest@" + d)
	Expect(err).NotTo(HaveOccurred())
	Expect(anns).To(Equal(map[string]string{
		specsv1.AnnotationBaseImageName:   "localhost:1234/test/foo:latest",
		specsv1.AnnotationBaseImageDigest: d,
	}))

	anns, err = annotate.BaseImage("")
	Expect(err).NotTo(HaveOccurred())
	Expect(anns).To(BeNil())

	_, err = annotate.BaseImage("test/foo@123")
	Expect(err).To(HaveOccurred())
}
