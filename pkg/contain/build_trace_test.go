package contain_test

import (
	"testing"

	. "github.com/onsi/gomega"
	"github.com/turbokube/assemble/pkg/contain"
)

func TestBuildTraceEnv(t *testing.T) {
	RegisterTestingT(t)
	env := contain.BuildTraceEnv([]string{
		"FOO=bar",
		"CIX=baz",
		"CI=true",
		"ASSEMBLE=nosuffix",
		"ASSEMBLE_OUTPUT=target/docker",
		"IMAGE=img:123",
		"IMAGE_NAME=img",
		"BROKEN",
	})
	Expect(env).NotTo(HaveKey("FOO"))
	Expect(env).NotTo(HaveKey("CIX"))
	Expect(env).To(HaveKeyWithValue("CI", "true"))
	Expect(env).NotTo(HaveKey("ASSEMBLE"))
	Expect(env).To(HaveKeyWithValue("ASSEMBLE_OUTPUT", "target/docker"))
	Expect(env).To(HaveKeyWithValue("IMAGE", "img:123"))
	Expect(env).To(HaveKeyWithValue("IMAGE_NAME", "img"))
	Expect(env).NotTo(HaveKey("BROKEN"))
}
