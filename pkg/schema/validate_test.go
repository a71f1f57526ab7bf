package schema_test

import (
	"testing"

	. "github.com/onsi/gomega"
	"github.com/turbokube/assemble/pkg/schema"
	v1 "github.com/turbokube/assemble/pkg/schema/v1"
)

func TestValidate(t *testing.T) {
	RegisterTestingT(t)

	t.Run("dockerfile and archive are mutually exclusive", func(t *testing.T) {
		err := schema.Validate(v1.BuildConfiguration{Dockerfile: "Dockerfile", DockerArchive: "image.tar"})
		Expect(err).To(MatchError(schema.ErrConfiguration))
		Expect(err.Error()).To(ContainSubstring("dockerFile"))
	})

	t.Run("invalid enum names key and value", func(t *testing.T) {
		err := schema.Validate(v1.BuildConfiguration{Compression: "zip"})
		Expect(err).To(MatchError(schema.ErrConfiguration))
		Expect(err.Error()).To(ContainSubstring(`compression="zip"`))
	})

	t.Run("relative target dir", func(t *testing.T) {
		err := schema.Validate(v1.BuildConfiguration{Assembly: &v1.AssemblyConfiguration{TargetDir: "maven"}})
		Expect(err).To(MatchError(schema.ErrConfiguration))
		Expect(err.Error()).To(ContainSubstring("assembly.targetDir"))
	})

	t.Run("arguments need exactly one form", func(t *testing.T) {
		err := schema.Validate(v1.BuildConfiguration{Cmd: &v1.Arguments{Shell: "a", Exec: []string{"b"}}})
		Expect(err).To(MatchError(schema.ErrConfiguration))
	})

	t.Run("health check none rejects options", func(t *testing.T) {
		err := schema.Validate(v1.BuildConfiguration{HealthCheck: &v1.HealthCheck{Mode: "none", Retries: 3}})
		Expect(err).To(MatchError(schema.ErrConfiguration))
	})

	t.Run("health check duration", func(t *testing.T) {
		err := schema.Validate(v1.BuildConfiguration{HealthCheck: &v1.HealthCheck{
			Interval: "5 seconds",
			Cmd:      &v1.Arguments{Shell: "true"},
		}})
		Expect(err).To(MatchError(schema.ErrConfiguration))
		Expect(err.Error()).To(ContainSubstring("healthCheck.interval"))
	})

	t.Run("assembly user parts", func(t *testing.T) {
		Expect(schema.Validate(v1.BuildConfiguration{Assembly: &v1.AssemblyConfiguration{User: "a:b:c"}})).To(Succeed())
		Expect(schema.Validate(v1.BuildConfiguration{Assembly: &v1.AssemblyConfiguration{User: "a::c"}})).To(MatchError(schema.ErrConfiguration))
	})

	t.Run("valid", func(t *testing.T) {
		Expect(schema.Validate(v1.BuildConfiguration{
			From:        "busybox:latest",
			Compression: "gzip",
			Cmd:         &v1.Arguments{Exec: []string{"java", "-jar", "/maven/app.jar"}},
		})).To(Succeed())
	})
}

func TestMode(t *testing.T) {
	RegisterTestingT(t)

	Expect(schema.Mode(v1.BuildConfiguration{}, "/p")).To(Equal(schema.GeneratedMode{}))
	Expect(schema.Mode(v1.BuildConfiguration{DockerArchive: "out/image.tar"}, "/p")).To(Equal(schema.ArchiveMode{Path: "/p/out/image.tar"}))
	Expect(schema.Mode(v1.BuildConfiguration{ContextDir: "src/docker"}, "/p")).To(Equal(schema.DockerfileMode{
		Dockerfile: "/p/src/docker/Dockerfile",
		ContextDir: "/p/src/docker",
		Filter:     "${*}",
	}))
	Expect(schema.Mode(v1.BuildConfiguration{Dockerfile: "docker/Custom.Dockerfile", Filter: "@"}, "/p")).To(Equal(schema.DockerfileMode{
		Dockerfile: "/p/docker/Custom.Dockerfile",
		ContextDir: "/p/docker",
		Filter:     "@",
	}))
}

func TestAssemblyDefaults(t *testing.T) {
	RegisterTestingT(t)

	a := schema.Assembly(v1.BuildConfiguration{})
	Expect(a.Name).To(Equal("maven"))
	Expect(a.TargetDir).To(Equal("/maven"))
	Expect(schema.ExportTargetDir(v1.BuildConfiguration{})).To(BeTrue())
	Expect(schema.ExportTargetDir(v1.BuildConfiguration{From: "busybox"})).To(BeFalse())
}

func TestSplitAssemblyUser(t *testing.T) {
	RegisterTestingT(t)

	parts, err := schema.SplitAssemblyUser("")
	Expect(err).NotTo(HaveOccurred())
	Expect(parts).To(BeNil())

	parts, err = schema.SplitAssemblyUser("app:app:run")
	Expect(err).NotTo(HaveOccurred())
	Expect(parts).To(Equal([]string{"app", "app", "run"}))

	_, err = schema.SplitAssemblyUser("a:b:c:d")
	Expect(err).To(MatchError(ContainSubstring("must be user, user:group or user:group:runUser")))
	_, err = schema.SplitAssemblyUser("a::b")
	Expect(err).To(MatchError(schema.ErrConfiguration))

	Expect(schema.Validate(v1.BuildConfiguration{Assembly: &v1.AssemblyConfiguration{User: "a::b"}})).
		To(MatchError(ContainSubstring("has an empty part")))
}
