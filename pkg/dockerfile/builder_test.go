package dockerfile_test

import (
	"errors"
	"testing"

	. "github.com/onsi/gomega"
	"github.com/turbokube/assemble/pkg/dockerfile"
	"github.com/turbokube/assemble/pkg/schema"
	v1 "github.com/turbokube/assemble/pkg/schema/v1"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func TestSynthesizeDefaults(t *testing.T) {
	RegisterTestingT(t)
	zap.ReplaceGlobals(zaptest.NewLogger(t))

	content, err := dockerfile.Synthesize(v1.BuildConfiguration{}, []string{""})
	Expect(err).NotTo(HaveOccurred())
	Expect(content).To(Equal(`FROM busybox:latest
VOLUME ["/maven"]
COPY /maven /maven/
`))
}

func TestSynthesizeInstructionOrder(t *testing.T) {
	RegisterTestingT(t)

	optimise := true
	cfg := v1.BuildConfiguration{
		From:       "eclipse-temurin:21",
		Maintainer: "dev@example.com",
		Env:        map[string]string{"JAVA_OPTS": "-Xmx1g -Dx=1", "A": "b"},
		Labels:     map[string]string{"version": "1.0", "description": "line1\nline2"},
		Ports:      []string{"8080", "9090/udp"},
		Volumes:    []string{"/data"},
		Assembly:   &v1.AssemblyConfiguration{Name: "app", TargetDir: "/opt/app", User: "app:app"},
		Workdir:    "/opt/app",
		User:       "app",
		Entrypoint: &v1.Arguments{Exec: []string{"java", "-jar", "/opt/app/app.jar"}},
		Cmd:        &v1.Arguments{Shell: "--server.port=8080"},
		HealthCheck: &v1.HealthCheck{
			Interval: "5s",
			Retries:  3,
			Cmd:      &v1.Arguments{Shell: "curl -f http://localhost:8080/ || exit 1"},
		},
		RunCmds:  []string{"chmod +x /opt/app/run.sh", "echo ok"},
		Optimise: &optimise,
	}
	content, err := dockerfile.Synthesize(cfg, []string{"deps", "app"})
	Expect(err).NotTo(HaveOccurred())
	Expect(content).To(Equal(`FROM eclipse-temurin:21
MAINTAINER dev@example.com
ENV A=b
ENV JAVA_OPTS="-Xmx1g -Dx=1"
LABEL description="line1\
line2"
LABEL version=1.0
EXPOSE 8080
EXPOSE 9090/udp
VOLUME ["/data"]
COPY --chown=app:app /deps/app /opt/app/
COPY --chown=app:app /app/app /opt/app/
WORKDIR /opt/app
USER app
ENTRYPOINT ["java","-jar","/opt/app/app.jar"]
CMD --server.port=8080
HEALTHCHECK --interval=5s --retries=3 CMD curl -f http://localhost:8080/ || exit 1
RUN chmod +x /opt/app/run.sh && echo ok
`))

	again, err := dockerfile.Synthesize(cfg, []string{"deps", "app"})
	Expect(err).NotTo(HaveOccurred())
	Expect(again).To(Equal(content))
}

func TestChownStaging(t *testing.T) {
	RegisterTestingT(t)

	content, err := dockerfile.Synthesize(v1.BuildConfiguration{
		From:     "busybox",
		Assembly: &v1.AssemblyConfiguration{User: "app:app:runner"},
	}, []string{""})
	Expect(err).NotTo(HaveOccurred())
	Expect(content).To(Equal(`FROM busybox
COPY /maven /tmp/maven/
USER root
RUN mkdir -p /maven && chown -R app:app /tmp/maven && cp -rp /tmp/maven/* /maven/ && rm -rf /tmp/maven
USER runner
`))
}

func TestTarModeAdds(t *testing.T) {
	RegisterTestingT(t)

	no := false
	content, err := dockerfile.Synthesize(v1.BuildConfiguration{
		Assembly:        &v1.AssemblyConfiguration{Mode: "tar"},
		ExportTargetDir: &no,
	}, []string{"lib", "app"})
	Expect(err).NotTo(HaveOccurred())
	Expect(content).To(Equal(`FROM busybox:latest
ADD /lib/maven.tar /maven/
ADD /app/maven.tar /maven/
`))
}

func TestRunWithoutOptimise(t *testing.T) {
	RegisterTestingT(t)

	content, err := dockerfile.New().From("busybox").Run("a", " ", "b").Build()
	Expect(err).NotTo(HaveOccurred())
	Expect(content).To(Equal("FROM busybox\nRUN a\nRUN b\n"))

	content, err = dockerfile.New().From("busybox").Optimise(true).Run("  ").Build()
	Expect(err).NotTo(HaveOccurred())
	Expect(content).To(Equal("FROM busybox\n"))
}

func TestExecFormIsNotHTMLEscaped(t *testing.T) {
	RegisterTestingT(t)

	content, err := dockerfile.New().From("busybox").
		Cmd(&v1.Arguments{Exec: []string{"sh", "-c", "a && b > /dev/null"}}).
		HealthCheck(&v1.HealthCheck{Cmd: &v1.Arguments{Exec: []string{"/health", "<ok>"}}}).
		Build()
	Expect(err).NotTo(HaveOccurred())
	Expect(content).To(Equal(`FROM busybox
CMD ["sh","-c","a && b > /dev/null"]
HEALTHCHECK CMD ["/health","<ok>"]
`))
}

func TestHealthCheckNone(t *testing.T) {
	RegisterTestingT(t)

	content, err := dockerfile.New().From("busybox").HealthCheck(&v1.HealthCheck{Mode: "none"}).Build()
	Expect(err).NotTo(HaveOccurred())
	Expect(content).To(Equal("FROM busybox\nHEALTHCHECK NONE\n"))

	_, err = dockerfile.New().From("busybox").HealthCheck(&v1.HealthCheck{Mode: "none", Retries: 1}).Build()
	Expect(err).To(MatchError(schema.ErrConfiguration))
}

func TestExportTargetDir(t *testing.T) {
	RegisterTestingT(t)

	content, err := dockerfile.New().From("busybox").TargetDir("/app").Volumes("/app").ExportTargetDir(true).Build()
	Expect(err).NotTo(HaveOccurred())
	Expect(content).To(Equal("FROM busybox\nVOLUME [\"/app\"]\n"))

	content, err = dockerfile.New().From("busybox").TargetDir("/").ExportTargetDir(true).Build()
	Expect(err).NotTo(HaveOccurred())
	Expect(content).To(Equal("FROM busybox\n"))
}

func TestValidationRejectsBeforeOutput(t *testing.T) {
	RegisterTestingT(t)

	_, err := dockerfile.New().From("busybox").Expose("8080", "8080xyz/udp").Build()
	Expect(errors.Is(err, dockerfile.ErrInvalidPort)).To(BeTrue())
	Expect(errors.Is(err, schema.ErrConfiguration)).To(BeTrue())
	Expect(err.Error()).To(ContainSubstring("8080xyz"))

	_, err = dockerfile.New().From("busybox").Expose("8080/sctp").Build()
	Expect(err).To(MatchError(ContainSubstring(`protocol "sctp"`)))

	for _, p := range []string{"0", "65536", "", "/tcp", "80/"} {
		Expect(dockerfile.ValidatePort(p)).To(MatchError(dockerfile.ErrInvalidPort), p)
	}
	for _, p := range []string{"1", "65535", "53/UDP", "443/tcp"} {
		Expect(dockerfile.ValidatePort(p)).To(Succeed(), p)
	}

	_, err = dockerfile.New().From("busybox").TargetDir("opt/app").Build()
	Expect(err).To(MatchError(ContainSubstring("must be an absolute path")))

	_, err = dockerfile.New().Build()
	Expect(err).To(MatchError(schema.ErrConfiguration))

	_, err = dockerfile.New().From("busybox").AssemblyUser("a::b").Build()
	Expect(err).To(MatchError(schema.ErrConfiguration))
}

func TestValidate(t *testing.T) {
	RegisterTestingT(t)

	Expect(dockerfile.Validate(v1.BuildConfiguration{Ports: []string{"8080", "53/udp"}})).To(Succeed())
	err := dockerfile.Validate(v1.BuildConfiguration{Ports: []string{"8080xyz/udp"}})
	Expect(err).To(MatchError(dockerfile.ErrInvalidPort))
	Expect(err.Error()).To(ContainSubstring("8080xyz/udp"))
	Expect(dockerfile.Validate(v1.BuildConfiguration{
		Assembly: &v1.AssemblyConfiguration{User: "a:b:c:d"},
	})).To(MatchError(schema.ErrConfiguration))
}

func TestSynthesizeIsStable(t *testing.T) {
	RegisterTestingT(t)

	env := map[string]string{}
	labels := map[string]string{}
	for _, k := range []string{"K", "B", "Z", "A", "M", "Q", "C", "X"} {
		env[k] = "v" + k
		labels["org."+k] = k
	}
	cfg := v1.BuildConfiguration{
		From:    "eclipse-temurin:21",
		Env:     env,
		Labels:  labels,
		Ports:   []string{"9090/udp", "8080"},
		Volumes: []string{"/data", "/cache"},
	}
	first, err := dockerfile.Synthesize(cfg, []string{"deps", "main"})
	Expect(err).NotTo(HaveOccurred())
	Expect(first).To(ContainSubstring("ENV A=vA\nENV B=vB\n"))
	for i := 0; i < 20; i++ {
		again, err := dockerfile.Synthesize(cfg, []string{"deps", "main"})
		Expect(err).NotTo(HaveOccurred())
		Expect(again).To(Equal(first))
	}
}

func TestInstructions(t *testing.T) {
	RegisterTestingT(t)

	instructions, err := dockerfile.New().From("busybox").Copy(dockerfile.Copy{Source: "/maven"}).Instructions()
	Expect(err).NotTo(HaveOccurred())
	Expect(instructions).To(Equal([]dockerfile.Instruction{
		{Keyword: "FROM", Args: []string{"busybox"}},
		{Keyword: "COPY", Args: []string{"/maven", "/maven/"}},
	}))
}
