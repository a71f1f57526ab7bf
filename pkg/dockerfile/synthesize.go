package dockerfile

import (
	"github.com/turbokube/assemble/pkg/assembly"
	"github.com/turbokube/assemble/pkg/schema"
	v1 "github.com/turbokube/assemble/pkg/schema/v1"
	"go.uber.org/zap"
)

// FromConfig returns a builder for cfg with one COPY or ADD per layer id, in order
func FromConfig(cfg v1.BuildConfiguration, layers []string) (*Builder, error) {
	a := schema.Assembly(cfg)
	mode, err := schema.ParseAssemblyMode(a.Mode)
	if err != nil {
		return nil, err
	}
	from := cfg.From
	if from == "" {
		from = schema.DefaultBaseImage
	}
	b := New().
		From(from).
		Maintainer(cfg.Maintainer).
		Env(cfg.Env).
		Labels(cfg.Labels).
		Expose(cfg.Ports...).
		Volumes(cfg.Volumes...).
		TargetDir(a.TargetDir).
		AssemblyUser(a.User).
		ExportTargetDir(schema.ExportTargetDir(cfg)).
		Workdir(cfg.Workdir).
		User(cfg.User).
		Entrypoint(cfg.Entrypoint).
		Cmd(cfg.Cmd).
		HealthCheck(cfg.HealthCheck).
		Run(cfg.RunCmds...).
		Optimise(cfg.Optimise != nil && *cfg.Optimise)
	for _, l := range layers {
		b.Copy(Copy{
			Source: assembly.Source(l, a.Name, mode),
			Add:    mode == schema.AssemblyModeTar,
		})
	}
	return b, nil
}

// Synthesize returns Dockerfile content for cfg
func Synthesize(cfg v1.BuildConfiguration, layers []string) (string, error) {
	b, err := FromConfig(cfg, layers)
	if err != nil {
		return "", err
	}
	content, err := b.Build()
	if err != nil {
		return "", err
	}
	zap.L().Debug("dockerfile synthesized", zap.Int("layers", len(layers)), zap.String("content", content))
	return content, nil
}

// Validate checks what a generated Dockerfile would reject, such as ports, without producing output
func Validate(cfg v1.BuildConfiguration) error {
	b, err := FromConfig(cfg, nil)
	if err != nil {
		return err
	}
	_, err = b.Instructions()
	return err
}
