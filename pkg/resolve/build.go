package resolve

import (
	"encoding/json"
	"strings"

	"github.com/turbokube/assemble/pkg/schema"
	v1 "github.com/turbokube/assemble/pkg/schema/v1"
	"go.uber.org/zap"
)

// Keys lists every resolvable build configuration key, in resolution order
var Keys = struct {
	From, Maintainer, Dockerfile, DockerArchive, ContextDir, Filter         Key
	Workdir, User, Cleanup, Compression, Entrypoint, Cmd                    Key
	Ports, Volumes, RunCmds, CacheFrom, Tags, Platforms                     Key
	Env, Labels, Args                                                       Key
	Optimise, NoCache, ExportTargetDir                                      Key
}{
	From:            Key{Name: "from", Kind: String},
	Maintainer:      Key{Name: "maintainer", Kind: String},
	Dockerfile:      Key{Name: "dockerFile", Kind: String},
	DockerArchive:   Key{Name: "dockerArchive", Kind: String},
	ContextDir:      Key{Name: "contextDir", Kind: String},
	Filter:          Key{Name: "filter", Kind: String},
	Workdir:         Key{Name: "workdir", Kind: String},
	User:            Key{Name: "user", Kind: String},
	Cleanup:         Key{Name: "cleanup", Kind: String},
	Compression:     Key{Name: "compression", Kind: String},
	Entrypoint:      Key{Name: "entryPoint", Kind: String},
	Cmd:             Key{Name: "cmd", Kind: String},
	Ports:           Key{Name: "ports", Kind: List},
	Volumes:         Key{Name: "volumes", Kind: List},
	RunCmds:         Key{Name: "runCmds", Kind: List},
	CacheFrom:       Key{Name: "cacheFrom", Kind: List},
	Tags:            Key{Name: "tags", Kind: List},
	Platforms:       Key{Name: "platforms", Kind: List},
	Env:             Key{Name: "env", Kind: Map},
	Labels:          Key{Name: "labels", Kind: Map},
	Args:            Key{Name: "args", Kind: Map},
	Optimise:        Key{Name: "optimise", Kind: Bool},
	NoCache:         Key{Name: "nocache", Kind: Bool},
	ExportTargetDir: Key{Name: "exportTargetDir", Kind: Bool},
}

// ResolveBuildConfiguration returns a copy of cfg with every key resolved.
// Assembly and health check are passed through; they are not property addressable.
func (r *Resolver) ResolveBuildConfiguration(cfg v1.BuildConfiguration) (v1.BuildConfiguration, error) {
	out := cfg
	var err error

	strs := []struct {
		key Key
		val *string
	}{
		{Keys.From, &out.From},
		{Keys.Maintainer, &out.Maintainer},
		{Keys.Dockerfile, &out.Dockerfile},
		{Keys.DockerArchive, &out.DockerArchive},
		{Keys.ContextDir, &out.ContextDir},
		{Keys.Filter, &out.Filter},
		{Keys.Workdir, &out.Workdir},
		{Keys.User, &out.User},
		{Keys.Cleanup, &out.Cleanup},
		{Keys.Compression, &out.Compression},
	}
	for _, s := range strs {
		if *s.val, err = r.String(s.key, *s.val); err != nil {
			return cfg, err
		}
	}

	lists := []struct {
		key Key
		val *[]string
	}{
		{Keys.Ports, &out.Ports},
		{Keys.Volumes, &out.Volumes},
		{Keys.RunCmds, &out.RunCmds},
		{Keys.CacheFrom, &out.CacheFrom},
		{Keys.Tags, &out.Tags},
		{Keys.Platforms, &out.Platforms},
	}
	for _, l := range lists {
		if *l.val, err = r.List(l.key, *l.val); err != nil {
			return cfg, err
		}
	}

	maps := []struct {
		key Key
		val *map[string]string
	}{
		{Keys.Env, &out.Env},
		{Keys.Labels, &out.Labels},
		{Keys.Args, &out.Args},
	}
	for _, m := range maps {
		if *m.val, err = r.Map(m.key, *m.val); err != nil {
			return cfg, err
		}
	}

	bools := []struct {
		key Key
		val **bool
	}{
		{Keys.Optimise, &out.Optimise},
		{Keys.NoCache, &out.NoCache},
		{Keys.ExportTargetDir, &out.ExportTargetDir},
	}
	for _, b := range bools {
		if *b.val, err = r.Bool(b.key, *b.val); err != nil {
			return cfg, err
		}
	}

	if out.Entrypoint, err = r.Arguments(Keys.Entrypoint, cfg.Entrypoint); err != nil {
		return cfg, err
	}
	if out.Cmd, err = r.Arguments(Keys.Cmd, cfg.Cmd); err != nil {
		return cfg, err
	}

	zap.L().Debug("build configuration resolved",
		zap.String("mode", r.mode.String()),
		zap.String("prefix", r.prefix),
		zap.String("from", out.From),
	)
	return out, nil
}

// Arguments resolves shell or exec form; a property value starting with [ is a JSON exec array
func (r *Resolver) Arguments(key Key, config *v1.Arguments) (*v1.Arguments, error) {
	var flat string
	if config != nil {
		flat = config.Shell
		if len(config.Exec) > 0 {
			b, err := json.Marshal(config.Exec)
			if err != nil {
				return nil, err
			}
			flat = string(b)
		}
	}
	resolved, err := r.String(key, flat)
	if err != nil {
		return nil, err
	}
	if resolved == "" {
		return nil, nil
	}
	if resolved == flat {
		return config, nil
	}
	if strings.HasPrefix(strings.TrimSpace(resolved), "[") {
		var exec []string
		if err := json.Unmarshal([]byte(resolved), &exec); err != nil {
			return nil, schema.ConfigError(r.property(key.Name), resolved, "is not a JSON string array")
		}
		return &v1.Arguments{Exec: exec}, nil
	}
	return &v1.Arguments{Shell: resolved}, nil
}
