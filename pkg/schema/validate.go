package schema

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/turbokube/assemble/pkg/schema/v1"
)

// Validate checks a build configuration for errors that can be detected without file system access
func Validate(cfg v1.BuildConfiguration) error {
	if cfg.Dockerfile != "" && cfg.DockerArchive != "" {
		return ConfigError("dockerFile", cfg.Dockerfile, fmt.Sprintf("is mutually exclusive with dockerArchive=%q", cfg.DockerArchive))
	}
	if cfg.ContextDir != "" && cfg.DockerArchive != "" {
		return ConfigError("contextDir", cfg.ContextDir, fmt.Sprintf("is mutually exclusive with dockerArchive=%q", cfg.DockerArchive))
	}
	if cfg.From != "" && !strings.Contains(cfg.From, "${") {
		if _, err := name.ParseReference(cfg.From); err != nil {
			return ConfigError("from", cfg.From, err.Error())
		}
	}
	if _, err := ParseCompression(cfg.Compression); err != nil {
		return err
	}
	if _, err := ParseCleanup(cfg.Cleanup); err != nil {
		return err
	}
	if err := validateArguments("entryPoint", cfg.Entrypoint); err != nil {
		return err
	}
	if err := validateArguments("cmd", cfg.Cmd); err != nil {
		return err
	}
	if err := ValidateHealthCheck(cfg.HealthCheck); err != nil {
		return err
	}
	if cfg.Assembly != nil {
		if err := validateAssembly(*cfg.Assembly); err != nil {
			return err
		}
	}
	return nil
}

func validateArguments(key string, args *v1.Arguments) error {
	if args == nil {
		return nil
	}
	if args.Shell != "" && len(args.Exec) > 0 {
		return ConfigError(key, args.Shell, "shell and exec form are mutually exclusive")
	}
	if args.Shell == "" && len(args.Exec) == 0 {
		return ConfigError(key, "", "requires shell or exec form")
	}
	return nil
}

// HealthCheckNone reports whether the health check explicitly disables an inherited one
func HealthCheckNone(h *v1.HealthCheck) bool {
	return h != nil && strings.EqualFold(h.Mode, "none")
}

// ValidateHealthCheck accepts nil
func ValidateHealthCheck(h *v1.HealthCheck) error {
	if h == nil {
		return nil
	}
	switch strings.ToLower(h.Mode) {
	case "none":
		if h.Cmd != nil || h.Interval != "" || h.Timeout != "" || h.StartPeriod != "" || h.Retries != 0 {
			return ConfigError("healthCheck.mode", h.Mode, "does not accept cmd or options")
		}
		return nil
	case "", "cmd":
		if h.Cmd == nil {
			return ConfigError("healthCheck.cmd", "", "is required unless mode is none")
		}
	default:
		return ConfigError("healthCheck.mode", h.Mode, "must be one of cmd, none")
	}
	for key, d := range map[string]string{
		"healthCheck.interval":    h.Interval,
		"healthCheck.timeout":     h.Timeout,
		"healthCheck.startPeriod": h.StartPeriod,
	} {
		if d == "" {
			continue
		}
		if _, err := time.ParseDuration(d); err != nil {
			return ConfigError(key, d, "is not a duration")
		}
	}
	if h.Retries < 0 {
		return ConfigError("healthCheck.retries", fmt.Sprint(h.Retries), "must not be negative")
	}
	return validateArguments("healthCheck.cmd", h.Cmd)
}

func validateAssembly(a v1.AssemblyConfiguration) error {
	if a.TargetDir != "" && !path.IsAbs(a.TargetDir) {
		return ConfigError("assembly.targetDir", a.TargetDir, "must be an absolute path starting with /")
	}
	if a.Name != "" && strings.ContainsAny(a.Name, `/\`) {
		return ConfigError("assembly.name", a.Name, "must not contain path separators")
	}
	if _, err := SplitAssemblyUser(a.User); err != nil {
		return err
	}
	if _, err := ParseAssemblyMode(a.Mode); err != nil {
		return err
	}
	if _, err := ParsePermissionMode(a.Permissions); err != nil {
		return err
	}
	if _, err := ParseTarLongFileMode(a.TarLongFileMode); err != nil {
		return err
	}
	return nil
}

// SplitAssemblyUser splits user, user:group or user:group:runUser, nil for empty
func SplitAssemblyUser(user string) ([]string, error) {
	if user == "" {
		return nil, nil
	}
	parts := strings.Split(user, ":")
	if len(parts) > 3 {
		return nil, ConfigError("assembly.user", user, "must be user, user:group or user:group:runUser")
	}
	for _, p := range parts {
		if p == "" {
			return nil, ConfigError("assembly.user", user, "has an empty part")
		}
	}
	return parts, nil
}

// Assembly returns the assembly configuration with name and target dir defaults filled in
func Assembly(cfg v1.BuildConfiguration) v1.AssemblyConfiguration {
	var a v1.AssemblyConfiguration
	if cfg.Assembly != nil {
		a = *cfg.Assembly
	}
	if a.Name == "" {
		a.Name = DefaultAssemblyName
	}
	if a.TargetDir == "" {
		a.TargetDir = "/" + a.Name
	}
	return a
}

// ExportTargetDir applies the default: export when no base image is configured, unless target is /
func ExportTargetDir(cfg v1.BuildConfiguration) bool {
	if cfg.ExportTargetDir != nil {
		return *cfg.ExportTargetDir
	}
	return cfg.From == "" && Assembly(cfg).TargetDir != "/"
}
