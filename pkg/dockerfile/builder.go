// Package dockerfile synthesizes Dockerfiles from build configuration and validates user supplied ones.
package dockerfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/turbokube/assemble/pkg/schema"
	v1 "github.com/turbokube/assemble/pkg/schema/v1"
)

// ErrInvalidPort is returned for EXPOSE values that are not <number>[/tcp|udp]
var ErrInvalidPort = fmt.Errorf("%w: invalid port", schema.ErrConfiguration)

// Instruction is a keyword with its arguments
type Instruction struct {
	Keyword string
	Args    []string
}

func (i Instruction) String() string {
	if len(i.Args) == 0 {
		return i.Keyword
	}
	return i.Keyword + " " + strings.Join(i.Args, " ")
}

// Copy adds one layer's assembly to the image
type Copy struct {
	// Source is the build context path, see assembly.Source
	Source string
	// Add uses ADD, for tar archives that should be extracted
	Add bool
}

// Builder accumulates Dockerfile content. Build does not modify the builder.
type Builder struct {
	from            string
	maintainer      string
	env             map[string]string
	labels          map[string]string
	ports           []string
	volumes         []string
	copies          []Copy
	targetDir       string
	assemblyUser    string
	exportTargetDir bool
	workdir         string
	user            string
	entrypoint      *v1.Arguments
	cmd             *v1.Arguments
	healthCheck     *v1.HealthCheck
	runCmds         []string
	optimise        bool
}

func New() *Builder {
	return &Builder{targetDir: "/" + schema.DefaultAssemblyName}
}

func (b *Builder) From(image string) *Builder {
	b.from = image
	return b
}

func (b *Builder) Maintainer(m string) *Builder {
	b.maintainer = m
	return b
}

func (b *Builder) Env(env map[string]string) *Builder {
	if b.env == nil {
		b.env = map[string]string{}
	}
	for k, v := range env {
		b.env[k] = v
	}
	return b
}

func (b *Builder) Labels(labels map[string]string) *Builder {
	if b.labels == nil {
		b.labels = map[string]string{}
	}
	for k, v := range labels {
		b.labels[k] = v
	}
	return b
}

func (b *Builder) Expose(ports ...string) *Builder {
	b.ports = append(b.ports, ports...)
	return b
}

func (b *Builder) Volumes(volumes ...string) *Builder {
	b.volumes = append(b.volumes, volumes...)
	return b
}

// TargetDir is the absolute image path assemblies are copied to
func (b *Builder) TargetDir(dir string) *Builder {
	b.targetDir = dir
	return b
}

// AssemblyUser is user, user:group or user:group:runUser
func (b *Builder) AssemblyUser(user string) *Builder {
	b.assemblyUser = user
	return b
}

// ExportTargetDir declares the target dir as a volume
func (b *Builder) ExportTargetDir(export bool) *Builder {
	b.exportTargetDir = export
	return b
}

// Copy adds a layer, in order
func (b *Builder) Copy(c Copy) *Builder {
	b.copies = append(b.copies, c)
	return b
}

func (b *Builder) Workdir(dir string) *Builder {
	b.workdir = dir
	return b
}

func (b *Builder) User(user string) *Builder {
	b.user = user
	return b
}

func (b *Builder) Entrypoint(args *v1.Arguments) *Builder {
	b.entrypoint = args
	return b
}

func (b *Builder) Cmd(args *v1.Arguments) *Builder {
	b.cmd = args
	return b
}

func (b *Builder) HealthCheck(h *v1.HealthCheck) *Builder {
	b.healthCheck = h
	return b
}

func (b *Builder) Run(cmds ...string) *Builder {
	b.runCmds = append(b.runCmds, cmds...)
	return b
}

// Optimise folds all RUN commands into one
func (b *Builder) Optimise(o bool) *Builder {
	b.optimise = o
	return b
}

// Build validates and serializes, one instruction per line with a trailing newline
func (b *Builder) Build() (string, error) {
	instructions, err := b.Instructions()
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, i := range instructions {
		sb.WriteString(i.String())
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// Instructions validates and returns the instructions in Dockerfile order
func (b *Builder) Instructions() ([]Instruction, error) {
	if b.from == "" {
		return nil, schema.ConfigError("from", "", "is required for a generated Dockerfile")
	}
	if !path.IsAbs(b.targetDir) {
		return nil, schema.ConfigError("assembly.targetDir", b.targetDir, "must be an absolute path starting with /")
	}
	for _, p := range b.ports {
		if err := ValidatePort(p); err != nil {
			return nil, err
		}
	}
	if err := schema.ValidateHealthCheck(b.healthCheck); err != nil {
		return nil, err
	}
	userParts, err := schema.SplitAssemblyUser(b.assemblyUser)
	if err != nil {
		return nil, err
	}

	out := []Instruction{{Keyword: "FROM", Args: []string{b.from}}}
	if b.maintainer != "" {
		out = append(out, Instruction{Keyword: "MAINTAINER", Args: []string{b.maintainer}})
	}
	for _, k := range sortedKeys(b.env) {
		out = append(out, Instruction{Keyword: "ENV", Args: []string{quoteKey(k) + "=" + quote(b.env[k])}})
	}
	for _, k := range sortedKeys(b.labels) {
		out = append(out, Instruction{Keyword: "LABEL", Args: []string{quoteKey(k) + "=" + quote(b.labels[k])}})
	}
	for _, p := range b.ports {
		out = append(out, Instruction{Keyword: "EXPOSE", Args: []string{strings.ToLower(p)}})
	}
	for _, v := range b.allVolumes() {
		out = append(out, Instruction{Keyword: "VOLUME", Args: []string{jsonArray([]string{v})}})
	}
	out = append(out, b.copyInstructions(userParts)...)
	if b.workdir != "" {
		out = append(out, Instruction{Keyword: "WORKDIR", Args: []string{b.workdir}})
	}
	if b.user != "" {
		out = append(out, Instruction{Keyword: "USER", Args: []string{b.user}})
	}
	if a := arguments(b.entrypoint); a != "" {
		out = append(out, Instruction{Keyword: "ENTRYPOINT", Args: []string{a}})
	}
	if a := arguments(b.cmd); a != "" {
		out = append(out, Instruction{Keyword: "CMD", Args: []string{a}})
	}
	if b.healthCheck != nil {
		out = append(out, healthCheck(b.healthCheck))
	}
	out = append(out, b.runInstructions()...)
	return out, nil
}

func (b *Builder) allVolumes() []string {
	volumes := append([]string{}, b.volumes...)
	if b.exportTargetDir && b.targetDir != "/" {
		for _, v := range volumes {
			if v == b.targetDir {
				return volumes
			}
		}
		volumes = append(volumes, b.targetDir)
	}
	return volumes
}

func (b *Builder) copyInstructions(userParts []string) []Instruction {
	if len(b.copies) == 0 {
		return nil
	}
	target := strings.TrimSuffix(b.targetDir, "/") + "/"
	if len(userParts) == 3 {
		staging := path.Join("/tmp", b.targetDir)
		var out []Instruction
		for _, c := range b.copies {
			out = append(out, Instruction{Keyword: copyKeyword(c), Args: []string{c.Source, staging + "/"}})
		}
		chown := fmt.Sprintf("mkdir -p %s && chown -R %s:%s %s && cp -rp %s/* %s && rm -rf %s",
			b.targetDir, userParts[0], userParts[1], staging, staging, target, staging)
		return append(out,
			Instruction{Keyword: "USER", Args: []string{"root"}},
			Instruction{Keyword: "RUN", Args: []string{chown}},
			Instruction{Keyword: "USER", Args: []string{userParts[2]}},
		)
	}
	var out []Instruction
	for _, c := range b.copies {
		args := []string{}
		if len(userParts) > 0 {
			args = append(args, "--chown="+strings.Join(userParts, ":"))
		}
		out = append(out, Instruction{Keyword: copyKeyword(c), Args: append(args, c.Source, target)})
	}
	return out
}

func copyKeyword(c Copy) string {
	if c.Add {
		return "ADD"
	}
	return "COPY"
}

func (b *Builder) runInstructions() []Instruction {
	var cmds []string
	for _, c := range b.runCmds {
		if strings.TrimSpace(c) != "" {
			cmds = append(cmds, c)
		}
	}
	if len(cmds) == 0 {
		return nil
	}
	if b.optimise {
		return []Instruction{{Keyword: "RUN", Args: []string{strings.Join(cmds, " && ")}}}
	}
	out := make([]Instruction, len(cmds))
	for i, c := range cmds {
		out[i] = Instruction{Keyword: "RUN", Args: []string{c}}
	}
	return out
}

// ValidatePort accepts <number>[/tcp|udp] with number 1-65535
func ValidatePort(p string) error {
	number, protocol, hasProtocol := strings.Cut(p, "/")
	n, err := strconv.Atoi(number)
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("%w %q: %q is not a port number 1-65535", ErrInvalidPort, p, number)
	}
	if hasProtocol {
		switch strings.ToLower(protocol) {
		case "tcp", "udp":
		default:
			return fmt.Errorf("%w %q: protocol %q must be tcp or udp", ErrInvalidPort, p, protocol)
		}
	}
	return nil
}

func healthCheck(h *v1.HealthCheck) Instruction {
	if schema.HealthCheckNone(h) {
		return Instruction{Keyword: "HEALTHCHECK", Args: []string{"NONE"}}
	}
	var args []string
	if h.Interval != "" {
		args = append(args, "--interval="+h.Interval)
	}
	if h.Timeout != "" {
		args = append(args, "--timeout="+h.Timeout)
	}
	if h.StartPeriod != "" {
		args = append(args, "--start-period="+h.StartPeriod)
	}
	if h.Retries > 0 {
		args = append(args, "--retries="+strconv.Itoa(h.Retries))
	}
	return Instruction{Keyword: "HEALTHCHECK", Args: append(args, "CMD", arguments(h.Cmd))}
}

// arguments renders shell form as is and exec form as a JSON array
func arguments(a *v1.Arguments) string {
	if a == nil {
		return ""
	}
	if len(a.Exec) > 0 {
		return jsonArray(a.Exec)
	}
	return a.Shell
}

func jsonArray(items []string) string {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(items)
	return strings.TrimSuffix(buf.String(), "\n")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func needsQuote(s string) bool {
	return s == "" || strings.ContainsAny(s, " \t\n\"'\\")
}

func quoteKey(k string) string {
	if needsQuote(k) {
		return quote(k)
	}
	return k
}

// quote double quotes values with whitespace or quotes, continuing multi-line values with a backslash
func quote(v string) string {
	if !needsQuote(v) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	v = strings.ReplaceAll(v, "\n", "\\\n")
	return `"` + v + `"`
}
