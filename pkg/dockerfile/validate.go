package dockerfile

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/spf13/afero"
	"github.com/turbokube/assemble/pkg/interpolate"
	"go.uber.org/zap"
)

// ADD|COPY [--flag ...] <src> ...
var copyRe = regexp.MustCompile(`(?i)^(ADD|COPY)\s+(.+)`)

// CheckAssemblyReference reports whether some ADD or COPY source mentions one of names.
// If none does a warning is logged; the build continues. Lines have no length limit.
func CheckAssemblyReference(path string, content string, names ...string) bool {
	var logical strings.Builder
	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)
		if strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasSuffix(line, `\`) {
			logical.WriteString(strings.TrimSuffix(line, `\`))
			logical.WriteString(" ")
			continue
		}
		logical.WriteString(line)
		if referencesAny(logical.String(), names) {
			return true
		}
		logical.Reset()
	}
	if referencesAny(logical.String(), names) {
		return true
	}
	zap.L().Warn("Dockerfile has no ADD or COPY of the assembly, it will not be part of the image",
		zap.String("path", path),
		zap.Strings("assembly", names),
	)
	return false
}

func referencesAny(line string, names []string) bool {
	m := copyRe.FindStringSubmatch(line)
	if m == nil {
		return false
	}
	for _, token := range strings.Fields(m[2]) {
		if strings.HasPrefix(token, "--") {
			continue
		}
		for _, n := range names {
			if n != "" && strings.Contains(token, n) {
				return true
			}
		}
		return false
	}
	return false
}

// InterpolateFile reads a Dockerfile and substitutes expressions delimited per filter
func InterpolateFile(fs afero.Fs, path string, properties map[string]string, filter string) (string, error) {
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return "", fmt.Errorf("read Dockerfile: %w", err)
	}
	i := interpolate.New(filter, interpolate.DefaultChain(properties))
	if !i.Enabled() {
		zap.L().Debug("interpolation disabled", zap.String("path", path), zap.String("filter", filter))
		return string(b), nil
	}
	content, err := i.Interpolate(string(b))
	if err != nil {
		return "", fmt.Errorf("interpolate %s: %w", path, err)
	}
	return content, nil
}
