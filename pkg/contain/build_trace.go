package contain

import (
	"regexp"
	"strings"
	"time"
)

var (
	defaultEnv = regexp.MustCompile(`^(CI|CI_.*|ASSEMBLE_.*|IMAGE|IMAGE_.*)$`)
)

type BuildTrace struct {
	Start *time.Time        `json:"start,omitempty"`
	End   *time.Time        `json:"end,omitempty"`
	Env   map[string]string `json:"env,omitempty"`
}

// BuildTraceEnv picks CI and build related variables from environ
func BuildTraceEnv(environ []string) map[string]string {
	env := make(map[string]string)
	for _, e := range environ {
		pair := strings.SplitN(e, "=", 2)
		if len(pair) == 2 && defaultEnv.MatchString(pair[0]) {
			env[pair[0]] = pair[1]
		}
	}
	return env
}
