// Package interpolate substitutes ${key} style expressions from a chain of property sources.
package interpolate

import (
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/turbokube/assemble/pkg/schema"
)

// ErrCycle is returned when resolving a key requires resolving itself
var ErrCycle = fmt.Errorf("%w: interpolation cycle", schema.ErrConfiguration)

// EnvPrefix marks keys that are looked up in the process environment
const EnvPrefix = "env."

const escape = `\`

// Delimiters are the start and end markers of an expression
type Delimiters struct {
	Start string
	End   string
}

// ParseFilter parses a delimiter spec: "${*}" for ${key}, "@" for @key@, "start*end" in general.
// Returns false for "false", empty and malformed specs, meaning no interpolation.
func ParseFilter(filter string) (Delimiters, bool) {
	if filter == "" || strings.EqualFold(filter, "false") {
		return Delimiters{}, false
	}
	i := strings.Index(filter, "*")
	if i < 0 {
		return Delimiters{Start: filter, End: filter}, true
	}
	d := Delimiters{Start: filter[:i], End: filter[i+1:]}
	if d.Start == "" || d.End == "" || strings.Contains(d.End, "*") {
		return Delimiters{}, false
	}
	return d, true
}

// Lookup returns a value for key, false if the key is unknown to the source
type Lookup func(key string) (string, bool)

// Source is a named lookup, names show up in debug output only
type Source struct {
	Name   string
	Lookup Lookup
}

// Chain is an ordered list of sources, consulted first to last
type Chain []Source

// With returns a new chain where l is consulted before all existing sources
func (c Chain) With(name string, l Lookup) Chain {
	out := make(Chain, 0, len(c)+1)
	out = append(out, Source{Name: name, Lookup: l})
	return append(out, c...)
}

// Lookup returns the value from the first source that knows key
func (c Chain) Lookup(key string) (string, bool) {
	for _, s := range c {
		if v, ok := s.Lookup(key); ok {
			return v, true
		}
	}
	return "", false
}

// Properties looks up keys in a map
func Properties(m map[string]string) Lookup {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

// Environment looks up env.NAME keys with os.LookupEnv
func Environment() Lookup {
	return EnvironmentFrom(os.LookupEnv)
}

// EnvironmentFrom looks up env.NAME keys with a custom env function
func EnvironmentFrom(env func(string) (string, bool)) Lookup {
	return func(key string) (string, bool) {
		if !strings.HasPrefix(key, EnvPrefix) {
			return "", false
		}
		return env(strings.TrimPrefix(key, EnvPrefix))
	}
}

// DefaultChain is explicit properties, then environment for env. keys
func DefaultChain(properties map[string]string) Chain {
	return Chain{}.With("environment", Environment()).With("properties", Properties(properties))
}

type Interpolator struct {
	delimiters Delimiters
	enabled    bool
	chain      Chain
}

// New returns an interpolator that passes input through unchanged if filter is disabled or malformed
func New(filter string, chain Chain) *Interpolator {
	d, ok := ParseFilter(filter)
	return &Interpolator{delimiters: d, enabled: ok, chain: chain}
}

// Enabled is false when the filter disabled interpolation
func (i *Interpolator) Enabled() bool {
	return i.enabled
}

// Interpolate replaces every expression that resolves; unresolved expressions are kept verbatim
func (i *Interpolator) Interpolate(s string) (string, error) {
	if !i.enabled {
		return s, nil
	}
	return i.interpolate(s, nil)
}

// interpolate resolves s with stack holding the keys currently being resolved, outermost first
func (i *Interpolator) interpolate(s string, stack []string) (string, error) {
	start, end := i.delimiters.Start, i.delimiters.End
	var b strings.Builder
	rest := s
	for {
		at := strings.Index(rest, start)
		if at < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		if at > 0 && strings.HasSuffix(rest[:at], escape) {
			b.WriteString(rest[:at-len(escape)])
			b.WriteString(start)
			rest = rest[at+len(start):]
			continue
		}
		b.WriteString(rest[:at])
		after := rest[at+len(start):]
		closing := strings.Index(after, end)
		if closing < 0 {
			b.WriteString(rest[at:])
			return b.String(), nil
		}
		key := after[:closing]
		if !validKey(key) {
			b.WriteString(start)
			rest = after
			continue
		}
		token := start + key + end
		rest = after[closing+len(end):]

		value, found := i.chain.Lookup(key)
		if !found {
			b.WriteString(token)
			continue
		}
		for _, k := range stack {
			if k == key {
				return "", fmt.Errorf("%w: %s", ErrCycle, strings.Join(append(append([]string{}, stack...), key), " -> "))
			}
		}
		next := make([]string, len(stack), len(stack)+1)
		copy(next, stack)
		resolved, err := i.interpolate(value, append(next, key))
		if err != nil {
			return "", err
		}
		b.WriteString(resolved)
	}
}

func validKey(key string) bool {
	if key == "" {
		return false
	}
	for _, r := range key {
		if unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
