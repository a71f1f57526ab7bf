// Package resolve combines declared build configuration with prefixed properties,
// for example from -D flags or a properties file.
package resolve

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/turbokube/assemble/pkg/schema"
)

// DefaultPrefix is the property prefix for image build configuration, as in image.from=busybox
const DefaultPrefix = "image"

// combineSuffix overrides a key's combine policy, as in image.ports._combine=merge
const combineSuffix = "._combine"

// ErrCombinePolicy is returned when merge is requested for a scalar key
var ErrCombinePolicy = errors.New("unsupported combine policy")

// PropertyMode decides how properties relate to the declared configuration
type PropertyMode int

// Override is the zero value, so Options without a mode still honour declared configuration
const (
	// Override lets properties win over declared configuration
	Override PropertyMode = iota
	// Only ignores declared configuration
	Only
	// Fallback lets declared configuration win over properties
	Fallback
	// Skip ignores properties
	Skip
)

func ParsePropertyMode(s string) (PropertyMode, error) {
	switch strings.ToLower(s) {
	case "only":
		return Only, nil
	case "", "override":
		return Override, nil
	case "fallback":
		return Fallback, nil
	case "skip":
		return Skip, nil
	}
	return Skip, schema.ConfigError("propertyMode", s, "must be one of only, override, fallback, skip")
}

func (m PropertyMode) String() string {
	return [...]string{"override", "only", "fallback", "skip"}[m]
}

type CombinePolicy int

const (
	// Replace takes the first source, in priority order, that has a value
	Replace CombinePolicy = iota
	// Merge concatenates lists and merges maps in priority order
	Merge
)

func parseCombinePolicy(key string, s string) (CombinePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "replace":
		return Replace, nil
	case "merge":
		return Merge, nil
	}
	return Replace, schema.ConfigError(key, s, "must be one of replace, merge")
}

type Kind int

const (
	String Kind = iota
	Bool
	List
	Map
)

// Key is a configuration key with its value kind and default combine policy
type Key struct {
	Name    string
	Kind    Kind
	Combine CombinePolicy
}

// Resolver resolves each key independently from declared configuration and properties
type Resolver struct {
	prefix string
	values map[string]string
	mode   PropertyMode
}

// New takes a property map that may contain unrelated keys; only prefix. keys are considered
func New(prefix string, values map[string]string, mode PropertyMode) *Resolver {
	if values == nil {
		values = map[string]string{}
	}
	return &Resolver{
		prefix: strings.TrimSuffix(prefix, "."),
		values: values,
		mode:   mode,
	}
}

func (r *Resolver) property(name string) string {
	return r.prefix + "." + name
}

// combine returns the effective policy for key, honoring the _combine sentinel property
func (r *Resolver) combine(key Key) (CombinePolicy, error) {
	policy := key.Combine
	if s, ok := r.values[r.property(key.Name)+combineSuffix]; ok {
		var err error
		policy, err = parseCombinePolicy(r.property(key.Name)+combineSuffix, s)
		if err != nil {
			return Replace, err
		}
	}
	if policy == Merge && key.Kind != List && key.Kind != Map {
		return Replace, fmt.Errorf("%w: merge for non-collection key %s", ErrCombinePolicy, r.property(key.Name))
	}
	return policy, nil
}

// order reports which sources take part and whether properties come first
func (r *Resolver) order() (usesConfig bool, usesProperty bool, propertyFirst bool) {
	switch r.mode {
	case Only:
		return false, true, true
	case Override:
		return true, true, true
	case Fallback:
		return true, true, false
	}
	return true, false, false
}

// String returns "" when neither source has a value
func (r *Resolver) String(key Key, config string) (string, error) {
	if _, err := r.combine(key); err != nil {
		return "", err
	}
	prop := r.values[r.property(key.Name)]
	for _, v := range prioritizedOf(r, config, prop) {
		if v != "" {
			return v, nil
		}
	}
	return "", nil
}

// Bool returns nil when neither source has a value
func (r *Resolver) Bool(key Key, config *bool) (*bool, error) {
	if _, err := r.combine(key); err != nil {
		return nil, err
	}
	var prop *bool
	if s, ok := r.values[r.property(key.Name)]; ok && s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, schema.ConfigError(r.property(key.Name), s, "is not a boolean")
		}
		prop = &b
	}
	for _, v := range prioritizedOf(r, config, prop) {
		if v != nil {
			return v, nil
		}
	}
	return nil, nil
}

// List returns nil when neither source has entries
func (r *Resolver) List(key Key, config []string) ([]string, error) {
	policy, err := r.combine(key)
	if err != nil {
		return nil, err
	}
	sources := prioritizedOf(r, config, r.propertyList(key.Name))
	var result []string
	for _, s := range sources {
		if len(s) == 0 {
			continue
		}
		if policy == Replace {
			return append([]string{}, s...), nil
		}
		result = append(result, s...)
	}
	return result, nil
}

// Map returns nil when neither source has entries.
// With Merge, keys from a higher priority source are never overwritten.
func (r *Resolver) Map(key Key, config map[string]string) (map[string]string, error) {
	policy, err := r.combine(key)
	if err != nil {
		return nil, err
	}
	sources := prioritizedOf(r, config, r.propertyMap(key.Name))
	var result map[string]string
	for _, s := range sources {
		if len(s) == 0 {
			continue
		}
		if result == nil {
			result = make(map[string]string, len(s))
		}
		for k, v := range s {
			if _, exists := result[k]; !exists {
				result[k] = v
			}
		}
		if policy == Replace {
			break
		}
	}
	return result, nil
}

func prioritizedOf[T any](r *Resolver, config T, prop T) []T {
	usesConfig, usesProperty, propertyFirst := r.order()
	var out []T
	if usesProperty && propertyFirst {
		out = append(out, prop)
	}
	if usesConfig {
		out = append(out, config)
	}
	if usesProperty && !propertyFirst {
		out = append(out, prop)
	}
	return out
}

// propertyList reads prefix.name as a comma separated list followed by indexed prefix.name.N entries
func (r *Resolver) propertyList(name string) []string {
	var result []string
	if s, ok := r.values[r.property(name)]; ok {
		for _, item := range strings.Split(s, ",") {
			if item = strings.TrimSpace(item); item != "" {
				result = append(result, item)
			}
		}
	}
	type indexed struct {
		n     int
		value string
	}
	var items []indexed
	p := r.property(name) + "."
	for k, v := range r.values {
		if !strings.HasPrefix(k, p) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(k, p))
		if err != nil {
			continue
		}
		items = append(items, indexed{n: n, value: v})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].n < items[j].n })
	for _, item := range items {
		result = append(result, item.value)
	}
	return result
}

// propertyMap reads prefix.name.KEY entries
func (r *Resolver) propertyMap(name string) map[string]string {
	var result map[string]string
	p := r.property(name) + "."
	for k, v := range r.values {
		if !strings.HasPrefix(k, p) || k == r.property(name)+combineSuffix {
			continue
		}
		if result == nil {
			result = map[string]string{}
		}
		result[strings.TrimPrefix(k, p)] = v
	}
	return result
}
