package resolve_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turbokube/assemble/pkg/resolve"
	"github.com/turbokube/assemble/pkg/schema"
	v1 "github.com/turbokube/assemble/pkg/schema/v1"
)

var (
	from  = resolve.Key{Name: "from", Kind: resolve.String}
	ports = resolve.Key{Name: "ports", Kind: resolve.List}
	env   = resolve.Key{Name: "env", Kind: resolve.Map}
	opt   = resolve.Key{Name: "optimise", Kind: resolve.Bool}
)

func TestStringModes(t *testing.T) {
	props := map[string]string{"image.from": "prop:1"}
	tests := []struct {
		name   string
		mode   resolve.PropertyMode
		config string
		props  map[string]string
		want   string
	}{
		{name: "override prefers property", mode: resolve.Override, config: "cfg:1", props: props, want: "prop:1"},
		{name: "override falls back to config", mode: resolve.Override, config: "cfg:1", want: "cfg:1"},
		{name: "fallback prefers config", mode: resolve.Fallback, config: "cfg:1", props: props, want: "cfg:1"},
		{name: "fallback uses property", mode: resolve.Fallback, props: props, want: "prop:1"},
		{name: "only ignores config", mode: resolve.Only, config: "cfg:1", want: ""},
		{name: "only uses property", mode: resolve.Only, config: "cfg:1", props: props, want: "prop:1"},
		{name: "skip ignores property", mode: resolve.Skip, config: "cfg:1", props: props, want: "cfg:1"},
		{name: "both absent", mode: resolve.Override, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolve.New("image", tt.props, tt.mode).String(from, tt.config)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestListMerge(t *testing.T) {
	r := resolve.New("image", map[string]string{
		"image.ports.1":        "c",
		"image.ports.2":        "d",
		"image.ports._combine": "merge",
	}, resolve.Override)

	got, err := r.List(ports, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d", "a", "b"}, got)
}

func TestListMergeFallback(t *testing.T) {
	r := resolve.New("image", map[string]string{"image.ports": "c, d"}, resolve.Fallback)

	got, err := r.List(resolve.Key{Name: "ports", Kind: resolve.List, Combine: resolve.Merge}, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, got)
}

func TestListReplace(t *testing.T) {
	r := resolve.New("image", map[string]string{"image.ports.10": "y", "image.ports.2": "x"}, resolve.Override)

	got, err := r.List(ports, []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, got)

	got, err = resolve.New("image", nil, resolve.Override).List(ports, nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMapMerge(t *testing.T) {
	r := resolve.New("image", map[string]string{
		"image.env.A":        "prop",
		"image.env.B":        "",
		"image.env._combine": "merge",
	}, resolve.Override)

	got, err := r.Map(env, map[string]string{"A": "config", "B": "config", "C": "config"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"A": "prop", "B": "", "C": "config"}, got)
}

func TestMapReplace(t *testing.T) {
	r := resolve.New("image", map[string]string{"image.env.A": "prop"}, resolve.Override)

	got, err := r.Map(env, map[string]string{"C": "config"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"A": "prop"}, got)
}

func TestMergeOnScalar(t *testing.T) {
	r := resolve.New("image", map[string]string{"image.optimise._combine": "merge"}, resolve.Override)

	_, err := r.Bool(opt, nil)
	require.ErrorIs(t, err, resolve.ErrCombinePolicy)
	assert.Contains(t, err.Error(), "image.optimise")
}

func TestInvalidCombine(t *testing.T) {
	r := resolve.New("image", map[string]string{"image.ports._combine": "append"}, resolve.Override)

	_, err := r.List(ports, nil)
	require.ErrorIs(t, err, schema.ErrConfiguration)
}

func TestBool(t *testing.T) {
	r := resolve.New("image", map[string]string{"image.optimise": "true"}, resolve.Fallback)
	f := false

	got, err := r.Bool(opt, &f)
	require.NoError(t, err)
	assert.False(t, *got)

	got, err = r.Bool(opt, nil)
	require.NoError(t, err)
	assert.True(t, *got)

	_, err = resolve.New("image", map[string]string{"image.optimise": "yes please"}, resolve.Override).Bool(opt, nil)
	require.ErrorIs(t, err, schema.ErrConfiguration)
}

func TestResolveBuildConfiguration(t *testing.T) {
	r := resolve.New(resolve.DefaultPrefix, map[string]string{
		"image.from":               "eclipse-temurin:21",
		"image.cacheFrom.1":        "registry/cache:prop",
		"image.cacheFrom._combine": "merge",
		"image.labels.version":     "2",
		"image.cmd":                `["java","-jar","/maven/app.jar"]`,
		"unrelated.from":           "ignored",
	}, resolve.Override)

	cfg, err := r.ResolveBuildConfiguration(v1.BuildConfiguration{
		From:       "busybox:latest",
		CacheFrom:  []string{"registry/cache:config"},
		Labels:     map[string]string{"version": "1", "team": "a"},
		Entrypoint: &v1.Arguments{Shell: "/entrypoint.sh"},
	})
	require.NoError(t, err)
	assert.Equal(t, "eclipse-temurin:21", cfg.From)
	assert.Equal(t, []string{"registry/cache:prop", "registry/cache:config"}, cfg.CacheFrom)
	assert.Equal(t, map[string]string{"version": "2"}, cfg.Labels)
	assert.Equal(t, &v1.Arguments{Exec: []string{"java", "-jar", "/maven/app.jar"}}, cfg.Cmd)
	assert.Equal(t, &v1.Arguments{Shell: "/entrypoint.sh"}, cfg.Entrypoint)
	assert.Nil(t, cfg.Optimise)
}

func TestParsePropertyMode(t *testing.T) {
	m, err := resolve.ParsePropertyMode("FALLBACK")
	require.NoError(t, err)
	assert.Equal(t, resolve.Fallback, m)

	_, err = resolve.ParsePropertyMode("sometimes")
	require.ErrorIs(t, err, schema.ErrConfiguration)
}

func TestZeroModeHonoursConfig(t *testing.T) {
	var mode resolve.PropertyMode
	assert.Equal(t, resolve.Override, mode)

	cfg, err := resolve.New(resolve.DefaultPrefix, nil, mode).ResolveBuildConfiguration(v1.BuildConfiguration{
		From:       "busybox:1",
		Dockerfile: "Dockerfile",
		Ports:      []string{"8080"},
	})
	require.NoError(t, err)
	assert.Equal(t, "busybox:1", cfg.From)
	assert.Equal(t, "Dockerfile", cfg.Dockerfile)
	assert.Equal(t, []string{"8080"}, cfg.Ports)
}
