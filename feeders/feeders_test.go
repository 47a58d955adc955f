package feeders

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/modgraph/config"
)

func lookup(t *testing.T, root *config.Node, path string) *config.Node {
	t.Helper()
	n, err := root.Lookup(path)
	require.NoError(t, err)
	require.NotNil(t, n, "missing %s", path)
	return n
}

func TestParseYAML(t *testing.T) {
	root, err := ParseYAML([]byte(`
defaults: &defaults
  retries: 3
http:
  port: 8080
  name: "api"
  mode: ~
  url: "http://${host}:80"
  layers:
    main:
      a:
        enabled: true
  tags: [x, y]
worker:
  <<: *defaults
  size: 2
`))
	require.NoError(t, err)

	assert.Equal(t, "8080", lookup(t, root, "http.port").Value)
	assert.Equal(t, config.KindScalar, lookup(t, root, "http.name").Kind)
	assert.True(t, lookup(t, root, "http.mode").IsNone())
	url := lookup(t, root, "http.url")
	assert.Equal(t, config.KindExpression, url.Kind)
	assert.Equal(t, `"http://${host}:80"`, url.Value)
	assert.Equal(t, "true", lookup(t, root, "http.layers.main.a.enabled").Value)
	assert.Equal(t, "y", lookup(t, root, "http.tags[1]").Value)
	assert.Equal(t, "3", lookup(t, root, "worker.retries").Value)

	names := make([]string, 0, len(root.Children))
	for _, c := range root.Children {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"defaults", "http", "worker"}, names, "mapping order is kept")
}

func TestQuoteTemplate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: `${env("HOME")}`, want: `"${env("HOME")}"`},
		{in: `say "${name}"`, want: `"say \"${name}\""`},
		{in: `${ {a = 1}.a }`, want: `"${ {a = 1}.a }"`},
		{in: `$${literal} ${x}`, want: `"$${literal} ${x}"`},
		{in: `100%{ ${x}`, want: `"100%%{ ${x}"`},
		{in: "tab\t${x}", want: `"tab\t${x}"`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, quoteTemplate(tt.in))
		})
	}
}

func TestParseYAMLEdgeCases(t *testing.T) {
	root, err := ParseYAML(nil)
	require.NoError(t, err)
	assert.Equal(t, config.KindObject, root.Kind)
	assert.Zero(t, root.Len())

	_, err = ParseYAML([]byte("- a\n- b\n"))
	require.ErrorIs(t, err, ErrRootNotObject)

	_, err = ParseYAML([]byte("a: [unclosed"))
	require.Error(t, err)
}

func TestParseTOML(t *testing.T) {
	root, err := ParseTOML([]byte(`
[http]
port = 8080
ratio = 0.5
debug = false
greeting = "hi ${name}"

[[http.routes]]
path = "/a"

[[http.routes]]
path = "/b"
`))
	require.NoError(t, err)
	assert.Equal(t, "8080", lookup(t, root, "http.port").Value)
	assert.Equal(t, "0.5", lookup(t, root, "http.ratio").Value)
	assert.Equal(t, "false", lookup(t, root, "http.debug").Value)
	assert.Equal(t, config.KindExpression, lookup(t, root, "http.greeting").Kind)
	assert.Equal(t, "/b", lookup(t, root, "http.routes[1].path").Value)
}

func TestParseJSON(t *testing.T) {
	root, err := ParseJSON([]byte(`{"http": {"port": 8080, "big": 12345678901234567890, "off": null, "items": [1, "two"]}}`))
	require.NoError(t, err)
	assert.Equal(t, "8080", lookup(t, root, "http.port").Value)
	assert.Equal(t, "12345678901234567890", lookup(t, root, "http.big").Value)
	assert.True(t, lookup(t, root, "http.off").IsNone())
	assert.Equal(t, "two", lookup(t, root, "http.items[1]").Value)

	_, err = ParseJSON([]byte(`[1, 2]`))
	require.ErrorIs(t, err, ErrRootNotObject)

	empty, err := ParseJSON([]byte("  "))
	require.NoError(t, err)
	assert.Zero(t, empty.Len())
}

func TestParseHCL(t *testing.T) {
	root, err := ParseHCL([]byte(`
module "http" {
  port    = 8080
  name    = "api"
  tags    = ["a", "b"]
  limits  = { burst = 10 }
  workers = max(2, 4)
  url     = "http://${host}"

  layer "main" {
    auto = true
  }
}
`), "test.hcl")
	require.NoError(t, err)

	http := lookup(t, root, "http")
	names := make([]string, 0, len(http.Children))
	for _, c := range http.Children {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"port", "name", "tags", "limits", "workers", "url", "main"}, names)

	assert.Equal(t, "8080", lookup(t, root, "http.port").Value)
	assert.Equal(t, "b", lookup(t, root, "http.tags[1]").Value)
	assert.Equal(t, "10", lookup(t, root, "http.limits.burst").Value)
	assert.Equal(t, "true", lookup(t, root, "http.main.auto").Value)

	workers := lookup(t, root, "http.workers")
	assert.Equal(t, config.KindExpression, workers.Kind)
	assert.Equal(t, "max(2, 4)", workers.Value)
	assert.Equal(t, `"http://${host}"`, lookup(t, root, "http.url").Value)

	_, err = ParseHCL([]byte(`broken = `), "broken.hcl")
	require.Error(t, err)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"app.yaml": "app:\n  port: 1\n",
		"app.yml":  "app:\n  port: 2\n",
		"app.toml": "[app]\nport = 3\n",
		"app.json": `{"app": {"port": 4}}`,
		"app.hcl":  "app {\n  port = 5\n}\n",
	}
	want := map[string]string{"app.yaml": "1", "app.yml": "2", "app.toml": "3", "app.json": "4", "app.hcl": "5"}
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		root, err := Load(path)
		require.NoError(t, err, name)
		assert.Equal(t, want[name], lookup(t, root, "app.port").Value, name)
	}

	_, err := Load(filepath.Join(dir, "app.ini"))
	require.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
