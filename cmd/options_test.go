package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/brodo/bundle-config/internal"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const optionsYAML = `web:
  entry:
    app: ./src/app.ts
  embedLimit: 4096
  webworkerPattern: \.thread\.ts$
  copyPatterns:
    - from: public
node:
  entry:
    server: [./src/polyfill.ts, ./src/server.ts]
  externals: [pg]
`

func writeOptionsFile(t *testing.T) (string, string) {
	root := t.TempDir()
	path := filepath.Join(root, ".bundle-config.yml")
	require.NoError(t, os.WriteFile(path, []byte(optionsYAML), 0o644))
	return root, path
}

func TestLoadOptions(t *testing.T) {
	root, path := writeOptionsFile(t)

	web, err := loadOptions(path, internal.TargetWeb, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"app": "./src/app.ts"}, web["entry"])
	require.IsType(t, &regexp.Regexp{}, web["webworkerPattern"])
	assert.Equal(t, `\.thread\.ts$`, web["webworkerPattern"].(*regexp.Regexp).String())

	web["rootFolder"] = root
	config, err := buildConfig(internal.TargetWeb, web)
	require.NoError(t, err)
	assert.Equal(t, []string{"./src/app.ts"}, config.Entry["app"])
	assert.Len(t, config.Rules(internal.LoaderWorker), 1)

	node, err := loadOptions(path, internal.TargetNode, nil)
	require.NoError(t, err)
	node["rootFolder"] = root
	config, err = buildConfig(internal.TargetNode, node)
	require.NoError(t, err)
	assert.Equal(t, []string{"./src/polyfill.ts", "./src/server.ts"}, config.Entry["server"])
	assert.Equal(t, []string{"pg"}, config.Externals)
}

func TestLoadOptionsFlagsOverrideFile(t *testing.T) {
	root, path := writeOptionsFile(t)
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	addOptionFlags(flags)
	require.NoError(t, flags.Parse([]string{"--mode", "development", "--root", root, "--skip-hashes"}))

	opts, err := loadOptions(path, internal.TargetWeb, flags)
	require.NoError(t, err)
	assert.Equal(t, "development", opts["mode"])
	assert.Equal(t, root, opts["rootFolder"])
	assert.Equal(t, true, opts["skipHashes"])
	_, ok := opts["outputFolder"]
	assert.False(t, ok, "unchanged flags must not override the file")
}

func TestLoadOptionsErrors(t *testing.T) {
	_, err := loadOptions(filepath.Join(t.TempDir(), "missing.yml"), internal.TargetWeb, nil)
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yml")
	require.NoError(t, os.WriteFile(path, []byte("web:\n  webworkerPattern: \"(\"\n"), 0o644))
	_, err = loadOptions(path, internal.TargetWeb, nil)
	assert.ErrorContains(t, err, "webworkerPattern")

	// node builds ignore the pattern
	_, err = loadOptions(path, internal.TargetNode, nil)
	assert.NoError(t, err)

	opts, err := loadOptions("", internal.TargetWeb, nil)
	require.NoError(t, err)
	assert.Empty(t, opts)

	_, err = buildConfig("desktop", internal.Options{})
	assert.ErrorContains(t, err, "desktop")
}

func TestPrintConfig(t *testing.T) {
	config, err := internal.GetNodeConfig(internal.Options{"rootFolder": "/srv/app"})
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, printConfig(&out, config, "json"))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, "node", decoded["target"])
	assert.Equal(t, "/srv/app/dist", decoded["output"].(map[string]any)["path"])

	out.Reset()
	require.NoError(t, printConfig(&out, config, "yaml"))
	var back internal.Configuration
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &back))
	assert.Equal(t, config.Output, back.Output)
	assert.Equal(t, config.Entry, back.Entry)

	assert.Error(t, printConfig(&out, config, "toml"))
}
