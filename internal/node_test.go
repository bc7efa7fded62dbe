package internal_test

import (
	"testing"

	"github.com/brodo/bundle-config/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetNodeConfigScenarios(t *testing.T) {
	config, err := internal.GetNodeConfig(baseOptions())
	require.NoError(t, err)
	assert.Equal(t, internal.TargetNode, config.Target)
	assert.Equal(t, root+"/dummy", config.Output.Path)
	assert.Equal(t, "commonjs2", config.Output.LibraryTarget)
	assert.Equal(t, "node18", config.ESTarget)
	assert.Nil(t, config.DevServer)

	_, err = internal.GetNodeConfig(with("mode", ""))
	assert.ErrorIs(t, err, internal.ErrInvalidOption)
	_, err = internal.GetNodeConfig(with("rootFolder", "relative/path"))
	assert.ErrorIs(t, err, internal.ErrInvalidOption)
}

func TestNodeFilenames(t *testing.T) {
	config, err := internal.GetNodeConfig(baseOptions())
	require.NoError(t, err)
	assert.Equal(t, "[name].js", config.Output.Filename)
	assert.Equal(t, "[name].chunk.js", config.Output.ChunkFilename)

	config, err = internal.GetNodeConfig(with("skipHashes", false))
	require.NoError(t, err)
	assert.Equal(t, "[hash].[name].js", config.Output.Filename)
	assert.Equal(t, "[hash].[name].chunk.js", config.Output.ChunkFilename)

	opts := with("skipHashes", false)
	opts["mode"] = "development"
	config, err = internal.GetNodeConfig(opts)
	require.NoError(t, err)
	assert.Equal(t, "[name].js", config.Output.Filename)

	config, err = internal.GetNodeConfig(with("jsFilename", "server.js"))
	require.NoError(t, err)
	assert.Equal(t, "server.js", config.Output.Filename)
}

func TestNodeRules(t *testing.T) {
	config, err := internal.GetNodeConfig(baseOptions())
	require.NoError(t, err)
	require.Len(t, config.Module.Rules, 2)
	assert.Equal(t, "pre", config.Module.Rules[0].Enforce)
	assert.Equal(t, `\.ts$`, config.Module.Rules[1].Test)
	assert.Equal(t, "source-map", config.Devtool)

	config, err = internal.GetNodeConfig(with("sourcemaps", false))
	require.NoError(t, err)
	require.Len(t, config.Module.Rules, 1)
	assert.Empty(t, config.Devtool)
	assert.Empty(t, config.Rules(internal.LoaderCSS))
	assert.Empty(t, config.Rules(internal.LoaderWorker))
}

func TestNodePlugins(t *testing.T) {
	config, err := internal.GetNodeConfig(with("skipReset", true))
	require.NoError(t, err)
	assert.NotNil(t, config.Plugins)
	assert.Empty(t, config.Plugins)

	opts := baseOptions()
	opts["copyPatterns"] = []any{map[string]any{"from": "config/*.json", "to": "config"}}
	opts["externals"] = []any{"pg", "sharp"}
	opts["nodeVersion"] = "20"
	config, err = internal.GetNodeConfig(opts)
	require.NoError(t, err)
	assert.Equal(t, []string{internal.PluginClean, internal.PluginCopy}, pluginNames(config))
	assert.Equal(t, []string{"pg", "sharp"}, config.Externals)
	assert.Equal(t, "node20", config.ESTarget)
	assert.True(t, config.Minify())
}

func TestNodeIgnoresWebOnlyOptions(t *testing.T) {
	opts := baseOptions()
	opts["cssModules"] = "not a bool"
	opts["pages"] = "index.html"
	opts["webworkerPattern"] = "/x/"
	config, err := internal.GetNodeConfig(opts)
	require.NoError(t, err)
	_, ok := config.Plugin(internal.PluginHTML)
	assert.False(t, ok)
}
