package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/go-viper/mapstructure/v2"
	"github.com/rs/zerolog/log"
)

// EntryOutput holds the files written for one entry, relative to the output folder.
type EntryOutput struct {
	Script     string
	Stylesheet string
}

type BundleResult struct {
	Entries map[string]EntryOutput
	Files   []string
	Pages   []string
	Copied  []string
}

type metafile struct {
	Outputs map[string]struct {
		EntryPoint string `json:"entryPoint"`
		CSSBundle  string `json:"cssBundle"`
	} `json:"outputs"`
}

type cssExtractOptions struct {
	Filename string `mapstructure:"filename"`
}

type workerUseOptions struct {
	Filename   string `mapstructure:"filename"`
	PublicPath string `mapstructure:"publicPath"`
}

type prologueOptions struct {
	Polyfills []string `mapstructure:"polyfills"`
}

type embedOptions struct {
	Limit float64 `mapstructure:"limit"`
}

// bundler turns a Configuration into esbuild options and owns the resources its plugins start.
type bundler struct {
	config *Configuration
	sass   *sassCompiler
}

func newBundler(config *Configuration) *bundler {
	return &bundler{config: config, sass: &sassCompiler{}}
}

func (b *bundler) Close() error {
	return b.sass.Close()
}

// Bundle builds config with esbuild and runs the plugins that act on the written output.
func Bundle(ctx context.Context, config *Configuration) (*BundleResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := newBundler(config)
	defer func() {
		if err := b.Close(); err != nil {
			log.Warn().Err(err).Msg("Closing sass compiler")
		}
	}()

	opts, err := b.BuildOptions()
	if err != nil {
		return nil, err
	}
	if _, ok := config.Plugin(PluginClean); ok {
		if err := ResetOutput(config); err != nil {
			return nil, err
		}
	}
	log.Info().Str("target", string(config.Target)).Strs("entries", entryNames(config.Entry)).Str("output", config.Output.Path).Msg("Bundling")
	result := api.Build(opts)
	if err := messagesError(result.Errors); err != nil {
		return nil, err
	}
	for _, msg := range result.Warnings {
		log.Warn().Str("warning", formatMessage(msg)).Msg("Build warning")
	}
	return b.finish(ctx, result)
}

// BuildOptions translates the configuration into esbuild build options.
func (b *bundler) BuildOptions() (api.BuildOptions, error) {
	c := b.config
	if len(c.Entry) == 0 {
		return api.BuildOptions{}, errors.New("configuration has no entries")
	}
	minify := c.Minify()
	plugins, err := b.plugins(minify)
	if err != nil {
		return api.BuildOptions{}, err
	}
	opts := api.BuildOptions{
		AbsWorkingDir:       c.Context,
		EntryPointsAdvanced: entryPoints(c.Entry),
		Outdir:              c.Output.Path,
		PublicPath:          c.Output.PublicPath,
		EntryNames:          esbuildNames(c.Output.Filename, extJS),
		ChunkNames:          esbuildNames(c.Output.ChunkFilename, extJS),
		Bundle:              true,
		Write:               true,
		Metafile:            true,
		LogLevel:            api.LogLevelSilent,
		MinifyWhitespace:    minify,
		MinifyIdentifiers:   minify,
		MinifySyntax:        minify,
		Sourcemap:           cond(c.Devtool != "", api.SourceMapLinked, api.SourceMapNone),
		ResolveExtensions:   c.Resolve.Extensions,
		Loader:              b.loaders(),
		Plugins:             plugins,
	}
	if c.Output.AssetFilename != "" {
		opts.AssetNames = esbuildNames(c.Output.AssetFilename, "[ext]")
	}
	if tsconfig := b.tsconfig(); tsconfig != "" {
		opts.Tsconfig = tsconfig
	}

	switch c.Target {
	case TargetNode:
		opts.Platform = api.PlatformNode
		opts.Format = api.FormatCommonJS
		opts.External = c.Externals
		opts.Engines = []api.Engine{{Name: api.EngineNode, Version: strings.TrimPrefix(c.ESTarget, "node")}}
	case TargetWeb:
		target, err := ParseESTarget(c.ESTarget)
		if err != nil {
			return api.BuildOptions{}, err
		}
		opts.Platform = api.PlatformBrowser
		opts.Format = api.FormatESModule
		opts.Splitting = true
		opts.Target = target
	default:
		return api.BuildOptions{}, fmt.Errorf("unknown target '%s'", c.Target)
	}
	return opts, nil
}

// Minify reports whether output is minified: web builds follow the postcss step,
// node builds follow the mode.
func (c *Configuration) Minify() bool {
	for _, rule := range c.Rules(LoaderPostCSS) {
		use, _ := rule.Loader(LoaderPostCSS)
		if minify, ok := use.Options["minify"].(bool); ok {
			return minify
		}
	}
	return c.Target == TargetNode && c.Mode == ModeProduction
}

func (b *bundler) tsconfig() string {
	for _, rule := range b.config.Rules(LoaderTypeScript) {
		use, _ := rule.Loader(LoaderTypeScript)
		if file, ok := use.Options["configFile"].(string); ok && file != "" {
			if _, err := os.Stat(file); err == nil {
				return file
			}
		}
	}
	return ""
}

func (b *bundler) loaders() map[string]api.Loader {
	loaders := make(map[string]api.Loader)
	for _, rule := range b.config.Module.Rules {
		for _, use := range rule.Use {
			var loader api.Loader
			switch use.Loader {
			case LoaderRaw:
				loader = api.LoaderText
			case LoaderFile:
				loader = api.LoaderFile
			case LoaderCSS:
				if modules, _ := use.Options["modules"].(bool); modules {
					loader = api.LoaderLocalCSS
				} else {
					loader = api.LoaderCSS
				}
			default:
				continue
			}
			for _, ext := range rule.Extensions {
				if ext == ".scss" {
					continue
				}
				loaders[ext] = loader
			}
		}
	}
	return loaders
}

func (b *bundler) plugins(minify bool) ([]api.Plugin, error) {
	c := b.config
	assets, err := b.assetPlugins(minify)
	if err != nil {
		return nil, err
	}
	plugins := append([]api.Plugin{entryPlugin(c.Entry, c.Context)}, assets...)
	for _, rule := range c.Rules(LoaderWorker) {
		use, _ := rule.Loader(LoaderWorker)
		var wopts workerUseOptions
		if err := mapstructure.Decode(use.Options, &wopts); err != nil {
			return nil, fmt.Errorf("reading %s loader: %w", LoaderWorker, err)
		}
		var popts prologueOptions
		if prologue, ok := rule.Loader(LoaderWorkerPrologue); ok {
			if err := mapstructure.Decode(prologue.Options, &popts); err != nil {
				return nil, fmt.Errorf("reading %s loader: %w", LoaderWorkerPrologue, err)
			}
		}
		filename := wopts.Filename
		if filename == "" {
			filename = filenamePattern(false, extWorker)
		}
		pattern, err := regexp.Compile(rule.Test)
		if err != nil {
			return nil, fmt.Errorf("worker rule test '%s': %w", rule.Test, err)
		}
		plugins = append(plugins, workerPlugin(pattern, workerOptions{
			filename:   filename,
			publicPath: wopts.PublicPath,
			polyfills:  popts.Polyfills,
		}, b.compileWorker, c.Output.Path))
	}
	return plugins, nil
}

// assetPlugins are the plugins shared by the main build and worker builds.
func (b *bundler) assetPlugins(minify bool) ([]api.Plugin, error) {
	var plugins []api.Plugin
	for _, rule := range b.config.Rules(LoaderEmbed) {
		use, _ := rule.Loader(LoaderEmbed)
		var eopts embedOptions
		if err := mapstructure.Decode(use.Options, &eopts); err != nil {
			return nil, fmt.Errorf("reading %s loader: %w", LoaderEmbed, err)
		}
		plugins = append(plugins, embedPlugin(rule.Test, eopts.Limit))
	}
	for _, rule := range b.config.Rules(LoaderSCSS) {
		use, _ := rule.Loader(LoaderSCSS)
		prepend, _ := use.Options["prependData"].(string)
		var modules bool
		if css, ok := rule.Loader(LoaderCSS); ok {
			modules, _ = css.Options["modules"].(bool)
		}
		plugins = append(plugins, scssPlugin(b.sass, prepend, modules, minify))
	}
	return plugins, nil
}

// compileWorker bundles a worker prologue into a single classic script.
// Polyfills in the prologue resolve against the root folder.
func (b *bundler) compileWorker(source string) ([]byte, error) {
	c := b.config
	minify := c.Minify()
	target, err := ParseESTarget(c.ESTarget)
	if err != nil {
		return nil, err
	}
	plugins, err := b.assetPlugins(minify)
	if err != nil {
		return nil, err
	}
	opts := api.BuildOptions{
		Stdin: &api.StdinOptions{
			Contents:   source,
			ResolveDir: c.Context,
			Sourcefile: "worker-prologue.js",
			Loader:     api.LoaderJS,
		},
		AbsWorkingDir:     c.Context,
		Outdir:            c.Output.Path,
		PublicPath:        c.Output.PublicPath,
		Bundle:            true,
		Write:             false,
		LogLevel:          api.LogLevelSilent,
		Format:            api.FormatIIFE,
		Platform:          api.PlatformBrowser,
		Target:            target,
		MinifyWhitespace:  minify,
		MinifyIdentifiers: minify,
		MinifySyntax:      minify,
		Sourcemap:         cond(c.Devtool != "", api.SourceMapInline, api.SourceMapNone),
		ResolveExtensions: c.Resolve.Extensions,
		Loader:            b.loaders(),
		Plugins:           plugins,
		Tsconfig:          b.tsconfig(),
	}
	if c.Output.AssetFilename != "" {
		opts.AssetNames = esbuildNames(c.Output.AssetFilename, "[ext]")
	}
	// the worker plugin writes the script itself, under its own name
	result := api.Build(opts)
	if err := messagesError(result.Errors); err != nil {
		return nil, err
	}
	var code []byte
	for _, file := range result.OutputFiles {
		if filepath.Ext(file.Path) == ".js" && code == nil {
			code = file.Contents
			continue
		}
		if err := os.MkdirAll(filepath.Dir(file.Path), 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(file.Path, file.Contents, 0o644); err != nil {
			return nil, err
		}
	}
	if code == nil {
		return nil, errors.New("worker build produced no script")
	}
	return code, nil
}

// finish reads the metafile and runs the post-build plugins.
func (b *bundler) finish(ctx context.Context, result api.BuildResult) (*BundleResult, error) {
	c := b.config
	var meta metafile
	if err := json.Unmarshal([]byte(result.Metafile), &meta); err != nil {
		return nil, fmt.Errorf("reading metafile: %w", err)
	}

	var cssPattern string
	if p, ok := c.Plugin(PluginCSSExtract); ok {
		var opts cssExtractOptions
		if err := mapstructure.Decode(p.Options, &opts); err != nil {
			return nil, fmt.Errorf("reading %s plugin: %w", PluginCSSExtract, err)
		}
		cssPattern = opts.Filename
	}

	out := &BundleResult{Entries: make(map[string]EntryOutput)}
	outputs := make([]string, 0, len(meta.Outputs))
	for p := range meta.Outputs {
		outputs = append(outputs, p)
	}
	sort.Strings(outputs)
	renamed := make(map[string]string)
	stylesheet := func(rel, name string) (string, error) {
		if done, ok := renamed[rel]; ok {
			return done, nil
		}
		css, err := b.renameStylesheet(rel, name, cssPattern)
		renamed[rel] = css
		return css, err
	}
	for _, p := range outputs {
		info := meta.Outputs[p]
		if !strings.HasPrefix(info.EntryPoint, entryPrefix) {
			continue
		}
		name := strings.TrimPrefix(info.EntryPoint, entryPrefix)
		entry := out.Entries[name]
		switch filepath.Ext(p) {
		case ".js":
			entry.Script = b.relative(p)
			if info.CSSBundle != "" {
				css, err := stylesheet(b.relative(info.CSSBundle), name)
				if err != nil {
					return nil, err
				}
				entry.Stylesheet = css
			}
		case ".css":
			css, err := stylesheet(b.relative(p), name)
			if err != nil {
				return nil, err
			}
			entry.Stylesheet = css
		}
		out.Entries[name] = entry
	}
	for _, p := range outputs {
		rel := b.relative(p)
		if css, ok := renamed[rel]; ok {
			rel = css
		}
		out.Files = append(out.Files, filepath.Join(c.Output.Path, rel))
	}

	writer, err := newPageWriter(c, out.Entries)
	if err != nil {
		return nil, err
	}
	if out.Pages, err = writer.WritePages(); err != nil {
		return nil, err
	}
	if out.Copied, err = CopyPatterns(ctx, c); err != nil {
		return nil, err
	}
	log.Info().Int("files", len(out.Files)).Int("pages", len(out.Pages)).Int("copied", len(out.Copied)).Msg("Bundle written")
	return out, nil
}

// relative turns a metafile path into a path relative to the output folder.
func (b *bundler) relative(p string) string {
	abs := p
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(b.config.Context, p)
	}
	rel, err := filepath.Rel(b.config.Output.Path, abs)
	if err != nil {
		return p
	}
	return rel
}

// renameStylesheet moves an entry's CSS bundle to the extract plugin's file name.
func (b *bundler) renameStylesheet(rel, name, pattern string) (string, error) {
	if pattern == "" {
		return rel, nil
	}
	dir := b.config.Output.Path
	content, err := os.ReadFile(filepath.Join(dir, rel))
	if err != nil {
		return "", err
	}
	target := expandFilename(pattern, name, "css", content)
	if target == rel {
		return rel, nil
	}
	oldMap, newMap := filepath.Base(rel)+".map", filepath.Base(target)+".map"
	if _, err := os.Stat(filepath.Join(dir, rel+".map")); err == nil {
		content = []byte(strings.Replace(string(content), "sourceMappingURL="+oldMap, "sourceMappingURL="+newMap, 1))
		if err := os.Rename(filepath.Join(dir, rel+".map"), filepath.Join(dir, target+".map")); err != nil {
			return "", err
		}
	}
	if err := os.MkdirAll(filepath.Dir(filepath.Join(dir, target)), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, target), content, 0o644); err != nil {
		return "", err
	}
	return target, os.Remove(filepath.Join(dir, rel))
}

func entryNames(entry map[string][]string) []string {
	names := make([]string, 0, len(entry))
	for name := range entry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func messagesError(messages []api.Message) error {
	errs := make([]error, len(messages))
	for i, message := range messages {
		errs[i] = errors.New(formatMessage(message))
	}
	return errors.Join(errs...)
}

func formatMessage(msg api.Message) string {
	var s string
	if loc := msg.Location; loc != nil {
		s = fmt.Sprintf("%s:%d:%d: ", loc.File, loc.Line, loc.Column)
	}
	return s + msg.Text
}

func cond[T any](condition bool, trueVal, falseVal T) T {
	if condition {
		return trueVal
	}
	return falseVal
}
