package internal

import (
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

type Target string

const (
	TargetWeb  Target = "web"
	TargetNode Target = "node"
)

// Configuration is the build description produced by GetWebConfig and GetNodeConfig
// and consumed by Bundle and Serve.
type Configuration struct {
	Target    Target              `json:"target" yaml:"target"`
	Mode      string              `json:"mode" yaml:"mode"`
	Context   string              `json:"context" yaml:"context"`
	Entry     map[string][]string `json:"entry" yaml:"entry"`
	Devtool   string              `json:"devtool,omitempty" yaml:"devtool,omitempty"`
	ESTarget  string              `json:"esTarget,omitempty" yaml:"esTarget,omitempty"`
	Output    Output              `json:"output" yaml:"output"`
	Resolve   Resolve             `json:"resolve" yaml:"resolve"`
	Module    Module              `json:"module" yaml:"module"`
	Externals []string            `json:"externals,omitempty" yaml:"externals,omitempty"`
	Plugins   []Plugin            `json:"plugins" yaml:"plugins"`
	DevServer *DevServer          `json:"devServer,omitempty" yaml:"devServer,omitempty"`
}

type Output struct {
	Path          string `json:"path" yaml:"path"`
	PublicPath    string `json:"publicPath,omitempty" yaml:"publicPath,omitempty"`
	Filename      string `json:"filename" yaml:"filename"`
	ChunkFilename string `json:"chunkFilename" yaml:"chunkFilename"`
	AssetFilename string `json:"assetFilename,omitempty" yaml:"assetFilename,omitempty"`
	LibraryTarget string `json:"libraryTarget,omitempty" yaml:"libraryTarget,omitempty"`
}

type Resolve struct {
	Extensions []string `json:"extensions" yaml:"extensions"`
}

type Module struct {
	Rules []Rule `json:"rules" yaml:"rules"`
}

// Rule routes files matching Test (a Go regular expression) through Use.
// Use is listed outermost first: the last entry sees the source file.
type Rule struct {
	Test       string   `json:"test" yaml:"test"`
	Extensions []string `json:"extensions,omitempty" yaml:"extensions,omitempty"`
	Exclude    string   `json:"exclude,omitempty" yaml:"exclude,omitempty"`
	Enforce    string   `json:"enforce,omitempty" yaml:"enforce,omitempty"`
	Type       string   `json:"type,omitempty" yaml:"type,omitempty"`
	Use        []Use    `json:"use" yaml:"use"`
}

type Use struct {
	Loader  string         `json:"loader" yaml:"loader"`
	Options map[string]any `json:"options,omitempty" yaml:"options,omitempty"`
}

type Plugin struct {
	Name    string         `json:"name" yaml:"name"`
	Options map[string]any `json:"options,omitempty" yaml:"options,omitempty"`
}

type DevServer struct {
	Host               string `json:"host" yaml:"host"`
	Port               int    `json:"port" yaml:"port"`
	Static             string `json:"static" yaml:"static"`
	HistoryAPIFallback bool   `json:"historyApiFallback" yaml:"historyApiFallback"`
}

// CopyPattern copies From (relative to the root folder, globs allowed) to To
// (relative to the output folder).
type CopyPattern struct {
	From string `json:"from" yaml:"from" mapstructure:"from"`
	To   string `json:"to,omitempty" yaml:"to,omitempty" mapstructure:"to"`
}

// InjectPattern adds an extra script or stylesheet tag to every generated page.
type InjectPattern struct {
	Path       string            `json:"path" yaml:"path" mapstructure:"path"`
	Type       string            `json:"type,omitempty" yaml:"type,omitempty" mapstructure:"type"`
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty" mapstructure:"attributes"`
	Append     bool              `json:"append,omitempty" yaml:"append,omitempty" mapstructure:"append"`
}

type Page struct {
	Filename string   `json:"filename,omitempty" yaml:"filename,omitempty" mapstructure:"filename"`
	Template string   `json:"template,omitempty" yaml:"template,omitempty" mapstructure:"template"`
	Title    string   `json:"title,omitempty" yaml:"title,omitempty" mapstructure:"title"`
	Chunks   []string `json:"chunks,omitempty" yaml:"chunks,omitempty" mapstructure:"chunks"`
}

// Loader steps used in rules.
const (
	LoaderSourceMap      = "source-map"
	LoaderTypeScript     = "typescript"
	LoaderCSSExtract     = "css-extract"
	LoaderCSS            = "css"
	LoaderPostCSS        = "postcss"
	LoaderSCSS           = "scss"
	LoaderEmbed          = "embed"
	LoaderFile           = "file"
	LoaderRaw            = "raw"
	LoaderWorker         = "worker"
	LoaderWorkerPrologue = "worker-prologue"
)

// Plugin names.
const (
	PluginCSSExtract = "css-extract"
	PluginHTML       = "html"
	PluginInjectTags = "inject-tags"
	PluginIntegrity  = "subresource-integrity"
	PluginClean      = "clean"
	PluginCopy       = "copy"
)

// RuleTypeJSONAsModule keeps the bundler from parsing .json files as data before the rule's loaders run.
const RuleTypeJSONAsModule = "javascript/auto"

// Rules returns the rules whose Use includes loader.
func (c *Configuration) Rules(loader string) []Rule {
	var rules []Rule
	for _, rule := range c.Module.Rules {
		for _, use := range rule.Use {
			if use.Loader == loader {
				rules = append(rules, rule)
				break
			}
		}
	}
	return rules
}

// Plugin returns the first plugin called name.
func (c *Configuration) Plugin(name string) (Plugin, bool) {
	for _, p := range c.Plugins {
		if p.Name == name {
			return p, true
		}
	}
	return Plugin{}, false
}

// Loader returns the step of the rule that runs loader.
func (r Rule) Loader(loader string) (Use, bool) {
	for _, use := range r.Use {
		if use.Loader == loader {
			return use, true
		}
	}
	return Use{}, false
}

func ParseESTarget(target string) (api.Target, error) {
	switch strings.ToLower(target) {
	case "es5":
		return api.ES5, nil
	case "es6", "es2015":
		return api.ES2015, nil
	case "es2016":
		return api.ES2016, nil
	case "es2017":
		return api.ES2017, nil
	case "es2018":
		return api.ES2018, nil
	case "es2019":
		return api.ES2019, nil
	case "es2020":
		return api.ES2020, nil
	case "es2021":
		return api.ES2021, nil
	case "es2022":
		return api.ES2022, nil
	case "es2023":
		return api.ES2023, nil
	case "es2024":
		return api.ES2024, nil
	case "esnext":
		return api.ESNext, nil
	default:
		return api.DefaultTarget, fmt.Errorf("unsupported target %q, valid targets are es5, es6, es2015 to es2024 and esnext", target)
	}
}
