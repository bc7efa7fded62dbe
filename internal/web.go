package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strings"
)

// DefaultWebworkerPattern matches the files compiled as Web Workers.
const DefaultWebworkerPattern = `\.worker\.[jt]s$`

const defaultEntryFile = "./src/index.ts"

// WebOptions is the validated and defaulted form of the options for browser builds.
type WebOptions struct {
	RootFolder         string
	OutputFolder       string
	Mode               string
	Entry              map[string][]string
	Sourcemaps         bool
	SkipHashes         bool
	SkipReset          bool
	CSSModules         bool
	SkipPostprocess    bool
	CopyExtensions     []string
	EmbedExtensions    []string
	RawExtensions      []string
	Polyfills          []string
	WebworkerPolyfills []string
	CopyPatterns       []CopyPattern
	InjectPatterns     []InjectPattern
	Pages              []Page
	// Filename patterns are empty when the computed pattern applies.
	JSFilename         string
	CSSFilename        string
	ChunkFilename      string
	WebworkerFilename  string
	AssetFilename      string
	Port               int
	Host               string
	EmbedLimit         float64
	WebworkerPattern   *regexp.Regexp
	PublicPath         string
	SCSSData           string
	ESTarget           string
}

func defaultEntry() any {
	return map[string][]string{"application": {defaultEntryFile}}
}

var webSchema = schema[WebOptions]{
	{"rootFolder", expectAbsolutePath, constant(""), isAbsolutePath,
		func(o *WebOptions, v any) error { o.RootFolder = v.(string); return nil }},
	{"outputFolder", expectAbsolutePath, constant(""), isAbsolutePath,
		func(o *WebOptions, v any) error { o.OutputFolder = v.(string); return nil }},
	{"mode", expectNonEmptyString, constant(ModeProduction), isNonEmptyString,
		func(o *WebOptions, v any) error { o.Mode = v.(string); return nil }},
	{"entry", expectEntry, defaultEntry, isEntry,
		func(o *WebOptions, v any) error { o.Entry = asEntry(v); return nil }},
	{"sourcemaps", expectBool, constant(true), isBool,
		func(o *WebOptions, v any) error { o.Sourcemaps = v.(bool); return nil }},
	{"skipHashes", expectBool, constant(false), isBool,
		func(o *WebOptions, v any) error { o.SkipHashes = v.(bool); return nil }},
	{"skipReset", expectBool, constant(false), isBool,
		func(o *WebOptions, v any) error { o.SkipReset = v.(bool); return nil }},
	{"cssModules", expectBool, constant(false), isBool,
		func(o *WebOptions, v any) error { o.CSSModules = v.(bool); return nil }},
	{"skipPostprocess", expectBool, constant(false), isBool,
		func(o *WebOptions, v any) error { o.SkipPostprocess = v.(bool); return nil }},
	{"copyExtensions", expectList, stringList(), isList,
		func(o *WebOptions, v any) error { o.CopyExtensions = asStrings(v); return nil }},
	{"embedExtensions", expectList, stringList("png", "jpg", "jpeg", "gif", "svg", "webp", "woff", "woff2"), isList,
		func(o *WebOptions, v any) error { o.EmbedExtensions = asStrings(v); return nil }},
	{"rawExtensions", expectList, stringList("txt"), isList,
		func(o *WebOptions, v any) error { o.RawExtensions = asStrings(v); return nil }},
	{"polyfills", expectStringList, stringList(), isStringList,
		func(o *WebOptions, v any) error { o.Polyfills = asStrings(v); return nil }},
	{"webworkerPolyfills", expectStringList, stringList(), isStringList,
		func(o *WebOptions, v any) error { o.WebworkerPolyfills = asStrings(v); return nil }},
	{"copyPatterns", expectObjectList, func() any { return []CopyPattern{} }, isObjectList,
		func(o *WebOptions, v any) (err error) { o.CopyPatterns, err = decodeObjects[CopyPattern](v); return }},
	{"injectPatterns", expectObjectList, func() any { return []InjectPattern{} }, isObjectList,
		func(o *WebOptions, v any) (err error) { o.InjectPatterns, err = decodeObjects[InjectPattern](v); return }},
	{"pages", expectObjectList, func() any { return []Page{{Filename: "index.html"}} }, isObjectList,
		func(o *WebOptions, v any) (err error) { o.Pages, err = decodeObjects[Page](v); return }},
	// an absent, nil or empty filename option means the computed pattern
	{"jsFilename", expectOptionalString, constant[any](nil), isOptionalString,
		func(o *WebOptions, v any) error { o.JSFilename = asOptionalString(v); return nil }},
	{"cssFilename", expectOptionalString, constant[any](nil), isOptionalString,
		func(o *WebOptions, v any) error { o.CSSFilename = asOptionalString(v); return nil }},
	{"chunkFilename", expectOptionalString, constant[any](nil), isOptionalString,
		func(o *WebOptions, v any) error { o.ChunkFilename = asOptionalString(v); return nil }},
	{"webworkerFilename", expectOptionalString, constant[any](nil), isOptionalString,
		func(o *WebOptions, v any) error { o.WebworkerFilename = asOptionalString(v); return nil }},
	{"assetFilename", expectOptionalString, constant[any](nil), isOptionalString,
		func(o *WebOptions, v any) error { o.AssetFilename = asOptionalString(v); return nil }},
	{"port", expectPort, constant(8080), isPort,
		func(o *WebOptions, v any) error { o.Port = int(asNumber(v)); return nil }},
	{"host", expectNonEmptyString, constant("localhost"), isNonEmptyString,
		func(o *WebOptions, v any) error { o.Host = v.(string); return nil }},
	{"embedLimit", expectNumber, constant(8192), isNumber,
		func(o *WebOptions, v any) error { o.EmbedLimit = asNumber(v); return nil }},
	{"webworkerPattern", expectRegexp, func() any { return regexp.MustCompile(DefaultWebworkerPattern) }, isRegexp,
		func(o *WebOptions, v any) error { o.WebworkerPattern = v.(*regexp.Regexp); return nil }},
	{"publicPath", expectString, constant("/"), isString,
		func(o *WebOptions, v any) error { o.PublicPath = v.(string); return nil }},
	{"scssData", expectString, constant(""), isString,
		func(o *WebOptions, v any) error { o.SCSSData = v.(string); return nil }},
	{"esTarget", expectESTarget, constant("es2017"), isESTarget,
		func(o *WebOptions, v any) error { o.ESTarget = v.(string); return nil }},
}

// WebOptionNames lists every option GetWebConfig understands.
func WebOptionNames() []string {
	return webSchema.names()
}

// ParseWebOptions validates opts and fills in defaults, including the folders.
func ParseWebOptions(opts Options) (WebOptions, error) {
	o, err := webSchema.decode(opts)
	if err != nil {
		return o, err
	}
	o.RootFolder, o.OutputFolder, err = resolveFolders(o.RootFolder, o.OutputFolder)
	return o, err
}

// resolveFolders turns the empty-string sentinels into real paths.
func resolveFolders(root, output string) (string, string, error) {
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", "", fmt.Errorf("resolving root folder: %w", err)
		}
		root = cwd
	}
	if output == "" {
		output = filepath.Join(root, "dist")
	}
	return root, output, nil
}

// GetWebConfig builds the configuration for a browser bundle.
func GetWebConfig(opts Options) (*Configuration, error) {
	o, err := ParseWebOptions(opts)
	if err != nil {
		return nil, err
	}

	hashed := hashedNames(o.Mode, o.SkipHashes)
	minify := o.Mode == ModeProduction && !o.SkipPostprocess

	entry := make(map[string][]string, len(o.Entry))
	for name, files := range o.Entry {
		entry[name] = append(slices.Clone(o.Polyfills), files...)
	}

	config := &Configuration{
		Target:   TargetWeb,
		Mode:     o.Mode,
		Context:  o.RootFolder,
		Entry:    entry,
		Devtool:  devtool(o.Sourcemaps),
		ESTarget: o.ESTarget,
		Output: Output{
			Path:          o.OutputFolder,
			PublicPath:    o.PublicPath,
			Filename:      pickFilename(o.JSFilename, hashed, extJS),
			ChunkFilename: pickFilename(o.ChunkFilename, hashed, extChunk),
			AssetFilename: pickFilename(o.AssetFilename, hashed, extAsset),
		},
		Resolve: Resolve{Extensions: []string{".ts", ".tsx", ".js", ".mjs", ".json", ".scss", ".css"}},
	}

	typescript := typescriptUse(o.RootFolder, o.SkipPostprocess)
	var rules []Rule
	if o.Sourcemaps {
		rules = append(rules, sourceMapRule())
	}
	rules = append(rules,
		Rule{
			Test:       `\.tsx?$`,
			Extensions: []string{".ts", ".tsx"},
			Exclude:    o.WebworkerPattern.String(),
			Use:        []Use{typescript},
		},
		Rule{
			Test: o.WebworkerPattern.String(),
			Use: []Use{
				{Loader: LoaderWorker, Options: map[string]any{
					"filename":   pickFilename(o.WebworkerFilename, hashed, extWorker),
					"publicPath": o.PublicPath,
				}},
				typescript,
				{Loader: LoaderWorkerPrologue, Options: map[string]any{"polyfills": slices.Clone(o.WebworkerPolyfills)}},
			},
		},
		Rule{
			Test:       `\.s?css$`,
			Extensions: []string{".css", ".scss"},
			Use: []Use{
				{Loader: LoaderCSSExtract},
				{Loader: LoaderCSS, Options: map[string]any{"modules": o.CSSModules, "sourceMap": o.Sourcemaps}},
				{Loader: LoaderPostCSS, Options: map[string]any{"autoprefixer": true, "minify": minify}},
				{Loader: LoaderSCSS, Options: map[string]any{"prependData": o.SCSSData}},
			},
		},
	)
	rules = append(rules, assetRules(o.EmbedExtensions, Use{Loader: LoaderEmbed, Options: map[string]any{
		"limit":    o.EmbedLimit,
		"fallback": LoaderFile,
		"name":     config.Output.AssetFilename,
	}})...)
	rules = append(rules, assetRules(o.RawExtensions, Use{Loader: LoaderRaw})...)
	rules = append(rules, assetRules(o.CopyExtensions, Use{Loader: LoaderFile, Options: map[string]any{
		"name": config.Output.AssetFilename,
	}})...)
	config.Module.Rules = rules

	config.Plugins = append(config.Plugins, Plugin{Name: PluginCSSExtract, Options: map[string]any{
		"filename":      pickFilename(o.CSSFilename, hashed, extCSS),
		"chunkFilename": cssChunkFilename(o.CSSFilename, hashed),
	}})
	if !o.SkipPostprocess {
		for _, page := range o.Pages {
			config.Plugins = append(config.Plugins, htmlPlugin(page, minify))
		}
		if len(o.InjectPatterns) > 0 {
			config.Plugins = append(config.Plugins, Plugin{Name: PluginInjectTags, Options: map[string]any{
				"patterns": slices.Clone(o.InjectPatterns),
			}})
		}
		if !o.SkipHashes {
			config.Plugins = append(config.Plugins, Plugin{Name: PluginIntegrity, Options: map[string]any{
				"hashFuncNames": []string{"sha384"},
				"enabled":       minify,
			}})
		}
		if !o.SkipReset {
			config.Plugins = append(config.Plugins, cleanPlugin())
		}
		config.DevServer = &DevServer{
			Host:               o.Host,
			Port:               o.Port,
			Static:             o.OutputFolder,
			HistoryAPIFallback: true,
		}
	}
	if len(o.CopyPatterns) > 0 {
		config.Plugins = append(config.Plugins, copyPlugin(o.CopyPatterns))
	}
	return config, nil
}

// cssChunkFilename derives the split-chunk stylesheet pattern. A custom
// cssFilename gets a .chunk.css variant so chunks never overwrite entry styles.
func cssChunkFilename(cssFilename string, hashed bool) string {
	if cssFilename == "" {
		return filenamePattern(hashed, extCSSChunk)
	}
	return strings.TrimSuffix(cssFilename, "."+extCSS) + "." + extCSSChunk
}

func devtool(sourcemaps bool) string {
	if sourcemaps {
		return "source-map"
	}
	return ""
}

func sourceMapRule() Rule {
	return Rule{
		Test:       `\.js$`,
		Extensions: []string{".js"},
		Enforce:    "pre",
		Use:        []Use{{Loader: LoaderSourceMap}},
	}
}

func typescriptUse(root string, transpileOnly bool) Use {
	return Use{Loader: LoaderTypeScript, Options: map[string]any{
		"configFile":    filepath.Join(root, "tsconfig.json"),
		"transpileOnly": transpileOnly,
	}}
}

func cleanPlugin() Plugin {
	return Plugin{Name: PluginClean}
}

func copyPlugin(patterns []CopyPattern) Plugin {
	return Plugin{Name: PluginCopy, Options: map[string]any{"patterns": slices.Clone(patterns)}}
}

func htmlPlugin(page Page, minify bool) Plugin {
	return Plugin{Name: PluginHTML, Options: map[string]any{
		"filename": pageFilename(page),
		"template": page.Template,
		"title":    page.Title,
		"chunks":   slices.Clone(page.Chunks),
		"minify":   minify,
	}}
}

// assetRules builds the rule for one asset bucket. JSON gets a rule of its own
// typed as a plain module so the bundler does not parse it as data first.
func assetRules(extensions []string, use Use) []Rule {
	var plain, json []string
	for _, ext := range extensions {
		ext = strings.TrimPrefix(ext, ".")
		if ext == "" {
			continue
		}
		if strings.EqualFold(ext, "json") {
			json = append(json, ext)
		} else {
			plain = append(plain, ext)
		}
	}
	var rules []Rule
	if len(plain) > 0 {
		rules = append(rules, Rule{Test: extensionPattern(plain), Extensions: dotted(plain), Use: []Use{use}})
	}
	if len(json) > 0 {
		rules = append(rules, Rule{Test: `\.json$`, Extensions: []string{".json"}, Type: RuleTypeJSONAsModule, Use: []Use{use}})
	}
	return rules
}

func extensionPattern(extensions []string) string {
	quoted := make([]string, len(extensions))
	for i, ext := range extensions {
		quoted[i] = regexp.QuoteMeta(ext)
	}
	sort.Strings(quoted)
	return `\.(` + strings.Join(quoted, "|") + `)$`
}

func dotted(extensions []string) []string {
	out := make([]string, len(extensions))
	for i, ext := range extensions {
		out[i] = "." + ext
	}
	return out
}
