package internal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/bep/godartsass/v2"
	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog/log"
)

const (
	entryPrefix     = "entry:"
	entryNamespace  = "entry"
	workerNamespace = "webworker"
)

var scriptExtensions = map[string]bool{"": true, ".ts": true, ".tsx": true, ".js": true, ".jsx": true, ".mjs": true, ".cjs": true}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// entryPoints names every virtual entry's output after the entry itself, so
// [name] in the naming templates is the entry name and not the namespaced path.
func entryPoints(entry map[string][]string) []api.EntryPoint {
	names := make([]string, 0, len(entry))
	for name := range entry {
		names = append(names, name)
	}
	sort.Strings(names)
	points := make([]api.EntryPoint, len(names))
	for i, name := range names {
		points[i] = api.EntryPoint{InputPath: entryPrefix + name, OutputPath: name}
	}
	return points
}

// entryPlugin serves every named entry as a virtual module that imports its
// files in order, so output names follow the entry name.
func entryPlugin(entry map[string][]string, root string) api.Plugin {
	return api.Plugin{
		Name: "entries",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: "^" + entryPrefix}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				return api.OnResolveResult{Path: strings.TrimPrefix(args.Path, entryPrefix), Namespace: entryNamespace}, nil
			})
			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: entryNamespace}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
				files, ok := entry[args.Path]
				if !ok || len(files) == 0 {
					return api.OnLoadResult{}, fmt.Errorf("entry '%s' has no files", args.Path)
				}
				contents := entrySource(files)
				return api.OnLoadResult{Contents: &contents, ResolveDir: root, Loader: api.LoaderJS}, nil
			})
		},
	}
}

func entrySource(files []string) string {
	var src strings.Builder
	for i, file := range files {
		if i == len(files)-1 && scriptExtensions[filepath.Ext(file)] {
			fmt.Fprintf(&src, "export * from %s;\n", quote(file))
		} else {
			fmt.Fprintf(&src, "import %s;\n", quote(file))
		}
	}
	return src.String()
}

// embedPlugin inlines files below the limit as data URLs and emits the rest as files.
func embedPlugin(test string, limit float64) api.Plugin {
	return api.Plugin{
		Name: "embed",
		Setup: func(build api.PluginBuild) {
			build.OnLoad(api.OnLoadOptions{Filter: test, Namespace: "file"}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
				content, err := os.ReadFile(args.Path)
				if err != nil {
					return api.OnLoadResult{}, err
				}
				contents := string(content)
				loader := api.LoaderFile
				if float64(len(content)) < limit {
					loader = api.LoaderDataURL
				}
				return api.OnLoadResult{Contents: &contents, Loader: loader}, nil
			})
		},
	}
}

// sassCompiler starts Dart Sass on first use.
type sassCompiler struct {
	once       sync.Once
	transpiler *godartsass.Transpiler
	err        error
}

func (s *sassCompiler) compile(path, prependData string, minify bool) (string, error) {
	s.once.Do(func() {
		s.transpiler, s.err = godartsass.Start(godartsass.Options{})
	})
	if s.err != nil {
		return "", fmt.Errorf("starting dart sass: %w", s.err)
	}
	source, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	style := godartsass.OutputStyleExpanded
	if minify {
		style = godartsass.OutputStyleCompressed
	}
	result, err := s.transpiler.Execute(godartsass.Args{
		Source:       prependData + "\n" + string(source),
		URL:          "file://" + filepath.ToSlash(path),
		IncludePaths: []string{filepath.Dir(path)},
		OutputStyle:  style,
		SourceSyntax: godartsass.SourceSyntaxSCSS,
	})
	if err != nil {
		return "", err
	}
	return result.CSS, nil
}

func (s *sassCompiler) Close() error {
	if s.transpiler == nil {
		return nil
	}
	return s.transpiler.Close()
}

func scssPlugin(sass *sassCompiler, prependData string, modules, minify bool) api.Plugin {
	loader := api.LoaderCSS
	if modules {
		loader = api.LoaderLocalCSS
	}
	return api.Plugin{
		Name: "scss",
		Setup: func(build api.PluginBuild) {
			build.OnLoad(api.OnLoadOptions{Filter: `\.scss$`, Namespace: "file"}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
				css, err := sass.compile(args.Path, prependData, minify)
				if err != nil {
					return api.OnLoadResult{}, err
				}
				return api.OnLoadResult{Contents: &css, Loader: loader, ResolveDir: filepath.Dir(args.Path)}, nil
			})
		},
	}
}

type workerOptions struct {
	filename   string
	publicPath string
	polyfills  []string
}

// workerResolving marks the nested resolve the worker plugin runs to find out
// which file an import points at.
type workerResolving struct{}

// workerPlugin compiles each imported worker file into its own script, prefixed
// with the worker polyfills, and replaces the import with a constructor for it.
// Workers are recognised by their resolved file name, so extensionless imports match too.
func workerPlugin(pattern *regexp.Regexp, opts workerOptions, compile func(source string) ([]byte, error), outDir string) api.Plugin {
	return api.Plugin{
		Name: "webworker",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: ".*"}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				if _, nested := args.PluginData.(workerResolving); nested {
					return api.OnResolveResult{}, nil
				}
				if args.Kind == api.ResolveEntryPoint || args.Namespace == workerNamespace || args.ResolveDir == "" {
					return api.OnResolveResult{}, nil
				}
				resolved := build.Resolve(args.Path, api.ResolveOptions{
					Importer:   args.Importer,
					Namespace:  args.Namespace,
					ResolveDir: args.ResolveDir,
					Kind:       args.Kind,
					PluginData: workerResolving{},
				})
				// unresolvable imports are left to esbuild to report
				if len(resolved.Errors) > 0 || resolved.Namespace != "file" || !pattern.MatchString(resolved.Path) {
					return api.OnResolveResult{}, nil
				}
				return api.OnResolveResult{Path: resolved.Path, Namespace: workerNamespace}, nil
			})
			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: workerNamespace}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
				var prologue strings.Builder
				for _, polyfill := range opts.polyfills {
					fmt.Fprintf(&prologue, "import %s;\n", quote(polyfill))
				}
				fmt.Fprintf(&prologue, "import %s;\n", quote(args.Path))
				code, err := compile(prologue.String())
				if err != nil {
					return api.OnLoadResult{}, fmt.Errorf("compiling worker '%s': %w", args.Path, err)
				}
				filename := expandFilename(opts.filename, workerName(args.Path), "js", code)
				dest := filepath.Join(outDir, filename)
				if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
					return api.OnLoadResult{}, err
				}
				if err := os.WriteFile(dest, code, 0o644); err != nil {
					return api.OnLoadResult{}, err
				}
				log.Debug().Str("worker", args.Path).Str("file", dest).Msg("Built worker")
				url := filepath.ToSlash(filename)
				if opts.publicPath != "" {
					url = strings.TrimSuffix(opts.publicPath, "/") + "/" + url
				}
				contents := fmt.Sprintf("export default function Worker_fn(options) {\n  return new Worker(%s, options);\n}\n", quote(url))
				return api.OnLoadResult{Contents: &contents, Loader: api.LoaderJS}, nil
			})
		},
	}
}

var workerSuffix = regexp.MustCompile(`\.worker$`)

func workerName(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return workerSuffix.ReplaceAllString(base, "")
}
