package internal_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/brodo/bundle-config/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func readFile(t *testing.T, p string) string {
	t.Helper()
	content, err := os.ReadFile(p)
	require.NoError(t, err)
	return string(content)
}

func webProject(t *testing.T) string {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"src/index.ts": `import "./styles.css";
import note from "./note.txt";
import small from "./small.png";
import big from "./big.png";
export const assets: string[] = [note, small, big];
`,
		"src/styles.css":    "body { color: red; }\n",
		"src/note.txt":      "hello from a text file",
		"src/small.png":     "tiny",
		"src/big.png":       strings.Repeat("x", 10000),
		"static/robots.txt": "User-agent: *\n",
		"dist/stale.js":     "old",
	})
	return root
}

func TestBundleWebDevelopment(t *testing.T) {
	root := webProject(t)
	config, err := internal.GetWebConfig(internal.Options{
		"rootFolder":   root,
		"outputFolder": filepath.Join(root, "dist"),
		"mode":         "development",
		"entry":        map[string]any{"app": "./src/index.ts"},
		"copyPatterns": []any{map[string]any{"from": "static", "to": "static"}},
	})
	require.NoError(t, err)

	result, err := internal.Bundle(context.Background(), config)
	require.NoError(t, err)
	dist := filepath.Join(root, "dist")

	require.Contains(t, result.Entries, "app")
	assert.Equal(t, "app.js", result.Entries["app"].Script)
	assert.Equal(t, "app.css", result.Entries["app"].Stylesheet)
	assert.Contains(t, result.Files, filepath.Join(dist, "app.js"))

	script := readFile(t, filepath.Join(dist, "app.js"))
	assert.Contains(t, script, "hello from a text file")
	assert.Contains(t, script, "data:image/png;base64,")
	assert.Contains(t, script, "big.png")
	assert.FileExists(t, filepath.Join(dist, "big.png"))
	assert.NoFileExists(t, filepath.Join(dist, "small.png"))
	assert.FileExists(t, filepath.Join(dist, "app.js.map"))
	assert.Contains(t, readFile(t, filepath.Join(dist, "app.css")), "color")

	assert.NoFileExists(t, filepath.Join(dist, "stale.js"))
	assert.FileExists(t, filepath.Join(dist, "static", "robots.txt"))
	assert.Equal(t, []string{filepath.Join(dist, "static")}, result.Copied)

	require.Equal(t, []string{filepath.Join(dist, "index.html")}, result.Pages)
	page := readFile(t, filepath.Join(dist, "index.html"))
	assert.Contains(t, page, `<link rel="stylesheet" href="/app.css">`)
	assert.Contains(t, page, `<script src="/app.js" type="module"></script>`)
	assert.NotContains(t, page, "integrity=")
	assert.Less(t, strings.Index(page, "app.css"), strings.Index(page, "</head>"))
}

func TestBundleWebProduction(t *testing.T) {
	root := webProject(t)
	config, err := internal.GetWebConfig(internal.Options{
		"rootFolder":     root,
		"entry":          map[string]any{"app": "./src/index.ts"},
		"sourcemaps":     false,
		"injectPatterns": []any{map[string]any{"path": "https://cdn.example.com/lib.js", "attributes": map[string]any{"defer": "defer"}}},
		"pages":          []any{map[string]any{"title": "Shop Front"}},
	})
	require.NoError(t, err)

	result, err := internal.Bundle(context.Background(), config)
	require.NoError(t, err)
	dist := filepath.Join(root, "dist")

	entry := result.Entries["app"]
	assert.Regexp(t, `^[A-Z0-9]{8}\.app\.js$`, entry.Script)
	assert.Regexp(t, `^[0-9A-F]{8}\.app\.css$`, entry.Stylesheet)
	assert.FileExists(t, filepath.Join(dist, entry.Stylesheet))
	assert.NoFileExists(t, filepath.Join(dist, entry.Script+".map"))

	require.Equal(t, []string{filepath.Join(dist, "shop-front.html")}, result.Pages)
	page := readFile(t, result.Pages[0])
	assert.Contains(t, page, "<title>Shop Front</title>")
	assert.Contains(t, page, `integrity="sha384-`)
	assert.Contains(t, page, `crossorigin="anonymous"`)
	assert.Contains(t, page, `<script src="https://cdn.example.com/lib.js" defer="defer"></script>`)
	assert.Less(t, strings.Index(page, "cdn.example.com"), strings.Index(page, entry.Script))
}

func TestBundleWebTemplatePage(t *testing.T) {
	root := webProject(t)
	writeFiles(t, root, map[string]string{
		"src/page.html": "<html><head><title>custom</title></head><body><main></main></body></html>",
	})
	config, err := internal.GetWebConfig(internal.Options{
		"rootFolder": root,
		"mode":       "development",
		"entry":      map[string]any{"app": "./src/index.ts"},
		"publicPath": "https://static.example.com/",
		"pages":      []any{map[string]any{"filename": "shell.html", "template": "src/page.html", "chunks": []any{"app"}}},
	})
	require.NoError(t, err)

	result, err := internal.Bundle(context.Background(), config)
	require.NoError(t, err)
	page := readFile(t, result.Pages[0])
	assert.Contains(t, page, "<main></main>")
	assert.Contains(t, page, `src="https://static.example.com/app.js"`)
}

func TestBundleUnknownPageChunk(t *testing.T) {
	root := webProject(t)
	config, err := internal.GetWebConfig(internal.Options{
		"rootFolder": root,
		"mode":       "development",
		"entry":      map[string]any{"app": "./src/index.ts"},
		"pages":      []any{map[string]any{"chunks": []any{"missing"}}},
	})
	require.NoError(t, err)
	_, err = internal.Bundle(context.Background(), config)
	assert.ErrorContains(t, err, "missing")
}

func TestBundleWebWorker(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"src/index.ts": `import CalcWorker from "./calc.worker.ts";
export const worker = new CalcWorker();
`,
		"src/calc.worker.ts":     "self.onmessage = () => postMessage(1);\n",
		"src/worker-polyfill.ts": "(self as any).POLYFILLED = true;\n",
		"src/main-polyfill.ts":   "(globalThis as any).MAIN_POLYFILL = true;\n",
	})
	config, err := internal.GetWebConfig(internal.Options{
		"rootFolder":         root,
		"mode":               "development",
		"entry":              map[string]any{"app": "./src/index.ts"},
		"polyfills":          []any{"./src/main-polyfill.ts"},
		"webworkerPolyfills": []any{"./src/worker-polyfill.ts"},
	})
	require.NoError(t, err)

	_, err = internal.Bundle(context.Background(), config)
	require.NoError(t, err)
	dist := filepath.Join(root, "dist")

	worker := readFile(t, filepath.Join(dist, "calc.worker.js"))
	assert.Contains(t, worker, "POLYFILLED")
	assert.Contains(t, worker, "postMessage")
	assert.NotContains(t, worker, "MAIN_POLYFILL")

	script := readFile(t, filepath.Join(dist, "app.js"))
	assert.Contains(t, script, `"/calc.worker.js"`)
	assert.Contains(t, script, "MAIN_POLYFILL")
	assert.NotContains(t, script, "POLYFILLED")
}

func TestBundleSCSS(t *testing.T) {
	if _, err := exec.LookPath("sass"); err != nil {
		t.Skip("dart sass is not installed")
	}
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"src/index.ts":   `import "./theme.scss";` + "\n",
		"src/theme.scss": ".button { color: $brand; .icon { width: 1px; } }\n",
	})
	config, err := internal.GetWebConfig(internal.Options{
		"rootFolder": root,
		"mode":       "development",
		"entry":      map[string]any{"app": "./src/index.ts"},
		"scssData":   "$brand: #ff0000;",
	})
	require.NoError(t, err)
	result, err := internal.Bundle(context.Background(), config)
	require.NoError(t, err)
	css := readFile(t, filepath.Join(root, "dist", result.Entries["app"].Stylesheet))
	assert.Contains(t, css, ".button .icon")
	assert.Contains(t, css, "#ff0000")
}

func nodeProject(t *testing.T) string {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"src/index.ts": `import { greet } from "./greet";
import { readFileSync } from "fs";
const settings = JSON.parse(readFileSync(__dirname + "/config/settings.json", "utf8"));
console.log(greet(settings.name));
`,
		"src/greet.ts":         "export const greet = (name: string): string => `hello ${name}`;\n",
		"config/settings.json": `{"name": "bundle"}`,
	})
	return root
}

func TestBundleNode(t *testing.T) {
	root := nodeProject(t)
	config, err := internal.GetNodeConfig(internal.Options{
		"rootFolder":   root,
		"copyPatterns": []any{map[string]any{"from": "config/*.json", "to": "config"}},
	})
	require.NoError(t, err)

	result, err := internal.Bundle(context.Background(), config)
	require.NoError(t, err)
	dist := filepath.Join(root, "dist")

	assert.Equal(t, "application.js", result.Entries["application"].Script)
	assert.Empty(t, result.Entries["application"].Stylesheet)
	assert.Empty(t, result.Pages)
	script := readFile(t, filepath.Join(dist, "application.js"))
	assert.Contains(t, script, `require("fs")`)
	assert.Contains(t, script, "hello ")
	assert.FileExists(t, filepath.Join(dist, "application.js.map"))
	assert.FileExists(t, filepath.Join(dist, "config", "settings.json"))
}

func TestBundleFailsOnSyntaxError(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"src/index.ts": "export const = ;\n"})
	config, err := internal.GetNodeConfig(internal.Options{"rootFolder": root})
	require.NoError(t, err)
	_, err = internal.Bundle(context.Background(), config)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index.ts")
}

func TestBundleHonoursCancelledContext(t *testing.T) {
	config, err := internal.GetNodeConfig(internal.Options{"rootFolder": t.TempDir()})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = internal.Bundle(ctx, config)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBundleWorkerImportedWithoutExtension(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"src/index.ts": `import Parser from "./parser.worker";
export const parser = new Parser();
`,
		"src/parser.worker.ts":   "self.onmessage = () => postMessage('PARSED');\n",
		"src/worker-polyfill.ts": "(self as any).POLYFILLED = true;\n",
	})
	config, err := internal.GetWebConfig(internal.Options{
		"rootFolder":         root,
		"mode":               "development",
		"skipPostprocess":    true,
		"entry":              map[string]any{"app": "./src/index.ts"},
		"webworkerPolyfills": []any{"./src/worker-polyfill.ts"},
	})
	require.NoError(t, err)

	_, err = internal.Bundle(context.Background(), config)
	require.NoError(t, err)
	dist := filepath.Join(root, "dist")

	worker := readFile(t, filepath.Join(dist, "parser.worker.js"))
	assert.Contains(t, worker, "PARSED")
	assert.Contains(t, worker, "POLYFILLED")
	script := readFile(t, filepath.Join(dist, "app.js"))
	assert.Contains(t, script, `"/parser.worker.js"`)
	assert.NotContains(t, script, "PARSED")
}

func TestBundleOutputNamesFollowEntryNames(t *testing.T) {
	tests := []struct {
		name  string
		opts  internal.Options
		entry string
		want  string
	}{
		{"node development", internal.Options{"mode": "development"}, "application", `^application\.js$`},
		{"node hashed", internal.Options{"skipHashes": false}, "application", `^[A-Z0-9]{8}\.application\.js$`},
		{"node custom pattern", internal.Options{"jsFilename": "server/[name].cjs.js"}, "application", `^server/application\.cjs\.js$`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := nodeProject(t)
			tt.opts["rootFolder"] = root
			config, err := internal.GetNodeConfig(tt.opts)
			require.NoError(t, err)
			result, err := internal.Bundle(context.Background(), config)
			require.NoError(t, err)

			script := filepath.ToSlash(result.Entries[tt.entry].Script)
			assert.Regexp(t, tt.want, script)
			assert.NotContains(t, script, "entry_")
			assert.FileExists(t, filepath.Join(root, "dist", result.Entries[tt.entry].Script))
		})
	}

	root := webProject(t)
	config, err := internal.GetWebConfig(internal.Options{
		"rootFolder":      root,
		"skipPostprocess": true,
		"entry":           map[string]any{"app": "./src/index.ts", "admin": "./src/index.ts"},
	})
	require.NoError(t, err)
	result, err := internal.Bundle(context.Background(), config)
	require.NoError(t, err)
	for _, name := range []string{"app", "admin"} {
		assert.Regexp(t, `^[A-Z0-9]{8}\.`+name+`\.js$`, result.Entries[name].Script)
		assert.Regexp(t, `^[0-9A-F]{8}\.`+name+`\.css$`, result.Entries[name].Stylesheet)
	}
}

func TestBundleRejectsMalformedLoaderOptions(t *testing.T) {
	root := webProject(t)
	config, err := internal.GetWebConfig(internal.Options{
		"rootFolder": root,
		"entry":      map[string]any{"app": "./src/index.ts"},
	})
	require.NoError(t, err)
	for i, rule := range config.Module.Rules {
		for j, use := range rule.Use {
			if use.Loader == internal.LoaderEmbed {
				config.Module.Rules[i].Use[j].Options["limit"] = "lots"
			}
		}
	}
	_, err = internal.Bundle(context.Background(), config)
	assert.ErrorContains(t, err, internal.LoaderEmbed)
	// the output folder is only reset once the options are known to be good
	assert.FileExists(t, filepath.Join(root, "dist", "stale.js"))
}
