package internal

import (
	"bytes"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobeam/stringy"
	"github.com/go-viper/mapstructure/v2"
)

const defaultPageTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{ .Title }}</title>
</head>
<body>
</body>
</html>
`

// attrsTmpl renders the attributes shared by link and script tags.
const attrsTmpl = `{{ define "attrs" }}` +
	`{{ if .Integrity }} integrity="{{ .Integrity }}" crossorigin="anonymous"{{ end }}` +
	`{{ range $k, $v := .Attributes }} {{ $k }}="{{ $v }}"{{ end }}` +
	`{{ end }}`

var (
	pageTmpl = template.Must(template.New("page").Parse(defaultPageTemplate))
	linkTmpl = template.Must(template.New("link").Parse(
		`<link rel="stylesheet" href="{{ .URL }}"{{ template "attrs" . }}>` + attrsTmpl))
	scriptTmpl = template.Must(template.New("script").Parse(
		`<script src="{{ .URL }}"{{ if .Module }} type="module"{{ end }}{{ template "attrs" . }}></script>` + attrsTmpl))
)

// pageFilename is the page's file name, or one derived from its title.
func pageFilename(page Page) string {
	if page.Filename != "" {
		return page.Filename
	}
	if page.Title != "" {
		return strings.ToLower(stringy.New(page.Title).KebabCase().Get()) + ".html"
	}
	return "index.html"
}

type htmlOptions struct {
	Filename string   `mapstructure:"filename"`
	Template string   `mapstructure:"template"`
	Title    string   `mapstructure:"title"`
	Chunks   []string `mapstructure:"chunks"`
}

type injectOptions struct {
	Patterns []InjectPattern `mapstructure:"patterns"`
}

type integrityOptions struct {
	HashFuncNames []string `mapstructure:"hashFuncNames"`
	Enabled       bool     `mapstructure:"enabled"`
}

type tag struct {
	URL        string
	Stylesheet bool
	Module     bool
	Integrity  string
	Attributes map[string]string
}

// pageWriter renders the html plugins of a configuration once the bundle is written.
type pageWriter struct {
	config    *Configuration
	entries   map[string]EntryOutput
	injects   []InjectPattern
	integrity bool
}

func newPageWriter(config *Configuration, entries map[string]EntryOutput) (*pageWriter, error) {
	w := &pageWriter{config: config, entries: entries}
	if p, ok := config.Plugin(PluginInjectTags); ok {
		var opts injectOptions
		if err := mapstructure.Decode(p.Options, &opts); err != nil {
			return nil, fmt.Errorf("reading %s plugin: %w", PluginInjectTags, err)
		}
		w.injects = opts.Patterns
	}
	if p, ok := config.Plugin(PluginIntegrity); ok {
		var opts integrityOptions
		if err := mapstructure.Decode(p.Options, &opts); err != nil {
			return nil, fmt.Errorf("reading %s plugin: %w", PluginIntegrity, err)
		}
		w.integrity = opts.Enabled
	}
	return w, nil
}

// WritePages writes every html plugin's page and returns their paths.
func (w *pageWriter) WritePages() ([]string, error) {
	var written []string
	for _, p := range w.config.Plugins {
		if p.Name != PluginHTML {
			continue
		}
		var opts htmlOptions
		if err := mapstructure.Decode(p.Options, &opts); err != nil {
			return written, fmt.Errorf("reading %s plugin: %w", PluginHTML, err)
		}
		html, err := w.render(opts)
		if err != nil {
			return written, fmt.Errorf("rendering page '%s': %w", opts.Filename, err)
		}
		dest := filepath.Join(w.config.Output.Path, opts.Filename)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return written, err
		}
		if err := os.WriteFile(dest, html, 0o644); err != nil {
			return written, err
		}
		written = append(written, dest)
	}
	return written, nil
}

func (w *pageWriter) render(opts htmlOptions) ([]byte, error) {
	var doc string
	if opts.Template != "" {
		src := opts.Template
		if !filepath.IsAbs(src) {
			src = filepath.Join(w.config.Context, src)
		}
		content, err := os.ReadFile(src)
		if err != nil {
			return nil, err
		}
		doc = string(content)
	} else {
		buf := new(bytes.Buffer)
		if err := pageTmpl.Execute(buf, opts); err != nil {
			return nil, err
		}
		doc = buf.String()
	}

	tags, err := w.tags(opts.Chunks)
	if err != nil {
		return nil, err
	}
	var head, body strings.Builder
	for _, t := range tags {
		buf := new(bytes.Buffer)
		tmpl := scriptTmpl
		if t.Stylesheet {
			tmpl = linkTmpl
		}
		if err := tmpl.Execute(buf, t); err != nil {
			return nil, err
		}
		if t.Stylesheet {
			head.WriteString(buf.String() + "\n")
		} else {
			body.WriteString(buf.String() + "\n")
		}
	}
	doc = insertBefore(doc, "</head>", head.String())
	doc = insertBefore(doc, "</body>", body.String())
	return []byte(doc), nil
}

// tags lists the page's tags: prepended injects, entry outputs, appended injects.
func (w *pageWriter) tags(chunks []string) ([]tag, error) {
	if len(chunks) == 0 {
		for name := range w.entries {
			chunks = append(chunks, name)
		}
		sort.Strings(chunks)
	}
	var before, own, after []tag
	for _, inject := range w.injects {
		t := tag{
			URL:        inject.Path,
			Stylesheet: inject.Type == "css" || (inject.Type == "" && strings.HasSuffix(inject.Path, ".css")),
			Attributes: inject.Attributes,
		}
		if inject.Append {
			after = append(after, t)
		} else {
			before = append(before, t)
		}
	}
	for _, name := range chunks {
		out, ok := w.entries[name]
		if !ok {
			return nil, fmt.Errorf("page chunk '%s' is not an entry", name)
		}
		if out.Stylesheet != "" {
			t, err := w.assetTag(out.Stylesheet, true)
			if err != nil {
				return nil, err
			}
			own = append(own, t)
		}
		if out.Script != "" {
			t, err := w.assetTag(out.Script, false)
			if err != nil {
				return nil, err
			}
			own = append(own, t)
		}
	}
	return append(append(before, own...), after...), nil
}

func (w *pageWriter) assetTag(rel string, stylesheet bool) (tag, error) {
	t := tag{
		URL:        filepath.ToSlash(rel),
		Stylesheet: stylesheet,
		Module:     w.config.Target == TargetWeb,
	}
	if publicPath := w.config.Output.PublicPath; publicPath != "" {
		t.URL = strings.TrimSuffix(publicPath, "/") + "/" + t.URL
	}
	if w.integrity {
		content, err := os.ReadFile(filepath.Join(w.config.Output.Path, rel))
		if err != nil {
			return t, err
		}
		t.Integrity = integrityHash(content)
	}
	return t, nil
}

func integrityHash(content []byte) string {
	sum := sha512.Sum384(content)
	return "sha384-" + base64.StdEncoding.EncodeToString(sum[:])
}

func insertBefore(doc, marker, insert string) string {
	if insert == "" {
		return doc
	}
	if i := strings.LastIndex(doc, marker); i >= 0 {
		return doc[:i] + insert + doc[i:]
	}
	return doc + insert
}
