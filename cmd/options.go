package cmd

import (
	"fmt"
	"os"
	"regexp"

	"github.com/brodo/bundle-config/internal"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// optionsFile is the layout of the options file: one section per target.
type optionsFile struct {
	Web  map[string]any `yaml:"web"`
	Node map[string]any `yaml:"node"`
}

// flagOptions maps override flags to the options they set.
var flagOptions = map[string]string{
	"mode":             "mode",
	"root":             "rootFolder",
	"output":           "outputFolder",
	"skip-hashes":      "skipHashes",
	"skip-postprocess": "skipPostprocess",
}

func addOptionFlags(flags *pflag.FlagSet) {
	flags.String("mode", "production", "build mode")
	flags.String("root", "", "absolute root folder (default is the working directory)")
	flags.String("output", "", "absolute output folder (default is <root>/dist)")
	flags.Bool("skip-hashes", false, "leave content hashes out of file names")
	flags.Bool("skip-postprocess", false, "only compile: no pages, integrity hashes, reset or dev server")
}

// readOptionsFile decodes the options file. A missing path yields empty sections.
func readOptionsFile(path string) (optionsFile, error) {
	var file optionsFile
	if path == "" {
		return file, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return file, err
	}
	if err := yaml.Unmarshal(content, &file); err != nil {
		return file, fmt.Errorf("parsing options file '%s': %w", path, err)
	}
	return file, nil
}

// loadOptions returns the options for target: the file section, then changed flags on top.
func loadOptions(path string, target internal.Target, flags *pflag.FlagSet) (internal.Options, error) {
	file, err := readOptionsFile(path)
	if err != nil {
		return nil, err
	}
	section := file.Web
	if target == internal.TargetNode {
		section = file.Node
	}
	opts := make(internal.Options, len(section))
	for k, v := range section {
		opts[k] = v
	}

	if flags != nil {
		for flag, option := range flagOptions {
			f := flags.Lookup(flag)
			if f == nil || !f.Changed {
				continue
			}
			switch f.Value.Type() {
			case "bool":
				opts[option], _ = flags.GetBool(flag)
			default:
				opts[option] = f.Value.String()
			}
		}
	}

	// YAML has no regular expression type, so the pattern arrives as text.
	if pattern, ok := opts["webworkerPattern"].(string); ok && target == internal.TargetWeb {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid option 'webworkerPattern': %w", err)
		}
		opts["webworkerPattern"] = re
	}
	return opts, nil
}

func buildConfig(target internal.Target, opts internal.Options) (*internal.Configuration, error) {
	switch target {
	case internal.TargetWeb:
		return internal.GetWebConfig(opts)
	case internal.TargetNode:
		return internal.GetNodeConfig(opts)
	}
	return nil, fmt.Errorf("unknown target '%s', expected web or node", target)
}
