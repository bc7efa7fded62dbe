package internal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-viper/mapstructure/v2"
	cp "github.com/otiai10/copy"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type copyOptions struct {
	Patterns []CopyPattern `mapstructure:"patterns"`
}

// CopyPatterns copies every pattern of the copy plugin into the output folder
// and returns the destinations.
func CopyPatterns(ctx context.Context, config *Configuration) ([]string, error) {
	p, ok := config.Plugin(PluginCopy)
	if !ok {
		return nil, nil
	}
	var opts copyOptions
	if err := mapstructure.Decode(p.Options, &opts); err != nil {
		return nil, fmt.Errorf("reading %s plugin: %w", PluginCopy, err)
	}

	type job struct{ src, dest string }
	var jobs []job
	for _, pattern := range opts.Patterns {
		if pattern.From == "" {
			return nil, errors.New("copy pattern without 'from'")
		}
		from := pattern.From
		if !filepath.IsAbs(from) {
			from = filepath.Join(config.Context, from)
		}
		matches, err := filepath.Glob(from)
		if err != nil {
			return nil, fmt.Errorf("copy pattern '%s': %w", pattern.From, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("copy pattern '%s' matched nothing", pattern.From)
		}
		destDir := filepath.Join(config.Output.Path, pattern.To)
		for _, src := range matches {
			dest := destDir
			// a single plain source may be renamed by 'to'; globbed sources keep their names
			if len(matches) > 1 || pattern.To == "" || from != src {
				dest = filepath.Join(destDir, filepath.Base(src))
			}
			jobs = append(jobs, job{src: src, dest: dest})
		}
	}

	eg, egCtx := errgroup.WithContext(ctx)
	for _, j := range jobs {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			log.Debug().Str("from", j.src).Str("to", j.dest).Msg("Copying")
			return cp.Copy(j.src, j.dest)
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	copied := make([]string, len(jobs))
	for i, j := range jobs {
		copied[i] = j.dest
	}
	return copied, nil
}

// ResetOutput empties the output folder. It refuses to remove the root folder
// or anything above it.
func ResetOutput(config *Configuration) error {
	out := filepath.Clean(config.Output.Path)
	root := filepath.Clean(config.Context)
	if out == filepath.Dir(out) || out == root {
		return fmt.Errorf("refusing to reset output folder '%s'", out)
	}
	if rel, err := filepath.Rel(out, root); err == nil && !filepath.IsAbs(rel) && !startsWithParent(rel) {
		return fmt.Errorf("refusing to reset output folder '%s': it contains the root folder", out)
	}
	log.Debug().Str("folder", out).Msg("Resetting output folder")
	if err := os.RemoveAll(out); err != nil {
		return err
	}
	return os.MkdirAll(out, 0o755)
}

func startsWithParent(rel string) bool {
	return rel == ".." || len(rel) > 2 && rel[:3] == ".."+string(filepath.Separator)
}
