package steps

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/ngld/taskrun/pkg/taskgraph"
)

// DefaultBundler is used if Bundle.Bundler is empty
const DefaultBundler = "esbuild"

// BundleOptions controls how an entry file is bundled
type BundleOptions struct {
	Minify     bool
	SourceMaps bool
	// IncludeBuiltins bundles shims for the runtime's builtin modules (targets the browser)
	IncludeBuiltins bool
	// ReportSize logs the raw, gzip and brotli sizes of every bundle
	ReportSize bool
	// StandaloneExportName exposes the bundle's exports as a global with this name. Empty produces an ES module.
	StandaloneExportName string
}

// Bundle runs an external bundler once for every file matched by Entries
type Bundle struct {
	Bundler string
	// Entries are glob patterns relative to Base
	Entries []string
	Base    string
	OutDir  string
	Env     map[string]string
	Options BundleOptions
}

// BundleOutput returns the path of the bundle produced for entry
func BundleOutput(outDir, entry string) string {
	name := filepath.Base(entry)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	return filepath.Join(outDir, name+".bundle.js")
}

// Args returns the bundler's command line for the passed entry file
func (b *Bundle) Args(entry string) []string {
	bundler := b.Bundler
	if bundler == "" {
		bundler = DefaultBundler
	}

	args := []string{bundler, entry, "--bundle", "--outfile=" + BundleOutput(b.OutDir, entry)}

	if b.Options.Minify {
		args = append(args, "--minify")
	}

	if b.Options.SourceMaps {
		args = append(args, "--sourcemap=inline")
	}

	if b.Options.IncludeBuiltins {
		args = append(args, "--platform=browser")
	} else {
		args = append(args, "--platform=neutral")
	}

	if b.Options.StandaloneExportName != "" {
		args = append(args, "--format=iife", "--global-name="+b.Options.StandaloneExportName)
	} else {
		args = append(args, "--format=esm")
	}

	return args
}

func (b *Bundle) Describe() string {
	return "bundle " + strings.Join(b.Entries, " ") + " -> " + b.OutDir
}

func (b *Bundle) Execute(ctx context.Context) error {
	entries, err := ResolvePatterns(b.Base, b.Entries)
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		return eris.Errorf("no entry files matched %s", strings.Join(b.Entries, ", "))
	}

	for _, entry := range entries {
		cmd := &Command{
			Args: b.Args(entry),
			Dir:  b.Base,
			Env:  b.Env,
		}

		if err := cmd.Execute(ctx); err != nil {
			return err
		}

		if b.Options.ReportSize {
			output := BundleOutput(b.OutDir, entry)
			if !filepath.IsAbs(output) {
				output = filepath.Join(b.Base, output)
			}

			sizes, err := MeasureSizes(output)
			if err != nil {
				return err
			}

			taskgraph.Log(ctx).Info().
				Str("task", taskgraph.CurrentTask(ctx)).
				Str("path", output).
				Int64("raw", sizes.Raw).
				Int64("gzip", sizes.Gzip).
				Int64("brotli", sizes.Brotli).
				Msg(sizes.String(filepath.Base(output)))
		}

		if err := ctx.Err(); err != nil {
			return err
		}
	}

	return nil
}
