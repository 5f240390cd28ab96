// Package cli implements the command-line interface for aspect-iter.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/eunmann/aspect-iter/internal/logctx"
	"github.com/eunmann/aspect-iter/pkg/logging"
	"github.com/eunmann/aspect-iter/pkg/plugin"
)

const usage = "usage: aspect-iter <command> [options]\ncommands: scan, check, filter"

// Run executes the CLI with the given arguments.
func Run(args []string) error {
	return run(context.Background(), args, os.Stdout)
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return errors.New(usage)
	}
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	return root.ExecuteContext(ctx)
}

type globalOptions struct {
	debug bool
	human bool
}

func newRootCmd() *cobra.Command {
	var g globalOptions
	root := &cobra.Command{
		Use:           "aspect-iter",
		Short:         "Group preserved resources into articles",
		Long:          "Scans a content store with publisher plugins, grouping resources into logical articles and extracting their metadata.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Init(logging.Options{Debug: g.debug, Human: g.human, Out: cmd.ErrOrStderr()})
			logctx.SetDefaultLogger(*logging.L())
		},
	}
	root.PersistentFlags().BoolVar(&g.debug, "debug", false, "enable debug logging")
	root.PersistentFlags().BoolVar(&g.human, "human", false, "human-readable console logs")

	root.AddCommand(newScanCmd(), newCheckCmd(), newFilterCmd())
	return root
}

// pluginOptions selects plugin definitions and binds their parameters.
type pluginOptions struct {
	paths      []string
	names      []string
	params     []string
	paramsFile string
}

func (o *pluginOptions) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringArrayVar(&o.paths, "plugin", nil, "plugin definition file or directory (repeatable)")
	f.StringArrayVar(&o.names, "name", nil, "plugin to use by name (repeatable, default all)")
	f.StringArrayVar(&o.params, "param", nil, "plugin parameter as name=value (repeatable)")
	f.StringVar(&o.paramsFile, "params", "", "YAML file of plugin parameters")
}

// paramValues merges the params file with --param flags, flags winning.
func (o *pluginOptions) paramValues() (map[string]string, error) {
	values := make(map[string]string)
	if o.paramsFile != "" {
		fromFile, err := plugin.LoadParams(o.paramsFile)
		if err != nil {
			return nil, err
		}
		for k, v := range fromFile {
			values[k] = v
		}
	}
	for _, p := range o.params {
		k, v, err := plugin.ParseParam(p)
		if err != nil {
			return nil, err
		}
		values[k] = v
	}
	return values, nil
}

func (o *pluginOptions) definitions() ([]plugin.Definition, error) {
	if len(o.paths) == 0 {
		return nil, errors.New("--plugin is required")
	}
	var defs []plugin.Definition
	for _, p := range o.paths {
		d, err := plugin.Load(p)
		if err != nil {
			return nil, err
		}
		defs = append(defs, d...)
	}
	return defs, nil
}

// compile loads, compiles and selects the plugins.
func (o *pluginOptions) compile() ([]*plugin.Plugin, error) {
	defs, err := o.definitions()
	if err != nil {
		return nil, err
	}
	params, err := o.paramValues()
	if err != nil {
		return nil, err
	}
	reg := plugin.NewRegistry()
	if err := reg.CompileAll(defs, params); err != nil {
		return nil, err
	}
	plugins, err := reg.Select(o.names...)
	if err != nil {
		return nil, fmt.Errorf("--name: %w", err)
	}
	return plugins, nil
}
