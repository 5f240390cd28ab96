package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

type filterOptions struct {
	plugins pluginOptions
	source  sourceOptions
}

func newFilterCmd() *cobra.Command {
	var o filterOptions
	cmd := &cobra.Command{
		Use:   "filter <resource-id>",
		Short: "Print a stored HTML resource through a plugin's hash filter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFilter(cmd.Context(), &o, args[0], cmd.OutOrStdout())
		},
	}
	o.plugins.register(cmd)
	o.source.register(cmd)
	return cmd
}

func runFilter(ctx context.Context, o *filterOptions, id string, out io.Writer) error {
	plugins, err := o.plugins.compile()
	if err != nil {
		return err
	}
	if len(plugins) != 1 {
		return fmt.Errorf("filter needs exactly one plugin, got %d (use --name)", len(plugins))
	}
	p := plugins[0]
	if p.HashFilter == nil {
		return fmt.Errorf("plugin %s declares no hash filter", p.Name)
	}

	store, err := o.source.open(ctx)
	if err != nil {
		return err
	}
	rc, err := store.Open(ctx, id)
	if err != nil {
		return err
	}
	defer rc.Close()
	return p.HashFilter.Apply(rc, out)
}
