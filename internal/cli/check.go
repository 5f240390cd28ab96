package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eunmann/aspect-iter/pkg/plugin"
)

func newCheckCmd() *cobra.Command {
	var o pluginOptions
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate plugin definitions",
		Long: `Loads and compiles every plugin definition with the given parameters,
printing one line per plugin. Exits non-zero if any plugin fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(&o, cmd.OutOrStdout())
		},
	}
	o.register(cmd)
	return cmd
}

func runCheck(o *pluginOptions, out io.Writer) error {
	defs, err := o.definitions()
	if err != nil {
		return err
	}
	params, err := o.paramValues()
	if err != nil {
		return err
	}

	failed := 0
	for _, d := range defs {
		p, err := plugin.Compile(d, params)
		if err != nil {
			failed++
			fmt.Fprintf(out, "FAIL %s: %v\n", d.Name, err)
			continue
		}
		fmt.Fprintf(out, "OK   %s: %d aspects, roots %s\n", p.Name, p.Table.Len(), strings.Join(p.Matcher.Roots(), " "))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d plugins failed", failed, len(defs))
	}
	return nil
}
