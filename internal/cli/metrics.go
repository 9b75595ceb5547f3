package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

type MetricsCmd struct{}

func NewMetricsCmd() *MetricsCmd {
	return &MetricsCmd{}
}

func (c *MetricsCmd) Command() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "List registered metrics and dimensions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry(cmd)
			if err != nil {
				return err
			}

			table := newTable(cmd.OutOrStdout(), []string{"Kind", "Name", "Expansion"})
			for _, m := range reg.Derived() {
				table.Append([]string{"derived", m.Name, "(" + m.Formula + ")"})
			}
			for _, name := range reg.Atomic() {
				table.Append([]string{"atomic", name, fmt.Sprintf("SUM(%q)", name)})
			}
			for _, name := range reg.Dimensions() {
				table.Append([]string{"dimension", name, ""})
			}
			table.Render()
			return nil
		},
	}
}
