package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/HRMetricsQA/internal/inventory"
)

const maxListedValues = 10

type InventoryCmd struct{}

func NewInventoryCmd() *InventoryCmd {
	return &InventoryCmd{}
}

func (c *InventoryCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "Show observed values of each registered dimension",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry(cmd)
			if err != nil {
				return err
			}
			tbl, err := loadDataset(cmd)
			if err != nil {
				return err
			}

			inv := inventory.Build(tbl, reg.Dimensions())
			table := newTable(cmd.OutOrStdout(), []string{"Dimension", "Type", "Count", "Values"})
			for _, d := range inv.Dimensions() {
				table.Append([]string{d.Name, d.Dtype, fmt.Sprint(len(d.Values)), summarizeValues(d.Values)})
			}
			table.Render()
			return nil
		},
	}
	addDataFlags(cmd)
	return cmd
}

func summarizeValues(values []string) string {
	if len(values) <= maxListedValues {
		return strings.Join(values, ", ")
	}
	return strings.Join(values[:maxListedValues], ", ") + fmt.Sprintf(", ... (+%d)", len(values)-maxListedValues)
}
