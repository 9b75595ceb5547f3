package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/HRMetricsQA/internal/placeholder"
)

type ExpandCmd struct{}

func NewExpandCmd() *ExpandCmd {
	return &ExpandCmd{}
}

func (c *ExpandCmd) Command() *cobra.Command {
	return &cobra.Command{
		Use:   "expand [query]",
		Short: "Expand metric placeholders in a query (reads stdin without an argument)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry(cmd)
			if err != nil {
				return err
			}
			query, err := queryArg(cmd, args)
			if err != nil {
				return err
			}
			expanded, err := placeholder.Expand(query, reg.Atomic(), reg.DerivedFormulas())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), expanded)
			return nil
		},
	}
}

func queryArg(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("failed to read query from stdin: %w", err)
	}
	query := strings.TrimSpace(string(data))
	if query == "" {
		return "", fmt.Errorf("query is required")
	}
	return query, nil
}
