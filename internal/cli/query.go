package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/HRMetricsQA/internal/dataset"
	"github.com/JonMunkholm/HRMetricsQA/internal/engine"
	"github.com/JonMunkholm/HRMetricsQA/internal/inventory"
	"github.com/JonMunkholm/HRMetricsQA/internal/logger"
	"github.com/JonMunkholm/HRMetricsQA/internal/qa"
)

type QueryCmd struct{}

func NewQueryCmd() *QueryCmd {
	return &QueryCmd{}
}

func (c *QueryCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query [query]",
		Short: "Expand and run a placeholder query against the dataset",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			verbose, err := cmd.Root().PersistentFlags().GetBool("verbose")
			if err != nil {
				return fmt.Errorf("failed to get verbose flag: %w", err)
			}
			table, err := cmd.Flags().GetString("table")
			if err != nil {
				return fmt.Errorf("failed to get table flag: %w", err)
			}
			limit, err := cmd.Flags().GetInt("limit")
			if err != nil {
				return fmt.Errorf("failed to get limit flag: %w", err)
			}
			showSQL, err := cmd.Flags().GetBool("show-sql")
			if err != nil {
				return fmt.Errorf("failed to get show-sql flag: %w", err)
			}

			query, err := queryArg(cmd, args)
			if err != nil {
				return err
			}
			reg, err := loadRegistry(cmd)
			if err != nil {
				return err
			}
			tbl, err := loadDataset(cmd)
			if err != nil {
				return err
			}

			log := logger.New(cmd.ErrOrStderr(), verbose)
			eng, err := engine.Open(cmd.Context(), log, tbl)
			if err != nil {
				return err
			}
			defer eng.Close()

			svc, err := qa.New(qa.Config{
				Logger:    log,
				Table:     table,
				Registry:  reg,
				Inventory: inventory.Build(tbl, reg.Dimensions()),
				Executor:  eng,
			})
			if err != nil {
				return err
			}

			prepared, rs, err := svc.Run(cmd.Context(), query)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if showSQL {
				fmt.Fprintln(out, prepared.ExpandedQuery)
			}
			printRows(out, rs, limit)
			return nil
		},
	}
	addDataFlags(cmd)
	tableName := os.Getenv("TABLE_NAME")
	if tableName == "" {
		tableName = "hr_facts"
	}
	cmd.Flags().String("table", tableName, "table name queries refer to (env: TABLE_NAME)")
	cmd.Flags().Int("limit", 50, "maximum rows to print (0 prints all)")
	cmd.Flags().Bool("show-sql", false, "print the expanded query before the rows")
	return cmd
}

func printRows(w io.Writer, rs *engine.RowSet, limit int) {
	rows := rs.Rows
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	table := newTable(w, rs.Columns)
	for _, row := range rows {
		record := make([]string, len(rs.Columns))
		for i := range record {
			if i < len(row) {
				record[i] = dataset.FormatValue(row[i])
			}
		}
		table.Append(record)
	}
	table.Render()
	fmt.Fprintf(w, "%d of %d rows\n", len(rows), rs.Count())
}
