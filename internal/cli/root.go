// Package cli implements the hrqa operator commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/HRMetricsQA/internal/dataset"
	"github.com/JonMunkholm/HRMetricsQA/internal/registry"
)

type ExitCode int

const (
	exitCodeSuccess = 0
	exitCodeError   = 1
)

// Run executes the hrqa command line with args.
func Run(args []string) ExitCode {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := NewRootCmd()
	rootCmd.SetArgs(args)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return exitCodeError
	}
	return exitCodeSuccess
}

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "hrqa",
		Short:         "Operator CLI for the HR metrics question answering service.",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := cmd.Help()
			if err != nil {
				return fmt.Errorf("failed to show help: %w", err)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "set debug logging level")
	rootCmd.PersistentFlags().String("registry", os.Getenv("REGISTRY_PATH"), "metric registry YAML, built-in when empty (env: REGISTRY_PATH)")

	rootCmd.AddCommand(
		NewExpandCmd().Command(),
		NewInventoryCmd().Command(),
		NewMetricsCmd().Command(),
		NewQueryCmd().Command(),
	)
	return rootCmd
}

func loadRegistry(cmd *cobra.Command) (*registry.Registry, error) {
	path, err := cmd.Root().PersistentFlags().GetString("registry")
	if err != nil {
		return nil, fmt.Errorf("failed to get registry flag: %w", err)
	}
	if path == "" {
		return registry.Default()
	}
	return registry.Load(path)
}

func addDataFlags(cmd *cobra.Command) {
	dataPath := os.Getenv("EXCEL_PATH")
	if dataPath == "" {
		dataPath = "./data2.xlsx"
	}
	cmd.Flags().String("data-path", dataPath, "dataset file, .xlsx or .csv (env: EXCEL_PATH)")
	cmd.Flags().String("sheet", os.Getenv("EXCEL_SHEET"), "workbook sheet, first when empty (env: EXCEL_SHEET)")
}

func loadDataset(cmd *cobra.Command) (*dataset.Table, error) {
	path, err := cmd.Flags().GetString("data-path")
	if err != nil {
		return nil, fmt.Errorf("failed to get data-path flag: %w", err)
	}
	sheet, err := cmd.Flags().GetString("sheet")
	if err != nil {
		return nil, fmt.Errorf("failed to get sheet flag: %w", err)
	}
	return dataset.Load(path, sheet)
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_CENTER)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(true)
	table.SetHeader(header)
	return table
}
