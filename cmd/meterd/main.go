package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/meterd/internal/version"
)

func main() {
	root := &cobra.Command{
		Use:     "meterd",
		Short:   "meterd — usage metering pipeline for marketplace billing",
		Version: version.Version,
	}

	root.AddCommand(
		newRunCmd(),
		newServeCmd(),
		newVersionCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(*cobra.Command, []string) {
			fmt.Printf("meterd %s (commit %s, built %s)\n",
				version.Version, version.Commit, version.Date)
		},
	}
}
