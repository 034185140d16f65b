// Command apiserver runs the hybrid diagnosis engine's HTTP API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is stamped by the release pipeline via -ldflags.
var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "apiserver",
		Short:         "Hybrid diagnosis engine API server",
		Long:          "Serves the clinical hybrid diagnosis pipeline: text encoding, structured classification, knowledge retrieval, and fused candidate ranking.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			return run(configPath)
		},
	}
	root.Flags().StringP("config", "c", "configs/config.yaml", "path to the configuration file")
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the server version",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(version)
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "apiserver:", err)
		os.Exit(1)
	}
}
