package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ekg-insight/internal/config"
	xlog "ekg-insight/internal/log"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "ekg-insight",
		Short:         "Single-lead ECG analysis",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			xlog.Configure(xlog.Config{Level: config.LogLevel(), Output: os.Stderr})
		},
	}

	root.AddCommand(serveCommand(), analyzeCommand(), summarizeCommand())
	return root
}
