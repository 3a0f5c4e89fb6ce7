// Command nim-pipeline runs the plan, execute and review task pipeline as an
// HTTP/gRPC service, an MCP stdio server, or a one-shot demo.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "nim-pipeline",
		Short:         "Plan, execute and review goals with a generative backend",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "path to a TOML config file (default nim-pipeline.toml)")
	root.PersistentFlags().String("backend", "", "override the llm provider (mock | anthropic)")

	root.AddCommand(newServeCmd(), newMCPCmd(), newDemoCmd())
	return root
}
