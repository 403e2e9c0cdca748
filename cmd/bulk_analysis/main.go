// Package main provides the bulk_analysis CLI: domain qualification workflows
// against the bulk-analysis backend, plus the control API server.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// globalFlags are shared by every sub-command.
type globalFlags struct {
	configPath string
	apiURL     string
	projectID  string
	clientID   string
	userID     string
	logLevel   string
	verbose    bool
}

// commands holds the sub-command constructors. Each command file registers
// its own in init, so every root built by newRootCmd gets fresh flag state.
var commands []func(*globalFlags) *cobra.Command

func register(ctors ...func(*globalFlags) *cobra.Command) {
	commands = append(commands, ctors...)
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "bulk_analysis",
		Short:         "Bulk domain qualification",
		Long:          "bulk_analysis reviews and qualifies a project's candidate guest-post domains: filtering, status updates, DataForSEO analysis, AI qualification, duplicate-aware adds and exports.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "Path to JSON config file")
	pf.StringVar(&g.apiURL, "api-url", "", "Base URL of the bulk-analysis API")
	pf.StringVarP(&g.projectID, "project", "p", "", "Project id")
	pf.StringVar(&g.clientID, "client", "", "Client id (required for adds and workflows)")
	pf.StringVar(&g.userID, "user", "", "User id recorded on status updates")
	pf.StringVar(&g.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "Print detailed debug information")

	for _, ctor := range commands {
		root.AddCommand(ctor(g))
	}
	return root
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
