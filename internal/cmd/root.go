package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for flavorforge
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flavorforge",
		Short: "Parallel multi-flavor build orchestrator",
		Long: `Flavorforge builds every product flavor of an Android project in parallel.

It discovers the flavors declared in the module's build configuration (or
takes an explicit list), runs one Gradle build per flavor with bounded
concurrency, validates each produced artifact, retries failed flavors and
collects the artifacts in a single output directory.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	cmd.AddCommand(NewBuildCommand())
	cmd.AddCommand(NewFlavorsCommand())

	return cmd
}
