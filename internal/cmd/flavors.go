package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/harrison/flavorforge/internal/discovery"
	"github.com/harrison/flavorforge/internal/executor"
	"github.com/harrison/flavorforge/internal/gradle"
)

// NewFlavorsCommand creates the flavors command
func NewFlavorsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flavors",
		Short: "List the flavors declared in the build configuration",
		Long: `List the flavors discovered in the module's build configuration, one per
line in ascending order.

Discovery is a best-effort scan: names that only appear inside strings or
comments are never reported, but unusual declaration styles may be missed.
Use --explain to see which rule matched each name.`,
		Args: cobra.NoArgs,
		RunE: flavorsCommand,
	}

	cmd.Flags().String("project", ".", "Project root directory")
	cmd.Flags().String("file", "", "Build configuration file (default: <module>/build.gradle[.kts])")
	cmd.Flags().String("config", "", "Path to config file (default: <project>/.flavorforge/config.yaml)")
	cmd.Flags().Bool("explain", false, "Show the rule that matched each flavor")

	return cmd
}

func flavorsCommand(cmd *cobra.Command, args []string) error {
	projectFlag, _ := cmd.Flags().GetString("project")
	root, err := executor.CheckProject(projectFlag)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd, root)
	if err != nil {
		return err
	}

	explicit, _ := cmd.Flags().GetString("file")
	if explicit == "" {
		explicit = cfg.Build.ConfigFile
	}
	path, err := gradle.ConfigFile(root, cfg.Build.Module, explicit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	explain, _ := cmd.Flags().GetBool("explain")
	if explain {
		text, err := readConfigText(path)
		if err != nil {
			return err
		}
		for _, c := range discovery.New().Scan(text) {
			fmt.Fprintf(out, "%s\t%s\n", c.Name, c.Rule)
		}
		return nil
	}

	flavors, err := discovery.DiscoverFile(path)
	if err != nil {
		return err
	}
	if len(flavors) == 0 {
		return fmt.Errorf("%w in %s", executor.ErrNoFlavors, path)
	}
	for _, f := range flavors {
		fmt.Fprintln(out, f)
	}
	return nil
}

func readConfigText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read build configuration: %w", err)
	}
	return string(data), nil
}
