package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/harrison/flavorforge/internal/artifact"
	"github.com/harrison/flavorforge/internal/config"
	"github.com/harrison/flavorforge/internal/discovery"
	"github.com/harrison/flavorforge/internal/executor"
	"github.com/harrison/flavorforge/internal/filelock"
	"github.com/harrison/flavorforge/internal/gradle"
	"github.com/harrison/flavorforge/internal/logger"
)

// defaultOutputDir receives the artifacts when --output is not given.
const defaultOutputDir = "dist"

// NewBuildCommand creates the build command
func NewBuildCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build every flavor in parallel",
		Long: `Build one artifact per flavor and collect them in the output directory.

Flavors come from --flavors, or are discovered in the module's build.gradle
(or build.gradle.kts) when the flag is omitted. Each flavor is built by its
own job: the build command runs, the artifact is located in the flavor's
output directory, validated and moved to --output. A failed attempt clears
the flavor's output directory and retries up to max_attempts times.

One flavor failing never stops the others. The command exits non-zero when
any flavor failed, when no flavors were found, or when the branch checkout
failed.

Configuration is loaded from <project>/.flavorforge/config.yaml if present.
CLI flags override configuration file settings.

Examples:
  flavorforge build --project ~/src/app --output ~/apks
  flavorforge build --flavors free,paid -j 2
  flavorforge build --branch release/2.4 --max-attempts 5
  flavorforge build --dry-run              # Print flavors and commands only
  flavorforge build --verbose              # Stream build tool output`,
		Args: cobra.NoArgs,
		RunE: buildCommand,
	}

	cmd.Flags().String("project", ".", "Project root directory")
	cmd.Flags().StringP("output", "o", "", "Output directory for artifacts (default: <project>/dist)")
	cmd.Flags().String("flavors", "", "Comma-separated flavors to build (default: discover)")
	cmd.Flags().String("branch", "", "Check out and pull this branch before building")
	cmd.Flags().IntP("concurrency", "j", 0, "Maximum number of concurrent builds (0 = number of CPUs)")
	cmd.Flags().Int("max-attempts", 0, "Build attempts per flavor")
	cmd.Flags().String("config", "", "Path to config file (default: <project>/.flavorforge/config.yaml)")
	cmd.Flags().String("log-dir", "", "Directory for the event log")
	cmd.Flags().Bool("verbose", false, "Show build tool output and debug events")
	cmd.Flags().Bool("dry-run", false, "Print the flavors and build commands without building")
	cmd.Flags().String("timeout", "", "Maximum run time (e.g., 30m, 2h, 1h30m)")

	return cmd
}

// buildCommand implements the build command logic
func buildCommand(cmd *cobra.Command, args []string) error {
	projectFlag, _ := cmd.Flags().GetString("project")
	root, err := executor.CheckProject(projectFlag)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd, root)
	if err != nil {
		return err
	}
	overrides, err := flagOverrides(cmd)
	if err != nil {
		return err
	}
	cfg.MergeWithFlags(overrides)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	flavorsFlag, _ := cmd.Flags().GetString("flavors")
	branch, _ := cmd.Flags().GetString("branch")
	outputFlag, _ := cmd.Flags().GetString("output")
	if outputFlag == "" {
		outputFlag = defaultOutputDir
	}
	outputDir := config.ResolvePath(root, outputFlag)
	explicit := ParseFlavorList(flavorsFlag)

	console := logger.NewConsoleLogger(cmd.OutOrStdout(), cfg.LogLevel)

	if cfg.DryRun {
		return dryRun(cmd, cfg, root, outputDir, branch, explicit)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	lock, err := filelock.AcquireRunLock(config.StateDir(root))
	if err != nil {
		if errors.Is(err, filelock.ErrLocked) {
			return fmt.Errorf("%w: %v", executor.ErrRunLocked, err)
		}
		return err
	}
	defer lock.Unlock()

	outputDir, err = executor.PrepareOutputDir(outputDir)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	eventLog, err := logger.NewEventLog(config.ResolvePath(root, cfg.LogDir), runID, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer eventLog.Close()
	sink := logger.NewMultiSink(console, eventLog)

	console.LogInfo(fmt.Sprintf("Run %s: project %s, output %s", runID, root, outputDir))

	runner := executor.NewExecRunner()

	if branch != "" {
		checkout := executor.NewGitCheckout(runner, root)
		checkout.DiscardPaths = cfg.Git.DiscardPaths
		checkout.StashLocalChanges = cfg.Git.StashLocalChanges
		checkout.Sink = sink
		checkout.RunID = runID
		if err := checkout.Checkout(ctx, branch); err != nil {
			return err
		}
	}

	if version, err := gradle.Version(root); err != nil {
		console.LogWarn(err.Error())
	} else if version != "" {
		console.LogInfo("Gradle " + version)
	}
	if cfg.Build.EnsureWrapper {
		if err := gradle.EnsureWrapper(ctx, runner, root); err != nil {
			return err
		}
	}

	flavors, source, err := resolveFlavors(cfg, root, explicit)
	if err != nil {
		return err
	}
	console.LogInfo(fmt.Sprintf("Flavors (%s): %s", source, strings.Join(flavors, ", ")))

	orchestrator := executor.NewOrchestrator(jobConfig(cfg, runID, root, outputDir, runner), sink, cfg.MaxConcurrency)
	result, runErr := orchestrator.Run(ctx, flavors)
	if result != nil {
		console.LogSummary(result)
		eventLog.LogSummary(result)
		fmt.Fprintf(cmd.OutOrStdout(), "Logs written to: %s\n", eventLog.Path())
	}
	if runErr != nil {
		return fmt.Errorf("build aborted: %w", runErr)
	}
	return executor.NewRunError(result)
}

// loadConfig reads --config when given, else the project's config file.
func loadConfig(cmd *cobra.Command, root string) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath != "" {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
		return cfg, nil
	}

	cfg, err := config.LoadConfigFromDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// flagOverrides collects the flags set on the command line.
func flagOverrides(cmd *cobra.Command) (config.FlagOverrides, error) {
	var o config.FlagOverrides
	flags := cmd.Flags()

	if flags.Changed("concurrency") {
		v, _ := flags.GetInt("concurrency")
		o.MaxConcurrency = &v
	}
	if flags.Changed("max-attempts") {
		v, _ := flags.GetInt("max-attempts")
		o.MaxAttempts = &v
	}
	if flags.Changed("timeout") {
		s, _ := flags.GetString("timeout")
		d, err := time.ParseDuration(s)
		if err != nil {
			return o, fmt.Errorf("invalid timeout %q: %w", s, err)
		}
		o.Timeout = &d
	}
	if flags.Changed("log-dir") {
		v, _ := flags.GetString("log-dir")
		o.LogDir = &v
	}
	if flags.Changed("verbose") {
		if v, _ := flags.GetBool("verbose"); v {
			level := "debug"
			o.LogLevel = &level
		}
	}
	if flags.Changed("dry-run") {
		v, _ := flags.GetBool("dry-run")
		o.DryRun = &v
	}
	return o, nil
}

// ParseFlavorList splits a comma-separated flavor list. Blank entries are
// dropped and repeated names keep their first position.
func ParseFlavorList(s string) []string {
	var flavors []string
	seen := make(map[string]bool)
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		flavors = append(flavors, f)
	}
	return flavors
}

// resolveFlavors returns the explicit flavors, or discovers them in the
// module's build configuration. source describes where they came from.
func resolveFlavors(cfg *config.Config, root string, explicit []string) (flavors []string, source string, err error) {
	if len(explicit) > 0 {
		return explicit, "--flavors", nil
	}

	path, err := gradle.ConfigFile(root, cfg.Build.Module, cfg.Build.ConfigFile)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", executor.ErrNoFlavors, err)
	}
	flavors, err = discovery.DiscoverFile(path)
	if err != nil {
		return nil, "", err
	}
	if len(flavors) == 0 {
		return nil, "", fmt.Errorf("%w in %s", executor.ErrNoFlavors, path)
	}
	return flavors, "discovered in " + path, nil
}

// jobConfig wires the configuration into the per-flavor job settings.
func jobConfig(cfg *config.Config, runID, root, outputDir string, runner *executor.ExecRunner) executor.JobConfig {
	spec := gradle.CommandSpec{
		Template:  cfg.Build.Command,
		Module:    cfg.Build.Module,
		BuildType: cfg.Build.BuildType,
	}

	var checks []artifact.Check
	if cfg.Validation.Checksum {
		checks = append(checks, artifact.ChecksumCheck{})
	}
	if cfg.Validation.Signature.Enabled {
		checks = append(checks, artifact.SignatureCheck{
			Runner:  runner,
			Command: cfg.Validation.Signature.Command,
			Require: cfg.Validation.Signature.Require,
		})
	}

	level := cfg.LogLevel
	return executor.JobConfig{
		RunID:       runID,
		ProjectRoot: root,
		OutputDir:   outputDir,
		Runner:      runner,
		Command: func(flavor string) string {
			return gradle.RenderCommand(spec, flavor)
		},
		Locator:              artifact.NewLocator(cfg.Build.OutputLayout, cfg.Build.Module, cfg.Build.BuildType, cfg.Build.ArtifactExtension),
		Validator:            artifact.NewValidator(cfg.Validation.MinSizeBytes, checks...),
		MaxAttempts:          cfg.MaxAttempts,
		RetryDelay:           cfg.RetryDelay,
		ProceedOnNonZeroExit: cfg.ProceedOnNonZeroExit,
		ForwardOutput:        level == "debug" || level == "trace",
	}
}

// dryRun prints what a build would do without touching the project.
func dryRun(cmd *cobra.Command, cfg *config.Config, root, outputDir, branch string, explicit []string) error {
	out := cmd.OutOrStdout()

	flavors, source, err := resolveFlavors(cfg, root, explicit)
	if err != nil {
		return err
	}
	if err := executor.CheckFlavors(flavors); err != nil {
		return err
	}

	spec := gradle.CommandSpec{Template: cfg.Build.Command, Module: cfg.Build.Module, BuildType: cfg.Build.BuildType}
	locator := artifact.NewLocator(cfg.Build.OutputLayout, cfg.Build.Module, cfg.Build.BuildType, cfg.Build.ArtifactExtension)
	limit := executor.NewOrchestrator(executor.JobConfig{}, nil, cfg.MaxConcurrency).Limit(len(flavors))

	fmt.Fprintf(out, "Dry-run mode: nothing will be built.\n\n")
	fmt.Fprintf(out, "Build Plan:\n")
	fmt.Fprintf(out, "  Project: %s\n", root)
	fmt.Fprintf(out, "  Output: %s\n", outputDir)
	if branch != "" {
		fmt.Fprintf(out, "  Branch: %s\n", branch)
	}
	fmt.Fprintf(out, "  Flavors: %d (%s)\n", len(flavors), source)
	fmt.Fprintf(out, "  Concurrency: %d\n", limit)
	fmt.Fprintf(out, "  Max attempts: %d\n", cfg.MaxAttempts)
	fmt.Fprintf(out, "\nCommands:\n")
	for _, flavor := range flavors {
		fmt.Fprintf(out, "  %s: %s\n", flavor, gradle.RenderCommand(spec, flavor))
		fmt.Fprintf(out, "    artifacts from %s\n", locator.Dir(root, flavor))
	}
	return nil
}
