package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/zpdzap/sandpit/internal/config"
	"github.com/zpdzap/sandpit/internal/sandbox"
	"github.com/zpdzap/sandpit/internal/tui"
)

type exitCodeError struct {
	code int
	msg  string
}

func (e exitCodeError) Error() string {
	if e.msg != "" {
		return e.msg
	}
	return fmt.Sprintf("command failed with exit code %d", e.code)
}

func (e exitCodeError) ExitCode() int {
	return e.code
}

type hasExitCode interface {
	ExitCode() int
}

// exitCode maps an error to the process exit status. A failed dependency
// install passes its own exit code through.
func exitCode(err error) int {
	var codeErr hasExitCode
	if errors.As(err, &codeErr) {
		return codeErr.ExitCode()
	}
	var installErr *sandbox.InstallError
	if errors.As(err, &installErr) && installErr.ExitCode > 0 {
		return installErr.ExitCode
	}
	return 1
}

// runFlags are shared by the dashboard and `sandpit run`.
type runFlags struct {
	backend  string
	logLevel string
	headless bool
	once     bool
	interval time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	flags := &runFlags{interval: 2 * time.Second}

	root := &cobra.Command{
		Use:           "sandpit",
		Short:         "Sandpit: run your project's dev server in a sandbox that follows your edits",
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), flags)
		},
	}
	root.PersistentFlags().StringVar(&flags.backend, "runtime", "", "sandbox backend: local or docker (overrides config)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "log level: debug, info, warn, error")

	root.AddCommand(initCmd(), runCmd(flags))
	return root
}

func runCmd(flags *runFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the sandbox and keep it in sync with the project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.once && !flags.headless {
				return errors.New("--once requires --headless")
			}
			return run(cmd.Context(), flags)
		},
	}
	cmd.Flags().BoolVar(&flags.headless, "headless", false, "log to stderr instead of showing the dashboard")
	cmd.Flags().BoolVar(&flags.once, "once", false, "sync once, wait until the dev server is ready or fails, then exit")
	cmd.Flags().DurationVar(&flags.interval, "interval", 2*time.Second, "how often to poll the project for changes (headless)")
	return cmd
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize sandpit in the current project",
		RunE: func(cmd *cobra.Command, args []string) error {
			projectDir, err := os.Getwd()
			if err != nil {
				return err
			}

			if config.Exists(projectDir) {
				fmt.Println("Sandpit already initialized in this project.")
				return nil
			}

			detection := config.Detect(projectDir)
			cfg := config.Config{
				Version: "1",
				Project: filepath.Base(projectDir),
			}
			detection.Apply(&cfg)
			cfg = cfg.WithDefaults()

			if err := config.Save(projectDir, &cfg); err != nil {
				return fmt.Errorf("saving config: %w", err)
			}
			if err := updateGitignore(projectDir); err != nil {
				return fmt.Errorf("updating .gitignore: %w", err)
			}

			fmt.Printf("Initialized sandpit for %s (%s project)\n", cfg.Project, cfg.Language)
			fmt.Printf("  Config:  %s/%s\n", config.Dir, config.ConfigFile)
			fmt.Printf("  Install: %s\n", cfg.Commands.Install)
			fmt.Printf("  Dev:     %s\n", cfg.Commands.Dev)
			fmt.Println("\nRun `sandpit` to launch the dashboard.")
			return nil
		},
	}
}

func updateGitignore(projectDir string) error {
	gitignorePath := filepath.Join(projectDir, ".gitignore")

	entries := []string{
		config.Dir + "/" + config.WorkDir + "/",
		config.Dir + "/" + config.LogFile,
		config.Dir + "/" + config.LockFile,
	}

	existing, _ := os.ReadFile(gitignorePath)
	content := string(existing)

	var toAdd []string
	for _, entry := range entries {
		if !strings.Contains(content, entry) {
			toAdd = append(toAdd, entry)
		}
	}

	if len(toAdd) == 0 {
		return nil
	}

	if len(content) > 0 && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}

	content += "\n# sandpit\n"
	for _, entry := range toAdd {
		content += entry + "\n"
	}

	return os.WriteFile(gitignorePath, []byte(content), 0o644)
}

func run(parent context.Context, flags *runFlags) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	projectDir, err := os.Getwd()
	if err != nil {
		return err
	}

	s, err := openSession(projectDir, flags)
	if err != nil {
		return err
	}
	defer s.close()

	if flags.headless {
		return runHeadless(ctx, s, flags)
	}
	if err := tui.Run(ctx, s.manager, s.cfg, projectDir, s.logger); err != nil {
		return err
	}
	fmt.Println("Sandbox stopped.")
	return nil
}
