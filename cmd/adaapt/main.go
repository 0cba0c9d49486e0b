// cmd/adaapt/main.go
//
// This is the entry point for the adaapt CLI.
// Running `adaapt` with no arguments opens the TUI; the subcommands expose
// the same workflows for scripts and quick checks.

package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kingrea/adaapt/internal/config"
	"github.com/kingrea/adaapt/internal/logbook"
	"github.com/kingrea/adaapt/internal/logging"
	"github.com/kingrea/adaapt/internal/modes"
	"github.com/kingrea/adaapt/internal/tui"
)

var (
	// Global flags
	homeDir string
	apiURL  string
	verbose bool

	// Wired in PersistentPreRunE
	cfg     *config.Config
	logger  *logging.Logger
	journal *logbook.Logbook
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "adaapt",
	Short: "adaapt - ask questions of your organization's knowledge base",
	Long: `adaapt is a terminal client for the ADAAPT knowledge service.

Sign in, upload documents into the departments you can access, choose which
datasets to connect and ask questions about them.

Run without arguments to start the interactive interface.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd != cmd.Root())
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Close()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := tui.NewApp(cfg, logger.Logger, journal)
		if err != nil {
			return err
		}
		p := tea.NewProgram(app, tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("running TUI: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "client home directory (default $ADAAPT_HOME or ~/.adaapt)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "knowledge service base URL (overrides config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output")

	rootCmd.AddCommand(
		loginCmd,
		registerCmd,
		logoutCmd,
		whoamiCmd,
		domainsCmd,
		uploadCmd,
		askCmd,
		mockServerCmd,
	)
}

// setup loads configuration and opens the log files. Subcommands also echo
// warnings to stderr; the TUI owns the terminal so it only logs to file.
func setup(console bool) error {
	home, err := config.ResolveHome(homeDir)
	if err != nil {
		return err
	}
	if err := config.InitHome(home); err != nil {
		return fmt.Errorf("initializing %s: %w", home, err)
	}
	cfg, err = config.Load(home)
	if err != nil {
		return err
	}
	if err := cfg.SetBaseURL(apiURL); err != nil {
		return err
	}

	opts := logging.Options{Level: cfg.Client.Logging.Level}
	if verbose {
		opts.Level = "debug"
	}
	if console {
		opts.Console = os.Stderr
	}
	logger, err = logging.New(cfg.LogFilePath(), opts)
	if err != nil {
		return err
	}
	journal, err = logbook.New(cfg.JourneyPath(), logger.Logger)
	if err != nil {
		return err
	}
	return nil
}

// modeContext wires the client stack the subcommands share with the TUI.
func modeContext() (*modes.ModeContext, error) {
	return modes.NewContext(cfg, logger.Logger, journal)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
